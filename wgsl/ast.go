package wgsl

import "github.com/gogpu/wgslc/ir"

// Span is a byte range in the source text.
type Span = ir.Span

// Module represents a WGSL translation unit.
// Declarations are kept in source order; lowering reorders them by dependency.
type Module struct {
	Enables []Enable
	Decls   []Decl
}

// Enable represents an enable or requires directive.
type Enable struct {
	Extensions []string
	Span       Span
}

// Node is the base interface for all AST nodes.
type Node interface {
	Pos() Span
}

// Decl is the interface for module-scope declarations.
type Decl interface {
	Node
	DeclName() string
	declNode()
}

// Stmt is the interface for statements.
type Stmt interface {
	Node
	stmtNode()
}

// Expr is the interface for expressions.
type Expr interface {
	Node
	exprNode()
}

// Attribute represents an attribute like @location(0) or @builtin(position).
type Attribute struct {
	Name string
	Args []Expr
	Span Span
}

// TypeExpr is a written type: a name with optional template parameters.
// Array sizes and texel formats are expressions in Params.
//
//	f32              Name f32
//	vec3<f32>        Name vec3, Params [f32]
//	array<T, 4>      Name array, Params [T, 4]
//	ptr<function, T> Name ptr, Params [function, T]
type TypeExpr struct {
	Name   string
	Params []Expr
	Span   Span
}

func (t *TypeExpr) Pos() Span { return t.Span }
func (t *TypeExpr) exprNode() {}

// StructDecl represents a struct declaration.
type StructDecl struct {
	Name    string
	Members []*StructMember
	Span    Span
}

// StructMember represents a struct member.
type StructMember struct {
	Name       string
	Type       *TypeExpr
	Attributes []Attribute
	Span       Span
}

// FunctionDecl represents a function declaration.
type FunctionDecl struct {
	Name        string
	Params      []*Parameter
	ReturnType  *TypeExpr
	ReturnAttrs []Attribute
	Attributes  []Attribute
	Body        *BlockStmt
	Span        Span
}

// Parameter represents a function parameter.
type Parameter struct {
	Name       string
	Type       *TypeExpr
	Attributes []Attribute
	Span       Span
}

// VarDecl represents a var declaration at module or function scope.
type VarDecl struct {
	Name         string
	AddressSpace string
	AccessMode   string
	Type         *TypeExpr // nil when inferred
	Init         Expr      // nil without initializer
	Attributes   []Attribute
	Span         Span
}

// ConstDecl represents a const declaration.
type ConstDecl struct {
	Name string
	Type *TypeExpr
	Init Expr
	Span Span
}

// OverrideDecl represents a pipeline-overridable constant.
type OverrideDecl struct {
	Name       string
	Type       *TypeExpr
	Init       Expr
	Attributes []Attribute
	Span       Span
}

// AliasDecl represents a type alias.
type AliasDecl struct {
	Name string
	Type *TypeExpr
	Span Span
}

// ConstAssertDecl is a module-scope const_assert.
type ConstAssertDecl struct {
	Cond Expr
	Span Span
}

func (d *StructDecl) Pos() Span      { return d.Span }
func (d *FunctionDecl) Pos() Span    { return d.Span }
func (d *VarDecl) Pos() Span         { return d.Span }
func (d *ConstDecl) Pos() Span       { return d.Span }
func (d *OverrideDecl) Pos() Span    { return d.Span }
func (d *AliasDecl) Pos() Span       { return d.Span }
func (d *ConstAssertDecl) Pos() Span { return d.Span }

func (d *StructDecl) DeclName() string      { return d.Name }
func (d *FunctionDecl) DeclName() string    { return d.Name }
func (d *VarDecl) DeclName() string         { return d.Name }
func (d *ConstDecl) DeclName() string       { return d.Name }
func (d *OverrideDecl) DeclName() string    { return d.Name }
func (d *AliasDecl) DeclName() string       { return d.Name }
func (d *ConstAssertDecl) DeclName() string { return "" }

func (*StructDecl) declNode()      {}
func (*FunctionDecl) declNode()    {}
func (*VarDecl) declNode()         {}
func (*ConstDecl) declNode()       {}
func (*OverrideDecl) declNode()    {}
func (*AliasDecl) declNode()       {}
func (*ConstAssertDecl) declNode() {}

// Statements.

// BlockStmt represents a braced block.
type BlockStmt struct {
	Statements []Stmt
	Span       Span
}

// ReturnStmt represents a return statement.
type ReturnStmt struct {
	Value Expr
	Span  Span
}

// IfStmt represents an if statement. Else is nil, a *BlockStmt or an *IfStmt.
type IfStmt struct {
	Condition Expr
	Body      *BlockStmt
	Else      Stmt
	Span      Span
}

// SwitchStmt represents a switch statement.
type SwitchStmt struct {
	Selector Expr
	Cases    []*SwitchCaseClause
	Span     Span
}

// SwitchCaseClause is one case or default clause.
// A default selector may be mixed with values: case 1, default: {}.
type SwitchCaseClause struct {
	Selectors []Expr
	IsDefault bool
	Body      *BlockStmt
	Span      Span
}

// LoopStmt represents loop { body continuing { ... break if cond; } }.
type LoopStmt struct {
	Body       *BlockStmt
	Continuing *BlockStmt
	BreakIf    Expr
	Span       Span
}

// ForStmt represents a for loop.
type ForStmt struct {
	Init      Stmt
	Condition Expr
	Update    Stmt
	Body      *BlockStmt
	Span      Span
}

// WhileStmt represents a while loop.
type WhileStmt struct {
	Condition Expr
	Body      *BlockStmt
	Span      Span
}

// BreakStmt represents a break statement.
type BreakStmt struct {
	Span Span
}

// ContinueStmt represents a continue statement.
type ContinueStmt struct {
	Span Span
}

// DiscardStmt represents a discard statement.
type DiscardStmt struct {
	Span Span
}

// LetStmt represents a let binding.
type LetStmt struct {
	Name string
	Type *TypeExpr
	Init Expr
	Span Span
}

// AssignStmt represents plain and compound assignment.
// A nil Left is the phony assignment _ = e.
type AssignStmt struct {
	Op    TokenKind // TokenEqual or a compound operator
	Left  Expr
	Right Expr
	Span  Span
}

// IncDecStmt represents x++ and x--.
type IncDecStmt struct {
	Target    Expr
	Increment bool
	Span      Span
}

// CallStmt is a function call evaluated for its effects.
type CallStmt struct {
	Call *CallExpr
	Span Span
}

// DeclStmt wraps a function-scope var or const declaration.
type DeclStmt struct {
	Decl Decl
	Span Span
}

// ConstAssertStmt is a function-scope const_assert.
type ConstAssertStmt struct {
	Cond Expr
	Span Span
}

func (s *BlockStmt) Pos() Span       { return s.Span }
func (s *ReturnStmt) Pos() Span      { return s.Span }
func (s *IfStmt) Pos() Span          { return s.Span }
func (s *SwitchStmt) Pos() Span      { return s.Span }
func (s *LoopStmt) Pos() Span        { return s.Span }
func (s *ForStmt) Pos() Span         { return s.Span }
func (s *WhileStmt) Pos() Span       { return s.Span }
func (s *BreakStmt) Pos() Span       { return s.Span }
func (s *ContinueStmt) Pos() Span    { return s.Span }
func (s *DiscardStmt) Pos() Span     { return s.Span }
func (s *LetStmt) Pos() Span         { return s.Span }
func (s *AssignStmt) Pos() Span      { return s.Span }
func (s *IncDecStmt) Pos() Span      { return s.Span }
func (s *CallStmt) Pos() Span        { return s.Span }
func (s *DeclStmt) Pos() Span        { return s.Span }
func (s *ConstAssertStmt) Pos() Span { return s.Span }

func (*BlockStmt) stmtNode()       {}
func (*ReturnStmt) stmtNode()      {}
func (*IfStmt) stmtNode()          {}
func (*SwitchStmt) stmtNode()      {}
func (*LoopStmt) stmtNode()        {}
func (*ForStmt) stmtNode()         {}
func (*WhileStmt) stmtNode()       {}
func (*BreakStmt) stmtNode()       {}
func (*ContinueStmt) stmtNode()    {}
func (*DiscardStmt) stmtNode()     {}
func (*LetStmt) stmtNode()         {}
func (*AssignStmt) stmtNode()      {}
func (*IncDecStmt) stmtNode()      {}
func (*CallStmt) stmtNode()        {}
func (*DeclStmt) stmtNode()        {}
func (*ConstAssertStmt) stmtNode() {}

// Expressions.

// Ident represents an identifier reference.
type Ident struct {
	Name string
	Span Span
}

// Literal represents a numeric or boolean literal.
type Literal struct {
	Kind  TokenKind // TokenIntLiteral, TokenFloatLiteral, TokenTrue, TokenFalse
	Value string
	Span  Span
}

// BinaryExpr represents a binary expression.
type BinaryExpr struct {
	Left  Expr
	Op    TokenKind
	Right Expr
	Span  Span
}

// UnaryExpr represents a prefix expression: - ! ~ & *.
type UnaryExpr struct {
	Op      TokenKind
	Operand Expr
	Span    Span
}

// CallExpr is a call of a function, builtin or type constructor.
// Callee carries template arguments, as in vec3<f32>(...) or bitcast<u32>(x).
type CallExpr struct {
	Callee *TypeExpr
	Args   []Expr
	Span   Span
}

// IndexExpr represents base[index].
type IndexExpr struct {
	Base  Expr
	Index Expr
	Span  Span
}

// MemberExpr represents base.member, including swizzles.
type MemberExpr struct {
	Base   Expr
	Member string
	Span   Span
}

// ParenExpr keeps explicit parentheses for span reporting.
type ParenExpr struct {
	Inner Expr
	Span  Span
}

func (e *Ident) Pos() Span      { return e.Span }
func (e *Literal) Pos() Span    { return e.Span }
func (e *BinaryExpr) Pos() Span { return e.Span }
func (e *UnaryExpr) Pos() Span  { return e.Span }
func (e *CallExpr) Pos() Span   { return e.Span }
func (e *IndexExpr) Pos() Span  { return e.Span }
func (e *MemberExpr) Pos() Span { return e.Span }
func (e *ParenExpr) Pos() Span  { return e.Span }

func (*Ident) exprNode()      {}
func (*Literal) exprNode()    {}
func (*BinaryExpr) exprNode() {}
func (*UnaryExpr) exprNode()  {}
func (*CallExpr) exprNode()   {}
func (*IndexExpr) exprNode()  {}
func (*MemberExpr) exprNode() {}
func (*ParenExpr) exprNode()  {}
