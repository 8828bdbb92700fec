package wgsl

import "strings"

// DefaultMaxDepth bounds statement and expression nesting.
const DefaultMaxDepth = 256

// Parser parses WGSL tokens into an AST.
type Parser struct {
	tokens  []Token
	current int
	source  string
	errors  SourceErrors

	depth    int
	maxDepth int
}

// NewParser creates a new parser for the given tokens.
func NewParser(tokens []Token) *Parser {
	return &Parser{
		tokens:   tokens,
		maxDepth: DefaultMaxDepth,
	}
}

// SetSource attaches the source text to reported errors.
func (p *Parser) SetSource(source string) { p.source = source }

// SetMaxDepth changes the nesting limit. Values below 1 keep the default.
func (p *Parser) SetMaxDepth(n int) {
	if n > 0 {
		p.maxDepth = n
	}
}

// ParseSource tokenizes and parses source in one step.
func ParseSource(source string) (*Module, error) {
	tokens, err := NewLexer(source).Tokenize()
	if err != nil {
		return nil, err
	}

	p := NewParser(tokens)
	p.SetSource(source)

	return p.Parse()
}

// Parse parses the tokens and returns a Module AST.
// Errors of all declarations are collected; the module holds what parsed.
func (p *Parser) Parse() (*Module, error) {
	module := &Module{}

	for !p.isAtEnd() {
		if p.match(TokenSemicolon) {
			continue
		}

		if p.check(TokenEnable) || p.check(TokenRequires) || p.check(TokenDiagnostic) {
			module.Enables = append(module.Enables, p.directive())
			continue
		}

		decl, err := p.declaration()
		if err != nil {
			p.errors.Add(err)
			p.synchronize()
			continue
		}

		module.Decls = append(module.Decls, decl)
	}

	if p.errors.HasErrors() {
		return module, p.errors
	}

	return module, nil
}

func (p *Parser) directive() Enable {
	start := p.advance()
	dir := Enable{Span: start.Span}

	for !p.check(TokenSemicolon) && !p.isAtEnd() {
		if tok := p.advance(); tok.Kind == TokenIdent {
			dir.Extensions = append(dir.Extensions, tok.Lexeme)
		}
	}
	dir.Span = dir.Span.Union(p.peek().Span)
	p.match(TokenSemicolon)

	return dir
}

// declaration parses a top-level declaration.
func (p *Parser) declaration() (Decl, *SourceError) {
	attrs, err := p.attributes()
	if err != nil {
		return nil, err
	}

	switch p.peek().Kind {
	case TokenFn:
		return p.functionDecl(attrs)
	case TokenStruct:
		return p.structDecl()
	case TokenVar:
		return p.varDecl(attrs)
	case TokenConst:
		return p.constDecl()
	case TokenOverride:
		return p.overrideDecl(attrs)
	case TokenAlias:
		return p.aliasDecl()
	case TokenConstAssert:
		start := p.advance()
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		return &ConstAssertDecl{Cond: cond, Span: p.spanFrom(start)}, nil
	default:
		return nil, p.errorf(p.peek(), "unexpected %s, expected declaration", p.peek().Kind)
	}
}

// attributes parses @name and @name(args...) lists.
func (p *Parser) attributes() ([]Attribute, *SourceError) {
	var attrs []Attribute

	for p.check(TokenAt) {
		start := p.advance()

		var name Token
		switch {
		case p.check(TokenIdent), p.check(TokenConst), p.check(TokenDiagnostic):
			name = p.advance()
		default:
			return nil, p.errorf(p.peek(), "expected attribute name, got %s", p.peek().Kind)
		}

		attr := Attribute{Name: name.Lexeme}

		if p.match(TokenLeftParen) {
			for !p.check(TokenRightParen) && !p.isAtEnd() {
				arg, err := p.expression()
				if err != nil {
					return nil, err
				}
				attr.Args = append(attr.Args, arg)

				if !p.match(TokenComma) {
					break
				}
			}
			if err := p.expectErr(TokenRightParen); err != nil {
				return nil, err
			}
		}

		attr.Span = p.spanFrom(start)
		attrs = append(attrs, attr)
	}

	return attrs, nil
}

func (p *Parser) functionDecl(attrs []Attribute) (*FunctionDecl, *SourceError) {
	start := p.advance() // fn

	name, err := p.ident("function name")
	if err != nil {
		return nil, err
	}

	if err := p.expectErr(TokenLeftParen); err != nil {
		return nil, err
	}

	fn := &FunctionDecl{Name: name.Lexeme, Attributes: attrs}

	for !p.check(TokenRightParen) && !p.isAtEnd() {
		param, err := p.parameter()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, param)

		if !p.match(TokenComma) {
			break
		}
	}

	if err := p.expectErr(TokenRightParen); err != nil {
		return nil, err
	}

	if p.match(TokenArrow) {
		if fn.ReturnAttrs, err = p.attributes(); err != nil {
			return nil, err
		}
		if fn.ReturnType, err = p.typeExpr(); err != nil {
			return nil, err
		}
	}

	if fn.Body, err = p.block(); err != nil {
		return nil, err
	}

	fn.Span = p.spanFrom(start)

	return fn, nil
}

func (p *Parser) parameter() (*Parameter, *SourceError) {
	attrs, err := p.attributes()
	if err != nil {
		return nil, err
	}

	name, err := p.ident("parameter name")
	if err != nil {
		return nil, err
	}

	if err := p.expectErr(TokenColon); err != nil {
		return nil, err
	}

	typ, err := p.typeExpr()
	if err != nil {
		return nil, err
	}

	return &Parameter{Name: name.Lexeme, Type: typ, Attributes: attrs, Span: p.spanFrom(name)}, nil
}

func (p *Parser) structDecl() (*StructDecl, *SourceError) {
	start := p.advance() // struct

	name, err := p.ident("struct name")
	if err != nil {
		return nil, err
	}

	if err := p.expectErr(TokenLeftBrace); err != nil {
		return nil, err
	}

	decl := &StructDecl{Name: name.Lexeme}

	for !p.check(TokenRightBrace) && !p.isAtEnd() {
		attrs, err := p.attributes()
		if err != nil {
			return nil, err
		}

		member, err := p.ident("member name")
		if err != nil {
			return nil, err
		}

		if err := p.expectErr(TokenColon); err != nil {
			return nil, err
		}

		typ, err := p.typeExpr()
		if err != nil {
			return nil, err
		}

		decl.Members = append(decl.Members, &StructMember{
			Name:       member.Lexeme,
			Type:       typ,
			Attributes: attrs,
			Span:       p.spanFrom(member),
		})

		if !p.match(TokenComma) && !p.match(TokenSemicolon) {
			break
		}
	}

	if err := p.expectErr(TokenRightBrace); err != nil {
		return nil, err
	}
	p.match(TokenSemicolon)

	decl.Span = p.spanFrom(start)

	return decl, nil
}

// varDecl parses var<space, access> name: type = init;
func (p *Parser) varDecl(attrs []Attribute) (*VarDecl, *SourceError) {
	start := p.advance() // var

	decl := &VarDecl{Attributes: attrs}

	if p.match(TokenLess) {
		space, err := p.ident("address space")
		if err != nil {
			return nil, err
		}
		decl.AddressSpace = space.Lexeme

		if p.match(TokenComma) {
			access, err := p.ident("access mode")
			if err != nil {
				return nil, err
			}
			decl.AccessMode = access.Lexeme
		}

		if !p.closeTemplate() {
			return nil, p.errorf(p.peek(), "expected '>' after address space, got %s", p.peek().Kind)
		}
	}

	name, err := p.ident("variable name")
	if err != nil {
		return nil, err
	}
	decl.Name = name.Lexeme

	if p.match(TokenColon) {
		if decl.Type, err = p.typeExpr(); err != nil {
			return nil, err
		}
	}

	if p.match(TokenEqual) {
		if decl.Init, err = p.expression(); err != nil {
			return nil, err
		}
	}

	if err := p.expectErr(TokenSemicolon); err != nil {
		return nil, err
	}

	decl.Span = p.spanFrom(start)

	return decl, nil
}

func (p *Parser) constDecl() (*ConstDecl, *SourceError) {
	start := p.advance() // const

	name, typ, init, err := p.namedInit(true)
	if err != nil {
		return nil, err
	}

	return &ConstDecl{Name: name, Type: typ, Init: init, Span: p.spanFrom(start)}, nil
}

func (p *Parser) overrideDecl(attrs []Attribute) (*OverrideDecl, *SourceError) {
	start := p.advance() // override

	name, typ, init, err := p.namedInit(false)
	if err != nil {
		return nil, err
	}

	if typ == nil && init == nil {
		return nil, p.errorf(start, "override %s needs a type or an initializer", name)
	}

	return &OverrideDecl{Name: name, Type: typ, Init: init, Attributes: attrs, Span: p.spanFrom(start)}, nil
}

// namedInit parses name [: type] [= init] ; after const, let or override.
func (p *Parser) namedInit(initRequired bool) (string, *TypeExpr, Expr, *SourceError) {
	name, err := p.ident("name")
	if err != nil {
		return "", nil, nil, err
	}

	var typ *TypeExpr
	if p.match(TokenColon) {
		if typ, err = p.typeExpr(); err != nil {
			return "", nil, nil, err
		}
	}

	var init Expr
	if initRequired || p.check(TokenEqual) {
		if err := p.expectErr(TokenEqual); err != nil {
			return "", nil, nil, err
		}
		if init, err = p.expression(); err != nil {
			return "", nil, nil, err
		}
	}

	if err := p.expectErr(TokenSemicolon); err != nil {
		return "", nil, nil, err
	}

	return name.Lexeme, typ, init, nil
}

func (p *Parser) aliasDecl() (*AliasDecl, *SourceError) {
	start := p.advance() // alias

	name, err := p.ident("alias name")
	if err != nil {
		return nil, err
	}

	if err := p.expectErr(TokenEqual); err != nil {
		return nil, err
	}

	typ, err := p.typeExpr()
	if err != nil {
		return nil, err
	}

	if err := p.expectErr(TokenSemicolon); err != nil {
		return nil, err
	}

	return &AliasDecl{Name: name.Lexeme, Type: typ, Span: p.spanFrom(start)}, nil
}

// typeExpr parses a type name with optional template arguments.
func (p *Parser) typeExpr() (*TypeExpr, *SourceError) {
	name, err := p.ident("type")
	if err != nil {
		return nil, err
	}

	t := &TypeExpr{Name: name.Lexeme, Span: name.Span}

	if p.check(TokenLess) {
		if t.Params, err = p.templateArgs(); err != nil {
			return nil, err
		}
		t.Span = p.spanFrom(name)
	}

	return t, nil
}

// templateArgs parses <a, b, ...>. An identifier followed by a template
// list or by the end of the argument is a type, anything else is an
// expression that cannot contain '>'.
func (p *Parser) templateArgs() ([]Expr, *SourceError) {
	p.advance() // <

	var args []Expr

	for !p.isAtEnd() {
		var arg Expr
		var err *SourceError

		if p.check(TokenIdent) && endsTypeArg(p.peekAt(1).Kind) {
			arg, err = p.typeExpr()
		} else {
			arg, err = p.additive()
		}
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		if !p.match(TokenComma) {
			break
		}
	}

	if !p.closeTemplate() {
		return nil, p.errorf(p.peek(), "expected '>' to close template list, got %s", p.peek().Kind)
	}

	return args, nil
}

func endsTypeArg(k TokenKind) bool {
	switch k {
	case TokenLess, TokenComma, TokenGreater, TokenGreaterGreater, TokenGreaterEqual, TokenGreaterGreaterEqual:
		return true
	}

	return false
}

// closeTemplate consumes one '>', splitting '>>', '>=' and '>>=' tokens.
func (p *Parser) closeTemplate() bool {
	tok := &p.tokens[p.current]

	var rest TokenKind
	switch tok.Kind {
	case TokenGreater:
		p.advance()
		return true
	case TokenGreaterGreater:
		rest = TokenGreater
	case TokenGreaterEqual:
		rest = TokenEqual
	case TokenGreaterGreaterEqual:
		rest = TokenGreaterEqual
	default:
		return false
	}

	tok.Kind = rest
	tok.Lexeme = tok.Lexeme[1:]
	tok.Span.Start++

	return true
}

func (p *Parser) block() (*BlockStmt, *SourceError) {
	start := p.peek()
	if err := p.expectErr(TokenLeftBrace); err != nil {
		return nil, err
	}

	if err := p.enter(start); err != nil {
		return nil, err
	}
	defer p.leave()

	b := &BlockStmt{}

	for !p.check(TokenRightBrace) && !p.isAtEnd() {
		if p.match(TokenSemicolon) {
			continue
		}

		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		b.Statements = append(b.Statements, stmt)
	}

	if err := p.expectErr(TokenRightBrace); err != nil {
		return nil, err
	}

	b.Span = p.spanFrom(start)

	return b, nil
}

//nolint:gocyclo,cyclop // one case per statement keyword
func (p *Parser) statement() (Stmt, *SourceError) {
	// statement attributes such as @diagnostic are accepted and ignored
	if _, err := p.attributes(); err != nil {
		return nil, err
	}

	start := p.peek()

	switch start.Kind {
	case TokenLeftBrace:
		return p.block()
	case TokenReturn:
		p.advance()
		ret := &ReturnStmt{}
		if !p.check(TokenSemicolon) {
			v, err := p.expression()
			if err != nil {
				return nil, err
			}
			ret.Value = v
		}
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		ret.Span = p.spanFrom(start)
		return ret, nil
	case TokenIf:
		return p.ifStmt()
	case TokenSwitch:
		return p.switchStmt()
	case TokenLoop:
		return p.loopStmt()
	case TokenFor:
		return p.forStmt()
	case TokenWhile:
		p.advance()
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		body, err := p.block()
		if err != nil {
			return nil, err
		}
		return &WhileStmt{Condition: cond, Body: body, Span: p.spanFrom(start)}, nil
	case TokenBreak:
		p.advance()
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		return &BreakStmt{Span: p.spanFrom(start)}, nil
	case TokenContinue:
		p.advance()
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		return &ContinueStmt{Span: p.spanFrom(start)}, nil
	case TokenDiscard:
		p.advance()
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		return &DiscardStmt{Span: p.spanFrom(start)}, nil
	case TokenConstAssert:
		p.advance()
		cond, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		return &ConstAssertStmt{Cond: cond, Span: p.spanFrom(start)}, nil
	default:
		s, err := p.simpleStatement()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(TokenSemicolon); err != nil {
			return nil, err
		}
		return s, nil
	}
}

// simpleStatement parses the statements allowed in for headers:
// declarations, assignments, increments and calls. The trailing ';' is not consumed.
func (p *Parser) simpleStatement() (Stmt, *SourceError) {
	start := p.peek()

	switch start.Kind {
	case TokenVar:
		decl, err := p.localVar()
		if err != nil {
			return nil, err
		}
		return &DeclStmt{Decl: decl, Span: decl.Span}, nil
	case TokenLet, TokenConst:
		p.advance()
		name, err := p.ident("name")
		if err != nil {
			return nil, err
		}
		var typ *TypeExpr
		if p.match(TokenColon) {
			if typ, err = p.typeExpr(); err != nil {
				return nil, err
			}
		}
		if err := p.expectErr(TokenEqual); err != nil {
			return nil, err
		}
		init, err := p.expression()
		if err != nil {
			return nil, err
		}
		if start.Kind == TokenConst {
			decl := &ConstDecl{Name: name.Lexeme, Type: typ, Init: init, Span: p.spanFrom(start)}
			return &DeclStmt{Decl: decl, Span: decl.Span}, nil
		}
		return &LetStmt{Name: name.Lexeme, Type: typ, Init: init, Span: p.spanFrom(start)}, nil
	case TokenUnderscore:
		p.advance()
		if err := p.expectErr(TokenEqual); err != nil {
			return nil, err
		}
		right, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Op: TokenEqual, Right: right, Span: p.spanFrom(start)}, nil
	}

	target, err := p.unary()
	if err != nil {
		return nil, err
	}

	switch op := p.peek().Kind; {
	case isAssignOp(op):
		p.advance()
		right, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &AssignStmt{Op: op, Left: target, Right: right, Span: p.spanFrom(start)}, nil
	case op == TokenPlusPlus || op == TokenMinusMinus:
		p.advance()
		return &IncDecStmt{Target: target, Increment: op == TokenPlusPlus, Span: p.spanFrom(start)}, nil
	}

	call, ok := target.(*CallExpr)
	if !ok {
		return nil, p.errorf(p.peek(), "expected assignment or function call, got %s", p.peek().Kind)
	}

	return &CallStmt{Call: call, Span: call.Span}, nil
}

// localVar parses a function-scope var without the trailing ';'.
func (p *Parser) localVar() (*VarDecl, *SourceError) {
	start := p.advance() // var

	decl := &VarDecl{}

	if p.match(TokenLess) {
		space, err := p.ident("address space")
		if err != nil {
			return nil, err
		}
		decl.AddressSpace = space.Lexeme
		if !p.closeTemplate() {
			return nil, p.errorf(p.peek(), "expected '>' after address space, got %s", p.peek().Kind)
		}
	}

	name, err := p.ident("variable name")
	if err != nil {
		return nil, err
	}
	decl.Name = name.Lexeme

	if p.match(TokenColon) {
		if decl.Type, err = p.typeExpr(); err != nil {
			return nil, err
		}
	}

	if p.match(TokenEqual) {
		if decl.Init, err = p.expression(); err != nil {
			return nil, err
		}
	}

	if decl.Type == nil && decl.Init == nil {
		return nil, p.errorf(name, "variable %s needs a type or an initializer", decl.Name)
	}

	decl.Span = p.spanFrom(start)

	return decl, nil
}

func (p *Parser) ifStmt() (*IfStmt, *SourceError) {
	start := p.advance() // if

	cond, err := p.expression()
	if err != nil {
		return nil, err
	}

	body, err := p.block()
	if err != nil {
		return nil, err
	}

	stmt := &IfStmt{Condition: cond, Body: body}

	if p.match(TokenElse) {
		if p.check(TokenIf) {
			stmt.Else, err = p.ifStmt()
		} else {
			stmt.Else, err = p.block()
		}
		if err != nil {
			return nil, err
		}
	}

	stmt.Span = p.spanFrom(start)

	return stmt, nil
}

func (p *Parser) switchStmt() (*SwitchStmt, *SourceError) {
	start := p.advance() // switch

	selector, err := p.expression()
	if err != nil {
		return nil, err
	}

	if err := p.expectErr(TokenLeftBrace); err != nil {
		return nil, err
	}

	stmt := &SwitchStmt{Selector: selector}

	for !p.check(TokenRightBrace) && !p.isAtEnd() {
		clauseStart := p.peek()
		clause := &SwitchCaseClause{}

		switch {
		case p.match(TokenDefault):
			clause.IsDefault = true
		case p.match(TokenCase):
			for !p.check(TokenColon) && !p.check(TokenLeftBrace) && !p.isAtEnd() {
				if p.match(TokenDefault) {
					clause.IsDefault = true
				} else {
					sel, err := p.expression()
					if err != nil {
						return nil, err
					}
					clause.Selectors = append(clause.Selectors, sel)
				}

				if !p.match(TokenComma) {
					break
				}
			}
		default:
			return nil, p.errorf(clauseStart, "expected 'case' or 'default', got %s", clauseStart.Kind)
		}

		p.match(TokenColon)

		if clause.Body, err = p.block(); err != nil {
			return nil, err
		}

		clause.Span = p.spanFrom(clauseStart)
		stmt.Cases = append(stmt.Cases, clause)
	}

	if err := p.expectErr(TokenRightBrace); err != nil {
		return nil, err
	}

	stmt.Span = p.spanFrom(start)

	return stmt, nil
}

// loopStmt parses loop { ... continuing { ... break if cond; } }.
// The continuing block must be the last statement of the body.
func (p *Parser) loopStmt() (*LoopStmt, *SourceError) {
	start := p.advance() // loop

	bodyStart := p.peek()
	if err := p.expectErr(TokenLeftBrace); err != nil {
		return nil, err
	}

	if err := p.enter(bodyStart); err != nil {
		return nil, err
	}
	defer p.leave()

	loop := &LoopStmt{Body: &BlockStmt{}}

	for !p.check(TokenRightBrace) && !p.isAtEnd() {
		if p.match(TokenSemicolon) {
			continue
		}

		if p.check(TokenContinuing) {
			if err := p.continuing(loop); err != nil {
				return nil, err
			}
			if !p.check(TokenRightBrace) {
				return nil, p.errorf(p.peek(), "continuing must be the last statement of a loop")
			}
			break
		}

		stmt, err := p.statement()
		if err != nil {
			return nil, err
		}
		loop.Body.Statements = append(loop.Body.Statements, stmt)
	}

	if err := p.expectErr(TokenRightBrace); err != nil {
		return nil, err
	}

	loop.Body.Span = p.spanFrom(bodyStart)
	loop.Span = p.spanFrom(start)

	return loop, nil
}

func (p *Parser) continuing(loop *LoopStmt) *SourceError {
	start := p.advance() // continuing

	if err := p.expectErr(TokenLeftBrace); err != nil {
		return err
	}

	cont := &BlockStmt{}

	for !p.check(TokenRightBrace) && !p.isAtEnd() {
		if p.match(TokenSemicolon) {
			continue
		}

		if p.check(TokenBreak) && p.peekAt(1).Kind == TokenIf {
			p.advance()
			p.advance()

			cond, err := p.expression()
			if err != nil {
				return err
			}
			if err := p.expectErr(TokenSemicolon); err != nil {
				return err
			}
			if !p.check(TokenRightBrace) {
				return p.errorf(p.peek(), "break if must be the last statement of continuing")
			}

			loop.BreakIf = cond
			break
		}

		stmt, err := p.statement()
		if err != nil {
			return err
		}
		cont.Statements = append(cont.Statements, stmt)
	}

	if err := p.expectErr(TokenRightBrace); err != nil {
		return err
	}

	cont.Span = p.spanFrom(start)
	loop.Continuing = cont

	return nil
}

func (p *Parser) forStmt() (*ForStmt, *SourceError) {
	start := p.advance() // for

	if err := p.expectErr(TokenLeftParen); err != nil {
		return nil, err
	}

	stmt := &ForStmt{}
	var err *SourceError

	if !p.check(TokenSemicolon) {
		if stmt.Init, err = p.simpleStatement(); err != nil {
			return nil, err
		}
	}
	if err := p.expectErr(TokenSemicolon); err != nil {
		return nil, err
	}

	if !p.check(TokenSemicolon) {
		if stmt.Condition, err = p.expression(); err != nil {
			return nil, err
		}
	}
	if err := p.expectErr(TokenSemicolon); err != nil {
		return nil, err
	}

	if !p.check(TokenRightParen) {
		if stmt.Update, err = p.simpleStatement(); err != nil {
			return nil, err
		}
		if _, ok := stmt.Update.(*DeclStmt); ok {
			return nil, p.errorf(start, "declarations are not allowed in the for update")
		}
	}
	if err := p.expectErr(TokenRightParen); err != nil {
		return nil, err
	}

	if stmt.Body, err = p.block(); err != nil {
		return nil, err
	}

	stmt.Span = p.spanFrom(start)

	return stmt, nil
}

// Expressions, lowest precedence first.

func (p *Parser) expression() (Expr, *SourceError) {
	if err := p.enter(p.peek()); err != nil {
		return nil, err
	}
	defer p.leave()

	return p.logicalOr()
}

func (p *Parser) binaryLevel(next func() (Expr, *SourceError), ops ...TokenKind) (Expr, *SourceError) {
	left, err := next()
	if err != nil {
		return nil, err
	}

	for p.matchAny(ops...) {
		op := p.previous()

		right, err := next()
		if err != nil {
			return nil, err
		}

		left = &BinaryExpr{Left: left, Op: op.Kind, Right: right, Span: left.Pos().Union(right.Pos())}
	}

	return left, nil
}

func (p *Parser) logicalOr() (Expr, *SourceError) {
	return p.binaryLevel(p.logicalAnd, TokenPipePipe)
}

func (p *Parser) logicalAnd() (Expr, *SourceError) {
	return p.binaryLevel(p.bitwiseOr, TokenAmpAmp)
}

func (p *Parser) bitwiseOr() (Expr, *SourceError) {
	return p.binaryLevel(p.bitwiseXor, TokenPipe)
}

func (p *Parser) bitwiseXor() (Expr, *SourceError) {
	return p.binaryLevel(p.bitwiseAnd, TokenCaret)
}

func (p *Parser) bitwiseAnd() (Expr, *SourceError) {
	return p.binaryLevel(p.equality, TokenAmpersand)
}

func (p *Parser) equality() (Expr, *SourceError) {
	return p.binaryLevel(p.comparison, TokenEqualEqual, TokenBangEqual)
}

func (p *Parser) comparison() (Expr, *SourceError) {
	return p.binaryLevel(p.shift, TokenLess, TokenLessEqual, TokenGreater, TokenGreaterEqual)
}

func (p *Parser) shift() (Expr, *SourceError) {
	return p.binaryLevel(p.additive, TokenLessLess, TokenGreaterGreater)
}

func (p *Parser) additive() (Expr, *SourceError) {
	return p.binaryLevel(p.multiplicative, TokenPlus, TokenMinus)
}

func (p *Parser) multiplicative() (Expr, *SourceError) {
	return p.binaryLevel(p.unary, TokenStar, TokenSlash, TokenPercent)
}

func (p *Parser) unary() (Expr, *SourceError) {
	if p.matchAny(TokenMinus, TokenBang, TokenTilde, TokenAmpersand, TokenStar) {
		op := p.previous()

		if err := p.enter(op); err != nil {
			return nil, err
		}
		defer p.leave()

		operand, err := p.unary()
		if err != nil {
			return nil, err
		}

		return &UnaryExpr{Op: op.Kind, Operand: operand, Span: op.Span.Union(operand.Pos())}, nil
	}

	return p.postfix()
}

func (p *Parser) postfix() (Expr, *SourceError) {
	expr, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		switch {
		case p.match(TokenLeftBracket):
			index, err := p.expression()
			if err != nil {
				return nil, err
			}
			if err := p.expectErr(TokenRightBracket); err != nil {
				return nil, err
			}
			expr = &IndexExpr{Base: expr, Index: index, Span: expr.Pos().Union(p.previous().Span)}
		case p.match(TokenDot):
			member, err := p.ident("member name")
			if err != nil {
				return nil, err
			}
			expr = &MemberExpr{Base: expr, Member: member.Lexeme, Span: expr.Pos().Union(member.Span)}
		default:
			return expr, nil
		}
	}
}

func (p *Parser) primary() (Expr, *SourceError) {
	tok := p.peek()

	switch tok.Kind {
	case TokenIntLiteral, TokenFloatLiteral, TokenTrue, TokenFalse:
		p.advance()
		return &Literal{Kind: tok.Kind, Value: tok.Lexeme, Span: tok.Span}, nil

	case TokenLeftParen:
		p.advance()
		inner, err := p.expression()
		if err != nil {
			return nil, err
		}
		if err := p.expectErr(TokenRightParen); err != nil {
			return nil, err
		}
		return &ParenExpr{Inner: inner, Span: p.spanFrom(tok)}, nil

	case TokenIdent:
		if p.peekAt(1).Kind == TokenLess && takesTemplate(tok.Lexeme) {
			callee, err := p.typeExpr()
			if err != nil {
				return nil, err
			}
			if !p.check(TokenLeftParen) {
				return nil, p.errorf(p.peek(), "expected '(' after %s, got %s", callee.Name, p.peek().Kind)
			}
			return p.call(callee)
		}

		p.advance()
		if p.check(TokenLeftParen) {
			return p.call(&TypeExpr{Name: tok.Lexeme, Span: tok.Span})
		}

		return &Ident{Name: tok.Lexeme, Span: tok.Span}, nil

	default:
		return nil, p.errorf(tok, "unexpected %s in expression", tok.Kind)
	}
}

func (p *Parser) call(callee *TypeExpr) (*CallExpr, *SourceError) {
	p.advance() // (

	call := &CallExpr{Callee: callee}

	for !p.check(TokenRightParen) && !p.isAtEnd() {
		arg, err := p.expression()
		if err != nil {
			return nil, err
		}
		call.Args = append(call.Args, arg)

		if !p.match(TokenComma) {
			break
		}
	}

	if err := p.expectErr(TokenRightParen); err != nil {
		return nil, err
	}

	call.Span = callee.Span.Union(p.previous().Span)

	return call, nil
}

// takesTemplate reports whether a predeclared name accepts <...> in expressions.
func takesTemplate(name string) bool {
	switch name {
	case "vec2", "vec3", "vec4", "array", "ptr", "atomic", "bitcast":
		return true
	}

	return strings.HasPrefix(name, "mat") && len(name) == 6 || strings.HasPrefix(name, "texture_")
}

// Helper methods

func (p *Parser) enter(at Token) *SourceError {
	p.depth++
	if p.depth > p.maxDepth {
		return p.errorf(at, "nesting exceeds the limit of %d", p.maxDepth)
	}

	return nil
}

func (p *Parser) leave() { p.depth-- }

func (p *Parser) ident(what string) (Token, *SourceError) {
	if !p.check(TokenIdent) {
		return Token{}, p.errorf(p.peek(), "expected %s, got %s", what, p.peek().Kind)
	}

	return p.advance(), nil
}

func (p *Parser) spanFrom(start Token) Span {
	return start.Span.Union(p.previous().Span)
}

func (p *Parser) errorf(at Token, format string, args ...any) *SourceError {
	return NewSourceErrorf(at.Span, p.source, format, args...)
}

func (p *Parser) advance() Token {
	if !p.isAtEnd() {
		p.current++
	}

	return p.previous()
}

func (p *Parser) peek() Token {
	return p.tokens[p.current]
}

func (p *Parser) peekAt(n int) Token {
	if p.current+n >= len(p.tokens) {
		return p.tokens[len(p.tokens)-1]
	}

	return p.tokens[p.current+n]
}

func (p *Parser) previous() Token {
	if p.current == 0 {
		return p.tokens[0]
	}

	return p.tokens[p.current-1]
}

func (p *Parser) isAtEnd() bool {
	return p.peek().Kind == TokenEOF
}

func (p *Parser) check(kind TokenKind) bool {
	return p.peek().Kind == kind
}

func (p *Parser) match(kind TokenKind) bool {
	if p.check(kind) && !p.isAtEnd() {
		p.advance()
		return true
	}

	return false
}

func (p *Parser) matchAny(kinds ...TokenKind) bool {
	for _, k := range kinds {
		if p.match(k) {
			return true
		}
	}

	return false
}

func (p *Parser) expectErr(kind TokenKind) *SourceError {
	if p.match(kind) {
		return nil
	}

	return p.errorf(p.peek(), "expected %s, got %s", kind, p.peek().Kind)
}

// synchronize skips to the next plausible declaration start.
func (p *Parser) synchronize() {
	p.depth = 0
	p.advance()

	for !p.isAtEnd() {
		switch p.peek().Kind {
		case TokenFn, TokenStruct, TokenVar, TokenConst, TokenOverride, TokenAlias, TokenConstAssert, TokenAt:
			if p.previous().Kind == TokenSemicolon || p.previous().Kind == TokenRightBrace {
				return
			}
		}
		p.advance()
	}
}

func isAssignOp(kind TokenKind) bool {
	switch kind {
	case TokenEqual, TokenPlusEqual, TokenMinusEqual, TokenStarEqual,
		TokenSlashEqual, TokenPercentEqual, TokenAmpEqual, TokenPipeEqual,
		TokenCaretEqual, TokenLessLessEqual, TokenGreaterGreaterEqual:
		return true
	}

	return false
}

// compoundOp maps a compound assignment token to its binary operator token.
func compoundOp(kind TokenKind) (TokenKind, bool) {
	switch kind {
	case TokenPlusEqual:
		return TokenPlus, true
	case TokenMinusEqual:
		return TokenMinus, true
	case TokenStarEqual:
		return TokenStar, true
	case TokenSlashEqual:
		return TokenSlash, true
	case TokenPercentEqual:
		return TokenPercent, true
	case TokenAmpEqual:
		return TokenAmpersand, true
	case TokenPipeEqual:
		return TokenPipe, true
	case TokenCaretEqual:
		return TokenCaret, true
	case TokenLessLessEqual:
		return TokenLessLess, true
	case TokenGreaterGreaterEqual:
		return TokenGreaterGreater, true
	}

	return 0, false
}
