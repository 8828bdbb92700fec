package wgsl

import (
	"tlog.app/go/errors"

	"github.com/gogpu/wgslc/ir"
)

// binding is what a function-scope name refers to. Const bindings carry
// their value and are materialized at each use.
type binding struct {
	expr  Declared[Typed[ir.ExpressionHandle]]
	value *constValue
}

// funcCtx is the state of lowering one function body.
type funcCtx struct {
	l  *Lowerer
	fn *ir.Function

	typer ir.Typifier
	rctx  ir.ResolveContext

	emitter Emitter
	scopes  []map[string]binding

	// globals caches the expression of each global variable used
	globals map[ir.GlobalVariableHandle]ir.ExpressionHandle
}

func newFuncCtx(l *Lowerer, fn *ir.Function) *funcCtx {
	return &funcCtx{
		l:       l,
		fn:      fn,
		rctx:    ir.ResolveContext{Module: l.module, Function: fn},
		globals: map[ir.GlobalVariableHandle]ir.ExpressionHandle{},
	}
}

// lowerBody binds the parameters and lowers the statements of d.
func (fc *funcCtx) lowerBody(d *FunctionDecl) error {
	fc.push()
	defer fc.pop()

	for i, p := range d.Params {
		h := fc.append(ir.ExprFunctionArgument{Index: uint32(i)}, p.Span)
		if err := fc.bind(p.Name, binding{expr: DeclaredRuntime(Plain(h))}, p.Span); err != nil {
			return err
		}
	}

	if d.Body == nil {
		return nil
	}

	for _, s := range d.Body.Statements {
		if err := fc.lowerStatement(&fc.fn.Body, s, loopContext{}); err != nil {
			return err
		}
	}

	return nil
}

func (fc *funcCtx) append(kind ir.ExpressionKind, span Span) ir.ExpressionHandle {
	h := ir.ExpressionHandle(len(fc.fn.Expressions))
	fc.fn.Expressions = append(fc.fn.Expressions, ir.Expression{Kind: kind, Span: span})

	return h
}

func (fc *funcCtx) span(h ir.ExpressionHandle) Span {
	return fc.fn.Expressions[h].Span
}

// inner returns the structural type of h.
func (fc *funcCtx) inner(h ir.ExpressionHandle) (ir.TypeInner, error) {
	inner, err := fc.typer.Inner(&fc.rctx, h)
	if err != nil {
		return nil, newError(ErrTypeMismatch, fc.span(h), "%v", err)
	}

	return inner, nil
}

// typeHandle returns an arena handle for the type of h.
func (fc *funcCtx) typeHandle(h ir.ExpressionHandle) (ir.TypeHandle, error) {
	r, err := fc.typer.Resolve(&fc.rctx, h)
	if err != nil {
		return 0, newError(ErrTypeMismatch, fc.span(h), "%v", err)
	}
	if r.Handle != nil {
		return *r.Handle, nil
	}

	return fc.l.register(r.Value), nil
}

// pointee returns the type a pointer expression points to.
func (fc *funcCtx) pointee(ptr ir.ExpressionHandle) (ir.TypeInner, error) {
	inner, err := fc.inner(ptr)
	if err != nil {
		return nil, err
	}

	r, ok := ir.Pointee(fc.l.module.Types, inner)
	if !ok {
		return nil, newError(ErrTypeMismatch, fc.span(ptr), "expected a pointer, got %s", fc.l.innerName(inner))
	}

	return r.Inner(fc.l.module.Types), nil
}

func (fc *funcCtx) push() { fc.scopes = append(fc.scopes, map[string]binding{}) }
func (fc *funcCtx) pop()  { fc.scopes = fc.scopes[:len(fc.scopes)-1] }

func (fc *funcCtx) bind(name string, b binding, span Span) error {
	scope := fc.scopes[len(fc.scopes)-1]
	if _, ok := scope[name]; ok {
		return newError(ErrRedefinition, span, "%s is already declared in this scope", name)
	}
	scope[name] = b

	return nil
}

func (fc *funcCtx) lookup(name string) (binding, bool) {
	for i := len(fc.scopes) - 1; i >= 0; i-- {
		if b, ok := fc.scopes[i][name]; ok {
			return b, true
		}
	}

	return binding{}, false
}

// flush closes the running emit range into block.
func (fc *funcCtx) flush(block *ir.Block) {
	if stmt, ok := fc.emitter.Finish(fc.fn); ok {
		*block = append(*block, stmt)
	}
}

// withResult interrupts the running emit range for a statement that
// produces a value, such as a call.
func (fc *funcCtx) withResult(block *ir.Block, result ir.ExpressionKind, span Span, stmt func(ir.ExpressionHandle) ir.StatementKind) ir.ExpressionHandle {
	fc.flush(block)
	h := fc.append(result, span)
	*block = append(*block, ir.Statement{Kind: stmt(h), Span: span})
	fc.emitter.Start(fc.fn)

	return h
}

// effect interrupts the running emit range for a statement without a value.
func (fc *funcCtx) effect(block *ir.Block, kind ir.StatementKind, span Span) {
	fc.flush(block)
	*block = append(*block, ir.Statement{Kind: kind, Span: span})
	fc.emitter.Start(fc.fn)
}

// value lowers e and applies the load rule.
func (fc *funcCtx) value(block *ir.Block, e Expr) (ir.ExpressionHandle, error) {
	t, err := fc.lowerExpression(block, e)
	if err != nil {
		return 0, err
	}

	return fc.applyLoadRule(t, e.Pos())
}

// applyLoadRule loads references; plain values pass through.
func (fc *funcCtx) applyLoadRule(t Typed[ir.ExpressionHandle], span Span) (ir.ExpressionHandle, error) {
	if !t.Reference {
		return t.Value, nil
	}

	pointee, err := fc.pointee(t.Value)
	if err != nil {
		return 0, err
	}
	if _, ok := pointee.(ir.AtomicType); ok {
		return 0, newError(ErrTypeMismatch, span, "atomics can only be read with atomicLoad")
	}

	return fc.append(ir.ExprLoad{Pointer: t.Value}, span), nil
}

// lowerExpression lowers e without loading references.
//
//nolint:gocyclo,cyclop // one case per expression form
func (fc *funcCtx) lowerExpression(block *ir.Block, e Expr) (Typed[ir.ExpressionHandle], error) {
	if err := fc.l.enter(e.Pos()); err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	defer fc.l.leave()

	switch e := e.(type) {
	case *Literal:
		v, err := fc.l.constLiteral(e)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		return Plain(fc.append(ir.Literal{Value: v.lit}, e.Span)), nil

	case *ParenExpr:
		return fc.lowerExpression(block, e.Inner)

	case *Ident:
		return fc.identifier(e.Name, e.Span)

	case *TypeExpr:
		if len(e.Params) != 0 {
			return Typed[ir.ExpressionHandle]{}, newError(ErrTypeMismatch, e.Span, "a type is not a value")
		}
		return fc.identifier(e.Name, e.Span)

	case *UnaryExpr:
		return fc.unary(block, e)

	case *BinaryExpr:
		if err := fc.checkConstant(e); err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		left, err := fc.value(block, e.Left)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		right, err := fc.value(block, e.Right)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		op, ok := binaryOpTable[e.Op]
		if !ok {
			return Typed[ir.ExpressionHandle]{}, newError(ErrUnsupported, e.Span, "unknown binary operator %v", e.Op)
		}
		h, err := fc.binary(op, left, right, e.Span)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		return Plain(h), nil

	case *CallExpr:
		h, err := fc.call(block, e)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		if h == nil {
			return Typed[ir.ExpressionHandle]{}, newError(ErrTypeMismatch, e.Span, "%s does not return a value", e.Callee.Name)
		}
		return Plain(*h), nil

	case *IndexExpr:
		return fc.index(block, e)

	case *MemberExpr:
		return fc.member(block, e)
	}

	return Typed[ir.ExpressionHandle]{}, newError(ErrUnsupported, e.Pos(), "unexpected expression %T", e)
}

func (fc *funcCtx) identifier(name string, span Span) (Typed[ir.ExpressionHandle], error) {
	if b, ok := fc.lookup(name); ok {
		if b.expr.Const {
			return Plain(fc.materialize(*b.value, span)), nil
		}
		return b.expr.Value, nil
	}

	g, ok := fc.l.globals[name]
	if !ok {
		return Typed[ir.ExpressionHandle]{}, newError(ErrUnknownIdentifier, span, "no definition in scope for identifier: %s", name)
	}

	switch g.kind {
	case globalConst:
		return Plain(fc.materialize(g.value, span)), nil
	case globalOverride:
		return Plain(fc.append(ir.ExprOverride{Override: g.override}, span)), nil
	case globalVar:
		h, ok := fc.globals[g.variable]
		if !ok {
			h = fc.append(ir.ExprGlobalVariable{Variable: g.variable}, span)
			fc.globals[g.variable] = h
		}
		if fc.l.module.GlobalVariables[g.variable].Space == ir.SpaceHandle {
			return Plain(h), nil
		}
		return Reference(h), nil
	}

	return Typed[ir.ExpressionHandle]{}, newError(ErrTypeMismatch, span, "%s is not a value", name)
}

func (fc *funcCtx) unary(block *ir.Block, e *UnaryExpr) (Typed[ir.ExpressionHandle], error) {
	switch e.Op {
	case TokenAmpersand:
		t, err := fc.lowerExpression(block, e.Operand)
		if err != nil {
			return t, err
		}
		if !t.Reference {
			return t, newError(ErrInvalidAddressOf, e.Span, "cannot take the address of a value")
		}
		inner, err := fc.inner(t.Value)
		if err != nil {
			return t, err
		}
		if vp, ok := inner.(ir.ValuePointerType); ok && vp.Size == 0 {
			return t, newError(ErrInvalidAddressOf, e.Span, "cannot take the address of a vector component")
		}
		return Plain(t.Value), nil

	case TokenStar:
		h, err := fc.value(block, e.Operand)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		inner, err := fc.inner(h)
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		if !ir.IsPointer(inner) {
			return Typed[ir.ExpressionHandle]{}, newError(ErrTypeMismatch, e.Span, "cannot dereference %s", fc.l.innerName(inner))
		}
		return Reference(h), nil
	}

	// -literal is folded so that the most negative integers can be written
	if lit, ok := e.Operand.(*Literal); ok && e.Op == TokenMinus {
		v, err := fc.l.evalConst(fc, &UnaryExpr{Op: e.Op, Operand: lit, Span: e.Span})
		if err != nil {
			return Typed[ir.ExpressionHandle]{}, err
		}
		return Plain(fc.append(ir.Literal{Value: v.lit}, e.Span)), nil
	}

	h, err := fc.value(block, e.Operand)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	inner, err := fc.inner(h)
	if err != nil {
		return Typed[ir.ExpressionHandle]{}, err
	}
	s, ok := ir.ScalarOf(inner)

	var op ir.UnaryOperator
	switch e.Op {
	case TokenMinus:
		op = ir.UnaryNegate
		ok = ok && s.Kind != ir.ScalarUint && s.Kind != ir.ScalarBool
	case TokenBang:
		op = ir.UnaryLogicalNot
		ok = ok && s.Kind == ir.ScalarBool
		_, matrix := inner.(ir.MatrixType)
		ok = ok && !matrix
	case TokenTilde:
		op = ir.UnaryBitwiseNot
		ok = ok && s.IsInteger()
		_, matrix := inner.(ir.MatrixType)
		ok = ok && !matrix
	default:
		return Typed[ir.ExpressionHandle]{}, newError(ErrUnsupported, e.Span, "unknown unary operator %v", e.Op)
	}
	if !ok {
		return Typed[ir.ExpressionHandle]{}, newError(ErrTypeMismatch, e.Span, "%v cannot be applied to %s", e.Op, fc.l.innerName(inner))
	}

	return Plain(fc.append(ir.ExprUnary{Op: op, Expr: h}, e.Span)), nil
}

// binary applies op to two loaded values, converting abstract operands to
// a common type and splatting a scalar against a vector where allowed.
//
//nolint:gocyclo // operator classes differ in their operand rules
func (fc *funcCtx) binary(op ir.BinaryOperator, left, right ir.ExpressionHandle, span Span) (ir.ExpressionHandle, error) {
	li, err := fc.inner(left)
	if err != nil {
		return 0, err
	}
	ri, err := fc.inner(right)
	if err != nil {
		return 0, err
	}

	mismatch := func() error {
		return newRelatedError(ErrTypeMismatch, fc.span(right), fc.span(left), "%v cannot be applied to %s and %s",
			op, fc.l.innerName(li), fc.l.innerName(ri))
	}

	ls, lok := ir.ScalarOf(li)
	rs, rok := ir.ScalarOf(ri)
	if !lok || !rok {
		return 0, mismatch()
	}

	switch op {
	case ir.BinaryShiftLeft, ir.BinaryShiftRight:
		if !ls.IsInteger() || !rs.IsInteger() {
			return 0, mismatch()
		}
		if rs.IsAbstract() {
			if right, err = fc.convertExpr(right, ir.U32); err != nil {
				return 0, err
			}
		} else if rs != ir.U32 {
			return 0, newError(ErrTypeMismatch, fc.span(right), "shift amount must be u32, got %s", fc.l.innerName(ri))
		}
		if ls.IsAbstract() {
			if left, err = fc.concretize(left); err != nil {
				return 0, err
			}
			ls = defaultScalar(ls)
		}
		if lit, ok := fc.fn.Expressions[right].Kind.(ir.Literal); ok {
			if n, ok := lit.Value.(ir.LiteralU32); ok && uint32(n) >= uint32(ls.Width)*8 {
				return 0, newError(ErrOverflow, fc.span(right), "shift by %d is out of range for %v", n, ls)
			}
		}

	default:
		if ls != rs {
			s, ok := consensusScalar(ls, rs)
			if !ok {
				return 0, mismatch()
			}
			if left, err = fc.convertExpr(left, s); err != nil {
				return 0, err
			}
			if right, err = fc.convertExpr(right, s); err != nil {
				return 0, err
			}
			ls, rs = s, s
		}

		switch op {
		case ir.BinaryLogicalAnd, ir.BinaryLogicalOr:
			if ls.Kind != ir.ScalarBool {
				return 0, mismatch()
			}
		case ir.BinaryAnd, ir.BinaryInclusiveOr, ir.BinaryExclusiveOr:
			if !ls.IsInteger() && ls.Kind != ir.ScalarBool {
				return 0, mismatch()
			}
		case ir.BinaryAdd, ir.BinarySubtract, ir.BinaryDivide, ir.BinaryModulo:
			if ls.Kind == ir.ScalarBool {
				return 0, mismatch()
			}
			lv, lvec := li.(ir.VectorType)
			rv, rvec := ri.(ir.VectorType)
			_, lscalar := li.(ir.ScalarType)
			_, rscalar := ri.(ir.ScalarType)
			switch {
			case lvec && rscalar:
				right = fc.append(ir.ExprSplat{Size: lv.Size, Value: right}, fc.span(right))
			case rvec && lscalar:
				left = fc.append(ir.ExprSplat{Size: rv.Size, Value: left}, fc.span(left))
			}
		case ir.BinaryMultiply:
			if ls.Kind == ir.ScalarBool {
				return 0, mismatch()
			}
		}
	}

	h := fc.append(ir.ExprBinary{Op: op, Left: left, Right: right}, span)
	if _, err := fc.typer.Resolve(&fc.rctx, h); err != nil {
		return 0, mismatch()
	}

	return h, nil
}

// checkConstant reports the errors a constant expression would have,
// such as division by zero or overflow, even where e is lowered as a
// runtime expression. Expressions that are not constant pass.
func (fc *funcCtx) checkConstant(e Expr) error {
	_, err := fc.l.evalConst(fc, e)

	var le *LoweringError
	if errors.As(err, &le) && (le.Kind == ErrOverflow || le.Kind == ErrOutOfBounds) {
		return err
	}

	return nil
}

// constIndex evaluates an index if it is a constant expression.
func (fc *funcCtx) constIndex(e Expr) (int64, bool, error) {
	v, err := fc.l.evalConst(fc, e)
	if err != nil {
		var le *LoweringError
		if errors.As(err, &le) && (le.Kind == ErrNotConstant || le.Kind == ErrUnknownIdentifier) {
			return 0, false, nil
		}
		return 0, false, err
	}

	n, ok := v.integer()
	if !ok {
		return 0, false, newError(ErrTypeMismatch, e.Pos(), "index must be an integer, got %s", fc.l.typeName(v.ty))
	}

	return n, true, nil
}

// derefPointer lets p[i] and p.m reach through a pointer value p:
// the pointer is used as the reference it points to.
func (fc *funcCtx) derefPointer(t Typed[ir.ExpressionHandle]) (Typed[ir.ExpressionHandle], error) {
	if t.Reference {
		return t, nil
	}

	inner, err := fc.inner(t.Value)
	if err != nil {
		return t, err
	}
	if ir.IsPointer(inner) {
		return Reference(t.Value), nil
	}

	return t, nil
}

// indexable returns the number of elements of a type that can be indexed,
// 0 for runtime-sized arrays.
func (fc *funcCtx) indexable(t Typed[ir.ExpressionHandle]) (int, error) {
	inner, err := fc.inner(t.Value)
	if err != nil {
		return 0, err
	}
	if t.Reference {
		if inner, err = fc.pointee(t.Value); err != nil {
			return 0, err
		}
	}

	switch b := inner.(type) {
	case ir.VectorType:
		return int(b.Size), nil
	case ir.MatrixType:
		return int(b.Columns), nil
	case ir.ArrayType:
		return int(b.Size.Constant), nil
	}

	return 0, newError(ErrTypeMismatch, fc.span(t.Value), "cannot index %s", fc.l.innerName(inner))
}

func (fc *funcCtx) index(block *ir.Block, e *IndexExpr) (Typed[ir.ExpressionHandle], error) {
	base, err := fc.lowerExpression(block, e.Base)
	if err != nil {
		return base, err
	}
	if base, err = fc.derefPointer(base); err != nil {
		return base, err
	}

	n, err := fc.indexable(base)
	if err != nil {
		return base, err
	}

	c, isConst, err := fc.constIndex(e.Index)
	if err != nil {
		return base, err
	}
	if isConst {
		if c < 0 || (n != 0 && c >= int64(n)) {
			return base, newError(ErrOutOfBounds, e.Index.Pos(), "index %d is out of bounds for %d elements", c, n)
		}
		return MapTyped(base, func(b ir.ExpressionHandle) ir.ExpressionHandle {
			return fc.append(ir.ExprAccessIndex{Base: b, Index: uint32(c)}, e.Span)
		}), nil
	}

	index, err := fc.value(block, e.Index)
	if err != nil {
		return base, err
	}
	if index, err = fc.concretize(index); err != nil {
		return base, err
	}
	inner, err := fc.inner(index)
	if err != nil {
		return base, err
	}
	if inner != ir.TypeInner(ir.I32) && inner != ir.TypeInner(ir.U32) {
		return base, newError(ErrTypeMismatch, e.Index.Pos(), "index must be i32 or u32, got %s", fc.l.innerName(inner))
	}

	if !base.Reference {
		if base.Value, err = fc.concretize(base.Value); err != nil {
			return base, err
		}
	}

	return MapTyped(base, func(b ir.ExpressionHandle) ir.ExpressionHandle {
		return fc.append(ir.ExprAccess{Base: b, Index: index}, e.Span)
	}), nil
}

func (fc *funcCtx) member(block *ir.Block, e *MemberExpr) (Typed[ir.ExpressionHandle], error) {
	base, err := fc.lowerExpression(block, e.Base)
	if err != nil {
		return base, err
	}
	if base, err = fc.derefPointer(base); err != nil {
		return base, err
	}

	inner, err := fc.inner(base.Value)
	if err != nil {
		return base, err
	}
	if base.Reference {
		if inner, err = fc.pointee(base.Value); err != nil {
			return base, err
		}
	}

	switch t := inner.(type) {
	case ir.StructType:
		for i, m := range t.Members {
			if m.Name == e.Member {
				return MapTyped(base, func(b ir.ExpressionHandle) ir.ExpressionHandle {
					return fc.append(ir.ExprAccessIndex{Base: b, Index: uint32(i)}, e.Span)
				}), nil
			}
		}
		return base, newError(ErrBadAccessor, e.Span, "%s has no member %s", fc.l.innerName(inner), e.Member)

	case ir.VectorType:
		pattern, err := swizzlePattern(e.Member, t.Size, e.Span)
		if err != nil {
			return base, err
		}
		if len(pattern) == 1 {
			return MapTyped(base, func(b ir.ExpressionHandle) ir.ExpressionHandle {
				return fc.append(ir.ExprAccessIndex{Base: b, Index: uint32(pattern[0])}, e.Span)
			}), nil
		}

		v, err := fc.applyLoadRule(base, e.Base.Pos())
		if err != nil {
			return base, err
		}
		sw := ir.ExprSwizzle{Size: ir.VectorSize(len(pattern)), Vector: v}
		copy(sw.Pattern[:], pattern)

		return Plain(fc.append(sw, e.Span)), nil
	}

	return base, newError(ErrBadAccessor, e.Span, "%s has no members", fc.l.innerName(inner))
}

// call lowers a call of a user function, builtin or type constructor.
// The result is nil for functions without a value.
func (fc *funcCtx) call(block *ir.Block, e *CallExpr) (*ir.ExpressionHandle, error) {
	name := e.Callee.Name

	if name == "bitcast" {
		h, err := fc.bitcast(block, e)
		if err != nil {
			return nil, err
		}
		return &h, nil
	}

	target, isType, err := fc.l.constructorType(fc, e.Callee)
	if err != nil {
		return nil, err
	}
	if isType {
		h, err := fc.construct(block, e, target)
		if err != nil {
			return nil, err
		}
		return &h, nil
	}

	if _, ok := fc.lookup(name); ok {
		return nil, newError(ErrTypeMismatch, e.Callee.Span, "%s is not a function", name)
	}

	if g, ok := fc.l.globals[name]; ok {
		if g.kind != globalFunction {
			return nil, newError(ErrTypeMismatch, e.Callee.Span, "%s is not a function", name)
		}
		return fc.callFunction(block, e, g)
	}

	if b, ok := functionTable[name]; ok {
		h, err := fc.callBuiltin(block, e, b)
		if err != nil {
			return nil, err
		}
		return &h, nil
	}

	if h, ok, err := fc.callResource(block, e); ok || err != nil {
		return h, err
	}

	return nil, newError(ErrUnknownIdentifier, e.Callee.Span, "no definition in scope for identifier: %s", name)
}

func (fc *funcCtx) callFunction(block *ir.Block, e *CallExpr, g global) (*ir.ExpressionHandle, error) {
	if g.entry {
		return nil, newError(ErrInvalidControlFlow, e.Callee.Span, "entry point %s cannot be called", e.Callee.Name)
	}

	callee := &fc.l.module.Functions[g.function]
	if len(e.Args) != len(callee.Arguments) {
		return nil, newError(ErrWrongArgumentCount, e.Span, "%s takes %d arguments, got %d", callee.Name, len(callee.Arguments), len(e.Args))
	}

	args := make([]ir.ExpressionHandle, len(e.Args))
	for i, a := range e.Args {
		h, err := fc.value(block, a)
		if err != nil {
			return nil, err
		}
		if args[i], err = fc.convertTo(h, callee.Arguments[i].Type, a.Pos()); err != nil {
			return nil, err
		}
	}

	if callee.Result == nil {
		fc.effect(block, ir.StmtCall{Function: g.function, Arguments: args}, e.Span)
		return nil, nil
	}

	h := fc.withResult(block, ir.ExprCallResult{Function: g.function}, e.Span, func(r ir.ExpressionHandle) ir.StatementKind {
		return ir.StmtCall{Function: g.function, Arguments: args, Result: &r}
	})

	return &h, nil
}
