package wgsl

import (
	"tlog.app/go/errors"

	"github.com/gogpu/wgslc/ir"
)

// loopContext tells statements where break and continue may go.
// It is passed by value so nested constructs cannot leak their state.
type loopContext struct {
	inLoop       bool
	inSwitch     bool
	inContinuing bool
}

func (lc loopContext) canBreak() bool    { return lc.inSwitch || lc.inLoop && !lc.inContinuing }
func (lc loopContext) canContinue() bool { return lc.inLoop && !lc.inContinuing }

// lowerBlock lowers b in a new scope.
func (fc *funcCtx) lowerBlock(b *BlockStmt, lc loopContext) (ir.Block, error) {
	fc.push()
	defer fc.pop()

	return fc.lowerStatements(b.Statements, lc)
}

func (fc *funcCtx) lowerStatements(stmts []Stmt, lc loopContext) (ir.Block, error) {
	out := ir.Block{}
	for _, s := range stmts {
		if err := fc.lowerStatement(&out, s, lc); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// lowerStatement appends the lowering of s to block.
//
//nolint:gocyclo,cyclop // one case per statement form
func (fc *funcCtx) lowerStatement(block *ir.Block, s Stmt, lc loopContext) error {
	if err := fc.l.enter(s.Pos()); err != nil {
		return err
	}
	defer fc.l.leave()

	fc.emitter.Start(fc.fn)
	span := s.Pos()

	push := func(kind ir.StatementKind) {
		fc.flush(block)
		*block = append(*block, ir.Statement{Kind: kind, Span: span})
	}

	switch s := s.(type) {
	case *BlockStmt:
		body, err := fc.lowerBlock(s, lc)
		if err != nil {
			return err
		}
		push(ir.StmtBlock{Block: body})

	case *ReturnStmt:
		if lc.inContinuing {
			return newError(ErrInvalidControlFlow, span, "return is not allowed in a continuing block")
		}

		var value *ir.ExpressionHandle
		switch {
		case s.Value != nil && fc.fn.Result == nil:
			return newError(ErrTypeMismatch, s.Value.Pos(), "%s does not return a value", fc.fn.Name)
		case s.Value == nil && fc.fn.Result != nil:
			return newError(ErrTypeMismatch, span, "%s must return %s", fc.fn.Name, fc.l.typeName(fc.fn.Result.Type))
		case s.Value != nil:
			h, err := fc.value(block, s.Value)
			if err != nil {
				return err
			}
			if h, err = fc.convertTo(h, fc.fn.Result.Type, s.Value.Pos()); err != nil {
				return err
			}
			value = &h
		}
		push(ir.StmtReturn{Value: value})

	case *IfStmt:
		cond, err := fc.condition(block, s.Condition)
		if err != nil {
			return err
		}
		fc.flush(block)

		accept, err := fc.lowerBlock(s.Body, lc)
		if err != nil {
			return err
		}

		var reject ir.Block
		switch e := s.Else.(type) {
		case nil:
		case *BlockStmt:
			if reject, err = fc.lowerBlock(e, lc); err != nil {
				return err
			}
		default:
			if err := fc.lowerStatement(&reject, e, lc); err != nil {
				return err
			}
		}

		push(ir.StmtIf{Condition: cond, Accept: accept, Reject: reject})

	case *SwitchStmt:
		return fc.lowerSwitch(block, s, lc)

	case *LoopStmt:
		return fc.lowerLoop(block, s)

	case *ForStmt:
		return fc.lowerFor(block, s, lc)

	case *WhileStmt:
		body, err := fc.loopBody(s.Condition, s.Body)
		if err != nil {
			return err
		}
		push(ir.StmtLoop{Body: body, Continuing: ir.Block{}})

	case *BreakStmt:
		if !lc.canBreak() {
			return newError(ErrInvalidControlFlow, span, "break outside of a loop or switch")
		}
		push(ir.StmtBreak{})

	case *ContinueStmt:
		if !lc.canContinue() {
			return newError(ErrInvalidControlFlow, span, "continue outside of a loop")
		}
		push(ir.StmtContinue{})

	case *DiscardStmt:
		push(ir.StmtKill{})

	case *LetStmt:
		h, err := fc.value(block, s.Init)
		if err != nil {
			return err
		}
		if s.Type != nil {
			ty, err := fc.l.resolveType(fc, s.Type)
			if err != nil {
				return err
			}
			h, err = fc.convertTo(h, ty, s.Init.Pos())
			if err != nil {
				return err
			}
		} else if h, err = fc.concretize(h); err != nil {
			return err
		}

		if _, ok := fc.fn.NamedExpressions[h]; !ok {
			fc.fn.NamedExpressions[h] = s.Name
		}
		fc.flush(block)

		return fc.bind(s.Name, binding{expr: DeclaredRuntime(Plain(h))}, span)

	case *DeclStmt:
		switch d := s.Decl.(type) {
		case *VarDecl:
			return fc.localVar(block, d, lc)
		case *ConstDecl:
			v, err := fc.l.constDecl(fc, d)
			if err != nil {
				return err
			}
			return fc.bind(d.Name, binding{expr: DeclaredConst(Typed[ir.ExpressionHandle]{}), value: &v}, span)
		}
		return newError(ErrUnsupported, span, "unexpected declaration %T", s.Decl)

	case *AssignStmt:
		return fc.assign(block, s)

	case *IncDecStmt:
		return fc.incDec(block, s)

	case *CallStmt:
		if _, err := fc.call(block, s.Call); err != nil {
			return err
		}
		fc.flush(block)

	case *ConstAssertStmt:
		return fc.l.constAssert(fc, s.Cond)

	default:
		return errors.New("unexpected statement %T", s)
	}

	return nil
}

// condition lowers a bool condition.
func (fc *funcCtx) condition(block *ir.Block, e Expr) (ir.ExpressionHandle, error) {
	h, err := fc.value(block, e)
	if err != nil {
		return 0, err
	}

	inner, err := fc.inner(h)
	if err != nil {
		return 0, err
	}
	if inner != ir.TypeInner(ir.Bool) {
		return 0, newError(ErrTypeMismatch, e.Pos(), "condition must be bool, got %s", fc.l.innerName(inner))
	}

	return h, nil
}

// loopBody lowers the body of a for or while loop, led by
// 'if cond {} else { break; }' when there is a condition.
func (fc *funcCtx) loopBody(cond Expr, body *BlockStmt) (ir.Block, error) {
	out := ir.Block{}

	if cond != nil {
		fc.emitter.Start(fc.fn)
		h, err := fc.condition(&out, cond)
		if err != nil {
			return nil, err
		}
		fc.flush(&out)
		out = append(out, ir.Statement{
			Kind: ir.StmtIf{Condition: h, Reject: ir.Block{{Kind: ir.StmtBreak{}, Span: cond.Pos()}}},
			Span: cond.Pos(),
		})
	}

	b, err := fc.lowerBlock(body, loopContext{inLoop: true})
	if err != nil {
		return nil, err
	}

	return append(out, b...), nil
}

func (fc *funcCtx) lowerFor(block *ir.Block, s *ForStmt, lc loopContext) error {
	fc.push()
	defer fc.pop()

	outer := ir.Block{}
	if s.Init != nil {
		// the initializer itself may run inside an outer loop
		if err := fc.lowerStatement(&outer, s.Init, loopContext{inLoop: lc.inLoop}); err != nil {
			return err
		}
	}

	body, err := fc.loopBody(s.Condition, s.Body)
	if err != nil {
		return err
	}

	continuing := ir.Block{}
	if s.Update != nil {
		if err := fc.lowerStatement(&continuing, s.Update, loopContext{inLoop: true, inContinuing: true}); err != nil {
			return err
		}
	}

	loop := ir.Statement{Kind: ir.StmtLoop{Body: body, Continuing: continuing}, Span: s.Span}

	if s.Init == nil {
		*block = append(*block, loop)
		return nil
	}

	outer = append(outer, loop)
	*block = append(*block, ir.Statement{Kind: ir.StmtBlock{Block: outer}, Span: s.Span})

	return nil
}

// lowerLoop lowers loop { ... continuing { ... break if c; } }.
// The continuing block sees the declarations of the body.
func (fc *funcCtx) lowerLoop(block *ir.Block, s *LoopStmt) error {
	fc.push()
	defer fc.pop()

	body, err := fc.lowerStatements(s.Body.Statements, loopContext{inLoop: true})
	if err != nil {
		return err
	}

	continuing := ir.Block{}
	var breakIf *ir.ExpressionHandle

	if s.Continuing != nil {
		fc.push()
		defer fc.pop()

		lc := loopContext{inLoop: true, inContinuing: true}
		for _, st := range s.Continuing.Statements {
			if err := fc.lowerStatement(&continuing, st, lc); err != nil {
				return err
			}
		}
	}

	if s.BreakIf != nil {
		fc.emitter.Start(fc.fn)
		h, err := fc.condition(&continuing, s.BreakIf)
		if err != nil {
			return err
		}
		fc.flush(&continuing)
		breakIf = &h
	}

	*block = append(*block, ir.Statement{
		Kind: ir.StmtLoop{Body: body, Continuing: continuing, BreakIf: breakIf},
		Span: s.Span,
	})

	return nil
}

func (fc *funcCtx) lowerSwitch(block *ir.Block, s *SwitchStmt, lc loopContext) error {
	sel, err := fc.value(block, s.Selector)
	if err != nil {
		return err
	}
	inner, err := fc.inner(sel)
	if err != nil {
		return err
	}
	st, ok := inner.(ir.ScalarType)
	if !ok || !st.IsInteger() {
		return newError(ErrTypeMismatch, s.Selector.Pos(), "switch selector must be i32 or u32, got %s", fc.l.innerName(inner))
	}

	type label struct {
		value constValue
		span  Span
	}
	labels := make([][]label, len(s.Cases))

	for i, c := range s.Cases {
		for _, e := range c.Selectors {
			v, err := fc.l.evalConst(fc, e)
			if err != nil {
				return err
			}
			if v.lit == nil || !v.lit.Scalar().IsInteger() {
				return newError(ErrTypeMismatch, e.Pos(), "case value must be an integer, got %s", fc.l.typeName(v.ty))
			}
			if st, ok = consensusScalar(st, v.lit.Scalar()); !ok {
				return newRelatedError(ErrTypeMismatch, e.Pos(), s.Selector.Pos(), "case value %s does not match the selector type", v)
			}
			labels[i] = append(labels[i], label{value: v, span: e.Pos()})
		}
	}

	st = defaultScalar(st)
	if st != ir.I32 && st != ir.U32 {
		return newError(ErrTypeMismatch, s.Selector.Pos(), "switch selector must be i32 or u32, got %v", st)
	}
	if sel, err = fc.convertExpr(sel, st); err != nil {
		return err
	}
	fc.flush(block)

	var (
		cases      []ir.SwitchCase
		hasDefault bool
		seen       = map[int64]Span{}
	)

	inner2 := loopContext{inLoop: lc.inLoop, inSwitch: true, inContinuing: lc.inContinuing}

	for i, c := range s.Cases {
		var values []ir.SwitchValue

		for _, lb := range labels[i] {
			lit, err := convertLiteral(lb.value.lit, st, false, lb.span)
			if err != nil {
				return err
			}
			n, _ := litInt(lit)
			if prev, ok := seen[n]; ok {
				return newRelatedError(ErrRedefinition, lb.span, prev, "case value %d is used twice", n)
			}
			seen[n] = lb.span

			if st == ir.I32 {
				values = append(values, ir.SwitchValueI32(n))
			} else {
				values = append(values, ir.SwitchValueU32(n))
			}
		}

		if c.IsDefault {
			if hasDefault {
				return newError(ErrRedefinition, c.Span, "switch has more than one default clause")
			}
			hasDefault = true
			values = append(values, ir.SwitchValueDefault{})
		}

		body, err := fc.lowerBlock(c.Body, inner2)
		if err != nil {
			return err
		}

		for j, v := range values {
			if j < len(values)-1 {
				cases = append(cases, ir.SwitchCase{Value: v, Body: ir.Block{}, FallThrough: true})
				continue
			}
			cases = append(cases, ir.SwitchCase{Value: v, Body: body})
		}
	}

	if !hasDefault {
		return newError(ErrInvalidControlFlow, s.Span, "switch needs a default clause")
	}

	*block = append(*block, ir.Statement{Kind: ir.StmtSwitch{Selector: sel, Cases: cases}, Span: s.Span})

	return nil
}

// localVar declares a function-scope variable. A constant initializer
// outside of loops becomes the variable's Init; otherwise the value is
// stored where the declaration appears.
func (fc *funcCtx) localVar(block *ir.Block, d *VarDecl, lc loopContext) error {
	if d.AddressSpace != "" && d.AddressSpace != "function" {
		return newError(ErrUnsupported, d.Span, "function-scope variables must be in the function address space, got %s", d.AddressSpace)
	}

	var (
		ty    ir.TypeHandle
		init  *ir.ExpressionHandle
		store *ir.ExpressionHandle
		err   error
	)

	if d.Type != nil {
		if ty, err = fc.l.resolveType(fc, d.Type); err != nil {
			return err
		}
	}

	if d.Init != nil {
		v, isConst, err := fc.constInit(d.Init)
		if err != nil {
			return err
		}

		if isConst {
			if d.Type != nil {
				v, err = fc.l.convertConst(v, ty, false, d.Init.Pos())
			} else {
				v, err = fc.l.concretizeConst(v, d.Init.Pos())
			}
			if err != nil {
				return err
			}
			ty = v.ty

			if !lc.inLoop {
				fc.flush(block)
				h := fc.materialize(v, d.Init.Pos())
				fc.emitter.Start(fc.fn)
				init = &h
			} else {
				h := fc.materialize(v, d.Init.Pos())
				store = &h
			}
		} else {
			h, err := fc.value(block, d.Init)
			if err != nil {
				return err
			}
			if d.Type != nil {
				h, err = fc.convertTo(h, ty, d.Init.Pos())
			} else if h, err = fc.concretize(h); err == nil {
				ty, err = fc.typeHandle(h)
			}
			if err != nil {
				return err
			}
			store = &h
		}
	}

	lv := ir.LocalVariableHandle(len(fc.fn.LocalVars))
	fc.fn.LocalVars = append(fc.fn.LocalVars, ir.LocalVariable{Name: d.Name, Type: ty, Init: init})
	ptr := fc.append(ir.ExprLocalVariable{Variable: lv}, d.Span)

	if store == nil && init == nil && lc.inLoop {
		h := fc.append(ir.ExprZeroValue{Type: ty}, d.Span)
		store = &h
	}

	fc.flush(block)
	if store != nil {
		*block = append(*block, ir.Statement{Kind: ir.StmtStore{Pointer: ptr, Value: *store}, Span: d.Span})
	}

	return fc.bind(d.Name, binding{expr: DeclaredRuntime(Reference(ptr))}, d.Span)
}

// constInit evaluates an initializer if it is a constant expression.
func (fc *funcCtx) constInit(e Expr) (constValue, bool, error) {
	v, err := fc.l.evalConst(fc, e)
	if err == nil {
		return v, true, nil
	}

	var le *LoweringError
	if errors.As(err, &le) && (le.Kind == ErrNotConstant || le.Kind == ErrUnknownIdentifier) {
		return constValue{}, false, nil
	}

	return constValue{}, false, err
}

// reference lowers the target of an assignment.
func (fc *funcCtx) reference(block *ir.Block, e Expr) (ir.ExpressionHandle, ir.TypeHandle, error) {
	t, err := fc.lowerExpression(block, e)
	if err != nil {
		return 0, 0, err
	}
	if !t.Reference {
		return 0, 0, newError(ErrInvalidAssignment, e.Pos(), "cannot assign to a value")
	}

	pointee, err := fc.pointee(t.Value)
	if err != nil {
		return 0, 0, err
	}
	if _, ok := pointee.(ir.AtomicType); ok {
		return 0, 0, newError(ErrInvalidAssignment, e.Pos(), "atomics can only be written with atomicStore")
	}

	if gv, ok := fc.rootGlobal(t.Value); ok {
		switch {
		case gv.Space == ir.SpaceUniform,
			gv.Space == ir.SpaceStorage && gv.Access&ir.StorageAccessStore == 0:
			return 0, 0, newError(ErrInvalidAssignment, e.Pos(), "%s is read-only", gv.Name)
		}
	}

	return t.Value, fc.l.register(pointee), nil
}

// rootGlobal follows an access chain down to a global variable.
func (fc *funcCtx) rootGlobal(h ir.ExpressionHandle) (ir.GlobalVariable, bool) {
	for {
		switch k := fc.fn.Expressions[h].Kind.(type) {
		case ir.ExprAccess:
			h = k.Base
		case ir.ExprAccessIndex:
			h = k.Base
		case ir.ExprGlobalVariable:
			return fc.l.module.GlobalVariables[k.Variable], true
		default:
			return ir.GlobalVariable{}, false
		}
	}
}

func (fc *funcCtx) assign(block *ir.Block, s *AssignStmt) error {
	if s.Left == nil {
		if _, err := fc.value(block, s.Right); err != nil {
			return err
		}
		fc.flush(block)
		return nil
	}

	ptr, ty, err := fc.reference(block, s.Left)
	if err != nil {
		return err
	}

	value, err := fc.value(block, s.Right)
	if err != nil {
		return err
	}

	if s.Op != TokenEqual {
		tok, ok := compoundOp(s.Op)
		if !ok {
			return newError(ErrUnsupported, s.Span, "unknown assignment operator %v", s.Op)
		}
		loaded := fc.append(ir.ExprLoad{Pointer: ptr}, s.Left.Pos())
		if value, err = fc.binary(binaryOpTable[tok], loaded, value, s.Span); err != nil {
			return err
		}
	}

	if value, err = fc.convertTo(value, ty, s.Right.Pos()); err != nil {
		return err
	}

	fc.flush(block)
	*block = append(*block, ir.Statement{Kind: ir.StmtStore{Pointer: ptr, Value: value}, Span: s.Span})

	return nil
}

func (fc *funcCtx) incDec(block *ir.Block, s *IncDecStmt) error {
	ptr, ty, err := fc.reference(block, s.Target)
	if err != nil {
		return err
	}

	if st, ok := fc.l.inner(ty).(ir.ScalarType); !ok || !st.IsInteger() {
		return newError(ErrTypeMismatch, s.Span, "++ and -- need an integer, got %s", fc.l.typeName(ty))
	}

	op := ir.BinarySubtract
	if s.Increment {
		op = ir.BinaryAdd
	}

	loaded := fc.append(ir.ExprLoad{Pointer: ptr}, s.Target.Pos())
	one := fc.append(ir.Literal{Value: ir.LiteralAbstractInt(1)}, s.Span)

	value, err := fc.binary(op, loaded, one, s.Span)
	if err != nil {
		return err
	}

	fc.flush(block)
	*block = append(*block, ir.Statement{Kind: ir.StmtStore{Pointer: ptr, Value: value}, Span: s.Span})

	return nil
}
