package wgsl

import "github.com/gogpu/wgslc/ir"

// ctorTarget is the type a constructor call names. The component type
// may be left for the arguments to decide, as in vec3(...) or array(...).
type ctorTarget struct {
	ty         *ir.TypeHandle
	vector     ir.VectorSize
	cols, rows ir.VectorSize
	array      bool
}

// constructorType reports whether callee names a constructible type.
func (l *Lowerer) constructorType(fc *funcCtx, callee *TypeExpr) (ctorTarget, bool, error) {
	name := callee.Name

	if fc != nil {
		if _, ok := fc.lookup(name); ok {
			return ctorTarget{}, false, nil
		}
	}

	if g, ok := l.globals[name]; ok {
		if g.kind != globalType {
			return ctorTarget{}, false, nil
		}
	} else {
		_, scalar := scalarNames[name]
		size, vshort, vec := vectorName(name)
		cols, rows, mshort, mat := matrixName(name)

		switch {
		case vec && vshort == nil && len(callee.Params) == 0:
			return ctorTarget{vector: size}, true, nil
		case mat && mshort == nil && len(callee.Params) == 0:
			return ctorTarget{cols: cols, rows: rows}, true, nil
		case name == "array" && len(callee.Params) == 0:
			return ctorTarget{array: true}, true, nil
		case !scalar && !vec && !mat && name != "array":
			return ctorTarget{}, false, nil
		}
	}

	ty, err := l.resolveType(fc, callee)
	if err != nil {
		return ctorTarget{}, false, err
	}

	return ctorTarget{ty: &ty}, true, nil
}

// resolveCtor completes a constructor target from the argument types.
func (l *Lowerer) resolveCtor(e *CallExpr, target ctorTarget, args []ir.TypeInner) (ir.TypeHandle, error) {
	if target.ty != nil {
		return *target.ty, nil
	}

	if len(args) == 0 {
		return 0, newError(ErrWrongArgumentCount, e.Span, "%s needs arguments to infer its component type", e.Callee.Name)
	}

	leaf := func() (ir.ScalarType, error) {
		s, ok := l.leafScalar(args[0])
		if !ok {
			return s, newError(ErrWrongArgumentType, e.Args[0].Pos(), "%s does not accept %s", e.Callee.Name, l.innerName(args[0]))
		}
		for i, a := range args[1:] {
			as, ok := l.leafScalar(a)
			if !ok {
				return s, newError(ErrWrongArgumentType, e.Args[i+1].Pos(), "%s does not accept %s", e.Callee.Name, l.innerName(a))
			}
			if s, ok = consensusScalar(s, as); !ok {
				return s, newRelatedError(ErrInconsistentArgumentType, e.Args[i+1].Pos(), e.Args[0].Pos(),
					"%s argument %d conflicts with argument 1", e.Callee.Name, i+2)
			}
		}
		return s, nil
	}

	switch {
	case target.vector != 0:
		if v, ok := args[0].(ir.VectorType); ok && len(args) == 1 && v.Size == target.vector {
			return l.register(v), nil
		}
		s, err := leaf()
		if err != nil {
			return 0, err
		}
		return l.register(ir.VectorType{Size: target.vector, Scalar: s}), nil

	case target.cols != 0:
		s, err := leaf()
		if err != nil {
			return 0, err
		}
		if s == ir.AbstractInt {
			s = ir.AbstractFloat
		}
		if !s.IsFloat() && s != ir.AbstractFloat {
			return 0, newError(ErrWrongArgumentType, e.Span, "matrix components must be floats, got %v", s)
		}
		return l.register(ir.MatrixType{Columns: target.cols, Rows: target.rows, Scalar: s}), nil

	default:
		elem := args[0]
		if s, ok := l.leafScalar(elem); ok {
			c, err := leaf()
			if err != nil {
				return 0, err
			}
			if c != s {
				var ok bool
				if elem, ok = l.withLeaf(elem, c); !ok {
					return 0, newError(ErrWrongArgumentType, e.Args[0].Pos(), "array does not accept %s", l.innerName(args[0]))
				}
			}
		}
		return l.arrayOf(l.register(elem), uint32(len(args))), nil
	}
}

// castTo converts a scalar, vector or matrix value to a new leaf scalar,
// the way a value constructor does.
func (fc *funcCtx) castTo(h ir.ExpressionHandle, to ir.ScalarType, span Span) (ir.ExpressionHandle, error) {
	inner, err := fc.inner(h)
	if err != nil {
		return 0, err
	}

	s, ok := ir.ScalarOf(inner)
	if !ok {
		return 0, newError(ErrTypeMismatch, span, "cannot convert %s to %v", fc.l.innerName(inner), to)
	}
	if s == to {
		return h, nil
	}
	if s.IsAbstract() {
		if autoConvertible(s, to) {
			return fc.convertExpr(h, to)
		}
		if h, err = fc.concretize(h); err != nil {
			return 0, err
		}
		if s = defaultScalar(s); s == to {
			return h, nil
		}
	}

	if _, ok := inner.(ir.MatrixType); ok && !to.IsFloat() {
		return 0, newError(ErrTypeMismatch, span, "cannot convert %s to %v", fc.l.innerName(inner), to)
	}

	width := to.Width

	return fc.append(ir.ExprAs{Expr: h, Kind: to.Kind, Convert: &width}, span), nil
}

// construct lowers a type constructor call at runtime.
//
//nolint:gocyclo,cyclop // one case per constructible type
func (fc *funcCtx) construct(block *ir.Block, e *CallExpr, target ctorTarget) (ir.ExpressionHandle, error) {
	l := fc.l

	args := make([]ir.ExpressionHandle, len(e.Args))
	inners := make([]ir.TypeInner, len(e.Args))
	for i, a := range e.Args {
		h, err := fc.value(block, a)
		if err != nil {
			return 0, err
		}
		if inners[i], err = fc.inner(h); err != nil {
			return 0, err
		}
		args[i] = h
	}

	ty, err := l.resolveCtor(e, target, inners)
	if err != nil {
		return 0, err
	}

	if len(args) == 0 {
		if _, err := l.zeroConst(ty, e.Span); err != nil {
			return 0, err
		}
		return fc.append(ir.ExprZeroValue{Type: ty}, e.Span), nil
	}

	convert := func(i int, goal ir.TypeHandle) (ir.ExpressionHandle, error) {
		return fc.convertTo(args[i], goal, e.Args[i].Pos())
	}
	compose := func(comps []ir.ExpressionHandle) (ir.ExpressionHandle, error) {
		return fc.append(ir.ExprCompose{Type: ty, Components: comps}, e.Span), nil
	}

	switch t := l.inner(ty).(type) {
	case ir.ScalarType:
		if len(args) != 1 {
			return 0, newError(ErrWrongArgumentCount, e.Span, "%v takes one argument, got %d", t, len(args))
		}
		if _, ok := inners[0].(ir.ScalarType); !ok {
			return 0, newError(ErrWrongArgumentType, e.Args[0].Pos(), "%v cannot be built from %s", t, l.innerName(inners[0]))
		}
		return fc.castTo(args[0], t, e.Args[0].Pos())

	case ir.VectorType:
		if len(args) == 1 {
			switch a := inners[0].(type) {
			case ir.ScalarType:
				v, err := fc.castTo(args[0], t.Scalar, e.Args[0].Pos())
				if err != nil {
					return 0, err
				}
				return fc.append(ir.ExprSplat{Size: t.Size, Value: v}, e.Span), nil
			case ir.VectorType:
				if a.Size == t.Size {
					return fc.castTo(args[0], t.Scalar, e.Args[0].Pos())
				}
			}
		}

		comps := make([]ir.ExpressionHandle, len(args))
		count := 0
		for i := range args {
			switch a := inners[i].(type) {
			case ir.ScalarType:
				count++
			case ir.VectorType:
				count += int(a.Size)
			default:
				return 0, newError(ErrWrongArgumentType, e.Args[i].Pos(), "%s cannot be built from %s", l.typeName(ty), l.innerName(a))
			}
			s, _ := ir.ScalarOf(inners[i])
			if s != t.Scalar {
				if !autoConvertible(s, t.Scalar) {
					return 0, newError(ErrTypeMismatch, e.Args[i].Pos(), "expected %v components, got %v", t.Scalar, s)
				}
				if args[i], err = fc.convertExpr(args[i], t.Scalar); err != nil {
					return 0, err
				}
			}
			comps[i] = args[i]
		}
		if count != int(t.Size) {
			return 0, newError(ErrWrongArgumentCount, e.Span, "%s needs %d components, got %d", l.typeName(ty), t.Size, count)
		}
		return compose(comps)

	case ir.MatrixType:
		col := l.register(ir.VectorType{Size: t.Rows, Scalar: t.Scalar})

		switch {
		case len(args) == 1:
			if _, ok := inners[0].(ir.MatrixType); !ok {
				return 0, newError(ErrWrongArgumentType, e.Args[0].Pos(), "%s cannot be built from %s", l.typeName(ty), l.innerName(inners[0]))
			}
			return fc.castTo(args[0], t.Scalar, e.Args[0].Pos())

		case len(args) == int(t.Columns):
			comps := make([]ir.ExpressionHandle, len(args))
			for i := range args {
				if comps[i], err = convert(i, col); err != nil {
					return 0, err
				}
			}
			return compose(comps)

		case len(args) == int(t.Columns)*int(t.Rows):
			elem := l.register(t.Scalar)
			columns := make([]ir.ExpressionHandle, t.Columns)
			for c := range columns {
				comps := make([]ir.ExpressionHandle, t.Rows)
				for r := range comps {
					i := c*int(t.Rows) + r
					if comps[r], err = convert(i, elem); err != nil {
						return 0, err
					}
				}
				columns[c] = fc.append(ir.ExprCompose{Type: col, Components: comps}, e.Span)
			}
			return compose(columns)
		}

		return 0, newError(ErrWrongArgumentCount, e.Span, "%s takes %d columns or %d scalars, got %d arguments",
			l.typeName(ty), t.Columns, int(t.Columns)*int(t.Rows), len(args))

	case ir.ArrayType:
		if t.Size.IsDynamic() {
			return 0, newError(ErrTypeMismatch, e.Span, "runtime-sized arrays cannot be constructed")
		}
		if int(t.Size.Constant) != len(args) {
			return 0, newError(ErrWrongArgumentCount, e.Span, "%s needs %d elements, got %d", l.typeName(ty), t.Size.Constant, len(args))
		}
		comps := make([]ir.ExpressionHandle, len(args))
		for i := range args {
			if comps[i], err = convert(i, t.Base); err != nil {
				return 0, err
			}
		}
		return compose(comps)

	case ir.StructType:
		if len(t.Members) != len(args) {
			return 0, newError(ErrWrongArgumentCount, e.Span, "%s has %d members, got %d arguments", l.typeName(ty), len(t.Members), len(args))
		}
		comps := make([]ir.ExpressionHandle, len(args))
		for i := range args {
			if comps[i], err = convert(i, t.Members[i].Type); err != nil {
				return 0, err
			}
		}
		return compose(comps)
	}

	return 0, newError(ErrTypeMismatch, e.Span, "%s cannot be constructed", l.typeName(ty))
}

// bitcast lowers bitcast<T>(e).
func (fc *funcCtx) bitcast(block *ir.Block, e *CallExpr) (ir.ExpressionHandle, error) {
	if len(e.Callee.Params) != 1 {
		return 0, newError(ErrWrongArgumentCount, e.Callee.Span, "bitcast takes one template argument")
	}
	if len(e.Args) != 1 {
		return 0, newError(ErrWrongArgumentCount, e.Span, "bitcast takes one argument, got %d", len(e.Args))
	}

	pt, ok := e.Callee.Params[0].(*TypeExpr)
	if !ok {
		return 0, newError(ErrTypeMismatch, e.Callee.Params[0].Pos(), "expected a type")
	}
	ty, err := fc.l.resolveType(fc, pt)
	if err != nil {
		return 0, err
	}

	h, err := fc.value(block, e.Args[0])
	if err != nil {
		return 0, err
	}
	if h, err = fc.concretize(h); err != nil {
		return 0, err
	}
	inner, err := fc.inner(h)
	if err != nil {
		return 0, err
	}

	to := fc.l.inner(ty)
	from, fok := ir.ScalarOf(inner)
	target, tok := ir.ScalarOf(to)
	if !fok || !tok || from.Kind == ir.ScalarBool || target.Kind == ir.ScalarBool ||
		fc.l.layouter.InnerLayout(inner).Size != fc.l.layouter.InnerLayout(to).Size {
		return 0, newError(ErrTypeMismatch, e.Span, "cannot bitcast %s to %s", fc.l.innerName(inner), fc.l.typeName(ty))
	}
	if shaped, ok := ir.WithScalar(inner, target); !ok || !ir.TypeInnerEqual(shaped, to) {
		return 0, newError(ErrTypeMismatch, e.Span, "cannot bitcast %s to %s", fc.l.innerName(inner), fc.l.typeName(ty))
	}

	if from == target {
		return h, nil
	}

	return fc.append(ir.ExprAs{Expr: h, Kind: target.Kind}, e.Span), nil
}
