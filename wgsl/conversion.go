package wgsl

import (
	"math"

	"github.com/gogpu/wgslc/ir"
)

// autoConvertible reports whether a value of scalar from may be converted
// to scalar to without an explicit conversion.
func autoConvertible(from, to ir.ScalarType) bool {
	if from == to {
		return true
	}

	switch from.Kind {
	case ir.ScalarAbstractInt:
		switch to.Kind {
		case ir.ScalarSint, ir.ScalarUint, ir.ScalarFloat, ir.ScalarAbstractFloat:
			return true
		}
	case ir.ScalarAbstractFloat:
		return to.Kind == ir.ScalarFloat
	}

	return false
}

// conversionRank is the cost of an automatic conversion. Lower is better.
// It returns -1 when no automatic conversion exists.
func conversionRank(from, to ir.ScalarType) int {
	if from == to {
		return 0
	}
	if !autoConvertible(from, to) {
		return -1
	}

	if from.Kind == ir.ScalarAbstractFloat {
		switch to {
		case ir.F32:
			return 1
		case ir.F16:
			return 2
		}

		return 3
	}

	switch to {
	case ir.I32:
		return 3
	case ir.U32:
		return 4
	case ir.AbstractFloat:
		return 5
	case ir.F32:
		return 6
	case ir.F16:
		return 7
	}

	return 8
}

// scalarPreference orders concrete scalars ahead of abstract ones.
// Rules whose conversions cost the same are ranked by it.
func scalarPreference(s ir.ScalarType) int {
	switch s {
	case ir.F32:
		return 0
	case ir.F16:
		return 1
	case ir.F64:
		return 2
	case ir.I32:
		return 3
	case ir.U32:
		return 4
	case ir.I64:
		return 5
	case ir.U64:
		return 6
	case ir.Bool:
		return 7
	case ir.AbstractFloat:
		return 8
	case ir.AbstractInt:
		return 9
	}

	return 10
}

// consensusScalar returns the least upper bound of two scalars under
// automatic conversion.
func consensusScalar(a, b ir.ScalarType) (ir.ScalarType, bool) {
	switch {
	case a == b:
		return a, true
	case autoConvertible(a, b):
		return b, true
	case autoConvertible(b, a):
		return a, true
	}

	return ir.ScalarType{}, false
}

// defaultScalar is the type an abstract scalar takes when nothing else
// constrains it.
func defaultScalar(s ir.ScalarType) ir.ScalarType {
	switch s.Kind {
	case ir.ScalarAbstractInt:
		return ir.I32
	case ir.ScalarAbstractFloat:
		return ir.F32
	}

	return s
}

// isAbstract reports whether inner has an abstract leaf scalar.
func (l *Lowerer) isAbstract(inner ir.TypeInner) bool {
	switch t := inner.(type) {
	case ir.ArrayType:
		return l.isAbstract(l.inner(t.Base))
	default:
		s, ok := ir.ScalarOf(inner)
		return ok && s.IsAbstract()
	}
}

// leafScalar returns the scalar at the bottom of scalars, vectors,
// matrices and fixed arrays of them.
func (l *Lowerer) leafScalar(inner ir.TypeInner) (ir.ScalarType, bool) {
	if a, ok := inner.(ir.ArrayType); ok {
		return l.leafScalar(l.inner(a.Base))
	}

	return ir.ScalarOf(inner)
}

// withLeaf replaces the leaf scalar of inner, registering new array types
// as needed.
func (l *Lowerer) withLeaf(inner ir.TypeInner, s ir.ScalarType) (ir.TypeInner, bool) {
	if a, ok := inner.(ir.ArrayType); ok {
		base, ok := l.withLeaf(l.inner(a.Base), s)
		if !ok {
			return nil, false
		}
		elem := l.register(base)
		arr := l.inner(l.arrayOf(elem, a.Size.Constant))

		return arr, true
	}

	if _, ok := inner.(ir.AtomicType); ok {
		return nil, false
	}

	return ir.WithScalar(inner, s)
}

// concreteType maps abstract leaves to their default concrete scalars.
func (l *Lowerer) concreteType(h ir.TypeHandle) ir.TypeHandle {
	inner := l.inner(h)

	s, ok := l.leafScalar(inner)
	if !ok || !s.IsAbstract() {
		return h
	}

	conc, ok := l.withLeaf(inner, defaultScalar(s))
	if !ok {
		return h
	}

	return l.register(conc)
}

// floatFits reports whether f is finite in the target float width.
func floatFits(s ir.ScalarType, f float64) bool {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return false
	}

	if s == ir.F32 {
		return !math.IsInf(float64(float32(f)), 0)
	}

	return true
}

// convertLiteral converts one scalar literal. Explicit conversions follow
// value constructor rules; automatic ones only allow abstract sources.
func convertLiteral(v ir.LiteralValue, to ir.ScalarType, explicit bool, span Span) (ir.LiteralValue, error) {
	from := v.Scalar()
	if from == to {
		return v, nil
	}

	if !explicit && !autoConvertible(from, to) {
		return nil, newError(ErrTypeMismatch, span, "cannot convert %v to %v automatically", from, to)
	}

	if to == ir.F16 {
		return nil, newError(ErrUnsupported, span, "f16 values are not supported in constant expressions")
	}

	if b, ok := v.(ir.LiteralBool); ok {
		var n int64
		if b {
			n = 1
		}
		if to.IsFloat() {
			return makeFloat(to, float64(n), span)
		}
		return makeInt(to, n, span)
	}

	if to == ir.Bool {
		if f, ok := litFloat(v); ok {
			return ir.LiteralBool(f != 0), nil
		}
		n, _ := litInt(v)
		return ir.LiteralBool(n != 0), nil
	}

	if n, ok := litInt(v); ok {
		if to.IsFloat() {
			return makeFloat(to, float64(n), span)
		}
		if explicit && !from.IsAbstract() {
			// i32 <-> u32 reinterprets the bits
			switch to {
			case ir.I32:
				return ir.LiteralI32(int32(uint32(n))), nil
			case ir.U32:
				return ir.LiteralU32(uint32(n)), nil
			}
		}
		return makeInt(to, n, span)
	}

	f, _ := litFloat(v)
	if to.IsFloat() {
		return makeFloat(to, f, span)
	}

	// float to integer truncates and saturates
	f = math.Trunc(f)
	lo, hi := intRange(to)
	switch {
	case math.IsNaN(f):
		f = 0
	case f < float64(lo):
		f = float64(lo)
	case f > float64(hi):
		f = float64(hi)
	}

	return makeInt(to, int64(f), span)
}

func intRange(s ir.ScalarType) (int64, int64) {
	switch s {
	case ir.I32:
		return math.MinInt32, math.MaxInt32
	case ir.U32:
		return 0, math.MaxUint32
	default:
		return math.MinInt64, math.MaxInt64
	}
}

func makeInt(s ir.ScalarType, n int64, span Span) (ir.LiteralValue, error) {
	lo, hi := intRange(s)
	if n < lo || n > hi {
		return nil, newError(ErrOverflow, span, "%d does not fit in %v", n, s)
	}

	switch s {
	case ir.I32:
		return ir.LiteralI32(n), nil
	case ir.U32:
		return ir.LiteralU32(n), nil
	case ir.AbstractInt:
		return ir.LiteralAbstractInt(n), nil
	case ir.I64:
		return ir.LiteralI64(n), nil
	}

	return nil, newError(ErrUnsupported, span, "%v values are not supported in constant expressions", s)
}

func makeFloat(s ir.ScalarType, f float64, span Span) (ir.LiteralValue, error) {
	if !floatFits(s, f) {
		return nil, newError(ErrOverflow, span, "%g does not fit in %v", f, s)
	}

	switch s {
	case ir.F32:
		return ir.LiteralF32(f), nil
	case ir.AbstractFloat:
		return ir.LiteralAbstractFloat(f), nil
	case ir.F64:
		return ir.LiteralF64(f), nil
	}

	return nil, newError(ErrUnsupported, span, "%v values are not supported in constant expressions", s)
}

func litInt(v ir.LiteralValue) (int64, bool) {
	switch v := v.(type) {
	case ir.LiteralAbstractInt:
		return int64(v), true
	case ir.LiteralI32:
		return int64(v), true
	case ir.LiteralU32:
		return int64(v), true
	case ir.LiteralI64:
		return int64(v), true
	}

	return 0, false
}

func litFloat(v ir.LiteralValue) (float64, bool) {
	switch v := v.(type) {
	case ir.LiteralAbstractFloat:
		return float64(v), true
	case ir.LiteralF32:
		return float64(v), true
	case ir.LiteralF64:
		return float64(v), true
	}

	return 0, false
}

// convertExpr converts the value h to scalar to. Only abstract values
// are rewritten: the abstract expression tree is rebuilt with concrete
// leaves, leaving the abstract originals unused.
//
//nolint:gocyclo,cyclop // one case per expression kind that can be abstract
func (fc *funcCtx) convertExpr(h ir.ExpressionHandle, to ir.ScalarType) (ir.ExpressionHandle, error) {
	inner, err := fc.inner(h)
	if err != nil {
		return 0, err
	}

	s, ok := fc.l.leafScalar(inner)
	if !ok || s == to {
		return h, nil
	}
	if !s.IsAbstract() {
		return 0, newError(ErrTypeMismatch, fc.span(h), "cannot convert %v to %v automatically", s, to)
	}

	expr := fc.fn.Expressions[h]
	conv := func(op ir.ExpressionHandle) (ir.ExpressionHandle, error) { return fc.convertExpr(op, to) }

	var kind ir.ExpressionKind

	switch k := expr.Kind.(type) {
	case ir.Literal:
		lit, err := convertLiteral(k.Value, to, false, expr.Span)
		if err != nil {
			return 0, err
		}
		kind = ir.Literal{Value: lit}

	case ir.ExprUnary:
		e, err := conv(k.Expr)
		if err != nil {
			return 0, err
		}
		kind = ir.ExprUnary{Op: k.Op, Expr: e}

	case ir.ExprBinary:
		left, err := conv(k.Left)
		if err != nil {
			return 0, err
		}
		right := k.Right
		if k.Op != ir.BinaryShiftLeft && k.Op != ir.BinaryShiftRight {
			if right, err = conv(k.Right); err != nil {
				return 0, err
			}
		}
		kind = ir.ExprBinary{Op: k.Op, Left: left, Right: right}

	case ir.ExprSplat:
		v, err := conv(k.Value)
		if err != nil {
			return 0, err
		}
		kind = ir.ExprSplat{Size: k.Size, Value: v}

	case ir.ExprSwizzle:
		v, err := conv(k.Vector)
		if err != nil {
			return 0, err
		}
		kind = ir.ExprSwizzle{Size: k.Size, Vector: v, Pattern: k.Pattern}

	case ir.ExprCompose:
		comps := make([]ir.ExpressionHandle, len(k.Components))
		for i, c := range k.Components {
			if comps[i], err = conv(c); err != nil {
				return 0, err
			}
		}
		ty, ok := fc.l.withLeaf(fc.l.inner(k.Type), to)
		if !ok {
			return 0, newError(ErrTypeMismatch, expr.Span, "cannot convert %v", fc.l.typeName(k.Type))
		}
		kind = ir.ExprCompose{Type: fc.l.register(ty), Components: comps}

	case ir.ExprAccess:
		base, err := conv(k.Base)
		if err != nil {
			return 0, err
		}
		kind = ir.ExprAccess{Base: base, Index: k.Index}

	case ir.ExprAccessIndex:
		base, err := conv(k.Base)
		if err != nil {
			return 0, err
		}
		kind = ir.ExprAccessIndex{Base: base, Index: k.Index}

	case ir.ExprSelect:
		accept, err := conv(k.Accept)
		if err != nil {
			return 0, err
		}
		reject, err := conv(k.Reject)
		if err != nil {
			return 0, err
		}
		kind = ir.ExprSelect{Condition: k.Condition, Accept: accept, Reject: reject}

	case ir.ExprMath:
		m := k
		if m.Arg, err = conv(k.Arg); err != nil {
			return 0, err
		}
		for _, p := range []**ir.ExpressionHandle{&m.Arg1, &m.Arg2, &m.Arg3} {
			if *p == nil {
				continue
			}
			v, err := conv(**p)
			if err != nil {
				return 0, err
			}
			*p = &v
		}
		kind = m

	default:
		return 0, newError(ErrTypeMismatch, expr.Span, "cannot convert %v to %v", s, to)
	}

	return fc.append(kind, expr.Span), nil
}

// convertTo converts h to the goal type, applying automatic conversions
// of abstract values. span locates a mismatch.
func (fc *funcCtx) convertTo(h ir.ExpressionHandle, goal ir.TypeHandle, span Span) (ir.ExpressionHandle, error) {
	inner, err := fc.inner(h)
	if err != nil {
		return 0, err
	}

	goalInner := fc.l.inner(goal)
	if ir.TypeInnerEqual(inner, goalInner) {
		return h, nil
	}

	mismatch := func() error {
		return newError(ErrTypeMismatch, span, "expected %s, got %s", fc.l.typeName(goal), fc.l.innerName(inner))
	}

	from, ok := fc.l.leafScalar(inner)
	if !ok || !from.IsAbstract() {
		return 0, mismatch()
	}

	to, ok := fc.l.leafScalar(goalInner)
	if !ok || !autoConvertible(from, to) {
		return 0, mismatch()
	}

	shaped, ok := fc.l.withLeaf(inner, to)
	if !ok || !ir.TypeInnerEqual(shaped, goalInner) {
		return 0, mismatch()
	}

	return fc.convertExpr(h, to)
}

// concretize gives an abstract value its default concrete type.
func (fc *funcCtx) concretize(h ir.ExpressionHandle) (ir.ExpressionHandle, error) {
	inner, err := fc.inner(h)
	if err != nil {
		return 0, err
	}

	s, ok := fc.l.leafScalar(inner)
	if !ok || !s.IsAbstract() {
		return h, nil
	}

	return fc.convertExpr(h, defaultScalar(s))
}
