package wgsl

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/wgslc/ir"
)

// constValue is the value of a constant expression.
// Scalars carry lit; vectors, matrices (by column), arrays and structs
// carry comps.
type constValue struct {
	ty    ir.TypeHandle
	lit   ir.LiteralValue
	comps []constValue
}

func (v constValue) integer() (int64, bool) {
	if v.lit == nil {
		return 0, false
	}

	return litInt(v.lit)
}

func (v constValue) String() string {
	if v.lit != nil {
		return fmt.Sprint(v.lit)
	}

	parts := make([]string, len(v.comps))
	for i, c := range v.comps {
		parts[i] = c.String()
	}

	return "(" + strings.Join(parts, ", ") + ")"
}

func (l *Lowerer) scalarConst(lit ir.LiteralValue) constValue {
	return constValue{ty: l.register(lit.Scalar()), lit: lit}
}

// constLiteral parses a literal token.
func (l *Lowerer) constLiteral(e *Literal) (constValue, error) {
	switch e.Kind {
	case TokenTrue:
		return l.scalarConst(ir.LiteralBool(true)), nil
	case TokenFalse:
		return l.scalarConst(ir.LiteralBool(false)), nil
	case TokenIntLiteral:
		text, suffix := e.Value, byte(0)
		if c := text[len(text)-1]; c == 'i' || c == 'u' {
			text, suffix = text[:len(text)-1], c
		}

		var (
			n   int64
			err error
		)
		if strings.HasPrefix(text, "0x") || strings.HasPrefix(text, "0X") {
			var u uint64
			u, err = strconv.ParseUint(text[2:], 16, 64)
			if err == nil && u > math.MaxInt64 {
				err = strconv.ErrRange
			}
			n = int64(u)
		} else {
			n, err = strconv.ParseInt(text, 10, 64)
		}
		if err != nil {
			return constValue{}, newError(ErrOverflow, e.Span, "integer literal %s is out of range", e.Value)
		}

		s := ir.AbstractInt
		switch suffix {
		case 'i':
			s = ir.I32
		case 'u':
			s = ir.U32
		}

		lit, err := makeInt(s, n, e.Span)
		if err != nil {
			return constValue{}, err
		}

		return l.scalarConst(lit), nil

	case TokenFloatLiteral:
		text := e.Value
		s := ir.AbstractFloat
		switch text[len(text)-1] {
		case 'f':
			text, s = text[:len(text)-1], ir.F32
		case 'h':
			return constValue{}, newError(ErrUnsupported, e.Span, "f16 literals are not supported")
		}

		f, err := strconv.ParseFloat(text, 64)
		if err != nil {
			return constValue{}, newError(ErrOverflow, e.Span, "float literal %s is out of range", e.Value)
		}

		lit, err := makeFloat(s, f, e.Span)
		if err != nil {
			return constValue{}, err
		}

		return l.scalarConst(lit), nil
	}

	return constValue{}, newError(ErrUnsupported, e.Span, "unexpected literal %v", e.Kind)
}

// evalConst evaluates a constant expression. fc is nil at module scope.
//
//nolint:gocyclo,cyclop // one case per expression form
func (l *Lowerer) evalConst(fc *funcCtx, e Expr) (constValue, error) {
	if err := l.enter(e.Pos()); err != nil {
		return constValue{}, err
	}
	defer l.leave()

	switch e := e.(type) {
	case *Literal:
		return l.constLiteral(e)

	case *ParenExpr:
		return l.evalConst(fc, e.Inner)

	case *TypeExpr:
		if len(e.Params) != 0 {
			return constValue{}, newError(ErrNotConstant, e.Span, "a type is not a value")
		}
		return l.evalConst(fc, &Ident{Name: e.Name, Span: e.Span})

	case *Ident:
		if fc != nil {
			if b, ok := fc.lookup(e.Name); ok {
				if b.value == nil {
					return constValue{}, newError(ErrNotConstant, e.Span, "%s is not a constant", e.Name)
				}
				return *b.value, nil
			}
		}

		g, ok := l.globals[e.Name]
		if !ok {
			return constValue{}, newError(ErrUnknownIdentifier, e.Span, "no definition in scope for identifier: %s", e.Name)
		}
		if g.kind != globalConst {
			return constValue{}, newError(ErrNotConstant, e.Span, "%s is not a constant", e.Name)
		}
		return g.value, nil

	case *UnaryExpr:
		v, err := l.evalConst(fc, e.Operand)
		if err != nil {
			return constValue{}, err
		}
		return l.constUnary(e, v)

	case *BinaryExpr:
		left, err := l.evalConst(fc, e.Left)
		if err != nil {
			return constValue{}, err
		}

		// short circuit keeps 'false && x' valid when x would fail
		if e.Op == TokenAmpAmp || e.Op == TokenPipePipe {
			if b, ok := left.lit.(ir.LiteralBool); ok && bool(b) == (e.Op == TokenPipePipe) {
				return left, nil
			}
		}

		right, err := l.evalConst(fc, e.Right)
		if err != nil {
			return constValue{}, err
		}
		return l.constBinary(e, left, right)

	case *CallExpr:
		args := make([]constValue, len(e.Args))
		for i, a := range e.Args {
			v, err := l.evalConst(fc, a)
			if err != nil {
				return constValue{}, err
			}
			args[i] = v
		}

		target, isType, err := l.constructorType(fc, e.Callee)
		if err != nil {
			return constValue{}, err
		}
		if isType {
			return l.constConstruct(e, target, args)
		}
		return l.constBuiltin(e, args)

	case *IndexExpr:
		base, err := l.evalConst(fc, e.Base)
		if err != nil {
			return constValue{}, err
		}
		index, err := l.evalConst(fc, e.Index)
		if err != nil {
			return constValue{}, err
		}
		n, ok := index.integer()
		if !ok {
			return constValue{}, newError(ErrTypeMismatch, e.Index.Pos(), "index must be an integer, got %s", l.typeName(index.ty))
		}
		if base.lit != nil {
			return constValue{}, newError(ErrTypeMismatch, e.Base.Pos(), "cannot index %s", l.typeName(base.ty))
		}
		if _, ok := l.inner(base.ty).(ir.StructType); ok {
			return constValue{}, newError(ErrTypeMismatch, e.Base.Pos(), "cannot index a struct")
		}
		if n < 0 || n >= int64(len(base.comps)) {
			return constValue{}, newError(ErrOutOfBounds, e.Index.Pos(), "index %d is out of bounds for %s", n, l.typeName(base.ty))
		}
		return base.comps[n], nil

	case *MemberExpr:
		base, err := l.evalConst(fc, e.Base)
		if err != nil {
			return constValue{}, err
		}
		return l.constMember(e, base)
	}

	return constValue{}, newError(ErrNotConstant, e.Pos(), "expression is not constant")
}

func (l *Lowerer) constMember(e *MemberExpr, base constValue) (constValue, error) {
	switch t := l.inner(base.ty).(type) {
	case ir.StructType:
		for i, m := range t.Members {
			if m.Name == e.Member {
				return base.comps[i], nil
			}
		}
		return constValue{}, newError(ErrBadAccessor, e.Span, "%s has no member %s", l.typeName(base.ty), e.Member)

	case ir.VectorType:
		pattern, err := swizzlePattern(e.Member, t.Size, e.Span)
		if err != nil {
			return constValue{}, err
		}
		if len(pattern) == 1 {
			return base.comps[pattern[0]], nil
		}
		comps := make([]constValue, len(pattern))
		for i, c := range pattern {
			comps[i] = base.comps[c]
		}
		ty := l.register(ir.VectorType{Size: ir.VectorSize(len(pattern)), Scalar: t.Scalar})
		return constValue{ty: ty, comps: comps}, nil
	}

	return constValue{}, newError(ErrBadAccessor, e.Span, "%s has no members", l.typeName(base.ty))
}

// swizzlePattern parses a vector member name. All letters come from one
// of the sets xyzw or rgba and stay within the vector.
func swizzlePattern(name string, size ir.VectorSize, span Span) ([]ir.SwizzleComponent, error) {
	if len(name) < 1 || len(name) > 4 {
		return nil, newError(ErrBadAccessor, span, "invalid vector member %q", name)
	}

	set := "xyzw"
	if strings.ContainsAny(name[:1], "rgba") {
		set = "rgba"
	}

	out := make([]ir.SwizzleComponent, len(name))
	for i := 0; i < len(name); i++ {
		c := strings.IndexByte(set, name[i])
		if c < 0 || c >= int(size) {
			return nil, newError(ErrBadAccessor, span, "invalid vector member %q", name)
		}
		out[i] = ir.SwizzleComponent(c)
	}

	return out, nil
}

// mapLeaves applies f to every scalar of a scalar or vector value.
// The result takes the shape of v with the scalar f produced.
func (l *Lowerer) mapLeaves(v constValue, f func(ir.LiteralValue) (ir.LiteralValue, error)) (constValue, error) {
	if v.lit != nil {
		lit, err := f(v.lit)
		if err != nil {
			return constValue{}, err
		}
		return l.scalarConst(lit), nil
	}

	inner := l.inner(v.ty)
	switch inner.(type) {
	case ir.VectorType, ir.MatrixType, ir.ArrayType:
	default:
		return constValue{}, newError(ErrUnsupported, Span{}, "cannot apply the operation to %s", l.typeName(v.ty))
	}

	comps := make([]constValue, len(v.comps))
	for i, c := range v.comps {
		r, err := l.mapLeaves(c, f)
		if err != nil {
			return constValue{}, err
		}
		comps[i] = r
	}

	if len(comps) == 0 {
		return v, nil
	}

	s, _ := l.leafScalar(l.inner(comps[0].ty))
	shaped, ok := l.withLeaf(inner, s)
	if !ok {
		return constValue{}, newError(ErrTypeMismatch, Span{}, "cannot convert %s", l.typeName(v.ty))
	}

	return constValue{ty: l.register(shaped), comps: comps}, nil
}

// convertConst converts v to the goal type. Explicit conversions follow
// value constructor rules.
func (l *Lowerer) convertConst(v constValue, goal ir.TypeHandle, explicit bool, span Span) (constValue, error) {
	if v.ty == goal || ir.TypeInnerEqual(l.inner(v.ty), l.inner(goal)) {
		v.ty = goal
		return v, nil
	}

	mismatch := newError(ErrTypeMismatch, span, "expected %s, got %s", l.typeName(goal), l.typeName(v.ty))

	to, ok := l.leafScalar(l.inner(goal))
	if !ok {
		return constValue{}, mismatch
	}
	shaped, ok := l.withLeaf(l.inner(v.ty), to)
	if !ok || !ir.TypeInnerEqual(shaped, l.inner(goal)) {
		return constValue{}, mismatch
	}

	out, err := l.mapLeaves(v, func(lit ir.LiteralValue) (ir.LiteralValue, error) {
		return convertLiteral(lit, to, explicit, span)
	})
	if err != nil {
		return constValue{}, err
	}
	out.ty = goal

	return out, nil
}

// concretizeConst gives abstract leaves their default types.
func (l *Lowerer) concretizeConst(v constValue, span Span) (constValue, error) {
	goal := l.concreteType(v.ty)
	if goal == v.ty {
		return v, nil
	}

	return l.convertConst(v, goal, false, span)
}

func (l *Lowerer) constUnary(e *UnaryExpr, v constValue) (constValue, error) {
	var f func(ir.LiteralValue) (ir.LiteralValue, error)

	switch e.Op {
	case TokenMinus:
		f = func(lit ir.LiteralValue) (ir.LiteralValue, error) {
			s := lit.Scalar()
			if n, ok := litInt(lit); ok {
				if s.Kind == ir.ScalarUint {
					return nil, newError(ErrTypeMismatch, e.Span, "cannot negate %v", s)
				}
				if n == math.MinInt64 {
					return nil, newError(ErrOverflow, e.Span, "negation overflows %v", s)
				}
				return makeInt(s, -n, e.Span)
			}
			if x, ok := litFloat(lit); ok {
				return makeFloat(s, -x, e.Span)
			}
			return nil, newError(ErrTypeMismatch, e.Span, "cannot negate %v", s)
		}
	case TokenBang:
		f = func(lit ir.LiteralValue) (ir.LiteralValue, error) {
			b, ok := lit.(ir.LiteralBool)
			if !ok {
				return nil, newError(ErrTypeMismatch, e.Span, "'!' needs bool, got %v", lit.Scalar())
			}
			return !b, nil
		}
	case TokenTilde:
		f = func(lit ir.LiteralValue) (ir.LiteralValue, error) {
			switch x := lit.(type) {
			case ir.LiteralI32:
				return ^x, nil
			case ir.LiteralU32:
				return ^x, nil
			case ir.LiteralAbstractInt:
				return ^x, nil
			}
			return nil, newError(ErrTypeMismatch, e.Span, "'~' needs an integer, got %v", lit.Scalar())
		}
	default:
		return constValue{}, newError(ErrNotConstant, e.Span, "%v is not allowed in a constant expression", e.Op)
	}

	if _, ok := l.inner(v.ty).(ir.MatrixType); ok && e.Op != TokenMinus {
		return constValue{}, newError(ErrTypeMismatch, e.Span, "%v is not defined for matrices", e.Op)
	}

	return l.mapLeaves(v, f)
}

var binaryOpTable = map[TokenKind]ir.BinaryOperator{
	TokenPlus:           ir.BinaryAdd,
	TokenMinus:          ir.BinarySubtract,
	TokenStar:           ir.BinaryMultiply,
	TokenSlash:          ir.BinaryDivide,
	TokenPercent:        ir.BinaryModulo,
	TokenEqualEqual:     ir.BinaryEqual,
	TokenBangEqual:      ir.BinaryNotEqual,
	TokenLess:           ir.BinaryLess,
	TokenLessEqual:      ir.BinaryLessEqual,
	TokenGreater:        ir.BinaryGreater,
	TokenGreaterEqual:   ir.BinaryGreaterEqual,
	TokenAmpersand:      ir.BinaryAnd,
	TokenCaret:          ir.BinaryExclusiveOr,
	TokenPipe:           ir.BinaryInclusiveOr,
	TokenAmpAmp:         ir.BinaryLogicalAnd,
	TokenPipePipe:       ir.BinaryLogicalOr,
	TokenLessLess:       ir.BinaryShiftLeft,
	TokenGreaterGreater: ir.BinaryShiftRight,
}

func (l *Lowerer) constBinary(e *BinaryExpr, left, right constValue) (constValue, error) {
	op, ok := binaryOpTable[e.Op]
	if !ok {
		return constValue{}, newError(ErrNotConstant, e.Span, "%v is not allowed in a constant expression", e.Op)
	}

	li, ri := l.inner(left.ty), l.inner(right.ty)
	ls, lok := ir.ScalarOf(li)
	rs, rok := ir.ScalarOf(ri)
	if !lok || !rok {
		return constValue{}, newRelatedError(ErrTypeMismatch, e.Left.Pos(), e.Right.Pos(),
			"%v is not defined for %s and %s", op, l.typeName(left.ty), l.typeName(right.ty))
	}
	if _, ok := li.(ir.MatrixType); ok {
		return constValue{}, newError(ErrUnsupported, e.Span, "matrix arithmetic in constant expressions")
	}
	if _, ok := ri.(ir.MatrixType); ok {
		return constValue{}, newError(ErrUnsupported, e.Span, "matrix arithmetic in constant expressions")
	}

	shift := op == ir.BinaryShiftLeft || op == ir.BinaryShiftRight
	if !shift {
		s, ok := consensusScalar(ls, rs)
		if !ok {
			return constValue{}, newRelatedError(ErrTypeMismatch, e.Left.Pos(), e.Right.Pos(),
				"%v is not defined for %v and %v", op, ls, rs)
		}
		var err error
		if left, err = l.convertLeafConst(left, s, e.Left.Pos()); err != nil {
			return constValue{}, err
		}
		if right, err = l.convertLeafConst(right, s, e.Right.Pos()); err != nil {
			return constValue{}, err
		}
	}

	lv, lvec := l.inner(left.ty).(ir.VectorType)
	rv, rvec := l.inner(right.ty).(ir.VectorType)

	apply := func(a, b constValue) (constValue, error) {
		lit, err := binaryLiteral(op, a.lit, b.lit, e.Span)
		if err != nil {
			return constValue{}, err
		}
		return l.scalarConst(lit), nil
	}

	switch {
	case !lvec && !rvec:
		return apply(left, right)
	case lvec && rvec && lv.Size != rv.Size:
		return constValue{}, newRelatedError(ErrTypeMismatch, e.Left.Pos(), e.Right.Pos(),
			"%v is not defined for %s and %s", op, l.typeName(left.ty), l.typeName(right.ty))
	}

	var size ir.VectorSize
	if lvec {
		size = lv.Size
	} else {
		size = rv.Size
	}

	if lvec != rvec && (shift || op.IsComparison() || op > ir.BinaryModulo) {
		return constValue{}, newRelatedError(ErrTypeMismatch, e.Left.Pos(), e.Right.Pos(),
			"%v is not defined for %s and %s", op, l.typeName(left.ty), l.typeName(right.ty))
	}

	comps := make([]constValue, size)
	for i := range comps {
		a, b := left, right
		if lvec {
			a = left.comps[i]
		}
		if rvec {
			b = right.comps[i]
		}
		c, err := apply(a, b)
		if err != nil {
			return constValue{}, err
		}
		comps[i] = c
	}

	s, _ := ir.ScalarOf(l.inner(comps[0].ty))

	return constValue{ty: l.register(ir.VectorType{Size: size, Scalar: s}), comps: comps}, nil
}

// convertLeafConst converts the leaves of v to s automatically, keeping its shape.
func (l *Lowerer) convertLeafConst(v constValue, s ir.ScalarType, span Span) (constValue, error) {
	cur, _ := l.leafScalar(l.inner(v.ty))
	if cur == s {
		return v, nil
	}

	return l.mapLeaves(v, func(lit ir.LiteralValue) (ir.LiteralValue, error) {
		return convertLiteral(lit, s, false, span)
	})
}

//nolint:gocyclo,cyclop // one case per operator and scalar class
func binaryLiteral(op ir.BinaryOperator, a, b ir.LiteralValue, span Span) (ir.LiteralValue, error) {
	s := a.Scalar()

	undefined := func() (ir.LiteralValue, error) {
		return nil, newError(ErrTypeMismatch, span, "%v is not defined for %v", op, s)
	}

	if x, ok := a.(ir.LiteralBool); ok {
		y, ok := b.(ir.LiteralBool)
		if !ok {
			return undefined()
		}
		switch op {
		case ir.BinaryLogicalAnd, ir.BinaryAnd:
			return x && y, nil
		case ir.BinaryLogicalOr, ir.BinaryInclusiveOr:
			return x || y, nil
		case ir.BinaryEqual:
			return ir.LiteralBool(x == y), nil
		case ir.BinaryNotEqual:
			return ir.LiteralBool(x != y), nil
		}
		return undefined()
	}

	if x, ok := litFloat(a); ok {
		y, _ := litFloat(b)
		var r float64
		switch op {
		case ir.BinaryAdd:
			r = x + y
		case ir.BinarySubtract:
			r = x - y
		case ir.BinaryMultiply:
			r = x * y
		case ir.BinaryDivide:
			r = x / y
		case ir.BinaryModulo:
			r = math.Mod(x, y)
		case ir.BinaryEqual:
			return ir.LiteralBool(x == y), nil
		case ir.BinaryNotEqual:
			return ir.LiteralBool(x != y), nil
		case ir.BinaryLess:
			return ir.LiteralBool(x < y), nil
		case ir.BinaryLessEqual:
			return ir.LiteralBool(x <= y), nil
		case ir.BinaryGreater:
			return ir.LiteralBool(x > y), nil
		case ir.BinaryGreaterEqual:
			return ir.LiteralBool(x >= y), nil
		default:
			return undefined()
		}
		return makeFloat(s, r, span)
	}

	x, ok := litInt(a)
	if !ok {
		return undefined()
	}
	y, ok := litInt(b)
	if !ok {
		return undefined()
	}

	overflow := func() (ir.LiteralValue, error) {
		return nil, newError(ErrOverflow, span, "%d %v %d overflows %v", x, op, y, s)
	}

	var r int64
	switch op {
	case ir.BinaryAdd:
		r = x + y
		if (x > 0 && y > 0 && r < 0) || (x < 0 && y < 0 && r >= 0) {
			return overflow()
		}
	case ir.BinarySubtract:
		r = x - y
		if (x >= 0 && y < 0 && r < 0) || (x < 0 && y > 0 && r >= 0) {
			return overflow()
		}
	case ir.BinaryMultiply:
		r = x * y
		if x != 0 && (r/x != y || (x == -1 && y == math.MinInt64)) {
			return overflow()
		}
	case ir.BinaryDivide, ir.BinaryModulo:
		if y == 0 {
			return nil, newError(ErrOverflow, span, "division by zero")
		}
		lo, _ := intRange(s)
		if x == lo && y == -1 {
			return overflow()
		}
		if op == ir.BinaryDivide {
			r = x / y
		} else {
			r = x % y
		}
	case ir.BinaryAnd:
		r = x & y
	case ir.BinaryInclusiveOr:
		r = x | y
	case ir.BinaryExclusiveOr:
		r = x ^ y
	case ir.BinaryShiftLeft, ir.BinaryShiftRight:
		width := int64(32)
		if s.IsAbstract() {
			width = 64
		}
		if y < 0 || y >= width {
			return nil, newError(ErrOverflow, span, "shift by %d is out of range for %v", y, s)
		}
		if op == ir.BinaryShiftRight {
			r = x >> uint(y)
			break
		}
		r = x << uint(y)
		if r>>uint(y) != x {
			return overflow()
		}
		if s == ir.I32 && (r < math.MinInt32 || r > math.MaxInt32) {
			// bits shifted out of an i32 are dropped, but not the sign
			if int64(int32(r)) < 0 != (x < 0) {
				return overflow()
			}
			r = int64(int32(r))
		}
		if s == ir.U32 {
			r &= math.MaxUint32
		}
	case ir.BinaryEqual:
		return ir.LiteralBool(x == y), nil
	case ir.BinaryNotEqual:
		return ir.LiteralBool(x != y), nil
	case ir.BinaryLess:
		return ir.LiteralBool(x < y), nil
	case ir.BinaryLessEqual:
		return ir.LiteralBool(x <= y), nil
	case ir.BinaryGreater:
		return ir.LiteralBool(x > y), nil
	case ir.BinaryGreaterEqual:
		return ir.LiteralBool(x >= y), nil
	default:
		return undefined()
	}

	return makeInt(s, r, span)
}

// zeroConst builds the zero value of a constructible type.
func (l *Lowerer) zeroConst(ty ir.TypeHandle, span Span) (constValue, error) {
	repeat := func(n int, elem ir.TypeHandle) (constValue, error) {
		z, err := l.zeroConst(elem, span)
		if err != nil {
			return constValue{}, err
		}
		comps := make([]constValue, n)
		for i := range comps {
			comps[i] = z
		}
		return constValue{ty: ty, comps: comps}, nil
	}

	switch t := l.inner(ty).(type) {
	case ir.ScalarType:
		var lit ir.LiteralValue
		var err error
		switch {
		case t == ir.Bool:
			lit = ir.LiteralBool(false)
		case t.IsFloat():
			lit, err = makeFloat(t, 0, span)
		default:
			lit, err = makeInt(t, 0, span)
		}
		if err != nil {
			return constValue{}, err
		}
		return constValue{ty: ty, lit: lit}, nil
	case ir.VectorType:
		return repeat(int(t.Size), l.register(t.Scalar))
	case ir.MatrixType:
		return repeat(int(t.Columns), l.register(ir.VectorType{Size: t.Rows, Scalar: t.Scalar}))
	case ir.ArrayType:
		if t.Size.IsDynamic() {
			break
		}
		return repeat(int(t.Size.Constant), t.Base)
	case ir.StructType:
		comps := make([]constValue, len(t.Members))
		for i, m := range t.Members {
			z, err := l.zeroConst(m.Type, span)
			if err != nil {
				return constValue{}, err
			}
			comps[i] = z
		}
		return constValue{ty: ty, comps: comps}, nil
	}

	return constValue{}, newError(ErrTypeMismatch, span, "%s cannot be constructed", l.typeName(ty))
}

// constConstruct evaluates a type constructor call.
func (l *Lowerer) constConstruct(e *CallExpr, target ctorTarget, args []constValue) (constValue, error) {
	argTypes := make([]ir.TypeInner, len(args))
	for i, a := range args {
		argTypes[i] = l.inner(a.ty)
	}

	ty, err := l.resolveCtor(e, target, argTypes)
	if err != nil {
		return constValue{}, err
	}

	if len(args) == 0 {
		return l.zeroConst(ty, e.Span)
	}

	conv := func(v constValue, goal ir.TypeHandle, i int) (constValue, error) {
		return l.convertConst(v, goal, false, e.Args[i].Pos())
	}

	switch t := l.inner(ty).(type) {
	case ir.ScalarType:
		if len(args) != 1 {
			return constValue{}, newError(ErrWrongArgumentCount, e.Span, "%v takes one argument", t)
		}
		return l.convertConst(args[0], ty, true, e.Args[0].Pos())

	case ir.VectorType:
		elem := l.register(t.Scalar)
		if len(args) == 1 {
			switch a := l.inner(args[0].ty).(type) {
			case ir.ScalarType:
				c, err := l.convertConst(args[0], elem, true, e.Args[0].Pos())
				if err != nil {
					return constValue{}, err
				}
				comps := make([]constValue, t.Size)
				for i := range comps {
					comps[i] = c
				}
				return constValue{ty: ty, comps: comps}, nil
			case ir.VectorType:
				if a.Size == t.Size {
					return l.convertConst(args[0], ty, true, e.Args[0].Pos())
				}
			}
		}

		var comps []constValue
		for i, a := range args {
			if a.lit != nil {
				c, err := conv(a, elem, i)
				if err != nil {
					return constValue{}, err
				}
				comps = append(comps, c)
				continue
			}
			if _, ok := l.inner(a.ty).(ir.VectorType); !ok {
				return constValue{}, newError(ErrTypeMismatch, e.Args[i].Pos(), "expected a scalar or vector, got %s", l.typeName(a.ty))
			}
			for _, c := range a.comps {
				c, err := conv(c, elem, i)
				if err != nil {
					return constValue{}, err
				}
				comps = append(comps, c)
			}
		}
		if len(comps) != int(t.Size) {
			return constValue{}, newError(ErrWrongArgumentCount, e.Span, "%s needs %d components, got %d", l.typeName(ty), t.Size, len(comps))
		}
		return constValue{ty: ty, comps: comps}, nil

	case ir.MatrixType:
		col := l.register(ir.VectorType{Size: t.Rows, Scalar: t.Scalar})
		if len(args) == 1 {
			return l.convertConst(args[0], ty, true, e.Args[0].Pos())
		}

		var comps []constValue
		switch {
		case len(args) == int(t.Columns):
			for i, a := range args {
				c, err := conv(a, col, i)
				if err != nil {
					return constValue{}, err
				}
				comps = append(comps, c)
			}
		case len(args) == int(t.Columns)*int(t.Rows):
			elem := l.register(t.Scalar)
			for c := 0; c < int(t.Columns); c++ {
				column := constValue{ty: col, comps: make([]constValue, t.Rows)}
				for r := 0; r < int(t.Rows); r++ {
					i := c*int(t.Rows) + r
					v, err := conv(args[i], elem, i)
					if err != nil {
						return constValue{}, err
					}
					column.comps[r] = v
				}
				comps = append(comps, column)
			}
		default:
			return constValue{}, newError(ErrWrongArgumentCount, e.Span, "%s takes %d columns or %d scalars, got %d arguments",
				l.typeName(ty), t.Columns, int(t.Columns)*int(t.Rows), len(args))
		}
		return constValue{ty: ty, comps: comps}, nil

	case ir.ArrayType:
		if int(t.Size.Constant) != len(args) {
			return constValue{}, newError(ErrWrongArgumentCount, e.Span, "%s needs %d elements, got %d", l.typeName(ty), t.Size.Constant, len(args))
		}
		comps := make([]constValue, len(args))
		for i, a := range args {
			if comps[i], err = conv(a, t.Base, i); err != nil {
				return constValue{}, err
			}
		}
		return constValue{ty: ty, comps: comps}, nil

	case ir.StructType:
		if len(t.Members) != len(args) {
			return constValue{}, newError(ErrWrongArgumentCount, e.Span, "%s has %d members, got %d arguments", l.typeName(ty), len(t.Members), len(args))
		}
		comps := make([]constValue, len(args))
		for i, a := range args {
			if comps[i], err = conv(a, t.Members[i].Type, i); err != nil {
				return constValue{}, err
			}
		}
		return constValue{ty: ty, comps: comps}, nil
	}

	return constValue{}, newError(ErrTypeMismatch, e.Span, "%s cannot be constructed", l.typeName(ty))
}

// constBuiltin evaluates the builtin functions allowed in constant expressions.
func (l *Lowerer) constBuiltin(e *CallExpr, args []constValue) (constValue, error) {
	name := e.Callee.Name

	arity := map[string]int{"abs": 1, "min": 2, "max": 2, "clamp": 3, "select": 3}
	n, ok := arity[name]
	if !ok {
		return constValue{}, newError(ErrNotConstant, e.Span, "%s cannot be called in a constant expression", name)
	}
	if len(args) != n {
		return constValue{}, newError(ErrWrongArgumentCount, e.Span, "%s takes %d arguments, got %d", name, n, len(args))
	}

	values := args
	if name == "select" {
		values = args[:2]
	}

	// bring the value arguments to a common type
	s, _ := l.leafScalar(l.inner(values[0].ty))
	for i, v := range values[1:] {
		vs, ok := l.leafScalar(l.inner(v.ty))
		if !ok {
			return constValue{}, newError(ErrWrongArgumentType, e.Args[i+1].Pos(), "%s does not accept %s", name, l.typeName(v.ty))
		}
		if s, ok = consensusScalar(s, vs); !ok {
			return constValue{}, newRelatedError(ErrInconsistentArgumentType, e.Args[i+1].Pos(), e.Args[0].Pos(),
				"%s argument %d conflicts with argument 1", name, i+2)
		}
	}
	for i := range values {
		v, err := l.convertLeafConst(values[i], s, e.Args[i].Pos())
		if err != nil {
			return constValue{}, err
		}
		values[i] = v
	}

	less := func(a, b ir.LiteralValue) bool {
		if x, ok := litFloat(a); ok {
			y, _ := litFloat(b)
			return x < y
		}
		x, _ := litInt(a)
		y, _ := litInt(b)
		return x < y
	}

	switch name {
	case "abs":
		return l.mapLeaves(values[0], func(lit ir.LiteralValue) (ir.LiteralValue, error) {
			if x, ok := litFloat(lit); ok {
				return makeFloat(s, math.Abs(x), e.Span)
			}
			x, ok := litInt(lit)
			if !ok {
				return nil, newError(ErrWrongArgumentType, e.Args[0].Pos(), "abs does not accept %v", s)
			}
			if x < 0 {
				x = -x
			}
			return makeInt(s, x, e.Span)
		})
	case "select":
		cond, ok := args[2].lit.(ir.LiteralBool)
		if !ok {
			return constValue{}, newError(ErrWrongArgumentType, e.Args[2].Pos(), "select condition must be a bool scalar in constant expressions")
		}
		if cond {
			return values[1], nil
		}
		return values[0], nil
	}

	pick := func(a, b constValue, wantLess bool) (constValue, error) {
		return l.zipLeaves(a, b, func(x, y ir.LiteralValue) ir.LiteralValue {
			if less(x, y) == wantLess {
				return x
			}
			return y
		})
	}

	switch name {
	case "min":
		return pick(values[0], values[1], true)
	case "max":
		return pick(values[0], values[1], false)
	default: // clamp
		lo, err := pick(values[0], values[1], false)
		if err != nil {
			return constValue{}, err
		}
		return pick(lo, values[2], true)
	}
}

// zipLeaves combines two values of one shape leaf by leaf.
func (l *Lowerer) zipLeaves(a, b constValue, f func(x, y ir.LiteralValue) ir.LiteralValue) (constValue, error) {
	if a.lit != nil && b.lit != nil {
		return l.scalarConst(f(a.lit, b.lit)), nil
	}
	if len(a.comps) != len(b.comps) || a.lit != nil || b.lit != nil {
		return constValue{}, newError(ErrTypeMismatch, Span{}, "%s and %s differ in shape", l.typeName(a.ty), l.typeName(b.ty))
	}

	out := constValue{ty: a.ty, comps: make([]constValue, len(a.comps))}
	for i := range a.comps {
		c, err := l.zipLeaves(a.comps[i], b.comps[i], f)
		if err != nil {
			return constValue{}, err
		}
		out.comps[i] = c
	}

	return out, nil
}

// literalBits encodes a concrete literal the way ir.ScalarValue stores it.
func literalBits(lit ir.LiteralValue) ir.ScalarValue {
	s := lit.Scalar()

	var bits uint64
	switch v := lit.(type) {
	case ir.LiteralBool:
		if v {
			bits = 1
		}
	case ir.LiteralF32:
		bits = uint64(math.Float32bits(float32(v)))
	case ir.LiteralF64:
		bits = math.Float64bits(float64(v))
	case ir.LiteralI32:
		bits = uint64(uint32(v))
	case ir.LiteralU32:
		bits = uint64(v)
	case ir.LiteralI64:
		bits = uint64(v)
	case ir.LiteralU64:
		bits = uint64(v)
	}

	return ir.ScalarValue{Bits: bits, Kind: s.Kind}
}

// constantOf appends v to the module's constant arena, concretized.
func (l *Lowerer) constantOf(v constValue, name string, span Span) (ir.ConstantHandle, error) {
	v, err := l.concretizeConst(v, span)
	if err != nil {
		return 0, err
	}

	if v.lit != nil {
		return l.consts.Append(ir.Constant{Name: name, Type: v.ty, Value: literalBits(v.lit)}), nil
	}

	comps := make([]ir.ConstantHandle, len(v.comps))
	for i, c := range v.comps {
		if comps[i], err = l.constantOf(c, "", span); err != nil {
			return 0, err
		}
	}

	return l.consts.Append(ir.Constant{Name: name, Type: v.ty, Value: ir.CompositeValue{Components: comps}}), nil
}

// materialize appends v to the function as literals and composes.
func (fc *funcCtx) materialize(v constValue, span Span) ir.ExpressionHandle {
	if v.lit != nil {
		return fc.append(ir.Literal{Value: v.lit}, span)
	}

	comps := make([]ir.ExpressionHandle, len(v.comps))
	for i, c := range v.comps {
		comps[i] = fc.materialize(c, span)
	}

	return fc.append(ir.ExprCompose{Type: v.ty, Components: comps}, span)
}
