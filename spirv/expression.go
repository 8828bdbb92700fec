package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

func (c *blockContext) inner(h ir.ExpressionHandle) ir.TypeInner {
	return c.types[h].Inner(c.b.module.Types)
}

func (c *blockContext) resultType(h ir.ExpressionHandle) (uint32, error) {
	return c.b.resolutionTypeID(c.types[h])
}

// expr returns the id holding the value of h.
// Expressions that need no instructions are produced on demand,
// everything else must have been emitted already.
func (c *blockContext) expr(h ir.ExpressionHandle) (uint32, error) {
	if int(h) >= len(c.cached) {
		return 0, internalf("expression %d out of range", h)
	}

	if id := c.cached[h]; id != 0 {
		return id, nil
	}

	var (
		id  uint32
		err error
	)

	switch k := c.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		id, err = c.b.literalID(k.Value)
	case ir.ExprConstant:
		id, err = c.b.constantID(k.Constant)
	case ir.ExprOverride:
		if int(k.Override) >= len(c.b.overrideIDs) {
			return 0, internalf("override %d out of range", k.Override)
		}

		id = c.b.overrideIDs[k.Override]
	case ir.ExprZeroValue:
		var ty uint32
		if ty, err = c.b.typeID(k.Type); err == nil {
			id = c.b.nullConstant(ty)
		}
	case ir.ExprFunctionArgument:
		id = c.args[k.Index]
	case ir.ExprGlobalVariable:
		var ok bool
		if id, ok = c.handles[k.Variable]; !ok {
			return 0, internalf("global %d used as a value", k.Variable)
		}
	default:
		return 0, internalf("expression %d (%T) used before it was emitted", h, k)
	}

	if err != nil {
		return 0, err
	}

	c.cached[h] = id

	return id, nil
}

// cacheExpression emits expression h where an Emit statement places it.
func (c *blockContext) cacheExpression(block *Block, h ir.ExpressionHandle) error {
	if int(h) >= len(c.cached) {
		return internalf("emit of expression %d out of range", h)
	}

	if !c.live[h] || c.cached[h] != 0 {
		return nil
	}

	// pointers become access chains where they are used
	if ir.IsPointer(c.inner(h)) {
		return nil
	}

	id, err := c.writeExpression(block, h)
	if err != nil {
		return err
	}

	c.cached[h] = id

	if name, ok := c.fn.NamedExpressions[h]; ok && c.b.options.Debug && name != "" {
		c.b.builder.AddName(id, name)
	}

	return nil
}

//nolint:gocyclo,cyclop // one case per expression
func (c *blockContext) writeExpression(block *Block, h ir.ExpressionHandle) (uint32, error) {
	switch k := c.fn.Expressions[h].Kind.(type) {
	case ir.Literal, ir.ExprConstant, ir.ExprOverride, ir.ExprZeroValue, ir.ExprFunctionArgument, ir.ExprGlobalVariable:
		return c.expr(h)

	case ir.ExprCompose:
		ty, err := c.b.typeID(k.Type)
		if err != nil {
			return 0, err
		}

		comps, err := c.exprs(k.Components)
		if err != nil {
			return 0, err
		}

		return c.op(block, OpCompositeConstruct, ty, comps...), nil

	case ir.ExprSplat:
		ty, err := c.resultType(h)
		if err != nil {
			return 0, err
		}

		v, err := c.expr(k.Value)
		if err != nil {
			return 0, err
		}

		return c.splat(block, ty, v, k.Size), nil

	case ir.ExprSwizzle:
		ty, err := c.resultType(h)
		if err != nil {
			return 0, err
		}

		v, err := c.expr(k.Vector)
		if err != nil {
			return 0, err
		}

		words := []uint32{v, v}
		for i := 0; i < int(k.Size); i++ {
			words = append(words, uint32(k.Pattern[i]))
		}

		return c.op(block, OpVectorShuffle, ty, words...), nil

	case ir.ExprAccess:
		return c.writeAccess(block, h, k)

	case ir.ExprAccessIndex:
		ty, err := c.resultType(h)
		if err != nil {
			return 0, err
		}

		base, err := c.expr(k.Base)
		if err != nil {
			return 0, err
		}

		return c.op(block, OpCompositeExtract, ty, base, k.Index), nil

	case ir.ExprLoad:
		return c.writeLoad(block, h, k.Pointer)

	case ir.ExprUnary:
		return c.writeUnary(block, h, k)

	case ir.ExprBinary:
		return c.writeBinary(block, h, k)

	case ir.ExprSelect:
		return c.writeSelect(block, h, k)

	case ir.ExprDerivative:
		return c.writeDerivative(block, h, k)

	case ir.ExprRelational:
		return c.writeRelational(block, h, k)

	case ir.ExprMath:
		return c.writeMath(block, h, k)

	case ir.ExprAs:
		return c.writeAs(block, h, k)

	case ir.ExprImageSample:
		return c.writeImageSample(block, h, k)

	case ir.ExprImageLoad:
		return c.writeImageLoad(block, h, k)

	case ir.ExprImageQuery:
		return c.writeImageQuery(block, h, k)

	case ir.ExprArrayLength:
		return c.arrayLength(block, k.Array)

	case ir.ExprCallResult, ir.ExprAtomicResult, ir.ExprWorkGroupUniformLoadResult,
		ir.ExprSubgroupBallotResult, ir.ExprRayQueryProceedResult:
		return 0, internalf("result %d (%T) emitted before its statement", h, k)

	default:
		return 0, internalf("unknown expression %T", k)
	}
}

func (c *blockContext) exprs(hs []ir.ExpressionHandle) ([]uint32, error) {
	ids := make([]uint32, len(hs))

	for i, h := range hs {
		var err error
		if ids[i], err = c.expr(h); err != nil {
			return nil, err
		}
	}

	return ids, nil
}

// splat broadcasts scalar v into a vector of type ty.
func (c *blockContext) splat(block *Block, ty, v uint32, size ir.VectorSize) uint32 {
	comps := make([]uint32, size)
	for i := range comps {
		comps[i] = v
	}

	return c.op(block, OpCompositeConstruct, ty, comps...)
}

func (c *blockContext) writeUnary(block *Block, h ir.ExpressionHandle, k ir.ExprUnary) (uint32, error) {
	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	v, err := c.expr(k.Expr)
	if err != nil {
		return 0, err
	}

	s, _ := ir.ScalarOf(c.inner(k.Expr))

	switch k.Op {
	case ir.UnaryNegate:
		if s.Kind == ir.ScalarFloat {
			return c.op(block, OpFNegate, ty, v), nil
		}

		return c.op(block, OpSNegate, ty, v), nil
	case ir.UnaryLogicalNot:
		return c.op(block, OpLogicalNot, ty, v), nil
	case ir.UnaryBitwiseNot:
		if s.Kind == ir.ScalarBool {
			return c.op(block, OpLogicalNot, ty, v), nil
		}

		return c.op(block, OpNot, ty, v), nil
	default:
		return 0, internalf("unknown unary operator %d", k.Op)
	}
}

// binaryOps lists the opcode of each operator for float, signed, unsigned
// and bool operands, in that order. Zero means not applicable.
var binaryOps = map[ir.BinaryOperator][4]OpCode{
	ir.BinaryAdd:          {OpFAdd, OpIAdd, OpIAdd, 0},
	ir.BinarySubtract:     {OpFSub, OpISub, OpISub, 0},
	ir.BinaryMultiply:     {OpFMul, OpIMul, OpIMul, 0},
	ir.BinaryDivide:       {OpFDiv, OpSDiv, OpUDiv, 0},
	ir.BinaryModulo:       {OpFRem, OpSRem, OpUMod, 0},
	ir.BinaryEqual:        {OpFOrdEqual, OpIEqual, OpIEqual, OpLogicalEqual},
	ir.BinaryNotEqual:     {OpFUnordNotEqual, OpINotEqual, OpINotEqual, OpLogicalNotEqual},
	ir.BinaryLess:         {OpFOrdLessThan, OpSLessThan, OpULessThan, 0},
	ir.BinaryLessEqual:    {OpFOrdLessThanEqual, OpSLessThanEqual, OpULessThanEqual, 0},
	ir.BinaryGreater:      {OpFOrdGreaterThan, OpSGreaterThan, OpUGreaterThan, 0},
	ir.BinaryGreaterEqual: {OpFOrdGreaterThanEqual, OpSGreaterThanEqual, OpUGreaterThanEqual, 0},
	ir.BinaryAnd:          {0, OpBitwiseAnd, OpBitwiseAnd, OpLogicalAnd},
	ir.BinaryExclusiveOr:  {0, OpBitwiseXor, OpBitwiseXor, OpLogicalNotEqual},
	ir.BinaryInclusiveOr:  {0, OpBitwiseOr, OpBitwiseOr, OpLogicalOr},
	ir.BinaryLogicalAnd:   {0, 0, 0, OpLogicalAnd},
	ir.BinaryLogicalOr:    {0, 0, 0, OpLogicalOr},
	ir.BinaryShiftLeft:    {0, OpShiftLeftLogical, OpShiftLeftLogical, 0},
	ir.BinaryShiftRight:   {0, OpShiftRightArithmetic, OpShiftRightLogical, 0},
}

func kindColumn(s ir.ScalarType) int {
	switch s.Kind {
	case ir.ScalarFloat:
		return 0
	case ir.ScalarSint:
		return 1
	case ir.ScalarUint:
		return 2
	default:
		return 3
	}
}

//nolint:gocyclo,cyclop // matrix and mixed shape cases
func (c *blockContext) writeBinary(block *Block, h ir.ExpressionHandle, k ir.ExprBinary) (uint32, error) {
	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	left, err := c.expr(k.Left)
	if err != nil {
		return 0, err
	}

	right, err := c.expr(k.Right)
	if err != nil {
		return 0, err
	}

	li, ri := c.inner(k.Left), c.inner(k.Right)
	ls, _ := ir.ScalarOf(li)

	if k.Op == ir.BinaryMultiply {
		switch l := li.(type) {
		case ir.MatrixType:
			switch ri.(type) {
			case ir.MatrixType:
				return c.op(block, OpMatrixTimesMatrix, ty, left, right), nil
			case ir.VectorType:
				return c.op(block, OpMatrixTimesVector, ty, left, right), nil
			case ir.ScalarType:
				return c.op(block, OpMatrixTimesScalar, ty, left, right), nil
			}
		case ir.VectorType:
			switch ri.(type) {
			case ir.MatrixType:
				return c.op(block, OpVectorTimesMatrix, ty, left, right), nil
			case ir.ScalarType:
				if ls.Kind == ir.ScalarFloat {
					return c.op(block, OpVectorTimesScalar, ty, left, right), nil
				}

				right = c.splat(block, ty, right, l.Size)
			}
		case ir.ScalarType:
			switch r := ri.(type) {
			case ir.MatrixType:
				return c.op(block, OpMatrixTimesScalar, ty, right, left), nil
			case ir.VectorType:
				if ls.Kind == ir.ScalarFloat {
					return c.op(block, OpVectorTimesScalar, ty, right, left), nil
				}

				left = c.splat(block, ty, left, r.Size)
			}
		}
	}

	// matrices add and subtract column by column
	if m, ok := li.(ir.MatrixType); ok && (k.Op == ir.BinaryAdd || k.Op == ir.BinarySubtract) {
		op := OpFAdd
		if k.Op == ir.BinarySubtract {
			op = OpFSub
		}

		col := c.b.vectorTypeID(m.Scalar, m.Rows)
		cols := make([]uint32, m.Columns)

		for i := range cols {
			a := c.op(block, OpCompositeExtract, col, left, uint32(i))
			b := c.op(block, OpCompositeExtract, col, right, uint32(i))
			cols[i] = c.op(block, op, col, a, b)
		}

		return c.op(block, OpCompositeConstruct, ty, cols...), nil
	}

	// a scalar mixed with a vector is broadcast first
	if k.Op != ir.BinaryMultiply {
		lv, lok := li.(ir.VectorType)
		rv, rok := ri.(ir.VectorType)

		switch {
		case lok && !rok:
			right = c.splat(block, c.b.vectorTypeID(lv.Scalar, lv.Size), right, lv.Size)
		case rok && !lok:
			left = c.splat(block, c.b.vectorTypeID(rv.Scalar, rv.Size), left, rv.Size)
		}
	}

	ops, ok := binaryOps[k.Op]
	if !ok {
		return 0, internalf("unknown binary operator %d", k.Op)
	}

	op := ops[kindColumn(ls)]
	if op == 0 {
		return 0, internalf("binary operator %d on %v", k.Op, ls)
	}

	return c.op(block, op, ty, left, right), nil
}

func (c *blockContext) writeSelect(block *Block, h ir.ExpressionHandle, k ir.ExprSelect) (uint32, error) {
	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	cond, err := c.expr(k.Condition)
	if err != nil {
		return 0, err
	}

	accept, err := c.expr(k.Accept)
	if err != nil {
		return 0, err
	}

	reject, err := c.expr(k.Reject)
	if err != nil {
		return 0, err
	}

	// before 1.4 the condition must have as many components as the values
	if v, ok := c.inner(k.Accept).(ir.VectorType); ok && !c.b.options.Version.AtLeast(Version1_4) {
		if _, ok := c.inner(k.Condition).(ir.ScalarType); ok {
			cond = c.splat(block, c.b.vectorTypeID(ir.Bool, v.Size), cond, v.Size)
		}
	}

	return c.op(block, OpSelect, ty, cond, accept, reject), nil
}

var derivativeOps = [3][3]OpCode{
	ir.DerivativeX:     {ir.DerivativeNone: OpDPdx, ir.DerivativeCoarse: OpDPdxCoarse, ir.DerivativeFine: OpDPdxFine},
	ir.DerivativeY:     {ir.DerivativeNone: OpDPdy, ir.DerivativeCoarse: OpDPdyCoarse, ir.DerivativeFine: OpDPdyFine},
	ir.DerivativeWidth: {ir.DerivativeNone: OpFwidth, ir.DerivativeCoarse: OpFwidthCoarse, ir.DerivativeFine: OpFwidthFine},
}

func (c *blockContext) writeDerivative(block *Block, h ir.ExpressionHandle, k ir.ExprDerivative) (uint32, error) {
	if int(k.Axis) >= len(derivativeOps) || int(k.Control) >= len(derivativeOps[0]) {
		return 0, internalf("unknown derivative %d/%d", k.Axis, k.Control)
	}

	if k.Control != ir.DerivativeNone {
		if err := c.b.require(CapabilityDerivativeControl, "fine and coarse derivatives"); err != nil {
			return 0, err
		}
	}

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	v, err := c.expr(k.Expr)
	if err != nil {
		return 0, err
	}

	return c.op(block, derivativeOps[k.Axis][k.Control], ty, v), nil
}

func (c *blockContext) writeRelational(block *Block, h ir.ExpressionHandle, k ir.ExprRelational) (uint32, error) {
	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	v, err := c.expr(k.Argument)
	if err != nil {
		return 0, err
	}

	switch k.Fun {
	case ir.RelationalAll, ir.RelationalAny:
		if _, ok := c.inner(k.Argument).(ir.ScalarType); ok {
			return v, nil
		}

		op := OpAll
		if k.Fun == ir.RelationalAny {
			op = OpAny
		}

		return c.op(block, op, ty, v), nil
	case ir.RelationalIsNan:
		return c.op(block, OpIsNan, ty, v), nil
	case ir.RelationalIsInf:
		return c.op(block, OpIsInf, ty, v), nil
	default:
		return 0, internalf("unknown relational function %d", k.Fun)
	}
}
