package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

// glslInst holds the GLSL.std.450 instruction of a math function per
// operand kind. Zero means the kind is not accepted.
type glslInst struct {
	float, sint, uint uint32
}

var mathInsts = map[ir.MathFunction]glslInst{
	ir.MathAbs:   {GLSLFAbs, GLSLSAbs, 0},
	ir.MathMin:   {GLSLFMin, GLSLSMin, GLSLUMin},
	ir.MathMax:   {GLSLFMax, GLSLSMax, GLSLUMax},
	ir.MathClamp: {GLSLFClamp, GLSLSClamp, GLSLUClamp},

	ir.MathCos:     {float: GLSLCos},
	ir.MathCosh:    {float: GLSLCosh},
	ir.MathSin:     {float: GLSLSin},
	ir.MathSinh:    {float: GLSLSinh},
	ir.MathTan:     {float: GLSLTan},
	ir.MathTanh:    {float: GLSLTanh},
	ir.MathAcos:    {float: GLSLAcos},
	ir.MathAsin:    {float: GLSLAsin},
	ir.MathAtan:    {float: GLSLAtan},
	ir.MathAtan2:   {float: GLSLAtan2},
	ir.MathAsinh:   {float: GLSLAsinh},
	ir.MathAcosh:   {float: GLSLAcosh},
	ir.MathAtanh:   {float: GLSLAtanh},
	ir.MathRadians: {float: GLSLRadians},
	ir.MathDegrees: {float: GLSLDegrees},

	ir.MathCeil:  {float: GLSLCeil},
	ir.MathFloor: {float: GLSLFloor},
	ir.MathRound: {float: GLSLRoundEven},
	ir.MathFract: {float: GLSLFract},
	ir.MathTrunc: {float: GLSLTrunc},
	ir.MathLdexp: {float: GLSLLdexp},

	ir.MathExp:  {float: GLSLExp},
	ir.MathExp2: {float: GLSLExp2},
	ir.MathLog:  {float: GLSLLog},
	ir.MathLog2: {float: GLSLLog2},
	ir.MathPow:  {float: GLSLPow},

	ir.MathCross:       {float: GLSLCross},
	ir.MathDistance:    {float: GLSLDistance},
	ir.MathLength:      {float: GLSLLength},
	ir.MathNormalize:   {float: GLSLNormalize},
	ir.MathFaceForward: {float: GLSLFaceForward},
	ir.MathReflect:     {float: GLSLReflect},
	ir.MathRefract:     {float: GLSLRefract},

	ir.MathSign:        {GLSLFSign, GLSLSSign, 0},
	ir.MathFma:         {float: GLSLFma},
	ir.MathMix:         {float: GLSLFMix},
	ir.MathStep:        {float: GLSLStep},
	ir.MathSmoothStep:  {float: GLSLSmoothStep},
	ir.MathSqrt:        {float: GLSLSqrt},
	ir.MathInverseSqrt: {float: GLSLInverseSqrt},
	ir.MathDeterminant: {float: GLSLDeterminant},

	ir.MathFirstTrailingBit: {0, GLSLFindILsb, GLSLFindILsb},
	ir.MathFirstLeadingBit:  {0, GLSLFindSMsb, GLSLFindUMsb},

	ir.MathPack4x8snorm:  {float: GLSLPackSnorm4x8},
	ir.MathPack4x8unorm:  {float: GLSLPackUnorm4x8},
	ir.MathPack2x16snorm: {float: GLSLPackSnorm2x16},
	ir.MathPack2x16unorm: {float: GLSLPackUnorm2x16},
	ir.MathPack2x16float: {float: GLSLPackHalf2x16},

	ir.MathUnpack4x8snorm:  {uint: GLSLUnpackSnorm4x8},
	ir.MathUnpack4x8unorm:  {uint: GLSLUnpackUnorm4x8},
	ir.MathUnpack2x16snorm: {uint: GLSLUnpackSnorm2x16},
	ir.MathUnpack2x16unorm: {uint: GLSLUnpackUnorm2x16},
	ir.MathUnpack2x16float: {uint: GLSLUnpackHalf2x16},
}

//nolint:gocyclo,cyclop // functions without a direct instruction
func (c *blockContext) writeMath(block *Block, h ir.ExpressionHandle, k ir.ExprMath) (uint32, error) {
	b := c.b

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	args := []ir.ExpressionHandle{k.Arg}
	for _, a := range []*ir.ExpressionHandle{k.Arg1, k.Arg2, k.Arg3} {
		if a != nil {
			args = append(args, *a)
		}
	}

	ops, err := c.exprs(args)
	if err != nil {
		return 0, err
	}

	argInner := c.inner(k.Arg)
	s, _ := ir.ScalarOf(argInner)

	var size ir.VectorSize
	if v, ok := argInner.(ir.VectorType); ok {
		size = v.Size
	}

	switch k.Fun {
	case ir.MathAbs:
		if s.Kind == ir.ScalarUint {
			return ops[0], nil
		}

	case ir.MathSaturate:
		zero := b.splatConstant(s, size, b.constFloat(s, 0))
		one := b.splatConstant(s, size, b.constFloat(s, 1))

		return c.ext(block, ty, GLSLFClamp, ops[0], zero, one), nil

	case ir.MathDot:
		if s.Kind == ir.ScalarFloat {
			return c.op(block, OpDot, ty, ops[0], ops[1]), nil
		}

		prod := c.op(block, OpIMul, b.vectorTypeID(s, size), ops[0], ops[1])
		sum := c.op(block, OpCompositeExtract, ty, prod, 0)

		for i := uint32(1); i < uint32(size); i++ {
			comp := c.op(block, OpCompositeExtract, ty, prod, i)
			sum = c.op(block, OpIAdd, ty, sum, comp)
		}

		return sum, nil

	case ir.MathTranspose:
		return c.op(block, OpTranspose, ty, ops[0]), nil

	case ir.MathMix:
		if _, scalar := c.inner(args[2]).(ir.ScalarType); scalar && size != 0 {
			ops[2] = c.splat(block, ty, ops[2], size)
		}

	case ir.MathCountTrailingZeros:
		return c.withUnsigned(block, ty, s, size, ops[0], func(u32 uint32, x uint32) uint32 {
			lsb := c.ext(block, u32, GLSLFindILsb, x)
			return c.ext(block, u32, GLSLUMin, lsb, b.splatConstant(ir.U32, size, b.constU32(32)))
		}), nil

	case ir.MathCountLeadingZeros:
		return c.withUnsigned(block, ty, s, size, ops[0], func(u32 uint32, x uint32) uint32 {
			msb := c.ext(block, u32, GLSLFindUMsb, x)
			return c.op(block, OpISub, u32, b.splatConstant(ir.U32, size, b.constU32(31)), msb)
		}), nil

	case ir.MathCountOneBits:
		return c.op(block, OpBitCount, ty, ops[0]), nil

	case ir.MathReverseBits:
		return c.op(block, OpBitReverse, ty, ops[0]), nil

	case ir.MathExtractBits:
		offset, count := c.clampBitRange(block, ops[1], ops[2])

		op := OpBitFieldUExtract
		if s.Kind == ir.ScalarSint {
			op = OpBitFieldSExtract
		}

		return c.op(block, op, ty, ops[0], offset, count), nil

	case ir.MathInsertBits:
		offset, count := c.clampBitRange(block, ops[2], ops[3])

		return c.op(block, OpBitFieldInsert, ty, ops[0], ops[1], offset, count), nil

	case ir.MathPack4xI8, ir.MathPack4xU8:
		return c.writePack4x8(block, ty, s, ops[0]), nil

	case ir.MathUnpack4xI8, ir.MathUnpack4xU8:
		return c.writeUnpack4x8(block, ty, k.Fun == ir.MathUnpack4xI8, ops[0]), nil
	}

	inst, ok := mathInsts[k.Fun]
	if !ok {
		return 0, unimplementedf("math function %d", k.Fun)
	}

	var id uint32

	switch s.Kind {
	case ir.ScalarFloat:
		id = inst.float
	case ir.ScalarSint:
		id = inst.sint
	case ir.ScalarUint:
		id = inst.uint
	}

	if id == 0 {
		return 0, internalf("math function %d on %v", k.Fun, s)
	}

	return c.ext(block, ty, id, ops...), nil
}

// withUnsigned runs f on x viewed as unsigned and converts the result back.
func (c *blockContext) withUnsigned(block *Block, ty uint32, s ir.ScalarType, size ir.VectorSize, x uint32, f func(u32, x uint32) uint32) uint32 {
	if s.Kind == ir.ScalarUint {
		return f(ty, x)
	}

	u32 := c.b.vectorTypeID(ir.U32, size)
	r := f(u32, c.op(block, OpBitcast, u32, x))

	return c.op(block, OpBitcast, ty, r)
}

// clampBitRange limits a bit range to the 32 bits of the operand.
func (c *blockContext) clampBitRange(block *Block, offset, count uint32) (uint32, uint32) {
	b := c.b
	u32 := b.u32TypeID()
	width := b.constU32(32)

	offset = c.ext(block, u32, GLSLUMin, offset, width)
	rest := c.op(block, OpISub, u32, width, offset)
	count = c.ext(block, u32, GLSLUMin, count, rest)

	return offset, count
}

// writePack4x8 packs the low bytes of a vec4 of 32-bit integers into a u32.
func (c *blockContext) writePack4x8(block *Block, ty uint32, s ir.ScalarType, v uint32) uint32 {
	b := c.b

	// with 8-bit integers allowed explicitly, narrow and reinterpret
	if b.options.allows(CapabilityInt8) && b.options.Capabilities != nil {
		if b.require(CapabilityInt8, "pack4x8") == nil {
			narrow := ir.ScalarType{Kind: s.Kind, Width: 1}

			op := OpUConvert
			if s.Kind == ir.ScalarSint {
				op = OpSConvert
			}

			bytes := c.op(block, op, b.vectorTypeID(narrow, ir.Vec4), v)

			return c.op(block, OpBitcast, ty, bytes)
		}
	}

	elem := b.scalarTypeID(s)
	r := b.constU32(0)

	for i := uint32(0); i < 4; i++ {
		comp := c.op(block, OpCompositeExtract, elem, v, i)
		if s.Kind == ir.ScalarSint {
			comp = c.op(block, OpBitcast, ty, comp)
		}

		r = c.op(block, OpBitFieldInsert, ty, r, comp, b.constU32(8*i), b.constU32(8))
	}

	return r
}

// writeUnpack4x8 splits a u32 into four sign- or zero-extended bytes.
func (c *blockContext) writeUnpack4x8(block *Block, ty uint32, signed bool, v uint32) uint32 {
	b := c.b

	elem := b.u32TypeID()
	op := OpBitFieldUExtract

	if signed {
		elem = b.scalarTypeID(ir.I32)
		op = OpBitFieldSExtract
		v = c.op(block, OpBitcast, elem, v)
	}

	comps := make([]uint32, 4)
	for i := range comps {
		comps[i] = c.op(block, op, elem, v, b.constU32(uint32(8*i)), b.constU32(8))
	}

	return c.op(block, OpCompositeConstruct, ty, comps...)
}
