package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

// floatToIntBounds are the float values closest to the integer range
// limits that convert without overflow.
var floatToIntBounds = map[[2]uint8]map[ir.ScalarKind][2]float64{
	{4, 4}: {
		ir.ScalarSint: {-2147483648, 2147483520},
		ir.ScalarUint: {0, 4294967040},
	},
	{8, 4}: {
		ir.ScalarSint: {-2147483648, 2147483647},
		ir.ScalarUint: {0, 4294967295},
	},
}

//nolint:gocyclo,cyclop // conversion matrix
func (c *blockContext) writeAs(block *Block, h ir.ExpressionHandle, k ir.ExprAs) (uint32, error) {
	b := c.b

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	v, err := c.expr(k.Expr)
	if err != nil {
		return 0, err
	}

	srcInner := c.inner(k.Expr)

	src, ok := ir.ScalarOf(srcInner)
	if !ok {
		return 0, internalf("conversion of non-numeric %T", srcInner)
	}

	if k.Convert == nil {
		if src.Kind == k.Kind {
			return v, nil
		}

		return c.op(block, OpBitcast, ty, v), nil
	}

	dst := ir.ScalarType{Kind: k.Kind, Width: *k.Convert}
	if dst == src || (src.Kind == ir.ScalarBool && dst.Kind == ir.ScalarBool) {
		return v, nil
	}

	var size ir.VectorSize
	if vec, ok := srcInner.(ir.VectorType); ok {
		size = vec.Size
	}

	switch {
	case src.Kind == ir.ScalarBool:
		one := b.splatConstant(dst, size, b.constNumber(dst, 1))
		zero := b.splatConstant(dst, size, b.constNumber(dst, 0))

		return c.op(block, OpSelect, ty, v, one, zero), nil

	case dst.Kind == ir.ScalarBool:
		zero := b.splatConstant(src, size, b.constNumber(src, 0))
		if src.Kind == ir.ScalarFloat {
			return c.op(block, OpFUnordNotEqual, ty, v, zero), nil
		}

		return c.op(block, OpINotEqual, ty, v, zero), nil

	case src.Kind == ir.ScalarFloat && dst.Kind == ir.ScalarFloat:
		if m, ok := srcInner.(ir.MatrixType); ok {
			return c.convertColumns(block, ty, m, dst, v), nil
		}

		return c.op(block, OpFConvert, ty, v), nil

	case src.Kind == ir.ScalarFloat:
		if bounds, ok := floatToIntBounds[[2]uint8{src.Width, dst.Width}][dst.Kind]; ok {
			lo := b.splatConstant(src, size, b.constFloat(src, bounds[0]))
			hi := b.splatConstant(src, size, b.constFloat(src, bounds[1]))
			v = c.ext(block, b.vectorTypeID(src, size), GLSLFClamp, v, lo, hi)
		}

		if dst.Kind == ir.ScalarSint {
			return c.op(block, OpConvertFToS, ty, v), nil
		}

		return c.op(block, OpConvertFToU, ty, v), nil

	case dst.Kind == ir.ScalarFloat:
		if src.Kind == ir.ScalarSint {
			return c.op(block, OpConvertSToF, ty, v), nil
		}

		return c.op(block, OpConvertUToF, ty, v), nil

	case src.Width == dst.Width:
		return c.op(block, OpBitcast, ty, v), nil

	default:
		// resize keeping the source signedness, then reinterpret
		wide := ir.ScalarType{Kind: src.Kind, Width: dst.Width}

		op := OpUConvert
		if src.Kind == ir.ScalarSint {
			op = OpSConvert
		}

		if wide == dst {
			return c.op(block, op, ty, v), nil
		}

		r := c.op(block, op, b.vectorTypeID(wide, size), v)

		return c.op(block, OpBitcast, ty, r), nil
	}
}

func (c *blockContext) convertColumns(block *Block, ty uint32, m ir.MatrixType, dst ir.ScalarType, v uint32) uint32 {
	b := c.b

	from := b.vectorTypeID(m.Scalar, m.Rows)
	to := b.vectorTypeID(dst, m.Rows)

	cols := make([]uint32, m.Columns)
	for i := range cols {
		col := c.op(block, OpCompositeExtract, from, v, uint32(i))
		cols[i] = c.op(block, OpFConvert, to, col)
	}

	return c.op(block, OpCompositeConstruct, ty, cols...)
}
