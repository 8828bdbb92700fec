package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

func (c *blockContext) imageOf(h ir.ExpressionHandle) (ir.ImageType, error) {
	img, ok := c.inner(h).(ir.ImageType)
	if !ok {
		return ir.ImageType{}, internalf("expression %d is not an image", h)
	}

	return img, nil
}

// imageCoordinate appends the array layer, if any, to the coordinate.
func (c *blockContext) imageCoordinate(block *Block, coord ir.ExpressionHandle, arrayIndex *ir.ExpressionHandle) (uint32, error) {
	b := c.b

	v, err := c.expr(coord)
	if err != nil {
		return 0, err
	}

	if arrayIndex == nil {
		return v, nil
	}

	ci := c.inner(coord)

	s, ok := ir.ScalarOf(ci)
	if !ok {
		return 0, internalf("image coordinate %d is not numeric", coord)
	}

	n := 1
	if vec, ok := ci.(ir.VectorType); ok {
		n = int(vec.Size)
	}

	idx, err := c.expr(*arrayIndex)
	if err != nil {
		return 0, err
	}

	is, _ := ir.ScalarOf(c.inner(*arrayIndex))

	switch {
	case s.Kind == ir.ScalarFloat && is.Kind == ir.ScalarSint:
		idx = c.op(block, OpConvertSToF, b.scalarTypeID(s), idx)
	case s.Kind == ir.ScalarFloat:
		idx = c.op(block, OpConvertUToF, b.scalarTypeID(s), idx)
	case is.Kind != s.Kind:
		idx = c.op(block, OpBitcast, b.scalarTypeID(s), idx)
	}

	return c.op(block, OpCompositeConstruct, b.vectorTypeID(s, ir.VectorSize(n+1)), v, idx), nil
}

//nolint:gocyclo,cyclop // sample level and depth variants
func (c *blockContext) writeImageSample(block *Block, h ir.ExpressionHandle, k ir.ExprImageSample) (uint32, error) {
	b := c.b

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	img, err := c.imageOf(k.Image)
	if err != nil {
		return 0, err
	}

	imageType, err := b.imageTypeID(img)
	if err != nil {
		return 0, err
	}

	image, err := c.expr(k.Image)
	if err != nil {
		return 0, err
	}

	sampler, err := c.expr(k.Sampler)
	if err != nil {
		return 0, err
	}

	coord, err := c.imageCoordinate(block, k.Coordinate, k.ArrayIndex)
	if err != nil {
		return 0, err
	}

	sampled := c.op(block, OpSampledImage, b.sampledImageTypeID(imageType), image, sampler)

	explicit := true

	var operands []uint32

	switch lv := k.Level.(type) {
	case ir.SampleLevelAuto:
		explicit = false
	case ir.SampleLevelZero:
		operands = []uint32{ImageOperandsLod, b.constFloat(ir.F32, 0)}
	case ir.SampleLevelExact:
		level, err := c.expr(lv.Level)
		if err != nil {
			return 0, err
		}

		if s, ok := ir.ScalarOf(c.inner(lv.Level)); ok && s.Kind != ir.ScalarFloat {
			op := OpConvertUToF
			if s.Kind == ir.ScalarSint {
				op = OpConvertSToF
			}

			level = c.op(block, op, b.scalarTypeID(ir.F32), level)
		}

		operands = []uint32{ImageOperandsLod, level}
	case ir.SampleLevelBias:
		bias, err := c.expr(lv.Bias)
		if err != nil {
			return 0, err
		}

		explicit = false
		operands = []uint32{ImageOperandsBias, bias}
	case ir.SampleLevelGradient:
		x, err := c.expr(lv.X)
		if err != nil {
			return 0, err
		}

		y, err := c.expr(lv.Y)
		if err != nil {
			return 0, err
		}

		operands = []uint32{ImageOperandsGrad, x, y}
	default:
		return 0, internalf("unknown sample level %T", lv)
	}

	if k.DepthRef != nil {
		dref, err := c.expr(*k.DepthRef)
		if err != nil {
			return 0, err
		}

		op := OpImageSampleDrefImplicitLod
		if explicit {
			op = OpImageSampleDrefExplicitLod
		}

		return c.op(block, op, ty, append([]uint32{sampled, coord, dref}, operands...)...), nil
	}

	op := OpImageSampleImplicitLod
	if explicit {
		op = OpImageSampleExplicitLod
	}

	if img.Class != ir.ImageClassDepth {
		return c.op(block, op, ty, append([]uint32{sampled, coord}, operands...)...), nil
	}

	// depth textures sample to a vec4 whose first component is the depth
	texel := c.op(block, op, b.vectorTypeID(ir.F32, ir.Vec4), append([]uint32{sampled, coord}, operands...)...)

	return c.op(block, OpCompositeExtract, ty, texel, 0), nil
}

func (c *blockContext) writeImageLoad(block *Block, h ir.ExpressionHandle, k ir.ExprImageLoad) (uint32, error) {
	b := c.b

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	img, err := c.imageOf(k.Image)
	if err != nil {
		return 0, err
	}

	image, err := c.expr(k.Image)
	if err != nil {
		return 0, err
	}

	coord, err := c.imageCoordinate(block, k.Coordinate, k.ArrayIndex)
	if err != nil {
		return 0, err
	}

	if img.Class == ir.ImageClassStorage {
		return c.op(block, OpImageRead, ty, image, coord), nil
	}

	words := []uint32{image, coord}

	switch {
	case k.Sample != nil:
		sample, err := c.expr(*k.Sample)
		if err != nil {
			return 0, err
		}

		words = append(words, ImageOperandsSample, sample)
	case k.Level != nil:
		level, err := c.expr(*k.Level)
		if err != nil {
			return 0, err
		}

		words = append(words, ImageOperandsLod, level)
	case !img.Multisampled:
		words = append(words, ImageOperandsLod, b.constU32(0))
	}

	if img.Class != ir.ImageClassDepth {
		return c.op(block, OpImageFetch, ty, words...), nil
	}

	texel := c.op(block, OpImageFetch, b.vectorTypeID(ir.F32, ir.Vec4), words...)

	return c.op(block, OpCompositeExtract, ty, texel, 0), nil
}

func (c *blockContext) writeImageStore(block *Block, s ir.StmtImageStore) error {
	image, err := c.expr(s.Image)
	if err != nil {
		return err
	}

	coord, err := c.imageCoordinate(block, s.Coordinate, s.ArrayIndex)
	if err != nil {
		return err
	}

	value, err := c.expr(s.Value)
	if err != nil {
		return err
	}

	block.push(OpImageWrite, image, coord, value)

	return nil
}

// imageDims is the number of coordinates addressing a texel, without the layer.
func imageDims(d ir.ImageDimension) int {
	switch d {
	case ir.Dim1D:
		return 1
	case ir.Dim3D:
		return 3
	default:
		return 2
	}
}

//nolint:gocyclo,cyclop // query kinds
func (c *blockContext) writeImageQuery(block *Block, h ir.ExpressionHandle, k ir.ExprImageQuery) (uint32, error) {
	b := c.b

	if err := b.require(CapabilityImageQuery, "image queries"); err != nil {
		return 0, err
	}

	ty, err := c.resultType(h)
	if err != nil {
		return 0, err
	}

	img, err := c.imageOf(k.Image)
	if err != nil {
		return 0, err
	}

	image, err := c.expr(k.Image)
	if err != nil {
		return 0, err
	}

	dims := imageDims(img.Dim)
	full := dims
	if img.Arrayed {
		full++
	}

	u32 := b.u32TypeID()

	// size queries the full extent, layers included
	size := func(level *ir.ExpressionHandle) (uint32, error) {
		sizeType := b.vectorTypeID(ir.U32, ir.VectorSize(full))
		if full == 1 {
			sizeType = u32
		}

		if img.Multisampled || img.Class == ir.ImageClassStorage {
			return c.op(block, OpImageQuerySize, sizeType, image), nil
		}

		lod := b.constU32(0)
		if level != nil {
			var err error
			if lod, err = c.expr(*level); err != nil {
				return 0, err
			}
		}

		return c.op(block, OpImageQuerySizeLod, sizeType, image, lod), nil
	}

	switch q := k.Query.(type) {
	case ir.ImageQuerySize:
		v, err := size(q.Level)
		if err != nil {
			return 0, err
		}

		if !img.Arrayed {
			return v, nil
		}

		if dims == 1 {
			return c.op(block, OpCompositeExtract, ty, v, 0), nil
		}

		words := []uint32{v, v}
		for i := 0; i < dims; i++ {
			words = append(words, uint32(i))
		}

		return c.op(block, OpVectorShuffle, ty, words...), nil

	case ir.ImageQueryNumLayers:
		v, err := size(nil)
		if err != nil {
			return 0, err
		}

		return c.op(block, OpCompositeExtract, ty, v, uint32(dims)), nil

	case ir.ImageQueryNumLevels:
		return c.op(block, OpImageQueryLevels, ty, image), nil

	case ir.ImageQueryNumSamples:
		return c.op(block, OpImageQuerySamples, ty, image), nil

	default:
		return 0, internalf("unknown image query %T", q)
	}
}
