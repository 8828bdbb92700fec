package spirv

import (
	"math"
	"strconv"
	"strings"

	"github.com/gogpu/wgslc/ir"
)

type localKind uint8

const (
	localVoid localKind = iota
	localScalar
	localVector
	localMatrix
	localPointer
	localImage
	localSampler
	localSampledImage
)

// localType is the structural key of a non-aggregate SPIR-V type.
// SPIR-V forbids declaring two such types with identical operands,
// so every one of them goes through the lookup table.
type localType struct {
	kind   localKind
	scalar ir.ScalarType
	size   ir.VectorSize // vector size, matrix columns
	rows   ir.VectorSize
	base   uint32 // pointee or image type
	class  StorageClass
	image  ir.ImageType
}

type scalarKey struct {
	typeID uint32
	bits   uint64
}

// storageClass maps an address space to a storage class.
func (b *Backend) storageClass(space ir.AddressSpace) StorageClass {
	switch space {
	case ir.SpacePrivate:
		return StorageClassPrivate
	case ir.SpaceWorkGroup:
		return StorageClassWorkgroup
	case ir.SpaceUniform:
		return StorageClassUniform
	case ir.SpaceStorage:
		if !b.options.Version.AtLeast(Version1_3) {
			b.extensions[ExtStorageBufferStorageClass] = struct{}{}
		}
		return StorageClassStorageBuffer
	case ir.SpacePushConstant:
		return StorageClassPushConstant
	case ir.SpaceHandle:
		return StorageClassUniformConstant
	default:
		return StorageClassFunction
	}
}

// checkScalar records the capabilities a scalar type needs.
func (b *Backend) checkScalar(s ir.ScalarType) error {
	if s.IsAbstract() {
		return internalf("abstract type %v reached the backend", s)
	}

	switch {
	case s.Kind == ir.ScalarFloat && s.Width == 2:
		return b.require(CapabilityFloat16, "f16")
	case s.Kind == ir.ScalarFloat && s.Width == 8:
		return b.require(CapabilityFloat64, "f64")
	case s.Kind != ir.ScalarBool && s.Kind != ir.ScalarFloat && s.Width == 8:
		return b.require(CapabilityInt64, s.String())
	case s.Kind != ir.ScalarBool && s.Kind != ir.ScalarFloat && s.Width == 1:
		return b.require(CapabilityInt8, s.String())
	}

	return nil
}

// localTypeID checks capabilities and returns the id of lt.
func (b *Backend) localTypeID(lt localType) (uint32, error) {
	switch lt.kind {
	case localScalar, localVector, localMatrix:
		if err := b.checkScalar(lt.scalar); err != nil {
			return 0, err
		}
	}

	return b.emitLocal(lt), nil
}

// emitLocal returns the id of lt, declaring it on first use.
// Image types are declared by imageTypeID.
func (b *Backend) emitLocal(lt localType) uint32 {
	if id, ok := b.lookupType[lt]; ok {
		return id
	}

	var id uint32

	switch lt.kind {
	case localVoid:
		id = b.builder.AddTypeVoid()
	case localScalar:
		switch lt.scalar.Kind {
		case ir.ScalarBool:
			id = b.builder.AddTypeBool()
		case ir.ScalarFloat:
			id = b.builder.AddTypeFloat(uint32(lt.scalar.Width) * 8)
		default:
			id = b.builder.AddTypeInt(uint32(lt.scalar.Width)*8, lt.scalar.Kind == ir.ScalarSint)
		}
	case localVector:
		comp := b.emitLocal(localType{kind: localScalar, scalar: lt.scalar})
		id = b.builder.AddTypeVector(comp, uint32(lt.size))
	case localMatrix:
		col := b.emitLocal(localType{kind: localVector, scalar: lt.scalar, size: lt.rows})
		id = b.builder.AddTypeMatrix(col, uint32(lt.size))
	case localPointer:
		id = b.builder.AddTypePointer(lt.class, lt.base)
	case localSampler:
		id = b.builder.AddTypeSampler()
	case localSampledImage:
		id = b.builder.AddTypeSampledImage(lt.base)
	}

	b.lookupType[lt] = id

	return id
}

func (b *Backend) voidTypeID() uint32 { return b.emitLocal(localType{kind: localVoid}) }

func (b *Backend) scalarTypeID(s ir.ScalarType) uint32 {
	return b.emitLocal(localType{kind: localScalar, scalar: s})
}

// vectorTypeID returns a vector type, or the scalar type when size is zero.
func (b *Backend) vectorTypeID(s ir.ScalarType, size ir.VectorSize) uint32 {
	if size == 0 {
		return b.scalarTypeID(s)
	}

	return b.emitLocal(localType{kind: localVector, scalar: s, size: size})
}

func (b *Backend) pointerTypeID(base uint32, class StorageClass) uint32 {
	return b.emitLocal(localType{kind: localPointer, base: base, class: class})
}

func (b *Backend) u32TypeID() uint32  { return b.scalarTypeID(ir.U32) }
func (b *Backend) boolTypeID() uint32 { return b.scalarTypeID(ir.Bool) }

// typeID returns the id of an arena type, declaring it on first use.
//
//nolint:gocyclo,cyclop // one case per aggregate
func (b *Backend) typeID(h ir.TypeHandle) (uint32, error) {
	if id, ok := b.typeIDs[h]; ok {
		return id, nil
	}

	if int(h) >= len(b.module.Types) {
		return 0, internalf("type handle %d out of range", h)
	}

	ty := &b.module.Types[h]

	var id uint32

	switch t := ty.Inner.(type) {
	case ir.ArrayType:
		elem, err := b.typeID(t.Base)
		if err != nil {
			return 0, err
		}

		if t.Size.IsDynamic() {
			id = b.builder.AddTypeRuntimeArray(elem)
		} else {
			id = b.builder.AddTypeArray(elem, b.constU32(t.Size.Constant))
		}

		if t.Stride != 0 {
			b.builder.AddDecorate(id, DecorationArrayStride, t.Stride)
		}

	case ir.StructType:
		members := make([]uint32, len(t.Members))
		for i, m := range t.Members {
			mid, err := b.typeID(m.Type)
			if err != nil {
				return 0, err
			}
			members[i] = mid
		}

		id = b.builder.AddTypeStruct(members...)

		for i, m := range t.Members {
			b.builder.AddMemberDecorate(id, uint32(i), DecorationOffset, m.Offset)

			if mat, ok := b.matrixOf(m.Type); ok {
				b.builder.AddMemberDecorate(id, uint32(i), DecorationColMajor)
				b.builder.AddMemberDecorate(id, uint32(i), DecorationMatrixStride, matrixStride(mat))
			}

			if b.options.Debug && m.Name != "" {
				b.builder.AddMemberName(id, uint32(i), m.Name)
			}
		}

		if b.options.Debug && ty.Name != "" {
			b.builder.AddName(id, ty.Name)
		}

	default:
		var err error

		id, err = b.innerTypeID(ty.Inner)
		if err != nil {
			return 0, err
		}
	}

	b.typeIDs[h] = id

	return id, nil
}

// innerTypeID returns the id of a non-aggregate type.
func (b *Backend) innerTypeID(inner ir.TypeInner) (uint32, error) {
	switch t := inner.(type) {
	case ir.ScalarType:
		return b.localTypeID(localType{kind: localScalar, scalar: t})
	case ir.VectorType:
		return b.localTypeID(localType{kind: localVector, scalar: t.Scalar, size: t.Size})
	case ir.MatrixType:
		return b.localTypeID(localType{kind: localMatrix, scalar: t.Scalar, size: t.Columns, rows: t.Rows})
	case ir.AtomicType:
		if t.Scalar.Width == 8 {
			if err := b.require(CapabilityInt64Atomics, "64-bit atomics"); err != nil {
				return 0, err
			}
		}

		return b.localTypeID(localType{kind: localScalar, scalar: t.Scalar})
	case ir.PointerType:
		base, err := b.typeID(t.Base)
		if err != nil {
			return 0, err
		}

		return b.pointerTypeID(base, b.storageClass(t.Space)), nil
	case ir.ValuePointerType:
		lt := localType{kind: localScalar, scalar: t.Scalar}
		if t.Size != 0 {
			lt = localType{kind: localVector, scalar: t.Scalar, size: t.Size}
		}

		base, err := b.localTypeID(lt)
		if err != nil {
			return 0, err
		}

		return b.pointerTypeID(base, b.storageClass(t.Space)), nil
	case ir.ImageType:
		return b.imageTypeID(t)
	case ir.SamplerType:
		return b.emitLocal(localType{kind: localSampler}), nil
	case ir.RayQueryType:
		return 0, unimplementedf("ray query types")
	default:
		return 0, internalf("type %T has no structural id", inner)
	}
}

// resolutionTypeID returns the id of an expression's type.
func (b *Backend) resolutionTypeID(r ir.TypeResolution) (uint32, error) {
	if r.Handle != nil {
		return b.typeID(*r.Handle)
	}

	if r.Value == nil {
		return 0, internalf("unresolved expression type")
	}

	return b.innerTypeID(r.Value)
}

// imageTypeID declares an image type and the capabilities it needs.
//
//nolint:gocyclo,cyclop // capability table
func (b *Backend) imageTypeID(t ir.ImageType) (uint32, error) {
	key := t
	key.StorageAccess = 0

	sampled := uint32(1)
	format := ImageFormatUnknown

	var scalar ir.ScalarType

	switch t.Class {
	case ir.ImageClassSampled:
		scalar = ir.ScalarType{Kind: t.SampledKind, Width: 4}
		key.StorageFormat = 0
	case ir.ImageClassDepth:
		scalar = ir.F32
		key.SampledKind = 0
		key.StorageFormat = 0
	case ir.ImageClassStorage:
		scalar = ir.StorageFormatScalar(t.StorageFormat)
		key.SampledKind = 0
		sampled = 2
		format = imageFormat(t.StorageFormat)
	}

	lt := localType{kind: localImage, image: key}
	if id, ok := b.lookupType[lt]; ok {
		return id, nil
	}

	storage := t.Class == ir.ImageClassStorage

	var reqs []Capability

	if t.Dim == ir.Dim1D {
		if storage {
			reqs = append(reqs, CapabilityImage1D)
		} else {
			reqs = append(reqs, CapabilitySampled1D)
		}
	}

	if t.Dim == ir.DimCube && t.Arrayed {
		if storage {
			reqs = append(reqs, CapabilityImageCubeArray)
		} else {
			reqs = append(reqs, CapabilitySampledCubeArray)
		}
	}

	if t.Multisampled && t.Arrayed {
		reqs = append(reqs, CapabilityImageMSArray)
	}

	if t.Multisampled && storage {
		reqs = append(reqs, CapabilityStorageImageMultisample)
	}

	if storage && t.StorageFormat == ir.StorageFormatRg32Float {
		reqs = append(reqs, CapabilityStorageImageExtendedFormats)
	}

	if storage && format == ImageFormatUnknown {
		if t.StorageAccess&ir.StorageAccessLoad != 0 {
			reqs = append(reqs, CapabilityStorageImageReadWithoutFormat)
		}
		if t.StorageAccess&ir.StorageAccessStore != 0 {
			reqs = append(reqs, CapabilityStorageImageWriteWithoutFormat)
		}
	}

	for _, c := range reqs {
		if err := b.require(c, "image type"); err != nil {
			return 0, err
		}
	}

	id := b.builder.AddTypeImage(b.scalarTypeID(scalar), imageDim(t.Dim),
		t.Class == ir.ImageClassDepth, t.Arrayed, t.Multisampled, sampled, format)

	b.lookupType[lt] = id

	return id, nil
}

func (b *Backend) sampledImageTypeID(image uint32) uint32 {
	return b.emitLocal(localType{kind: localSampledImage, base: image})
}

func imageDim(d ir.ImageDimension) Dim {
	switch d {
	case ir.Dim1D:
		return Dim1D
	case ir.Dim3D:
		return Dim3D
	case ir.DimCube:
		return DimCube
	default:
		return Dim2D
	}
}

func imageFormat(f ir.StorageFormat) ImageFormat {
	switch f {
	case ir.StorageFormatRgba8Unorm:
		return ImageFormatRgba8
	case ir.StorageFormatRgba8Snorm:
		return ImageFormatRgba8Snorm
	case ir.StorageFormatRgba8Uint:
		return ImageFormatRgba8ui
	case ir.StorageFormatRgba8Sint:
		return ImageFormatRgba8i
	case ir.StorageFormatRgba16Float:
		return ImageFormatRgba16f
	case ir.StorageFormatR32Uint:
		return ImageFormatR32ui
	case ir.StorageFormatR32Sint:
		return ImageFormatR32i
	case ir.StorageFormatR32Float:
		return ImageFormatR32f
	case ir.StorageFormatRg32Float:
		return ImageFormatRg32f
	case ir.StorageFormatRgba32Uint:
		return ImageFormatRgba32ui
	case ir.StorageFormatRgba32Sint:
		return ImageFormatRgba32i
	case ir.StorageFormatRgba32Float:
		return ImageFormatRgba32f
	default:
		return ImageFormatUnknown
	}
}

// matrixOf finds the matrix a struct member holds, looking through arrays.
func (b *Backend) matrixOf(h ir.TypeHandle) (ir.MatrixType, bool) {
	for int(h) < len(b.module.Types) {
		switch t := b.module.Types[h].Inner.(type) {
		case ir.MatrixType:
			return t, true
		case ir.ArrayType:
			h = t.Base
		default:
			return ir.MatrixType{}, false
		}
	}

	return ir.MatrixType{}, false
}

func matrixStride(m ir.MatrixType) uint32 {
	w := uint32(m.Scalar.Width)

	align := w * 4
	if m.Rows == ir.Vec2 {
		align = w * 2
	}

	return ir.RoundUp(w*uint32(m.Rows), align)
}

// functionTypeID returns the id of OpTypeFunction with the given signature.
func (b *Backend) functionTypeID(result uint32, params []uint32) uint32 {
	var sb strings.Builder

	sb.WriteString(strconv.FormatUint(uint64(result), 10))
	for _, p := range params {
		sb.WriteByte(',')
		sb.WriteString(strconv.FormatUint(uint64(p), 10))
	}

	key := sb.String()
	if id, ok := b.functionTypes[key]; ok {
		return id
	}

	id := b.builder.AddTypeFunction(result, params...)
	b.functionTypes[key] = id

	return id
}

// Constants

// scalarConstant returns a constant of scalar type s holding bits.
func (b *Backend) scalarConstant(s ir.ScalarType, bits uint64) uint32 {
	ty := b.scalarTypeID(s)

	key := scalarKey{typeID: ty, bits: bits}
	if id, ok := b.scalarConsts[key]; ok {
		return id
	}

	var id uint32

	switch {
	case s.Kind == ir.ScalarBool:
		id = b.builder.AddConstantBool(ty, bits != 0)
	case s.Width == 8:
		id = b.builder.AddConstant(ty, uint32(bits), uint32(bits>>32))
	default:
		id = b.builder.AddConstant(ty, uint32(bits))
	}

	b.scalarConsts[key] = id

	return id
}

func (b *Backend) constU32(v uint32) uint32 { return b.scalarConstant(ir.U32, uint64(v)) }
func (b *Backend) constBool(v bool) uint32 {
	if v {
		return b.scalarConstant(ir.Bool, 1)
	}

	return b.scalarConstant(ir.Bool, 0)
}

// constFloat returns a float constant of the width of s.
func (b *Backend) constFloat(s ir.ScalarType, v float64) uint32 {
	switch s.Width {
	case 8:
		return b.scalarConstant(s, math.Float64bits(v))
	case 2:
		return b.scalarConstant(s, uint64(float16Bits(float32(v))))
	default:
		return b.scalarConstant(s, uint64(math.Float32bits(float32(v))))
	}
}

// constNumber returns v converted to scalar type s.
func (b *Backend) constNumber(s ir.ScalarType, v int64) uint32 {
	switch s.Kind {
	case ir.ScalarFloat:
		return b.constFloat(s, float64(v))
	case ir.ScalarBool:
		return b.constBool(v != 0)
	default:
		bits := uint64(v)
		if s.Width == 4 {
			bits = uint64(uint32(v))
		}

		return b.scalarConstant(s, bits)
	}
}

// splatConstant broadcasts a scalar constant to a vector of size, if size is set.
func (b *Backend) splatConstant(s ir.ScalarType, size ir.VectorSize, scalar uint32) uint32 {
	if size == 0 {
		return scalar
	}

	comps := make([]uint32, size)
	for i := range comps {
		comps[i] = scalar
	}

	return b.compositeConstant(b.vectorTypeID(s, size), comps)
}

func (b *Backend) nullConstant(ty uint32) uint32 {
	if id, ok := b.nullConsts[ty]; ok {
		return id
	}

	id := b.builder.AddConstantNull(ty)
	b.nullConsts[ty] = id

	return id
}

func (b *Backend) compositeConstant(ty uint32, comps []uint32) uint32 {
	var sb strings.Builder

	sb.WriteString(strconv.FormatUint(uint64(ty), 10))
	for _, c := range comps {
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(uint64(c), 10))
	}

	key := sb.String()
	if id, ok := b.compositeConsts[key]; ok {
		return id
	}

	id := b.builder.AddConstantComposite(ty, comps...)
	b.compositeConsts[key] = id

	return id
}

// literalID returns the constant for a literal.
func (b *Backend) literalID(lit ir.LiteralValue) (uint32, error) {
	s := lit.Scalar()
	if err := b.checkScalar(s); err != nil {
		return 0, err
	}

	switch v := lit.(type) {
	case ir.LiteralF32:
		return b.scalarConstant(s, uint64(math.Float32bits(float32(v)))), nil
	case ir.LiteralF64:
		return b.scalarConstant(s, math.Float64bits(float64(v))), nil
	case ir.LiteralU32:
		return b.scalarConstant(s, uint64(v)), nil
	case ir.LiteralI32:
		return b.scalarConstant(s, uint64(uint32(v))), nil
	case ir.LiteralU64:
		return b.scalarConstant(s, uint64(v)), nil
	case ir.LiteralI64:
		return b.scalarConstant(s, uint64(v)), nil
	case ir.LiteralBool:
		return b.constBool(bool(v)), nil
	default:
		return 0, internalf("literal %T has no concrete type", lit)
	}
}

// constantID returns the id of a module constant.
func (b *Backend) constantID(h ir.ConstantHandle) (uint32, error) {
	if id, ok := b.constantIDs[h]; ok {
		return id, nil
	}

	if int(h) >= len(b.module.Constants) {
		return 0, internalf("constant handle %d out of range", h)
	}

	c := &b.module.Constants[h]

	ty, err := b.typeID(c.Type)
	if err != nil {
		return 0, err
	}

	var id uint32

	switch v := c.Value.(type) {
	case ir.ScalarValue:
		s, ok := ir.ScalarOf(b.module.Types[c.Type].Inner)
		if !ok {
			return 0, internalf("scalar constant %q has type %v", c.Name, b.module.Types[c.Type].Name)
		}

		bits := v.Bits
		if s.Width == 4 {
			bits = uint64(uint32(bits))
		}

		id = b.scalarConstant(s, bits)
	case ir.CompositeValue:
		comps := make([]uint32, len(v.Components))
		for i, ch := range v.Components {
			if comps[i], err = b.constantID(ch); err != nil {
				return 0, err
			}
		}

		id = b.compositeConstant(ty, comps)
	case ir.ZeroConstantValue:
		id = b.nullConstant(ty)
	default:
		return 0, internalf("constant %q has value %T", c.Name, c.Value)
	}

	b.constantIDs[h] = id

	return id, nil
}

// float16Bits converts f to IEEE binary16, rounding to nearest even.
func float16Bits(f float32) uint16 {
	bits := math.Float32bits(f)
	sign := uint16(bits>>16) & 0x8000
	exp := int32(bits>>23&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case bits&0x7fffffff == 0:
		return sign
	case exp >= 0x1f:
		if bits&0x7f800000 == 0x7f800000 && mant != 0 {
			return sign | 0x7e00
		}
		return sign | 0x7c00
	case exp <= 0:
		if exp < -10 {
			return sign
		}

		mant |= 0x800000
		shift := uint32(14 - exp)
		half := mant >> shift
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || rem == mid && half&1 == 1 {
			half++
		}

		return sign | uint16(half)
	}

	half := uint32(exp)<<10 | mant>>13
	rem := mant & 0x1fff
	if rem > 0x1000 || rem == 0x1000 && half&1 == 1 {
		half++
	}

	return sign | uint16(half)
}
