package spirv

import (
	"strconv"
	"strings"

	"tlog.app/go/errors"
)

// Version represents a SPIR-V version.
type Version struct {
	Major uint8
	Minor uint8
}

// Common SPIR-V versions
var (
	Version1_0 = Version{1, 0}
	Version1_1 = Version{1, 1}
	Version1_2 = Version{1, 2}
	Version1_3 = Version{1, 3}
	Version1_4 = Version{1, 4}
	Version1_5 = Version{1, 5}
	Version1_6 = Version{1, 6}
)

// AtLeast reports whether v is the same as or newer than o.
func (v Version) AtLeast(o Version) bool {
	if v.Major != o.Major {
		return v.Major > o.Major
	}

	return v.Minor >= o.Minor
}

func (v Version) String() string {
	return strconv.Itoa(int(v.Major)) + "." + strconv.Itoa(int(v.Minor))
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText parses "major.minor".
func (v *Version) UnmarshalText(text []byte) error {
	major, minor, ok := strings.Cut(string(text), ".")
	if !ok {
		return errors.New("spirv version %q: want major.minor", text)
	}

	ma, err := strconv.ParseUint(major, 10, 8)
	if err != nil {
		return errors.Wrap(err, "spirv version %q", text)
	}

	mi, err := strconv.ParseUint(minor, 10, 8)
	if err != nil {
		return errors.Wrap(err, "spirv version %q", text)
	}

	nv := Version{uint8(ma), uint8(mi)}
	if ma != 1 || mi > 6 {
		return errors.New("spirv version %v is not supported", nv)
	}

	*v = nv

	return nil
}

// SPIR-V magic number and constants
const (
	MagicNumber = 0x07230203
	GeneratorID = 0x00000000 // Unregistered generator
)

// Capability represents a SPIR-V capability.
type Capability uint32

const (
	CapabilityMatrix                         Capability = 0
	CapabilityShader                         Capability = 1
	CapabilityFloat16                        Capability = 9
	CapabilityFloat64                        Capability = 10
	CapabilityInt64                          Capability = 11
	CapabilityInt64Atomics                   Capability = 12
	CapabilityInt16                          Capability = 22
	CapabilityStorageImageMultisample        Capability = 27
	CapabilityClipDistance                   Capability = 32
	CapabilityImageCubeArray                 Capability = 34
	CapabilitySampleRateShading              Capability = 35
	CapabilityInt8                           Capability = 39
	CapabilitySampled1D                      Capability = 43
	CapabilityImage1D                        Capability = 44
	CapabilitySampledCubeArray               Capability = 45
	CapabilityImageMSArray                   Capability = 48
	CapabilityStorageImageExtendedFormats    Capability = 49
	CapabilityImageQuery                     Capability = 50
	CapabilityDerivativeControl              Capability = 51
	CapabilityStorageImageReadWithoutFormat  Capability = 55
	CapabilityStorageImageWriteWithoutFormat Capability = 56
	CapabilityGroupNonUniform                Capability = 61
	CapabilityGroupNonUniformVote            Capability = 62
	CapabilityGroupNonUniformBallot          Capability = 64
	CapabilityRayQueryKHR                    Capability = 4472
	CapabilityAtomicFloat32AddEXT            Capability = 6033
)

var capabilityNames = map[Capability]string{
	CapabilityMatrix:                         "Matrix",
	CapabilityShader:                         "Shader",
	CapabilityFloat16:                        "Float16",
	CapabilityFloat64:                        "Float64",
	CapabilityInt64:                          "Int64",
	CapabilityInt64Atomics:                   "Int64Atomics",
	CapabilityInt16:                          "Int16",
	CapabilityStorageImageMultisample:        "StorageImageMultisample",
	CapabilityClipDistance:                   "ClipDistance",
	CapabilityImageCubeArray:                 "ImageCubeArray",
	CapabilitySampleRateShading:              "SampleRateShading",
	CapabilityInt8:                           "Int8",
	CapabilitySampled1D:                      "Sampled1D",
	CapabilityImage1D:                        "Image1D",
	CapabilitySampledCubeArray:               "SampledCubeArray",
	CapabilityImageMSArray:                   "ImageMSArray",
	CapabilityStorageImageExtendedFormats:    "StorageImageExtendedFormats",
	CapabilityImageQuery:                     "ImageQuery",
	CapabilityDerivativeControl:              "DerivativeControl",
	CapabilityStorageImageReadWithoutFormat:  "StorageImageReadWithoutFormat",
	CapabilityStorageImageWriteWithoutFormat: "StorageImageWriteWithoutFormat",
	CapabilityGroupNonUniform:                "GroupNonUniform",
	CapabilityGroupNonUniformVote:            "GroupNonUniformVote",
	CapabilityGroupNonUniformBallot:          "GroupNonUniformBallot",
	CapabilityRayQueryKHR:                    "RayQueryKHR",
	CapabilityAtomicFloat32AddEXT:            "AtomicFloat32AddEXT",
}

func (c Capability) String() string {
	if n, ok := capabilityNames[c]; ok {
		return n
	}

	return "Capability(" + strconv.FormatUint(uint64(c), 10) + ")"
}

// MarshalText implements encoding.TextMarshaler.
func (c Capability) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText accepts a capability name such as "Float64" or its number.
func (c *Capability) UnmarshalText(text []byte) error {
	s := string(text)

	for k, n := range capabilityNames {
		if strings.EqualFold(n, s) {
			*c = k
			return nil
		}
	}

	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return errors.New("unknown capability %q", s)
	}

	*c = Capability(v)

	return nil
}

// Extensions the backend may declare.
const (
	ExtStorageBufferStorageClass = "SPV_KHR_storage_buffer_storage_class"
	ExtAtomicFloatAdd            = "SPV_EXT_shader_atomic_float_add"
)

// AddressingModel is the operand of OpMemoryModel.
type AddressingModel uint32

const AddressingModelLogical AddressingModel = 0

// MemoryModel is the operand of OpMemoryModel.
type MemoryModel uint32

const MemoryModelGLSL450 MemoryModel = 1

// ExecutionModel names the pipeline stage of an entry point.
type ExecutionModel uint32

const (
	ExecutionModelVertex    ExecutionModel = 0
	ExecutionModelFragment  ExecutionModel = 4
	ExecutionModelGLCompute ExecutionModel = 5
)

// ExecutionMode is declared with OpExecutionMode.
type ExecutionMode uint32

const (
	ExecutionModeOriginUpperLeft ExecutionMode = 7
	ExecutionModeDepthReplacing  ExecutionMode = 12
	ExecutionModeLocalSize       ExecutionMode = 17
)

// StorageClass is where a pointer points.
type StorageClass uint32

const (
	StorageClassUniformConstant StorageClass = 0
	StorageClassInput           StorageClass = 1
	StorageClassUniform         StorageClass = 2
	StorageClassOutput          StorageClass = 3
	StorageClassWorkgroup       StorageClass = 4
	StorageClassPrivate         StorageClass = 6
	StorageClassFunction        StorageClass = 7
	StorageClassPushConstant    StorageClass = 9
	StorageClassStorageBuffer   StorageClass = 12
)

// Decoration represents a SPIR-V decoration.
type Decoration uint32

const (
	DecorationSpecID        Decoration = 1
	DecorationBlock         Decoration = 2
	DecorationBufferBlock   Decoration = 3
	DecorationRowMajor      Decoration = 4
	DecorationColMajor      Decoration = 5
	DecorationArrayStride   Decoration = 6
	DecorationMatrixStride  Decoration = 7
	DecorationBuiltIn       Decoration = 11
	DecorationNoPerspective Decoration = 13
	DecorationFlat          Decoration = 14
	DecorationInvariant     Decoration = 18
	DecorationNonWritable   Decoration = 24
	DecorationNonReadable   Decoration = 25
	DecorationLocation      Decoration = 30
	DecorationBinding       Decoration = 33
	DecorationDescriptorSet Decoration = 34
	DecorationOffset        Decoration = 35
)

// BuiltIn is the operand of the BuiltIn decoration.
type BuiltIn uint32

const (
	BuiltInPosition                  BuiltIn = 0
	BuiltInFragCoord                 BuiltIn = 15
	BuiltInFrontFacing               BuiltIn = 17
	BuiltInSampleID                  BuiltIn = 18
	BuiltInSampleMask                BuiltIn = 20
	BuiltInFragDepth                 BuiltIn = 22
	BuiltInNumWorkgroups             BuiltIn = 24
	BuiltInWorkgroupID               BuiltIn = 26
	BuiltInLocalInvocationID         BuiltIn = 27
	BuiltInGlobalInvocationID        BuiltIn = 28
	BuiltInLocalInvocationIndex      BuiltIn = 29
	BuiltInSubgroupSize              BuiltIn = 36
	BuiltInSubgroupLocalInvocationID BuiltIn = 41
	BuiltInVertexIndex               BuiltIn = 42
	BuiltInInstanceIndex             BuiltIn = 43
)

// Dim is the dimensionality of an image type.
type Dim uint32

const (
	Dim1D   Dim = 0
	Dim2D   Dim = 1
	Dim3D   Dim = 2
	DimCube Dim = 3
)

// ImageFormat is the texel format of a storage image.
type ImageFormat uint32

const (
	ImageFormatUnknown    ImageFormat = 0
	ImageFormatRgba32f    ImageFormat = 1
	ImageFormatRgba16f    ImageFormat = 2
	ImageFormatR32f       ImageFormat = 3
	ImageFormatRgba8      ImageFormat = 4
	ImageFormatRgba8Snorm ImageFormat = 5
	ImageFormatRg32f      ImageFormat = 6
	ImageFormatRgba32i    ImageFormat = 21
	ImageFormatRgba8i     ImageFormat = 23
	ImageFormatR32i       ImageFormat = 24
	ImageFormatRgba32ui   ImageFormat = 30
	ImageFormatRgba8ui    ImageFormat = 32
	ImageFormatR32ui      ImageFormat = 33
)

// Image operand mask bits.
const (
	ImageOperandsBias   uint32 = 0x1
	ImageOperandsLod    uint32 = 0x2
	ImageOperandsGrad   uint32 = 0x4
	ImageOperandsSample uint32 = 0x40
)

// Scope is an execution or memory scope.
type Scope uint32

const (
	ScopeDevice    Scope = 1
	ScopeWorkgroup Scope = 2
	ScopeSubgroup  Scope = 3
)

// MemorySemantics bits.
const (
	SemanticsNone            uint32 = 0
	SemanticsAcquireRelease  uint32 = 0x8
	SemanticsUniformMemory   uint32 = 0x40
	SemanticsSubgroupMemory  uint32 = 0x80
	SemanticsWorkgroupMemory uint32 = 0x100
	SemanticsImageMemory     uint32 = 0x800
)

// FunctionControl is the control mask of OpFunction.
type FunctionControl uint32

const FunctionControlNone FunctionControl = 0

// SelectionControl is the control mask of OpSelectionMerge.
type SelectionControl uint32

const SelectionControlNone SelectionControl = 0

// LoopControl is the control mask of OpLoopMerge.
type LoopControl uint32

const LoopControlNone LoopControl = 0

// GLSL.std.450 extended instruction numbers.
const (
	GLSLRound                 uint32 = 1
	GLSLRoundEven             uint32 = 2
	GLSLTrunc                 uint32 = 3
	GLSLFAbs                  uint32 = 4
	GLSLSAbs                  uint32 = 5
	GLSLFSign                 uint32 = 6
	GLSLSSign                 uint32 = 7
	GLSLFloor                 uint32 = 8
	GLSLCeil                  uint32 = 9
	GLSLFract                 uint32 = 10
	GLSLRadians               uint32 = 11
	GLSLDegrees               uint32 = 12
	GLSLSin                   uint32 = 13
	GLSLCos                   uint32 = 14
	GLSLTan                   uint32 = 15
	GLSLAsin                  uint32 = 16
	GLSLAcos                  uint32 = 17
	GLSLAtan                  uint32 = 18
	GLSLSinh                  uint32 = 19
	GLSLCosh                  uint32 = 20
	GLSLTanh                  uint32 = 21
	GLSLAsinh                 uint32 = 22
	GLSLAcosh                 uint32 = 23
	GLSLAtanh                 uint32 = 24
	GLSLAtan2                 uint32 = 25
	GLSLPow                   uint32 = 26
	GLSLExp                   uint32 = 27
	GLSLLog                   uint32 = 28
	GLSLExp2                  uint32 = 29
	GLSLLog2                  uint32 = 30
	GLSLSqrt                  uint32 = 31
	GLSLInverseSqrt           uint32 = 32
	GLSLDeterminant           uint32 = 33
	GLSLFMin                  uint32 = 37
	GLSLUMin                  uint32 = 38
	GLSLSMin                  uint32 = 39
	GLSLFMax                  uint32 = 40
	GLSLUMax                  uint32 = 41
	GLSLSMax                  uint32 = 42
	GLSLFClamp                uint32 = 43
	GLSLUClamp                uint32 = 44
	GLSLSClamp                uint32 = 45
	GLSLFMix                  uint32 = 46
	GLSLStep                  uint32 = 48
	GLSLSmoothStep            uint32 = 49
	GLSLFma                   uint32 = 50
	GLSLLdexp                 uint32 = 53
	GLSLPackSnorm4x8          uint32 = 54
	GLSLPackUnorm4x8          uint32 = 55
	GLSLPackSnorm2x16         uint32 = 56
	GLSLPackUnorm2x16         uint32 = 57
	GLSLPackHalf2x16          uint32 = 58
	GLSLUnpackSnorm2x16       uint32 = 60
	GLSLUnpackUnorm2x16       uint32 = 61
	GLSLUnpackHalf2x16        uint32 = 62
	GLSLUnpackSnorm4x8        uint32 = 63
	GLSLUnpackUnorm4x8        uint32 = 64
	GLSLLength                uint32 = 66
	GLSLDistance              uint32 = 67
	GLSLCross                 uint32 = 68
	GLSLNormalize             uint32 = 69
	GLSLFaceForward           uint32 = 70
	GLSLReflect               uint32 = 71
	GLSLRefract               uint32 = 72
	GLSLFindILsb              uint32 = 73
	GLSLFindSMsb              uint32 = 74
	GLSLFindUMsb              uint32 = 75
)
