package ir

import "strconv"

// Module represents a shader module in IR form.
type Module struct {
	// Types holds all type definitions, deduplicated by structure.
	Types []Type

	// Constants holds module-scope constants.
	Constants []Constant

	// Overrides holds pipeline-overridable constants.
	Overrides []Override

	// GlobalVariables holds module-scope variables.
	GlobalVariables []GlobalVariable

	// Functions holds helper functions. Entry points own their functions.
	Functions []Function

	// EntryPoints holds shader entry points.
	EntryPoints []EntryPoint
}

// EntryPoint represents a shader entry point.
type EntryPoint struct {
	Name      string
	Stage     ShaderStage
	Workgroup [3]uint32 // compute only
	Function  Function
}

// ShaderStage represents a shader stage.
type ShaderStage uint8

const (
	StageVertex ShaderStage = iota
	StageFragment
	StageCompute
)

func (s ShaderStage) String() string {
	switch s {
	case StageVertex:
		return "vertex"
	case StageFragment:
		return "fragment"
	case StageCompute:
		return "compute"
	default:
		return "stage(" + strconv.Itoa(int(s)) + ")"
	}
}

// Handle types for referencing IR objects.
type (
	TypeHandle           uint32
	ConstantHandle       uint32
	OverrideHandle       uint32
	GlobalVariableHandle uint32
	FunctionHandle       uint32
	ExpressionHandle     uint32
	LocalVariableHandle  uint32
)

// Span is a byte range in the source text. The zero Span means unknown.
type Span struct {
	Start uint32
	End   uint32
}

// IsZero reports whether the span carries no location.
func (s Span) IsZero() bool { return s.Start == 0 && s.End == 0 }

// Union returns the smallest span covering both s and o.
func (s Span) Union(o Span) Span {
	if s.IsZero() {
		return o
	}
	if o.IsZero() {
		return s
	}

	r := s
	if o.Start < r.Start {
		r.Start = o.Start
	}
	if o.End > r.End {
		r.End = o.End
	}

	return r
}

// Type represents a type in the IR.
type Type struct {
	Name  string
	Inner TypeInner
}

// TypeInner represents the inner type kind.
type TypeInner interface {
	typeInner()
}

// ScalarKind represents scalar type kinds.
type ScalarKind uint8

const (
	ScalarSint ScalarKind = iota
	ScalarUint
	ScalarFloat
	ScalarBool
	ScalarAbstractInt
	ScalarAbstractFloat
)

// ScalarType represents scalar types.
type ScalarType struct {
	Kind  ScalarKind
	Width uint8 // in bytes
}

func (ScalarType) typeInner() {}

// Frequently used scalars.
var (
	Bool          = ScalarType{Kind: ScalarBool, Width: 1}
	I32           = ScalarType{Kind: ScalarSint, Width: 4}
	U32           = ScalarType{Kind: ScalarUint, Width: 4}
	I64           = ScalarType{Kind: ScalarSint, Width: 8}
	U64           = ScalarType{Kind: ScalarUint, Width: 8}
	F16           = ScalarType{Kind: ScalarFloat, Width: 2}
	F32           = ScalarType{Kind: ScalarFloat, Width: 4}
	F64           = ScalarType{Kind: ScalarFloat, Width: 8}
	AbstractInt   = ScalarType{Kind: ScalarAbstractInt, Width: 8}
	AbstractFloat = ScalarType{Kind: ScalarAbstractFloat, Width: 8}
)

// IsAbstract reports whether the scalar has not been given a concrete width yet.
func (s ScalarType) IsAbstract() bool {
	return s.Kind == ScalarAbstractInt || s.Kind == ScalarAbstractFloat
}

// IsInteger reports whether the scalar is a concrete or abstract integer.
func (s ScalarType) IsInteger() bool {
	return s.Kind == ScalarSint || s.Kind == ScalarUint || s.Kind == ScalarAbstractInt
}

// IsFloat reports whether the scalar is a concrete or abstract float.
func (s ScalarType) IsFloat() bool {
	return s.Kind == ScalarFloat || s.Kind == ScalarAbstractFloat
}

func (s ScalarType) String() string {
	switch s.Kind {
	case ScalarBool:
		return "bool"
	case ScalarSint:
		return "i" + strconv.Itoa(int(s.Width)*8)
	case ScalarUint:
		return "u" + strconv.Itoa(int(s.Width)*8)
	case ScalarFloat:
		return "f" + strconv.Itoa(int(s.Width)*8)
	case ScalarAbstractInt:
		return "{AbstractInt}"
	case ScalarAbstractFloat:
		return "{AbstractFloat}"
	default:
		return "scalar(" + strconv.Itoa(int(s.Kind)) + ")"
	}
}

// VectorSize represents vector sizes.
type VectorSize uint8

const (
	Vec2 VectorSize = 2
	Vec3 VectorSize = 3
	Vec4 VectorSize = 4
)

// VectorType represents vector types.
type VectorType struct {
	Size   VectorSize
	Scalar ScalarType
}

func (VectorType) typeInner() {}

// MatrixType represents matrix types.
type MatrixType struct {
	Columns VectorSize
	Rows    VectorSize
	Scalar  ScalarType
}

func (MatrixType) typeInner() {}

// ArrayType represents array types.
type ArrayType struct {
	Base   TypeHandle
	Size   ArraySize
	Stride uint32
}

func (ArrayType) typeInner() {}

// ArraySize represents array size.
type ArraySize struct {
	Constant uint32 // 0 for runtime-sized arrays
}

// IsDynamic reports whether the array length is only known at runtime.
func (s ArraySize) IsDynamic() bool { return s.Constant == 0 }

// StructType represents struct types.
type StructType struct {
	Members []StructMember
	Span    uint32 // size in bytes
}

func (StructType) typeInner() {}

// StructMember represents a struct member.
type StructMember struct {
	Name    string
	Type    TypeHandle
	Binding Binding // nil unless the struct is an entry point interface
	Offset  uint32
}

// PointerType represents pointers to types in the arena.
type PointerType struct {
	Base  TypeHandle
	Space AddressSpace
}

func (PointerType) typeInner() {}

// ValuePointerType is a pointer to a scalar or vector that has no arena
// entry of its own, such as a pointer to one component of a vector.
type ValuePointerType struct {
	Size   VectorSize // 0 for a scalar
	Scalar ScalarType
	Space  AddressSpace
}

func (ValuePointerType) typeInner() {}

// AtomicType represents atomic types for thread-safe operations.
type AtomicType struct {
	Scalar ScalarType
}

func (AtomicType) typeInner() {}

// SamplerType represents sampler types.
type SamplerType struct {
	Comparison bool
}

func (SamplerType) typeInner() {}

// ImageType represents image/texture types.
type ImageType struct {
	Dim           ImageDimension
	Arrayed       bool
	Class         ImageClass
	SampledKind   ScalarKind // sampled images
	Multisampled  bool
	StorageFormat StorageFormat // storage images
	StorageAccess StorageAccess // storage images
}

func (ImageType) typeInner() {}

// RayQueryType is the opaque state of a ray query.
type RayQueryType struct{}

func (RayQueryType) typeInner() {}

// ImageDimension represents image dimensions.
type ImageDimension uint8

const (
	Dim1D ImageDimension = iota
	Dim2D
	Dim3D
	DimCube
)

// ImageClass represents image classification.
type ImageClass uint8

const (
	ImageClassSampled ImageClass = iota
	ImageClassDepth
	ImageClassStorage
)

// StorageFormat is the texel format of a storage image.
type StorageFormat uint8

const (
	StorageFormatUnknown StorageFormat = iota
	StorageFormatRgba8Unorm
	StorageFormatRgba8Snorm
	StorageFormatRgba8Uint
	StorageFormatRgba8Sint
	StorageFormatRgba16Float
	StorageFormatR32Uint
	StorageFormatR32Sint
	StorageFormatR32Float
	StorageFormatRg32Float
	StorageFormatRgba32Uint
	StorageFormatRgba32Sint
	StorageFormatRgba32Float
	StorageFormatBgra8Unorm
)

// StorageAccess is a set of permitted accesses.
type StorageAccess uint8

const (
	StorageAccessLoad StorageAccess = 1 << iota
	StorageAccessStore
)

// AddressSpace represents memory address spaces.
type AddressSpace uint8

const (
	SpaceFunction AddressSpace = iota
	SpacePrivate
	SpaceWorkGroup
	SpaceUniform
	SpaceStorage
	SpacePushConstant
	SpaceHandle
)

// Constant represents a constant value.
type Constant struct {
	Name  string
	Type  TypeHandle
	Value ConstantValue
}

// ConstantValue represents constant values.
type ConstantValue interface {
	constantValue()
}

// ScalarValue represents a scalar constant.
type ScalarValue struct {
	Bits uint64 // bit representation, f32 stored as float32 bits
	Kind ScalarKind
}

func (ScalarValue) constantValue() {}

// CompositeValue represents a composite constant.
type CompositeValue struct {
	Components []ConstantHandle
}

func (CompositeValue) constantValue() {}

// ZeroConstantValue is the all-zero value of the constant's type.
type ZeroConstantValue struct{}

func (ZeroConstantValue) constantValue() {}

// Override is a scalar constant the pipeline may replace at creation time.
type Override struct {
	Name    string
	ID      *uint16
	Type    TypeHandle
	Default *ScalarValue
}

// GlobalVariable represents a global variable.
type GlobalVariable struct {
	Name    string
	Space   AddressSpace
	Access  StorageAccess // storage buffers only
	Binding *ResourceBinding
	Type    TypeHandle
	Init    *ConstantHandle
}

// ResourceBinding represents a resource binding.
type ResourceBinding struct {
	Group   uint32
	Binding uint32
}

// Function represents a function definition.
type Function struct {
	Name      string
	Arguments []FunctionArgument
	Result    *FunctionResult
	LocalVars []LocalVariable

	Expressions []Expression

	// NamedExpressions records expressions the user bound to a name with let.
	NamedExpressions map[ExpressionHandle]string

	// ExpressionTypes is parallel to Expressions.
	ExpressionTypes []TypeResolution

	Body Block
}

// FunctionArgument represents a function argument.
type FunctionArgument struct {
	Name    string
	Type    TypeHandle
	Binding Binding
}

// FunctionResult represents a function return type.
type FunctionResult struct {
	Type    TypeHandle
	Binding Binding
}

// LocalVariable represents a function-local variable.
type LocalVariable struct {
	Name string
	Type TypeHandle

	// Init is a constant expression in the function's arena, evaluated once
	// when the variable comes into scope.
	Init *ExpressionHandle
}

// Binding represents shader stage interface bindings.
type Binding interface {
	binding()
}

// BuiltinBinding represents a built-in binding.
type BuiltinBinding struct {
	Builtin   BuiltinValue
	Invariant bool
}

func (BuiltinBinding) binding() {}

// BuiltinValue represents built-in values.
type BuiltinValue uint8

const (
	BuiltinPosition BuiltinValue = iota
	BuiltinVertexIndex
	BuiltinInstanceIndex
	BuiltinFrontFacing
	BuiltinFragDepth
	BuiltinSampleIndex
	BuiltinSampleMask
	BuiltinLocalInvocationID
	BuiltinLocalInvocationIndex
	BuiltinGlobalInvocationID
	BuiltinWorkGroupID
	BuiltinNumWorkGroups
	BuiltinSubgroupSize
	BuiltinSubgroupInvocationID
)

// LocationBinding represents a user-defined location binding.
type LocationBinding struct {
	Location      uint32
	Interpolation InterpolationKind
}

func (LocationBinding) binding() {}

// InterpolationKind represents interpolation kinds.
type InterpolationKind uint8

const (
	InterpolationDefault InterpolationKind = iota
	InterpolationPerspective
	InterpolationLinear
	InterpolationFlat
)
