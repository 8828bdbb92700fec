package ir

// Expression is one node of a function's expression arena.
// Expressions are pure; Emit statements decide when they are evaluated.
type Expression struct {
	Kind ExpressionKind
	Span Span
}

// ExpressionKind is the closed set of expression variants.
type ExpressionKind interface {
	expressionKind()
}

// Literal represents a literal constant value.
type Literal struct {
	Value LiteralValue
}

func (Literal) expressionKind() {}

// LiteralValue represents the value of a literal.
type LiteralValue interface {
	literalValue()
	Scalar() ScalarType
}

type (
	LiteralF64           float64
	LiteralF32           float32
	LiteralU32           uint32
	LiteralI32           int32
	LiteralU64           uint64
	LiteralI64           int64
	LiteralBool          bool
	LiteralAbstractInt   int64
	LiteralAbstractFloat float64
)

func (LiteralF64) literalValue()           {}
func (LiteralF32) literalValue()           {}
func (LiteralU32) literalValue()           {}
func (LiteralI32) literalValue()           {}
func (LiteralU64) literalValue()           {}
func (LiteralI64) literalValue()           {}
func (LiteralBool) literalValue()          {}
func (LiteralAbstractInt) literalValue()   {}
func (LiteralAbstractFloat) literalValue() {}

func (LiteralF64) Scalar() ScalarType           { return F64 }
func (LiteralF32) Scalar() ScalarType           { return F32 }
func (LiteralU32) Scalar() ScalarType           { return U32 }
func (LiteralI32) Scalar() ScalarType           { return I32 }
func (LiteralU64) Scalar() ScalarType           { return U64 }
func (LiteralI64) Scalar() ScalarType           { return I64 }
func (LiteralBool) Scalar() ScalarType          { return Bool }
func (LiteralAbstractInt) Scalar() ScalarType   { return AbstractInt }
func (LiteralAbstractFloat) Scalar() ScalarType { return AbstractFloat }

// ExprConstant references a module-scope constant.
type ExprConstant struct {
	Constant ConstantHandle
}

func (ExprConstant) expressionKind() {}

// ExprOverride references a pipeline-overridable constant.
type ExprOverride struct {
	Override OverrideHandle
}

func (ExprOverride) expressionKind() {}

// ExprZeroValue represents a zero-initialized value of a given type.
type ExprZeroValue struct {
	Type TypeHandle
}

func (ExprZeroValue) expressionKind() {}

// ExprCompose constructs a composite value (vector, matrix, array, or struct).
type ExprCompose struct {
	Type       TypeHandle
	Components []ExpressionHandle
}

func (ExprCompose) expressionKind() {}

// ExprAccess indexes an array, vector or matrix with a computed index.
// Base may be a value or a pointer; the result follows.
type ExprAccess struct {
	Base  ExpressionHandle
	Index ExpressionHandle
}

func (ExprAccess) expressionKind() {}

// ExprAccessIndex indexes with a constant, including struct members.
type ExprAccessIndex struct {
	Base  ExpressionHandle
	Index uint32
}

func (ExprAccessIndex) expressionKind() {}

// ExprSplat broadcasts a scalar value to all components of a vector.
type ExprSplat struct {
	Size  VectorSize
	Value ExpressionHandle
}

func (ExprSplat) expressionKind() {}

// ExprSwizzle reorders or duplicates vector components.
type ExprSwizzle struct {
	Size    VectorSize
	Vector  ExpressionHandle
	Pattern [4]SwizzleComponent
}

func (ExprSwizzle) expressionKind() {}

// SwizzleComponent represents a single component in a vector swizzle.
type SwizzleComponent uint8

const (
	SwizzleX SwizzleComponent = 0
	SwizzleY SwizzleComponent = 1
	SwizzleZ SwizzleComponent = 2
	SwizzleW SwizzleComponent = 3
)

// ExprFunctionArgument references a function parameter by its index.
type ExprFunctionArgument struct {
	Index uint32
}

func (ExprFunctionArgument) expressionKind() {}

// ExprGlobalVariable references a global variable.
// Handle-space variables produce the resource itself, others a pointer.
type ExprGlobalVariable struct {
	Variable GlobalVariableHandle
}

func (ExprGlobalVariable) expressionKind() {}

// ExprLocalVariable produces a pointer to a local variable.
type ExprLocalVariable struct {
	Variable LocalVariableHandle
}

func (ExprLocalVariable) expressionKind() {}

// ExprLoad loads a value through a pointer. Loading an atomic is an atomic load.
type ExprLoad struct {
	Pointer ExpressionHandle
}

func (ExprLoad) expressionKind() {}

// ExprImageSample samples a sampled or depth image.
type ExprImageSample struct {
	Image      ExpressionHandle
	Sampler    ExpressionHandle
	Coordinate ExpressionHandle
	ArrayIndex *ExpressionHandle
	Level      SampleLevel
	DepthRef   *ExpressionHandle
}

func (ExprImageSample) expressionKind() {}

// SampleLevel controls the level of detail for texture sampling.
type SampleLevel interface {
	sampleLevel()
}

type (
	SampleLevelAuto  struct{}
	SampleLevelZero  struct{}
	SampleLevelExact struct{ Level ExpressionHandle }
	SampleLevelBias  struct{ Bias ExpressionHandle }

	SampleLevelGradient struct {
		X ExpressionHandle
		Y ExpressionHandle
	}
)

func (SampleLevelAuto) sampleLevel()     {}
func (SampleLevelZero) sampleLevel()     {}
func (SampleLevelExact) sampleLevel()    {}
func (SampleLevelBias) sampleLevel()     {}
func (SampleLevelGradient) sampleLevel() {}

// ExprImageLoad loads a texel from an image.
type ExprImageLoad struct {
	Image      ExpressionHandle
	Coordinate ExpressionHandle
	ArrayIndex *ExpressionHandle
	Sample     *ExpressionHandle
	Level      *ExpressionHandle
}

func (ExprImageLoad) expressionKind() {}

// ExprImageQuery queries information from an image.
type ExprImageQuery struct {
	Image ExpressionHandle
	Query ImageQuery
}

func (ExprImageQuery) expressionKind() {}

// ImageQuery represents the type of image query.
type ImageQuery interface {
	imageQuery()
}

type (
	ImageQuerySize       struct{ Level *ExpressionHandle }
	ImageQueryNumLevels  struct{}
	ImageQueryNumLayers  struct{}
	ImageQueryNumSamples struct{}
)

func (ImageQuerySize) imageQuery()       {}
func (ImageQueryNumLevels) imageQuery()  {}
func (ImageQueryNumLayers) imageQuery()  {}
func (ImageQueryNumSamples) imageQuery() {}

// ExprUnary applies a unary operator to an expression.
type ExprUnary struct {
	Op   UnaryOperator
	Expr ExpressionHandle
}

func (ExprUnary) expressionKind() {}

// UnaryOperator represents unary operations.
type UnaryOperator uint8

const (
	UnaryNegate UnaryOperator = iota
	UnaryLogicalNot
	UnaryBitwiseNot
)

// ExprBinary applies a binary operator to two expressions.
type ExprBinary struct {
	Op    BinaryOperator
	Left  ExpressionHandle
	Right ExpressionHandle
}

func (ExprBinary) expressionKind() {}

// BinaryOperator represents binary operations.
type BinaryOperator uint8

const (
	BinaryAdd BinaryOperator = iota
	BinarySubtract
	BinaryMultiply
	BinaryDivide
	BinaryModulo

	BinaryEqual
	BinaryNotEqual
	BinaryLess
	BinaryLessEqual
	BinaryGreater
	BinaryGreaterEqual

	BinaryAnd
	BinaryExclusiveOr
	BinaryInclusiveOr

	BinaryLogicalAnd
	BinaryLogicalOr

	BinaryShiftLeft
	BinaryShiftRight // arithmetic for signed, logical for unsigned
)

var binaryOperatorNames = [...]string{
	BinaryAdd:          "+",
	BinarySubtract:     "-",
	BinaryMultiply:     "*",
	BinaryDivide:       "/",
	BinaryModulo:       "%",
	BinaryEqual:        "==",
	BinaryNotEqual:     "!=",
	BinaryLess:         "<",
	BinaryLessEqual:    "<=",
	BinaryGreater:      ">",
	BinaryGreaterEqual: ">=",
	BinaryAnd:          "&",
	BinaryExclusiveOr:  "^",
	BinaryInclusiveOr:  "|",
	BinaryLogicalAnd:   "&&",
	BinaryLogicalOr:    "||",
	BinaryShiftLeft:    "<<",
	BinaryShiftRight:   ">>",
}

func (op BinaryOperator) String() string {
	if int(op) < len(binaryOperatorNames) {
		return binaryOperatorNames[op]
	}

	return "?"
}

// IsComparison reports whether the operator yields bool.
func (op BinaryOperator) IsComparison() bool {
	return op >= BinaryEqual && op <= BinaryGreaterEqual
}

// ExprSelect selects between two values based on a boolean condition.
type ExprSelect struct {
	Condition ExpressionHandle
	Accept    ExpressionHandle
	Reject    ExpressionHandle
}

func (ExprSelect) expressionKind() {}

// ExprDerivative computes the screen-space derivative of an expression.
type ExprDerivative struct {
	Axis    DerivativeAxis
	Control DerivativeControl
	Expr    ExpressionHandle
}

func (ExprDerivative) expressionKind() {}

// DerivativeAxis specifies the axis for derivative computation.
type DerivativeAxis uint8

const (
	DerivativeX DerivativeAxis = iota
	DerivativeY
	DerivativeWidth // fwidth
)

// DerivativeControl specifies the precision hint for derivative computation.
type DerivativeControl uint8

const (
	DerivativeNone DerivativeControl = iota
	DerivativeCoarse
	DerivativeFine
)

// ExprRelational applies a relational function.
type ExprRelational struct {
	Fun      RelationalFunction
	Argument ExpressionHandle
}

func (ExprRelational) expressionKind() {}

// RelationalFunction represents built-in relational test functions.
type RelationalFunction uint8

const (
	RelationalAll RelationalFunction = iota
	RelationalAny
	RelationalIsNan
	RelationalIsInf
)

// ExprMath applies a mathematical function.
type ExprMath struct {
	Fun  MathFunction
	Arg  ExpressionHandle
	Arg1 *ExpressionHandle
	Arg2 *ExpressionHandle
	Arg3 *ExpressionHandle
}

func (ExprMath) expressionKind() {}

// MathFunction represents built-in mathematical functions.
type MathFunction uint8

const (
	MathAbs MathFunction = iota
	MathMin
	MathMax
	MathClamp
	MathSaturate

	MathCos
	MathCosh
	MathSin
	MathSinh
	MathTan
	MathTanh
	MathAcos
	MathAsin
	MathAtan
	MathAtan2
	MathAsinh
	MathAcosh
	MathAtanh
	MathRadians
	MathDegrees

	MathCeil
	MathFloor
	MathRound
	MathFract
	MathTrunc
	MathLdexp

	MathExp
	MathExp2
	MathLog
	MathLog2
	MathPow

	MathDot
	MathCross
	MathDistance
	MathLength
	MathNormalize
	MathFaceForward
	MathReflect
	MathRefract

	MathSign
	MathFma
	MathMix
	MathStep
	MathSmoothStep
	MathSqrt
	MathInverseSqrt
	MathTranspose
	MathDeterminant

	MathCountTrailingZeros
	MathCountLeadingZeros
	MathCountOneBits
	MathReverseBits
	MathExtractBits
	MathInsertBits
	MathFirstTrailingBit
	MathFirstLeadingBit

	MathPack4x8snorm
	MathPack4x8unorm
	MathPack2x16snorm
	MathPack2x16unorm
	MathPack2x16float
	MathPack4xI8
	MathPack4xU8

	MathUnpack4x8snorm
	MathUnpack4x8unorm
	MathUnpack2x16snorm
	MathUnpack2x16unorm
	MathUnpack2x16float
	MathUnpack4xI8
	MathUnpack4xU8
)

// ExprAs performs a numeric conversion or a bitcast.
type ExprAs struct {
	Expr    ExpressionHandle
	Kind    ScalarKind
	Convert *uint8 // if set, convert to this byte width; otherwise bitcast
}

func (ExprAs) expressionKind() {}

// ExprCallResult is the value produced by a StmtCall.
type ExprCallResult struct {
	Function FunctionHandle
}

func (ExprCallResult) expressionKind() {}

// ExprAtomicResult is the value produced by a StmtAtomic.
// Comparison results are a struct of the old value and an exchanged flag.
type ExprAtomicResult struct {
	Type       TypeHandle
	Comparison bool
}

func (ExprAtomicResult) expressionKind() {}

// ExprWorkGroupUniformLoadResult is the value produced by StmtWorkGroupUniformLoad.
type ExprWorkGroupUniformLoadResult struct {
	Type TypeHandle
}

func (ExprWorkGroupUniformLoadResult) expressionKind() {}

// ExprArrayLength gets the length of a runtime-sized array.
// Array must be a pointer to a dynamically sized array, usually a struct's last member.
type ExprArrayLength struct {
	Array ExpressionHandle
}

func (ExprArrayLength) expressionKind() {}

// ExprSubgroupBallotResult is the vec4<u32> produced by StmtSubgroupBallot.
type ExprSubgroupBallotResult struct{}

func (ExprSubgroupBallotResult) expressionKind() {}

// ExprRayQueryProceedResult is the bool produced by RayQueryProceed.
type ExprRayQueryProceedResult struct{}

func (ExprRayQueryProceedResult) expressionKind() {}

// NeedsPreEmit reports whether an expression is available without an Emit.
func NeedsPreEmit(kind ExpressionKind) bool {
	switch kind.(type) {
	case Literal, ExprConstant, ExprOverride, ExprZeroValue,
		ExprFunctionArgument, ExprGlobalVariable, ExprLocalVariable:
		return true
	default:
		return false
	}
}

// IsResultPlaceholder reports whether the expression is produced by a statement.
func IsResultPlaceholder(kind ExpressionKind) bool {
	switch kind.(type) {
	case ExprCallResult, ExprAtomicResult, ExprWorkGroupUniformLoadResult,
		ExprSubgroupBallotResult, ExprRayQueryProceedResult:
		return true
	default:
		return false
	}
}
