package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exprs(kinds ...ExpressionKind) []Expression {
	out := make([]Expression, len(kinds))
	for i, k := range kinds {
		out[i] = Expression{Kind: k}
	}

	return out
}

func TestTypifierLiterals(t *testing.T) {
	fn := &Function{Expressions: exprs(
		Literal{Value: LiteralAbstractInt(1)},
		Literal{Value: LiteralAbstractFloat(1.5)},
		Literal{Value: LiteralF32(2)},
		Literal{Value: LiteralBool(true)},
	)}

	var typ Typifier
	res, err := typ.ResolveAll(&ResolveContext{Module: &Module{}, Function: fn})
	require.NoError(t, err)
	require.Len(t, res, 4)

	assert.Equal(t, AbstractInt, res[0].Value)
	assert.Equal(t, AbstractFloat, res[1].Value)
	assert.Equal(t, F32, res[2].Value)
	assert.Equal(t, Bool, res[3].Value)
}

func TestTypifierResolvesOnlyDependencies(t *testing.T) {
	fn := &Function{Expressions: exprs(
		Literal{Value: LiteralI32(1)},
		Literal{Value: LiteralI32(2)},
		ExprBinary{Op: BinaryAdd, Left: 0, Right: 1},
		Literal{Value: LiteralF32(3)},
	)}

	var typ Typifier
	ctx := &ResolveContext{Module: &Module{}, Function: fn}

	r, err := typ.Resolve(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, I32, r.Value)

	_, ok := typ.Get(0)
	assert.True(t, ok)
	_, ok = typ.Get(3)
	assert.False(t, ok, "later expression resolved")
}

func TestTypifierPointers(t *testing.T) {
	m := &Module{}
	reg := NewTypeRegistry(m)
	vec3 := reg.GetOrCreate("", VectorType{Size: Vec3, Scalar: F32})
	arr := reg.GetOrCreate("", ArrayType{Base: vec3, Size: ArraySize{Constant: 4}, Stride: 16})

	fn := &Function{
		LocalVars: []LocalVariable{{Name: "a", Type: arr}},
		Expressions: exprs(
			ExprLocalVariable{Variable: 0},
			Literal{Value: LiteralI32(1)},
			ExprAccess{Base: 0, Index: 1},
			ExprAccessIndex{Base: 2, Index: 2},
			ExprLoad{Pointer: 3},
			ExprLoad{Pointer: 2},
		),
	}

	var typ Typifier
	res, err := typ.ResolveAll(&ResolveContext{Module: m, Function: fn})
	require.NoError(t, err)

	assert.Equal(t, PointerType{Base: arr, Space: SpaceFunction}, res[0].Value)
	assert.Equal(t, PointerType{Base: vec3, Space: SpaceFunction}, res[2].Value)
	assert.Equal(t, ValuePointerType{Scalar: F32, Space: SpaceFunction}, res[3].Value)
	assert.Equal(t, F32, res[4].Value)
	require.NotNil(t, res[5].Handle)
	assert.Equal(t, vec3, *res[5].Handle)
}

func TestTypifierBinaryShapes(t *testing.T) {
	m := &Module{}
	reg := NewTypeRegistry(m)
	mat := reg.GetOrCreate("", MatrixType{Columns: Vec4, Rows: Vec3, Scalar: F32})
	v4 := reg.GetOrCreate("", VectorType{Size: Vec4, Scalar: F32})

	fn := &Function{
		Arguments: []FunctionArgument{{Name: "m", Type: mat}, {Name: "v", Type: v4}},
		Expressions: exprs(
			ExprFunctionArgument{Index: 0},
			ExprFunctionArgument{Index: 1},
			ExprBinary{Op: BinaryMultiply, Left: 0, Right: 1},
			ExprBinary{Op: BinaryLess, Left: 1, Right: 1},
			Literal{Value: LiteralF32(2)},
			ExprBinary{Op: BinaryMultiply, Left: 4, Right: 1},
		),
	}

	var typ Typifier
	res, err := typ.ResolveAll(&ResolveContext{Module: m, Function: fn})
	require.NoError(t, err)

	assert.Equal(t, VectorType{Size: Vec3, Scalar: F32}, res[2].Value)
	assert.Equal(t, VectorType{Size: Vec4, Scalar: Bool}, res[3].Value)
	assert.Equal(t, VectorType{Size: Vec4, Scalar: F32}, res[5].Inner(m.Types))
}

func TestTypifierForwardReference(t *testing.T) {
	fn := &Function{Expressions: exprs(
		ExprUnary{Op: UnaryNegate, Expr: 1},
		Literal{Value: LiteralI32(1)},
	)}

	_, err := ResolveExpressionType(&Module{}, fn, 0)
	assert.Error(t, err)
}

func TestTypifierMathAndCasts(t *testing.T) {
	m := &Module{}
	reg := NewTypeRegistry(m)
	v3 := reg.GetOrCreate("", VectorType{Size: Vec3, Scalar: F32})

	width := uint8(4)
	fn := &Function{
		Arguments: []FunctionArgument{{Name: "v", Type: v3}},
		Expressions: exprs(
			ExprFunctionArgument{Index: 0},
			ExprMath{Fun: MathLength, Arg: 0},
			ExprMath{Fun: MathNormalize, Arg: 0},
			ExprAs{Expr: 0, Kind: ScalarSint, Convert: &width},
			ExprAs{Expr: 1, Kind: ScalarUint},
			ExprMath{Fun: MathPack4x8unorm, Arg: 0},
		),
	}

	var typ Typifier
	res, err := typ.ResolveAll(&ResolveContext{Module: m, Function: fn})
	require.NoError(t, err)

	assert.Equal(t, F32, res[1].Value)
	assert.Equal(t, VectorType{Size: Vec3, Scalar: F32}, res[2].Inner(m.Types))
	assert.Equal(t, VectorType{Size: Vec3, Scalar: I32}, res[3].Value)
	assert.Equal(t, U32, res[4].Value)
	assert.Equal(t, U32, res[5].Value)
}
