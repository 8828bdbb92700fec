package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTypeRegistryDeduplicates(t *testing.T) {
	m := &Module{}
	reg := NewTypeRegistry(m)

	a := reg.GetOrCreate("", VectorType{Size: Vec4, Scalar: F32})
	b := reg.GetOrCreate("", VectorType{Size: Vec4, Scalar: F32})
	c := reg.GetOrCreate("", VectorType{Size: Vec3, Scalar: F32})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Equal(t, 2, reg.Count())
}

func TestTypeRegistryStructsAreNominal(t *testing.T) {
	m := &Module{}
	reg := NewTypeRegistry(m)

	f32 := reg.GetOrCreate("", F32)
	st := StructType{Members: []StructMember{{Name: "x", Type: f32}}, Span: 4}

	a := reg.GetOrCreate("A", st)
	b := reg.GetOrCreate("B", st)
	again := reg.GetOrCreate("A", st)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, again)
}

func TestTypeRegistryIndexesExisting(t *testing.T) {
	m := &Module{Types: []Type{{Inner: U32}}}
	reg := NewTypeRegistry(m)

	assert.Equal(t, TypeHandle(0), reg.GetOrCreate("", U32))

	typ, ok := reg.Lookup(0)
	assert.True(t, ok)
	assert.Equal(t, U32, typ.Inner)

	_, ok = reg.Lookup(5)
	assert.False(t, ok)
}

func TestConstantRegistry(t *testing.T) {
	m := &Module{Types: []Type{{Inner: I32}}}
	reg := NewConstantRegistry(m)

	one := ScalarValue{Bits: 1, Kind: ScalarSint}

	a := reg.Append(Constant{Type: 0, Value: one})
	b := reg.Append(Constant{Type: 0, Value: one})
	named := reg.Append(Constant{Name: "ONE", Type: 0, Value: one})
	named2 := reg.Append(Constant{Name: "ONE_AGAIN", Type: 0, Value: one})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, named)
	assert.NotEqual(t, named, named2)
	assert.Len(t, m.Constants, 3)
}

func TestTypeInnerEqual(t *testing.T) {
	st := StructType{Members: []StructMember{{Name: "a", Type: 0}}, Span: 4}

	assert.True(t, TypeInnerEqual(st, StructType{Members: []StructMember{{Name: "a", Type: 0}}, Span: 4}))
	assert.False(t, TypeInnerEqual(st, StructType{Members: []StructMember{{Name: "b", Type: 0}}, Span: 4}))
	assert.False(t, TypeInnerEqual(st, F32))
	assert.True(t, TypeInnerEqual(F32, F32))
	assert.True(t, TypeInnerEqual(nil, nil))
}

func TestTypeName(t *testing.T) {
	types := []Type{{Inner: F32}, {Name: "Light", Inner: StructType{}}}

	assert.Equal(t, "vec3<f32>", TypeName(types, VectorType{Size: Vec3, Scalar: F32}))
	assert.Equal(t, "mat4x4<f32>", TypeName(types, MatrixType{Columns: Vec4, Rows: Vec4, Scalar: F32}))
	assert.Equal(t, "array<f32, 8>", TypeName(types, ArrayType{Base: 0, Size: ArraySize{Constant: 8}}))
	assert.Equal(t, "array<Light>", TypeName(types, ArrayType{Base: 1}))
	assert.Equal(t, "{AbstractInt}", TypeName(types, AbstractInt))
}
