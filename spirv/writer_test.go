package spirv

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModuleBuilderHeader(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	b.AddCapability(CapabilityShader)
	b.SetMemoryModel(AddressingModelLogical, MemoryModelGLSL450)

	data := b.Build()
	require.GreaterOrEqual(t, len(data), 20)

	word := func(i int) uint32 { return binary.LittleEndian.Uint32(data[4*i:]) }

	assert.Equal(t, uint32(MagicNumber), word(0))
	assert.Equal(t, uint32(1<<16|3<<8), word(1))
	assert.Equal(t, uint32(GeneratorID), word(2))
	assert.Equal(t, b.Bound(), word(3))
	assert.Equal(t, uint32(0), word(4))

	// OpCapability Shader: 2 words
	assert.Equal(t, uint32(2<<16|uint32(OpCapability)), word(5))
	assert.Equal(t, uint32(CapabilityShader), word(6))
}

func TestModuleBuilderIDs(t *testing.T) {
	b := NewModuleBuilder(Version1_0)

	void := b.AddTypeVoid()
	f32 := b.AddTypeFloat(32)
	i32 := b.AddTypeInt(32, true)
	vec4 := b.AddTypeVector(f32, 4)

	assert.Equal(t, []uint32{1, 2, 3, 4}, []uint32{void, f32, i32, vec4})
	assert.Equal(t, uint32(5), b.Bound())

	next := b.AllocID()
	assert.Equal(t, uint32(5), next)
	assert.Equal(t, uint32(6), b.Bound())
}

func TestStringWords(t *testing.T) {
	assert.Equal(t, []uint32{0}, stringWords(""))
	assert.Equal(t, []uint32{0x64636261, 0}, stringWords("abcd"))
	assert.Equal(t, []uint32{0x6c6c6568, 0x6f}, stringWords("hello"))

	s, n := decodeString(stringWords("main"))
	assert.Equal(t, "main", s)
	assert.Equal(t, 2, n)
}

func TestModuleBuilderSectionOrder(t *testing.T) {
	b := NewModuleBuilder(Version1_3)

	// declared out of order on purpose
	f32 := b.AddTypeFloat(32)
	b.AddName(f32, "float")
	b.AddDecorate(f32, DecorationRowMajor)
	b.SetMemoryModel(AddressingModelLogical, MemoryModelGLSL450)
	b.AddCapability(CapabilityShader)
	b.AddExtension(ExtStorageBufferStorageClass)

	m, err := Disassemble(b.Build())
	require.NoError(t, err)

	var ops []OpCode
	for _, inst := range m.Instructions {
		ops = append(ops, inst.Opcode)
	}

	assert.Equal(t, []OpCode{OpCapability, OpExtension, OpMemoryModel, OpName, OpDecorate, OpTypeFloat}, ops)
}

func TestModuleBuilderEntryPoint(t *testing.T) {
	b := NewModuleBuilder(Version1_3)
	b.AddCapability(CapabilityShader)
	b.SetMemoryModel(AddressingModelLogical, MemoryModelGLSL450)

	void := b.AddTypeVoid()
	fnType := b.AddTypeFunction(void)
	fn := b.AllocID()
	label := b.AllocID()

	b.AddEntryPoint(ExecutionModelGLCompute, fn, "main", nil)
	b.AddExecutionMode(fn, ExecutionModeLocalSize, 8, 8, 1)
	b.AddFunction([]Instruction{
		{Opcode: OpFunction, Words: []uint32{void, fn, uint32(FunctionControlNone), fnType}},
		{Opcode: OpLabel, Words: []uint32{label}},
		{Opcode: OpReturn},
		{Opcode: OpFunctionEnd},
	})

	m, err := Disassemble(b.Build())
	require.NoError(t, err)

	eps := m.Find(OpEntryPoint)
	require.Len(t, eps, 1)

	name, _ := decodeString(eps[0].Words[2:])
	assert.Equal(t, "main", name)
	assert.Equal(t, fn, eps[0].Words[1])

	modes := m.Find(OpExecutionMode)
	require.Len(t, modes, 1)
	assert.Equal(t, []uint32{fn, uint32(ExecutionModeLocalSize), 8, 8, 1}, modes[0].Words)

	assert.Contains(t, m.String(), `OpEntryPoint 5 %3 "main"`)
}

func TestDisassembleRejectsBadInput(t *testing.T) {
	_, err := Disassemble([]byte{1, 2, 3})
	assert.Error(t, err)

	bad := NewModuleBuilder(Version1_0).Build()
	bad[0] = 0
	_, err = Disassemble(bad)
	assert.Error(t, err)

	// a result id equal to the bound
	b := NewModuleBuilder(Version1_0)
	b.AddTypeVoid()
	data := b.Build()
	binary.LittleEndian.PutUint32(data[12:], 1)
	_, err = Disassemble(data)
	assert.Error(t, err)

	// truncated instruction
	data = NewModuleBuilder(Version1_0).Build()
	data = binary.LittleEndian.AppendUint32(data, 3<<16|uint32(OpCapability))
	_, err = Disassemble(data)
	assert.Error(t, err)
}
