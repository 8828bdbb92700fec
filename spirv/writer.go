package spirv

import (
	"encoding/binary"
)

// Instruction is one SPIR-V instruction without its leading
// opcode and word count word.
type Instruction struct {
	Opcode OpCode
	Words  []uint32 // result type ID, result ID, operands
}

// Encode returns the instruction words, the opcode word first.
func (i Instruction) Encode() []uint32 {
	n := uint32(len(i.Words) + 1)

	out := make([]uint32, 0, n)
	out = append(out, n<<16|uint32(i.Opcode))

	return append(out, i.Words...)
}

// stringWords encodes s as a nul-terminated literal string padded to words.
func stringWords(s string) []uint32 {
	words := make([]uint32, len(s)/4+1)

	for i := 0; i < len(s); i++ {
		words[i/4] |= uint32(s[i]) << (8 * (i % 4))
	}

	return words
}

// ModuleBuilder collects a module section by section and lays the
// sections out in the order SPIR-V requires.
type ModuleBuilder struct {
	version Version
	nextID  uint32

	capabilities   []Instruction
	extensions     []Instruction
	extInstImports []Instruction
	memoryModel    []Instruction
	entryPoints    []Instruction
	executionModes []Instruction
	debugNames     []Instruction // OpName, OpMemberName
	annotations    []Instruction // OpDecorate, OpMemberDecorate
	types          []Instruction // types and constants, in dependency order
	globalVars     []Instruction
	functions      []Instruction
}

// NewModuleBuilder creates a module builder targeting version.
func NewModuleBuilder(version Version) *ModuleBuilder {
	return &ModuleBuilder{version: version, nextID: 1}
}

// AllocID allocates a new result id.
func (b *ModuleBuilder) AllocID() uint32 {
	id := b.nextID
	b.nextID++

	return id
}

// Bound returns one more than the largest allocated id.
func (b *ModuleBuilder) Bound() uint32 { return b.nextID }

func emit(section *[]Instruction, op OpCode, words ...uint32) {
	*section = append(*section, Instruction{Opcode: op, Words: words})
}

// declare allocates an id and appends a type instruction defining it.
func (b *ModuleBuilder) declare(op OpCode, operands ...uint32) uint32 {
	id := b.AllocID()
	emit(&b.types, op, append([]uint32{id}, operands...)...)

	return id
}

// constant allocates an id and appends a constant of type typeID.
func (b *ModuleBuilder) constant(op OpCode, typeID uint32, operands ...uint32) uint32 {
	id := b.AllocID()
	emit(&b.types, op, append([]uint32{typeID, id}, operands...)...)

	return id
}

func (b *ModuleBuilder) AddCapability(c Capability) {
	emit(&b.capabilities, OpCapability, uint32(c))
}

func (b *ModuleBuilder) AddExtension(name string) {
	emit(&b.extensions, OpExtension, stringWords(name)...)
}

// AddExtInstImport imports an extended instruction set and returns its id.
func (b *ModuleBuilder) AddExtInstImport(name string) uint32 {
	id := b.AllocID()
	emit(&b.extInstImports, OpExtInstImport, append([]uint32{id}, stringWords(name)...)...)

	return id
}

func (b *ModuleBuilder) SetMemoryModel(addressing AddressingModel, memory MemoryModel) {
	b.memoryModel = []Instruction{{Opcode: OpMemoryModel, Words: []uint32{uint32(addressing), uint32(memory)}}}
}

func (b *ModuleBuilder) AddEntryPoint(model ExecutionModel, fn uint32, name string, interfaces []uint32) {
	words := append([]uint32{uint32(model), fn}, stringWords(name)...)
	emit(&b.entryPoints, OpEntryPoint, append(words, interfaces...)...)
}

func (b *ModuleBuilder) AddExecutionMode(entryPoint uint32, mode ExecutionMode, params ...uint32) {
	emit(&b.executionModes, OpExecutionMode, append([]uint32{entryPoint, uint32(mode)}, params...)...)
}

// Debug information

func (b *ModuleBuilder) AddName(id uint32, name string) {
	emit(&b.debugNames, OpName, append([]uint32{id}, stringWords(name)...)...)
}

func (b *ModuleBuilder) AddMemberName(structID, member uint32, name string) {
	emit(&b.debugNames, OpMemberName, append([]uint32{structID, member}, stringWords(name)...)...)
}

// Annotations

func (b *ModuleBuilder) AddDecorate(id uint32, decoration Decoration, params ...uint32) {
	emit(&b.annotations, OpDecorate, append([]uint32{id, uint32(decoration)}, params...)...)
}

func (b *ModuleBuilder) AddMemberDecorate(structID, member uint32, decoration Decoration, params ...uint32) {
	emit(&b.annotations, OpMemberDecorate, append([]uint32{structID, member, uint32(decoration)}, params...)...)
}

// Types

func (b *ModuleBuilder) AddTypeVoid() uint32 { return b.declare(OpTypeVoid) }
func (b *ModuleBuilder) AddTypeBool() uint32 { return b.declare(OpTypeBool) }

func (b *ModuleBuilder) AddTypeFloat(width uint32) uint32 { return b.declare(OpTypeFloat, width) }

func (b *ModuleBuilder) AddTypeInt(width uint32, signed bool) uint32 {
	return b.declare(OpTypeInt, width, boolWord(signed))
}

func (b *ModuleBuilder) AddTypeVector(component, count uint32) uint32 {
	return b.declare(OpTypeVector, component, count)
}

func (b *ModuleBuilder) AddTypeMatrix(column, columns uint32) uint32 {
	return b.declare(OpTypeMatrix, column, columns)
}

// AddTypeArray declares a sized array. length is the id of a constant.
func (b *ModuleBuilder) AddTypeArray(element, length uint32) uint32 {
	return b.declare(OpTypeArray, element, length)
}

func (b *ModuleBuilder) AddTypeRuntimeArray(element uint32) uint32 {
	return b.declare(OpTypeRuntimeArray, element)
}

func (b *ModuleBuilder) AddTypePointer(class StorageClass, base uint32) uint32 {
	return b.declare(OpTypePointer, uint32(class), base)
}

func (b *ModuleBuilder) AddTypeFunction(result uint32, params ...uint32) uint32 {
	return b.declare(OpTypeFunction, append([]uint32{result}, params...)...)
}

func (b *ModuleBuilder) AddTypeStruct(members ...uint32) uint32 {
	return b.declare(OpTypeStruct, members...)
}

// AddTypeImage declares an image type without an access qualifier.
// sampled is 1 for sampled images and 2 for storage images.
func (b *ModuleBuilder) AddTypeImage(sampledType uint32, dim Dim, depth, arrayed, multisampled bool, sampled uint32, format ImageFormat) uint32 {
	return b.declare(OpTypeImage, sampledType, uint32(dim),
		boolWord(depth), boolWord(arrayed), boolWord(multisampled), sampled, uint32(format))
}

func (b *ModuleBuilder) AddTypeSampler() uint32 { return b.declare(OpTypeSampler) }

func (b *ModuleBuilder) AddTypeSampledImage(image uint32) uint32 {
	return b.declare(OpTypeSampledImage, image)
}

// Constants

// AddConstant declares a numeric constant; 64-bit values take two words, low first.
func (b *ModuleBuilder) AddConstant(typeID uint32, values ...uint32) uint32 {
	return b.constant(OpConstant, typeID, values...)
}

func (b *ModuleBuilder) AddConstantBool(typeID uint32, value bool) uint32 {
	if value {
		return b.constant(OpConstantTrue, typeID)
	}

	return b.constant(OpConstantFalse, typeID)
}

func (b *ModuleBuilder) AddConstantNull(typeID uint32) uint32 {
	return b.constant(OpConstantNull, typeID)
}

func (b *ModuleBuilder) AddConstantComposite(typeID uint32, constituents ...uint32) uint32 {
	return b.constant(OpConstantComposite, typeID, constituents...)
}

func (b *ModuleBuilder) AddSpecConstant(typeID uint32, values ...uint32) uint32 {
	return b.constant(OpSpecConstant, typeID, values...)
}

func (b *ModuleBuilder) AddSpecConstantBool(typeID uint32, value bool) uint32 {
	if value {
		return b.constant(OpSpecConstantTrue, typeID)
	}

	return b.constant(OpSpecConstantFalse, typeID)
}

// Variables and functions

// AddVariable declares a module-scope variable.
func (b *ModuleBuilder) AddVariable(pointerType uint32, class StorageClass) uint32 {
	id := b.AllocID()
	emit(&b.globalVars, OpVariable, pointerType, id, uint32(class))

	return id
}

// AddVariableWithInit declares a module-scope variable with an initializer constant.
func (b *ModuleBuilder) AddVariableWithInit(pointerType uint32, class StorageClass, init uint32) uint32 {
	id := b.AllocID()
	emit(&b.globalVars, OpVariable, pointerType, id, uint32(class), init)

	return id
}

// AddFunction appends one complete function, OpFunction to OpFunctionEnd.
func (b *ModuleBuilder) AddFunction(instructions []Instruction) {
	b.functions = append(b.functions, instructions...)
}

func boolWord(v bool) uint32 {
	if v {
		return 1
	}

	return 0
}

// Build lays out the header and all sections.
func (b *ModuleBuilder) Build() []byte {
	sections := [][]Instruction{
		b.capabilities,
		b.extensions,
		b.extInstImports,
		b.memoryModel,
		b.entryPoints,
		b.executionModes,
		b.debugNames,
		b.annotations,
		b.types,
		b.globalVars,
		b.functions,
	}

	words := []uint32{MagicNumber, versionToWord(b.version), GeneratorID, b.nextID, 0}

	for _, sec := range sections {
		for _, inst := range sec {
			words = append(words, inst.Encode()...)
		}
	}

	out := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[4*i:], w)
	}

	return out
}

func versionToWord(v Version) uint32 {
	return uint32(v.Major)<<16 | uint32(v.Minor)<<8
}
