package spirv

import (
	"encoding/binary"
	"fmt"
	"strings"

	"tlog.app/go/errors"
)

// Module is a decoded SPIR-V binary.
type Module struct {
	Version   Version
	Generator uint32
	Bound     uint32
	Schema    uint32

	Instructions []Instruction
}

// Disassemble decodes a SPIR-V binary. It checks the header, the word
// counts and that every result id is below the bound.
func Disassemble(data []byte) (*Module, error) {
	if len(data)%4 != 0 {
		return nil, errors.New("size %d is not a multiple of 4", len(data))
	}

	if len(data) < 20 {
		return nil, errors.New("too short for a header: %d bytes", len(data))
	}

	word := func(i int) uint32 { return binary.LittleEndian.Uint32(data[i*4:]) }

	if magic := word(0); magic != MagicNumber {
		return nil, errors.New("bad magic number 0x%08x", magic)
	}

	v := word(1)

	m := &Module{
		Version:   Version{Major: uint8(v >> 16), Minor: uint8(v >> 8)},
		Generator: word(2),
		Bound:     word(3),
		Schema:    word(4),
	}

	n := len(data) / 4

	for i := 5; i < n; {
		head := word(i)
		op := OpCode(head & 0xffff)
		count := int(head >> 16)

		if count == 0 || i+count > n {
			return nil, errors.New("word %d: %v has bad word count %d", i, op, count)
		}

		inst := Instruction{Opcode: op, Words: make([]uint32, count-1)}
		for j := range inst.Words {
			inst.Words[j] = word(i + 1 + j)
		}

		if id, ok := inst.ResultID(); ok && (id == 0 || id >= m.Bound) {
			return nil, errors.New("word %d: %v result id %d outside bound %d", i, op, id, m.Bound)
		}

		m.Instructions = append(m.Instructions, inst)
		i += count
	}

	return m, nil
}

// resultLayout reports whether an instruction has a result type and a result id.
func resultLayout(op OpCode) (hasType, hasResult bool) {
	switch {
	case op == OpExtInstImport, op == OpString, op == OpLabel:
		return false, true
	case op >= OpTypeVoid && op <= OpTypeFunction:
		return false, true
	}

	switch op {
	case OpNop, OpSource, OpSourceExtension, OpName, OpMemberName, OpLine,
		OpExtension, OpMemoryModel, OpEntryPoint, OpExecutionMode, OpCapability,
		OpFunctionEnd, OpStore, OpDecorate, OpMemberDecorate,
		OpSelectionMerge, OpLoopMerge, OpBranch, OpBranchConditional, OpSwitch,
		OpKill, OpReturn, OpReturnValue, OpUnreachable,
		OpControlBarrier, OpMemoryBarrier, OpAtomicStore, OpImageWrite:
		return false, false
	}

	return true, true
}

// ResultID returns the id an instruction defines.
func (i Instruction) ResultID() (uint32, bool) {
	hasType, hasResult := resultLayout(i.Opcode)
	if !hasResult {
		return 0, false
	}

	at := 0
	if hasType {
		at = 1
	}

	if at >= len(i.Words) {
		return 0, false
	}

	return i.Words[at], true
}

// Count returns how many instructions have opcode op.
func (m *Module) Count(op OpCode) int {
	n := 0

	for _, inst := range m.Instructions {
		if inst.Opcode == op {
			n++
		}
	}

	return n
}

// Find returns the instructions with opcode op, in order.
func (m *Module) Find(op OpCode) []Instruction {
	var r []Instruction

	for _, inst := range m.Instructions {
		if inst.Opcode == op {
			r = append(r, inst)
		}
	}

	return r
}

// Definition returns the instruction defining id.
func (m *Module) Definition(id uint32) (Instruction, bool) {
	for _, inst := range m.Instructions {
		if r, ok := inst.ResultID(); ok && r == id {
			return inst, true
		}
	}

	return Instruction{}, false
}

// String renders the module in the assembly form of spirv-dis.
func (m *Module) String() string {
	var b strings.Builder

	fmt.Fprintf(&b, "; SPIR-V\n; Version: %v\n; Generator: 0x%08x\n; Bound: %d\n; Schema: %d\n",
		m.Version, m.Generator, m.Bound, m.Schema)

	for _, inst := range m.Instructions {
		writeInstructionText(&b, inst)
		b.WriteByte('\n')
	}

	return b.String()
}

//nolint:gocyclo,cyclop // operand kinds per opcode
func writeInstructionText(b *strings.Builder, inst Instruction) {
	ops := inst.Words
	hasType, hasResult := resultLayout(inst.Opcode)

	if hasResult && len(ops) > 0 {
		res := 0
		if hasType {
			res = 1
		}

		if res < len(ops) {
			fmt.Fprintf(b, "%%%d = ", ops[res])
		}
	} else {
		b.WriteString("      ")
	}

	b.WriteString(inst.Opcode.String())

	rest := ops

	switch {
	case hasType && len(ops) >= 2:
		fmt.Fprintf(b, " %%%d", ops[0])
		rest = ops[2:]
	case hasResult && len(ops) >= 1:
		rest = ops[1:]
	}

	ids := func(ws []uint32) {
		for _, w := range ws {
			fmt.Fprintf(b, " %%%d", w)
		}
	}

	lits := func(ws []uint32) {
		for _, w := range ws {
			fmt.Fprintf(b, " %d", w)
		}
	}

	switch inst.Opcode {
	case OpCapability:
		if len(rest) > 0 {
			fmt.Fprintf(b, " %v", Capability(rest[0]))
		}

	case OpExtension, OpExtInstImport, OpString, OpSourceExtension:
		s, _ := decodeString(rest)
		fmt.Fprintf(b, " %q", s)

	case OpName:
		if len(rest) > 0 {
			s, _ := decodeString(rest[1:])
			fmt.Fprintf(b, " %%%d %q", rest[0], s)
		}

	case OpMemberName:
		if len(rest) > 1 {
			s, _ := decodeString(rest[2:])
			fmt.Fprintf(b, " %%%d %d %q", rest[0], rest[1], s)
		}

	case OpEntryPoint:
		if len(rest) > 1 {
			s, n := decodeString(rest[2:])
			fmt.Fprintf(b, " %d %%%d %q", rest[0], rest[1], s)
			ids(rest[2+n:])
		}

	case OpDecorate, OpExecutionMode:
		if len(rest) > 0 {
			fmt.Fprintf(b, " %%%d", rest[0])
			lits(rest[1:])
		}

	case OpMemberDecorate:
		if len(rest) > 0 {
			fmt.Fprintf(b, " %%%d", rest[0])
			lits(rest[1:])
		}

	case OpMemoryModel, OpTypeInt, OpTypeFloat, OpConstant, OpSpecConstant, OpSelectionMerge:
		if inst.Opcode == OpSelectionMerge && len(rest) > 0 {
			fmt.Fprintf(b, " %%%d", rest[0])
			lits(rest[1:])

			break
		}

		lits(rest)

	case OpTypeVector, OpTypeMatrix, OpCompositeExtract, OpCompositeInsert:
		n := 1
		if inst.Opcode == OpCompositeInsert {
			n = 2
		}

		if len(rest) >= n {
			ids(rest[:n])
			lits(rest[n:])
		}

	case OpTypePointer, OpVariable:
		if inst.Opcode == OpTypePointer && len(rest) == 2 {
			fmt.Fprintf(b, " %d %%%d", rest[0], rest[1])
		} else {
			lits(rest[:min(1, len(rest))])
			ids(rest[min(1, len(rest)):])
		}

	case OpExtInst:
		if len(rest) >= 2 {
			fmt.Fprintf(b, " %%%d %d", rest[0], rest[1])
			ids(rest[2:])
		}

	case OpVectorShuffle:
		if len(rest) >= 2 {
			ids(rest[:2])
			lits(rest[2:])
		}

	case OpLoopMerge:
		if len(rest) >= 2 {
			ids(rest[:2])
			lits(rest[2:])
		}

	case OpSwitch:
		if len(rest) >= 2 {
			ids(rest[:2])

			for j := 2; j+1 < len(rest); j += 2 {
				fmt.Fprintf(b, " %d %%%d", rest[j], rest[j+1])
			}
		}

	case OpFunction:
		if len(rest) == 2 {
			fmt.Fprintf(b, " %d %%%d", rest[0], rest[1])
		}

	default:
		ids(rest)
	}
}

// decodeString reads a nul-terminated literal string and returns it
// with the number of words it occupies.
func decodeString(ws []uint32) (string, int) {
	var sb strings.Builder

	for i, w := range ws {
		for k := 0; k < 4; k++ {
			c := byte(w >> (8 * k))
			if c == 0 {
				return sb.String(), i + 1
			}

			sb.WriteByte(c)
		}
	}

	return sb.String(), len(ws)
}
