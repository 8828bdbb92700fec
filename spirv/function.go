package spirv

import (
	"github.com/gogpu/wgslc/ir"
)

// Block is a basic block under construction.
// Once finished, its last instruction is the terminator.
type Block struct {
	Label uint32
	Body  []Instruction
}

func (blk *Block) push(op OpCode, words ...uint32) {
	blk.Body = append(blk.Body, Instruction{Opcode: op, Words: words})
}

// function collects the pieces of one SPIR-V function.
// Variables are placed at the top of the first block, as SPIR-V demands.
type function struct {
	signature  Instruction
	parameters []Instruction
	variables  []Instruction
	blocks     []Block
}

// consume finishes block with terminator and appends it to the function.
func (f *function) consume(block *Block, terminator Instruction) {
	block.Body = append(block.Body, terminator)
	f.blocks = append(f.blocks, *block)
	*block = Block{}
}

func (f *function) instructions() []Instruction {
	out := make([]Instruction, 0, 2+len(f.parameters)+len(f.variables)+4*len(f.blocks))

	out = append(out, f.signature)
	out = append(out, f.parameters...)

	for i, blk := range f.blocks {
		out = append(out, Instruction{Opcode: OpLabel, Words: []uint32{blk.Label}})
		if i == 0 {
			out = append(out, f.variables...)
		}
		out = append(out, blk.Body...)
	}

	return append(out, Instruction{Opcode: OpFunctionEnd})
}

// entryInterface is what an entry point exchanges with the pipeline.
type entryInterface struct {
	stage          ir.ShaderStage
	variables      []uint32 // Input and Output variables, for OpEntryPoint
	outputs        []entryOutput
	depthReplacing bool
}

type entryOutput struct {
	id      uint32
	typeID  uint32
	member  int // -1 when the whole result is stored
	builtin *ir.BuiltinValue
}

// blockContext holds the state of one function while its body is written.
type blockContext struct {
	b     *Backend
	fn    *ir.Function
	f     *function
	entry *entryInterface // nil for helper functions

	cached []uint32
	live   []bool
	types  []ir.TypeResolution

	args   []uint32
	locals []uint32

	handles map[ir.GlobalVariableHandle]uint32
	spills  map[ir.ExpressionHandle]uint32
}

// writeFunction writes fn with the given id. For entry points it also
// declares the interface variables and returns them.
//
//nolint:gocyclo,cyclop // signature, interface, locals and prelude
func (b *Backend) writeFunction(fn *ir.Function, id uint32, ep *ir.EntryPoint) (*entryInterface, error) {
	types := fn.ExpressionTypes
	if len(types) != len(fn.Expressions) {
		var t ir.Typifier

		var err error

		types, err = t.ResolveAll(&ir.ResolveContext{Module: b.module, Function: fn})
		if err != nil {
			return nil, internalf("resolve expression types: %v", err)
		}
	}

	c := &blockContext{
		b:       b,
		fn:      fn,
		f:       &function{},
		cached:  make([]uint32, len(fn.Expressions)),
		live:    ir.LiveExpressions(fn),
		types:   types,
		args:    make([]uint32, len(fn.Arguments)),
		locals:  make([]uint32, len(fn.LocalVars)),
		handles: make(map[ir.GlobalVariableHandle]uint32),
		spills:  make(map[ir.ExpressionHandle]uint32),
	}

	// 1. Signature
	result := b.voidTypeID()
	if ep == nil && fn.Result != nil {
		var err error
		if result, err = b.typeID(fn.Result.Type); err != nil {
			return nil, err
		}
	}

	var params []uint32

	if ep == nil {
		params = make([]uint32, len(fn.Arguments))

		for i, arg := range fn.Arguments {
			ty, err := b.typeID(arg.Type)
			if err != nil {
				return nil, err
			}

			params[i] = ty
			c.args[i] = b.builder.AllocID()
			c.f.parameters = append(c.f.parameters, Instruction{Opcode: OpFunctionParameter, Words: []uint32{ty, c.args[i]}})

			if b.options.Debug && arg.Name != "" {
				b.builder.AddName(c.args[i], arg.Name)
			}
		}
	}

	fnType := b.functionTypeID(result, params)
	c.f.signature = Instruction{Opcode: OpFunction, Words: []uint32{result, id, uint32(FunctionControlNone), fnType}}

	if b.options.Debug && ep == nil && fn.Name != "" {
		b.builder.AddName(id, fn.Name)
	}

	block := Block{Label: b.builder.AllocID()}

	// 2. Entry point inputs are loaded up front
	if ep != nil {
		c.entry = &entryInterface{stage: ep.Stage}

		if err := c.writeEntryInputs(&block); err != nil {
			return nil, err
		}

		if err := c.declareEntryOutputs(); err != nil {
			return nil, err
		}
	}

	// 3. Local variables
	for i, lv := range fn.LocalVars {
		ty, err := b.typeID(lv.Type)
		if err != nil {
			return nil, err
		}

		init := b.nullConstant(ty)
		if lv.Init != nil {
			if init, err = c.constantExpression(*lv.Init); err != nil {
				return nil, err
			}
		}

		c.locals[i] = b.builder.AllocID()
		c.f.variables = append(c.f.variables, Instruction{
			Opcode: OpVariable,
			Words:  []uint32{b.pointerTypeID(ty, StorageClassFunction), c.locals[i], uint32(StorageClassFunction), init},
		})

		if b.options.Debug && lv.Name != "" {
			b.builder.AddName(c.locals[i], lv.Name)
		}
	}

	// 4. Resources are loaded once in the entry block, where they dominate every use
	if err := c.loadHandles(&block); err != nil {
		return nil, err
	}

	// 5. Body
	terminated, err := c.writeStatements(&block, fn.Body, LoopContext{})
	if err != nil {
		return nil, err
	}

	if !terminated {
		if err := c.writeExit(&block, exitReturn{}, LoopContext{}); err != nil {
			return nil, err
		}
	}

	b.builder.AddFunction(c.f.instructions())

	if b.tr.If("spirv_function") {
		b.tr.Printw("function", "name", fn.Name, "id", id, "blocks", len(c.f.blocks), "spills", len(c.spills))
	}

	return c.entry, nil
}

// constantExpression evaluates a constant-like expression to a constant id.
func (c *blockContext) constantExpression(h ir.ExpressionHandle) (uint32, error) {
	switch k := c.fn.Expressions[h].Kind.(type) {
	case ir.Literal:
		return c.b.literalID(k.Value)
	case ir.ExprConstant:
		return c.b.constantID(k.Constant)
	case ir.ExprZeroValue:
		ty, err := c.b.typeID(k.Type)
		if err != nil {
			return 0, err
		}

		return c.b.nullConstant(ty), nil
	case ir.ExprCompose:
		ty, err := c.b.typeID(k.Type)
		if err != nil {
			return 0, err
		}

		comps := make([]uint32, len(k.Components))
		for i, ch := range k.Components {
			if comps[i], err = c.constantExpression(ch); err != nil {
				return 0, err
			}
		}

		return c.b.compositeConstant(ty, comps), nil
	case ir.ExprSplat:
		v, err := c.constantExpression(k.Value)
		if err != nil {
			return 0, err
		}

		ty, err := c.resultType(h)
		if err != nil {
			return 0, err
		}

		comps := make([]uint32, k.Size)
		for i := range comps {
			comps[i] = v
		}

		return c.b.compositeConstant(ty, comps), nil
	default:
		return 0, internalf("local initializer %d is not constant (%T)", h, k)
	}
}

// loadHandles loads every resource the function refers to.
func (c *blockContext) loadHandles(block *Block) error {
	for _, e := range c.fn.Expressions {
		gv, ok := e.Kind.(ir.ExprGlobalVariable)
		if !ok {
			continue
		}

		if int(gv.Variable) >= len(c.b.module.GlobalVariables) {
			return internalf("global handle %d out of range", gv.Variable)
		}

		v := &c.b.module.GlobalVariables[gv.Variable]
		if v.Space != ir.SpaceHandle {
			continue
		}

		if _, ok := c.handles[gv.Variable]; ok {
			continue
		}

		ty, err := c.b.typeID(v.Type)
		if err != nil {
			return err
		}

		c.handles[gv.Variable] = c.op(block, OpLoad, ty, c.b.globals[gv.Variable].id)
	}

	return nil
}

// writeEntryInputs declares Input variables for the arguments and
// composes the argument values from them.
func (c *blockContext) writeEntryInputs(block *Block) error {
	for i, arg := range c.fn.Arguments {
		ty, err := c.b.typeID(arg.Type)
		if err != nil {
			return err
		}

		if arg.Binding != nil {
			v, err := c.interfaceVariable(StorageClassInput, arg.Type, arg.Binding, arg.Name)
			if err != nil {
				return err
			}

			c.args[i] = c.op(block, OpLoad, ty, v)

			continue
		}

		st, ok := c.b.module.Types[arg.Type].Inner.(ir.StructType)
		if !ok {
			return internalf("entry point argument %v has no binding", arg.Name)
		}

		comps := make([]uint32, len(st.Members))

		for j, m := range st.Members {
			mty, err := c.b.typeID(m.Type)
			if err != nil {
				return err
			}

			v, err := c.interfaceVariable(StorageClassInput, m.Type, m.Binding, m.Name)
			if err != nil {
				return err
			}

			comps[j] = c.op(block, OpLoad, mty, v)
		}

		c.args[i] = c.op(block, OpCompositeConstruct, ty, comps...)
	}

	return nil
}

// declareEntryOutputs declares the Output variables the result is stored to.
func (c *blockContext) declareEntryOutputs() error {
	res := c.fn.Result
	if res == nil {
		return nil
	}

	add := func(h ir.TypeHandle, bd ir.Binding, member int, name string) error {
		ty, err := c.b.typeID(h)
		if err != nil {
			return err
		}

		v, err := c.interfaceVariable(StorageClassOutput, h, bd, name)
		if err != nil {
			return err
		}

		out := entryOutput{id: v, typeID: ty, member: member}
		if bb, ok := bd.(ir.BuiltinBinding); ok {
			out.builtin = &bb.Builtin
		}

		c.entry.outputs = append(c.entry.outputs, out)

		return nil
	}

	if res.Binding != nil {
		return add(res.Type, res.Binding, -1, "")
	}

	st, ok := c.b.module.Types[res.Type].Inner.(ir.StructType)
	if !ok {
		return internalf("entry point result has no binding")
	}

	for i, m := range st.Members {
		if err := add(m.Type, m.Binding, i, m.Name); err != nil {
			return err
		}
	}

	return nil
}

// interfaceVariable declares one Input or Output variable with its decorations.
//
//nolint:gocyclo,cyclop // builtin table
func (c *blockContext) interfaceVariable(class StorageClass, h ir.TypeHandle, bd ir.Binding, name string) (uint32, error) {
	b := c.b
	stage := c.entry.stage
	input := class == StorageClassInput

	ty, err := b.typeID(h)
	if err != nil {
		return 0, err
	}

	id := b.builder.AddVariable(b.pointerTypeID(ty, class), class)
	c.entry.variables = append(c.entry.variables, id)

	if b.options.Debug && name != "" {
		b.builder.AddName(id, name)
	}

	switch bd := bd.(type) {
	case ir.BuiltinBinding:
		var bi BuiltIn

		switch bd.Builtin {
		case ir.BuiltinPosition:
			bi = BuiltInPosition
			if stage == ir.StageFragment && input {
				bi = BuiltInFragCoord
			}
		case ir.BuiltinVertexIndex:
			bi = BuiltInVertexIndex
		case ir.BuiltinInstanceIndex:
			bi = BuiltInInstanceIndex
		case ir.BuiltinFrontFacing:
			bi = BuiltInFrontFacing
		case ir.BuiltinFragDepth:
			bi = BuiltInFragDepth
			c.entry.depthReplacing = true
		case ir.BuiltinSampleIndex:
			bi = BuiltInSampleID
			if err := b.require(CapabilitySampleRateShading, "sample_index"); err != nil {
				return 0, err
			}
		case ir.BuiltinSampleMask:
			return 0, unimplementedf("sample_mask builtin")
		case ir.BuiltinLocalInvocationID:
			bi = BuiltInLocalInvocationID
		case ir.BuiltinLocalInvocationIndex:
			bi = BuiltInLocalInvocationIndex
		case ir.BuiltinGlobalInvocationID:
			bi = BuiltInGlobalInvocationID
		case ir.BuiltinWorkGroupID:
			bi = BuiltInWorkgroupID
		case ir.BuiltinNumWorkGroups:
			bi = BuiltInNumWorkgroups
		case ir.BuiltinSubgroupSize, ir.BuiltinSubgroupInvocationID:
			bi = BuiltInSubgroupSize
			if bd.Builtin == ir.BuiltinSubgroupInvocationID {
				bi = BuiltInSubgroupLocalInvocationID
			}

			if err := b.require(CapabilityGroupNonUniform, "subgroup builtins"); err != nil {
				return 0, err
			}
		default:
			return 0, unimplementedf("builtin %d", bd.Builtin)
		}

		b.builder.AddDecorate(id, DecorationBuiltIn, uint32(bi))

		if bd.Invariant {
			b.builder.AddDecorate(id, DecorationInvariant)
		}

		// integer builtins a fragment shader reads must be flat
		if input && stage == ir.StageFragment && isInteger(b.module.Types[h].Inner) {
			b.builder.AddDecorate(id, DecorationFlat)
		}

	case ir.LocationBinding:
		b.builder.AddDecorate(id, DecorationLocation, bd.Location)

		varying := (input && stage == ir.StageFragment) || (!input && stage == ir.StageVertex)
		if !varying {
			break
		}

		switch {
		case bd.Interpolation == ir.InterpolationFlat || isInteger(b.module.Types[h].Inner):
			b.builder.AddDecorate(id, DecorationFlat)
		case bd.Interpolation == ir.InterpolationLinear:
			b.builder.AddDecorate(id, DecorationNoPerspective)
		}

	default:
		return 0, internalf("interface variable %v without binding", name)
	}

	return id, nil
}

// writeEntryReturn stores the result to the outputs and returns.
func (c *blockContext) writeEntryReturn(block *Block, value uint32) error {
	b := c.b

	for _, out := range c.entry.outputs {
		v := value
		if out.member >= 0 {
			v = c.op(block, OpCompositeExtract, out.typeID, value, uint32(out.member))
		}

		if out.builtin != nil {
			switch {
			case *out.builtin == ir.BuiltinPosition && c.entry.stage == ir.StageVertex && b.options.AdjustCoordinateSpace:
				f32 := b.scalarTypeID(ir.F32)
				y := c.op(block, OpCompositeExtract, f32, v, 1)
				negY := c.op(block, OpFNegate, f32, y)
				v = c.op(block, OpCompositeInsert, out.typeID, negY, v, 1)

			case *out.builtin == ir.BuiltinFragDepth && b.options.ClampFragDepth:
				v = c.ext(block, out.typeID, GLSLFClamp, v, b.constFloat(ir.F32, 0), b.constFloat(ir.F32, 1))
			}
		}

		block.push(OpStore, out.id, v)
	}

	c.f.consume(block, Instruction{Opcode: OpReturn})

	return nil
}

func isInteger(inner ir.TypeInner) bool {
	s, ok := ir.ScalarOf(inner)
	return ok && (s.Kind == ir.ScalarSint || s.Kind == ir.ScalarUint)
}

// Instruction helpers

// op appends an instruction producing a value and returns its id.
func (c *blockContext) op(block *Block, op OpCode, resultType uint32, operands ...uint32) uint32 {
	id := c.b.builder.AllocID()

	words := make([]uint32, 0, len(operands)+2)
	words = append(words, resultType, id)
	words = append(words, operands...)

	block.Body = append(block.Body, Instruction{Opcode: op, Words: words})

	return id
}

// ext appends a GLSL.std.450 instruction.
func (c *blockContext) ext(block *Block, resultType uint32, inst uint32, operands ...uint32) uint32 {
	words := make([]uint32, 0, len(operands)+2)
	words = append(words, c.b.glslID, inst)
	words = append(words, operands...)

	return c.op(block, OpExtInst, resultType, words...)
}

func (c *blockContext) label() uint32 { return c.b.builder.AllocID() }
