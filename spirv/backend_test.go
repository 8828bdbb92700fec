package spirv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/gogpu/wgslc/wgsl"
)

func compileSource(src string, opts Options) ([]byte, error) {
	ast, err := wgsl.Parse(src)
	if err != nil {
		return nil, err
	}

	module, err := wgsl.Lower(context.Background(), ast, src, wgsl.DefaultOptions())
	if err != nil {
		return nil, err
	}

	return NewBackend(opts).Compile(module)
}

// compile compiles src, decodes the result and checks its block structure.
func compile(t *testing.T, src string, opts Options) *Module {
	t.Helper()

	data, err := compileSource(src, opts)
	require.NoError(t, err)

	m, err := Disassemble(data)
	require.NoError(t, err)

	checkBlocks(t, m)

	return m
}

func isTerminator(op OpCode) bool {
	switch op {
	case OpBranch, OpBranchConditional, OpSwitch, OpReturn, OpReturnValue, OpKill, OpUnreachable:
		return true
	}

	return false
}

// checkBlocks verifies every block has exactly one terminator, every
// branch, merge and phi parent refers to a declared label, and every
// structured construct owns its own merge and continue labels.
//
//nolint:gocyclo // one check per instruction kind
func checkBlocks(t *testing.T, m *Module) {
	t.Helper()

	labels := map[uint32]int{}
	merges := map[uint32]int{}
	continues := map[uint32]int{}
	var targets []uint32

	inFunction, inBlock := false, false
	blocks, terminators := 0, 0

	for i, inst := range m.Instructions {
		w := inst.Words

		switch inst.Opcode {
		case OpFunction:
			require.False(t, inFunction, "nested OpFunction")
			inFunction = true

			continue
		case OpFunctionEnd:
			require.False(t, inBlock, "function ends inside a block")
			inFunction = false

			continue
		case OpLabel:
			require.False(t, inBlock, "label %%%d opens a block before the previous one ended", w[0])
			inBlock = true
			labels[w[0]]++
			blocks++

			continue
		case OpBranch:
			targets = append(targets, w[0])
		case OpBranchConditional:
			targets = append(targets, w[1], w[2])
		case OpSwitch:
			for j := 1; j < len(w); j += 2 {
				targets = append(targets, w[j])
			}
		case OpSelectionMerge:
			targets = append(targets, w[0])
			merges[w[0]]++

			require.Less(t, i+1, len(m.Instructions))
			next := m.Instructions[i+1].Opcode
			assert.True(t, next == OpBranchConditional || next == OpSwitch, "OpSelectionMerge followed by %v", next)
		case OpLoopMerge:
			targets = append(targets, w[0], w[1])
			merges[w[0]]++
			continues[w[1]]++
			assert.NotEqual(t, w[0], w[1], "loop merge and continue labels are the same")

			require.Less(t, i+1, len(m.Instructions))
			next := m.Instructions[i+1].Opcode
			assert.True(t, next == OpBranch || next == OpBranchConditional, "OpLoopMerge followed by %v", next)
		case OpPhi:
			for j := 3; j < len(w); j += 2 {
				targets = append(targets, w[j])
			}
		}

		if !inFunction {
			continue
		}

		if inst.Opcode == OpFunctionParameter {
			require.False(t, inBlock)
			continue
		}

		require.True(t, inBlock, "%v outside of a block", inst.Opcode)

		if isTerminator(inst.Opcode) {
			inBlock = false
			terminators++
		}
	}

	assert.Equal(t, blocks, terminators, "blocks and terminators")

	for id, n := range labels {
		assert.Equal(t, 1, n, "label %%%d is declared %d times", id, n)
	}

	for id, n := range merges {
		assert.Equal(t, 1, n, "label %%%d merges %d constructs", id, n)
		assert.Equal(t, 1, labels[id], "merge label %%%d is not declared", id)
		assert.Zero(t, continues[id], "label %%%d is both a merge and a continue target", id)
	}

	for id, n := range continues {
		assert.Equal(t, 1, n, "label %%%d continues %d loops", id, n)
		assert.Equal(t, 1, labels[id], "continue label %%%d is not declared", id)
	}

	for _, target := range targets {
		assert.NotZero(t, labels[target], "label %%%d is referenced but not declared", target)
	}
}

func definition(t *testing.T, m *Module, id uint32) Instruction {
	t.Helper()

	inst, ok := m.Definition(id)
	require.True(t, ok, "id %%%d is not defined", id)

	return inst
}

func extInsts(m *Module, inst uint32) []Instruction {
	var r []Instruction

	for _, x := range m.Find(OpExtInst) {
		if x.Words[3] == inst {
			r = append(r, x)
		}
	}

	return r
}

func TestCompileAbstractAddition(t *testing.T) {
	m := compile(t, `fn f() -> i32 { let x = 1 + 2; return x; }`, DefaultOptions())

	adds := m.Find(OpIAdd)
	require.Len(t, adds, 1)

	ty := definition(t, m, adds[0].Words[0])
	assert.Equal(t, OpTypeInt, ty.Opcode)
	assert.Equal(t, []uint32{32, 1}, ty.Words[1:])

	for _, operand := range adds[0].Words[2:] {
		c := definition(t, m, operand)
		assert.Equal(t, OpConstant, c.Opcode)
		assert.Equal(t, adds[0].Words[0], c.Words[0])
	}

	assert.Equal(t, 1, m.Count(OpReturnValue))
}

func TestCompileRuntimeArrayIsChecked(t *testing.T) {
	m := compile(t, `
@group(0) @binding(0) var<storage, read> data: array<f32>;
@group(0) @binding(1) var<storage, read_write> out: f32;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    out = data[id.x];
}`, DefaultOptions())

	assert.Equal(t, 1, m.Count(OpArrayLength))
	assert.NotZero(t, m.Count(OpULessThan))
	assert.Equal(t, 1, m.Count(OpPhi))

	// both buffers are wrapped in a Block struct
	blocks := 0
	for _, d := range m.Find(OpDecorate) {
		if Decoration(d.Words[1]) == DecorationBlock {
			blocks++
		}
	}
	assert.Equal(t, 2, blocks)
}

func TestCompileConstantIndexIsNotChecked(t *testing.T) {
	m := compile(t, `
var<private> data: array<f32, 4>;

fn f() -> f32 { return data[2]; }`, DefaultOptions())

	assert.Zero(t, m.Count(OpULessThan))
	assert.Zero(t, m.Count(OpExtInst))
	assert.Equal(t, 1, m.Count(OpAccessChain))
}

func TestCompileDynamicIndexIsClamped(t *testing.T) {
	m := compile(t, `
var<private> data: array<f32, 4>;

fn f(i: u32) -> f32 { return data[i]; }`, DefaultOptions())

	mins := extInsts(m, GLSLUMin)
	require.Len(t, mins, 1)

	last := definition(t, m, mins[0].Words[5])
	assert.Equal(t, OpConstant, last.Opcode)
	assert.Equal(t, uint32(3), last.Words[2])

	opts := DefaultOptions()
	opts.BoundsChecks.Index = BoundsCheckUnchecked

	m = compile(t, `
var<private> data: array<f32, 4>;

fn f(i: u32) -> f32 { return data[i]; }`, opts)

	assert.Zero(t, m.Count(OpExtInst))
}

func TestCompileOverloadCallsOneExtInst(t *testing.T) {
	m := compile(t, `fn f() -> f32 { let m = max(1.0, 2); return m; }`, DefaultOptions())

	require.Equal(t, 1, m.Count(OpExtInst))

	call := m.Find(OpExtInst)[0]
	assert.Equal(t, GLSLFMax, call.Words[3])

	imports := m.Find(OpExtInstImport)
	require.Len(t, imports, 1)
	assert.Equal(t, imports[0].Words[0], call.Words[2])

	ty := definition(t, m, call.Words[0])
	assert.Equal(t, OpTypeFloat, ty.Opcode)

	for _, operand := range call.Words[4:] {
		assert.Equal(t, call.Words[0], definition(t, m, operand).Words[0])
	}
}

func TestCompileBreakIfDeclaresMerge(t *testing.T) {
	m := compile(t, `
fn f() {
    var i = 0;
    loop {
        if i > 5 { return; }
        continuing {
            i += 1;
            break if i >= 10;
        }
    }
}`, DefaultOptions())

	merges := m.Find(OpLoopMerge)
	require.Len(t, merges, 1)

	merge := merges[0].Words[0]

	// the header is the block holding OpLoopMerge
	var header, current uint32
	for _, inst := range m.Instructions {
		switch inst.Opcode {
		case OpLabel:
			current = inst.Words[0]
		case OpLoopMerge:
			header = current
		}
	}

	found := false
	for _, br := range m.Find(OpBranchConditional) {
		if br.Words[1] == merge && br.Words[2] == header {
			found = true
		}
	}

	assert.True(t, found, "no break-if branch to the merge block")

	declared := false
	for _, l := range m.Find(OpLabel) {
		declared = declared || l.Words[0] == merge
	}

	assert.True(t, declared)
}

func TestCompileSpillInsideLoop(t *testing.T) {
	m := compile(t, `
fn f(a: array<vec4<f32>, 4>, n: u32) -> vec4<f32> {
    var sum = vec4<f32>();
    var y = 0u;
    loop {
        if y >= n { break; }
        var x: vec4<f32> = a[y];
        sum += x;
        y += 1u;
    }
    return sum;
}`, DefaultOptions())

	params := m.Find(OpFunctionParameter)
	require.Len(t, params, 2)

	array := params[0].Words[1]

	var (
		inLoop     bool
		merge      uint32
		inside     int
		outside    int
		loopMerges int
	)

	for _, inst := range m.Instructions {
		switch inst.Opcode {
		case OpLoopMerge:
			inLoop = true
			merge = inst.Words[0]
			loopMerges++
		case OpLabel:
			if inLoop && inst.Words[0] == merge {
				inLoop = false
			}
		case OpStore:
			if inst.Words[1] != array {
				continue
			}

			if inLoop {
				inside++
			} else {
				outside++
			}
		}
	}

	require.Equal(t, 1, loopMerges)
	assert.Equal(t, 1, inside)
	assert.Zero(t, outside)
}

func TestCompileAtomics(t *testing.T) {
	m := compile(t, `
@group(0) @binding(0) var<storage, read_write> counter: atomic<u32>;

@compute @workgroup_size(64)
fn main() {
    let old = atomicAdd(&counter, 1u);
    let r = atomicCompareExchangeWeak(&counter, old, 5u);
    workgroupBarrier();
}`, DefaultOptions())

	assert.Equal(t, 1, m.Count(OpAtomicIAdd))
	assert.Equal(t, 1, m.Count(OpAtomicCompareExchange))
	assert.Equal(t, 1, m.Count(OpControlBarrier))

	modes := m.Find(OpExecutionMode)
	require.Len(t, modes, 1)
	assert.Equal(t, []uint32{uint32(ExecutionModeLocalSize), 64, 1, 1}, modes[0].Words[1:])
}

func TestCompileMissingCapability(t *testing.T) {
	const src = `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;

@fragment
fn main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    let dims = textureDimensions(tex);
    return textureSample(tex, samp, uv) * f32(dims.x);
}`

	opts := DefaultOptions()
	opts.Capabilities = []Capability{CapabilityShader}

	_, err := compileSource(src, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingCapability), "%v", err)

	var be *BackendError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, CapabilityImageQuery, be.Capability)

	opts.Capabilities = append(opts.Capabilities, CapabilityImageQuery)

	m := compile(t, src, opts)

	var caps []Capability
	for _, c := range m.Find(OpCapability) {
		caps = append(caps, Capability(c.Words[0]))
	}

	assert.ElementsMatch(t, []Capability{CapabilityShader, CapabilityImageQuery}, caps)
	assert.Equal(t, 1, m.Count(OpImageSampleImplicitLod))
	assert.Equal(t, 1, m.Count(OpSampledImage))
}

func TestCompileAdjustCoordinateSpace(t *testing.T) {
	const src = `
@vertex
fn main(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(f32(i), 0.0, 0.0, 1.0);
}`

	opts := DefaultOptions()

	m := compile(t, src, opts)
	assert.Zero(t, m.Count(OpFNegate))

	opts.AdjustCoordinateSpace = true

	m = compile(t, src, opts)
	assert.Equal(t, 1, m.Count(OpFNegate))

	eps := m.Find(OpEntryPoint)
	require.Len(t, eps, 1)
	assert.Equal(t, uint32(ExecutionModelVertex), eps[0].Words[0])

	name, n := decodeString(eps[0].Words[2:])
	assert.Equal(t, "main", name)
	assert.Len(t, eps[0].Words[2+n:], 2, "one input and one output")
}

func TestCompileDebugNames(t *testing.T) {
	const src = `fn helper(x: f32) -> f32 { return x * 2.0; }`

	m := compile(t, src, DefaultOptions())
	assert.Zero(t, m.Count(OpName))

	opts := DefaultOptions()
	opts.Debug = true

	m = compile(t, src, opts)

	var names []string
	for _, n := range m.Find(OpName) {
		s, _ := decodeString(n.Words[1:])
		names = append(names, s)
	}

	assert.Contains(t, names, "helper")
	assert.Contains(t, names, "x")
}

func TestCompileForceLoopBounding(t *testing.T) {
	const src = `
fn f() {
    var i = 0;
    loop {
        i += 1;
        if i > 3 { break; }
    }
}`

	m := compile(t, src, DefaultOptions())
	assert.Zero(t, m.Count(OpAll))

	opts := DefaultOptions()
	opts.ForceLoopBounding = true

	m = compile(t, src, opts)
	assert.Equal(t, 1, m.Count(OpAll))
	assert.Equal(t, 1, m.Count(OpLoopMerge))
	assert.Len(t, m.Find(OpVariable), 2, "the local and the iteration counter")
}

func TestCompileInterfaceSinceVersion14(t *testing.T) {
	const src = `
@group(0) @binding(0) var<storage, read_write> out: array<u32>;

@compute @workgroup_size(1)
fn main() { out[0] = 1u; }`

	opts := DefaultOptions()

	m := compile(t, src, opts)
	eps := m.Find(OpEntryPoint)
	require.Len(t, eps, 1)
	_, n := decodeString(eps[0].Words[2:])
	assert.Empty(t, eps[0].Words[2+n:])

	opts.Version = Version1_4

	m = compile(t, src, opts)
	eps = m.Find(OpEntryPoint)
	require.Len(t, eps, 1)
	_, n = decodeString(eps[0].Words[2:])
	assert.Len(t, eps[0].Words[2+n:], 1)
	assert.Equal(t, Version1_4, m.Version)
}

func TestCompileCasts(t *testing.T) {
	m := compile(t, `
fn f(x: f32, b: bool) -> i32 {
    return i32(x) + i32(b);
}`, DefaultOptions())

	assert.Equal(t, 1, m.Count(OpConvertFToS))
	assert.Equal(t, 1, m.Count(OpSelect), "bool to int")
	assert.Len(t, extInsts(m, GLSLFClamp), 1, "float is clamped before conversion")
}

func TestCompileIntegerDot(t *testing.T) {
	m := compile(t, `
fn f(a: vec3<i32>, b: vec3<i32>) -> i32 {
    return dot(a, b);
}`, DefaultOptions())

	assert.Zero(t, m.Count(OpDot))
	assert.Equal(t, 1, m.Count(OpIMul))
	assert.Equal(t, 3, m.Count(OpCompositeExtract))
	assert.Equal(t, 2, m.Count(OpIAdd))
}

func TestCompileOverrides(t *testing.T) {
	m := compile(t, `
@id(7) override gain: f32 = 2.0;
override enabled = true;

fn f() -> f32 {
    if enabled {
        return gain;
    }
    return 0.0;
}`, DefaultOptions())

	specs := m.Find(OpSpecConstant)
	require.Len(t, specs, 1)
	assert.Equal(t, uint32(0x40000000), specs[0].Words[2])
	assert.Equal(t, 1, m.Count(OpSpecConstantTrue))

	var ids []uint32
	for _, d := range m.Find(OpDecorate) {
		if Decoration(d.Words[1]) == DecorationSpecID {
			assert.Equal(t, specs[0].Words[1], d.Words[0])
			ids = append(ids, d.Words[2])
		}
	}

	assert.Equal(t, []uint32{7}, ids)
}

func TestCompileClampFragDepth(t *testing.T) {
	const src = `
@fragment
fn main(@location(0) d: f32) -> @builtin(frag_depth) f32 {
    return d;
}`

	opts := DefaultOptions()

	m := compile(t, src, opts)
	assert.Empty(t, extInsts(m, GLSLFClamp))

	opts.ClampFragDepth = true

	m = compile(t, src, opts)
	assert.Len(t, extInsts(m, GLSLFClamp), 1)
}

func TestCompileSwitchSharesLabels(t *testing.T) {
	m := compile(t, `
fn f(x: i32) -> i32 {
    var r = 0;
    switch x {
        case 1, 2 { r = 10; }
        case 3, default { r = 20; }
    }
    return r;
}`, DefaultOptions())

	switches := m.Find(OpSwitch)
	require.Len(t, switches, 1)
	assert.Equal(t, 1, m.Count(OpSelectionMerge))

	w := switches[0].Words
	require.Len(t, w, 8, "selector, default and three literal/label pairs")

	def := w[1]
	assert.Equal(t, []uint32{1, 2, 3}, []uint32{w[2], w[4], w[6]})
	assert.Equal(t, w[3], w[5], "case 1 falls into case 2")
	assert.Equal(t, def, w[7], "case 3 shares the default label")
	assert.NotEqual(t, def, w[3])

	// two case bodies, each storing to r
	assert.Equal(t, 2, m.Count(OpStore))
}

func TestCompileReadZeroSkipWriteGuardsStore(t *testing.T) {
	const src = `
@group(0) @binding(0) var<storage, read_write> d: array<f32>;

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    d[id.x] = 1.0;
}`

	m := compile(t, src, DefaultOptions())
	require.Equal(t, BoundsCheckReadZeroSkipWrite, DefaultOptions().BoundsChecks.Buffer)

	var (
		current  uint32
		storeIn  uint32
		selMerge uint32
		stores   int
	)

	for _, inst := range m.Instructions {
		switch inst.Opcode {
		case OpLabel:
			current = inst.Words[0]
		case OpSelectionMerge:
			selMerge = inst.Words[0]
		case OpStore:
			if definition(t, m, inst.Words[0]).Opcode == OpAccessChain {
				storeIn = current
				stores++
			}
		}
	}

	require.Equal(t, 1, stores)
	require.NotZero(t, selMerge)

	guards := 0
	for _, br := range m.Find(OpBranchConditional) {
		if br.Words[1] != storeIn {
			continue
		}

		guards++
		assert.Equal(t, selMerge, br.Words[2], "out of range skips to the merge block")
		assert.Equal(t, OpULessThan, definition(t, m, br.Words[0]).Opcode)
	}

	assert.Equal(t, 1, guards)
	assert.Equal(t, 1, m.Count(OpArrayLength))
	assert.Zero(t, m.Count(OpPhi), "a store produces no value")

	opts := DefaultOptions()
	opts.BoundsChecks.Buffer = BoundsCheckUnchecked

	m = compile(t, src, opts)
	assert.Zero(t, m.Count(OpSelectionMerge))
	assert.Zero(t, m.Count(OpArrayLength))
}
