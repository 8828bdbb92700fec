package wgslc

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/gogpu/wgslc/spirv"
	"github.com/gogpu/wgslc/wgsl"
)

const triangleShader = `
struct VertexOutput {
    @builtin(position) position: vec4<f32>,
    @location(0) color: vec3<f32>,
}

@vertex
fn vs_main(@builtin(vertex_index) index: u32) -> VertexOutput {
    var positions = array<vec2<f32>, 3>(
        vec2<f32>(0.0, 0.5),
        vec2<f32>(-0.5, -0.5),
        vec2<f32>(0.5, -0.5),
    );

    var out: VertexOutput;
    out.position = vec4<f32>(positions[index], 0.0, 1.0);
    out.color = vec3<f32>(f32(index) / 2.0, 0.5, 1.0);

    return out;
}

@fragment
fn fs_main(@location(0) color: vec3<f32>) -> @location(0) vec4<f32> {
    return vec4<f32>(color, 1.0);
}
`

const computeShader = `
@group(0) @binding(0) var<storage, read_write> data: array<f32>;

fn scale(x: f32, k: f32) -> f32 {
    return x * k;
}

@compute @workgroup_size(64)
fn main(@builtin(global_invocation_id) id: vec3<u32>) {
    if id.x >= arrayLength(&data) {
        return;
    }

    var acc = 0.0;
    for (var i = 0; i < 4; i++) {
        acc += scale(data[id.x], f32(i));
    }

    data[id.x] = acc;
}
`

func disassemble(t *testing.T, spv []byte) *spirv.Module {
	t.Helper()

	m, err := spirv.Disassemble(spv)
	require.NoError(t, err)

	return m
}

func TestCompileTriangle(t *testing.T) {
	spv, err := Compile(triangleShader)
	require.NoError(t, err)

	m := disassemble(t, spv)

	assert.Equal(t, spirv.Version1_3, m.Version)
	assert.Equal(t, 2, m.Count(spirv.OpEntryPoint))
	assert.Equal(t, 2, m.Count(spirv.OpFunction))
	assert.Equal(t, m.Count(spirv.OpFunction), m.Count(spirv.OpFunctionEnd))
	assert.Equal(t, 1, m.Count(spirv.OpExecutionMode), "OriginUpperLeft for the fragment stage")
}

func TestCompileCompute(t *testing.T) {
	spv, module, err := CompileContext(context.Background(), computeShader, DefaultOptions())
	require.NoError(t, err)
	require.NotNil(t, module)

	assert.Len(t, module.Functions, 1)
	assert.Len(t, module.EntryPoints, 1)

	m := disassemble(t, spv)

	assert.Equal(t, 1, m.Count(spirv.OpFunctionCall))
	assert.Equal(t, 1, m.Count(spirv.OpLoopMerge))
	assert.NotZero(t, m.Count(spirv.OpArrayLength))
}

func TestCompileIsDeterministic(t *testing.T) {
	a, err := Compile(computeShader)
	require.NoError(t, err)

	b, err := Compile(computeShader)
	require.NoError(t, err)

	assert.Equal(t, a, b)
}

func TestCompileErrors(t *testing.T) {
	_, err := Compile(`fn f( {`)
	assert.Error(t, err)

	_, err = Compile(`fn f() { let x = y; }`)
	require.Error(t, err)
	assert.True(t, errors.Is(err, wgsl.ErrUnknownIdentifier), "%v", err)

	var le *wgsl.LoweringError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, wgsl.ErrUnknownIdentifier, le.Kind)
}

func TestCompileWithOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.SPIRV.Version = spirv.Version1_5
	opts.SPIRV.Debug = true

	spv, err := CompileWithOptions(computeShader, opts)
	require.NoError(t, err)

	m := disassemble(t, spv)
	assert.Equal(t, spirv.Version1_5, m.Version)
	assert.NotZero(t, m.Count(spirv.OpName))

	opts.SPIRV.Capabilities = []spirv.Capability{spirv.CapabilityShader}

	_, err = CompileWithOptions(`
@group(0) @binding(0) var t: texture_2d<f32>;

@compute @workgroup_size(1)
fn main() { let d = textureDimensions(t); }`, opts)
	require.Error(t, err)
	assert.True(t, errors.Is(err, spirv.ErrMissingCapability), "%v", err)
}

func TestCompileAll(t *testing.T) {
	var sources []Source

	for i := 0; i < 8; i++ {
		sources = append(sources, Source{Name: fmt.Sprintf("compute%d", i), Text: computeShader})
	}

	sources = append(sources,
		Source{Name: "triangle", Text: triangleShader},
		Source{Name: "broken", Text: `fn f() -> i32 { return 1.5; }`},
	)

	results, err := CompileAll(context.Background(), sources, DefaultOptions())
	require.NoError(t, err)
	require.Len(t, results, len(sources))

	want, err := Compile(computeShader)
	require.NoError(t, err)

	for i, r := range results[:8] {
		assert.Equal(t, sources[i].Name, r.Name)
		assert.NoError(t, r.Err)
		assert.Equal(t, want, r.SPIRV, r.Name)
	}

	assert.NoError(t, results[8].Err)
	assert.NotEmpty(t, results[8].SPIRV)

	broken := results[9]
	assert.Equal(t, "broken", broken.Name)
	require.Error(t, broken.Err)
	assert.True(t, errors.Is(broken.Err, wgsl.ErrTypeMismatch), "%v", broken.Err)
	assert.Contains(t, broken.Err.Error(), "broken")
	assert.Nil(t, broken.SPIRV)
}

func TestCompileAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results, err := CompileAll(ctx, []Source{{Name: "a", Text: computeShader}}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, results, 1)
	assert.Nil(t, results[0].SPIRV)
}

func TestStages(t *testing.T) {
	ast, err := Parse(triangleShader)
	require.NoError(t, err)

	module, err := Lower(context.Background(), ast, triangleShader, wgsl.DefaultOptions())
	require.NoError(t, err)

	require.NoError(t, Validate(module))

	spv, err := GenerateSPIRV(context.Background(), module, spirv.DefaultOptions())
	require.NoError(t, err)

	want, err := Compile(triangleShader)
	require.NoError(t, err)

	assert.Equal(t, want, spv)
}
