package wgslc

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"github.com/gogpu/wgslc/spirv"
	"github.com/gogpu/wgslc/wgsl"
)

const shaderBlur = `
@group(0) @binding(0) var src: texture_2d<f32>;
@group(0) @binding(1) var<storage, read_write> dst: array<vec4<f32>>;

const RADIUS = 4;

@compute @workgroup_size(8, 8)
fn main(@builtin(global_invocation_id) gid: vec3<u32>) {
    let size = textureDimensions(src);
    if gid.x >= size.x || gid.y >= size.y {
        return;
    }

    var sum = vec4<f32>();
    var weight = 0.0;

    for (var dy = -RADIUS; dy <= RADIUS; dy++) {
        for (var dx = -RADIUS; dx <= RADIUS; dx++) {
            let p = clamp(vec2<i32>(gid.xy) + vec2<i32>(dx, dy), vec2<i32>(0), vec2<i32>(size) - 1);
            let w = exp(-f32(dx * dx + dy * dy) / 8.0);
            sum += textureLoad(src, p, 0) * w;
            weight += w;
        }
    }

    dst[gid.y * size.x + gid.x] = sum / weight;
}
`

const shaderLighting = `
struct Light {
    position: vec3<f32>,
    color: vec3<f32>,
}

struct Lights {
    count: u32,
    items: array<Light>,
}

@group(0) @binding(0) var<storage, read> lights: Lights;

fn attenuate(d: f32) -> f32 {
    return 1.0 / (1.0 + 0.09 * d + 0.032 * d * d);
}

@fragment
fn main(@location(0) pos: vec3<f32>, @location(1) normal: vec3<f32>) -> @location(0) vec4<f32> {
    let n = normalize(normal);
    var color = vec3<f32>(0.05);

    for (var i = 0u; i < lights.count; i++) {
        let l = lights.items[i];
        let dir = l.position - pos;
        let diffuse = max(dot(n, normalize(dir)), 0.0);
        color += l.color * diffuse * attenuate(length(dir));
    }

    return vec4<f32>(pow(color, vec3<f32>(1.0 / 2.2)), 1.0);
}
`

var benchShaders = []Source{
	{Name: "triangle", Text: triangleShader},
	{Name: "compute", Text: computeShader},
	{Name: "blur", Text: shaderBlur},
	{Name: "lighting", Text: shaderLighting},
}

func BenchmarkCompile(b *testing.B) {
	for _, s := range benchShaders {
		b.Run(s.Name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(s.Text)))

			for i := 0; i < b.N; i++ {
				if _, err := Compile(s.Text); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkStages(b *testing.B) {
	src := shaderLighting
	ctx := context.Background()

	ast, err := Parse(src)
	if err != nil {
		b.Fatal(err)
	}

	module, err := Lower(ctx, ast, src, wgsl.DefaultOptions())
	if err != nil {
		b.Fatal(err)
	}

	b.Run("parse", func(b *testing.B) {
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := Parse(src); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("lower", func(b *testing.B) {
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := Lower(ctx, ast, src, wgsl.DefaultOptions()); err != nil {
				b.Fatal(err)
			}
		}
	})

	b.Run("validate", func(b *testing.B) {
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if err := Validate(module); err != nil {
				b.Fatal(err)
			}
		}
	})

	opts := spirv.DefaultOptions()
	opts.Validation = false

	b.Run("spirv", func(b *testing.B) {
		b.ReportAllocs()

		for i := 0; i < b.N; i++ {
			if _, err := GenerateSPIRV(ctx, module, opts); err != nil {
				b.Fatal(err)
			}
		}
	})
}

func BenchmarkCompileAll(b *testing.B) {
	var sources []Source

	for i := 0; i < runtime.GOMAXPROCS(0); i++ {
		for _, s := range benchShaders {
			sources = append(sources, Source{Name: fmt.Sprintf("%s-%d", s.Name, i), Text: s.Text})
		}
	}

	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		results, err := CompileAll(context.Background(), sources, DefaultOptions())
		if err != nil {
			b.Fatal(err)
		}

		for _, r := range results {
			if r.Err != nil {
				b.Fatal(r.Err)
			}
		}
	}
}
