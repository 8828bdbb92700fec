package wgsl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/gogpu/wgslc/ir"
)

func lowerSource(src string, opts Options) (*ir.Module, error) {
	ast, err := Parse(src)
	if err != nil {
		return nil, err
	}

	return Lower(context.Background(), ast, src, opts)
}

// lower lowers src and checks that the result validates.
func lower(t *testing.T, src string) *ir.Module {
	t.Helper()

	m, err := lowerSource(src, DefaultOptions())
	require.NoError(t, err)

	errs, err := ir.Validate(m)
	require.NoError(t, err)
	require.Empty(t, errs)

	return m
}

func lowerError(t *testing.T, src string) *LoweringError {
	t.Helper()

	_, err := lowerSource(src, DefaultOptions())
	require.Error(t, err)

	var le *LoweringError
	require.True(t, errors.As(err, &le), "%v", err)

	return le
}

// last finds the last expression of kind T.
func last[T ir.ExpressionKind](fn *ir.Function) (ir.ExpressionHandle, T, bool) {
	for i := len(fn.Expressions) - 1; i >= 0; i-- {
		if k, ok := fn.Expressions[i].Kind.(T); ok {
			return ir.ExpressionHandle(i), k, true
		}
	}

	var zero T

	return 0, zero, false
}

func typeOf(m *ir.Module, fn *ir.Function, h ir.ExpressionHandle) ir.TypeInner {
	return fn.ExpressionTypes[h].Inner(m.Types)
}

func TestLowerAbstractLetBecomesI32(t *testing.T) {
	m := lower(t, `fn f() -> i32 { let x = 1 + 2; return x; }`)

	fn := &m.Functions[0]
	h, bin, ok := last[ir.ExprBinary](fn)
	require.True(t, ok)

	assert.Equal(t, ir.BinaryAdd, bin.Op)
	assert.Equal(t, ir.Literal{Value: ir.LiteralI32(1)}, fn.Expressions[bin.Left].Kind)
	assert.Equal(t, ir.Literal{Value: ir.LiteralI32(2)}, fn.Expressions[bin.Right].Kind)
	assert.Equal(t, ir.I32, typeOf(m, fn, h))
	assert.Equal(t, "x", fn.NamedExpressions[h])

	ret, ok := fn.Body[len(fn.Body)-1].Kind.(ir.StmtReturn)
	require.True(t, ok)
	require.NotNil(t, ret.Value)
	assert.Equal(t, h, *ret.Value)
}

func TestLowerOverloadPrefersF32(t *testing.T) {
	m := lower(t, `fn f() { let m = max(1.0, 2); }`)

	fn := &m.Functions[0]
	h, mf, ok := last[ir.ExprMath](fn)
	require.True(t, ok)

	assert.Equal(t, ir.MathMax, mf.Fun)
	assert.Equal(t, ir.F32, typeOf(m, fn, h))
	assert.Equal(t, ir.Literal{Value: ir.LiteralF32(2)}, fn.Expressions[*mf.Arg1].Kind)
}

func TestLowerNegativeLiteralFolds(t *testing.T) {
	m := lower(t, `fn f() -> i32 { return -2147483648; }`)

	fn := &m.Functions[0]
	ret := fn.Body[len(fn.Body)-1].Kind.(ir.StmtReturn)
	assert.Equal(t, ir.Literal{Value: ir.LiteralI32(-2147483648)}, fn.Expressions[*ret.Value].Kind)
}

func TestLowerConstants(t *testing.T) {
	m := lower(t, `
const N = 4;
const HALF: f32 = 0.5;
var<private> data: array<f32, N * 2>;
var<private> scale: f32 = HALF;
const_assert N == 4;
`)

	require.Len(t, m.GlobalVariables, 2)

	arr, ok := m.Types[m.GlobalVariables[0].Type].Inner.(ir.ArrayType)
	require.True(t, ok)
	assert.Equal(t, uint32(8), arr.Size.Constant)

	scale := m.GlobalVariables[1]
	assert.Equal(t, ir.SpacePrivate, scale.Space)
	require.NotNil(t, scale.Init)
}

func TestLowerGlobalVariables(t *testing.T) {
	m := lower(t, `
struct Params { scale: f32 }
@group(0) @binding(0) var<uniform> params: Params;
@group(0) @binding(1) var<storage> input: array<f32>;
@group(0) @binding(2) var<storage, read_write> output: array<f32>;
var<workgroup> shared_data: array<u32, 64>;
`)

	require.Len(t, m.GlobalVariables, 4)

	assert.Equal(t, ir.SpaceUniform, m.GlobalVariables[0].Space)
	assert.Equal(t, &ir.ResourceBinding{Group: 0, Binding: 0}, m.GlobalVariables[0].Binding)

	assert.Equal(t, ir.SpaceStorage, m.GlobalVariables[1].Space)
	assert.Equal(t, ir.StorageAccessLoad, m.GlobalVariables[1].Access)
	assert.Equal(t, ir.StorageAccessLoad|ir.StorageAccessStore, m.GlobalVariables[2].Access)

	assert.Equal(t, ir.SpaceWorkGroup, m.GlobalVariables[3].Space)
}

func TestLowerEntryPoints(t *testing.T) {
	m := lower(t, `
@vertex
fn vs(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    let x = f32(idx);
    return vec4<f32>(x, 0.0, 0.0, 1.0);
}

@fragment
fn fs() -> @location(0) vec4f {
    return vec4f(1.0);
}

@compute @workgroup_size(8, 4)
fn cs() {}
`)

	require.Len(t, m.EntryPoints, 3)
	assert.Empty(t, m.Functions)

	assert.Equal(t, ir.StageVertex, m.EntryPoints[0].Stage)
	assert.Equal(t, ir.StageFragment, m.EntryPoints[1].Stage)

	cs := m.EntryPoints[2]
	assert.Equal(t, ir.StageCompute, cs.Stage)
	assert.Equal(t, [3]uint32{8, 4, 1}, cs.Workgroup)
}

func TestLowerDeclarationsInAnyOrder(t *testing.T) {
	m := lower(t, `
fn main() -> f32 { return helper(SCALE); }
fn helper(x: f32) -> f32 { return x * 2.0; }
const SCALE = 1.5;
`)

	require.Len(t, m.Functions, 2)
	assert.Equal(t, "helper", m.Functions[0].Name)
	assert.Equal(t, "main", m.Functions[1].Name)

	_, call, ok := last[ir.ExprCallResult](&m.Functions[1])
	require.True(t, ok)
	assert.Equal(t, ir.FunctionHandle(0), call.Function)
}

func TestLowerLocalVariables(t *testing.T) {
	m := lower(t, `
fn f() -> i32 {
    var a = 1;
    var b: i32;
    for (var i = 0; i < 4; i++) {
        var c = 2;
        a += c;
    }
    return a + b;
}`)

	fn := &m.Functions[0]
	require.Len(t, fn.LocalVars, 4)

	// a constant initializer outside a loop becomes the variable's init
	require.NotNil(t, fn.LocalVars[0].Init)
	assert.Equal(t, ir.Literal{Value: ir.LiteralI32(1)}, fn.Expressions[*fn.LocalVars[0].Init].Kind)
	assert.Nil(t, fn.LocalVars[1].Init)

	// inside a loop the value is stored each iteration
	assert.Equal(t, "c", fn.LocalVars[3].Name)
	assert.Nil(t, fn.LocalVars[3].Init)
}

func TestLowerForLoop(t *testing.T) {
	m := lower(t, `
fn f() {
    for (var i = 0u; i < 4u; i++) {
        if i == 2u { continue; }
    }
}`)

	fn := &m.Functions[0]
	require.Len(t, fn.Body, 1)

	block, ok := fn.Body[0].Kind.(ir.StmtBlock)
	require.True(t, ok)

	loop, ok := block.Block[len(block.Block)-1].Kind.(ir.StmtLoop)
	require.True(t, ok)
	assert.NotEmpty(t, loop.Continuing)

	var guard *ir.StmtIf
	for i := range loop.Body {
		if s, ok := loop.Body[i].Kind.(ir.StmtIf); ok {
			guard = &s
			break
		}
	}
	require.NotNil(t, guard)
	require.Len(t, guard.Reject, 1)
	assert.Equal(t, ir.StmtBreak{}, guard.Reject[0].Kind)
}

func TestLowerLoopBreakIf(t *testing.T) {
	m := lower(t, `
fn f() {
    var i = 0;
    loop {
        let step = 1;
        continuing {
            i += step;
            break if i >= 10;
        }
    }
}`)

	fn := &m.Functions[0]
	loop, ok := fn.Body[len(fn.Body)-1].Kind.(ir.StmtLoop)
	require.True(t, ok)
	require.NotNil(t, loop.BreakIf)
	assert.Equal(t, ir.Bool, typeOf(m, fn, *loop.BreakIf))
}

func TestLowerSwitch(t *testing.T) {
	m := lower(t, `
fn f(x: u32) -> u32 {
    var r = 0u;
    switch x {
        case 1, 2: { r = 10u; }
        case 3, default: { r = 20u; }
    }
    return r;
}`)

	fn := &m.Functions[0]

	var sw ir.StmtSwitch
	for _, s := range fn.Body {
		if k, ok := s.Kind.(ir.StmtSwitch); ok {
			sw = k
		}
	}
	require.Len(t, sw.Cases, 4)

	assert.Equal(t, ir.SwitchValueU32(1), sw.Cases[0].Value)
	assert.True(t, sw.Cases[0].FallThrough)
	assert.Empty(t, sw.Cases[0].Body)

	assert.Equal(t, ir.SwitchValueU32(2), sw.Cases[1].Value)
	assert.False(t, sw.Cases[1].FallThrough)
	assert.NotEmpty(t, sw.Cases[1].Body)

	assert.Equal(t, ir.SwitchValueU32(3), sw.Cases[2].Value)
	assert.Equal(t, ir.SwitchValueDefault{}, sw.Cases[3].Value)
}

func TestLowerSwitchAbstractSelector(t *testing.T) {
	m := lower(t, `
fn f() {
    switch 2 {
        case 1 { }
        default { }
    }
}`)

	fn := &m.Functions[0]
	sw, ok := fn.Body[len(fn.Body)-1].Kind.(ir.StmtSwitch)
	require.True(t, ok)
	assert.Equal(t, ir.SwitchValueI32(1), sw.Cases[0].Value)
	assert.Equal(t, ir.I32, typeOf(m, fn, sw.Selector))
}

func TestLowerBinarySplat(t *testing.T) {
	count := func(fn *ir.Function) (splats, binaries int) {
		for _, e := range fn.Expressions {
			switch e.Kind.(type) {
			case ir.ExprSplat:
				splats++
			case ir.ExprBinary:
				binaries++
			}
		}
		return splats, binaries
	}

	tests := []struct {
		name   string
		body   string
		splats int
	}{
		{"vector plus scalar", `return v + 1.0;`, 1},
		{"scalar minus vector", `return 1.0 - v;`, 1},
		{"vector divided by scalar", `return v / 2.0;`, 1},
		{"vector times scalar", `return v * 2.0;`, 0},
		{"vector plus vector", `return v + v;`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := lower(t, "fn f(v: vec3<f32>) -> vec3<f32> { "+tt.body+" }")

			fn := &m.Functions[0]
			splats, binaries := count(fn)
			assert.Equal(t, tt.splats, splats)
			assert.Equal(t, 1, binaries)

			h, _, ok := last[ir.ExprBinary](fn)
			require.True(t, ok)
			assert.Equal(t, ir.VectorType{Size: ir.Vec3, Scalar: ir.F32}, typeOf(m, fn, h))

			if _, sp, ok := last[ir.ExprSplat](fn); ok {
				assert.Equal(t, ir.Vec3, sp.Size)
				assert.Equal(t, ir.TypeInner(ir.F32), typeOf(m, fn, sp.Value), "only scalars are splatted")
			}
		})
	}
}

func TestLowerSwizzleAndAccess(t *testing.T) {
	m := lower(t, `
struct S { v: vec4<f32>, a: array<f32, 4> }
fn f(s: S, i: i32) -> f32 {
    let xy = s.v.xy;
    let z = s.v.z;
    return xy.x + z + s.a[i];
}`)

	fn := &m.Functions[0]

	h, sw, ok := last[ir.ExprSwizzle](fn)
	require.True(t, ok)
	assert.Equal(t, ir.Vec2, sw.Size)
	assert.Equal(t, ir.VectorType{Size: ir.Vec2, Scalar: ir.F32}, typeOf(m, fn, h))

	_, _, ok = last[ir.ExprAccess](fn)
	assert.True(t, ok)
}

func TestLowerPointers(t *testing.T) {
	m := lower(t, `
fn inc(p: ptr<function, i32>) { *p = *p + 1; }
fn f() -> i32 {
    var x = 1;
    inc(&x);
    return x;
}`)

	require.Len(t, m.Functions, 2)

	fn := &m.Functions[1]
	var call *ir.StmtCall
	for i := range fn.Body {
		if c, ok := fn.Body[i].Kind.(ir.StmtCall); ok {
			call = &c
		}
	}
	require.NotNil(t, call)
	require.Len(t, call.Arguments, 1)
	assert.IsType(t, ir.ExprLocalVariable{}, fn.Expressions[call.Arguments[0]].Kind)
	assert.Nil(t, call.Result)
}

func TestLowerPointerCompositeAccess(t *testing.T) {
	m := lower(t, `
struct S { a: vec4<f32>, b: array<f32, 4> }
fn f(i: u32) -> f32 {
    var a: array<f32, 4>;
    var s: S;
    let p = &a;
    let q = &s;
    return p[i] + q.a.x + q.b[i];
}`)

	fn := &m.Functions[0]

	loads := 0
	for i, e := range fn.Expressions {
		switch k := e.Kind.(type) {
		case ir.ExprAccess, ir.ExprAccessIndex:
			assert.True(t, ir.IsPointer(typeOf(m, fn, ir.ExpressionHandle(i))), "%T at %d", k, i)
		case ir.ExprLoad:
			loads++
		}
	}

	assert.Equal(t, 3, loads)
}

func TestLowerPointerArgumentAccess(t *testing.T) {
	m := lower(t, `
struct S { a: vec4<f32> }
fn get(q: ptr<function, S>) -> f32 { return q.a.x; }
fn put(p: ptr<function, array<f32, 4>>, i: i32) { p[i] = 1.0; }
`)

	get := &m.Functions[0]
	h, _, ok := last[ir.ExprAccessIndex](get)
	require.True(t, ok)
	assert.True(t, ir.IsPointer(typeOf(m, get, h)))

	put := &m.Functions[1]
	var store *ir.StmtStore
	for i := range put.Body {
		if s, ok := put.Body[i].Kind.(ir.StmtStore); ok {
			store = &s
		}
	}
	require.NotNil(t, store)
	assert.IsType(t, ir.ExprAccess{}, put.Expressions[store.Pointer].Kind)
}

func TestLowerAtomics(t *testing.T) {
	m := lower(t, `
@group(0) @binding(0) var<storage, read_write> counter: atomic<u32>;

@compute @workgroup_size(64)
fn main() {
    let old = atomicAdd(&counter, 1u);
    let r = atomicCompareExchangeWeak(&counter, old, 5u);
    workgroupBarrier();
}`)

	fn := &m.EntryPoints[0].Function

	var atomics []ir.StmtAtomic
	var barrier bool
	for _, s := range fn.Body {
		switch k := s.Kind.(type) {
		case ir.StmtAtomic:
			atomics = append(atomics, k)
		case ir.StmtBarrier:
			barrier = k.Flags == ir.BarrierWorkGroup
		}
	}

	require.Len(t, atomics, 2)
	assert.Equal(t, ir.AtomicAdd{}, atomics[0].Fun)
	require.NotNil(t, atomics[0].Result)
	assert.Equal(t, ir.U32, typeOf(m, fn, *atomics[0].Result))

	ex, ok := atomics[1].Fun.(ir.AtomicExchange)
	require.True(t, ok)
	assert.NotNil(t, ex.Compare)

	res := fn.Expressions[*atomics[1].Result].Kind.(ir.ExprAtomicResult)
	assert.True(t, res.Comparison)
	st, ok := m.Types[res.Type].Inner.(ir.StructType)
	require.True(t, ok)
	assert.Equal(t, "old_value", st.Members[0].Name)
	assert.Equal(t, "exchanged", st.Members[1].Name)

	assert.True(t, barrier)
}

func TestLowerTextures(t *testing.T) {
	m := lower(t, `
@group(0) @binding(0) var tex: texture_2d<f32>;
@group(0) @binding(1) var samp: sampler;

@fragment
fn main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    let dims = textureDimensions(tex);
    let texel = textureLoad(tex, vec2<i32>(0, 0), 0);
    return textureSample(tex, samp, uv) + texel;
}`)

	fn := &m.EntryPoints[0].Function

	h, sample, ok := last[ir.ExprImageSample](fn)
	require.True(t, ok)
	assert.Equal(t, ir.SampleLevelAuto{}, sample.Level)
	assert.Equal(t, ir.VectorType{Size: ir.Vec4, Scalar: ir.F32}, typeOf(m, fn, h))

	_, load, ok := last[ir.ExprImageLoad](fn)
	require.True(t, ok)
	assert.NotNil(t, load.Level)

	h, _, ok = last[ir.ExprImageQuery](fn)
	require.True(t, ok)
	assert.Equal(t, ir.VectorType{Size: ir.Vec2, Scalar: ir.U32}, typeOf(m, fn, h))
}

func TestLowerOverride(t *testing.T) {
	m := lower(t, `
@id(7) override gain: f32 = 2.0;
override enabled = true;
fn f() -> f32 { return gain; }
`)

	require.Len(t, m.Overrides, 2)
	require.NotNil(t, m.Overrides[0].ID)
	assert.Equal(t, uint16(7), *m.Overrides[0].ID)
	assert.Nil(t, m.Overrides[1].ID)
	assert.Equal(t, ir.TypeInner(ir.Bool), m.Types[m.Overrides[1].Type].Inner)
}

func TestLowerErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
	}{
		{"unknown identifier", `fn f() { let x = y; }`, ErrUnknownIdentifier},
		{"unknown function", `fn f() { let x = nope(1); }`, ErrUnknownIdentifier},
		{"break outside loop", `fn f() { break; }`, ErrInvalidControlFlow},
		{"continue in switch", `fn f() { switch 1 { default { continue; } } }`, ErrInvalidControlFlow},
		{"return in continuing", `fn f() { loop { continuing { return; } } }`, ErrInvalidControlFlow},
		{"switch without default", `fn f() { switch 1 { case 1 { } } }`, ErrInvalidControlFlow},
		{"duplicate case", `fn f() { switch 1 { case 1 { } case 1 { } default { } } }`, ErrRedefinition},
		{"assign to let", `fn f() { let x = 1; x = 2; }`, ErrInvalidAssignment},
		{"assign to uniform", `
@group(0) @binding(0) var<uniform> u: f32;
fn f() { u = 1.0; }`, ErrInvalidAssignment},
		{"assign to read-only storage", `
@group(0) @binding(0) var<storage> s: array<f32>;
fn f() { s[0] = 1.0; }`, ErrInvalidAssignment},
		{"wrong argument count", `fn f() -> f32 { return sin(1.0, 2.0); }`, ErrWrongArgumentCount},
		{"wrong argument type", `fn f() -> f32 { return sin(true); }`, ErrWrongArgumentType},
		{"inconsistent arguments", `fn f() { let a = 1i; let b = 2u; let c = max(a, b); }`, ErrInconsistentArgumentType},
		{"return type mismatch", `fn f() -> i32 { return 1.5; }`, ErrTypeMismatch},
		{"missing return value", `fn f() -> i32 { return; }`, ErrTypeMismatch},
		{"non-bool condition", `fn f() { if 1 { } }`, ErrTypeMismatch},
		{"const assert", `const_assert 1 > 2;`, ErrConstAssertFailed},
		{"not constant", `fn f() { var x = 1; const c = x; }`, ErrNotConstant},
		{"address of value", `fn f() { let p = &1; }`, ErrInvalidAddressOf},
		{"cyclic constants", `const a = b; const b = a;`, ErrCyclicDeclaration},
		{"recursion", `fn f() { g(); } fn g() { f(); }`, ErrCyclicDeclaration},
		{"redeclared global", `const a = 1; const a = 2;`, ErrRedefinition},
		{"redeclared local", `fn f() { let x = 1; let x = 2; }`, ErrRedefinition},
		{"overflow", `const x: i32 = 3000000000;`, ErrOverflow},
		{"constant division by zero", `fn f() -> i32 { return 1 / 0; }`, ErrOverflow},
		{"constant shift out of range", `fn f() -> u32 { return 1u << 32u; }`, ErrOverflow},
		{"constant overflow in runtime context", `fn f(x: i32) -> i32 { return x + (2147483647i + 1i); }`, ErrOverflow},
		{"shift wider than concrete type", `fn f() -> i32 { return 1 << 40u; }`, ErrOverflow},
		{"f16 parameter", `fn f(x: f16) {}`, ErrUnsupported},
		{"f16 vector template", `fn f() { var v: vec3<f16>; }`, ErrUnsupported},
		{"f16 matrix shorthand", `fn f(m: mat2x2h) {}`, ErrUnsupported},
		{"f16 literal", `fn f() { let x = 1.0h; }`, ErrUnsupported},
		{"override workgroup size", `override N: u32 = 64u; @compute @workgroup_size(N) fn main() {}`, ErrUnsupported},
		{"index out of bounds", `fn f() -> f32 { let v = vec2<f32>(1.0, 2.0); return v[2]; }`, ErrOutOfBounds},
		{"bad swizzle", `fn f() -> f32 { let v = vec2<f32>(1.0, 2.0); return v.z; }`, ErrBadAccessor},
		{"unknown member", `struct S { a: f32 } fn f(s: S) -> f32 { return s.b; }`, ErrBadAccessor},
		{"compute without size", `@compute fn main() {}`, ErrWrongArgumentCount},
		{"zero workgroup size", `@compute @workgroup_size(0) fn main() {}`, ErrOutOfBounds},
		{"unpaired binding", `@group(0) var<uniform> u: f32;`, ErrWrongArgumentCount},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			le := lowerError(t, tt.src)
			assert.Equal(t, tt.kind, le.Kind, le.Error())
		})
	}
}

func TestLowerConstantOperandsAreNotFolded(t *testing.T) {
	m := lower(t, `fn f(x: i32, s: u32) -> i32 { return (1i + 2i) / x + (x << s); }`)

	fn := &m.Functions[0]

	binaries := 0
	for _, e := range fn.Expressions {
		if _, ok := e.Kind.(ir.ExprBinary); ok {
			binaries++
		}
	}

	assert.Equal(t, 4, binaries, "constant operands are not folded")
}

func TestLowerErrorIs(t *testing.T) {
	_, err := lowerSource(`fn f() { let x = y; }`, DefaultOptions())
	require.Error(t, err)

	assert.True(t, errors.Is(err, ErrUnknownIdentifier))
	assert.False(t, errors.Is(err, ErrTypeMismatch))
	assert.Contains(t, err.Error(), "1:18")
}

func TestLowerInconsistentArgumentsRelatedSpan(t *testing.T) {
	src := `fn f() { let a = 1i; let b = 2u; let c = max(a, b); }`
	le := lowerError(t, src)

	require.NotNil(t, le.Related)
	assert.Equal(t, "b", src[le.Span.Start:le.Span.End])
	assert.Equal(t, "a", src[le.Related.Start:le.Related.End])
	assert.Contains(t, le.FormatWithContext(), "related location")
}

func TestLowerDepthLimit(t *testing.T) {
	src := `fn f() -> i32 { return ((((((((1)))))))); }`

	_, err := lowerSource(src, Options{MaxDepth: 4})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrResourceLimit))

	_, err = lowerSource(src, DefaultOptions())
	require.NoError(t, err)
}
