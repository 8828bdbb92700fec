package wgsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, src string) *Module {
	t.Helper()

	m, err := ParseSource(src)
	require.NoError(t, err)

	return m
}

func TestParseFunction(t *testing.T) {
	m := parse(t, `
@vertex
fn main(@builtin(vertex_index) idx: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}`)

	require.Len(t, m.Decls, 1)
	fn, ok := m.Decls[0].(*FunctionDecl)
	require.True(t, ok)

	assert.Equal(t, "main", fn.Name)
	require.Len(t, fn.Attributes, 1)
	assert.Equal(t, "vertex", fn.Attributes[0].Name)

	require.Len(t, fn.Params, 1)
	assert.Equal(t, "idx", fn.Params[0].Name)
	assert.Equal(t, "u32", fn.Params[0].Type.Name)
	require.Len(t, fn.Params[0].Attributes, 1)
	assert.Equal(t, "builtin", fn.Params[0].Attributes[0].Name)

	require.NotNil(t, fn.ReturnType)
	assert.Equal(t, "vec4", fn.ReturnType.Name)
	require.Len(t, fn.ReturnType.Params, 1)
	require.Len(t, fn.ReturnAttrs, 1)

	require.Len(t, fn.Body.Statements, 1)
	ret, ok := fn.Body.Statements[0].(*ReturnStmt)
	require.True(t, ok)
	call, ok := ret.Value.(*CallExpr)
	require.True(t, ok)
	assert.Equal(t, "vec4", call.Callee.Name)
	assert.Len(t, call.Args, 4)
}

func TestParseStruct(t *testing.T) {
	m := parse(t, `
struct Light {
    @location(0) position: vec3<f32>,
    color: vec3f,
    intensity: f32
}`)

	s, ok := m.Decls[0].(*StructDecl)
	require.True(t, ok)
	assert.Equal(t, "Light", s.Name)
	require.Len(t, s.Members, 3)
	assert.Equal(t, "position", s.Members[0].Name)
	assert.Len(t, s.Members[0].Attributes, 1)
	assert.Equal(t, "vec3f", s.Members[1].Type.Name)
	assert.Equal(t, "intensity", s.Members[2].Name)
}

func TestParseGlobals(t *testing.T) {
	m := parse(t, `
@group(0) @binding(1) var<storage, read_write> data: array<u32>;
var<private> counter: i32 = 0;
const PI = 3.14159;
override scale: f32 = 1.0;
alias Float4 = vec4<f32>;
const_assert PI > 3.0;
`)

	require.Len(t, m.Decls, 6)

	v := m.Decls[0].(*VarDecl)
	assert.Equal(t, "storage", v.AddressSpace)
	assert.Equal(t, "read_write", v.AccessMode)
	assert.Equal(t, "array", v.Type.Name)
	assert.Len(t, v.Attributes, 2)

	priv := m.Decls[1].(*VarDecl)
	assert.Equal(t, "private", priv.AddressSpace)
	assert.NotNil(t, priv.Init)

	c := m.Decls[2].(*ConstDecl)
	assert.Equal(t, "PI", c.Name)
	assert.Nil(t, c.Type)

	assert.IsType(t, &OverrideDecl{}, m.Decls[3])
	assert.Equal(t, "Float4", m.Decls[4].(*AliasDecl).Name)
	assert.IsType(t, &ConstAssertDecl{}, m.Decls[5])
}

func TestParsePrecedence(t *testing.T) {
	m := parse(t, `const x = 1 + 2 * 3 << 1u;`)

	shift, ok := m.Decls[0].(*ConstDecl).Init.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenLessLess, shift.Op)

	add, ok := shift.Left.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenPlus, add.Op)

	mul, ok := add.Right.(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenStar, mul.Op)
}

func TestParseNestedTemplates(t *testing.T) {
	m := parse(t, `var<private> m: array<vec4<f32>, 4>;
var<private> n: array<array<i32, 2>>;`)

	arr := m.Decls[0].(*VarDecl).Type
	require.Len(t, arr.Params, 2)
	inner, ok := arr.Params[0].(*TypeExpr)
	require.True(t, ok)
	assert.Equal(t, "vec4", inner.Name)
	assert.IsType(t, &Literal{}, arr.Params[1])

	// '>>' closes two template lists
	outer := m.Decls[1].(*VarDecl).Type
	require.Len(t, outer.Params, 1)
	assert.Equal(t, "array", outer.Params[0].(*TypeExpr).Name)
}

func TestParseTemplateExpressions(t *testing.T) {
	m := parse(t, `var<private> a: array<f32, N * 2>;
var<private> b: array<f32, N>;
var<private> c: array<vec2<f32>, N + M - 1>;`)

	a := m.Decls[0].(*VarDecl).Type
	require.Len(t, a.Params, 2)
	mul, ok := a.Params[1].(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenStar, mul.Op)
	assert.Equal(t, "N", mul.Left.(*Ident).Name)

	b := m.Decls[1].(*VarDecl).Type
	require.Len(t, b.Params, 2)
	assert.Equal(t, "N", b.Params[1].(*TypeExpr).Name)

	c := m.Decls[2].(*VarDecl).Type
	require.Len(t, c.Params, 2)
	assert.Equal(t, "vec2", c.Params[0].(*TypeExpr).Name)
	sub, ok := c.Params[1].(*BinaryExpr)
	require.True(t, ok)
	assert.Equal(t, TokenMinus, sub.Op)
}

func TestParseStatements(t *testing.T) {
	m := parse(t, `
fn f() {
    var i: i32 = 0;
    let j = i + 1;
    i += 2;
    i++;
    _ = j;
    if i > 3 { return; } else if i < 0 { discard; } else { }
    for (var k = 0; k < 4; k++) { continue; }
    while i < 10 { i = i + 1; }
    switch i { case 1, 2: { break; } default { } }
    loop {
        i--;
        continuing {
            i = i + 2;
            break if i > 100;
        }
    }
}`)

	body := m.Decls[0].(*FunctionDecl).Body.Statements
	require.Len(t, body, 10)

	assert.IsType(t, &DeclStmt{}, body[0])
	assert.IsType(t, &LetStmt{}, body[1])

	compound := body[2].(*AssignStmt)
	assert.Equal(t, TokenPlusEqual, compound.Op)

	inc := body[3].(*IncDecStmt)
	assert.True(t, inc.Increment)

	phony := body[4].(*AssignStmt)
	assert.Nil(t, phony.Left)

	ifs := body[5].(*IfStmt)
	elseIf, ok := ifs.Else.(*IfStmt)
	require.True(t, ok)
	assert.IsType(t, &BlockStmt{}, elseIf.Else)

	forStmt := body[6].(*ForStmt)
	assert.IsType(t, &DeclStmt{}, forStmt.Init)
	assert.NotNil(t, forStmt.Condition)
	assert.IsType(t, &IncDecStmt{}, forStmt.Update)

	assert.IsType(t, &WhileStmt{}, body[7])

	sw := body[8].(*SwitchStmt)
	require.Len(t, sw.Cases, 2)
	assert.Len(t, sw.Cases[0].Selectors, 2)
	assert.True(t, sw.Cases[1].IsDefault)

	loop := body[9].(*LoopStmt)
	assert.Len(t, loop.Body.Statements, 1)
	require.NotNil(t, loop.Continuing)
	assert.Len(t, loop.Continuing.Statements, 1)
	assert.NotNil(t, loop.BreakIf)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		msg  string
	}{
		{"missing semicolon", "fn f() { let x = 1 }", "expected"},
		{"bad declaration", "let x = 1;", "expected declaration"},
		{"continuing not last", "fn f() { loop { continuing { } let x = 1; } }", "continuing must be the last"},
		{"var without type", "fn f() { var x; }", "needs a type or an initializer"},
		{"declaration in for update", "fn f() { for (;; var x = 1) { } }", "not allowed in the for update"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSource(tt.src)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseCollectsErrorsPerDeclaration(t *testing.T) {
	m, err := ParseSource(`
fn a() { let = 1; }
fn b() {}
fn c() { return 1 }
`)
	require.Error(t, err)

	var errs SourceErrors
	require.ErrorAs(t, err, &errs)
	assert.Len(t, errs, 2)

	require.Len(t, m.Decls, 1)
	assert.Equal(t, "b", m.Decls[0].(*FunctionDecl).Name)
}

func TestParseDepthLimit(t *testing.T) {
	src := "const x = "
	for i := 0; i < 300; i++ {
		src += "("
	}
	src += "1"
	for i := 0; i < 300; i++ {
		src += ")"
	}
	src += ";"

	_, err := ParseSource(src)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nesting exceeds the limit")
}

func TestParseEnableDirective(t *testing.T) {
	m := parse(t, "enable f16;\nfn f() {}")

	require.Len(t, m.Enables, 1)
	assert.Equal(t, []string{"f16"}, m.Enables[0].Extensions)
	assert.Len(t, m.Decls, 1)
}
