package wgsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"
)

func declNames(decls []Decl) []string {
	out := make([]string, len(decls))
	for i, d := range decls {
		out[i] = d.DeclName()
	}

	return out
}

func TestOrderDecls(t *testing.T) {
	m := parse(t, `
fn main() -> f32 { return helper(S(K).x); }
fn helper(v: f32) -> f32 { return v; }
struct S { x: f32 }
const K = 1.0;
`)

	ordered, err := orderDecls(m.Decls)
	require.NoError(t, err)
	assert.Equal(t, []string{"helper", "S", "K", "main"}, declNames(ordered))
}

func TestOrderDeclsKeepsSourceOrder(t *testing.T) {
	m := parse(t, `
const A = 1;
const B = 2;
const C = A + B;
`)

	ordered, err := orderDecls(m.Decls)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, declNames(ordered))
}

func TestOrderDeclsShadowing(t *testing.T) {
	// the local x hides the module constant, so f does not depend on it
	m := parse(t, `
fn f() -> i32 { let x = 2; return x; }
const x = 1;
`)

	ordered, err := orderDecls(m.Decls)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "x"}, declNames(ordered))
}

func TestOrderDeclsErrors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind ErrorKind
	}{
		{"constant cycle", "const A = B;\nconst B = A;", ErrCyclicDeclaration},
		{"self reference", "const A = A + 1;", ErrCyclicDeclaration},
		{"mutual recursion", "fn a() { b(); }\nfn b() { a(); }", ErrCyclicDeclaration},
		{"struct cycle", "struct A { b: B }\nstruct B { a: A }", ErrCyclicDeclaration},
		{"duplicate", "const A = 1;\nfn A() {}", ErrRedefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := orderDecls(parse(t, tt.src).Decls)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.kind), "%v", err)

			var le *LoweringError
			require.ErrorAs(t, err, &le)
			assert.NotNil(t, le.Related)
		})
	}
}
