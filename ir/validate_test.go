package ir

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hasError(errs []ValidationError, substr string) bool {
	for _, e := range errs {
		if strings.Contains(e.Error(), substr) {
			return true
		}
	}

	return false
}

func vertexModule() *Module {
	v4 := VectorType{Size: Vec4, Scalar: F32}

	return &Module{
		Types: []Type{{Inner: F32}, {Inner: v4}},
		EntryPoints: []EntryPoint{{
			Name:  "vs",
			Stage: StageVertex,
			Function: Function{
				Name:   "vs",
				Result: &FunctionResult{Type: 1, Binding: BuiltinBinding{Builtin: BuiltinPosition}},
				Expressions: exprs(
					Literal{Value: LiteralF32(1)},
					ExprSplat{Size: Vec4, Value: 0},
				),
				Body: Block{
					{Kind: StmtEmit{Range: Range{Start: 1, End: 2}}},
					{Kind: StmtReturn{Value: handlePtr(1)}},
				},
			},
		}},
	}
}

func handlePtr(h ExpressionHandle) *ExpressionHandle { return &h }

func TestValidateValidModule(t *testing.T) {
	errs, err := Validate(vertexModule())
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateNilModule(t *testing.T) {
	_, err := Validate(nil)
	assert.Error(t, err)
}

func TestValidateUseBeforeEmit(t *testing.T) {
	m := vertexModule()
	m.EntryPoints[0].Function.Body = Block{
		{Kind: StmtReturn{Value: handlePtr(1)}},
	}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "used before it is emitted"), "%v", errs)
}

func TestValidateDoubleEmit(t *testing.T) {
	m := vertexModule()
	fn := &m.EntryPoints[0].Function
	fn.Body = append(Block{{Kind: StmtEmit{Range: Range{Start: 1, End: 2}}}}, fn.Body...)

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "emitted twice"), "%v", errs)
}

func TestValidateEmitOfPlaceholder(t *testing.T) {
	m := vertexModule()
	fn := &m.EntryPoints[0].Function
	fn.Expressions = append(fn.Expressions, Expression{Kind: ExprSubgroupBallotResult{}})
	fn.Body = append(Block{{Kind: StmtEmit{Range: Range{Start: 2, End: 3}}}}, fn.Body...)

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "must not be emitted"), "%v", errs)
}

func TestValidateEmitSkipsLiterals(t *testing.T) {
	m := vertexModule()
	fn := &m.EntryPoints[0].Function
	fn.Body[0] = Statement{Kind: StmtEmit{Range: Range{Start: 0, End: 2}}}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestValidateForwardOperand(t *testing.T) {
	m := vertexModule()
	fn := &m.EntryPoints[0].Function
	fn.Expressions[1].Kind = ExprSplat{Size: Vec4, Value: 1}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "not defined before it"), "%v", errs)
}

func TestValidateBreakContext(t *testing.T) {
	m := &Module{Functions: []Function{{
		Name: "f",
		Body: Block{{Kind: StmtBreak{}}},
	}}}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "break outside of loop"), "%v", errs)

	m.Functions[0].Body = Block{{Kind: StmtLoop{
		Body:       Block{{Kind: StmtBreak{}}},
		Continuing: Block{{Kind: StmtContinue{}}},
	}}}

	errs, err = Validate(m)
	require.NoError(t, err)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "continue in continuing block")
}

func TestValidateSwitchDefault(t *testing.T) {
	m := &Module{
		Types: []Type{{Inner: I32}},
		Functions: []Function{{
			Name:        "f",
			Expressions: exprs(Literal{Value: LiteralI32(1)}),
			Body: Block{{Kind: StmtSwitch{
				Selector: 0,
				Cases:    []SwitchCase{{Value: SwitchValueI32(1), Body: Block{{Kind: StmtBreak{}}}}},
			}}},
		}},
	}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "exactly one default"), "%v", errs)
}

func TestValidateReturnType(t *testing.T) {
	m := vertexModule()
	fn := &m.EntryPoints[0].Function
	fn.Body = Block{{Kind: StmtReturn{Value: handlePtr(0)}}}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "return type f32, want vec4<f32>"), "%v", errs)
}

func TestValidateEntryPoints(t *testing.T) {
	m := vertexModule()
	m.EntryPoints[0].Function.Result.Binding = LocationBinding{Location: 0}
	m.EntryPoints = append(m.EntryPoints, EntryPoint{Name: "cs", Stage: StageCompute})

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.True(t, hasError(errs, "must return @builtin(position)"), "%v", errs)
	assert.True(t, hasError(errs, "workgroup size must be non-zero"), "%v", errs)
}

func TestValidateBreakIfAfterBody(t *testing.T) {
	m := &Module{
		Types: []Type{{Inner: Bool}},
		Functions: []Function{{
			Name: "f",
			Expressions: exprs(
				Literal{Value: LiteralBool(true)},
				ExprUnary{Op: UnaryLogicalNot, Expr: 0},
			),
			Body: Block{{Kind: StmtLoop{
				Continuing: Block{{Kind: StmtEmit{Range: Range{Start: 1, End: 2}}}},
				BreakIf:    handlePtr(1),
			}}},
		}},
	}

	errs, err := Validate(m)
	require.NoError(t, err)
	assert.Empty(t, errs)
}

func TestReferenceCounts(t *testing.T) {
	fn := &Function{
		Expressions: exprs(
			Literal{Value: LiteralI32(1)},
			ExprBinary{Op: BinaryAdd, Left: 0, Right: 0},
			ExprUnary{Op: UnaryNegate, Expr: 1},
		),
		Body: Block{
			{Kind: StmtEmit{Range: Range{Start: 1, End: 3}}},
			{Kind: StmtReturn{Value: handlePtr(1)}},
		},
	}

	assert.Equal(t, []int{2, 2, 0}, ReferenceCounts(fn))
}

func TestLiveExpressions(t *testing.T) {
	fn := &Function{
		Expressions: exprs(
			Literal{Value: LiteralAbstractInt(1)},
			ExprUnary{Op: UnaryNegate, Expr: 0},
			Literal{Value: LiteralI32(1)},
			ExprUnary{Op: UnaryNegate, Expr: 2},
			Literal{Value: LiteralI32(7)},
		),
		NamedExpressions: map[ExpressionHandle]string{4: "seven"},
		Body: Block{
			{Kind: StmtEmit{Range: Range{Start: 1, End: 4}}},
			{Kind: StmtReturn{Value: handlePtr(3)}},
		},
	}

	assert.Equal(t, []bool{false, false, true, true, true}, LiveExpressions(fn))
}
