package wgsl

import "github.com/gogpu/wgslc/ir"

// builtinFunc is a value-returning builtin resolved through an overload set.
type builtinFunc struct {
	set   overloadSet
	build func(args []ir.ExpressionHandle) ir.ExpressionKind
}

func mathFn(fun ir.MathFunction, set overloadSet) builtinFunc {
	return builtinFunc{
		set: set,
		build: func(args []ir.ExpressionHandle) ir.ExpressionKind {
			m := ir.ExprMath{Fun: fun, Arg: args[0]}
			for i, p := range []**ir.ExpressionHandle{&m.Arg1, &m.Arg2, &m.Arg3} {
				if i+1 < len(args) {
					h := args[i+1]
					*p = &h
				}
			}
			return m
		},
	}
}

func derivativeFn(axis ir.DerivativeAxis, control ir.DerivativeControl) builtinFunc {
	return builtinFunc{
		set: componentWise([]ir.ScalarType{ir.F32}, 1),
		build: func(args []ir.ExpressionHandle) ir.ExpressionKind {
			return ir.ExprDerivative{Axis: axis, Control: control, Expr: args[0]}
		},
	}
}

func relationalFn(fun ir.RelationalFunction) builtinFunc {
	set := overloadSet{{args: []ir.TypeInner{ir.Bool}, result: ir.Bool}}
	for _, t := range vectorsOf(ir.Bool) {
		set = append(set, rule{args: []ir.TypeInner{t}, result: ir.Bool})
	}

	return builtinFunc{
		set: set,
		build: func(args []ir.ExpressionHandle) ir.ExpressionKind {
			return ir.ExprRelational{Fun: fun, Argument: args[0]}
		},
	}
}

func selectRules() overloadSet {
	var set overloadSet
	for _, s := range append([]ir.ScalarType{ir.Bool}, numericScalars...) {
		set = append(set, rule{args: []ir.TypeInner{s, s, ir.Bool}, result: s})
		for _, n := range vectorSizes {
			v := ir.VectorType{Size: n, Scalar: s}
			set = append(set,
				rule{args: []ir.TypeInner{v, v, ir.Bool}, result: v},
				rule{args: []ir.TypeInner{v, v, ir.VectorType{Size: n, Scalar: ir.Bool}}, result: v},
			)
		}
	}

	return set
}

// mixed builds (vecN<T>, vecN<T>, T) rules.
func mixed(scalars []ir.ScalarType) overloadSet {
	var set overloadSet
	for _, s := range scalars {
		for _, v := range vectorsOf(s) {
			set = append(set, rule{args: []ir.TypeInner{v, v, s}, result: v})
		}
	}

	return set
}

func ldexpRules() overloadSet {
	var set overloadSet
	for _, s := range floatScalars {
		set = append(set, rule{args: []ir.TypeInner{s, ir.I32}, result: s})
		for _, n := range vectorSizes {
			v := ir.VectorType{Size: n, Scalar: s}
			set = append(set, rule{args: []ir.TypeInner{v, ir.VectorType{Size: n, Scalar: ir.I32}}, result: v})
		}
	}

	return set
}

func crossRules() overloadSet {
	var set overloadSet
	for _, s := range floatScalars {
		v := ir.VectorType{Size: ir.Vec3, Scalar: s}
		set = append(set, rule{args: []ir.TypeInner{v, v}, result: v})
	}

	return set
}

func matrixRules(square bool, transposed bool) overloadSet {
	var set overloadSet
	for _, s := range floatScalars {
		for _, c := range vectorSizes {
			for _, r := range vectorSizes {
				if square && c != r {
					continue
				}
				m := ir.MatrixType{Columns: c, Rows: r, Scalar: s}
				var result ir.TypeInner = s
				if transposed {
					result = ir.MatrixType{Columns: r, Rows: c, Scalar: s}
				}
				set = append(set, rule{args: []ir.TypeInner{m}, result: result})
			}
		}
	}

	return set
}

func bitsRules(insert bool) overloadSet {
	var set overloadSet
	for _, s := range intScalars {
		for _, t := range shapes(s) {
			args := []ir.TypeInner{t, ir.U32, ir.U32}
			if insert {
				args = []ir.TypeInner{t, t, ir.U32, ir.U32}
			}
			set = append(set, rule{args: args, result: t})
		}
	}

	return set
}

var (
	vec2f = ir.VectorType{Size: ir.Vec2, Scalar: ir.F32}
	vec4f = ir.VectorType{Size: ir.Vec4, Scalar: ir.F32}
	vec4i = ir.VectorType{Size: ir.Vec4, Scalar: ir.I32}
	vec4u = ir.VectorType{Size: ir.Vec4, Scalar: ir.U32}
)

// functionTable lists the builtins lowered through overload resolution.
var functionTable = map[string]builtinFunc{
	"abs":   mathFn(ir.MathAbs, componentWise(numericScalars, 1)),
	"min":   mathFn(ir.MathMin, componentWise(numericScalars, 2)),
	"max":   mathFn(ir.MathMax, componentWise(numericScalars, 2)),
	"clamp": mathFn(ir.MathClamp, componentWise(numericScalars, 3)),

	"saturate":    mathFn(ir.MathSaturate, componentWise(floatScalars, 1)),
	"cos":         mathFn(ir.MathCos, componentWise(floatScalars, 1)),
	"cosh":        mathFn(ir.MathCosh, componentWise(floatScalars, 1)),
	"sin":         mathFn(ir.MathSin, componentWise(floatScalars, 1)),
	"sinh":        mathFn(ir.MathSinh, componentWise(floatScalars, 1)),
	"tan":         mathFn(ir.MathTan, componentWise(floatScalars, 1)),
	"tanh":        mathFn(ir.MathTanh, componentWise(floatScalars, 1)),
	"acos":        mathFn(ir.MathAcos, componentWise(floatScalars, 1)),
	"asin":        mathFn(ir.MathAsin, componentWise(floatScalars, 1)),
	"atan":        mathFn(ir.MathAtan, componentWise(floatScalars, 1)),
	"atan2":       mathFn(ir.MathAtan2, componentWise(floatScalars, 2)),
	"asinh":       mathFn(ir.MathAsinh, componentWise(floatScalars, 1)),
	"acosh":       mathFn(ir.MathAcosh, componentWise(floatScalars, 1)),
	"atanh":       mathFn(ir.MathAtanh, componentWise(floatScalars, 1)),
	"radians":     mathFn(ir.MathRadians, componentWise(floatScalars, 1)),
	"degrees":     mathFn(ir.MathDegrees, componentWise(floatScalars, 1)),
	"ceil":        mathFn(ir.MathCeil, componentWise(floatScalars, 1)),
	"floor":       mathFn(ir.MathFloor, componentWise(floatScalars, 1)),
	"round":       mathFn(ir.MathRound, componentWise(floatScalars, 1)),
	"fract":       mathFn(ir.MathFract, componentWise(floatScalars, 1)),
	"trunc":       mathFn(ir.MathTrunc, componentWise(floatScalars, 1)),
	"ldexp":       mathFn(ir.MathLdexp, ldexpRules()),
	"exp":         mathFn(ir.MathExp, componentWise(floatScalars, 1)),
	"exp2":        mathFn(ir.MathExp2, componentWise(floatScalars, 1)),
	"log":         mathFn(ir.MathLog, componentWise(floatScalars, 1)),
	"log2":        mathFn(ir.MathLog2, componentWise(floatScalars, 1)),
	"pow":         mathFn(ir.MathPow, componentWise(floatScalars, 2)),
	"sqrt":        mathFn(ir.MathSqrt, componentWise(floatScalars, 1)),
	"inverseSqrt": mathFn(ir.MathInverseSqrt, componentWise(floatScalars, 1)),
	"sign":        mathFn(ir.MathSign, componentWise(signedScalars, 1)),
	"fma":         mathFn(ir.MathFma, componentWise(floatScalars, 3)),
	"mix":         mathFn(ir.MathMix, concat(componentWise(floatScalars, 3), mixed(floatScalars))),
	"step":        mathFn(ir.MathStep, componentWise(floatScalars, 2)),
	"smoothstep":  mathFn(ir.MathSmoothStep, componentWise(floatScalars, 3)),

	"dot":         mathFn(ir.MathDot, reducing(numericScalars, 2, false)),
	"cross":       mathFn(ir.MathCross, crossRules()),
	"distance":    mathFn(ir.MathDistance, reducing(floatScalars, 2, true)),
	"length":      mathFn(ir.MathLength, reducing(floatScalars, 1, true)),
	"normalize":   mathFn(ir.MathNormalize, vectorRules(floatScalars, 1)),
	"faceForward": mathFn(ir.MathFaceForward, vectorRules(floatScalars, 3)),
	"reflect":     mathFn(ir.MathReflect, vectorRules(floatScalars, 2)),
	"refract":     mathFn(ir.MathRefract, mixed(floatScalars)),
	"transpose":   mathFn(ir.MathTranspose, matrixRules(false, true)),
	"determinant": mathFn(ir.MathDeterminant, matrixRules(true, false)),

	"countTrailingZeros": mathFn(ir.MathCountTrailingZeros, componentWise(intScalars, 1)),
	"countLeadingZeros":  mathFn(ir.MathCountLeadingZeros, componentWise(intScalars, 1)),
	"countOneBits":       mathFn(ir.MathCountOneBits, componentWise(intScalars, 1)),
	"reverseBits":        mathFn(ir.MathReverseBits, componentWise(intScalars, 1)),
	"firstTrailingBit":   mathFn(ir.MathFirstTrailingBit, componentWise(intScalars, 1)),
	"firstLeadingBit":    mathFn(ir.MathFirstLeadingBit, componentWise(intScalars, 1)),
	"extractBits":        mathFn(ir.MathExtractBits, bitsRules(false)),
	"insertBits":         mathFn(ir.MathInsertBits, bitsRules(true)),

	"pack4x8snorm":    mathFn(ir.MathPack4x8snorm, single(ir.U32, vec4f)),
	"pack4x8unorm":    mathFn(ir.MathPack4x8unorm, single(ir.U32, vec4f)),
	"pack2x16snorm":   mathFn(ir.MathPack2x16snorm, single(ir.U32, vec2f)),
	"pack2x16unorm":   mathFn(ir.MathPack2x16unorm, single(ir.U32, vec2f)),
	"pack2x16float":   mathFn(ir.MathPack2x16float, single(ir.U32, vec2f)),
	"pack4xI8":        mathFn(ir.MathPack4xI8, single(ir.U32, vec4i)),
	"pack4xU8":        mathFn(ir.MathPack4xU8, single(ir.U32, vec4u)),
	"unpack4x8snorm":  mathFn(ir.MathUnpack4x8snorm, single(vec4f, ir.U32)),
	"unpack4x8unorm":  mathFn(ir.MathUnpack4x8unorm, single(vec4f, ir.U32)),
	"unpack2x16snorm": mathFn(ir.MathUnpack2x16snorm, single(vec2f, ir.U32)),
	"unpack2x16unorm": mathFn(ir.MathUnpack2x16unorm, single(vec2f, ir.U32)),
	"unpack2x16float": mathFn(ir.MathUnpack2x16float, single(vec2f, ir.U32)),
	"unpack4xI8":      mathFn(ir.MathUnpack4xI8, single(vec4i, ir.U32)),
	"unpack4xU8":      mathFn(ir.MathUnpack4xU8, single(vec4u, ir.U32)),

	"select": {
		set: selectRules(),
		build: func(args []ir.ExpressionHandle) ir.ExpressionKind {
			return ir.ExprSelect{Condition: args[2], Accept: args[1], Reject: args[0]}
		},
	},
	"all": relationalFn(ir.RelationalAll),
	"any": relationalFn(ir.RelationalAny),

	"dpdx":         derivativeFn(ir.DerivativeX, ir.DerivativeNone),
	"dpdxCoarse":   derivativeFn(ir.DerivativeX, ir.DerivativeCoarse),
	"dpdxFine":     derivativeFn(ir.DerivativeX, ir.DerivativeFine),
	"dpdy":         derivativeFn(ir.DerivativeY, ir.DerivativeNone),
	"dpdyCoarse":   derivativeFn(ir.DerivativeY, ir.DerivativeCoarse),
	"dpdyFine":     derivativeFn(ir.DerivativeY, ir.DerivativeFine),
	"fwidth":       derivativeFn(ir.DerivativeWidth, ir.DerivativeNone),
	"fwidthCoarse": derivativeFn(ir.DerivativeWidth, ir.DerivativeCoarse),
	"fwidthFine":   derivativeFn(ir.DerivativeWidth, ir.DerivativeFine),
}

// vectorRules builds rules taking n vectors of one type and returning it.
func vectorRules(scalars []ir.ScalarType, n int) overloadSet {
	var set overloadSet
	for _, s := range scalars {
		for _, v := range vectorsOf(s) {
			set = append(set, rule{args: repeatArg(v, n), result: v})
		}
	}

	return set
}

// callBuiltin lowers a call of a function from functionTable.
func (fc *funcCtx) callBuiltin(block *ir.Block, e *CallExpr, b builtinFunc) (ir.ExpressionHandle, error) {
	args, inners, spans, err := fc.loweredArgs(block, e.Args)
	if err != nil {
		return 0, err
	}

	r, err := fc.l.resolveOverload(e.Callee.Name, b.set, inners, spans, e.Span)
	if err != nil {
		return 0, err
	}
	if err := fc.callArgs(r, args, spans); err != nil {
		return 0, err
	}

	fc.l.tr.V("overload").Printw("resolved builtin", "name", e.Callee.Name, "result", fc.l.innerName(r.result))

	return fc.append(b.build(args), e.Span), nil
}

// loweredArgs lowers call arguments to values.
func (fc *funcCtx) loweredArgs(block *ir.Block, exprs []Expr) ([]ir.ExpressionHandle, []ir.TypeInner, []Span, error) {
	args := make([]ir.ExpressionHandle, len(exprs))
	inners := make([]ir.TypeInner, len(exprs))
	spans := make([]Span, len(exprs))

	for i, a := range exprs {
		h, err := fc.value(block, a)
		if err != nil {
			return nil, nil, nil, err
		}
		if inners[i], err = fc.inner(h); err != nil {
			return nil, nil, nil, err
		}
		args[i], spans[i] = h, a.Pos()
	}

	return args, inners, spans, nil
}
