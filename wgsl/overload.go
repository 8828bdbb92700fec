package wgsl

import "github.com/gogpu/wgslc/ir"

// rule is one signature of a builtin function.
type rule struct {
	args   []ir.TypeInner
	result ir.TypeInner // nil for functions without a value
}

// overloadSet lists every signature a builtin accepts.
type overloadSet []rule

var (
	floatScalars   = []ir.ScalarType{ir.F32}
	intScalars     = []ir.ScalarType{ir.I32, ir.U32}
	numericScalars = []ir.ScalarType{ir.F32, ir.I32, ir.U32}
	signedScalars  = []ir.ScalarType{ir.F32, ir.I32}
	vectorSizes    = []ir.VectorSize{ir.Vec2, ir.Vec3, ir.Vec4}
)

// shapes returns s and every vector of s.
func shapes(s ir.ScalarType) []ir.TypeInner {
	out := []ir.TypeInner{s}
	for _, n := range vectorSizes {
		out = append(out, ir.VectorType{Size: n, Scalar: s})
	}

	return out
}

func vectorsOf(s ir.ScalarType) []ir.TypeInner {
	return shapes(s)[1:]
}

func repeatArg(t ir.TypeInner, n int) []ir.TypeInner {
	args := make([]ir.TypeInner, n)
	for i := range args {
		args[i] = t
	}

	return args
}

// componentWise builds rules taking n arguments of one scalar or vector
// type and returning the same type.
func componentWise(scalars []ir.ScalarType, n int) overloadSet {
	var set overloadSet
	for _, s := range scalars {
		for _, t := range shapes(s) {
			set = append(set, rule{args: repeatArg(t, n), result: t})
		}
	}

	return set
}

// reducing builds rules over vectors (and scalars if withScalar) that
// return the leaf scalar.
func reducing(scalars []ir.ScalarType, n int, withScalar bool) overloadSet {
	var set overloadSet
	for _, s := range scalars {
		types := vectorsOf(s)
		if withScalar {
			types = shapes(s)
		}
		for _, t := range types {
			set = append(set, rule{args: repeatArg(t, n), result: s})
		}
	}

	return set
}

func concat(sets ...overloadSet) overloadSet {
	var out overloadSet
	for _, s := range sets {
		out = append(out, s...)
	}

	return out
}

func single(result ir.TypeInner, args ...ir.TypeInner) overloadSet {
	return overloadSet{{args: args, result: result}}
}

// argRank returns the cost of passing a value of type arg where param is
// expected, or -1 if it cannot be passed.
func (l *Lowerer) argRank(arg, param ir.TypeInner) int {
	if ir.TypeInnerEqual(arg, param) {
		return 0
	}

	from, ok := l.leafScalar(arg)
	if !ok || !from.IsAbstract() {
		return -1
	}
	to, ok := l.leafScalar(param)
	if !ok {
		return -1
	}

	shaped, ok := ir.WithScalar(arg, to)
	if !ok || !ir.TypeInnerEqual(shaped, param) {
		return -1
	}

	return conversionRank(from, to)
}

func (l *Lowerer) filterRules(set overloadSet, i int, arg ir.TypeInner) overloadSet {
	var out overloadSet
	for _, r := range set {
		if l.argRank(arg, r.args[i]) >= 0 {
			out = append(out, r)
		}
	}

	return out
}

// resolveOverload picks the rule of set matching args.
//
// Candidates are filtered argument by argument. When a filter leaves
// nothing, the failing argument is checked alone first: if no rule ever
// accepts it there, the type is wrong; otherwise the earlier argument it
// conflicts with is found by filtering prefixes again.
func (l *Lowerer) resolveOverload(name string, set overloadSet, args []ir.TypeInner, spans []Span, call Span) (rule, error) {
	var arity overloadSet
	for _, r := range set {
		if len(r.args) == len(args) {
			arity = append(arity, r)
		}
	}
	if len(arity) == 0 {
		return rule{}, newError(ErrWrongArgumentCount, call, "%s does not take %d arguments", name, len(args))
	}

	candidates := arity
	for i, a := range args {
		next := l.filterRules(candidates, i, a)
		if len(next) != 0 {
			candidates = next
			continue
		}

		alone := l.filterRules(arity, i, a)
		if len(alone) == 0 {
			return rule{}, newError(ErrWrongArgumentType, spans[i], "%s does not accept %s as argument %d", name, l.innerName(a), i+1)
		}
		for j := 0; j < i; j++ {
			if alone = l.filterRules(alone, j, args[j]); len(alone) == 0 {
				return rule{}, newRelatedError(ErrInconsistentArgumentType, spans[i], spans[j],
					"%s argument %d (%s) conflicts with argument %d (%s)", name, i+1, l.innerName(a), j+1, l.innerName(args[j]))
			}
		}

		return rule{}, newError(ErrWrongArgumentType, spans[i], "%s does not accept %s as argument %d", name, l.innerName(a), i+1)
	}

	best, bestCost, bestPref := -1, 0, 0
	for k, r := range candidates {
		cost := 0
		for i, a := range args {
			cost += l.argRank(a, r.args[i])
		}

		pref := len(args)
		if s, ok := l.leafScalar(r.args[0]); ok {
			pref = scalarPreference(s)
		}

		if best < 0 || cost < bestCost || (cost == bestCost && pref < bestPref) {
			best, bestCost, bestPref = k, cost, pref
		}
	}

	return candidates[best], nil
}

// callArgs converts the arguments to the chosen rule's parameter types.
func (fc *funcCtx) callArgs(r rule, args []ir.ExpressionHandle, spans []Span) error {
	for i := range args {
		to, ok := fc.l.leafScalar(r.args[i])
		if !ok {
			continue
		}

		h, err := fc.convertExpr(args[i], to)
		if err != nil {
			return err
		}
		if ret, err := fc.inner(h); err != nil {
			return err
		} else if !ir.TypeInnerEqual(ret, r.args[i]) {
			return newError(ErrWrongArgumentType, spans[i], "expected %s, got %s", fc.l.innerName(r.args[i]), fc.l.innerName(ret))
		}
		args[i] = h
	}

	return nil
}
