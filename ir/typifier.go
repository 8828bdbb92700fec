package ir

import "tlog.app/go/errors"

// ResolveContext is what expression types depend on besides other expressions.
type ResolveContext struct {
	Module   *Module
	Function *Function
}

// Typifier memoizes expression types of one function.
//
// Resolving a handle resolves exactly the handles its definition depends on,
// transitively. Siblings and later handles are left alone. A computed
// resolution is never changed afterwards.
type Typifier struct {
	resolutions []TypeResolution
	done        []bool
}

// Reset forgets all resolutions so the typifier can serve another function.
func (t *Typifier) Reset() {
	t.resolutions = t.resolutions[:0]
	t.done = t.done[:0]
}

// Get returns a previously computed resolution.
func (t *Typifier) Get(h ExpressionHandle) (TypeResolution, bool) {
	if int(h) >= len(t.done) || !t.done[h] {
		return TypeResolution{}, false
	}

	return t.resolutions[h], true
}

// Resolve returns the type of expression h, computing and caching it if needed.
func (t *Typifier) Resolve(ctx *ResolveContext, h ExpressionHandle) (TypeResolution, error) {
	if r, ok := t.Get(h); ok {
		return r, nil
	}

	fn := ctx.Function
	if int(h) >= len(fn.Expressions) {
		return TypeResolution{}, errors.New("expression %d out of range (%d expressions)", h, len(fn.Expressions))
	}

	r, err := t.resolveKind(ctx, h, fn.Expressions[h].Kind)
	if err != nil {
		return TypeResolution{}, err
	}

	t.grow(int(h) + 1)
	t.resolutions[h] = r
	t.done[h] = true

	return r, nil
}

// Inner resolves h and returns its structural type.
func (t *Typifier) Inner(ctx *ResolveContext, h ExpressionHandle) (TypeInner, error) {
	r, err := t.Resolve(ctx, h)
	if err != nil {
		return nil, err
	}

	return r.Inner(ctx.Module.Types), nil
}

// ResolveAll resolves every expression of the function and returns the
// resolutions in handle order.
func (t *Typifier) ResolveAll(ctx *ResolveContext) ([]TypeResolution, error) {
	n := len(ctx.Function.Expressions)

	for h := 0; h < n; h++ {
		if _, err := t.Resolve(ctx, ExpressionHandle(h)); err != nil {
			return nil, errors.Wrap(err, "expression %d", h)
		}
	}

	out := make([]TypeResolution, n)
	copy(out, t.resolutions[:n])

	return out, nil
}

func (t *Typifier) grow(n int) {
	for len(t.resolutions) < n {
		t.resolutions = append(t.resolutions, TypeResolution{})
		t.done = append(t.done, false)
	}
}

// ResolveExpressionType resolves a single expression without a shared cache.
func ResolveExpressionType(module *Module, fn *Function, handle ExpressionHandle) (TypeResolution, error) {
	var t Typifier

	return t.Resolve(&ResolveContext{Module: module, Function: fn}, handle)
}
