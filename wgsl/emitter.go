package wgsl

import "github.com/gogpu/wgslc/ir"

// Emitter tracks the expressions appended since Start so they can be
// covered by one Emit statement.
type Emitter struct {
	start   ir.ExpressionHandle
	running bool
}

// Start begins a new range at the end of the arena.
func (e *Emitter) Start(fn *ir.Function) {
	e.start = ir.ExpressionHandle(len(fn.Expressions))
	e.running = true
}

// Finish ends the range and returns the Emit covering it, if it contains
// anything that needs emitting. Literals and other pre-emitted expressions
// at either end are left out.
func (e *Emitter) Finish(fn *ir.Function) (ir.Statement, bool) {
	if !e.running {
		return ir.Statement{}, false
	}
	e.running = false

	start, end := e.start, ir.ExpressionHandle(len(fn.Expressions))

	for start < end && ir.NeedsPreEmit(fn.Expressions[start].Kind) {
		start++
	}
	for end > start && ir.NeedsPreEmit(fn.Expressions[end-1].Kind) {
		end--
	}

	if start == end {
		return ir.Statement{}, false
	}

	var span Span
	for h := start; h < end; h++ {
		span = span.Union(fn.Expressions[h].Span)
	}

	return ir.Statement{Kind: ir.StmtEmit{Range: ir.Range{Start: start, End: end}}, Span: span}, true
}

// Running reports whether a range is open.
func (e *Emitter) Running() bool { return e.running }
