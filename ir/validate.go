package ir

import (
	"fmt"

	"tlog.app/go/errors"
)

// ValidationError describes one structural problem of a module.
type ValidationError struct {
	Message string

	Function   string
	Expression *ExpressionHandle
	Statement  int // index within its block, -1 if not applicable
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Function == "" {
		return e.Message
	}

	if e.Expression != nil {
		return fmt.Sprintf("in function %s, expression %d: %s", e.Function, *e.Expression, e.Message)
	}
	if e.Statement >= 0 {
		return fmt.Sprintf("in function %s, statement %d: %s", e.Function, e.Statement, e.Message)
	}

	return fmt.Sprintf("in function %s: %s", e.Function, e.Message)
}

// Validator checks handle integrity, emit discipline and control flow nesting.
type Validator struct {
	module *Module
	errors []ValidationError

	fn      *Function
	fnName  string
	emitted []bool
	typer   Typifier
}

// flowContext is passed by value down the statement tree.
type flowContext struct {
	inLoop       bool
	inSwitch     bool
	inContinuing bool
}

// Validate checks the module. It returns the list of problems found;
// the error is reserved for a module that cannot be inspected at all.
func Validate(module *Module) ([]ValidationError, error) {
	if module == nil {
		return nil, errors.New("module is nil")
	}

	v := &Validator{module: module}
	v.ValidateModule()

	return v.errors, nil
}

// ValidateModule runs all checks and accumulates problems.
func (v *Validator) ValidateModule() {
	v.validateTypes()
	v.validateConstants()
	v.validateGlobalVariables()

	names := make(map[string]bool)
	for i := range v.module.Functions {
		fn := &v.module.Functions[i]
		if fn.Name != "" && names[fn.Name] {
			v.addError(fmt.Sprintf("duplicate function name %q", fn.Name))
		}
		names[fn.Name] = true

		v.validateFunction(fn, fn.Name)
	}

	v.validateEntryPoints()
}

func (v *Validator) validateTypes() {
	// Abstract types stay in the arena when the expressions using them were
	// concretized later; backends never reach them.
	validWidth := func(s ScalarType) bool {
		if s.IsAbstract() {
			return s.Width == 8
		}
		switch s.Width {
		case 1:
			return s.Kind == ScalarBool
		case 2, 4, 8:
			return s.Kind != ScalarBool
		}
		return false
	}
	validSize := func(s VectorSize) bool { return s >= Vec2 && s <= Vec4 }

	for i, typ := range v.module.Types {
		h := TypeHandle(i)

		switch inner := typ.Inner.(type) {
		case nil:
			v.addError(fmt.Sprintf("type %d has nil inner type", h))
		case ScalarType:
			if !validWidth(inner) {
				v.addError(fmt.Sprintf("type %d: invalid scalar %v", h, inner))
			}
		case VectorType:
			if !validSize(inner.Size) {
				v.addError(fmt.Sprintf("type %d: vector size must be 2, 3 or 4, got %d", h, inner.Size))
			}
			if !validWidth(inner.Scalar) {
				v.addError(fmt.Sprintf("type %d: invalid vector scalar %v", h, inner.Scalar))
			}
		case MatrixType:
			if !validSize(inner.Columns) || !validSize(inner.Rows) {
				v.addError(fmt.Sprintf("type %d: matrix dimensions %dx%d", h, inner.Columns, inner.Rows))
			}
			if inner.Scalar.Kind != ScalarFloat {
				v.addError(fmt.Sprintf("type %d: matrix scalar must be float, got %v", h, inner.Scalar))
			}
		case ArrayType:
			if inner.Base >= h {
				v.addError(fmt.Sprintf("type %d: array element type %d is not defined before it", h, inner.Base))
			}
		case StructType:
			seen := make(map[string]bool, len(inner.Members))
			for j, m := range inner.Members {
				if m.Name == "" {
					v.addError(fmt.Sprintf("type %d: struct member %d has empty name", h, j))
				}
				if seen[m.Name] {
					v.addError(fmt.Sprintf("type %d: duplicate struct member %q", h, m.Name))
				}
				seen[m.Name] = true

				if m.Type >= h {
					v.addError(fmt.Sprintf("type %d: member %q type %d is not defined before it", h, m.Name, m.Type))
				}
			}
		case PointerType:
			if !v.validType(inner.Base) {
				v.addError(fmt.Sprintf("type %d: pointer base type %d does not exist", h, inner.Base))
			}
		}
	}
}

func (v *Validator) validateConstants() {
	for i, c := range v.module.Constants {
		if !v.validType(c.Type) {
			v.addError(fmt.Sprintf("constant %d (%s): type %d does not exist", i, c.Name, c.Type))
		}

		if comp, ok := c.Value.(CompositeValue); ok {
			for _, part := range comp.Components {
				if int(part) >= i {
					v.addError(fmt.Sprintf("constant %d (%s): component %d is not defined before it", i, c.Name, part))
				}
			}
		}
	}

	ids := make(map[uint16]bool)
	for i, o := range v.module.Overrides {
		if !v.validType(o.Type) {
			v.addError(fmt.Sprintf("override %d (%s): type %d does not exist", i, o.Name, o.Type))
		}
		if o.ID != nil {
			if ids[*o.ID] {
				v.addError(fmt.Sprintf("override %q: duplicate id %d", o.Name, *o.ID))
			}
			ids[*o.ID] = true
		}
	}
}

func (v *Validator) validateGlobalVariables() {
	bindings := make(map[ResourceBinding]bool)
	names := make(map[string]bool)

	for i, gv := range v.module.GlobalVariables {
		if gv.Name != "" {
			if names[gv.Name] {
				v.addError(fmt.Sprintf("duplicate global variable name %q", gv.Name))
			}
			names[gv.Name] = true
		}

		if !v.validType(gv.Type) {
			v.addError(fmt.Sprintf("global variable %d (%s): type %d does not exist", i, gv.Name, gv.Type))
		}

		if gv.Binding != nil {
			if bindings[*gv.Binding] {
				v.addError(fmt.Sprintf("global variable %q: duplicate binding @group(%d) @binding(%d)",
					gv.Name, gv.Binding.Group, gv.Binding.Binding))
			}
			bindings[*gv.Binding] = true
		}

		if gv.Init != nil && int(*gv.Init) >= len(v.module.Constants) {
			v.addError(fmt.Sprintf("global variable %q: init constant %d does not exist", gv.Name, *gv.Init))
		}
	}
}

func (v *Validator) validateFunction(fn *Function, name string) {
	v.fn = fn
	v.fnName = name
	v.emitted = make([]bool, len(fn.Expressions))
	v.typer.Reset()

	for i, arg := range fn.Arguments {
		if !v.validType(arg.Type) {
			v.addErrorInFunction(fmt.Sprintf("argument %d (%s): type %d does not exist", i, arg.Name, arg.Type))
		}
	}

	if fn.Result != nil && !v.validType(fn.Result.Type) {
		v.addErrorInFunction(fmt.Sprintf("result type %d does not exist", fn.Result.Type))
	}

	for i, lv := range fn.LocalVars {
		if !v.validType(lv.Type) {
			v.addErrorInFunction(fmt.Sprintf("local variable %d (%s): type %d does not exist", i, lv.Name, lv.Type))
		}
		if lv.Init != nil && !v.validExpression(*lv.Init) {
			v.addErrorInFunction(fmt.Sprintf("local variable %q: init expression %d does not exist", lv.Name, *lv.Init))
		}
	}

	for i, e := range fn.Expressions {
		h := ExpressionHandle(i)

		if e.Kind == nil {
			v.addErrorInExpression(h, "expression has nil kind")
			continue
		}

		ExpressionOperands(e.Kind, func(op ExpressionHandle) {
			if op >= h {
				v.addErrorInExpression(h, fmt.Sprintf("operand %d is not defined before it", op))
			}
		})
	}

	ctx := &ResolveContext{Module: v.module, Function: fn}
	for i := range fn.Expressions {
		h := ExpressionHandle(i)
		if _, err := v.typer.Resolve(ctx, h); err != nil {
			v.addErrorInExpression(h, err.Error())
		}
	}

	v.validateBlock(fn.Body, flowContext{})
}

func (v *Validator) validateBlock(block Block, fc flowContext) {
	for i := range block {
		v.validateStatement(i, &block[i], fc)
	}
}

//nolint:gocyclo,cyclop // one case per statement kind
func (v *Validator) validateStatement(index int, stmt *Statement, fc flowContext) {
	if stmt.Kind == nil {
		v.addErrorInStatement(index, "statement has nil kind")
		return
	}

	if r, ok := StatementResult(stmt.Kind); ok {
		if !v.validExpression(r) {
			v.addErrorInStatement(index, fmt.Sprintf("result expression %d does not exist", r))
		} else if !IsResultPlaceholder(v.fn.Expressions[r].Kind) {
			v.addErrorInStatement(index, fmt.Sprintf("result expression %d is not a result placeholder", r))
		} else {
			v.markEmitted(index, r)
		}
	}

	checkOperand := func(op ExpressionHandle) {
		if r, ok := StatementResult(stmt.Kind); ok && r == op {
			return
		}
		if !v.validExpression(op) {
			v.addErrorInStatement(index, fmt.Sprintf("expression %d does not exist", op))
			return
		}
		if !v.available(op) {
			v.addErrorInStatement(index, fmt.Sprintf("expression %d is used before it is emitted", op))
		}
	}

	// break-if reads values emitted by the loop body
	if _, ok := stmt.Kind.(StmtLoop); !ok {
		StatementOperands(stmt.Kind, checkOperand)
	}

	switch kind := stmt.Kind.(type) {
	case StmtEmit:
		v.validateEmit(index, kind.Range)

	case StmtBlock:
		v.validateBlock(kind.Block, fc)

	case StmtIf:
		v.validateBlock(kind.Accept, fc)
		v.validateBlock(kind.Reject, fc)

	case StmtSwitch:
		defaults := 0
		for i, c := range kind.Cases {
			if _, ok := c.Value.(SwitchValueDefault); ok {
				defaults++
			}
			if c.FallThrough && i == len(kind.Cases)-1 {
				v.addErrorInStatement(index, "last switch case falls through")
			}

			inner := fc
			inner.inSwitch = true
			v.validateBlock(c.Body, inner)
		}
		if defaults != 1 {
			v.addErrorInStatement(index, fmt.Sprintf("switch must have exactly one default case, got %d", defaults))
		}

	case StmtLoop:
		inner := flowContext{inLoop: true}
		v.validateBlock(kind.Body, inner)

		inner.inContinuing = true
		v.validateBlock(kind.Continuing, inner)

		if kind.BreakIf != nil {
			checkOperand(*kind.BreakIf)
		}

	case StmtBreak:
		if !fc.inLoop && !fc.inSwitch {
			v.addErrorInStatement(index, "break outside of loop or switch")
		}
		if fc.inContinuing {
			v.addErrorInStatement(index, "break in continuing block")
		}

	case StmtContinue:
		if !fc.inLoop {
			v.addErrorInStatement(index, "continue outside of loop")
		}
		if fc.inContinuing {
			v.addErrorInStatement(index, "continue in continuing block")
		}

	case StmtReturn:
		if fc.inContinuing {
			v.addErrorInStatement(index, "return in continuing block")
		}
		v.validateReturn(index, kind)

	case StmtKill:
		if fc.inContinuing {
			v.addErrorInStatement(index, "kill in continuing block")
		}

	case StmtCall:
		if int(kind.Function) >= len(v.module.Functions) {
			v.addErrorInStatement(index, fmt.Sprintf("function %d does not exist", kind.Function))
			return
		}
		callee := &v.module.Functions[kind.Function]
		if len(callee.Arguments) != len(kind.Arguments) {
			v.addErrorInStatement(index, fmt.Sprintf("call to %s with %d arguments, want %d",
				callee.Name, len(kind.Arguments), len(callee.Arguments)))
		}
	}
}

func (v *Validator) validateEmit(index int, r Range) {
	if r.Start >= r.End {
		v.addErrorInStatement(index, fmt.Sprintf("emit range start %d >= end %d", r.Start, r.End))
		return
	}
	if int(r.End) > len(v.fn.Expressions) {
		v.addErrorInStatement(index, fmt.Sprintf("emit range end %d out of range", r.End))
		return
	}

	for h := r.Start; h < r.End; h++ {
		kind := v.fn.Expressions[h].Kind
		if IsResultPlaceholder(kind) {
			v.addErrorInStatement(index, fmt.Sprintf("expression %d must not be emitted", h))
			continue
		}
		if NeedsPreEmit(kind) {
			continue
		}

		v.markEmitted(index, h)
	}
}

func (v *Validator) markEmitted(index int, h ExpressionHandle) {
	if v.emitted[h] {
		v.addErrorInStatement(index, fmt.Sprintf("expression %d is emitted twice", h))
	}
	v.emitted[h] = true
}

// available reports whether h can be referenced from a statement.
// Emission is checked in program order, which is conservative for values
// emitted in one branch and used after the join.
func (v *Validator) available(h ExpressionHandle) bool {
	kind := v.fn.Expressions[h].Kind

	return NeedsPreEmit(kind) || v.emitted[h]
}

func (v *Validator) validateReturn(index int, ret StmtReturn) {
	switch {
	case ret.Value == nil && v.fn.Result != nil:
		v.addErrorInStatement(index, "return without value in function with result")
	case ret.Value != nil && v.fn.Result == nil:
		v.addErrorInStatement(index, "return with value in function without result")
	case ret.Value != nil:
		r, ok := v.typer.Get(*ret.Value)
		if !ok {
			return
		}

		got := r.Inner(v.module.Types)
		want := v.module.Types[v.fn.Result.Type].Inner
		if !TypeInnerEqual(got, want) {
			v.addErrorInStatement(index, fmt.Sprintf("return type %s, want %s",
				TypeName(v.module.Types, got), TypeName(v.module.Types, want)))
		}
	}
}

func (v *Validator) validateEntryPoints() {
	names := make(map[string]bool)

	for i := range v.module.EntryPoints {
		ep := &v.module.EntryPoints[i]

		if ep.Name == "" {
			v.addError(fmt.Sprintf("entry point %d has empty name", i))
		}
		if names[ep.Name] {
			v.addError(fmt.Sprintf("duplicate entry point name %q", ep.Name))
		}
		names[ep.Name] = true

		v.validateFunction(&ep.Function, ep.Name)

		switch ep.Stage {
		case StageVertex:
			if ep.Function.Result == nil {
				v.addError(fmt.Sprintf("entry point %q (@vertex): must have a return value", ep.Name))
			} else if !v.hasPositionBuiltin(ep.Function.Result) {
				v.addError(fmt.Sprintf("entry point %q (@vertex): must return @builtin(position)", ep.Name))
			}
		case StageCompute:
			if ep.Workgroup[0] == 0 || ep.Workgroup[1] == 0 || ep.Workgroup[2] == 0 {
				v.addError(fmt.Sprintf("entry point %q (@compute): workgroup size must be non-zero", ep.Name))
			}
		}
	}
}

// hasPositionBuiltin checks the result binding or, for struct results, its members.
func (v *Validator) hasPositionBuiltin(result *FunctionResult) bool {
	if isPositionBuiltin(result.Binding) {
		return true
	}

	if !v.validType(result.Type) {
		return false
	}

	st, ok := v.module.Types[result.Type].Inner.(StructType)
	if !ok {
		return false
	}

	for _, m := range st.Members {
		if isPositionBuiltin(m.Binding) {
			return true
		}
	}

	return false
}

func isPositionBuiltin(b Binding) bool {
	bb, ok := b.(BuiltinBinding)
	return ok && bb.Builtin == BuiltinPosition
}

func (v *Validator) validType(h TypeHandle) bool {
	return int(h) < len(v.module.Types)
}

func (v *Validator) validExpression(h ExpressionHandle) bool {
	return v.fn != nil && int(h) < len(v.fn.Expressions)
}

func (v *Validator) addError(msg string) {
	v.errors = append(v.errors, ValidationError{Message: msg, Statement: -1})
}

func (v *Validator) addErrorInFunction(msg string) {
	v.errors = append(v.errors, ValidationError{Message: msg, Function: v.fnName, Statement: -1})
}

func (v *Validator) addErrorInExpression(h ExpressionHandle, msg string) {
	v.errors = append(v.errors, ValidationError{Message: msg, Function: v.fnName, Expression: &h, Statement: -1})
}

func (v *Validator) addErrorInStatement(index int, msg string) {
	v.errors = append(v.errors, ValidationError{Message: msg, Function: v.fnName, Statement: index})
}
