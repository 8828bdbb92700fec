package wgsl

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/gogpu/wgslc/ir"
)

// Options configures lowering.
type Options struct {
	// MaxDepth caps the nesting of expressions, statements and types.
	MaxDepth int `yaml:"max_depth"`
}

// DefaultOptions returns the options Lower uses when none are given.
func DefaultOptions() Options {
	return Options{MaxDepth: DefaultMaxDepth}
}

type globalKind uint8

const (
	globalType globalKind = iota
	globalConst
	globalOverride
	globalVar
	globalFunction
)

// global is a module-scope name.
type global struct {
	kind     globalKind
	ty       ir.TypeHandle
	value    constValue
	override ir.OverrideHandle
	variable ir.GlobalVariableHandle
	function ir.FunctionHandle
	entry    bool
	span     Span
}

// Lowerer converts a WGSL AST to IR. It is used for one module only.
type Lowerer struct {
	opts   Options
	source string

	module   *ir.Module
	types    *ir.TypeRegistry
	consts   *ir.ConstantRegistry
	layouter ir.Layouter

	globals map[string]global

	depth int

	tr tlog.Span
}

// Parse tokenizes and parses source.
func Parse(source string) (*Module, error) {
	return ParseSource(source)
}

// Lower converts a parsed module to IR.
// Declarations may appear in any order; they are lowered after the ones
// they depend on.
func Lower(ctx context.Context, ast *Module, source string, opts Options) (_ *ir.Module, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "wgsl: lower", "decls", len(ast.Decls))
	defer tr.Finish("err", &err)

	if opts.MaxDepth <= 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	module := &ir.Module{}
	l := &Lowerer{
		opts:    opts,
		source:  source,
		module:  module,
		types:   ir.NewTypeRegistry(module),
		consts:  ir.NewConstantRegistry(module),
		globals: make(map[string]global, len(ast.Decls)),
		tr:      tr,
	}

	defer func() {
		var le *LoweringError
		if err != nil && errors.As(err, &le) {
			le.Source = source
		}
	}()

	decls, err := orderDecls(ast.Decls)
	if err != nil {
		return nil, err
	}

	for _, d := range decls {
		if err := l.lowerDecl(d); err != nil {
			return nil, err
		}
	}

	tr.Printw("lowered",
		"types", len(module.Types),
		"constants", len(module.Constants),
		"globals", len(module.GlobalVariables),
		"functions", len(module.Functions),
		"entry_points", len(module.EntryPoints))

	return module, nil
}

func (l *Lowerer) lowerDecl(d Decl) error {
	switch d := d.(type) {
	case *StructDecl:
		ty, err := l.lowerStruct(d)
		if err != nil {
			return err
		}
		l.globals[d.Name] = global{kind: globalType, ty: ty, span: d.Span}

	case *AliasDecl:
		ty, err := l.resolveType(nil, d.Type)
		if err != nil {
			return err
		}
		l.globals[d.Name] = global{kind: globalType, ty: ty, span: d.Span}

	case *ConstAssertDecl:
		return l.constAssert(nil, d.Cond)

	case *ConstDecl:
		v, err := l.constDecl(nil, d)
		if err != nil {
			return err
		}
		l.globals[d.Name] = global{kind: globalConst, ty: v.ty, value: v, span: d.Span}

	case *OverrideDecl:
		return l.lowerOverride(d)

	case *VarDecl:
		return l.lowerGlobalVar(d)

	case *FunctionDecl:
		if err := l.lowerFunction(d); err != nil {
			return errors.Wrap(err, "lower function %v", d.Name)
		}

	default:
		return errors.New("unexpected declaration %T", d)
	}

	return nil
}

// constDecl evaluates a const declaration. Without a type annotation the
// value keeps its abstract type until it is used.
func (l *Lowerer) constDecl(fc *funcCtx, d *ConstDecl) (constValue, error) {
	v, err := l.evalConst(fc, d.Init)
	if err != nil {
		return constValue{}, err
	}

	if d.Type == nil {
		return v, nil
	}

	ty, err := l.resolveType(fc, d.Type)
	if err != nil {
		return constValue{}, err
	}

	return l.convertConst(v, ty, false, d.Init.Pos())
}

func (l *Lowerer) constAssert(fc *funcCtx, cond Expr) error {
	v, err := l.evalConst(fc, cond)
	if err != nil {
		return err
	}

	b, ok := v.lit.(ir.LiteralBool)
	if !ok {
		return newError(ErrTypeMismatch, cond.Pos(), "const_assert needs a bool, got %s", l.typeName(v.ty))
	}
	if !b {
		return newError(ErrConstAssertFailed, cond.Pos(), "const_assert failed")
	}

	return nil
}

func (l *Lowerer) lowerOverride(d *OverrideDecl) error {
	var (
		ty  ir.TypeHandle
		def *ir.ScalarValue
		err error
	)

	if d.Type != nil {
		if ty, err = l.resolveType(nil, d.Type); err != nil {
			return err
		}
	}

	if d.Init != nil {
		v, err := l.evalConst(nil, d.Init)
		if err != nil {
			return err
		}
		if d.Type != nil {
			v, err = l.convertConst(v, ty, false, d.Init.Pos())
		} else {
			v, err = l.concretizeConst(v, d.Init.Pos())
			ty = v.ty
		}
		if err != nil {
			return err
		}
		if v.lit == nil {
			return newError(ErrTypeMismatch, d.Init.Pos(), "override must be a scalar, got %s", l.typeName(v.ty))
		}
		bits := literalBits(v.lit)
		def = &bits
	} else if d.Type == nil {
		return newError(ErrTypeMismatch, d.Span, "override %s needs a type or an initializer", d.Name)
	}

	if s, ok := l.inner(ty).(ir.ScalarType); !ok || s.IsAbstract() {
		return newError(ErrTypeMismatch, d.Span, "override must be a concrete scalar, got %s", l.typeName(ty))
	}

	o := ir.Override{Name: d.Name, Type: ty, Default: def}

	for _, a := range d.Attributes {
		if a.Name != "id" {
			continue
		}
		n, err := l.attrUint(a)
		if err != nil {
			return err
		}
		if n > 0xffff {
			return newError(ErrOverflow, a.Span, "override id %d does not fit in 16 bits", n)
		}
		id := uint16(n)
		o.ID = &id
	}

	h := ir.OverrideHandle(len(l.module.Overrides))
	l.module.Overrides = append(l.module.Overrides, o)
	l.globals[d.Name] = global{kind: globalOverride, ty: ty, override: h, span: d.Span}

	return nil
}

func (l *Lowerer) lowerGlobalVar(d *VarDecl) error {
	var (
		ty   ir.TypeHandle
		init *ir.ConstantHandle
		err  error
	)

	if d.Type != nil {
		if ty, err = l.resolveType(nil, d.Type); err != nil {
			return err
		}
	}

	if d.Init != nil {
		v, err := l.evalConst(nil, d.Init)
		if err != nil {
			return err
		}
		if d.Type != nil {
			v, err = l.convertConst(v, ty, false, d.Init.Pos())
		} else {
			v, err = l.concretizeConst(v, d.Init.Pos())
		}
		if err != nil {
			return err
		}
		ty = v.ty

		c, err := l.constantOf(v, "", d.Init.Pos())
		if err != nil {
			return err
		}
		init = &c
	}

	gv := ir.GlobalVariable{Name: d.Name, Type: ty, Init: init}

	switch l.inner(ty).(type) {
	case ir.SamplerType, ir.ImageType, ir.RayQueryType:
		gv.Space = ir.SpaceHandle
	default:
		gv.Space = ir.SpacePrivate
		if d.AddressSpace != "" {
			space, ok := addressSpaceTable[d.AddressSpace]
			if !ok {
				return newError(ErrUnknownIdentifier, d.Span, "unknown address space %s", d.AddressSpace)
			}
			if space == ir.SpaceFunction {
				return newError(ErrUnsupported, d.Span, "module-scope variables cannot live in the function address space")
			}
			gv.Space = space
		}
	}

	switch {
	case gv.Space == ir.SpaceStorage:
		gv.Access = ir.StorageAccessLoad
		if d.AccessMode != "" {
			access, ok := storageAccessTable[d.AccessMode]
			if !ok {
				return newError(ErrUnknownIdentifier, d.Span, "unknown access mode %s", d.AccessMode)
			}
			gv.Access = access
		}
	case d.AccessMode != "":
		return newError(ErrTypeMismatch, d.Span, "access mode is only allowed in the storage address space")
	}

	if init != nil && gv.Space != ir.SpacePrivate {
		return newError(ErrInvalidAssignment, d.Init.Pos(), "only private variables can have an initializer")
	}

	var (
		group, binding       uint32
		hasGroup, hasBinding bool
	)
	for _, a := range d.Attributes {
		switch a.Name {
		case "group":
			group, err = l.attrUint(a)
			hasGroup = true
		case "binding":
			binding, err = l.attrUint(a)
			hasBinding = true
		}
		if err != nil {
			return err
		}
	}
	if hasGroup != hasBinding {
		return newError(ErrWrongArgumentCount, d.Span, "@group and @binding must be used together")
	}
	if hasGroup {
		gv.Binding = &ir.ResourceBinding{Group: group, Binding: binding}
	}

	h := ir.GlobalVariableHandle(len(l.module.GlobalVariables))
	l.module.GlobalVariables = append(l.module.GlobalVariables, gv)
	l.globals[d.Name] = global{kind: globalVar, ty: ty, variable: h, span: d.Span}

	return nil
}

var stageTable = map[string]ir.ShaderStage{
	"vertex":   ir.StageVertex,
	"fragment": ir.StageFragment,
	"compute":  ir.StageCompute,
}

func (l *Lowerer) lowerFunction(d *FunctionDecl) (err error) {
	fn := ir.Function{
		Name:             d.Name,
		NamedExpressions: map[ir.ExpressionHandle]string{},
	}

	var (
		stage     ir.ShaderStage
		entry     bool
		workgroup = [3]uint32{1, 1, 1}
		sized     bool
	)

	for _, a := range d.Attributes {
		if s, ok := stageTable[a.Name]; ok {
			if entry {
				return newError(ErrRedefinition, a.Span, "%s has more than one shader stage", d.Name)
			}
			stage, entry = s, true
			continue
		}

		if a.Name != "workgroup_size" {
			continue
		}
		if len(a.Args) < 1 || len(a.Args) > 3 {
			return newError(ErrWrongArgumentCount, a.Span, "@workgroup_size takes one to three arguments")
		}
		for i, arg := range a.Args {
			if id, ok := arg.(*Ident); ok && l.globals[id.Name].kind == globalOverride {
				return newError(ErrUnsupported, arg.Pos(), "override %s in @workgroup_size is not supported", id.Name)
			}
			if workgroup[i], err = l.constUint(arg); err != nil {
				return err
			}
			if workgroup[i] == 0 {
				return newError(ErrOutOfBounds, arg.Pos(), "workgroup size must be positive")
			}
		}
		sized = true
	}

	switch {
	case entry && stage == ir.StageCompute && !sized:
		return newError(ErrWrongArgumentCount, d.Span, "compute entry point %s needs @workgroup_size", d.Name)
	case sized && (!entry || stage != ir.StageCompute):
		return newError(ErrUnsupported, d.Span, "@workgroup_size is only allowed on compute entry points")
	}

	for _, p := range d.Params {
		ty, err := l.resolveType(nil, p.Type)
		if err != nil {
			return err
		}
		binding, err := l.binding(p.Attributes)
		if err != nil {
			return err
		}
		fn.Arguments = append(fn.Arguments, ir.FunctionArgument{Name: p.Name, Type: ty, Binding: binding})
	}

	if d.ReturnType != nil {
		ty, err := l.resolveType(nil, d.ReturnType)
		if err != nil {
			return err
		}
		binding, err := l.binding(d.ReturnAttrs)
		if err != nil {
			return err
		}
		fn.Result = &ir.FunctionResult{Type: ty, Binding: binding}
	}

	fc := newFuncCtx(l, &fn)
	if err := fc.lowerBody(d); err != nil {
		return err
	}

	if fn.ExpressionTypes, err = fc.typer.ResolveAll(&fc.rctx); err != nil {
		return errors.Wrap(err, "resolve types")
	}

	l.tr.V("lower").Printw("function", "name", d.Name, "entry", entry,
		"expressions", len(fn.Expressions), "locals", len(fn.LocalVars), "statements", len(fn.Body))

	if entry {
		l.module.EntryPoints = append(l.module.EntryPoints, ir.EntryPoint{
			Name:      d.Name,
			Stage:     stage,
			Workgroup: workgroup,
			Function:  fn,
		})
		l.globals[d.Name] = global{kind: globalFunction, entry: true, span: d.Span}

		return nil
	}

	h := ir.FunctionHandle(len(l.module.Functions))
	l.module.Functions = append(l.module.Functions, fn)
	l.globals[d.Name] = global{kind: globalFunction, function: h, span: d.Span}

	return nil
}

// enter counts one level of nesting.
func (l *Lowerer) enter(span Span) error {
	l.depth++
	if l.depth > l.opts.MaxDepth {
		l.depth--
		return newError(ErrResourceLimit, span, "nesting is deeper than %d", l.opts.MaxDepth)
	}

	return nil
}

func (l *Lowerer) leave() { l.depth-- }

func (l *Lowerer) typeName(h ir.TypeHandle) string {
	if int(h) < len(l.module.Types) && l.module.Types[h].Name != "" {
		return l.module.Types[h].Name
	}
	if int(h) >= len(l.module.Types) {
		return "<invalid>"
	}

	return l.innerName(l.inner(h))
}

func (l *Lowerer) innerName(inner ir.TypeInner) string {
	return ir.TypeName(l.module.Types, inner)
}
