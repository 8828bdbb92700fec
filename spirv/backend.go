package spirv

import (
	"context"
	"sort"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/gogpu/wgslc/ir"
)

// Backend translates IR to SPIR-V.
//
// A Backend may compile several modules one after another,
// but it is not safe for concurrent use.
type Backend struct {
	options Options

	module  *ir.Module
	builder *ModuleBuilder
	tr      tlog.Span

	// GLSL.std.450 import ID (for math functions)
	glslID uint32

	capabilities map[Capability]struct{}
	extensions   map[string]struct{}

	// Type caches: structural for non-aggregates, by handle for the arena.
	lookupType    map[localType]uint32
	typeIDs       map[ir.TypeHandle]uint32
	wrapperIDs    map[ir.TypeHandle]uint32
	blockTypes    map[uint32]bool
	functionTypes map[string]uint32

	// Constant caches
	scalarConsts    map[scalarKey]uint32
	nullConsts      map[uint32]uint32
	compositeConsts map[string]uint32
	constantIDs     map[ir.ConstantHandle]uint32
	overrideIDs     []uint32

	globals     []globalVariable
	functionIDs []uint32
}

// globalVariable is a module-scope OpVariable.
type globalVariable struct {
	id    uint32
	class StorageClass

	// wrapped is set when the buffer type was not a struct and got
	// wrapped in a one-member Block struct. Accesses go through member 0.
	wrapped bool
}

// NewBackend creates a new SPIR-V backend.
func NewBackend(options Options) *Backend {
	return &Backend{options: options}
}

// Compile translates an IR module to SPIR-V binary.
func (b *Backend) Compile(module *ir.Module) ([]byte, error) {
	return b.CompileContext(context.Background(), module)
}

// CompileContext is Compile reporting to the trace span found in ctx.
func (b *Backend) CompileContext(ctx context.Context, module *ir.Module) (_ []byte, err error) {
	tr, _ := tlog.SpawnFromContextAndWrap(ctx, "spirv: compile", "version", b.options.Version)
	defer tr.Finish("err", &err)

	if b.options.Validation {
		verrs, err := ir.Validate(module)
		if err != nil {
			return nil, errors.Wrap(err, "validate")
		}

		if len(verrs) != 0 {
			return nil, errors.Wrap(verrs[0], "invalid module (%d errors)", len(verrs))
		}
	}

	b.reset(module, tr)

	// 1. Shader capability is required for all shader stages
	if err := b.require(CapabilityShader, "shader stages"); err != nil {
		return nil, err
	}

	// 2. Extended instruction sets
	b.glslID = b.builder.AddExtInstImport("GLSL.std.450")

	// 3. Memory model
	b.builder.SetMemoryModel(AddressingModelLogical, MemoryModelGLSL450)

	// 4. Function ids are known up front so calls may refer forward
	b.functionIDs = make([]uint32, len(module.Functions))
	for i := range b.functionIDs {
		b.functionIDs[i] = b.builder.AllocID()
	}

	// 5. Overrides and global variables
	if err := b.writeOverrides(); err != nil {
		return nil, err
	}

	if err := b.writeGlobals(); err != nil {
		return nil, err
	}

	// 6. Helper functions
	for i := range module.Functions {
		fn := &module.Functions[i]

		if _, err := b.writeFunction(fn, b.functionIDs[i], nil); err != nil {
			return nil, errors.Wrap(err, "function %v", fn.Name)
		}
	}

	// 7. Entry points with their interfaces and execution modes
	for i := range module.EntryPoints {
		ep := &module.EntryPoints[i]

		if err := b.writeEntryPoint(ep); err != nil {
			return nil, errors.Wrap(err, "entry point %v", ep.Name)
		}
	}

	// 8. Capabilities and extensions are known only now
	b.flushCapabilities()

	tr.V("spirv").Printw("module written",
		"bound", b.builder.Bound(),
		"capabilities", len(b.capabilities),
		"functions", len(module.Functions),
		"entry_points", len(module.EntryPoints))

	return b.builder.Build(), nil
}

func (b *Backend) reset(module *ir.Module, tr tlog.Span) {
	b.module = module
	b.builder = NewModuleBuilder(b.options.Version)
	b.tr = tr

	b.capabilities = make(map[Capability]struct{})
	b.extensions = make(map[string]struct{})

	b.lookupType = make(map[localType]uint32)
	b.typeIDs = make(map[ir.TypeHandle]uint32)
	b.wrapperIDs = make(map[ir.TypeHandle]uint32)
	b.blockTypes = make(map[uint32]bool)
	b.functionTypes = make(map[string]uint32)

	b.scalarConsts = make(map[scalarKey]uint32)
	b.nullConsts = make(map[uint32]uint32)
	b.compositeConsts = make(map[string]uint32)
	b.constantIDs = make(map[ir.ConstantHandle]uint32)
	b.overrideIDs = nil

	b.globals = nil
	b.functionIDs = nil
}

// require records that the module uses capability c.
// It fails when the options restrict capabilities and c is not among them.
func (b *Backend) require(c Capability, what string) error {
	if _, ok := b.capabilities[c]; ok {
		return nil
	}

	if !b.options.allows(c) {
		return missingCapability(c, what)
	}

	b.capabilities[c] = struct{}{}

	if b.tr.If("capability") {
		b.tr.Printw("capability", "cap", c, "for", what)
	}

	return nil
}

func (b *Backend) flushCapabilities() {
	caps := make([]Capability, 0, len(b.capabilities))
	for c := range b.capabilities {
		caps = append(caps, c)
	}

	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })

	for _, c := range caps {
		b.builder.AddCapability(c)
	}

	exts := make([]string, 0, len(b.extensions))
	for e := range b.extensions {
		exts = append(exts, e)
	}

	sort.Strings(exts)

	for _, e := range exts {
		b.builder.AddExtension(e)
	}
}

// writeOverrides declares pipeline-overridable constants as spec constants.
func (b *Backend) writeOverrides() error {
	b.overrideIDs = make([]uint32, len(b.module.Overrides))

	for i, o := range b.module.Overrides {
		ty, err := b.typeID(o.Type)
		if err != nil {
			return errors.Wrap(err, "override %v", o.Name)
		}

		s, ok := b.module.Types[o.Type].Inner.(ir.ScalarType)
		if !ok {
			return internalf("override %v is not a scalar", o.Name)
		}

		var bits uint64
		if o.Default != nil {
			bits = o.Default.Bits
		}

		var id uint32

		switch {
		case s.Kind == ir.ScalarBool:
			id = b.builder.AddSpecConstantBool(ty, bits != 0)
		case s.Width == 8:
			id = b.builder.AddSpecConstant(ty, uint32(bits), uint32(bits>>32))
		default:
			id = b.builder.AddSpecConstant(ty, uint32(bits))
		}

		if o.ID != nil {
			b.builder.AddDecorate(id, DecorationSpecID, uint32(*o.ID))
		}

		if b.options.Debug && o.Name != "" {
			b.builder.AddName(id, o.Name)
		}

		b.overrideIDs[i] = id
	}

	return nil
}

// writeGlobals declares module-scope variables.
func (b *Backend) writeGlobals() error {
	b.globals = make([]globalVariable, len(b.module.GlobalVariables))

	for i := range b.module.GlobalVariables {
		gv := &b.module.GlobalVariables[i]

		g, err := b.writeGlobal(gv)
		if err != nil {
			return errors.Wrap(err, "global %v", gv.Name)
		}

		b.globals[i] = g
	}

	return nil
}

func (b *Backend) writeGlobal(gv *ir.GlobalVariable) (globalVariable, error) {
	class := b.storageClass(gv.Space)

	ty, err := b.typeID(gv.Type)
	if err != nil {
		return globalVariable{}, err
	}

	g := globalVariable{class: class}

	switch gv.Space {
	case ir.SpaceUniform, ir.SpaceStorage, ir.SpacePushConstant:
		if b.needsWrapper(gv.Type) {
			ty = b.wrapperTypeID(gv.Type, ty)
			g.wrapped = true
		} else if !b.blockTypes[ty] {
			b.builder.AddDecorate(ty, DecorationBlock)
			b.blockTypes[ty] = true
		}
	}

	ptr := b.pointerTypeID(ty, class)

	switch {
	case gv.Init != nil:
		init, err := b.constantID(*gv.Init)
		if err != nil {
			return globalVariable{}, err
		}

		g.id = b.builder.AddVariableWithInit(ptr, class, init)
	case class == StorageClassPrivate:
		g.id = b.builder.AddVariableWithInit(ptr, class, b.nullConstant(ty))
	default:
		g.id = b.builder.AddVariable(ptr, class)
	}

	if gv.Binding != nil {
		b.builder.AddDecorate(g.id, DecorationDescriptorSet, gv.Binding.Group)
		b.builder.AddDecorate(g.id, DecorationBinding, gv.Binding.Binding)
	}

	access := gv.Access
	if img, ok := b.module.Types[gv.Type].Inner.(ir.ImageType); ok && img.Class == ir.ImageClassStorage {
		access = img.StorageAccess
	} else if gv.Space != ir.SpaceStorage {
		access = ir.StorageAccessLoad | ir.StorageAccessStore
	}

	if access&ir.StorageAccessStore == 0 {
		b.builder.AddDecorate(g.id, DecorationNonWritable)
	}

	if access&ir.StorageAccessLoad == 0 {
		b.builder.AddDecorate(g.id, DecorationNonReadable)
	}

	if b.options.Debug && gv.Name != "" {
		b.builder.AddName(g.id, gv.Name)
	}

	return g, nil
}

// needsWrapper reports whether a buffer of type h must be wrapped in a
// Block struct. Structs ending in a runtime array are decorated directly,
// since OpArrayLength needs the array to be their last member.
func (b *Backend) needsWrapper(h ir.TypeHandle) bool {
	st, ok := b.module.Types[h].Inner.(ir.StructType)
	if !ok {
		return true
	}

	if len(st.Members) == 0 {
		return false
	}

	last := b.module.Types[st.Members[len(st.Members)-1].Type].Inner
	arr, ok := last.(ir.ArrayType)

	return !ok || !arr.Size.IsDynamic()
}

func (b *Backend) wrapperTypeID(h ir.TypeHandle, inner uint32) uint32 {
	if id, ok := b.wrapperIDs[h]; ok {
		return id
	}

	id := b.builder.AddTypeStruct(inner)
	b.builder.AddMemberDecorate(id, 0, DecorationOffset, 0)

	if mat, ok := b.matrixOf(h); ok {
		b.builder.AddMemberDecorate(id, 0, DecorationColMajor)
		b.builder.AddMemberDecorate(id, 0, DecorationMatrixStride, matrixStride(mat))
	}

	b.builder.AddDecorate(id, DecorationBlock)
	b.wrapperIDs[h] = id

	return id
}

// writeEntryPoint writes the entry point function, then declares it.
func (b *Backend) writeEntryPoint(ep *ir.EntryPoint) error {
	id := b.builder.AllocID()

	iface, err := b.writeFunction(&ep.Function, id, ep)
	if err != nil {
		return err
	}

	vars := iface.variables

	// since 1.4 the interface lists every global the entry point may touch
	if b.options.Version.AtLeast(Version1_4) {
		for _, g := range b.globals {
			vars = append(vars, g.id)
		}
	}

	var model ExecutionModel

	switch ep.Stage {
	case ir.StageVertex:
		model = ExecutionModelVertex
	case ir.StageFragment:
		model = ExecutionModelFragment
	case ir.StageCompute:
		model = ExecutionModelGLCompute
	default:
		return unimplementedf("shader stage %v", ep.Stage)
	}

	b.builder.AddEntryPoint(model, id, ep.Name, vars)

	switch ep.Stage {
	case ir.StageFragment:
		b.builder.AddExecutionMode(id, ExecutionModeOriginUpperLeft)
		if iface.depthReplacing {
			b.builder.AddExecutionMode(id, ExecutionModeDepthReplacing)
		}
	case ir.StageCompute:
		wg := ep.Workgroup
		for i := range wg {
			if wg[i] == 0 {
				wg[i] = 1
			}
		}

		b.builder.AddExecutionMode(id, ExecutionModeLocalSize, wg[0], wg[1], wg[2])
	}

	if b.options.Debug {
		b.builder.AddName(id, ep.Name)
	}

	return nil
}
