package wgsl

import (
	"fmt"
	"strings"

	"github.com/gogpu/wgslc/ir"
)

var atomicTable = map[string]ir.AtomicFunction{
	"atomicAdd":      ir.AtomicAdd{},
	"atomicSub":      ir.AtomicSubtract{},
	"atomicMax":      ir.AtomicMax{},
	"atomicMin":      ir.AtomicMin{},
	"atomicAnd":      ir.AtomicAnd{},
	"atomicOr":       ir.AtomicInclusiveOr{},
	"atomicXor":      ir.AtomicExclusiveOr{},
	"atomicExchange": ir.AtomicExchange{},
}

var barrierTable = map[string]ir.BarrierFlags{
	"workgroupBarrier": ir.BarrierWorkGroup,
	"storageBarrier":   ir.BarrierStorage,
	"textureBarrier":   ir.BarrierTexture,
}

// resourceCall holds the lowered arguments of a texture, atomic or
// synchronization builtin.
type resourceCall struct {
	fc     *funcCtx
	block  *ir.Block
	e      *CallExpr
	args   []ir.ExpressionHandle
	inners []ir.TypeInner
	spans  []Span
}

// callResource lowers builtins that act on textures, atomics and other
// resources. The bool result is false if name is not one of them.
func (fc *funcCtx) callResource(block *ir.Block, e *CallExpr) (*ir.ExpressionHandle, bool, error) {
	name := e.Callee.Name

	known := strings.HasPrefix(name, "texture") && name != "textureBarrier" ||
		strings.HasPrefix(name, "atomic") ||
		strings.HasPrefix(name, "rayQuery")
	switch name {
	case "workgroupBarrier", "storageBarrier", "textureBarrier",
		"workgroupUniformLoad", "subgroupBallot", "arrayLength":
		known = true
	}
	if !known {
		return nil, false, nil
	}

	args, inners, spans, err := fc.loweredArgs(block, e.Args)
	if err != nil {
		return nil, true, err
	}
	c := &resourceCall{fc: fc, block: block, e: e, args: args, inners: inners, spans: spans}

	h, err := c.lower(name)
	if err != nil {
		return nil, true, err
	}

	return h, true, nil
}

//nolint:gocyclo,cyclop // one case per builtin
func (c *resourceCall) lower(name string) (*ir.ExpressionHandle, error) {
	fc := c.fc

	some := func(h ir.ExpressionHandle, err error) (*ir.ExpressionHandle, error) {
		if err != nil {
			return nil, err
		}
		return &h, nil
	}

	switch name {
	case "textureSample", "textureSampleLevel", "textureSampleBias", "textureSampleGrad",
		"textureSampleCompare", "textureSampleCompareLevel":
		return some(c.sample(name))

	case "textureLoad":
		return some(c.load())

	case "textureStore":
		return nil, c.store()

	case "textureDimensions", "textureNumLevels", "textureNumLayers", "textureNumSamples":
		return some(c.query(name))

	case "atomicLoad":
		if err := c.arity(1); err != nil {
			return nil, err
		}
		ptr, _, err := c.atomicPointer(0)
		if err != nil {
			return nil, err
		}
		h := fc.append(ir.ExprLoad{Pointer: ptr}, c.e.Span)
		return &h, nil

	case "atomicStore":
		if err := c.arity(2); err != nil {
			return nil, err
		}
		ptr, scalar, err := c.atomicPointer(0)
		if err != nil {
			return nil, err
		}
		value, err := c.coerce(1, scalar)
		if err != nil {
			return nil, err
		}
		fc.effect(c.block, ir.StmtStore{Pointer: ptr, Value: value}, c.e.Span)
		return nil, nil

	case "atomicCompareExchangeWeak":
		return some(c.compareExchange())

	case "workgroupBarrier", "storageBarrier", "textureBarrier":
		if err := c.arity(0); err != nil {
			return nil, err
		}
		fc.effect(c.block, ir.StmtBarrier{Flags: barrierTable[name]}, c.e.Span)
		return nil, nil

	case "workgroupUniformLoad":
		return some(c.uniformLoad())

	case "subgroupBallot":
		return some(c.ballot())

	case "arrayLength":
		return some(c.arrayLength())

	case "rayQueryProceed":
		if err := c.arity(1); err != nil {
			return nil, err
		}
		q, err := c.rayQuery(0)
		if err != nil {
			return nil, err
		}
		h := fc.withResult(c.block, ir.ExprRayQueryProceedResult{}, c.e.Span, func(r ir.ExpressionHandle) ir.StatementKind {
			return ir.StmtRayQuery{Query: q, Fun: ir.RayQueryProceed{Result: r}}
		})
		return &h, nil

	case "rayQueryTerminate":
		if err := c.arity(1); err != nil {
			return nil, err
		}
		q, err := c.rayQuery(0)
		if err != nil {
			return nil, err
		}
		fc.effect(c.block, ir.StmtRayQuery{Query: q, Fun: ir.RayQueryTerminate{}}, c.e.Span)
		return nil, nil
	}

	if fun, ok := atomicTable[name]; ok {
		return some(c.atomic(fun))
	}

	return nil, newError(ErrUnsupported, c.e.Span, "builtin %s is not supported", name)
}

func (c *resourceCall) arity(n int) error {
	if len(c.args) != n {
		return newError(ErrWrongArgumentCount, c.e.Span, "%s takes %d arguments, got %d", c.e.Callee.Name, n, len(c.args))
	}

	return nil
}

func (c *resourceCall) wrongType(i int, want string) error {
	return newError(ErrWrongArgumentType, c.spans[i], "%s argument %d must be %s, got %s",
		c.e.Callee.Name, i+1, want, c.fc.l.innerName(c.inners[i]))
}

// coerce converts argument i to want, allowing abstract arguments to
// become concrete.
func (c *resourceCall) coerce(i int, want ir.TypeInner) (ir.ExpressionHandle, error) {
	h := c.args[i]

	if s, ok := c.fc.l.leafScalar(want); ok {
		var err error
		if h, err = c.fc.convertExpr(h, s); err != nil {
			return 0, err
		}
	}

	got, err := c.fc.inner(h)
	if err != nil {
		return 0, err
	}
	if !ir.TypeInnerEqual(got, want) {
		return 0, c.wrongType(i, c.fc.l.innerName(want))
	}

	return h, nil
}

// integer accepts an i32 or u32 argument, or a vector of them with size n.
func (c *resourceCall) integer(i int, n ir.VectorSize) (ir.ExpressionHandle, error) {
	h, err := c.fc.concretize(c.args[i])
	if err != nil {
		return 0, err
	}
	inner, err := c.fc.inner(h)
	if err != nil {
		return 0, err
	}

	want := "i32 or u32"
	if n != 0 {
		want = fmt.Sprintf("vec%d<i32> or vec%d<u32>", n, n)
	}

	s, ok := ir.ScalarOf(inner)
	if !ok || (s != ir.I32 && s != ir.U32) {
		return 0, c.wrongType(i, want)
	}
	if v, isVec := inner.(ir.VectorType); isVec != (n != 0) || isVec && v.Size != n {
		return 0, c.wrongType(i, want)
	}

	return h, nil
}

func coordinateSize(dim ir.ImageDimension) ir.VectorSize {
	switch dim {
	case ir.Dim1D:
		return 0
	case ir.Dim2D:
		return ir.Vec2
	default:
		return ir.Vec3
	}
}

func shaped(n ir.VectorSize, s ir.ScalarType) ir.TypeInner {
	if n == 0 {
		return s
	}

	return ir.VectorType{Size: n, Scalar: s}
}

func (c *resourceCall) image(i int) (ir.ImageType, error) {
	if i >= len(c.args) {
		return ir.ImageType{}, newError(ErrWrongArgumentCount, c.e.Span, "%s needs a texture", c.e.Callee.Name)
	}

	img, ok := c.inners[i].(ir.ImageType)
	if !ok {
		return ir.ImageType{}, c.wrongType(i, "a texture")
	}

	return img, nil
}

// sample lowers the textureSample family:
// (t, s, coords[, array_index], extra...) where extra depends on name.
func (c *resourceCall) sample(name string) (ir.ExpressionHandle, error) {
	if len(c.args) < 3 {
		return 0, newError(ErrWrongArgumentCount, c.e.Span, "%s takes at least 3 arguments, got %d", name, len(c.args))
	}

	img, err := c.image(0)
	if err != nil {
		return 0, err
	}
	if img.Class == ir.ImageClassStorage || img.Multisampled {
		return 0, c.wrongType(0, "a sampled or depth texture")
	}

	smp, ok := c.inners[1].(ir.SamplerType)
	if !ok {
		return 0, c.wrongType(1, "a sampler")
	}

	compare := strings.HasPrefix(name, "textureSampleCompare")
	switch {
	case compare && img.Class != ir.ImageClassDepth:
		return 0, c.wrongType(0, "a depth texture")
	case compare && !smp.Comparison:
		return 0, c.wrongType(1, "sampler_comparison")
	case !compare && smp.Comparison:
		return 0, c.wrongType(1, "sampler")
	}

	coord, err := c.coerce(2, shaped(coordinateSize(img.Dim), ir.F32))
	if err != nil {
		return 0, err
	}

	next := 3
	sample := ir.ExprImageSample{Image: c.args[0], Sampler: c.args[1], Coordinate: coord, Level: ir.SampleLevelAuto{}}

	if img.Arrayed {
		if next >= len(c.args) {
			return 0, newError(ErrWrongArgumentCount, c.e.Span, "%s on an array texture needs an array index", name)
		}
		idx, err := c.integer(next, 0)
		if err != nil {
			return 0, err
		}
		sample.ArrayIndex = &idx
		next++
	}

	extra := map[string]int{
		"textureSample":             0,
		"textureSampleLevel":        1,
		"textureSampleBias":         1,
		"textureSampleGrad":         2,
		"textureSampleCompare":      1,
		"textureSampleCompareLevel": 1,
	}[name]
	if len(c.args) != next+extra {
		return 0, newError(ErrWrongArgumentCount, c.e.Span, "%s takes %d arguments here, got %d (offsets are not supported)", name, next+extra, len(c.args))
	}

	f32 := func(i int) (ir.ExpressionHandle, error) { return c.coerce(i, ir.F32) }

	switch name {
	case "textureSampleLevel":
		var level ir.ExpressionHandle
		if img.Class == ir.ImageClassDepth {
			level, err = c.integer(next, 0)
		} else {
			level, err = f32(next)
		}
		if err != nil {
			return 0, err
		}
		sample.Level = ir.SampleLevelExact{Level: level}

	case "textureSampleBias":
		bias, err := f32(next)
		if err != nil {
			return 0, err
		}
		sample.Level = ir.SampleLevelBias{Bias: bias}

	case "textureSampleGrad":
		grad := shaped(coordinateSize(img.Dim), ir.F32)
		x, err := c.coerce(next, grad)
		if err != nil {
			return 0, err
		}
		y, err := c.coerce(next+1, grad)
		if err != nil {
			return 0, err
		}
		sample.Level = ir.SampleLevelGradient{X: x, Y: y}

	case "textureSampleCompare", "textureSampleCompareLevel":
		ref, err := f32(next)
		if err != nil {
			return 0, err
		}
		sample.DepthRef = &ref
		if name == "textureSampleCompareLevel" {
			sample.Level = ir.SampleLevelZero{}
		}
	}

	return c.fc.append(sample, c.e.Span), nil
}

// load lowers textureLoad(t, coords[, array_index][, level | sample]).
func (c *resourceCall) load() (ir.ExpressionHandle, error) {
	img, err := c.image(0)
	if err != nil {
		return 0, err
	}
	if img.Dim == ir.DimCube {
		return 0, c.wrongType(0, "a non-cube texture")
	}
	if img.Class == ir.ImageClassStorage && img.StorageAccess&ir.StorageAccessLoad == 0 {
		return 0, c.wrongType(0, "a readable storage texture")
	}

	want := 2
	if img.Arrayed {
		want++
	}
	if img.Class != ir.ImageClassStorage {
		want++
	}
	if err := c.arity(want); err != nil {
		return 0, err
	}

	coord, err := c.integer(1, coordinateSize(img.Dim))
	if err != nil {
		return 0, err
	}

	load := ir.ExprImageLoad{Image: c.args[0], Coordinate: coord}
	next := 2

	if img.Arrayed {
		idx, err := c.integer(next, 0)
		if err != nil {
			return 0, err
		}
		load.ArrayIndex = &idx
		next++
	}

	if img.Class != ir.ImageClassStorage {
		h, err := c.integer(next, 0)
		if err != nil {
			return 0, err
		}
		if img.Multisampled {
			load.Sample = &h
		} else {
			load.Level = &h
		}
	}

	return c.fc.append(load, c.e.Span), nil
}

// store lowers textureStore(t, coords[, array_index], value).
func (c *resourceCall) store() error {
	img, err := c.image(0)
	if err != nil {
		return err
	}
	if img.Class != ir.ImageClassStorage || img.StorageAccess&ir.StorageAccessStore == 0 {
		return c.wrongType(0, "a writable storage texture")
	}

	want := 3
	if img.Arrayed {
		want++
	}
	if err := c.arity(want); err != nil {
		return err
	}

	coord, err := c.integer(1, coordinateSize(img.Dim))
	if err != nil {
		return err
	}

	st := ir.StmtImageStore{Image: c.args[0], Coordinate: coord}
	if img.Arrayed {
		idx, err := c.integer(2, 0)
		if err != nil {
			return err
		}
		st.ArrayIndex = &idx
	}

	if st.Value, err = c.coerce(want-1, ir.VectorType{Size: ir.Vec4, Scalar: ir.StorageFormatScalar(img.StorageFormat)}); err != nil {
		return err
	}

	c.fc.effect(c.block, st, c.e.Span)

	return nil
}

func (c *resourceCall) query(name string) (ir.ExpressionHandle, error) {
	img, err := c.image(0)
	if err != nil {
		return 0, err
	}

	q := ir.ExprImageQuery{Image: c.args[0]}

	switch name {
	case "textureDimensions":
		size := ir.ImageQuerySize{}
		if len(c.args) == 2 {
			if img.Class == ir.ImageClassStorage || img.Multisampled {
				return 0, newError(ErrWrongArgumentCount, c.spans[1], "textureDimensions takes no level for this texture")
			}
			level, err := c.integer(1, 0)
			if err != nil {
				return 0, err
			}
			size.Level = &level
		} else if err := c.arity(1); err != nil {
			return 0, err
		}
		q.Query = size

	case "textureNumLevels":
		if img.Class == ir.ImageClassStorage || img.Multisampled {
			return 0, c.wrongType(0, "a sampled or depth texture")
		}
		q.Query = ir.ImageQueryNumLevels{}

	case "textureNumLayers":
		if !img.Arrayed {
			return 0, c.wrongType(0, "an array texture")
		}
		q.Query = ir.ImageQueryNumLayers{}

	case "textureNumSamples":
		if !img.Multisampled {
			return 0, c.wrongType(0, "a multisampled texture")
		}
		q.Query = ir.ImageQueryNumSamples{}
	}

	if name != "textureDimensions" {
		if err := c.arity(1); err != nil {
			return 0, err
		}
	}

	return c.fc.append(q, c.e.Span), nil
}

// atomicPointer checks that argument i points to an atomic in the
// storage or workgroup address space and returns its scalar.
func (c *resourceCall) atomicPointer(i int) (ir.ExpressionHandle, ir.ScalarType, error) {
	p, ok := c.inners[i].(ir.PointerType)
	if !ok || (p.Space != ir.SpaceStorage && p.Space != ir.SpaceWorkGroup) {
		return 0, ir.ScalarType{}, c.wrongType(i, "a pointer to an atomic in storage or workgroup memory")
	}

	a, ok := c.fc.l.inner(p.Base).(ir.AtomicType)
	if !ok {
		return 0, ir.ScalarType{}, c.wrongType(i, "a pointer to an atomic")
	}

	return c.args[i], a.Scalar, nil
}

func (c *resourceCall) atomic(fun ir.AtomicFunction) (ir.ExpressionHandle, error) {
	if err := c.arity(2); err != nil {
		return 0, err
	}
	ptr, scalar, err := c.atomicPointer(0)
	if err != nil {
		return 0, err
	}
	value, err := c.coerce(1, scalar)
	if err != nil {
		return 0, err
	}

	result := ir.ExprAtomicResult{Type: c.fc.l.register(scalar)}

	return c.fc.withResult(c.block, result, c.e.Span, func(r ir.ExpressionHandle) ir.StatementKind {
		return ir.StmtAtomic{Pointer: ptr, Fun: fun, Value: value, Result: &r}
	}), nil
}

// compareExchange lowers atomicCompareExchangeWeak(p, cmp, v), which
// returns a struct of the old value and whether the exchange happened.
func (c *resourceCall) compareExchange() (ir.ExpressionHandle, error) {
	if err := c.arity(3); err != nil {
		return 0, err
	}
	ptr, scalar, err := c.atomicPointer(0)
	if err != nil {
		return 0, err
	}
	cmp, err := c.coerce(1, scalar)
	if err != nil {
		return 0, err
	}
	value, err := c.coerce(2, scalar)
	if err != nil {
		return 0, err
	}

	l := c.fc.l
	ty := l.registerNamed("__atomic_compare_exchange_result<"+scalar.String()+">", ir.StructType{
		Members: []ir.StructMember{
			{Name: "old_value", Type: l.register(scalar), Offset: 0},
			{Name: "exchanged", Type: l.register(ir.Bool), Offset: 4},
		},
		Span: 8,
	})

	result := ir.ExprAtomicResult{Type: ty, Comparison: true}

	return c.fc.withResult(c.block, result, c.e.Span, func(r ir.ExpressionHandle) ir.StatementKind {
		return ir.StmtAtomic{Pointer: ptr, Fun: ir.AtomicExchange{Compare: &cmp}, Value: value, Result: &r}
	}), nil
}

func (c *resourceCall) uniformLoad() (ir.ExpressionHandle, error) {
	if err := c.arity(1); err != nil {
		return 0, err
	}

	p, ok := c.inners[0].(ir.PointerType)
	if !ok || p.Space != ir.SpaceWorkGroup {
		return 0, c.wrongType(0, "a pointer into workgroup memory")
	}
	if _, ok := c.fc.l.inner(p.Base).(ir.AtomicType); ok {
		return 0, c.wrongType(0, "a pointer to a non-atomic value")
	}

	ptr := c.args[0]

	return c.fc.withResult(c.block, ir.ExprWorkGroupUniformLoadResult{Type: p.Base}, c.e.Span, func(r ir.ExpressionHandle) ir.StatementKind {
		return ir.StmtWorkGroupUniformLoad{Pointer: ptr, Result: r}
	}), nil
}

func (c *resourceCall) ballot() (ir.ExpressionHandle, error) {
	var pred *ir.ExpressionHandle

	switch len(c.args) {
	case 0:
	case 1:
		h, err := c.coerce(0, ir.Bool)
		if err != nil {
			return 0, err
		}
		pred = &h
	default:
		return 0, c.arity(1)
	}

	return c.fc.withResult(c.block, ir.ExprSubgroupBallotResult{}, c.e.Span, func(r ir.ExpressionHandle) ir.StatementKind {
		return ir.StmtSubgroupBallot{Result: r, Predicate: pred}
	}), nil
}

func (c *resourceCall) arrayLength() (ir.ExpressionHandle, error) {
	if err := c.arity(1); err != nil {
		return 0, err
	}

	p, ok := c.inners[0].(ir.PointerType)
	if !ok || p.Space != ir.SpaceStorage {
		return 0, c.wrongType(0, "a pointer to a runtime-sized array in storage")
	}
	if a, ok := c.fc.l.inner(p.Base).(ir.ArrayType); !ok || !a.Size.IsDynamic() {
		return 0, c.wrongType(0, "a pointer to a runtime-sized array")
	}

	return c.fc.append(ir.ExprArrayLength{Array: c.args[0]}, c.e.Span), nil
}

func (c *resourceCall) rayQuery(i int) (ir.ExpressionHandle, error) {
	p, ok := c.inners[i].(ir.PointerType)
	if !ok {
		return 0, c.wrongType(i, "a pointer to a ray_query")
	}
	if _, ok := c.fc.l.inner(p.Base).(ir.RayQueryType); !ok {
		return 0, c.wrongType(i, "a pointer to a ray_query")
	}

	return c.args[i], nil
}
