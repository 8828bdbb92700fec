package wgsl

import (
	"strings"

	"github.com/gogpu/wgslc/ir"
)

// register adds a type to the arena, keeping layouts current.
func (l *Lowerer) register(inner ir.TypeInner) ir.TypeHandle {
	h := l.types.GetOrCreate("", inner)
	l.layouter.Update(l.module.Types)

	return h
}

func (l *Lowerer) registerNamed(name string, inner ir.TypeInner) ir.TypeHandle {
	h := l.types.GetOrCreate(name, inner)
	l.layouter.Update(l.module.Types)

	return h
}

func (l *Lowerer) inner(h ir.TypeHandle) ir.TypeInner {
	return l.module.Types[h].Inner
}

// arrayOf registers an array of base with the stride its layout requires.
func (l *Lowerer) arrayOf(base ir.TypeHandle, size uint32) ir.TypeHandle {
	elem := l.layouter.Layout(base)
	stride := ir.RoundUp(elem.Size, elem.Align)

	return l.register(ir.ArrayType{Base: base, Size: ir.ArraySize{Constant: size}, Stride: stride})
}

var scalarNames = map[string]ir.ScalarType{
	"bool": ir.Bool,
	"i32":  ir.I32,
	"u32":  ir.U32,
	"f32":  ir.F32,
	"f16":  ir.F16,
}

// shorthandSuffix maps the suffix of vec3f, mat4x4h and friends to the scalar.
var shorthandSuffix = map[byte]ir.ScalarType{
	'f': ir.F32,
	'h': ir.F16,
	'i': ir.I32,
	'u': ir.U32,
}

// vectorName parses vecN and vecNs names.
func vectorName(name string) (ir.VectorSize, *ir.ScalarType, bool) {
	if len(name) < 4 || !strings.HasPrefix(name, "vec") {
		return 0, nil, false
	}

	size := ir.VectorSize(name[3] - '0')
	if size < ir.Vec2 || size > ir.Vec4 {
		return 0, nil, false
	}

	switch len(name) {
	case 4:
		return size, nil, true
	case 5:
		s, ok := shorthandSuffix[name[4]]
		if !ok {
			return 0, nil, false
		}
		return size, &s, true
	}

	return 0, nil, false
}

// matrixName parses matCxR and matCxRs names.
func matrixName(name string) (cols, rows ir.VectorSize, scalar *ir.ScalarType, ok bool) {
	if len(name) < 6 || !strings.HasPrefix(name, "mat") || name[4] != 'x' {
		return 0, 0, nil, false
	}

	cols = ir.VectorSize(name[3] - '0')
	rows = ir.VectorSize(name[5] - '0')
	if cols < ir.Vec2 || cols > ir.Vec4 || rows < ir.Vec2 || rows > ir.Vec4 {
		return 0, 0, nil, false
	}

	switch len(name) {
	case 6:
		return cols, rows, nil, true
	case 7:
		s, found := shorthandSuffix[name[6]]
		if !found || (s != ir.F32 && s != ir.F16) {
			return 0, 0, nil, false
		}
		return cols, rows, &s, true
	}

	return 0, 0, nil, false
}

// halfType reports whether name spells an f16 scalar, vector or matrix.
func halfType(name string) bool {
	if name == "f16" {
		return true
	}
	if _, short, ok := vectorName(name); ok && short != nil && *short == ir.F16 {
		return true
	}
	if _, _, short, ok := matrixName(name); ok && short != nil && *short == ir.F16 {
		return true
	}
	return false
}

// resolveType lowers a written type to an arena handle.
//
//nolint:gocyclo,cyclop // one case per predeclared type family
func (l *Lowerer) resolveType(fc *funcCtx, t *TypeExpr) (ir.TypeHandle, error) {
	if err := l.enter(t.Span); err != nil {
		return 0, err
	}
	defer l.leave()

	name := t.Name

	params := func(min, max int) error {
		if len(t.Params) < min || len(t.Params) > max {
			if min == max {
				return newError(ErrWrongArgumentCount, t.Span, "%s takes %d template arguments, got %d", name, min, len(t.Params))
			}
			return newError(ErrWrongArgumentCount, t.Span, "%s takes %d to %d template arguments, got %d", name, min, max, len(t.Params))
		}
		return nil
	}

	param := func(i int) (ir.TypeHandle, error) {
		pt, ok := t.Params[i].(*TypeExpr)
		if !ok {
			return 0, newError(ErrTypeMismatch, t.Params[i].Pos(), "expected a type")
		}
		return l.resolveType(fc, pt)
	}

	paramScalar := func(i int) (ir.ScalarType, error) {
		h, err := param(i)
		if err != nil {
			return ir.ScalarType{}, err
		}
		s, ok := l.inner(h).(ir.ScalarType)
		if !ok {
			return ir.ScalarType{}, newError(ErrTypeMismatch, t.Params[i].Pos(), "%s needs a scalar type", name)
		}
		return s, nil
	}

	if g, ok := l.globals[name]; ok {
		if g.kind != globalType {
			return 0, newError(ErrTypeMismatch, t.Span, "%s is not a type", name)
		}
		if err := params(0, 0); err != nil {
			return 0, err
		}
		return g.ty, nil
	}

	if halfType(name) {
		return 0, newError(ErrUnsupported, t.Span, "%s: f16 is not supported", name)
	}

	if s, ok := scalarNames[name]; ok {
		if err := params(0, 0); err != nil {
			return 0, err
		}
		return l.register(s), nil
	}

	if size, short, ok := vectorName(name); ok {
		if short != nil {
			if err := params(0, 0); err != nil {
				return 0, err
			}
			return l.register(ir.VectorType{Size: size, Scalar: *short}), nil
		}
		if err := params(1, 1); err != nil {
			return 0, err
		}
		s, err := paramScalar(0)
		if err != nil {
			return 0, err
		}
		return l.register(ir.VectorType{Size: size, Scalar: s}), nil
	}

	if cols, rows, short, ok := matrixName(name); ok {
		var s ir.ScalarType
		if short != nil {
			if err := params(0, 0); err != nil {
				return 0, err
			}
			s = *short
		} else {
			if err := params(1, 1); err != nil {
				return 0, err
			}
			var err error
			if s, err = paramScalar(0); err != nil {
				return 0, err
			}
		}
		if s.Kind != ir.ScalarFloat {
			return 0, newError(ErrTypeMismatch, t.Span, "matrix components must be floats, got %v", s)
		}
		return l.register(ir.MatrixType{Columns: cols, Rows: rows, Scalar: s}), nil
	}

	switch name {
	case "array":
		if err := params(1, 2); err != nil {
			return 0, err
		}
		base, err := param(0)
		if err != nil {
			return 0, err
		}
		var size uint32
		if len(t.Params) == 2 {
			if size, err = l.arraySize(fc, t.Params[1]); err != nil {
				return 0, err
			}
		}
		return l.arrayOf(base, size), nil

	case "atomic":
		if err := params(1, 1); err != nil {
			return 0, err
		}
		s, err := paramScalar(0)
		if err != nil {
			return 0, err
		}
		if s != ir.I32 && s != ir.U32 && s != ir.F32 {
			return 0, newError(ErrTypeMismatch, t.Span, "atomic<%v> is not supported", s)
		}
		return l.register(ir.AtomicType{Scalar: s}), nil

	case "ptr":
		if err := params(2, 3); err != nil {
			return 0, err
		}
		space, ok := addressSpaceTable[enumerant(t.Params[0])]
		if !ok {
			return 0, newError(ErrUnknownIdentifier, t.Params[0].Pos(), "unknown address space")
		}
		base, err := param(1)
		if err != nil {
			return 0, err
		}
		return l.register(ir.PointerType{Base: base, Space: space}), nil

	case "sampler":
		return l.register(ir.SamplerType{}), nil

	case "sampler_comparison":
		return l.register(ir.SamplerType{Comparison: true}), nil

	case "ray_query":
		return l.register(ir.RayQueryType{}), nil
	}

	if strings.HasPrefix(name, "texture_") {
		img, err := l.textureType(fc, t)
		if err != nil {
			return 0, err
		}
		return l.register(img), nil
	}

	return 0, newError(ErrUnknownIdentifier, t.Span, "unknown type %s", name)
}

// arraySize evaluates a fixed array length.
func (l *Lowerer) arraySize(fc *funcCtx, e Expr) (uint32, error) {
	if te, ok := e.(*TypeExpr); ok && len(te.Params) == 0 {
		e = &Ident{Name: te.Name, Span: te.Span}
	}

	v, err := l.evalConst(fc, e)
	if err != nil {
		return 0, err
	}

	n, ok := v.integer()
	if !ok || n <= 0 || n > 1<<32-1 {
		return 0, newError(ErrTypeMismatch, e.Pos(), "array size must be a positive integer")
	}

	return uint32(n), nil
}

// enumerant returns the name of a bare identifier template argument.
func enumerant(e Expr) string {
	switch e := e.(type) {
	case *TypeExpr:
		if len(e.Params) == 0 {
			return e.Name
		}
	case *Ident:
		return e.Name
	}

	return ""
}

var storageFormatTable = map[string]ir.StorageFormat{
	"rgba8unorm":  ir.StorageFormatRgba8Unorm,
	"rgba8snorm":  ir.StorageFormatRgba8Snorm,
	"rgba8uint":   ir.StorageFormatRgba8Uint,
	"rgba8sint":   ir.StorageFormatRgba8Sint,
	"rgba16float": ir.StorageFormatRgba16Float,
	"r32uint":     ir.StorageFormatR32Uint,
	"r32sint":     ir.StorageFormatR32Sint,
	"r32float":    ir.StorageFormatR32Float,
	"rg32float":   ir.StorageFormatRg32Float,
	"rgba32uint":  ir.StorageFormatRgba32Uint,
	"rgba32sint":  ir.StorageFormatRgba32Sint,
	"rgba32float": ir.StorageFormatRgba32Float,
	"bgra8unorm":  ir.StorageFormatBgra8Unorm,
}

var storageAccessTable = map[string]ir.StorageAccess{
	"read":       ir.StorageAccessLoad,
	"write":      ir.StorageAccessStore,
	"read_write": ir.StorageAccessLoad | ir.StorageAccessStore,
}

// textureType parses texture_2d<f32>, texture_depth_cube,
// texture_storage_2d<rgba8unorm, write> and the other texture families.
func (l *Lowerer) textureType(fc *funcCtx, t *TypeExpr) (ir.ImageType, error) {
	rest := strings.TrimPrefix(t.Name, "texture_")
	img := ir.ImageType{Class: ir.ImageClassSampled}

	switch {
	case strings.HasPrefix(rest, "storage_"):
		img.Class = ir.ImageClassStorage
		rest = strings.TrimPrefix(rest, "storage_")
	case strings.HasPrefix(rest, "depth_multisampled_"):
		img.Class = ir.ImageClassDepth
		img.Multisampled = true
		rest = strings.TrimPrefix(rest, "depth_multisampled_")
	case strings.HasPrefix(rest, "depth_"):
		img.Class = ir.ImageClassDepth
		rest = strings.TrimPrefix(rest, "depth_")
	case strings.HasPrefix(rest, "multisampled_"):
		img.Multisampled = true
		rest = strings.TrimPrefix(rest, "multisampled_")
	}

	if strings.HasSuffix(rest, "_array") {
		img.Arrayed = true
		rest = strings.TrimSuffix(rest, "_array")
	}

	switch rest {
	case "1d":
		img.Dim = ir.Dim1D
	case "2d":
		img.Dim = ir.Dim2D
	case "3d":
		img.Dim = ir.Dim3D
	case "cube":
		img.Dim = ir.DimCube
	default:
		return img, newError(ErrUnknownIdentifier, t.Span, "unknown type %s", t.Name)
	}

	switch img.Class {
	case ir.ImageClassStorage:
		if len(t.Params) != 2 {
			return img, newError(ErrWrongArgumentCount, t.Span, "%s takes a format and an access mode", t.Name)
		}
		format, ok := storageFormatTable[enumerant(t.Params[0])]
		if !ok {
			return img, newError(ErrUnknownIdentifier, t.Params[0].Pos(), "unknown texel format")
		}
		access, ok := storageAccessTable[enumerant(t.Params[1])]
		if !ok {
			return img, newError(ErrUnknownIdentifier, t.Params[1].Pos(), "unknown access mode")
		}
		img.StorageFormat = format
		img.StorageAccess = access
		img.SampledKind = ir.StorageFormatScalar(format).Kind

	case ir.ImageClassDepth:
		if len(t.Params) != 0 {
			return img, newError(ErrWrongArgumentCount, t.Span, "%s takes no template arguments", t.Name)
		}
		img.SampledKind = ir.ScalarFloat

	default:
		if len(t.Params) != 1 {
			return img, newError(ErrWrongArgumentCount, t.Span, "%s takes 1 template argument", t.Name)
		}
		pt, ok := t.Params[0].(*TypeExpr)
		if !ok {
			return img, newError(ErrTypeMismatch, t.Params[0].Pos(), "expected a sampled type")
		}
		h, err := l.resolveType(fc, pt)
		if err != nil {
			return img, err
		}
		s, ok := l.inner(h).(ir.ScalarType)
		if !ok || (s != ir.F32 && s != ir.I32 && s != ir.U32) {
			return img, newError(ErrTypeMismatch, pt.Span, "sampled type must be f32, i32 or u32")
		}
		img.SampledKind = s.Kind
	}

	return img, nil
}

// lowerStruct registers a struct with host-shareable member offsets.
// @align and @size override the natural layout of a member.
func (l *Lowerer) lowerStruct(s *StructDecl) (ir.TypeHandle, error) {
	members := make([]ir.StructMember, len(s.Members))

	var offset uint32
	maxAlign := uint32(1)

	for i, m := range s.Members {
		ty, err := l.resolveType(nil, m.Type)
		if err != nil {
			return 0, err
		}

		layout := l.layouter.Layout(ty)
		align, size := layout.Align, layout.Size

		for _, attr := range m.Attributes {
			switch attr.Name {
			case "align", "size":
				v, err := l.attrUint(attr)
				if err != nil {
					return 0, err
				}
				if attr.Name == "align" {
					if v == 0 || v&(v-1) != 0 {
						return 0, newError(ErrTypeMismatch, attr.Span, "@align must be a power of two")
					}
					align = v
				} else {
					if v < layout.Size {
						return 0, newError(ErrTypeMismatch, attr.Span, "@size(%d) is smaller than the member type (%d)", v, layout.Size)
					}
					size = v
				}
			}
		}

		binding, err := l.binding(m.Attributes)
		if err != nil {
			return 0, err
		}

		if align > maxAlign {
			maxAlign = align
		}
		offset = ir.RoundUp(offset, align)

		members[i] = ir.StructMember{
			Name:    m.Name,
			Type:    ty,
			Binding: binding,
			Offset:  offset,
		}
		offset += size
	}

	return l.registerNamed(s.Name, ir.StructType{Members: members, Span: ir.RoundUp(offset, maxAlign)}), nil
}

var builtinTable = map[string]ir.BuiltinValue{
	"position":               ir.BuiltinPosition,
	"vertex_index":           ir.BuiltinVertexIndex,
	"instance_index":         ir.BuiltinInstanceIndex,
	"front_facing":           ir.BuiltinFrontFacing,
	"frag_depth":             ir.BuiltinFragDepth,
	"sample_index":           ir.BuiltinSampleIndex,
	"sample_mask":            ir.BuiltinSampleMask,
	"local_invocation_id":    ir.BuiltinLocalInvocationID,
	"local_invocation_index": ir.BuiltinLocalInvocationIndex,
	"global_invocation_id":   ir.BuiltinGlobalInvocationID,
	"workgroup_id":           ir.BuiltinWorkGroupID,
	"num_workgroups":         ir.BuiltinNumWorkGroups,
	"subgroup_size":          ir.BuiltinSubgroupSize,
	"subgroup_invocation_id": ir.BuiltinSubgroupInvocationID,
}

var addressSpaceTable = map[string]ir.AddressSpace{
	"function":      ir.SpaceFunction,
	"private":       ir.SpacePrivate,
	"workgroup":     ir.SpaceWorkGroup,
	"uniform":       ir.SpaceUniform,
	"storage":       ir.SpaceStorage,
	"push_constant": ir.SpacePushConstant,
}

var interpolationTable = map[string]ir.InterpolationKind{
	"perspective": ir.InterpolationPerspective,
	"linear":      ir.InterpolationLinear,
	"flat":        ir.InterpolationFlat,
}

// binding extracts an interface binding from @builtin, @location,
// @interpolate and @invariant. It returns nil when there is none.
func (l *Lowerer) binding(attrs []Attribute) (ir.Binding, error) {
	var (
		result        ir.Binding
		interpolation ir.InterpolationKind
		invariant     bool
	)

	for _, attr := range attrs {
		switch attr.Name {
		case "builtin":
			if len(attr.Args) != 1 {
				return nil, newError(ErrWrongArgumentCount, attr.Span, "@builtin takes one argument")
			}
			b, ok := builtinTable[enumerant(attr.Args[0])]
			if !ok {
				return nil, newError(ErrUnknownIdentifier, attr.Args[0].Pos(), "unknown builtin value")
			}
			result = ir.BuiltinBinding{Builtin: b}
		case "location":
			loc, err := l.attrUint(attr)
			if err != nil {
				return nil, err
			}
			result = ir.LocationBinding{Location: loc}
		case "interpolate":
			if len(attr.Args) < 1 || len(attr.Args) > 2 {
				return nil, newError(ErrWrongArgumentCount, attr.Span, "@interpolate takes one or two arguments")
			}
			kind, ok := interpolationTable[enumerant(attr.Args[0])]
			if !ok {
				return nil, newError(ErrUnknownIdentifier, attr.Args[0].Pos(), "unknown interpolation type")
			}
			interpolation = kind
		case "invariant":
			invariant = true
		}
	}

	switch b := result.(type) {
	case ir.LocationBinding:
		b.Interpolation = interpolation
		return b, nil
	case ir.BuiltinBinding:
		b.Invariant = invariant
		return b, nil
	}

	return nil, nil
}

// attrUint evaluates the single argument of an attribute as a non-negative integer.
func (l *Lowerer) attrUint(attr Attribute) (uint32, error) {
	if len(attr.Args) != 1 {
		return 0, newError(ErrWrongArgumentCount, attr.Span, "@%s takes one argument", attr.Name)
	}

	return l.constUint(attr.Args[0])
}

func (l *Lowerer) constUint(e Expr) (uint32, error) {
	v, err := l.evalConst(nil, e)
	if err != nil {
		return 0, err
	}

	n, ok := v.integer()
	if !ok || n < 0 || n > 1<<32-1 {
		return 0, newError(ErrTypeMismatch, e.Pos(), "expected a non-negative integer, got %s", v)
	}

	return uint32(n), nil
}
