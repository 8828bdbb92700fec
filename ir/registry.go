package ir

import (
	"strconv"
	"strings"
)

// TypeRegistry deduplicates types appended to a module's type arena.
// Structurally identical types share one handle; structs are nominal and
// include their name in the key.
type TypeRegistry struct {
	module  *Module
	typeMap map[string]TypeHandle
}

// NewTypeRegistry creates a registry over module.Types.
// Types already present in the arena are indexed.
func NewTypeRegistry(module *Module) *TypeRegistry {
	r := &TypeRegistry{
		module:  module,
		typeMap: make(map[string]TypeHandle, len(module.Types)+16),
	}

	for i, t := range module.Types {
		key := typeKey(t.Name, t.Inner)
		if _, ok := r.typeMap[key]; !ok {
			r.typeMap[key] = TypeHandle(i)
		}
	}

	return r
}

// GetOrCreate returns an existing handle for the type or appends a new one.
func (r *TypeRegistry) GetOrCreate(name string, inner TypeInner) TypeHandle {
	key := typeKey(name, inner)

	if handle, exists := r.typeMap[key]; exists {
		return handle
	}

	handle := TypeHandle(len(r.module.Types))
	r.module.Types = append(r.module.Types, Type{
		Name:  name,
		Inner: inner,
	})
	r.typeMap[key] = handle

	return handle
}

// Lookup finds a type by its handle.
func (r *TypeRegistry) Lookup(handle TypeHandle) (Type, bool) {
	if int(handle) >= len(r.module.Types) {
		return Type{}, false
	}

	return r.module.Types[handle], true
}

// Count returns the number of unique types registered.
func (r *TypeRegistry) Count() int {
	return len(r.module.Types)
}

// typeKey creates a unique key for a type based on its structure.
func typeKey(name string, inner TypeInner) string {
	var b strings.Builder
	appendTypeKey(&b, inner)

	if _, ok := inner.(StructType); ok {
		b.WriteString("#")
		b.WriteString(name)
	}

	return b.String()
}

func appendTypeKey(b *strings.Builder, inner TypeInner) {
	num := func(v uint64) {
		b.WriteString(strconv.FormatUint(v, 10))
		b.WriteByte(':')
	}

	switch t := inner.(type) {
	case ScalarType:
		b.WriteString("scalar:")
		num(uint64(t.Kind))
		num(uint64(t.Width))
	case VectorType:
		b.WriteString("vec:")
		num(uint64(t.Size))
		appendTypeKey(b, t.Scalar)
	case MatrixType:
		b.WriteString("mat:")
		num(uint64(t.Columns))
		num(uint64(t.Rows))
		appendTypeKey(b, t.Scalar)
	case ArrayType:
		b.WriteString("array:")
		num(uint64(t.Base))
		num(uint64(t.Size.Constant))
		num(uint64(t.Stride))
	case StructType:
		b.WriteString("struct:")
		num(uint64(t.Span))
		for _, m := range t.Members {
			b.WriteString(m.Name)
			b.WriteByte(':')
			num(uint64(m.Type))
			num(uint64(m.Offset))
		}
	case PointerType:
		b.WriteString("ptr:")
		num(uint64(t.Base))
		num(uint64(t.Space))
	case ValuePointerType:
		b.WriteString("vptr:")
		num(uint64(t.Size))
		num(uint64(t.Space))
		appendTypeKey(b, t.Scalar)
	case AtomicType:
		b.WriteString("atomic:")
		appendTypeKey(b, t.Scalar)
	case SamplerType:
		b.WriteString("sampler:")
		b.WriteString(strconv.FormatBool(t.Comparison))
	case ImageType:
		b.WriteString("image:")
		num(uint64(t.Dim))
		b.WriteString(strconv.FormatBool(t.Arrayed))
		b.WriteByte(':')
		num(uint64(t.Class))
		num(uint64(t.SampledKind))
		b.WriteString(strconv.FormatBool(t.Multisampled))
		b.WriteByte(':')
		num(uint64(t.StorageFormat))
		num(uint64(t.StorageAccess))
	case RayQueryType:
		b.WriteString("rayquery:")
	default:
		b.WriteString("unknown:")
	}
}

// TypeInnerEqual reports structural equality of two inner types.
func TypeInnerEqual(a, b TypeInner) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}

	sa, aok := a.(StructType)
	sb, bok := b.(StructType)
	if aok || bok {
		if !aok || !bok || sa.Span != sb.Span || len(sa.Members) != len(sb.Members) {
			return false
		}
		for i := range sa.Members {
			ma, mb := sa.Members[i], sb.Members[i]
			if ma.Name != mb.Name || ma.Type != mb.Type || ma.Offset != mb.Offset {
				return false
			}
		}

		return true
	}

	return a == b
}

// ConstantRegistry deduplicates unnamed constants in a module's arena.
type ConstantRegistry struct {
	module *Module
	keys   map[string]ConstantHandle
}

// NewConstantRegistry creates a registry over module.Constants.
func NewConstantRegistry(module *Module) *ConstantRegistry {
	r := &ConstantRegistry{
		module: module,
		keys:   make(map[string]ConstantHandle, len(module.Constants)+8),
	}

	for i, c := range module.Constants {
		if c.Name != "" {
			continue
		}
		key := constantKey(c.Type, c.Value)
		if _, ok := r.keys[key]; !ok {
			r.keys[key] = ConstantHandle(i)
		}
	}

	return r
}

// Append adds a constant. Unnamed constants equal to an existing unnamed
// constant return the existing handle; named constants are always new.
func (r *ConstantRegistry) Append(c Constant) ConstantHandle {
	var key string
	if c.Name == "" {
		key = constantKey(c.Type, c.Value)
		if h, ok := r.keys[key]; ok {
			return h
		}
	}

	h := ConstantHandle(len(r.module.Constants))
	r.module.Constants = append(r.module.Constants, c)

	if c.Name == "" {
		r.keys[key] = h
	}

	return h
}

func constantKey(ty TypeHandle, v ConstantValue) string {
	var b strings.Builder

	b.WriteString(strconv.FormatUint(uint64(ty), 10))

	switch v := v.(type) {
	case ScalarValue:
		b.WriteString(":s:")
		b.WriteString(strconv.FormatUint(uint64(v.Kind), 10))
		b.WriteByte(':')
		b.WriteString(strconv.FormatUint(v.Bits, 16))
	case CompositeValue:
		b.WriteString(":c")
		for _, c := range v.Components {
			b.WriteByte(':')
			b.WriteString(strconv.FormatUint(uint64(c), 10))
		}
	case ZeroConstantValue:
		b.WriteString(":z")
	}

	return b.String()
}
