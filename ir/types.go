package ir

import (
	"strconv"
	"strings"
)

// TypeResolution represents the resolved type of an expression.
// It either references a type in the module's arena (Handle)
// or carries an inline structural type (Value).
type TypeResolution struct {
	Handle *TypeHandle
	Value  TypeInner
}

// ResolutionHandle wraps a type handle.
func ResolutionHandle(h TypeHandle) TypeResolution {
	return TypeResolution{Handle: &h}
}

// ResolutionValue wraps an inline type.
func ResolutionValue(inner TypeInner) TypeResolution {
	return TypeResolution{Value: inner}
}

// Inner returns the structural type, looking handles up in types.
func (r TypeResolution) Inner(types []Type) TypeInner {
	if r.Handle != nil {
		if int(*r.Handle) < len(types) {
			return types[*r.Handle].Inner
		}

		return nil
	}

	return r.Value
}

// IsZero reports whether the resolution has not been computed.
func (r TypeResolution) IsZero() bool {
	return r.Handle == nil && r.Value == nil
}

// ScalarOf returns the leaf scalar of scalars, vectors, matrices and atomics.
func ScalarOf(inner TypeInner) (ScalarType, bool) {
	switch t := inner.(type) {
	case ScalarType:
		return t, true
	case VectorType:
		return t.Scalar, true
	case MatrixType:
		return t.Scalar, true
	case AtomicType:
		return t.Scalar, true
	case ValuePointerType:
		return t.Scalar, true
	default:
		return ScalarType{}, false
	}
}

// WithScalar replaces the leaf scalar of a scalar, vector or matrix type.
func WithScalar(inner TypeInner, s ScalarType) (TypeInner, bool) {
	switch t := inner.(type) {
	case ScalarType:
		return s, true
	case VectorType:
		return VectorType{Size: t.Size, Scalar: s}, true
	case MatrixType:
		return MatrixType{Columns: t.Columns, Rows: t.Rows, Scalar: s}, true
	default:
		return nil, false
	}
}

// IsPointer reports whether the type is a pointer of either form.
func IsPointer(inner TypeInner) bool {
	switch inner.(type) {
	case PointerType, ValuePointerType:
		return true
	default:
		return false
	}
}

// PointerSpace returns the address space of a pointer type.
func PointerSpace(inner TypeInner) (AddressSpace, bool) {
	switch t := inner.(type) {
	case PointerType:
		return t.Space, true
	case ValuePointerType:
		return t.Space, true
	default:
		return 0, false
	}
}

// Pointee returns the type a pointer points to.
func Pointee(types []Type, inner TypeInner) (TypeResolution, bool) {
	switch t := inner.(type) {
	case PointerType:
		return ResolutionHandle(t.Base), true
	case ValuePointerType:
		if t.Size == 0 {
			return ResolutionValue(t.Scalar), true
		}

		return ResolutionValue(VectorType{Size: t.Size, Scalar: t.Scalar}), true
	default:
		return TypeResolution{}, false
	}
}

// TypeName renders a type in WGSL-like syntax for diagnostics.
func TypeName(types []Type, inner TypeInner) string {
	var b strings.Builder
	writeTypeName(&b, types, inner, 0)

	return b.String()
}

func writeTypeName(b *strings.Builder, types []Type, inner TypeInner, depth int) {
	if depth > 16 {
		b.WriteString("...")
		return
	}

	handle := func(h TypeHandle) {
		if int(h) >= len(types) {
			b.WriteString("<invalid>")
			return
		}
		if types[h].Name != "" {
			b.WriteString(types[h].Name)
			return
		}
		writeTypeName(b, types, types[h].Inner, depth+1)
	}

	switch t := inner.(type) {
	case ScalarType:
		b.WriteString(t.String())
	case VectorType:
		b.WriteString("vec")
		b.WriteString(strconv.Itoa(int(t.Size)))
		b.WriteString("<" + t.Scalar.String() + ">")
	case MatrixType:
		b.WriteString("mat" + strconv.Itoa(int(t.Columns)) + "x" + strconv.Itoa(int(t.Rows)))
		b.WriteString("<" + t.Scalar.String() + ">")
	case ArrayType:
		b.WriteString("array<")
		handle(t.Base)
		if !t.Size.IsDynamic() {
			b.WriteString(", " + strconv.Itoa(int(t.Size.Constant)))
		}
		b.WriteString(">")
	case StructType:
		b.WriteString("struct")
	case PointerType:
		b.WriteString("ptr<")
		handle(t.Base)
		b.WriteString(">")
	case ValuePointerType:
		b.WriteString("ptr<")
		if t.Size == 0 {
			b.WriteString(t.Scalar.String())
		} else {
			writeTypeName(b, types, VectorType{Size: t.Size, Scalar: t.Scalar}, depth+1)
		}
		b.WriteString(">")
	case AtomicType:
		b.WriteString("atomic<" + t.Scalar.String() + ">")
	case SamplerType:
		if t.Comparison {
			b.WriteString("sampler_comparison")
		} else {
			b.WriteString("sampler")
		}
	case ImageType:
		b.WriteString("texture")
	case RayQueryType:
		b.WriteString("ray_query")
	case nil:
		b.WriteString("<none>")
	default:
		b.WriteString("<unknown>")
	}
}
