package wgsl

// Typed is the result of lowering an expression: either a reference, a
// memory location the source language treats as a variable, or a plain value.
// References are loaded when their value is needed.
type Typed[T any] struct {
	Value     T
	Reference bool
}

// Plain wraps a value.
func Plain[T any](v T) Typed[T] { return Typed[T]{Value: v} }

// Reference wraps a memory location.
func Reference[T any](v T) Typed[T] { return Typed[T]{Value: v, Reference: true} }

// MapTyped transforms the payload and keeps the reference flag.
func MapTyped[T, U any](t Typed[T], f func(T) U) Typed[U] {
	return Typed[U]{Value: f(t.Value), Reference: t.Reference}
}

// TryMapTyped is MapTyped for fallible transformations.
func TryMapTyped[T, U any](t Typed[T], f func(T) (U, error)) (Typed[U], error) {
	v, err := f(t.Value)
	if err != nil {
		return Typed[U]{}, err
	}

	return Typed[U]{Value: v, Reference: t.Reference}, nil
}

// Declared tells const declarations, which may appear in constant
// expressions, from runtime ones.
type Declared[T any] struct {
	Value T
	Const bool
}

// DeclaredRuntime wraps a runtime declaration.
func DeclaredRuntime[T any](v T) Declared[T] { return Declared[T]{Value: v} }

// DeclaredConst wraps a const declaration.
func DeclaredConst[T any](v T) Declared[T] { return Declared[T]{Value: v, Const: true} }

// MapDeclared transforms the payload and keeps the const flag.
func MapDeclared[T, U any](d Declared[T], f func(T) U) Declared[U] {
	return Declared[U]{Value: f(d.Value), Const: d.Const}
}
