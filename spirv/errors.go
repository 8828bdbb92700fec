package spirv

import (
	"fmt"

	"tlog.app/go/loc"
)

// ErrorKind classifies backend failures.
type ErrorKind uint8

const (
	// ErrUnimplemented is returned for IR the backend cannot express yet.
	ErrUnimplemented ErrorKind = iota + 1

	// ErrMissingCapability is returned when the module needs a capability
	// the options do not allow.
	ErrMissingCapability

	// ErrInternal signals IR that breaks an invariant the backend relies on.
	ErrInternal
)

func (k ErrorKind) Error() string {
	switch k {
	case ErrUnimplemented:
		return "unimplemented"
	case ErrMissingCapability:
		return "missing capability"
	case ErrInternal:
		return "internal error"
	default:
		return fmt.Sprintf("error kind %d", uint8(k))
	}
}

// BackendError is returned by the SPIR-V backend.
type BackendError struct {
	Kind       ErrorKind
	Message    string
	Capability Capability // for ErrMissingCapability

	From loc.PC
}

func (e *BackendError) Error() string {
	if e.Kind == ErrMissingCapability {
		return fmt.Sprintf("spirv: %v %v: %s", e.Kind, e.Capability, e.Message)
	}

	return fmt.Sprintf("spirv: %v: %s", e.Kind, e.Message)
}

// Unwrap returns the kind so errors.Is matches against ErrorKind values.
func (e *BackendError) Unwrap() error { return e.Kind }

func unimplementedf(format string, args ...any) error {
	return &BackendError{Kind: ErrUnimplemented, Message: fmt.Sprintf(format, args...), From: loc.Caller(1)}
}

func internalf(format string, args ...any) error {
	return &BackendError{Kind: ErrInternal, Message: fmt.Sprintf(format, args...), From: loc.Caller(1)}
}

func missingCapability(c Capability, what string) error {
	return &BackendError{Kind: ErrMissingCapability, Capability: c, Message: what, From: loc.Caller(2)}
}
