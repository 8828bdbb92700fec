package wgsl

import (
	"fmt"
	"strings"
)

// Position is a 1-based line and column.
type Position struct {
	Line   int
	Column int
}

// PositionOf converts a byte offset of source to a line and column.
// Columns count bytes.
func PositionOf(source string, offset uint32) Position {
	if int(offset) > len(source) {
		offset = uint32(len(source))
	}

	before := source[:offset]
	line := strings.Count(before, "\n") + 1
	col := int(offset) - strings.LastIndexByte(before, '\n')

	return Position{Line: line, Column: col}
}

// SourceError represents an error with source location information.
type SourceError struct {
	Message string
	Span    Span
	Source  string // for line numbers and context display
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	if e.Source == "" {
		if e.Span.IsZero() {
			return e.Message
		}
		return fmt.Sprintf("offset %d: %s", e.Span.Start, e.Message)
	}

	pos := PositionOf(e.Source, e.Span.Start)

	return fmt.Sprintf("%d:%d: %s", pos.Line, pos.Column, e.Message)
}

// FormatWithContext returns the error message with the offending line
// and a caret under the error location.
func (e *SourceError) FormatWithContext() string {
	return formatContext(e.Source, e.Message, e.Span)
}

func formatContext(source, message string, span Span) string {
	if source == "" {
		return "error: " + message
	}

	pos := PositionOf(source, span.Start)
	lines := strings.Split(source, "\n")
	if pos.Line > len(lines) {
		return fmt.Sprintf("error: %s", message)
	}

	line := lines[pos.Line-1]
	col := pos.Column
	if col > len(line)+1 {
		col = len(line) + 1
	}

	width := int(span.End) - int(span.Start)
	if width < 1 || col-1+width > len(line) {
		width = 1
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "error: %s\n", message)
	fmt.Fprintf(&sb, "  --> %d:%d\n", pos.Line, col)
	sb.WriteString("   |\n")
	fmt.Fprintf(&sb, "%3d| %s\n", pos.Line, line)
	fmt.Fprintf(&sb, "   | %s%s\n", strings.Repeat(" ", col-1), strings.Repeat("^", width))

	return sb.String()
}

// NewSourceError creates a new SourceError.
func NewSourceError(message string, span Span, source string) *SourceError {
	return &SourceError{Message: message, Span: span, Source: source}
}

// NewSourceErrorf creates a new SourceError with a formatted message.
func NewSourceErrorf(span Span, source string, format string, args ...any) *SourceError {
	return &SourceError{Message: fmt.Sprintf(format, args...), Span: span, Source: source}
}

// SourceErrors represents a list of source errors.
type SourceErrors []*SourceError

// Error implements the error interface.
func (el SourceErrors) Error() string {
	switch len(el) {
	case 0:
		return "no errors"
	case 1:
		return el[0].Error()
	default:
		return fmt.Sprintf("%s (and %d more errors)", el[0].Error(), len(el)-1)
	}
}

// FormatAll returns all errors formatted with context.
func (el SourceErrors) FormatAll() string {
	var sb strings.Builder
	for i, e := range el {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(e.FormatWithContext())
	}

	return sb.String()
}

// Add adds an error to the list.
func (el *SourceErrors) Add(err *SourceError) {
	*el = append(*el, err)
}

// AddError adds an error with the given message and span.
func (el *SourceErrors) AddError(message string, span Span, source string) {
	el.Add(NewSourceError(message, span, source))
}

// HasErrors returns true if there are any errors.
func (el SourceErrors) HasErrors() bool {
	return len(el) > 0
}

// ErrorKind classifies lowering failures. Each kind is also a sentinel
// usable with errors.Is.
type ErrorKind uint8

const (
	ErrUnknownIdentifier ErrorKind = iota + 1
	ErrBadAccessor
	ErrWrongArgumentCount
	ErrWrongArgumentType
	ErrInconsistentArgumentType
	ErrInvalidAssignment
	ErrTypeMismatch
	ErrConstAssertFailed
	ErrNotConstant
	ErrInvalidAddressOf
	ErrInvalidControlFlow
	ErrResourceLimit
	ErrUnsupported
	ErrCyclicDeclaration
	ErrRedefinition
	ErrOverflow
	ErrOutOfBounds
)

var errorKindNames = [...]string{
	ErrUnknownIdentifier:        "unknown identifier",
	ErrBadAccessor:              "bad accessor",
	ErrWrongArgumentCount:       "wrong argument count",
	ErrWrongArgumentType:        "wrong argument type",
	ErrInconsistentArgumentType: "inconsistent argument type",
	ErrInvalidAssignment:        "invalid assignment",
	ErrTypeMismatch:             "type mismatch",
	ErrConstAssertFailed:        "const assertion failed",
	ErrNotConstant:              "not a constant expression",
	ErrInvalidAddressOf:         "invalid address-of",
	ErrInvalidControlFlow:       "invalid control flow",
	ErrResourceLimit:            "resource limit exceeded",
	ErrUnsupported:              "unsupported",
	ErrCyclicDeclaration:        "cyclic declaration",
	ErrRedefinition:             "redefinition",
	ErrOverflow:                 "overflow",
	ErrOutOfBounds:              "index out of bounds",
}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) && errorKindNames[k] != "" {
		return errorKindNames[k]
	}

	return fmt.Sprintf("error kind %d", uint8(k))
}

// Error makes the kind itself an error value.
func (k ErrorKind) Error() string { return k.String() }

// LoweringError is a semantic error found while lowering the AST.
// Related points at a second location involved, such as the argument
// a conflicting one was compared with.
type LoweringError struct {
	Kind    ErrorKind
	Message string
	Span    Span
	Related *Span
	Source  string
}

func (e *LoweringError) Error() string {
	se := SourceError{Message: e.Kind.String() + ": " + e.Message, Span: e.Span, Source: e.Source}

	return se.Error()
}

// Unwrap exposes the kind to errors.Is.
func (e *LoweringError) Unwrap() error { return e.Kind }

// FormatWithContext renders the error with the offending source line,
// followed by the related location if any.
func (e *LoweringError) FormatWithContext() string {
	out := formatContext(e.Source, e.Kind.String()+": "+e.Message, e.Span)
	if e.Related != nil && e.Source != "" {
		out += formatContext(e.Source, "related location", *e.Related)
	}

	return out
}

func newError(kind ErrorKind, span Span, format string, args ...any) *LoweringError {
	return &LoweringError{Kind: kind, Message: fmt.Sprintf(format, args...), Span: span}
}

func newRelatedError(kind ErrorKind, span, related Span, format string, args ...any) *LoweringError {
	e := newError(kind, span, format, args...)
	e.Related = &related

	return e
}
