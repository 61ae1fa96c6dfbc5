package shared

import (
	"errors"
	"fmt"
)

// Kind classifies domain failures for API callers.
type Kind string

const (
	KindNotFound          Kind = "NotFoundError"
	KindValidation        Kind = "ValidationError"
	KindConflict          Kind = "ConflictError"
	KindPrecondition      Kind = "PreconditionError"
	KindToleranceExceeded Kind = "ToleranceExceededError"
)

// Error is a classified domain error. Code names the concrete condition
// (for example SessionAlreadyActive) and is what errors.Is compares.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Count   int
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Kind) + ": " + e.Code
}

// Is matches on kind and code. A target without code matches any error of
// the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NotFound builds a NotFoundError.
func NotFound(code, format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Validation builds a ValidationError.
func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Code: "Invalid", Message: fmt.Sprintf(format, args...)}
}

// Conflict builds a ConflictError.
func Conflict(code, format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Code: code, Message: fmt.Sprintf(format, args...)}
}

// Precondition builds a PreconditionError.
func Precondition(code, format string, args ...any) *Error {
	return &Error{Kind: KindPrecondition, Code: code, Message: fmt.Sprintf(format, args...)}
}

// ToleranceExceeded builds a ToleranceExceededError.
func ToleranceExceeded(code, format string, args ...any) *Error {
	return &Error{Kind: KindToleranceExceeded, Code: code, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the kind from err, reporting false for unclassified errors.
func KindOf(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

var (
	// ErrNotFound matches every NotFoundError.
	ErrNotFound = &Error{Kind: KindNotFound}
	// ErrValidation matches every ValidationError.
	ErrValidation = &Error{Kind: KindValidation}
	// ErrConflict matches every ConflictError.
	ErrConflict = &Error{Kind: KindConflict}
)
