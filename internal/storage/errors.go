package storage

import (
	"errors"
	"fmt"
	"strings"
)

// Kind categorizes storage errors.
type Kind string

const (
	KindConfig          Kind = "config"
	KindNotImplemented  Kind = "not_implemented"
	KindSchemaMismatch  Kind = "schema_mismatch"
	KindQuotaExceeded   Kind = "quota_exceeded"
	KindVersionConflict Kind = "version_conflict"
	KindBlocked         Kind = "blocked"
	KindVersionChanged  Kind = "version_changed"
	KindConstraint      Kind = "constraint"
	KindInvalidRecord   Kind = "invalid_record"
	KindSerialization   Kind = "serialization"
	KindIO              Kind = "io"
)

// Error is the single error type returned by storage backends.
type Error struct {
	// Kind identifies the error category.
	Kind Kind

	// Op is the operation that failed ("create", "find", "open", ...).
	Op string

	// Table is the affected table, if any.
	Table string

	// Message is a human-readable description.
	Message string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(string(e.Kind))
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.Table != "" {
		b.WriteString(" ")
		b.WriteString(e.Table)
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates an Error with a formatted message.
func NewError(kind Kind, op, table, format string, args ...any) *Error {
	return &Error{
		Kind:    kind,
		Op:      op,
		Table:   table,
		Message: fmt.Sprintf(format, args...),
	}
}

// WrapError wraps err with a kind. Errors that already carry a Kind are
// returned unchanged so the original classification survives.
func WrapError(kind Kind, op, table string, err error) error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return err
	}
	return &Error{Kind: kind, Op: op, Table: table, Err: err}
}

// UnknownTable reports an operation on a table missing from the schema.
func UnknownTable(op, table string) *Error {
	return NewError(KindConfig, op, table, "unknown table")
}

// NotImplemented reports an operation a backend does not provide.
func NotImplemented(op string) *Error {
	return NewError(KindNotImplemented, op, "", "operation not implemented by this backend")
}

// KindOf returns the Kind of err, or "" if err is not a storage error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}

// IsKind reports whether err is a storage error of the given kind.
// Uses errors.As to handle wrapped errors.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return IsKind(err, KindConfig) }

// IsNotImplemented reports whether err signals a missing backend operation.
func IsNotImplemented(err error) bool { return IsKind(err, KindNotImplemented) }

// IsSchemaMismatch reports whether criteria referenced a non-indexed field.
func IsSchemaMismatch(err error) bool { return IsKind(err, KindSchemaMismatch) }

// IsQuotaExceeded reports whether the store ran out of space.
func IsQuotaExceeded(err error) bool { return IsKind(err, KindQuotaExceeded) }

// IsVersionConflict reports whether the store is at a newer version than requested.
func IsVersionConflict(err error) bool { return IsKind(err, KindVersionConflict) }

// IsBlocked reports whether an upgrade or write was blocked by another handle.
func IsBlocked(err error) bool { return IsKind(err, KindBlocked) }

// IsVersionChanged reports whether the handle was invalidated by an upgrade.
func IsVersionChanged(err error) bool { return IsKind(err, KindVersionChanged) }

// IsConstraint reports whether a uniqueness constraint was violated.
func IsConstraint(err error) bool { return IsKind(err, KindConstraint) }
