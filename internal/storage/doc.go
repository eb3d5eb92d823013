// Package storage defines the contract every offstore backend implements
// and the error taxonomy shared by all of them.
//
// Callers hold a Method and never a concrete backend, so the synchronous
// key-value backend (internal/localstore) and the embedded database backend
// (internal/embedded) are interchangeable at construction time.
//
// # Errors
//
// Every failure surfaced by a backend is an *Error carrying a Kind:
//
//   - KindConfig: unknown table, malformed schema, closed handle
//   - KindNotImplemented: backend lacks an operation
//   - KindSchemaMismatch: criteria reference a non-indexed field
//   - KindQuotaExceeded: the store is full
//   - KindVersionConflict: on-disk schema version is newer than requested
//   - KindBlocked: an upgrade or write could not proceed because of another handle
//   - KindVersionChanged: the handle was invalidated by a newer schema version
//   - KindConstraint: duplicate primary key or unique index violation
//   - KindInvalidRecord: a record lacks a usable primary key
//   - KindSerialization: a stored or supplied record could not be encoded/decoded
//   - KindIO: any other failure of the underlying engine
//
// Config and NotImplemented are programming errors and are never retried.
// A Find that matches nothing returns an empty slice, not an error.
// The storage layer never retries on its own; retry policy belongs to callers.
package storage
