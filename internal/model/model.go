// Package model is the backend-agnostic facade over a storage.Method.
//
// A Model is bound to one backend at construction and forwards every call
// to it unchanged. Swapping backends never changes calling code.
package model

import (
	"context"
	"io"
	"log/slog"

	"github.com/roach88/offstore/internal/record"
	"github.com/roach88/offstore/internal/storage"
)

// Model delegates CRUD operations to its backend.
type Model struct {
	backend storage.Method
	logger  *slog.Logger
}

// Option configures a Model.
type Option func(*Model)

// WithLogger logs each delegated call at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) { m.logger = l }
}

// New binds a Model to backend. The Model owns the backend from then on.
func New[B storage.Method](backend B, opts ...Option) *Model {
	m := &Model{backend: backend, logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ storage.Method = (*Model)(nil)

// Create stores rec in table and returns it with its primary key set.
func (m *Model) Create(ctx context.Context, table string, rec record.Record) (record.Record, error) {
	m.logger.Debug("create", "table", table)
	return m.backend.Create(ctx, table, rec)
}

// Find returns the records of table equal to criteria on every criteria
// field; empty criteria returns everything.
func (m *Model) Find(ctx context.Context, table string, criteria record.Record) ([]record.Record, error) {
	m.logger.Debug("find", "table", table, "criteria", len(criteria))
	return m.backend.Find(ctx, table, criteria)
}

// Update upserts recs by primary key.
func (m *Model) Update(ctx context.Context, table string, recs []record.Record) error {
	m.logger.Debug("update", "table", table, "count", len(recs))
	return m.backend.Update(ctx, table, recs)
}

// Delete removes the records with the given primary keys.
func (m *Model) Delete(ctx context.Context, table string, ids []string) error {
	m.logger.Debug("delete", "table", table, "count", len(ids))
	return m.backend.Delete(ctx, table, ids)
}

// Backend returns the bound backend.
func (m *Model) Backend() storage.Method {
	return m.backend
}

// Close releases the backend if it holds resources.
func (m *Model) Close() error {
	if c, ok := m.backend.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
