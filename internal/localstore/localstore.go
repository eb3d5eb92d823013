// Package localstore implements storage.Method on top of a synchronous
// key-value store.
//
// Each table lives under the key equal to its name, serialized as an ordered
// association list of [primary-key, record] pairs:
//
//	formData -> [["0192...-0001",{"species":"grouper"}],["0192...-0002",{"species":"salmon"}]]
//
// The primary key is kept only as the first element of each pair; it is
// stripped from the stored record and added back when records are read.
//
// Every operation reads the whole table, mutates it in memory and writes it
// back, so cost is O(n) in table size. Writes are guarded by the kv
// revision: if another writer (another process sharing the file) changed
// the table between read and write, the mutation is re-applied to the fresh
// copy, up to a bounded number of attempts.
//
// Semantics chosen for this backend:
//   - Find criteria may name any field; there are no indices, so every
//     lookup is a full scan in insertion order.
//   - Update of an id that is not stored appends it (upsert).
//   - Delete of an id that is not stored is a no-op.
//   - Create treats an empty-string primary key like a missing one and
//     generates a key.
//   - Keys, values and ids are stored byte for byte. Records or criteria
//     holding invalid UTF-8 are rejected with KindInvalidRecord.
package localstore

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/offstore/internal/ident"
	"github.com/roach88/offstore/internal/kv"
	"github.com/roach88/offstore/internal/record"
	"github.com/roach88/offstore/internal/schema"
	"github.com/roach88/offstore/internal/storage"
)

// DefaultMaxRetries bounds re-application of a mutation after revision conflicts.
const DefaultMaxRetries = 5

// Method is the local-storage backend.
type Method struct {
	mu         sync.Mutex // serializes read-modify-write within this process
	store      kv.Store
	schema     schema.Store
	ids        ident.Generator
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Method.
type Option func(*Method)

// WithIDGenerator overrides the primary-key generator.
func WithIDGenerator(g ident.Generator) Option {
	return func(m *Method) { m.ids = g }
}

// WithMaxRetries sets how many times a conflicting write is re-applied.
func WithMaxRetries(n int) Option {
	return func(m *Method) { m.maxRetries = n }
}

// WithLogger sets the logger for conflict diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(m *Method) { m.logger = l }
}

// New creates a backend persisting the tables of s into store.
func New(store kv.Store, s schema.Store, opts ...Option) *Method {
	m := &Method{
		store:      store,
		schema:     s,
		ids:        ident.Default,
		maxRetries: DefaultMaxRetries,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

var _ storage.Method = (*Method)(nil)

// Create appends rec to table, generating a primary key if rec has none.
func (m *Method) Create(_ context.Context, table string, rec record.Record) (record.Record, error) {
	tbl, err := m.table("create", table)
	if err != nil {
		return nil, err
	}
	if err := validate("create", tbl, rec); err != nil {
		return nil, err
	}

	id, err := m.primaryKey("create", tbl, rec, true)
	if err != nil {
		return nil, err
	}

	err = m.mutate("create", tbl, func(entries []record.Entry) ([]record.Entry, error) {
		for _, e := range entries {
			if e.ID == id {
				return nil, storage.NewError(storage.KindConstraint, "create", tbl.Name, "primary key %q already exists", id)
			}
		}
		return append(entries, record.Entry{ID: id, Record: rec.Without(tbl.PrimaryKey)}), nil
	})
	if err != nil {
		return nil, err
	}

	out := rec.Clone()
	out[tbl.PrimaryKey] = record.String(id)
	return out, nil
}

// Find returns the records of table matching criteria, in insertion order.
func (m *Method) Find(_ context.Context, table string, criteria record.Record) ([]record.Record, error) {
	tbl, err := m.table("find", table)
	if err != nil {
		return nil, err
	}
	if err := validate("find", tbl, criteria); err != nil {
		return nil, err
	}

	entries, _, err := m.load("find", tbl)
	if err != nil {
		return nil, err
	}

	out := []record.Record{}
	for _, e := range entries {
		rec := withKey(tbl, e)
		if storage.Match(rec, criteria) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Entries returns the raw [id, record] pairs of table in insertion order.
func (m *Method) Entries(_ context.Context, table string) ([]record.Entry, error) {
	tbl, err := m.table("entries", table)
	if err != nil {
		return nil, err
	}
	entries, _, err := m.load("entries", tbl)
	return entries, err
}

// Update replaces each record's pair in place, appending records whose key
// is not stored yet. Every record must carry its primary key.
func (m *Method) Update(_ context.Context, table string, recs []record.Record) error {
	tbl, err := m.table("update", table)
	if err != nil {
		return err
	}

	updates := make([]record.Entry, 0, len(recs))
	for _, rec := range recs {
		if err := validate("update", tbl, rec); err != nil {
			return err
		}
		id, err := m.primaryKey("update", tbl, rec, false)
		if err != nil {
			return err
		}
		updates = append(updates, record.Entry{ID: id, Record: rec.Without(tbl.PrimaryKey)})
	}
	if len(updates) == 0 {
		return nil
	}

	return m.mutate("update", tbl, func(entries []record.Entry) ([]record.Entry, error) {
		pos := make(map[string]int, len(entries))
		for i, e := range entries {
			pos[e.ID] = i
		}
		for _, u := range updates {
			if i, ok := pos[u.ID]; ok {
				entries[i] = u
				continue
			}
			pos[u.ID] = len(entries)
			entries = append(entries, u)
		}
		return entries, nil
	})
}

// Delete removes the pairs whose key is in ids.
func (m *Method) Delete(_ context.Context, table string, ids []string) error {
	tbl, err := m.table("delete", table)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	return m.mutate("delete", tbl, func(entries []record.Entry) ([]record.Entry, error) {
		kept := entries[:0]
		for _, e := range entries {
			if !drop[e.ID] {
				kept = append(kept, e)
			}
		}
		return kept, nil
	})
}

func (m *Method) table(op, name string) (schema.Table, error) {
	tbl, ok := m.schema.Table(name)
	if !ok {
		return schema.Table{}, storage.UnknownTable(op, name)
	}
	return tbl, nil
}

// primaryKey extracts rec's key. When generate is set a missing or empty
// key is generated; otherwise it is an invalid record.
func (m *Method) primaryKey(op string, tbl schema.Table, rec record.Record, generate bool) (string, error) {
	v, present := rec[tbl.PrimaryKey]
	if generate && (!present || v == record.String("")) {
		return m.ids.Generate(), nil
	}
	if !present {
		return "", storage.NewError(storage.KindInvalidRecord, op, tbl.Name, "record has no %q", tbl.PrimaryKey)
	}
	id, ok := v.(record.String)
	if !ok || id == "" {
		return "", storage.NewError(storage.KindInvalidRecord, op, tbl.Name, "%q must be a non-empty string", tbl.PrimaryKey)
	}
	return string(id), nil
}

func validate(op string, tbl schema.Table, rec record.Record) error {
	if err := rec.Validate(); err != nil {
		return storage.WrapError(storage.KindInvalidRecord, op, tbl.Name, err)
	}
	return nil
}

func (m *Method) load(op string, tbl schema.Table) ([]record.Entry, int64, error) {
	item, ok, err := m.store.Get(tbl.Name)
	if err != nil {
		return nil, 0, storage.WrapError(storage.KindIO, op, tbl.Name, err)
	}
	if !ok {
		return []record.Entry{}, 0, nil
	}
	entries, err := record.UnmarshalEntries([]byte(item.Value))
	if err != nil {
		return nil, 0, storage.WrapError(storage.KindSerialization, op, tbl.Name, err)
	}
	return entries, item.Rev, nil
}

// mutate runs a read-modify-write cycle, re-applying fn when another writer
// changed the table in between.
func (m *Method) mutate(op string, tbl schema.Table, fn func([]record.Entry) ([]record.Entry, error)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; attempt <= m.maxRetries; attempt++ {
		entries, rev, err := m.load(op, tbl)
		if err != nil {
			return err
		}
		next, err := fn(entries)
		if err != nil {
			return err
		}
		data, err := record.MarshalEntries(next)
		if err != nil {
			return storage.WrapError(storage.KindSerialization, op, tbl.Name, err)
		}

		_, err = m.store.Set(tbl.Name, string(data), rev)
		if err == nil {
			return nil
		}
		if !errors.Is(err, kv.ErrConflict) {
			return storage.WrapError(storage.KindIO, op, tbl.Name, err)
		}
		m.logger.Debug("concurrent write detected, retrying",
			"op", op,
			"table", tbl.Name,
			"attempt", attempt+1,
		)
	}
	return storage.NewError(storage.KindBlocked, op, tbl.Name,
		"table changed concurrently %d times in a row", m.maxRetries+1)
}

func withKey(tbl schema.Table, e record.Entry) record.Record {
	rec := e.Record.Clone()
	rec[tbl.PrimaryKey] = record.String(e.ID)
	return rec
}
