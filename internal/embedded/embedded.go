package embedded

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/roach88/offstore/internal/ident"
	"github.com/roach88/offstore/internal/schema"
	"github.com/roach88/offstore/internal/sqlitedb"
	"github.com/roach88/offstore/internal/storage"
)

type state int

const (
	stateIdle state = iota
	stateOpen
	stateClosed
	stateInvalidated
)

// VersionChangeFunc is offered to an open handle when another handle wants
// to upgrade the same file. Returning true lets the upgrade proceed and the
// handle is closed; returning false blocks the upgrade. It must not call
// methods on the handle itself.
type VersionChangeFunc func(oldVersion, newVersion int) bool

// DB is the embedded database backend.
type DB struct {
	path            string
	key             string
	schema          schema.Store
	ids             ident.Generator
	logger          *slog.Logger
	quotaBytes      int64
	onVersionChange VersionChangeFunc

	mu    sync.Mutex
	db    *sql.DB
	state state
}

// Option configures a DB.
type Option func(*DB)

// WithIDGenerator overrides the primary-key generator.
func WithIDGenerator(g ident.Generator) Option {
	return func(d *DB) { d.ids = g }
}

// WithLogger sets the logger for open and migration events.
func WithLogger(l *slog.Logger) Option {
	return func(d *DB) { d.logger = l }
}

// WithQuota caps the database file at roughly quotaBytes.
func WithQuota(quotaBytes int64) Option {
	return func(d *DB) { d.quotaBytes = quotaBytes }
}

// WithVersionChange installs the handler consulted when another handle
// upgrades the same file. Without one, this handle blocks upgrades.
func WithVersionChange(fn VersionChangeFunc) Option {
	return func(d *DB) { d.onVersionChange = fn }
}

// New returns a handle on the database at path with schema s.
// Nothing is opened until the first operation or an explicit Open.
func New(path string, s schema.Store, opts ...Option) *DB {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	d := &DB{
		path:   path,
		key:    key,
		schema: s,
		ids:    ident.Default,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

var _ storage.Method = (*DB)(nil)

// Schema returns the schema this handle was created with.
func (d *DB) Schema() schema.Store {
	return d.schema
}

// Open opens the database and runs any pending migration.
// It is a no-op on an already open handle.
func (d *DB) Open(ctx context.Context) error {
	_, err := d.conn(ctx, "open")
	return err
}

// Close releases the handle. Later operations fail with KindConfig.
// Closing twice is not an error.
func (d *DB) Close() error {
	d.mu.Lock()
	db := d.db
	d.db = nil
	if d.state != stateInvalidated {
		d.state = stateClosed
	}
	d.mu.Unlock()

	registry.remove(d)
	if db == nil {
		return nil
	}
	return db.Close()
}

// conn returns the open connection, opening it on first use.
func (d *DB) conn(ctx context.Context, op string) (*sql.DB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch d.state {
	case stateOpen:
		return d.db, nil
	case stateClosed:
		return nil, storage.NewError(storage.KindConfig, op, "", "database %q is closed", d.schema.Name)
	case stateInvalidated:
		return nil, d.versionChanged(op)
	}

	db, err := d.openLocked(ctx)
	if err != nil {
		return nil, err
	}
	d.db = db
	d.state = stateOpen
	return db, nil
}

// openLocked opens the file and brings it to the declared version.
// Lock order is d.mu, then registry.mu, then other handles' mu.
func (d *DB) openLocked(ctx context.Context) (*sql.DB, error) {
	registry.mu.Lock()
	defer registry.mu.Unlock()

	db, err := sqlitedb.Open(d.path, 0)
	if err != nil {
		return nil, storage.WrapError(storage.KindIO, "open", "", err)
	}
	if err := sqlitedb.SetQuota(db, d.quotaBytes); err != nil {
		db.Close()
		return nil, storage.WrapError(storage.KindIO, "open", "", err)
	}

	if err := d.bringToVersion(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	registry.add(d)
	d.logger.Debug("database opened",
		"name", d.schema.Name,
		"path", d.path,
		"version", d.schema.Version,
	)
	return db, nil
}

func (d *DB) bringToVersion(ctx context.Context, db *sql.DB) error {
	current, err := userVersion(ctx, db)
	if err != nil {
		return sqlitedb.Classify("open", "", err)
	}

	want := d.schema.Version
	switch {
	case want < current:
		return storage.NewError(storage.KindVersionConflict, "open", "",
			"requested version %d is lower than existing version %d", want, current)
	case want == current:
		return d.verify(ctx, db)
	}

	if err := registry.requestVersionChange(d, current, want); err != nil {
		return err
	}
	return d.migrate(ctx, db)
}

// invalidate marks the handle as superseded by a newer version and closes it.
func (d *DB) invalidate() {
	d.mu.Lock()
	db := d.db
	d.db = nil
	if d.state == stateOpen {
		d.state = stateInvalidated
	}
	d.mu.Unlock()

	if db != nil {
		db.Close()
	}
}

func (d *DB) versionChanged(op string) error {
	return storage.NewError(storage.KindVersionChanged, op, "",
		"database %q was upgraded past version %d by another connection", d.schema.Name, d.schema.Version)
}

func userVersion(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (int, error) {
	var v int
	if err := q.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v); err != nil {
		return 0, fmt.Errorf("get user_version: %w", err)
	}
	return v, nil
}

// handleRegistry tracks open handles per database file so an upgrade can
// notify or be blocked by them.
type handleRegistry struct {
	mu      sync.Mutex
	handles map[string]map[*DB]struct{}
}

var registry = &handleRegistry{handles: make(map[string]map[*DB]struct{})}

// add must be called with r.mu held.
func (r *handleRegistry) add(d *DB) {
	set, ok := r.handles[d.key]
	if !ok {
		set = make(map[*DB]struct{})
		r.handles[d.key] = set
	}
	set[d] = struct{}{}
}

func (r *handleRegistry) remove(d *DB) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.removeLocked(d)
}

func (r *handleRegistry) removeLocked(d *DB) {
	if set, ok := r.handles[d.key]; ok {
		delete(set, d)
		if len(set) == 0 {
			delete(r.handles, d.key)
		}
	}
}

// requestVersionChange asks every other open handle on the same file to
// step aside. Must be called with r.mu held. Nothing is invalidated unless
// every handle agrees.
func (r *handleRegistry) requestVersionChange(upgrader *DB, oldVersion, newVersion int) error {
	others := make([]*DB, 0, len(r.handles[upgrader.key]))
	for h := range r.handles[upgrader.key] {
		if h == upgrader {
			continue
		}
		if h.onVersionChange == nil || !h.onVersionChange(oldVersion, newVersion) {
			return storage.NewError(storage.KindBlocked, "open", "",
				"upgrade of %q to version %d blocked by an open connection at version %d",
				upgrader.schema.Name, newVersion, h.schema.Version)
		}
		others = append(others, h)
	}

	for _, h := range others {
		r.removeLocked(h)
		h.invalidate()
	}
	return nil
}
