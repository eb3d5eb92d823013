// Package offline is the application's single access point to offline
// form storage.
//
// A Provider is built once from configuration, owns one backend and its
// model for its whole lifetime, and is handed to consumers explicitly or
// through a context:
//
//	p, err := offline.NewProvider(cfg)
//	...
//	ctx = offline.WithProvider(ctx, p)
//	...
//	store, err := offline.Use(ctx)
//	rec, err := store.CreateOfflineData(ctx, "formData", fields)
package offline

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/offstore/internal/config"
	"github.com/roach88/offstore/internal/embedded"
	"github.com/roach88/offstore/internal/ident"
	"github.com/roach88/offstore/internal/kv"
	"github.com/roach88/offstore/internal/localstore"
	"github.com/roach88/offstore/internal/model"
	"github.com/roach88/offstore/internal/record"
	"github.com/roach88/offstore/internal/schema"
	"github.com/roach88/offstore/internal/storage"
)

// Provider owns one storage model bound to one backend.
type Provider struct {
	schema  schema.Store
	model   *model.Model
	closers []func() error

	mu     sync.RWMutex
	closed bool
}

type options struct {
	logger          *slog.Logger
	ids             ident.Generator
	onVersionChange embedded.VersionChangeFunc
}

// Option configures NewProvider.
type Option func(*options)

// WithLogger sets the logger passed to the backend and model.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithIDGenerator overrides primary-key generation.
func WithIDGenerator(g ident.Generator) Option {
	return func(o *options) { o.ids = g }
}

// WithVersionChange installs the embedded backend's version-change handler.
func WithVersionChange(fn embedded.VersionChangeFunc) Option {
	return func(o *options) { o.onVersionChange = fn }
}

// NewProvider validates cfg and constructs its backend and model.
func NewProvider(cfg config.Config, opts ...Option) (*Provider, error) {
	o := options{logger: slog.Default(), ids: ident.Default}
	for _, opt := range opts {
		opt(&o)
	}

	s, err := cfg.Schema()
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendIndexedDB:
		db := embedded.New(cfg.Path, s,
			embedded.WithLogger(o.logger),
			embedded.WithIDGenerator(o.ids),
			embedded.WithQuota(cfg.QuotaBytes),
			embedded.WithVersionChange(o.onVersionChange),
		)
		return newProvider(s, db, o.logger), nil

	default:
		var store kv.Store
		var closers []func() error
		if cfg.Path == "" {
			store = kv.NewMemory(cfg.QuotaBytes)
		} else {
			file, err := kv.OpenSQLite(cfg.Path, cfg.QuotaBytes)
			if err != nil {
				return nil, storage.WrapError(storage.KindIO, "open", "", err)
			}
			store = file
			closers = append(closers, file.Close)
		}
		m := localstore.New(store, s,
			localstore.WithLogger(o.logger),
			localstore.WithIDGenerator(o.ids),
		)
		p := newProvider(s, m, o.logger)
		p.closers = append(p.closers, closers...)
		return p, nil
	}
}

var _ EntriesLister = (*localstore.Method)(nil)

// NewProviderWithMethod wraps an already constructed backend.
func NewProviderWithMethod(s schema.Store, m storage.Method) *Provider {
	return newProvider(s, m, slog.Default())
}

func newProvider(s schema.Store, m storage.Method, logger *slog.Logger) *Provider {
	md := model.New(m, model.WithLogger(logger))
	return &Provider{
		schema:  s,
		model:   md,
		closers: []func() error{md.Close},
	}
}

// Schema returns the store schema fixed at construction.
func (p *Provider) Schema() schema.Store {
	return p.schema
}

// CreateOfflineData stores rec in table and returns it with its primary key.
func (p *Provider) CreateOfflineData(ctx context.Context, table string, rec record.Record) (record.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkLocked("create"); err != nil {
		return nil, err
	}
	return p.model.Create(ctx, table, rec)
}

// FindOfflineData returns the records of table matching criteria.
func (p *Provider) FindOfflineData(ctx context.Context, table string, criteria record.Record) ([]record.Record, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkLocked("find"); err != nil {
		return nil, err
	}
	return p.model.Find(ctx, table, criteria)
}

// UpdateOfflineData upserts recs by primary key.
func (p *Provider) UpdateOfflineData(ctx context.Context, table string, recs []record.Record) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkLocked("update"); err != nil {
		return err
	}
	return p.model.Update(ctx, table, recs)
}

// DeleteOfflineData removes the records with the given primary keys.
func (p *Provider) DeleteOfflineData(ctx context.Context, table string, ids []string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkLocked("delete"); err != nil {
		return err
	}
	return p.model.Delete(ctx, table, ids)
}

// EntriesLister is implemented by backends that can expose a table's raw
// [primary-key, record] pairs, such as the local key-value backend.
type EntriesLister interface {
	Entries(ctx context.Context, table string) ([]record.Entry, error)
}

// Entries returns the raw stored pairs of table. Backends that do not
// implement EntriesLister report KindNotImplemented.
func (p *Provider) Entries(ctx context.Context, table string) ([]record.Entry, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if err := p.checkLocked("entries"); err != nil {
		return nil, err
	}
	lister, ok := p.model.Backend().(EntriesLister)
	if !ok {
		return nil, storage.NotImplemented("entries")
	}
	return lister.Entries(ctx, table)
}

// Close releases the backend once in-flight operations have returned.
// Later calls fail with KindConfig.
func (p *Provider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true

	var first error
	for _, c := range p.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// checkLocked reports use after Close. Callers hold p.mu for the whole
// delegated call, so Close waits for operations already in flight.
func (p *Provider) checkLocked(op string) error {
	if p.closed {
		return storage.NewError(storage.KindConfig, op, "", "offline storage %q is closed", p.schema.Name)
	}
	return nil
}

type providerKey struct{}

// WithProvider returns a context scoped to p.
func WithProvider(ctx context.Context, p *Provider) context.Context {
	return context.WithValue(ctx, providerKey{}, p)
}

// Use returns the provider in scope, or a KindConfig error when there is none.
func Use(ctx context.Context) (*Provider, error) {
	p, ok := ctx.Value(providerKey{}).(*Provider)
	if !ok || p == nil {
		return nil, storage.NewError(storage.KindConfig, "use", "", "offline storage used outside a provider scope")
	}
	return p, nil
}
