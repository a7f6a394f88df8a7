// Copyright 2025 The Accumulate Authors
//
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file or at
// https://opensource.org/licenses/MIT.

// Package engine wires the key caches, the mirror client, and the resolver
// together according to a configuration.
package engine

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"gitlab.com/accumulatenetwork/sigreq/config"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/store/badger"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/store/memory"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/store/postgres"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/store/redis"
	"gitlab.com/accumulatenetwork/sigreq/internal/keycache/store/sqlite"
	"gitlab.com/accumulatenetwork/sigreq/internal/logging"
	"gitlab.com/accumulatenetwork/sigreq/internal/mirror"
	"gitlab.com/accumulatenetwork/sigreq/internal/resolver"
	"gitlab.com/accumulatenetwork/sigreq/internal/signers"
	"gitlab.com/accumulatenetwork/sigreq/pkg/errors"
	"gitlab.com/accumulatenetwork/sigreq/pkg/keytree"
	"gitlab.com/accumulatenetwork/sigreq/pkg/ledger"
)

type Option func(*options)

type options struct {
	root       string
	logger     *slog.Logger
	store      keycache.Store
	fetcher    keycache.Fetcher
	httpClient *http.Client
	now        func() time.Time
}

// WithRoot resolves relative storage paths against dir.
func WithRoot(dir string) Option { return func(o *options) { o.root = dir } }

func WithLogger(logger *slog.Logger) Option { return func(o *options) { o.logger = logger } }

// WithStore uses the given store instead of the configured one. The engine
// takes ownership of it.
func WithStore(s keycache.Store) Option { return func(o *options) { o.store = s } }

// WithFetcher uses the given fetcher instead of the mirror.
func WithFetcher(f keycache.Fetcher) Option { return func(o *options) { o.fetcher = f } }

func WithHTTPClient(c *http.Client) Option { return func(o *options) { o.httpClient = c } }

func WithClock(now func() time.Time) Option { return func(o *options) { o.now = now } }

// Engine resolves signature requirements. It is safe for concurrent use.
type Engine struct {
	logger   *slog.Logger
	store    keycache.Store
	durable  *keycache.Durable
	shared   *keycache.Cache
	arena    *keycache.Arena
	resolver *resolver.Resolver
	resOpts  resolver.Options

	closeOnce sync.Once
}

func New(cfg *config.Config, opts ...Option) (*Engine, error) {
	o := new(options)
	for _, opt := range opts {
		opt(o)
	}
	if o.now == nil {
		o.now = time.Now
	}

	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	e := new(Engine)
	e.logger = logging.Module(o.logger, "engine")

	e.store = o.store
	if e.store == nil {
		e.store, err = OpenStore(cfg, o.root, o.logger)
		if err != nil {
			return nil, err
		}
	}

	fetcher := o.fetcher
	if fetcher == nil {
		networks := map[ledger.Network]string{}
		for _, n := range cfg.Mirror.Networks {
			network, err := ledger.ParseNetwork(n.Name)
			if err != nil {
				_ = e.store.Close()
				return nil, err
			}
			networks[network] = n.URL
		}
		fetcher = mirror.New(mirror.Options{
			Networks:   networks,
			Timeout:    cfg.Mirror.Timeout,
			HTTPClient: o.httpClient,
			Logger:     o.logger,
		})
	}

	freshness := keycache.Freshness{
		Fresh:        cfg.Cache.FreshWindow,
		AccountYoung: cfg.Cache.AccountYoungWindow,
		NodeYoung:    cfg.Cache.NodeYoungWindow,
	}

	e.durable = keycache.NewDurable(keycache.DurableOptions{
		Store:        e.store,
		Fetcher:      fetcher,
		Freshness:    freshness,
		ReclaimAfter: cfg.Cache.ReclaimAfter,
		LeaseWait:    cfg.Cache.LeaseWait,
		Logger:       o.logger,
		Now:          o.now,
	})

	cacheOpts := keycache.CacheOptions{
		Source:    e.durable,
		Freshness: freshness,
		Logger:    o.logger,
		Size:      cfg.Cache.Entries,
		Now:       o.now,
	}
	e.shared = keycache.NewCache(cacheOpts)
	e.arena, err = keycache.NewArena(cfg.Cache.SessionCacheSize, cacheOpts)
	if err != nil {
		_ = e.store.Close()
		return nil, err
	}

	e.resOpts = resolver.Options{
		Keys:            e.shared,
		SystemEntityMax: cfg.Ledger.SystemEntityMax,
		Logger:          o.logger,
		Now:             o.now,
	}
	e.resolver = resolver.New(e.resOpts)

	e.logger.Info("Engine started", "storage", cfg.Storage.Type, "networks", len(cfg.Mirror.Networks))
	return e, nil
}

// OpenStore opens the store named by the configuration. Relative paths are
// resolved against root.
func OpenStore(cfg *config.Config, root string, logger *slog.Logger) (keycache.Store, error) {
	s := cfg.Storage
	switch s.Type {
	case config.MemoryStorage:
		return memory.New(), nil
	case config.BadgerStorage:
		return badger.New(config.MakeAbsolute(root, s.Path), badger.WithLogger(logger))
	case config.SQLiteStorage:
		return sqlite.Open(config.MakeAbsolute(root, s.Path))
	case config.PostgresStorage:
		return postgres.Open(s.DSN)
	case config.RedisStorage:
		return redis.Open(redis.Options{
			Address:  s.Redis.Address,
			Password: s.Redis.Password,
			DB:       s.Redis.DB,
		})
	default:
		return nil, errors.BadRequest.WithFormat("unknown storage type %q", s.Type)
	}
}

// ResolveSignatureRequirement decodes the transaction and returns its
// signature requirement.
func (e *Engine) ResolveSignatureRequirement(ctx context.Context, txBytes []byte, network ledger.Network) (*resolver.SignatureAudit, error) {
	return e.resolver.ResolveBytes(ctx, txBytes, network)
}

// Resolve returns the signature requirement of a decoded transaction.
func (e *Engine) Resolve(ctx context.Context, tx *ledger.Transaction, network ledger.Network) (*resolver.SignatureAudit, error) {
	return e.resolver.Resolve(ctx, tx, network)
}

// KeysStillOwed returns the user's keys that could still help authorize
// the transaction.
func (e *Engine) KeysStillOwed(audit *resolver.SignatureAudit, userKeys keytree.Set, recorded []signers.RecordedSignature) keytree.Set {
	return signers.KeysStillOwed(audit, userKeys, recorded)
}

// Session returns a resolver whose in-process cache belongs to the session.
func (e *Engine) Session(id string) *resolver.Resolver {
	opts := e.resOpts
	opts.Keys = e.arena.Session(id)
	return resolver.New(opts)
}

// EndSession discards the session's cache.
func (e *Engine) EndSession(id string) {
	e.arena.Drop(id)
}

// Lookup returns the key material of an entity through the shared cache.
func (e *Engine) Lookup(ctx context.Context, key keycache.EntityKey, force bool) (*keycache.Record, error) {
	return e.shared.Lookup(ctx, key, force)
}

// Peek returns the stored record of an entity without refreshing it.
func (e *Engine) Peek(ctx context.Context, key keycache.EntityKey) (*keycache.Record, error) {
	return e.durable.Peek(ctx, key)
}

func (e *Engine) Close() error {
	var err error
	e.closeOnce.Do(func() {
		err = e.store.Close()
	})
	return err
}
