// Package registry keeps one connection pool per backend endpoint.
//
// A Registry is an explicitly constructed value with its own lifecycle; the
// process owns it and hands it to whatever needs pooled connections:
//
//	reg := registry.New()
//	defer reg.Shutdown(context.Background())
//
//	rows, err := reg.ExecuteQuery(ctx, "postgres://app:secret@db/orders", "SELECT 1")
//
// Pools are created on first reference, either explicitly through
// GetOrCreatePool/CreatePool or lazily, with the registry default config, by
// Acquire and ExecuteQuery. The registry never reaches into a pool; it only
// calls the pool's public operations.
package registry

import (
	"context"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ajitpratap0/poolkeeper/pkg/config"
	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
	"github.com/ajitpratap0/poolkeeper/pkg/logger"
	"github.com/ajitpratap0/poolkeeper/pkg/pool"
)

// sweepConcurrency bounds the pools swept or shut down in parallel.
const sweepConcurrency = 8

// Registry maps endpoints to their pools.
type Registry struct {
	defaults    config.PoolConfig
	poolOptions []pool.Option
	logger      *zap.Logger

	mu     sync.RWMutex
	pools  map[string]*pool.Pool
	closed bool
	// redacted endpoint -> endpoint holding it, including pools being created
	keys map[string]string

	// deduplicates concurrent creation of the same endpoint
	creating singleflight.Group
}

// Option customizes a Registry.
type Option func(*Registry)

// WithLogger sets the registry logger. Pools get it too unless
// WithPoolOptions overrides it.
func WithLogger(l *zap.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithDefaultConfig sets the config of pools created lazily.
func WithDefaultConfig(cfg config.PoolConfig) Option {
	return func(r *Registry) { r.defaults = cfg }
}

// WithPoolOptions adds options passed to every pool the registry creates.
func WithPoolOptions(opts ...pool.Option) Option {
	return func(r *Registry) { r.poolOptions = append(r.poolOptions, opts...) }
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		defaults: config.DefaultPoolConfig(),
		pools:    make(map[string]*pool.Pool),
		keys:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get()
	}
	r.poolOptions = append([]pool.Option{pool.WithLogger(r.logger)}, r.poolOptions...)
	r.logger = r.logger.With(zap.String("component", "pool_registry"))
	return r
}

// FromConfig builds a registry whose defaults come from f and creates a pool
// for every configured endpoint. If any pool cannot be created, the pools
// created so far are shut down and the error is returned.
func FromConfig(ctx context.Context, f *config.File, opts ...Option) (*Registry, error) {
	opts = append([]Option{WithDefaultConfig(f.Defaults)}, opts...)
	r := New(opts...)

	for _, ep := range f.Endpoints {
		if _, err := r.CreatePool(ctx, ep.URL, f.PoolConfigFor(ep)); err != nil {
			r.Shutdown(ctx)
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to create pool for endpoint "+ep.Name).
				WithDetail("endpoint", driver.Redact(ep.URL))
		}
	}
	return r, nil
}

// GetOrCreatePool returns the pool for endpoint, creating and initializing
// it with cfg if it does not exist yet. The config of an existing pool is
// left unchanged. Reports and metrics identify pools by redacted endpoint,
// so an endpoint that redacts the same as another registered endpoint (they
// differ only in password) is refused with a conflict error.
func (r *Registry) GetOrCreatePool(ctx context.Context, endpoint string, cfg config.PoolConfig) (*pool.Pool, error) {
	if p, ok := r.Pool(endpoint); ok {
		return p, nil
	}

	v, err, _ := r.creating.Do(endpoint, func() (interface{}, error) {
		if p, ok := r.Pool(endpoint); ok {
			return p, nil
		}
		if err := r.claim(endpoint); err != nil {
			return nil, err
		}

		p, err := pool.New(endpoint, cfg, r.poolOptions...)
		if err != nil {
			r.unclaim(endpoint)
			return nil, err
		}
		if err := p.Initialize(ctx); err != nil {
			p.Shutdown(ctx)
			r.unclaim(endpoint)
			return nil, err
		}

		r.mu.Lock()
		if r.closed {
			r.mu.Unlock()
			p.Shutdown(ctx)
			return nil, errShutdown()
		}
		r.pools[endpoint] = p
		count := len(r.pools)
		r.mu.Unlock()

		r.logger.Info("pool created",
			zap.String("endpoint", p.Endpoint()),
			zap.String("backend", string(p.Kind())),
			zap.Int("pools", count))
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*pool.Pool), nil
}

// CreatePool is GetOrCreatePool under the name used by callers that set up
// pools ahead of use.
func (r *Registry) CreatePool(ctx context.Context, endpoint string, cfg config.PoolConfig) (*pool.Pool, error) {
	return r.GetOrCreatePool(ctx, endpoint, cfg)
}

// Pool returns the pool registered for endpoint.
func (r *Registry) Pool(endpoint string) (*pool.Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.pools[endpoint]
	return p, ok
}

// RemovePool shuts down and delists the pool for endpoint. It reports
// whether a pool was registered.
func (r *Registry) RemovePool(ctx context.Context, endpoint string) bool {
	r.mu.Lock()
	p, ok := r.pools[endpoint]
	delete(r.pools, endpoint)
	if ok {
		delete(r.keys, driver.Redact(endpoint))
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	p.Shutdown(ctx)
	r.logger.Info("pool removed", zap.String("endpoint", p.Endpoint()))
	return true
}

// Acquire takes a connection from the pool for endpoint, creating the pool
// with the default config on first use.
func (r *Registry) Acquire(ctx context.Context, endpoint string) (*pool.Conn, error) {
	p, err := r.GetOrCreatePool(ctx, endpoint, r.defaults)
	if err != nil {
		return nil, err
	}
	return p.Acquire(ctx)
}

// Release returns c to the pool for endpoint. Releasing to an endpoint
// without a pool is logged and ignored.
func (r *Registry) Release(endpoint string, c *pool.Conn) {
	p, ok := r.Pool(endpoint)
	if !ok {
		r.logger.Warn("release for unknown endpoint ignored",
			zap.String("endpoint", driver.Redact(endpoint)))
		return
	}
	p.Release(c)
}

// ExecuteQuery runs query through the pool for endpoint, creating the pool
// with the default config on first use.
func (r *Registry) ExecuteQuery(ctx context.Context, endpoint, query string, params ...interface{}) (driver.Result, error) {
	p, err := r.GetOrCreatePool(ctx, endpoint, r.defaults)
	if err != nil {
		return nil, err
	}
	return p.ExecuteQuery(ctx, query, params...)
}

// PoolStats returns the stats of one pool.
func (r *Registry) PoolStats(endpoint string) (pool.Stats, error) {
	p, ok := r.Pool(endpoint)
	if !ok {
		return pool.Stats{}, errNotFound(endpoint)
	}
	return p.Stats(), nil
}

// PoolHealth returns the health of one pool.
func (r *Registry) PoolHealth(endpoint string) (pool.Health, error) {
	p, ok := r.Pool(endpoint)
	if !ok {
		return pool.Health{}, errNotFound(endpoint)
	}
	return p.HealthStatus(), nil
}

// AllStats returns the stats of every pool keyed by redacted endpoint.
func (r *Registry) AllStats() map[string]pool.Stats {
	pools := r.snapshot()
	out := make(map[string]pool.Stats, len(pools))
	for _, p := range pools {
		out[p.Endpoint()] = p.Stats()
	}
	return out
}

// AllHealthStatus returns the health of every pool keyed by redacted
// endpoint.
func (r *Registry) AllHealthStatus() map[string]pool.Health {
	pools := r.snapshot()
	out := make(map[string]pool.Health, len(pools))
	for _, p := range pools {
		out[p.Endpoint()] = p.HealthStatus()
	}
	return out
}

// PerformGlobalHealthCheck runs an immediate health sweep on every pool, in
// addition to their periodic sweeps, and returns when all have finished.
func (r *Registry) PerformGlobalHealthCheck(ctx context.Context) {
	pools := r.snapshot()

	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, p := range pools {
		p := p
		g.Go(func() error {
			p.PerformHealthCheck(ctx)
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("global health check completed", zap.Int("pools", len(pools)))
}

// Shutdown shuts down every pool and clears the registry. The registry
// refuses to create pools afterwards. Later calls are no-ops.
func (r *Registry) Shutdown(ctx context.Context) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	pools := r.pools
	r.pools = make(map[string]*pool.Pool)
	r.keys = make(map[string]string)
	r.mu.Unlock()

	var g errgroup.Group
	g.SetLimit(sweepConcurrency)
	for _, p := range pools {
		p := p
		g.Go(func() error {
			p.Shutdown(ctx)
			return nil
		})
	}
	_ = g.Wait()

	r.logger.Info("registry shut down", zap.Int("pools", len(pools)))
}

// ListEndpoints returns the registered endpoints, sorted.
func (r *Registry) ListEndpoints() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoints := make([]string, 0, len(r.pools))
	for endpoint := range r.pools {
		endpoints = append(endpoints, endpoint)
	}
	sort.Strings(endpoints)
	return endpoints
}

// PoolCount returns the number of registered pools.
func (r *Registry) PoolCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.pools)
}

// HasPool reports whether a pool is registered for endpoint.
func (r *Registry) HasPool(endpoint string) bool {
	_, ok := r.Pool(endpoint)
	return ok
}

func (r *Registry) snapshot() []*pool.Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pools := make([]*pool.Pool, 0, len(r.pools))
	for _, p := range r.pools {
		pools = append(pools, p)
	}
	return pools
}

// claim reserves the redacted form of endpoint for it.
func (r *Registry) claim(endpoint string) error {
	key := driver.Redact(endpoint)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return errShutdown()
	}
	if owner, ok := r.keys[key]; ok && owner != endpoint {
		return errors.New(errors.ErrorTypeConflict, "endpoint redacts to the same name as a registered endpoint").
			WithDetail("endpoint", key)
	}
	r.keys[key] = endpoint
	return nil
}

func (r *Registry) unclaim(endpoint string) {
	key := driver.Redact(endpoint)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.keys[key] == endpoint {
		delete(r.keys, key)
	}
}

func errShutdown() error {
	return errors.New(errors.ErrorTypeShutdown, "registry is shut down")
}

func errNotFound(endpoint string) error {
	return errors.New(errors.ErrorTypeNotFound, "no pool registered").
		WithDetail("endpoint", driver.Redact(endpoint))
}
