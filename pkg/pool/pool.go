package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/poolkeeper/pkg/config"
	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
	"github.com/ajitpratap0/poolkeeper/pkg/logger"
	"github.com/ajitpratap0/poolkeeper/pkg/metrics"
)

const (
	tracerName   = "github.com/ajitpratap0/poolkeeper/pkg/pool"
	closeTimeout = 5 * time.Second
	probeTimeout = 5 * time.Second
)

// Close reasons, used as metric labels.
const (
	reasonIdle      = "idle"
	reasonUnhealthy = "unhealthy"
	reasonShutdown  = "shutdown"
)

// Conn is a pooled connection record. The pool owns every field except the
// handle, which belongs to whoever currently holds the connection.
type Conn struct {
	id        int64
	handle    driver.Handle
	pool      *Pool
	createdAt time.Time

	// guarded by pool.mu
	lastUsed   time.Time
	healthy    bool
	inUse      bool
	checking   bool
	removed    bool
	queryCount int64
}

// ID identifies the connection within its pool.
func (c *Conn) ID() int64 { return c.id }

// Handle returns the driver handle. It may only be used between Acquire and
// Release.
func (c *Conn) Handle() driver.Handle { return c.handle }

// CreatedAt returns when the connection was opened.
func (c *Conn) CreatedAt() time.Time { return c.createdAt }

// counters are lifetime totals reported by Stats.
type counters struct {
	created       int64
	failedCreates int64
	destroyed     int64
	acquires      int64
	timeouts      int64
	queries       int64
	failedQueries int64
	slowQueries   int64
}

// Pool manages connections to a single backend endpoint.
type Pool struct {
	endpoint string
	redacted string
	kind     driver.Kind
	driver   driver.Driver
	config   config.PoolConfig
	logger   *zap.Logger
	metrics  *metrics.PoolCollector
	tracer   trace.Tracer

	mu            sync.Mutex
	conns         []*Conn
	waiters       *waitQueue
	pending       int
	nextID        int64
	lastCreateErr error
	counters      counters
	initialized   bool
	closed        bool
	stopMonitor   context.CancelFunc
	monitorDone   chan struct{}

	// background closes and replacements started while the pool was open
	wg sync.WaitGroup
}

// Option customizes a Pool.
type Option func(*options)

type options struct {
	logger         *zap.Logger
	driver         driver.Driver
	drivers        *driver.Registry
	tracerProvider trace.TracerProvider
}

// WithLogger sets the base logger. Defaults to logger.Get().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDriver binds the pool to d instead of resolving a driver from the
// endpoint scheme.
func WithDriver(d driver.Driver) Option {
	return func(o *options) { o.driver = d }
}

// WithDriverRegistry resolves the driver from r instead of driver.Default().
func WithDriverRegistry(r *driver.Registry) Option {
	return func(o *options) { o.drivers = r }
}

// WithTracerProvider sets the provider used for query spans. Defaults to the
// global otel provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

// New creates a pool for endpoint. The backend kind is detected from the
// endpoint scheme once, here, and determines the driver for the lifetime of
// the pool. No connections are opened until Initialize or Acquire.
func New(endpoint string, cfg config.PoolConfig, opts ...Option) (*Pool, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := options{drivers: driver.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logger.Get()
	}
	if o.tracerProvider == nil {
		o.tracerProvider = otel.GetTracerProvider()
	}

	d := o.driver
	if d == nil {
		var err error
		if d, err = o.drivers.ForEndpoint(endpoint); err != nil {
			return nil, err
		}
	}

	redacted := driver.Redact(endpoint)
	kind := d.Kind()

	return &Pool{
		endpoint: endpoint,
		redacted: redacted,
		kind:     kind,
		driver:   d,
		config:   cfg,
		logger: o.logger.With(
			zap.String("component", "connection_pool"),
			zap.String("endpoint", redacted),
			zap.String("backend", string(kind)),
		),
		metrics: metrics.NewPoolCollector(redacted, string(kind)),
		tracer:  o.tracerProvider.Tracer(tracerName),
		waiters: newWaitQueue(),
	}, nil
}

// Endpoint returns the endpoint with its password redacted.
func (p *Pool) Endpoint() string { return p.redacted }

// Kind returns the backend kind the pool is bound to.
func (p *Pool) Kind() driver.Kind { return p.kind }

// Config returns the pool configuration.
func (p *Pool) Config() config.PoolConfig { return p.config }

// Initialize opens up to MinConnections connections and starts the health
// monitor. Creation failures are logged and tolerated. Calling it again is a
// no-op.
func (p *Pool) Initialize(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return p.shutdownError()
	}
	if p.initialized {
		p.mu.Unlock()
		return nil
	}
	p.initialized = true
	p.mu.Unlock()

	created := 0
	for i := 0; i < p.config.MinConnections; i++ {
		p.mu.Lock()
		ok := p.reserveLocked()
		p.mu.Unlock()
		if !ok {
			break
		}

		if _, err := p.dial(ctx, false); err != nil {
			p.logger.Warn("initial connection failed", zap.Error(err))
			continue
		}
		created++
	}

	p.mu.Lock()
	if !p.closed {
		p.startMonitorLocked()
	}
	p.mu.Unlock()

	p.logger.Info("pool initialized",
		zap.Int("created", created),
		zap.Int("min_connections", p.config.MinConnections),
		zap.Int("max_connections", p.config.MaxConnections))
	return nil
}

// Acquire returns a connection for exclusive use. It reuses an idle healthy
// connection, opens a new one while below MaxConnections, or waits in FIFO
// order for a release. The whole call is bounded by AcquireTimeout; a
// cancelled ctx abandons the wait early.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	timer := metrics.NewTimer("acquire")
	deadline := time.Now().Add(p.config.AcquireTimeout)

	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeTimeout, "acquire canceled")
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, p.shutdownError()
	}

	if c := p.takeIdleLocked(); c != nil {
		p.mu.Unlock()
		p.metrics.ObserveAcquire(timer.Stop(), metrics.OutcomeReused)
		return c, nil
	}

	if p.reserveLocked() {
		p.mu.Unlock()

		dialCtx, cancel := context.WithDeadline(ctx, deadline)
		c, err := p.dial(dialCtx, true)
		cancel()
		if err == nil {
			p.metrics.ObserveAcquire(timer.Stop(), metrics.OutcomeCreated)
			return c, nil
		}
		if errors.Is(err, errors.ErrShutdown) {
			return nil, err
		}
		p.logger.Warn("connection creation failed during acquire, waiting for a release",
			zap.Error(err))

		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return nil, p.shutdownError()
		}
		// another caller may have released while we were dialing
		if c := p.takeIdleLocked(); c != nil {
			p.mu.Unlock()
			p.metrics.ObserveAcquire(timer.Stop(), metrics.OutcomeReused)
			return c, nil
		}
	}

	w := p.waiters.enqueue(time.Until(deadline), p.expire)
	p.publishLocked()
	p.logger.Debug("acquire queued", zap.Int("waiters", p.waiters.len()))
	p.mu.Unlock()

	return p.wait(ctx, w, timer)
}

// wait blocks until w is granted, times out, is rejected or ctx is done.
func (p *Pool) wait(ctx context.Context, w *waiter, timer *metrics.Timer) (*Conn, error) {
	select {
	case g := <-w.ch:
		return p.settled(g, timer)
	case <-ctx.Done():
	}

	p.mu.Lock()
	if p.waiters.remove(w) {
		p.publishLocked()
		p.mu.Unlock()
		p.metrics.ObserveAcquire(timer.Stop(), metrics.OutcomeCanceled)
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "acquire canceled")
	}
	p.mu.Unlock()

	// settled concurrently with the cancellation
	g := <-w.ch
	if g.conn != nil {
		p.Release(g.conn)
		p.metrics.ObserveAcquire(timer.Stop(), metrics.OutcomeCanceled)
		return nil, errors.Wrap(ctx.Err(), errors.ErrorTypeTimeout, "acquire canceled")
	}
	return p.settled(g, timer)
}

func (p *Pool) settled(g grant, timer *metrics.Timer) (*Conn, error) {
	elapsed := timer.Stop()
	if g.err != nil {
		outcome := metrics.OutcomeTimeout
		if errors.Is(g.err, errors.ErrShutdown) {
			outcome = metrics.OutcomeCanceled
		}
		p.metrics.ObserveAcquire(elapsed, outcome)
		return nil, g.err
	}
	p.metrics.ObserveAcquire(elapsed, metrics.OutcomeQueued)
	p.logger.Debug("queued acquire granted",
		zap.String("operation", timer.Name()),
		zap.Int64("connection_id", g.conn.id),
		zap.Duration("waited", elapsed))
	return g.conn, nil
}

// expire is the timeout callback of a waiter. A waiter that was granted in
// the meantime is no longer queued and is left alone.
func (p *Pool) expire(w *waiter) {
	p.mu.Lock()
	defer p.mu.Unlock()

	err := errors.Newf(errors.ErrorTypePoolExhausted,
		"timed out after %s waiting for a connection", p.config.AcquireTimeout).
		WithDetail("max_connections", p.config.MaxConnections).
		WithDetail("waiters", p.waiters.len())
	if p.lastCreateErr != nil {
		err.Cause = p.lastCreateErr
		err.WithDetail("last_create_error", p.lastCreateErr.Error())
	}

	if !p.waiters.settle(w, err) {
		return
	}
	p.counters.timeouts++
	p.publishLocked()
	p.logger.Warn("acquire timed out",
		zap.Duration("acquire_timeout", p.config.AcquireTimeout),
		zap.NamedError("last_create_error", p.lastCreateErr))
}

// Release returns c to the pool. It never blocks: a waiting caller receives
// c directly, an unhealthy c is delisted and closed in the background, and
// releasing a connection that is not in use is logged and ignored.
func (p *Pool) Release(c *Conn) {
	if c == nil {
		return
	}
	if c.pool != p {
		p.logger.Error("release of a connection owned by another pool", zap.Int64("connection_id", c.id))
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if c.removed {
		p.logger.Debug("release of a closed connection ignored", zap.Int64("connection_id", c.id))
		return
	}
	if !c.inUse {
		p.logger.Warn("connection released twice", zap.Int64("connection_id", c.id))
		return
	}

	c.inUse = false
	c.lastUsed = time.Now()
	p.logger.Debug("connection released", zap.Int64("connection_id", c.id))

	if !c.healthy {
		p.removeLocked(c, reasonUnhealthy)
		p.closeAsyncLocked(c, reasonUnhealthy)
		p.logger.Info("evicted unhealthy connection on release", zap.Int64("connection_id", c.id))

		if p.waiters.len() > 0 && p.reserveLocked() {
			p.wg.Add(1)
			go p.replaceForWaiters()
		}
		p.publishLocked()
		return
	}

	p.offerLocked(c)
	p.publishLocked()
}

// ValidateConnection probes c with the driver. Success marks it healthy and
// refreshes its last use; failure marks it unhealthy so that it is evicted
// on release. Only the holder of c should call it.
func (p *Pool) ValidateConnection(ctx context.Context, c *Conn) bool {
	err := p.driver.Validate(ctx, c.handle)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		c.healthy = false
		p.publishLocked()
		p.logger.Warn("connection failed validation",
			zap.Int64("connection_id", c.id), zap.Error(err))
		return false
	}
	c.healthy = true
	c.lastUsed = time.Now()
	return true
}

// Shutdown stops the health monitor, fails every waiter with a shutdown
// error and closes every connection, including those still in use. Close
// errors are logged and ignored. Later calls return immediately.
func (p *Pool) Shutdown(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true

	rejected := p.waiters.rejectAll(p.shutdownError())
	conns := p.conns
	p.conns = nil
	for _, c := range conns {
		c.removed = true
		c.inUse = false
	}
	p.counters.destroyed += int64(len(conns))
	stop, done := p.stopMonitor, p.monitorDone
	p.publishLocked()
	p.mu.Unlock()

	if stop != nil {
		stop()
		<-done
	}

	for _, c := range conns {
		p.closeConn(ctx, c, reasonShutdown)
	}
	p.wg.Wait()
	p.metrics.Forget()

	p.logger.Info("pool shut down",
		zap.Int("closed_connections", len(conns)),
		zap.Int("rejected_waiters", rejected))
}

// takeIdleLocked hands out the first idle healthy connection. Idle
// connections past IdleTimeout are discarded on the way.
func (p *Pool) takeIdleLocked() *Conn {
	now := time.Now()
	for i := 0; i < len(p.conns); i++ {
		c := p.conns[i]
		if c.inUse || c.checking || !c.healthy {
			continue
		}
		if now.Sub(c.lastUsed) > p.config.IdleTimeout {
			p.removeLocked(c, reasonIdle)
			p.closeAsyncLocked(c, reasonIdle)
			i--
			continue
		}
		p.checkoutLocked(c, now)
		p.publishLocked()
		return c
	}
	return nil
}

func (p *Pool) checkoutLocked(c *Conn, now time.Time) {
	c.inUse = true
	c.lastUsed = now
	c.queryCount++
	p.counters.acquires++
	p.logger.Debug("connection acquired",
		zap.Int64("connection_id", c.id),
		zap.Int64("query_count", c.queryCount))
}

// offerLocked gives an idle healthy connection to the head waiter, or
// leaves it idle when nobody waits.
func (p *Pool) offerLocked(c *Conn) {
	if p.waiters.len() == 0 {
		return
	}
	p.checkoutLocked(c, time.Now())
	p.waiters.dequeueAndGrant(c)
}

// reserveLocked claims a creation slot, keeping connections plus in-flight
// creations within MaxConnections.
func (p *Pool) reserveLocked() bool {
	if p.closed || len(p.conns)+p.pending >= p.config.MaxConnections {
		return false
	}
	p.pending++
	return true
}

// dial opens a connection for a slot claimed with reserveLocked and lists
// it, either checked out to the caller or offered to the wait queue. The
// slot is given back whatever the outcome.
func (p *Pool) dial(ctx context.Context, checkout bool) (*Conn, error) {
	h, err := p.driver.Connect(ctx, p.endpoint)

	p.mu.Lock()
	p.pending--
	if err != nil {
		p.lastCreateErr = err
		p.counters.failedCreates++
		p.mu.Unlock()
		p.metrics.ConnectionCreated(false)
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to create connection")
	}
	if p.closed {
		p.mu.Unlock()
		cctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		_ = p.driver.Close(cctx, h)
		cancel()
		return nil, p.shutdownError()
	}

	now := time.Now()
	p.nextID++
	c := &Conn{
		id:        p.nextID,
		handle:    h,
		pool:      p,
		createdAt: now,
		lastUsed:  now,
		healthy:   true,
	}
	p.conns = append(p.conns, c)
	p.lastCreateErr = nil
	p.counters.created++

	if checkout {
		p.checkoutLocked(c, now)
	} else {
		p.offerLocked(c)
	}
	p.publishLocked()
	p.mu.Unlock()

	p.metrics.ConnectionCreated(true)
	p.logger.Debug("connection created", zap.Int64("connection_id", c.id))
	return c, nil
}

// replaceForWaiters opens a connection for a slot reserved by Release after
// it evicted an unhealthy connection while callers were waiting.
func (p *Pool) replaceForWaiters() {
	defer p.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), p.config.AcquireTimeout)
	defer cancel()

	if _, err := p.dial(ctx, false); err != nil {
		p.logger.Warn("replacement connection failed", zap.Error(err))
	}
}

// removeLocked delists c. The caller closes it.
func (p *Pool) removeLocked(c *Conn, reason string) {
	for i, other := range p.conns {
		if other == c {
			p.conns = append(p.conns[:i], p.conns[i+1:]...)
			break
		}
	}
	c.removed = true
	p.counters.destroyed++
	p.logger.Debug("connection removed",
		zap.Int64("connection_id", c.id), zap.String("reason", reason))
}

func (p *Pool) closeAsyncLocked(c *Conn, reason string) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		p.closeConn(ctx, c, reason)
	}()
}

func (p *Pool) closeConn(ctx context.Context, c *Conn, reason string) {
	if err := p.driver.Close(ctx, c.handle); err != nil {
		p.logger.Debug("error closing connection",
			zap.Int64("connection_id", c.id), zap.Error(err))
	}
	p.metrics.ConnectionClosed(reason)
}

// publishLocked pushes the current gauges.
func (p *Pool) publishLocked() {
	idle, inUse, unhealthy := 0, 0, 0
	for _, c := range p.conns {
		switch {
		case !c.healthy:
			unhealthy++
		case c.inUse:
			inUse++
		default:
			idle++
		}
	}
	p.metrics.SetConnections(idle, inUse, unhealthy)
	p.metrics.SetWaiters(p.waiters.len())
}

func (p *Pool) shutdownError() *errors.Error {
	return errors.New(errors.ErrorTypeShutdown, fmt.Sprintf("pool %s is shut down", p.redacted))
}
