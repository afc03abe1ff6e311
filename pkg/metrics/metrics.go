// Package metrics exposes Prometheus metrics for poolkeeper connection pools.
//
// # Overview
//
// Every pool owns a PoolCollector labelled with its redacted endpoint
// ("pool") and backend kind ("backend"). The collectors write into
// package-level vectors registered with the default Prometheus registry, so
// promhttp.Handler() serves all pools of the process.
//
// # Basic Usage
//
//	c := metrics.NewPoolCollector("postgres://app:xxxxx@db:5432/orders", "postgres")
//	c.SetConnections(3, 2, 0)
//
//	timer := metrics.NewTimer("query")
//	runQuery()
//	c.ObserveQuery(timer.Stop(), metrics.StatusSuccess)
//
// # Metric Types
//
// Counter: monotonically increasing values (connections created, retries)
// Gauge: values that can go up or down (idle connections, waiters)
// Histogram: distribution of values (acquire wait, query duration)
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace prefixes every metric name.
const Namespace = "poolkeeper"

// Outcome and status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	OutcomeReused   = "reused"
	OutcomeCreated  = "created"
	OutcomeQueued   = "queued"
	OutcomeTimeout  = "timeout"
	OutcomeCanceled = "canceled"

	StateIdle      = "idle"
	StateInUse     = "in_use"
	StateUnhealthy = "unhealthy"
)

var (
	// Connections tracks the connections of each pool by state.
	// Labels: pool, backend, state (idle/in_use/unhealthy)
	Connections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "connections",
			Help:      "Number of pooled connections by state",
		},
		[]string{"pool", "backend", "state"},
	)

	// Waiters tracks acquire requests queued for a connection.
	Waiters = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: Namespace,
			Name:      "waiters",
			Help:      "Number of acquire requests waiting for a connection",
		},
		[]string{"pool", "backend"},
	)

	// AcquireDuration tracks how long acquires took to be served or fail.
	// Labels: pool, backend, outcome (reused/created/queued/timeout/canceled)
	AcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "acquire_duration_seconds",
			Help:      "Time spent acquiring a connection",
			Buckets: []float64{
				0.0001, // 100μs - idle reuse
				0.001,  // 1ms
				0.01,   // 10ms - new connection on a LAN
				0.1,    // 100ms
				0.5,
				1,
				5,  // 5s - queued behind long queries
				10, // default acquire timeout
			},
		},
		[]string{"pool", "backend", "outcome"},
	)

	// ConnectionsCreated counts connection attempts.
	// Labels: pool, backend, status (success/failure)
	ConnectionsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_created_total",
			Help:      "Connection creation attempts",
		},
		[]string{"pool", "backend", "status"},
	)

	// ConnectionsClosed counts closed connections by reason.
	// Labels: pool, backend, reason (idle/unhealthy/shutdown/removed)
	ConnectionsClosed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "connections_closed_total",
			Help:      "Connections closed by the pool",
		},
		[]string{"pool", "backend", "reason"},
	)

	// QueryDuration tracks query attempt latency.
	// Labels: pool, backend, status (success/failure)
	QueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "query_duration_seconds",
			Help:      "Duration of individual query attempts",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
		},
		[]string{"pool", "backend", "status"},
	)

	// QueryRetries counts attempts after the first one.
	QueryRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "query_retries_total",
			Help:      "Query attempts made after a failed attempt",
		},
		[]string{"pool", "backend"},
	)

	// SlowQueries counts queries that exceeded max_query_time.
	SlowQueries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "slow_queries_total",
			Help:      "Queries slower than the configured max query time",
		},
		[]string{"pool", "backend"},
	)

	// HealthSweeps counts health monitor passes.
	HealthSweeps = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "health_sweeps_total",
			Help:      "Health monitor sweeps performed",
		},
		[]string{"pool", "backend"},
	)
)

// PoolCollector records metrics for one pool.
type PoolCollector struct {
	pool    string
	backend string
}

// NewPoolCollector creates a collector for a pool. pool should already be
// redacted; it is used verbatim as a label value.
func NewPoolCollector(pool, backend string) *PoolCollector {
	return &PoolCollector{pool: pool, backend: backend}
}

// SetConnections publishes the current connection counts.
func (c *PoolCollector) SetConnections(idle, inUse, unhealthy int) {
	Connections.WithLabelValues(c.pool, c.backend, StateIdle).Set(float64(idle))
	Connections.WithLabelValues(c.pool, c.backend, StateInUse).Set(float64(inUse))
	Connections.WithLabelValues(c.pool, c.backend, StateUnhealthy).Set(float64(unhealthy))
}

// SetWaiters publishes the wait queue length.
func (c *PoolCollector) SetWaiters(n int) {
	Waiters.WithLabelValues(c.pool, c.backend).Set(float64(n))
}

// ObserveAcquire records an acquire that finished with outcome.
func (c *PoolCollector) ObserveAcquire(d time.Duration, outcome string) {
	AcquireDuration.WithLabelValues(c.pool, c.backend, outcome).Observe(d.Seconds())
}

// ConnectionCreated records a connection attempt.
func (c *PoolCollector) ConnectionCreated(ok bool) {
	ConnectionsCreated.WithLabelValues(c.pool, c.backend, status(ok)).Inc()
}

// ConnectionClosed records a closed connection.
func (c *PoolCollector) ConnectionClosed(reason string) {
	ConnectionsClosed.WithLabelValues(c.pool, c.backend, reason).Inc()
}

// ObserveQuery records one query attempt.
func (c *PoolCollector) ObserveQuery(d time.Duration, ok bool) {
	QueryDuration.WithLabelValues(c.pool, c.backend, status(ok)).Observe(d.Seconds())
}

// QueryRetried records an attempt beyond the first.
func (c *PoolCollector) QueryRetried() {
	QueryRetries.WithLabelValues(c.pool, c.backend).Inc()
}

// SlowQuery records a query slower than the threshold.
func (c *PoolCollector) SlowQuery() {
	SlowQueries.WithLabelValues(c.pool, c.backend).Inc()
}

// HealthSweep records a health monitor pass.
func (c *PoolCollector) HealthSweep() {
	HealthSweeps.WithLabelValues(c.pool, c.backend).Inc()
}

// Forget drops the pool's gauges so a shut-down pool stops being reported.
// Counters and histograms are kept.
func (c *PoolCollector) Forget() {
	for _, state := range []string{StateIdle, StateInUse, StateUnhealthy} {
		Connections.DeleteLabelValues(c.pool, c.backend, state)
	}
	Waiters.DeleteLabelValues(c.pool, c.backend)
}

func status(ok bool) string {
	if ok {
		return StatusSuccess
	}
	return StatusFailure
}

// Timer provides a simple timing mechanism for measuring operation durations.
// It captures the start time on creation and calculates elapsed time on stop.
type Timer struct {
	start time.Time
	name  string
}

// NewTimer creates a new timer and starts timing immediately.
//
// Example:
//
//	timer := metrics.NewTimer("acquire")
//	conn, err := pool.Acquire(ctx)
//	collector.ObserveAcquire(timer.Stop(), metrics.OutcomeReused)
func NewTimer(name string) *Timer {
	return &Timer{
		start: time.Now(),
		name:  name,
	}
}

// Name returns the name the timer was created with.
func (t *Timer) Name() string { return t.name }

// Stop returns the elapsed duration since creation. The timer can be
// stopped multiple times.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
