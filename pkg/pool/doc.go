// Package pool implements a bounded connection pool for one backend
// endpoint. It is the part of poolkeeper that arbitrates concurrent demand
// for connections, evicts and replenishes them in the background, and
// retries failed queries with linear backoff.
//
// # Architecture
//
// A Pool owns a set of connection records and a FIFO wait queue. All state
// transitions happen under the pool mutex; driver calls (connect, probe,
// execute, close) happen outside of it, and state read before such a call is
// re-validated afterwards.
//
// Every connection is in exactly one state:
//
//   - in use: handed out by Acquire and not yet released
//   - idle and healthy: available to the next Acquire
//   - idle and unhealthy: delisted and closed by the next release or sweep
//
// An in-use connection is never closed under its holder. A failed probe only
// flags it, and the pool evicts it when it comes back through Release.
//
// # Acquire
//
// Acquire first reuses an idle healthy connection, then creates a new one if
// the pool is below MaxConnections, and finally parks the caller in the wait
// queue. Released connections go to the longest waiting caller before any
// new Acquire sees them. A waiter that is not served within AcquireTimeout
// fails with a pool_exhausted error that also carries the most recent
// connection creation failure, if any.
//
// # Usage
//
//	p, err := pool.New("postgres://app:secret@db:5432/orders", config.DefaultPoolConfig())
//	if err != nil {
//		return err
//	}
//	if err := p.Initialize(ctx); err != nil {
//		return err
//	}
//	defer p.Shutdown(context.Background())
//
//	rows, err := p.ExecuteQuery(ctx, "SELECT id FROM orders WHERE status = $1", "open")
//
// Or, holding a connection across several calls:
//
//	conn, err := p.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer p.Release(conn)
//
// # Health Monitor
//
// Initialize starts a background sweep every HealthCheckInterval. Each sweep
// drops idle connections older than IdleTimeout without probing them, probes
// the remaining idle connections, and then creates connections one at a time
// until MinConnections healthy ones exist. PerformHealthCheck runs the same
// sweep on demand.
package pool
