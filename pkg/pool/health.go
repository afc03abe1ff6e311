package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// startMonitorLocked launches the periodic sweep. It runs until Shutdown.
func (p *Pool) startMonitorLocked() {
	if p.stopMonitor != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.stopMonitor = cancel
	p.monitorDone = make(chan struct{})
	go p.monitor(ctx, p.monitorDone)
}

func (p *Pool) monitor(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.PerformHealthCheck(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// PerformHealthCheck runs one sweep: idle connections past IdleTimeout are
// closed without a probe, the other idle connections are probed and closed
// if the probe fails, and the pool is then replenished toward
// MinConnections. A passed probe refreshes the connection's last use, the
// same as ValidateConnection. Connections in use are not touched.
func (p *Pool) PerformHealthCheck(ctx context.Context) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}

	now := time.Now()
	var stale, probe []*Conn
	var reasons []string
	for _, c := range p.conns {
		if c.inUse || c.checking {
			continue
		}
		switch {
		case !c.healthy:
			stale = append(stale, c)
			reasons = append(reasons, reasonUnhealthy)
		case now.Sub(c.lastUsed) > p.config.IdleTimeout:
			stale = append(stale, c)
			reasons = append(reasons, reasonIdle)
		default:
			c.checking = true
			probe = append(probe, c)
		}
	}
	for i, c := range stale {
		p.removeLocked(c, reasons[i])
	}
	p.publishLocked()
	p.mu.Unlock()

	for i, c := range stale {
		p.closeConn(ctx, c, reasons[i])
	}

	// Probes run without the lock. checking keeps the connections out of
	// Acquire meanwhile.
	results := make([]error, len(probe))
	for i, c := range probe {
		results[i] = p.driver.Validate(ctx, c.handle)
	}

	p.mu.Lock()
	var dead []*Conn
	for i, c := range probe {
		c.checking = false
		if c.removed {
			continue
		}
		if results[i] != nil {
			c.healthy = false
			p.removeLocked(c, reasonUnhealthy)
			dead = append(dead, c)
			p.logger.Warn("idle connection failed health check",
				zap.Int64("connection_id", c.id), zap.Error(results[i]))
			continue
		}
		c.healthy = true
		c.lastUsed = time.Now()
		p.offerLocked(c)
	}
	p.publishLocked()
	p.mu.Unlock()

	for _, c := range dead {
		p.closeConn(ctx, c, reasonUnhealthy)
	}

	created := p.replenish(ctx)
	p.metrics.HealthSweep()

	if len(stale)+len(dead)+created > 0 {
		p.logger.Info("health check completed",
			zap.Int("stale_removed", len(stale)),
			zap.Int("unhealthy_removed", len(dead)),
			zap.Int("created", created))
	}
}

// replenish creates connections one at a time until MinConnections healthy
// connections exist, stopping at the first failure. It returns how many it
// created.
func (p *Pool) replenish(ctx context.Context) int {
	created := 0
	for {
		p.mu.Lock()
		if p.healthyLocked() >= p.config.MinConnections || !p.reserveLocked() {
			p.mu.Unlock()
			return created
		}
		p.mu.Unlock()

		if _, err := p.dial(ctx, false); err != nil {
			p.logger.Warn("replenishment stopped", zap.Error(err), zap.Int("created", created))
			return created
		}
		created++
	}
}

func (p *Pool) healthyLocked() int {
	n := 0
	for _, c := range p.conns {
		if c.healthy {
			n++
		}
	}
	return n
}
