package pool

import (
	"fmt"
	"time"
)

// Status is the coarse health of a pool.
type Status string

const (
	StatusHealthy  Status = "healthy"
	StatusWarning  Status = "warning"
	StatusCritical Status = "critical"
)

// Utilization thresholds of active/max.
const (
	WarningUtilization  = 0.75
	CriticalUtilization = 0.90
)

// Stats is a point-in-time snapshot of a pool.
type Stats struct {
	Endpoint       string        `json:"endpoint"`
	Backend        string        `json:"backend"`
	Total          int           `json:"total"`
	Active         int           `json:"active"`
	Idle           int           `json:"idle"`
	Healthy        int           `json:"healthy"`
	Waiting        int           `json:"waiting"`
	MaxConnections int           `json:"max_connections"`
	MinConnections int           `json:"min_connections"`
	Utilization    float64       `json:"utilization"`
	OldestWait     time.Duration `json:"oldest_wait"`

	Created       int64 `json:"created"`
	FailedCreates int64 `json:"failed_creates"`
	Destroyed     int64 `json:"destroyed"`
	Acquires      int64 `json:"acquires"`
	Timeouts      int64 `json:"timeouts"`
	Queries       int64 `json:"queries"`
	FailedQueries int64 `json:"failed_queries"`
	SlowQueries   int64 `json:"slow_queries"`
}

// Health is the evaluated status of a pool with the reasons behind it.
type Health struct {
	Status Status   `json:"status"`
	Issues []string `json:"issues,omitempty"`
	Stats  Stats    `json:"stats"`
}

// Stats returns a snapshot of the pool. It has no side effects.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	s := Stats{
		Endpoint:       p.redacted,
		Backend:        string(p.kind),
		Total:          len(p.conns),
		Waiting:        p.waiters.len(),
		MaxConnections: p.config.MaxConnections,
		MinConnections: p.config.MinConnections,
		OldestWait:     p.waiters.oldest(time.Now()),
		Created:        p.counters.created,
		FailedCreates:  p.counters.failedCreates,
		Destroyed:      p.counters.destroyed,
		Acquires:       p.counters.acquires,
		Timeouts:       p.counters.timeouts,
		Queries:        p.counters.queries,
		FailedQueries:  p.counters.failedQueries,
		SlowQueries:    p.counters.slowQueries,
	}
	for _, c := range p.conns {
		if c.inUse {
			s.Active++
		} else {
			s.Idle++
		}
		if c.healthy {
			s.Healthy++
		}
	}
	s.Utilization = float64(s.Active) / float64(s.MaxConnections)
	return s
}

// HealthStatus evaluates the current snapshot.
func (p *Pool) HealthStatus() Health {
	return Evaluate(p.Stats())
}

// Evaluate derives a Health from s. The status is the worst of:
// utilization above CriticalUtilization (critical) or WarningUtilization
// (warning), any waiting acquire (warning), and fewer healthy connections
// than MinConnections (warning).
func Evaluate(s Stats) Health {
	h := Health{Status: StatusHealthy, Stats: s}

	switch {
	case s.Utilization > CriticalUtilization:
		h.raise(StatusCritical, fmt.Sprintf("utilization %.0f%% above %.0f%%", s.Utilization*100, CriticalUtilization*100))
	case s.Utilization > WarningUtilization:
		h.raise(StatusWarning, fmt.Sprintf("utilization %.0f%% above %.0f%%", s.Utilization*100, WarningUtilization*100))
	}
	if s.Waiting > 0 {
		h.raise(StatusWarning, fmt.Sprintf("%d acquires waiting", s.Waiting))
	}
	if s.Healthy < s.MinConnections {
		h.raise(StatusWarning, fmt.Sprintf("%d healthy connections below minimum %d", s.Healthy, s.MinConnections))
	}
	return h
}

func (h *Health) raise(s Status, issue string) {
	h.Issues = append(h.Issues, issue)
	if rank(s) > rank(h.Status) {
		h.Status = s
	}
}

func rank(s Status) int {
	switch s {
	case StatusCritical:
		return 2
	case StatusWarning:
		return 1
	default:
		return 0
	}
}
