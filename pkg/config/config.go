package config

import (
	"time"

	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

// Defaults applied by DefaultPoolConfig.
const (
	DefaultMaxConnections      = 20
	DefaultMinConnections      = 5
	DefaultAcquireTimeout      = 10 * time.Second
	DefaultIdleTimeout         = 5 * time.Minute
	DefaultHealthCheckInterval = 60 * time.Second
	DefaultMaxQueryTime        = 30 * time.Second
	DefaultRetryAttempts       = 3
	DefaultRetryDelay          = time.Second
)

// PoolConfig controls sizing, timeouts and retry behaviour of one
// connection pool.
type PoolConfig struct {
	// MaxConnections is the hard upper bound on open connections
	MaxConnections int `yaml:"max_connections" json:"max_connections" mapstructure:"max_connections"`
	// MinConnections is the level the health monitor replenishes toward
	MinConnections int `yaml:"min_connections" json:"min_connections" mapstructure:"min_connections"`
	// AcquireTimeout bounds how long an acquire may wait in the queue
	AcquireTimeout time.Duration `yaml:"acquire_timeout" json:"acquire_timeout" mapstructure:"acquire_timeout"`
	// IdleTimeout evicts connections left idle longer than this
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout" mapstructure:"idle_timeout"`
	// HealthCheckInterval is the period of the health monitor
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval" mapstructure:"health_check_interval"`
	// MaxQueryTime is a slow-query warning threshold; queries are never aborted
	MaxQueryTime time.Duration `yaml:"max_query_time" json:"max_query_time" mapstructure:"max_query_time"`
	// RetryAttempts is the total number of query attempts, including the first
	RetryAttempts int `yaml:"retry_attempts" json:"retry_attempts" mapstructure:"retry_attempts"`
	// RetryDelay is the backoff unit; attempt n waits RetryDelay*n
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay" mapstructure:"retry_delay"`
}

// DefaultPoolConfig returns a PoolConfig populated with production defaults.
//
// Example:
//
//	cfg := config.DefaultPoolConfig()
//	cfg.MaxConnections = 50
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxConnections:      DefaultMaxConnections,
		MinConnections:      DefaultMinConnections,
		AcquireTimeout:      DefaultAcquireTimeout,
		IdleTimeout:         DefaultIdleTimeout,
		HealthCheckInterval: DefaultHealthCheckInterval,
		MaxQueryTime:        DefaultMaxQueryTime,
		RetryAttempts:       DefaultRetryAttempts,
		RetryDelay:          DefaultRetryDelay,
	}
}

// Validate validates the configuration for correctness.
// It checks the sizing invariant 0 < min <= max and that every duration the
// pool schedules on is positive.
func (c PoolConfig) Validate() error {
	if c.MinConnections <= 0 {
		return errors.New(errors.ErrorTypeConfig, "min_connections must be positive").
			WithDetail("min_connections", c.MinConnections)
	}
	if c.MaxConnections < c.MinConnections {
		return errors.Newf(errors.ErrorTypeConfig, "min_connections %d exceeds max_connections %d",
			c.MinConnections, c.MaxConnections)
	}
	if c.AcquireTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "acquire_timeout must be positive")
	}
	if c.IdleTimeout <= 0 {
		return errors.New(errors.ErrorTypeConfig, "idle_timeout must be positive")
	}
	if c.HealthCheckInterval <= 0 {
		return errors.New(errors.ErrorTypeConfig, "health_check_interval must be positive")
	}
	if c.MaxQueryTime <= 0 {
		return errors.New(errors.ErrorTypeConfig, "max_query_time must be positive")
	}
	if c.RetryAttempts < 1 {
		return errors.New(errors.ErrorTypeConfig, "retry_attempts must be at least 1")
	}
	if c.RetryDelay < 0 {
		return errors.New(errors.ErrorTypeConfig, "retry_delay cannot be negative")
	}
	return nil
}

// BackoffFor returns the delay inserted after the given failed attempt
// (1-based). The backoff is linear in the attempt number.
func (c PoolConfig) BackoffFor(attempt int) time.Duration {
	if attempt < 1 {
		return 0
	}
	return c.RetryDelay * time.Duration(attempt)
}

// PoolOverrides holds optional per-endpoint replacements for PoolConfig
// fields. Nil fields inherit from the defaults they are applied to.
type PoolOverrides struct {
	MaxConnections      *int           `yaml:"max_connections,omitempty" json:"max_connections,omitempty" mapstructure:"max_connections"`
	MinConnections      *int           `yaml:"min_connections,omitempty" json:"min_connections,omitempty" mapstructure:"min_connections"`
	AcquireTimeout      *time.Duration `yaml:"acquire_timeout,omitempty" json:"acquire_timeout,omitempty" mapstructure:"acquire_timeout"`
	IdleTimeout         *time.Duration `yaml:"idle_timeout,omitempty" json:"idle_timeout,omitempty" mapstructure:"idle_timeout"`
	HealthCheckInterval *time.Duration `yaml:"health_check_interval,omitempty" json:"health_check_interval,omitempty" mapstructure:"health_check_interval"`
	MaxQueryTime        *time.Duration `yaml:"max_query_time,omitempty" json:"max_query_time,omitempty" mapstructure:"max_query_time"`
	RetryAttempts       *int           `yaml:"retry_attempts,omitempty" json:"retry_attempts,omitempty" mapstructure:"retry_attempts"`
	RetryDelay          *time.Duration `yaml:"retry_delay,omitempty" json:"retry_delay,omitempty" mapstructure:"retry_delay"`
}

// Apply returns base with every non-nil override replaced.
func (o *PoolOverrides) Apply(base PoolConfig) PoolConfig {
	if o == nil {
		return base
	}
	if o.MaxConnections != nil {
		base.MaxConnections = *o.MaxConnections
	}
	if o.MinConnections != nil {
		base.MinConnections = *o.MinConnections
	}
	if o.AcquireTimeout != nil {
		base.AcquireTimeout = *o.AcquireTimeout
	}
	if o.IdleTimeout != nil {
		base.IdleTimeout = *o.IdleTimeout
	}
	if o.HealthCheckInterval != nil {
		base.HealthCheckInterval = *o.HealthCheckInterval
	}
	if o.MaxQueryTime != nil {
		base.MaxQueryTime = *o.MaxQueryTime
	}
	if o.RetryAttempts != nil {
		base.RetryAttempts = *o.RetryAttempts
	}
	if o.RetryDelay != nil {
		base.RetryDelay = *o.RetryDelay
	}
	return base
}
