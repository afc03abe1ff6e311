package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

func TestDefaultPoolConfigIsValid(t *testing.T) {
	cfg := DefaultPoolConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 20, cfg.MaxConnections)
	assert.Equal(t, 5, cfg.MinConnections)
	assert.Equal(t, 10*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout)
	assert.Equal(t, time.Minute, cfg.HealthCheckInterval)
	assert.Equal(t, 30*time.Second, cfg.MaxQueryTime)
	assert.Equal(t, 3, cfg.RetryAttempts)
	assert.Equal(t, time.Second, cfg.RetryDelay)
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PoolConfig)
	}{
		{"zero min", func(c *PoolConfig) { c.MinConnections = 0 }},
		{"min above max", func(c *PoolConfig) { c.MinConnections = 3; c.MaxConnections = 2 }},
		{"zero acquire timeout", func(c *PoolConfig) { c.AcquireTimeout = 0 }},
		{"zero idle timeout", func(c *PoolConfig) { c.IdleTimeout = 0 }},
		{"zero health interval", func(c *PoolConfig) { c.HealthCheckInterval = 0 }},
		{"zero max query time", func(c *PoolConfig) { c.MaxQueryTime = 0 }},
		{"no attempts", func(c *PoolConfig) { c.RetryAttempts = 0 }},
		{"negative delay", func(c *PoolConfig) { c.RetryDelay = -time.Second }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultPoolConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
		})
	}
}

func TestMinEqualsMaxIsValid(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.MinConnections = 2
	cfg.MaxConnections = 2
	assert.NoError(t, cfg.Validate())
}

func TestBackoffIsLinear(t *testing.T) {
	cfg := DefaultPoolConfig()
	cfg.RetryDelay = 100 * time.Millisecond

	assert.Equal(t, time.Duration(0), cfg.BackoffFor(0))
	assert.Equal(t, 100*time.Millisecond, cfg.BackoffFor(1))
	assert.Equal(t, 200*time.Millisecond, cfg.BackoffFor(2))
	assert.Equal(t, 300*time.Millisecond, cfg.BackoffFor(3))
}

func TestOverridesApply(t *testing.T) {
	max := 8
	delay := 50 * time.Millisecond
	o := &PoolOverrides{MaxConnections: &max, RetryDelay: &delay}

	got := o.Apply(DefaultPoolConfig())
	assert.Equal(t, 8, got.MaxConnections)
	assert.Equal(t, delay, got.RetryDelay)
	assert.Equal(t, DefaultMinConnections, got.MinConnections)

	var nilOverrides *PoolOverrides
	assert.Equal(t, DefaultPoolConfig(), nilOverrides.Apply(DefaultPoolConfig()))
}

func TestParseSubstitutesAndOverrides(t *testing.T) {
	t.Setenv("PK_TEST_PASSWORD", "s3cret")
	t.Setenv("POOLKEEPER_DEFAULTS_RETRY_ATTEMPTS", "5")

	cfg, err := Parse([]byte(`
log:
  level: debug
defaults:
  max_connections: 12
  min_connections: 3
  idle_timeout: 90s
endpoints:
  - name: orders
    url: postgres://app:${PK_TEST_PASSWORD}@db:5432/orders
  - name: sessions
    url: redis://cache:6379/1
    pool:
      min_connections: 1
      max_connections: 2
`))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 12, cfg.Defaults.MaxConnections)
	assert.Equal(t, 90*time.Second, cfg.Defaults.IdleTimeout)
	assert.Equal(t, 5, cfg.Defaults.RetryAttempts)
	assert.Equal(t, DefaultAcquireTimeout, cfg.Defaults.AcquireTimeout)

	require.Len(t, cfg.Endpoints, 2)
	assert.Equal(t, "postgres://app:s3cret@db:5432/orders", cfg.Endpoints[0].URL)

	sessions := cfg.PoolConfigFor(cfg.Endpoints[1])
	assert.Equal(t, 2, sessions.MaxConnections)
	assert.Equal(t, 1, sessions.MinConnections)
	assert.Equal(t, 90*time.Second, sessions.IdleTimeout)
}

func TestParseRejectsInvalidEndpoint(t *testing.T) {
	_, err := Parse([]byte(`
endpoints:
  - name: broken
    url: mysql://db:3306/app
    pool:
      min_connections: 9
      max_connections: 3
`))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestParseRejectsDuplicateEndpoints(t *testing.T) {
	_, err := Parse([]byte(`
endpoints:
  - name: a
    url: redis://cache:6379/0
  - name: b
    url: redis://cache:6379/0
`))
	assert.Error(t, err)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "poolkeeper.yaml")

	src := NewFile()
	src.Endpoints = []EndpointConfig{{Name: "orders", URL: "postgres://db:5432/orders"}}
	require.NoError(t, Save(path, src))

	_, err := os.Stat(path)
	require.NoError(t, err)

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, src.Defaults, loaded.Defaults)
	assert.Equal(t, src.Endpoints[0].URL, loaded.Endpoints[0].URL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
