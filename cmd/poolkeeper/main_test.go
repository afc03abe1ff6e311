package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/poolkeeper/pkg/config"
	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/driver/drivertest"
	"github.com/ajitpratap0/poolkeeper/pkg/pool"
	"github.com/ajitpratap0/poolkeeper/pkg/registry"
	"github.com/ajitpratap0/poolkeeper/pkg/testutil"
)

func newMemoryRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	drivers := driver.NewRegistry()
	drivers.MustRegister(drivertest.New())

	reg := registry.New(
		registry.WithLogger(testutil.TestLogger(t)),
		registry.WithDefaultConfig(testutil.FastPoolConfig()),
		registry.WithPoolOptions(pool.WithDriverRegistry(drivers)),
	)
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	return reg
}

func TestDriversCommandListsBackends(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"drivers"})

	require.NoError(t, root.Execute())
	for _, kind := range []string{"postgres", "mysql", "snowflake", "mongodb", "redis"} {
		assert.Contains(t, out.String(), "- "+kind)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "poolkeeper v"+version)
}

func TestHealthHandler(t *testing.T) {
	reg := newMemoryRegistry(t)
	ctx := context.Background()

	_, err := reg.GetOrCreatePool(ctx, "memory://orders", testutil.FastPoolConfig())
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	healthHandler(reg)(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var report healthReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, pool.StatusHealthy, report.Status)
	require.Contains(t, report.Pools, "memory://orders")
	assert.Equal(t, 1, report.Pools["memory://orders"].Stats.Total)
}

func TestHealthHandlerCriticalPool(t *testing.T) {
	reg := newMemoryRegistry(t)
	ctx := context.Background()

	c1, err := reg.Acquire(ctx, "memory://busy")
	require.NoError(t, err)
	c2, err := reg.Acquire(ctx, "memory://busy")
	require.NoError(t, err)
	defer reg.Release("memory://busy", c1)
	defer reg.Release("memory://busy", c2)

	rec := httptest.NewRecorder()
	newMux(reg, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	report := buildHealthReport(reg)
	assert.Equal(t, pool.StatusCritical, report.Status)
	assert.Error(t, verdict(report))
}

func TestMetricsEndpoint(t *testing.T) {
	reg := newMemoryRegistry(t)
	_, err := reg.ExecuteQuery(context.Background(), "memory://metrics", "SELECT 1")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	newMux(reg, true).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "poolkeeper_query_duration_seconds")

	rec = httptest.NewRecorder()
	newMux(reg, false).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerdict(t *testing.T) {
	ok := healthReport{Pools: map[string]pool.Health{
		"a": {Status: pool.StatusWarning, Stats: pool.Stats{Healthy: 1}},
	}}
	assert.NoError(t, verdict(ok))

	empty := healthReport{Pools: map[string]pool.Health{
		"a": {Status: pool.StatusWarning, Stats: pool.Stats{Healthy: 0}},
	}}
	assert.Error(t, verdict(empty))
}

func TestResolveEndpoint(t *testing.T) {
	f := config.NewFile()
	maxConns := 7
	f.Endpoints = []config.EndpointConfig{
		{Name: "orders", URL: "postgres://db/orders", Pool: &config.PoolOverrides{MaxConnections: &maxConns}},
	}

	url, cfg, err := resolveEndpoint(f, "orders")
	require.NoError(t, err)
	assert.Equal(t, "postgres://db/orders", url)
	assert.Equal(t, 7, cfg.MaxConnections)

	url, cfg, err = resolveEndpoint(f, "redis://cache:6379/0")
	require.NoError(t, err)
	assert.Equal(t, "redis://cache:6379/0", url)
	assert.Equal(t, 1, cfg.MaxConnections)
	assert.NoError(t, cfg.Validate())

	_, _, err = resolveEndpoint(f, "unknown")
	assert.Error(t, err)
}
