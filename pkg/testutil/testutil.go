// Package testutil provides testing utilities for poolkeeper
package testutil

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/poolkeeper/pkg/config"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// FastPoolConfig returns a valid PoolConfig scaled down to test time:
// millisecond timeouts and a health interval long enough that the monitor
// never ticks on its own unless a test shortens it.
func FastPoolConfig() config.PoolConfig {
	return config.PoolConfig{
		MaxConnections:      2,
		MinConnections:      1,
		AcquireTimeout:      500 * time.Millisecond,
		IdleTimeout:         time.Minute,
		HealthCheckInterval: time.Hour,
		MaxQueryTime:        time.Second,
		RetryAttempts:       3,
		RetryDelay:          10 * time.Millisecond,
	}
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}
