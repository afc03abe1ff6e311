package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestPoolCollectorGauges(t *testing.T) {
	c := NewPoolCollector("memory://gauges", "memory")

	c.SetConnections(3, 2, 1)
	c.SetWaiters(4)

	assert.Equal(t, 3.0, testutil.ToFloat64(Connections.WithLabelValues("memory://gauges", "memory", StateIdle)))
	assert.Equal(t, 2.0, testutil.ToFloat64(Connections.WithLabelValues("memory://gauges", "memory", StateInUse)))
	assert.Equal(t, 1.0, testutil.ToFloat64(Connections.WithLabelValues("memory://gauges", "memory", StateUnhealthy)))
	assert.Equal(t, 4.0, testutil.ToFloat64(Waiters.WithLabelValues("memory://gauges", "memory")))
}

func TestPoolCollectorCounters(t *testing.T) {
	c := NewPoolCollector("memory://counters", "memory")

	c.ConnectionCreated(true)
	c.ConnectionCreated(true)
	c.ConnectionCreated(false)
	c.ConnectionClosed("idle")
	c.QueryRetried()
	c.SlowQuery()
	c.HealthSweep()

	assert.Equal(t, 2.0, testutil.ToFloat64(ConnectionsCreated.WithLabelValues("memory://counters", "memory", StatusSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionsCreated.WithLabelValues("memory://counters", "memory", StatusFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(ConnectionsClosed.WithLabelValues("memory://counters", "memory", "idle")))
	assert.Equal(t, 1.0, testutil.ToFloat64(QueryRetries.WithLabelValues("memory://counters", "memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(SlowQueries.WithLabelValues("memory://counters", "memory")))
	assert.Equal(t, 1.0, testutil.ToFloat64(HealthSweeps.WithLabelValues("memory://counters", "memory")))
}

func TestForgetDropsGauges(t *testing.T) {
	c := NewPoolCollector("memory://forget", "memory")
	c.SetConnections(1, 1, 1)
	c.SetWaiters(1)

	before := testutil.CollectAndCount(Waiters)
	c.Forget()
	assert.Equal(t, before-1, testutil.CollectAndCount(Waiters))
}

func TestTimer(t *testing.T) {
	timer := NewTimer("op")
	time.Sleep(5 * time.Millisecond)

	assert.Equal(t, "op", timer.Name())
	assert.GreaterOrEqual(t, timer.Stop(), 5*time.Millisecond)
}
