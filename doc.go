// Package poolkeeper manages pools of backend connections keyed by endpoint.
//
// A single registry hands out one pool per endpoint URL. Each pool keeps its
// connection count between a configured minimum and maximum, serves waiters
// in FIFO order when it is exhausted, evicts idle and unhealthy connections
// from a background monitor and retries queries with linear backoff.
//
// # Quick Start
//
//	import (
//	    "context"
//
//	    "github.com/ajitpratap0/poolkeeper/pkg/config"
//	    _ "github.com/ajitpratap0/poolkeeper/pkg/driver/postgres"
//	    "github.com/ajitpratap0/poolkeeper/pkg/registry"
//	)
//
//	reg := registry.New()
//	defer reg.Shutdown(context.Background())
//
//	p, err := reg.GetOrCreatePool(ctx, "postgres://app@db:5432/orders", config.DefaultPoolConfig())
//	if err != nil {
//	    return err
//	}
//	rows, err := p.ExecuteQuery(ctx, "SELECT id FROM orders WHERE status = $1", "open")
//
// # Key Packages
//
//	pkg/pool          - Bounded connection pool with FIFO wait queue
//	pkg/registry      - Endpoint to pool registry with global health checks
//	pkg/driver        - Backend driver interface and kind detection
//	pkg/driver/...    - postgres, mysql, snowflake, mongodb and redis drivers
//	pkg/config        - Pool settings and YAML deployment files
//	pkg/errors        - Structured error handling
//	pkg/logger        - Structured logging
//	pkg/metrics       - Prometheus collectors for pools and queries
//	pkg/observability - OpenTelemetry tracing setup
//
// # Backends
//
// The backend is chosen from the endpoint scheme:
//   - postgres://, postgresql:// (pgx)
//   - mysql:// (go-sql-driver/mysql)
//   - snowflake:// (gosnowflake)
//   - mongodb://, mongodb+srv:// (mongo-driver)
//   - redis://, rediss:// (go-redis)
//
// # Command Line
//
// The poolkeeper binary serves Prometheus metrics and a health endpoint for
// the pools declared in a YAML file, runs one-off health checks and executes
// ad-hoc queries:
//
//	poolkeeper serve -c poolkeeper.yaml
//	poolkeeper check -c poolkeeper.yaml
//	poolkeeper query orders "SELECT 1"
package poolkeeper
