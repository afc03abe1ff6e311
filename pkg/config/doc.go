// Package config provides configuration for poolkeeper connection pools.
//
// # Key Features
//
// - PoolConfig: sizing, timeout and retry settings of a single pool
// - File: deployment configuration (logging, metrics, tracing, default pool
// settings and the list of endpoints with per-endpoint overrides)
// - Environment variable substitution with ${VAR_NAME} syntax
// - POOLKEEPER_* environment overrides for individual keys
// - Automatic defaults and validation
//
// # Usage
//
//	cfg, err := config.Load("poolkeeper.yaml")
//	if err != nil {
//		log.Fatal(err)
//	}
//	for _, ep := range cfg.Endpoints {
//		poolCfg := cfg.PoolConfigFor(ep)
//		...
//	}
//
// A minimal file:
//
//	defaults:
//	  max_connections: 20
//	  min_connections: 5
//	  acquire_timeout: 10s
//	endpoints:
//	  - name: orders
//	    url: postgres://app:${ORDERS_PASSWORD}@db:5432/orders
//	    pool:
//	      max_connections: 50
//
// Durations are written as Go duration strings ("10s", "5m").
package config
