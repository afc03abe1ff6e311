// Package driver defines the backend driver capability consumed by
// connection pools, the backend kinds poolkeeper knows about, and a registry
// that binds each kind to its driver implementation.
//
// A pool never branches on the backend kind: it resolves a Driver once, when
// it is created, and afterwards only calls Connect, Validate, Execute and
// Close on opaque handles.
//
// # Implementations
//
//	pkg/driver/postgres   postgres://, postgresql://   (pgx)
//	pkg/driver/mysql      mysql://                     (go-sql-driver/mysql)
//	pkg/driver/snowflake  snowflake://                 (gosnowflake)
//	pkg/driver/mongodb    mongodb://, mongodb+srv://   (mongo-driver)
//	pkg/driver/redis      redis://, rediss://          (go-redis)
//
// Importing an implementation package registers it with Default().
package driver

import "context"

// Handle is an opaque live connection owned by exactly one pool.
type Handle interface{}

// Result is whatever a backend returns for a query.
type Result interface{}

// Driver knows how to open, probe, use and close connections to one kind of
// data store. Implementations must be safe for concurrent use across
// different handles; a single handle is only ever used by one goroutine at a
// time.
type Driver interface {
	// Kind identifies the backend this driver serves.
	Kind() Kind
	// Connect opens a new live connection to endpoint.
	Connect(ctx context.Context, endpoint string) (Handle, error)
	// Validate is a cheap liveness probe. A nil error means usable.
	Validate(ctx context.Context, h Handle) error
	// Execute runs query with params on h.
	Execute(ctx context.Context, h Handle, query string, params ...interface{}) (Result, error)
	// Close releases h. Errors are informational only.
	Close(ctx context.Context, h Handle) error
}

// Rows is the Result returned by SQL backends.
type Rows struct {
	Columns      []string                 `json:"columns"`
	Rows         []map[string]interface{} `json:"rows"`
	RowsAffected int64                    `json:"rows_affected"`
}
