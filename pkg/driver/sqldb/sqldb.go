// Package sqldb adapts database/sql drivers to the pool driver capability.
// Each pooled connection is a *sql.DB capped at a single physical
// connection, so the poolkeeper pool stays the only pool in play.
package sqldb

import (
	"context"
	"database/sql"
	"strings"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

// DSNFunc converts a poolkeeper endpoint URL into a driver-specific DSN.
type DSNFunc func(endpoint string) (string, error)

// Driver is a driver.Driver backed by a registered database/sql driver.
type Driver struct {
	kind       driver.Kind
	driverName string
	dsn        DSNFunc
}

// New returns a Driver for the database/sql driver registered as driverName.
func New(kind driver.Kind, driverName string, dsn DSNFunc) *Driver {
	return &Driver{kind: kind, driverName: driverName, dsn: dsn}
}

// Kind implements driver.Driver.
func (d *Driver) Kind() driver.Kind { return d.kind }

// Connect opens and pings a single-connection *sql.DB.
func (d *Driver) Connect(ctx context.Context, endpoint string) (driver.Handle, error) {
	dsn, err := d.dsn(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to build DSN")
	}

	db, err := sql.Open(d.driverName, dsn)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to open database connection")
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close() // Ignore close error when connection already failed
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "database ping failed")
	}
	return db, nil
}

// Validate pings the database.
func (d *Driver) Validate(ctx context.Context, h driver.Handle) error {
	db, err := handle(h)
	if err != nil {
		return err
	}
	return db.PingContext(ctx)
}

// Execute runs a row-returning statement with QueryContext and anything else
// with ExecContext.
func (d *Driver) Execute(ctx context.Context, h driver.Handle, query string, params ...interface{}) (driver.Result, error) {
	db, err := handle(h)
	if err != nil {
		return nil, err
	}

	if !ReturnsRows(query) {
		res, err := db.ExecContext(ctx, query, params...)
		if err != nil {
			return nil, err
		}
		affected, _ := res.RowsAffected()
		return &driver.Rows{RowsAffected: affected}, nil
	}

	rows, err := db.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return ScanRows(rows)
}

// Close closes the *sql.DB.
func (d *Driver) Close(_ context.Context, h driver.Handle) error {
	db, err := handle(h)
	if err != nil {
		return err
	}
	return db.Close()
}

// ScanRows drains rows into a driver.Rows. Byte slices are returned as strings.
func ScanRows(rows *sql.Rows) (*driver.Rows, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := &driver.Rows{Columns: columns}
	values := make([]interface{}, len(columns))
	ptrs := make([]interface{}, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out.Rows = append(out.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out.RowsAffected = int64(len(out.Rows))
	return out, nil
}

var rowKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "SHOW": true, "DESCRIBE": true,
	"DESC": true, "EXPLAIN": true, "VALUES": true, "TABLE": true,
}

// ReturnsRows reports whether the statement's leading keyword produces a
// result set.
func ReturnsRows(query string) bool {
	q := strings.TrimLeft(query, " \t\r\n(")
	end := strings.IndexAny(q, " \t\r\n(;")
	if end == -1 {
		end = len(q)
	}
	return rowKeywords[strings.ToUpper(q[:end])]
}

func handle(h driver.Handle) (*sql.DB, error) {
	db, ok := h.(*sql.DB)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInternal, "sqldb: unexpected handle %T", h)
	}
	return db, nil
}

var _ driver.Driver = (*Driver)(nil)
