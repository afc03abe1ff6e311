// Package postgres implements the PostgreSQL driver on top of pgx.
package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

func init() {
	driver.Default().MustRegister(New())
}

// Driver opens one *pgx.Conn per pooled connection.
type Driver struct{}

// New returns a PostgreSQL driver
func New() *Driver { return &Driver{} }

// Kind implements driver.Driver.
func (d *Driver) Kind() driver.Kind { return driver.KindPostgres }

// Connect parses the endpoint as a libpq URL and dials it.
func (d *Driver) Connect(ctx context.Context, endpoint string) (driver.Handle, error) {
	cfg, err := pgx.ParseConfig(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse connection string")
	}

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to connect to postgres")
	}
	return conn, nil
}

// Validate pings the server.
func (d *Driver) Validate(ctx context.Context, h driver.Handle) error {
	conn, err := handle(h)
	if err != nil {
		return err
	}
	if conn.IsClosed() {
		return errors.New(errors.ErrorTypeHealth, "connection is closed")
	}
	return conn.Ping(ctx)
}

// Execute runs query and collects every returned row as a column map.
func (d *Driver) Execute(ctx context.Context, h driver.Handle, query string, params ...interface{}) (driver.Result, error) {
	conn, err := handle(h)
	if err != nil {
		return nil, err
	}

	rows, err := conn.Query(ctx, query, params...)
	if err != nil {
		return nil, err
	}

	fields := rows.FieldDescriptions()
	columns := make([]string, len(fields))
	for i, f := range fields {
		columns[i] = f.Name
	}

	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}

	return &driver.Rows{
		Columns:      columns,
		Rows:         maps,
		RowsAffected: rows.CommandTag().RowsAffected(),
	}, nil
}

// Close terminates the connection.
func (d *Driver) Close(ctx context.Context, h driver.Handle) error {
	conn, err := handle(h)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

func handle(h driver.Handle) (*pgx.Conn, error) {
	conn, ok := h.(*pgx.Conn)
	if !ok {
		return nil, errors.Newf(errors.ErrorTypeInternal, "postgres: unexpected handle %T", h)
	}
	return conn, nil
}

var _ driver.Driver = (*Driver)(nil)
