// Package redis implements the Redis driver on top of go-redis. Each pooled
// connection is a *redis.Client restricted to a single socket, and queries
// are raw commands: Execute(ctx, h, "HGET", "user:1", "name").
package redis

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
)

func init() {
	driver.Default().MustRegister(New())
}

// Driver opens one single-socket client per pooled connection.
type Driver struct{}

// New returns a Redis driver
func New() *Driver { return &Driver{} }

// Kind implements driver.Driver.
func (d *Driver) Kind() driver.Kind { return driver.KindRedis }

// Options parses a redis:// or rediss:// endpoint into client options sized
// for a single pooled connection.
func Options(endpoint string) (*goredis.Options, error) {
	opts, err := goredis.ParseURL(endpoint)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse redis url")
	}
	opts.PoolSize = 1
	opts.MinIdleConns = 0
	return opts, nil
}

// Connect opens a client and pings it.
func (d *Driver) Connect(ctx context.Context, endpoint string) (driver.Handle, error) {
	opts, err := Options(endpoint)
	if err != nil {
		return nil, err
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "redis ping failed")
	}
	return client, nil
}

// Validate pings the server.
func (d *Driver) Validate(ctx context.Context, h driver.Handle) error {
	c, err := handle(h)
	if err != nil {
		return err
	}
	return c.Ping(ctx).Err()
}

// Execute sends query, split on whitespace, followed by params as one
// command. A nil reply is reported as a nil Result rather than an error.
func (d *Driver) Execute(ctx context.Context, h driver.Handle, query string, params ...interface{}) (driver.Result, error) {
	c, err := handle(h)
	if err != nil {
		return nil, err
	}

	args := CommandArgs(query, params...)
	if len(args) == 0 {
		return nil, errors.New(errors.ErrorTypeValidation, "empty redis command")
	}

	res, err := c.Do(ctx, args...).Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Close closes the client.
func (d *Driver) Close(_ context.Context, h driver.Handle) error {
	c, err := handle(h)
	if err != nil {
		return err
	}
	return c.Close()
}

// CommandArgs turns "SET key" plus params into the argument list for Do.
func CommandArgs(query string, params ...interface{}) []interface{} {
	fields := strings.Fields(query)
	args := make([]interface{}, 0, len(fields)+len(params))
	for _, f := range fields {
		args = append(args, f)
	}
	return append(args, params...)
}

func handle(h driver.Handle) (*goredis.Client, error) {
	c, ok := h.(*goredis.Client)
	if !ok {
		return nil, errors.New(errors.ErrorTypeInternal, fmt.Sprintf("redis: unexpected handle %T", h))
	}
	return c, nil
}

var _ driver.Driver = (*Driver)(nil)
