// Package drivertest provides a scriptable in-memory driver for testing
// pools and registries without a real backend.
package drivertest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
)

// Conn is the handle produced by Driver.
type Conn struct {
	ID       int64
	Endpoint string

	dead   atomic.Bool
	closed atomic.Bool
}

// Kill makes every later Validate and Execute on c fail.
func (c *Conn) Kill() { c.dead.Store(true) }

// Dead reports whether Kill was called.
func (c *Conn) Dead() bool { return c.dead.Load() }

// Closed reports whether the driver closed c.
func (c *Conn) Closed() bool { return c.closed.Load() }

// ErrDead is returned by operations on a killed connection.
var ErrDead = fmt.Errorf("drivertest: connection is dead")

// ExecFunc scripts the outcome of Execute.
type ExecFunc func(ctx context.Context, c *Conn, query string, params []interface{}) (driver.Result, error)

// Driver is a fake backend. The zero value is not usable; call New.
type Driver struct {
	kind driver.Kind

	mu          sync.Mutex
	connectErr  error
	validateErr error
	exec        ExecFunc
	connectWait time.Duration
	conns       []*Conn

	nextID   atomic.Int64
	connects atomic.Int64
	failed   atomic.Int64
	probes   atomic.Int64
	execs    atomic.Int64
	closes   atomic.Int64
}

// New returns a Driver serving driver.KindMemory.
func New() *Driver {
	return NewKind(driver.KindMemory)
}

// NewKind returns a Driver that claims to serve kind.
func NewKind(kind driver.Kind) *Driver {
	return &Driver{kind: kind}
}

// FailConnect makes Connect return err until called again with nil.
func (d *Driver) FailConnect(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectErr = err
}

// FailValidate makes Validate return err for every handle until reset.
func (d *Driver) FailValidate(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.validateErr = err
}

// SetExec scripts Execute. A nil f restores the default echo behaviour.
func (d *Driver) SetExec(f ExecFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.exec = f
}

// SetConnectDelay makes Connect block for delay (or until ctx is done).
func (d *Driver) SetConnectDelay(delay time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectWait = delay
}

// Kind implements driver.Driver.
func (d *Driver) Kind() driver.Kind { return d.kind }

// Connect implements driver.Driver.
func (d *Driver) Connect(ctx context.Context, endpoint string) (driver.Handle, error) {
	d.mu.Lock()
	err, wait := d.connectErr, d.connectWait
	d.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			d.failed.Add(1)
			return nil, ctx.Err()
		case <-t.C:
		}
	}

	if err != nil {
		d.failed.Add(1)
		return nil, err
	}

	c := &Conn{ID: d.nextID.Add(1), Endpoint: endpoint}
	d.connects.Add(1)

	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

// Validate implements driver.Driver.
func (d *Driver) Validate(ctx context.Context, h driver.Handle) error {
	d.probes.Add(1)
	if err := ctx.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	err := d.validateErr
	d.mu.Unlock()
	if err != nil {
		return err
	}

	c := h.(*Conn)
	if c.Dead() || c.Closed() {
		return ErrDead
	}
	return nil
}

// Execute implements driver.Driver.
func (d *Driver) Execute(ctx context.Context, h driver.Handle, query string, params ...interface{}) (driver.Result, error) {
	d.execs.Add(1)

	c := h.(*Conn)
	if c.Dead() {
		return nil, ErrDead
	}

	d.mu.Lock()
	f := d.exec
	d.mu.Unlock()
	if f != nil {
		return f(ctx, c, query, params)
	}
	return query, nil
}

// Close implements driver.Driver.
func (d *Driver) Close(_ context.Context, h driver.Handle) error {
	d.closes.Add(1)
	h.(*Conn).closed.Store(true)
	return nil
}

// Connects returns the number of successful Connect calls.
func (d *Driver) Connects() int64 { return d.connects.Load() }

// FailedConnects returns the number of failed Connect calls.
func (d *Driver) FailedConnects() int64 { return d.failed.Load() }

// Probes returns the number of Validate calls.
func (d *Driver) Probes() int64 { return d.probes.Load() }

// Executions returns the number of Execute calls.
func (d *Driver) Executions() int64 { return d.execs.Load() }

// Closes returns the number of Close calls.
func (d *Driver) Closes() int64 { return d.closes.Load() }

// Conns returns every handle the driver has opened, in creation order.
func (d *Driver) Conns() []*Conn {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Conn, len(d.conns))
	copy(out, d.conns)
	return out
}

// Open returns the handles that have not been closed.
func (d *Driver) Open() []*Conn {
	var open []*Conn
	for _, c := range d.Conns() {
		if !c.Closed() {
			open = append(open, c)
		}
	}
	return open
}

var _ driver.Driver = (*Driver)(nil)
