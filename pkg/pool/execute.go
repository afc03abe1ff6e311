package pool

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ajitpratap0/poolkeeper/pkg/driver"
	"github.com/ajitpratap0/poolkeeper/pkg/errors"
	"github.com/ajitpratap0/poolkeeper/pkg/metrics"
)

// ExecuteQuery runs query on a pooled connection, retrying up to
// RetryAttempts times in total. Every attempt acquires its own connection
// and releases it afterwards; attempt n is followed by a RetryDelay*n pause.
// The error of the final attempt is returned wrapped in a query error.
// Shutdown and ctx cancellation end the loop immediately.
func (p *Pool) ExecuteQuery(ctx context.Context, query string, params ...interface{}) (driver.Result, error) {
	ctx, span := p.tracer.Start(ctx, "pool.execute_query",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("pool.endpoint", p.redacted),
			attribute.String("pool.backend", string(p.kind)),
		))
	defer span.End()

	for attempt := 1; attempt <= p.config.RetryAttempts; attempt++ {
		if attempt > 1 {
			p.metrics.QueryRetried()
		}
		span.SetAttributes(attribute.Int("pool.attempts", attempt))

		result, err := p.attempt(ctx, query, params)
		if err == nil {
			span.SetStatus(codes.Ok, "")
			return result, nil
		}
		span.RecordError(err)

		if errors.Is(err, errors.ErrShutdown) {
			span.SetStatus(codes.Error, "pool shut down")
			return nil, err
		}
		if ctx.Err() != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query canceled")
		}

		if attempt == p.config.RetryAttempts {
			span.SetStatus(codes.Error, err.Error())
			p.logger.Warn("query failed, retries exhausted",
				zap.Int("attempts", attempt), zap.Error(err))
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query failed").
				WithDetail("attempts", attempt)
		}

		backoff := p.config.BackoffFor(attempt)
		p.logger.Warn("query attempt failed, retrying",
			zap.Int("attempt", attempt),
			zap.Duration("backoff", backoff),
			zap.Error(err))

		if err := sleep(ctx, backoff); err != nil {
			span.SetStatus(codes.Error, "canceled")
			return nil, errors.Wrap(err, errors.ErrorTypeQuery, "query canceled during backoff")
		}
	}

	span.SetStatus(codes.Error, "retries exhausted")
	return nil, errors.Newf(errors.ErrorTypeQuery, "exhausted %d query attempts", p.config.RetryAttempts)
}

// attempt runs query once. The connection is always released; after a
// failure it is probed first so that a broken connection is evicted rather
// than handed to the next caller.
func (p *Pool) attempt(ctx context.Context, query string, params []interface{}) (driver.Result, error) {
	c, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(c)

	timer := metrics.NewTimer("query")
	result, err := p.driver.Execute(ctx, c.handle, query, params...)
	elapsed := timer.Stop()

	p.recordQuery(c, elapsed, err)

	if err != nil {
		// the caller's ctx may be the reason the query failed
		probeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), probeTimeout)
		p.ValidateConnection(probeCtx, c)
		cancel()
		return nil, err
	}
	return result, nil
}

func (p *Pool) recordQuery(c *Conn, elapsed time.Duration, err error) {
	slow := elapsed > p.config.MaxQueryTime

	p.mu.Lock()
	p.counters.queries++
	if err != nil {
		p.counters.failedQueries++
	}
	if slow {
		p.counters.slowQueries++
	}
	p.mu.Unlock()

	p.metrics.ObserveQuery(elapsed, err == nil)
	if slow {
		p.metrics.SlowQuery()
		p.logger.Warn("slow query",
			zap.Int64("connection_id", c.id),
			zap.Duration("duration", elapsed),
			zap.Duration("max_query_time", p.config.MaxQueryTime))
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
