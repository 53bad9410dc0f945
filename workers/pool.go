package workers

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/gigapi/gigapi-chat/metrics"
)

// Pool bounds the number of concurrent engine calls. Waiting for a slot
// honors the caller's context; once a call holds a slot it runs to completion
// on a context detached from the caller's cancellation.
type Pool struct {
	sem     *semaphore.Weighted
	size    int
	metrics *metrics.Metrics
}

func New(size int, m *metrics.Metrics) *Pool {
	if size < 1 {
		size = 1
	}
	if m == nil {
		m = metrics.New(nil)
	}
	return &Pool{
		sem:     semaphore.NewWeighted(int64(size)),
		size:    size,
		metrics: m,
	}
}

// Size returns the number of slots
func (p *Pool) Size() int {
	return p.size
}

// Do runs fn in a slot. op labels the duration metric.
func (p *Pool) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("waiting for engine worker: %w", err)
	}
	defer p.sem.Release(1)

	p.metrics.WorkersInFlight.Inc()
	defer p.metrics.WorkersInFlight.Dec()

	start := time.Now()
	defer func() {
		p.metrics.EngineDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()
	return fn(context.WithoutCancel(ctx))
}

// Run is Do for calls returning a value
func Run[T any](ctx context.Context, p *Pool, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var res T
	err := p.Do(ctx, op, func(ctx context.Context) error {
		var err error
		res, err = fn(ctx)
		return err
	})
	return res, err
}
