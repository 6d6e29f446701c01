// Package workpool runs independent units of a pipeline stage on a bounded
// goroutine pool.
package workpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

// ErrPanic wraps a panic recovered from a unit.
var ErrPanic = errors.New("unit panicked")

// DefaultSize is used when no size is configured.
const DefaultSize = 8

// Pool is a bounded worker pool backed by ants.
type Pool struct {
	pool   *ants.Pool
	logger *zap.Logger
}

// New creates a pool with size workers.
func New(size int, logger *zap.Logger) (*Pool, error) {
	if size <= 0 {
		size = DefaultSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p, err := ants.NewPool(size,
		ants.WithExpiryDuration(30*time.Second),
		ants.WithNonblocking(false),
		ants.WithPanicHandler(func(v any) {
			logger.Error("worker panic escaped unit handler", zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create ants pool: %w", err)
	}
	return &Pool{pool: p, logger: logger}, nil
}

// Cap returns the worker limit.
func (p *Pool) Cap() int { return p.pool.Cap() }

// Running returns the number of busy workers.
func (p *Pool) Running() int { return p.pool.Running() }

// Each runs fn for every i in [0, n) and waits for all of them. The returned
// slice has one slot per unit. Units that had not started when ctx was done
// report ctx.Err() without running; a panicking unit reports ErrPanic.
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			for j := i; j < n; j++ {
				errs[j] = err
			}
			break
		}

		wg.Add(1)
		idx := i
		task := func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					p.logger.Error("unit panicked", zap.Int("unit", idx), zap.Any("panic", r))
					errs[idx] = fmt.Errorf("%w: %v", ErrPanic, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				errs[idx] = err
				return
			}
			errs[idx] = fn(ctx, idx)
		}
		if err := p.pool.Submit(task); err != nil {
			wg.Done()
			errs[idx] = fmt.Errorf("submit unit %d: %w", idx, err)
		}
	}

	wg.Wait()
	return errs
}

// Release stops the pool, waiting up to timeout for running units.
func (p *Pool) Release(timeout time.Duration) error {
	if err := p.pool.ReleaseTimeout(timeout); err != nil {
		return fmt.Errorf("release pool: %w", err)
	}
	return nil
}
