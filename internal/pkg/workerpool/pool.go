// Package workerpool runs bounded fan-out work on an ants goroutine pool.
package workerpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
)

var ErrPoolClosed = errors.New("worker pool is closed")

type Pool struct {
	name string
	pool *ants.Pool
}

func New(name string, size int, logger *zap.Logger) (*Pool, error) {
	if size < 1 {
		size = 1
	}
	p, err := ants.NewPool(size,
		ants.WithExpiryDuration(time.Minute),
		ants.WithPanicHandler(func(v any) {
			logger.Error("worker panic recovered", zap.String("pool", name), zap.Any("panic", v))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("create worker pool %s: %w", name, err)
	}
	return &Pool{name: name, pool: p}, nil
}

func (p *Pool) Cap() int {
	return p.pool.Cap()
}

// Run calls fn for every index in [0, n) on the pool and waits for all of
// them. The returned slice holds fn's error for each index. Tasks not yet
// started when ctx is done get ctx's error.
func (p *Pool) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		if p.pool.IsClosed() {
			errs[i] = ErrPoolClosed
			continue
		}

		wg.Add(1)
		err := p.pool.Submit(func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[i] = fmt.Errorf("task %d panicked: %v", i, r)
				}
			}()
			if err := ctx.Err(); err != nil {
				errs[i] = err
				return
			}
			errs[i] = fn(ctx, i)
		})
		if err != nil {
			wg.Done()
			if errors.Is(err, ants.ErrPoolClosed) {
				err = ErrPoolClosed
			}
			errs[i] = err
		}
	}

	wg.Wait()
	return errs
}

// Release stops the pool, waiting up to timeout for running tasks.
func (p *Pool) Release(timeout time.Duration) error {
	return p.pool.ReleaseTimeout(timeout)
}
