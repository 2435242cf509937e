package asyncx

import (
	"context"
	"sync"
	"time"
)

// Result holds the outcome of a single settled operation.
type Result[T any] struct {
	Value T
	Err   error

	// Skipped is set when the operation never ran because ctx was done
	// before a worker reached it.
	Skipped bool
}

// OK reports whether the operation ran and returned no error.
func (r Result[T]) OK() bool { return !r.Skipped && r.Err == nil }

// PoolSettled processes items with at most workers goroutines and returns one
// Result per item in input order. A failing item never stops the others.
// Once ctx is done, items not yet started are marked Skipped and fn is not
// called for them; items already running finish normally.
func PoolSettled[T any, R any](
	ctx context.Context,
	workers int,
	items []T,
	fn func(context.Context, T) (R, error),
) []Result[R] {
	if workers <= 0 {
		workers = 1
	}
	if workers > len(items) {
		workers = len(items)
	}

	results := make([]Result[R], len(items))
	work := make(chan int, len(items))
	for i := range items {
		work <- i
	}
	close(work)

	var wg sync.WaitGroup
	wg.Add(workers)
	for range workers {
		go func() {
			defer wg.Done()
			for i := range work {
				if err := ctx.Err(); err != nil {
					results[i] = Result[R]{Err: err, Skipped: true}
					continue
				}
				v, err := fn(ctx, items[i])
				results[i] = Result[R]{Value: v, Err: err}
			}
		}()
	}
	wg.Wait()

	return results
}

// WithTimeout runs fn with a deadline of d. If fn has not returned when the
// deadline passes, WithTimeout returns context.DeadlineExceeded immediately;
// fn keeps its (cancelled) context and its result is discarded.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type res struct {
		v   T
		err error
	}

	ch := make(chan res, 1)
	go func() {
		v, err := fn(ctx)
		ch <- res{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// RetryWithBackoff calls fn up to attempts times, doubling the delay after
// each failure. It stops early when ctx is done.
func RetryWithBackoff[T any](
	ctx context.Context,
	attempts int,
	initialDelay time.Duration,
	fn func(context.Context) (T, error),
) (T, error) {
	var (
		zero  T
		err   error
		val   T
		delay = initialDelay
	)
	for i := range attempts {
		if cerr := ctx.Err(); cerr != nil {
			return zero, cerr
		}

		val, err = fn(ctx)
		if err == nil {
			return val, nil
		}

		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(delay):
				delay *= 2
			}
		}
	}
	return zero, err
}
