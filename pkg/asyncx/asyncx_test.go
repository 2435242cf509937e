package asyncx_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Abraxas-365/mailroom/pkg/asyncx"
)

func TestPoolSettledKeepsOrderAndIsolatesFailures(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}
	results := asyncx.PoolSettled(context.Background(), 2, items, func(_ context.Context, n int) (int, error) {
		if n == 3 {
			return 0, errors.New("three")
		}
		return n * 10, nil
	})

	if len(results) != len(items) {
		t.Fatalf("expected %d results, got %d", len(items), len(results))
	}
	for i, r := range results {
		if items[i] == 3 {
			if r.OK() || r.Err == nil {
				t.Fatalf("expected failure for item 3, got %+v", r)
			}
			continue
		}
		if !r.OK() || r.Value != items[i]*10 {
			t.Fatalf("item %d: unexpected result %+v", items[i], r)
		}
	}
}

func TestPoolSettledSkipsAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls atomic.Int32

	results := asyncx.PoolSettled(ctx, 1, []int{1, 2, 3}, func(_ context.Context, n int) (int, error) {
		calls.Add(1)
		cancel()
		return n, nil
	})

	if calls.Load() != 1 {
		t.Fatalf("expected exactly one call, got %d", calls.Load())
	}
	if !results[0].OK() {
		t.Fatalf("first item should have completed: %+v", results[0])
	}
	for _, r := range results[1:] {
		if !r.Skipped {
			t.Fatalf("expected skipped result, got %+v", r)
		}
	}
}

func TestPoolSettledEmpty(t *testing.T) {
	results := asyncx.PoolSettled(context.Background(), 4, []int{}, func(_ context.Context, n int) (int, error) {
		return n, nil
	})
	if len(results) != 0 {
		t.Fatalf("expected no results, got %d", len(results))
	}
}

func TestWithTimeout(t *testing.T) {
	_, err := asyncx.WithTimeout(context.Background(), 20*time.Millisecond, func(ctx context.Context) (int, error) {
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		return 1, nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	v, err := asyncx.WithTimeout(context.Background(), time.Second, func(context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("expected 7, got %d (%v)", v, err)
	}
}

func TestRetryWithBackoff(t *testing.T) {
	var calls int
	v, err := asyncx.RetryWithBackoff(context.Background(), 3, time.Millisecond, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("not yet")
		}
		return "ok", nil
	})
	if err != nil || v != "ok" || calls != 3 {
		t.Fatalf("unexpected: v=%q err=%v calls=%d", v, err, calls)
	}
}
