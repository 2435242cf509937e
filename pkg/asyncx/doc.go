// Package asyncx provides the small set of concurrency helpers the service
// layers share: bounded fan-out that always settles, deadline-bounded calls,
// and retry with exponential backoff. All helpers take a context.Context.
//
// # Bounded fan-out
//
// [PoolSettled] runs a function over a slice with a fixed number of workers
// and returns one [Result] per item in input order. A failing item never
// cancels its siblings, which makes it a fit for batch work where every item
// is an independent unit (one email per item, for example):
//
//	results := asyncx.PoolSettled(ctx, 5, messages, func(ctx context.Context, m *mailq.Message) (bool, error) {
//	    return p.deliver(ctx, m)
//	})
//
// When ctx is cancelled, items that no worker has started are returned with
// Skipped set so the caller can hand them back untouched.
//
// # Deadlines
//
// [WithTimeout] bounds a call that may block on the network. The returned
// error is context.DeadlineExceeded when the deadline wins.
//
//	id, err := asyncx.WithTimeout(ctx, 30*time.Second, func(ctx context.Context) (string, error) {
//	    return provider.Send(ctx, msg)
//	})
//
// # Retries
//
// [RetryWithBackoff] retries a call with doubling delays, giving up early when
// the context is done. Startup connections use it while dependencies come up.
package asyncx
