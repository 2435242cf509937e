package notifx

import "time"

// poolOptions configures account health tracking.
type poolOptions struct {
	failureThreshold int
	recoveryAfter    time.Duration
	window           time.Duration
	now              func() time.Time
}

// PoolOption is a functional option for NewAccountPool.
type PoolOption func(*poolOptions)

// WithFailureThreshold sets how many consecutive failures mark an account
// unhealthy.
func WithFailureThreshold(n int) PoolOption {
	return func(o *poolOptions) {
		if n > 0 {
			o.failureThreshold = n
		}
	}
}

// WithRecoveryAfter sets how long an unhealthy account rests before it is
// tried again.
func WithRecoveryAfter(d time.Duration) PoolOption {
	return func(o *poolOptions) {
		if d > 0 {
			o.recoveryAfter = d
		}
	}
}

// WithClock overrides the time source. Tests only.
func WithClock(now func() time.Time) PoolOption {
	return func(o *poolOptions) {
		o.now = now
	}
}

func applyPoolOptions(opts []PoolOption) poolOptions {
	o := poolOptions{
		failureThreshold: 3,
		recoveryAfter:    time.Hour,
		window:           time.Hour,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
