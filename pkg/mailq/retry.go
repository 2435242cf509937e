package mailq

import (
	"time"

	"github.com/Abraxas-365/mailroom/pkg/errx"
)

// RetryDecision tells the processor what to do with a failed attempt.
type RetryDecision struct {
	Retry         bool
	NextAttemptAt time.Time
}

// RetryPolicy decides, given the attempt count including the attempt that
// just failed, whether a message goes back to pending.
type RetryPolicy interface {
	Decide(attempts int, now time.Time) RetryDecision
}

// ManualPolicy never retries. Failed messages wait for ResetFailed.
type ManualPolicy struct{}

func (ManualPolicy) Decide(_ int, now time.Time) RetryDecision {
	return RetryDecision{Retry: false, NextAttemptAt: now}
}

// BackoffPolicy retries with exponential delay until MaxAttempts is reached.
type BackoffPolicy struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

// Delay returns min(Base * 2^(attempts-1), Cap).
func (p BackoffPolicy) Delay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := p.Base
	for i := 1; i < attempts; i++ {
		d *= 2
		if p.Cap > 0 && d >= p.Cap {
			return p.Cap
		}
	}
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}

func (p BackoffPolicy) Decide(attempts int, now time.Time) RetryDecision {
	if attempts >= p.MaxAttempts {
		return RetryDecision{Retry: false, NextAttemptAt: now}
	}
	return RetryDecision{Retry: true, NextAttemptAt: now.Add(p.Delay(attempts))}
}

// NewRetryPolicy builds the policy named by MAILQ_RETRY_POLICY.
func NewRetryPolicy(name string, base, maxDelay time.Duration, maxAttempts int) (RetryPolicy, error) {
	switch name {
	case "", "manual":
		return ManualPolicy{}, nil
	case "backoff":
		if base <= 0 || maxAttempts < 1 {
			return nil, errx.Validation("backoff policy needs a positive base and max attempts").
				WithDetail("base", base.String()).
				WithDetail("max_attempts", maxAttempts)
		}
		return BackoffPolicy{Base: base, Cap: maxDelay, MaxAttempts: maxAttempts}, nil
	default:
		return nil, errx.Validation("unknown retry policy").WithDetail("policy", name)
	}
}
