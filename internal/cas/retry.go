package cas

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy bounds the exponential backoff applied to storage failures.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryPolicy is used when the configuration leaves retry unset.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    4,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// exponential returns an unjittered backoff that doubles from
// InitialBackoff up to MaxBackoff and never gives up on its own.
func (p RetryPolicy) exponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialBackoff
	b.MaxInterval = p.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retry runs fn until it succeeds, fails with a non-storage error, or the
// attempts are used up. The last error is returned unchanged.
func retry(ctx context.Context, p RetryPolicy, op string, logger Logger, metrics Metrics, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)
	b := backoff.WithContext(backoff.WithMaxRetries(p.exponential(), uint64(attempts-1)), ctx)

	attempt := 0
	return backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !IsRetryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, wait time.Duration) {
		logger.Warn("storage operation failed, retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		metrics.RetryAttempted(op)
	})
}
