package smbcore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy configures the exponential backoff the Request Broker applies
// when an operation fails with a retryable error (a transport hiccup or
// failed connect, per isRetryable) — never for errors the taxonomy marks
// permanent (NotFound, InvalidName, and the like).
type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

var defaultRetryPolicy = RetryPolicy{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

func (p RetryPolicy) backoffFor(ctx context.Context) backoff.BackOffContext {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialDelay
	b.MaxInterval = p.MaxDelay
	b.Multiplier = p.Multiplier
	b.MaxElapsedTime = 0 // bounded by MaxAttempts via WithMaxRetries instead
	attempts := p.MaxAttempts - 1
	if attempts < 0 {
		attempts = 0
	}
	withRetries := backoff.WithMaxRetries(b, uint64(attempts))
	return backoff.WithContext(withRetries, ctx)
}

// withRetry runs operation under policy, retrying only errors isRetryable
// accepts and logging each retried attempt through logger when non-nil —
// grounds the teacher's retry logging in a maintained backoff
// implementation instead of its hand-rolled loop.
func withRetry(ctx context.Context, policy RetryPolicy, logger Logger, op string, operation func() error) error {
	if policy.MaxAttempts <= 1 {
		return operation()
	}

	attempt := 0
	return backoff.Retry(func() error {
		attempt++
		err := operation()
		if err == nil {
			return nil
		}
		if !isRetryable(err) {
			return backoff.Permanent(err)
		}
		if logger != nil {
			logger.Printf("smbcore: %s failed (attempt %d/%d), retrying: %v", op, attempt, policy.MaxAttempts, err)
		}
		return err
	}, policy.backoffFor(ctx))
}
