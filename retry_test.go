package smbcore

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWithRetrySuccess(t *testing.T) {
	callCount := 0
	err := withRetry(context.Background(), defaultRetryPolicy, nil, "stat", func() error {
		callCount++
		return nil
	})
	if err != nil {
		t.Errorf("withRetry() error = %v, want nil", err)
	}
	if callCount != 1 {
		t.Errorf("operation called %d times, want 1", callCount)
	}
}

func TestWithRetrySucceedsAfterRetryableFailures(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	callCount := 0
	err := withRetry(context.Background(), policy, nil, "stat", func() error {
		callCount++
		if callCount < 3 {
			return ioError("stat", "/a", errors.New("transient"))
		}
		return nil
	})
	if err != nil {
		t.Errorf("withRetry() error = %v, want nil", err)
	}
	if callCount != 3 {
		t.Errorf("operation called %d times, want 3", callCount)
	}
}

func TestWithRetryStopsOnNonRetryableError(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	permanent := notFoundError("stat", "entry", "/a")
	callCount := 0

	err := withRetry(context.Background(), policy, nil, "stat", func() error {
		callCount++
		return permanent
	})

	if !errors.Is(err, permanent) {
		t.Errorf("withRetry() error = %v, want %v", err, permanent)
	}
	if callCount != 1 {
		t.Errorf("operation called %d times, want 1 (non-retryable should not retry)", callCount)
	}
}

func TestWithRetryExhaustsMaxAttempts(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Multiplier: 2}
	callCount := 0

	err := withRetry(context.Background(), policy, nil, "stat", func() error {
		callCount++
		return ioError("stat", "/a", errors.New("always fails"))
	})

	if err == nil {
		t.Error("withRetry() error = nil, want error")
	}
	if callCount != 3 {
		t.Errorf("operation called %d times, want 3", callCount)
	}
}

func TestWithRetryContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 5, InitialDelay: 50 * time.Millisecond, MaxDelay: 200 * time.Millisecond, Multiplier: 2}
	ctx, cancel := context.WithCancel(context.Background())

	callCount := 0
	errCh := make(chan error, 1)
	go func() {
		errCh <- withRetry(ctx, policy, nil, "stat", func() error {
			callCount++
			if callCount == 1 {
				cancel()
			}
			return ioError("stat", "/a", errors.New("transient"))
		})
	}()

	err := <-errCh
	if err == nil {
		t.Error("withRetry() error = nil, want error after cancellation")
	}
	if callCount < 1 {
		t.Errorf("operation called %d times, want at least 1", callCount)
	}
}

func TestWithRetrySingleAttemptPolicyNeverRetries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 1}
	callCount := 0
	err := withRetry(context.Background(), policy, nil, "stat", func() error {
		callCount++
		return ioError("stat", "/a", errors.New("fails"))
	})
	if err == nil {
		t.Error("withRetry() error = nil, want error")
	}
	if callCount != 1 {
		t.Errorf("operation called %d times, want 1", callCount)
	}
}
