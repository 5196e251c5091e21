package chain

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	qerr "github.com/quillwallet/quill/pkg/errors"
)

// ErrRetryable marks an error as transient; operations failing with it
// are eligible for retry.
var ErrRetryable = &qerr.WalletError{
	Code:    "RETRYABLE_ERROR",
	Message: "retryable error",
}

// RetryConfig configures retry behavior.
type RetryConfig struct {
	MaxAttempts int           // Maximum number of attempts (including initial)
	BaseDelay   time.Duration // Initial delay between retries
	MaxDelay    time.Duration // Maximum delay between retries
}

// DefaultRetryConfig returns the default retry configuration.
// 4 attempts total (1 initial + 3 retries) with delays: 1s, 2s, 4s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		MaxDelay:    4 * time.Second,
	}
}

// RetryWithConfig executes the operation with the specified retry
// configuration. Non-retryable errors return immediately.
func RetryWithConfig[T any](ctx context.Context, cfg RetryConfig, operation func() (T, error)) (T, error) {
	var result T
	var err error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err = operation()
		if err == nil {
			return result, nil
		}

		if !IsRetryable(err) {
			return result, err
		}

		if attempt < cfg.MaxAttempts-1 {
			delay := backoffDelay(attempt, cfg.BaseDelay, cfg.MaxDelay)

			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return result, ctx.Err()
			case <-timer.C:
			}
		}
	}

	return result, err
}

// IsRetryable reports whether an error is transient. Network errors and
// errors explicitly marked retryable qualify; typed validation, costing,
// and derivation failures never do.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrRetryable) || errors.Is(err, qerr.ErrNetworkError)
}

// backoffDelay computes an exponential delay with up to 10% jitter,
// capped at maxDelay.
func backoffDelay(attempt int, base, maxDelay time.Duration) time.Duration {
	delay := base << attempt
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}

	jitter := time.Duration(rand.Int64N(int64(delay)/10 + 1))
	return delay + jitter
}
