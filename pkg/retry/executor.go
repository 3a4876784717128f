package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	pipeerrors "github.com/spawn-mcp/adshipper/pkg/errors"
)

// Strategy defines retry strategy interface
type Strategy interface {
	NextDelay(attempt int) time.Duration
	ShouldRetry(attempt int, err error) bool
}

// Policy is the retry policy shared by every retrying collaborator.
type Policy struct {
	MaxAttempts int
	Strategy    Strategy
	OnRetry     func(attempt int, err error, delay time.Duration)

	// sleep is swapped in tests to avoid real waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// ExponentialBackoff waits BaseDelay × 2^(attempt−1) between attempts.
type ExponentialBackoff struct {
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	IsRetryable func(error) bool
}

// NextDelay calculates next delay for exponential backoff. attempt is 1-based.
func (e *ExponentialBackoff) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(e.BaseDelay) * math.Pow(2, float64(attempt-1))
	if e.MaxDelay > 0 && delay > float64(e.MaxDelay) {
		return e.MaxDelay
	}
	return time.Duration(delay)
}

// ShouldRetry determines if retry should continue
func (e *ExponentialBackoff) ShouldRetry(attempt int, err error) bool {
	if e.IsRetryable != nil {
		return e.IsRetryable(err)
	}
	return pipeerrors.IsRetryable(err)
}

// NewPolicy builds the standard exponential policy: maxAttempts total
// attempts, classified by pipeerrors.IsRetryable.
func NewPolicy(maxAttempts int, baseDelay time.Duration) Policy {
	return Policy{
		MaxAttempts: maxAttempts,
		Strategy: &ExponentialBackoff{
			BaseDelay: baseDelay,
			MaxDelay:  time.Minute,
		},
	}
}

// ExecuteWithRetry executes operation with retry logic
func ExecuteWithRetry[T any](ctx context.Context, policy Policy, operation func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	if policy.Strategy == nil {
		policy.Strategy = &ExponentialBackoff{BaseDelay: time.Second}
	}
	sleep := policy.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := operation(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !policy.Strategy.ShouldRetry(attempt, err) {
			return zero, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		delay := policy.Strategy.NextDelay(attempt)
		if policy.OnRetry != nil {
			policy.OnRetry(attempt, err, delay)
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, fmt.Errorf("retry cancelled: %w", err)
		}
	}

	return zero, fmt.Errorf("max retries (%d) exceeded: %w", policy.MaxAttempts, lastErr)
}

// Do is ExecuteWithRetry for operations without a result.
func Do(ctx context.Context, policy Policy, operation func(ctx context.Context) error) error {
	_, err := ExecuteWithRetry(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, operation(ctx)
	})
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
