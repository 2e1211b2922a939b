// Package retry runs calls against external providers with a bounded number of
// attempts and linear backoff. It never touches booking state; callers decide what
// an exhausted budget means.
package retry

import (
	"chalet/config"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy describes how an operation is retried.
type Policy struct {
	MaxAttempts int
	// Backoff is multiplied by the attempt number: 1x after the first failure, 2x after the second.
	Backoff time.Duration
	Label   string
	// Retryable reports whether another attempt can change the outcome. Nil retries every error.
	Retryable func(err error) bool
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Error is returned when an operation did not succeed. It unwraps to the last error.
type Error struct {
	Label    string
	Attempts int
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Label, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewPolicy builds a policy from the booking retry settings.
func NewPolicy(cfg *config.Config, label string) Policy {
	return Policy{
		MaxAttempts: cfg.Booking.Retry.MaxAttempts,
		Backoff:     time.Duration(cfg.Booking.Retry.BackoffMs) * time.Millisecond,
		Label:       label,
	}
}

// WithRetryable returns a copy of the policy that stops on errors the predicate rejects.
func (p Policy) WithRetryable(retryable func(err error) bool) Policy {
	p.Retryable = retryable

	return p
}

// Delay returns the wait after the given failed attempt.
func (p Policy) Delay(attempt int) time.Duration {
	return p.Backoff * time.Duration(attempt)
}

// Do runs operation until it succeeds or the policy gives up, returning the first success.
func Do[T any](ctx context.Context, policy Policy, operation func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	maxAttempts := max(policy.MaxAttempts, 1)

	sleep := policy.Sleep
	if sleep == nil {
		sleep = wait
	}

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := operation(ctx)
		if err == nil {
			if attempt > 1 {
				log.Info().Str("label", policy.Label).Int("attempt", attempt).Msg("operation succeeded after retry")
			}

			return result, nil
		}

		lastErr = err

		log.Warn().
			Err(err).
			Str("label", policy.Label).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("operation attempt failed")

		if policy.Retryable != nil && !policy.Retryable(err) {
			return zero, &Error{Label: policy.Label, Attempts: attempt, Err: err}
		}

		if attempt == maxAttempts {
			break
		}

		if err := sleep(ctx, policy.Delay(attempt)); err != nil {
			return zero, &Error{Label: policy.Label, Attempts: attempt, Err: errors.Join(lastErr, err)}
		}
	}

	log.Error().Err(lastErr).Str("label", policy.Label).Int("attempts", maxAttempts).Msg("operation failed, retries exhausted")

	return zero, &Error{Label: policy.Label, Attempts: maxAttempts, Err: lastErr}
}

// Attempts extracts the number of attempts made from an error returned by Do.
func Attempts(err error) int {
	var retryErr *Error
	if errors.As(err, &retryErr) {
		return retryErr.Attempts
	}

	return 0
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("retry wait interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
