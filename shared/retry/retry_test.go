package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chalet/config"
	"chalet/shared/retry"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)

	return nil
}

func TestDo_SucceedsOnThirdAttempt(t *testing.T) {
	rec := &recorder{}
	policy := retry.Policy{MaxAttempts: 3, Backoff: 2 * time.Second, Label: "provider booking creation", Sleep: rec.sleep}

	calls := 0
	result, err := retry.Do(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 3 {
			return "", errors.New("upstream 502")
		}

		return "booking-42", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "booking-42", result)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, rec.delays)
}

func TestDo_ReturnsLastErrorWithoutFinalWait(t *testing.T) {
	rec := &recorder{}
	policy := retry.Policy{MaxAttempts: 2, Backoff: 2 * time.Second, Label: "payment intent", Sleep: rec.sleep}

	errFirst := errors.New("first")
	errLast := errors.New("last")

	calls := 0
	_, err := retry.Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, errFirst
		}

		return 0, errLast
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, errLast)
	assert.NotErrorIs(t, err, errFirst)
	assert.Equal(t, 2, retry.Attempts(err))
	assert.Equal(t, 2, calls)
	assert.Equal(t, []time.Duration{2 * time.Second}, rec.delays)
}

func TestDo_FirstSuccessDoesNotWait(t *testing.T) {
	rec := &recorder{}
	policy := retry.Policy{MaxAttempts: 3, Backoff: time.Second, Sleep: rec.sleep}

	calls := 0
	_, err := retry.Do(context.Background(), policy, func(context.Context) (bool, error) {
		calls++

		return true, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, rec.delays)
}

func TestDo_StopsOnNonRetryableError(t *testing.T) {
	rec := &recorder{}
	errInvalid := errors.New("422 unprocessable")

	policy := retry.Policy{MaxAttempts: 3, Backoff: time.Second, Sleep: rec.sleep}.
		WithRetryable(func(err error) bool { return !errors.Is(err, errInvalid) })

	calls := 0
	_, err := retry.Do(context.Background(), policy, func(context.Context) (string, error) {
		calls++

		return "", errInvalid
	})

	require.ErrorIs(t, err, errInvalid)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, retry.Attempts(err))
	assert.Empty(t, rec.delays)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), retry.Policy{}, func(context.Context) (string, error) {
		calls++

		return "", errors.New("down")
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := retry.Policy{MaxAttempts: 3, Backoff: time.Hour, Label: "calendar"}

	calls := 0
	_, err := retry.Do(ctx, policy, func(context.Context) (string, error) {
		calls++

		return "", errors.New("timeout")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestNewPolicy(t *testing.T) {
	cfg := &config.Config{}
	cfg.Booking.Retry.MaxAttempts = 2
	cfg.Booking.Retry.BackoffMs = 2000

	policy := retry.NewPolicy(cfg, "provider booking creation")

	assert.Equal(t, 2, policy.MaxAttempts)
	assert.Equal(t, 2*time.Second, policy.Delay(1))
	assert.Equal(t, 4*time.Second, policy.Delay(2))
	assert.Equal(t, "provider booking creation", policy.Label)
}
