package monitor

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statusErr mimics the API client's error type: transient iff 5xx.
type statusErr struct {
	code int
}

func (e *statusErr) Error() string {
	return fmt.Sprintf("status %d", e.code)
}

func (e *statusErr) Transient() bool {
	return e.code >= 500
}

// recordSleep returns an instant SleepFunc that records requested delays.
func recordSleep(delays *[]time.Duration) SleepFunc {
	return func(_ context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"plain error", errors.New("boom"), false},
		{"server error", &statusErr{code: 500}, true},
		{"bad gateway", &statusErr{code: 502}, true},
		{"not found", &statusErr{code: 404}, false},
		{"unauthorized", &statusErr{code: 401}, false},
		{"wrapped server error", fmt.Errorf("fetching: %w", &statusErr{code: 503}), true},
		{"wrapped client error", fmt.Errorf("fetching: %w", &statusErr{code: 400}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestDoSuccessFirstTry(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 5, Sleep: recordSleep(&delays)}

	calls := 0
	v, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoExponentialBackoff(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 5, Sleep: recordSleep(&delays)}

	calls := 0
	v, err := Do(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls < 5 {
			return "", &statusErr{code: 503}
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 5, calls)
	assert.Equal(t, []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
	}, delays)
}

func TestDoPermanentErrorNoRetry(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 5, Sleep: recordSleep(&delays)}

	permanent := &statusErr{code: 404}

	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, permanent
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, error(permanent))
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}

func TestDoExhaustsBudget(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 2, Sleep: recordSleep(&delays)}

	transient := &statusErr{code: 500}

	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, transient
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, error(transient))
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second}, delays)
}

func TestDoFreshStateAcrossCalls(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 5, Sleep: recordSleep(&delays)}

	failOnce := func() func(context.Context) (int, error) {
		calls := 0
		return func(context.Context) (int, error) {
			calls++
			if calls == 1 {
				return 0, &statusErr{code: 502}
			}
			return calls, nil
		}
	}

	_, err := Do(context.Background(), policy, failOnce())
	require.NoError(t, err)

	_, err = Do(context.Background(), policy, failOnce())
	require.NoError(t, err)

	// Both calls backed off from one unit; the counter never carried over.
	assert.Equal(t, []time.Duration{1 * time.Second, 1 * time.Second}, delays)
}

func TestDoCustomUnit(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{MaxRetries: 3, Unit: 10 * time.Millisecond, Sleep: recordSleep(&delays)}

	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		if calls < 4 {
			return 0, &statusErr{code: 500}
		}
		return 1, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{
		10 * time.Millisecond,
		20 * time.Millisecond,
		40 * time.Millisecond,
	}, delays)
}

func TestDoSleepInterrupted(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries: 5,
		Sleep: func(context.Context, time.Duration) error {
			return context.Canceled
		},
	}

	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		return 0, &statusErr{code: 500}
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoZeroRetries(t *testing.T) {
	var delays []time.Duration
	policy := RetryPolicy{Sleep: recordSleep(&delays)}

	calls := 0
	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, &statusErr{code: 500}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, delays)
}
