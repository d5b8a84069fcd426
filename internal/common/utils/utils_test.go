package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input string
		want  time.Duration
	}{
		{"15m", 15 * time.Minute},
		{"1h", time.Hour},
		{"900s", 900 * time.Second},
		{"1d", 24 * time.Hour},
		{"2w", 14 * 24 * time.Hour},
		{" 500ms ", 500 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseDuration(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDuration("fortnight")
	assert.Error(t, err)
	_, err = ParseDuration("3dx")
	assert.Error(t, err)
}

func TestCeilSeconds(t *testing.T) {
	assert.Equal(t, time.Second, CeilSeconds(0))
	assert.Equal(t, time.Second, CeilSeconds(100*time.Millisecond))
	assert.Equal(t, time.Second, CeilSeconds(time.Second))
	assert.Equal(t, 2*time.Second, CeilSeconds(1001*time.Millisecond))
	assert.Equal(t, 900*time.Second, CeilSeconds(15*time.Minute))
}

func TestRetryConfig_Delay(t *testing.T) {
	config := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffFactor: 2}

	assert.Equal(t, 100*time.Millisecond, config.Delay(1))
	assert.Equal(t, 200*time.Millisecond, config.Delay(2))
	assert.Equal(t, 800*time.Millisecond, config.Delay(4))
	assert.Equal(t, time.Second, config.Delay(5))
	assert.Equal(t, time.Second, config.Delay(50))
}

func TestRetryWithBackoff_Success(t *testing.T) {
	config := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2}

	attempts := 0
	var retried []int
	config.OnRetry = func(attempt int, err error, delay time.Duration) {
		retried = append(retried, attempt)
	}

	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
	assert.Equal(t, []int{1}, retried)
}

func TestRetryWithBackoff_AllAttemptsFail(t *testing.T) {
	config := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffFactor: 2, JitterFactor: 0.5}

	attempts := 0
	testError := errors.New("connection refused")

	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		return testError
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retries exceeded")
	assert.ErrorIs(t, err, testError)
}

func TestRetryWithBackoff_NonRetryableError(t *testing.T) {
	config := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, BackoffFactor: 2}
	permanent := errors.New("invalid password")
	config.RetryableErrors = func(err error) bool { return !errors.Is(err, permanent) }

	attempts := 0
	err := RetryWithBackoff(context.Background(), config, func() error {
		attempts++
		return permanent
	})

	assert.Equal(t, permanent, err)
	assert.Equal(t, 1, attempts)
}

func TestRetryWithBackoff_ContextCancelled(t *testing.T) {
	config := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, BackoffFactor: 2}
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	err := RetryWithBackoff(ctx, config, func() error {
		attempts++
		cancel()
		return errors.New("timeout")
	})

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "retry cancelled")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}
