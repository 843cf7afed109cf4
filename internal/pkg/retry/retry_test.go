package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToRetryOptions_SingleRetry(t *testing.T) {
	cfg := RetryConfig{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond}
	calls := 0

	err := retry.Do(func() error {
		calls++
		return errors.New("boom")
	}, cfg.ToRetryOptions(context.Background(), nil)...)

	require.Error(t, err)
	assert.Equal(t, "boom", err.Error())
	assert.Equal(t, 2, calls)
}

func TestToRetryOptions_RetryIfStopsEarly(t *testing.T) {
	cfg := RetryConfig{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond}
	permanent := errors.New("permanent")
	calls := 0

	err := retry.Do(func() error {
		calls++
		return permanent
	}, cfg.ToRetryOptions(context.Background(), func(err error) bool { return !errors.Is(err, permanent) })...)

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestNormalized(t *testing.T) {
	assert.Equal(t, DefaultRetryConfig(), RetryConfig{}.Normalized())

	custom := RetryConfig{Attempts: 3, Delay: time.Second, MaxDelay: time.Minute, Timeout: time.Hour}
	assert.Equal(t, custom, custom.Normalized())
}

func TestBudget(t *testing.T) {
	assert.Equal(t, 52*time.Second, DefaultRetryConfig().Budget())

	cfg := RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: 10 * time.Millisecond, Timeout: 100 * time.Millisecond}
	assert.Equal(t, 320*time.Millisecond, cfg.Budget())
}
