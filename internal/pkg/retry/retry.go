package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

const (
	defaultAttempts = 2
	defaultDelay    = 200 * time.Millisecond
	defaultMaxDelay = 2 * time.Second
	defaultTimeout  = 25 * time.Second
)

// RetryConfig configures calls to an external service. Attempts counts the
// first call, so the default of 2 means a single retry.
type RetryConfig struct {
	Attempts uint          `env:"ATTEMPTS" envDefault:"2"`
	Delay    time.Duration `env:"DELAY" envDefault:"200ms"`
	MaxDelay time.Duration `env:"MAX_DELAY" envDefault:"2s"`
	Timeout  time.Duration `env:"TIMEOUT" envDefault:"25s"`
}

// ToRetryOptions builds exponential backoff options bound to ctx. When retryIf
// is set, only errors it accepts are retried.
func (rc RetryConfig) ToRetryOptions(ctx context.Context, retryIf func(error) bool) []retry.Option {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(rc.Attempts),
		retry.Delay(rc.Delay),
		retry.MaxDelay(rc.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if retryIf != nil {
		opts = append(opts, retry.RetryIf(retryIf))
	}
	return opts
}

// Normalized fills zero fields with defaults.
func (rc RetryConfig) Normalized() RetryConfig {
	d := DefaultRetryConfig()
	if rc.Attempts == 0 {
		rc.Attempts = d.Attempts
	}
	if rc.Delay == 0 {
		rc.Delay = d.Delay
	}
	if rc.MaxDelay == 0 {
		rc.MaxDelay = d.MaxDelay
	}
	if rc.Timeout == 0 {
		rc.Timeout = d.Timeout
	}
	return rc
}

// Budget is the longest a call can take when every attempt runs to its
// timeout and every backoff is at its cap.
func (rc RetryConfig) Budget() time.Duration {
	rc = rc.Normalized()
	return time.Duration(rc.Attempts)*rc.Timeout + time.Duration(rc.Attempts-1)*rc.MaxDelay
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts: defaultAttempts,
		Delay:    defaultDelay,
		MaxDelay: defaultMaxDelay,
		Timeout:  defaultTimeout,
	}
}
