// Package generation turns a built prompt into answer text.
package generation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	pkgRetry "github.com/futig/compliance-rag/internal/pkg/retry"
	pkghttp "github.com/futig/compliance-rag/pkg/http"
)

// Options are the sampling parameters of one generation call.
type Options struct {
	Temperature float64
	MaxTokens   int
	Seed        *int64
}

// Backend is a text-generation service.
type Backend interface {
	Generate(ctx context.Context, prompt string, opts Options) (string, error)
	Model() string
}

type ClientConfig struct {
	// Timeout bounds a single attempt. Zero uses Retry.Timeout.
	Timeout time.Duration
	Retry   pkgRetry.RetryConfig
}

// Client enforces a per-attempt timeout and retries timeouts and transport
// failures once before giving up with entity.ErrGenerationFailed.
type Client struct {
	backend Backend
	cfg     ClientConfig
}

func NewClient(backend Backend, cfg ClientConfig) *Client {
	cfg.Retry = cfg.Retry.Normalized()
	if cfg.Timeout <= 0 {
		cfg.Timeout = cfg.Retry.Timeout
	}
	return &Client{backend: backend, cfg: cfg}
}

func (c *Client) Model() string {
	return c.backend.Model()
}

func (c *Client) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	var text string
	retryIf := func(err error) bool {
		if ctx.Err() != nil {
			return false
		}
		return errors.Is(err, context.DeadlineExceeded) || pkghttp.IsTransient(err)
	}

	err := retry.Do(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()

		out, err := c.backend.Generate(attemptCtx, prompt, opts)
		if err != nil {
			return err
		}
		text = out
		return nil
	}, append(c.cfg.Retry.ToRetryOptions(ctx, retryIf),
		retry.OnRetry(func(n uint, err error) {
			ctxzap.Warn(ctx, "generation call failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", entity.ErrTimeout, ctxErr)
		}
		// The cause is flattened so a per-attempt deadline does not read as
		// a caller timeout.
		return "", fmt.Errorf("%w: %v", entity.ErrGenerationFailed, err)
	}
	return text, nil
}
