// Package embedding maps chunk and query text to fixed-dimension vectors.
package embedding

import (
	"context"
	"fmt"

	"github.com/avast/retry-go/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/cache"
	pkgRetry "github.com/futig/compliance-rag/internal/pkg/retry"
	pkghttp "github.com/futig/compliance-rag/pkg/http"
)

// Backend is an embedding service. It returns one vector per input, in order.
type Backend interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Model() string
}

type GatewayConfig struct {
	Dimension int
	BatchSize int
	Retry     pkgRetry.RetryConfig
}

// Gateway validates, caches and batches calls to a Backend. Results do not
// depend on how inputs are grouped into batches.
type Gateway struct {
	backend Backend
	cache   cache.VectorCache
	cfg     GatewayConfig
}

func NewGateway(backend Backend, vc cache.VectorCache, cfg GatewayConfig) *Gateway {
	if vc == nil {
		vc = cache.Noop{}
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 32
	}
	cfg.Retry = cfg.Retry.Normalized()
	return &Gateway{backend: backend, cache: vc, cfg: cfg}
}

func (g *Gateway) Dimension() int {
	return g.cfg.Dimension
}

func (g *Gateway) Model() string {
	return g.backend.Model()
}

func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	model := g.backend.Model()

	var missing []int
	for i, t := range texts {
		if v, ok := g.cache.Get(ctx, cache.Key(model, t)); ok && len(v) == g.cfg.Dimension {
			out[i] = v
			continue
		}
		missing = append(missing, i)
	}

	for start := 0; start < len(missing); start += g.cfg.BatchSize {
		end := min(start+g.cfg.BatchSize, len(missing))
		batch := make([]string, 0, end-start)
		for _, idx := range missing[start:end] {
			batch = append(batch, texts[idx])
		}

		vectors, err := g.call(ctx, batch)
		if err != nil {
			return nil, err
		}

		for j, idx := range missing[start:end] {
			if len(vectors[j]) != g.cfg.Dimension {
				return nil, fmt.Errorf("%w: got %d, index expects %d",
					entity.ErrEmbeddingDimensionMismatch, len(vectors[j]), g.cfg.Dimension)
			}
			out[idx] = vectors[j]
			g.cache.Set(ctx, cache.Key(model, texts[idx]), vectors[j])
		}
	}

	if len(missing) > 0 {
		ctxzap.Debug(ctx, "embedded texts",
			zap.Int("requested", len(texts)),
			zap.Int("cache_hits", len(texts)-len(missing)),
		)
	}
	return out, nil
}

// call invokes the backend with a single retry on transient failures.
func (g *Gateway) call(ctx context.Context, batch []string) ([][]float32, error) {
	var vectors [][]float32
	err := retry.Do(func() error {
		v, err := g.backend.Embed(ctx, batch)
		if err != nil {
			return err
		}
		if len(v) != len(batch) {
			return fmt.Errorf("backend returned %d vectors for %d inputs", len(v), len(batch))
		}
		vectors = v
		return nil
	}, append(g.cfg.Retry.ToRetryOptions(ctx, pkghttp.IsTransient),
		retry.OnRetry(func(n uint, err error) {
			ctxzap.Warn(ctx, "embedding call failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrEmbeddingUnavailable, err)
	}
	return vectors, nil
}
