// Package retrieval turns a question into ranked, deduplicated passages.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/avast/retry-go/v4"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	pkgRetry "github.com/futig/compliance-rag/internal/pkg/retry"
)

type Config struct {
	TopK int
	// Overfetch multiplies k when post-filters may discard hits.
	Overfetch int
	// SimilarityFloor drops hits scoring below it. Nil keeps everything.
	SimilarityFloor *float64
	ExcludeArchived bool
	Retry           pkgRetry.RetryConfig
}

type Usecase struct {
	embedder Embedder
	index    Searcher
	registry MetadataSource
	cfg      Config
}

// NewUsecase wires a retriever. registry may be nil, which disables the
// archived filter.
func NewUsecase(embedder Embedder, index Searcher, registry MetadataSource, cfg Config) *Usecase {
	if cfg.TopK < 1 {
		cfg.TopK = 5
	}
	if cfg.Overfetch < 1 {
		cfg.Overfetch = 1
	}
	cfg.Retry = cfg.Retry.Normalized()
	return &Usecase{embedder: embedder, index: index, registry: registry, cfg: cfg}
}

// Retrieve returns at most k passages ordered by descending score. A k of
// zero or less uses the configured default. No match is an empty result.
func (u *Usecase) Retrieve(ctx context.Context, question string, k int, filters entity.SearchFilters) (entity.RetrievalResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return entity.RetrievalResult{}, fmt.Errorf("%w: empty question", entity.ErrInvalidQuery)
	}
	if k <= 0 {
		k = u.cfg.TopK
	}
	excludeArchived := (filters.ExcludeArchived || u.cfg.ExcludeArchived) && u.registry != nil

	vector, err := u.embedder.Embed(ctx, question)
	if err != nil {
		return entity.RetrievalResult{}, err
	}

	fetch := k
	if excludeArchived || u.cfg.SimilarityFloor != nil {
		fetch = k * u.cfg.Overfetch
	}

	hits, err := u.search(ctx, vector, fetch, filters)
	if err != nil {
		return entity.RetrievalResult{}, err
	}

	hits = dedupe(hits)
	if u.cfg.SimilarityFloor != nil {
		hits = aboveFloor(hits, *u.cfg.SimilarityFloor)
	}
	if excludeArchived {
		hits = u.dropArchived(ctx, hits)
	}
	if len(hits) > k {
		hits = hits[:k]
	}

	result := entity.RetrievalResult{Passages: make([]entity.RetrievedPassage, 0, len(hits))}
	for _, h := range hits {
		result.Passages = append(result.Passages, entity.RetrievedPassage{
			ChunkID:       h.ChunkID,
			DocumentID:    h.Metadata.DocumentID,
			DocumentTitle: h.Metadata.DocumentTitle,
			Text:          h.Metadata.Text,
			Ordinal:       h.Metadata.Ordinal,
			TotalChunks:   h.Metadata.TotalChunks,
			Score:         h.Score,
		})
	}

	ctxzap.Debug(ctx, "retrieved passages",
		zap.Int("k", k),
		zap.Int("fetched", fetch),
		zap.Int("returned", len(result.Passages)),
	)
	return result, nil
}

// search retries once when the index is unreachable.
func (u *Usecase) search(ctx context.Context, vector []float32, k int, filters entity.SearchFilters) ([]entity.SearchHit, error) {
	var hits []entity.SearchHit
	err := retry.Do(func() error {
		h, err := u.index.Search(ctx, vector, k, filters)
		if err != nil {
			return err
		}
		hits = h
		return nil
	}, append(u.cfg.Retry.ToRetryOptions(ctx, func(err error) bool {
		return errors.Is(err, entity.ErrIndexUnavailable) && ctx.Err() == nil
	}),
		retry.OnRetry(func(n uint, err error) {
			ctxzap.Warn(ctx, "index search failed, retrying", zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)...)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%w: %w", ctxErr, err)
		}
		return nil, err
	}
	return hits, nil
}

// dedupe keeps the best-scoring hit per chunk id and restores score order.
// Equal scores keep their index order.
func dedupe(hits []entity.SearchHit) []entity.SearchHit {
	best := make(map[string]int, len(hits))
	out := make([]entity.SearchHit, 0, len(hits))
	for _, h := range hits {
		if i, ok := best[h.ChunkID]; ok {
			if h.Score > out[i].Score {
				out[i] = h
			}
			continue
		}
		best[h.ChunkID] = len(out)
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func aboveFloor(hits []entity.SearchHit, floor float64) []entity.SearchHit {
	out := hits[:0]
	for _, h := range hits {
		if h.Score >= floor {
			out = append(out, h)
		}
	}
	return out
}

// dropArchived removes hits from archived documents. Documents the registry
// does not know are kept.
func (u *Usecase) dropArchived(ctx context.Context, hits []entity.SearchHit) []entity.SearchHit {
	archived := make(map[string]bool)
	out := hits[:0]
	for _, h := range hits {
		docID := h.Metadata.DocumentID
		isArchived, seen := archived[docID]
		if !seen {
			meta, err := u.registry.GetMetadata(ctx, docID)
			switch {
			case err == nil:
				isArchived = meta.Status == entity.DocumentStatusArchived
			case errors.Is(err, entity.ErrDocumentNotFound):
			default:
				ctxzap.Warn(ctx, "registry lookup failed, keeping passage",
					zap.String("document_id", docID), zap.Error(err))
			}
			archived[docID] = isArchived
		}
		if !isArchived {
			out = append(out, h)
		}
	}
	return out
}
