package retrieval

import (
	"context"

	"github.com/futig/compliance-rag/internal/entity"
)

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Searcher interface {
	Search(ctx context.Context, vector []float32, k int, filters entity.SearchFilters) ([]entity.SearchHit, error)
}

// MetadataSource supplies document status for the archived filter.
type MetadataSource interface {
	GetMetadata(ctx context.Context, documentID string) (*entity.DocumentMetadata, error)
}
