package ingest

import (
	"context"

	"github.com/futig/compliance-rag/internal/entity"
)

type Chunker interface {
	Split(doc entity.Document) []entity.Chunk
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is the write side of the vector index.
type Index interface {
	ReplaceDocument(ctx context.Context, documentID string, entries []entity.IndexEntry) error
	DeleteByDocument(ctx context.Context, documentID string) error
}

type Registry interface {
	Register(ctx context.Context, meta entity.DocumentMetadata) error
	GetMetadata(ctx context.Context, documentID string) (*entity.DocumentMetadata, error)
	SetStatus(ctx context.Context, documentID string, status entity.DocumentStatus) error
	List(ctx context.Context) ([]entity.DocumentMetadata, error)
}

type DocumentValidator interface {
	ValidateDocument(doc *entity.Document) error
}

// Runner fans work out over a bounded pool.
type Runner interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error
}
