package answer

import (
	"context"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/integration/generation"
	"github.com/futig/compliance-rag/internal/pkg/prompt"
)

type AccessChecker interface {
	Check(ctx context.Context, identity entity.Identity, capability string) (bool, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, question string, k int, filters entity.SearchFilters) (entity.RetrievalResult, error)
}

type PromptBuilder interface {
	Build(question string, result entity.RetrievalResult, maxTokens int) (prompt.Prompt, prompt.CitationMap)
}

type Generator interface {
	Generate(ctx context.Context, prompt string, opts generation.Options) (string, error)
	Model() string
}

// ReferenceTracker is notified once per cited document of a completed answer.
type ReferenceTracker interface {
	IncrementReference(ctx context.Context, documentID string) error
}

type AuditSink interface {
	Record(ctx context.Context, rec entity.AuditRecord) error
}
