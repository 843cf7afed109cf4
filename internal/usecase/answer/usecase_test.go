package answer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/chunker"
	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/index"
	"github.com/futig/compliance-rag/internal/integration/access"
	"github.com/futig/compliance-rag/internal/integration/embedding"
	"github.com/futig/compliance-rag/internal/integration/generation"
	"github.com/futig/compliance-rag/internal/integration/registry"
	"github.com/futig/compliance-rag/internal/pkg/prompt"
	pkgRetry "github.com/futig/compliance-rag/internal/pkg/retry"
	"github.com/futig/compliance-rag/internal/usecase/retrieval"
)

const dimension = 64

func fastRetry() pkgRetry.RetryConfig {
	return pkgRetry.RetryConfig{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond}
}

type fakeAccess struct {
	allowed bool
	err     error
	calls   int
}

func (f *fakeAccess) Check(context.Context, entity.Identity, string) (bool, error) {
	f.calls++
	return f.allowed, f.err
}

type countingRetriever struct {
	next   Retriever
	result entity.RetrievalResult
	err    error
	calls  int
}

func (c *countingRetriever) Retrieve(ctx context.Context, question string, k int, filters entity.SearchFilters) (entity.RetrievalResult, error) {
	c.calls++
	if c.next != nil {
		return c.next.Retrieve(ctx, question, k, filters)
	}
	return c.result, c.err
}

type countingGenerator struct {
	next  Generator
	text  string
	err   error
	calls int
}

func (c *countingGenerator) Generate(ctx context.Context, p string, opts generation.Options) (string, error) {
	c.calls++
	if c.next != nil {
		return c.next.Generate(ctx, p, opts)
	}
	return c.text, c.err
}

func (c *countingGenerator) Model() string { return "counting" }

type memorySink struct {
	mu      sync.Mutex
	records []entity.AuditRecord
	err     error
}

func (s *memorySink) Record(_ context.Context, rec entity.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return s.err
}

type hangingBackend struct {
	mu    sync.Mutex
	calls int
}

func (h *hangingBackend) Generate(ctx context.Context, _ string, _ generation.Options) (string, error) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func (h *hangingBackend) Model() string { return "hanging" }

func passages(n int) entity.RetrievalResult {
	var r entity.RetrievalResult
	for i := 0; i < n; i++ {
		r.Passages = append(r.Passages, entity.RetrievedPassage{
			ChunkID:       entity.ChunkID("doc", i),
			DocumentID:    "doc",
			DocumentTitle: "Doc",
			Text:          "Passage text.",
			TotalChunks:   n,
			Score:         1 - float64(i)/10,
		})
	}
	return r
}

type pipeline struct {
	index     *index.Memory
	registry  *registry.Memory
	retriever *countingRetriever
	generator *countingGenerator
	sink      *memorySink
	usecase   *Usecase
	ingest    func()
}

// newPipeline assembles the orchestrator over in-memory components and the
// offline embedding and generation backends.
func newPipeline(t *testing.T, gen Generator) *pipeline {
	t.Helper()
	logger := zap.NewNop()
	gateway := embedding.NewGateway(embedding.NewMockConnector(dimension, logger), nil,
		embedding.GatewayConfig{Dimension: dimension, Retry: fastRetry()})
	idx := index.NewMemory(dimension)
	reg := registry.NewMemory()

	if gen == nil {
		gen = generation.NewClient(generation.NewMockConnector(logger), generation.ClientConfig{Timeout: time.Second, Retry: fastRetry()})
	}

	p := &pipeline{
		index:    idx,
		registry: reg,
		retriever: &countingRetriever{next: retrieval.NewUsecase(gateway, idx, reg,
			retrieval.Config{TopK: 5, Overfetch: 2, ExcludeArchived: true, Retry: fastRetry()})},
		generator: &countingGenerator{next: gen},
		sink:      &memorySink{},
	}
	p.usecase = NewUsecase(access.NewStatic(entity.CapabilityQueryRAG), p.retriever, prompt.NewBuilder(nil),
		p.generator, reg, p.sink, Config{QueryTimeout: 5 * time.Second, MaxPromptTokens: 3000})

	doc := entity.Document{
		ID:    "needlestick-protocol",
		Title: "Needlestick protocol",
		Text: "Immediately wash the needlestick wound with soap and running water for several minutes.\n\n" +
			"Report the needlestick injury to your supervisor and occupational health without delay.\n\n" +
			"Post-exposure prophylaxis must start within hours after a needlestick exposure to blood.",
	}
	chunks := chunker.New(chunker.WithChunkSize(15), chunker.WithOverlap(0)).Split(doc)
	require.Len(t, chunks, 3)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := gateway.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)

	entries := make([]entity.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = entity.IndexEntry{ChunkID: c.ID, Vector: vectors[i], Metadata: entity.ChunkMetadata{
			DocumentID: doc.ID, DocumentTitle: doc.Title, Ordinal: c.Ordinal, TotalChunks: c.TotalChunks, Text: c.Text,
		}}
	}
	p.ingest = func() {
		require.NoError(t, idx.ReplaceDocument(context.Background(), doc.ID, entries))
		require.NoError(t, reg.Register(context.Background(), doc.Metadata()))
	}
	return p
}

func query(question string, k int) entity.Query {
	return entity.Query{Question: question, Identity: entity.AuthenticatedIdentity("u1"), TopK: k}
}

func TestAnswerQuery_NeedlestickScenario(t *testing.T) {
	p := newPipeline(t, nil)
	p.ingest()

	answer, err := p.usecase.AnswerQuery(context.Background(), query("what to do after a needlestick", 2))
	require.NoError(t, err)

	assert.True(t, answer.Success)
	assert.Equal(t, entity.StateCompleted, answer.State)
	assert.False(t, answer.InsufficientContext)
	require.Len(t, answer.Citations, 2)
	for _, c := range answer.Citations {
		assert.Equal(t, "needlestick-protocol", c.DocumentID)
		assert.True(t, strings.HasPrefix(c.ChunkID, "needlestick-protocol_chunk_"))
	}
	assert.NotEqual(t, answer.Citations[0].ChunkID, answer.Citations[1].ChunkID)
	assert.NotEmpty(t, answer.QueryID)

	meta, err := p.registry.GetMetadata(context.Background(), "needlestick-protocol")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.TimesReferenced)

	require.Len(t, p.sink.records, 1)
	rec := p.sink.records[0]
	assert.True(t, rec.Success)
	assert.Equal(t, "u1", rec.UserID)
	assert.Equal(t, []string{"needlestick-protocol"}, rec.Sources)
	assert.Len(t, rec.ChunkIDs, 2)
}

func TestAnswerQuery_EmptyIndexIsInsufficientContext(t *testing.T) {
	p := newPipeline(t, nil)

	answer, err := p.usecase.AnswerQuery(context.Background(), query("how long are records retained?", 0))
	require.NoError(t, err)

	assert.True(t, answer.Success)
	assert.True(t, answer.InsufficientContext)
	assert.Empty(t, answer.Citations)
	assert.True(t, strings.HasPrefix(answer.Text, prompt.InsufficientContextNotice))
	assert.Equal(t, 1, p.generator.calls)
	require.Len(t, p.sink.records, 1)
	assert.Empty(t, p.sink.records[0].Sources)
}

func TestAnswerQuery_NoContextNoticeIsPrepended(t *testing.T) {
	p := newPipeline(t, &countingGenerator{text: "Retention is seven years."})

	answer, err := p.usecase.AnswerQuery(context.Background(), query("retention?", 0))
	require.NoError(t, err)

	assert.True(t, answer.InsufficientContext)
	assert.Equal(t, prompt.InsufficientContextNotice+"\n\nRetention is seven years.", answer.Text)
	assert.Empty(t, answer.Citations)
}

func TestAnswerQuery_GenerationTimesOutTwice(t *testing.T) {
	backend := &hangingBackend{}
	client := generation.NewClient(backend, generation.ClientConfig{Timeout: 20 * time.Millisecond, Retry: fastRetry()})
	p := newPipeline(t, client)
	p.ingest()

	answer, err := p.usecase.AnswerQuery(context.Background(), query("what to do after a needlestick", 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrGenerationFailed)

	assert.Equal(t, 2, backend.calls)
	assert.False(t, answer.Success)
	assert.Equal(t, entity.StateFailed, answer.State)
	assert.Equal(t, entity.ErrorKindGenerationFailed, answer.ErrorKind)
	assert.NotEmpty(t, answer.Text)
	assert.Empty(t, answer.Citations)

	require.Len(t, p.sink.records, 1)
	rec := p.sink.records[0]
	assert.False(t, rec.Success)
	assert.Equal(t, entity.ErrorKindGenerationFailed, rec.ErrorKind)
	assert.NotEmpty(t, rec.Error)

	meta, err := p.registry.GetMetadata(context.Background(), "needlestick-protocol")
	require.NoError(t, err)
	assert.Zero(t, meta.TimesReferenced)
}

// Default timings scaled down 100x: QUERY_TIMEOUT 60s and a 25s generation
// attempt with 2s maximum backoff.
func TestAnswerQuery_DefaultTimingsEndInGenerationFailed(t *testing.T) {
	defaults := pkgRetry.DefaultRetryConfig()
	scaled := pkgRetry.RetryConfig{
		Attempts: defaults.Attempts,
		Delay:    defaults.Delay / 100,
		MaxDelay: defaults.MaxDelay / 100,
		Timeout:  defaults.Timeout / 100,
	}
	queryTimeout := 600 * time.Millisecond
	require.Less(t, scaled.Budget(), queryTimeout)

	backend := &hangingBackend{}
	p := newPipeline(t, generation.NewClient(backend, generation.ClientConfig{Retry: scaled}))
	p.ingest()
	uc := NewUsecase(access.NewStatic(entity.CapabilityQueryRAG), p.retriever, prompt.NewBuilder(nil),
		p.generator, p.registry, p.sink, Config{QueryTimeout: queryTimeout, MaxPromptTokens: 3000})

	answer, err := uc.AnswerQuery(context.Background(), query("what to do after a needlestick", 2))
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrGenerationFailed)
	assert.NotErrorIs(t, err, entity.ErrTimeout)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, entity.ErrorKindGenerationFailed, answer.ErrorKind)
	require.Len(t, p.sink.records, 1)
	assert.Equal(t, entity.ErrorKindGenerationFailed, p.sink.records[0].ErrorKind)
}

func TestAnswerQuery_PermissionDenied(t *testing.T) {
	retriever := &countingRetriever{result: passages(2)}
	generator := &countingGenerator{text: "answer [Source 1]"}
	sink := &memorySink{}
	checker := &fakeAccess{allowed: false}
	uc := NewUsecase(checker, retriever, prompt.NewBuilder(nil), generator, nil, sink, Config{})

	answer, err := uc.AnswerQuery(context.Background(), entity.Query{Question: "q", Identity: entity.AnonymousIdentity()})
	require.ErrorIs(t, err, entity.ErrPermissionDenied)

	assert.Equal(t, 1, checker.calls)
	assert.Zero(t, retriever.calls)
	assert.Zero(t, generator.calls)
	assert.Equal(t, entity.StateDenied, answer.State)
	assert.Equal(t, entity.ErrorKindPermissionDenied, answer.ErrorKind)
	assert.False(t, answer.Success)

	require.Len(t, sink.records, 1)
	assert.Equal(t, entity.StateDenied, sink.records[0].State)
	assert.Equal(t, entity.AnonymousSubject, sink.records[0].UserID)
}

func TestAnswerQuery_AccessErrorFailsClosed(t *testing.T) {
	retriever := &countingRetriever{result: passages(1)}
	uc := NewUsecase(&fakeAccess{allowed: true, err: errors.New("policy store down")}, retriever,
		prompt.NewBuilder(nil), &countingGenerator{}, nil, &memorySink{}, Config{})

	answer, err := uc.AnswerQuery(context.Background(), query("q", 1))
	require.ErrorIs(t, err, entity.ErrPermissionDenied)
	assert.Equal(t, entity.StateDenied, answer.State)
	assert.Zero(t, retriever.calls)
}

func TestAnswerQuery_DropsFabricatedCitations(t *testing.T) {
	result := passages(2)
	generator := &countingGenerator{text: "Wash the wound [Source 2]. Also see [Source 7] and [Source 2, 9]."}
	uc := NewUsecase(&fakeAccess{allowed: true}, &countingRetriever{result: result},
		prompt.NewBuilder(nil), generator, nil, &memorySink{}, Config{})

	answer, err := uc.AnswerQuery(context.Background(), query("q", 2))
	require.NoError(t, err)

	require.Len(t, answer.Citations, 1)
	assert.Equal(t, 2, answer.Citations[0].Index)
	assert.True(t, result.Contains(answer.Citations[0].ChunkID))
	assert.Contains(t, answer.Text, "[Source 7]")
}

func TestAnswerQuery_AuditFailureIsWarning(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	uc := NewUsecase(&fakeAccess{allowed: true}, &countingRetriever{result: passages(1)},
		prompt.NewBuilder(nil), &countingGenerator{text: "ok [Source 1]"}, nil, sink, Config{})

	answer, err := uc.AnswerQuery(context.Background(), query("q", 1))
	require.NoError(t, err)
	assert.True(t, answer.Success)
	require.Len(t, answer.Warnings, 1)
	assert.Contains(t, answer.Warnings[0], "disk full")
}

func TestAnswerQuery_ReferencesCountedOncePerDocument(t *testing.T) {
	reg := registry.NewMemory()
	require.NoError(t, reg.Register(context.Background(), entity.DocumentMetadata{DocumentID: "doc"}))
	uc := NewUsecase(&fakeAccess{allowed: true}, &countingRetriever{result: passages(3)},
		prompt.NewBuilder(nil), &countingGenerator{text: "a [Source 1] b [Source 2] c [Source 3]"}, reg, &memorySink{}, Config{})

	answer, err := uc.AnswerQuery(context.Background(), query("q", 3))
	require.NoError(t, err)
	assert.Len(t, answer.Citations, 3)

	meta, err := reg.GetMetadata(context.Background(), "doc")
	require.NoError(t, err)
	assert.Equal(t, int64(1), meta.TimesReferenced)
}

func TestAnswerQuery_RetrievalFailure(t *testing.T) {
	generator := &countingGenerator{}
	sink := &memorySink{}
	uc := NewUsecase(&fakeAccess{allowed: true}, &countingRetriever{err: entity.ErrIndexUnavailable},
		prompt.NewBuilder(nil), generator, nil, sink, Config{})

	answer, err := uc.AnswerQuery(context.Background(), query("q", 1))
	require.ErrorIs(t, err, entity.ErrIndexUnavailable)
	assert.Equal(t, entity.ErrorKindIndexUnavailable, answer.ErrorKind)
	assert.Equal(t, Summary(entity.ErrorKindIndexUnavailable), answer.Error)
	assert.Zero(t, generator.calls)
	require.Len(t, sink.records, 1)
}

func TestAnswerQuery_DeadlineIsTimeout(t *testing.T) {
	retriever := &blockingRetriever{}
	sink := &memorySink{}
	uc := NewUsecase(&fakeAccess{allowed: true}, retriever, prompt.NewBuilder(nil), &countingGenerator{}, nil, sink,
		Config{QueryTimeout: 20 * time.Millisecond})

	answer, err := uc.AnswerQuery(context.Background(), query("q", 1))
	require.ErrorIs(t, err, entity.ErrTimeout)
	assert.Equal(t, entity.StateFailed, answer.State)
	assert.Equal(t, entity.ErrorKindTimeout, answer.ErrorKind)
	require.Len(t, sink.records, 1)
	assert.Equal(t, entity.ErrorKindTimeout, sink.records[0].ErrorKind)
}

func TestAnswerQuery_EmptyQuestion(t *testing.T) {
	retriever := &countingRetriever{}
	uc := NewUsecase(&fakeAccess{allowed: true}, retriever, prompt.NewBuilder(nil), &countingGenerator{}, nil, &memorySink{}, Config{})

	answer, err := uc.AnswerQuery(context.Background(), query("   ", 1))
	require.ErrorIs(t, err, entity.ErrInvalidQuery)
	assert.Equal(t, entity.ErrorKindInvalidQuery, answer.ErrorKind)
	assert.Zero(t, retriever.calls)
}

type blockingRetriever struct{}

func (blockingRetriever) Retrieve(ctx context.Context, _ string, _ int, _ entity.SearchFilters) (entity.RetrievalResult, error) {
	<-ctx.Done()
	return entity.RetrievalResult{}, ctx.Err()
}

func TestSummary_EveryKindIsDescribed(t *testing.T) {
	kinds := []entity.ErrorKind{
		entity.ErrorKindPermissionDenied, entity.ErrorKindInvalidQuery, entity.ErrorKindEmbeddingUnavailable,
		entity.ErrorKindEmbeddingDimensionMismatch, entity.ErrorKindIndexUnavailable,
		entity.ErrorKindGenerationFailed, entity.ErrorKindTimeout, entity.ErrorKindInternal,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := Summary(k)
		assert.NotEmpty(t, s, k)
		assert.False(t, seen[s], "duplicate summary for %s", k)
		seen[s] = true
	}
	assert.Empty(t, Summary(entity.ErrorKindNone))
}
