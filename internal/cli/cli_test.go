package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/formatter"
	"github.com/futig/compliance-rag/internal/usecase/evaluate"
	"github.com/futig/compliance-rag/internal/usecase/ingest"
)

type fakeAnswerer struct {
	mu      sync.Mutex
	queries []entity.Query
}

func (f *fakeAnswerer) AnswerQuery(_ context.Context, q entity.Query) (*entity.Answer, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if q.Identity.IsAnonymous() {
		return &entity.Answer{State: entity.StateDenied}, fmt.Errorf("%w: anonymous", entity.ErrPermissionDenied)
	}
	return &entity.Answer{
		QueryID: "q-1",
		Text:    "Report incidents within 24 hours [1].",
		Citations: []entity.Citation{
			{Index: 1, ChunkID: "incident#0", DocumentID: "incident-reporting", DocumentTitle: "Incident reporting", Score: 0.87},
		},
		Success: true,
		State:   entity.StateCompleted,
		Model:   "mock",
	}, nil
}

type fakeIngester struct {
	docs    []*entity.Document
	removed []string
}

func (f *fakeIngester) IngestBatch(_ context.Context, docs []*entity.Document) []ingest.Result {
	f.docs = append(f.docs, docs...)
	out := make([]ingest.Result, len(docs))
	for i, d := range docs {
		out[i] = ingest.Result{DocumentID: d.ID, Response: &entity.IngestResponse{DocumentID: d.ID, Version: "1.0", ChunkCount: 2}}
	}
	return out
}

func (f *fakeIngester) RemoveDocument(_ context.Context, id string) (*entity.DeleteDocumentResponse, error) {
	if id == "missing" {
		return nil, fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, id)
	}
	f.removed = append(f.removed, id)
	return &entity.DeleteDocumentResponse{DocumentID: id, Status: string(entity.DocumentStatusArchived)}, nil
}

func (f *fakeIngester) ListDocuments(context.Context) ([]entity.DocumentMetadata, error) {
	return []entity.DocumentMetadata{
		{DocumentID: "incident-reporting", Title: "Incident reporting", Version: "1.0", Status: entity.DocumentStatusActive, ChunkCount: 2, TimesReferenced: 3},
	}, nil
}

type fixture struct {
	answers  *fakeAnswerer
	ingester *fakeIngester
	closed   int
	env      string
	signing  bool
}

func (f *fixture) open(env string) (*Services, error) {
	f.env = env
	var signToken func(string, time.Duration) (string, error)
	if f.signing {
		signToken = func(subject string, ttl time.Duration) (string, error) {
			return fmt.Sprintf("token-%s-%s", subject, ttl), nil
		}
	}
	return &Services{
		Answers:  f.answers,
		Ingester: f.ingester,
		Evaluator: func(userID string) Evaluator {
			identity := entity.AnonymousIdentity()
			if userID != "" {
				identity = entity.AuthenticatedIdentity(userID)
			}
			return evaluate.NewUsecase(f.answers, serialRunner{}, identity, 3)
		},
		Formatters: formatter.NewFactory(),
		SignToken:  signToken,
		Close: func(context.Context) error {
			f.closed++
			return nil
		},
	}, nil
}

type serialRunner struct{}

func (serialRunner) Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error {
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		errs[i] = fn(ctx, i)
	}
	return errs
}

func newFixture() *fixture {
	return &fixture{answers: &fakeAnswerer{}, ingester: &fakeIngester{}}
}

func execute(t *testing.T, f *fixture, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand(f.open)
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err := root.Execute()
	return buf.String(), err
}

func TestAsk_PrintsAnswerAndSources(t *testing.T) {
	f := newFixture()

	out, err := execute(t, f, "ask", "--user", "EMP0001", "--env", "test", "How", "fast", "must", "incidents", "be", "reported?")
	require.NoError(t, err)

	assert.Contains(t, out, "Report incidents within 24 hours [1].")
	assert.Contains(t, out, "[1] Incident reporting (incident-reporting, score 0.87)")
	require.Len(t, f.answers.queries, 1)
	assert.Equal(t, "How fast must incidents be reported?", f.answers.queries[0].Question)
	assert.Equal(t, "EMP0001", f.answers.queries[0].Identity.UserID())
	assert.Equal(t, "test", f.env)
	assert.Equal(t, 1, f.closed)
}

func TestAsk_DeniedReturnsError(t *testing.T) {
	f := newFixture()

	_, err := execute(t, f, "ask", "anything")
	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrPermissionDenied)
	assert.Equal(t, 1, f.closed)
}

func TestAsk_ExportMarkdown(t *testing.T) {
	f := newFixture()
	path := filepath.Join(t.TempDir(), "answer.md")

	out, err := execute(t, f, "ask", "-u", "EMP0001", "--format", "markdown", "--out", path, "question")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Report incidents within 24 hours")
}

func TestAsk_InvalidClassification(t *testing.T) {
	_, err := execute(t, newFixture(), "ask", "-u", "x", "--max-classification", "secret", "question")
	assert.Error(t, err)
}

func TestIngest_DirectoryWithOverrides(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Incident Reporting.md"), []byte("Report incidents within 24 hours."), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hand_hygiene.txt"), []byte("Wash hands."), 0o644))
	f := newFixture()

	out, err := execute(t, f, "ingest", "--type", "procedure", "--classification", "restricted", dir)
	require.NoError(t, err)

	require.Len(t, f.ingester.docs, 2)
	for _, d := range f.ingester.docs {
		assert.Equal(t, "procedure", d.Type)
		assert.Equal(t, entity.ClassificationRestricted, d.Classification)
	}
	assert.Contains(t, out, "✓ incident-reporting indexed")
	assert.Contains(t, out, "✓ hand-hygiene indexed")
}

func TestIngest_IDNeedsSingleDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("b"), 0o644))
	f := newFixture()

	_, err := execute(t, f, "ingest", "--id", "one", dir)
	assert.Error(t, err)
	assert.Empty(t, f.ingester.docs)
}

func TestIngest_MissingPath(t *testing.T) {
	_, err := execute(t, newFixture(), "ingest", filepath.Join(t.TempDir(), "nope.md"))
	assert.Error(t, err)
}

func TestDelete(t *testing.T) {
	f := newFixture()

	out, err := execute(t, f, "delete", "incident-reporting")
	require.NoError(t, err)
	assert.Contains(t, out, "Document incident-reporting archived")

	_, err = execute(t, f, "delete", "missing")
	assert.ErrorIs(t, err, entity.ErrDocumentNotFound)
}

func TestList(t *testing.T) {
	out, err := execute(t, newFixture(), "list")
	require.NoError(t, err)
	assert.Contains(t, out, "incident-reporting")
	assert.Contains(t, out, "REFERENCED")
}

func TestEvaluate_WritesReport(t *testing.T) {
	dir := t.TempDir()
	questions := filepath.Join(dir, "questions.json")
	require.NoError(t, os.WriteFile(questions, []byte(`[
		{"question": "How fast are incidents reported?", "answer": "Incidents are reported within 24 hours.", "category": "Incidents"},
		{"question": "Who reviews incidents?", "expected_answer": "The compliance officer reviews incidents."}
	]`), 0o644))
	reportPath := filepath.Join(dir, "report.md")
	resultsPath := filepath.Join(dir, "results.json")
	f := newFixture()

	out, err := execute(t, f, "evaluate", "-u", "TRN0001", "--out", reportPath, "--results", resultsPath, questions)
	require.NoError(t, err)

	assert.Contains(t, out, "Evaluated 2 questions: 2 succeeded")
	report, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(report), "Incidents")
	_, err = os.Stat(resultsPath)
	assert.NoError(t, err)
}

func TestEvaluate_RejectsUnknownFormat(t *testing.T) {
	dir := t.TempDir()
	questions := filepath.Join(dir, "questions.json")
	require.NoError(t, os.WriteFile(questions, []byte(`[{"question": "q"}]`), 0o644))

	_, err := execute(t, newFixture(), "evaluate", "--format", "xml", questions)
	assert.ErrorIs(t, err, entity.ErrInvalidFormat)
}

func TestToken(t *testing.T) {
	f := newFixture()
	f.signing = true

	out, err := execute(t, f, "token", "-u", "ADM0001", "--ttl", "1h")

	require.NoError(t, err)
	assert.Equal(t, "token-ADM0001-1h0m0s\n", out)
	assert.Equal(t, 1, f.closed)
}

func TestToken_Errors(t *testing.T) {
	f := newFixture()

	_, err := execute(t, f, "token")
	assert.ErrorContains(t, err, "--user is required")

	_, err = execute(t, f, "token", "-u", "ADM0001")
	assert.ErrorContains(t, err, "JWT_SECRET is not set")

	f.signing = true
	_, err = execute(t, f, "token", "-u", "ADM0001", "--ttl", "0s")
	assert.ErrorContains(t, err, "--ttl must be positive")
}
