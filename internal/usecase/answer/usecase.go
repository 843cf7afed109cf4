// Package answer runs the query pipeline: authorize, retrieve, prompt,
// generate and cite.
package answer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/integration/generation"
	"github.com/futig/compliance-rag/internal/pkg/logger"
	"github.com/futig/compliance-rag/internal/pkg/prompt"
)

var tracer = otel.Tracer("github.com/futig/compliance-rag/internal/usecase/answer")

const defaultAuditTimeout = 5 * time.Second

type Config struct {
	// QueryTimeout bounds a query when the caller set no earlier deadline.
	QueryTimeout    time.Duration
	MaxPromptTokens int
	Generation      generation.Options
	AuditTimeout    time.Duration
}

// Usecase is the query orchestrator. It holds no per-query state and is
// safe for concurrent use.
type Usecase struct {
	access    AccessChecker
	retriever Retriever
	prompts   PromptBuilder
	generator Generator
	refs      ReferenceTracker
	audit     AuditSink
	cfg       Config
	now       func() time.Time
}

// NewUsecase wires the orchestrator. refs may be nil.
func NewUsecase(
	access AccessChecker,
	retriever Retriever,
	prompts PromptBuilder,
	generator Generator,
	refs ReferenceTracker,
	audit AuditSink,
	cfg Config,
) *Usecase {
	if cfg.AuditTimeout <= 0 {
		cfg.AuditTimeout = defaultAuditTimeout
	}
	return &Usecase{
		access:    access,
		retriever: retriever,
		prompts:   prompts,
		generator: generator,
		refs:      refs,
		audit:     audit,
		cfg:       cfg,
		now:       time.Now,
	}
}

// AnswerQuery runs one query to a terminal state. The returned answer is
// never nil; for denied and failed queries the error carries the cause and
// the answer a readable summary of it. Exactly one audit record is written.
func (uc *Usecase) AnswerQuery(ctx context.Context, q entity.Query) (*entity.Answer, error) {
	start := uc.now()
	if q.ID == "" {
		q.ID = uuid.New().String()
	}

	ctx = logger.WithQuery(ctx, q.ID, q.Identity.Subject())
	ctx, span := tracer.Start(ctx, "answer_query", trace.WithAttributes(
		attribute.String("query.id", q.ID),
		attribute.Bool("query.anonymous", q.Identity.IsAnonymous()),
	))
	defer span.End()

	if uc.cfg.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.cfg.QueryTimeout)
		defer cancel()
	}

	answer := &entity.Answer{
		QueryID:   q.ID,
		Question:  q.Question,
		State:     entity.StateReceived,
		Citations: []entity.Citation{},
		Model:     uc.generator.Model(),
	}
	ctxzap.Debug(ctx, "query received")

	err := uc.run(ctx, q, answer)
	if err != nil && ctx.Err() == context.DeadlineExceeded && !errors.Is(err, entity.ErrTimeout) {
		err = fmt.Errorf("%w: %v", entity.ErrTimeout, err)
	}

	uc.complete(ctx, answer, err, start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(answer.ErrorKind))
	}
	span.SetAttributes(
		attribute.String("query.state", string(answer.State)),
		attribute.Int("query.citations", len(answer.Citations)),
	)

	uc.record(ctx, q.Identity, answer, err)
	return answer, err
}

func (uc *Usecase) run(ctx context.Context, q entity.Query, answer *entity.Answer) error {
	allowed, err := uc.authorize(ctx, q.Identity)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s lacks %s", entity.ErrPermissionDenied, q.Identity.Subject(), entity.CapabilityQueryRAG)
	}
	uc.transition(ctx, answer, entity.StateAuthorizationChecked)

	question := strings.TrimSpace(q.Question)
	if question == "" {
		return fmt.Errorf("%w: empty question", entity.ErrInvalidQuery)
	}

	result, err := uc.retrieve(ctx, question, q)
	if err != nil {
		return fmt.Errorf("retrieve: %w", err)
	}
	uc.transition(ctx, answer, entity.StateRetrieved)

	p, citations := uc.prompts.Build(question, result, uc.cfg.MaxPromptTokens)
	if p.Dropped > 0 {
		ctxzap.Debug(ctx, "passages dropped to fit prompt budget",
			zap.Int("kept", p.Passages), zap.Int("dropped", p.Dropped))
	}

	text, err := uc.generate(ctx, p)
	if err != nil {
		return fmt.Errorf("generate: %w", err)
	}
	uc.transition(ctx, answer, entity.StateGenerated)

	if p.NoContext {
		answer.InsufficientContext = true
		answer.Text = withNotice(text)
		return nil
	}

	cited := prompt.ParseCitations(text)
	answer.Citations = citations.Resolve(cited)
	if dropped := len(cited) - len(answer.Citations); dropped > 0 {
		ctxzap.Warn(ctx, "dropped citations without a retrieved source", zap.Int("count", dropped))
	}
	answer.InsufficientContext = prompt.StatesInsufficientContext(text)
	answer.Text = text
	return nil
}

// authorize fails closed: a collaborator error denies the query.
func (uc *Usecase) authorize(ctx context.Context, identity entity.Identity) (bool, error) {
	ctx, span := tracer.Start(ctx, "authorize")
	defer span.End()

	allowed, err := uc.access.Check(ctx, identity, entity.CapabilityQueryRAG)
	if err != nil {
		span.RecordError(err)
		ctxzap.Error(ctx, "access check failed", zap.Error(err))
		return false, fmt.Errorf("%w: access check: %v", entity.ErrPermissionDenied, err)
	}
	span.SetAttributes(attribute.Bool("access.allowed", allowed))
	return allowed, nil
}

func (uc *Usecase) retrieve(ctx context.Context, question string, q entity.Query) (entity.RetrievalResult, error) {
	ctx, span := tracer.Start(ctx, "retrieve")
	defer span.End()

	result, err := uc.retriever.Retrieve(ctx, question, q.TopK, q.Filters)
	if err != nil {
		span.RecordError(err)
		return entity.RetrievalResult{}, err
	}
	span.SetAttributes(attribute.Int("retrieval.passages", len(result.Passages)))
	return result, nil
}

func (uc *Usecase) generate(ctx context.Context, p prompt.Prompt) (string, error) {
	ctx, span := tracer.Start(ctx, "generate", trace.WithAttributes(
		attribute.Int("prompt.tokens", p.TokenCount),
		attribute.Bool("prompt.no_context", p.NoContext),
	))
	defer span.End()

	text, err := uc.generator.Generate(ctx, p.Text, uc.cfg.Generation)
	if err != nil {
		span.RecordError(err)
		return "", err
	}
	return text, nil
}

// withNotice makes sure a no-context answer opens with the notice.
func withNotice(text string) string {
	text = strings.TrimSpace(text)
	if prompt.StatesInsufficientContext(text) {
		return text
	}
	if text == "" {
		return prompt.InsufficientContextNotice
	}
	return prompt.InsufficientContextNotice + "\n\n" + text
}

func (uc *Usecase) transition(ctx context.Context, answer *entity.Answer, state entity.PipelineState) {
	ctxzap.Debug(ctx, "query state changed",
		zap.String("from", string(answer.State)),
		zap.String("to", string(state)),
	)
	answer.State = state
}

// complete moves the answer to its terminal state.
func (uc *Usecase) complete(ctx context.Context, answer *entity.Answer, err error, start time.Time) {
	answer.Elapsed = uc.now().Sub(start)
	answer.ElapsedSeconds = answer.Elapsed.Seconds()

	if err == nil {
		uc.transition(ctx, answer, entity.StateCompleted)
		answer.Success = true
		uc.trackReferences(ctx, answer)
		ctxzap.Info(ctx, "query completed",
			zap.Int("citations", len(answer.Citations)),
			zap.Bool("insufficient_context", answer.InsufficientContext),
			zap.Duration("elapsed", answer.Elapsed),
		)
		return
	}

	kind := entity.KindOf(err)
	if kind == entity.ErrorKindPermissionDenied {
		uc.transition(ctx, answer, entity.StateDenied)
	} else {
		uc.transition(ctx, answer, entity.StateFailed)
	}
	answer.Success = false
	answer.ErrorKind = kind
	answer.Error = Summary(kind)
	answer.Text = answer.Error
	answer.Citations = []entity.Citation{}
	answer.InsufficientContext = false

	ctxzap.Warn(ctx, "query did not complete",
		zap.String("state", string(answer.State)),
		zap.String("error_kind", string(kind)),
		zap.Error(err),
		zap.Duration("elapsed", answer.Elapsed),
	)
}

// trackReferences bumps each cited document once. Failures become warnings.
func (uc *Usecase) trackReferences(ctx context.Context, answer *entity.Answer) {
	if uc.refs == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.AuditTimeout)
	defer cancel()

	for _, docID := range answer.CitedDocumentIDs() {
		if err := uc.refs.IncrementReference(ctx, docID); err != nil {
			ctxzap.Warn(ctx, "failed to increment document reference",
				logger.DocumentID(docID), zap.Error(err))
			answer.Warnings = append(answer.Warnings, fmt.Sprintf("reference count for %s not updated", docID))
		}
	}
}

// record writes the audit record even when the query context is done.
func (uc *Usecase) record(ctx context.Context, identity entity.Identity, answer *entity.Answer, cause error) {
	rec := entity.NewAuditRecord(identity, answer, uc.now())
	if cause != nil {
		rec.Error = cause.Error()
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), uc.cfg.AuditTimeout)
	defer cancel()

	if err := uc.audit.Record(ctx, rec); err != nil {
		ctxzap.Warn(ctx, "failed to write audit record", zap.Error(err))
		answer.Warnings = append(answer.Warnings, "audit record not written: "+err.Error())
	}
}

// Summary is the user-facing description of a terminal error kind.
func Summary(kind entity.ErrorKind) string {
	switch kind {
	case entity.ErrorKindNone:
		return ""
	case entity.ErrorKindPermissionDenied:
		return "You do not have permission to query the compliance knowledge base."
	case entity.ErrorKindInvalidQuery:
		return "The question is empty or invalid."
	case entity.ErrorKindEmbeddingUnavailable:
		return "The embedding service is unavailable. Please try again later."
	case entity.ErrorKindEmbeddingDimensionMismatch:
		return "The knowledge base index does not match the embedding model. Contact an administrator."
	case entity.ErrorKindIndexUnavailable:
		return "The document index is unavailable. Please try again later."
	case entity.ErrorKindGenerationFailed:
		return "Answer generation failed. Please try again later."
	case entity.ErrorKindTimeout:
		return "The query did not finish before its deadline."
	default:
		return "An internal error occurred while answering the question."
	}
}
