package query

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/api/middleware"
	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/formatter"
	"github.com/futig/compliance-rag/internal/pkg/logger"
	"github.com/futig/compliance-rag/internal/pkg/response"
)

type Handler struct {
	usecase    AnswerUsecase
	validator  RequestValidator
	formatters FormatterFactory
}

func NewHandler(usecase AnswerUsecase, validator RequestValidator, formatters FormatterFactory) *Handler {
	return &Handler{
		usecase:    usecase,
		validator:  validator,
		formatters: formatters,
	}
}

// Query handles POST /v1/query. With ?format=markdown|pdf|docx the answer
// is returned as a file instead of JSON.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "Query")

	format := entity.ResultFormat(strings.ToLower(r.URL.Query().Get("format")))
	if format == "" {
		format = entity.FormatJSON
	}
	if !format.IsValid() {
		h.respondError(ctx, w, http.StatusBadRequest, "unsupported format", entity.ErrInvalidFormat)
		return
	}

	var req entity.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if err := h.validator.ValidateQuery(&req); err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, err.Error(), err)
		return
	}

	identity := middleware.IdentityFrom(ctx)
	ctxzap.Info(ctx, "answering query",
		zap.Int("top_k", req.TopK),
		zap.Int("question_len", len(req.Question)),
	)

	answer, err := h.usecase.AnswerQuery(ctx, entity.Query{
		Question: req.Question,
		Identity: identity,
		TopK:     req.TopK,
		Filters:  req.Filters,
	})
	status := http.StatusOK
	if err != nil {
		status = statusFor(err)
	}
	if answer == nil {
		h.respondError(ctx, w, status, "query failed", err)
		return
	}

	if format == entity.FormatJSON || !answer.Success {
		response.JSON(w, status, answer)
		return
	}

	f, err := h.formatters.Create(format)
	if err != nil {
		h.respondError(ctx, w, http.StatusBadRequest, "unsupported format", err)
		return
	}
	data, err := f.Format(formatter.AnswerDocument(answer))
	if err != nil {
		h.respondError(ctx, w, http.StatusInternalServerError, "failed to export answer", err)
		return
	}
	response.Attachment(w, f.ContentType(), "answer-"+answer.QueryID+f.FileExtension(), data)
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, entity.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, entity.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, entity.ErrGenerationFailed):
		return http.StatusBadGateway
	case errors.Is(err, entity.ErrEmbeddingUnavailable), errors.Is(err, entity.ErrIndexUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	ctxzap.Error(ctx, message, zap.Error(err))
	response.Error(w, status, message)
}
