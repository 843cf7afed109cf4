package document

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/loader"
	"github.com/futig/compliance-rag/internal/pkg/logger"
	"github.com/futig/compliance-rag/internal/pkg/response"
	"github.com/futig/compliance-rag/internal/pkg/validator"
)

type Handler struct {
	usecase   IngestUsecase
	cfg       config.IngestConfig
	validator UploadValidator
}

func NewHandler(usecase IngestUsecase, cfg config.IngestConfig, validator UploadValidator) *Handler {
	return &Handler{
		usecase:   usecase,
		cfg:       cfg,
		validator: validator,
	}
}

// IngestDocument handles POST /v1/documents. The body is either a JSON
// document or a multipart form with a "file" part and optional metadata
// fields.
func (h *Handler) IngestDocument(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "IngestDocument")

	var (
		doc *entity.Document
		err error
	)
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		doc, err = h.documentFromForm(r)
	} else {
		doc = &entity.Document{}
		err = json.NewDecoder(io.LimitReader(r.Body, h.cfg.MaxUploadSize)).Decode(doc)
		if err != nil {
			err = fmt.Errorf("%w: %w", entity.ErrInvalidFormat, err)
		}
	}
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}

	ctx = logger.AddFields(ctx, zap.String("document_id", doc.ID))
	ctxzap.Info(ctx, "ingesting document", zap.Int("text_len", len(doc.Text)))

	resp, err := h.usecase.IngestDocument(ctx, doc)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}
	response.Created(w, resp)
}

func (h *Handler) documentFromForm(r *http.Request) (*entity.Document, error) {
	if err := r.ParseMultipartForm(h.cfg.MaxUploadSize); err != nil {
		return nil, fmt.Errorf("%w: form data: %w", entity.ErrInvalidParameter, err)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return nil, fmt.Errorf("%w: file", entity.ErrMissingField)
	}
	defer file.Close()

	if err := h.validator.ValidateUpload(header); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}

	doc, err := loader.FromBytes(validator.SanitizeFilename(header.Filename), data)
	if err != nil {
		return nil, err
	}
	if v := r.FormValue("document_id"); v != "" {
		doc.ID = v
	}
	if v := r.FormValue("title"); v != "" {
		doc.Title = v
	}
	if v := r.FormValue("document_type"); v != "" {
		doc.Type = v
	}
	if v := r.FormValue("version"); v != "" {
		doc.Version = v
	}
	if v := r.FormValue("classification"); v != "" {
		c, err := entity.ParseClassification(v)
		if err != nil {
			return nil, err
		}
		doc.Classification = c
	}
	return doc, nil
}

// ListDocuments handles GET /v1/documents
func (h *Handler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := logger.WithAction(r.Context(), "ListDocuments")

	docs, err := h.usecase.ListDocuments(ctx)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}
	response.Success(w, docs)
}

// RemoveDocument handles DELETE /v1/documents/{document_id}
func (h *Handler) RemoveDocument(w http.ResponseWriter, r *http.Request) {
	documentID := chi.URLParam(r, "document_id")
	ctx := logger.AddFields(r.Context(),
		zap.String("document_id", documentID),
		zap.String("action", "RemoveDocument"),
	)

	resp, err := h.usecase.RemoveDocument(ctx, documentID)
	if err != nil {
		h.handleUsecaseError(ctx, w, err)
		return
	}
	response.Success(w, resp)
}

func (h *Handler) respondError(ctx context.Context, w http.ResponseWriter, status int, message string, err error) {
	ctxzap.Error(ctx, message, zap.Error(err))
	response.Error(w, status, message)
}

func (h *Handler) handleUsecaseError(ctx context.Context, w http.ResponseWriter, err error) {
	if errors.Is(err, entity.ErrDocumentNotFound) {
		h.respondError(ctx, w, http.StatusNotFound, "document not found", err)
	} else if errors.Is(err, entity.ErrInvalidParameter) || errors.Is(err, entity.ErrInvalidFormat) || errors.Is(err, entity.ErrMissingField) || errors.Is(err, entity.ErrInvalidDocument) {
		h.respondError(ctx, w, http.StatusBadRequest, err.Error(), err)
	} else if errors.Is(err, entity.ErrUnsupportedFile) {
		h.respondError(ctx, w, http.StatusUnsupportedMediaType, err.Error(), err)
	} else if errors.Is(err, entity.ErrEmbeddingDimensionMismatch) {
		h.respondError(ctx, w, http.StatusInternalServerError, "embedding dimension does not match the index", err)
	} else if errors.Is(err, entity.ErrEmbeddingUnavailable) || errors.Is(err, entity.ErrIndexUnavailable) {
		h.respondError(ctx, w, http.StatusServiceUnavailable, "dependency unavailable", err)
	} else {
		h.respondError(ctx, w, http.StatusInternalServerError, "internal server error", err)
	}
}
