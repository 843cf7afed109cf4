// Package ingest chunks, embeds and indexes documents.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/keylock"
	"github.com/futig/compliance-rag/internal/pkg/logger"
)

const (
	DefaultDocumentType = "compliance"
	DefaultVersion      = "1.0"
)

// Result is the outcome of one document in a batch.
type Result struct {
	DocumentID string
	Response   *entity.IngestResponse
	Err        error
}

type Usecase struct {
	chunker   Chunker
	embedder  Embedder
	index     Index
	registry  Registry
	validator DocumentValidator
	runner    Runner
	locks     *keylock.KeyLock
}

func NewUsecase(
	chunker Chunker,
	embedder Embedder,
	index Index,
	registry Registry,
	validator DocumentValidator,
	runner Runner,
) *Usecase {
	return &Usecase{
		chunker:   chunker,
		embedder:  embedder,
		index:     index,
		registry:  registry,
		validator: validator,
		runner:    runner,
		locks:     keylock.New(),
	}
}

// IngestDocument indexes doc, replacing any earlier version. Queries see
// either the old chunk set or the new one. Ingestions of the same document
// run one at a time.
func (uc *Usecase) IngestDocument(ctx context.Context, doc *entity.Document) (*entity.IngestResponse, error) {
	applyDefaults(doc)
	if err := uc.validator.ValidateDocument(doc); err != nil {
		return nil, err
	}

	ctx = logger.WithDocument(ctx, doc.ID)
	unlock := uc.locks.Lock(doc.ID)
	defer unlock()

	chunks := uc.chunker.Split(*doc)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %s has no text", entity.ErrInvalidDocument, doc.ID)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vectors, err := uc.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed chunks: %w", err)
	}

	entries := make([]entity.IndexEntry, len(chunks))
	for i, c := range chunks {
		entries[i] = entity.IndexEntry{
			ChunkID: c.ID,
			Vector:  vectors[i],
			Metadata: entity.ChunkMetadata{
				DocumentID:     doc.ID,
				DocumentTitle:  doc.Title,
				DocumentType:   doc.Type,
				Classification: doc.Classification,
				Version:        doc.Version,
				Ordinal:        c.Ordinal,
				TotalChunks:    c.TotalChunks,
				Text:           c.Text,
			},
		}
	}

	replaced, err := uc.exists(ctx, doc.ID)
	if err != nil {
		return nil, err
	}

	if err := uc.index.ReplaceDocument(ctx, doc.ID, entries); err != nil {
		return nil, fmt.Errorf("index chunks: %w", err)
	}

	meta := doc.Metadata()
	meta.ChunkCount = len(chunks)
	if err := uc.registry.Register(ctx, meta); err != nil {
		return nil, fmt.Errorf("register document: %w", err)
	}

	ctxzap.Info(ctx, "document ingested",
		zap.String("version", doc.Version),
		zap.Int("chunks", len(chunks)),
		zap.Bool("replaced", replaced),
	)

	return &entity.IngestResponse{
		DocumentID: doc.ID,
		Version:    doc.Version,
		ChunkCount: len(chunks),
		Replaced:   replaced,
	}, nil
}

// IngestBatch ingests docs concurrently. Results keep the input order.
func (uc *Usecase) IngestBatch(ctx context.Context, docs []*entity.Document) []Result {
	results := make([]Result, len(docs))
	errs := uc.runner.Run(ctx, len(docs), func(ctx context.Context, i int) error {
		resp, err := uc.IngestDocument(ctx, docs[i])
		results[i].Response = resp
		return err
	})
	for i, doc := range docs {
		results[i].DocumentID = doc.ID
		results[i].Err = errs[i]
		if errs[i] != nil {
			ctxzap.Warn(ctx, "document not ingested", logger.DocumentID(doc.ID), zap.Error(errs[i]))
		}
	}
	return results
}

// RemoveDocument drops the document's chunks from the index and archives
// it in the registry.
func (uc *Usecase) RemoveDocument(ctx context.Context, documentID string) (*entity.DeleteDocumentResponse, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return nil, fmt.Errorf("%w: document id", entity.ErrMissingField)
	}

	unlock := uc.locks.Lock(documentID)
	defer unlock()

	if err := uc.index.DeleteByDocument(ctx, documentID); err != nil {
		return nil, fmt.Errorf("delete chunks: %w", err)
	}
	if err := uc.registry.SetStatus(ctx, documentID, entity.DocumentStatusArchived); err != nil {
		return nil, fmt.Errorf("archive document: %w", err)
	}

	ctxzap.Info(ctx, "document removed", logger.DocumentID(documentID))
	return &entity.DeleteDocumentResponse{
		DocumentID: documentID,
		Status:     string(entity.DocumentStatusArchived),
	}, nil
}

func (uc *Usecase) ListDocuments(ctx context.Context) ([]entity.DocumentMetadata, error) {
	docs, err := uc.registry.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

func (uc *Usecase) exists(ctx context.Context, documentID string) (bool, error) {
	_, err := uc.registry.GetMetadata(ctx, documentID)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, entity.ErrDocumentNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("lookup document: %w", err)
	}
}

func applyDefaults(doc *entity.Document) {
	doc.ID = strings.TrimSpace(doc.ID)
	if strings.TrimSpace(doc.Title) == "" {
		doc.Title = doc.ID
	}
	if doc.Type == "" {
		doc.Type = DefaultDocumentType
	}
	if doc.Version == "" {
		doc.Version = DefaultVersion
	}
	if doc.Classification == "" {
		doc.Classification = entity.ClassificationInternal
	}
}
