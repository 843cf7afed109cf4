package document

import (
	"context"
	"mime/multipart"

	"github.com/futig/compliance-rag/internal/entity"
)

type IngestUsecase interface {
	IngestDocument(ctx context.Context, doc *entity.Document) (*entity.IngestResponse, error)
	RemoveDocument(ctx context.Context, documentID string) (*entity.DeleteDocumentResponse, error)
	ListDocuments(ctx context.Context) ([]entity.DocumentMetadata, error)
}

type UploadValidator interface {
	ValidateUpload(fh *multipart.FileHeader) error
}
