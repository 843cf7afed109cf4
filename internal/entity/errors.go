package entity

import (
	"context"
	"errors"
)

// Pipeline errors
var (
	ErrPermissionDenied           = errors.New("permission denied")
	ErrEmbeddingUnavailable       = errors.New("embedding service unavailable")
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrIndexUnavailable           = errors.New("vector index unavailable")
	ErrGenerationFailed           = errors.New("generation failed")
	ErrTimeout                    = errors.New("query deadline exceeded")
	ErrInvalidQuery               = errors.New("invalid query")
)

// Document errors
var (
	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidDocument  = errors.New("invalid document")
	ErrUnsupportedFile  = errors.New("unsupported file type")
)

// Validation errors
var (
	ErrMissingField     = errors.New("required field is missing")
	ErrInvalidFormat    = errors.New("invalid format")
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ErrorKind is the stable, serializable name of a terminal pipeline error.
type ErrorKind string

const (
	ErrorKindNone                       ErrorKind = ""
	ErrorKindPermissionDenied           ErrorKind = "PermissionDenied"
	ErrorKindEmbeddingUnavailable       ErrorKind = "EmbeddingUnavailable"
	ErrorKindEmbeddingDimensionMismatch ErrorKind = "EmbeddingDimensionMismatch"
	ErrorKindIndexUnavailable           ErrorKind = "IndexUnavailable"
	ErrorKindGenerationFailed           ErrorKind = "GenerationFailed"
	ErrorKindTimeout                    ErrorKind = "Timeout"
	ErrorKindInvalidQuery               ErrorKind = "InvalidQuery"
	ErrorKindInternal                   ErrorKind = "Internal"
)

var kindBySentinel = []struct {
	err  error
	kind ErrorKind
}{
	{ErrPermissionDenied, ErrorKindPermissionDenied},
	{ErrTimeout, ErrorKindTimeout},
	{context.DeadlineExceeded, ErrorKindTimeout},
	{ErrEmbeddingDimensionMismatch, ErrorKindEmbeddingDimensionMismatch},
	{ErrEmbeddingUnavailable, ErrorKindEmbeddingUnavailable},
	{ErrIndexUnavailable, ErrorKindIndexUnavailable},
	{ErrGenerationFailed, ErrorKindGenerationFailed},
	{ErrInvalidQuery, ErrorKindInvalidQuery},
}

// KindOf maps err to its taxonomy kind. Unknown errors are Internal.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindNone
	}
	for _, s := range kindBySentinel {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return ErrorKindInternal
}
