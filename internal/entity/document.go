package entity

import (
	"fmt"
	"strings"
	"time"
)

// Classification is the sensitivity level of a document. Levels are ordered.
type Classification string

const (
	ClassificationPublic     Classification = "public"
	ClassificationInternal   Classification = "internal"
	ClassificationRestricted Classification = "restricted"
)

func (c Classification) Level() int {
	switch c {
	case ClassificationPublic:
		return 0
	case ClassificationInternal:
		return 1
	case ClassificationRestricted:
		return 2
	default:
		return -1
	}
}

func (c Classification) IsValid() bool {
	return c.Level() >= 0
}

// Allows reports whether a document classified as other is visible under ceiling c.
func (c Classification) Allows(other Classification) bool {
	if c == "" {
		return true
	}
	return other.Level() <= c.Level()
}

func ParseClassification(s string) (Classification, error) {
	c := Classification(strings.ToLower(strings.TrimSpace(s)))
	if c == "" {
		return ClassificationInternal, nil
	}
	if !c.IsValid() {
		return "", fmt.Errorf("%w: classification %q", ErrInvalidParameter, s)
	}
	return c, nil
}

type DocumentStatus string

const (
	DocumentStatusActive   DocumentStatus = "active"
	DocumentStatusArchived DocumentStatus = "archived"
)

// Document is one version of a regulatory text. Updates create a new version.
type Document struct {
	ID             string            `json:"document_id" validate:"required,max=200"`
	Title          string            `json:"title" validate:"max=500"`
	Text           string            `json:"text" validate:"required"`
	Type           string            `json:"document_type" validate:"max=100"`
	Classification Classification    `json:"classification" validate:"omitempty,oneof=public internal restricted"`
	Version        string            `json:"version" validate:"max=50"`
	Source         string            `json:"source,omitempty"`
	Tags           map[string]string `json:"tags,omitempty"`
}

// DocumentMetadata is what the document registry knows about a document.
type DocumentMetadata struct {
	DocumentID       string            `json:"document_id"`
	Title            string            `json:"title"`
	Type             string            `json:"document_type"`
	Classification   Classification    `json:"classification"`
	Status           DocumentStatus    `json:"status"`
	Version          string            `json:"version"`
	Source           string            `json:"source,omitempty"`
	ChunkCount       int               `json:"chunk_count"`
	TimesReferenced  int64             `json:"times_referenced"`
	LastReferencedAt *time.Time        `json:"last_referenced_at,omitempty"`
	IngestedAt       time.Time         `json:"ingested_at"`
	Tags             map[string]string `json:"tags,omitempty"`
}

func (d *Document) Metadata() DocumentMetadata {
	return DocumentMetadata{
		DocumentID:     d.ID,
		Title:          d.Title,
		Type:           d.Type,
		Classification: d.Classification,
		Status:         DocumentStatusActive,
		Version:        d.Version,
		Source:         d.Source,
		Tags:           d.Tags,
	}
}
