package entity

import "strconv"

// Chunk is a contiguous span of a document's text.
//
// Overlap is the byte length of the prefix of Text that repeats the tail of
// the previous chunk. Dropping it from every chunk but the first and
// concatenating the rest gives back the document text.
type Chunk struct {
	ID          string `json:"chunk_id"`
	DocumentID  string `json:"source_document_id"`
	Text        string `json:"text"`
	TokenCount  int    `json:"token_count"`
	Ordinal     int    `json:"ordinal_index"`
	TotalChunks int    `json:"total_chunks_in_document"`
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	Overlap     int    `json:"overlap"`
}

// ChunkID is the deterministic identifier of the ordinal-th chunk of a document.
func ChunkID(documentID string, ordinal int) string {
	return documentID + "_chunk_" + strconv.Itoa(ordinal)
}

// ChunkMetadata is stored next to a vector for filtering and display.
type ChunkMetadata struct {
	DocumentID     string         `json:"document_id"`
	DocumentTitle  string         `json:"document_title"`
	DocumentType   string         `json:"document_type"`
	Classification Classification `json:"classification"`
	Version        string         `json:"version"`
	Ordinal        int            `json:"ordinal"`
	TotalChunks    int            `json:"total_chunks"`
	Text           string         `json:"text"`
}

// IndexEntry is a single vector with the metadata the index keeps for it.
type IndexEntry struct {
	ChunkID  string
	Vector   []float32
	Metadata ChunkMetadata
}

// SearchFilters restrict which entries a search may return.
type SearchFilters struct {
	MaxClassification Classification `json:"max_classification,omitempty" validate:"omitempty,oneof=public internal restricted"`
	DocumentIDs       []string       `json:"document_ids,omitempty" validate:"max=100,dive,required"`
	DocumentTypes     []string       `json:"document_types,omitempty" validate:"max=20,dive,required"`
	ExcludeArchived   bool           `json:"exclude_archived,omitempty"`
}

// Matches reports whether m passes the metadata-only filters.
// ExcludeArchived needs the registry and is applied by the retriever.
func (f SearchFilters) Matches(m ChunkMetadata) bool {
	if !f.MaxClassification.Allows(m.Classification) {
		return false
	}
	if len(f.DocumentIDs) > 0 && !contains(f.DocumentIDs, m.DocumentID) {
		return false
	}
	if len(f.DocumentTypes) > 0 && !contains(f.DocumentTypes, m.DocumentType) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// SearchHit is one search result.
type SearchHit struct {
	ChunkID  string
	Score    float64
	Metadata ChunkMetadata
}
