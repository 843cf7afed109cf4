package entity

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Question string        `json:"question" validate:"required,max=4000"`
	TopK     int           `json:"top_k,omitempty" validate:"omitempty,min=1,max=50"`
	Filters  SearchFilters `json:"filters"`
}

// IngestResponse describes a completed ingestion.
type IngestResponse struct {
	DocumentID string `json:"document_id"`
	Version    string `json:"version"`
	ChunkCount int    `json:"chunk_count"`
	Replaced   bool   `json:"replaced"`
}

type DeleteDocumentResponse struct {
	DocumentID string `json:"document_id"`
	Status     string `json:"status"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}
