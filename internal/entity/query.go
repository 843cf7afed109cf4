package entity

// CapabilityQueryRAG gates answer_query.
const (
	CapabilityQueryRAG        = "can_query_rag"
	CapabilityViewDashboard   = "can_view_dashboard"
	CapabilityModifyKnowledge = "can_modify_knowledge_base"
)

// Query lives for one pipeline invocation. The deadline travels in the context.
type Query struct {
	ID       string
	Question string
	Identity Identity
	TopK     int
	Filters  SearchFilters
}

// RetrievedPassage is a chunk together with its similarity to the query.
type RetrievedPassage struct {
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title"`
	Text          string  `json:"text"`
	Ordinal       int     `json:"ordinal"`
	TotalChunks   int     `json:"total_chunks"`
	Score         float64 `json:"score"`
}

// RetrievalResult is ordered by descending score and has unique chunk ids.
type RetrievalResult struct {
	Passages []RetrievedPassage
}

func (r RetrievalResult) Empty() bool {
	return len(r.Passages) == 0
}

func (r RetrievalResult) Contains(chunkID string) bool {
	for _, p := range r.Passages {
		if p.ChunkID == chunkID {
			return true
		}
	}
	return false
}
