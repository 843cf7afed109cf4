package entity

import "time"

// AuditRecord is emitted exactly once per query.
type AuditRecord struct {
	QueryID        string        `json:"query_id"`
	UserID         string        `json:"user_id"`
	Timestamp      time.Time     `json:"timestamp"`
	Question       string        `json:"question"`
	Sources        []string      `json:"sources"`
	ChunkIDs       []string      `json:"chunk_ids"`
	Success        bool          `json:"success"`
	State          PipelineState `json:"state"`
	ElapsedSeconds float64       `json:"elapsed_seconds"`
	ErrorKind      ErrorKind     `json:"error_kind,omitempty"`
	Error          string        `json:"error,omitempty"`
}

// NewAuditRecord builds the audit record for a finished answer.
func NewAuditRecord(identity Identity, answer *Answer, at time.Time) AuditRecord {
	chunkIDs := make([]string, 0, len(answer.Citations))
	for _, c := range answer.Citations {
		chunkIDs = append(chunkIDs, c.ChunkID)
	}
	return AuditRecord{
		QueryID:        answer.QueryID,
		UserID:         identity.Subject(),
		Timestamp:      at.UTC(),
		Question:       answer.Question,
		Sources:        answer.CitedDocumentIDs(),
		ChunkIDs:       chunkIDs,
		Success:        answer.Success,
		State:          answer.State,
		ElapsedSeconds: answer.ElapsedSeconds,
		ErrorKind:      answer.ErrorKind,
		Error:          answer.Error,
	}
}
