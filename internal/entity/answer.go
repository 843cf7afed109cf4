package entity

import "time"

// PipelineState is the position of a query in the answer pipeline.
type PipelineState string

const (
	StateReceived             PipelineState = "Received"
	StateAuthorizationChecked PipelineState = "AuthorizationChecked"
	StateRetrieved            PipelineState = "Retrieved"
	StateGenerated            PipelineState = "Generated"
	StateCompleted            PipelineState = "Completed"
	StateDenied               PipelineState = "Denied"
	StateFailed               PipelineState = "Failed"
)

func (s PipelineState) Terminal() bool {
	return s == StateCompleted || s == StateDenied || s == StateFailed
}

// Citation is a verified source referenced by the generated text.
type Citation struct {
	Index         int     `json:"index"`
	ChunkID       string  `json:"chunk_id"`
	DocumentID    string  `json:"document_id"`
	DocumentTitle string  `json:"document_title,omitempty"`
	Score         float64 `json:"score"`
}

// Answer is returned for every query, including denied and failed ones.
type Answer struct {
	QueryID             string        `json:"query_id"`
	Question            string        `json:"question"`
	Text                string        `json:"answer"`
	Citations           []Citation    `json:"citations"`
	Success             bool          `json:"success"`
	State               PipelineState `json:"state"`
	InsufficientContext bool          `json:"insufficient_context"`
	ErrorKind           ErrorKind     `json:"error_kind,omitempty"`
	Error               string        `json:"error,omitempty"`
	Elapsed             time.Duration `json:"-"`
	ElapsedSeconds      float64       `json:"elapsed_seconds"`
	Model               string        `json:"model,omitempty"`
	Warnings            []string      `json:"warnings,omitempty"`
}

// CitedDocumentIDs returns the distinct document ids of the citations in order.
func (a *Answer) CitedDocumentIDs() []string {
	seen := make(map[string]struct{}, len(a.Citations))
	ids := make([]string, 0, len(a.Citations))
	for _, c := range a.Citations {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}
	return ids
}
