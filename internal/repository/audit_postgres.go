package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/futig/compliance-rag/internal/entity"
)

// AuditPostgres appends audit records to the audit_log table.
type AuditPostgres struct {
	db *pgxpool.Pool
}

func NewAuditPostgres(db *pgxpool.Pool) *AuditPostgres {
	return &AuditPostgres{db: db}
}

func (r *AuditPostgres) Record(ctx context.Context, rec entity.AuditRecord) error {
	_, err := r.db.Exec(ctx, `
INSERT INTO audit_log (query_id, user_id, recorded_at, question, sources, chunk_ids,
                       success, state, elapsed_seconds, error_kind, error)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.QueryID, rec.UserID, rec.Timestamp, rec.Question, nonNil(rec.Sources), nonNil(rec.ChunkIDs),
		rec.Success, string(rec.State), rec.ElapsedSeconds, string(rec.ErrorKind), rec.Error,
	)
	if err != nil {
		return fmt.Errorf("insert audit record: %w", err)
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
