package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/index"
)

var _ index.VectorIndex = &ChunkVectorPostgres{}

// ChunkVectorPostgres is a vector index on top of the pgvector extension.
// Search is exact; ReplaceDocument runs in one transaction.
type ChunkVectorPostgres struct {
	db        *pgxpool.Pool
	dimension int
}

func NewChunkVectorPostgres(db *pgxpool.Pool, dimension int) *ChunkVectorPostgres {
	return &ChunkVectorPostgres{db: db, dimension: dimension}
}

func (r *ChunkVectorPostgres) Dimension() int {
	return r.dimension
}

const upsertChunkSQL = `
INSERT INTO chunk_vectors (chunk_id, document_id, document_title, document_type, classification,
                           version, ordinal, total_chunks, text, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (chunk_id) DO UPDATE SET
    document_id    = EXCLUDED.document_id,
    document_title = EXCLUDED.document_title,
    document_type  = EXCLUDED.document_type,
    classification = EXCLUDED.classification,
    version        = EXCLUDED.version,
    ordinal        = EXCLUDED.ordinal,
    total_chunks   = EXCLUDED.total_chunks,
    text           = EXCLUDED.text,
    embedding      = EXCLUDED.embedding,
    seq            = nextval(pg_get_serial_sequence('chunk_vectors', 'seq'))`

func (r *ChunkVectorPostgres) Upsert(ctx context.Context, entries []entity.IndexEntry) error {
	if err := r.validate("", entries); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		return upsertChunks(ctx, tx, entries)
	})
}

func (r *ChunkVectorPostgres) DeleteByDocument(ctx context.Context, documentID string) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("%w: delete chunks: %w", entity.ErrIndexUnavailable, err)
	}
	return nil
}

func (r *ChunkVectorPostgres) ReplaceDocument(ctx context.Context, documentID string, entries []entity.IndexEntry) error {
	if err := r.validate(documentID, entries); err != nil {
		return err
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM chunk_vectors WHERE document_id = $1`, documentID); err != nil {
			return fmt.Errorf("delete chunks: %w", err)
		}
		return upsertChunks(ctx, tx, entries)
	})
}

func upsertChunks(ctx context.Context, tx pgx.Tx, entries []entity.IndexEntry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		m := e.Metadata
		batch.Queue(upsertChunkSQL, e.ChunkID, m.DocumentID, m.DocumentTitle, m.DocumentType,
			string(m.Classification), m.Version, m.Ordinal, m.TotalChunks, m.Text, pgvector.NewVector(e.Vector))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("upsert chunks: %w", err)
	}
	return nil
}

func (r *ChunkVectorPostgres) inTx(ctx context.Context, fn func(pgx.Tx) error) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %w", entity.ErrIndexUnavailable, err)
	}
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return fmt.Errorf("%w: %w", entity.ErrIndexUnavailable, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %w", entity.ErrIndexUnavailable, err)
	}
	return nil
}

func (r *ChunkVectorPostgres) validate(documentID string, entries []entity.IndexEntry) error {
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: entry without chunk id", entity.ErrInvalidDocument)
		}
		if documentID != "" && e.Metadata.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				entity.ErrInvalidDocument, e.ChunkID, e.Metadata.DocumentID, documentID)
		}
		if len(e.Vector) != r.dimension {
			return fmt.Errorf("%w: vector has %d dimensions, index has %d",
				entity.ErrEmbeddingDimensionMismatch, len(e.Vector), r.dimension)
		}
	}
	return nil
}

func (r *ChunkVectorPostgres) Search(ctx context.Context, vector []float32, k int, filters entity.SearchFilters) ([]entity.SearchHit, error) {
	if len(vector) != r.dimension {
		return nil, fmt.Errorf("%w: vector has %d dimensions, index has %d",
			entity.ErrEmbeddingDimensionMismatch, len(vector), r.dimension)
	}
	if k <= 0 {
		return nil, nil
	}

	query, args := buildSearchQuery(pgvector.NewVector(vector), k, filters)
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", entity.ErrIndexUnavailable, err)
	}
	defer rows.Close()

	var hits []entity.SearchHit
	for rows.Next() {
		var (
			h     entity.SearchHit
			class string
		)
		if err := rows.Scan(&h.ChunkID, &h.Metadata.DocumentID, &h.Metadata.DocumentTitle, &h.Metadata.DocumentType,
			&class, &h.Metadata.Version, &h.Metadata.Ordinal, &h.Metadata.TotalChunks, &h.Metadata.Text, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Metadata.Classification = entity.Classification(class)
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: search rows: %w", entity.ErrIndexUnavailable, err)
	}
	return hits, nil
}

// buildSearchQuery orders by cosine similarity, then insertion order.
func buildSearchQuery(vec pgvector.Vector, k int, f entity.SearchFilters) (string, []any) {
	args := []any{vec}
	var where []string

	if f.MaxClassification != "" {
		var allowed []string
		for _, c := range []entity.Classification{entity.ClassificationPublic, entity.ClassificationInternal, entity.ClassificationRestricted} {
			if f.MaxClassification.Allows(c) {
				allowed = append(allowed, string(c))
			}
		}
		args = append(args, allowed)
		where = append(where, fmt.Sprintf("classification = ANY($%d)", len(args)))
	}
	if len(f.DocumentIDs) > 0 {
		args = append(args, f.DocumentIDs)
		where = append(where, fmt.Sprintf("document_id = ANY($%d)", len(args)))
	}
	if len(f.DocumentTypes) > 0 {
		args = append(args, f.DocumentTypes)
		where = append(where, fmt.Sprintf("document_type = ANY($%d)", len(args)))
	}

	var sb strings.Builder
	sb.WriteString(`SELECT chunk_id, document_id, document_title, document_type, classification, version,
       ordinal, total_chunks, text, 1 - (embedding <=> $1) AS score
FROM chunk_vectors`)
	if len(where) > 0 {
		sb.WriteString("\nWHERE ")
		sb.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, k)
	fmt.Fprintf(&sb, "\nORDER BY score DESC, seq ASC\nLIMIT $%d", len(args))
	return sb.String(), args
}

func (r *ChunkVectorPostgres) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM chunk_vectors`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%w: count: %w", entity.ErrIndexUnavailable, err)
	}
	return n, nil
}
