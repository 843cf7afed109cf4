package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/futig/compliance-rag/internal/entity"
)

// DocumentPostgres is the document registry backed by the documents table.
type DocumentPostgres struct {
	db *pgxpool.Pool
}

func NewDocumentPostgres(db *pgxpool.Pool) *DocumentPostgres {
	return &DocumentPostgres{db: db}
}

const documentColumns = `document_id, title, document_type, classification, status, version, source,
       chunk_count, times_referenced, last_referenced_at, ingested_at, tags`

// Register upserts metadata for a document version; reference counters are kept.
func (r *DocumentPostgres) Register(ctx context.Context, meta entity.DocumentMetadata) error {
	tags, err := json.Marshal(meta.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}
	if meta.Tags == nil {
		tags = []byte("{}")
	}
	status := meta.Status
	if status == "" {
		status = entity.DocumentStatusActive
	}
	ingestedAt := meta.IngestedAt
	if ingestedAt.IsZero() {
		ingestedAt = time.Now().UTC()
	}

	_, err = r.db.Exec(ctx, `
INSERT INTO documents (document_id, title, document_type, classification, status, version, source,
                       chunk_count, ingested_at, tags)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (document_id) DO UPDATE SET
    title          = EXCLUDED.title,
    document_type  = EXCLUDED.document_type,
    classification = EXCLUDED.classification,
    status         = EXCLUDED.status,
    version        = EXCLUDED.version,
    source         = EXCLUDED.source,
    chunk_count    = EXCLUDED.chunk_count,
    ingested_at    = EXCLUDED.ingested_at,
    tags           = EXCLUDED.tags`,
		meta.DocumentID, meta.Title, meta.Type, string(meta.Classification), string(status), meta.Version,
		meta.Source, meta.ChunkCount, ingestedAt, tags,
	)
	if err != nil {
		return fmt.Errorf("register document: %w", err)
	}
	return nil
}

func (r *DocumentPostgres) GetMetadata(ctx context.Context, documentID string) (*entity.DocumentMetadata, error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE document_id = $1`, documentID)
	meta, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, documentID)
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return meta, nil
}

func (r *DocumentPostgres) IncrementReference(ctx context.Context, documentID string) error {
	tag, err := r.db.Exec(ctx, `
UPDATE documents
SET times_referenced = times_referenced + 1, last_referenced_at = NOW()
WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("increment reference: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, documentID)
	}
	return nil
}

func (r *DocumentPostgres) SetStatus(ctx context.Context, documentID string, status entity.DocumentStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE documents SET status = $2 WHERE document_id = $1`, documentID, string(status))
	if err != nil {
		return fmt.Errorf("set document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, documentID)
	}
	return nil
}

func (r *DocumentPostgres) List(ctx context.Context) ([]entity.DocumentMetadata, error) {
	rows, err := r.db.Query(ctx, `SELECT `+documentColumns+` FROM documents ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var out []entity.DocumentMetadata
	for rows.Next() {
		meta, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		out = append(out, *meta)
	}
	return out, rows.Err()
}

func scanDocument(row pgx.Row) (*entity.DocumentMetadata, error) {
	var (
		m                      entity.DocumentMetadata
		classification, status string
		tags                   []byte
	)
	if err := row.Scan(&m.DocumentID, &m.Title, &m.Type, &classification, &status, &m.Version, &m.Source,
		&m.ChunkCount, &m.TimesReferenced, &m.LastReferencedAt, &m.IngestedAt, &tags); err != nil {
		return nil, err
	}
	m.Classification = entity.Classification(classification)
	m.Status = entity.DocumentStatus(status)
	if len(tags) > 0 {
		if err := json.Unmarshal(tags, &m.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
		if len(m.Tags) == 0 {
			m.Tags = nil
		}
	}
	return &m, nil
}
