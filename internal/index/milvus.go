package index

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/milvus-io/milvus/client/v2/column"
	milvusentity "github.com/milvus-io/milvus/client/v2/entity"
	milvusindex "github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/entity"
)

const (
	fieldChunkID        = "chunk_id"
	fieldDocumentID     = "document_id"
	fieldDocumentTitle  = "document_title"
	fieldDocumentType   = "document_type"
	fieldClassification = "classification"
	fieldVersion        = "version"
	fieldOrdinal        = "ordinal"
	fieldTotalChunks    = "total_chunks"
	fieldText           = "text"
	fieldSeq            = "seq"
	fieldEmbedding      = "embedding"
)

var milvusOutputFields = []string{
	fieldDocumentID, fieldDocumentTitle, fieldDocumentType, fieldClassification,
	fieldVersion, fieldOrdinal, fieldTotalChunks, fieldText, fieldSeq,
}

// Milvus keeps chunks in a Milvus collection keyed by chunk id.
type Milvus struct {
	client     *milvusclient.Client
	collection string
	dimension  int
	seq        atomic.Int64
}

func NewMilvus(ctx context.Context, cfg config.MilvusConfig, dimension int) (*Milvus, error) {
	c, err := milvusclient.New(ctx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.DBName,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect to milvus: %w", entity.ErrIndexUnavailable, err)
	}

	m := &Milvus{client: c, collection: cfg.Collection, dimension: dimension}
	if err := m.ensureCollection(ctx); err != nil {
		c.Close(ctx)
		return nil, err
	}
	m.seq.Store(time.Now().UnixNano())
	return m, nil
}

func (m *Milvus) Close(ctx context.Context) error {
	return m.client.Close(ctx)
}

func (m *Milvus) Dimension() int {
	return m.dimension
}

func (m *Milvus) ensureCollection(ctx context.Context) error {
	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("%w: check collection: %w", entity.ErrIndexUnavailable, err)
	}

	if !exists {
		schema := milvusentity.NewSchema().
			WithName(m.collection).
			WithDescription("regulatory document chunks").
			WithAutoID(false).
			WithField(milvusentity.NewField().WithName(fieldChunkID).WithDataType(milvusentity.FieldTypeVarChar).
				WithMaxLength(256).WithIsPrimaryKey(true)).
			WithField(milvusentity.NewField().WithName(fieldEmbedding).WithDataType(milvusentity.FieldTypeFloatVector).
				WithDim(int64(m.dimension))).
			WithField(varchar(fieldDocumentID, 200)).
			WithField(varchar(fieldDocumentTitle, 500)).
			WithField(varchar(fieldDocumentType, 100)).
			WithField(varchar(fieldClassification, 32)).
			WithField(varchar(fieldVersion, 50)).
			WithField(varchar(fieldText, 65535)).
			WithField(milvusentity.NewField().WithName(fieldOrdinal).WithDataType(milvusentity.FieldTypeInt64)).
			WithField(milvusentity.NewField().WithName(fieldTotalChunks).WithDataType(milvusentity.FieldTypeInt64)).
			WithField(milvusentity.NewField().WithName(fieldSeq).WithDataType(milvusentity.FieldTypeInt64))

		if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(m.collection, schema).
			WithConsistencyLevel(milvusentity.ClStrong)); err != nil {
			return fmt.Errorf("%w: create collection: %w", entity.ErrIndexUnavailable, err)
		}

		idx := milvusindex.NewIvfFlatIndex(milvusentity.COSINE, 128)
		task, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(m.collection, fieldEmbedding, idx))
		if err != nil {
			return fmt.Errorf("%w: create index: %w", entity.ErrIndexUnavailable, err)
		}
		if err := task.Await(ctx); err != nil {
			return fmt.Errorf("%w: wait for index: %w", entity.ErrIndexUnavailable, err)
		}
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(m.collection))
	if err != nil {
		return fmt.Errorf("%w: load collection: %w", entity.ErrIndexUnavailable, err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return fmt.Errorf("%w: wait for load: %w", entity.ErrIndexUnavailable, err)
	}
	return nil
}

func varchar(name string, maxLen int64) *milvusentity.Field {
	return milvusentity.NewField().WithName(name).WithDataType(milvusentity.FieldTypeVarChar).WithMaxLength(maxLen)
}

func (m *Milvus) Upsert(ctx context.Context, entries []entity.IndexEntry) error {
	if err := validateEntries(m.dimension, "", entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = strconv.Quote(e.ChunkID)
	}
	if err := m.delete(ctx, fmt.Sprintf("%s in [%s]", fieldChunkID, strings.Join(ids, ","))); err != nil {
		return err
	}
	return m.insert(ctx, entries)
}

func (m *Milvus) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := m.delete(ctx, fmt.Sprintf("%s == %s", fieldDocumentID, strconv.Quote(documentID))); err != nil {
		return err
	}
	return m.flush(ctx)
}

// ReplaceDocument deletes then inserts. Milvus has no multi-statement
// transactions; callers serialize writes per document.
func (m *Milvus) ReplaceDocument(ctx context.Context, documentID string, entries []entity.IndexEntry) error {
	if err := validateEntries(m.dimension, documentID, entries); err != nil {
		return err
	}
	if err := m.delete(ctx, fmt.Sprintf("%s == %s", fieldDocumentID, strconv.Quote(documentID))); err != nil {
		return err
	}
	if len(entries) == 0 {
		return m.flush(ctx)
	}
	return m.insert(ctx, entries)
}

func (m *Milvus) delete(ctx context.Context, expr string) error {
	if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.collection).WithExpr(expr)); err != nil {
		return fmt.Errorf("%w: delete: %w", entity.ErrIndexUnavailable, err)
	}
	return nil
}

func (m *Milvus) flush(ctx context.Context) error {
	task, err := m.client.Flush(ctx, milvusclient.NewFlushOption(m.collection))
	if err != nil {
		return fmt.Errorf("%w: flush: %w", entity.ErrIndexUnavailable, err)
	}
	if err := task.Await(ctx); err != nil {
		return fmt.Errorf("%w: wait for flush: %w", entity.ErrIndexUnavailable, err)
	}
	return nil
}

func (m *Milvus) insert(ctx context.Context, entries []entity.IndexEntry) error {
	n := len(entries)
	var (
		chunkIDs  = make([]string, n)
		vectors   = make([][]float32, n)
		docIDs    = make([]string, n)
		titles    = make([]string, n)
		types     = make([]string, n)
		classes   = make([]string, n)
		versions  = make([]string, n)
		texts     = make([]string, n)
		ordinals  = make([]int64, n)
		totals    = make([]int64, n)
		sequences = make([]int64, n)
	)
	for i, e := range entries {
		chunkIDs[i] = e.ChunkID
		vectors[i] = e.Vector
		docIDs[i] = e.Metadata.DocumentID
		titles[i] = e.Metadata.DocumentTitle
		types[i] = e.Metadata.DocumentType
		classes[i] = string(e.Metadata.Classification)
		versions[i] = e.Metadata.Version
		texts[i] = e.Metadata.Text
		ordinals[i] = int64(e.Metadata.Ordinal)
		totals[i] = int64(e.Metadata.TotalChunks)
		sequences[i] = m.seq.Add(1)
	}

	_, err := m.client.Insert(ctx, milvusclient.NewColumnBasedInsertOption(m.collection,
		column.NewColumnVarChar(fieldChunkID, chunkIDs),
		column.NewColumnFloatVector(fieldEmbedding, m.dimension, vectors),
		column.NewColumnVarChar(fieldDocumentID, docIDs),
		column.NewColumnVarChar(fieldDocumentTitle, titles),
		column.NewColumnVarChar(fieldDocumentType, types),
		column.NewColumnVarChar(fieldClassification, classes),
		column.NewColumnVarChar(fieldVersion, versions),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnInt64(fieldOrdinal, ordinals),
		column.NewColumnInt64(fieldTotalChunks, totals),
		column.NewColumnInt64(fieldSeq, sequences),
	))
	if err != nil {
		return fmt.Errorf("%w: insert: %w", entity.ErrIndexUnavailable, err)
	}
	return m.flush(ctx)
}

func (m *Milvus) Search(ctx context.Context, vector []float32, k int, filters entity.SearchFilters) ([]entity.SearchHit, error) {
	if err := checkDimension(m.dimension, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	results, err := m.client.Search(ctx, m.searchOption(vector, k, filters))
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", entity.ErrIndexUnavailable, err)
	}
	if len(results) == 0 {
		return nil, nil
	}

	rs := results[0]
	hits := make([]rankedHit, rs.ResultCount)
	if idCol, ok := rs.IDs.(*column.ColumnVarChar); ok {
		for i := range hits {
			hits[i].hit.ChunkID = idCol.Data()[i]
		}
	}
	for i := range hits {
		hits[i].hit.Score = float64(rs.Scores[i])
	}
	for _, field := range rs.Fields {
		switch col := field.(type) {
		case *column.ColumnVarChar:
			data := col.Data()
			for i := range hits {
				setVarChar(&hits[i].hit.Metadata, col.Name(), data[i])
			}
		case *column.ColumnInt64:
			data := col.Data()
			for i := range hits {
				switch col.Name() {
				case fieldOrdinal:
					hits[i].hit.Metadata.Ordinal = int(data[i])
				case fieldTotalChunks:
					hits[i].hit.Metadata.TotalChunks = int(data[i])
				case fieldSeq:
					hits[i].seq = data[i]
				}
			}
		}
	}
	return rank(hits, k), nil
}

func setVarChar(m *entity.ChunkMetadata, name, value string) {
	switch name {
	case fieldDocumentID:
		m.DocumentID = value
	case fieldDocumentTitle:
		m.DocumentTitle = value
	case fieldDocumentType:
		m.DocumentType = value
	case fieldClassification:
		m.Classification = entity.Classification(value)
	case fieldVersion:
		m.Version = value
	case fieldText:
		m.Text = value
	}
}

// milvusFilter renders the metadata filters as a boolean expression.
// searchOption reads at Strong consistency so a completed delete is never
// served from an older snapshot.
func (m *Milvus) searchOption(vector []float32, k int, filters entity.SearchFilters) milvusclient.SearchOption {
	// Over-fetch so equal scores at the cut can be re-ordered by insertion.
	opt := milvusclient.NewSearchOption(m.collection, 2*k, []milvusentity.Vector{milvusentity.FloatVector(vector)}).
		WithANNSField(fieldEmbedding).
		WithSearchParam("nprobe", "16").
		WithConsistencyLevel(milvusentity.ClStrong).
		WithOutputFields(milvusOutputFields...)
	if expr := milvusFilter(filters); expr != "" {
		opt = opt.WithFilter(expr)
	}
	return opt
}

func milvusFilter(f entity.SearchFilters) string {
	var parts []string
	if f.MaxClassification != "" {
		var allowed []string
		for _, c := range []entity.Classification{entity.ClassificationPublic, entity.ClassificationInternal, entity.ClassificationRestricted} {
			if f.MaxClassification.Allows(c) {
				allowed = append(allowed, string(c))
			}
		}
		parts = append(parts, inExpr(fieldClassification, allowed))
	}
	if len(f.DocumentIDs) > 0 {
		parts = append(parts, inExpr(fieldDocumentID, f.DocumentIDs))
	}
	if len(f.DocumentTypes) > 0 {
		parts = append(parts, inExpr(fieldDocumentType, f.DocumentTypes))
	}
	return strings.Join(parts, " && ")
}

func inExpr(field string, values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = strconv.Quote(v)
	}
	return fmt.Sprintf("%s in [%s]", field, strings.Join(quoted, ", "))
}

func (m *Milvus) Count(ctx context.Context) (int, error) {
	stats, err := m.client.GetCollectionStats(ctx, milvusclient.NewGetCollectionStatsOption(m.collection))
	if err != nil {
		return 0, fmt.Errorf("%w: collection stats: %w", entity.ErrIndexUnavailable, err)
	}
	n, err := strconv.Atoi(stats["row_count"])
	if err != nil {
		return 0, fmt.Errorf("parse row count: %w", err)
	}
	return n, nil
}
