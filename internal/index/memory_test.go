package index

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futig/compliance-rag/internal/entity"
)

func entry(doc string, ord int, vec ...float32) entity.IndexEntry {
	return entity.IndexEntry{
		ChunkID: entity.ChunkID(doc, ord),
		Vector:  vec,
		Metadata: entity.ChunkMetadata{
			DocumentID:     doc,
			Classification: entity.ClassificationInternal,
			DocumentType:   "policy",
			Ordinal:        ord,
		},
	}
}

func ids(hits []entity.SearchHit) []string {
	out := make([]string, len(hits))
	for i, h := range hits {
		out[i] = h.ChunkID
	}
	return out
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.InDelta(t, -1.0, CosineSimilarity([]float32{1, 0}, []float32{-3, 0}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 1}))
}

func TestMemory_SearchOrdersByScore(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, []entity.IndexEntry{
		entry("a", 0, 0, 1),
		entry("a", 1, 1, 0),
		entry("b", 0, 1, 1),
	}))

	hits, err := idx.Search(ctx, []float32{1, 0.1}, 3, entity.SearchFilters{})

	require.NoError(t, err)
	assert.Equal(t, []string{"a_chunk_1", "b_chunk_0", "a_chunk_0"}, ids(hits))
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i-1].Score, hits[i].Score)
	}
}

func TestMemory_SearchNeverExceedsK(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	for i := 0; i < 10; i++ {
		require.NoError(t, idx.Upsert(ctx, []entity.IndexEntry{entry("doc", i, float32(i), 1)}))
	}

	for k := 0; k <= 12; k++ {
		hits, err := idx.Search(ctx, []float32{1, 1}, k, entity.SearchFilters{})
		require.NoError(t, err)
		assert.LessOrEqual(t, len(hits), k)
	}
}

func TestMemory_TiesResolveByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	for _, doc := range []string{"c", "a", "b"} {
		require.NoError(t, idx.Upsert(ctx, []entity.IndexEntry{entry(doc, 0, 1, 1)}))
	}

	for i := 0; i < 20; i++ {
		hits, err := idx.Search(ctx, []float32{1, 1}, 3, entity.SearchFilters{})
		require.NoError(t, err)
		assert.Equal(t, []string{"c_chunk_0", "a_chunk_0", "b_chunk_0"}, ids(hits))
	}
}

func TestMemory_DeleteByDocument(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.Upsert(ctx, []entity.IndexEntry{
		entry("a", 0, 1, 0), entry("a", 1, 1, 0.5), entry("b", 0, 1, 0.2),
	}))

	require.NoError(t, idx.DeleteByDocument(ctx, "a"))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, entity.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"b_chunk_0"}, ids(hits))
	n, _ := idx.Count(ctx)
	assert.Equal(t, 1, n)
}

func TestMemory_ReplaceDocumentDropsOldGeneration(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	require.NoError(t, idx.ReplaceDocument(ctx, "a", []entity.IndexEntry{
		entry("a", 0, 1, 0), entry("a", 1, 1, 0), entry("a", 2, 1, 0),
	}))

	require.NoError(t, idx.ReplaceDocument(ctx, "a", []entity.IndexEntry{entry("a", 0, 0, 1)}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, entity.SearchFilters{})
	require.NoError(t, err)
	assert.Equal(t, []string{"a_chunk_0"}, ids(hits))
}

func TestMemory_ReplaceDocumentRejectsForeignChunks(t *testing.T) {
	idx := NewMemory(2)

	err := idx.ReplaceDocument(context.Background(), "a", []entity.IndexEntry{entry("b", 0, 1, 0)})

	assert.ErrorIs(t, err, entity.ErrInvalidDocument)
}

func TestMemory_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(3)

	err := idx.Upsert(ctx, []entity.IndexEntry{entry("a", 0, 1, 0)})
	assert.ErrorIs(t, err, entity.ErrEmbeddingDimensionMismatch)

	_, err = idx.Search(ctx, []float32{1, 0}, 1, entity.SearchFilters{})
	assert.ErrorIs(t, err, entity.ErrEmbeddingDimensionMismatch)
}

func TestMemory_Filters(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	restricted := entry("secret", 0, 1, 0)
	restricted.Metadata.Classification = entity.ClassificationRestricted
	guideline := entry("guide", 0, 1, 0)
	guideline.Metadata.DocumentType = "guideline"
	require.NoError(t, idx.Upsert(ctx, []entity.IndexEntry{entry("policy", 0, 1, 0), restricted, guideline}))

	hits, err := idx.Search(ctx, []float32{1, 0}, 10, entity.SearchFilters{MaxClassification: entity.ClassificationInternal})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"policy_chunk_0", "guide_chunk_0"}, ids(hits))

	hits, err = idx.Search(ctx, []float32{1, 0}, 10, entity.SearchFilters{DocumentTypes: []string{"guideline"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"guide_chunk_0"}, ids(hits))

	hits, err = idx.Search(ctx, []float32{1, 0}, 10, entity.SearchFilters{DocumentIDs: []string{"secret"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"secret_chunk_0"}, ids(hits))
}

func TestMemory_ConcurrentReplaceNeverMixesGenerations(t *testing.T) {
	ctx := context.Background()
	idx := NewMemory(2)
	gen := func(n int) []entity.IndexEntry {
		out := make([]entity.IndexEntry, n)
		for i := range out {
			out[i] = entry("doc", i, 1, float32(n))
		}
		return out
	}
	require.NoError(t, idx.ReplaceDocument(ctx, "doc", gen(2)))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			n := 2 + i%3
			assert.NoError(t, idx.ReplaceDocument(ctx, "doc", gen(n)))
		}
	}()

	for i := 0; i < 200; i++ {
		hits, err := idx.Search(ctx, []float32{1, 1}, 10, entity.SearchFilters{})
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		for _, h := range hits {
			assert.InDelta(t, hits[0].Score, h.Score, 1e-9, "mixed generations at iteration %d", i)
		}
		want := map[int]float64{
			2: CosineSimilarity([]float32{1, 1}, []float32{1, 2}),
			3: CosineSimilarity([]float32{1, 1}, []float32{1, 3}),
			4: CosineSimilarity([]float32{1, 1}, []float32{1, 4}),
		}
		score, ok := want[len(hits)]
		require.True(t, ok, "unexpected hit count %d", len(hits))
		assert.InDelta(t, score, hits[0].Score, 1e-9)
	}
	wg.Wait()
}
