// Package index stores chunk vectors and answers nearest-neighbour queries.
package index

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/futig/compliance-rag/internal/entity"
)

// VectorIndex is implemented by every index backend.
//
// Search returns at most k hits ordered by descending cosine similarity,
// ties broken by insertion order. ReplaceDocument swaps all chunks of a
// document so that searches never see two generations of it.
type VectorIndex interface {
	Upsert(ctx context.Context, entries []entity.IndexEntry) error
	DeleteByDocument(ctx context.Context, documentID string) error
	ReplaceDocument(ctx context.Context, documentID string, entries []entity.IndexEntry) error
	Search(ctx context.Context, vector []float32, k int, filters entity.SearchFilters) ([]entity.SearchHit, error)
	Count(ctx context.Context) (int, error)
	Dimension() int
}

// CosineSimilarity returns 0 when either vector has zero length.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func checkDimension(dimension int, vector []float32) error {
	if len(vector) != dimension {
		return fmt.Errorf("%w: vector has %d dimensions, index has %d",
			entity.ErrEmbeddingDimensionMismatch, len(vector), dimension)
	}
	return nil
}

func validateEntries(dimension int, documentID string, entries []entity.IndexEntry) error {
	for _, e := range entries {
		if e.ChunkID == "" {
			return fmt.Errorf("%w: entry without chunk id", entity.ErrInvalidDocument)
		}
		if documentID != "" && e.Metadata.DocumentID != documentID {
			return fmt.Errorf("%w: chunk %s belongs to %q, not %q",
				entity.ErrInvalidDocument, e.ChunkID, e.Metadata.DocumentID, documentID)
		}
		if err := checkDimension(dimension, e.Vector); err != nil {
			return err
		}
	}
	return nil
}

type rankedHit struct {
	hit entity.SearchHit
	seq int64
}

// rank orders hits by score, then by insertion sequence, and keeps k.
func rank(hits []rankedHit, k int) []entity.SearchHit {
	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].hit.Score != hits[j].hit.Score {
			return hits[i].hit.Score > hits[j].hit.Score
		}
		return hits[i].seq < hits[j].seq
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	out := make([]entity.SearchHit, len(hits))
	for i, h := range hits {
		out[i] = h.hit
	}
	return out
}
