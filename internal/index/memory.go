package index

import (
	"context"
	"sync"

	"github.com/futig/compliance-rag/internal/entity"
)

type memoryEntry struct {
	entry entity.IndexEntry
	seq   int64
}

// Memory is an exact, in-process index. Reads run concurrently; writes take
// an exclusive lock, so a replaced document is swapped atomically.
type Memory struct {
	mu        sync.RWMutex
	dimension int
	entries   map[string]*memoryEntry
	byDoc     map[string]map[string]struct{}
	seq       int64
}

func NewMemory(dimension int) *Memory {
	return &Memory{
		dimension: dimension,
		entries:   make(map[string]*memoryEntry),
		byDoc:     make(map[string]map[string]struct{}),
	}
}

func (m *Memory) Dimension() int {
	return m.dimension
}

func (m *Memory) Upsert(ctx context.Context, entries []entity.IndexEntry) error {
	if err := validateEntries(m.dimension, "", entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range entries {
		m.put(e)
	}
	return nil
}

func (m *Memory) DeleteByDocument(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop(documentID)
	return nil
}

func (m *Memory) ReplaceDocument(ctx context.Context, documentID string, entries []entity.IndexEntry) error {
	if err := validateEntries(m.dimension, documentID, entries); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.drop(documentID)
	for _, e := range entries {
		m.put(e)
	}
	return nil
}

func (m *Memory) Search(ctx context.Context, vector []float32, k int, filters entity.SearchFilters) ([]entity.SearchHit, error) {
	if err := checkDimension(m.dimension, vector); err != nil {
		return nil, err
	}
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	hits := make([]rankedHit, 0, len(m.entries))
	for id, e := range m.entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !filters.Matches(e.entry.Metadata) {
			continue
		}
		hits = append(hits, rankedHit{
			hit: entity.SearchHit{
				ChunkID:  id,
				Score:    CosineSimilarity(vector, e.entry.Vector),
				Metadata: e.entry.Metadata,
			},
			seq: e.seq,
		})
	}
	return rank(hits, k), nil
}

func (m *Memory) Count(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// put must be called with the write lock held.
func (m *Memory) put(e entity.IndexEntry) {
	if old, ok := m.entries[e.ChunkID]; ok {
		delete(m.byDoc[old.entry.Metadata.DocumentID], e.ChunkID)
	}

	vec := make([]float32, len(e.Vector))
	copy(vec, e.Vector)
	e.Vector = vec

	m.seq++
	m.entries[e.ChunkID] = &memoryEntry{entry: e, seq: m.seq}

	docID := e.Metadata.DocumentID
	if m.byDoc[docID] == nil {
		m.byDoc[docID] = make(map[string]struct{})
	}
	m.byDoc[docID][e.ChunkID] = struct{}{}
}

// drop must be called with the write lock held.
func (m *Memory) drop(documentID string) {
	for id := range m.byDoc[documentID] {
		delete(m.entries, id)
	}
	delete(m.byDoc, documentID)
}
