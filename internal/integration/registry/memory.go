// Package registry tracks document metadata and reference counts in memory.
package registry

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/futig/compliance-rag/internal/entity"
)

type Memory struct {
	mu   sync.RWMutex
	docs map[string]*entity.DocumentMetadata
	now  func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		docs: make(map[string]*entity.DocumentMetadata),
		now:  time.Now,
	}
}

// Register stores metadata for a new document version. Reference counts
// survive re-registration.
func (m *Memory) Register(ctx context.Context, meta entity.DocumentMetadata) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if meta.DocumentID == "" {
		return fmt.Errorf("%w: document id", entity.ErrMissingField)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := meta
	stored.Tags = maps.Clone(meta.Tags)
	if stored.Status == "" {
		stored.Status = entity.DocumentStatusActive
	}
	if stored.IngestedAt.IsZero() {
		stored.IngestedAt = m.now().UTC()
	}
	if prev, ok := m.docs[meta.DocumentID]; ok {
		stored.TimesReferenced = prev.TimesReferenced
		stored.LastReferencedAt = prev.LastReferencedAt
	}
	m.docs[meta.DocumentID] = &stored
	return nil
}

func (m *Memory) GetMetadata(ctx context.Context, documentID string) (*entity.DocumentMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[documentID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, documentID)
	}
	return cloneMetadata(d), nil
}

func (m *Memory) IncrementReference(ctx context.Context, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, documentID)
	}
	now := m.now().UTC()
	d.TimesReferenced++
	d.LastReferencedAt = &now
	return nil
}

func (m *Memory) SetStatus(ctx context.Context, documentID string, status entity.DocumentStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[documentID]
	if !ok {
		return fmt.Errorf("%w: %s", entity.ErrDocumentNotFound, documentID)
	}
	d.Status = status
	return nil
}

// List returns all documents ordered by id.
func (m *Memory) List(ctx context.Context) ([]entity.DocumentMetadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]entity.DocumentMetadata, 0, len(m.docs))
	for _, d := range m.docs {
		out = append(out, *cloneMetadata(d))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DocumentID < out[j].DocumentID })
	return out, nil
}

func cloneMetadata(d *entity.DocumentMetadata) *entity.DocumentMetadata {
	c := *d
	c.Tags = maps.Clone(d.Tags)
	if d.LastReferencedAt != nil {
		t := *d.LastReferencedAt
		c.LastReferencedAt = &t
	}
	return &c
}
