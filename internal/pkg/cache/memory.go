package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory keeps vectors in process with a TTL.
type Memory struct {
	store *gocache.Cache
}

func NewMemory(ttl time.Duration) *Memory {
	return &Memory{store: gocache.New(ttl, 2*ttl)}
}

func (m *Memory) Get(_ context.Context, key string) ([]float32, bool) {
	v, ok := m.store.Get(key)
	if !ok {
		return nil, false
	}
	vec, ok := v.([]float32)
	if !ok {
		return nil, false
	}
	return clone(vec), true
}

func (m *Memory) Set(_ context.Context, key string, vector []float32) {
	m.store.SetDefault(key, clone(vector))
}

func (m *Memory) Len() int {
	return m.store.ItemCount()
}

func clone(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
