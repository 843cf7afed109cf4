// Package cache stores embedding vectors keyed by model and text.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
)

// VectorCache is a best-effort store; a failing cache behaves like a miss.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]float32, bool)
	Set(ctx context.Context, key string, vector []float32)
}

// Key hashes the model name and text into a fixed-size cache key.
func Key(model, text string) string {
	h := sha256.New()
	h.Write([]byte(model))
	h.Write([]byte{0})
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// Noop never stores anything.
type Noop struct{}

func (Noop) Get(context.Context, string) ([]float32, bool) { return nil, false }
func (Noop) Set(context.Context, string, []float32) {}
