package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis shares vectors between instances.
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, prefix string, ttl time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, ttl: ttl}
}

func (r *Redis) Get(ctx context.Context, key string) ([]float32, bool) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			ctxzap.Warn(ctx, "embedding cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		ctxzap.Warn(ctx, "corrupt cached embedding, deleting", zap.Error(err), zap.String("key", key))
		_ = r.client.Del(ctx, r.prefix+key).Err()
		return nil, false
	}
	return vec, true
}

func (r *Redis) Set(ctx context.Context, key string, vector []float32) {
	data, err := json.Marshal(vector)
	if err != nil {
		return
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.ttl).Err(); err != nil {
		ctxzap.Warn(ctx, "embedding cache write failed", zap.Error(err))
	}
}
