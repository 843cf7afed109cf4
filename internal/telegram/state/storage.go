package state

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/futig/compliance-rag/internal/entity"
)

// ErrNotFound is returned for unknown or expired answers.
var ErrNotFound = errors.New("answer not found")

// AnswerRecord is an answer delivered to a telegram user.
type AnswerRecord struct {
	UserID    int64
	Answer    *entity.Answer
	CreatedAt time.Time
}

// Storage keeps recent answers so that follow-up buttons can refer to them.
type Storage interface {
	Get(ctx context.Context, queryID string) (*AnswerRecord, error)
	Set(ctx context.Context, queryID string, record *AnswerRecord) error
}

// MemoryStorage expires records after a fixed TTL.
type MemoryStorage struct {
	store *gocache.Cache
}

func NewMemoryStorage(ttl time.Duration) *MemoryStorage {
	return &MemoryStorage{store: gocache.New(ttl, 2*ttl)}
}

func (s *MemoryStorage) Get(_ context.Context, queryID string) (*AnswerRecord, error) {
	v, ok := s.store.Get(queryID)
	if !ok {
		return nil, ErrNotFound
	}
	rec, ok := v.(*AnswerRecord)
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStorage) Set(_ context.Context, queryID string, record *AnswerRecord) error {
	s.store.SetDefault(queryID, record)
	return nil
}
