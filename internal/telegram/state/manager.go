package state

import (
	"context"
	"errors"
	"time"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
)

// DefaultAnswerTTL bounds how long the details of an answer stay available.
const DefaultAnswerTTL = 30 * time.Minute

// Manager remembers answers per user.
type Manager struct {
	storage Storage
	now     func() time.Time
}

// NewManager creates a new state manager
func NewManager(storage Storage) *Manager {
	return &Manager{
		storage: storage,
		now:     time.Now,
	}
}

// Remember stores ans for userID. Answers without a query id are ignored.
func (m *Manager) Remember(ctx context.Context, userID int64, ans *entity.Answer) error {
	if ans == nil || ans.QueryID == "" {
		return nil
	}
	return m.storage.Set(ctx, ans.QueryID, &AnswerRecord{
		UserID:    userID,
		Answer:    ans,
		CreatedAt: m.now(),
	})
}

// Lookup returns the answer only to the user who asked the question.
func (m *Manager) Lookup(ctx context.Context, userID int64, queryID string) (*entity.Answer, bool) {
	rec, err := m.storage.Get(ctx, queryID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			ctxzap.Error(ctx, "failed to load answer state",
				zap.String("query_id", queryID),
				zap.Error(err),
			)
		}
		return nil, false
	}
	if rec.UserID != userID {
		return nil, false
	}
	return rec.Answer, true
}
