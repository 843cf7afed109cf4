package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/telegram/state"
)

// TelegramAnswerPostgres keeps answers delivered by the bot so that their
// details survive a restart. Rows older than ttl are treated as missing.
type TelegramAnswerPostgres struct {
	db  *pgxpool.Pool
	ttl time.Duration
}

func NewTelegramAnswerPostgres(db *pgxpool.Pool, ttl time.Duration) *TelegramAnswerPostgres {
	return &TelegramAnswerPostgres{db: db, ttl: ttl}
}

func (r *TelegramAnswerPostgres) Get(ctx context.Context, queryID string) (*state.AnswerRecord, error) {
	var (
		rec  state.AnswerRecord
		data []byte
	)
	err := r.db.QueryRow(ctx, `
SELECT user_id, answer, created_at
FROM telegram_answers
WHERE query_id = $1 AND created_at > $2`,
		queryID, time.Now().Add(-r.ttl),
	).Scan(&rec.UserID, &data, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, state.ErrNotFound
		}
		return nil, fmt.Errorf("query telegram answer: %w", err)
	}

	var ans entity.Answer
	if err := json.Unmarshal(data, &ans); err != nil {
		return nil, fmt.Errorf("decode telegram answer: %w", err)
	}
	rec.Answer = &ans
	return &rec, nil
}

func (r *TelegramAnswerPostgres) Set(ctx context.Context, queryID string, record *state.AnswerRecord) error {
	data, err := json.Marshal(record.Answer)
	if err != nil {
		return fmt.Errorf("encode telegram answer: %w", err)
	}

	_, err = r.db.Exec(ctx, `
INSERT INTO telegram_answers (query_id, user_id, answer, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (query_id) DO UPDATE SET
    user_id    = EXCLUDED.user_id,
    answer     = EXCLUDED.answer,
    created_at = EXCLUDED.created_at`,
		queryID, record.UserID, data, record.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert telegram answer: %w", err)
	}
	return nil
}

// DeleteExpired removes answers whose details can no longer be requested.
func (r *TelegramAnswerPostgres) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM telegram_answers WHERE created_at <= $1`, time.Now().Add(-r.ttl))
	if err != nil {
		return 0, fmt.Errorf("delete expired telegram answers: %w", err)
	}
	return tag.RowsAffected(), nil
}
