package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/futig/compliance-rag/internal/entity"
)

// Answerer runs a question through the query pipeline.
type Answerer interface {
	AnswerQuery(ctx context.Context, q entity.Query) (*entity.Answer, error)
}

// API is the part of *tgbotapi.BotAPI the handlers use.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}
