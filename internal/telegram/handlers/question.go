package handlers

import (
	"context"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/telegram/keyboard"
	"github.com/futig/compliance-rag/internal/telegram/render"
	"github.com/futig/compliance-rag/internal/telegram/state"
)

// QuestionHandler answers free-text messages.
type QuestionHandler struct {
	BaseHandler
	api      API
	answers  Answerer
	states   *state.Manager
	keyboard *keyboard.Builder
	logger   *zap.Logger
}

func NewQuestionHandler(
	api API,
	answers Answerer,
	states *state.Manager,
	keyboard *keyboard.Builder,
	logger *zap.Logger,
) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler: BaseHandler{
			stateName:     HandlerStateQuestion,
			messageSender: NewMessageSender(api, logger),
		},
		api:      api,
		answers:  answers,
		states:   states,
		keyboard: keyboard,
		logger:   logger,
	}
}

func (h *QuestionHandler) Handle(ctx context.Context, msg *Message) error {
	question := strings.TrimSpace(msg.Text)
	if question == "" {
		h.sendMessage(msg.ChatID, render.MsgEmptyQuestion, nil)
		return nil
	}

	typing := NewTypingNotifier(h.api, msg.ChatID, h.logger)
	typing.Start(ctx)
	ans, err := h.answers.AnswerQuery(ctx, entity.Query{
		Question: question,
		Identity: Identity(msg.UserID),
	})
	typing.Stop()

	if err != nil {
		h.HandleError(ctx, msg.ChatID, err)
		return nil
	}

	ctxzap.Info(ctx, "question answered",
		zap.String("query_id", ans.QueryID),
		zap.Int("citations", len(ans.Citations)),
		zap.Bool("insufficient_context", ans.InsufficientContext),
	)

	if err := h.states.Remember(ctx, msg.UserID, ans); err != nil {
		ctxzap.Warn(ctx, "failed to remember answer", zap.Error(err))
	}
	return h.messageSender.SendLong(msg.ChatID, render.Answer(ans), h.keyboard.AnswerKeyboard(ans.QueryID))
}
