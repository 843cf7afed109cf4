package handlers

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/telegram/keyboard"
	"github.com/futig/compliance-rag/internal/telegram/render"
	"github.com/futig/compliance-rag/internal/telegram/state"
)

// CallbackHandler serves inline button presses.
type CallbackHandler struct {
	BaseHandler
	states *state.Manager
}

func NewCallbackHandler(api API, states *state.Manager, logger *zap.Logger) *CallbackHandler {
	return &CallbackHandler{
		BaseHandler: BaseHandler{
			stateName:     HandlerStateCallback,
			messageSender: NewMessageSender(api, logger),
		},
		states: states,
	}
}

func (h *CallbackHandler) Handle(ctx context.Context, msg *Message) error {
	data, err := keyboard.ParseCallback(msg.CallbackData)
	if err != nil {
		h.messageSender.AnswerCallback(msg.CallbackID, "❌ Invalid data")
		return err
	}

	switch data.Action {
	case keyboard.ActionDetails:
		ans, ok := h.states.Lookup(ctx, msg.UserID, data.Value)
		if !ok {
			h.messageSender.AnswerCallback(msg.CallbackID, render.MsgDetailsExpired)
			return nil
		}
		h.messageSender.AnswerCallback(msg.CallbackID, "")
		return h.messageSender.SendLong(msg.ChatID, render.Details(ans), nil)
	default:
		ctxzap.Warn(ctx, "unknown callback action", zap.String("action", data.Action))
		h.messageSender.AnswerCallback(msg.CallbackID, "❌ Unknown action")
		return nil
	}
}
