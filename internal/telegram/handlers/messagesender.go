package handlers

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/telegram/render"
)

// MessageSender provides centralized message sending functionality
type MessageSender struct {
	bot    API
	logger *zap.Logger
}

// NewMessageSender creates a new MessageSender
func NewMessageSender(bot API, logger *zap.Logger) *MessageSender {
	return &MessageSender{
		bot:    bot,
		logger: logger,
	}
}

// Send sends a message to the specified chat
func (s *MessageSender) Send(chatID int64, text string, markup interface{}) error {
	msg := tgbotapi.NewMessage(chatID, text)
	if markup != nil {
		msg.ReplyMarkup = markup
	}

	_, err := s.bot.Send(msg)
	if err != nil {
		s.logger.Error("failed to send message",
			zap.Error(err),
			zap.Int64("chat_id", chatID),
		)
		return err
	}

	return nil
}

// SendLong splits text at the Telegram size limit. markup goes on the last part.
func (s *MessageSender) SendLong(chatID int64, text string, markup interface{}) error {
	parts := render.Split(text, render.MaxMessageLength)
	for i, part := range parts {
		var m interface{}
		if i == len(parts)-1 {
			m = markup
		}
		if err := s.Send(chatID, part, m); err != nil {
			return err
		}
	}
	return nil
}

// AnswerCallback acknowledges a button press.
func (s *MessageSender) AnswerCallback(callbackID, text string) {
	if _, err := s.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		s.logger.Error("failed to answer callback",
			zap.Error(err),
			zap.String("callback_id", callbackID),
		)
	}
}
