package handlers

import (
	"context"
	"fmt"

	"github.com/futig/compliance-rag/internal/entity"
)

// Handler kinds
const (
	HandlerStateQuestion = "QUESTION"
	HandlerStateCallback = "CALLBACK"
)

// Message represents a normalized Telegram message
type Message struct {
	ChatID       int64
	UserID       int64
	MessageID    int
	Text         string
	CallbackData string
	CallbackID   string
}

// Handler defines the interface for update handlers
type Handler interface {
	// Handle processes a message for this state
	Handle(ctx context.Context, msg *Message) error

	// GetState returns the kind of update this handler manages
	GetState() string
}

// BaseHandler provides common functionality for all handlers
type BaseHandler struct {
	stateName     string
	messageSender *MessageSender
}

// GetState implements Handler
func (h *BaseHandler) GetState() string {
	return h.stateName
}

// sendMessage is a convenience wrapper for messageSender.Send
func (h *BaseHandler) sendMessage(chatID int64, text string, markup interface{}) {
	if h.messageSender != nil {
		h.messageSender.Send(chatID, text, markup)
	}
}

var validStates = map[string]bool{
	HandlerStateQuestion: true,
	HandlerStateCallback: true,
}

// IsValidState checks if a state is valid for handler registration
func IsValidState(state string) bool {
	_, ok := validStates[state]
	return ok
}

// Identity maps a telegram user onto the access-control identity.
func Identity(userID int64) entity.Identity {
	return entity.AuthenticatedIdentity(fmt.Sprintf("telegram:%d", userID))
}
