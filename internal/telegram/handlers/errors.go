package handlers

import (
	"context"
	"errors"
	"net"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/telegram/render"
)

// ErrorSeverity represents the severity level of an error
type ErrorSeverity int

const (
	SeverityWarning ErrorSeverity = iota
	SeverityError
	SeverityCritical
)

// String returns string representation of error severity
func (s ErrorSeverity) String() string {
	switch s {
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// HandlerError represents a structured error with user message and logging info
type HandlerError struct {
	Err         error
	UserMessage string
	LogMessage  string
	Severity    ErrorSeverity
}

// classifyHandlerError maps pipeline errors onto what the user is told.
func classifyHandlerError(err error) *HandlerError {
	if err == nil {
		return &HandlerError{
			UserMessage: render.ErrGeneric,
			LogMessage:  "unknown error",
			Severity:    SeverityWarning,
		}
	}

	switch entity.KindOf(err) {
	case entity.ErrorKindPermissionDenied:
		return &HandlerError{
			Err:         err,
			UserMessage: render.ErrPermissionDenied,
			LogMessage:  "query denied",
			Severity:    SeverityWarning,
		}
	case entity.ErrorKindInvalidQuery:
		return &HandlerError{
			Err:         err,
			UserMessage: render.ErrInvalidQuestion,
			LogMessage:  "invalid question",
			Severity:    SeverityWarning,
		}
	case entity.ErrorKindTimeout:
		return &HandlerError{
			Err:         err,
			UserMessage: render.ErrTimeout,
			LogMessage:  "query timed out",
			Severity:    SeverityError,
		}
	case entity.ErrorKindEmbeddingUnavailable, entity.ErrorKindIndexUnavailable, entity.ErrorKindGenerationFailed:
		return &HandlerError{
			Err:         err,
			UserMessage: render.ErrNetworkIssue,
			LogMessage:  "pipeline dependency failed",
			Severity:    SeverityError,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return &HandlerError{
			Err:         err,
			UserMessage: render.ErrTimeout,
			LogMessage:  "operation timed out",
			Severity:    SeverityError,
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return &HandlerError{
			Err:         err,
			UserMessage: render.ErrNetworkIssue,
			LogMessage:  "network error",
			Severity:    SeverityError,
		}
	}

	return &HandlerError{
		Err:         err,
		UserMessage: render.ErrGeneric,
		LogMessage:  "handler error",
		Severity:    SeverityCritical,
	}
}

// HandleError logs err at its severity and sends the user-facing message.
func (h *BaseHandler) HandleError(ctx context.Context, chatID int64, err error) {
	if err == nil {
		return
	}

	handlerErr := classifyHandlerError(err)
	fields := []zap.Field{
		zap.Error(handlerErr.Err),
		zap.Int64("chat_id", chatID),
		zap.String("severity", handlerErr.Severity.String()),
	}

	if handlerErr.Severity == SeverityWarning {
		ctxzap.Warn(ctx, handlerErr.LogMessage, fields...)
	} else {
		ctxzap.Error(ctx, handlerErr.LogMessage, fields...)
	}

	h.sendMessage(chatID, handlerErr.UserMessage, nil)
}
