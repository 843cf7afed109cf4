// Package logger scopes the context logger to the query, document or caller
// being handled.
package logger

import (
	"context"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"
)

const (
	KeyAction     = "action"
	KeyQueryID    = "query_id"
	KeyDocumentID = "document_id"
	KeyUserID     = "user_id"
)

// AddFields adds fields to the logger in context and returns new context
func AddFields(ctx context.Context, fields ...zap.Field) context.Context {
	logger := ctxzap.Extract(ctx)
	return ctxzap.ToContext(ctx, logger.With(fields...))
}

// WithAction names the flow, usually the handler.
func WithAction(ctx context.Context, action string) context.Context {
	return AddFields(ctx, zap.String(KeyAction, action))
}

// WithQuery tags every later line with the query id and the asking subject.
func WithQuery(ctx context.Context, queryID, subject string) context.Context {
	return AddFields(ctx, QueryID(queryID), zap.String(KeyUserID, subject))
}

func WithDocument(ctx context.Context, documentID string) context.Context {
	return AddFields(ctx, DocumentID(documentID))
}

func WithUser(ctx context.Context, subject string) context.Context {
	return AddFields(ctx, zap.String(KeyUserID, subject))
}

func QueryID(id string) zap.Field {
	return zap.String(KeyQueryID, id)
}

func DocumentID(id string) zap.Field {
	return zap.String(KeyDocumentID, id)
}
