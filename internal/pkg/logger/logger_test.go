package logger

import (
	"context"
	"testing"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observed() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return ctxzap.ToContext(context.Background(), zap.New(core)), logs
}

func TestWithQuery(t *testing.T) {
	ctx, logs := observed()

	ctx = WithAction(ctx, "Query")
	ctx = WithQuery(ctx, "q-1", "EMP0001")
	ctxzap.Info(ctx, "answered")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "Query", fields[KeyAction])
	assert.Equal(t, "q-1", fields[KeyQueryID])
	assert.Equal(t, "EMP0001", fields[KeyUserID])
}

func TestWithDocumentAndUser(t *testing.T) {
	ctx, logs := observed()

	ctxzap.Info(WithDocument(ctx, "needlestick-protocol"), "ingested")
	ctxzap.Info(WithUser(ctx, "anonymous"), "denied")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "needlestick-protocol", logs.All()[0].ContextMap()[KeyDocumentID])
	assert.NotContains(t, logs.All()[1].ContextMap(), KeyDocumentID)
	assert.Equal(t, "anonymous", logs.All()[1].ContextMap()[KeyUserID])
}
