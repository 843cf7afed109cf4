// Package audit records one entry per answered query.
package audit

import (
	"context"

	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/entity"
)

// LogSink writes audit records to a dedicated zap logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

func (s *LogSink) Record(_ context.Context, rec entity.AuditRecord) error {
	fields := []zap.Field{
		zap.String("query_id", rec.QueryID),
		zap.String("user_id", rec.UserID),
		zap.Time("timestamp", rec.Timestamp),
		zap.String("question", rec.Question),
		zap.Strings("sources", rec.Sources),
		zap.Strings("chunk_ids", rec.ChunkIDs),
		zap.Bool("success", rec.Success),
		zap.String("state", string(rec.State)),
		zap.Float64("elapsed_seconds", rec.ElapsedSeconds),
	}
	if rec.Error != "" {
		fields = append(fields, zap.String("error_kind", string(rec.ErrorKind)), zap.String("error", rec.Error))
	}
	s.logger.Info("query audited", fields...)
	return nil
}
