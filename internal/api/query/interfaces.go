package query

import (
	"context"

	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/formatter"
)

type AnswerUsecase interface {
	AnswerQuery(ctx context.Context, q entity.Query) (*entity.Answer, error)
}

type FormatterFactory interface {
	Create(format entity.ResultFormat) (formatter.Formatter, error)
}

type RequestValidator interface {
	ValidateQuery(req *entity.QueryRequest) error
}
