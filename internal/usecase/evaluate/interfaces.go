package evaluate

import (
	"context"

	"github.com/futig/compliance-rag/internal/entity"
)

type Answerer interface {
	AnswerQuery(ctx context.Context, q entity.Query) (*entity.Answer, error)
}

type Runner interface {
	Run(ctx context.Context, n int, fn func(ctx context.Context, i int) error) []error
}
