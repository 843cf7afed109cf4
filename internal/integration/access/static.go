package access

import (
	"context"

	"github.com/futig/compliance-rag/internal/entity"
)

// Static allows every identity the listed capabilities.
type Static struct {
	capabilities map[string]struct{}
}

func NewStatic(capabilities ...string) *Static {
	s := &Static{capabilities: make(map[string]struct{}, len(capabilities))}
	for _, c := range capabilities {
		s.capabilities[c] = struct{}{}
	}
	return s
}

func (s *Static) Check(ctx context.Context, _ entity.Identity, capability string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, ok := s.capabilities[capability]
	return ok, nil
}
