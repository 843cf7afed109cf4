package generation

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/pkg/prompt"
)

var mockSourcePattern = regexp.MustCompile(`(?m)^\[Source (\d+): [^\]]*\]\n(.*)$`)

// MockConnector answers from the passages in the prompt without a model
// server: one bullet per source with its first sentence and a citation.
type MockConnector struct {
	logger *zap.Logger
}

func NewMockConnector(logger *zap.Logger) *MockConnector {
	return &MockConnector{logger: logger}
}

func (m *MockConnector) Generate(ctx context.Context, promptText string, _ Options) (string, error) {
	ctxzap.Debug(ctx, "[MOCK] generating answer", zap.Int("prompt_len", len(promptText)))
	if err := ctx.Err(); err != nil {
		return "", err
	}

	matches := mockSourcePattern.FindAllStringSubmatch(promptText, 3)
	if len(matches) == 0 {
		return prompt.InsufficientContextNotice, nil
	}

	var sb strings.Builder
	sb.WriteString("Based on the provided documents:\n")
	for _, m := range matches {
		fmt.Fprintf(&sb, "- %s [Source %s]\n", firstSentence(m[2]), m[1])
	}
	return strings.TrimRight(sb.String(), "\n"), nil
}

func (m *MockConnector) Model() string {
	return "mock-generator"
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexAny(text, ".!?"); i >= 0 {
		return text[:i+1]
	}
	return text
}
