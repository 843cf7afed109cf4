package generation

import (
	"context"
	"fmt"
	"net/http"

	"github.com/grpc-ecosystem/go-grpc-middleware/logging/zap/ctxzap"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/integration/common"
	pkghttp "github.com/futig/compliance-rag/pkg/http"
)

// Connector calls an Ollama-compatible /api/generate endpoint.
type Connector struct {
	config    config.GenerationConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(cfg config.GenerationConfig, logger *zap.Logger) *Connector {
	return &Connector{
		config:    cfg,
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		logger:    logger,
	}
}

type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
	Seed        *int64  `json:"seed,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (c *Connector) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	ctxzap.Debug(ctx, "requesting generation", zap.String("model", c.config.Model), zap.Int("prompt_len", len(prompt)))

	req := generateRequest{
		Model:  c.config.Model,
		Prompt: prompt,
		Options: generateOptions{
			Temperature: opts.Temperature,
			NumPredict:  opts.MaxTokens,
			Seed:        opts.Seed,
		},
	}
	var resp generateResponse
	if err := c.connector.DoRequest(ctx, http.MethodPost, c.config.Endpoint, req, &resp); err != nil {
		return "", err
	}
	if resp.Response == "" {
		return "", fmt.Errorf("invalid generation response: empty response field")
	}
	return resp.Response, nil
}

func (c *Connector) Model() string {
	return c.config.Model
}
