package embedding

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

// Connector calls an Ollama-compatible embedding endpoint.
type Connector struct {
	config    config.EmbeddingConfig
	connector *pkghttp.Connector
	logger    *zap.Logger
}

func NewConnector(cfg config.EmbeddingConfig, logger *zap.Logger) *Connector {
	return &Connector{
		config:    cfg,
		connector: common.NewBaseConnector(cfg.HTTPClientConfig, logger),
		logger:    logger,
	}
}

type embedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	// Older servers answer single inputs with one vector.
	Embedding []float32 `json:"embedding"`
}

// Embed posts all texts in one request. POST {endpoint} {"model", "input": [...]}
func (c *Connector) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctxzap.Debug(ctx, "requesting embeddings", zap.Int("count", len(texts)), zap.String("model", c.config.Model))

	var resp embedResponse
	req := embedRequest{Model: c.config.Model, Input: texts}
	if err := c.connector.DoRequest(ctx, http.MethodPost, c.config.Endpoint, req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Embeddings) == 0 && len(resp.Embedding) > 0 {
		resp.Embeddings = [][]float32{resp.Embedding}
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding service returned %d vectors for %d inputs", len(resp.Embeddings), len(texts))
	}
	return resp.Embeddings, nil
}

func (c *Connector) Model() string {
	return c.config.Model
}
