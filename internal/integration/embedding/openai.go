package embedding

import (
	"context"
	"errors"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/futig/compliance-rag/internal/config"
	pkghttp "github.com/futig/compliance-rag/pkg/http"
)

// OpenAIConnector calls an OpenAI-compatible /embeddings endpoint.
type OpenAIConnector struct {
	client    openai.Client
	model     string
	dimension int
}

func NewOpenAIConnector(cfg config.EmbeddingConfig) *OpenAIConnector {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Token),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.RequestTimeout),
	}
	if cfg.Url != "" {
		opts = append(opts, option.WithBaseURL(cfg.Url))
	}
	return &OpenAIConnector{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		dimension: cfg.Dimension,
	}
}

func (c *OpenAIConnector) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model:      openai.EmbeddingModel(c.model),
		Input:      openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: openai.Int(int64(c.dimension)),
	})
	if err != nil {
		return nil, asHTTPError(err)
	}

	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if int(d.Index) >= len(out) || d.Index < 0 {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, x := range d.Embedding {
			vec[i] = float32(x)
		}
		out[d.Index] = vec
	}
	for _, v := range out {
		if v == nil {
			return nil, &pkghttp.HTTPError{StatusCode: 502, Message: "embedding response is missing inputs"}
		}
	}
	return out, nil
}

func (c *OpenAIConnector) Model() string {
	return c.model
}

// asHTTPError maps client errors onto pkg/http errors so retry
// classification is shared with the plain HTTP connector.
func asHTTPError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return &pkghttp.HTTPError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &pkghttp.NetworkError{Err: err}
}
