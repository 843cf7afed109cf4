package generation

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/futig/compliance-rag/internal/config"
	pkghttp "github.com/futig/compliance-rag/pkg/http"
)

// OpenAIConnector calls an OpenAI-compatible chat completions endpoint.
type OpenAIConnector struct {
	client openai.Client
	model  string
}

func NewOpenAIConnector(cfg config.GenerationConfig) *OpenAIConnector {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.Token),
		option.WithMaxRetries(0),
	}
	if cfg.Url != "" {
		opts = append(opts, option.WithBaseURL(cfg.Url))
	}
	return &OpenAIConnector{client: openai.NewClient(opts...), model: cfg.Model}
}

func (c *OpenAIConnector) Generate(ctx context.Context, prompt string, opts Options) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	if opts.Seed != nil {
		params.Seed = openai.Int(*opts.Seed)
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &pkghttp.HTTPError{StatusCode: apiErr.StatusCode, Message: apiErr.Error()}
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		return "", &pkghttp.NetworkError{Err: err}
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("invalid generation response: no content")
	}
	return resp.Choices[0].Message.Content, nil
}

func (c *OpenAIConnector) Model() string {
	return c.model
}
