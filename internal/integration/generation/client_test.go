package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/futig/compliance-rag/internal/config"
	"github.com/futig/compliance-rag/internal/entity"
	"github.com/futig/compliance-rag/internal/pkg/prompt"
	pkgRetry "github.com/futig/compliance-rag/internal/pkg/retry"
	pkghttp "github.com/futig/compliance-rag/pkg/http"
)

type scriptedBackend struct {
	mu      sync.Mutex
	calls   int
	results []error
	hang    bool
}

func (s *scriptedBackend) Generate(ctx context.Context, _ string, _ Options) (string, error) {
	s.mu.Lock()
	s.calls++
	var err error
	if len(s.results) > 0 {
		err = s.results[0]
		s.results = s.results[1:]
	}
	s.mu.Unlock()

	if s.hang {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if err != nil {
		return "", err
	}
	return "answer [Source 1]", nil
}

func (s *scriptedBackend) Model() string { return "scripted" }

func fastConfig(timeout time.Duration) ClientConfig {
	return ClientConfig{
		Timeout: timeout,
		Retry:   pkgRetry.RetryConfig{Attempts: 2, Delay: time.Millisecond, MaxDelay: time.Millisecond},
	}
}

func TestClient_Success(t *testing.T) {
	backend := &scriptedBackend{}
	text, err := NewClient(backend, fastConfig(time.Second)).Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.Equal(t, "answer [Source 1]", text)
	assert.Equal(t, 1, backend.calls)
}

func TestClient_RetriesTransientOnce(t *testing.T) {
	backend := &scriptedBackend{results: []error{&pkghttp.HTTPError{StatusCode: http.StatusServiceUnavailable}}}
	text, err := NewClient(backend, fastConfig(time.Second)).Generate(context.Background(), "p", Options{})
	require.NoError(t, err)
	assert.NotEmpty(t, text)
	assert.Equal(t, 2, backend.calls)
}

func TestClient_TimesOutTwice(t *testing.T) {
	backend := &scriptedBackend{hang: true}
	_, err := NewClient(backend, fastConfig(20*time.Millisecond)).Generate(context.Background(), "p", Options{})

	require.Error(t, err)
	assert.ErrorIs(t, err, entity.ErrGenerationFailed)
	assert.Equal(t, entity.ErrorKindGenerationFailed, entity.KindOf(err))
	assert.Equal(t, 2, backend.calls)
}

func TestClient_DoesNotRetryClientErrors(t *testing.T) {
	backend := &scriptedBackend{results: []error{&pkghttp.HTTPError{StatusCode: http.StatusBadRequest}}}
	_, err := NewClient(backend, fastConfig(time.Second)).Generate(context.Background(), "p", Options{})
	assert.ErrorIs(t, err, entity.ErrGenerationFailed)
	assert.Equal(t, 1, backend.calls)
}

func TestClient_CallerDeadlineIsTimeout(t *testing.T) {
	backend := &scriptedBackend{hang: true}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := NewClient(backend, fastConfig(time.Second)).Generate(ctx, "p", Options{})
	assert.ErrorIs(t, err, entity.ErrTimeout)
	assert.Equal(t, 1, backend.calls)
}

func TestConnector_PostsOllamaRequest(t *testing.T) {
	var got generateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Wash the wound [Source 1]","done":true}`))
	}))
	defer srv.Close()

	seed := int64(7)
	cfg := config.GenerationConfig{Model: "llama3.2", Endpoint: "/api/generate"}
	cfg.Url = srv.URL
	cfg.RequestTimeout = time.Second
	text, err := NewConnector(cfg, zap.NewNop()).Generate(context.Background(), "prompt", Options{Temperature: 0.1, MaxTokens: 500, Seed: &seed})

	require.NoError(t, err)
	assert.Equal(t, "Wash the wound [Source 1]", text)
	assert.Equal(t, "llama3.2", got.Model)
	assert.False(t, got.Stream)
	assert.Equal(t, 500, got.Options.NumPredict)
	assert.InDelta(t, 0.1, got.Options.Temperature, 1e-9)
	require.NotNil(t, got.Options.Seed)
	assert.Equal(t, int64(7), *got.Options.Seed)
}

func TestConnector_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	cfg := config.GenerationConfig{Model: "m", Endpoint: "/api/generate"}
	cfg.Url = srv.URL
	cfg.RequestTimeout = time.Second
	_, err := NewConnector(cfg, zap.NewNop()).Generate(context.Background(), "p", Options{})
	require.Error(t, err)
	assert.True(t, pkghttp.IsTransient(err))
}

func TestMockConnector(t *testing.T) {
	m := NewMockConnector(zap.NewNop())

	text, err := m.Generate(context.Background(), "CONTEXT:\n[Source 1: Needlestick protocol]\nWash the wound. Then dry it.\n\nQUESTION: q", Options{})
	require.NoError(t, err)
	assert.Equal(t, "Based on the provided documents:\n- Wash the wound. [Source 1]", text)
	assert.Equal(t, []int{1}, prompt.ParseCitations(text))

	text, err = m.Generate(context.Background(), "CONTEXT:\n(no relevant passages found)\n", Options{})
	require.NoError(t, err)
	assert.Equal(t, prompt.InsufficientContextNotice, text)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = m.Generate(ctx, "x", Options{})
	assert.True(t, errors.Is(err, context.Canceled))
}
