package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRequest_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/embed", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "yes", r.Header.Get("X-Trace"))

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		json.NewEncoder(w).Encode(map[string]string{"echo": body["input"]})
	}))
	defer srv.Close()

	c := NewConnector(&ConnectorConfig{BaseURL: srv.URL}, WithAuthToken("secret"), WithRequestLogging())

	var resp map[string]string
	err := c.DoRequest(context.Background(), http.MethodPost, "/api/embed", map[string]string{"input": "hi"}, &resp, WithHeader("X-Trace", "yes"))

	require.NoError(t, err)
	assert.Equal(t, "hi", resp["echo"])
}

func TestDoRequest_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("model loading"))
	}))
	defer srv.Close()

	c := NewConnector(&ConnectorConfig{BaseURL: srv.URL})
	err := c.DoRequest(context.Background(), http.MethodGet, "/", nil, nil)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusServiceUnavailable, httpErr.StatusCode)
	assert.Equal(t, "model loading", httpErr.Message)
	assert.True(t, IsTransient(err))
}

func TestDoRequest_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewConnector(&ConnectorConfig{BaseURL: srv.URL}, WithRequestTimeout(20*time.Millisecond))
	err := c.DoRequest(context.Background(), http.MethodGet, "/", nil, nil)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.True(t, IsTransient(err))
}

func TestIsTransient(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("plain"), false},
		{&HTTPError{StatusCode: http.StatusBadRequest}, false},
		{&HTTPError{StatusCode: http.StatusNotFound}, false},
		{&HTTPError{StatusCode: http.StatusRequestTimeout}, true},
		{&HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{&HTTPError{StatusCode: http.StatusBadGateway}, true},
		{fmt.Errorf("wrapped: %w", &NetworkError{Err: errors.New("refused")}), true},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, IsTransient(tc.err), "%v", tc.err)
	}
}
