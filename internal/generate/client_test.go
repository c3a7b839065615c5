package generate

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testProvider(typ ProviderType, url string) ProviderConfig {
	return ProviderConfig{
		Type:       typ,
		Model:      "test-model",
		APIKey:     "test-key",
		BaseURL:    url,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		Backoff:    time.Millisecond,
	}
}

func TestClaudeClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))

		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "test-model", req.Model)
		assert.Equal(t, "be terse", req.System)
		assert.Equal(t, "hello", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"hi there"}],"stop_reason":"end_turn"}`))
	}))
	defer srv.Close()

	c, err := NewClient(testProvider(ProviderClaude, srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "be terse", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", out)
}

func TestOpenAIClient_Complete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req openAIRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 2)
		assert.Equal(t, "system", req.Messages[0].Role)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(testProvider(ProviderOpenAI, srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "sys", "prompt")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestClient_RetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"done"}]}`))
	}))
	defer srv.Close()

	c, err := NewClient(testProvider(ProviderClaude, srv.URL), nil)
	require.NoError(t, err)

	out, err := c.Complete(context.Background(), "", "x")
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_GivesUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewClient(testProvider(ProviderOpenAI, srv.URL), nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed after 3 attempts")
	assert.Contains(t, err.Error(), "status 400")
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_EmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content":[]}`))
	}))
	defer srv.Close()

	cfg := testProvider(ProviderClaude, srv.URL)
	cfg.MaxRetries = 0
	c, err := NewClient(cfg, nil)
	require.NoError(t, err)

	_, err = c.Complete(context.Background(), "", "x")
	assert.ErrorContains(t, err, "no content")
}

func TestProviderConfig_Validate(t *testing.T) {
	valid := testProvider(ProviderClaude, "")
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*ProviderConfig)
	}{
		{"bad type", func(p *ProviderConfig) { p.Type = "bard" }},
		{"no model", func(p *ProviderConfig) { p.Model = "" }},
		{"no key", func(p *ProviderConfig) { p.APIKey = "" }},
		{"no timeout", func(p *ProviderConfig) { p.Timeout = 0 }},
		{"negative retries", func(p *ProviderConfig) { p.MaxRetries = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
			_, err := NewClient(p, nil)
			assert.Error(t, err)
		})
	}
}

func TestTruncateForError(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'a'
	}
	assert.Len(t, truncateForError(long), 200+len("... (truncated)"))
	assert.Equal(t, "short", truncateForError([]byte("short")))
}
