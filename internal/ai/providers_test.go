package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var convo = []Message{
	{Role: RoleSystem, Content: "You are a writer."},
	{Role: RoleUser, Content: "Write about AI"},
}

func TestOllamaProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req ollamaChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3:latest", req.Model)
		assert.False(t, req.Stream)
		assert.Equal(t, convo, req.Messages)

		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": "Hello #AI"},
		})
	}))
	defer srv.Close()

	p := NewOllamaProvider(srv.URL+"/", "")
	out, err := p.Chat(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "Hello #AI", out)
}

func TestOllamaProvider_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"model \"nope\" not found"}`))
	}))
	defer srv.Close()

	_, err := NewOllamaProvider(srv.URL, "nope").Chat(context.Background(), convo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), `model "nope" not found`)
}

func TestOpenRouterProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer k-123", r.Header.Get("Authorization"))
		assert.Equal(t, "postcrew", r.Header.Get("X-Title"))

		var req openRouterChatReq
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "google/gemini-2.5-pro", req.Model)

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Post text"}}]}`))
	}))
	defer srv.Close()

	p := NewOpenRouterProvider(srv.URL, "k-123", "google/gemini-2.5-pro", "", "postcrew")
	out, err := p.Chat(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "Post text", out)
}

func TestOpenRouterProvider_RequiresKey(t *testing.T) {
	p := NewOpenRouterProvider("", "", "m", "", "")
	_, err := p.Chat(context.Background(), convo)
	require.EqualError(t, err, "openrouter: api key is required")
}

func TestOpenRouterProvider_EmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenRouterProvider(srv.URL, "k", "m", "", "").Chat(context.Background(), convo)
	require.EqualError(t, err, "openrouter: empty response")
}

func TestOpenAIProvider_Chat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, DefaultOpenAIModel, body.Model)
		if assert.Len(t, body.Messages, 2) {
			assert.Equal(t, "system", body.Messages[0].Role)
			assert.Equal(t, "user", body.Messages[1].Role)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Hi there"}}]
		}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", srv.URL, "")
	require.NoError(t, err)
	out, err := p.Chat(context.Background(), convo)
	require.NoError(t, err)
	assert.Equal(t, "Hi there", out)
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider(" ", "", "")
	require.ErrorIs(t, err, ErrOpenAIKeyNotSet)
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	var gotModel string
	reg.Register(" Fake ", func(ctx context.Context, model string) (Provider, error) {
		gotModel = model
		return NewOllamaProvider("", model), nil
	})

	p, err := reg.Get(context.Background(), "FAKE", " m1 ")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "m1", gotModel)
	assert.Equal(t, []string{"fake"}, reg.Names())

	_, err = reg.Get(context.Background(), "missing", "")
	require.True(t, errors.Is(err, ErrUnknownProvider))
}
