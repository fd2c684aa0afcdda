package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"boardbot/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFactory(t *testing.T) {
	for _, provider := range config.ValidProviders {
		client, err := New(config.LLMConfig{Provider: provider, APIKey: "k"}, time.Second)
		require.NoError(t, err, "provider %s", provider)
		require.NotNil(t, client)
	}

	_, err := New(config.LLMConfig{Provider: "watson"}, time.Second)
	assert.Error(t, err)
}

func TestSplitSystem(t *testing.T) {
	system, rest := splitSystem([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "hello"},
	})
	assert.Equal(t, "be brief", system)
	require.Len(t, rest, 1)
	assert.Equal(t, RoleUser, rest[0].Role)

	system, rest = splitSystem([]Message{{Role: RoleUser, Content: "hello"}})
	assert.Empty(t, system)
	assert.Len(t, rest, 1)
}

func TestOllamaChat(t *testing.T) {
	var gotReq ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(ollamaChatResponse{
			Model:   gotReq.Model,
			Message: Message{Role: RoleAssistant, Content: "hi there"},
			Done:    true,
		})
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL, Model: "llama3.2"})

	reply, err := client.CompleteWithSystem(context.Background(), "be brief", "hello")
	require.NoError(t, err)
	assert.Equal(t, "hi there", reply)

	assert.Equal(t, "llama3.2", gotReq.Model)
	assert.False(t, gotReq.Stream)
	assert.InDelta(t, 0.1, gotReq.Options.Temperature, 1e-9)
	require.Len(t, gotReq.Messages, 2)
	assert.Equal(t, RoleSystem, gotReq.Messages[0].Role)
}

func TestOllamaError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`model not found`))
	}))
	defer srv.Close()

	client := NewOllamaClient(OllamaConfig{BaseURL: srv.URL})
	_, err := client.Complete(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestOpenAIChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		w.Write([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","content":"pong"}}]}`))
	}))
	defer srv.Close()

	client := NewOpenAIClient(OpenAIConfig{APIKey: "sk-test", BaseURL: srv.URL})

	reply, err := client.Complete(context.Background(), "ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", reply)
}

func TestAnthropicChat(t *testing.T) {
	var gotReq anthropicRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		w.Write([]byte(`{"content":[{"type":"text","text":"hello "},{"type":"text","text":"world"}]}`))
	}))
	defer srv.Close()

	client := NewAnthropicClient(AnthropicConfig{APIKey: "key", BaseURL: srv.URL})

	reply, err := client.CompleteWithSystem(context.Background(), "be brief", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello world", reply)

	// System prompt travels out-of-band, not as a message.
	assert.Equal(t, "be brief", gotReq.System)
	require.Len(t, gotReq.Messages, 1)
	assert.Equal(t, RoleUser, gotReq.Messages[0].Role)
}
