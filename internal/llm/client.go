// Package llm provides chat completion clients for the providers boardbot
// can delegate to: a local Ollama server, OpenAI-compatible APIs, Anthropic,
// and Google Gemini.
package llm

import (
	"context"
	"fmt"
	"time"

	"boardbot/internal/config"
)

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single role-tagged turn in a chat exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client defines the interface for completion providers.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	Chat(ctx context.Context, messages []Message) (string, error)
}

// New creates a completion client based on configuration.
func New(cfg config.LLMConfig, timeout time.Duration) (Client, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "openai":
		return NewOpenAIClient(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "anthropic":
		return NewAnthropicClient(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	case "gemini":
		return NewGeminiClient(GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: timeout,
		}), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

// splitSystem separates a leading system message from the user/assistant turns.
// Providers that carry the system prompt out-of-band (Anthropic, Gemini) use it.
func splitSystem(messages []Message) (string, []Message) {
	if len(messages) > 0 && messages[0].Role == RoleSystem {
		return messages[0].Content, messages[1:]
	}
	return "", messages
}
