package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaClient implements Client against a local Ollama server.
type OllamaClient struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// OllamaConfig holds configuration for the Ollama client.
type OllamaConfig struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewOllamaClient creates a new Ollama chat client.
func NewOllamaClient(cfg OllamaConfig) *OllamaClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3.2"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}

	return &OllamaClient{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type ollamaChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  struct {
		Temperature float64 `json:"temperature,omitempty"`
	} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Model   string  `json:"model"`
	Message Message `json:"message"`
	Done    bool    `json:"done"`
	Error   string  `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *OllamaClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

// CompleteWithSystem sends a prompt with a system message.
func (c *OllamaClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	messages := make([]Message, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: systemPrompt})
	}
	messages = append(messages, Message{Role: RoleUser, Content: userPrompt})
	return c.Chat(ctx, messages)
}

// Chat sends an ordered list of role-tagged messages and returns the reply.
func (c *OllamaClient) Chat(ctx context.Context, messages []Message) (string, error) {
	reqBody := ollamaChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}
	reqBody.Options.Temperature = 0.1 // Low temperature for structured output

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/chat", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ollama request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}

	var chatResp ollamaChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}

	if chatResp.Error != "" {
		return "", fmt.Errorf("ollama error: %s", chatResp.Error)
	}

	return strings.TrimSpace(chatResp.Message.Content), nil
}

// SetModel changes the model used for completions.
func (c *OllamaClient) SetModel(model string) {
	c.model = model
}

// GetModel returns the current model.
func (c *OllamaClient) GetModel() string {
	return c.model
}
