package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all boardbot configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// Completion service (chat LLM)
	LLM LLMConfig `yaml:"llm"`

	// Embedding engine for conversation recall
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Trello board service
	Trello TrelloConfig `yaml:"trello"`

	// Conversation memory
	Memory MemoryConfig `yaml:"memory"`

	// Intent extraction
	Intent IntentConfig `yaml:"intent"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr         string `yaml:"addr"`
	ReadTimeout  string `yaml:"read_timeout"`
	WriteTimeout string `yaml:"write_timeout"`
}

// LLMConfig configures the completion service client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // ollama, openai, anthropic, gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	// Provider: "ollama", "genai", or "none" to disable semantic recall
	Provider string `yaml:"provider"`

	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// TaskType for GenAI: "SEMANTIC_SIMILARITY", "RETRIEVAL_QUERY", "RETRIEVAL_DOCUMENT"
	TaskType string `yaml:"task_type"`
}

// TrelloConfig configures the board service client.
type TrelloConfig struct {
	APIKey  string `yaml:"api_key"`
	Token   string `yaml:"token"`
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// MemoryConfig configures the conversation store.
type MemoryConfig struct {
	DatabasePath string `yaml:"database_path"`

	// HistoryLimit is the number of similar past conversations retrieved
	// before dispatch.
	HistoryLimit int `yaml:"history_limit"`

	// LegacyHistoryLimit is the (much larger) retrieval window used by the
	// legacy /ask endpoint.
	LegacyHistoryLimit int `yaml:"legacy_history_limit"`
}

// IntentConfig configures intent extraction.
type IntentConfig struct {
	// Classifier: "heuristic" (rule-based, default) or "model" (LLM-backed)
	Classifier string `yaml:"classifier"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "boardbot",
		Version: "1.0.0",

		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  "15s",
			WriteTimeout: "120s",
		},

		LLM: LLMConfig{
			Provider: "ollama",
			Model:    "llama3.2",
			BaseURL:  "http://localhost:11434",
			Timeout:  "120s",
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "SEMANTIC_SIMILARITY",
		},

		Trello: TrelloConfig{
			BaseURL: "https://api.trello.com/1",
			Timeout: "30s",
		},

		Memory: MemoryConfig{
			DatabasePath:       "data/boardbot.db",
			HistoryLimit:       5,
			LegacyHistoryLimit: 50,
		},

		Intent: IntentConfig{
			Classifier: "heuristic",
		},
	}
}

// Load loads configuration from a YAML file.
// A missing file is not an error; defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	// Trello credentials
	if key := os.Getenv("TRELLO_API_KEY"); key != "" {
		c.Trello.APIKey = key
	}
	if token := os.Getenv("TRELLO_TOKEN"); token != "" {
		c.Trello.Token = token
	}

	// Completion service API key (checked in priority order; later wins)
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "openai"
	}
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "anthropic"
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "gemini"
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}

	// Local Ollama host override applies to both chat and embeddings
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		if c.LLM.Provider == "ollama" {
			c.LLM.BaseURL = host
		}
		c.Embedding.OllamaEndpoint = host
	}

	// Database path
	if path := os.Getenv("BOARDBOT_DB"); path != "" {
		c.Memory.DatabasePath = path
	}
}

// GetLLMTimeout returns the completion client timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// GetTrelloTimeout returns the board service client timeout as a duration.
func (c *Config) GetTrelloTimeout() time.Duration {
	d, err := time.ParseDuration(c.Trello.Timeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// GetReadTimeout returns the HTTP server read timeout as a duration.
func (c *Config) GetReadTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.ReadTimeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// GetWriteTimeout returns the HTTP server write timeout as a duration.
func (c *Config) GetWriteTimeout() time.Duration {
	d, err := time.ParseDuration(c.Server.WriteTimeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

// ValidProviders lists all supported completion providers.
var ValidProviders = []string{"ollama", "openai", "anthropic", "gemini"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Trello.APIKey == "" || c.Trello.Token == "" {
		return fmt.Errorf("Trello credentials not configured (set TRELLO_API_KEY and TRELLO_TOKEN)")
	}

	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.LLM.Provider != "ollama" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured for provider %s", c.LLM.Provider)
	}

	if c.Memory.HistoryLimit <= 0 {
		return fmt.Errorf("memory.history_limit must be positive")
	}

	switch c.Intent.Classifier {
	case "heuristic", "model":
	default:
		return fmt.Errorf("invalid intent classifier: %s (valid: heuristic, model)", c.Intent.Classifier)
	}

	return nil
}
