// Package embedding provides vector embedding generation for conversation
// recall. Supports two backends: Ollama (local) and Google GenAI (cloud).
package embedding

import (
	"context"
	"fmt"
	"math"

	"boardbot/internal/config"

	"go.uber.org/zap"
)

// Engine generates vector embeddings for text.
type Engine interface {
	// Embed generates an embedding for a single text
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of embeddings
	Dimensions() int

	// Name returns the engine name
	Name() string
}

// NewEngine creates an embedding engine based on configuration.
// Provider "none" returns a nil engine; the conversation store then falls
// back to keyword recall.
func NewEngine(cfg config.EmbeddingConfig, logger *zap.Logger) (Engine, error) {
	var engine Engine
	var err error

	switch cfg.Provider {
	case "none", "":
		logger.Info("embedding disabled, conversation recall degrades to keyword search")
		return nil, nil
	case "ollama":
		engine, err = NewOllamaEngine(cfg.OllamaEndpoint, cfg.OllamaModel)
	case "genai":
		engine, err = NewGenAIEngine(cfg.GenAIAPIKey, cfg.GenAIModel, cfg.TaskType)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s (use 'ollama', 'genai', or 'none')", cfg.Provider)
	}

	if err != nil {
		return nil, err
	}

	logger.Info("embedding engine ready",
		zap.String("engine", engine.Name()),
		zap.Int("dimensions", engine.Dimensions()))
	return engine, nil
}

// CosineSimilarity calculates the cosine similarity between two vectors.
// Returns a value between -1 and 1, where 1 means identical, 0 means orthogonal.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vectors must have the same length: %d != %d", len(a), len(b))
	}

	var dotProduct, aMagnitude, bMagnitude float64
	for i := 0; i < len(a); i++ {
		dotProduct += float64(a[i] * b[i])
		aMagnitude += float64(a[i] * a[i])
		bMagnitude += float64(b[i] * b[i])
	}

	if aMagnitude == 0 || bMagnitude == 0 {
		return 0, nil
	}

	return dotProduct / (math.Sqrt(aMagnitude) * math.Sqrt(bMagnitude)), nil
}
