// Package store implements the append-only conversation log backed by SQLite.
// Every dispatched request/response pair is appended with an embedding so
// later requests can recall similar past conversations.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"boardbot/internal/embedding"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// ConversationEntry is one stored question/answer pair.
type ConversationEntry struct {
	ID         string
	Question   string
	Answer     string
	Document   string
	Metadata   map[string]interface{}
	Similarity float64
	CreatedAt  time.Time
}

// ConversationStore persists question/answer pairs and supports similarity
// queries over them. Records are append-only; nothing here updates or deletes.
type ConversationStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
	engine embedding.Engine
	logger *zap.Logger
}

// NewConversationStore initializes the SQLite database at the given path.
func NewConversationStore(path string, logger *zap.Logger) (*ConversationStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logger.Debug("failed to set sqlite busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logger.Debug("failed to set sqlite journal_mode=WAL", zap.Error(err))
	}
	// synchronous=NORMAL is safe with WAL and much faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logger.Debug("failed to set sqlite synchronous=NORMAL", zap.Error(err))
	}

	s := &ConversationStore{db: db, dbPath: path, logger: logger}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// initialize creates the required tables.
func (s *ConversationStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		question TEXT NOT NULL,
		answer TEXT NOT NULL,
		document TEXT NOT NULL,
		embedding TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_created ON conversations(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SetEmbeddingEngine configures the embedding engine for this store.
// A nil engine keeps the store on keyword recall.
func (s *ConversationStore) SetEmbeddingEngine(engine embedding.Engine) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engine = engine
}

// Append stores a question/answer pair and returns the generated record id.
// The document text ("Q: ...\nA: ...") is what similarity queries match on.
func (s *ConversationStore) Append(ctx context.Context, question, answer string, metadata map[string]interface{}) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	document := fmt.Sprintf("Q: %s\nA: %s", question, answer)

	if metadata == nil {
		metadata = make(map[string]interface{})
	}
	metadata["request"] = question
	metadata["answer"] = answer
	metadata["timestamp"] = time.Now().Format(time.RFC3339)
	metaJSON, _ := json.Marshal(metadata)

	var embeddingJSON sql.NullString
	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, document)
		if err != nil {
			return "", fmt.Errorf("failed to generate embedding: %w", err)
		}
		data, err := json.Marshal(vec)
		if err != nil {
			return "", fmt.Errorf("failed to serialize embedding: %w", err)
		}
		embeddingJSON = sql.NullString{String: string(data), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (id, question, answer, document, embedding, metadata) VALUES (?, ?, ?, ?, ?, ?)",
		id, question, answer, document, embeddingJSON, string(metaJSON),
	)
	if err != nil {
		return "", fmt.Errorf("failed to append conversation: %w", err)
	}

	return id, nil
}

// Query returns up to limit past conversations most similar to text.
// With an embedding engine set, similarity is cosine distance over stored
// embeddings; otherwise a keyword LIKE search is used.
func (s *ConversationStore) Query(ctx context.Context, text string, limit int) ([]ConversationEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 5
	}

	if s.engine == nil {
		return s.queryKeyword(ctx, text, limit)
	}

	queryVec, err := s.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to generate query embedding: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, question, answer, document, embedding, metadata, created_at FROM conversations WHERE embedding IS NOT NULL",
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type candidate struct {
		entry      ConversationEntry
		similarity float64
	}

	var candidates []candidate

	for rows.Next() {
		var entry ConversationEntry
		var embeddingJSON, metaJSON string

		if err := rows.Scan(&entry.ID, &entry.Question, &entry.Answer, &entry.Document, &embeddingJSON, &metaJSON, &entry.CreatedAt); err != nil {
			continue
		}

		var vec []float32
		if err := json.Unmarshal([]byte(embeddingJSON), &vec); err != nil {
			continue
		}

		similarity, err := embedding.CosineSimilarity(queryVec, vec)
		if err != nil {
			continue
		}

		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		}

		candidates = append(candidates, candidate{entry: entry, similarity: similarity})
	}

	// Sort by similarity descending
	for i := 0; i < len(candidates); i++ {
		for j := i + 1; j < len(candidates); j++ {
			if candidates[j].similarity > candidates[i].similarity {
				candidates[i], candidates[j] = candidates[j], candidates[i]
			}
		}
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	results := make([]ConversationEntry, len(candidates))
	for i, c := range candidates {
		results[i] = c.entry
		results[i].Similarity = c.similarity
	}

	return results, nil
}

// queryKeyword is the fallback keyword-based search used when no embedding
// engine is configured.
func (s *ConversationStore) queryKeyword(ctx context.Context, query string, limit int) ([]ConversationEntry, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []interface{}
	for _, kw := range keywords {
		conditions = append(conditions, "LOWER(document) LIKE ?")
		args = append(args, "%"+kw+"%")
	}

	sqlQuery := fmt.Sprintf(
		"SELECT id, question, answer, document, metadata, created_at FROM conversations WHERE %s ORDER BY created_at DESC LIMIT ?",
		strings.Join(conditions, " OR "),
	)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []ConversationEntry
	for rows.Next() {
		var entry ConversationEntry
		var metaJSON string
		if err := rows.Scan(&entry.ID, &entry.Question, &entry.Answer, &entry.Document, &metaJSON, &entry.CreatedAt); err != nil {
			continue
		}
		if metaJSON != "" {
			json.Unmarshal([]byte(metaJSON), &entry.Metadata)
		}
		results = append(results, entry)
	}

	return results, nil
}

// ReembedAll regenerates embeddings for all conversations that lack them.
// Useful when migrating from keyword-only recall to semantic recall.
func (s *ConversationStore) ReembedAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.engine == nil {
		return fmt.Errorf("no embedding engine configured")
	}

	rows, err := s.db.QueryContext(ctx, "SELECT id, document FROM conversations WHERE embedding IS NULL")
	if err != nil {
		return err
	}
	defer rows.Close()

	type pending struct {
		id       string
		document string
	}

	var todo []pending
	for rows.Next() {
		var p pending
		if err := rows.Scan(&p.id, &p.document); err != nil {
			continue
		}
		todo = append(todo, p)
	}

	if len(todo) == 0 {
		return nil
	}

	batchSize := 32
	for i := 0; i < len(todo); i += batchSize {
		end := int(math.Min(float64(i+batchSize), float64(len(todo))))
		batch := todo[i:end]

		texts := make([]string, len(batch))
		for j, p := range batch {
			texts[j] = p.document
		}

		embeddings, err := s.engine.EmbedBatch(ctx, texts)
		if err != nil {
			return fmt.Errorf("failed to generate batch embeddings: %w", err)
		}

		for j, p := range batch {
			data, _ := json.Marshal(embeddings[j])
			if _, err := s.db.ExecContext(ctx,
				"UPDATE conversations SET embedding = ? WHERE id = ?",
				string(data), p.id,
			); err != nil {
				return fmt.Errorf("failed to update conversation %s: %w", p.id, err)
			}
		}
	}

	s.logger.Info("reembedded conversations", zap.Int("count", len(todo)))
	return nil
}

// Stats returns statistics about the stored conversations.
func (s *ConversationStore) Stats() (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]interface{})

	var total int64
	s.db.QueryRow("SELECT COUNT(*) FROM conversations").Scan(&total)
	stats["total_conversations"] = total

	var withEmbeddings int64
	s.db.QueryRow("SELECT COUNT(*) FROM conversations WHERE embedding IS NOT NULL").Scan(&withEmbeddings)
	stats["with_embeddings"] = withEmbeddings
	stats["without_embeddings"] = total - withEmbeddings

	if s.engine != nil {
		stats["embedding_engine"] = s.engine.Name()
		stats["embedding_dimensions"] = s.engine.Dimensions()
	} else {
		stats["embedding_engine"] = "none (keyword search)"
	}

	return stats, nil
}

// Close closes the underlying database.
func (s *ConversationStore) Close() error {
	return s.db.Close()
}
