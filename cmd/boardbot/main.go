package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"boardbot/internal/config"
	"boardbot/internal/dispatch"
	"boardbot/internal/embedding"
	"boardbot/internal/httpapi"
	"boardbot/internal/intent"
	"boardbot/internal/llm"
	"boardbot/internal/store"
	"boardbot/internal/trello"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Global flags
	verbose    bool
	configPath string
	listenAddr string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "boardbot",
	Short: "boardbot - natural-language Trello assistant",
	Long: `boardbot is an HTTP service that turns natural-language requests into
Trello actions.

Each request is classified into an intent (create board, delete board, or
conversational), dispatched against the Trello API, and logged to a local
conversation store that feeds similar past exchanges back into later answers.

Run 'boardbot serve' to start the HTTP server.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

// serveCmd starts the HTTP server
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long: `Starts the boardbot HTTP server.

Endpoints:
  POST /prompt     process a natural-language request
  GET  /ask        legacy question/answer endpoint
  GET  /getBoards  list the member's boards
  GET  /getLists   list a board's lists
  GET  /getCards   list a list's cards
  GET  /getFields  fetch a single card field`,
	RunE: runServe,
}

// reembedCmd recomputes stored conversation embeddings
var reembedCmd = &cobra.Command{
	Use:   "reembed",
	Short: "Recompute embeddings for all stored conversations",
	Long: `Re-embeds every stored conversation with the configured embedding
engine. Run this after switching embedding providers or models so that
similarity retrieval stays consistent.`,
	RunE: runReembed,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	conversations, err := store.NewConversationStore(cfg.Memory.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer conversations.Close()

	engine, err := embedding.NewEngine(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding engine: %w", err)
	}
	conversations.SetEmbeddingEngine(engine)

	client, err := llm.New(cfg.LLM, cfg.GetLLMTimeout())
	if err != nil {
		return fmt.Errorf("failed to initialize completion client: %w", err)
	}

	boards := trello.NewClient(cfg.Trello, cfg.GetTrelloTimeout(), logger)

	tagger := intent.NewRegexTagger()
	var classifier intent.Classifier
	switch cfg.Intent.Classifier {
	case "model":
		classifier = intent.NewModelClassifier(client)
	default:
		classifier = intent.NewHeuristicClassifier(tagger)
	}
	extractor := intent.NewExtractor(classifier, client, logger)

	dispatcher := dispatch.New(boards, client, conversations,
		cfg.Memory.HistoryLimit, cfg.Memory.LegacyHistoryLimit, logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      httpapi.NewServer(extractor, dispatcher, boards, logger),
		ReadTimeout:  cfg.GetReadTimeout(),
		WriteTimeout: cfg.GetWriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			zap.String("addr", cfg.Server.Addr),
			zap.String("llm_provider", cfg.LLM.Provider),
			zap.String("embedding_provider", cfg.Embedding.Provider))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return nil
}

func runReembed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	conversations, err := store.NewConversationStore(cfg.Memory.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("failed to open conversation store: %w", err)
	}
	defer conversations.Close()

	engine, err := embedding.NewEngine(cfg.Embedding, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize embedding engine: %w", err)
	}
	if engine == nil {
		return fmt.Errorf("no embedding engine configured (embedding.provider is %q)", cfg.Embedding.Provider)
	}
	conversations.SetEmbeddingEngine(engine)

	if err := conversations.ReembedAll(cmd.Context()); err != nil {
		return fmt.Errorf("re-embedding failed: %w", err)
	}

	stats, err := conversations.Stats()
	if err == nil {
		logger.Info("re-embedding complete", zap.Any("stats", stats))
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "boardbot.yaml", "Path to config file")

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "Listen address (overrides config)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(reembedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
