// Package main runs the ingest worker: it consumes fetched pages from NATS
// and runs each through the chunk/annotate/embed/store pipeline.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"

	"github.com/mapwright/tiledocs/engine/embed"
	"github.com/mapwright/tiledocs/engine/ingest"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/llm"
)

// Config holds all environment-based configuration.
type Config struct {
	LLMBaseURL string
	LLMAPIKey  string
	LLMModel   string
	EmbedModel string
	EmbedDims  int
	QdrantURL  string
	Collection string
	NATSURL    string
	Workers    int
}

func loadConfig() Config {
	return Config{
		LLMBaseURL: envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:  os.Getenv("LLM_API_KEY"),
		LLMModel:   envOr("LLM_MODEL", "gpt-4o-mini"),
		EmbedModel: envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDims:  envIntOr("EMBED_DIMS", embed.DefaultDims),
		QdrantURL:  envOr("QDRANT_URL", "localhost:6334"),
		Collection: envOr("QDRANT_COLLECTION", "tiled_docs"),
		NATSURL:    envOr("NATS_URL", nats.DefaultURL),
		Workers:    envIntOr("INGEST_WORKERS", ingest.DefaultWorkers),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	var n int
	if _, err := fmt.Sscanf(os.Getenv(key), "%d", &n); err == nil && n > 0 {
		return n
	}
	return fallback
}

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := loadConfig()

	if err := run(cfg, logger); err != nil {
		logger.Error("ingest worker exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey)
	embedder := embed.New(llmClient, cfg.EmbedModel, cfg.EmbedDims, logger)

	if err := vectorStore.EnsureCollection(ctx, embedder.Dims()); err != nil {
		return err
	}

	nc, err := nats.Connect(cfg.NATSURL,
		nats.Name("tiledocs-ingest"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("nats connect: %w", err)
	}
	defer nc.Drain()

	sub, err := ingest.StartConsumer(nc, ingest.Deps{
		Embedder:  embedder,
		Annotator: ingest.NewAnnotator(llmClient, cfg.LLMModel, logger),
		Store:     vectorStore,
		ChunkSize: ingest.DefaultChunkSize,
		Workers:   cfg.Workers,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	defer sub.Unsubscribe()

	logger.Info("ingest worker started", "subject", ingest.IngestSubject)
	<-ctx.Done()
	logger.Info("shutdown signal received")
	return nil
}
