// Package main runs a crawl of the Tiled documentation: fetch each page,
// chunk, annotate, embed, and index it. Pages are processed in-process;
// set CRAWL_PUBLISH=1 to publish fetched pages to NATS for the ingest
// worker instead.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mapwright/tiledocs/engine/crawler"
	"github.com/mapwright/tiledocs/engine/docgraph"
	"github.com/mapwright/tiledocs/engine/domain"
	"github.com/mapwright/tiledocs/engine/embed"
	"github.com/mapwright/tiledocs/engine/ingest"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/fn"
	"github.com/mapwright/tiledocs/pkg/llm"
)

// Config holds all environment-based configuration.
type Config struct {
	LLMBaseURL  string
	LLMAPIKey   string
	LLMModel    string
	EmbedModel  string
	EmbedDims   int
	QdrantURL   string
	Collection  string
	Neo4jURL    string
	Neo4jUser   string
	Neo4jPass   string
	NATSURL     string
	Publish     bool
	FollowLinks bool
	MaxDepth    int
	Concurrency int
}

func loadConfig() Config {
	return Config{
		LLMBaseURL:  envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),
		LLMModel:    envOr("LLM_MODEL", "gpt-4o-mini"),
		EmbedModel:  envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDims:   envIntOr("EMBED_DIMS", embed.DefaultDims),
		QdrantURL:   envOr("QDRANT_URL", "localhost:6334"),
		Collection:  envOr("QDRANT_COLLECTION", "tiled_docs"),
		Neo4jURL:    envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:   envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:   envOr("NEO4J_PASS", "password"),
		NATSURL:     envOr("NATS_URL", nats.DefaultURL),
		Publish:     os.Getenv("CRAWL_PUBLISH") == "1",
		FollowLinks: os.Getenv("CRAWL_FOLLOW_LINKS") != "0",
		MaxDepth:    envIntOr("CRAWL_MAX_DEPTH", 2),
		Concurrency: envIntOr("CRAWL_CONCURRENCY", 5),
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
		logger.Error("crawl failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pipeline, cleanup, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	graphStore, closeGraph := connectGraph(ctx, cfg, logger)
	defer closeGraph()

	c := crawler.New(
		crawler.NewHTTPFetcher(2, 1),
		pipeline,
		graphStore,
		crawler.Options{
			MaxConcurrent:   cfg.Concurrency,
			FollowLinks:     cfg.FollowLinks,
			MaxDepth:        cfg.MaxDepth,
			AllowedPrefixes: crawler.DocRoots,
		},
		logger,
	)

	start := time.Now()
	succeeded, failed := c.Crawl(ctx, crawler.SeedURLs())
	logger.Info("crawl finished",
		"succeeded", succeeded,
		"failed", failed,
		"duration", time.Since(start),
	)
	if succeeded == 0 {
		return fmt.Errorf("no pages indexed (%d failures)", failed)
	}
	return nil
}

// buildPipeline returns the page-processing stage: the full in-process
// ingest pipeline, or a thin NATS publisher when CRAWL_PUBLISH is set.
func buildPipeline(ctx context.Context, cfg Config, logger *slog.Logger) (fn.Stage[domain.Page, string], func(), error) {
	if cfg.Publish {
		nc, err := nats.Connect(cfg.NATSURL)
		if err != nil {
			return nil, nil, fmt.Errorf("nats connect: %w", err)
		}
		stage := func(_ context.Context, p domain.Page) fn.Result[string] {
			data, err := json.Marshal(p)
			if err != nil {
				return fn.Err[string](err)
			}
			if err := nc.Publish(ingest.IngestSubject, data); err != nil {
				return fn.Err[string](err)
			}
			return fn.Ok(p.URL)
		}
		return stage, func() { nc.Drain() }, nil
	}

	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return nil, nil, fmt.Errorf("qdrant connect: %w", err)
	}

	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey)
	embedder := embed.New(llmClient, cfg.EmbedModel, cfg.EmbedDims, logger)

	if err := vectorStore.EnsureCollection(ctx, embedder.Dims()); err != nil {
		vectorStore.Close()
		return nil, nil, err
	}

	pipeline := ingest.NewPipeline(ingest.Deps{
		Embedder:  embedder,
		Annotator: ingest.NewAnnotator(llmClient, cfg.LLMModel, logger),
		Store:     vectorStore,
		ChunkSize: ingest.DefaultChunkSize,
		Logger:    logger,
	})
	return pipeline, func() { vectorStore.Close() }, nil
}

func connectGraph(ctx context.Context, cfg Config, logger *slog.Logger) (*docgraph.Store, func()) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		logger.Warn("neo4j unavailable, link graph disabled", "err", err)
		return nil, func() {}
	}
	return docgraph.New(driver), func() { driver.Close(ctx) }
}
