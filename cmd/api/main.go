// Package main implements the tiledocs question-answering API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/mapwright/tiledocs/engine/bridge"
	"github.com/mapwright/tiledocs/engine/docgraph"
	"github.com/mapwright/tiledocs/engine/embed"
	"github.com/mapwright/tiledocs/engine/rag"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/llm"
	"github.com/mapwright/tiledocs/pkg/metrics"
	"github.com/mapwright/tiledocs/pkg/mid"
)

// Config holds all environment-based configuration.
type Config struct {
	Port         string
	LLMBaseURL   string
	LLMAPIKey    string
	LLMModel     string
	EmbedModel   string
	EmbedDims    int
	SystemPrompt string
	RAGMode      string
	QdrantURL    string
	Collection   string
	Neo4jURL     string
	Neo4jUser    string
	Neo4jPass    string
	BearerToken  string
	RPGJSAPIURL  string
	SchemaAPIURL string
	CORSOrigin   string
}

func loadConfig() Config {
	return Config{
		Port:         envOr("PORT", "8001"),
		LLMBaseURL:   envOr("LLM_BASE_URL", "https://api.openai.com/v1"),
		LLMAPIKey:    os.Getenv("LLM_API_KEY"),
		LLMModel:     envOr("LLM_MODEL", "gpt-4o-mini"),
		EmbedModel:   envOr("EMBED_MODEL", "text-embedding-3-small"),
		EmbedDims:    envIntOr("EMBED_DIMS", embed.DefaultDims),
		SystemPrompt: os.Getenv("SYSTEM_PROMPT"),
		RAGMode:      envOr("RAG_MODE", string(rag.ModeSimple)),
		QdrantURL:    envOr("QDRANT_URL", "localhost:6334"),
		Collection:   envOr("QDRANT_COLLECTION", "tiled_docs"),
		Neo4jURL:     envOr("NEO4J_URL", "neo4j://localhost:7687"),
		Neo4jUser:    envOr("NEO4J_USER", "neo4j"),
		Neo4jPass:    envOr("NEO4J_PASS", "password"),
		BearerToken:  os.Getenv("API_BEARER_TOKEN"),
		RPGJSAPIURL:  os.Getenv("RPGJS_API_URL"),
		SchemaAPIURL: os.Getenv("SCHEMA_API_URL"),
		CORSOrigin:   envOr("CORS_ORIGIN", "*"),
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
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- Connect to Qdrant ---
	vectorStore, err := semantic.New(cfg.QdrantURL, cfg.Collection)
	if err != nil {
		return fmt.Errorf("qdrant connect: %w", err)
	}
	defer vectorStore.Close()

	// --- Connect to Neo4j (link graph, optional enrichment) ---
	var graphStore *docgraph.Store
	neo4jDriver, err := neo4j.NewDriverWithContext(cfg.Neo4jURL, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPass, ""))
	if err != nil {
		logger.Warn("neo4j unavailable, link-graph enrichment disabled", "err", err)
	} else {
		defer neo4jDriver.Close(ctx)
		graphStore = docgraph.New(neo4jDriver)
	}

	// --- Build RAG service ---
	llmClient := llm.New(cfg.LLMBaseURL, cfg.LLMAPIKey)
	embedder := embed.New(llmClient, cfg.EmbedModel, cfg.EmbedDims, logger)

	var related rag.RelatedFinder
	if graphStore != nil {
		related = graphStore
	}
	ragSvc := rag.New(embedder, llmClient, vectorStore, related, rag.Options{
		Mode:         rag.Mode(cfg.RAGMode),
		Model:        cfg.LLMModel,
		SystemPrompt: cfg.SystemPrompt,
	}, logger)

	// --- Agent bridge ---
	bridgeClient := bridge.New(map[bridge.Agent]bridge.Endpoint{
		bridge.AgentRPGJS:  {URL: cfg.RPGJSAPIURL, APIKey: cfg.BearerToken},
		bridge.AgentSchema: {URL: cfg.SchemaAPIURL, APIKey: cfg.BearerToken},
	}, logger)

	// --- Metrics ---
	reg := metrics.New()
	asks := reg.Counter("tiledocs_ask_total", "Total /api/ask requests.")
	askErrors := reg.Counter("tiledocs_ask_errors_total", "Failed /api/ask requests.")
	askLatency := reg.Histogram("tiledocs_ask_duration_seconds", "Latency of /api/ask.", nil)

	// --- Build HTTP server ---
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", handleRoot)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.Handle("GET /metrics", reg.Handler())
	mux.Handle("POST /api/ask", mid.Chain(
		handleAsk(ragSvc, bridgeClient, logger, asks, askErrors, askLatency),
		mid.Bearer(cfg.BearerToken),
	))

	handler := mid.Chain(mux,
		mid.Recover(logger),
		mid.Logger(logger),
		mid.CORS(cfg.CORSOrigin),
		mid.OTel("tiledocs-api"),
	)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// --- Graceful shutdown ---
	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server starting", "port", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutCtx)
}

// --- Handlers ---

func handleRoot(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"service": "tiledocs",
		"message": "Tiled documentation expert API. POST /api/ask to ask a question.",
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// AskRequest is the JSON body for POST /api/ask. Collaborative is accepted
// for caller compatibility; map-design requests are detected from the query
// text regardless of the flag.
type AskRequest struct {
	Query         string `json:"query"`
	UserID        string `json:"user_id"`
	SessionID     string `json:"session_id"`
	Context       string `json:"context,omitempty"`
	Collaborative bool   `json:"collaborative,omitempty"`
}

// AskResponse is the JSON response for POST /api/ask.
type AskResponse struct {
	Response              string               `json:"response"`
	SourceDocuments       []rag.Source         `json:"source_documents"`
	CollaborativeInsights *bridge.DesignResult `json:"collaborative_insights,omitempty"`
}

func handleAsk(ragSvc *rag.Service, bridgeClient *bridge.Client, logger *slog.Logger,
	asks, askErrors *metrics.Counter, latency *metrics.Histogram) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		asks.Inc()
		defer func() { latency.Since(start) }()

		var req AskRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.Query == "" {
			http.Error(w, `{"error":"query is required"}`, http.StatusBadRequest)
			return
		}

		answer, err := ragSvc.Query(r.Context(), req.Query)
		if err != nil {
			askErrors.Inc()
			logger.Error("rag query failed", "err", err, "session", req.SessionID)
			writeError(w, http.StatusInternalServerError, err)
			return
		}

		resp := AskResponse{
			Response:        answer.Text,
			SourceDocuments: answer.Sources,
		}

		// Map-design requests additionally consult the sibling agents.
		// Failed agent queries are recorded inline in the insights, so the
		// design block is present whenever the request calls for one.
		if aspects := bridge.AnalyzeRequest(req.Query); len(aspects.RPGJS) > 0 {
			resp.CollaborativeInsights = bridgeClient.CollaborativeDesign(r.Context(), req.Query)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{
		"error":  http.StatusText(status),
		"detail": err.Error(),
	})
}
