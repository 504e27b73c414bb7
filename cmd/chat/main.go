// Package main is an interactive terminal client for asking questions
// against the documentation index, useful for trying retrieval and prompts
// without the API server.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/mapwright/tiledocs/engine/embed"
	"github.com/mapwright/tiledocs/engine/rag"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/llm"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	llmBaseURL := envOr("LLM_BASE_URL", "https://api.openai.com/v1")
	llmAPIKey := os.Getenv("LLM_API_KEY")
	llmModel := envOr("LLM_MODEL", "gpt-4o-mini")
	embedModel := envOr("EMBED_MODEL", "text-embedding-3-small")
	qdrantAddr := envOr("QDRANT_URL", "localhost:6334")
	collection := envOr("QDRANT_COLLECTION", "tiled_docs")
	mode := envOr("RAG_MODE", string(rag.ModeSimple))

	store, err := semantic.New(qdrantAddr, collection)
	if err != nil {
		fmt.Fprintln(os.Stderr, "qdrant connect failed:", err)
		os.Exit(1)
	}
	defer store.Close()

	llmClient := llm.New(llmBaseURL, llmAPIKey)
	embedder := embed.New(llmClient, embedModel, 0, logger)
	svc := rag.New(embedder, llmClient, store, nil, rag.Options{
		Mode:  rag.Mode(mode),
		Model: llmModel,
	}, logger)

	fmt.Println("Tiled documentation chat. Ask a question, or 'quit' to exit.")
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}
		if question == "quit" || question == "exit" {
			break
		}

		answer, err := svc.Query(context.Background(), question)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			continue
		}

		fmt.Println()
		fmt.Println(answer.Text)
		if len(answer.Sources) > 0 {
			fmt.Println()
			fmt.Println("Sources:")
			fmt.Println(rag.FormatSources(answer.Sources))
		}
		fmt.Println()
	}
}
