package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mapwright/tiledocs/pkg/llm"
)

// Placeholders substituted when title/summary extraction fails. A failed
// annotation never fails the chunk.
const (
	PlaceholderTitle   = "Error processing title"
	PlaceholderSummary = "Error processing summary"
)

// annotateContextBytes is how much of a chunk is sent for annotation.
const annotateContextBytes = 1000

const annotateSystemPrompt = `You are an AI that extracts titles and summaries from documentation chunks.
Return a JSON object with 'title' and 'summary' keys.
For the title: If this seems like the start of a document, extract its title. If it's a middle chunk, derive a descriptive title.
For the summary: Create a concise summary of the main points in this chunk.
Keep both title and summary concise but informative.`

// ChatClient is the chat completion capability the annotator needs.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// Annotator derives a title and summary for each chunk via the chat model.
type Annotator struct {
	chat   ChatClient
	model  string
	logger *slog.Logger
}

// NewAnnotator creates an Annotator using the given chat model.
func NewAnnotator(chat ChatClient, model string, logger *slog.Logger) *Annotator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Annotator{chat: chat, model: model, logger: logger}
}

type annotation struct {
	Title   string `json:"title"`
	Summary string `json:"summary"`
}

// TitleAndSummary extracts a title and summary for a chunk. Failures are
// logged and replaced with placeholder strings.
func (a *Annotator) TitleAndSummary(ctx context.Context, chunk, url string) (string, string) {
	excerpt := chunk
	if len(excerpt) > annotateContextBytes {
		excerpt = excerpt[:annotateContextBytes] + "..."
	}

	resp, err := a.chat.Chat(ctx, llm.ChatRequest{
		Model: a.model,
		Messages: []llm.Message{
			{Role: "system", Content: annotateSystemPrompt},
			{Role: "user", Content: fmt.Sprintf("URL: %s\n\nContent:\n%s", url, excerpt)},
		},
		ResponseFormat: &llm.ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		a.logger.Warn("annotate failed, using placeholders", "err", err, "url", url)
		return PlaceholderTitle, PlaceholderSummary
	}

	var ann annotation
	if err := json.Unmarshal([]byte(resp.Reply().Content), &ann); err != nil {
		a.logger.Warn("annotate returned malformed JSON", "err", err, "url", url)
		return PlaceholderTitle, PlaceholderSummary
	}
	if ann.Title == "" {
		ann.Title = PlaceholderTitle
	}
	if ann.Summary == "" {
		ann.Summary = PlaceholderSummary
	}
	return ann.Title, ann.Summary
}
