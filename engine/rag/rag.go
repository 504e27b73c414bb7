// Package rag answers questions about the Tiled documentation: embed the
// question, pull the nearest chunks from the vector store, and have the
// model synthesize a grounded answer with cited sources.
package rag

import (
	"context"
	"errors"
	"log/slog"

	"github.com/mapwright/tiledocs/engine/domain"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/llm"
)

// Mode selects how the synthesizer gathers context.
type Mode string

const (
	// ModeSimple retrieves once up front and answers in a single model call.
	ModeSimple Mode = "simple"
	// ModeTools exposes retrieval to the model as callable tools and loops
	// until it answers or the round cap is hit.
	ModeTools Mode = "tools"
)

const (
	// DefaultTopK is how many chunks a retrieval returns.
	DefaultTopK = 5
	// DefaultThreshold drops matches below this cosine similarity.
	DefaultThreshold = 0.5
	// DefaultMaxToolRounds caps model/tool round-trips in ModeTools.
	DefaultMaxToolRounds = 4
)

// Vectorizer turns query text into an embedding.
type Vectorizer interface {
	Embed(ctx context.Context, text string) []float32
}

// ChatClient is the completion surface the synthesizer talks to.
type ChatClient interface {
	Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error)
}

// DocStore is the slice of the vector store retrieval needs.
type DocStore interface {
	Search(ctx context.Context, embedding []float32, k int, threshold float32, filter map[string]string) ([]semantic.ScoredChunk, error)
	ListSourceURLs(ctx context.Context) ([]string, error)
	PageChunks(ctx context.Context, url string) ([]semantic.ChunkRecord, error)
}

// RelatedFinder surfaces link-graph neighbors of a page. Optional.
type RelatedFinder interface {
	RelatedURLs(ctx context.Context, url string, depth, limit int) ([]string, error)
}

// Options tunes retrieval and synthesis.
type Options struct {
	Mode          Mode
	TopK          int
	Threshold     float32
	Model         string
	SystemPrompt  string
	Temperature   float32
	MaxTokens     int
	MaxToolRounds int
}

func (o *Options) fill() {
	if o.Mode == "" {
		o.Mode = ModeSimple
	}
	if o.TopK <= 0 {
		o.TopK = DefaultTopK
	}
	if o.Threshold == 0 {
		o.Threshold = DefaultThreshold
	}
	if o.SystemPrompt == "" {
		o.SystemPrompt = DefaultSystemPrompt
	}
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 500
	}
	if o.MaxToolRounds <= 0 {
		o.MaxToolRounds = DefaultMaxToolRounds
	}
}

// Source is one cited document behind an answer.
type Source struct {
	Title      string  `json:"title"`
	Content    string  `json:"content"`
	URL        string  `json:"url"`
	Similarity float32 `json:"similarity"`
}

// Answer is a synthesized response with its citations.
type Answer struct {
	Text    string   `json:"response"`
	Sources []Source `json:"source_documents"`
	Model   string   `json:"model,omitempty"`
}

// Service is the retriever plus synthesizer.
type Service struct {
	embed   Vectorizer
	chat    ChatClient
	store   DocStore
	related RelatedFinder // optional
	opts    Options
	logger  *slog.Logger
}

// New creates a Service. related may be nil.
func New(embed Vectorizer, chat ChatClient, store DocStore, related RelatedFinder, opts Options, logger *slog.Logger) *Service {
	opts.fill()
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embed: embed, chat: chat, store: store, related: related, opts: opts, logger: logger}
}

// Retrieve embeds the query and returns the nearest documentation chunks,
// scoped to the documentation source tag.
func (s *Service) Retrieve(ctx context.Context, query string) ([]semantic.ScoredChunk, error) {
	vec := s.embed.Embed(ctx, query)
	chunks, err := s.store.Search(ctx, vec, s.opts.TopK, s.opts.Threshold,
		map[string]string{"source": domain.SourceTag})
	if err != nil {
		return nil, errOf(KindSearch, err)
	}
	return chunks, nil
}

// Query answers a question. Retrieval or synthesis failures are returned as
// tagged errors, never folded into the answer text.
func (s *Service) Query(ctx context.Context, question string) (*Answer, error) {
	if s.opts.Mode == ModeTools {
		return s.queryWithTools(ctx, question)
	}
	return s.querySimple(ctx, question)
}

func (s *Service) querySimple(ctx context.Context, question string) (*Answer, error) {
	chunks, err := s.Retrieve(ctx, question)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("retrieved context", "chunks", len(chunks))

	contextText := formatContext(chunks)
	if rel := s.relatedTo(ctx, chunks); rel != "" {
		contextText += "\n\n" + rel
	}

	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model: s.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: s.opts.SystemPrompt},
			{Role: llm.RoleUser, Content: buildUserPrompt(contextText, question)},
		},
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, errOf(KindChat, err)
	}
	reply := resp.Reply()
	if reply.Content == "" {
		return nil, errOf(KindChat, errors.New("model returned no content"))
	}

	return &Answer{Text: reply.Content, Sources: sourcesOf(chunks), Model: resp.Model}, nil
}

// relatedTo asks the link graph for neighbors of the top match. Graph
// failures only cost the enrichment, not the answer.
func (s *Service) relatedTo(ctx context.Context, chunks []semantic.ScoredChunk) string {
	if s.related == nil || len(chunks) == 0 {
		return ""
	}
	pages, err := s.related.RelatedURLs(ctx, chunks[0].URL, 1, 5)
	if err != nil {
		s.logger.Warn("link graph lookup failed", "url", chunks[0].URL, "err", err)
		return ""
	}
	if len(pages) == 0 {
		return ""
	}
	out := "Related documentation pages:"
	for _, p := range pages {
		out += "\n- " + p
	}
	return out
}

func sourcesOf(chunks []semantic.ScoredChunk) []Source {
	sources := make([]Source, 0, len(chunks))
	for _, c := range chunks {
		sources = append(sources, Source{
			Title:      c.Title,
			Content:    c.Content,
			URL:        c.URL,
			Similarity: c.Score,
		})
	}
	return sources
}
