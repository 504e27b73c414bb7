package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mapwright/tiledocs/engine/domain"
	"github.com/mapwright/tiledocs/engine/semantic"
	"github.com/mapwright/tiledocs/pkg/llm"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// textResponse builds a plain single-choice chat response.
func textResponse(content string) *llm.ChatResponse {
	var resp llm.ChatResponse
	data := fmt.Sprintf(`{"model":"test-model","choices":[{"message":{"role":"assistant","content":%s}}]}`,
		strconv.Quote(content))
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		panic(err)
	}
	return &resp
}

// toolCallResponse builds a response requesting one tool call.
func toolCallResponse(id, name, args string) *llm.ChatResponse {
	var resp llm.ChatResponse
	data := fmt.Sprintf(`{"model":"test-model","choices":[{"message":{
		"role":"assistant","content":"",
		"tool_calls":[{"id":%s,"type":"function","function":{"name":%s,"arguments":%s}}]
	}}]}`, strconv.Quote(id), strconv.Quote(name), strconv.Quote(args))
	if err := json.Unmarshal([]byte(data), &resp); err != nil {
		panic(err)
	}
	return &resp
}

// scriptedChat replays a fixed sequence of responses and records requests.
type scriptedChat struct {
	responses []*llm.ChatResponse
	err       error
	requests  []llm.ChatRequest
}

func (s *scriptedChat) Chat(_ context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	i := len(s.requests) - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

type fakeEmbed struct{}

func (fakeEmbed) Embed(_ context.Context, _ string) []float32 {
	return []float32{0.1, 0.2, 0.3}
}

// fakeStore serves canned chunks and records the search filter.
type fakeStore struct {
	chunks     []semantic.ScoredChunk
	searchErr  error
	lastK      int
	lastFilter map[string]string
	urls       []string
	pages      map[string][]semantic.ChunkRecord
}

func (f *fakeStore) Search(_ context.Context, _ []float32, k int, _ float32, filter map[string]string) ([]semantic.ScoredChunk, error) {
	f.lastK = k
	f.lastFilter = filter
	return f.chunks, f.searchErr
}

func (f *fakeStore) ListSourceURLs(_ context.Context) ([]string, error) {
	return f.urls, nil
}

func (f *fakeStore) PageChunks(_ context.Context, url string) ([]semantic.ChunkRecord, error) {
	return f.pages[url], nil
}

type fakeRelated struct {
	urls []string
	err  error
}

func (f *fakeRelated) RelatedURLs(_ context.Context, _ string, _, _ int) ([]string, error) {
	return f.urls, f.err
}

func docChunks() []semantic.ScoredChunk {
	return []semantic.ScoredChunk{
		{
			URL:     "https://doc.mapeditor.org/en/stable/manual/layers",
			Title:   "Layers",
			Content: "Tile layers hold tiles; object layers hold objects.",
			Score:   0.91,
		},
		{
			URL:     "https://doc.mapeditor.org/en/stable/manual/objects",
			Title:   "Objects",
			Content: "Objects can carry custom properties.",
			Score:   0.84,
		},
	}
}

func TestQuerySimple_Success(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{textResponse("Use tile layers for terrain.")}}
	store := &fakeStore{chunks: docChunks()}
	svc := New(fakeEmbed{}, chat, store, nil, Options{Model: "test-model"}, discardLogger())

	answer, err := svc.Query(context.Background(), "How do layers work?")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if answer.Text != "Use tile layers for terrain." {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(answer.Sources))
	}
	if answer.Sources[0].Similarity != 0.91 {
		t.Errorf("source similarity = %v", answer.Sources[0].Similarity)
	}

	if store.lastK != DefaultTopK {
		t.Errorf("search k = %d, want %d", store.lastK, DefaultTopK)
	}
	if store.lastFilter["source"] != domain.SourceTag {
		t.Errorf("search filter = %v", store.lastFilter)
	}
}

func TestQuerySimple_PromptContainsContext(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{textResponse("answer")}}
	svc := New(fakeEmbed{}, chat, &fakeStore{chunks: docChunks()}, nil, Options{}, discardLogger())

	if _, err := svc.Query(context.Background(), "How do layers work?"); err != nil {
		t.Fatal(err)
	}

	req := chat.requests[0]
	if req.Messages[0].Role != llm.RoleSystem {
		t.Errorf("first message role = %q", req.Messages[0].Role)
	}
	user := req.Messages[1].Content
	if !strings.Contains(user, "Tile layers hold tiles") {
		t.Error("user prompt missing retrieved context")
	}
	if !strings.Contains(user, "Question: How do layers work?") {
		t.Error("user prompt missing question marker")
	}
	if !strings.Contains(user, "---") {
		t.Error("user prompt missing chunk separator")
	}
}

func TestQuerySimple_SearchError(t *testing.T) {
	svc := New(fakeEmbed{}, &scriptedChat{}, &fakeStore{searchErr: errors.New("qdrant down")}, nil, Options{}, discardLogger())

	_, err := svc.Query(context.Background(), "q")
	if err == nil {
		t.Fatal("expected error")
	}
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.Kind != KindSearch {
		t.Fatalf("expected search-tagged error, got %v", err)
	}
}

func TestQuerySimple_ChatError(t *testing.T) {
	chat := &scriptedChat{err: errors.New("model down")}
	svc := New(fakeEmbed{}, chat, &fakeStore{chunks: docChunks()}, nil, Options{}, discardLogger())

	_, err := svc.Query(context.Background(), "q")
	var tagged *Error
	if !errors.As(err, &tagged) || tagged.Kind != KindChat {
		t.Fatalf("expected chat-tagged error, got %v", err)
	}
}

func TestQuerySimple_RelatedPagesAppended(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{textResponse("answer")}}
	related := &fakeRelated{urls: []string{"https://doc.mapeditor.org/en/stable/manual/objects"}}
	svc := New(fakeEmbed{}, chat, &fakeStore{chunks: docChunks()}, related, Options{}, discardLogger())

	if _, err := svc.Query(context.Background(), "q"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(chat.requests[0].Messages[1].Content, "Related documentation pages:") {
		t.Error("related pages missing from prompt")
	}
}

func TestQuerySimple_RelatedFailureIgnored(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{textResponse("answer")}}
	related := &fakeRelated{err: errors.New("neo4j down")}
	svc := New(fakeEmbed{}, chat, &fakeStore{chunks: docChunks()}, related, Options{}, discardLogger())

	if _, err := svc.Query(context.Background(), "q"); err != nil {
		t.Fatalf("graph failure must not fail the query: %v", err)
	}
}

func TestQueryTools_RetrieveThenAnswer(t *testing.T) {
	chat := &scriptedChat{responses: []*llm.ChatResponse{
		toolCallResponse("call-1", toolRetrieve, `{"user_query":"layers"}`),
		textResponse("Layers organize map content."),
	}}
	store := &fakeStore{chunks: docChunks()}
	svc := New(fakeEmbed{}, chat, store, nil, Options{Mode: ModeTools}, discardLogger())

	answer, err := svc.Query(context.Background(), "How do layers work?")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if answer.Text != "Layers organize map content." {
		t.Errorf("answer = %q", answer.Text)
	}
	if len(answer.Sources) != 2 {
		t.Errorf("expected sources from the tool call, got %d", len(answer.Sources))
	}

	// Second request carries the assistant turn plus the tool result.
	second := chat.requests[1]
	last := second.Messages[len(second.Messages)-1]
	if last.Role != llm.RoleTool || last.ToolCallID != "call-1" {
		t.Errorf("tool message not threaded: %+v", last)
	}
}

func TestQueryTools_RoundCapForcesAnswer(t *testing.T) {
	loop := toolCallResponse("call-x", toolListPages, `{}`)
	chat := &scriptedChat{responses: []*llm.ChatResponse{loop, loop, loop, textResponse("final answer")}}
	store := &fakeStore{urls: []string{"https://doc.mapeditor.org/en/stable/"}}
	svc := New(fakeEmbed{}, chat, store, nil, Options{Mode: ModeTools, MaxToolRounds: 3}, discardLogger())

	answer, err := svc.Query(context.Background(), "q")
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if answer.Text != "final answer" {
		t.Errorf("answer = %q", answer.Text)
	}
	// Three tool rounds plus the forced final call.
	if len(chat.requests) != 4 {
		t.Fatalf("expected 4 chat calls, got %d", len(chat.requests))
	}
	if len(chat.requests[3].Tools) != 0 {
		t.Error("final forced call must not offer tools")
	}
}

func TestRunTool_PageContent(t *testing.T) {
	url := "https://doc.mapeditor.org/en/stable/manual/layers"
	store := &fakeStore{pages: map[string][]semantic.ChunkRecord{
		url: {
			{URL: url, ChunkIndex: 0, Title: "Layers", Content: "Part one."},
			{URL: url, ChunkIndex: 1, Title: "Layers", Content: "Part two."},
		},
	}}
	svc := New(fakeEmbed{}, &scriptedChat{}, store, nil, Options{}, discardLogger())

	out, sources, err := svc.runTool(context.Background(), llm.ToolCall{
		ID: "c", Function: llm.FunctionCall{Name: toolPage, Arguments: fmt.Sprintf(`{"url":%q}`, url)},
	})
	if err != nil {
		t.Fatalf("runTool failed: %v", err)
	}
	if !strings.HasPrefix(out, "# Layers") {
		t.Errorf("output missing title header: %q", out)
	}
	if !strings.Contains(out, "Part one.") || !strings.Contains(out, "Part two.") {
		t.Errorf("output missing chunk content: %q", out)
	}
	if sources != nil {
		t.Error("page content tool should not emit sources")
	}
}

func TestRunTool_Unknown(t *testing.T) {
	svc := New(fakeEmbed{}, &scriptedChat{}, &fakeStore{}, nil, Options{}, discardLogger())
	_, _, err := svc.runTool(context.Background(), llm.ToolCall{
		Function: llm.FunctionCall{Name: "delete_everything", Arguments: `{}`},
	})
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestFormatSources(t *testing.T) {
	sources := []Source{
		{Title: "Layers", Content: strings.Repeat("long content ", 30), URL: "https://x.test/a", Similarity: 0.9},
		{Title: "Objects", Content: "short", URL: "https://x.test/b", Similarity: 0.8},
	}
	out := FormatSources(sources)
	lines := strings.Split(out, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[0], "...") {
		t.Error("long content not truncated")
	}
	if !strings.Contains(lines[1], "https://x.test/b") {
		t.Error("URL missing from formatted source")
	}
}

func TestFormatSources_MultibyteTruncation(t *testing.T) {
	// 3-byte runes put the byte limit mid-sequence; the cut must back up to
	// a rune boundary.
	sources := []Source{
		{Title: "Unicode", Content: strings.Repeat("中", 100), URL: "https://x.test/u", Similarity: 0.7},
	}
	out := FormatSources(sources)
	if !utf8.ValidString(out) {
		t.Fatalf("formatted source is not valid UTF-8: %q", out)
	}
	if !strings.Contains(out, "...") {
		t.Error("long content not truncated")
	}
}

func TestBuildUserPrompt_NoContext(t *testing.T) {
	got := buildUserPrompt("", "What is a tileset?")
	if got != "Question: What is a tileset?" {
		t.Errorf("got %q", got)
	}
}
