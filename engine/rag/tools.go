package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mapwright/tiledocs/pkg/llm"
)

const (
	toolRetrieve  = "retrieve_documentation"
	toolListPages = "list_documentation_pages"
	toolPage      = "get_page_content"
)

func toolDefs() []llm.Tool {
	return []llm.Tool{
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        toolRetrieve,
				Description: "Search the Tiled documentation for chunks relevant to a query.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"user_query": {"type": "string", "description": "The query to search the documentation with."}
					},
					"required": ["user_query"]
				}`),
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        toolListPages,
				Description: "List the URLs of every indexed Tiled documentation page.",
				Parameters:  json.RawMessage(`{"type": "object", "properties": {}}`),
			},
		},
		{
			Type: "function",
			Function: llm.FunctionDef{
				Name:        toolPage,
				Description: "Fetch the full content of one documentation page by URL.",
				Parameters: json.RawMessage(`{
					"type": "object",
					"properties": {
						"url": {"type": "string", "description": "Exact URL of the page to fetch."}
					},
					"required": ["url"]
				}`),
			},
		},
	}
}

// queryWithTools lets the model drive retrieval through tool calls, looping
// until it produces an answer or the round cap forces one.
func (s *Service) queryWithTools(ctx context.Context, question string) (*Answer, error) {
	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: s.opts.SystemPrompt},
		{Role: llm.RoleUser, Content: question},
	}

	var sources []Source
	for round := 0; round < s.opts.MaxToolRounds; round++ {
		resp, err := s.chat.Chat(ctx, llm.ChatRequest{
			Model:       s.opts.Model,
			Messages:    messages,
			Temperature: s.opts.Temperature,
			MaxTokens:   s.opts.MaxTokens,
			Tools:       toolDefs(),
		})
		if err != nil {
			return nil, errOf(KindChat, err)
		}

		reply := resp.Reply()
		if len(reply.ToolCalls) == 0 {
			if reply.Content == "" {
				return nil, errOf(KindChat, errors.New("model returned no content"))
			}
			return &Answer{Text: reply.Content, Sources: sources, Model: resp.Model}, nil
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			s.logger.Debug("tool call", "round", round, "tool", call.Function.Name)
			output, used, err := s.runTool(ctx, call)
			if err != nil {
				return nil, errOf(KindTool, err)
			}
			sources = append(sources, used...)
			messages = append(messages, llm.Message{
				Role:       llm.RoleTool,
				Content:    output,
				Name:       call.Function.Name,
				ToolCallID: call.ID,
			})
		}
	}

	// Round cap hit: one last call without tools so the model must answer
	// from what it has gathered.
	resp, err := s.chat.Chat(ctx, llm.ChatRequest{
		Model:       s.opts.Model,
		Messages:    messages,
		Temperature: s.opts.Temperature,
		MaxTokens:   s.opts.MaxTokens,
	})
	if err != nil {
		return nil, errOf(KindChat, err)
	}
	reply := resp.Reply()
	if reply.Content == "" {
		return nil, errOf(KindChat, errors.New("model returned no content after tool rounds"))
	}
	return &Answer{Text: reply.Content, Sources: sources, Model: resp.Model}, nil
}

// runTool dispatches one tool call and returns its text output plus any
// sources the call surfaced.
func (s *Service) runTool(ctx context.Context, call llm.ToolCall) (string, []Source, error) {
	switch call.Function.Name {
	case toolRetrieve:
		var args struct {
			UserQuery string `json:"user_query"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return "", nil, fmt.Errorf("%s: bad arguments: %w", toolRetrieve, err)
		}
		chunks, err := s.Retrieve(ctx, args.UserQuery)
		if err != nil {
			return "", nil, err
		}
		if len(chunks) == 0 {
			return "No relevant documentation found.", nil, nil
		}
		return formatContext(chunks), sourcesOf(chunks), nil

	case toolListPages:
		urls, err := s.store.ListSourceURLs(ctx)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", toolListPages, err)
		}
		return strings.Join(urls, "\n"), nil, nil

	case toolPage:
		var args struct {
			URL string `json:"url"`
		}
		if err := json.Unmarshal([]byte(call.Function.Arguments), &args); err != nil {
			return "", nil, fmt.Errorf("%s: bad arguments: %w", toolPage, err)
		}
		records, err := s.store.PageChunks(ctx, args.URL)
		if err != nil {
			return "", nil, fmt.Errorf("%s: %w", toolPage, err)
		}
		if len(records) == 0 {
			return fmt.Sprintf("No content found for %s.", args.URL), nil, nil
		}
		parts := make([]string, 0, len(records)+1)
		parts = append(parts, "# "+records[0].Title)
		for _, r := range records {
			parts = append(parts, r.Content)
		}
		return strings.Join(parts, "\n\n"), nil, nil

	default:
		return "", nil, fmt.Errorf("unknown tool %q", call.Function.Name)
	}
}
