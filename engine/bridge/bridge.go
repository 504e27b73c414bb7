// Package bridge dispatches design queries to the sibling agent services
// (the RPGJS gameplay agent and the map-schema agent) and composes their
// answers into collaborative design output.
package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/mapwright/tiledocs/pkg/fn"
)

// Agent identifies a sibling service.
type Agent string

const (
	AgentRPGJS  Agent = "rpgjs"
	AgentSchema Agent = "schema"
)

const (
	// DefaultTimeout bounds a single agent request.
	DefaultTimeout = 30 * time.Second
	// maxAttempts is how many times a timed-out request is tried in total.
	maxAttempts = 3
	// callerID identifies this service to the agents.
	callerID = "tiled_agent"
)

// Request is the envelope sent to an agent service.
type Request struct {
	Query     string `json:"query"`
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
	Context   string `json:"context,omitempty"`
}

// Response is an agent's reply. On transport failure the bridge returns an
// error instead of a Response; Error is only set when the agent itself
// reports one.
type Response struct {
	Response string `json:"response"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Endpoint is one agent service the bridge can reach.
type Endpoint struct {
	URL    string
	APIKey string
}

// Client talks to the sibling agents.
type Client struct {
	endpoints map[Agent]Endpoint
	http      *http.Client
	retry     fn.RetryOpts
	logger    *slog.Logger
}

// New creates a Client for the given endpoints.
func New(endpoints map[Agent]Endpoint, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoints: endpoints,
		http:      &http.Client{Timeout: DefaultTimeout},
		retry: fn.RetryOpts{
			MaxAttempts: maxAttempts,
			InitialWait: 500 * time.Millisecond,
			MaxWait:     5 * time.Second,
			Jitter:      true,
			RetryIf:     isTimeout,
		},
		logger: logger,
	}
}

// isTimeout reports whether the error is a timeout. Only timeouts earn a
// retry; any other failure is surfaced immediately.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Dispatch sends a query to the named agent. Timed-out requests are retried
// with exponential backoff up to the attempt cap; every other failure
// returns at once.
func (c *Client) Dispatch(ctx context.Context, agent Agent, query, sessionID, contextText string) (*Response, error) {
	ep, ok := c.endpoints[agent]
	if !ok || ep.URL == "" {
		return nil, fmt.Errorf("bridge: agent %q not configured", agent)
	}
	if sessionID == "" {
		sessionID = fmt.Sprint(time.Now().Unix())
	}

	req := Request{Query: query, UserID: callerID, SessionID: sessionID, Context: contextText}

	result := fn.Retry(ctx, c.retry, func(ctx context.Context) fn.Result[*Response] {
		resp, err := c.send(ctx, ep, req)
		if err != nil {
			c.logger.Warn("agent request failed", "agent", agent, "err", err)
			return fn.Err[*Response](err)
		}
		return fn.Ok(resp)
	})
	resp, err := result.Unwrap()
	if err != nil {
		return nil, fmt.Errorf("bridge: dispatch to %s: %w", agent, err)
	}
	return resp, nil
}

func (c *Client) send(ctx context.Context, ep Endpoint, req Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(ep.URL, "/") + "/api/ask"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if ep.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)
	}

	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(httpResp.Body, 4096))
		var resp Response
		if json.Unmarshal(data, &resp) == nil && resp.Error != "" {
			return nil, fmt.Errorf("status %d: %s", httpResp.StatusCode, resp.Error)
		}
		return nil, fmt.Errorf("status %d", httpResp.StatusCode)
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &resp, nil
}
