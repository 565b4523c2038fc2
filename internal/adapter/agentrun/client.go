// Package agentrun is the HTTP client for the remote agent-run API. It
// streams the agent's server-sent events back as typed stream events.
package agentrun

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/atlas-delivery/atlas/internal/config"
	"github.com/atlas-delivery/atlas/internal/domain/stream"
)

const runPath = "/api/v2/agent:run"

// Message is one conversation turn sent to the agent.
type Message struct {
	Role    string
	Content string
}

// contentBlock is the wire shape the agent API requires: content must be an
// array of typed blocks, never a bare string.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type wireMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type runRequest struct {
	Messages []wireMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	ThreadID string        `json:"thread_id,omitempty"`
}

// Client calls the agent-run endpoint and decodes its SSE stream.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	log        *slog.Logger
}

// NewClient creates an agent-run client. The HTTP client carries no overall
// timeout; streams are bounded by the request context, with the connect
// timeout applied to response headers only.
func NewClient(cfg config.AgentRun, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		baseURL: cfg.URL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.ConnectTimeout,
			},
		},
		log: log,
	}
}

// Run posts the conversation to the agent and returns a channel of decoded
// events. The channel always ends with exactly one terminal event (done or
// error) and is then closed. Canceling ctx stops the read and releases the
// connection.
func (c *Client) Run(ctx context.Context, messages []Message, threadID string) (<-chan stream.Event, error) {
	wire := make([]wireMessage, len(messages))
	for i, m := range messages {
		wire[i] = wireMessage{
			Role:    m.Role,
			Content: []contentBlock{{Type: "text", Text: m.Content}},
		}
	}

	body, err := json.Marshal(runRequest{Messages: wire, Stream: true, ThreadID: threadID})
	if err != nil {
		return nil, fmt.Errorf("marshal run request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+runPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create run request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	events := make(chan stream.Event)
	dec := stream.NewDecoder(c.log)

	go func() {
		defer close(events)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.emit(ctx, events, dec.Fail(err))
			return
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			detail, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
			c.log.Error("agent run rejected", "status", resp.StatusCode, "body", string(detail))
			c.emit(ctx, events, []stream.Event{{
				Type:    stream.EventError,
				Content: fmt.Sprintf("Agent API error: %d", resp.StatusCode),
				Details: string(detail),
			}})
			return
		}

		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				if !c.emit(ctx, events, dec.Feed(buf[:n])) {
					return
				}
			}
			if err != nil {
				if err == io.EOF {
					c.emit(ctx, events, dec.Close())
				} else if ctx.Err() == nil {
					c.emit(ctx, events, dec.Fail(err))
				}
				return
			}
		}
	}()

	return events, nil
}

// emit forwards events unless the caller has gone away. Returns false once a
// terminal event has been sent or the context is done.
func (c *Client) emit(ctx context.Context, out chan<- stream.Event, events []stream.Event) bool {
	for _, ev := range events {
		select {
		case out <- ev:
			if ev.Terminal() {
				return false
			}
		case <-ctx.Done():
			return false
		}
	}
	return true
}
