package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Client speaks to one upstream model provider. Complete blocks for the full
// response; Stream returns a channel of events that is closed when the
// upstream finishes or fails. Both honor ctx cancellation.
type Client interface {
	Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error)
}

// UpstreamError reports a non-2xx response from a provider.
type UpstreamError struct {
	Provider string
	Status   int
	Body     string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("provider %s returned %d: %s", e.Provider, e.Status, e.Body)
}

const (
	defaultRequestTimeout = 120 * time.Second
	maxErrorBodyBytes     = 4 << 10
)

// HTTPClient talks to any OpenAI-compatible chat completions endpoint. The
// gateway's supported providers (OpenAI, Groq, Gemini's compatibility
// surface) all expose this wire shape.
type HTTPClient struct {
	name    string
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewHTTPClient creates a client for one provider. baseURL is the API root
// without the /chat/completions suffix.
func NewHTTPClient(name, baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultRequestTimeout},
	}
}

// Name returns the provider name this client was built for.
func (c *HTTPClient) Name() string {
	return c.name
}

func (c *HTTPClient) newRequest(ctx context.Context, req *ChatRequest, stream bool) (*http.Request, error) {
	// The provider hint is gateway routing state, never forwarded.
	outbound := *req
	outbound.Provider = ""
	outbound.Stream = stream

	body, err := json.Marshal(&outbound)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	}
	return httpReq, nil
}

func (c *HTTPClient) upstreamError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	return &UpstreamError{Provider: c.name, Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
}

// Complete performs a buffered completion.
func (c *HTTPClient) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	httpReq, err := c.newRequest(ctx, req, false)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.upstreamError(resp)
	}

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return &out, nil
}

// Stream performs a streaming completion, decoding the upstream's SSE frames
// into chunks. The returned channel is closed after the [DONE] sentinel, a
// decode failure, or ctx cancellation. A connection-level failure before any
// bytes arrive is returned directly instead.
func (c *HTTPClient) Stream(ctx context.Context, req *ChatRequest) (<-chan StreamEvent, error) {
	httpReq, err := c.newRequest(ctx, req, true)
	if err != nil {
		return nil, err
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", c.name, err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, c.upstreamError(resp)
	}

	events := make(chan StreamEvent)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || !strings.HasPrefix(line, "data:") {
				continue
			}
			payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			if payload == "[DONE]" {
				return
			}

			var chunk ChatCompletionChunk
			if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
				c.emit(ctx, events, StreamEvent{Err: fmt.Errorf("decode %s chunk: %w", c.name, err)})
				return
			}
			if !c.emit(ctx, events, StreamEvent{Chunk: &chunk}) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			c.emit(ctx, events, StreamEvent{Err: fmt.Errorf("read %s stream: %w", c.name, err)})
		}
	}()
	return events, nil
}

// emit sends an event unless the consumer has gone away.
func (c *HTTPClient) emit(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}
