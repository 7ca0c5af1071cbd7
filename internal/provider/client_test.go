package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCompleteForwardsAndDecodes(t *testing.T) {
	var gotAuth string
	var gotBody ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(ChatResponse{
			ID:      "chatcmpl-1",
			Object:  "chat.completion",
			Model:   "gpt-4",
			Choices: []Choice{{Message: Message{Role: "assistant", Content: "hi"}, FinishReason: "stop"}},
			Usage:   Usage{PromptTokens: 3, CompletionTokens: 1, TotalTokens: 4},
		})
	}))
	defer srv.Close()

	c := NewHTTPClient("openai", srv.URL, "sk-test")
	resp, err := c.Complete(context.Background(), &ChatRequest{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "hello"}},
		Provider: "openai",
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth header = %q", gotAuth)
	}
	if gotBody.Provider != "" {
		t.Errorf("provider hint leaked upstream: %q", gotBody.Provider)
	}
	if gotBody.Stream {
		t.Error("stream flag set on buffered request")
	}
	if resp.Usage.TotalTokens != 4 {
		t.Errorf("usage = %+v", resp.Usage)
	}
	if resp.Choices[0].Message.Content != "hi" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}
}

func TestCompleteUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewHTTPClient("openai", srv.URL, "sk-test")
	_, err := c.Complete(context.Background(), &ChatRequest{Model: "gpt-4"})

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("got %v, want UpstreamError", err)
	}
	if upstream.Status != http.StatusTooManyRequests || upstream.Provider != "openai" {
		t.Errorf("unexpected detail: %+v", upstream)
	}
	if !strings.Contains(upstream.Body, "rate limited") {
		t.Errorf("body not captured: %q", upstream.Body)
	}
}

func sseServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if !req.Stream {
			t.Error("stream flag not set on streaming request")
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			w.Write([]byte(frame))
			flusher.Flush()
		}
	}))
}

func chunkFrame(t *testing.T, chunk ChatCompletionChunk) string {
	t.Helper()
	b, err := json.Marshal(chunk)
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	return "data: " + string(b) + "\n\n"
}

func TestStreamDeliversChunksInOrder(t *testing.T) {
	frames := []string{
		chunkFrame(t, ChatCompletionChunk{ID: "c1", Choices: []ChunkChoice{{Delta: Delta{Role: "assistant", Content: "Hel"}}}}),
		chunkFrame(t, ChatCompletionChunk{ID: "c1", Choices: []ChunkChoice{{Delta: Delta{Content: "lo"}}}}),
		chunkFrame(t, ChatCompletionChunk{ID: "c1", Choices: []ChunkChoice{{FinishReason: "stop"}}, Usage: &Usage{TotalTokens: 7}}),
		"data: [DONE]\n\n",
	}
	srv := sseServer(t, frames)
	defer srv.Close()

	c := NewHTTPClient("openai", srv.URL, "sk-test")
	events, err := c.Stream(context.Background(), &ChatRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var content strings.Builder
	var usage *Usage
	count := 0
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected stream error: %v", ev.Err)
		}
		count++
		for _, ch := range ev.Chunk.Choices {
			content.WriteString(ch.Delta.Content)
		}
		if ev.Chunk.Usage != nil {
			usage = ev.Chunk.Usage
		}
	}

	if count != 3 {
		t.Errorf("got %d chunks, want 3", count)
	}
	if content.String() != "Hello" {
		t.Errorf("assembled content = %q, want Hello", content.String())
	}
	if usage == nil || usage.TotalTokens != 7 {
		t.Errorf("usage from final chunk = %+v", usage)
	}
}

func TestStreamMalformedChunk(t *testing.T) {
	frames := []string{
		chunkFrame(t, ChatCompletionChunk{ID: "c1", Choices: []ChunkChoice{{Delta: Delta{Content: "x"}}}}),
		"data: {not json\n\n",
	}
	srv := sseServer(t, frames)
	defer srv.Close()

	c := NewHTTPClient("openai", srv.URL, "sk-test")
	events, err := c.Stream(context.Background(), &ChatRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	var last StreamEvent
	count := 0
	for ev := range events {
		last = ev
		count++
	}
	if count != 2 {
		t.Fatalf("got %d events, want 2", count)
	}
	if last.Err == nil {
		t.Error("final event should carry the decode error")
	}
}

func TestStreamUpstreamRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewHTTPClient("groq", srv.URL, "bad")
	_, err := c.Stream(context.Background(), &ChatRequest{Model: "llama-3.1-8b-instant"})

	var upstream *UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("got %v, want UpstreamError", err)
	}
	if upstream.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", upstream.Status)
	}
}

func TestStreamIgnoresCommentsAndBlankLines(t *testing.T) {
	frames := []string{
		": keepalive\n\n",
		"\n",
		chunkFrame(t, ChatCompletionChunk{ID: "c1", Choices: []ChunkChoice{{Delta: Delta{Content: "ok"}}}}),
		"data: [DONE]\n\n",
	}
	srv := sseServer(t, frames)
	defer srv.Close()

	c := NewHTTPClient("openai", srv.URL, "sk-test")
	events, err := c.Stream(context.Background(), &ChatRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}

	count := 0
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected error: %v", ev.Err)
		}
		count++
	}
	if count != 1 {
		t.Errorf("got %d events, want 1", count)
	}
}
