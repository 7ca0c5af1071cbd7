package gateway

import (
	"context"
	"errors"
	"testing"

	"github.com/modelrelay/relay/internal/provider"
	"github.com/modelrelay/relay/internal/service"
	"github.com/modelrelay/relay/internal/store"
)

type fakeClient struct {
	completeResp *provider.ChatResponse
	completeErr  error
	streamEvents []provider.StreamEvent
	streamErr    error
	calls        int
}

func (f *fakeClient) Complete(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	f.calls++
	return f.completeResp, f.completeErr
}

func (f *fakeClient) Stream(ctx context.Context, req *provider.ChatRequest) (<-chan provider.StreamEvent, error) {
	f.calls++
	if f.streamErr != nil {
		return nil, f.streamErr
	}
	ch := make(chan provider.StreamEvent, len(f.streamEvents))
	for _, ev := range f.streamEvents {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

func newTestGateway(t *testing.T, client provider.Client) (*Gateway, *store.Store) {
	t.Helper()
	st, err := store.NewSQLite("")
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	registry := provider.NewRegistry()
	registry.Register("openai", client, []string{"gpt-4"}, "https://api.openai.com/v1")

	return New(registry, service.NewMeter(st, nil), nil), st
}

func TestCompleteMetersAndStampsProvider(t *testing.T) {
	client := &fakeClient{
		completeResp: &provider.ChatResponse{
			ID:      "chatcmpl-1",
			Model:   "gpt-4",
			Choices: []provider.Choice{{Message: provider.Message{Role: "assistant", Content: "hi"}}},
			Usage:   provider.Usage{PromptTokens: 10, CompletionTokens: 20, TotalTokens: 30},
		},
	}
	gw, st := newTestGateway(t, client)
	ctx := context.Background()

	resp, err := gw.Complete(ctx, "ak_1", &provider.ChatRequest{Model: "gpt-4"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "openai" {
		t.Errorf("provider stamp = %q, want openai", resp.Provider)
	}

	summary, err := st.SummarizeUsage(ctx, "ak_1")
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if summary.TotalRequests != 1 || summary.TotalTokens != 30 {
		t.Errorf("summary = %+v, want 1 request / 30 tokens", summary)
	}
}

func TestCompleteUnknownModelSkipsUpstream(t *testing.T) {
	client := &fakeClient{}
	gw, _ := newTestGateway(t, client)

	_, err := gw.Complete(context.Background(), "ak_1", &provider.ChatRequest{Model: "no-such-model"})
	var unknown *provider.UnknownModelError
	if !errors.As(err, &unknown) {
		t.Fatalf("got %v, want UnknownModelError", err)
	}
	if client.calls != 0 {
		t.Errorf("upstream was invoked %d times for an unroutable request", client.calls)
	}
}

func TestCompleteUpstreamFailure(t *testing.T) {
	client := &fakeClient{completeErr: errors.New("connection refused")}
	gw, st := newTestGateway(t, client)
	ctx := context.Background()

	_, err := gw.Complete(ctx, "ak_1", &provider.ChatRequest{Model: "gpt-4"})
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("got %v, want ErrUpstream", err)
	}

	summary, err := st.SummarizeUsage(ctx, "ak_1")
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if summary.TotalRequests != 0 {
		t.Errorf("failed completion was metered: %+v", summary)
	}
}

func TestCompleteStreamForwardsInOrderAndMetersFinalUsage(t *testing.T) {
	chunk := func(content string, usage *provider.Usage) provider.StreamEvent {
		return provider.StreamEvent{Chunk: &provider.ChatCompletionChunk{
			ID:      "c1",
			Choices: []provider.ChunkChoice{{Delta: provider.Delta{Content: content}}},
			Usage:   usage,
		}}
	}
	client := &fakeClient{streamEvents: []provider.StreamEvent{
		chunk("a", nil),
		chunk("b", nil),
		chunk("", &provider.Usage{PromptTokens: 5, CompletionTokens: 15, TotalTokens: 20}),
	}}
	gw, st := newTestGateway(t, client)
	ctx := context.Background()

	events, err := gw.CompleteStream(ctx, "ak_1", &provider.ChatRequest{Model: "gpt-4", Stream: true})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	var contents []string
	for ev := range events {
		if ev.Err != nil {
			t.Fatalf("unexpected error event: %v", ev.Err)
		}
		if ev.Chunk.Provider != "openai" {
			t.Errorf("chunk provider = %q, want openai", ev.Chunk.Provider)
		}
		for _, ch := range ev.Chunk.Choices {
			contents = append(contents, ch.Delta.Content)
		}
	}
	if len(contents) != 3 || contents[0] != "a" || contents[1] != "b" {
		t.Errorf("chunk order broken: %v", contents)
	}

	summary, err := st.SummarizeUsage(ctx, "ak_1")
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if summary.TotalRequests != 1 || summary.TotalTokens != 20 {
		t.Errorf("summary = %+v, want 1 request / 20 tokens", summary)
	}
}

func TestCompleteStreamWithoutUsageIsNotMetered(t *testing.T) {
	client := &fakeClient{streamEvents: []provider.StreamEvent{
		{Chunk: &provider.ChatCompletionChunk{ID: "c1"}},
	}}
	gw, st := newTestGateway(t, client)
	ctx := context.Background()

	events, err := gw.CompleteStream(ctx, "ak_1", &provider.ChatRequest{Model: "gpt-4", Stream: true})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}
	for range events {
	}

	summary, err := st.SummarizeUsage(ctx, "ak_1")
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if summary.TotalRequests != 0 {
		t.Errorf("usage-less stream was metered: %+v", summary)
	}
}

func TestCompleteStreamMidFlightFailure(t *testing.T) {
	client := &fakeClient{streamEvents: []provider.StreamEvent{
		{Chunk: &provider.ChatCompletionChunk{ID: "c1"}},
		{Err: errors.New("connection reset")},
	}}
	gw, st := newTestGateway(t, client)
	ctx := context.Background()

	events, err := gw.CompleteStream(ctx, "ak_1", &provider.ChatRequest{Model: "gpt-4", Stream: true})
	if err != nil {
		t.Fatalf("CompleteStream: %v", err)
	}

	var last provider.StreamEvent
	count := 0
	for ev := range events {
		last = ev
		count++
	}
	if count != 2 {
		t.Fatalf("got %d events, want 2", count)
	}
	if !errors.Is(last.Err, ErrUpstream) {
		t.Errorf("final event error = %v, want ErrUpstream", last.Err)
	}

	summary, err := st.SummarizeUsage(ctx, "ak_1")
	if err != nil {
		t.Fatalf("SummarizeUsage: %v", err)
	}
	if summary.TotalRequests != 0 {
		t.Errorf("failed stream was metered: %+v", summary)
	}
}

func TestCompleteStreamOpenFailure(t *testing.T) {
	client := &fakeClient{streamErr: errors.New("dial timeout")}
	gw, _ := newTestGateway(t, client)

	_, err := gw.CompleteStream(context.Background(), "ak_1", &provider.ChatRequest{Model: "gpt-4", Stream: true})
	if !errors.Is(err, ErrUpstream) {
		t.Errorf("got %v, want ErrUpstream", err)
	}
}
