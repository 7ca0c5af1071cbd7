// Package gateway routes chat completion requests to upstream providers and
// meters what they report. Routing failures never reach an upstream; upstream
// failures after streaming starts surface in-band so the response stays a
// valid event stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelrelay/relay/internal/provider"
	"github.com/modelrelay/relay/internal/service"
)

const completionsEndpoint = "/v1/chat/completions"

// ErrUpstream wraps any failure originating at a provider, distinguishing it
// from routing and validation errors for the error envelope.
var ErrUpstream = errors.New("upstream failure")

// Gateway is the completion pipeline: resolve, invoke, meter.
type Gateway struct {
	registry *provider.Registry
	meter    *service.Meter
	logger   *slog.Logger
}

// New creates a gateway.
func New(registry *provider.Registry, meter *service.Meter, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{registry: registry, meter: meter, logger: logger}
}

// Complete handles a buffered completion for the given key. The response is
// stamped with the provider that served it and metered from its usage block.
func (g *Gateway) Complete(ctx context.Context, apiKeyID string, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	entry, err := g.registry.Resolve(req.Model, req.Provider)
	if err != nil {
		return nil, err
	}

	resp, err := entry.Client.Complete(ctx, req)
	if err != nil {
		g.logger.Warn("upstream completion failed",
			"provider", entry.Name,
			"model", req.Model,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	resp.Provider = entry.Name
	g.meter.Record(ctx, service.MeterInput{
		APIKeyID:         apiKeyID,
		Provider:         entry.Name,
		Model:            req.Model,
		Endpoint:         completionsEndpoint,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	})
	return resp, nil
}

// CompleteStream handles a streaming completion. Chunks are forwarded in
// upstream order, each stamped with the serving provider. Usage is
// reconciled from the final chunk that carries it; a stream that ends
// without usage is not metered. A mid-stream upstream failure is forwarded
// as a terminal error event.
func (g *Gateway) CompleteStream(ctx context.Context, apiKeyID string, req *provider.ChatRequest) (<-chan provider.StreamEvent, error) {
	entry, err := g.registry.Resolve(req.Model, req.Provider)
	if err != nil {
		return nil, err
	}

	upstream, err := entry.Client.Stream(ctx, req)
	if err != nil {
		g.logger.Warn("upstream stream open failed",
			"provider", entry.Name,
			"model", req.Model,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}

	out := make(chan provider.StreamEvent)
	go func() {
		defer close(out)

		var usage *provider.Usage
		failed := false
		for ev := range upstream {
			if ev.Err != nil {
				g.logger.Warn("upstream stream failed mid-flight",
					"provider", entry.Name,
					"model", req.Model,
					"error", ev.Err,
				)
				failed = true
				ev.Err = fmt.Errorf("%w: %v", ErrUpstream, ev.Err)
			} else {
				ev.Chunk.Provider = entry.Name
				if ev.Chunk.Usage != nil {
					usage = ev.Chunk.Usage
				}
			}

			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
			if failed {
				return
			}
		}

		// Meter only a cleanly finished stream that reported usage.
		if usage != nil {
			g.meter.Record(ctx, service.MeterInput{
				APIKeyID:         apiKeyID,
				Provider:         entry.Name,
				Model:            req.Model,
				Endpoint:         completionsEndpoint,
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			})
		} else {
			g.logger.Debug("stream finished without usage, skipping meter",
				"provider", entry.Name,
				"model", req.Model,
			)
		}
	}()
	return out, nil
}
