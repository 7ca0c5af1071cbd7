package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/modelrelay/relay/internal/gateway"
	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/provider"
	"github.com/modelrelay/relay/internal/server/middleware"
)

// ChatHandler serves /v1/chat/completions, buffered or streamed depending on
// the request's stream flag.
type ChatHandler struct {
	gateway *gateway.Gateway
}

// NewChatHandler creates a chat completion handler.
func NewChatHandler(gw *gateway.Gateway) *ChatHandler {
	return &ChatHandler{gateway: gw}
}

// Completions dispatches a chat completion. Routing failures are rejected
// before anything reaches an upstream, so they are always proper HTTP errors
// even for stream requests.
func (h *ChatHandler) Completions(w http.ResponseWriter, r *http.Request) {
	principal := middleware.GetPrincipal(r.Context())

	var req provider.ChatRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "Invalid JSON body")
		return
	}
	if req.Model == "" {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "model is required")
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, model.KindBadRequest, "messages must not be empty")
		return
	}

	if req.Stream {
		h.stream(w, r, principal.APIKeyID, &req)
		return
	}

	resp, err := h.gateway.Complete(r.Context(), principal.APIKeyID, &req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// stream forwards chunks as server-sent events. Once the first chunk is
// written the HTTP status is committed, so a later upstream failure is
// reported as an in-band error event followed by end of stream.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, apiKeyID string, req *provider.ChatRequest) {
	events, err := h.gateway.CompleteStream(r.Context(), apiKeyID, req)
	if err != nil {
		writeGatewayError(w, err)
		return
	}

	// ResponseController reaches the flusher through middleware wrappers.
	rc := http.NewResponseController(w)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	for ev := range events {
		if ev.Err != nil {
			payload, _ := json.Marshal(map[string]string{"error": ev.Err.Error()})
			fmt.Fprintf(w, "data: %s\n\n", payload)
			rc.Flush()
			return
		}
		payload, err := json.Marshal(ev.Chunk)
		if err != nil {
			continue
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		if err := rc.Flush(); err != nil {
			// Client went away; stop forwarding.
			return
		}
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	rc.Flush()
}

// writeGatewayError maps routing and upstream failures onto the envelope.
func writeGatewayError(w http.ResponseWriter, err error) {
	var unknownModel *provider.UnknownModelError
	var unknownProvider *provider.UnknownProviderError
	var notServed *provider.ModelNotServedError

	switch {
	case errors.As(err, &unknownModel):
		writeError(w, http.StatusBadRequest, model.KindBadRequest, err.Error(), map[string]interface{}{
			"model":            unknownModel.Model,
			"available_models": unknownModel.Available,
		})
	case errors.As(err, &unknownProvider):
		writeError(w, http.StatusBadRequest, model.KindBadRequest, err.Error(), map[string]interface{}{
			"provider":            unknownProvider.Provider,
			"available_providers": unknownProvider.Available,
		})
	case errors.As(err, &notServed):
		writeError(w, http.StatusBadRequest, model.KindBadRequest, err.Error(), map[string]interface{}{
			"provider":        notServed.Provider,
			"model":           notServed.Model,
			"provider_models": notServed.Models,
		})
	case errors.Is(err, gateway.ErrUpstream):
		writeError(w, http.StatusBadGateway, model.KindUpstreamFailure, "Upstream provider request failed")
	default:
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Chat completion failed")
	}
}
