package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/provider"
)

// ModelsHandler serves the model and provider catalog.
type ModelsHandler struct {
	registry *provider.Registry
}

// NewModelsHandler creates a catalog handler.
func NewModelsHandler(registry *provider.Registry) *ModelsHandler {
	return &ModelsHandler{registry: registry}
}

// List returns every routable model in the OpenAI list shape.
func (h *ModelsHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"object": "list",
		"data":   h.registry.ListModels(),
	})
}

// ListProviders returns the registered providers and their model sets.
func (h *ModelsHandler) ListProviders(w http.ResponseWriter, r *http.Request) {
	providers := h.registry.ListProviders()
	data := make(map[string]interface{}, len(providers))
	for _, p := range providers {
		data[p.Name] = map[string]interface{}{
			"name":        p.Name,
			"base_url":    p.Endpoint,
			"models":      p.Models,
			"model_count": len(p.Models),
		}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": data})
}

// Get returns routing information for one model.
func (h *ModelsHandler) Get(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "modelID")

	entry, err := h.registry.Resolve(modelID, "")
	if err != nil {
		writeError(w, http.StatusNotFound, model.KindNotFound,
			"Model "+modelID+" not found", map[string]interface{}{
				"model": modelID,
			})
		return
	}

	writeJSON(w, http.StatusOK, provider.ModelInfo{
		ID:       modelID,
		Object:   "model",
		OwnedBy:  entry.Name,
		Provider: entry.Name,
	})
}
