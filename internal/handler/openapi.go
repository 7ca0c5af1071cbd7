package handler

import (
	"net/http"

	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/openapi"
	"github.com/modelrelay/relay/internal/provider"
)

// OpenAPIHandler serves the generated API description.
type OpenAPIHandler struct {
	registry *provider.Registry
}

// NewOpenAPIHandler creates an OpenAPI handler.
func NewOpenAPIHandler(registry *provider.Registry) *OpenAPIHandler {
	return &OpenAPIHandler{registry: registry}
}

// ServeSpec returns the OpenAPI document. The model enum reflects the
// registry at request time, so newly configured providers show up without a
// rebuild.
func (h *OpenAPIHandler) ServeSpec(w http.ResponseWriter, r *http.Request) {
	doc := openapi.GenerateSpec(h.registry)
	data, err := doc.MarshalJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, model.KindInternalError, "Failed to generate OpenAPI spec")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
