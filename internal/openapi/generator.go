// Package openapi generates the OpenAPI 3.1 document describing the relay's
// HTTP surface. The static route set is declared here; the model catalog is
// filled in from the live provider registry at serve time.
package openapi

import (
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/modelrelay/relay/internal/provider"
)

// GenerateSpec builds the OpenAPI document for the relay, embedding the
// currently routable models into the chat completion schema.
func GenerateSpec(registry *provider.Registry) *openapi3.T {
	doc := &openapi3.T{
		OpenAPI: "3.1.0",
		Info: &openapi3.Info{
			Title:       "Relay API",
			Description: "OpenAI-compatible gateway with API key issuance, bearer token exchange, provider routing, and usage metering.",
			Version:     "1.0.0",
		},
	}

	components := openapi3.NewComponents()
	components.Schemas = openapi3.Schemas{}
	components.SecuritySchemes = openapi3.SecuritySchemes{}
	doc.Components = &components

	doc.Components.SecuritySchemes["apiKey"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type: "apiKey",
			In:   "header",
			Name: "X-API-Key",
		},
	}
	doc.Components.SecuritySchemes["bearerAuth"] = &openapi3.SecuritySchemeRef{
		Value: &openapi3.SecurityScheme{
			Type:         "http",
			Scheme:       "bearer",
			BearerFormat: "JWT",
		},
	}
	doc.Security = openapi3.SecurityRequirements{
		{"apiKey": {}},
		{"bearerAuth": {}},
	}

	doc.Components.Schemas["ErrorResponse"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type: &openapi3.Types{"object"},
			Properties: openapi3.Schemas{
				"error": &openapi3.SchemaRef{
					Value: &openapi3.Schema{
						Type: &openapi3.Types{"object"},
						Properties: openapi3.Schemas{
							"code":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}, Format: "int32"}},
							"kind":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"message": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
							"context": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"object"}}},
						},
					},
				},
			},
		},
	}

	doc.Components.Schemas["ChatMessage"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"role", "content"},
			Properties: openapi3.Schemas{
				"role":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
				"content": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	modelIDs := registry.ListModels()
	modelEnum := make([]interface{}, 0, len(modelIDs))
	for _, m := range modelIDs {
		modelEnum = append(modelEnum, m.ID)
	}
	doc.Components.Schemas["ChatCompletionRequest"] = &openapi3.SchemaRef{
		Value: &openapi3.Schema{
			Type:     &openapi3.Types{"object"},
			Required: []string{"model", "messages"},
			Properties: openapi3.Schemas{
				"model": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}, Enum: modelEnum}},
				"messages": &openapi3.SchemaRef{Value: &openapi3.Schema{
					Type:  &openapi3.Types{"array"},
					Items: &openapi3.SchemaRef{Ref: "#/components/schemas/ChatMessage"},
				}},
				"max_tokens":  &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"integer"}}},
				"temperature": &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}},
				"top_p":       &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"number"}}},
				"stream":      &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"boolean"}}},
				"provider":    &openapi3.SchemaRef{Value: &openapi3.Schema{Type: &openapi3.Types{"string"}}},
			},
		},
	}

	doc.Paths = openapi3.NewPaths()
	addPath(doc, "/v1/api-keys", http.MethodPost, "Create a new API key. The raw secret is returned once.", false)
	addPath(doc, "/v1/api-keys", http.MethodGet, "List the caller's API key.", true)
	addPath(doc, "/v1/api-keys/current", http.MethodGet, "Describe the key behind the presented credential.", true)
	addPath(doc, "/v1/api-keys/{keyID}", http.MethodGet, "Get the caller's key by ID.", true)
	addPath(doc, "/v1/api-keys/{keyID}", http.MethodDelete, "Revoke the caller's key.", true)
	addPath(doc, "/auth/token", http.MethodPost, "Exchange an API key for a bearer token.", false)
	addPath(doc, "/auth/refresh", http.MethodPost, "Refresh a bearer token.", false)
	addPath(doc, "/auth/verify", http.MethodPost, "Verify a bearer token.", false)
	addPath(doc, "/auth/revoke", http.MethodDelete, "Acknowledge a token revocation request.", false)
	addPath(doc, "/v1/chat/completions", http.MethodPost, "Create a chat completion, buffered or streamed.", true)
	addPath(doc, "/v1/models", http.MethodGet, "List routable models.", true)
	addPath(doc, "/v1/models/providers", http.MethodGet, "List providers and their model sets.", true)
	addPath(doc, "/v1/models/{modelID}", http.MethodGet, "Describe one model's routing.", true)
	addPath(doc, "/v1/usage", http.MethodGet, "Aggregate usage with provider breakdown.", true)
	addPath(doc, "/v1/usage/summary", http.MethodGet, "Lightweight usage counters.", true)
	addPath(doc, "/v1/usage/records", http.MethodGet, "Recent usage records, newest first.", true)
	addPath(doc, "/healthz", http.MethodGet, "Liveness probe.", false)
	addPath(doc, "/readyz", http.MethodGet, "Readiness probe.", false)

	return doc
}

func addPath(doc *openapi3.T, path, method, summary string, authenticated bool) {
	op := openapi3.NewOperation()
	op.Summary = summary
	op.Responses = openapi3.NewResponses()
	if !authenticated {
		op.Security = &openapi3.SecurityRequirements{}
	}

	item := doc.Paths.Value(path)
	if item == nil {
		item = &openapi3.PathItem{}
		doc.Paths.Set(path, item)
	}
	item.SetOperation(method, op)
}
