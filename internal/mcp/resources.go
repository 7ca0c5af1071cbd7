package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// registerResources adds MCP resource definitions to the server. Resources
// provide read-only data that LLM clients can load into their context.
func (s *MCPServer) registerResources(srv *server.MCPServer) {

	// -------------------------------------------------------------------
	// relay://models — catalog of all routable models
	// -------------------------------------------------------------------
	srv.AddResource(
		mcp.NewResource(
			"relay://models",
			"Routable Models",
			mcp.WithResourceDescription(
				"Catalog of all models routable through the Relay gateway, "+
					"including the provider each one is served by.",
			),
			mcp.WithMIMEType("application/json"),
		),
		s.handleModelsResource,
	)

	// -------------------------------------------------------------------
	// relay://provider/{name} — one provider's routing detail (template)
	// -------------------------------------------------------------------
	srv.AddResourceTemplate(
		mcp.NewResourceTemplate(
			"relay://provider/{name}",
			"Provider Detail",
			mcp.WithTemplateDescription(
				"Routing detail for one upstream provider: its endpoint and "+
					"the models it serves.",
			),
			mcp.WithTemplateMIMEType("application/json"),
		),
		s.handleProviderResource,
	)
}

// handleModelsResource returns a JSON list of all routable models.
func (s *MCPServer) handleModelsResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	b, err := json.MarshalIndent(s.registry.ListModels(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal models: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "relay://models",
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}

// handleProviderResource returns routing detail for one provider.
func (s *MCPServer) handleProviderResource(
	ctx context.Context,
	request mcp.ReadResourceRequest,
) ([]mcp.ResourceContents, error) {

	// Extract provider name from URI: "relay://provider/{name}"
	uri := request.Params.URI
	name := strings.TrimPrefix(uri, "relay://provider/")
	if name == "" || name == uri {
		return nil, fmt.Errorf("invalid provider URI %q: expected relay://provider/{name}", uri)
	}

	entry, err := s.registry.Get(name)
	if err != nil {
		return nil, fmt.Errorf("provider %q not found: %w", name, err)
	}

	detail := map[string]interface{}{
		"name":     entry.Name,
		"endpoint": entry.Endpoint,
		"models":   entry.Models,
	}

	b, err := json.MarshalIndent(detail, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal provider: %w", err)
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(b),
		},
	}, nil
}
