package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/modelrelay/relay/internal/provider"
)

// mcpAPIKeyID attributes usage recorded by MCP tool calls. MCP runs as a
// local operator surface, so its traffic is metered under a fixed key ID
// instead of an issued key.
const mcpAPIKeyID = "mcp-local"

// registerTools registers all Relay MCP tools on the given server.
func (s *MCPServer) registerTools(srv *server.MCPServer) {

	// ----- Discovery tools -----

	srv.AddTool(
		mcp.NewTool("relay_list_models",
			mcp.WithDescription(
				"List all models routable through the Relay gateway. Returns each "+
					"model's ID and the provider it is served by. Use this first to "+
					"discover available models before running a completion.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListModels,
	)

	srv.AddTool(
		mcp.NewTool("relay_list_providers",
			mcp.WithDescription(
				"List all upstream providers configured in Relay, including each "+
					"provider's endpoint and the models it serves.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
		),
		s.handleListProviders,
	)

	// ----- Completion tool -----

	srv.AddTool(
		mcp.NewTool("relay_chat_completion",
			mcp.WithDescription(
				"Run a buffered chat completion through the Relay gateway. The model "+
					"determines which upstream provider handles the request; pass the "+
					"optional provider argument to pin a specific one when several "+
					"serve the same model. Tokens consumed are metered.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("model",
				mcp.Required(),
				mcp.Description("Model ID to route to (use relay_list_models to discover)"),
			),
			mcp.WithString("prompt",
				mcp.Required(),
				mcp.Description("User message content"),
			),
			mcp.WithString("system",
				mcp.Description("Optional system message prepended to the conversation"),
			),
			mcp.WithString("provider",
				mcp.Description("Optional provider name to pin routing to"),
			),
			mcp.WithNumber("max_tokens",
				mcp.Description("Maximum completion tokens"),
			),
			mcp.WithNumber("temperature",
				mcp.Description("Sampling temperature (0-2)"),
			),
		),
		s.handleChatCompletion,
	)

	// ----- Key and usage tools -----

	srv.AddTool(
		mcp.NewTool("relay_create_api_key",
			mcp.WithDescription(
				"Create a new Relay API key. The raw secret is returned once in the "+
					"result and cannot be recovered afterwards.",
			),
			mcp.WithToolAnnotation(mutatingAnnotation()),
			mcp.WithString("name",
				mcp.Required(),
				mcp.Description("Human-readable name for the key"),
			),
			mcp.WithString("description",
				mcp.Description("Optional description"),
			),
		),
		s.handleCreateAPIKey,
	)

	srv.AddTool(
		mcp.NewTool("relay_usage_summary",
			mcp.WithDescription(
				"Get aggregate usage for an API key: total requests, tokens, cost, "+
					"and a per-provider breakdown.",
			),
			mcp.WithToolAnnotation(readOnlyAnnotation()),
			mcp.WithString("api_key_id",
				mcp.Required(),
				mcp.Description("ID of the API key to summarize usage for"),
			),
		),
		s.handleUsageSummary,
	)
}

// =========================================================================
// Tool handlers
// =========================================================================

// handleListModels returns all routable models.
func (s *MCPServer) handleListModels(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(s.registry.ListModels())
}

// handleListProviders returns all configured providers.
func (s *MCPServer) handleListProviders(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {
	return successJSON(s.registry.ListProviders())
}

// handleChatCompletion runs a buffered completion through the gateway.
func (s *MCPServer) handleChatCompletion(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	modelID, err := requireString(request, "model")
	if err != nil {
		return toolError("%v. Use relay_list_models to discover models.", err)
	}
	prompt, err := requireString(request, "prompt")
	if err != nil {
		return toolError("%v", err)
	}

	req := &provider.ChatRequest{
		Model:    modelID,
		Provider: optionalString(request, "provider"),
	}
	if system := optionalString(request, "system"); system != "" {
		req.Messages = append(req.Messages, provider.Message{Role: "system", Content: system})
	}
	req.Messages = append(req.Messages, provider.Message{Role: "user", Content: prompt})

	if maxTokens := optionalInt(request, "max_tokens", 0); maxTokens > 0 {
		req.MaxTokens = &maxTokens
	}
	if temp, ok := optionalFloat(request, "temperature"); ok {
		req.Temperature = &temp
	}

	resp, err := s.gateway.Complete(ctx, mcpAPIKeyID, req)
	if err != nil {
		return toolError("Completion failed: %v", err)
	}

	return successJSON(resp)
}

// handleCreateAPIKey issues a new API key.
func (s *MCPServer) handleCreateAPIKey(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	name, err := requireString(request, "name")
	if err != nil {
		return toolError("%v", err)
	}
	description := optionalString(request, "description")

	raw, key, err := s.keys.Create(ctx, name, description)
	if err != nil {
		return toolError("Failed to create API key: %v", err)
	}

	return successJSON(map[string]interface{}{
		"id":         key.ID,
		"name":       key.Name,
		"key":        raw,
		"created_at": key.CreatedAt,
		"note":       "Store this key now; the raw secret is not shown again.",
	})
}

// handleUsageSummary returns aggregate usage for one key.
func (s *MCPServer) handleUsageSummary(
	ctx context.Context,
	request mcp.CallToolRequest,
) (*mcp.CallToolResult, error) {

	apiKeyID, err := requireString(request, "api_key_id")
	if err != nil {
		return toolError("%v", err)
	}

	summary, err := s.meter.Summary(ctx, apiKeyID)
	if err != nil {
		return toolError("Failed to summarize usage for %q: %v", apiKeyID, err)
	}

	return successJSON(summary)
}
