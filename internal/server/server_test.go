package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modelrelay/relay/internal/gateway"
	"github.com/modelrelay/relay/internal/model"
	"github.com/modelrelay/relay/internal/provider"
	"github.com/modelrelay/relay/internal/service"
	"github.com/modelrelay/relay/internal/store"
)

// ---------------------------------------------------------------------------
// Test helpers
// ---------------------------------------------------------------------------

const testJWTSecret = "test-secret-for-integration-tests"

// fakeUpstream is a scriptable provider client for integration tests.
type fakeUpstream struct {
	completeResp *provider.ChatResponse
	completeErr  error
	streamEvents []provider.StreamEvent
}

func (f *fakeUpstream) Complete(ctx context.Context, req *provider.ChatRequest) (*provider.ChatResponse, error) {
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	resp := *f.completeResp
	resp.Model = req.Model
	return &resp, nil
}

func (f *fakeUpstream) Stream(ctx context.Context, req *provider.ChatRequest) (<-chan provider.StreamEvent, error) {
	ch := make(chan provider.StreamEvent, len(f.streamEvents))
	for _, ev := range f.streamEvents {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// testEnv holds all the shared state for integration tests.
type testEnv struct {
	server   *Server
	store    *store.Store
	keys     *service.Keys
	tokens   *service.Tokens
	registry *provider.Registry
	upstream *fakeUpstream
}

// newTestEnv creates a fresh test environment with an in-memory store, one
// fake provider serving gpt-4, and a fully wired Server.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.NewSQLite("")
	if err != nil {
		t.Fatalf("store.NewSQLite: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	keys := service.NewKeys(st, nil, "", logger)
	tokens := service.NewTokens(st, testJWTSecret, "relay")
	meter := service.NewMeter(st, logger)

	upstream := &fakeUpstream{
		completeResp: &provider.ChatResponse{
			ID:      "chatcmpl-test",
			Object:  "chat.completion",
			Choices: []provider.Choice{{Message: provider.Message{Role: "assistant", Content: "hello"}, FinishReason: "stop"}},
			Usage:   provider.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
		},
	}
	registry := provider.NewRegistry()
	registry.Register("openai", upstream, []string{"gpt-4", "gpt-4o-mini"}, "https://api.openai.com/v1")

	gw := gateway.New(registry, meter, logger)

	cfg := DefaultConfig()
	cfg.RateLimit = 0 // keep tests deterministic
	srv := New(cfg, Deps{
		Store:    st,
		Keys:     keys,
		Tokens:   tokens,
		Meter:    meter,
		Registry: registry,
		Gateway:  gw,
	}, logger)

	return &testEnv{
		server:   srv,
		store:    st,
		keys:     keys,
		tokens:   tokens,
		registry: registry,
		upstream: upstream,
	}
}

// createKey issues an API key through the HTTP surface and returns the raw
// secret and its ID.
func (e *testEnv) createKey(t *testing.T, name string) (string, string) {
	t.Helper()
	rr := e.do(t, "POST", "/v1/api-keys", jsonBody(t, map[string]string{"name": name}), nil)
	assertStatus(t, rr, http.StatusCreated)

	var resp model.APIKeyCreated
	decodeJSON(t, rr, &resp)
	if resp.Key == "" {
		t.Fatal("createKey: got empty raw secret")
	}
	return resp.Key, resp.ID
}

// do executes an HTTP request against the test server and returns the recorder.
// headers is an optional map of header key-value pairs.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	e.server.ServeHTTP(rr, req)
	return rr
}

// doAPIKey executes an HTTP request authenticated with a raw API key.
func (e *testEnv) doAPIKey(t *testing.T, method, path string, body io.Reader, apiKey string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{"X-API-Key": apiKey})
}

// doBearer executes an HTTP request authenticated with a bearer token.
func (e *testEnv) doBearer(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, method, path, body, map[string]string{"Authorization": "Bearer " + token})
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("jsonBody: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func assertErrorKind(t *testing.T, rr *httptest.ResponseRecorder, want string) {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Kind != want {
		t.Errorf("error kind = %q, want %q; message = %q", resp.Error.Kind, want, resp.Error.Message)
	}
}

// ---------------------------------------------------------------------------
// Health and docs
// ---------------------------------------------------------------------------

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/healthz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestReadyz(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/readyz", nil, nil)
	assertStatus(t, rr, http.StatusOK)
}

func TestOpenAPISpec(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/openapi.json", nil, nil)
	assertStatus(t, rr, http.StatusOK)

	var doc struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	decodeJSON(t, rr, &doc)
	if doc.OpenAPI != "3.1.0" {
		t.Errorf("openapi = %q", doc.OpenAPI)
	}
	for _, p := range []string{"/v1/chat/completions", "/auth/token", "/v1/usage"} {
		if _, ok := doc.Paths[p]; !ok {
			t.Errorf("missing path %s in spec", p)
		}
	}
}

// ---------------------------------------------------------------------------
// API key lifecycle
// ---------------------------------------------------------------------------

func TestCreateKeyValidation(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(t, "POST", "/v1/api-keys", jsonBody(t, map[string]string{"description": "no name"}), nil)
	assertStatus(t, rr, http.StatusBadRequest)
	assertErrorKind(t, rr, model.KindBadRequest)

	rr = env.do(t, "POST", "/v1/api-keys", strings.NewReader("{not json"), nil)
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestKeySelfScope(t *testing.T) {
	env := newTestEnv(t)
	rawA, idA := env.createKey(t, "alice")
	_, idB := env.createKey(t, "bob")

	// List returns only the caller's key.
	rr := env.doAPIKey(t, "GET", "/v1/api-keys", nil, rawA)
	assertStatus(t, rr, http.StatusOK)
	var list struct {
		APIKeys []model.APIKeyInfo `json:"api_keys"`
	}
	decodeJSON(t, rr, &list)
	if len(list.APIKeys) != 1 || list.APIKeys[0].ID != idA {
		t.Errorf("list = %+v, want only %s", list.APIKeys, idA)
	}

	// Current describes the caller.
	rr = env.doAPIKey(t, "GET", "/v1/api-keys/current", nil, rawA)
	assertStatus(t, rr, http.StatusOK)

	// Fetching someone else's key is forbidden.
	rr = env.doAPIKey(t, "GET", "/v1/api-keys/"+idB, nil, rawA)
	assertStatus(t, rr, http.StatusForbidden)
	assertErrorKind(t, rr, model.KindForbidden)

	// So is revoking it.
	rr = env.doAPIKey(t, "DELETE", "/v1/api-keys/"+idB, nil, rawA)
	assertStatus(t, rr, http.StatusForbidden)
}

func TestRevokeKeyThenUse(t *testing.T) {
	env := newTestEnv(t)
	raw, id := env.createKey(t, "alice")

	rr := env.doAPIKey(t, "DELETE", "/v1/api-keys/"+id, nil, raw)
	assertStatus(t, rr, http.StatusOK)

	// The revoked key no longer authenticates, and the failure does not say
	// whether the key ever existed.
	rr = env.doAPIKey(t, "GET", "/v1/api-keys/current", nil, raw)
	assertStatus(t, rr, http.StatusUnauthorized)
	assertErrorKind(t, rr, model.KindUnauthorized)
}

func TestUnauthenticatedRequests(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/v1/api-keys", "/v1/models", "/v1/usage", "/v1/api-keys/current"} {
		rr := env.do(t, "GET", path, nil, nil)
		assertStatus(t, rr, http.StatusUnauthorized)
	}
}

// ---------------------------------------------------------------------------
// Token exchange
// ---------------------------------------------------------------------------

func TestTokenExchangeFlow(t *testing.T) {
	env := newTestEnv(t)
	raw, id := env.createKey(t, "alice")

	// Exchange the key for a token.
	rr := env.do(t, "POST", "/auth/token", jsonBody(t, map[string]interface{}{
		"api_key":          raw,
		"expires_in_hours": 2,
	}), nil)
	assertStatus(t, rr, http.StatusOK)

	var issued service.IssuedToken
	decodeJSON(t, rr, &issued)
	if issued.TokenType != "bearer" || issued.APIKeyID != id {
		t.Errorf("issued = %+v", issued)
	}
	if issued.ExpiresIn != 2*3600 {
		t.Errorf("expires_in = %d, want 7200", issued.ExpiresIn)
	}

	// The token authenticates API requests.
	rr = env.doBearer(t, "GET", "/v1/api-keys/current", nil, issued.AccessToken)
	assertStatus(t, rr, http.StatusOK)

	// Verify reports its identity.
	rr = env.do(t, "POST", "/auth/verify", jsonBody(t, map[string]string{"token": issued.AccessToken}), nil)
	assertStatus(t, rr, http.StatusOK)
	var verify struct {
		Valid    bool   `json:"valid"`
		APIKeyID string `json:"api_key_id"`
	}
	decodeJSON(t, rr, &verify)
	if !verify.Valid || verify.APIKeyID != id {
		t.Errorf("verify = %+v", verify)
	}

	// Refresh returns a fresh token for the same key.
	rr = env.do(t, "POST", "/auth/refresh", jsonBody(t, map[string]string{"token": issued.AccessToken}), nil)
	assertStatus(t, rr, http.StatusOK)
	var refreshed service.IssuedToken
	decodeJSON(t, rr, &refreshed)
	if refreshed.APIKeyID != id {
		t.Errorf("refreshed key = %q, want %q", refreshed.APIKeyID, id)
	}

	// Revoke acknowledges but cannot invalidate.
	rr = env.do(t, "DELETE", "/auth/revoke", jsonBody(t, map[string]string{"token": issued.AccessToken}), nil)
	assertStatus(t, rr, http.StatusOK)
	rr = env.doBearer(t, "GET", "/v1/api-keys/current", nil, issued.AccessToken)
	assertStatus(t, rr, http.StatusOK)
}

func TestTokenTTLBoundsRejected(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")

	for _, hours := range []int{0, -1, 169} {
		rr := env.do(t, "POST", "/auth/token", jsonBody(t, map[string]interface{}{
			"api_key":          raw,
			"expires_in_hours": hours,
		}), nil)
		assertStatus(t, rr, http.StatusBadRequest)
	}
}

func TestTokenForRevokedKey(t *testing.T) {
	env := newTestEnv(t)
	raw, id := env.createKey(t, "alice")

	rr := env.do(t, "POST", "/auth/token", jsonBody(t, map[string]string{"api_key": raw}), nil)
	assertStatus(t, rr, http.StatusOK)
	var issued service.IssuedToken
	decodeJSON(t, rr, &issued)

	rr = env.doAPIKey(t, "DELETE", "/v1/api-keys/"+id, nil, raw)
	assertStatus(t, rr, http.StatusOK)

	// The outstanding token now fails with the revocation kind.
	rr = env.doBearer(t, "GET", "/v1/api-keys/current", nil, issued.AccessToken)
	assertStatus(t, rr, http.StatusUnauthorized)
	assertErrorKind(t, rr, model.KindKeyRevoked)
}

// ---------------------------------------------------------------------------
// Chat completions
// ---------------------------------------------------------------------------

func chatBody(t *testing.T, modelName string, stream bool) *bytes.Buffer {
	t.Helper()
	return jsonBody(t, map[string]interface{}{
		"model":    modelName,
		"messages": []map[string]string{{"role": "user", "content": "hi"}},
		"stream":   stream,
	})
}

func TestChatCompletionBuffered(t *testing.T) {
	env := newTestEnv(t)
	raw, id := env.createKey(t, "alice")

	rr := env.doAPIKey(t, "POST", "/v1/chat/completions", chatBody(t, "gpt-4", false), raw)
	assertStatus(t, rr, http.StatusOK)

	var resp provider.ChatResponse
	decodeJSON(t, rr, &resp)
	if resp.Provider != "openai" {
		t.Errorf("provider = %q, want openai", resp.Provider)
	}
	if resp.Choices[0].Message.Content != "hello" {
		t.Errorf("content = %q", resp.Choices[0].Message.Content)
	}

	// The completion was metered against the calling key.
	rr = env.doAPIKey(t, "GET", "/v1/usage", nil, raw)
	assertStatus(t, rr, http.StatusOK)
	var usage model.UsageSummary
	decodeJSON(t, rr, &usage)
	if usage.APIKeyID != id || usage.TotalRequests != 1 || usage.TotalTokens != 15 {
		t.Errorf("usage = %+v", usage)
	}
}

func TestChatCompletionUnknownModel(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")

	rr := env.doAPIKey(t, "POST", "/v1/chat/completions", chatBody(t, "no-such-model", false), raw)
	assertStatus(t, rr, http.StatusBadRequest)

	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	if resp.Error.Kind != model.KindBadRequest {
		t.Errorf("kind = %q", resp.Error.Kind)
	}
	if resp.Error.Context["available_models"] == nil {
		t.Error("error context missing available_models")
	}
}

func TestChatCompletionUpstreamFailure(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")
	env.upstream.completeErr = errors.New("connection refused")

	rr := env.doAPIKey(t, "POST", "/v1/chat/completions", chatBody(t, "gpt-4", false), raw)
	assertStatus(t, rr, http.StatusBadGateway)
	assertErrorKind(t, rr, model.KindUpstreamFailure)
}

func TestChatCompletionStreaming(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")

	env.upstream.streamEvents = []provider.StreamEvent{
		{Chunk: &provider.ChatCompletionChunk{ID: "c1", Object: "chat.completion.chunk", Choices: []provider.ChunkChoice{{Delta: provider.Delta{Content: "hel"}}}}},
		{Chunk: &provider.ChatCompletionChunk{ID: "c1", Object: "chat.completion.chunk", Choices: []provider.ChunkChoice{{Delta: provider.Delta{Content: "lo"}}}}},
		{Chunk: &provider.ChatCompletionChunk{ID: "c1", Object: "chat.completion.chunk", Usage: &provider.Usage{TotalTokens: 9}}},
	}

	rr := env.doAPIKey(t, "POST", "/v1/chat/completions", chatBody(t, "gpt-4", true), raw)
	assertStatus(t, rr, http.StatusOK)

	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	body := rr.Body.String()
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream missing [DONE] sentinel: %q", body)
	}
	if got := strings.Count(body, "data: "); got != 4 {
		t.Errorf("got %d data frames, want 4 (3 chunks + sentinel)", got)
	}
	if !strings.Contains(body, `"provider":"openai"`) {
		t.Error("chunks not stamped with provider")
	}

	// Usage from the final chunk was metered.
	rr = env.doAPIKey(t, "GET", "/v1/usage", nil, raw)
	var usage model.UsageSummary
	decodeJSON(t, rr, &usage)
	if usage.TotalTokens != 9 {
		t.Errorf("metered tokens = %d, want 9", usage.TotalTokens)
	}
}

func TestChatCompletionStreamError(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")

	env.upstream.streamEvents = []provider.StreamEvent{
		{Chunk: &provider.ChatCompletionChunk{ID: "c1", Choices: []provider.ChunkChoice{{Delta: provider.Delta{Content: "x"}}}}},
		{Err: errors.New("connection reset")},
	}

	rr := env.doAPIKey(t, "POST", "/v1/chat/completions", chatBody(t, "gpt-4", true), raw)
	assertStatus(t, rr, http.StatusOK) // status committed before the failure

	body := rr.Body.String()
	if !strings.Contains(body, `"error"`) {
		t.Errorf("stream missing in-band error: %q", body)
	}
	if strings.Contains(body, "[DONE]") {
		t.Error("failed stream must not end with [DONE]")
	}
}

// ---------------------------------------------------------------------------
// Models and usage
// ---------------------------------------------------------------------------

func TestListModels(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")

	rr := env.doAPIKey(t, "GET", "/v1/models", nil, raw)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Data []provider.ModelInfo `json:"data"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Data) != 2 {
		t.Errorf("got %d models, want 2", len(resp.Data))
	}

	rr = env.doAPIKey(t, "GET", "/v1/models/gpt-4", nil, raw)
	assertStatus(t, rr, http.StatusOK)

	rr = env.doAPIKey(t, "GET", "/v1/models/nope", nil, raw)
	assertStatus(t, rr, http.StatusNotFound)
	assertErrorKind(t, rr, model.KindNotFound)

	rr = env.doAPIKey(t, "GET", "/v1/models/providers", nil, raw)
	assertStatus(t, rr, http.StatusOK)
}

func TestUsageSummaryCounters(t *testing.T) {
	env := newTestEnv(t)
	raw, id := env.createKey(t, "alice")

	// Two authenticated requests bump the key counter.
	env.doAPIKey(t, "GET", "/v1/models", nil, raw)
	env.doAPIKey(t, "GET", "/v1/models", nil, raw)

	rr := env.doAPIKey(t, "GET", "/v1/usage/summary", nil, raw)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		APIKeyID     string `json:"api_key_id"`
		CurrentUsage int64  `json:"current_usage"`
	}
	decodeJSON(t, rr, &resp)
	if resp.APIKeyID != id {
		t.Errorf("api_key_id = %q, want %q", resp.APIKeyID, id)
	}
	if resp.CurrentUsage < 2 {
		t.Errorf("current_usage = %d, want >= 2", resp.CurrentUsage)
	}
}

func TestUsageRecords(t *testing.T) {
	env := newTestEnv(t)
	raw, _ := env.createKey(t, "alice")

	env.doAPIKey(t, "POST", "/v1/chat/completions", chatBody(t, "gpt-4", false), raw)

	rr := env.doAPIKey(t, "GET", "/v1/usage/records?limit=10", nil, raw)
	assertStatus(t, rr, http.StatusOK)

	var resp struct {
		Records []model.UsageRecord `json:"records"`
	}
	decodeJSON(t, rr, &resp)
	if len(resp.Records) != 1 {
		t.Fatalf("got %d records, want 1", len(resp.Records))
	}
	if resp.Records[0].Model != "gpt-4" || resp.Records[0].Endpoint != "/v1/chat/completions" {
		t.Errorf("record = %+v", resp.Records[0])
	}
}
