package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/modelrelay/relay/internal/gateway"
	"github.com/modelrelay/relay/internal/handler"
	"github.com/modelrelay/relay/internal/provider"
	"github.com/modelrelay/relay/internal/server/middleware"
	"github.com/modelrelay/relay/internal/service"
	"github.com/modelrelay/relay/internal/store"
)

// Config holds the HTTP server configuration.
type Config struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
	CORSOrigins     []string
	RateLimit       int // requests per credential per minute, 0 disables
	APIKeyHeader    string
	MaxBodySize     int64 // bytes
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		Host:            "0.0.0.0",
		Port:            8080,
		ShutdownTimeout: 30 * time.Second,
		CORSOrigins:     []string{"*"},
		RateLimit:       120,
		APIKeyHeader:    "X-API-Key",
		MaxBodySize:     10 * 1024 * 1024, // 10MB
	}
}

// Deps carries the wired services the server routes to.
type Deps struct {
	Store    *store.Store
	Keys     *service.Keys
	Tokens   *service.Tokens
	Meter    *service.Meter
	Registry *provider.Registry
	Gateway  *gateway.Gateway
}

// Server is the top-level HTTP server for the relay. It owns the Chi router
// and the authentication, routing, and metering services.
type Server struct {
	cfg        Config
	deps       Deps
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a new Server, wires up all routes and middleware, and returns
// it ready to listen. Call ListenAndServe to start accepting connections.
func New(cfg Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// --- Global middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(s.logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	if s.cfg.MaxBodySize > 0 {
		r.Use(chimw.RequestSize(s.cfg.MaxBodySize))
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if s.cfg.RateLimit > 0 {
		r.Use(middleware.RateLimitByCredential(s.cfg.APIKeyHeader, s.cfg.RateLimit))
	}

	// --- Health checks (no auth required) ---
	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	// --- OpenAPI spec (no auth required) ---
	r.Get("/openapi.json", handler.NewOpenAPIHandler(s.deps.Registry).ServeSpec)

	keysHandler := handler.NewKeysHandler(s.deps.Keys)
	tokensHandler := handler.NewTokensHandler(s.deps.Keys, s.deps.Tokens)
	chatHandler := handler.NewChatHandler(s.deps.Gateway)
	modelsHandler := handler.NewModelsHandler(s.deps.Registry)
	usageHandler := handler.NewUsageHandler(s.deps.Meter, s.deps.Store)

	authenticate := middleware.Authenticate(s.deps.Keys, s.deps.Tokens, s.cfg.APIKeyHeader)

	// --- Credential bootstrap (no header auth; the credential is the payload) ---
	r.Post("/v1/api-keys", keysHandler.Create)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/token", tokensHandler.Issue)
		r.Post("/refresh", tokensHandler.Refresh)
		r.Post("/verify", tokensHandler.Verify)
		r.Delete("/revoke", tokensHandler.Revoke)
	})

	// --- Authenticated API ---
	r.Group(func(r chi.Router) {
		r.Use(authenticate)

		r.Get("/v1/api-keys", keysHandler.List)
		r.Get("/v1/api-keys/current", keysHandler.Current)
		r.Get("/v1/api-keys/{keyID}", keysHandler.Get)
		r.Delete("/v1/api-keys/{keyID}", keysHandler.Revoke)

		r.Post("/v1/chat/completions", chatHandler.Completions)

		r.Get("/v1/models", modelsHandler.List)
		r.Get("/v1/models/providers", modelsHandler.ListProviders)
		r.Get("/v1/models/{modelID}", modelsHandler.Get)

		r.Get("/v1/usage", usageHandler.Get)
		r.Get("/v1/usage/summary", usageHandler.Summary)
		r.Get("/v1/usage/records", usageHandler.Records)
	})

	s.router = r
}

// handleHealthz is a liveness probe. Returns 200 if the process is running.
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// handleReadyz is a readiness probe. Returns 200 when the key store answers,
// or 503 when it does not.
func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := s.deps.Store.Ping(r.Context()); err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"degraded","checks":{"store":"error"}}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok","checks":{"store":"ok"}}`))
}

// ListenAndServe starts the HTTP server and blocks until a SIGINT or SIGTERM
// is received. It then performs a graceful shutdown, draining in-flight
// requests before closing the store.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)

	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
		// No WriteTimeout: streamed completions legitimately outlive any
		// fixed bound, and the upstream client enforces its own deadline.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server starting", "addr", addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen: %w", err)
	case <-ctx.Done():
		s.logger.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if err := s.deps.Store.Close(); err != nil {
		s.logger.Warn("store close failed", "error", err)
	}
	s.logger.Info("server stopped")
	return nil
}

// Router returns the underlying Chi router, useful for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ServeHTTP implements http.Handler, delegating to the router.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}
