package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/modelrelay/relay/internal/cache"
	"github.com/modelrelay/relay/internal/config"
	"github.com/modelrelay/relay/internal/provider"
	"github.com/modelrelay/relay/internal/store"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// RELAY_DATA_DIR env var, or ~/.relay as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("RELAY_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.relay"
}

// loadConfig loads the YAML config from --config (or ./relay.yaml,
// ~/.relay/relay.yaml), falling back to built-in defaults when no file
// exists.
func loadConfig() (*config.Config, error) {
	candidates := []string{cfgFile}
	if cfgFile == "" {
		home, _ := os.UserHomeDir()
		candidates = []string{"relay.yaml", filepath.Join(home, ".relay", "relay.yaml")}
	}

	for _, path := range candidates {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			return config.Load(path)
		} else if cfgFile != "" {
			return nil, fmt.Errorf("config file %s: %w", path, err)
		}
	}
	return config.Default(), nil
}

// openStore opens the key and usage store described by the config,
// defaulting the SQLite file into the resolved data directory.
func openStore(cfg *config.Config) (*store.Store, error) {
	dir := cfg.Store.DataDir
	if dir == "" {
		dir = resolveDataDir()
	}
	return store.New(store.Options{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		DataDir: dir,
	})
}

// openCache builds the verification cache backend. "none" returns nil,
// which disables the fast path entirely.
func openCache(ctx context.Context, cfg *config.Config) (cache.KeyCache, error) {
	switch cfg.Cache.Backend {
	case "", "memory":
		return cache.NewMemoryCache(), nil
	case "redis":
		return cache.NewRedisCache(ctx, cfg.Cache.RedisURL)
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q; use 'memory', 'redis', or 'none'", cfg.Cache.Backend)
	}
}

// buildRegistry registers every enabled provider from the config.
func buildRegistry(cfg *config.Config, logger *slog.Logger) *provider.Registry {
	registry := provider.NewRegistry()
	for _, p := range cfg.Providers {
		if !p.Enabled {
			continue
		}
		if p.APIKey == "" {
			logger.Warn("provider has no API key configured; requests to it will fail", "provider", p.Name)
		}
		client := provider.NewHTTPClient(p.Name, p.Endpoint, p.APIKey)
		registry.Register(p.Name, client, p.Models, p.Endpoint)
		logger.Info("registered provider", "provider", p.Name, "models", len(p.Models))
	}
	return registry
}

// jwtSecret resolves the token signing secret: config file first, then
// RELAY_AUTH_JWT_SECRET via viper, then a dev fallback.
func jwtSecret(cfg *config.Config) string {
	if cfg.Auth.JWTSecret != "" {
		return cfg.Auth.JWTSecret
	}
	if s := viper.GetString("auth.jwt_secret"); s != "" {
		return s
	}
	return "relay-dev-secret-change-me"
}

// parseDuration parses a duration string, returning fallback on empty or
// invalid input.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// parseSize parses a human size string like "10MB" into bytes.
func parseSize(s string, fallback int64) int64 {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return fallback
	}

	multiplier := int64(1)
	switch {
	case strings.HasSuffix(s, "GB"):
		multiplier = 1 << 30
		s = strings.TrimSuffix(s, "GB")
	case strings.HasSuffix(s, "MB"):
		multiplier = 1 << 20
		s = strings.TrimSuffix(s, "MB")
	case strings.HasSuffix(s, "KB"):
		multiplier = 1 << 10
		s = strings.TrimSuffix(s, "KB")
	case strings.HasSuffix(s, "B"):
		s = strings.TrimSuffix(s, "B")
	}

	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return fallback
	}
	return n * multiplier
}

// newLogger builds a slog.Logger from the logging config.
func newLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch strings.ToLower(cfg.Logging.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.ToLower(cfg.Logging.Format) == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "relay.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "relay.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
