package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config represents the top-level relay configuration file.
type Config struct {
	Server    ServerConfig   `yaml:"server"`
	Auth      AuthConfig     `yaml:"auth"`
	Store     StoreConfig    `yaml:"store"`
	Cache     CacheConfig    `yaml:"cache"`
	Providers []ProviderYAML `yaml:"providers"`
	MCP       MCPConfig      `yaml:"mcp"`
	Logging   LoggingConfig  `yaml:"logging"`
}

// ServerConfig controls the HTTP server behavior.
type ServerConfig struct {
	Host            string     `yaml:"host"`
	Port            int        `yaml:"port"`
	MaxBodySize     string     `yaml:"max_body_size"`
	RateLimit       int        `yaml:"rate_limit"`
	ShutdownTimeout string     `yaml:"shutdown_timeout"`
	CORS            CORSConfig `yaml:"cors"`
}

// CORSConfig controls cross-origin resource sharing settings.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
	Methods []string `yaml:"methods"`
}

// AuthConfig controls credential issuance and verification.
type AuthConfig struct {
	JWTSecret    string `yaml:"jwt_secret"`
	TokenExpiry  string `yaml:"token_expiry"`
	KeyPrefix    string `yaml:"key_prefix"`
	APIKeyHeader string `yaml:"api_key_header"`
}

// StoreConfig selects the key and usage database.
type StoreConfig struct {
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

// CacheConfig selects the verification cache backend.
type CacheConfig struct {
	Backend  string `yaml:"backend"` // "memory", "redis", or "none"
	RedisURL string `yaml:"redis_url"`
}

// ProviderYAML defines one upstream model provider.
type ProviderYAML struct {
	Name     string   `yaml:"name"`
	Enabled  bool     `yaml:"enabled"`
	Endpoint string   `yaml:"endpoint"`
	APIKey   string   `yaml:"api_key"`
	Models   []string `yaml:"models"`
}

// MCPConfig controls the MCP (Model Context Protocol) server.
type MCPConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Transport string `yaml:"transport"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads and parses a YAML configuration file. Environment variables
// referenced as ${VAR_NAME} in the file are expanded before parsing, so API
// keys never have to live in the file itself.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	content := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// Default returns a Config pre-filled with sensible defaults: all three
// supported providers wired to their public endpoints, keys pulled from the
// conventional environment variables. Provider key placeholders are expanded
// here so the zero-config path (env vars set, no relay.yaml) works the same
// as a loaded file.
func Default() *Config {
	cfg := defaultTemplate()
	for i := range cfg.Providers {
		cfg.Providers[i].APIKey = os.ExpandEnv(cfg.Providers[i].APIKey)
	}
	return cfg
}

// defaultTemplate keeps the ${VAR} placeholders literal. WriteDefault
// persists this form so the file never contains resolved secrets.
func defaultTemplate() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			MaxBodySize:     "10MB",
			RateLimit:       120,
			ShutdownTimeout: "30s",
			CORS: CORSConfig{
				Origins: []string{"*"},
				Methods: []string{"GET", "POST", "DELETE"},
			},
		},
		Auth: AuthConfig{
			TokenExpiry:  "24h",
			KeyPrefix:    "relay_",
			APIKeyHeader: "X-API-Key",
		},
		Store: StoreConfig{
			Driver: "sqlite",
		},
		Cache: CacheConfig{
			Backend: "memory",
		},
		Providers: []ProviderYAML{
			{
				Name:     "openai",
				Enabled:  true,
				Endpoint: "https://api.openai.com/v1",
				APIKey:   "${OPENAI_API_KEY}",
				Models:   []string{"gpt-4", "gpt-4-turbo", "gpt-4o", "gpt-4o-mini", "gpt-3.5-turbo"},
			},
			{
				Name:     "groq",
				Enabled:  true,
				Endpoint: "https://api.groq.com/openai/v1",
				APIKey:   "${GROQ_API_KEY}",
				Models:   []string{"llama-3.1-8b-instant", "llama-3.3-70b-versatile", "mixtral-8x7b-32768"},
			},
			{
				Name:     "gemini",
				Enabled:  true,
				Endpoint: "https://generativelanguage.googleapis.com/v1beta/openai",
				APIKey:   "${GEMINI_API_KEY}",
				Models:   []string{"gemini-1.5-pro", "gemini-1.5-flash", "gemini-2.0-flash"},
			},
		},
		MCP: MCPConfig{
			Enabled:   false,
			Transport: "stdio",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// WriteDefault writes the default configuration to a YAML file.
func WriteDefault(path string) error {
	data, err := yaml.Marshal(defaultTemplate())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
