package cli

import (
	"testing"
	"time"
)

func TestParseSize(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fallback int64
		expected int64
	}{
		{"megabytes", "10MB", 1024, 10 * 1024 * 1024},
		{"kilobytes", "64KB", 1024, 64 * 1024},
		{"gigabytes", "1GB", 1024, 1 << 30},
		{"plain bytes", "2048B", 1024, 2048},
		{"bare number", "512", 1024, 512},
		{"lowercase", "5mb", 1024, 5 * 1024 * 1024},
		{"with spaces", " 10 MB ", 1024, 10 * 1024 * 1024},
		{"empty uses fallback", "", 1024, 1024},
		{"garbage uses fallback", "lots", 1024, 1024},
		{"negative uses fallback", "-5MB", 1024, 1024},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseSize(tt.input, tt.fallback)
			if got != tt.expected {
				t.Errorf("parseSize(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		fallback time.Duration
		expected time.Duration
	}{
		{"seconds", "45s", time.Minute, 45 * time.Second},
		{"minutes", "2m", time.Minute, 2 * time.Minute},
		{"empty uses fallback", "", time.Minute, time.Minute},
		{"garbage uses fallback", "soon", time.Minute, time.Minute},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := parseDuration(tt.input, tt.fallback)
			if got != tt.expected {
				t.Errorf("parseDuration(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestVersionString(t *testing.T) {
	old := appVersion
	t.Cleanup(func() { appVersion = old })

	tests := []struct {
		version  string
		expected string
	}{
		{"", "dev"},
		{"dev", "dev"},
		{"0.1.0", "v0.1.0"},
		{"v0.2.0", "v0.2.0"},
	}

	for _, tt := range tests {
		appVersion = tt.version
		if got := versionString(); got != tt.expected {
			t.Errorf("versionString() with %q = %q, want %q", tt.version, got, tt.expected)
		}
	}
}
