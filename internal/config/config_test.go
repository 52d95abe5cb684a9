package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.PollInterval != 30*time.Second {
		t.Errorf("Expected 30s poll interval, got %s", cfg.Feed.PollInterval)
	}
	if cfg.Dispatcher.ExcerptLength != 100 || cfg.Dispatcher.MaxDesktopPerBurst != 5 {
		t.Errorf("Unexpected dispatcher defaults: %+v", cfg.Dispatcher)
	}
	if cfg.WebSocket.ReconnectDelay != 5*time.Second {
		t.Errorf("Expected 5s reconnect delay, got %s", cfg.WebSocket.ReconnectDelay)
	}
	if cfg.Server.HTTPPort != "8080" || cfg.Server.GRPCPort != "50051" {
		t.Errorf("Unexpected ports: %+v", cfg.Server)
	}
	if got := cfg.Resilience.Client(); got.MaxRetries != 3 || !got.EnableCircuitBreaker {
		t.Errorf("Unexpected resilience config: %+v", got)
	}
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("FEED_POLL_INTERVAL", "5s")
	t.Setenv("REDIS_CHANNELS", "a,b")
	t.Setenv("WS_ALLOWED_ORIGINS", "https://one.example,https://two.example")
	t.Setenv("NOTIFICATIONS_ENABLED", "false")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Feed.PollInterval != 5*time.Second {
		t.Errorf("Expected 5s, got %s", cfg.Feed.PollInterval)
	}
	if len(cfg.Redis.Channels) != 2 || cfg.Redis.Channels[1] != "b" {
		t.Errorf("Unexpected channels: %v", cfg.Redis.Channels)
	}
	if len(cfg.Server.AllowedOrigins) != 2 {
		t.Errorf("Unexpected origins: %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Dispatcher.Enabled {
		t.Error("Expected notifications disabled")
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("CAMPAIGN_URL=http://campaign.local/activate\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("CAMPAIGN_URL") })

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Campaign.URL != "http://campaign.local/activate" {
		t.Errorf("Expected campaign URL from env file, got %q", cfg.Campaign.URL)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"unparsable duration", "FEED_POLL_INTERVAL", "soon"},
		{"zero interval", "FEED_POLL_INTERVAL", "0s"},
		{"zero excerpt", "NOTIFICATION_EXCERPT_LENGTH", "0"},
		{"slack token without channel", "SLACK_BOT_TOKEN", "xoxb-test"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
				t.Errorf("Expected error for %s=%s", tt.key, tt.value)
			}
		})
	}
}

func TestLoadSources(t *testing.T) {
	t.Setenv("VENDOR_KEY", "secret")
	path := filepath.Join(t.TempDir(), "sources.yaml")
	content := `
sources:
  - name: classifier
    url: https://classifier.example/alerts
    api_key: ${VENDOR_KEY}
  - name: reviews
    url: https://reviews.example/export.csv
    format: csv
  - name: paused
    url: https://paused.example
    enabled: false
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	sources, err := LoadSources(path)
	if err != nil {
		t.Fatalf("LoadSources failed: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("Expected 2 enabled sources, got %d", len(sources))
	}
	if sources[0].Format != "json" || sources[0].APIKey != "secret" {
		t.Errorf("Unexpected first source: %+v", sources[0])
	}
	if sources[1].Format != "csv" {
		t.Errorf("Expected csv format, got %q", sources[1].Format)
	}
}

func TestLoadSources_Errors(t *testing.T) {
	if sources, err := LoadSources(filepath.Join(t.TempDir(), "none.yaml")); err != nil || sources != nil {
		t.Errorf("Expected no sources and no error for a missing file, got %v, %v", sources, err)
	}

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing url", "sources:\n  - name: x\n", "needs a name and a url"},
		{"duplicate", "sources:\n  - {name: x, url: http://a}\n  - {name: x, url: http://b}\n", "duplicate"},
		{"format", "sources:\n  - {name: x, url: http://a, format: xml}\n", "unknown format"},
		{"yaml", "sources: [", "failed to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "sources.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadSources(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}
