package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
reddit:
  client-id: abc
  client-secret: shh
  refresh-token: rt
  timeout: 5s
defaults:
  dateformat: "02/01/2006 15:04"
  limit: 50
output:
  format: html
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reddit.ClientID != "abc" || cfg.Reddit.ClientSecret != "shh" || cfg.Reddit.RefreshToken != "rt" {
		t.Errorf("unexpected reddit config: %+v", cfg.Reddit)
	}
	if cfg.Reddit.Timeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", cfg.Reddit.Timeout)
	}
	if cfg.Defaults.Limit != 50 || cfg.Defaults.DateFormat != "02/01/2006 15:04" {
		t.Errorf("unexpected defaults: %+v", cfg.Defaults)
	}
	// Untouched keys keep their defaults.
	if cfg.Defaults.Sort != "confidence" || cfg.Output.Dir != "downloads" {
		t.Errorf("defaults lost: %+v %+v", cfg.Defaults, cfg.Output)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reddit.APIBase != "https://oauth.reddit.com" {
		t.Errorf("unexpected api base %q", cfg.Reddit.APIBase)
	}
	if !strings.HasSuffix(cfg.Reddit.TokenURL, "/api/v1/access_token") || !strings.HasSuffix(cfg.Reddit.AuthURL, "/api/v1/authorize") {
		t.Errorf("unexpected oauth endpoints %q %q", cfg.Reddit.AuthURL, cfg.Reddit.TokenURL)
	}
}

func TestLoad_BadYAML(t *testing.T) {
	path := writeConfig(t, "reddit: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("REDDIT_CLIENT_ID", "env-id")
	t.Setenv("REDDIT_REFRESH_TOKEN", "env-rt")
	t.Setenv("NEO4J_URL", "neo4j://graph:7687")
	t.Setenv("NATS_URL", "nats://bus:4222")

	path := writeConfig(t, "reddit:\n  client-id: file-id\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Reddit.ClientID != "env-id" {
		t.Errorf("expected env client id, got %q", cfg.Reddit.ClientID)
	}
	if cfg.Reddit.RefreshToken != "env-rt" {
		t.Errorf("expected env refresh token, got %q", cfg.Reddit.RefreshToken)
	}
	if cfg.Neo4j.URL != "neo4j://graph:7687" || cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("sink env not applied: %+v %+v", cfg.Neo4j, cfg.NATS)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"missing client id", func(c *Config) { c.Reddit.ClientID = "" }, ErrMissingClientID},
		{"missing refresh token", func(c *Config) { c.Reddit.RefreshToken = "" }, ErrMissingRefreshToken},
		{"bad format", func(c *Config) { c.Output.Format = "pdf" }, ErrInvalidFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			cfg.Reddit.ClientID = "id"
			cfg.Reddit.RefreshToken = "rt"
			tt.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestValidateAuth(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateAuth(); !errors.Is(err, ErrMissingClientID) {
		t.Fatalf("expected ErrMissingClientID, got %v", err)
	}
	cfg.Reddit.ClientID = "id"
	if err := cfg.ValidateAuth(); err != nil {
		t.Fatalf("unexpected: %v", err)
	}
}
