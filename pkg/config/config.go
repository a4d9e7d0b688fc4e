// Package config loads the archiver configuration from a YAML file with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var (
	ErrMissingClientID     = errors.New("reddit.client-id is required")
	ErrMissingRefreshToken = errors.New("reddit.refresh-token is required; run the auth command first")
	ErrInvalidFormat       = errors.New("output.format must be json or html")
)

// Config holds all archiver settings.
type Config struct {
	Reddit   Reddit   `yaml:"reddit"`
	Defaults Defaults `yaml:"defaults"`
	Output   Output   `yaml:"output"`
	Neo4j    Neo4j    `yaml:"neo4j"`
	NATS     NATS     `yaml:"nats"`
}

// Reddit holds API credentials and endpoints.
type Reddit struct {
	ClientID     string        `yaml:"client-id"`
	ClientSecret string        `yaml:"client-secret"`
	RefreshToken string        `yaml:"refresh-token"`
	RedirectURI  string        `yaml:"redirect-uri"`
	Root         string        `yaml:"root"`
	APIBase      string        `yaml:"api-base"`
	AuthURL      string        `yaml:"auth-url"`
	TokenURL     string        `yaml:"token-url"`
	UserAgent    string        `yaml:"user-agent"`
	Timeout      time.Duration `yaml:"timeout"`
	RequestsPerS float64       `yaml:"requests-per-second"`
}

// Defaults holds per-run defaults the CLI flags may override.
type Defaults struct {
	DateFormat string `yaml:"dateformat"`
	Sort       string `yaml:"sort"`
	Limit      int    `yaml:"limit"`
}

// Output controls where and how archives are written.
type Output struct {
	Dir    string `yaml:"dir"`
	Format string `yaml:"format"`
}

// Neo4j configures the optional graph sink. Empty URL disables it.
type Neo4j struct {
	URL  string `yaml:"url"`
	User string `yaml:"user"`
	Pass string `yaml:"pass"`
}

// NATS configures the optional archived-event notification. Empty URL
// disables it.
type NATS struct {
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// Default returns a Config with all default values set.
func Default() Config {
	return Config{
		Reddit: Reddit{
			RedirectURI:  "http://localhost:8080",
			Root:         "https://old.reddit.com",
			APIBase:      "https://oauth.reddit.com",
			AuthURL:      "https://www.reddit.com/api/v1/authorize",
			TokenURL:     "https://www.reddit.com/api/v1/access_token",
			Timeout:      30 * time.Second,
			RequestsPerS: 1,
		},
		Defaults: Defaults{
			DateFormat: "2006-01-02 15:04:05",
			Sort:       "confidence",
			Limit:      500,
		},
		Output: Output{
			Dir:    "downloads",
			Format: "json",
		},
		Neo4j: Neo4j{User: "neo4j"},
		NATS:  NATS{Subject: "archiver.posts.archived"},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error; credentials may come from the
// environment alone.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&c.Reddit.ClientID, "REDDIT_CLIENT_ID")
	set(&c.Reddit.ClientSecret, "REDDIT_CLIENT_SECRET")
	set(&c.Reddit.RefreshToken, "REDDIT_REFRESH_TOKEN")
	set(&c.Output.Dir, "ARCHIVER_OUT")
	set(&c.Neo4j.URL, "NEO4J_URL")
	set(&c.Neo4j.User, "NEO4J_USER")
	set(&c.Neo4j.Pass, "NEO4J_PASS")
	set(&c.NATS.URL, "NATS_URL")
}

// ValidateAuth checks the settings needed for the code exchange.
func (c Config) ValidateAuth() error {
	if c.Reddit.ClientID == "" {
		return ErrMissingClientID
	}
	return nil
}

// Validate checks the settings needed to archive a post.
func (c Config) Validate() error {
	var errs []error
	if c.Reddit.ClientID == "" {
		errs = append(errs, ErrMissingClientID)
	}
	if c.Reddit.RefreshToken == "" {
		errs = append(errs, ErrMissingRefreshToken)
	}
	switch strings.ToLower(c.Output.Format) {
	case "json", "html":
	default:
		errs = append(errs, fmt.Errorf("%w (got %q)", ErrInvalidFormat, c.Output.Format))
	}
	if c.Defaults.Limit <= 0 {
		errs = append(errs, fmt.Errorf("defaults.limit must be positive (got %d)", c.Defaults.Limit))
	}
	if c.Reddit.RequestsPerS <= 0 {
		errs = append(errs, fmt.Errorf("reddit.requests-per-second must be positive (got %v)", c.Reddit.RequestsPerS))
	}
	return errors.Join(errs...)
}
