// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest priority):
//  1. Environment variables (DATABASE_URL, GEMINI_API_KEY, VULNSAGE_*)
//  2. Config file (~/.vulnsage/config.yaml or ./config.yaml)
//  3. Default values
//
// Sentinel errors support errors.Is() checks; Load validates fail-fast so a
// misconfigured process never starts serving.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates GEMINI_API_KEY is not set.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidPages indicates the page count is not positive.
	ErrInvalidPages = errors.New("invalid page count")

	// ErrInvalidResultCount indicates the default result count is not positive.
	ErrInvalidResultCount = errors.New("invalid result count")

	// ErrInvalidSourceURL indicates the source base URL is malformed.
	ErrInvalidSourceURL = errors.New("invalid source base URL")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")
)

const (
	// DefaultSourceBaseURL is the advisory listing endpoint for pip packages.
	DefaultSourceBaseURL = "https://security.snyk.io/vuln/pip"

	// DefaultHTTPAddr is where the API server listens.
	DefaultHTTPAddr = ":8080"
)

// Config stores application configuration.
type Config struct {
	// Gemini configuration. The API key arrives only via GEMINI_API_KEY.
	GeminiAPIKey    string  `mapstructure:"gemini_api_key"`
	EmbedModel      string  `mapstructure:"embed_model"`
	CompletionModel string  `mapstructure:"completion_model"`
	Temperature     float32 `mapstructure:"temperature"`

	// Ingestion configuration
	SourceBaseURL string `mapstructure:"source_base_url"`
	ScrapePages   int    `mapstructure:"scrape_pages"`
	PageDelayMS   int    `mapstructure:"page_delay_ms"`
	FetchTimeoutS int    `mapstructure:"fetch_timeout_s"`

	// Query configuration
	DefaultK int `mapstructure:"default_k"`

	// PostgreSQL configuration; DATABASE_URL overrides all of these.
	PostgresHost     string `mapstructure:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password"`
	PostgresDBName   string `mapstructure:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode"`

	// HTTP server configuration
	HTTPAddr string `mapstructure:"http_addr"`
}

// Load loads configuration.
// Priority: environment variables > configuration file > default values.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".vulnsage"))
	}
	v.AddConfigPath(".")

	setDefaults(v)
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the defaults carry a dev setup.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("embed_model", "gemini-embedding-001")
	v.SetDefault("completion_model", "gemini-2.5-flash")
	v.SetDefault("temperature", 0.5)

	v.SetDefault("source_base_url", DefaultSourceBaseURL)
	v.SetDefault("scrape_pages", 3)
	v.SetDefault("page_delay_ms", 2000)
	v.SetDefault("fetch_timeout_s", 30)

	v.SetDefault("default_k", 5)

	// PostgreSQL defaults matching docker-compose.yml
	v.SetDefault("postgres_host", "localhost")
	v.SetDefault("postgres_port", 5432)
	v.SetDefault("postgres_user", "vulnsage")
	v.SetDefault("postgres_password", "vulnsage_dev_password")
	v.SetDefault("postgres_db_name", "vulnsage")
	v.SetDefault("postgres_ssl_mode", "disable")

	v.SetDefault("http_addr", DefaultHTTPAddr)
}

// bindEnvVariables binds environment overrides explicitly. The binds use
// hardcoded keys, so a bind failure is a programming error, not a runtime
// condition.
func bindEnvVariables(v *viper.Viper) {
	mustBind := func(key, envVar string) {
		if err := v.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("gemini_api_key", "GEMINI_API_KEY")
	mustBind("embed_model", "VULNSAGE_EMBED_MODEL")
	mustBind("completion_model", "VULNSAGE_COMPLETION_MODEL")
	mustBind("temperature", "VULNSAGE_TEMPERATURE")
	mustBind("source_base_url", "VULNSAGE_SOURCE_BASE_URL")
	mustBind("scrape_pages", "VULNSAGE_SCRAPE_PAGES")
	mustBind("page_delay_ms", "VULNSAGE_PAGE_DELAY_MS")
	mustBind("default_k", "VULNSAGE_DEFAULT_K")
	mustBind("http_addr", "VULNSAGE_HTTP_ADDR")
}

// Validate checks every tunable that could make the process misbehave at
// runtime. The Gemini key is checked separately by RequireAPIKey because
// some commands (e.g. migrations) do not need it.
func (c *Config) Validate() error {
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: %v (must be within [0, 2])", ErrInvalidTemperature, c.Temperature)
	}
	if c.ScrapePages < 1 {
		return fmt.Errorf("%w: %d (must be at least 1)", ErrInvalidPages, c.ScrapePages)
	}
	if c.DefaultK < 1 {
		return fmt.Errorf("%w: %d (must be at least 1)", ErrInvalidResultCount, c.DefaultK)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPostgresPort, c.PostgresPort)
	}

	parsed, err := url.Parse(c.SourceBaseURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return fmt.Errorf("%w: %q", ErrInvalidSourceURL, c.SourceBaseURL)
	}
	return nil
}

// RequireAPIKey fails when the Gemini key is absent.
func (c *Config) RequireAPIKey() error {
	if c.GeminiAPIKey == "" {
		return fmt.Errorf("%w: set GEMINI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// PageDelay returns the per-page fetch delay as a duration.
func (c *Config) PageDelay() time.Duration {
	return time.Duration(c.PageDelayMS) * time.Millisecond
}

// FetchTimeout returns the page fetch timeout as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutS) * time.Second
}
