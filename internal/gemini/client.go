// Package gemini provides thin adapters to the Gemini API for text
// embeddings and chat completions. Both adapters fail cleanly: a call
// either returns a complete result or an error, never a partial vector or
// truncated text that callers could mistake for success.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
	"google.golang.org/genai"
)

// Config holds adapter settings. APIKey is required; the rest default via
// the named constants.
type Config struct {
	APIKey          string
	EmbedModel      string
	CompletionModel string

	// CallTimeout bounds every individual API call.
	CallTimeout time.Duration

	// RequestsPerSecond paces outbound calls to stay inside API quotas
	// during bulk indexing. Zero disables pacing.
	RequestsPerSecond float64

	// MaxRetries caps backoff retries for transient failures.
	MaxRetries uint64
}

const (
	// DefaultEmbedModel supports Matryoshka truncation, so the 3072-dim
	// native output can be cut to vector.Dimension without re-training.
	DefaultEmbedModel = "gemini-embedding-001"

	// DefaultCompletionModel is the default generation model.
	DefaultCompletionModel = "gemini-2.5-flash"

	// DefaultCallTimeout bounds a single embed or completion call.
	DefaultCallTimeout = 30 * time.Second

	// DefaultMaxRetries is the retry cap for transient API failures.
	DefaultMaxRetries = 3
)

// Client wraps the genai SDK for the two operations the core needs.
//
// Client is safe for concurrent use by multiple goroutines.
type Client struct {
	genai       *genai.Client
	embedModel  string
	genModel    string
	callTimeout time.Duration
	maxRetries  uint64
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// New creates a Gemini client. The API key is validated here so that
// misconfiguration fails at startup, not on the first ingestion run.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	applyDefaults(&cfg)

	gc, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		genai:       gc,
		embedModel:  cfg.EmbedModel,
		genModel:    cfg.CompletionModel,
		callTimeout: cfg.CallTimeout,
		maxRetries:  cfg.MaxRetries,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

func applyDefaults(cfg *Config) {
	if cfg.EmbedModel == "" {
		cfg.EmbedModel = DefaultEmbedModel
	}
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = DefaultCompletionModel
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = DefaultCallTimeout
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
}

// withRetry runs op with exponential backoff for transient failures.
// Context cancellation is permanent and surfaces immediately.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	wrapped := func() error {
		if err := op(); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(wrapped, policy)
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}
