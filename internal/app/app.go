// Package app wires the application together: configuration, database,
// Gemini client, ingestion pipeline and query engine.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secsage/vulnsage/db"
	"github.com/secsage/vulnsage/internal/config"
	"github.com/secsage/vulnsage/internal/gemini"
	"github.com/secsage/vulnsage/internal/rag"
	"github.com/secsage/vulnsage/internal/scrape"
	"github.com/secsage/vulnsage/internal/store"
	"github.com/secsage/vulnsage/internal/vector"
)

// geminiRequestsPerSecond paces model calls during ingestion, where every
// scraped record triggers an embedding request.
const geminiRequestsPerSecond = 2

// App is the application container. All fields are initialized by Setup
// and valid until Close.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Pool     *pgxpool.Pool
	Records  *store.Store
	Index    *vector.PGIndex
	Gemini   *gemini.Client
	Pipeline *scrape.Pipeline
	Engine   *rag.Engine
}

// Setup builds the full dependency graph: it runs migrations, connects to
// PostgreSQL and constructs the pipeline and engine. The Gemini API key is
// required here because every entry point that calls Setup talks to the
// model service.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.RequireAPIKey(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := store.Connect(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	records, err := store.New(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	index, err := vector.NewPGIndex(pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}

	client, err := gemini.New(ctx, gemini.Config{
		APIKey:            cfg.GeminiAPIKey,
		EmbedModel:        cfg.EmbedModel,
		CompletionModel:   cfg.CompletionModel,
		RequestsPerSecond: geminiRequestsPerSecond,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}

	fetcher, err := scrape.NewFetcher(scrape.FetcherConfig{
		BaseURL: cfg.SourceBaseURL,
		Delay:   cfg.PageDelay(),
		Timeout: cfg.FetchTimeout(),
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating fetcher: %w", err)
	}

	pipeline, err := scrape.NewPipeline(fetcher, records, client, index, scrape.DefaultSelectors(), logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}

	engine, err := rag.NewEngine(client, client, index, records, rag.Config{
		DefaultK:    cfg.DefaultK,
		Temperature: cfg.Temperature,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating query engine: %w", err)
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Pool:     pool,
		Records:  records,
		Index:    index,
		Gemini:   client,
		Pipeline: pipeline,
		Engine:   engine,
	}, nil
}

// Close releases all resources.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}
}
