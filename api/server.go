// Package api exposes the ingestion and query functionality as a JSON
// HTTP API, with health probes kept outside the middleware stack.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/secsage/vulnsage/internal/rag"
	"github.com/secsage/vulnsage/internal/scrape"
	"github.com/secsage/vulnsage/internal/store"
)

// QueryEngine answers vulnerability questions.
type QueryEngine interface {
	Answer(ctx context.Context, query string, k int) (rag.Result, error)
}

// VulnStore is the slice of the record store the API reads and prunes.
type VulnStore interface {
	Get(ctx context.Context, id string) (store.Record, error)
	List(ctx context.Context, filter store.Filter) ([]store.Record, error)
	Delete(ctx context.Context, id string) error
	CollectStats(ctx context.Context) (store.Stats, error)
}

// Ingestor triggers ingestion runs.
type Ingestor interface {
	Run(ctx context.Context, pages int) (scrape.Stats, error)
	Reindex(ctx context.Context, limit int) (indexed, failed int, err error)
}

// ServerConfig contains configuration for creating the API server.
type ServerConfig struct {
	Logger   *slog.Logger
	Engine   QueryEngine    // Required
	Store    VulnStore      // Required
	Ingestor Ingestor       // Optional: nil disables POST /api/scrape
	Pool     *pgxpool.Pool  // Optional: nil makes /ready report only process liveness
	DefaultK int            // Result count when the request omits k
}

// Server is the JSON API HTTP server.
type Server struct {
	mux *http.ServeMux
}

// NewServer creates a new API server with all routes configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Engine == nil {
		return nil, errors.New("query engine is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("record store is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultK := cfg.DefaultK
	if defaultK <= 0 {
		defaultK = rag.DefaultK
	}

	mux := http.NewServeMux()

	qh := &queryHandler{engine: cfg.Engine, defaultK: defaultK, logger: logger}
	mux.HandleFunc("POST /api/query", qh.answer)

	vh := &vulnHandler{store: cfg.Store, logger: logger}
	mux.HandleFunc("GET /api/vulnerabilities", vh.list)
	mux.HandleFunc("GET /api/vulnerabilities/stats", vh.stats)
	mux.HandleFunc("GET /api/vulnerabilities/{id}", vh.get)
	mux.HandleFunc("DELETE /api/vulnerabilities/{id}", vh.delete)

	if cfg.Ingestor != nil {
		ih := &ingestHandler{ingestor: cfg.Ingestor, logger: logger}
		mux.HandleFunc("POST /api/scrape", ih.run)
		mux.HandleFunc("POST /api/reindex", ih.reindex)
	}

	var handler http.Handler = mux
	handler = loggingMiddleware(logger)(handler)
	handler = recoveryMiddleware(logger)(handler)

	// Health probes bypass the middleware stack so probe traffic does not
	// flood the request log.
	topMux := http.NewServeMux()
	topMux.HandleFunc("GET /health", health(logger))
	topMux.Handle("GET /ready", readiness(cfg.Pool, logger))
	topMux.Handle("/", handler)

	return &Server{mux: topMux}, nil
}

// Handler returns the server as an http.Handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}
