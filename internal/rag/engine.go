// Package rag answers natural-language questions about stored
// vulnerabilities by retrieving the nearest records from the vector index
// and grounding a completion call on them.
//
// A query moves through fixed stages: embed the query, retrieve candidate
// vectors, hydrate candidates into full records, generate an answer.
// Every stage failure is absorbed into the returned Result rather than
// surfaced as an error; the only rejected input is an empty query.
package rag

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/secsage/vulnsage/internal/store"
	"github.com/secsage/vulnsage/internal/vector"
)

// DefaultK is the number of records retrieved when the caller does not
// ask for a specific count.
const DefaultK = 5

// DefaultTemperature keeps answers close to the retrieved context.
const DefaultTemperature float32 = 0.5

const (
	// noMatchesAnswer is returned when retrieval finds nothing; the
	// completion service is never called with an empty context.
	noMatchesAnswer = "I could not find any vulnerability data matching your question. " +
		"Try rephrasing it or ingest more advisories first."

	// fallbackAnswer is returned when generation fails after retrieval
	// succeeded. The sources are still returned so they are not lost.
	fallbackAnswer = "I found relevant vulnerability records but could not generate a " +
		"summary right now. Please review the sources directly."
)

// ErrEmptyQuery rejects blank input before any external call is made.
var ErrEmptyQuery = errors.New("query must not be empty")

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Completer generates text from a system instruction and a prompt.
type Completer interface {
	Complete(ctx context.Context, system, prompt string, temperature float32) (string, error)
}

// Index performs nearest-neighbor search over stored vectors.
type Index interface {
	Query(ctx context.Context, vec []float32, k int) ([]vector.Match, error)
}

// Records resolves vulnerability ids to full records.
type Records interface {
	Get(ctx context.Context, id string) (store.Record, error)
}

// Result is the outcome of one query cycle. Sources are ordered
// nearest-first, matching the vector index result order.
type Result struct {
	Answer  string         `json:"answer"`
	Sources []store.Record `json:"sources"`
}

// Config tunes the engine. Zero values fall back to the defaults above.
type Config struct {
	DefaultK    int
	Temperature float32
}

// Engine runs the retrieval-augmented query cycle.
type Engine struct {
	embedder    Embedder
	completer   Completer
	index       Index
	records     Records
	defaultK    int
	temperature float32
	logger      *slog.Logger
}

// NewEngine creates a query engine.
func NewEngine(embedder Embedder, completer Completer, index Index, records Records,
	cfg Config, logger *slog.Logger) (*Engine, error) {
	if embedder == nil || completer == nil || index == nil || records == nil {
		return nil, errors.New("embedder, completer, index and records are required")
	}
	if cfg.DefaultK <= 0 {
		cfg.DefaultK = DefaultK
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultTemperature
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder:    embedder,
		completer:   completer,
		index:       index,
		records:     records,
		defaultK:    cfg.DefaultK,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Answer runs one full query cycle and always returns a usable Result.
// External-call failures degrade the answer instead of failing the
// request; only an empty query is an error.
func (e *Engine) Answer(ctx context.Context, query string, k int) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if k <= 0 {
		k = e.defaultK
	}

	vec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		// No query vector means no retrieval; there are no sources to
		// salvage at this point.
		e.logger.Error("query embedding failed", "error", err)
		return Result{Answer: fallbackAnswer, Sources: []store.Record{}}, nil
	}

	matches, err := e.index.Query(ctx, vec, k)
	if err != nil {
		e.logger.Error("vector query failed", "error", err)
		return Result{Answer: fallbackAnswer, Sources: []store.Record{}}, nil
	}
	if len(matches) == 0 {
		return Result{Answer: noMatchesAnswer, Sources: []store.Record{}}, nil
	}

	sources := e.hydrate(ctx, matches)
	if len(sources) == 0 {
		// Every candidate was a stale reference; same outcome as an
		// empty retrieval, and the completion service is not called.
		return Result{Answer: noMatchesAnswer, Sources: []store.Record{}}, nil
	}

	prompt := renderPrompt(query, renderContext(sources))
	answer, err := e.completer.Complete(ctx, systemInstruction, prompt, e.temperature)
	if err != nil {
		e.logger.Error("answer generation failed", "error", err, "sources", len(sources))
		return Result{Answer: fallbackAnswer, Sources: sources}, nil
	}

	return Result{Answer: answer, Sources: sources}, nil
}

// hydrate resolves matches to full records, preserving the index's
// nearest-first order. Stale references are skipped, never fatal.
func (e *Engine) hydrate(ctx context.Context, matches []vector.Match) []store.Record {
	sources := make([]store.Record, 0, len(matches))
	for _, m := range matches {
		rec, err := e.records.Get(ctx, m.Metadata.VulnerabilityID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				e.logger.Warn("stale vector reference skipped",
					"vector_id", m.VectorID, "vulnerability_id", m.Metadata.VulnerabilityID)
			} else {
				e.logger.Error("record lookup failed",
					"vulnerability_id", m.Metadata.VulnerabilityID, "error", err)
			}
			continue
		}
		sources = append(sources, rec)
	}
	return sources
}
