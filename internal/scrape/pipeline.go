// Package scrape implements the ingestion pipeline: fetching source
// listing pages, extracting and normalizing vulnerability records,
// persisting them, and indexing one embedding per record.
//
// Failures are contained per page and per record. A page that cannot be
// fetched yields zero records and the run moves on; a record whose
// embedding fails stays retrievable by structured search and is picked up
// by a later Reindex run. The run itself always completes and reports
// totals.
package scrape

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/secsage/vulnsage/internal/store"
	"github.com/secsage/vulnsage/internal/vector"
)

// PageSource fetches raw source content.
type PageSource interface {
	Page(ctx context.Context, page int) ([]byte, error)
	Detail(ctx context.Context, path string) ([]byte, error)
}

// RecordStore is the slice of the record store the pipeline writes to.
type RecordStore interface {
	Upsert(ctx context.Context, rec store.Record) error
	UpsertEmbeddingRef(ctx context.Context, vulnID, vectorID string) error
	ListUnembedded(ctx context.Context, limit int) ([]store.Record, error)
}

// Embedder converts text into a fixed-length vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Index stores embeddings for similarity search.
type Index interface {
	Upsert(ctx context.Context, vectorID string, vec []float32, meta vector.Metadata) error
}

// Stats reports what one ingestion run saw and kept.
type Stats struct {
	Fetched int `json:"fetched"`
	Stored  int `json:"stored"`
}

// Pipeline drives fetch → parse → normalize → upsert → embed+index.
type Pipeline struct {
	source    PageSource
	records   RecordStore
	embedder  Embedder
	index     Index
	selectors Selectors
	logger    *slog.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(source PageSource, records RecordStore, embedder Embedder, index Index,
	selectors Selectors, logger *slog.Logger) (*Pipeline, error) {
	if source == nil || records == nil || embedder == nil || index == nil {
		return nil, fmt.Errorf("source, records, embedder and index are required")
	}
	if selectors.Row == "" {
		selectors = DefaultSelectors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		source:    source,
		records:   records,
		embedder:  embedder,
		index:     index,
		selectors: selectors,
		logger:    logger,
	}, nil
}

// Run ingests pages 1..pages sequentially and returns totals. Page and
// record failures are logged and skipped; only context cancellation ends
// the run early, and even then the partial totals are returned.
func (p *Pipeline) Run(ctx context.Context, pages int) (Stats, error) {
	var stats Stats
	if pages <= 0 {
		return stats, fmt.Errorf("page count must be positive, got %d", pages)
	}

	p.logger.Info("ingestion run starting", "pages", pages)
	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		content, err := p.source.Page(ctx, page)
		if err != nil {
			p.logger.Warn("page skipped", "page", page, "error", err)
			continue
		}

		candidates, err := ParseListing(content, p.selectors)
		if err != nil {
			p.logger.Warn("page unparseable", "page", page, "error", err)
			continue
		}
		p.logger.Info("page parsed", "page", page, "candidates", len(candidates))

		for _, candidate := range candidates {
			stats.Fetched++
			if p.ingest(ctx, candidate) {
				stats.Stored++
			}
		}
	}

	p.logger.Info("ingestion run completed", "fetched", stats.Fetched, "stored", stats.Stored)
	return stats, nil
}

// ingest normalizes, enriches, persists and indexes one candidate.
// Returns whether the record was stored; indexing failures do not undo a
// successful store.
func (p *Pipeline) ingest(ctx context.Context, candidate Candidate) bool {
	rec, err := Normalize(candidate)
	if err != nil {
		p.logger.Warn("candidate dropped", "id", candidate.ID, "reason", err)
		return false
	}

	if candidate.DetailPath != "" && (rec.AffectedVersions == "" || rec.Remediation == "") {
		p.enrichFromDetail(ctx, &rec, candidate.DetailPath)
	}

	if err := p.records.Upsert(ctx, rec); err != nil {
		p.logger.Error("record not stored", "id", rec.ID, "error", err)
		return false
	}

	if err := p.embedAndIndex(ctx, rec); err != nil {
		// Degrade, don't abort: the record stays retrievable by
		// structured search until a later run indexes it.
		p.logger.Warn("record stored but not indexed", "id", rec.ID, "error", err)
	}
	return true
}

// enrichFromDetail fetches the record's detail page and fills in whichever
// optional fields the listing row did not provide. Detail failures leave
// the record as-is.
func (p *Pipeline) enrichFromDetail(ctx context.Context, rec *store.Record, path string) {
	content, err := p.source.Detail(ctx, path)
	if err != nil {
		p.logger.Warn("detail page skipped", "id", rec.ID, "error", err)
		return
	}
	detail, err := ParseDetail(content)
	if err != nil {
		p.logger.Warn("detail page unparseable", "id", rec.ID, "error", err)
		return
	}
	if detail.AffectedVersions != "" {
		rec.AffectedVersions = detail.AffectedVersions
	}
	if rec.Remediation == "" && detail.Remediation != "" {
		rec.Remediation = detail.Remediation
	}
}

// embedAndIndex writes the record's vector and then its embedding
// reference. The order is load-bearing: the ref row is only written after
// the vector write succeeds, so a ref never dangles.
func (p *Pipeline) embedAndIndex(ctx context.Context, rec store.Record) error {
	vec, err := p.embedder.Embed(ctx, EmbeddingText(rec))
	if err != nil {
		return fmt.Errorf("embedding record %q: %w", rec.ID, err)
	}

	vectorID := VectorIDFor(rec.ID)
	meta := vector.Metadata{
		VulnerabilityID: rec.ID,
		Package:         rec.Package,
		Severity:        rec.Severity,
	}
	if err := p.index.Upsert(ctx, vectorID, vec, meta); err != nil {
		return fmt.Errorf("indexing record %q: %w", rec.ID, err)
	}
	if err := p.records.UpsertEmbeddingRef(ctx, rec.ID, vectorID); err != nil {
		return fmt.Errorf("recording embedding ref for %q: %w", rec.ID, err)
	}
	return nil
}

// Reindex embeds stored records that have no embedding reference yet.
// Returns how many were indexed and how many failed.
func (p *Pipeline) Reindex(ctx context.Context, limit int) (indexed, failed int, err error) {
	records, err := p.records.ListUnembedded(ctx, limit)
	if err != nil {
		return 0, 0, fmt.Errorf("listing unembedded records: %w", err)
	}

	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return indexed, failed, err
		}
		if err := p.embedAndIndex(ctx, rec); err != nil {
			p.logger.Warn("reindex failed for record", "id", rec.ID, "error", err)
			failed++
			continue
		}
		indexed++
	}
	p.logger.Info("reindex completed", "indexed", indexed, "failed", failed)
	return indexed, failed, nil
}

// VectorIDFor derives the vector index key for a record id.
func VectorIDFor(recordID string) string {
	return "vuln_" + recordID
}

// EmbeddingText renders the record fields the embedding should capture,
// in a fixed order so repeated runs produce identical input text.
func EmbeddingText(rec store.Record) string {
	text := fmt.Sprintf("ID: %s\nPackage: %s\nSeverity: %s\nDescription: %s",
		rec.ID, rec.Package, rec.Severity, rec.Description)
	if rec.AffectedVersions != "" {
		text += "\nAffected Versions: " + rec.AffectedVersions
	}
	if rec.Remediation != "" {
		text += "\nRemediation: " + rec.Remediation
	}
	return text
}
