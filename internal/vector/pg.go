package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

const upsertVectorSQL = `INSERT INTO vuln_vectors (vector_id, metadata, embedding)
	VALUES ($1, $2, $3)
	ON CONFLICT (vector_id) DO UPDATE SET
		metadata = EXCLUDED.metadata,
		embedding = EXCLUDED.embedding`

// queryVectorsSQL orders by cosine distance, nearest first. LIMIT handles
// the fewer-than-k case naturally: an index holding fewer vectors simply
// returns fewer rows.
const queryVectorsSQL = `SELECT vector_id, metadata, embedding <=> $1 AS distance
	FROM vuln_vectors
	ORDER BY distance
	LIMIT $2`

// PGIndex is a vector index backed by PostgreSQL + pgvector.
//
// PGIndex is safe for concurrent use by multiple goroutines.
type PGIndex struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPGIndex creates a pgvector-backed index.
func NewPGIndex(pool *pgxpool.Pool, logger *slog.Logger) (*PGIndex, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PGIndex{pool: pool, logger: logger}, nil
}

// Upsert stores or replaces the vector and metadata for vectorID.
func (x *PGIndex) Upsert(ctx context.Context, vectorID string, vec []float32, meta Metadata) error {
	if len(vec) != Dimension {
		return fmt.Errorf("vector %q has dimension %d, want %d", vectorID, len(vec), Dimension)
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling vector metadata: %w", err)
	}
	embedding := pgvector.NewVector(vec)
	if _, err := x.pool.Exec(ctx, upsertVectorSQL, vectorID, metaJSON, embedding); err != nil {
		return fmt.Errorf("upserting vector %q: %w", vectorID, err)
	}
	x.logger.Debug("vector upserted", "vector_id", vectorID)
	return nil
}

// Query returns up to k nearest neighbors of vec, nearest first. An index
// holding fewer than k vectors returns fewer results, never an error.
func (x *PGIndex) Query(ctx context.Context, vec []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}
	embedding := pgvector.NewVector(vec)
	rows, err := x.pool.Query(ctx, queryVectorsSQL, embedding, k)
	if err != nil {
		return nil, fmt.Errorf("querying vectors: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var (
			m        Match
			metaJSON []byte
		)
		if err := rows.Scan(&m.VectorID, &metaJSON, &m.Distance); err != nil {
			return nil, fmt.Errorf("scanning vector row: %w", err)
		}
		if err := json.Unmarshal(metaJSON, &m.Metadata); err != nil {
			x.logger.Warn("unparseable vector metadata", "vector_id", m.VectorID, "error", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vector rows: %w", err)
	}
	return matches, nil
}

// Count returns the number of stored vectors.
func (x *PGIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := x.pool.QueryRow(ctx, `SELECT COUNT(*) FROM vuln_vectors`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting vectors: %w", err)
	}
	return count, nil
}
