// Package store implements the durable record store for vulnerability
// records, backed by PostgreSQL via pgx.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a record or embedding reference does not exist.
var ErrNotFound = errors.New("not found")

// recordCols is the standard SELECT column list for scanRecords.
const recordCols = `id, package, severity, description, published_date,
	affected_versions, remediation, created_at`

// upsertRecordSQL keeps created_at from the first insert; all other fields
// take the incoming values (overwrite-on-conflict for freshness).
const upsertRecordSQL = `INSERT INTO vulnerabilities
	(id, package, severity, description, published_date, affected_versions, remediation)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (id) DO UPDATE SET
		package = EXCLUDED.package,
		severity = EXCLUDED.severity,
		description = EXCLUDED.description,
		published_date = EXCLUDED.published_date,
		affected_versions = EXCLUDED.affected_versions,
		remediation = EXCLUDED.remediation`

const upsertRefSQL = `INSERT INTO embedding_refs (vulnerability_id, vector_id)
	VALUES ($1, $2)
	ON CONFLICT (vulnerability_id) DO UPDATE SET vector_id = EXCLUDED.vector_id`

// Store manages vulnerability records and embedding references.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New creates a record Store.
func New(pool *pgxpool.Pool, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}, nil
}

// Connect opens a pgx connection pool and verifies connectivity.
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return pool, nil
}

// Upsert inserts or replaces a record by id. Re-ingesting the same id
// overwrites all fields except created_at, which is set once on first
// insert and never updated.
func (s *Store) Upsert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx, upsertRecordSQL,
		rec.ID, rec.Package, rec.Severity, rec.Description, rec.PublishedDate,
		nullText(rec.AffectedVersions), nullText(rec.Remediation))
	if err != nil {
		return fmt.Errorf("upserting vulnerability %q: %w", rec.ID, err)
	}
	s.logger.Debug("record upserted", "id", rec.ID, "package", rec.Package)
	return nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordCols+` FROM vulnerabilities WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, fmt.Errorf("vulnerability %q: %w", id, ErrNotFound)
		}
		return Record{}, fmt.Errorf("getting vulnerability %q: %w", id, err)
	}
	return rec, nil
}

// List returns records matching the filter, newest publication first.
func (s *Store) List(ctx context.Context, f Filter) ([]Record, error) {
	query := `SELECT ` + recordCols + ` FROM vulnerabilities`
	args := []any{}

	where := ""
	if f.Package != "" {
		args = append(args, f.Package)
		where = fmt.Sprintf(" WHERE package = $%d", len(args))
	}
	if f.Severity != "" {
		args = append(args, f.Severity)
		if where == "" {
			where = fmt.Sprintf(" WHERE severity = $%d", len(args))
		} else {
			where += fmt.Sprintf(" AND severity = $%d", len(args))
		}
	}
	query += where + " ORDER BY published_date DESC"

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" LIMIT $%d", len(args))
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing vulnerabilities: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// ListUnembedded returns records that have no embedding reference yet,
// oldest first, so interrupted indexing runs can be resumed.
func (s *Store) ListUnembedded(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `SELECT v.id, v.package, v.severity, v.description,
		v.published_date, v.affected_versions, v.remediation, v.created_at
		FROM vulnerabilities v
		LEFT JOIN embedding_refs r ON r.vulnerability_id = v.id
		WHERE r.vulnerability_id IS NULL
		ORDER BY v.created_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing unembedded vulnerabilities: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// Delete removes a record and its embedding reference, if any.
func (s *Store) Delete(ctx context.Context, id string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`DELETE FROM embedding_refs WHERE vulnerability_id = $1`, id); err != nil {
		return fmt.Errorf("deleting embedding ref for %q: %w", id, err)
	}
	tag, err := tx.Exec(ctx, `DELETE FROM vulnerabilities WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting vulnerability %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("vulnerability %q: %w", id, ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing delete: %w", err)
	}
	s.logger.Debug("record deleted", "id", id)
	return nil
}

// UpsertEmbeddingRef records that the vector for vulnID has been written to
// the vector index. Callers must only invoke this after the vector write
// succeeded; the ref row is the durability boundary.
func (s *Store) UpsertEmbeddingRef(ctx context.Context, vulnID, vectorID string) error {
	if _, err := s.pool.Exec(ctx, upsertRefSQL, vulnID, vectorID); err != nil {
		return fmt.Errorf("upserting embedding ref for %q: %w", vulnID, err)
	}
	s.logger.Debug("embedding ref stored", "id", vulnID, "vector_id", vectorID)
	return nil
}

// VectorID returns the vector id recorded for vulnID, or ErrNotFound.
func (s *Store) VectorID(ctx context.Context, vulnID string) (string, error) {
	var vectorID string
	err := s.pool.QueryRow(ctx,
		`SELECT vector_id FROM embedding_refs WHERE vulnerability_id = $1`, vulnID).
		Scan(&vectorID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("embedding ref for %q: %w", vulnID, ErrNotFound)
		}
		return "", fmt.Errorf("getting embedding ref for %q: %w", vulnID, err)
	}
	return vectorID, nil
}

// Count returns the total number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM vulnerabilities`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting vulnerabilities: %w", err)
	}
	return count, nil
}

// CollectStats returns corpus statistics: total count, severity
// distribution and the ten most frequent packages.
func (s *Store) CollectStats(ctx context.Context) (Stats, error) {
	stats := Stats{
		BySeverity:  map[string]int{},
		TopPackages: map[string]int{},
	}

	total, err := s.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.Total = total

	if err := s.countGrouped(ctx,
		`SELECT severity, COUNT(*) FROM vulnerabilities GROUP BY severity`,
		stats.BySeverity); err != nil {
		return Stats{}, fmt.Errorf("severity distribution: %w", err)
	}
	if err := s.countGrouped(ctx,
		`SELECT package, COUNT(*) FROM vulnerabilities
		 GROUP BY package ORDER BY COUNT(*) DESC LIMIT 10`,
		stats.TopPackages); err != nil {
		return Stats{}, fmt.Errorf("package distribution: %w", err)
	}
	return stats, nil
}

func (s *Store) countGrouped(ctx context.Context, sql string, out map[string]int) error {
	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return err
		}
		out[key] = count
	}
	return rows.Err()
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec              Record
		affected, remedy pgtype.Text
		createdAt        pgtype.Timestamptz
	)
	err := row.Scan(&rec.ID, &rec.Package, &rec.Severity, &rec.Description,
		&rec.PublishedDate, &affected, &remedy, &createdAt)
	if err != nil {
		return Record{}, err
	}
	rec.AffectedVersions = affected.String
	rec.Remediation = remedy.String
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time
	}
	return rec, nil
}

func scanRecords(rows pgx.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning vulnerability row: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating vulnerability rows: %w", err)
	}
	return records, nil
}

// nullText maps an empty string to SQL NULL for optional columns.
func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
