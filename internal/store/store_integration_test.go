package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/secsage/vulnsage/internal/log"
	"github.com/secsage/vulnsage/internal/store"
	"github.com/secsage/vulnsage/internal/testutil"
)

func testRecord(id, pkg string) store.Record {
	return store.Record{
		ID:               id,
		Package:          pkg,
		Severity:         store.SeverityHigh,
		Description:      "SQL injection",
		PublishedDate:    "2024-01-01",
		AffectedVersions: "<4.2.1",
		Remediation:      "Upgrade to 4.2.1 or later.",
	}
}

func setupStore(t *testing.T) (*store.Store, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	s, err := store.New(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("creating store failed: %v", err)
	}
	return s, context.Background()
}

func TestStoreUpsertGetIntegration(t *testing.T) {
	s, ctx := setupStore(t)

	rec := testRecord("SNYK-PY-DJANGO-1", "django")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	got, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Package != "django" || got.Severity != store.SeverityHigh {
		t.Errorf("record = %+v", got)
	}
	if got.CreatedAt.IsZero() {
		t.Error("created_at not set on insert")
	}

	if _, err := s.Get(ctx, "SNYK-PY-MISSING-0"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
}

func TestStoreUpsertIdempotentIntegration(t *testing.T) {
	s, ctx := setupStore(t)

	rec := testRecord("SNYK-PY-DJANGO-1", "django")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("first Upsert failed: %v", err)
	}
	first, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	// Re-ingesting overwrites fields but must keep created_at.
	rec.Description = "SQL injection via QuerySet"
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}
	second, err := s.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if second.Description != "SQL injection via QuerySet" {
		t.Errorf("description not overwritten: %q", second.Description)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed on upsert: %v -> %v", first.CreatedAt, second.CreatedAt)
	}

	count, err := s.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1", count)
	}
}

func TestStoreListFiltersIntegration(t *testing.T) {
	s, ctx := setupStore(t)

	django := testRecord("SNYK-PY-DJANGO-1", "django")
	flask := testRecord("SNYK-PY-FLASK-9", "flask")
	flask.Severity = store.SeverityLow
	for _, rec := range []store.Record{django, flask} {
		if err := s.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	byPackage, err := s.List(ctx, store.Filter{Package: "django"})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(byPackage) != 1 || byPackage[0].ID != django.ID {
		t.Errorf("package filter returned %+v", byPackage)
	}

	bySeverity, err := s.List(ctx, store.Filter{Severity: store.SeverityLow})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(bySeverity) != 1 || bySeverity[0].ID != flask.ID {
		t.Errorf("severity filter returned %+v", bySeverity)
	}

	all, err := s.List(ctx, store.Filter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("unfiltered list returned %d records, want 2", len(all))
	}
}

func TestStoreEmbeddingRefsIntegration(t *testing.T) {
	s, ctx := setupStore(t)

	rec := testRecord("SNYK-PY-DJANGO-1", "django")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	unembedded, err := s.ListUnembedded(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnembedded failed: %v", err)
	}
	if len(unembedded) != 1 {
		t.Fatalf("unembedded = %d, want 1 before ref exists", len(unembedded))
	}

	if err := s.UpsertEmbeddingRef(ctx, rec.ID, "vuln_"+rec.ID); err != nil {
		t.Fatalf("UpsertEmbeddingRef failed: %v", err)
	}

	vectorID, err := s.VectorID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("VectorID failed: %v", err)
	}
	if vectorID != "vuln_SNYK-PY-DJANGO-1" {
		t.Errorf("vector id = %q", vectorID)
	}

	unembedded, err = s.ListUnembedded(ctx, 10)
	if err != nil {
		t.Fatalf("ListUnembedded failed: %v", err)
	}
	if len(unembedded) != 0 {
		t.Errorf("unembedded = %d, want 0 after ref exists", len(unembedded))
	}
}

func TestStoreDeleteIntegration(t *testing.T) {
	s, ctx := setupStore(t)

	rec := testRecord("SNYK-PY-DJANGO-1", "django")
	if err := s.Upsert(ctx, rec); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := s.UpsertEmbeddingRef(ctx, rec.ID, "vuln_"+rec.ID); err != nil {
		t.Fatalf("UpsertEmbeddingRef failed: %v", err)
	}

	if err := s.Delete(ctx, rec.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("record still present after delete")
	}
	if _, err := s.VectorID(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("embedding ref still present after delete")
	}

	if err := s.Delete(ctx, rec.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("second Delete err = %v, want ErrNotFound", err)
	}
}

func TestStoreCollectStatsIntegration(t *testing.T) {
	s, ctx := setupStore(t)

	django := testRecord("SNYK-PY-DJANGO-1", "django")
	django2 := testRecord("SNYK-PY-DJANGO-2", "django")
	flask := testRecord("SNYK-PY-FLASK-9", "flask")
	flask.Severity = store.SeverityMedium
	for _, rec := range []store.Record{django, django2, flask} {
		if err := s.Upsert(ctx, rec); err != nil {
			t.Fatalf("Upsert failed: %v", err)
		}
	}

	stats, err := s.CollectStats(ctx)
	if err != nil {
		t.Fatalf("CollectStats failed: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total = %d, want 3", stats.Total)
	}
	if stats.BySeverity[store.SeverityHigh] != 2 || stats.BySeverity[store.SeverityMedium] != 1 {
		t.Errorf("by_severity = %v", stats.BySeverity)
	}
	if stats.TopPackages["django"] != 2 {
		t.Errorf("top_packages = %v", stats.TopPackages)
	}
}
