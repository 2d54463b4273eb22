package vector_test

import (
	"context"
	"testing"

	"github.com/secsage/vulnsage/internal/log"
	"github.com/secsage/vulnsage/internal/testutil"
	"github.com/secsage/vulnsage/internal/vector"
)

// unitVec returns a 768-dim unit vector pointing along the given axis.
func unitVec(axis int) []float32 {
	v := make([]float32, vector.Dimension)
	v[axis%vector.Dimension] = 1
	return v
}

// blendVec returns a 768-dim vector between two axes; closer to axis a
// for larger weight.
func blendVec(a, b int, weight float32) []float32 {
	v := make([]float32, vector.Dimension)
	v[a%vector.Dimension] = weight
	v[b%vector.Dimension] = 1 - weight
	return v
}

func setupPGIndex(t *testing.T) (*vector.PGIndex, context.Context) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	idx, err := vector.NewPGIndex(db.Pool, log.NewNop())
	if err != nil {
		t.Fatalf("creating index failed: %v", err)
	}
	return idx, context.Background()
}

func TestPGIndexQueryOrderingIntegration(t *testing.T) {
	idx, ctx := setupPGIndex(t)

	entries := map[string][]float32{
		"vuln_A": unitVec(0),
		"vuln_B": blendVec(0, 1, 0.7),
		"vuln_C": unitVec(1),
	}
	for id, vec := range entries {
		err := idx.Upsert(ctx, id, vec, vector.Metadata{VulnerabilityID: id})
		if err != nil {
			t.Fatalf("Upsert(%s) failed: %v", id, err)
		}
	}

	matches, err := idx.Query(ctx, unitVec(0), 3)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 3 {
		t.Fatalf("got %d matches, want 3", len(matches))
	}
	if matches[0].VectorID != "vuln_A" || matches[1].VectorID != "vuln_B" || matches[2].VectorID != "vuln_C" {
		t.Errorf("order = [%s %s %s], want nearest-first A B C",
			matches[0].VectorID, matches[1].VectorID, matches[2].VectorID)
	}
	if matches[0].Distance > matches[1].Distance || matches[1].Distance > matches[2].Distance {
		t.Errorf("distances not ascending: %v %v %v",
			matches[0].Distance, matches[1].Distance, matches[2].Distance)
	}
	if matches[0].Metadata.VulnerabilityID != "vuln_A" {
		t.Errorf("metadata = %+v", matches[0].Metadata)
	}
}

func TestPGIndexFewerThanKIntegration(t *testing.T) {
	idx, ctx := setupPGIndex(t)

	err := idx.Upsert(ctx, "vuln_only", unitVec(0), vector.Metadata{VulnerabilityID: "vuln_only"})
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	matches, err := idx.Query(ctx, unitVec(0), 5)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 {
		t.Errorf("got %d matches, want 1 (fewer than k is not an error)", len(matches))
	}
}

func TestPGIndexUpsertReplacesIntegration(t *testing.T) {
	idx, ctx := setupPGIndex(t)

	if err := idx.Upsert(ctx, "vuln_X", unitVec(0), vector.Metadata{VulnerabilityID: "vuln_X"}); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if err := idx.Upsert(ctx, "vuln_X", unitVec(1), vector.Metadata{VulnerabilityID: "vuln_X", Package: "django"}); err != nil {
		t.Fatalf("second Upsert failed: %v", err)
	}

	count, err := idx.Count(ctx)
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 1 {
		t.Errorf("count = %d, want 1 after replace", count)
	}

	matches, err := idx.Query(ctx, unitVec(1), 1)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(matches) != 1 || matches[0].Metadata.Package != "django" {
		t.Errorf("matches = %+v, want replaced vector and metadata", matches)
	}
}

func TestPGIndexRejectsWrongDimensionIntegration(t *testing.T) {
	idx, ctx := setupPGIndex(t)

	err := idx.Upsert(ctx, "vuln_bad", []float32{1, 0, 0}, vector.Metadata{VulnerabilityID: "vuln_bad"})
	if err == nil {
		t.Fatal("expected error for wrong-dimension vector")
	}
}
