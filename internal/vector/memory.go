package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// Memory is an in-process vector index with the same contract as PGIndex.
// It ranks by cosine distance and is primarily used in tests; nothing is
// persisted across restarts.
//
// Memory is safe for concurrent use by multiple goroutines.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

type memoryEntry struct {
	vec  []float32
	meta Metadata
}

// NewMemory creates an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]memoryEntry)}
}

// Upsert stores or replaces the vector and metadata for vectorID.
func (m *Memory) Upsert(_ context.Context, vectorID string, vec []float32, meta Metadata) error {
	if len(vec) == 0 {
		return fmt.Errorf("vector %q is empty", vectorID)
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[vectorID] = memoryEntry{vec: stored, meta: meta}
	return nil
}

// Query returns up to k nearest neighbors of vec by cosine distance,
// nearest first. Fewer than k stored vectors yields fewer results.
func (m *Memory) Query(_ context.Context, vec []float32, k int) ([]Match, error) {
	if k <= 0 {
		return nil, nil
	}

	m.mu.RLock()
	matches := make([]Match, 0, len(m.entries))
	for id, entry := range m.entries {
		matches = append(matches, Match{
			VectorID: id,
			Metadata: entry.meta,
			Distance: cosineDistance(vec, entry.vec),
		})
	}
	m.mu.RUnlock()

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Distance != matches[j].Distance {
			return matches[i].Distance < matches[j].Distance
		}
		return matches[i].VectorID < matches[j].VectorID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// Count returns the number of stored vectors.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries), nil
}

// cosineDistance matches pgvector's <=> operator: 1 - cosine similarity.
// Mismatched or zero-magnitude vectors rank last.
func cosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}
