// Package vector implements similarity-search storage over embedding
// vectors. The production index is PostgreSQL + pgvector; Memory provides
// the same contract in-process for tests and dependency-free setups.
package vector

// Dimension is the fixed embedding dimensionality used across the system.
// gemini-embedding-001 is truncated to this size via OutputDimensionality,
// and the vuln_vectors schema declares vector(768) to match.
const Dimension = 768

// Metadata is attached to every stored vector. VulnerabilityID is the
// owning record id and is the only field the query path depends on;
// Package and Severity are carried for operator inspection.
type Metadata struct {
	VulnerabilityID string `json:"vulnerability_id"`
	Package         string `json:"package,omitempty"`
	Severity        string `json:"severity,omitempty"`
}

// Match is one nearest-neighbor result. Distance is cosine distance
// (0 = identical direction, 2 = opposite); results are ordered ascending.
type Match struct {
	VectorID string
	Metadata Metadata
	Distance float64
}
