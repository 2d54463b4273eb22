package store

import "time"

// Severity levels in canonical casing. Ingestion normalizes abbreviated
// source codes (C/H/M/L) to these values before anything is persisted.
const (
	SeverityCritical = "Critical"
	SeverityHigh     = "High"
	SeverityMedium   = "Medium"
	SeverityLow      = "Low"
)

// Record is a normalized vulnerability record.
//
// ID is the stable identifier taken from the source listing and is the
// primary key. A Record is complete only when Package, Severity,
// Description and PublishedDate are all non-empty; incomplete records are
// rejected at the normalization boundary and never reach the store.
type Record struct {
	ID               string    `json:"id"`
	Package          string    `json:"package"`
	Severity         string    `json:"severity"`
	Description      string    `json:"description"`
	PublishedDate    string    `json:"published_date"`
	AffectedVersions string    `json:"affected_versions,omitempty"`
	Remediation      string    `json:"remediation,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// EmbeddingRef links a vulnerability to its vector in the vector index.
// A ref row exists if and only if the vector write already succeeded; the
// ref is written strictly after the vector, never before.
type EmbeddingRef struct {
	VulnerabilityID string    `json:"vulnerability_id"`
	VectorID        string    `json:"vector_id"`
	CreatedAt       time.Time `json:"created_at"`
}

// Filter narrows List results. Zero-value fields are ignored.
type Filter struct {
	Package  string
	Severity string
	Limit    int
	Offset   int
}

// Stats summarizes the stored corpus for the stats endpoint.
type Stats struct {
	Total       int            `json:"total"`
	BySeverity  map[string]int `json:"by_severity"`
	TopPackages map[string]int `json:"top_packages"`
}
