package scrape

import (
	"errors"
	"fmt"
	"strings"

	"github.com/secsage/vulnsage/internal/store"
)

// ErrIncomplete marks a candidate that failed required-field validation.
// Such candidates are dropped with a logged reason, never persisted.
var ErrIncomplete = errors.New("incomplete candidate")

// severityByCode maps source severity spellings (single letters on listing
// rows, full words elsewhere) to canonical casing. Lookup keys are upper case.
var severityByCode = map[string]string{
	"C":        store.SeverityCritical,
	"H":        store.SeverityHigh,
	"M":        store.SeverityMedium,
	"L":        store.SeverityLow,
	"CRITICAL": store.SeverityCritical,
	"HIGH":     store.SeverityHigh,
	"MEDIUM":   store.SeverityMedium,
	"LOW":      store.SeverityLow,
}

// Normalize validates a candidate and converts it into a store.Record.
// Whitespace is trimmed, the severity code is mapped to its canonical
// name, and the required fields (package, severity, description,
// published date) must be non-empty. Failures wrap ErrIncomplete.
func Normalize(c Candidate) (store.Record, error) {
	rec := store.Record{
		ID:               strings.TrimSpace(c.ID),
		Package:          strings.TrimSpace(c.Package),
		Description:      strings.TrimSpace(c.Description),
		PublishedDate:    strings.TrimSpace(c.PublishedDate),
		AffectedVersions: strings.TrimSpace(c.AffectedVersions),
		Remediation:      strings.TrimSpace(c.Remediation),
	}

	if rec.ID == "" {
		return store.Record{}, fmt.Errorf("%w: missing id", ErrIncomplete)
	}
	if rec.Package == "" {
		return store.Record{}, fmt.Errorf("%w: %q has empty package", ErrIncomplete, rec.ID)
	}
	if rec.Description == "" {
		return store.Record{}, fmt.Errorf("%w: %q has empty description", ErrIncomplete, rec.ID)
	}
	if rec.PublishedDate == "" {
		return store.Record{}, fmt.Errorf("%w: %q has empty published date", ErrIncomplete, rec.ID)
	}

	severity, err := NormalizeSeverity(c.Severity)
	if err != nil {
		return store.Record{}, fmt.Errorf("%w: %q: %v", ErrIncomplete, rec.ID, err)
	}
	rec.Severity = severity
	return rec, nil
}

// NormalizeSeverity maps a source severity code or name to its canonical
// form, case-insensitively. Unknown values are an error: a record with a
// severity outside the enumerated set is not complete.
func NormalizeSeverity(raw string) (string, error) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	if key == "" {
		return "", fmt.Errorf("empty severity")
	}
	severity, ok := severityByCode[key]
	if !ok {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return severity, nil
}
