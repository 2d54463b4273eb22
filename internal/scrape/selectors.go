package scrape

// Selectors locates listing fields in the source page. The source layout
// is a contract this package assumes, not discovers; the set is
// configuration so a layout change is a config tune, not a code change.
type Selectors struct {
	// Row matches one listing row per vulnerability.
	Row string

	// IDLink matches the anchor whose href carries the vulnerability id
	// as its last path segment.
	IDLink string

	// Severity matches the element holding the abbreviated severity
	// letter (C, H, M, L).
	Severity string

	// Title matches the anchor holding the vulnerability description.
	Title string

	// Package matches the anchor holding the package name.
	Package string

	// Semver matches the affected-versions cell, when present.
	Semver string

	// Date matches the published-date cell.
	Date string
}

// DefaultSelectors matches the Snyk pip listing layout.
func DefaultSelectors() Selectors {
	return Selectors{
		Row:      ".vulns-table tbody tr",
		IDLink:   `a[href^="/vuln/"]`,
		Severity: ".severity__text",
		Title:    `a[data-snyk-cy-test="vuln table title"]`,
		Package:  `a[data-snyk-test-package-manager="pip"]`,
		Semver:   ".vulns-table__semver",
		Date:     ".table__data-cell--last-column",
	}
}

// detailStrategy is one attempt at extracting a field from a detail page.
// Strategies run in order; the first that yields a non-empty value wins.
type detailStrategy struct {
	name     string
	selector string
}

// affectedVersionStrategies is the fallback chain for the affected-versions
// field on detail pages.
var affectedVersionStrategies = []detailStrategy{
	{"vulnerable-versions", ".vulnerable-versions"},
	{"affected-versions", ".affected-versions"},
	{"vulnerability-versions", ".vulnerability-versions"},
	{"version-info", ".version-info"},
}

// remediationStrategies is the fallback chain for the remediation field.
// ParseDetail additionally falls back to scanning paragraphs for
// fix/upgrade wording when none of these match.
var remediationStrategies = []detailStrategy{
	{"remediation", ".remediation"},
	{"remediation-info", ".remediation-info"},
	{"remediation-action", ".remediation-action"},
	{"fix-info", ".fix-info"},
}
