package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
)

// Candidate is one unnormalized listing row. Field text is raw source
// text; Normalize turns a Candidate into a store.Record or rejects it.
type Candidate struct {
	ID               string
	Package          string
	Severity         string
	Description      string
	PublishedDate    string
	AffectedVersions string
	Remediation      string

	// DetailPath is the source-relative path of the per-record detail
	// page, when the listing row links to one.
	DetailPath string
}

// ParseListing extracts one candidate per listing row from raw page
// content. Rows that do not match the selectors at all are skipped; field
// validation belongs to Normalize, not here.
func ParseListing(content []byte, sel Selectors) ([]Candidate, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("parsing listing HTML: %w", err)
	}

	var candidates []Candidate
	doc.Find(sel.Row).Each(func(_ int, row *goquery.Selection) {
		candidates = append(candidates, parseRow(row, sel))
	})
	return candidates, nil
}

// parseRow extracts raw fields from one listing row. A row without an id
// link gets a generated id so the record is still addressable.
func parseRow(row *goquery.Selection, sel Selectors) Candidate {
	var c Candidate

	if link := row.Find(sel.IDLink).First(); link.Length() > 0 {
		href, _ := link.Attr("href")
		c.DetailPath = href
		if i := strings.LastIndex(href, "/"); i >= 0 {
			c.ID = href[i+1:]
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}

	c.Severity = strings.TrimSpace(row.Find(sel.Severity).First().Text())
	c.Description = strings.TrimSpace(row.Find(sel.Title).First().Text())
	c.Package = strings.TrimSpace(row.Find(sel.Package).First().Text())
	c.AffectedVersions = strings.TrimSpace(row.Find(sel.Semver).First().Text())
	c.PublishedDate = strings.TrimSpace(row.Find(sel.Date).First().Text())
	return c
}
