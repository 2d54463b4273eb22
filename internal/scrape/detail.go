package scrape

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Detail carries the supplemental fields a per-record detail page can
// provide when the listing row lacked them.
type Detail struct {
	AffectedVersions string
	Remediation      string
}

// remediationKeywords trigger the paragraph-scan fallback: the first
// paragraph mentioning any of them is taken as remediation guidance.
var remediationKeywords = []string{"remediate", "fix", "update", "upgrade"}

// ParseDetail extracts supplemental fields from a detail page using the
// prioritized strategy chains. Each chain is tried in order and the first
// strategy yielding a non-empty value wins; remediation additionally falls
// back to scanning paragraphs for fix-related wording. Missing fields are
// returned empty, not as errors.
func ParseDetail(content []byte) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Detail{}, fmt.Errorf("parsing detail HTML: %w", err)
	}

	var d Detail
	d.AffectedVersions = firstMatch(doc, affectedVersionStrategies)
	d.Remediation = firstMatch(doc, remediationStrategies)
	if d.Remediation == "" {
		d.Remediation = scanRemediationParagraph(doc)
	}
	return d, nil
}

// firstMatch runs a strategy chain and returns the first non-empty result.
func firstMatch(doc *goquery.Document, strategies []detailStrategy) string {
	for _, strategy := range strategies {
		if text := strings.TrimSpace(doc.Find(strategy.selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

// scanRemediationParagraph is the last-resort remediation strategy: the
// first paragraph mentioning remediation keywords.
func scanRemediationParagraph(doc *goquery.Document) string {
	var found string
	doc.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.TrimSpace(p.Text())
		lower := strings.ToLower(text)
		for _, keyword := range remediationKeywords {
			if strings.Contains(lower, keyword) {
				found = text
				return false
			}
		}
		return true
	})
	return found
}
