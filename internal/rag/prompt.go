package rag

import (
	"fmt"
	"strings"

	"github.com/secsage/vulnsage/internal/store"
)

// systemInstruction pins the model to the retrieved context. Fabricating
// details that are not in the context is explicitly forbidden.
const systemInstruction = "You are a security advisor specializing in Python package " +
	"vulnerabilities. Answer using only the vulnerability data provided in the context. " +
	"If the context does not contain the information needed to answer, say so plainly. " +
	"Never invent vulnerability details, affected versions, or identifiers that are not " +
	"in the context. Cite vulnerability IDs when referencing specific findings."

// contextSeparator divides rendered records inside the context block.
const contextSeparator = "\n---\n"

// renderRecord renders one record into the fixed context template. Every
// field appears every time so the shape of the context never varies.
func renderRecord(rec store.Record) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", rec.ID)
	fmt.Fprintf(&b, "Package: %s\n", rec.Package)
	fmt.Fprintf(&b, "Severity: %s\n", rec.Severity)
	fmt.Fprintf(&b, "Description: %s\n", rec.Description)
	fmt.Fprintf(&b, "Published: %s\n", rec.PublishedDate)
	fmt.Fprintf(&b, "Affected Versions: %s\n", valueOrUnknown(rec.AffectedVersions))
	fmt.Fprintf(&b, "Remediation: %s", valueOrUnknown(rec.Remediation))
	return b.String()
}

// renderContext concatenates records in retrieval order.
func renderContext(records []store.Record) string {
	parts := make([]string, len(records))
	for i, rec := range records {
		parts[i] = renderRecord(rec)
	}
	return strings.Join(parts, contextSeparator)
}

// renderPrompt combines the user's question with the context block.
func renderPrompt(query, context string) string {
	return fmt.Sprintf("Context:\n%s\n\nQuestion: %s\n\nAnswer the question using only the context above.",
		context, query)
}

func valueOrUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
