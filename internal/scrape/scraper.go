// Package scrape retrieves source documents and reduces them to plain text.
package scrape

import (
	"context"
	"strings"

	"github.com/sells-group/bioextract/internal/model"
)

// Result holds the text of one retrieved source.
type Result struct {
	URL         string
	Title       string
	Text        string
	ContentType model.ContentType
	StatusCode  int
	Source      string // e.g. "local_http", "jina", "pdftotext"
}

// Scraper fetches a single URL and returns its content.
type Scraper interface {
	Scrape(ctx context.Context, url string) (*Result, error)
	Name() string
	Supports(url string) bool
}

// normalizeText collapses all whitespace runs to single spaces and
// lowercases the result.
func normalizeText(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
