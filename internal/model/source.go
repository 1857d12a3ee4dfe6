package model

import (
	"net/url"
	"strings"
	"unicode/utf8"
)

// ContentType tags how a source's text is extracted.
type ContentType string

const (
	ContentHTML    ContentType = "html"
	ContentPDF     ContentType = "pdf"
	ContentUnknown ContentType = "unknown"
	ContentInline  ContentType = "inline"
)

// SourceCandidate is one ranked search result for a Candidate. Rank is
// 1-based and determines trial order.
type SourceCandidate struct {
	URL         string      `json:"url"`
	Rank        int         `json:"rank"`
	ContentType ContentType `json:"content_type"`
	Title       string      `json:"title,omitempty"`
	Snippet     string      `json:"snippet,omitempty"`

	// Text is the document body of an inline source.
	Text string `json:"-"`
}

// InferContentType guesses the content type from a URL. Any URL that
// mentions ".pdf" is treated as a PDF, matching how document hosts often
// append query strings after the extension.
func InferContentType(raw string) ContentType {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ContentUnknown
	}
	if strings.Contains(strings.ToLower(u.Path), ".pdf") || strings.Contains(strings.ToLower(u.RawQuery), ".pdf") {
		return ContentPDF
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return ContentHTML
	}
	return ContentUnknown
}

// NormalizedContent is plain text extracted from a source.
type NormalizedContent struct {
	URL         string      `json:"url"`
	ContentType ContentType `json:"content_type"`
	Text        string      `json:"-"`
	Length      int         `json:"length"`
}

// NewNormalizedContent builds content with its length measured by TextLength.
func NewNormalizedContent(rawURL string, ct ContentType, text string) *NormalizedContent {
	return &NormalizedContent{
		URL:         rawURL,
		ContentType: ct,
		Text:        text,
		Length:      TextLength(text),
	}
}

// TextLength is the single length measure used for every budget check:
// the number of Unicode code points in s.
func TextLength(s string) int {
	return utf8.RuneCountInString(s)
}
