package scrape

import "strings"

// footerMarker starts the boilerplate that closes many government pages,
// often followed by long unbroken strings.
const footerMarker = "accessibility"

// Excerpt narrows normalized text to at most words words starting at the
// first occurrence of the earliest matching term. Terms are tried in order.
// The window ends early after a footer marker. The result is false when no
// term occurs in the text. A non-positive words returns text unchanged.
func Excerpt(text string, terms []string, words int) (string, bool) {
	if words <= 0 {
		return text, true
	}
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" {
			continue
		}
		idx := strings.Index(text, term)
		if idx < 0 {
			continue
		}
		return window(text[idx:], words), true
	}
	return "", false
}

func window(text string, words int) string {
	fields := strings.Fields(text)
	if len(fields) > words {
		fields = fields[:words]
	}
	for i, f := range fields {
		if f == footerMarker {
			fields = fields[:i+1]
			break
		}
	}
	return strings.Join(fields, " ")
}
