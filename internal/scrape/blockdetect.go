package scrape

import (
	"bytes"
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// Challenge pages are small. Larger bodies that merely embed a captcha
// widget (contact forms, comment boxes) are real content.
const challengeMaxBody = 32 << 10

var blockMarkers = []struct {
	kind    BlockType
	markers [][]byte
}{
	{BlockCloudflare, [][]byte{
		[]byte("checking your browser"),
		[]byte("cf-browser-verification"),
		[]byte("cf-challenge"),
		[]byte("just a moment..."),
	}},
	{BlockCaptcha, [][]byte{
		[]byte("g-recaptcha"),
		[]byte("h-captcha"),
		[]byte("captcha"),
	}},
}

// DetectBlock reports whether a response is an anti-bot interstitial
// rather than the requested page.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	switch resp.StatusCode {
	case http.StatusForbidden, http.StatusServiceUnavailable, http.StatusTooManyRequests:
		if resp.Header.Get("Cf-Ray") != "" || resp.Header.Get("Cf-Mitigated") != "" ||
			strings.EqualFold(resp.Header.Get("Server"), "cloudflare") {
			return true, BlockCloudflare
		}
	}

	if len(body) > challengeMaxBody {
		return false, BlockNone
	}

	lower := bytes.ToLower(body)
	for _, group := range blockMarkers {
		for _, m := range group.markers {
			if bytes.Contains(lower, m) {
				return true, group.kind
			}
		}
	}

	if len(body) < 2048 {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("enable javascript")) {
			return true, BlockJSShell
		}
		if bytes.Contains(lower, []byte(`http-equiv="refresh"`)) {
			return true, BlockJSShell
		}
	}

	return false, BlockNone
}
