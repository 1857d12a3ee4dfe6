package scrape

import (
	"context"
	"io"
	"mime"
	"net"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sells-group/bioextract/internal/config"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/resilience"
)

// ErrPDFResponse is returned when an HTML fetch is answered with a PDF.
var ErrPDFResponse = eris.New("scrape: response is a pdf")

// Elements whose text never belongs to the page body.
const strippedTags = "script, style, noscript, nav, header, footer, iframe, svg, form, template"

// LocalScraper fetches HTML via net/http, detects blocks, and converts the
// visible body to normalized plain text. Free, no API calls.
type LocalScraper struct {
	client    *http.Client
	userAgent string
	maxBody   int64
}

// NewLocalScraper creates a LocalScraper from the fetch config.
func NewLocalScraper(cfg config.FetchConfig) *LocalScraper {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 4 << 20
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; BioExtract/1.0)"
	}
	return &LocalScraper{
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
				MaxIdleConnsPerHost: 4,
			},
		},
		userAgent: ua,
		maxBody:   maxBody,
	}
}

func (l *LocalScraper) Name() string           { return "local_http" }
func (l *LocalScraper) Supports(_ string) bool { return true }

// Scrape fetches a URL and returns its visible text.
func (l *LocalScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: create request")
	}
	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/pdf;q=0.9,*/*;q=0.8")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "local_http: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if isPDFResponse(resp) {
		return nil, ErrPDFResponse
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "local_http: read body")
	}

	if blocked, kind := DetectBlock(resp, body); blocked {
		return nil, eris.Errorf("local_http: blocked (%s)", kind)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.HTTPError("local_http", resp.StatusCode, nil)
	}

	decoded, err := decodeBody(resp.Header.Get("Content-Type"), body)
	if err != nil {
		return nil, err
	}

	title, text, err := htmlText(decoded)
	if err != nil {
		return nil, err
	}

	finalURL := targetURL
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	return &Result{
		URL:         finalURL,
		Title:       title,
		Text:        text,
		ContentType: model.ContentHTML,
		StatusCode:  resp.StatusCode,
		Source:      "local_http",
	}, nil
}

func isPDFResponse(resp *http.Response) bool {
	mt, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if err != nil {
		return false
	}
	return mt == "application/pdf" || mt == "application/x-pdf"
}

// decodeBody converts the body to UTF-8 using the declared charset. Bodies
// without a charset that are not valid UTF-8 are read as windows-1252, the
// HTML default.
func decodeBody(contentType string, body []byte) (string, error) {
	var label string
	if _, params, err := mime.ParseMediaType(contentType); err == nil {
		label = params["charset"]
	}
	if label == "" {
		if utf8.Valid(body) {
			return string(body), nil
		}
		label = "windows-1252"
	}

	enc, err := htmlindex.Get(label)
	if err != nil {
		// Unknown label: keep the bytes as they are.
		return string(body), nil
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		return string(body), nil
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return "", eris.Wrapf(err, "local_http: decode %s body", label)
	}
	return string(out), nil
}

// htmlText parses a document and returns its title and normalized body text.
func htmlText(doc string) (string, string, error) {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return "", "", eris.Wrap(err, "local_http: parse html")
	}

	title := strings.TrimSpace(d.Find("title").First().Text())

	d.Find(strippedTags).Remove()
	root := d.Find("body")
	if root.Length() == 0 {
		root = d.Selection
	}
	return title, normalizeText(visibleText(root)), nil
}

// visibleText joins text nodes, separating element boundaries with spaces
// so block content never runs together.
func visibleText(sel *goquery.Selection) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			sb.WriteString(n.Data)
		case html.ElementNode:
			sb.WriteByte(' ')
		case html.CommentNode:
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode {
			sb.WriteByte(' ')
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return sb.String()
}
