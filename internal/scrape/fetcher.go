package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/config"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/ocr"
	"github.com/sells-group/bioextract/pkg/jina"
)

// FetchError is any failure to turn a source into usable text.
type FetchError struct {
	URL  string
	Rank int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Kind returns the failure kind reported for fetch errors.
func (e *FetchError) Kind() model.FailureKind { return model.FailFetch }

// Fetcher dispatches sources to the HTML chain, the PDF scraper or the
// inline document text.
type Fetcher struct {
	html *Chain
	pdf  Scraper
}

// NewFetcher wires a Fetcher from its scrapers.
func NewFetcher(html *Chain, pdf Scraper) *Fetcher {
	return &Fetcher{html: html, pdf: pdf}
}

// NewFetcherFromConfig builds the default fetcher: local HTML with an
// optional Jina reader fallback, and pdftotext for PDFs. reader may be nil.
func NewFetcherFromConfig(cfg config.FetchConfig, reader jina.Client) *Fetcher {
	var fallback Scraper
	if cfg.JinaFallback && reader != nil {
		fallback = NewJinaAdapter(reader)
	}
	return NewFetcher(
		NewChain(NewLocalScraper(cfg), fallback),
		NewPDFScraper(cfg, ocr.NewExtractor(cfg)),
	)
}

// Fetch retrieves the source and returns its normalized text. Every error
// is a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, src model.SourceCandidate) (*model.NormalizedContent, error) {
	res, err := f.fetch(ctx, src)
	if err != nil {
		return nil, &FetchError{URL: src.URL, Rank: src.Rank, Err: err}
	}
	if strings.TrimSpace(res.Text) == "" {
		return nil, &FetchError{URL: src.URL, Rank: src.Rank, Err: eris.New("no text after normalization")}
	}

	zap.L().Debug("scrape: fetched source",
		zap.String("url", src.URL),
		zap.Int("rank", src.Rank),
		zap.String("scraper", res.Source),
		zap.Int("length", model.TextLength(res.Text)),
	)
	return model.NewNormalizedContent(src.URL, res.ContentType, res.Text), nil
}

func (f *Fetcher) fetch(ctx context.Context, src model.SourceCandidate) (*Result, error) {
	switch src.ContentType {
	case model.ContentInline:
		return &Result{
			URL:         src.URL,
			Text:        strings.Join(strings.Fields(src.Text), " "),
			ContentType: model.ContentInline,
			Source:      "inline",
		}, nil
	case model.ContentPDF:
		return f.pdf.Scrape(ctx, src.URL)
	case model.ContentHTML:
		res, err := f.html.Scrape(ctx, src.URL)
		if errors.Is(err, ErrPDFResponse) {
			return f.pdf.Scrape(ctx, src.URL)
		}
		return res, err
	default:
		return nil, eris.Errorf("unsupported source url %q", src.URL)
	}
}

// Focus narrows fetched web content to the window around the candidate's
// name. Inline documents are returned unchanged. A source that never
// mentions the candidate is a fetch failure.
func Focus(content *model.NormalizedContent, c model.Candidate, words int, rank int) (*model.NormalizedContent, error) {
	if content.ContentType == model.ContentInline || words <= 0 {
		return content, nil
	}
	text, ok := Excerpt(content.Text, c.FocusTerms(), words)
	if !ok || text == "" {
		return nil, &FetchError{URL: content.URL, Rank: rank, Err: eris.New("source does not mention the candidate")}
	}
	return model.NewNormalizedContent(content.URL, content.ContentType, text), nil
}
