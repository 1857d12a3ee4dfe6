package scrape

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/config"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/ocr"
	"github.com/sells-group/bioextract/internal/resilience"
)

var pdfMagic = []byte("%PDF-")

// PDFScraper downloads a PDF to a temporary file and extracts the text of
// its leading pages.
type PDFScraper struct {
	client    *http.Client
	extractor ocr.Extractor
	userAgent string
	maxBytes  int64
}

// NewPDFScraper creates a PDFScraper from the fetch config.
func NewPDFScraper(cfg config.FetchConfig, extractor ocr.Extractor) *PDFScraper {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBytes := cfg.MaxPDFBytes
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = "Mozilla/5.0 (compatible; BioExtract/1.0)"
	}
	return &PDFScraper{
		// PDFs are larger than pages; allow for a slow transfer.
		client:    &http.Client{Timeout: 4 * timeout},
		extractor: extractor,
		userAgent: ua,
		maxBytes:  maxBytes,
	}
}

func (p *PDFScraper) Name() string           { return "pdftotext" }
func (p *PDFScraper) Supports(_ string) bool { return true }

// Scrape downloads the document and returns its normalized text.
func (p *PDFScraper) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: create request")
	}
	req.Header.Set("User-Agent", p.userAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.5")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resilience.HTTPError("pdf", resp.StatusCode, nil)
	}

	path, err := p.download(resp.Body)
	if err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := os.Remove(path); rmErr != nil {
			zap.L().Debug("pdf: remove temp file", zap.String("path", path), zap.Error(rmErr))
		}
	}()

	text, err := p.extractor.ExtractText(ctx, path)
	if err != nil {
		return nil, eris.Wrap(err, "pdf: extract text")
	}

	return &Result{
		URL:         targetURL,
		Text:        normalizeText(text),
		ContentType: model.ContentPDF,
		StatusCode:  resp.StatusCode,
		Source:      p.Name(),
	}, nil
}

// download copies the body into a temp file, enforcing the size cap and the
// PDF signature. The caller removes the file.
func (p *PDFScraper) download(body io.Reader) (string, error) {
	f, err := os.CreateTemp("", "bioextract-*.pdf")
	if err != nil {
		return "", eris.Wrap(err, "pdf: create temp file")
	}
	path := f.Name()

	n, err := io.Copy(f, io.LimitReader(body, p.maxBytes+1))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", eris.Wrap(err, "pdf: download")
	}
	if n > p.maxBytes {
		_ = os.Remove(path)
		return "", eris.Errorf("pdf: document exceeds %d bytes", p.maxBytes)
	}
	if err := checkPDFMagic(path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func checkPDFMagic(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return eris.Wrap(err, "pdf: reopen temp file")
	}
	defer func() { _ = f.Close() }()

	head := make([]byte, 1024)
	n, _ := io.ReadFull(f, head)
	if !bytes.Contains(head[:n], pdfMagic) {
		return eris.New("pdf: body is not a pdf document")
	}
	return nil
}
