package ocr

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

// PdfToText extracts text from PDFs using the poppler pdftotext tool.
type PdfToText struct {
	binPath string
	pages   int
}

// NewPdfToText creates a PdfToText extractor. If binPath is empty,
// "pdftotext" is used. pages limits extraction to the first N pages; zero
// reads the whole document.
func NewPdfToText(binPath string, pages int) *PdfToText {
	if binPath == "" {
		binPath = "pdftotext"
	}
	if pages < 0 {
		pages = 0
	}
	return &PdfToText{binPath: binPath, pages: pages}
}

// args builds the command line. Pages come out in document order separated
// by form feeds, which callers treat as whitespace.
func (p *PdfToText) args(pdfPath string) []string {
	args := []string{"-layout", "-enc", "UTF-8"}
	if p.pages > 0 {
		args = append(args, "-f", "1", "-l", strconv.Itoa(p.pages))
	}
	return append(args, pdfPath, "-")
}

// ExtractText runs pdftotext on the given PDF and returns stdout.
func (p *PdfToText) ExtractText(ctx context.Context, pdfPath string) (string, error) {
	cmd := exec.CommandContext(ctx, p.binPath, p.args(pdfPath)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", eris.Wrapf(err, "ocr: pdftotext failed for %s: %s", pdfPath, strings.TrimSpace(stderr.String()))
	}

	return stdout.String(), nil
}
