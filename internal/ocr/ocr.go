// Package ocr extracts the text layer of downloaded PDF documents.
package ocr

import (
	"context"

	"github.com/sells-group/bioextract/internal/config"
)

// Extractor extracts text content from PDF files.
type Extractor interface {
	ExtractText(ctx context.Context, pdfPath string) (string, error)
}

// NewExtractor creates the PDF extractor described by the fetch config.
func NewExtractor(cfg config.FetchConfig) Extractor {
	return NewPdfToText(cfg.PdfToTextPath, cfg.PDFPages)
}
