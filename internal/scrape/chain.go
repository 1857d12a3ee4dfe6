package scrape

import (
	"context"
	"errors"
	"net/http"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bioextract/internal/resilience"
)

// Chain tries scrapers in priority order, returning the first success.
type Chain struct {
	scrapers []Scraper
}

// NewChain creates a Chain. Scrapers are tried in order; nil entries are
// ignored so optional fallbacks can be passed unconditionally.
func NewChain(scrapers ...Scraper) *Chain {
	c := &Chain{}
	for _, s := range scrapers {
		if s != nil {
			c.scrapers = append(c.scrapers, s)
		}
	}
	return c
}

// Scrape tries each scraper in order for a single URL. A missing page or a
// PDF answer ends the chain early: no other scraper can do better.
func (c *Chain) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	var lastErr error
	for _, s := range c.scrapers {
		if !s.Supports(targetURL) {
			continue
		}
		result, err := s.Scrape(ctx, targetURL)
		if err == nil && result != nil {
			return result, nil
		}
		if err == nil {
			err = eris.Errorf("%s: no result", s.Name())
		}
		lastErr = err
		if !shouldFallback(ctx, err) {
			return nil, err
		}
		zap.L().Debug("scrape: scraper failed, trying next",
			zap.String("scraper", s.Name()),
			zap.String("url", targetURL),
			zap.Error(err),
		)
	}
	if lastErr != nil {
		return nil, eris.Wrap(lastErr, "scrape: all scrapers failed")
	}
	return nil, eris.Errorf("scrape: no suitable scraper for url: %s", targetURL)
}

func shouldFallback(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrPDFResponse) {
		return false
	}
	switch resilience.StatusCode(err) {
	case http.StatusNotFound, http.StatusGone:
		return false
	}
	return true
}
