package scrape

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/resilience"
	"github.com/sells-group/bioextract/pkg/jina"
)

// JinaAdapter reads pages through the Jina reader. Three consecutive
// failures open its circuit for a minute, during which the chain skips it.
type JinaAdapter struct {
	client  jina.Client
	breaker *resilience.CircuitBreaker
}

// NewJinaAdapter creates a JinaAdapter from a Jina client.
func NewJinaAdapter(client jina.Client) *JinaAdapter {
	return &JinaAdapter{
		client:  client,
		breaker: resilience.NewCircuitBreaker("jina_reader", 3, time.Minute),
	}
}

func (j *JinaAdapter) Name() string { return "jina" }

// Supports returns true unless the circuit is open.
func (j *JinaAdapter) Supports(_ string) bool {
	return j.breaker.State() != resilience.CircuitOpen
}

// Scrape reads a URL through Jina and rejects challenge pages.
func (j *JinaAdapter) Scrape(ctx context.Context, targetURL string) (*Result, error) {
	resp, err := resilience.ExecuteVal(ctx, j.breaker, func(ctx context.Context) (*jina.ReadResponse, error) {
		resp, err := j.client.Read(ctx, targetURL, jina.WithReturnFormat("text"))
		if err != nil {
			return nil, err
		}
		if needsFallback(resp) {
			return nil, eris.Errorf("jina: unusable content for %s", targetURL)
		}
		return resp, nil
	})
	if err != nil {
		return nil, eris.Wrap(err, "jina: read")
	}

	finalURL := resp.Data.URL
	if finalURL == "" {
		finalURL = targetURL
	}
	return &Result{
		URL:         finalURL,
		Title:       resp.Data.Title,
		Text:        normalizeText(resp.Data.Content),
		ContentType: model.ContentHTML,
		StatusCode:  resp.Code,
		Source:      "jina",
	}, nil
}

var challengeSignatures = []string{
	"checking your browser",
	"enable javascript",
	"please enable cookies",
	"access denied",
	"403 forbidden",
	"just a moment",
	"attention required",
}

// needsFallback reports whether a reader response is empty or a relayed
// challenge page.
func needsFallback(resp *jina.ReadResponse) bool {
	if resp == nil {
		return true
	}
	if resp.Code != 0 && resp.Code != 200 {
		return true
	}

	content := strings.TrimSpace(resp.Data.Content)
	if len(content) < 100 {
		return true
	}
	if len(content) >= 1000 {
		return false
	}

	lower := strings.ToLower(content)
	for _, sig := range challengeSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}
