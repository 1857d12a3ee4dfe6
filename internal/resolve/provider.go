// Package resolve turns a candidate into a ranked, de-duplicated list of
// sources using a web search provider.
package resolve

import (
	"context"
	"errors"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/bioextract/internal/resilience"
	"github.com/sells-group/bioextract/pkg/google"
	"github.com/sells-group/bioextract/pkg/jina"
)

// SearchHit is one provider result in provider rank order.
type SearchHit struct {
	URL     string
	Title   string
	Snippet string
	Mime    string
}

// SearchProvider returns ranked hits for a text query. No results is an
// empty slice and a nil error.
type SearchProvider interface {
	Search(ctx context.Context, query string, limit int) ([]SearchHit, error)
	Name() string
}

// GoogleProvider searches with the Custom Search JSON API.
type GoogleProvider struct {
	client   google.Client
	language string
	country  string
}

// NewGoogleProvider creates a provider restricted to the given language
// ("lang_en") and country ("countryUS"); empty values are not sent.
func NewGoogleProvider(client google.Client, language, country string) *GoogleProvider {
	return &GoogleProvider{client: client, language: language, country: country}
}

func (g *GoogleProvider) Name() string { return "google" }

func (g *GoogleProvider) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	resp, err := g.client.Search(ctx, google.SearchRequest{
		Query:    query,
		Num:      min(limit, google.MaxNum),
		Language: g.language,
		Country:  g.country,
	})
	if err != nil {
		var apiErr *google.APIError
		if errors.As(err, &apiErr) {
			return nil, resilience.HTTPError("google", apiErr.StatusCode, []byte(apiErr.Body))
		}
		return nil, eris.Wrap(err, "google: search")
	}

	hits := make([]SearchHit, 0, len(resp.Items))
	for _, it := range resp.Items {
		hits = append(hits, SearchHit{URL: it.Link, Title: it.Title, Snippet: it.Snippet, Mime: it.Mime})
	}
	return hits, nil
}

// JinaProvider searches with the Jina search endpoint.
type JinaProvider struct {
	client jina.Client
	site   string
}

// NewJinaProvider creates a provider backed by Jina search. A non-empty site
// restricts results to that domain, e.g. "ballotpedia.org".
func NewJinaProvider(client jina.Client, site string) *JinaProvider {
	return &JinaProvider{client: client, site: site}
}

func (j *JinaProvider) Name() string { return "jina" }

func (j *JinaProvider) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	opts := []jina.SearchOption{jina.WithCount(limit)}
	if j.site != "" {
		opts = append(opts, jina.WithSiteFilter(j.site))
	}
	resp, err := j.client.Search(ctx, query, opts...)
	if err != nil {
		var apiErr *jina.APIError
		if errors.As(err, &apiErr) {
			return nil, resilience.HTTPError("jina", apiErr.StatusCode, []byte(apiErr.Body))
		}
		return nil, eris.Wrap(err, "jina: search")
	}

	hits := make([]SearchHit, 0, len(resp.Data))
	for _, r := range resp.Data {
		snippet := r.Description
		if snippet == "" {
			snippet = truncate(r.Content, 300)
		}
		hits = append(hits, SearchHit{URL: r.URL, Title: r.Title, Snippet: snippet})
	}
	return hits, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
