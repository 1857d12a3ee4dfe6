// Package google provides a client for the Google Custom Search JSON API.
package google

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
)

const defaultBaseURL = "https://www.googleapis.com/customsearch/v1"

// MaxNum is the largest page size the API accepts.
const MaxNum = 10

// Client performs Custom Search queries.
type Client interface {
	Search(ctx context.Context, req SearchRequest) (*SearchResponse, error)
}

// SearchRequest holds the query parameters for one search call.
type SearchRequest struct {
	Query    string
	Num      int    // 1..10, 0 means the API default
	Start    int    // 1-based index of the first result
	Language string // lr, e.g. "lang_en"
	Country  string // cr, e.g. "countryUS"
}

// SearchResponse is the subset of the API response the pipeline uses.
// Items is absent (nil) when the query matched nothing.
type SearchResponse struct {
	Items             []Item            `json:"items"`
	SearchInformation SearchInformation `json:"searchInformation"`
}

// Item is a single ranked result.
type Item struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	Snippet    string `json:"snippet"`
	Mime       string `json:"mime,omitempty"`
	FileFormat string `json:"fileFormat,omitempty"`
}

// SearchInformation carries result totals. The API encodes the count as a string.
type SearchInformation struct {
	TotalResults string  `json:"totalResults"`
	SearchTime   float64 `json:"searchTime"`
}

// APIError is a non-200 response.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("google: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides the default API base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

type httpClient struct {
	apiKey  string
	cx      string
	baseURL string
	http    *http.Client
}

// NewClient creates a Custom Search client for the given API key and
// search engine id (cx).
func NewClient(apiKey, cx string, opts ...Option) Client {
	c := &httpClient{
		apiKey:  apiKey,
		cx:      cx,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *httpClient) Search(ctx context.Context, sr SearchRequest) (*SearchResponse, error) {
	if sr.Query == "" {
		return nil, eris.New("google: empty query")
	}

	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("cx", c.cx)
	q.Set("q", sr.Query)
	if sr.Num > 0 {
		num := sr.Num
		if num > MaxNum {
			num = MaxNum
		}
		q.Set("num", strconv.Itoa(num))
	}
	if sr.Start > 0 {
		q.Set("start", strconv.Itoa(sr.Start))
	}
	if sr.Language != "" {
		q.Set("lr", sr.Language)
	}
	if sr.Country != "" {
		q.Set("cr", sr.Country)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return nil, eris.Wrap(err, "google: create request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "google: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "google: read response")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result SearchResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, eris.Wrap(err, "google: unmarshal response")
	}

	return &result, nil
}
