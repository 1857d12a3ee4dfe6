package jina

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRead_Success(t *testing.T) {
	t.Parallel()

	want := ReadResponse{
		Code: 200,
		Data: ReadData{
			Title:   "Jane Doe for State House",
			URL:     "https://janedoe.com",
			Content: "Jane Doe grew up in Dayton.",
			Usage:   ReadUsage{Tokens: 120},
		},
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		assert.Equal(t, "text", r.Header.Get("X-Return-Format"))
		assert.Equal(t, "/https://janedoe.com", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	client := NewClient("test-key", WithBaseURL(srv.URL))
	got, err := client.Read(context.Background(), "https://janedoe.com", WithReturnFormat("text"))

	require.NoError(t, err)
	assert.Equal(t, want.Data.Content, got.Data.Content)
	assert.Equal(t, 120, got.Data.Usage.Tokens)
}

func TestRead_DefaultFormatAndNoKey(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "markdown", r.Header.Get("X-Return-Format"))
		assert.Empty(t, r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"code":200,"data":{"content":"x"}}`))
	}))
	defer srv.Close()

	client := NewClient("", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com")
	require.NoError(t, err)
}

func TestRead_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("busy"))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com")

	require.Error(t, err)
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
}

func TestRead_MalformedJSON(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer srv.Close()

	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Read(context.Background(), "https://example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unmarshal")
}

func TestRead_ContextCancellation(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	client := NewClient("k", WithBaseURL(srv.URL))
	_, err := client.Read(ctx, "https://example.com")
	require.Error(t, err)
}

func TestSearch_Success(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/Jane Doe Ohio", r.URL.Path)
		assert.Equal(t, "4", r.URL.Query().Get("count"))
		_ = json.NewEncoder(w).Encode(SearchResponse{
			Code: 200,
			Data: []SearchResult{
				{Title: "Jane Doe", URL: "https://ballotpedia.org/Jane_Doe", Description: "candidate"},
				{Title: "Bio", URL: "https://ohiohouse.gov/jane-doe"},
			},
		})
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "Jane Doe Ohio", WithCount(4))

	require.NoError(t, err)
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "https://ballotpedia.org/Jane_Doe", resp.Data[0].URL)
}

func TestSearch_WithSiteFilter(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "ballotpedia.org", r.URL.Query().Get("site"))
		_, _ = w.Write([]byte(`{"code":200,"data":[]}`))
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "q", WithSiteFilter("ballotpedia.org"))
	require.NoError(t, err)
}

func TestSearch_422IsEmpty(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	resp, err := client.Search(context.Background(), "nobody at all")
	require.NoError(t, err)
	assert.Empty(t, resp.Data)
}

func TestSearch_HTTPError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewClient("k", WithSearchBaseURL(srv.URL))
	_, err := client.Search(context.Background(), "q")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
}

func TestWithHTTPClient(t *testing.T) {
	t.Parallel()

	hc := &http.Client{}
	c := NewClient("k", WithHTTPClient(hc)).(*httpClient)
	assert.Same(t, hc, c.http)
	assert.Equal(t, "https://r.jina.ai", c.baseURL)
	assert.Equal(t, "https://s.jina.ai", c.searchBaseURL)
}
