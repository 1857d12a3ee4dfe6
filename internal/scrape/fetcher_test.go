package scrape

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioextract/internal/model"
)

func newTestFetcher(ext *stubExtractor) *Fetcher {
	cfg := testFetchConfig()
	return NewFetcher(NewChain(NewLocalScraper(cfg)), NewPDFScraper(cfg, ext))
}

func TestFetcher_HTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><p>Jane Doe, Délégué</p></body></html>"))
	}))
	defer srv.Close()

	src := model.SourceCandidate{URL: srv.URL, Rank: 1, ContentType: model.ContentHTML}
	content, err := newTestFetcher(&stubExtractor{}).Fetch(context.Background(), src)
	require.NoError(t, err)

	assert.Equal(t, srv.URL, content.URL)
	assert.Equal(t, model.ContentHTML, content.ContentType)
	assert.Equal(t, "jane doe, délégué", content.Text)
	assert.Equal(t, 17, content.Length)
}

func TestFetcher_HTMLAnsweredWithPDF(t *testing.T) {
	srv := pdfServer(t, 200, "%PDF-1.5")
	ext := &stubExtractor{text: "Jane Doe resume"}

	src := model.SourceCandidate{URL: srv.URL + "/download?id=7", Rank: 2, ContentType: model.ContentHTML}
	content, err := newTestFetcher(ext).Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, model.ContentPDF, content.ContentType)
	assert.Equal(t, "jane doe resume", content.Text)
}

func TestFetcher_PDF(t *testing.T) {
	srv := pdfServer(t, 200, "%PDF-1.5")
	ext := &stubExtractor{text: "Page 1"}

	src := model.SourceCandidate{URL: srv.URL + "/bio.pdf", Rank: 1, ContentType: model.ContentPDF}
	content, err := newTestFetcher(ext).Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "page 1", content.Text)
}

func TestFetcher_Inline(t *testing.T) {
	src := model.SourceCandidate{
		URL:         "inline:case-17",
		Rank:        1,
		ContentType: model.ContentInline,
		Text:        "  The Respondent   failed to\nfile a report. ",
	}
	content, err := newTestFetcher(&stubExtractor{}).Fetch(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "The Respondent failed to file a report.", content.Text)
	assert.Equal(t, model.ContentInline, content.ContentType)
}

func TestFetcher_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	blank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body><script>app()</script></body></html>"))
	}))
	defer blank.Close()

	tests := []struct {
		name string
		src  model.SourceCandidate
	}{
		{"not found", model.SourceCandidate{URL: notFound.URL, Rank: 3, ContentType: model.ContentHTML}},
		{"no text", model.SourceCandidate{URL: blank.URL, Rank: 3, ContentType: model.ContentHTML}},
		{"unknown type", model.SourceCandidate{URL: "ftp://files.example/bio.txt", Rank: 3, ContentType: model.ContentUnknown}},
		{"empty inline", model.SourceCandidate{URL: "inline:x", Rank: 3, ContentType: model.ContentInline}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := newTestFetcher(&stubExtractor{}).Fetch(context.Background(), tt.src)
			require.Error(t, err)

			var fe *FetchError
			require.True(t, errors.As(err, &fe))
			assert.Equal(t, tt.src.URL, fe.URL)
			assert.Equal(t, 3, fe.Rank)
			assert.Equal(t, model.FailFetch, fe.Kind())
		})
	}
}

func TestFocus(t *testing.T) {
	t.Parallel()

	cand := model.Candidate{Name: "Jane Q Doe", FirstName: "Jane", LastName: "Doe"}

	t.Run("narrows web content", func(t *testing.T) {
		t.Parallel()
		in := model.NewNormalizedContent("https://x.example", model.ContentHTML, "menu home doe served two terms")
		out, err := Focus(in, cand, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, "doe served two", out.Text)
		assert.Equal(t, 14, out.Length)
	})

	t.Run("candidate not mentioned", func(t *testing.T) {
		t.Parallel()
		in := model.NewNormalizedContent("https://x.example", model.ContentHTML, "an unrelated page")
		_, err := Focus(in, cand, 3, 2)
		var fe *FetchError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, 2, fe.Rank)
	})

	t.Run("inline untouched", func(t *testing.T) {
		t.Parallel()
		in := model.NewNormalizedContent("inline:1", model.ContentInline, "Case text without names")
		out, err := Focus(in, cand, 3, 1)
		require.NoError(t, err)
		assert.Same(t, in, out)
	})

	t.Run("disabled", func(t *testing.T) {
		t.Parallel()
		in := model.NewNormalizedContent("https://x.example", model.ContentHTML, "an unrelated page")
		out, err := Focus(in, cand, 0, 1)
		require.NoError(t, err)
		assert.Same(t, in, out)
	})
}
