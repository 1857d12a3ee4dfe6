package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/bioextract/internal/config"
	"github.com/sells-group/bioextract/internal/model"
	"github.com/sells-group/bioextract/internal/resilience"
)

func testFetchConfig() config.FetchConfig {
	return config.FetchConfig{
		TimeoutSecs:  5,
		UserAgent:    "BioExtractTest/1.0",
		MaxBodyBytes: 1 << 20,
		MaxPDFBytes:  1 << 20,
		PDFPages:     3,
	}
}

func TestLocalScraper_CleanHTML(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BioExtractTest/1.0", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><head><title>Jane Doe for Senate</title>
<style>body{color:red}</style></head>
<body><header>Donate Now</header><nav>Menu</nav>
<h1>Meet Jane</h1><p>Jane   Doe studied <b>Economics</b> at State University &amp; served
on the city council.</p><script>track()</script>
<form><input name="email">Sign up</form>
<footer>Paid for by Friends of Jane</footer></body></html>`))
	}))
	defer srv.Close()

	s := NewLocalScraper(testFetchConfig())
	result, err := s.Scrape(context.Background(), srv.URL)
	require.NoError(t, err)

	assert.Equal(t, "local_http", result.Source)
	assert.Equal(t, model.ContentHTML, result.ContentType)
	assert.Equal(t, "Jane Doe for Senate", result.Title)
	assert.Equal(t, 200, result.StatusCode)
	assert.Equal(t, "meet jane jane doe studied economics at state university & served on the city council.", result.Text)
}

func TestLocalScraper_BlockSeparation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body><h2>Education</h2><ul><li>BA</li><li>JD</li></ul><!-- hidden --></body></html>`))
	}))
	defer srv.Close()

	result, err := NewLocalScraper(testFetchConfig()).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "education ba jd", result.Text)
}

func TestLocalScraper_DecodesCharset(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=windows-1252")
		_, _ = w.Write([]byte("<html><body>Jos\xe9 Mart\xednez</body></html>"))
	}))
	defer srv.Close()

	result, err := NewLocalScraper(testFetchConfig()).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "josé martínez", result.Text)
}

func TestLocalScraper_Cloudflare(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cf-Ray", "abc123")
		w.WriteHeader(403)
		_, _ = w.Write([]byte(`<html><body>Access denied</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(testFetchConfig()).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blocked (cloudflare)")
}

func TestLocalScraper_HTTP404(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(404)
		_, _ = w.Write([]byte(`<html><body>Not found</body></html>`))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(testFetchConfig()).Scrape(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, 404, resilience.StatusCode(err))
	assert.False(t, resilience.IsTransient(err))
}

func TestLocalScraper_PDFResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4"))
	}))
	defer srv.Close()

	_, err := NewLocalScraper(testFetchConfig()).Scrape(context.Background(), srv.URL)
	assert.ErrorIs(t, err, ErrPDFResponse)
}

func TestLocalScraper_BodyCap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("word ", 1000) + "tail</body></html>"))
	}))
	defer srv.Close()

	cfg := testFetchConfig()
	cfg.MaxBodyBytes = 100
	result, err := NewLocalScraper(cfg).Scrape(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.NotContains(t, result.Text, "tail")
}

func TestLocalScraper_Defaults(t *testing.T) {
	s := NewLocalScraper(config.FetchConfig{})
	assert.Equal(t, "local_http", s.Name())
	assert.True(t, s.Supports("https://example.com"))
	assert.Equal(t, int64(4<<20), s.maxBody)
	assert.Contains(t, s.userAgent, "BioExtract")
}

func TestDecodeBody(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		body        []byte
		want        string
	}{
		{"utf8 declared", "text/html; charset=utf-8", []byte("café"), "café"},
		{"no charset valid utf8", "text/html", []byte("café"), "café"},
		{"no charset latin1 bytes", "text/html", []byte("caf\xe9"), "café"},
		{"iso-8859-1 label", "text/html; charset=ISO-8859-1", []byte("caf\xe9"), "café"},
		{"unknown label kept", "text/html; charset=x-made-up", []byte("cafe"), "cafe"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := decodeBody(tt.contentType, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
