package extraction

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/poiesic/memvault/ai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTMLText(t *testing.T) {
	tests := []struct {
		name string
		html string
		want string
	}{
		{
			"paragraphs",
			"<p>First   paragraph\nwraps.</p><p>Second.</p>",
			"First paragraph wraps.\n\nSecond.",
		},
		{
			"inline markup joins",
			"<p>Go is <b>fast</b> and <a href='/x'>simple</a>.</p>",
			"Go is fast and simple.",
		},
		{
			"page chrome dropped",
			"<header>Site</header><nav><a>Home</a></nav><main><h2>Title</h2><div>Body text</div></main><aside>Ads</aside><footer>Legal</footer>",
			"Title\n\nBody text",
		},
		{
			"scripts and styles dropped",
			"<head><style>p{color:red}</style></head><body><script>alert(1)</script><noscript>enable js</noscript><p>Visible</p></body>",
			"Visible",
		},
		{
			"list items and entities",
			"<ul><li>one &amp; two</li><li>three&nbsp;four</li></ul>",
			"one & two\n\nthree four",
		},
		{
			"table cells",
			"<table><tr><td>a</td><td>b</td></tr><tr><th>c</th><th>d</th></tr></table>",
			"a b\n\nc d",
		},
		{"empty body", "<html><body></body></html>", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := HTMLText(strings.NewReader(tt.html))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func serve(t *testing.T, contentType string, status int, body []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.Header.Get("User-Agent"))
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestReadPage_HTML(t *testing.T) {
	srv := serve(t, "text/html", http.StatusOK, []byte("<h1>Hello</h1><p>world</p>"))

	text, err := NewWebPageReader(srv.Client()).ReadPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "Hello\n\nworld", text)
}

func TestReadPage_SniffsMissingContentType(t *testing.T) {
	srv := serve(t, "", http.StatusOK, []byte("<!DOCTYPE html><html><body><p>sniffed</p></body></html>"))

	text, err := NewWebPageReader(srv.Client()).ReadPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "sniffed", text)
}

func TestReadPage_DecodesCharset(t *testing.T) {
	// "café" in ISO-8859-1
	srv := serve(t, "text/plain; charset=iso-8859-1", http.StatusOK, []byte{'c', 'a', 'f', 0xe9})

	text, err := NewWebPageReader(srv.Client()).ReadPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestReadPage_CutsLargeBodies(t *testing.T) {
	srv := serve(t, "text/plain", http.StatusOK, []byte(strings.Repeat("a", 100)))
	reader := NewWebPageReader(srv.Client())
	reader.maxBytes = 10

	text, err := reader.ReadPage(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("a", 10), text)
}

func TestReadPage_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		ctype     string
		want      error
		transient bool
	}{
		{"not found", http.StatusNotFound, "text/html", ErrPageFetch, false},
		{"forbidden", http.StatusForbidden, "text/html", ErrPageFetch, false},
		{"rate limited", http.StatusTooManyRequests, "text/html", ErrPageFetch, true},
		{"server error", http.StatusBadGateway, "text/html", ErrPageFetch, true},
		{"binary", http.StatusOK, "application/pdf", ErrUnsupportedContent, false},
		{"image", http.StatusOK, "image/png", ErrUnsupportedContent, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := serve(t, tt.ctype, tt.status, []byte("%PDF-1.4"))

			_, err := NewWebPageReader(srv.Client()).ReadPage(context.Background(), srv.URL)
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.transient, ai.IsTransient(err))
		})
	}
}

func TestReadPage_UnsupportedURL(t *testing.T) {
	reader := NewWebPageReader(nil)
	for _, rawURL := range []string{"ftp://example.com/file", "file:///etc/passwd", "https://", "not a url"} {
		_, err := reader.ReadPage(context.Background(), rawURL)
		assert.ErrorIs(t, err, ErrUnsupportedURL, rawURL)
		assert.ErrorIs(t, err, ai.ErrPermanent, rawURL)
	}
}
