package extraction

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/poiesic/memvault/ai"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/net/html/charset"
)

const (
	defaultPageTimeout  = 30 * time.Second
	defaultPageMaxBytes = 5 << 20
	pageUserAgent       = "memvault/1.0 (+page reader)"
)

// PageReader returns the readable text of the page at a URL.
type PageReader interface {
	ReadPage(ctx context.Context, rawURL string) (string, error)
}

// WebPageReader fetches pages over HTTP(S). HTML is reduced to its visible
// text; other text types are returned as is.
type WebPageReader struct {
	client   *http.Client
	maxBytes int64
}

// NewWebPageReader creates a reader using client, or a client with a 30s
// timeout when client is nil.
func NewWebPageReader(client *http.Client) *WebPageReader {
	if client == nil {
		client = &http.Client{Timeout: defaultPageTimeout}
	}
	return &WebPageReader{client: client, maxBytes: defaultPageMaxBytes}
}

// ReadPage fetches rawURL and extracts its text. Bodies past 5 MiB are cut.
// Rate limiting and server errors are transient; other failures are
// permanent.
func (w *WebPageReader) ReadPage(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ai.Permanent(fmt.Errorf("%w: %q", ErrUnsupportedURL, rawURL))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return "", ai.Permanent(err)
	}
	req.Header.Set("User-Agent", pageUserAgent)
	req.Header.Set("Accept", "text/html, application/xhtml+xml, text/plain;q=0.9, */*;q=0.1")

	resp, err := w.client.Do(req)
	if err != nil {
		return "", ai.Transient(fmt.Errorf("%w: %s: %w", ErrPageFetch, u.Redacted(), err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return "", ai.Transient(fmt.Errorf("%w: %s returned %d", ErrPageFetch, u.Redacted(), resp.StatusCode))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", ai.Permanent(fmt.Errorf("%w: %s returned %d", ErrPageFetch, u.Redacted(), resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxBytes))
	if err != nil {
		return "", ai.Transient(fmt.Errorf("%w: reading %s: %w", ErrPageFetch, u.Redacted(), err))
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", ai.Permanent(fmt.Errorf("%w: %q", ErrUnsupportedContent, contentType))
	}

	body, err := charset.NewReader(bytes.NewReader(data), contentType)
	if err != nil {
		return "", ai.Permanent(fmt.Errorf("%w: %w", ErrUnsupportedContent, err))
	}
	switch {
	case mediaType == "text/html", mediaType == "application/xhtml+xml":
		return HTMLText(body)
	case strings.HasPrefix(mediaType, "text/"):
		text, err := io.ReadAll(body)
		if err != nil {
			return "", ai.Permanent(err)
		}
		return strings.ToValidUTF8(string(text), "\uFFFD"), nil
	default:
		return "", ai.Permanent(fmt.Errorf("%w: %s", ErrUnsupportedContent, mediaType))
	}
}

var hiddenElements = map[atom.Atom]bool{
	atom.Head:     true,
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Iframe:   true,
	atom.Nav:      true,
	atom.Header:   true,
	atom.Footer:   true,
	atom.Aside:    true,
	atom.Form:     true,
}

var blockElements = map[atom.Atom]bool{
	atom.Address: true, atom.Article: true, atom.Blockquote: true, atom.Br: true,
	atom.Dd: true, atom.Div: true, atom.Dl: true, atom.Dt: true,
	atom.Figcaption: true, atom.Figure: true, atom.H1: true, atom.H2: true,
	atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Hr: true, atom.Li: true, atom.Main: true, atom.Ol: true,
	atom.P: true, atom.Pre: true, atom.Section: true, atom.Table: true,
	atom.Tr: true, atom.Ul: true,
}

// HTMLText returns the visible text of an HTML document, one paragraph per
// block element, separated by blank lines. Scripts, styles and page chrome
// (nav, header, footer, aside, forms) are dropped.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", ai.Permanent(fmt.Errorf("%w: %w", ErrUnsupportedContent, err))
	}

	var (
		paragraphs []string
		current    strings.Builder
	)
	flush := func() {
		if text := strings.Join(strings.Fields(current.String()), " "); text != "" {
			paragraphs = append(paragraphs, text)
		}
		current.Reset()
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.TextNode:
			current.WriteString(n.Data)
			return
		case html.ElementNode:
			if hiddenElements[n.DataAtom] {
				return
			}
		}
		block := n.Type == html.ElementNode && blockElements[n.DataAtom]
		if block {
			flush()
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		switch {
		case block:
			flush()
		case n.Type == html.ElementNode && (n.DataAtom == atom.Td || n.DataAtom == atom.Th):
			current.WriteByte(' ')
		}
	}
	walk(doc)
	flush()

	return strings.Join(paragraphs, "\n\n"), nil
}
