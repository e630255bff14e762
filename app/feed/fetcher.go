package feed

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
)

const (
	feedAccept = "application/rss+xml, application/xml, application/atom+xml, application/json, text/xml;q=0.9, */*;q=0.8"
	pageAccept = "text/html, application/xhtml+xml;q=0.9, */*;q=0.8"

	maxBodySize = 20 << 20
)

// FallbackCharsets are tried in order after the declared charset.
var FallbackCharsets = []string{"utf-8", "utf-16", "iso-8859-1", "us-ascii", "windows-1252"}

var xmlEncodingRe = regexp.MustCompile(`^(\s*<\?xml[^>]*?encoding\s*=\s*["'])([^"']+)(["'])`)

type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewFetcher(httpClient *http.Client, userAgent string, timeout time.Duration) *Fetcher {
	return &Fetcher{
		httpClient: httpClient,
		userAgent:  userAgent,
		timeout:    timeout,
	}
}

// Run downloads a feed and returns its body re-encoded as UTF-8.
func (f *Fetcher) Run(ctx context.Context, url string) ([]byte, error) {
	data, contentType, err := f.get(ctx, url, feedAccept)
	if err != nil {
		return nil, err
	}

	return rewriteXMLEncoding(Decode(data, contentType)), nil
}

// FetchPage downloads an article page for content extraction.
func (f *Fetcher) FetchPage(ctx context.Context, url string) ([]byte, error) {
	data, contentType, err := f.get(ctx, url, pageAccept)
	if err != nil {
		return nil, err
	}

	return Decode(data, contentType), nil
}

func (f *Fetcher) get(ctx context.Context, url, accept string) ([]byte, string, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(timeoutCtx, "GET", url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP error: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// Decode converts data to UTF-8. The charset declared in contentType is
// tried first, then FallbackCharsets; when none fits, invalid sequences are
// replaced with U+FFFD.
func Decode(data []byte, contentType string) []byte {
	candidates := FallbackCharsets
	if declared := declaredCharset(contentType); declared != "" {
		candidates = append([]string{declared}, FallbackCharsets...)
	}

	for _, name := range candidates {
		if out, ok := decodeAs(name, data); ok {
			if name != "utf-8" {
				slog.Debug("Decoded body", "charset", name)
			}
			return out
		}
	}

	slog.Warn("No charset matched, decoding as UTF-8 with replacement")
	return []byte(strings.ToValidUTF8(string(data), "\uFFFD"))
}

func declaredCharset(contentType string) string {
	if contentType == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.Trim(params["charset"], `"' `))
}

func decodeAs(name string, data []byte) ([]byte, bool) {
	switch name {
	case "utf-8", "utf8":
		if !utf8.Valid(data) {
			return nil, false
		}
		return bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")), true
	case "us-ascii", "ascii":
		for _, b := range data {
			if b >= utf8.RuneSelf {
				return nil, false
			}
		}
		return data, true
	}

	var enc encoding.Encoding
	switch name {
	case "utf-16":
		enc = unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM)
	case "iso-8859-1", "latin1", "latin-1":
		enc = charmap.ISO8859_1
	case "windows-1252", "cp1252":
		enc = charmap.Windows1252
	default:
		var err error
		if enc, err = htmlindex.Get(name); err != nil {
			return nil, false
		}
	}

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, false
	}
	if bytes.ContainsRune(out, utf8.RuneError) && !bytes.Contains(data, []byte("\uFFFD")) {
		return nil, false
	}

	return out, true
}

// rewriteXMLEncoding points the XML declaration at UTF-8 so the parser does
// not decode the already decoded body a second time.
func rewriteXMLEncoding(data []byte) []byte {
	m := xmlEncodingRe.FindSubmatchIndex(data)
	if m == nil {
		return data
	}

	label := strings.ToLower(string(data[m[4]:m[5]]))
	if label == "utf-8" || label == "utf8" {
		return data
	}

	out := make([]byte, 0, len(data))
	out = append(out, data[:m[4]]...)
	out = append(out, "utf-8"...)
	out = append(out, data[m[5]:]...)
	return out
}
