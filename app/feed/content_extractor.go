package feed

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

type ContentExtractor struct {
	fetcher *Fetcher
}

func NewContentExtractor(fetcher *Fetcher) *ContentExtractor {
	return &ContentExtractor{
		fetcher: fetcher,
	}
}

// Run fetches the page behind link and returns its readable text.
func (e *ContentExtractor) Run(ctx context.Context, link string) (string, error) {
	data, err := e.fetcher.FetchPage(ctx, link)
	if err != nil {
		return "", fmt.Errorf("failed to fetch page: %w", err)
	}

	return e.Extract(data, link)
}

func (e *ContentExtractor) Extract(data []byte, link string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("HTML data is empty")
	}

	pageURL, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("invalid page URL: %w", err)
	}

	article, err := readability.FromReader(bytes.NewReader(data), pageURL)
	if err != nil {
		return "", fmt.Errorf("failed to extract content: %w", err)
	}

	text := PlainText(article.Content)
	if text == "" {
		return "", fmt.Errorf("no content extracted from HTML data")
	}

	slog.Debug("Content extracted successfully",
		"title", article.Title,
		"content_length", len(text))

	return text, nil
}

// PlainText strips markup and collapses whitespace. Input that is not HTML
// comes back with only its whitespace collapsed.
func PlainText(html string) string {
	if strings.TrimSpace(html) == "" {
		return ""
	}

	// Block-level closers become spaces so adjacent paragraphs don't fuse.
	spaced := strings.NewReplacer("</p>", "</p> ", "<br>", " <br>", "<br/>", " <br/>", "</li>", "</li> ", "</div>", "</div> ").Replace(html)

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(spaced))
	if err != nil {
		return strings.Join(strings.Fields(html), " ")
	}

	return strings.Join(strings.Fields(doc.Text()), " ")
}
