package feed

import (
	"bytes"
	"cmp"
	"fmt"
	"strings"

	"github.com/mmcdole/gofeed"
)

type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (*Metadata, []Item, error) {
	feed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	metadata := &Metadata{
		Title:       feed.Title,
		Link:        feed.Link,
		Description: feed.Description,
		Language:    feed.Language,
	}

	items := make([]Item, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		normalized := p.normalizeItem(item)
		normalized.PublishedAt = NormalizeDate(&normalized)
		items = append(items, normalized)
	}

	return metadata, items, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item) Item {
	normalized := Item{
		GUID:            cmp.Or(item.GUID, item.Link),
		Title:           strings.TrimSpace(item.Title),
		Link:            strings.TrimSpace(item.Link),
		Summary:         cmp.Or(item.Description, item.Content),
		Content:         item.Content,
		Categories:      item.Categories,
		PublishedParsed: item.PublishedParsed,
		RawDates:        p.rawDates(item),
	}

	normalized.Authors = p.extractAuthors(item)

	return normalized
}

// rawDates collects date strings in the order NormalizeDate consults them.
// RSS elements gofeed does not map onto its own fields land in Custom.
func (p *Parser) rawDates(item *gofeed.Item) []RawDate {
	var dates []RawDate

	add := func(field, value string) {
		if strings.TrimSpace(value) != "" {
			dates = append(dates, RawDate{Field: field, Value: value})
		}
	}

	add("published", item.Published)
	for _, field := range []string{"pubDate", "created", "createDate"} {
		add(field, item.Custom[field])
	}
	add("updated", item.Updated)

	return dates
}

func (p *Parser) extractAuthors(item *gofeed.Item) []string {
	var authors []string

	if len(item.Authors) > 0 {
		for _, author := range item.Authors {
			if author != nil {
				if authorStr := p.formatAuthor(author.Name, author.Email); authorStr != "" {
					authors = append(authors, authorStr)
				}
			}
		}
	} else if item.Author != nil {
		if authorStr := p.formatAuthor(item.Author.Name, item.Author.Email); authorStr != "" {
			authors = append(authors, authorStr)
		}
	}

	return authors
}

func (p *Parser) formatAuthor(name, email string) string {
	name = strings.TrimSpace(name)
	email = strings.TrimSpace(email)

	if name != "" && email != "" {
		return fmt.Sprintf("%s (%s)", email, name)
	}
	return cmp.Or(name, email)
}
