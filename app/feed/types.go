package feed

import (
	"time"
)

type Metadata struct {
	Title       string
	Link        string
	Description string
	Language    string
}

// RawDate is a date-bearing field exactly as the feed carried it.
type RawDate struct {
	Field string
	Value string
}

type Item struct {
	GUID       string
	Title      string
	Link       string
	Summary    string
	Content    string
	Authors    []string
	Categories []string

	// PublishedParsed is the feed library's own reading of the publication
	// time. It wins over every raw field when present.
	PublishedParsed *time.Time
	RawDates        []RawDate

	// PublishedAt is the normalized date, nil when no field could be read.
	PublishedAt *time.Time
}

// Filter is a keyword rule applied to one item field.
type Filter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
