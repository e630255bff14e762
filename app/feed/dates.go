package feed

import (
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"
)

// DateFields lists the raw fields consulted, in order, when the feed library
// could not produce a parsed publication time.
var DateFields = []string{"published", "pubDate", "created", "createDate", "updated"}

var isoLayouts = []string{
	"2006-01-02T15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999Z0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999Z0700",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// obsoleteZones holds the RFC 2822 US zone names in seconds east of UTC.
// net/mail leaves them at a zero offset.
var obsoleteZones = map[string]int{
	"EST": -5 * 3600, "EDT": -4 * 3600,
	"CST": -6 * 3600, "CDT": -5 * 3600,
	"MST": -7 * 3600, "MDT": -6 * 3600,
	"PST": -8 * 3600, "PDT": -7 * 3600,
}

// NormalizeDate resolves the publication instant of an item. The first
// source that yields a date wins; results are always in UTC.
func NormalizeDate(item *Item) *time.Time {
	if item.PublishedParsed != nil && !item.PublishedParsed.IsZero() {
		t := anchorZone(*item.PublishedParsed).UTC().Truncate(time.Second)
		return &t
	}

	for _, field := range DateFields {
		for _, raw := range item.RawDates {
			if raw.Field != field || strings.TrimSpace(raw.Value) == "" {
				continue
			}

			t, err := ParseDate(raw.Value)
			if err != nil {
				slog.Debug("Skipping unparseable date field", "field", field, "value", raw.Value, "error", err)
				continue
			}
			return &t
		}
	}

	return nil
}

// ParseDate reads an RFC 2822 mail date, then ISO 8601. Inputs without zone
// information are taken as UTC.
func ParseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if t, err := mail.ParseDate(value); err == nil {
		return anchorZone(t).UTC(), nil
	}

	for _, layout := range isoLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized date format: %q", value)
}

// anchorZone moves a wall clock read under an obsolete zone name with no
// offset onto that zone's real offset.
func anchorZone(t time.Time) time.Time {
	name, offset := t.Zone()
	zoneOffset, ok := obsoleteZones[name]
	if !ok || offset != 0 {
		return t
	}
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), time.FixedZone(name, zoneOffset))
}
