package state

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// FeedState is the persisted progress of one feed. ProcessedCount is the
// number of articles filed by the run that last wrote the record, in every
// backend.
type FeedState struct {
	FeedURL        string     `json:"feed_url"`
	LastPubDate    *time.Time `json:"last_pub_date"`
	LastProcessed  *time.Time `json:"last_processed"`
	ProcessedCount int        `json:"processed_count"`
}

// Store keeps per-feed high-water marks. A never-seen feed and an unreadable
// record both read back as "no state" rather than an error.
type Store interface {
	LastPubDate(ctx context.Context, feedURL string) (*time.Time, error)
	UpdateFeedState(ctx context.Context, feedURL string, lastPubDate time.Time, processedCount int) error
	FeedState(ctx context.Context, feedURL string) (*FeedState, error)
	List(ctx context.Context) ([]FeedState, error)
	Close() error
}

type Options struct {
	Backend       string
	FilePath      string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

func Open(ctx context.Context, opts Options) (Store, error) {
	switch opts.Backend {
	case BackendFile, "":
		return NewFileStore(opts.FilePath), nil
	case BackendSQLite:
		return NewSQLStore(ctx, opts.DBPath)
	case BackendRedis:
		return NewRedisStore(ctx, opts.RedisAddr, opts.RedisPassword, opts.RedisDB, opts.RedisPrefix)
	default:
		return nil, fmt.Errorf("unknown state backend: %s", opts.Backend)
	}
}

// Copy writes every feed state held by from into to and returns how many
// records were copied.
func Copy(ctx context.Context, from, to Store) (int, error) {
	states, err := from.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list source states: %w", err)
	}

	copied := 0
	for _, s := range states {
		if s.LastPubDate == nil {
			slog.Warn("Skipping feed without a readable high-water mark", "feed", s.FeedURL)
			continue
		}
		if err := to.UpdateFeedState(ctx, s.FeedURL, *s.LastPubDate, s.ProcessedCount); err != nil {
			return copied, fmt.Errorf("failed to copy state for %s: %w", s.FeedURL, err)
		}
		copied++
	}

	return copied, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTime reads a stored timestamp, logging and discarding values that
// cannot be parsed.
func parseTime(feedURL, field, value string) *time.Time {
	if value == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		slog.Warn("Ignoring unreadable stored timestamp", "feed", feedURL, "field", field, "value", value, "error", err)
		return nil
	}
	t = t.UTC()
	return &t
}
