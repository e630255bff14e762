package tasks

import (
	"context"
	"time"

	"github.com/lysyi3m/rss-bouncer/app/feed"
	"github.com/lysyi3m/rss-bouncer/app/raindrop"
	"github.com/lysyi3m/rss-bouncer/app/state"
)

type FeedFetcher interface {
	Run(ctx context.Context, url string) ([]byte, error)
}

type FeedParser interface {
	Run(data []byte) (*feed.Metadata, []feed.Item, error)
}

// BookmarkFiler creates bookmarks in one collection and reports how many
// were created.
type BookmarkFiler interface {
	AddBookmarks(ctx context.Context, bookmarks []raindrop.Bookmark, collectionID int64) (int, error)
}

// StateStore is the part of state.Store the pipeline needs.
type StateStore interface {
	LastPubDate(ctx context.Context, feedURL string) (*time.Time, error)
	UpdateFeedState(ctx context.Context, feedURL string, lastPubDate time.Time, processedCount int) error
}

var (
	_ FeedFetcher   = (*feed.Fetcher)(nil)
	_ FeedParser    = (*feed.Parser)(nil)
	_ BookmarkFiler = (*raindrop.Client)(nil)
	_ StateStore    = (state.Store)(nil)
)

// SchedulerInterface runs sweeps in the background.
//
//	scheduler := NewScheduler(sweeper, interval)
//	scheduler.Start()
//	defer scheduler.Stop()
//	scheduler.EnqueueSweep()
type SchedulerInterface interface {
	Start()
	Stop()
	EnqueueSweep() error
}
