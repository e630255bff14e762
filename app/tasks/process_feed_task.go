package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/lysyi3m/rss-bouncer/app/classifier"
	"github.com/lysyi3m/rss-bouncer/app/feed"
	"github.com/lysyi3m/rss-bouncer/app/raindrop"
)

const (
	DefaultBatchSize = 5
	stateTimeout     = 10 * time.Second
)

type FeedStatus string

const (
	FeedStatusPending      FeedStatus = "pending"
	FeedStatusDone         FeedStatus = "done"
	FeedStatusSkippedEmpty FeedStatus = "skipped_empty"
	FeedStatusFailed       FeedStatus = "failed"
	FeedStatusCancelled    FeedStatus = "cancelled"
)

// FeedResult summarises one pass over a feed.
type FeedResult struct {
	FeedURL       string                         `json:"feed_url"`
	Title         string                         `json:"title,omitempty"`
	Status        FeedStatus                     `json:"status"`
	Entries       int                            `json:"entries"`
	Undated       int                            `json:"undated"`
	New           int                            `json:"new"`
	Batches       int                            `json:"batches"`
	Classified    map[classifier.Disposition]int `json:"classified"`
	Filed         int                            `json:"filed"`
	Dropped       int                            `json:"dropped"`
	Failed        int                            `json:"failed"`
	Cancelled     bool                           `json:"cancelled"`
	HighWaterMark *time.Time                     `json:"high_water_mark,omitempty"`
	Error         string                         `json:"error,omitempty"`
}

// Pipeline holds the collaborators and settings shared by every feed task.
type Pipeline struct {
	Fetcher     FeedFetcher
	Parser      FeedParser
	Policy      classifier.Policy
	Filer       BookmarkFiler
	Store       StateStore
	Collections map[string]int64
	BatchSize   int
	SaveSkipped bool
}

type ProcessFeedTask struct {
	Task
	pipeline *Pipeline
	Result   *FeedResult
}

type classifiedItem struct {
	item     *feed.Item
	decision classifier.Decision
}

func NewProcessFeedTask(feedURL string, pipeline *Pipeline) *ProcessFeedTask {
	return &ProcessFeedTask{
		Task:     NewTask(TaskTypeProcessFeed, feedURL),
		pipeline: pipeline,
		Result: &FeedResult{
			FeedURL:    feedURL,
			Status:     FeedStatusPending,
			Classified: make(map[classifier.Disposition]int),
		},
	}
}

// Execute runs FETCH, PARSE, DIFF, the batch loop and the final state write
// for one feed. Cancelling ctx stops the loop before the next batch; calls
// already started run to completion under their own timeouts.
func (t *ProcessFeedTask) Execute(ctx context.Context) error {
	t.Start()
	res := t.Result

	select {
	case <-ctx.Done():
		res.Status = FeedStatusCancelled
		res.Cancelled = true
		return ctx.Err()
	default:
	}

	ioCtx := context.WithoutCancel(ctx)

	data, err := t.pipeline.Fetcher.Run(ioCtx, t.Target)
	if err != nil {
		return t.fail(fmt.Errorf("failed to fetch feed: %w", err))
	}

	metadata, items, err := t.pipeline.Parser.Run(data)
	if err != nil {
		return t.fail(fmt.Errorf("failed to parse feed: %w", err))
	}
	if metadata != nil {
		res.Title = metadata.Title
	}
	res.Entries = len(items)

	if len(items) == 0 {
		res.Status = FeedStatusSkippedEmpty
		slog.Info("Feed has no entries", "feed", t.Target)
		return nil
	}

	mark, err := t.lastPubDate(ioCtx)
	if err != nil {
		return t.fail(err)
	}
	res.HighWaterMark = mark

	newItems := t.diff(items, mark)
	res.New = len(newItems)

	var maxFiled *time.Time
	consumed := 0
	for i, batch := range Batch(newItems, t.pipeline.BatchSize) {
		if ctx.Err() != nil {
			res.Cancelled = true
			slog.Info("Stopping feed before next batch", "feed", t.Target, "batch", i+1, "remaining", len(newItems)-consumed)
			break
		}
		res.Batches++
		consumed += len(batch)
		if batchMax := t.processBatch(ioCtx, batch); batchMax != nil && (maxFiled == nil || batchMax.After(*maxFiled)) {
			maxFiled = batchMax
		}
	}

	if res.Filed > 0 && maxFiled != nil {
		if mark != nil && !maxFiled.After(*mark) {
			maxFiled = mark
		}
		if err := t.updateFeedState(ioCtx, *maxFiled, res.Filed); err != nil {
			return t.fail(err)
		}
		res.HighWaterMark = maxFiled
	}

	res.Status = FeedStatusDone

	slog.Info("Task completed",
		"type", "ProcessFeed",
		"feed", t.Target,
		"duration", t.GetDuration(),
		"total", res.Entries,
		"undated", res.Undated,
		"new", res.New,
		"batches", res.Batches,
		"filed", res.Filed,
		"dropped", res.Dropped,
		"failed", res.Failed,
		"cancelled", res.Cancelled)

	return nil
}

// diff keeps dated items newer than mark, newest first.
func (t *ProcessFeedTask) diff(items []feed.Item, mark *time.Time) []*feed.Item {
	var kept []*feed.Item
	for i := range items {
		item := &items[i]
		if item.PublishedAt == nil {
			item.PublishedAt = feed.NormalizeDate(item)
		}
		if item.PublishedAt == nil {
			t.Result.Undated++
			slog.Debug("Skipping entry without a usable date", "feed", t.Target, "link", item.Link)
			continue
		}
		if mark != nil && !item.PublishedAt.After(*mark) {
			continue
		}
		kept = append(kept, item)
	}

	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].PublishedAt.After(*kept[j].PublishedAt)
	})

	return kept
}

// processBatch classifies and files one batch and returns the newest date
// among the articles that were filed.
func (t *ProcessFeedTask) processBatch(ctx context.Context, batch []*feed.Item) *time.Time {
	res := t.Result
	groups := make(map[classifier.Disposition][]classifiedItem)

	for _, item := range batch {
		decision, err := t.pipeline.Policy.Classify(ctx, item)
		if err != nil {
			res.Failed++
			slog.Warn("Failed to classify article", "feed", t.Target, "link", item.Link, "error", err)
			continue
		}
		res.Classified[decision.Disposition]++
		groups[decision.Disposition] = append(groups[decision.Disposition], classifiedItem{item: item, decision: decision})
		slog.Debug("Article classified", "feed", t.Target, "link", item.Link, "disposition", decision.Disposition, "reason", decision.Reason)
	}

	var maxFiled *time.Time
	for _, label := range t.pipeline.Policy.Labels() {
		group := t.withLinks(groups[label])
		if len(group) == 0 {
			continue
		}

		if label == classifier.Skip && !t.pipeline.SaveSkipped {
			res.Dropped += len(group)
			slog.Debug("Dropping skipped articles", "feed", t.Target, "count", len(group))
			continue
		}

		collectionID := t.pipeline.Collections[string(label)]
		if collectionID <= 0 {
			res.Failed += len(group)
			slog.Error("No collection configured for disposition", "feed", t.Target, "disposition", label)
			continue
		}

		created, err := t.pipeline.Filer.AddBookmarks(ctx, toBookmarks(group), collectionID)
		if err != nil {
			res.Failed += len(group)
			slog.Error("Failed to file articles", "feed", t.Target, "disposition", label, "count", len(group), "error", err)
			continue
		}
		res.Filed += created
		if created < len(group) {
			// the response does not say which ones failed, so the whole
			// group stays below the mark and is filed again next run
			res.Failed += len(group) - created
			slog.Warn("Bookmark store created fewer items than sent", "feed", t.Target, "disposition", label, "sent", len(group), "created", created)
			continue
		}

		for _, c := range group {
			if maxFiled == nil || c.item.PublishedAt.After(*maxFiled) {
				maxFiled = c.item.PublishedAt
			}
		}
	}

	return maxFiled
}

// withLinks drops articles that cannot become bookmarks.
func (t *ProcessFeedTask) withLinks(group []classifiedItem) []classifiedItem {
	kept := group[:0]
	for _, c := range group {
		if c.item.Link == "" {
			t.Result.Dropped++
			slog.Warn("Article missing required link field", "feed", t.Target, "title", c.item.Title)
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

func (t *ProcessFeedTask) lastPubDate(ctx context.Context) (*time.Time, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()

	mark, err := t.pipeline.Store.LastPubDate(timeoutCtx, t.Target)
	if err != nil {
		return nil, fmt.Errorf("failed to read feed state: %w", err)
	}
	return mark, nil
}

func (t *ProcessFeedTask) updateFeedState(ctx context.Context, mark time.Time, filed int) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, stateTimeout)
	defer cancel()

	if err := t.pipeline.Store.UpdateFeedState(timeoutCtx, t.Target, mark, filed); err != nil {
		return fmt.Errorf("failed to update feed state: %w", err)
	}
	return nil
}

func (t *ProcessFeedTask) fail(err error) error {
	t.Result.Status = FeedStatusFailed
	t.Result.Error = err.Error()
	return err
}

func toBookmarks(group []classifiedItem) []raindrop.Bookmark {
	bookmarks := make([]raindrop.Bookmark, 0, len(group))
	for _, c := range group {
		bookmarks = append(bookmarks, raindrop.Bookmark{
			Link:    c.item.Link,
			Title:   c.item.Title,
			Excerpt: c.decision.Reason,
			Created: c.item.PublishedAt,
		})
	}
	return bookmarks
}

// Batch splits items into contiguous groups of at most size elements.
func Batch[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultBatchSize
	}

	batches := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		batches = append(batches, items[start:end])
	}
	return batches
}
