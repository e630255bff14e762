package tasks

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type SweepResult struct {
	ID          string       `json:"id"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	Feeds       []FeedResult `json:"feeds"`
	Filed       int          `json:"filed"`
	FailedFeeds int          `json:"failed_feeds"`
	Cancelled   bool         `json:"cancelled"`
}

// Sweeper processes every configured feed once per Run, strictly in order.
type Sweeper struct {
	feeds    []string
	pipeline *Pipeline

	mu   sync.RWMutex
	last *SweepResult
}

func NewSweeper(feeds []string, pipeline *Pipeline) *Sweeper {
	return &Sweeper{
		feeds:    feeds,
		pipeline: pipeline,
	}
}

func (s *Sweeper) Feeds() []string {
	return s.feeds
}

// Run sweeps all feeds. A failing feed is logged and the sweep moves on;
// cancelling ctx stops the sweep before the next feed or batch.
func (s *Sweeper) Run(ctx context.Context) *SweepResult {
	result := &SweepResult{
		ID:        NewTask(TaskTypeSweep, "").ID,
		StartedAt: time.Now().UTC(),
	}

	slog.Info("Sweep started", "id", result.ID, "feeds", len(s.feeds))

	for i, url := range s.feeds {
		if ctx.Err() != nil {
			result.Cancelled = true
			slog.Info("Sweep cancelled", "id", result.ID, "remaining_feeds", len(s.feeds)-i)
			break
		}

		task := NewProcessFeedTask(url, s.pipeline)
		if err := task.Execute(ctx); err != nil && task.Result.Status == FeedStatusFailed {
			result.FailedFeeds++
			slog.Error("Feed processing failed", "feed", url, "error", err)
		}

		result.Feeds = append(result.Feeds, *task.Result)
		result.Filed += task.Result.Filed
		if task.Result.Cancelled {
			result.Cancelled = true
		}
	}

	result.FinishedAt = time.Now().UTC()

	slog.Info("Sweep finished",
		"id", result.ID,
		"duration", result.FinishedAt.Sub(result.StartedAt),
		"feeds", len(result.Feeds),
		"filed", result.Filed,
		"failed_feeds", result.FailedFeeds,
		"cancelled", result.Cancelled)

	s.mu.Lock()
	s.last = result
	s.mu.Unlock()

	return result
}

// LastResult returns the most recent finished sweep, or nil.
func (s *Sweeper) LastResult() *SweepResult {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}
