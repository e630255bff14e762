package api

import (
	"context"

	"github.com/lysyi3m/rss-bouncer/app/state"
	"github.com/lysyi3m/rss-bouncer/app/tasks"
)

type StateReader interface {
	FeedState(ctx context.Context, feedURL string) (*state.FeedState, error)
}

type SweepReporter interface {
	LastResult() *tasks.SweepResult
}

var (
	_ StateReader   = (state.Store)(nil)
	_ SweepReporter = (*tasks.Sweeper)(nil)
)

type Handler struct {
	feeds     []string
	store     StateReader
	sweeper   SweepReporter
	scheduler tasks.SchedulerInterface
	version   string
}
