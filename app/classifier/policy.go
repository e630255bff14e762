package classifier

import (
	"cmp"
	"context"
	"time"

	"github.com/lysyi3m/rss-bouncer/app/feed"
)

const (
	ReasonMissingLink = "missing link"
	ReasonMissingDate = "missing date"
	ReasonTooOld      = "too old"
	ReasonNoAnalysis  = "no content analysis available"
	ReasonKept        = "no skip criteria matched"
)

// MaxAge converts an age in years to a duration of 365-day years.
func MaxAge(years float64) time.Duration {
	return time.Duration(years * 365 * 24 * float64(time.Hour))
}

// rules are the deterministic checks shared by both policies.
type rules struct {
	maxAge   time.Duration
	filterer *feed.Filterer
	now      func() time.Time
}

func (r rules) tooOld(date time.Time) bool {
	return r.now().Sub(date) > r.maxAge
}

func (r rules) excluded(item *feed.Item) (bool, string) {
	if r.filterer == nil {
		return false, ""
	}
	return r.filterer.Run(item)
}

// TwoWay keeps an article unless a rule or the semantic classifier says skip.
type TwoWay struct {
	rules
	semantic *Semantic
}

var _ Policy = (*TwoWay)(nil)

// NewTwoWay builds the read/skip policy. filterer and semantic may be nil.
func NewTwoWay(maxAge time.Duration, filterer *feed.Filterer, semantic *Semantic) *TwoWay {
	return &TwoWay{
		rules:    rules{maxAge: maxAge, filterer: filterer, now: time.Now},
		semantic: semantic,
	}
}

func (p *TwoWay) ShouldSkip(ctx context.Context, item *feed.Item) (bool, string) {
	if item.Link == "" {
		return true, ReasonMissingLink
	}
	if item.PublishedAt == nil {
		return true, ReasonMissingDate
	}
	if p.tooOld(*item.PublishedAt) {
		return true, ReasonTooOld
	}
	if excluded, reason := p.excluded(item); excluded {
		return true, reason
	}
	if p.semantic != nil && p.semantic.HasSkipCriteria() {
		decision := p.semantic.Classify(ctx, item)
		return decision.Disposition == Skip, decision.Reason
	}
	return false, ""
}

func (p *TwoWay) Classify(ctx context.Context, item *feed.Item) (Decision, error) {
	skip, reason := p.ShouldSkip(ctx, item)
	if skip {
		return Decision{Disposition: Skip, Reason: reason}, nil
	}
	return Decision{Disposition: Read, Reason: cmp.Or(reason, ReasonKept)}, nil
}

func (p *TwoWay) Labels() []Disposition {
	return TwoWayLabels
}

// ThreeWay sends anything it cannot judge to maybe. Only staleness and
// explicit keyword exclusions are skipped without semantic review.
type ThreeWay struct {
	rules
	semantic *Semantic
}

var _ Policy = (*ThreeWay)(nil)

func NewThreeWay(maxAge time.Duration, filterer *feed.Filterer, semantic *Semantic) *ThreeWay {
	return &ThreeWay{
		rules:    rules{maxAge: maxAge, filterer: filterer, now: time.Now},
		semantic: semantic,
	}
}

func (p *ThreeWay) Analyze(ctx context.Context, item *feed.Item) (Disposition, string) {
	if item.Link == "" {
		return Maybe, ReasonMissingLink
	}
	if item.PublishedAt == nil {
		return Maybe, ReasonMissingDate
	}
	if p.tooOld(*item.PublishedAt) {
		return Skip, ReasonTooOld
	}
	if excluded, reason := p.excluded(item); excluded {
		return Skip, reason
	}
	if p.semantic != nil {
		decision := p.semantic.Classify(ctx, item)
		return decision.Disposition, decision.Reason
	}
	return Maybe, ReasonNoAnalysis
}

func (p *ThreeWay) Classify(ctx context.Context, item *feed.Item) (Decision, error) {
	disposition, reason := p.Analyze(ctx, item)
	return Decision{Disposition: disposition, Reason: reason}, nil
}

func (p *ThreeWay) Labels() []Disposition {
	return ThreeWayLabels
}
