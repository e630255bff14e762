package classifier

import (
	"context"

	"github.com/lysyi3m/rss-bouncer/app/feed"
)

type Disposition string

const (
	Read  Disposition = "read"
	Maybe Disposition = "maybe"
	Skip  Disposition = "skip"
)

var (
	TwoWayLabels   = []Disposition{Read, Skip}
	ThreeWayLabels = []Disposition{Read, Maybe, Skip}
)

// Decision is the outcome for one article. Reason becomes the bookmark's
// note, so it is never empty.
type Decision struct {
	Disposition Disposition
	Reason      string
}

// Policy assigns a disposition to an article.
type Policy interface {
	Classify(ctx context.Context, item *feed.Item) (Decision, error)
	Labels() []Disposition
}

// Completer sends one system+user prompt pair to a language model and
// returns its raw text answer.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

type Tokenizer interface {
	Count(text string) int
	Truncate(text string, maxTokens int) string
}

// ContentSource supplies readable article text when a feed carries none.
type ContentSource interface {
	Run(ctx context.Context, link string) (string, error)
}

var _ ContentSource = (*feed.ContentExtractor)(nil)
