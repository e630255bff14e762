package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lysyi3m/rss-bouncer/app/classifier"
	"github.com/lysyi3m/rss-bouncer/app/feed"
	"github.com/lysyi3m/rss-bouncer/app/raindrop"
)

// MockFetcher returns the feed URL itself as the body so MockParser can look
// the entries up.
type MockFetcher struct {
	errs  map[string]error
	calls int
}

func (m *MockFetcher) Run(ctx context.Context, url string) ([]byte, error) {
	m.calls++
	if err := m.errs[url]; err != nil {
		return nil, err
	}
	return []byte(url), nil
}

// MockParser hands out a fresh copy of the configured entries on every call.
type MockParser struct {
	items map[string][]feed.Item
}

func (m *MockParser) Run(data []byte) (*feed.Metadata, []feed.Item, error) {
	items, ok := m.items[string(data)]
	if !ok {
		return nil, nil, fmt.Errorf("unknown feed %s", data)
	}
	out := make([]feed.Item, len(items))
	for i, item := range items {
		out[i] = item
		if item.PublishedAt != nil {
			date := *item.PublishedAt
			out[i].PublishedAt = &date
		}
	}
	return &feed.Metadata{Title: "Feed " + string(data)}, out, nil
}

type filerCall struct {
	collectionID int64
	bookmarks    []raindrop.Bookmark
}

type MockFiler struct {
	mu    sync.Mutex
	calls []filerCall
	errs  map[int64]error
	// limit caps how many bookmarks a collection reports as created
	limit map[int64]int
}

func (m *MockFiler) AddBookmarks(ctx context.Context, bookmarks []raindrop.Bookmark, collectionID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errs[collectionID]; err != nil {
		return 0, err
	}
	m.calls = append(m.calls, filerCall{collectionID: collectionID, bookmarks: bookmarks})
	if limit, ok := m.limit[collectionID]; ok && limit < len(bookmarks) {
		return limit, nil
	}
	return len(bookmarks), nil
}

func (m *MockFiler) filed() int {
	total := 0
	for _, c := range m.calls {
		total += len(c.bookmarks)
	}
	return total
}

type storedState struct {
	lastPubDate    time.Time
	processedCount int
}

type MockStore struct {
	states  map[string]storedState
	updates int
	readErr error
}

func NewMockStore() *MockStore {
	return &MockStore{states: make(map[string]storedState)}
}

func (m *MockStore) LastPubDate(ctx context.Context, feedURL string) (*time.Time, error) {
	if m.readErr != nil {
		return nil, m.readErr
	}
	s, ok := m.states[feedURL]
	if !ok {
		return nil, nil
	}
	date := s.lastPubDate
	return &date, nil
}

func (m *MockStore) UpdateFeedState(ctx context.Context, feedURL string, lastPubDate time.Time, processedCount int) error {
	m.updates++
	m.states[feedURL] = storedState{lastPubDate: lastPubDate.UTC(), processedCount: processedCount}
	return nil
}

// MockPolicy classifies with a function; by default everything is read.
type MockPolicy struct {
	labels   []classifier.Disposition
	classify func(item *feed.Item) (classifier.Decision, error)
	calls    int
}

func (m *MockPolicy) Classify(ctx context.Context, item *feed.Item) (classifier.Decision, error) {
	m.calls++
	if m.classify == nil {
		return classifier.Decision{Disposition: classifier.Read, Reason: "ok"}, nil
	}
	return m.classify(item)
}

func (m *MockPolicy) Labels() []classifier.Disposition {
	if m.labels == nil {
		return classifier.TwoWayLabels
	}
	return m.labels
}

var testCollections = map[string]int64{"read": 101, "maybe": 102, "skip": 103}

func newTestPipeline(items map[string][]feed.Item, policy *MockPolicy) (*Pipeline, *MockFiler, *MockStore) {
	filer := &MockFiler{}
	store := NewMockStore()
	return &Pipeline{
		Fetcher:     &MockFetcher{},
		Parser:      &MockParser{items: items},
		Policy:      policy,
		Filer:       filer,
		Store:       store,
		Collections: testCollections,
		BatchSize:   5,
		SaveSkipped: true,
	}, filer, store
}

var baseTime = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func dated(link string, hoursAgo int) feed.Item {
	date := baseTime.Add(-time.Duration(hoursAgo) * time.Hour)
	return feed.Item{Link: link, Title: "Title " + link, PublishedAt: &date}
}

func datedItems(n int) []feed.Item {
	items := make([]feed.Item, n)
	for i := range items {
		// oldest first, as many feeds list them
		items[i] = dated(fmt.Sprintf("https://example.com/%02d", i), n-i)
	}
	return items
}
