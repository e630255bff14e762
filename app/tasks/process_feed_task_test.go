package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/lysyi3m/rss-bouncer/app/classifier"
	"github.com/lysyi3m/rss-bouncer/app/feed"
)

const testFeed = "https://example.com/feed.xml"

func TestBatch(t *testing.T) {
	tests := []struct {
		name     string
		count    int
		size     int
		expected []int
	}{
		{"twelve by five", 12, 5, []int{5, 5, 2}},
		{"exact multiple", 10, 5, []int{5, 5}},
		{"smaller than batch", 3, 5, []int{3}},
		{"empty", 0, 5, []int{}},
		{"default size", 7, 0, []int{5, 2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items := make([]int, tt.count)
			for i := range items {
				items[i] = i
			}

			batches := Batch(items, tt.size)
			if len(batches) != len(tt.expected) {
				t.Fatalf("Expected %d batches, got %d", len(tt.expected), len(batches))
			}

			next := 0
			for i, batch := range batches {
				if len(batch) != tt.expected[i] {
					t.Errorf("Batch %d: expected size %d, got %d", i, tt.expected[i], len(batch))
				}
				for _, v := range batch {
					if v != next {
						t.Errorf("Expected contiguous batches, got %d at position %d", v, next)
					}
					next++
				}
			}
		})
	}
}

func TestProcessFeedTask_BatchesNewestFirst(t *testing.T) {
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(12)}, &MockPolicy{})

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	res := task.Result
	if res.Status != FeedStatusDone {
		t.Errorf("Expected status done, got %s", res.Status)
	}
	if res.New != 12 || res.Batches != 3 || res.Filed != 12 {
		t.Errorf("Expected 12 new in 3 batches all filed, got new=%d batches=%d filed=%d", res.New, res.Batches, res.Filed)
	}

	sizes := []int{}
	for _, call := range filer.calls {
		sizes = append(sizes, len(call.bookmarks))
		if call.collectionID != 101 {
			t.Errorf("Expected read collection 101, got %d", call.collectionID)
		}
	}
	if fmt.Sprint(sizes) != "[5 5 2]" {
		t.Errorf("Expected filing calls of [5 5 2], got %v", sizes)
	}

	first := filer.calls[0].bookmarks[0]
	if first.Link != "https://example.com/11" {
		t.Errorf("Expected newest article first, got %s", first.Link)
	}
	if first.Excerpt != "ok" {
		t.Errorf("Expected reason as excerpt, got '%s'", first.Excerpt)
	}

	state := store.states[testFeed]
	if !state.lastPubDate.Equal(baseTime.Add(-time.Hour)) {
		t.Errorf("Expected mark at newest article, got %v", state.lastPubDate)
	}
	if state.processedCount != 12 {
		t.Errorf("Expected processed count 12, got %d", state.processedCount)
	}
}

func TestProcessFeedTask_Idempotent(t *testing.T) {
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(4)}, &MockPolicy{})

	if err := NewProcessFeedTask(testFeed, pipeline).Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	markAfterFirst := store.states[testFeed].lastPubDate
	callsAfterFirst := len(filer.calls)

	second := NewProcessFeedTask(testFeed, pipeline)
	if err := second.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if second.Result.New != 0 || second.Result.Filed != 0 {
		t.Errorf("Expected nothing new on re-run, got new=%d filed=%d", second.Result.New, second.Result.Filed)
	}
	if len(filer.calls) != callsAfterFirst {
		t.Errorf("Expected no additional filing calls, got %d", len(filer.calls)-callsAfterFirst)
	}
	if !store.states[testFeed].lastPubDate.Equal(markAfterFirst) {
		t.Errorf("Expected unchanged mark, got %v", store.states[testFeed].lastPubDate)
	}
	if store.updates != 1 {
		t.Errorf("Expected a single state write, got %d", store.updates)
	}
}

func TestProcessFeedTask_OnlyNewerThanMark(t *testing.T) {
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(6)}, &MockPolicy{})
	mark := baseTime.Add(-3 * time.Hour)
	store.states[testFeed] = storedState{lastPubDate: mark}

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	// entries at -2h and -1h are newer; -3h equals the mark and is excluded
	if task.Result.New != 2 || filer.filed() != 2 {
		t.Errorf("Expected 2 new articles filed, got new=%d filed=%d", task.Result.New, filer.filed())
	}
	if !store.states[testFeed].lastPubDate.Equal(baseTime.Add(-time.Hour)) {
		t.Errorf("Expected mark to advance to newest, got %v", store.states[testFeed].lastPubDate)
	}
}

func TestProcessFeedTask_MarkNeverRegresses(t *testing.T) {
	items := map[string][]feed.Item{testFeed: datedItems(3)}
	pipeline, _, store := newTestPipeline(items, &MockPolicy{})

	var marks []time.Time
	for run := 0; run < 3; run++ {
		if run == 2 {
			// feed now only lists older entries
			items[testFeed] = []feed.Item{dated("https://example.com/old", 48)}
		}
		if err := NewProcessFeedTask(testFeed, pipeline).Execute(context.Background()); err != nil {
			t.Fatalf("Run %d: expected no error, got: %v", run, err)
		}
		marks = append(marks, store.states[testFeed].lastPubDate)
	}

	for i := 1; i < len(marks); i++ {
		if marks[i].Before(marks[i-1]) {
			t.Errorf("Mark regressed from %v to %v", marks[i-1], marks[i])
		}
	}
}

func TestProcessFeedTask_CancelledMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	policy := &MockPolicy{}
	policy.classify = func(item *feed.Item) (classifier.Decision, error) {
		if policy.calls == 5 {
			cancel()
		}
		return classifier.Decision{Disposition: classifier.Read, Reason: "ok"}, nil
	}
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(12)}, policy)

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(ctx); err != nil {
		t.Fatalf("Expected graceful stop, got: %v", err)
	}

	res := task.Result
	if !res.Cancelled {
		t.Error("Expected result to be marked cancelled")
	}
	if res.Batches != 1 || res.Filed != 5 {
		t.Errorf("Expected only the first batch filed, got batches=%d filed=%d", res.Batches, res.Filed)
	}
	if len(filer.calls) != 1 {
		t.Errorf("Expected in-flight batch to finish filing, got %d calls", len(filer.calls))
	}

	// newest five are -1h..-5h
	state := store.states[testFeed]
	if !state.lastPubDate.Equal(baseTime.Add(-time.Hour)) {
		t.Errorf("Expected mark from filed batch, got %v", state.lastPubDate)
	}

	pipeline.Policy = &MockPolicy{}
	rerun := NewProcessFeedTask(testFeed, pipeline)
	if err := rerun.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if rerun.Result.New != 0 {
		t.Errorf("Expected unfiled older articles to stay behind the mark, got %d new", rerun.Result.New)
	}
}

func TestProcessFeedTask_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	pipeline, _, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(3)}, &MockPolicy{})
	fetcher := pipeline.Fetcher.(*MockFetcher)

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if fetcher.calls != 0 || store.updates != 0 {
		t.Errorf("Expected no work, got fetches=%d updates=%d", fetcher.calls, store.updates)
	}
	if task.Result.Status != FeedStatusCancelled {
		t.Errorf("Expected status cancelled, got %s", task.Result.Status)
	}
}

func TestProcessFeedTask_DropSkipRetry(t *testing.T) {
	policy := &MockPolicy{classify: func(item *feed.Item) (classifier.Decision, error) {
		return classifier.Decision{Disposition: classifier.Skip, Reason: "not relevant"}, nil
	}}
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(3)}, policy)
	pipeline.SaveSkipped = false

	for run := 0; run < 2; run++ {
		task := NewProcessFeedTask(testFeed, pipeline)
		if err := task.Execute(context.Background()); err != nil {
			t.Fatalf("Run %d: expected no error, got: %v", run, err)
		}
		if task.Result.New != 3 {
			t.Errorf("Run %d: expected the same 3 articles to be new, got %d", run, task.Result.New)
		}
		if task.Result.Filed != 0 || task.Result.Dropped != 3 {
			t.Errorf("Run %d: expected 0 filed and 3 dropped, got filed=%d dropped=%d", run, task.Result.Filed, task.Result.Dropped)
		}
	}

	if len(filer.calls) != 0 {
		t.Errorf("Expected no filing calls, got %d", len(filer.calls))
	}
	if _, ok := store.states[testFeed]; ok || store.updates != 0 {
		t.Error("Expected mark to stay unset")
	}
}

func TestProcessFeedTask_ClassificationErrorContained(t *testing.T) {
	policy := &MockPolicy{classify: func(item *feed.Item) (classifier.Decision, error) {
		if item.Link == "https://example.com/02" {
			return classifier.Decision{}, errors.New("boom")
		}
		return classifier.Decision{Disposition: classifier.Read, Reason: "ok"}, nil
	}}
	pipeline, filer, _ := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(4)}, policy)

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if task.Result.Failed != 1 || task.Result.Filed != 3 {
		t.Errorf("Expected 1 failed and 3 filed, got failed=%d filed=%d", task.Result.Failed, task.Result.Filed)
	}
	for _, b := range filer.calls[0].bookmarks {
		if b.Link == "https://example.com/02" {
			t.Error("Expected failed article to be excluded from filing")
		}
	}
}

func TestProcessFeedTask_GroupsByDisposition(t *testing.T) {
	policy := &MockPolicy{
		labels: classifier.ThreeWayLabels,
		classify: func(item *feed.Item) (classifier.Decision, error) {
			switch {
			case strings.HasSuffix(item.Link, "0"):
				return classifier.Decision{Disposition: classifier.Skip, Reason: "skip"}, nil
			case strings.HasSuffix(item.Link, "1"):
				return classifier.Decision{Disposition: classifier.Maybe, Reason: "maybe"}, nil
			}
			return classifier.Decision{Disposition: classifier.Read, Reason: "read"}, nil
		},
	}
	pipeline, filer, _ := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(3)}, policy)

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if len(filer.calls) != 3 {
		t.Fatalf("Expected one call per disposition, got %d", len(filer.calls))
	}
	expected := []int64{101, 102, 103}
	for i, call := range filer.calls {
		if call.collectionID != expected[i] || len(call.bookmarks) != 1 {
			t.Errorf("Call %d: expected 1 bookmark to %d, got %d to %d", i, expected[i], len(call.bookmarks), call.collectionID)
		}
	}
	if task.Result.Classified[classifier.Maybe] != 1 {
		t.Errorf("Expected 1 maybe, got %d", task.Result.Classified[classifier.Maybe])
	}
}

func TestProcessFeedTask_FilingErrorExcludedFromMark(t *testing.T) {
	policy := &MockPolicy{classify: func(item *feed.Item) (classifier.Decision, error) {
		if item.Link == "https://example.com/02" {
			return classifier.Decision{Disposition: classifier.Skip, Reason: "skip"}, nil
		}
		return classifier.Decision{Disposition: classifier.Read, Reason: "read"}, nil
	}}
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(3)}, policy)
	filer.errs = map[int64]error{103: errors.New("raindrop down")}

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if task.Result.Filed != 2 || task.Result.Failed != 1 {
		t.Errorf("Expected 2 filed and 1 failed, got filed=%d failed=%d", task.Result.Filed, task.Result.Failed)
	}
	// the skip article is the newest (-1h); the mark covers only filed ones
	if !store.states[testFeed].lastPubDate.Equal(baseTime.Add(-2 * time.Hour)) {
		t.Errorf("Expected mark at newest filed article, got %v", store.states[testFeed].lastPubDate)
	}
}

func TestProcessFeedTask_PartialCreationKeepsGroupBelowMark(t *testing.T) {
	pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(3)}, &MockPolicy{})
	filer.limit = map[int64]int{101: 1}

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if task.Result.Filed != 1 || task.Result.Failed != 2 {
		t.Errorf("Expected 1 filed and 2 failed, got filed=%d failed=%d", task.Result.Filed, task.Result.Failed)
	}
	if _, ok := store.states[testFeed]; ok {
		t.Errorf("Expected no mark after partial creation, got %v", store.states[testFeed].lastPubDate)
	}

	filer.limit = nil
	retry := NewProcessFeedTask(testFeed, pipeline)
	if err := retry.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if retry.Result.New != 3 || retry.Result.Filed != 3 {
		t.Errorf("Expected all 3 articles filed again, got new=%d filed=%d", retry.Result.New, retry.Result.Filed)
	}
	if !store.states[testFeed].lastPubDate.Equal(baseTime.Add(-1 * time.Hour)) {
		t.Errorf("Expected mark at newest article, got %v", store.states[testFeed].lastPubDate)
	}
}

func TestProcessFeedTask_UndatedAndLinkless(t *testing.T) {
	items := datedItems(2)
	items = append(items, feed.Item{Link: "https://example.com/undated", Title: "No date"})
	noLink := dated("", 1)
	items = append(items, noLink)

	pipeline, filer, _ := newTestPipeline(map[string][]feed.Item{testFeed: items}, &MockPolicy{})

	task := NewProcessFeedTask(testFeed, pipeline)
	if err := task.Execute(context.Background()); err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}

	if task.Result.Undated != 1 {
		t.Errorf("Expected 1 undated entry, got %d", task.Result.Undated)
	}
	if task.Result.New != 3 || task.Result.Dropped != 1 || filer.filed() != 2 {
		t.Errorf("Expected 3 new, 1 dropped, 2 filed, got new=%d dropped=%d filed=%d", task.Result.New, task.Result.Dropped, filer.filed())
	}
}

func TestProcessFeedTask_EmptyAndFailures(t *testing.T) {
	t.Run("empty feed", func(t *testing.T) {
		pipeline, _, store := newTestPipeline(map[string][]feed.Item{testFeed: {}}, &MockPolicy{})
		task := NewProcessFeedTask(testFeed, pipeline)
		if err := task.Execute(context.Background()); err != nil {
			t.Fatalf("Expected no error, got: %v", err)
		}
		if task.Result.Status != FeedStatusSkippedEmpty || store.updates != 0 {
			t.Errorf("Expected skipped_empty without state write, got %s", task.Result.Status)
		}
	})

	t.Run("fetch failure", func(t *testing.T) {
		pipeline, _, _ := newTestPipeline(nil, &MockPolicy{})
		pipeline.Fetcher = &MockFetcher{errs: map[string]error{testFeed: errors.New("timeout")}}
		task := NewProcessFeedTask(testFeed, pipeline)
		err := task.Execute(context.Background())
		if err == nil || !strings.Contains(err.Error(), "failed to fetch feed") {
			t.Errorf("Expected fetch error, got %v", err)
		}
		if task.Result.Status != FeedStatusFailed || task.Result.Error == "" {
			t.Errorf("Expected failed status with error, got %+v", task.Result)
		}
	})

	t.Run("state read failure", func(t *testing.T) {
		pipeline, filer, store := newTestPipeline(map[string][]feed.Item{testFeed: datedItems(2)}, &MockPolicy{})
		store.readErr = errors.New("redis gone")
		task := NewProcessFeedTask(testFeed, pipeline)
		if err := task.Execute(context.Background()); err == nil {
			t.Error("Expected error when state cannot be read")
		}
		if len(filer.calls) != 0 {
			t.Error("Expected nothing filed without a known mark")
		}
	})
}
