package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const fileVersion = 1

type fileDocument struct {
	Feeds   map[string]fileEntry `json:"feeds"`
	Version int                  `json:"version"`
}

type fileEntry struct {
	LastPubDate    string `json:"last_pub_date"`
	LastProcessed  string `json:"last_processed"`
	ProcessedCount int    `json:"processed_count"`
}

// FileStore keeps all feed states in one JSON document. Writes replace the
// file through a rename, so readers see either the old or the new document.
type FileStore struct {
	path string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) LastPubDate(ctx context.Context, feedURL string) (*time.Time, error) {
	state, err := s.FeedState(ctx, feedURL)
	if err != nil || state == nil {
		return nil, err
	}
	return state.LastPubDate, nil
}

func (s *FileStore) FeedState(ctx context.Context, feedURL string) (*FeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.load().Feeds[feedURL]
	if !ok {
		return nil, nil
	}
	return entry.toState(feedURL), nil
}

func (s *FileStore) List(ctx context.Context) ([]FeedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	states := make([]FeedState, 0, len(doc.Feeds))
	for url, entry := range doc.Feeds {
		states = append(states, *entry.toState(url))
	}
	sort.Slice(states, func(i, j int) bool { return states[i].FeedURL < states[j].FeedURL })

	return states, nil
}

func (s *FileStore) UpdateFeedState(ctx context.Context, feedURL string, lastPubDate time.Time, processedCount int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc := s.load()
	doc.Feeds[feedURL] = fileEntry{
		LastPubDate:    formatTime(lastPubDate),
		LastProcessed:  formatTime(time.Now()),
		ProcessedCount: processedCount,
	}

	return s.save(doc)
}

func (s *FileStore) Close() error {
	return nil
}

// load returns the current document, or an empty one when the file is
// missing or unreadable.
func (s *FileStore) load() *fileDocument {
	empty := &fileDocument{Feeds: make(map[string]fileEntry), Version: fileVersion}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Failed to read state file, starting from empty state", "path", s.path, "error", err)
		}
		return empty
	}

	var doc fileDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		slog.Warn("Corrupt state file, starting from empty state", "path", s.path, "error", err)
		return empty
	}
	if doc.Feeds == nil {
		doc.Feeds = make(map[string]fileEntry)
	}
	doc.Version = fileVersion

	return &doc
}

func (s *FileStore) save(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".state-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}

	return nil
}

func (e fileEntry) toState(feedURL string) *FeedState {
	return &FeedState{
		FeedURL:        feedURL,
		LastPubDate:    parseTime(feedURL, "last_pub_date", e.LastPubDate),
		LastProcessed:  parseTime(feedURL, "last_processed", e.LastProcessed),
		ProcessedCount: e.ProcessedCount,
	}
}
