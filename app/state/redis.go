package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisPrefix = "rss-bouncer:"

// RedisStore keeps one hash per feed plus a set of known feed URLs.
type RedisStore struct {
	client *redis.Client
	prefix string
}

var _ Store = (*RedisStore)(nil)

func NewRedisStore(ctx context.Context, addr, password string, db int, prefix string) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Debug("Connected to Redis", "addr", addr, "db", db)

	return NewRedisStoreWithClient(client, prefix), nil
}

func NewRedisStoreWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) feedKey(feedURL string) string {
	return s.prefix + "feed:" + feedURL
}

func (s *RedisStore) feedsKey() string {
	return s.prefix + "feeds"
}

func (s *RedisStore) LastPubDate(ctx context.Context, feedURL string) (*time.Time, error) {
	value, err := s.client.HGet(ctx, s.feedKey(feedURL), "last_pub_date").Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last pub date: %w", err)
	}
	return parseTime(feedURL, "last_pub_date", value), nil
}

func (s *RedisStore) FeedState(ctx context.Context, feedURL string) (*FeedState, error) {
	fields, err := s.client.HGetAll(ctx, s.feedKey(feedURL)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get feed state: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return newRedisState(feedURL, fields), nil
}

func (s *RedisStore) List(ctx context.Context) ([]FeedState, error) {
	urls, err := s.client.SMembers(ctx, s.feedsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	sort.Strings(urls)

	states := make([]FeedState, 0, len(urls))
	for _, url := range urls {
		state, err := s.FeedState(ctx, url)
		if err != nil {
			return nil, err
		}
		if state != nil {
			states = append(states, *state)
		}
	}

	return states, nil
}

func (s *RedisStore) UpdateFeedState(ctx context.Context, feedURL string, lastPubDate time.Time, processedCount int) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.feedKey(feedURL), map[string]any{
			"feed_url":        feedURL,
			"last_pub_date":   formatTime(lastPubDate),
			"last_processed":  formatTime(time.Now()),
			"processed_count": processedCount,
		})
		pipe.SAdd(ctx, s.feedsKey(), feedURL)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update feed state: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func newRedisState(feedURL string, fields map[string]string) *FeedState {
	count, err := strconv.Atoi(fields["processed_count"])
	if err != nil && fields["processed_count"] != "" {
		slog.Warn("Ignoring unreadable processed count", "feed", feedURL, "value", fields["processed_count"])
	}
	return &FeedState{
		FeedURL:        feedURL,
		LastPubDate:    parseTime(feedURL, "last_pub_date", fields["last_pub_date"]),
		LastProcessed:  parseTime(feedURL, "last_processed", fields["last_processed"]),
		ProcessedCount: count,
	}
}
