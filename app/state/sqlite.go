package state

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

const feedStateTable = "feed_state"

// SQLStore records every state update as a new row keyed by
// (feed_url, entry_id). The current state of a feed is its most recently
// written row.
type SQLStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(ctx context.Context, path string) (*SQLStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := runMigrations(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Debug("State database ready", "path", path, "schema_version", version)

	return &SQLStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Question),
	}, nil
}

func runMigrations(db *sql.DB) (uint, error) {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return 0, fmt.Errorf("failed to create sqlite driver: %w", err)
	}

	source, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return 0, fmt.Errorf("failed to create iofs source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return 0, fmt.Errorf("failed to create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("failed to run migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil {
		return 0, fmt.Errorf("failed to get migration version: %w", err)
	}
	if dirty {
		return version, fmt.Errorf("database schema is dirty at version %d", version)
	}

	return version, nil
}

func (s *SQLStore) LastPubDate(ctx context.Context, feedURL string) (*time.Time, error) {
	state, err := s.FeedState(ctx, feedURL)
	if err != nil || state == nil {
		return nil, err
	}
	return state.LastPubDate, nil
}

func (s *SQLStore) FeedState(ctx context.Context, feedURL string) (*FeedState, error) {
	query, args, err := s.builder.
		Select("last_pub_date", "last_processed", "processed_count").
		From(feedStateTable).
		Where(sq.Eq{"feed_url": feedURL}).
		OrderBy("last_processed DESC", "rowid DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	var (
		lastPubDate    string
		lastProcessed  int64
		processedCount int
	)
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&lastPubDate, &lastProcessed, &processedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed state: %w", err)
	}

	return newSQLState(feedURL, lastPubDate, lastProcessed, processedCount), nil
}

func (s *SQLStore) List(ctx context.Context) ([]FeedState, error) {
	query, args, err := s.builder.
		Select("f.feed_url", "f.last_pub_date", "f.last_processed", "f.processed_count").
		From(feedStateTable + " f").
		Where("f.rowid = (SELECT g.rowid FROM " + feedStateTable + " g WHERE g.feed_url = f.feed_url ORDER BY g.last_processed DESC, g.rowid DESC LIMIT 1)").
		OrderBy("f.feed_url").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list feed states: %w", err)
	}
	defer rows.Close()

	var states []FeedState
	for rows.Next() {
		var (
			feedURL        string
			lastPubDate    string
			lastProcessed  int64
			processedCount int
		)
		if err := rows.Scan(&feedURL, &lastPubDate, &lastProcessed, &processedCount); err != nil {
			return nil, fmt.Errorf("failed to scan feed state: %w", err)
		}
		states = append(states, *newSQLState(feedURL, lastPubDate, lastProcessed, processedCount))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate feed states: %w", err)
	}

	return states, nil
}

func (s *SQLStore) UpdateFeedState(ctx context.Context, feedURL string, lastPubDate time.Time, processedCount int) error {
	query, args, err := s.builder.
		Insert(feedStateTable).
		Columns("feed_url", "entry_id", "last_pub_date", "last_processed", "processed_count").
		Values(feedURL, uuid.NewString(), formatTime(lastPubDate), time.Now().UnixNano(), processedCount).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update feed state: %w", err)
	}

	return nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func newSQLState(feedURL, lastPubDate string, lastProcessed int64, processedCount int) *FeedState {
	processed := time.Unix(0, lastProcessed).UTC()
	return &FeedState{
		FeedURL:        feedURL,
		LastPubDate:    parseTime(feedURL, "last_pub_date", lastPubDate),
		LastProcessed:  &processed,
		ProcessedCount: processedCount,
	}
}
