package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
)

// Store wraps an embedded SQLite database. All writes are serialized
// through a single mutex, matching the single-writer-goroutine model
// spec.md §5 requires; SQLite itself enforces single-writer semantics
// at the file level, so this additionally keeps logical multi-statement
// upserts atomic from the caller's point of view.
type Store struct {
	db *sql.DB
	mu sync.Mutex

	// now is overridable in tests to make "processed_at"/"started_at"
	// deterministic; defaults to time.Now. All server-side timestamps
	// route through this so they are monotonic within one process.
	now func() time.Time
}

// Open creates the database file (and parent directory) if absent,
// enables foreign-key enforcement and WAL journaling, and applies all
// pending migrations. Safe to call from multiple processes against the
// same path — migrations are applied transactionally and tracked by
// name.
func Open(ctx context.Context, path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("store: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single embedded writer; avoids SQLITE_BUSY from concurrent connections

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping %s: %w", path, err)
	}

	if _, err := db.ExecContext(ctx, `PRAGMA foreign_keys = ON`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: enable WAL: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate %s: %w", path, err)
	}

	return &Store{db: db, now: time.Now}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Stats is the stats row for operator tooling.
type Stats struct {
	Guilds            int64
	Channels          int64
	Users             int64
	Messages          int64
	AIProcessingRows  int64
	MarketingExtracts int64
	MinMessageTime    *time.Time
	MaxMessageTime    *time.Time
	FileSizeBytes     int64
}

// Statistics reports counts across the store and the database file size.
func (s *Store) Statistics(ctx context.Context, path string) (Stats, error) {
	var st Stats
	queries := []struct {
		dst *int64
		sql string
	}{
		{&st.Guilds, `SELECT COUNT(*) FROM guilds`},
		{&st.Channels, `SELECT COUNT(*) FROM channels`},
		{&st.Users, `SELECT COUNT(*) FROM users`},
		{&st.Messages, `SELECT COUNT(*) FROM messages`},
		{&st.AIProcessingRows, `SELECT COUNT(*) FROM ai_processing`},
		{&st.MarketingExtracts, `SELECT COUNT(*) FROM marketing_extracts`},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return Stats{}, fmt.Errorf("store: statistics: %w", err)
		}
	}

	var minTS, maxTS sql.NullTime
	if err := s.db.QueryRowContext(ctx,
		`SELECT MIN(timestamp), MAX(timestamp) FROM messages`).Scan(&minTS, &maxTS); err != nil {
		return Stats{}, fmt.Errorf("store: statistics: %w", err)
	}
	if minTS.Valid {
		st.MinMessageTime = &minTS.Time
	}
	if maxTS.Valid {
		st.MaxMessageTime = &maxTS.Time
	}

	if info, err := os.Stat(path); err == nil {
		st.FileSizeBytes = info.Size()
	}

	return st, nil
}
