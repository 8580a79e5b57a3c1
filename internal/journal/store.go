// Package journal keeps a SQLite history of finished synthesis calls.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/logger"
	_ "modernc.org/sqlite"

	"github.com/book-expert/voice-clone-service/internal/config"
	"github.com/book-expert/voice-clone-service/internal/tts"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
	dirPermissions   = 0o750
)

// ErrEphemeral is returned by reads when nothing is retained.
var ErrEphemeral = errors.New("journal retention is ephemeral")

const schema = `
CREATE TABLE IF NOT EXISTS syntheses (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    request_id TEXT NOT NULL,
    source TEXT NOT NULL,
    target_language TEXT,
    reference_language TEXT,
    custom_reference INTEGER NOT NULL,
    status TEXT NOT NULL,
    duration_ms INTEGER NOT NULL,
    sample_rate INTEGER NOT NULL,
    sample_count INTEGER NOT NULL,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_syntheses_created ON syntheses(created_at);
`

// Entry is one journal row.
type Entry struct {
	ID                int64     `json:"id"`
	RequestID         string    `json:"request_id"`
	Source            string    `json:"source"`
	TargetLanguage    string    `json:"target_language"`
	ReferenceLanguage string    `json:"reference_language,omitempty"`
	CustomReference   bool      `json:"custom_reference"`
	Status            string    `json:"status"`
	DurationMS        int64     `json:"duration_ms"`
	SampleRate        int       `json:"sample_rate"`
	SampleCount       int       `json:"sample_count"`
	CreatedAt         time.Time `json:"created_at"`
}

// Store implements tts.Recorder. In ephemeral mode it holds no database and
// every write is dropped.
type Store struct {
	db    *sql.DB
	cfg   config.JournalConfig
	log   *logger.Logger
	clock func() time.Time
}

// Open initializes the journal according to cfg and prunes old rows.
func Open(ctx context.Context, cfg config.JournalConfig, log *logger.Logger) (*Store, error) {
	store := &Store{cfg: cfg, log: log, clock: time.Now}

	if cfg.RetentionMode != config.RetentionPersistent {
		return store, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		err := os.MkdirAll(dir, dirPermissions)
		if err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	err = db.PingContext(ctx)
	if err == nil {
		_, err = db.ExecContext(ctx, schema)
	}

	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("init journal %s: %w", cfg.Path, err)
	}

	store.db = db

	err = store.Prune(ctx)
	if err != nil {
		log.Warn("Journal prune on start failed: %v", err)
	}

	return store, nil
}

// Persistent reports whether rows are kept.
func (s *Store) Persistent() bool {
	return s.db != nil
}

// Close releases the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}

	return s.db.Close()
}

// Record appends one synthesis outcome.
func (s *Store) Record(ctx context.Context, rec tts.Record) error {
	if s.db == nil {
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO syntheses(request_id, source, target_language, reference_language, custom_reference,
		 status, duration_ms, sample_rate, sample_count, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Source, rec.TargetLanguage, rec.ReferenceLanguage, rec.CustomReference,
		rec.Outcome, rec.Duration.Milliseconds(), rec.SampleRate, rec.SampleCount, s.clock().UnixMilli())
	if err != nil {
		return fmt.Errorf("insert journal row: %w", err)
	}

	return nil
}

// List returns up to limit rows, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if s.db == nil {
		return nil, ErrEphemeral
	}

	if limit <= 0 {
		limit = defaultListLimit
	}

	limit = min(limit, maxListLimit)

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, request_id, source, target_language, reference_language, custom_reference,
		 status, duration_ms, sample_rate, sample_count, created_at
		 FROM syntheses ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query journal: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			entry   Entry
			created int64
		)

		err = rows.Scan(&entry.ID, &entry.RequestID, &entry.Source, &entry.TargetLanguage,
			&entry.ReferenceLanguage, &entry.CustomReference, &entry.Status, &entry.DurationMS,
			&entry.SampleRate, &entry.SampleCount, &created)
		if err != nil {
			return nil, fmt.Errorf("scan journal row: %w", err)
		}

		entry.CreatedAt = time.UnixMilli(created).UTC()
		entries = append(entries, entry)
	}

	err = rows.Err()
	if err != nil {
		return nil, fmt.Errorf("iterate journal rows: %w", err)
	}

	return entries, nil
}

// Prune deletes rows older than max_age_days. Zero keeps everything.
func (s *Store) Prune(ctx context.Context) error {
	if s.db == nil || s.cfg.MaxAgeDays <= 0 {
		return nil
	}

	cutoff := s.clock().Add(-time.Duration(s.cfg.MaxAgeDays) * 24 * time.Hour)

	result, err := s.db.ExecContext(ctx, `DELETE FROM syntheses WHERE created_at < ?`, cutoff.UnixMilli())
	if err != nil {
		return fmt.Errorf("prune journal: %w", err)
	}

	if removed, _ := result.RowsAffected(); removed > 0 {
		s.log.Info("Pruned %d journal rows older than %d days", removed, s.cfg.MaxAgeDays)
	}

	return nil
}
