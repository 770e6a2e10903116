// ============================================================================
// voicebridge - Swedish speech processing
// ============================================================================
//
// Package:     history
// Description: SQLite store for synthesis and recognition history
// License:     MIT
// ============================================================================

// Package history persists a record of every synthesis, transcription and
// language detection in SQLite.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Kind identifies the operation a history entry records
type Kind string

const (
	KindSynthesize     Kind = "synthesize"
	KindTranscribe     Kind = "transcribe"
	KindDetectLanguage Kind = "detect_language"
)

// Entry is a single recorded request
type Entry struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	CreatedAt  time.Time              `json:"created_at"`
	Provider   string                 `json:"provider,omitempty"`
	Language   string                 `json:"language,omitempty"`
	Input      string                 `json:"input,omitempty"`
	Output     string                 `json:"output,omitempty"`
	Duration   float64                `json:"duration"`
	AudioBytes int                    `json:"audio_bytes"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// Filter selects history entries
type Filter struct {
	Kind   Kind
	Since  time.Time
	Limit  int
	Offset int
}

// Stats summarises the stored history
type Stats struct {
	Total  int64          `json:"total"`
	Failed int64          `json:"failed"`
	ByKind map[Kind]int64 `json:"by_kind"`
	Oldest *time.Time     `json:"oldest,omitempty"`
	Newest *time.Time     `json:"newest,omitempty"`
}

// Recorder is the write side used by the processors' callers
type Recorder interface {
	Record(ctx context.Context, entry *Entry) error
}

// Store implements history persistence using SQLite
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// Open opens (or creates) the history database at path
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases shared across queries
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		provider TEXT,
		language TEXT,
		input TEXT,
		output TEXT,
		duration REAL NOT NULL DEFAULT 0,
		audio_bytes INTEGER NOT NULL DEFAULT 0,
		success INTEGER NOT NULL,
		error TEXT,
		metadata TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_history_created_at ON history(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_history_kind ON history(kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Record stores an entry, assigning an ID and timestamp when missing
func (s *Store) Record(ctx context.Context, entry *Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	entry.CreatedAt = entry.CreatedAt.UTC()

	var metadataJSON []byte
	if entry.Metadata != nil {
		metadataJSON, _ = json.Marshal(entry.Metadata)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO history (id, kind, created_at, provider, language, input, output,
			duration, audio_bytes, success, error, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, entry.Kind, entry.CreatedAt, entry.Provider, entry.Language, entry.Input, entry.Output,
		entry.Duration, entry.AudioBytes, entry.Success, entry.Error, metadataJSON)
	if err != nil {
		return fmt.Errorf("failed to insert history entry: %w", err)
	}

	return nil
}

// List returns entries matching the filter, newest first
func (s *Store) List(ctx context.Context, filter Filter) ([]*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `SELECT id, kind, created_at, provider, language, input, output,
		duration, audio_bytes, success, error, metadata FROM history WHERE 1=1`
	var args []interface{}

	if filter.Kind != "" {
		query += " AND kind = ?"
		args = append(args, filter.Kind)
	}
	if !filter.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, filter.Since.UTC())
	}

	query += " ORDER BY created_at DESC"

	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	entries := []*Entry{}
	for rows.Next() {
		var e Entry
		var provider, language, input, output, errMsg, metadataJSON sql.NullString

		if err := rows.Scan(&e.ID, &e.Kind, &e.CreatedAt, &provider, &language, &input, &output,
			&e.Duration, &e.AudioBytes, &e.Success, &errMsg, &metadataJSON); err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		e.Provider = provider.String
		e.Language = language.String
		e.Input = input.String
		e.Output = output.String
		e.Error = errMsg.String
		if metadataJSON.Valid && metadataJSON.String != "" {
			json.Unmarshal([]byte(metadataJSON.String), &e.Metadata)
		}

		entries = append(entries, &e)
	}

	return entries, rows.Err()
}

// Stats returns aggregate counts over the stored history
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &Stats{ByKind: make(map[Kind]int64)}

	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END)
		FROM history GROUP BY kind
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query history stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var kind Kind
		var count, failed int64
		if err := rows.Scan(&kind, &count, &failed); err != nil {
			return nil, fmt.Errorf("failed to scan history stats: %w", err)
		}
		stats.ByKind[kind] = count
		stats.Total += count
		stats.Failed += failed
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if stats.Total > 0 {
		var oldest, newest time.Time
		row := s.db.QueryRowContext(ctx, `SELECT created_at FROM history ORDER BY created_at ASC LIMIT 1`)
		if err := row.Scan(&oldest); err == nil {
			stats.Oldest = &oldest
		}
		row = s.db.QueryRowContext(ctx, `SELECT created_at FROM history ORDER BY created_at DESC LIMIT 1`)
		if err := row.Scan(&newest); err == nil {
			stats.Newest = &newest
		}
	}

	return stats, nil
}

// Prune deletes entries older than the given age and returns how many were removed
func (s *Store) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := time.Now().UTC().Add(-olderThan)

	result, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune history: %w", err)
	}
	return result.RowsAffected()
}

// Ping verifies the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}
