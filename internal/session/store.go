// Package session implements the query core's ports.SessionStore
// over SQLite. Adapted from internal/store/store.go (WAL-mode
// single-writer pool, embed.FS migrations, versioned runMigrationNNN
// functions), trimmed to a single append-only messages table.
package session

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hybridrag/queryengine/internal/query/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed append-only conversational log.
type Store struct {
	db *sql.DB
}

// New creates a Store at dbPath, running migrations as needed.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL DEFAULT (datetime('now'))
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	var currentVersion int
	err = s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	if currentVersion < 1 {
		if err := s.runMigration(1, "001_init.sql"); err != nil {
			return fmt.Errorf("run migration 001: %w", err)
		}
	}

	return nil
}

func (s *Store) runMigration(version int, file string) error {
	sqlBytes, err := migrationsFS.ReadFile("migrations/" + file)
	if err != nil {
		return fmt.Errorf("read migration %s: %w", file, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(sqlBytes)); err != nil {
		return err
	}
	if _, err := tx.Exec("INSERT INTO migrations (version) VALUES (?)", version); err != nil {
		return err
	}
	return tx.Commit()
}

// Append implements ports.SessionStore. metadata["path"], when
// present, is promoted to the indexable path_marker column.
func (s *Store) Append(ctx context.Context, sessionID, role, content string, metadata map[string]string) error {
	if metadata == nil {
		metadata = map[string]string{}
	}
	encoded, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO messages (session_id, role, content, path_marker, metadata)
		VALUES (?, ?, ?, ?, ?)
	`, sessionID, role, content, metadata["path"], string(encoded))
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

// Recent implements ports.SessionStore, returning up to n messages
// most-recent-first.
func (s *Store) Recent(ctx context.Context, sessionID string, n int) ([]model.Message, error) {
	if n <= 0 {
		n = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content, metadata, created_at
		FROM messages
		WHERE session_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, sessionID, n)
	if err != nil {
		return nil, fmt.Errorf("query recent messages: %w", err)
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var m model.Message
		var metadataJSON string
		var createdAt string
		if err := rows.Scan(&m.Role, &m.Content, &metadataJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}

		m.Metadata = map[string]string{}
		_ = json.Unmarshal([]byte(metadataJSON), &m.Metadata)
		m.Timestamp = parseTimestamp(createdAt)

		messages = append(messages, m)
	}
	return messages, rows.Err()
}

// parseTimestamp parses SQLite's datetime('now') format, falling back
// to the zero value if the stored string is unexpectedly shaped.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04:05", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
