// ABOUTME: SQLite implementation of the Store interfaces using modernc.org/sqlite
// ABOUTME: Provides user and OTP persistence with automatic schema creation

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements UserStore and OTPStore using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// Ensure SQLiteStore implements the store interfaces
var (
	_ UserStore = (*SQLiteStore)(nil)
	_ OTPStore  = (*SQLiteStore)(nil)
)

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Connection-scoped pragmas go in the DSN so every pooled connection gets them
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			name           TEXT NOT NULL DEFAULT '',
			email          TEXT NOT NULL UNIQUE,
			phone          TEXT UNIQUE,
			picture        TEXT,
			password_hash  TEXT,
			email_verified INTEGER NOT NULL DEFAULT 0,
			role           TEXT NOT NULL DEFAULT 'user',
			is_subscribed  INTEGER NOT NULL DEFAULT 0,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,

			CHECK (role IN ('user', 'business', 'admin'))
		);

		CREATE TABLE IF NOT EXISTS user_providers (
			user_id   TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			provider  TEXT NOT NULL,
			token     TEXT NOT NULL,
			linked_at TEXT NOT NULL,

			PRIMARY KEY (user_id, provider)
		);

		CREATE TABLE IF NOT EXISTS otps (
			id          TEXT PRIMARY KEY,
			email       TEXT NOT NULL,
			purpose     TEXT NOT NULL,
			code        TEXT NOT NULL,
			issued_at   TEXT NOT NULL,
			expires_at  TEXT NOT NULL,
			consumed_at TEXT,

			CHECK (purpose IN ('signup', 'forgotPassword'))
		);

		CREATE INDEX IF NOT EXISTS idx_otps_email_code ON otps(email, code);
		CREATE INDEX IF NOT EXISTS idx_otps_expires ON otps(expires_at);

		-- At most one live code per (email, purpose)
		CREATE UNIQUE INDEX IF NOT EXISTS idx_otps_live
			ON otps(email, purpose) WHERE consumed_at IS NULL;

		CREATE TABLE IF NOT EXISTS spent_tokens (
			id         TEXT PRIMARY KEY,
			expires_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_spent_tokens_expires ON spent_tokens(expires_at);

		CREATE TABLE IF NOT EXISTS audit_log (
			audit_id    TEXT PRIMARY KEY,
			email       TEXT NOT NULL,
			action      TEXT NOT NULL,
			ts          TEXT NOT NULL,
			detail_json TEXT,

			CHECK (detail_json IS NULL OR length(detail_json) <= 65536)
		);

		CREATE INDEX IF NOT EXISTS idx_audit_log_email_ts ON audit_log(email, ts);
		CREATE INDEX IF NOT EXISTS idx_audit_log_ts ON audit_log(ts);

		CREATE TABLE IF NOT EXISTS otp_rate (
			key          TEXT PRIMARY KEY,
			last_at      TEXT NOT NULL DEFAULT '',
			window_start TEXT NOT NULL DEFAULT '',
			count        INTEGER NOT NULL DEFAULT 0
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		table  string
		column string
		apply  string
	}{
		{
			table:  "users",
			column: "picture",
			apply:  `ALTER TABLE users ADD COLUMN picture TEXT`,
		},
		{
			table:  "users",
			column: "is_subscribed",
			apply:  `ALTER TABLE users ADD COLUMN is_subscribed INTEGER NOT NULL DEFAULT 0`,
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(
			`SELECT 1 FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column,
		).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to %s: %w", m.column, m.table, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", m.table)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isUniqueViolation checks if the error is a SQLite UNIQUE constraint violation.
// CHECK and foreign key failures do not match.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// formatTime renders timestamps the way every table stores them
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullIfEmpty(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
