// ABOUTME: SQLite record of spent single-use token IDs
// ABOUTME: The primary key makes the first spender win; rows are purged after the token expires

package store

import (
	"context"
	"fmt"
	"time"
)

// Spend records a token ID as used. It returns false if the ID was already
// spent and has not yet expired.
func (s *SQLiteStore) Spend(ctx context.Context, id string, expiresAt time.Time) (bool, error) {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// A stale row from an expired token must not block a reissued ID
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM spent_tokens WHERE id = ? AND expires_at <= ?`, id, now,
	); err != nil {
		return false, fmt.Errorf("clearing expired token: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO spent_tokens (id, expires_at) VALUES (?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, formatTime(expiresAt))
	if err != nil {
		return false, fmt.Errorf("recording spent token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing spent token: %w", err)
	}

	n, _ := result.RowsAffected()
	return n == 1, nil
}

// DeleteExpiredTokens removes spent-token records whose tokens have expired.
func (s *SQLiteStore) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM spent_tokens WHERE expires_at <= ?`, formatTime(now),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired tokens: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}
