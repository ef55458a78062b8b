// ABOUTME: SQLite persistence for OTP issuance limiter state
// ABOUTME: Each update holds the write lock from read to save so concurrent callers serialize

package store

import (
	"context"
	"fmt"
	"time"
)

// RateState is the limiter bookkeeping for one (email, purpose) key.
// Zero times mean no request has been recorded yet.
type RateState struct {
	LastAt      time.Time
	WindowStart time.Time
	Count       int
}

// UpdateRateState loads the state for key, passes it to fn and saves the
// result when fn returns nil. A non-nil error from fn leaves the stored
// state untouched and is returned as is.
func (s *SQLiteStore) UpdateRateState(ctx context.Context, key string, fn func(*RateState) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// Writing first takes the database write lock, so a concurrent update
	// waits on busy_timeout instead of reading the same state
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO otp_rate (key) VALUES (?) ON CONFLICT(key) DO NOTHING
	`, key); err != nil {
		return fmt.Errorf("reserving rate state: %w", err)
	}

	var lastStr, windowStr string
	var st RateState
	err = tx.QueryRowContext(ctx, `
		SELECT last_at, window_start, count FROM otp_rate WHERE key = ?
	`, key).Scan(&lastStr, &windowStr, &st.Count)
	if err != nil {
		return fmt.Errorf("reading rate state: %w", err)
	}
	if st.LastAt, err = parseRateTime(lastStr); err != nil {
		return err
	}
	if st.WindowStart, err = parseRateTime(windowStr); err != nil {
		return err
	}

	if err := fn(&st); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE otp_rate SET last_at = ?, window_start = ?, count = ? WHERE key = ?
	`, formatRateTime(st.LastAt), formatRateTime(st.WindowStart), st.Count, key); err != nil {
		return fmt.Errorf("saving rate state: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing rate state: %w", err)
	}
	return nil
}

// DeleteStaleRateStates removes limiter rows whose last request is before cutoff.
func (s *SQLiteStore) DeleteStaleRateStates(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM otp_rate WHERE last_at = '' OR last_at < ?
	`, formatRateTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("deleting stale rate states: %w", err)
	}
	n, _ := result.RowsAffected()
	return n, nil
}

// Limiter times keep sub-second precision; cooldowns are short.
// Fixed-width so stored values compare lexically.
const rateTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatRateTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(rateTimeLayout)
}

func parseRateTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(rateTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing rate time: %w", err)
	}
	return t, nil
}
