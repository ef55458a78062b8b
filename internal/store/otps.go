// ABOUTME: SQLite persistence for one-time passcodes
// ABOUTME: Issue invalidates prior live codes; consume is a single atomic UPDATE

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SaveOTP invalidates live codes for the same (email, purpose) and inserts otp.
func (s *SQLiteStore) SaveOTP(ctx context.Context, otp *OTP) error {
	otp.Email = NormalizeEmail(otp.Email)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
		UPDATE otps SET consumed_at = ?
		WHERE email = ? AND purpose = ? AND consumed_at IS NULL
	`, formatTime(otp.IssuedAt), otp.Email, otp.Purpose)
	if err != nil {
		return fmt.Errorf("invalidating previous otps: %w", err)
	}
	invalidated, _ := result.RowsAffected()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO otps (id, email, purpose, code, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, otp.ID, otp.Email, otp.Purpose, otp.Code,
		formatTime(otp.IssuedAt), formatTime(otp.ExpiresAt))
	if err != nil {
		return fmt.Errorf("inserting otp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing otp: %w", err)
	}

	s.logger.Debug("stored otp", "id", otp.ID, "email", otp.Email,
		"purpose", otp.Purpose, "invalidated", invalidated)
	return nil
}

// ConsumeOTP marks the newest live code matching email and code as consumed.
// The select and update run as one statement so concurrent callers cannot
// both succeed.
func (s *SQLiteStore) ConsumeOTP(ctx context.Context, email, code string, now time.Time) (*OTP, error) {
	nowStr := formatTime(now)

	row := s.db.QueryRowContext(ctx, `
		UPDATE otps SET consumed_at = ?
		WHERE id = (
			SELECT id FROM otps
			WHERE email = ? AND code = ? AND consumed_at IS NULL AND expires_at > ?
			ORDER BY issued_at DESC
			LIMIT 1
		) AND consumed_at IS NULL
		RETURNING id, email, purpose, code, issued_at, expires_at
	`, nowStr, NormalizeEmail(email), code, nowStr)

	var otp OTP
	var issuedAt, expiresAt string
	err := row.Scan(&otp.ID, &otp.Email, &otp.Purpose, &otp.Code, &issuedAt, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consuming otp: %w", err)
	}

	otp.IssuedAt, _ = parseTime(issuedAt)
	otp.ExpiresAt, _ = parseTime(expiresAt)
	consumed := now.UTC().Truncate(time.Second)
	otp.ConsumedAt = &consumed

	s.logger.Debug("consumed otp", "id", otp.ID, "email", otp.Email, "purpose", otp.Purpose)
	return &otp, nil
}

// DeleteExpiredOTPs removes expired and consumed codes
func (s *SQLiteStore) DeleteExpiredOTPs(ctx context.Context, now time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM otps WHERE expires_at <= ? OR consumed_at IS NOT NULL
	`, formatTime(now))
	if err != nil {
		return 0, fmt.Errorf("deleting expired otps: %w", err)
	}
	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		s.logger.Debug("deleted expired otps", "count", rowsAffected)
	}
	return rowsAffected, nil
}
