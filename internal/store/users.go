// ABOUTME: SQLite user and provider-link persistence
// ABOUTME: Uniqueness of email and phone is enforced by the schema at insert time

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// UserExists reports whether a user with the given email or phone exists.
func (s *SQLiteStore) UserExists(ctx context.Context, field UserField, value string) (bool, error) {
	var query string
	switch field {
	case FieldEmail:
		query = `SELECT 1 FROM users WHERE email = ?`
		value = NormalizeEmail(value)
	case FieldPhone:
		query = `SELECT 1 FROM users WHERE phone = ?`
		value = strings.TrimSpace(value)
	default:
		return false, fmt.Errorf("unknown user field %q", field)
	}

	var one int
	err := s.db.QueryRowContext(ctx, query, value).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking user %s: %w", field, err)
	}
	return true, nil
}

// CreateUser inserts a user and its provider links in one transaction.
// Returns ErrEmailExists or ErrPhoneExists when a unique column collides.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *User) error {
	user.Email = NormalizeEmail(user.Email)
	user.Phone = strings.TrimSpace(user.Phone)
	if user.Role == "" {
		user.Role = RoleUser
	}
	now := time.Now().UTC().Truncate(time.Second)
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = user.CreatedAt
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, name, email, phone, picture, password_hash,
		                   email_verified, role, is_subscribed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		user.ID,
		user.Name,
		user.Email,
		nullIfEmpty(user.Phone),
		nullIfEmpty(user.Picture),
		nullIfEmpty(user.PasswordHash),
		boolToInt(user.EmailVerified),
		string(user.Role),
		boolToInt(user.IsSubscribed),
		formatTime(user.CreatedAt),
		formatTime(user.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return uniqueViolation(err)
		}
		return fmt.Errorf("inserting user: %w", err)
	}

	for provider, token := range user.Providers {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_providers (user_id, provider, token, linked_at)
			VALUES (?, ?, ?, ?)
		`, user.ID, provider, token, formatTime(user.CreatedAt)); err != nil {
			return fmt.Errorf("inserting provider %s: %w", provider, err)
		}
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return uniqueViolation(err)
		}
		return fmt.Errorf("committing user: %w", err)
	}

	s.logger.Info("created user", "id", user.ID, "email", user.Email)
	return nil
}

// uniqueViolation maps a UNIQUE failure to the column that collided
func uniqueViolation(err error) error {
	if strings.Contains(err.Error(), "users.phone") {
		return ErrPhoneExists
	}
	return ErrEmailExists
}

// GetUserByEmail retrieves a user and its provider links.
// Returns ErrNotFound if the user doesn't exist.
func (s *SQLiteStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	query := `
		SELECT id, name, email, phone, picture, password_hash,
		       email_verified, role, is_subscribed, created_at, updated_at
		FROM users
		WHERE email = ?
	`

	var user User
	var phone, picture, passwordHash sql.NullString
	var verified, subscribed int
	var role, createdAtStr, updatedAtStr string

	err := s.db.QueryRowContext(ctx, query, NormalizeEmail(email)).Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&phone,
		&picture,
		&passwordHash,
		&verified,
		&role,
		&subscribed,
		&createdAtStr,
		&updatedAtStr,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying user by email: %w", err)
	}

	user.Phone = phone.String
	user.Picture = picture.String
	user.PasswordHash = passwordHash.String
	user.EmailVerified = verified != 0
	user.IsSubscribed = subscribed != 0
	user.Role = Role(role)

	user.CreatedAt, err = parseTime(createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	user.UpdatedAt, err = parseTime(updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	user.Providers, err = s.listProviders(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	return &user, nil
}

func (s *SQLiteStore) listProviders(ctx context.Context, userID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT provider, token FROM user_providers WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying providers: %w", err)
	}
	defer func() { _ = rows.Close() }()

	providers := make(map[string]string)
	for rows.Next() {
		var provider, token string
		if err := rows.Scan(&provider, &token); err != nil {
			return nil, fmt.Errorf("scanning provider: %w", err)
		}
		providers[provider] = token
	}
	return providers, rows.Err()
}

// SetEmailVerified marks the user's email as verified.
func (s *SQLiteStore) SetEmailVerified(ctx context.Context, email string) error {
	return s.updateColumn(ctx, "email_verified", 1, email)
}

// SetPasswordHash replaces the user's password hash.
func (s *SQLiteStore) SetPasswordHash(ctx context.Context, email, passwordHash string) error {
	return s.updateColumn(ctx, "password_hash", passwordHash, email)
}

// updateColumn writes a single column; column is always a literal from this file
func (s *SQLiteStore) updateColumn(ctx context.Context, column string, value any, email string) error {
	query := `UPDATE users SET ` + column + ` = ?, updated_at = ? WHERE email = ?`

	result, err := s.db.ExecContext(ctx, query, value, formatTime(time.Now()), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("updating user %s: %w", column, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("updated user", "email", NormalizeEmail(email), "column", column)
	return nil
}

// LinkProvider records or refreshes a provider identifier for the user
// without touching any other provider entry.
func (s *SQLiteStore) LinkProvider(ctx context.Context, email, provider, token string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO user_providers (user_id, provider, token, linked_at)
		SELECT id, ?, ?, ? FROM users WHERE email = ?
		ON CONFLICT (user_id, provider) DO UPDATE SET token = excluded.token
	`, provider, token, formatTime(time.Now()), NormalizeEmail(email))
	if err != nil {
		return fmt.Errorf("linking provider: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}

	s.logger.Info("linked provider", "email", NormalizeEmail(email), "provider", provider)
	return nil
}
