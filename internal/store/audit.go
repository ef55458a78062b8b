// ABOUTME: Audit log entity and store methods for account credential events
// ABOUTME: Records which account saw which action and when, newest first on read

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction represents an auditable account event.
type AuditAction string

const (
	AuditSignup                 AuditAction = "signup"
	AuditEmailVerified          AuditAction = "email_verified"
	AuditLogin                  AuditAction = "login"
	AuditLoginFailed            AuditAction = "login_failed"
	AuditPasswordResetRequested AuditAction = "password_reset_requested"
	AuditPasswordReset          AuditAction = "password_reset"
	AuditResetTokenReplayed     AuditAction = "reset_token_replayed"
	AuditSocialLogin            AuditAction = "social_login"
	AuditProviderLinked         AuditAction = "provider_linked"
)

// ValidAuditActions lists all valid audit actions.
var ValidAuditActions = []AuditAction{
	AuditSignup,
	AuditEmailVerified,
	AuditLogin,
	AuditLoginFailed,
	AuditPasswordResetRequested,
	AuditPasswordReset,
	AuditResetTokenReplayed,
	AuditSocialLogin,
	AuditProviderLinked,
}

// Valid reports whether a is one of ValidAuditActions.
func (a AuditAction) Valid() bool {
	for _, v := range ValidAuditActions {
		if a == v {
			return true
		}
	}
	return false
}

// AuditEntry represents a single audit log entry.
type AuditEntry struct {
	ID        string         // UUID v4
	Email     string         // account the event concerns
	Action    AuditAction    // what happened
	Timestamp time.Time      // when it happened
	Detail    map[string]any // additional context, never secrets
}

// AuditFilter specifies filtering options for listing audit entries.
type AuditFilter struct {
	Since  *time.Time   // entries at or after this time
	Until  *time.Time   // entries at or before this time
	Email  *string      // filter by account
	Action *AuditAction // filter by action type
	Limit  int          // max results (default 100, max 1000)
}

// AuditLog appends and lists account audit entries.
type AuditLog interface {
	AppendAuditLog(ctx context.Context, e *AuditEntry) error
	ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error)
}

// prepareAuditEntry fills in ID and Timestamp when unset and normalizes the email.
func prepareAuditEntry(e *AuditEntry) error {
	if !e.Action.Valid() {
		return fmt.Errorf("unknown audit action %q", e.Action)
	}
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	e.Email = NormalizeEmail(e.Email)
	return nil
}

// AppendAuditLog appends a new entry to the audit log.
// Generates ID and Timestamp if not set.
func (s *SQLiteStore) AppendAuditLog(ctx context.Context, e *AuditEntry) error {
	if err := prepareAuditEntry(e); err != nil {
		return err
	}

	var detailJSON *string
	if e.Detail != nil {
		data, err := json.Marshal(e.Detail)
		if err != nil {
			return fmt.Errorf("marshaling audit detail: %w", err)
		}
		str := string(data)
		detailJSON = &str
	}

	query := `
		INSERT INTO audit_log (audit_id, email, action, ts, detail_json)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.Email,
		e.Action,
		formatTime(e.Timestamp),
		detailJSON,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	s.logger.Debug("appended audit log", "id", e.ID, "email", e.Email, "action", e.Action)
	return nil
}

// normalizeAuditLimit applies default (100) and cap (1000) to audit limit.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// auditQueryArgs builds the query arguments from an AuditFilter.
type auditQueryArgs struct {
	sinceStr  *string
	untilStr  *string
	emailStr  *string
	actionStr *string
}

func buildAuditQueryArgs(f AuditFilter) auditQueryArgs {
	var args auditQueryArgs
	if f.Since != nil {
		s := formatTime(*f.Since)
		args.sinceStr = &s
	}
	if f.Until != nil {
		s := formatTime(*f.Until)
		args.untilStr = &s
	}
	if f.Email != nil {
		e := NormalizeEmail(*f.Email)
		args.emailStr = &e
	}
	if f.Action != nil {
		a := string(*f.Action)
		args.actionStr = &a
	}
	return args
}

// scanAuditEntry scans a row into an AuditEntry.
func scanAuditEntry(scanner interface{ Scan(dest ...any) error }) (AuditEntry, error) {
	var e AuditEntry
	var actionStr, tsStr string
	var detailJSON *string

	if err := scanner.Scan(&e.ID, &e.Email, &actionStr, &tsStr, &detailJSON); err != nil {
		return e, fmt.Errorf("scanning audit entry: %w", err)
	}

	e.Action = AuditAction(actionStr)
	var err error
	e.Timestamp, err = parseTime(tsStr)
	if err != nil {
		return e, fmt.Errorf("parsing timestamp: %w", err)
	}

	if detailJSON != nil {
		if err := json.Unmarshal([]byte(*detailJSON), &e.Detail); err != nil {
			return e, fmt.Errorf("unmarshaling detail: %w", err)
		}
	}
	return e, nil
}

// rowid breaks ties between entries written within the same second
const auditLogQuery = `
	SELECT audit_id, email, action, ts, detail_json
	FROM audit_log
	WHERE (? IS NULL OR ts >= ?)
	  AND (? IS NULL OR ts <= ?)
	  AND (? IS NULL OR email = ?)
	  AND (? IS NULL OR action = ?)
	ORDER BY ts DESC, rowid DESC
	LIMIT ?
`

// ListAuditLog returns audit entries matching the filter criteria.
// Results are returned newest first (DESC by timestamp).
func (s *SQLiteStore) ListAuditLog(ctx context.Context, f AuditFilter) ([]AuditEntry, error) {
	limit := normalizeAuditLimit(f.Limit)
	args := buildAuditQueryArgs(f)

	rows, err := s.db.QueryContext(ctx, auditLogQuery,
		args.sinceStr, args.sinceStr,
		args.untilStr, args.untilStr,
		args.emailStr, args.emailStr,
		args.actionStr, args.actionStr,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []AuditEntry
	for rows.Next() {
		e, err := scanAuditEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit entries: %w", err)
	}

	if entries == nil {
		entries = []AuditEntry{}
	}
	return entries, nil
}
