// Package store provides persistent storage for the credential core using SQLite.
//
// # Architecture
//
// The store package exposes three interfaces:
//
//   - UserStore: account records, email/phone uniqueness, targeted updates
//   - OTPStore: one-time passcodes with atomic invalidate-on-issue and
//     consume-on-read
//   - AuditLog: append-only account events, listed newest first
//
// SQLiteStore implements all of them in a single struct, plus Spend for
// single-use token IDs. MockStore is an in-memory
// implementation with the same guarantees for unit tests.
//
// # Data Models
//
//   - User: email (normalized, unique), phone (unique), password hash,
//     verification flag, role, linked providers
//   - OTP: code bound to (email, purpose) with issue/expiry/consume times
//   - AuditEntry: account email, action, timestamp and JSON detail
//
// # Uniqueness
//
// Email and phone uniqueness is enforced by UNIQUE indexes at insert time.
// CreateUser maps the violation to ErrEmailExists or ErrPhoneExists, so two
// racing signups for the same address produce exactly one user and one
// conflict error. A partial unique index keeps at most one unconsumed code
// per (email, purpose).
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//	PRAGMA busy_timeout=5000;
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(path) on a t.TempDir()
// path for integration tests with real SQLite.
package store
