// Package replay makes stateless bearer tokens single-use by recording each
// spent token ID until the token would have expired on its own.
//
// # Guards
//
//   - RedisGuard: shared across processes through SET NX with a TTL. The
//     coven-identity CLI uses it whenever Redis is configured.
//   - store.SQLiteStore also satisfies auth.ReplayGuard through its
//     spent_tokens table; the CLI falls back to it without Redis.
//   - MemoryGuard: process-local and size-bounded. It is for services that
//     embed auth.Service in one long-lived process and for tests. Its state
//     dies with the process, so it must not back a CLI or a replicated service.
//
// A guard never evicts an unexpired ID to make room; a full MemoryGuard
// returns ErrFull and the reset is refused.
package replay
