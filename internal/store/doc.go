// ABOUTME: Package documentation for the store package
// ABOUTME: Describes persistence architecture, data models, and SQLite configuration

// Package store provides persistent storage for strand using SQLite.
//
// # Architecture
//
// The Store interface owns conversation and turn persistence. SQLiteStore is
// the production implementation; MockStore is an in-memory stand-in for tests.
//
// Ordering and idempotency guarantees live here:
//
//   - AppendMessage is an upsert keyed by message id, so retries and
//     regenerations replace rather than duplicate.
//   - ListMessages orders by created_at ascending with insertion-order
//     tie-breaks.
//   - BumpConversation advances updated_at and accumulates total_tokens in a
//     single UPDATE; total_tokens only ever grows and updated_at never moves
//     backwards.
//
// # Data Models
//
//   - Conversation: chat session with owner, timestamps, and cumulative
//     token usage
//   - Message: one turn (user or assistant) holding an ordered list of typed
//     content parts
//   - Part: tagged-union content segment (text, reasoning, file, source)
//     with an unknown-variant passthrough
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Foreign keys make message rows cascade-delete with their conversation.
// Timestamps are stored as Unix milliseconds, matching the wire format.
//
// # Error Handling
//
// Common errors:
//
//   - ErrNotFound: requested entity does not exist
//   - ErrDuplicateConversation: conversation id already taken
//
// All other errors are wrapped with context via fmt.Errorf %w.
package store
