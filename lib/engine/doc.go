// Package engine implements the in-memory typed key-value store that
// every execution path of the database shares: direct commands,
// transaction batches and boot-time log replay all funnel into the same
// dispatch and mutation chokepoint.
//
// The package focuses on:
//   - A tagged Value model for string, hash, list and set payloads with
//     deterministic (insertion-ordered) enumeration
//   - Key expiration with absolute millisecond deadlines, resolved
//     lazily on access and proactively by a timing-wheel sweep over a
//     btree deadline index
//   - Per-key watch versions for optimistic locking, bumped on every
//     observable change of a key (writes, deletes and expiry alike)
//   - A single commit chokepoint that couples each mutation to its
//     version bump and durable log record, with rollback when the
//     append fails
//
// Key Components:
//
//   - Engine: The store itself. One mutex serializes all commands;
//     ExecBatch holds it across an entire validate-then-apply sequence,
//     which is what makes EXEC atomic with respect to concurrent
//     writers.
//
//   - Reply: The typed result of a command (status, bulk, integer,
//     array, nil or error). The wire layer encodes replies; the engine
//     never deals in protocol bytes.
//
//   - LogAppender: The durability hook. Records are fully resolved
//     before they are appended (relative expirations become absolute
//     EXPIREAT deadlines), so replaying them is independent of wall
//     time.
//
// Thread-safety: all exported methods of Engine are safe for concurrent
// use. Value and Reply instances are not synchronized and are owned by
// the engine respectively the caller.
package engine
