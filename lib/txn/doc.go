// Package txn implements the per-connection transaction protocol on
// top of the store engine: the MULTI/EXEC/DISCARD state machine and
// WATCH-based optimistic locking.
//
// A Session buffers commands between MULTI and EXEC and records the
// watch versions of keys named by WATCH. EXEC hands the watch set and
// the queue to the engine, which validates and applies them as one
// atomic batch; any watched key that changed since WATCH aborts the
// whole batch and EXEC replies nil. A logical error of a single queued
// command is just that command's reply and does not abort the batch.
//
// Thread-safety: sessions are connection-local and unsynchronized; the
// engine provides all cross-connection coordination.
package txn
