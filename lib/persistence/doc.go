// Package persistence implements the durability layer: an append-only
// command log and point-in-time snapshots, combined at boot into crash
// recovery.
//
// The log holds one fully-resolved record per applied mutation, encoded
// in the same wire format the server speaks. Relative expirations are
// already resolved to absolute deadlines when records reach the log, so
// replay reproduces the surviving dataset regardless of how much time
// passed in between: keys whose deadline lies in the past simply expire
// on first touch after boot.
//
// Snapshots capture the live dataset in a compact binary file, written
// to a temporary path and atomically renamed. Cutting a snapshot and
// truncating the log happen under the store lock as one unit, which is
// what makes "snapshot + log tail" a consistent recovery pair. Triggers
// are a wall-clock interval, a logged-write threshold, and the SAVE
// command.
//
// Thread-safety: the Manager is safe for concurrent use; background
// snapshots run on a single-worker pool so they never overlap.
package persistence
