// Package monitor collects runtime diagnostics: command counters and
// latency, the slow command log, and the connected-client table.
//
// Connection goroutines publish one CommandEvent per executed command
// into a lock-free queue; a single collector goroutine drains it and
// updates all statistics, so the command path pays one queue write and
// no lock contention. Readers (INFO, SLOWLOG, CLIENT LIST, the
// Prometheus endpoint) pull from the collector's state.
package monitor
