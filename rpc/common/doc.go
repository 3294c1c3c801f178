// Package common provides configuration structures and utilities shared
// across the database's server, client and command-line components.
//
// The package focuses on:
//   - Configuration structures for client and server components with
//     human-readable String renderings for startup logging
//   - A custom leveled logging implementation with consistent
//     formatting across the application
//
// Key Components:
//
//   - ServerConfig: Comprehensive configuration for a database node,
//     covering the network endpoint, durability settings (append-only
//     log and snapshots), monitoring and logging.
//
//   - ClientConfig: Configuration for client components, controlling
//     connection parameters, timeouts, and retry behavior.
//
//   - ILogger / GetLogger: Leveled per-subsystem loggers sharing one
//     output format.
package common
