// Package cmd implements the command-line interface for the Crab Cage
// key-value database. It provides a hierarchical command structure with
// operations for running the server and interacting with it as a client.
//
// The package is organized into several subpackages:
//
//   - kv: Commands for key-value operations (get, set, del, perf, ...)
//   - serve: Commands for starting and configuring the server
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See crabcage -help for a list of all commands.
package cmd
