// Package rpc provides the network layer of the key-value database. It
// acts as the communication layer between clients and servers, enabling
// operations across network boundaries.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures and utilities shared across the
//     network layer, including configuration structures and logging.
//
//   - resp: The wire codec. Encodes and decodes commands and replies in
//     the RESP format, including the inline command form.
//
//   - client: A pooled client for stateless requests and dedicated
//     connections for transaction flows.
//
//   - server: The server that accepts connections, runs per-connection
//     sessions and routes commands to the storage engine.
package rpc
