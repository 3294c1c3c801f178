// Package server implements the network front end of the database.
// It accepts client connections over TCP, speaks the RESP wire protocol
// and routes commands to the storage engine through the transaction
// layer, so MULTI/EXEC queueing and WATCH bookkeeping apply per
// connection.
//
// The package focuses on:
//   - A bounded connection pool limiting concurrently served clients
//   - Per-connection sessions with automatic watch cleanup on disconnect
//   - Control commands answered at the boundary (PING, QUIT, SAVE,
//     INFO, SLOWLOG, CLIENT LIST)
//   - An optional HTTP endpoint exposing Prometheus metrics
//
// Key Components:
//
//   - NewServer: Factory function creating a server around a booted
//     engine, an optional persistence manager and the monitor.
//
//   - Server.Serve: Opens the listener and blocks accepting
//     connections until Close is called.
//
//   - Server.WaitForShutdown: Blocks until SIGINT/SIGTERM and then
//     drains active connections.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Endpoint:      "0.0.0.0:6380",
//	  TimeoutSecond: 30,
//	  MaxClients:    1024,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewServer(config, eng, pers, mon)
//
//	if err := s.Serve(); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	The server handles concurrent connections, each on its own
//	goroutine from the pool. A single connection's commands are
//	processed strictly in order. The Serve method should be called
//	only once.
package server
