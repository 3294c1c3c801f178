// Package resp implements the wire protocol: RESP arrays of bulk
// strings for requests and log records, the full reply alphabet
// (status, error, integer, bulk, nil, array) for responses, and an
// inline command form with quoting for interactive use over nc.
//
// The same encoding serves double duty as the append-only log format,
// so a log segment is literally a valid client session replayed
// against the engine.
package resp
