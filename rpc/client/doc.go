// Package client implements a RESP client for the database server.
// It provides a pooled client for stateless request/response traffic
// and dedicated connections for session-bound flows.
//
// The package focuses on:
//   - Connection pooling across one or more endpoints
//   - Retry with exponential backoff on transport failures
//   - Pinned connections for MULTI/EXEC and WATCH, whose state lives
//     in the server-side session of a single connection
//
// Key Components:
//
//   - NewClient: Factory function creating a pooled client from a
//     ClientConfig.
//
//   - Client.Do: Sends one command over any pooled connection and
//     returns the decoded reply.
//
//   - Client.Session / Dial: Open a dedicated connection whose
//     commands run strictly in order on one server session.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:              []string{"localhost:6380"},
//	  TimeoutSecond:          5,
//	  RetryCount:             3,
//	  ConnectionsPerEndpoint: 1,
//	}
//
//	c, _ := client.NewClient(config)
//	defer c.Close()
//
//	c.Do("SET", "mykey", "myvalue")
//	rep, _ := c.Do("GET", "mykey")
//	fmt.Println(rep.String())
//
//	// Transactions need a pinned connection
//	sess, _ := c.Session()
//	defer sess.Close()
//	sess.Do("WATCH", "mykey")
//	sess.Do("MULTI")
//	sess.Do("SET", "mykey", "other")
//	sess.Do("EXEC")
//
// Performance Considerations:
//
//   - Replies carry command-level errors (e.g. WRONGTYPE) as error
//     replies, not Go errors; the error return of Do signals transport
//     failures only.
//
//   - Increasing ConnectionsPerEndpoint raises the number of requests
//     in flight; a single connection serves one request at a time.
//
// Thread Safety:
//
//	The pooled client is safe for concurrent use. A Conn serializes
//	its requests internally, so sharing one between goroutines is
//	safe but defeats pipelining.
package client
