package client

import (
	"fmt"
	"math"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/rpc/common"
	"github.com/MasterHesse/Crab-Cage/rpc/resp"
)

var Logger = common.GetLogger("client")

// -----------------------------------------------------------
// Single connection
// -----------------------------------------------------------

// Conn is one client connection. Requests on a Conn run strictly in
// order, which is what session state (MULTI, WATCH) requires: those
// commands must all travel over the same connection.
type Conn struct {
	mu       sync.Mutex
	conn     net.Conn
	reader   *resp.Reader
	writer   *resp.Writer
	endpoint string
	timeout  time.Duration
}

// Dial opens a dedicated connection to a single endpoint.
func Dial(endpoint string, timeoutSecond int) (*Conn, error) {
	timeout := time.Duration(timeoutSecond) * time.Second

	var conn net.Conn
	var err error
	if timeout > 0 {
		conn, err = net.DialTimeout("tcp", endpoint, timeout)
	} else {
		conn, err = net.Dial("tcp", endpoint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %v", endpoint, err)
	}

	return &Conn{
		conn:     conn,
		reader:   resp.NewReader(conn),
		writer:   resp.NewWriter(conn),
		endpoint: endpoint,
		timeout:  timeout,
	}, nil
}

// Do sends one command and waits for its reply. A reply carrying a
// command-level error (e.g. WRONGTYPE) is returned as a Reply, not as
// an error: the error return signals transport failures only.
func (c *Conn) Do(argv ...string) (engine.Reply, error) {
	if len(argv) == 0 {
		return engine.Reply{}, fmt.Errorf("empty command")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return engine.Reply{}, fmt.Errorf("connection is closed")
	}

	if c.timeout > 0 {
		if err := c.conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return engine.Reply{}, err
		}
	}

	if err := c.writer.WriteCommand(argv); err != nil {
		return engine.Reply{}, err
	}
	if err := c.writer.Flush(); err != nil {
		return engine.Reply{}, err
	}

	return c.reader.ReadReply()
}

// Close closes the underlying connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}

// reconnect restores the connection to the endpoint after a transport
// failure.
func (c *Conn) reconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}

	conn, err := net.Dial("tcp", c.endpoint)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %v", c.endpoint, err)
	}

	c.conn = conn
	c.reader = resp.NewReader(conn)
	c.writer = resp.NewWriter(conn)
	return nil
}

// -----------------------------------------------------------
// Pooled client
// -----------------------------------------------------------

// Client maintains a pool of connections across the configured
// endpoints and distributes stateless requests over them. For
// transaction flows use Session, which pins one connection.
type Client struct {
	config common.ClientConfig
	pool   chan *Conn

	mu     sync.Mutex
	closed bool
}

// NewClient connects to the configured endpoints. At least one
// connection must succeed.
func NewClient(config common.ClientConfig) (*Client, error) {
	if len(config.Endpoints) == 0 {
		return nil, fmt.Errorf("no endpoints provided")
	}

	connectionsPerEP := int(math.Max(1, float64(config.ConnectionsPerEndpoint)))
	pool := make(chan *Conn, len(config.Endpoints)*connectionsPerEP)

	for _, endpoint := range config.Endpoints {
		for i := 0; i < connectionsPerEP; i++ {
			conn, err := Dial(endpoint, config.TimeoutSecond)
			if err != nil {
				Logger.Warningf("Failed to connect to %s (connection %d/%d): %v", endpoint, i+1, connectionsPerEP, err)
				continue
			}
			pool <- conn
		}
	}

	if len(pool) == 0 {
		return nil, fmt.Errorf("failed to connect to any endpoint")
	}

	Logger.Infof("Connected %d out of %d connections to %d endpoints",
		len(pool), len(config.Endpoints)*connectionsPerEP, len(config.Endpoints))

	return &Client{config: config, pool: pool}, nil
}

// Do sends one stateless command over a pooled connection, retrying
// over other connections with exponential backoff on transport
// failures.
func (c *Client) Do(argv ...string) (engine.Reply, error) {
	maxRetries := c.config.RetryCount
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	backoffMs := 50

	for i := 0; i < maxRetries; i++ {
		conn, err := c.acquire()
		if err != nil {
			return engine.Reply{}, err
		}

		rep, err := conn.Do(argv...)
		if err == nil {
			c.release(conn)
			return rep, nil
		}

		lastErr = err
		Logger.Debugf("Request attempt %d/%d failed: %v", i+1, maxRetries, err)

		// A failed request leaves the connection in an unknown
		// state, so restore it before returning it to the pool
		if rerr := conn.reconnect(); rerr != nil {
			Logger.Warningf("Failed to reconnect to %s: %v", conn.endpoint, rerr)
		}
		c.release(conn)

		if i < maxRetries-1 {
			// Exponential backoff with a small random jitter (+-10%)
			jitter := float64(backoffMs) * (0.9 + 0.2*rand.Float64())
			time.Sleep(time.Duration(jitter) * time.Millisecond)
			backoffMs *= 2
		}
	}

	return engine.Reply{}, fmt.Errorf("failed to send request after %d attempts: %v", maxRetries, lastErr)
}

// Session opens a dedicated connection for stateful flows (MULTI/EXEC,
// WATCH). The caller owns the connection and must Close it.
func (c *Client) Session() (*Conn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, fmt.Errorf("client is closed")
	}
	return Dial(c.config.Endpoints[rand.Intn(len(c.config.Endpoints))], c.config.TimeoutSecond)
}

// Close drains the pool and closes every connection.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.pool)
	for conn := range c.pool {
		conn.Close()
	}
	return nil
}

// acquire takes a connection from the pool, blocking until one is free.
func (c *Client) acquire() (*Conn, error) {
	conn, ok := <-c.pool
	if !ok {
		return nil, fmt.Errorf("client is closed")
	}
	return conn, nil
}

// release returns a connection to the pool. If the client was closed
// in the meantime the connection is dropped instead.
func (c *Client) release(conn *Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		conn.Close()
		return
	}
	c.pool <- conn
}
