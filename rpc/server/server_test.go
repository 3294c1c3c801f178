package server

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/lib/monitor"
	"github.com/MasterHesse/Crab-Cage/rpc/common"
	"github.com/MasterHesse/Crab-Cage/rpc/resp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer boots a server without persistence on a random port
// and returns it together with its address.
func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	eng := engine.New(nil)
	mon := monitor.New(nil)

	s := NewServer(common.ServerConfig{
		Endpoint:      "127.0.0.1:0",
		TimeoutSecond: 5,
		MaxClients:    16,
		LogLevel:      "error",
	}, eng, nil, mon)

	go func() {
		if err := s.Serve(); err != nil {
			t.Errorf("serve: %v", err)
		}
	}()

	// Wait for the listener to come up
	var addr string
	for i := 0; i < 100; i++ {
		if a := s.Addr(); a != nil {
			addr = a.String()
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotEmpty(t, addr, "server did not start")

	t.Cleanup(func() {
		_ = s.Close()
		mon.Close()
		_ = eng.Close()
	})

	return s, addr
}

// testConn wraps a client connection with RESP encode/decode helpers.
type testConn struct {
	t      *testing.T
	conn   net.Conn
	reader *resp.Reader
	writer *resp.Writer
}

func dialTest(t *testing.T, addr string) *testConn {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &testConn{
		t:      t,
		conn:   conn,
		reader: resp.NewReader(conn),
		writer: resp.NewWriter(conn),
	}
}

func (c *testConn) do(argv ...string) engine.Reply {
	c.t.Helper()
	require.NoError(c.t, c.writer.WriteCommand(argv))
	require.NoError(c.t, c.writer.Flush())
	rep, err := c.reader.ReadReply()
	require.NoError(c.t, err)
	return rep
}

func TestServerPingAndStoreCommands(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	assert.Equal(t, "PONG", c.do("PING").String())
	assert.Equal(t, "OK", c.do("SET", "greeting", "hello").String())
	assert.Equal(t, "hello", c.do("GET", "greeting").String())
	assert.Equal(t, "2", c.do("RPUSH", "queue", "a", "b").String())

	rep := c.do("GET", "missing")
	assert.True(t, rep.IsError())
	assert.Equal(t, "ERR key not found", rep.String())
}

func TestServerTransactionOverWire(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	assert.Equal(t, "OK", c.do("MULTI").String())
	assert.Equal(t, "QUEUED", c.do("SET", "counter", "1").String())
	assert.Equal(t, "QUEUED", c.do("INCR", "counter").String())

	rep := c.do("EXEC")
	require.Equal(t, engine.ReplyArray, rep.Type)
	require.Len(t, rep.Elems, 2)
	assert.Equal(t, "OK", rep.Elems[0].String())
	assert.Equal(t, "2", rep.Elems[1].String())
}

func TestServerWatchConflictBetweenConnections(t *testing.T) {
	_, addr := startTestServer(t)
	alice := dialTest(t, addr)
	bob := dialTest(t, addr)

	assert.Equal(t, "OK", alice.do("SET", "balance", "100").String())
	assert.Equal(t, "OK", alice.do("WATCH", "balance").String())
	assert.Equal(t, "OK", alice.do("MULTI").String())
	assert.Equal(t, "QUEUED", alice.do("SET", "balance", "90").String())

	// Concurrent writer invalidates the watch
	assert.Equal(t, "OK", bob.do("SET", "balance", "42").String())

	rep := alice.do("EXEC")
	assert.Equal(t, engine.ReplyNil, rep.Type)
	assert.Equal(t, "42", alice.do("GET", "balance").String())
}

func TestServerQuitClosesConnection(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	assert.Equal(t, "OK", c.do("QUIT").String())

	// The server closes the socket after QUIT, so the next read
	// must not return another reply
	require.NoError(t, c.conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, err := c.reader.ReadReply()
	assert.Error(t, err)
}

func TestServerInfoAndClientList(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	assert.Equal(t, "OK", c.do("SET", "k", "v").String())

	info := c.do("INFO").String()
	assert.Contains(t, info, "# Server")
	assert.Contains(t, info, "total_keys:1")
	assert.Contains(t, info, "aof_enabled:0")

	list := c.do("CLIENT", "LIST").String()
	assert.Contains(t, list, "addr=")

	assert.True(t, c.do("CLIENT", "KILL").IsError())
}

func TestServerSlowlogCommands(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	assert.Equal(t, "0", c.do("SLOWLOG", "LEN").String())
	assert.Equal(t, "OK", c.do("SLOWLOG", "RESET").String())
	assert.False(t, c.do("SLOWLOG", "GET").IsError())
	assert.True(t, c.do("SLOWLOG", "FLUSH").IsError())
}

func TestServerSaveWithoutPersistence(t *testing.T) {
	_, addr := startTestServer(t)
	c := dialTest(t, addr)

	rep := c.do("SAVE")
	require.True(t, rep.IsError())
	assert.True(t, strings.Contains(rep.String(), "persistence is disabled"))
}
