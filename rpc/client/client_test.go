package client

import (
	"testing"
	"time"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/lib/monitor"
	"github.com/MasterHesse/Crab-Cage/rpc/common"
	"github.com/MasterHesse/Crab-Cage/rpc/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTestServer boots a throwaway server and returns its address.
func startTestServer(t *testing.T) string {
	t.Helper()

	eng := engine.New(nil)
	mon := monitor.New(nil)

	s := server.NewServer(common.ServerConfig{
		Endpoint:      "127.0.0.1:0",
		TimeoutSecond: 5,
		MaxClients:    16,
		LogLevel:      "error",
	}, eng, nil, mon)

	go func() { _ = s.Serve() }()

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
	return addr
}

func TestClientDo(t *testing.T) {
	addr := startTestServer(t)

	c, err := NewClient(common.ClientConfig{
		Endpoints:     []string{addr},
		TimeoutSecond: 5,
		RetryCount:    3,
	})
	require.NoError(t, err)
	defer c.Close()

	rep, err := c.Do("SET", "city", "lisbon")
	require.NoError(t, err)
	assert.Equal(t, "OK", rep.String())

	rep, err = c.Do("GET", "city")
	require.NoError(t, err)
	assert.Equal(t, "lisbon", rep.String())

	// Command-level errors arrive as replies, not Go errors
	rep, err = c.Do("INCR", "city")
	require.NoError(t, err)
	assert.True(t, rep.IsError())
}

func TestClientSessionTransaction(t *testing.T) {
	addr := startTestServer(t)

	c, err := NewClient(common.ClientConfig{
		Endpoints:     []string{addr},
		TimeoutSecond: 5,
	})
	require.NoError(t, err)
	defer c.Close()

	sess, err := c.Session()
	require.NoError(t, err)
	defer sess.Close()

	for _, step := range [][]string{
		{"MULTI"},
		{"SET", "stock", "5"},
		{"DECR", "stock"},
	} {
		_, err := sess.Do(step...)
		require.NoError(t, err)
	}

	rep, err := sess.Do("EXEC")
	require.NoError(t, err)
	require.Equal(t, engine.ReplyArray, rep.Type)
	require.Len(t, rep.Elems, 2)
	assert.Equal(t, "4", rep.Elems[1].String())

	rep, err = c.Do("GET", "stock")
	require.NoError(t, err)
	assert.Equal(t, "4", rep.String())
}

func TestClientNoEndpoints(t *testing.T) {
	_, err := NewClient(common.ClientConfig{})
	assert.Error(t, err)
}

func TestDialFailure(t *testing.T) {
	_, err := NewClient(common.ClientConfig{
		Endpoints:     []string{"127.0.0.1:1"},
		TimeoutSecond: 1,
	})
	assert.Error(t, err)
}
