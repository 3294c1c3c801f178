package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestNewSession tests the initial session state
func TestNewSession(t *testing.T) {
	sess := NewSession()
	assert.Equal(t, StateNormal, sess.State())
	assert.Equal(t, 0, sess.QueueLen())
	assert.Empty(t, sess.Watched())
}

// TestBeginSuccess tests entering the queuing state
func TestBeginSuccess(t *testing.T) {
	sess := NewSession()
	require.Nil(t, sess.Begin())
	assert.Equal(t, StateQueuing, sess.State())
	assert.Equal(t, 0, sess.QueueLen())
}

// TestBeginNested tests that MULTI cannot be nested
func TestBeginNested(t *testing.T) {
	sess := NewSession()
	require.Nil(t, sess.Begin())

	err := sess.Begin()
	require.NotNil(t, err)
	assert.Equal(t, "ERR MULTI calls can not be nested", err.Msg)
	// State survives the rejected call.
	assert.Equal(t, StateQueuing, sess.State())
}

// TestEnqueue tests buffering commands in the queuing state
func TestEnqueue(t *testing.T) {
	sess := NewSession()
	require.Nil(t, sess.Begin())

	require.Nil(t, sess.Enqueue([]string{"SET", "key", "value"}))
	assert.Equal(t, 1, sess.QueueLen())
}

// TestEnqueueOutsideMulti tests that buffering requires the queuing state
func TestEnqueueOutsideMulti(t *testing.T) {
	sess := NewSession()
	err := sess.Enqueue([]string{"SET", "key", "value"})
	require.NotNil(t, err)
	assert.Equal(t, 0, sess.QueueLen())
}

// TestDiscard tests dropping the queue
func TestDiscard(t *testing.T) {
	sess := NewSession()
	require.Nil(t, sess.Begin())
	require.Nil(t, sess.Enqueue([]string{"CMD"}))

	require.Nil(t, sess.Discard())
	assert.Equal(t, StateNormal, sess.State())
	assert.Equal(t, 0, sess.QueueLen())
}

// TestDiscardOutsideMulti tests DISCARD in the normal state
func TestDiscardOutsideMulti(t *testing.T) {
	sess := NewSession()
	err := sess.Discard()
	require.NotNil(t, err)
	assert.Equal(t, "ERR DISCARD without MULTI", err.Msg)
}

// TestTakeQueue tests handing off the queue and resetting the state
func TestTakeQueue(t *testing.T) {
	sess := NewSession()
	require.Nil(t, sess.Begin())
	cmd1 := []string{"CMD1"}
	cmd2 := []string{"CMD2"}
	require.Nil(t, sess.Enqueue(cmd1))
	require.Nil(t, sess.Enqueue(cmd2))

	queue, err := sess.TakeQueue()
	require.Nil(t, err)
	assert.Equal(t, [][]string{cmd1, cmd2}, queue)
	assert.Equal(t, StateNormal, sess.State())
	assert.Equal(t, 0, sess.QueueLen())
}

// TestTakeQueueOutsideMulti tests EXEC in the normal state
func TestTakeQueueOutsideMulti(t *testing.T) {
	sess := NewSession()
	_, err := sess.TakeQueue()
	require.NotNil(t, err)
	assert.Equal(t, "ERR EXEC without MULTI", err.Msg)
}

// TestSequenceOperations tests that a session is reusable after EXEC
func TestSequenceOperations(t *testing.T) {
	sess := NewSession()

	require.Nil(t, sess.Begin())
	require.Nil(t, sess.Enqueue([]string{"GET", "key1"}))
	require.Nil(t, sess.Enqueue([]string{"SET", "key2", "value"}))

	queue, err := sess.TakeQueue()
	require.Nil(t, err)
	assert.Len(t, queue, 2)
	assert.Equal(t, StateNormal, sess.State())

	// Fresh transaction on the same session.
	require.Nil(t, sess.Begin())
	assert.Equal(t, 0, sess.QueueLen())
}

// TestWatchBookkeeping tests version recording and the overwrite rule
func TestWatchBookkeeping(t *testing.T) {
	sess := NewSession()

	assert.True(t, sess.Watch("k", 3))
	assert.False(t, sess.Watch("k", 7), "re-watch is not a new watch set entry")
	assert.Equal(t, uint64(7), sess.Watched()["k"], "re-watch overwrites the recorded version")

	keys := sess.ClearWatches()
	assert.Equal(t, []string{"k"}, keys)
	assert.Empty(t, sess.Watched())
	assert.Nil(t, sess.ClearWatches())
}
