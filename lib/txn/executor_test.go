package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(nil)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func exec(eng *engine.Engine, sess *Session, args ...string) engine.Reply {
	return Execute(eng, sess, args)
}

// TestDirectExecution tests that the normal state passes commands through
func TestDirectExecution(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	rep := exec(eng, sess, "SET", "k", "v")
	assert.Equal(t, engine.ReplyStatus, rep.Type)
	assert.Equal(t, "OK", rep.Str)

	rep = exec(eng, sess, "GET", "k")
	assert.Equal(t, engine.ReplyBulk, rep.Type)
	assert.Equal(t, "v", rep.Str)
}

// TestQueuedCommit tests the MULTI / queue / EXEC round trip
func TestQueuedCommit(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	rep := exec(eng, sess, "MULTI")
	require.Equal(t, "OK", rep.Str)

	rep = exec(eng, sess, "SET", "k", "v")
	assert.Equal(t, "QUEUED", rep.Str)
	rep = exec(eng, sess, "INCR", "n")
	assert.Equal(t, "QUEUED", rep.Str)

	// Nothing applied while queuing.
	assert.Equal(t, 0, eng.Len())

	rep = exec(eng, sess, "EXEC")
	require.Equal(t, engine.ReplyArray, rep.Type)
	require.Len(t, rep.Elems, 2)
	assert.Equal(t, "OK", rep.Elems[0].Str)
	assert.Equal(t, int64(1), rep.Elems[1].Int)

	rep = exec(eng, sess, "GET", "k")
	assert.Equal(t, "v", rep.Str)
}

// TestDiscardIsolation tests that a discarded queue leaves no trace
func TestDiscardIsolation(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	exec(eng, sess, "SET", "k", "before")
	exec(eng, sess, "MULTI")
	exec(eng, sess, "SET", "k", "inside")
	exec(eng, sess, "DEL", "k")

	rep := exec(eng, sess, "DISCARD")
	require.Equal(t, "OK", rep.Str)

	rep = exec(eng, sess, "GET", "k")
	assert.Equal(t, "before", rep.Str)
	assert.Equal(t, StateNormal, sess.State())
}

// TestTxnStateErrors tests the protocol error messages
func TestTxnStateErrors(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	rep := exec(eng, sess, "EXEC")
	require.Equal(t, engine.ReplyError, rep.Type)
	assert.Equal(t, "ERR EXEC without MULTI", rep.Err.Msg)

	rep = exec(eng, sess, "DISCARD")
	require.Equal(t, engine.ReplyError, rep.Type)
	assert.Equal(t, "ERR DISCARD without MULTI", rep.Err.Msg)

	exec(eng, sess, "MULTI")
	rep = exec(eng, sess, "MULTI")
	require.Equal(t, engine.ReplyError, rep.Type)
	assert.Equal(t, "ERR MULTI calls can not be nested", rep.Err.Msg)
}

// TestWatchAbort tests that a concurrent write aborts EXEC with nil
func TestWatchAbort(t *testing.T) {
	eng := newTestEngine(t)
	alice := NewSession()
	bob := NewSession()

	exec(eng, alice, "SET", "balance", "100")
	rep := exec(eng, alice, "WATCH", "balance")
	require.Equal(t, "OK", rep.Str)

	exec(eng, alice, "MULTI")
	exec(eng, alice, "SET", "balance", "90")

	// Bob writes between Alice's WATCH and EXEC.
	exec(eng, bob, "SET", "balance", "50")

	rep = exec(eng, alice, "EXEC")
	assert.Equal(t, engine.ReplyNil, rep.Type)

	rep = exec(eng, alice, "GET", "balance")
	assert.Equal(t, "50", rep.Str, "aborted transaction must not write")
}

// TestWatchCleanConflictFree tests EXEC succeeding when nothing changed
func TestWatchCleanConflictFree(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	exec(eng, sess, "SET", "k", "v")
	exec(eng, sess, "WATCH", "k")
	exec(eng, sess, "MULTI")
	exec(eng, sess, "SET", "k", "v2")

	rep := exec(eng, sess, "EXEC")
	require.Equal(t, engine.ReplyArray, rep.Type)
	assert.Equal(t, "v2", exec(eng, sess, "GET", "k").Str)
}

// TestWatchConsumedByExec tests that EXEC consumes the watch set
func TestWatchConsumedByExec(t *testing.T) {
	eng := newTestEngine(t)
	alice := NewSession()
	bob := NewSession()

	exec(eng, alice, "WATCH", "k")
	exec(eng, alice, "MULTI")
	exec(eng, alice, "SET", "k", "1")
	rep := exec(eng, alice, "EXEC")
	require.Equal(t, engine.ReplyArray, rep.Type)
	assert.Empty(t, alice.Watched())

	// The next transaction starts unwatched: Bob's write no longer
	// affects it.
	exec(eng, bob, "SET", "k", "2")
	exec(eng, alice, "MULTI")
	exec(eng, alice, "SET", "k", "3")
	rep = exec(eng, alice, "EXEC")
	assert.Equal(t, engine.ReplyArray, rep.Type)
}

// TestRewatchRefreshesVersion tests that watching a key again records
// the version as of the second WATCH, forgetting earlier changes
func TestRewatchRefreshesVersion(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	exec(eng, sess, "SET", "k", "1")
	exec(eng, sess, "WATCH", "k")

	// The write invalidates the first observation, the second WATCH
	// picks up the new version.
	exec(eng, sess, "SET", "k", "2")
	rep := exec(eng, sess, "WATCH", "k")
	require.Equal(t, "OK", rep.Str)

	exec(eng, sess, "MULTI")
	exec(eng, sess, "SET", "k", "3")

	rep = exec(eng, sess, "EXEC")
	require.Equal(t, engine.ReplyArray, rep.Type, "re-watch must overwrite the recorded version")
	assert.Equal(t, "3", exec(eng, sess, "GET", "k").Str)

	// The doubled WATCH must not leak a refcount: after EXEC consumed
	// the watch set, deleting the key prunes its version entry.
	exec(eng, sess, "DEL", "k")
	assert.Equal(t, uint64(0), eng.Version("k"), "watch refcount leaked by re-watch")
}

// TestWatchInsideMulti tests rejection of WATCH in the queuing state
func TestWatchInsideMulti(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	exec(eng, sess, "MULTI")
	rep := exec(eng, sess, "WATCH", "k")
	require.Equal(t, engine.ReplyError, rep.Type)
	assert.Equal(t, "ERR WATCH inside MULTI is not allowed", rep.Err.Msg)
}

// TestUnwatch tests that UNWATCH clears conflicts
func TestUnwatch(t *testing.T) {
	eng := newTestEngine(t)
	alice := NewSession()
	bob := NewSession()

	exec(eng, alice, "WATCH", "k")
	exec(eng, bob, "SET", "k", "dirty")
	exec(eng, alice, "UNWATCH")

	exec(eng, alice, "MULTI")
	exec(eng, alice, "SET", "k", "clean")
	rep := exec(eng, alice, "EXEC")
	assert.Equal(t, engine.ReplyArray, rep.Type, "UNWATCH must forget the conflict")
}

// TestQueuedErrorDoesNotAbort tests continue-on-error inside EXEC
func TestQueuedErrorDoesNotAbort(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	exec(eng, sess, "SET", "str", "abc")
	exec(eng, sess, "MULTI")
	exec(eng, sess, "INCR", "str")
	exec(eng, sess, "SET", "k", "v")

	rep := exec(eng, sess, "EXEC")
	require.Equal(t, engine.ReplyArray, rep.Type)
	require.Len(t, rep.Elems, 2)
	assert.Equal(t, engine.ReplyError, rep.Elems[0].Type)
	assert.Equal(t, "OK", rep.Elems[1].Str)
}

// TestReset tests cleanup of an abandoned session
func TestReset(t *testing.T) {
	eng := newTestEngine(t)
	sess := NewSession()

	exec(eng, sess, "WATCH", "k")
	exec(eng, sess, "MULTI")
	exec(eng, sess, "SET", "k", "v")

	Reset(eng, sess)
	assert.Equal(t, StateNormal, sess.State())
	assert.Empty(t, sess.Watched())
	assert.Equal(t, uint64(0), eng.Version("k"), "released dead key should be pruned")
}
