package persistence

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

func newEngine(t *testing.T) *engine.Engine {
	t.Helper()
	eng := engine.New(nil)
	t.Cleanup(func() { _ = eng.Close() })
	return eng
}

func apply(t *testing.T, eng *engine.Engine, args ...string) engine.Reply {
	t.Helper()
	rep := eng.Apply(args)
	require.False(t, rep.IsError(), "command %v failed: %s", args, rep.String())
	return rep
}

// TestAOFAppendReplay tests the log round trip through a restart
func TestAOFAppendReplay(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, AppendOnly: true, SyncPolicy: SyncAlways}

	eng := newEngine(t)
	m, err := Open(cfg, eng)
	require.NoError(t, err)

	apply(t, eng, "SET", "k", "v")
	apply(t, eng, "HSET", "h", "f", "1")
	apply(t, eng, "RPUSH", "l", "a", "b")
	apply(t, eng, "SADD", "s", "m")
	apply(t, eng, "DEL", "k")
	require.NoError(t, m.Close())

	// Fresh engine, same directory: the log rebuilds the state.
	eng2 := newEngine(t)
	m2, err := Open(cfg, eng2)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, engine.ReplyError, eng2.Apply([]string{"GET", "k"}).Type, "deleted key must stay deleted")
	assert.Equal(t, "1", eng2.Apply([]string{"HGET", "h", "f"}).Str)
	assert.Equal(t, int64(2), eng2.Apply([]string{"LLEN", "l"}).Int)
	assert.Equal(t, int64(1), eng2.Apply([]string{"SISMEMBER", "s", "m"}).Int)
}

// TestReplayExpiredDeadline tests that a logged deadline in the past
// keeps the key out of the rebuilt store
func TestReplayExpiredDeadline(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, AppendOnly: true, SyncPolicy: SyncAlways}

	eng := newEngine(t)
	m, err := Open(cfg, eng)
	require.NoError(t, err)

	apply(t, eng, "SET", "tmp", "v")
	apply(t, eng, "EXPIREAT", "tmp", "1") // 1970, long gone
	require.NoError(t, m.Close())

	eng2 := newEngine(t)
	m2, err := Open(cfg, eng2)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, int64(0), eng2.Apply([]string{"EXISTS", "tmp"}).Int)
}

// TestReplayTornTail tests that a truncated final record does not block boot
func TestReplayTornTail(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, AppendOnly: true, SyncPolicy: SyncAlways}

	eng := newEngine(t)
	m, err := Open(cfg, eng)
	require.NoError(t, err)
	apply(t, eng, "SET", "a", "1")
	apply(t, eng, "SET", "b", "2")
	require.NoError(t, m.Close())

	// Chop bytes off the end, as a crash mid-append would.
	path := filepath.Join(dir, aofFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data[:len(data)-7], 0o644))

	eng2 := newEngine(t)
	m2, err := Open(cfg, eng2)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, "1", eng2.Apply([]string{"GET", "a"}).Str, "records before the tear must survive")
	assert.Equal(t, engine.ReplyError, eng2.Apply([]string{"GET", "b"}).Type, "the torn record is lost")
}

// TestReplayMidLogCorruption tests that a damaged record with intact
// records behind it fails the boot instead of dropping the suffix
func TestReplayMidLogCorruption(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, AppendOnly: true, SyncPolicy: SyncAlways}

	eng := newEngine(t)
	m, err := Open(cfg, eng)
	require.NoError(t, err)
	apply(t, eng, "SET", "a", "1")
	require.NoError(t, m.Close())

	// Splice a damaged record between two valid ones.
	path := filepath.Join(dir, aofFileName)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data = append(data, "*2\r\n$3\r\nSET\r\nbroken\r\n"...)
	data = append(data, "*3\r\n$3\r\nSET\r\n$1\r\nb\r\n$1\r\n2\r\n"...)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	eng2 := newEngine(t)
	_, err = Open(cfg, eng2)
	require.Error(t, err, "a log with data behind the damage is corrupt, not torn")
}

// TestSnapshotCutsLog tests that a snapshot truncates the log and a
// subsequent boot uses snapshot plus tail
func TestSnapshotCutsLog(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{Dir: dir, AppendOnly: true, SyncPolicy: SyncAlways, SnapshotEnabled: true}

	eng := newEngine(t)
	m, err := Open(cfg, eng)
	require.NoError(t, err)

	apply(t, eng, "SET", "old", "1")
	require.NoError(t, m.Snapshot())

	info, err := os.Stat(filepath.Join(dir, aofFileName))
	require.NoError(t, err)
	assert.Equal(t, int64(0), info.Size(), "snapshot must truncate the log")

	// Writes after the cut land in the fresh log tail.
	apply(t, eng, "SET", "new", "2")
	require.NoError(t, m.Close())

	eng2 := newEngine(t)
	m2, err := Open(cfg, eng2)
	require.NoError(t, err)
	defer m2.Close()

	assert.Equal(t, "1", eng2.Apply([]string{"GET", "old"}).Str)
	assert.Equal(t, "2", eng2.Apply([]string{"GET", "new"}).Str)
}

// TestSnapshotThresholdTrigger tests the logged-write trigger
func TestSnapshotThresholdTrigger(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		Dir:               dir,
		AppendOnly:        true,
		SyncPolicy:        SyncAlways,
		SnapshotEnabled:   true,
		SnapshotThreshold: 3,
	}

	eng := newEngine(t)
	m, err := Open(cfg, eng)
	require.NoError(t, err)
	defer m.Close()

	apply(t, eng, "SET", "a", "1")
	apply(t, eng, "SET", "b", "2")
	apply(t, eng, "SET", "c", "3")

	// The trigger runs on a background worker.
	snapPath := filepath.Join(dir, snapFileName)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(snapPath); err == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("write threshold never produced a snapshot")
}

// TestSnapshotCodec tests the binary format round trip
func TestSnapshotCodec(t *testing.T) {
	dump := []engine.DumpEntry{
		{Key: "s", Kind: engine.KindString, Payload: []string{"value"}},
		{Key: "h", Kind: engine.KindHash, ExpireAt: 1234567890123, Payload: []string{"f1", "a", "f2", "b"}},
		{Key: "l", Kind: engine.KindList, Payload: []string{"x", "y"}},
		{Key: "empty", Kind: engine.KindSet, Payload: nil},
		{Key: "bin", Kind: engine.KindString, Payload: []string{"crlf\r\nand\x00nul"}},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteSnapshot(&buf, dump))

	got, err := ReadSnapshot(&buf)
	require.NoError(t, err)
	require.Len(t, got, len(dump))
	for i := range dump {
		assert.Equal(t, dump[i].Key, got[i].Key)
		assert.Equal(t, dump[i].Kind, got[i].Kind)
		assert.Equal(t, dump[i].ExpireAt, got[i].ExpireAt)
		if len(dump[i].Payload) > 0 {
			assert.Equal(t, dump[i].Payload, got[i].Payload)
		}
	}
}

// TestSnapshotRejectsForeignFile tests the magic number check
func TestSnapshotRejectsForeignFile(t *testing.T) {
	_, err := ReadSnapshot(bytes.NewReader([]byte("NOTASNAPSHOTFILE")))
	assert.Error(t, err)
}
