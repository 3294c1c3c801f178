package persistence

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
	"github.com/MasterHesse/Crab-Cage/rpc/common"
)

const (
	aofFileName  = "appendonly.aof"
	snapFileName = "dump.snap"
)

// --------------------------------------------------------------------------
// Manager
// --------------------------------------------------------------------------

// Config selects which durability mechanisms run and how aggressively.
type Config struct {
	Dir        string
	AppendOnly bool
	SyncPolicy SyncPolicy

	SnapshotEnabled  bool
	SnapshotInterval time.Duration
	// SnapshotThreshold triggers a snapshot every n logged writes.
	// Zero disables the write-count trigger.
	SnapshotThreshold uint64
}

// Manager owns the durability side of a node: it boots the engine from
// snapshot plus log tail, then feeds it every mutation record and cuts
// fresh snapshots in the background.
//
// Thread-safety: Append is driven by the engine's serializing section;
// snapshot triggers run on a single-worker pool, so at most one
// snapshot is in flight at a time.
type Manager struct {
	cfg    Config
	eng    *engine.Engine
	aof    *AOF
	logger common.ILogger

	writeCount atomic.Uint64
	lastSave   atomic.Int64 // unix seconds of the last snapshot, 0 = never
	snapPool   *ants.Pool
	stop       chan struct{}
}

// AppendOnly reports whether the command log is enabled.
func (m *Manager) AppendOnly() bool { return m.cfg.AppendOnly }

// SnapshotEnabled reports whether snapshotting is enabled.
func (m *Manager) SnapshotEnabled() bool { return m.cfg.SnapshotEnabled }

// AOFSize returns the current size of the command log in bytes.
func (m *Manager) AOFSize() int64 {
	info, err := os.Stat(m.aofPath())
	if err != nil {
		return 0
	}
	return info.Size()
}

// LastSnapshot returns the completion time of the most recent
// snapshot, or the zero time if none was taken yet.
func (m *Manager) LastSnapshot() time.Time {
	if ts := m.lastSave.Load(); ts != 0 {
		return time.Unix(ts, 0)
	}
	return time.Time{}
}

// Open boots the engine from the snapshot and log in cfg.Dir, then
// arms the configured background triggers. The engine must be fresh;
// replay runs through the regular command path before the log appender
// is attached, so replayed records are not re-logged.
func Open(cfg Config, eng *engine.Engine) (*Manager, error) {
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		eng:    eng,
		logger: common.GetLogger("persistence"),
		stop:   make(chan struct{}),
	}

	if err := m.boot(); err != nil {
		return nil, err
	}

	if cfg.AppendOnly {
		aof, err := OpenAOF(m.aofPath(), cfg.SyncPolicy)
		if err != nil {
			return nil, err
		}
		m.aof = aof
		eng.AttachLog(m)
	}

	if cfg.SnapshotEnabled {
		// One worker, nonblocking: a trigger firing while a snapshot
		// runs is dropped, the next one picks the state up anyway.
		pool, err := ants.NewPool(1, ants.WithNonblocking(true))
		if err != nil {
			return nil, err
		}
		m.snapPool = pool
		if cfg.SnapshotInterval > 0 {
			go m.intervalLoop()
		}
	}
	return m, nil
}

func (m *Manager) aofPath() string  { return filepath.Join(m.cfg.Dir, aofFileName) }
func (m *Manager) snapPath() string { return filepath.Join(m.cfg.Dir, snapFileName) }

// boot restores the snapshot and replays the log tail on top of it.
func (m *Manager) boot() error {
	dump, err := LoadSnapshot(m.snapPath())
	switch {
	case err == nil:
		if err := m.eng.Restore(dump); err != nil {
			return err
		}
		m.logger.Infof("restored snapshot with %d keys", len(dump))
	case errors.Is(err, ErrNoSnapshot):
		// First boot or snapshots disabled, nothing to restore.
	default:
		return err
	}

	if !m.cfg.AppendOnly {
		return nil
	}
	applied, err := ReplayAOF(m.aofPath(), func(record []string) error {
		if rep := m.eng.Apply(record); rep.IsError() {
			return rep.Err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if applied > 0 {
		m.logger.Infof("replayed %d log records", applied)
	}
	return nil
}

// --------------------------------------------------------------------------
// Log Appending (engine.LogAppender)
// --------------------------------------------------------------------------

// Append forwards one mutation record to the log and advances the
// write-count snapshot trigger.
func (m *Manager) Append(record []string) error {
	if err := m.aof.Append(record); err != nil {
		return err
	}

	if m.cfg.SnapshotEnabled && m.cfg.SnapshotThreshold > 0 {
		if m.writeCount.Add(1) >= m.cfg.SnapshotThreshold {
			m.writeCount.Store(0)
			m.trigger("write threshold")
		}
	}
	return nil
}

// --------------------------------------------------------------------------
// Snapshots
// --------------------------------------------------------------------------

// Snapshot writes the dataset to disk and truncates the log behind it.
// Both happen while the store is locked against mutations, so the
// snapshot plus the (now empty) log always describe one consistent
// point in time.
func (m *Manager) Snapshot() error {
	if !m.cfg.SnapshotEnabled {
		return fmt.Errorf("persistence: snapshots disabled")
	}
	start := time.Now()
	var keys int
	err := m.eng.WithLockedDump(func(dump []engine.DumpEntry) error {
		keys = len(dump)
		if err := SaveSnapshot(m.snapPath(), dump); err != nil {
			return err
		}
		if m.aof != nil {
			return m.aof.Truncate()
		}
		return nil
	})
	if err != nil {
		m.logger.Errorf("snapshot failed: %v", err)
		return err
	}
	m.lastSave.Store(time.Now().Unix())
	m.logger.Infof("snapshot of %d keys written in %v", keys, time.Since(start).Round(time.Millisecond))
	return nil
}

// trigger submits a background snapshot, dropping the request if one
// is already running.
func (m *Manager) trigger(reason string) {
	err := m.snapPool.Submit(func() {
		m.logger.Debugf("snapshot triggered by %s", reason)
		_ = m.Snapshot()
	})
	if err != nil && !errors.Is(err, ants.ErrPoolOverload) {
		m.logger.Warningf("snapshot trigger rejected: %v", err)
	}
}

func (m *Manager) intervalLoop() {
	t := time.NewTicker(m.cfg.SnapshotInterval)
	defer t.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-t.C:
			m.trigger("interval")
		}
	}
}

// --------------------------------------------------------------------------
// Shutdown
// --------------------------------------------------------------------------

// Close stops the background triggers and syncs the log.
func (m *Manager) Close() error {
	close(m.stop)
	if m.snapPool != nil {
		m.snapPool.Release()
	}
	if m.aof != nil {
		if err := m.aof.Sync(); err != nil && !errors.Is(err, errClosed) {
			m.logger.Errorf("final log sync failed: %v", err)
		}
		return m.aof.Close()
	}
	return nil
}
