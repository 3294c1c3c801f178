package engine

import (
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/tidwall/btree"
)

// --------------------------------------------------------------------------
// Constants
// --------------------------------------------------------------------------

const (
	defaultSweepTick = 100 * time.Millisecond // Timing wheel resolution
	defaultWheelSize = 600                    // Slots per wheel rotation
)

// --------------------------------------------------------------------------
// Log Appender
// --------------------------------------------------------------------------

// LogAppender receives one fully-resolved record per applied mutation.
// The append happens inside the engine's serializing section, before the
// mutation is acknowledged; a failed append rolls the mutation back.
type LogAppender interface {
	Append(record []string) error
}

// --------------------------------------------------------------------------
// Core Engine Structure
// --------------------------------------------------------------------------

// entry is a key's stored value plus optional absolute expiry
// (unix milliseconds, 0 = no expiry). Owned exclusively by the engine.
type entry struct {
	value    *Value
	expireAt int64
}

// deadline is one element of the expiry index, ordered by (at, key).
type deadline struct {
	at  int64
	key string
}

// Engine is the unified key-value store shared by direct command
// execution and transaction execution. All mutations pass through a
// single chokepoint that mutates the entry, bumps the key's watch
// version and appends a durable record as one atomic step.
//
// Thread-safety: all exported methods are safe for concurrent use. A
// single mutex serializes every command; EXEC batches hold it across
// the whole validate-then-apply sequence.
type Engine struct {
	mu       sync.Mutex
	entries  map[string]*entry
	versions map[string]uint64 // per-key watch versions
	watchers map[string]int    // outstanding WATCH refcounts, for pruning

	expires *btree.BTreeG[deadline]
	timer   *timingwheel.TimingWheel

	appender LogAppender
	now      func() time.Time
}

// Options configures the engine during initialization.
type Options struct {
	Now       func() time.Time // Clock override for tests (nil = time.Now)
	SweepTick time.Duration    // Timing wheel tick (0 = default)
}

// DefaultOptions returns the default engine options.
func DefaultOptions() *Options {
	return &Options{
		Now:       time.Now,
		SweepTick: defaultSweepTick,
	}
}

// New creates a new Engine. The background expiry sweep starts
// immediately; no durable log is attached until AttachLog is called, so
// boot-time replay runs through the same mutation path without
// re-logging records.
func New(opts *Options) *Engine {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SweepTick <= 0 {
		opts.SweepTick = defaultSweepTick
	}

	e := &Engine{
		entries:  make(map[string]*entry),
		versions: make(map[string]uint64),
		watchers: make(map[string]int),
		expires: btree.NewBTreeG[deadline](func(a, b deadline) bool {
			if a.at != b.at {
				return a.at < b.at
			}
			return a.key < b.key
		}),
		timer: timingwheel.NewTimingWheel(opts.SweepTick, defaultWheelSize),
		now:   opts.Now,
	}
	go e.timer.Start()
	return e
}

// AttachLog attaches the durable log appender. Called once after boot
// replay has finished.
func (e *Engine) AttachLog(a LogAppender) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.appender = a
}

// Close stops the background expiry sweep.
func (e *Engine) Close() error {
	e.timer.Stop()
	return nil
}

// --------------------------------------------------------------------------
// Command Execution
// --------------------------------------------------------------------------

// Apply executes one decoded command against the store and returns its
// typed reply. Both the direct execution path and the transaction
// executor's batch loop funnel into the same dispatch, so mutation,
// versioning and logging semantics cannot diverge between the two.
func (e *Engine) Apply(argv []string) Reply {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.applyLocked(argv)
}

// ExecBatch atomically validates the watched versions and, if none
// changed, applies the queued commands in order. The bool result is
// false when a version mismatch aborted the batch; no command of an
// aborted batch is applied. A single command's logical error becomes
// that command's reply and does not stop the batch.
func (e *Engine) ExecBatch(watched map[string]uint64, queue [][]string) ([]Reply, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// Lazy expiry of a watched key counts as a change.
	for key, version := range watched {
		e.resolveExpiredLocked(key)
		if e.versions[key] != version {
			return nil, false
		}
	}

	replies := make([]Reply, 0, len(queue))
	for _, argv := range queue {
		replies = append(replies, e.applyLocked(argv))
	}
	return replies, true
}

// --------------------------------------------------------------------------
// Watch Version Accounting
// --------------------------------------------------------------------------

// RetainWatch records a watcher on key and returns the key's current
// version. Lazy expiry resolves first, so the recorded version already
// reflects an expired key's removal.
func (e *Engine) RetainWatch(key string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resolveExpiredLocked(key)
	e.watchers[key]++
	return e.versions[key]
}

// ReleaseWatch drops one watcher from each key and prunes version
// state for keys that no longer exist and have no remaining watchers.
func (e *Engine) ReleaseWatch(keys ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, key := range keys {
		if e.watchers[key] <= 1 {
			delete(e.watchers, key)
		} else {
			e.watchers[key]--
		}
		e.pruneVersionLocked(key)
	}
}

// pruneVersionLocked drops the version counter of a key that has no
// entry and no outstanding watcher, bounding the side table.
func (e *Engine) pruneVersionLocked(key string) {
	if e.watchers[key] == 0 {
		if _, ok := e.entries[key]; !ok {
			delete(e.versions, key)
		}
	}
}

// --------------------------------------------------------------------------
// Mutation Chokepoint
// --------------------------------------------------------------------------

// undoState captures a key's entry before a mutation so a failed log
// append can restore it.
type undoState struct {
	key     string
	existed bool
	value   *Value
	expire  int64
}

// stageLocked snapshots the entry under key for rollback.
func (e *Engine) stageLocked(key string) undoState {
	ent, ok := e.entries[key]
	u := undoState{key: key, existed: ok}
	if ok {
		u.value = ent.value.Clone()
		u.expire = ent.expireAt
	}
	return u
}

// commitLocked is the single mutation chokepoint: the caller has already
// applied the in-memory change; commit bumps the key's watch version and
// appends the fully-resolved record to the durable log. If the append
// fails the mutation and version bump are rolled back and the caller
// gets a PersistenceError reply instead of ok.
func (e *Engine) commitLocked(u undoState, record []string, ok Reply) Reply {
	e.versions[u.key]++

	if e.appender != nil && record != nil {
		if err := e.appender.Append(record); err != nil {
			// Restore the pre-mutation entry so nothing observably
			// committed is durably unlogged.
			if u.existed {
				e.entries[u.key] = &entry{value: u.value, expireAt: u.expire}
			} else {
				delete(e.entries, u.key)
			}
			e.versions[u.key]--
			e.pruneVersionLocked(u.key)
			return ErrReply(Errorf(CodePersistence, "ERR persistence: %v", err))
		}
	}

	e.pruneVersionLocked(u.key)
	return ok
}

// --------------------------------------------------------------------------
// Expiration
// --------------------------------------------------------------------------

// nowMillis returns the engine clock as unix milliseconds.
func (e *Engine) nowMillis() int64 {
	return e.now().UnixMilli()
}

// resolveExpiredLocked performs lazy expiry on key: an entry whose
// deadline has passed is removed and the key's watch version bumped,
// exactly as any other deletion. Removals are not logged; replay
// re-derives them from the absolute deadlines in the records.
func (e *Engine) resolveExpiredLocked(key string) {
	ent, ok := e.entries[key]
	if !ok || ent.expireAt == 0 {
		return
	}
	if e.nowMillis() < ent.expireAt {
		return
	}
	e.expires.Delete(deadline{at: ent.expireAt, key: key})
	delete(e.entries, key)
	e.versions[key]++
	e.pruneVersionLocked(key)
}

// scheduleExpiryLocked indexes the deadline and arms a timing-wheel
// task slightly past it. The task only triggers a reap; reapDue
// double-checks every candidate against the live entry, so stale tasks
// left behind by PERSIST or DEL are harmless.
func (e *Engine) scheduleExpiryLocked(key string, at int64) {
	e.expires.Set(deadline{at: at, key: key})

	d := time.Duration(at-e.nowMillis()) * time.Millisecond
	if d < defaultSweepTick {
		d = defaultSweepTick
	}
	e.timer.AfterFunc(d+defaultSweepTick, e.reapDue)
}

// reapDue removes every indexed key whose deadline has passed. It runs
// on the timing wheel and reuses the same locked removal path as lazy
// expiry, so versioning stays consistent no matter which path wins.
func (e *Engine) reapDue() {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowMillis()
	var due []deadline
	e.expires.Ascend(deadline{}, func(d deadline) bool {
		if d.at > now {
			return false
		}
		due = append(due, d)
		return true
	})
	for _, d := range due {
		e.expires.Delete(d)
		e.resolveExpiredLocked(d.key)
	}
}

// --------------------------------------------------------------------------
// Introspection
// --------------------------------------------------------------------------

// Len returns the number of live keys. Expired-but-unreaped entries are
// not counted.
func (e *Engine) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.nowMillis()
	n := 0
	for _, ent := range e.entries {
		if ent.expireAt != 0 && now >= ent.expireAt {
			continue
		}
		n++
	}
	return n
}

// Version returns the current watch version of key without registering
// a watcher. Intended for tests and diagnostics.
func (e *Engine) Version(key string) uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.versions[key]
}
