package txn

import (
	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

// --------------------------------------------------------------------------
// Session State Machine
// --------------------------------------------------------------------------

// State is a session's position in the transaction protocol.
type State uint8

const (
	// StateNormal executes commands immediately.
	StateNormal State = iota
	// StateQueuing buffers commands until EXEC or DISCARD.
	StateQueuing
)

func (s State) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateQueuing:
		return "queuing"
	default:
		return "unknown"
	}
}

// Session holds one connection's transaction state: the MULTI queue
// and the watched keys with the versions recorded at WATCH time.
//
// Thread-safety: a Session belongs to exactly one connection and is
// never shared, so it carries no locking of its own.
type Session struct {
	state   State
	queue   [][]string
	watches map[string]uint64
}

// NewSession returns a session in the normal state with nothing
// queued and nothing watched.
func NewSession() *Session {
	return &Session{
		state:   StateNormal,
		watches: make(map[string]uint64),
	}
}

// State returns the session's current protocol state.
func (s *Session) State() State { return s.state }

// QueueLen returns the number of buffered commands.
func (s *Session) QueueLen() int { return len(s.queue) }

// Begin enters the queuing state. Nested MULTI is rejected without
// touching the existing queue.
func (s *Session) Begin() *engine.Error {
	if s.state == StateQueuing {
		return engine.NewError(engine.CodeTxnState, "ERR MULTI calls can not be nested")
	}
	s.state = StateQueuing
	s.queue = s.queue[:0]
	return nil
}

// Enqueue buffers one command. It is only legal in the queuing state.
func (s *Session) Enqueue(argv []string) *engine.Error {
	if s.state != StateQueuing {
		return engine.NewError(engine.CodeTxnState, "ERR not in transaction")
	}
	s.queue = append(s.queue, argv)
	return nil
}

// Discard leaves the queuing state and drops the buffered commands.
func (s *Session) Discard() *engine.Error {
	if s.state != StateQueuing {
		return engine.NewError(engine.CodeTxnState, "ERR DISCARD without MULTI")
	}
	s.state = StateNormal
	s.queue = nil
	return nil
}

// TakeQueue leaves the queuing state and hands the buffered commands
// to the caller. The session is ready for a fresh MULTI afterwards.
func (s *Session) TakeQueue() ([][]string, *engine.Error) {
	if s.state != StateQueuing {
		return nil, engine.NewError(engine.CodeTxnState, "ERR EXEC without MULTI")
	}
	s.state = StateNormal
	queue := s.queue
	s.queue = nil
	return queue, nil
}

// Watch records key at version. Re-watching a key overwrites the
// recorded version with the later observation, so changes before the
// second WATCH no longer count as conflicts. Returns whether the key
// is new to the watch set.
func (s *Session) Watch(key string, version uint64) bool {
	_, seen := s.watches[key]
	s.watches[key] = version
	return !seen
}

// Watched returns the recorded key versions. The map is the session's
// own; callers must not mutate it.
func (s *Session) Watched() map[string]uint64 { return s.watches }

// ClearWatches forgets all watched keys and returns them so the caller
// can release the engine-side refcounts.
func (s *Session) ClearWatches() []string {
	if len(s.watches) == 0 {
		return nil
	}
	keys := make([]string, 0, len(s.watches))
	for key := range s.watches {
		keys = append(keys, key)
	}
	s.watches = make(map[string]uint64)
	return keys
}
