package monitor

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// --------------------------------------------------------------------------
// Slow Log
// --------------------------------------------------------------------------

// SlowLogEntry is one command that exceeded the slowness threshold.
type SlowLogEntry struct {
	Timestamp time.Time
	Duration  time.Duration
	Command   string
	Addr      string
}

// SlowLog keeps the most recent slow commands in a bounded ring,
// newest first.
type SlowLog struct {
	mu        sync.Mutex
	entries   []SlowLogEntry
	maxLen    int
	threshold time.Duration
}

func NewSlowLog(maxLen int, threshold time.Duration) *SlowLog {
	return &SlowLog{maxLen: maxLen, threshold: threshold}
}

// Observe records the command if it was slow enough, evicting the
// oldest entry once the ring is full.
func (l *SlowLog) Observe(command string, d time.Duration, addr string) {
	if d < l.threshold {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := SlowLogEntry{Timestamp: time.Now(), Duration: d, Command: command, Addr: addr}
	l.entries = append([]SlowLogEntry{entry}, l.entries...)
	if len(l.entries) > l.maxLen {
		l.entries = l.entries[:l.maxLen]
	}
}

// Len returns the number of retained entries.
func (l *SlowLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Reset drops all retained entries.
func (l *SlowLog) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Entries returns a copy of the retained entries, newest first.
func (l *SlowLog) Entries() []SlowLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]SlowLogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// String renders the log as a numbered list, newest first.
func (l *SlowLog) String() string {
	l.mu.Lock()
	defer l.mu.Unlock()

	var sb strings.Builder
	for i, e := range l.entries {
		sb.WriteString(fmt.Sprintf("%d. timestamp: %s, duration: %dms, command: %s, client: %s\n",
			i+1,
			e.Timestamp.Format(time.RFC3339),
			e.Duration.Milliseconds(),
			e.Command,
			e.Addr,
		))
	}
	return sb.String()
}
