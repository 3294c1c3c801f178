package monitor

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Client Tracker
// --------------------------------------------------------------------------

// ClientInfo describes one live connection.
type ClientInfo struct {
	ID          uint64
	Addr        string
	ConnectedAt time.Time

	mu          sync.Mutex
	lastCommand string
	lastSeen    time.Time
}

// NoteCommand updates the connection's last-command bookkeeping.
func (c *ClientInfo) NoteCommand(name string) {
	c.mu.Lock()
	c.lastCommand = name
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// ClientTracker is the table of live connections.
//
// Thread-safety: safe for concurrent use from connection goroutines
// and the collector.
type ClientTracker struct {
	clients *xsync.MapOf[uint64, *ClientInfo]
	nextID  atomic.Uint64
}

func NewClientTracker() *ClientTracker {
	return &ClientTracker{clients: xsync.NewMapOf[uint64, *ClientInfo]()}
}

// Add registers a connection and returns its info record.
func (t *ClientTracker) Add(addr string) *ClientInfo {
	now := time.Now()
	info := &ClientInfo{
		ID:          t.nextID.Add(1),
		Addr:        addr,
		ConnectedAt: now,
		lastCommand: "none",
		lastSeen:    now,
	}
	t.clients.Store(info.ID, info)
	return info
}

// Remove drops a connection from the table.
func (t *ClientTracker) Remove(id uint64) {
	t.clients.Delete(id)
}

// NoteCommand records the last command of a connection, ignoring
// connections that already went away.
func (t *ClientTracker) NoteCommand(id uint64, name string) {
	if info, ok := t.clients.Load(id); ok {
		info.NoteCommand(name)
	}
}

// Count returns the number of live connections.
func (t *ClientTracker) Count() int {
	return t.clients.Size()
}

// List renders the table, one connection per line, ordered by id.
func (t *ClientTracker) List() string {
	var infos []*ClientInfo
	t.clients.Range(func(_ uint64, info *ClientInfo) bool {
		infos = append(infos, info)
		return true
	})
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })

	var sb strings.Builder
	now := time.Now()
	for _, info := range infos {
		info.mu.Lock()
		cmd, seen := info.lastCommand, info.lastSeen
		info.mu.Unlock()
		sb.WriteString(fmt.Sprintf("id=%d addr=%s age=%ds idle=%ds cmd=%s\n",
			info.ID,
			info.Addr,
			int(now.Sub(info.ConnectedAt).Seconds()),
			int(now.Sub(seen).Seconds()),
			cmd,
		))
	}
	return sb.String()
}
