package monitor

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync/atomic"
	"time"
)

// --------------------------------------------------------------------------
// INFO Sections
// --------------------------------------------------------------------------

// InfoSources supplies the live readings the monitor cannot know by
// itself: dataset size and durability state.
type InfoSources struct {
	Version  string
	Endpoint string

	KeyCount func() int

	AOFEnabled bool
	AOFSize    func() int64

	SnapshotEnabled bool
	LastSnapshot    func() time.Time
}

var infoSections = []string{"server", "clients", "memory", "persistence", "stats", "commandstats"}

// BuildInfo renders the INFO response. An empty section name selects
// every section; an unknown one yields an empty string.
func (m *Monitor) BuildInfo(src InfoSources, section string) string {
	sections := infoSections
	if section != "" {
		sections = []string{strings.ToLower(section)}
	}

	var sb strings.Builder
	for _, sec := range sections {
		switch sec {
		case "server":
			sb.WriteString("# Server\n")
			fmt.Fprintf(&sb, "crabcage_version:%s\n", src.Version)
			fmt.Fprintf(&sb, "os:%s\n", runtime.GOOS)
			fmt.Fprintf(&sb, "endpoint:%s\n", src.Endpoint)
			fmt.Fprintf(&sb, "uptime_in_seconds:%d\n", int(time.Since(m.startTime).Seconds()))

		case "clients":
			sb.WriteString("# Clients\n")
			fmt.Fprintf(&sb, "connected_clients:%d\n", m.clients.Count())
			fmt.Fprintf(&sb, "total_connections:%d\n", m.clients.nextID.Load())

		case "memory":
			var ms runtime.MemStats
			runtime.ReadMemStats(&ms)
			sb.WriteString("# Memory\n")
			fmt.Fprintf(&sb, "used_memory:%d\n", ms.HeapAlloc)
			fmt.Fprintf(&sb, "used_memory_sys:%d\n", ms.Sys)

		case "persistence":
			sb.WriteString("# Persistence\n")
			fmt.Fprintf(&sb, "aof_enabled:%d\n", boolToInt(src.AOFEnabled))
			if src.AOFEnabled && src.AOFSize != nil {
				fmt.Fprintf(&sb, "aof_size:%d\n", src.AOFSize())
			}
			fmt.Fprintf(&sb, "snapshot_enabled:%d\n", boolToInt(src.SnapshotEnabled))
			if src.SnapshotEnabled && src.LastSnapshot != nil {
				if last := src.LastSnapshot(); !last.IsZero() {
					fmt.Fprintf(&sb, "snapshot_last_save:%d\n", last.Unix())
				} else {
					sb.WriteString("snapshot_last_save:never\n")
				}
			}

		case "stats":
			sb.WriteString("# Stats\n")
			fmt.Fprintf(&sb, "total_commands_processed:%d\n", m.TotalCommands())
			if src.KeyCount != nil {
				fmt.Fprintf(&sb, "total_keys:%d\n", src.KeyCount())
			}
			fmt.Fprintf(&sb, "latency_avg_ms:%.3f\n", m.latencyAvg.Avg())

		case "commandstats":
			sb.WriteString("# Command Stats\n")
			type stat struct {
				name  string
				calls uint64
			}
			var stats []stat
			m.commandCalls.Range(func(name string, calls *atomic.Uint64) bool {
				stats = append(stats, stat{name, calls.Load()})
				return true
			})
			sort.Slice(stats, func(i, j int) bool { return stats[i].name < stats[j].name })
			for _, s := range stats {
				fmt.Fprintf(&sb, "cmd_%s:%d\n", strings.ToLower(s.name), s.calls)
			}
		}
	}
	return sb.String()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
