package monitor

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	movingaverage "github.com/RobinUS2/golang-moving-average"
	"github.com/VictoriaMetrics/metrics"
	"github.com/alphadose/zenq/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// --------------------------------------------------------------------------
// Command Events
// --------------------------------------------------------------------------

// CommandEvent is one executed command as seen by the monitor. Events
// are produced on the connection goroutines and consumed by a single
// background collector, so the hot path never touches a lock.
type CommandEvent struct {
	ClientID uint64
	Addr     string
	Command  string // full command line for the slow log
	Name     string // uppercased command name
	Duration time.Duration
}

const feedCapacity = 1 << 14

// --------------------------------------------------------------------------
// Monitor
// --------------------------------------------------------------------------

// Monitor collects runtime statistics: per-command counters, a moving
// latency average, the slow log and the connected-client table. It
// also exposes everything as Prometheus metrics.
type Monitor struct {
	set     *metrics.Set
	clients *ClientTracker
	slowlog *SlowLog

	feed    *zenq.ZenQ[CommandEvent]
	stopped atomic.Bool

	startTime     time.Time
	totalCommands *metrics.Counter
	latencyAvg    *movingaverage.ConcurrentMovingAverage
	commandCalls  *xsync.MapOf[string, *atomic.Uint64]
}

// Options tunes the monitor's collectors.
type Options struct {
	SlowlogThreshold time.Duration
	SlowlogMaxLen    int
	// LatencyWindow is the number of samples in the moving average.
	LatencyWindow int
}

// DefaultOptions returns the default monitor options.
func DefaultOptions() *Options {
	return &Options{
		SlowlogThreshold: 10 * time.Millisecond,
		SlowlogMaxLen:    128,
		LatencyWindow:    1024,
	}
}

// New creates a Monitor and starts its collector.
func New(opts *Options) *Monitor {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.SlowlogMaxLen <= 0 {
		opts.SlowlogMaxLen = 128
	}
	if opts.LatencyWindow <= 0 {
		opts.LatencyWindow = 1024
	}

	m := &Monitor{
		set:          metrics.NewSet(),
		clients:      NewClientTracker(),
		slowlog:      NewSlowLog(opts.SlowlogMaxLen, opts.SlowlogThreshold),
		feed:         zenq.New[CommandEvent](feedCapacity),
		startTime:    time.Now(),
		latencyAvg:   movingaverage.Concurrent(movingaverage.New(opts.LatencyWindow)),
		commandCalls: xsync.NewMapOf[string, *atomic.Uint64](),
	}

	m.totalCommands = m.set.NewCounter("crabcage_commands_total")
	m.set.NewGauge("crabcage_connected_clients", func() float64 {
		return float64(m.clients.Count())
	})
	m.set.NewGauge("crabcage_command_latency_avg_ms", func() float64 {
		return m.latencyAvg.Avg()
	})

	go m.collect()
	return m
}

// Clients returns the connected-client table.
func (m *Monitor) Clients() *ClientTracker { return m.clients }

// Slowlog returns the slow command log.
func (m *Monitor) Slowlog() *SlowLog { return m.slowlog }

// Record hands one executed command to the collector. Safe to call
// from any goroutine; a full feed drops the event rather than stall
// the command path.
func (m *Monitor) Record(ev CommandEvent) {
	if m.stopped.Load() {
		return
	}
	m.feed.Write(ev)
}

// collect drains the event feed and updates all statistics.
func (m *Monitor) collect() {
	for {
		ev, open := m.feed.Read()
		if !open {
			return
		}
		m.totalCommands.Inc()
		m.set.GetOrCreateCounter(fmt.Sprintf(`crabcage_command_calls_total{command=%q}`, strings.ToLower(ev.Name))).Inc()
		counter, _ := m.commandCalls.LoadOrCompute(ev.Name, func() *atomic.Uint64 {
			return &atomic.Uint64{}
		})
		counter.Add(1)
		m.latencyAvg.Add(float64(ev.Duration.Microseconds()) / 1000.0)
		m.slowlog.Observe(ev.Command, ev.Duration, ev.Addr)
		m.clients.NoteCommand(ev.ClientID, ev.Name)
	}
}

// WritePrometheus renders all metrics in Prometheus text format.
func (m *Monitor) WritePrometheus(w io.Writer) {
	m.set.WritePrometheus(w)
}

// TotalCommands returns the number of commands seen so far.
func (m *Monitor) TotalCommands() uint64 {
	return m.totalCommands.Get()
}

// Close stops the collector. Events recorded afterwards are dropped.
func (m *Monitor) Close() {
	if m.stopped.CompareAndSwap(false, true) {
		m.feed.Close()
	}
}
