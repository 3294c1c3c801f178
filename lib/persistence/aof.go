package persistence

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/MasterHesse/Crab-Cage/rpc/resp"
)

// --------------------------------------------------------------------------
// Sync Policies
// --------------------------------------------------------------------------

// SyncPolicy controls when appended records reach stable storage.
type SyncPolicy string

const (
	// SyncAlways fsyncs after every record. No loss window.
	SyncAlways SyncPolicy = "always"
	// SyncEverySec fsyncs once per second. Up to one second of loss.
	SyncEverySec SyncPolicy = "everysec"
	// SyncNo leaves syncing to the OS. Unbounded loss window.
	SyncNo SyncPolicy = "no"
)

// Valid reports whether p names a known policy.
func (p SyncPolicy) Valid() bool {
	switch p {
	case SyncAlways, SyncEverySec, SyncNo:
		return true
	}
	return false
}

var errClosed = errors.New("persistence: log closed")

// --------------------------------------------------------------------------
// Append-Only Log
// --------------------------------------------------------------------------

// AOF is the append-only command log. Records are encoded as RESP
// arrays of bulk strings, so a log file is replayable with the same
// decoder that serves client connections and stays inspectable with
// standard tooling.
type AOF struct {
	mu     sync.Mutex
	f      *os.File
	w      *resp.Writer
	policy SyncPolicy
	closed bool
	stop   chan struct{}
}

// OpenAOF opens (or creates) the log at path for appending.
func OpenAOF(path string, policy SyncPolicy) (*AOF, error) {
	if !policy.Valid() {
		policy = SyncEverySec
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	a := &AOF{
		f:      f,
		w:      resp.NewWriter(f),
		policy: policy,
		stop:   make(chan struct{}),
	}
	if policy == SyncEverySec {
		go a.syncLoop()
	}
	return a, nil
}

// Append writes one record and applies the sync policy. The engine
// calls this inside its serializing section, so a returned error means
// the mutation it belongs to was rolled back.
func (a *AOF) Append(record []string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}

	if err := a.w.WriteCommand(record); err != nil {
		return err
	}
	if err := a.w.Flush(); err != nil {
		return err
	}
	if a.policy == SyncAlways {
		return a.f.Sync()
	}
	return nil
}

// Sync forces the log to stable storage, used on shutdown.
func (a *AOF) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}
	if err := a.w.Flush(); err != nil {
		return err
	}
	return a.f.Sync()
}

// Truncate discards the entire log. Called right after a snapshot has
// been persisted, while the store is locked against mutations, so no
// record can slip between the snapshot and the empty log.
func (a *AOF) Truncate() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errClosed
	}
	if err := a.w.Flush(); err != nil {
		return err
	}
	if err := a.f.Truncate(0); err != nil {
		return err
	}
	return a.f.Sync()
}

func (a *AOF) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	close(a.stop)

	_ = a.w.Flush()
	_ = a.f.Sync()
	return a.f.Close()
}

func (a *AOF) syncLoop() {
	t := time.NewTicker(time.Second)
	defer t.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-t.C:
			a.mu.Lock()
			if !a.closed {
				_ = a.w.Flush()
				_ = a.f.Sync()
			}
			a.mu.Unlock()
		}
	}
}

// --------------------------------------------------------------------------
// Replay
// --------------------------------------------------------------------------

// ReplayAOF streams the records of the log at path into apply, in
// write order. A missing file is an empty log. A torn final record
// after a crash ends the replay quietly: it must not keep the store
// from booting with everything before it. A record that fails to
// decode with more data behind it is real corruption and aborts the
// replay, since applying the suffix without the damaged record would
// hand back a silently wrong store. Logical errors from apply are
// skipped so one odd record cannot shadow the rest.
func ReplayAOF(path string, apply func(record []string) error) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	rr := resp.NewReader(f)
	applied := 0
	for {
		record, err := rr.ReadCommand()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return applied, nil
			}
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, resp.ErrProtocol) {
				if rr.More() {
					return applied, fmt.Errorf("persistence: corrupt log record after %d replayed: %w", applied, err)
				}
				return applied, nil
			}
			return applied, err
		}
		if len(record) == 0 {
			continue
		}
		if err := apply(record); err != nil {
			continue
		}
		applied++
	}
}
