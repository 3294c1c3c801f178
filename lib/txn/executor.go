package txn

import (
	"strings"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

// --------------------------------------------------------------------------
// Command Routing
// --------------------------------------------------------------------------

// Execute routes one decoded command through the session's transaction
// state machine. Transaction control commands (MULTI, EXEC, DISCARD,
// WATCH, UNWATCH) act on the session; in the queuing state everything
// else is buffered with a QUEUED acknowledgement; in the normal state
// store commands run directly against the engine.
func Execute(eng *engine.Engine, sess *Session, argv []string) engine.Reply {
	if len(argv) == 0 {
		return engine.ErrReply(engine.NewError(engine.CodeInvalidArgument, "ERR empty command"))
	}

	switch strings.ToUpper(argv[0]) {
	case "MULTI":
		if len(argv) != 1 {
			return arityErr("multi")
		}
		if err := sess.Begin(); err != nil {
			return engine.ErrReply(err)
		}
		return engine.StatusReply("OK")

	case "EXEC":
		if len(argv) != 1 {
			return arityErr("exec")
		}
		return execQueue(eng, sess)

	case "DISCARD":
		if len(argv) != 1 {
			return arityErr("discard")
		}
		if err := sess.Discard(); err != nil {
			return engine.ErrReply(err)
		}
		// DISCARD drops the watch set along with the queue.
		releaseWatches(eng, sess)
		return engine.StatusReply("OK")

	case "WATCH":
		if len(argv) < 2 {
			return arityErr("watch")
		}
		if sess.State() == StateQueuing {
			return engine.ErrReply(engine.NewError(engine.CodeTxnState, "ERR WATCH inside MULTI is not allowed"))
		}
		for _, key := range argv[1:] {
			version := eng.RetainWatch(key)
			if !sess.Watch(key, version) {
				// Re-watch: the version is overwritten, one refcount
				// is already held, drop the extra one.
				eng.ReleaseWatch(key)
			}
		}
		return engine.StatusReply("OK")

	case "UNWATCH":
		if len(argv) != 1 {
			return arityErr("unwatch")
		}
		releaseWatches(eng, sess)
		return engine.StatusReply("OK")
	}

	if sess.State() == StateQueuing {
		if err := sess.Enqueue(argv); err != nil {
			return engine.ErrReply(err)
		}
		return engine.StatusReply("QUEUED")
	}
	return eng.Apply(argv)
}

// execQueue validates the watch set and applies the queue atomically.
// An aborted transaction replies nil; watches are consumed either way.
func execQueue(eng *engine.Engine, sess *Session) engine.Reply {
	queue, err := sess.TakeQueue()
	if err != nil {
		return engine.ErrReply(err)
	}

	watched := sess.Watched()
	replies, ok := eng.ExecBatch(watched, queue)
	releaseWatches(eng, sess)
	if !ok {
		return engine.NilReply()
	}
	return engine.ArrayReply(replies)
}

// releaseWatches drops the session's watch set and the engine-side
// refcounts behind it.
func releaseWatches(eng *engine.Engine, sess *Session) {
	if keys := sess.ClearWatches(); keys != nil {
		eng.ReleaseWatch(keys...)
	}
}

// Reset clears all transaction state of a session, used when its
// connection goes away mid-transaction.
func Reset(eng *engine.Engine, sess *Session) {
	if sess.State() == StateQueuing {
		_ = sess.Discard()
	}
	releaseWatches(eng, sess)
}

func arityErr(name string) engine.Reply {
	return engine.ErrReply(engine.Errorf(engine.CodeInvalidArgument,
		"ERR wrong number of arguments for '%s'", name))
}
