package engine

import "fmt"

// --------------------------------------------------------------------------
// Reply Types
// --------------------------------------------------------------------------

// ReplyType enumerates the protocol-agnostic reply shapes a command can
// produce. The boundary layer encodes these into wire format; the engine
// never sees the wire.
type ReplyType uint8

const (
	ReplyStatus ReplyType = iota + 1 // simple status string, e.g. "OK"
	ReplyBulk                        // single value
	ReplyInt                         // signed integer
	ReplyArray                       // ordered list of replies
	ReplyNil                         // null reply (watch-abort EXEC)
	ReplyError                       // command-level error
)

func (t ReplyType) String() string {
	switch t {
	case ReplyStatus:
		return "status"
	case ReplyBulk:
		return "bulk"
	case ReplyInt:
		return "int"
	case ReplyArray:
		return "array"
	case ReplyNil:
		return "nil"
	case ReplyError:
		return "error"
	default:
		return "unknown"
	}
}

// Reply is a typed command result. Which fields are set depends on Type.
type Reply struct {
	Type  ReplyType
	Str   string  // ReplyStatus, ReplyBulk
	Int   int64   // ReplyInt
	Elems []Reply // ReplyArray
	Err   *Error  // ReplyError
}

// --------------------------------------------------------------------------
// Reply Factory Functions
// --------------------------------------------------------------------------

// StatusReply creates a simple status reply (e.g. "OK", "QUEUED").
func StatusReply(s string) Reply {
	return Reply{Type: ReplyStatus, Str: s}
}

// BulkReply creates a single-value reply.
func BulkReply(s string) Reply {
	return Reply{Type: ReplyBulk, Str: s}
}

// IntReply creates an integer reply.
func IntReply(n int64) Reply {
	return Reply{Type: ReplyInt, Int: n}
}

// ArrayReply creates an ordered list reply.
func ArrayReply(elems []Reply) Reply {
	return Reply{Type: ReplyArray, Elems: elems}
}

// BulkArrayReply creates an array reply of bulk values.
func BulkArrayReply(vals []string) Reply {
	elems := make([]Reply, len(vals))
	for i, v := range vals {
		elems[i] = BulkReply(v)
	}
	return ArrayReply(elems)
}

// NilReply creates the null reply. EXEC uses it to signal a watch-abort,
// distinguishable from an empty array of results.
func NilReply() Reply {
	return Reply{Type: ReplyNil}
}

// ErrReply wraps an *Error into a reply.
func ErrReply(err *Error) Reply {
	return Reply{Type: ReplyError, Err: err}
}

// IsError reports whether the reply carries an error.
func (r Reply) IsError() bool {
	return r.Type == ReplyError
}

// String renders the reply for logs and tests, not for the wire.
func (r Reply) String() string {
	switch r.Type {
	case ReplyStatus, ReplyBulk:
		return r.Str
	case ReplyInt:
		return fmt.Sprintf("%d", r.Int)
	case ReplyNil:
		return "(nil)"
	case ReplyError:
		return r.Err.Error()
	case ReplyArray:
		return fmt.Sprintf("array(%d)", len(r.Elems))
	default:
		return "unknown"
	}
}
