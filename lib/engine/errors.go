package engine

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

// Code classifies an engine error. The set is closed: every failure a
// command can produce maps to exactly one code.
type Code uint8

const (
	CodeKeyNotFound Code = iota + 1 // key or field does not exist
	CodeWrongType                   // key holds a different value kind
	CodeInvalidArgument             // malformed operand (non-integer INCR, bad index, arity)
	CodeTxnState                    // illegal transaction state transition
	CodePersistence                 // durable log or snapshot I/O failure
	CodeUnknownCommand              // command name not recognized
)

func (c Code) String() string {
	switch c {
	case CodeKeyNotFound:
		return "KeyNotFound"
	case CodeWrongType:
		return "WrongType"
	case CodeInvalidArgument:
		return "InvalidArgument"
	case CodeTxnState:
		return "TxnState"
	case CodePersistence:
		return "Persistence"
	case CodeUnknownCommand:
		return "UnknownCommand"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Error Type
// --------------------------------------------------------------------------

// Error is the engine's error type. It wraps a Code and a client-facing
// message; the message is what the boundary layer puts on the wire.
type Error struct {
	Code Code
	Msg  string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Msg
}

// NewError creates a new Error with the given code and message.
func NewError(code Code, msg string) *Error {
	return &Error{Code: code, Msg: msg}
}

// Errorf creates a new Error with a formatted message.
func Errorf(code Code, format string, args ...interface{}) *Error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the Code from err, or 0 if err is not an engine Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return 0
}

// --------------------------------------------------------------------------
// Common Errors
// --------------------------------------------------------------------------

var (
	errKeyNotFound = NewError(CodeKeyNotFound, "ERR key not found")
	errWrongType   = NewError(CodeWrongType, "WRONGTYPE Operation against a key holding the wrong kind of value")
	errNotInteger  = NewError(CodeInvalidArgument, "ERR value is not an integer or out of range")
)

// errWrongArity reproduces the original arity error text.
func errWrongArity(cmd string) *Error {
	return Errorf(CodeInvalidArgument, "ERR wrong number of arguments for '%s'", cmd)
}
