package resp

import (
	"fmt"
	"io"
	"strconv"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

// ReadReply decodes one server reply into the engine's typed form.
// The client side of the protocol uses this; the server never reads
// replies.
func (rr *Reader) ReadReply() (engine.Reply, error) {
	line, err := rr.readLine()
	if err != nil {
		return engine.Reply{}, err
	}
	if len(line) == 0 {
		return engine.Reply{}, fmt.Errorf("%w: empty reply line", ErrProtocol)
	}

	payload := string(line[1:])
	switch line[0] {
	case '+':
		return engine.StatusReply(payload), nil
	case '-':
		return engine.ErrReply(engine.NewError(engine.CodeUnknownCommand, payload)), nil
	case ':':
		n, err := strconv.ParseInt(payload, 10, 64)
		if err != nil {
			return engine.Reply{}, fmt.Errorf("%w: bad integer reply", ErrProtocol)
		}
		return engine.IntReply(n), nil
	case '$':
		l, err := strconv.Atoi(payload)
		if err != nil || l < -1 || l > maxBulkLen {
			return engine.Reply{}, fmt.Errorf("%w: bad bulk length", ErrProtocol)
		}
		if l == -1 {
			return engine.NilReply(), nil
		}
		s, err := rr.readBulkPayload(l)
		if err != nil {
			return engine.Reply{}, err
		}
		return engine.BulkReply(s), nil
	case '*':
		n, err := strconv.Atoi(payload)
		if err != nil || n < -1 {
			return engine.Reply{}, fmt.Errorf("%w: bad array length", ErrProtocol)
		}
		if n == -1 {
			return engine.NilReply(), nil
		}
		elems := make([]engine.Reply, 0, n)
		for i := 0; i < n; i++ {
			el, err := rr.ReadReply()
			if err != nil {
				return engine.Reply{}, err
			}
			elems = append(elems, el)
		}
		return engine.ArrayReply(elems), nil
	default:
		return engine.Reply{}, fmt.Errorf("%w: unknown reply type %q", ErrProtocol, line[0])
	}
}

// readBulkPayload reads l payload bytes plus the trailing CRLF.
func (rr *Reader) readBulkPayload(l int) (string, error) {
	buf := make([]byte, l+2)
	if _, err := io.ReadFull(rr.r, buf); err != nil {
		return "", err
	}
	if buf[l] != '\r' || buf[l+1] != '\n' {
		return "", fmt.Errorf("%w: missing CRLF after bulk string", ErrProtocol)
	}
	return string(buf[:l]), nil
}
