package resp

import (
	"bufio"
	"io"
	"strconv"

	"github.com/MasterHesse/Crab-Cage/lib/engine"
)

// Writer encodes replies and command records. It buffers internally;
// callers flush once per request respectively per sync policy.
type Writer struct {
	w *bufio.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

func (wr *Writer) Flush() error { return wr.w.Flush() }

func (wr *Writer) WriteStatus(s string) error {
	_, err := wr.w.WriteString("+" + s + "\r\n")
	return err
}

func (wr *Writer) WriteError(msg string) error {
	_, err := wr.w.WriteString("-" + msg + "\r\n")
	return err
}

func (wr *Writer) WriteInt(i int64) error {
	_, err := wr.w.WriteString(":" + strconv.FormatInt(i, 10) + "\r\n")
	return err
}

func (wr *Writer) WriteNil() error {
	_, err := wr.w.WriteString("*-1\r\n")
	return err
}

func (wr *Writer) WriteBulk(s string) error {
	if _, err := wr.w.WriteString("$" + strconv.Itoa(len(s)) + "\r\n"); err != nil {
		return err
	}
	if _, err := wr.w.WriteString(s); err != nil {
		return err
	}
	_, err := wr.w.WriteString("\r\n")
	return err
}

// WriteCommand writes an argument vector as an array of bulk strings,
// the on-wire form of requests and the on-disk form of log records.
func (wr *Writer) WriteCommand(argv []string) error {
	if _, err := wr.w.WriteString("*" + strconv.Itoa(len(argv)) + "\r\n"); err != nil {
		return err
	}
	for _, arg := range argv {
		if err := wr.WriteBulk(arg); err != nil {
			return err
		}
	}
	return nil
}

// WriteReply encodes a typed engine reply.
func (wr *Writer) WriteReply(rep engine.Reply) error {
	switch rep.Type {
	case engine.ReplyStatus:
		return wr.WriteStatus(rep.Str)
	case engine.ReplyBulk:
		return wr.WriteBulk(rep.Str)
	case engine.ReplyInt:
		return wr.WriteInt(rep.Int)
	case engine.ReplyNil:
		return wr.WriteNil()
	case engine.ReplyError:
		return wr.WriteError(rep.Err.Msg)
	case engine.ReplyArray:
		if _, err := wr.w.WriteString("*" + strconv.Itoa(len(rep.Elems)) + "\r\n"); err != nil {
			return err
		}
		for _, el := range rep.Elems {
			if err := wr.WriteReply(el); err != nil {
				return err
			}
		}
		return nil
	default:
		return wr.WriteError("ERR unencodable reply")
	}
}
