package resp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
)

// ErrProtocol marks malformed input on the wire or in a log segment.
var ErrProtocol = errors.New("resp: protocol error")

// maxBulkLen caps a single argument to keep a hostile length header
// from allocating unbounded memory.
const maxBulkLen = 512 * 1024 * 1024

// Reader decodes client requests and log records.
//
// Two request forms are accepted:
//   - RESP arrays of bulk strings, the form every standard client
//     sends: *<n>\r\n$<len>\r\n<data>\r\n...
//   - Inline commands with optional quoting, handy for nc or telnet:
//     SET key "some value"\r\n
type Reader struct {
	r *bufio.Reader
}

func NewReader(rd io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(rd)}
}

// ReadCommand returns the next command as its argument vector, the
// command name first.
func (rr *Reader) ReadCommand() ([]string, error) {
	b, err := rr.r.Peek(1)
	if err != nil {
		return nil, err
	}
	if b[0] == '*' {
		return rr.readArray()
	}
	return rr.readInline()
}

func (rr *Reader) readArray() ([]string, error) {
	line, err := rr.readLine()
	if err != nil {
		return nil, err
	}
	if len(line) == 0 || line[0] != '*' {
		return nil, fmt.Errorf("%w: expected array", ErrProtocol)
	}
	n, err := strconv.Atoi(string(line[1:]))
	if err != nil || n < 0 {
		return nil, fmt.Errorf("%w: bad array length", ErrProtocol)
	}

	out := make([]string, 0, n)
	for i := 0; i < n; i++ {
		arg, err := rr.readBulk()
		if err != nil {
			return nil, err
		}
		out = append(out, arg)
	}
	return out, nil
}

func (rr *Reader) readBulk() (string, error) {
	header, err := rr.readLine()
	if err != nil {
		return "", err
	}
	if len(header) == 0 || header[0] != '$' {
		return "", fmt.Errorf("%w: expected bulk string", ErrProtocol)
	}
	l, err := strconv.Atoi(string(header[1:]))
	if err != nil || l < 0 || l > maxBulkLen {
		return "", fmt.Errorf("%w: bad bulk length", ErrProtocol)
	}

	buf := make([]byte, l+2) // payload + CRLF
	if _, err := io.ReadFull(rr.r, buf); err != nil {
		return "", err
	}
	if buf[l] != '\r' || buf[l+1] != '\n' {
		return "", fmt.Errorf("%w: missing CRLF after bulk string", ErrProtocol)
	}
	return string(buf[:l]), nil
}

func (rr *Reader) readInline() ([]string, error) {
	line, err := rr.readLine()
	if err != nil {
		return nil, err
	}
	return splitInline(bytes.TrimSpace(line))
}

// splitInline tokenizes an inline command, honoring single and double
// quotes. Double quotes process the usual backslash escapes, single
// quotes are literal.
func splitInline(line []byte) ([]string, error) {
	var out []string
	i, n := 0, len(line)

	for i < n {
		for i < n && (line[i] == ' ' || line[i] == '\t') {
			i++
		}
		if i >= n {
			break
		}

		var token string
		var err error
		switch line[i] {
		case '"':
			token, i, err = scanDoubleQuoted(line, i)
		case '\'':
			token, i, err = scanSingleQuoted(line, i)
		default:
			token, i = scanBare(line, i)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, token)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrProtocol)
	}
	return out, nil
}

func scanDoubleQuoted(line []byte, start int) (string, int, error) {
	var buf []byte
	for i := start + 1; i < len(line); i++ {
		switch {
		case line[i] == '"':
			return string(buf), i + 1, nil
		case line[i] == '\\' && i+1 < len(line):
			i++
			switch line[i] {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			default:
				buf = append(buf, line[i])
			}
		default:
			buf = append(buf, line[i])
		}
	}
	return "", start, fmt.Errorf("%w: unclosed double quote", ErrProtocol)
}

func scanSingleQuoted(line []byte, start int) (string, int, error) {
	for i := start + 1; i < len(line); i++ {
		if line[i] == '\'' {
			return string(line[start+1 : i]), i + 1, nil
		}
	}
	return "", start, fmt.Errorf("%w: unclosed single quote", ErrProtocol)
}

func scanBare(line []byte, start int) (string, int) {
	i := start
	for i < len(line) && line[i] != ' ' && line[i] != '\t' {
		i++
	}
	return string(line[start:i]), i
}

// More reports whether at least one byte of input remains. After a
// decode error it tells a truncated tail apart from garbage with
// further data behind it.
func (rr *Reader) More() bool {
	_, err := rr.r.Peek(1)
	return err == nil
}

func (rr *Reader) readLine() ([]byte, error) {
	line, err := rr.r.ReadBytes('\n')
	if err != nil {
		return nil, err
	}
	if len(line) < 2 || line[len(line)-2] != '\r' {
		return nil, fmt.Errorf("%w: expected CRLF", ErrProtocol)
	}
	return line[:len(line)-2], nil
}
