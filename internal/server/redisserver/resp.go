package redisserver

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// MaxArrayLen caps the number of arguments in one command.
	MaxArrayLen = 64

	// DefaultMaxBulkLen caps one argument. Uploads carry whole memory
	// images, so it sits far above the usual RESP limit.
	DefaultMaxBulkLen = 128 << 20

	// MaxInlineLen caps an inline command line.
	MaxInlineLen = 4 * 1024

	// maxHeaderLen caps "*N" and "$N" lines.
	maxHeaderLen = 64
)

var (
	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

var crlf = []byte("\r\n")

// ReadCommand reads one command, either a RESP array of bulk strings or
// an inline line such as "PING" typed into telnet. maxBulk caps each
// argument; zero means DefaultMaxBulkLen. An empty command returns nil.
func ReadCommand(r *bufio.Reader, maxBulk int) ([][]byte, error) {
	if maxBulk <= 0 {
		maxBulk = DefaultMaxBulkLen
	}
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	if first[0] != '*' {
		line, err := readLine(r, MaxInlineLen)
		if err != nil {
			return nil, err
		}
		var args [][]byte
		for _, f := range strings.Fields(line) {
			args = append(args, []byte(f))
		}
		return args, nil
	}

	n, err := readHeader(r, '*', MaxArrayLen)
	if err != nil || n <= 0 {
		return nil, err
	}
	args := make([][]byte, n)
	for i := range args {
		size, err := readHeader(r, '$', maxBulk)
		if err != nil {
			return nil, err
		}
		if size < 0 {
			continue
		}
		buf := make([]byte, size+len(crlf))
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		if !bytes.HasSuffix(buf, crlf) {
			return nil, fmt.Errorf("%w: bulk string not terminated by CRLF", ErrProtocol)
		}
		args[i] = buf[:size]
	}
	return args, nil
}

// readHeader reads a "<kind><n>" line and returns n, which may be -1.
func readHeader(r *bufio.Reader, kind byte, limit int) (int, error) {
	line, err := readLine(r, maxHeaderLen)
	if err != nil {
		return 0, err
	}
	if line == "" || line[0] != kind {
		return 0, fmt.Errorf("%w: expected %q header", ErrProtocol, kind)
	}
	n, err := strconv.Atoi(strings.TrimSpace(line[1:]))
	if err != nil || n < -1 {
		return 0, fmt.Errorf("%w: bad length in %q header", ErrProtocol, kind)
	}
	if n > limit {
		return 0, fmt.Errorf("%w: length %d over limit %d", ErrLimitExceeded, n, limit)
	}
	return n, nil
}

// readLine reads up to CRLF and returns the line without it.
func readLine(r *bufio.Reader, limit int) (string, error) {
	var line []byte
	for {
		frag, err := r.ReadSlice('\n')
		line = append(line, frag...)
		if len(line) > limit+len(crlf) {
			return "", fmt.Errorf("%w: line over %d bytes", ErrLimitExceeded, limit)
		}
		if err == nil {
			break
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return "", err
		}
	}
	if !bytes.HasSuffix(line, crlf) {
		return "", fmt.Errorf("%w: line not terminated by CRLF", ErrProtocol)
	}
	return string(line[:len(line)-len(crlf)]), nil
}

func writeLine(w *bufio.Writer, prefix byte, s string) error {
	w.WriteByte(prefix)
	w.WriteString(s)
	_, err := w.Write(crlf)
	return err
}

// WriteSimpleString writes "+s".
func WriteSimpleString(w *bufio.Writer, s string) error {
	return writeLine(w, '+', s)
}

// WriteError writes "-s". Line breaks in s become spaces.
func WriteError(w *bufio.Writer, s string) error {
	return writeLine(w, '-', strings.NewReplacer("\r", " ", "\n", " ").Replace(s))
}

// WriteInteger writes ":n".
func WriteInteger(w *bufio.Writer, n int64) error {
	return writeLine(w, ':', strconv.FormatInt(n, 10))
}

// WriteBulk writes b as a bulk string. nil is written as the null bulk.
func WriteBulk(w *bufio.Writer, b []byte) error {
	if b == nil {
		return writeLine(w, '$', "-1")
	}
	writeLine(w, '$', strconv.Itoa(len(b)))
	w.Write(b)
	_, err := w.Write(crlf)
	return err
}

func normalizeCommandName(b []byte) string {
	if bytes.ContainsAny(b, "abcdefghijklmnopqrstuvwxyz") {
		return strings.ToUpper(string(b))
	}
	return string(b)
}
