package sse

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

const (
	fieldEvent = "event"
	fieldData  = "data"
)

// MaxLineSize bounds the lines Next accepts. A line that reaches it before its
// line ending is discarded and reported as ErrLineTooLong.
const MaxLineSize = 1024 * 1024

// ErrLineTooLong is returned by Next for a line of MaxLineSize bytes or more.
// The Reader stays usable and resumes at the following line.
var ErrLineTooLong = fmt.Errorf("sse: line exceeds %d bytes", MaxLineSize)

// Reader reads Frames from a source io.Reader. When constructed with
// NewTeeReader every raw line is also written verbatim to a destination
// io.Writer, which lets callers record the stream while consuming it.
//
// ┌──────────────────┐
// │ source io.Reader │
// └──────────────────┘
// │
// ▼
// ┌──────────────────┐   ┌───────────────────────┐
// │  Reader.Next()   │──▶│ destination io.Writer │
// └──────────────────┘   └───────────────────────┘
// │
// ▼
// ┌──────────────────┐
// │      Frame       │
// └──────────────────┘
type Reader struct {
	scanner *bufio.Scanner
	dest    io.Writer

	// pending is the event name captured from the last "event:" line.
	pending string

	// discarding is set while the rest of an oversized line is skipped;
	// oversized is set once it has been.
	discarding bool
	oversized  bool
}

// NewReader returns a Reader that parses frames from src.
func NewReader(src io.Reader) *Reader {
	return NewTeeReader(src, nil)
}

// NewTeeReader returns a Reader that parses frames from src and writes all raw
// lines through to dest. A nil dest disables the tee.
func NewTeeReader(src io.Reader, dest io.Writer) *Reader {
	r := &Reader{dest: dest}

	r.scanner = bufio.NewScanner(src)
	r.scanner.Buffer(make([]byte, 64*1024), MaxLineSize)
	r.scanner.Split(r.splitLines)

	return r
}

// splitLines is bufio.ScanLines, except that a line filling the whole buffer
// is dropped up to its newline instead of failing the scanner.
func (r *Reader) splitLines(data []byte, atEOF bool) (int, []byte, error) {
	if r.discarding {
		i := bytes.IndexByte(data, '\n')
		switch {
		case i >= 0:
			r.discarding, r.oversized = false, true
			return i + 1, []byte{}, nil
		case atEOF:
			r.discarding, r.oversized = false, true
			return len(data), []byte{}, nil
		default:
			return len(data), nil, nil
		}
	}

	advance, token, err := bufio.ScanLines(data, atEOF)
	if advance == 0 && token == nil && err == nil && len(data) >= MaxLineSize {
		r.discarding = true
		return len(data), nil, nil
	}

	return advance, token, err
}

// Next returns the next frame from the source. It blocks until a "data:" line
// is available. Next returns nil, nil when the source is exhausted. An
// oversized line yields ErrLineTooLong and is not written to the tee; calling
// Next again continues with the next line.
func (r *Reader) Next() (*Frame, error) {
	for r.scanner.Scan() {
		if r.oversized {
			r.oversized = false
			return nil, ErrLineTooLong
		}

		raw := r.scanner.Text()

		if r.dest != nil {
			// bufio.Scanner strips the newline, reinsert it for the copy.
			if _, err := io.WriteString(r.dest, raw+"\n"); err != nil {
				return nil, err
			}
		}

		field, value, ok := parseLine(raw)
		if !ok {
			continue
		}

		switch field {
		case fieldEvent:
			r.pending = value
		case fieldData:
			return &Frame{Event: r.pending, Data: value}, nil
		}
	}

	if err := r.scanner.Err(); err != nil {
		return nil, err
	}

	return nil, nil
}

// Pending returns the event name that will be attached to the next frame.
func (r *Reader) Pending() string {
	return r.pending
}

// parseLine splits a line into a recognised field and its value. The value
// starts after the "field:" prefix with a single optional leading space
// stripped. Blank lines, comments, and any field other than "event" and "data"
// are reported as not ok.
func parseLine(line string) (string, string, bool) {
	for _, field := range []string{fieldEvent, fieldData} {
		prefix := field + ":"
		if strings.HasPrefix(line, prefix) {
			return field, strings.TrimPrefix(line[len(prefix):], " "), true
		}
	}

	return "", "", false
}
