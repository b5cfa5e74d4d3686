package backend

import (
	"bufio"
	"io"
)

// lineReader is a specialized reader that only ever yields entire
// newline-delimited lines. A CSV file can be reloaded while its writer is
// still appending to it; the unterminated final line is held back instead of
// being parsed as a truncated record.
type lineReader struct {
	r *bufio.Reader
	// line is the unread remainder of the current complete line.
	line []byte
	// pending accumulates an unterminated line across reads.
	pending []byte
}

var _ io.Reader = (*lineReader)(nil)

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{
		r: bufio.NewReader(r),
	}
}

func (l *lineReader) Read(b []byte) (int, error) {
	if len(l.line) == 0 {
		data, err := l.r.ReadBytes('\n')
		if err != nil {
			l.pending = append(l.pending, data...)
			return 0, err
		}
		if len(l.pending) > 0 {
			data = append(l.pending, data...)
			l.pending = nil
		}
		l.line = data
	}
	n := copy(b, l.line)
	l.line = l.line[n:]
	return n, nil
}

// Pending returns the number of bytes held back in an unterminated line.
func (l *lineReader) Pending() int {
	return len(l.pending)
}
