package pipeline

import (
	"bufio"
	"errors"
	"io"
)

// LineReader reads '\n'-terminated lines of any length. A trailing '\r' is
// dropped, as bufio.ScanLines does. A line longer than MaxLineSize is drained
// without being buffered; Scan still reports it, Text returns "" and
// Oversized returns true.
type LineReader struct {
	r         *bufio.Reader
	buf       []byte
	oversized bool
	err       error
}

// NewLineReader returns a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, 64*1024)}
}

// Scan advances to the next line.
func (l *LineReader) Scan() bool {
	if l.err != nil {
		return false
	}
	l.buf = l.buf[:0]
	l.oversized = false
	read := 0
	for {
		chunk, err := l.r.ReadSlice('\n')
		read += len(chunk)
		if !l.oversized {
			// +2 leaves room for "\r\n".
			if len(l.buf)+len(chunk) > MaxLineSize+2 {
				l.oversized = true
				l.buf = l.buf[:0]
			} else {
				l.buf = append(l.buf, chunk...)
			}
		}
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			l.err = io.EOF
			if read == 0 {
				return false
			}
		case err != nil:
			l.err = err
			return false
		}
		break
	}
	l.buf = trimEOL(l.buf)
	if len(l.buf) > MaxLineSize {
		l.oversized = true
		l.buf = l.buf[:0]
	}
	return true
}

// Text returns the current line without its terminator.
func (l *LineReader) Text() string { return string(l.buf) }

// Oversized reports whether the current line exceeded MaxLineSize.
func (l *LineReader) Oversized() bool { return l.oversized }

// Err returns the first read error other than io.EOF.
func (l *LineReader) Err() error {
	if errors.Is(l.err, io.EOF) {
		return nil
	}
	return l.err
}

func trimEOL(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}
	return b
}

// oversizedFunc returns src's Oversized method, or a func reporting false for
// sources that never skip a line.
func oversizedFunc(src LineSource) func() bool {
	if o, ok := src.(interface{ Oversized() bool }); ok {
		return o.Oversized
	}
	return func() bool { return false }
}
