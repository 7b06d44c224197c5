package session

import (
	"bytes"
	"fmt"
	"io"

	ncerr "chatd/internal/errors"
	"chatd/util"
)

// lineReader turns raw reads into logical lines.  CR, LF and NUL end a
// line; bytes after the terminator stay buffered as the start of the
// next line.  Every byte outside printable ASCII becomes a space.
type lineReader struct {
	r    io.Reader
	max  int
	addr string

	buf     *[]byte // scratch for one raw read, from util.BufPool
	pending []byte
	err     error // read error that arrived with data, returned after it

	// arm runs before every raw read; it sets the read deadline.
	arm func() error
	// touch runs after every raw read that returned data.
	touch func(n int)
}

func newLineReader(r io.Reader, max int, addr string) *lineReader {
	return &lineReader{
		r:     r,
		max:   max,
		addr:  addr,
		buf:   util.GetBuf(),
		arm:   func() error { return nil },
		touch: func(int) {},
	}
}

// next returns the next scrubbed line.  A line longer than max bytes
// is a ProtocolError wrapping ErrLineTooLong.
func (lr *lineReader) next() (string, error) {
	for {
		if i := bytes.IndexAny(lr.pending, "\r\n\x00"); i >= 0 {
			if i > lr.max {
				return "", lr.tooLong()
			}
			line := scrub(lr.pending[:i])
			lr.pending = lr.pending[i+1:]
			return line, nil
		}
		if len(lr.pending) > lr.max {
			return "", lr.tooLong()
		}
		if lr.err != nil {
			err := lr.err
			lr.err = nil
			return "", err
		}

		if err := lr.arm(); err != nil {
			return "", err
		}
		n, err := lr.r.Read(*lr.buf)
		if n > 0 {
			lr.touch(n)
			lr.pending = append(lr.pending, (*lr.buf)[:n]...)
		}
		if err != nil {
			if n == 0 {
				return "", err
			}
			lr.err = err
		}
	}
}

func (lr *lineReader) tooLong() error {
	lr.pending = nil
	return ncerr.Protocol(lr.addr, fmt.Sprintf("line longer than %d bytes", lr.max), ncerr.ErrLineTooLong)
}

// release returns the scratch buffer to the pool.
func (lr *lineReader) release() {
	if lr.buf != nil {
		util.PutBuf(lr.buf)
		lr.buf = nil
	}
}

// scrub copies raw, replacing bytes outside [32,126] with spaces.
func scrub(raw []byte) string {
	out := make([]byte, len(raw))
	for i, b := range raw {
		if b < 32 || b > 126 {
			b = ' '
		}
		out[i] = b
	}
	return string(out)
}
