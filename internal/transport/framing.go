// internal/transport/framing.go
package transport

import (
	"bytes"
	"context"
	"strings"
	"time"
)

// maxLineLength caps a pending line; a peer that never sends '\n' cannot
// grow the buffer without bound
const maxLineLength = 64 * 1024

// lineBuffer accumulates partial reads and splits them on '\n'
type lineBuffer struct {
	buf []byte
}

func (b *lineBuffer) write(p []byte) {
	b.buf = append(b.buf, p...)
	if len(b.buf) > maxLineLength && bytes.IndexByte(b.buf, '\n') < 0 {
		b.buf = b.buf[:0]
	}
}

// next pops the first complete, non-blank line
func (b *lineBuffer) next() (string, bool) {
	for {
		i := bytes.IndexByte(b.buf, '\n')
		if i < 0 {
			return "", false
		}
		line := strings.TrimSpace(string(b.buf[:i]))
		b.buf = append(b.buf[:0], b.buf[i+1:]...)
		if line != "" {
			return line, true
		}
	}
}

func (b *lineBuffer) buffered() int {
	return len(b.buf)
}

func (b *lineBuffer) reset() {
	b.buf = b.buf[:0]
}

// readFunc performs one bounded read. A read that times out without data
// returns (0, nil).
type readFunc func(p []byte) (int, error)

// readLine polls read until lines holds a full line, timeout elapses or ctx
// is done. Each read is bounded by the transport poll interval, which is the
// cancellation point.
func readLine(ctx context.Context, lines *lineBuffer, scratch []byte, timeout time.Duration, read readFunc) (string, error) {
	if line, ok := lines.next(); ok {
		return line, nil
	}

	deadline := time.Now().Add(timeout)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if !time.Now().Before(deadline) {
			return "", errRecvTimeout
		}

		n, err := read(scratch)
		if n > 0 {
			lines.write(scratch[:n])
			if line, ok := lines.next(); ok {
				return line, nil
			}
		}
		if err != nil {
			return "", err
		}
	}
}
