package tool

import "sync"

// maxCapture bounds what is kept of each stream. npm and composer can print
// megabytes; only the end is useful when a step fails.
const maxCapture = 64 * 1024

// tailBuffer is an io.Writer that keeps the last max bytes written to it.
// Writes never block and never fail, so the child can always drain its pipe.
type tailBuffer struct {
	mu        sync.Mutex
	buf       []byte
	max       int
	truncated bool
}

func newTailBuffer(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	if n >= b.max {
		b.buf = append(b.buf[:0], p[n-b.max:]...)
		b.truncated = true
		return n, nil
	}

	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.max; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
		b.truncated = true
	}
	return n, nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.truncated {
		return "...[truncated]\n" + string(b.buf)
	}
	return string(b.buf)
}
