package proc

import "sync"

// pipeBufSize is the ring's capacity: one kernel page per spec.md §4.9,
// modeled as a Go byte array instead of a physical frame.
const pipeBufSize = 4096

// Pipe is a fixed-size byte ring buffer backing pipe(2) (spec.md §4.9).
// pipe_write/pipe_read never block: each transfers
// min(requested, available) bytes and returns immediately.
type Pipe struct {
	mu   sync.Mutex
	buf  [pipeBufSize]byte
	r, w uint32
	n    uint32
}

func newPipe() *Pipe { return &Pipe{} }

// Write copies min(len(p), free space) bytes into the ring.
func (pi *Pipe) Write(p []byte) int {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	space := uint32(pipeBufSize) - pi.n
	n := uint32(len(p))
	if n > space {
		n = space
	}
	for i := uint32(0); i < n; i++ {
		pi.buf[pi.w] = p[i]
		pi.w = (pi.w + 1) % pipeBufSize
	}
	pi.n += n
	return int(n)
}

// Read copies min(len(p), bytes buffered) bytes out of the ring.
func (pi *Pipe) Read(p []byte) int {
	pi.mu.Lock()
	defer pi.mu.Unlock()

	n := uint32(len(p))
	if n > pi.n {
		n = pi.n
	}
	for i := uint32(0); i < n; i++ {
		p[i] = pi.buf[pi.r]
		pi.r = (pi.r + 1) % pipeBufSize
	}
	pi.n -= n
	return int(n)
}
