// Package pipe implements spec.md's C4: a bounded ring buffer with
// blocking/non-blocking read/write/writev, EOF, and reference
// counting. No ring-buffer library exists anywhere in the retrieval
// pack (rclone's closest analogs, lib/pool and fs/asyncreader, manage
// pooled byte slices and async read-ahead, not a blocking bounded
// queue), so this component is hand-written on stdlib sync.Cond —
// see DESIGN.md.
package pipe

import (
	"sync"

	"github.com/lind-project/lind-go/internal/errno"
)

// Pipe is a fixed-capacity ring buffer of bytes shared by one or more
// readers and writers, used directly by the pipe()/pipe2() syscalls
// and as the transport underneath connected AF_UNIX sockets.
type Pipe struct {
	mu   sync.Mutex
	cond *sync.Cond

	buf        []byte
	start, len int // start index and occupied length within buf

	readers, writers int
	eof              bool
}

// New creates a pipe with the given ring-buffer capacity and one
// reader and one writer reference already held, matching pipe()'s
// immediate return of both ends open.
func New(capacity int) *Pipe {
	if capacity <= 0 {
		capacity = 65536
	}
	p := &Pipe{buf: make([]byte, capacity), readers: 1, writers: 1}
	p.cond = sync.NewCond(&p.mu)
	return p
}

func (p *Pipe) free() int { return len(p.buf) - p.len }

// IncRef bumps the read or write end's reference count, used by
// dup()/fork() to share one pipe across descriptors/cages.
func (p *Pipe) IncRef(write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if write {
		p.writers++
	} else {
		p.readers++
	}
}

// DecRef releases one reference to the read or write end. When the
// last writer goes away, EOF is set and blocked readers are woken;
// when the last reader goes away, blocked writers are woken to observe
// EPIPE.
func (p *Pipe) DecRef(write bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if write {
		p.writers--
		if p.writers <= 0 {
			p.eof = true
		}
	} else {
		p.readers--
	}
	p.cond.Broadcast()
}

// Readers/Writers report the live reference counts (diagnostics, fork
// bookkeeping).
func (p *Pipe) Readers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.readers
}

func (p *Pipe) Writers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writers
}

func (p *Pipe) push(b []byte) int {
	n := 0
	for n < len(b) && p.len < len(p.buf) {
		idx := (p.start + p.len) % len(p.buf)
		p.buf[idx] = b[n]
		p.len++
		n++
	}
	return n
}

func (p *Pipe) pop(b []byte) int {
	n := 0
	for n < len(b) && p.len > 0 {
		b[n] = p.buf[p.start]
		p.start = (p.start + 1) % len(p.buf)
		p.len--
		n++
	}
	return n
}

// Write writes up to n bytes from buf. Blocking writers sleep while
// the buffer is full until space frees up or the reader count drops to
// zero (EPIPE, and the caller must raise SIGPIPE per spec.md §4.4).
// Non-blocking callers see EAGAIN instead of sleeping.
func (p *Pipe) Write(buf []byte, nonblocking bool) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readers <= 0 {
		return 0, errno.EPIPE
	}
	written := 0
	for written < len(buf) {
		for p.free() == 0 && p.readers > 0 {
			if nonblocking {
				if written > 0 {
					return written, 0
				}
				return 0, errno.EAGAIN
			}
			p.cond.Wait()
		}
		if p.readers <= 0 {
			if written > 0 {
				return written, 0
			}
			return 0, errno.EPIPE
		}
		n := p.push(buf[written:])
		written += n
		if n > 0 {
			p.cond.Broadcast()
		}
	}
	return written, 0
}

// Writev writes iovecs in order through Write. It stops after the
// first iovec that is not written in full (that iovec may have been
// written partially) and returns the bytes written so far; an error is
// returned only when nothing at all was written.
func (p *Pipe) Writev(iovecs [][]byte, nonblocking bool) (int, errno.Errno) {
	total := 0
	for _, iov := range iovecs {
		n, e := p.Write(iov, nonblocking)
		total += n
		if e != 0 {
			if total > 0 {
				return total, 0
			}
			return total, e
		}
		if n < len(iov) {
			break
		}
	}
	return total, 0
}

// Read reads up to len(buf) bytes. At EOF with nothing buffered it
// returns (0, 0). Otherwise it blocks (or returns EAGAIN) while empty.
func (p *Pipe) Read(buf []byte, nonblocking bool) (int, errno.Errno) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.len == 0 {
		if p.eof {
			return 0, 0
		}
		if nonblocking {
			return 0, errno.EAGAIN
		}
		p.cond.Wait()
	}
	n := p.pop(buf)
	if n > 0 {
		p.cond.Broadcast()
	}
	return n, 0
}

// CheckSelectRead reports whether a reader would not block right now:
// data buffered, EOF reached, or no writers remain.
func (p *Pipe) CheckSelectRead() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.len > 0 || p.eof || p.writers <= 0
}

// CheckSelectWrite reports whether a writer would not block right
// now: free space, or no readers remain (in which case the write
// would fail immediately with EPIPE, which select still reports as
// "ready").
func (p *Pipe) CheckSelectWrite() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.free() > 0 || p.readers <= 0
}

// Buffered reports the number of bytes currently queued (diagnostics,
// and the "bytes still buffered on EOF" term of spec.md §8's pipe
// conservation property).
func (p *Pipe) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.len
}
