// Package fd implements spec.md's C5: a per-cage fixed-size table of
// independently lockable, polymorphic descriptor slots.
package fd

import "sync"

// Kind tags which descriptor variant a slot holds.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
	KindStream
	KindPipe
	KindSocket
	KindEpoll
)

// LockMode is the advisory lock state spec.md attaches to every
// descriptor (flock()/F_SETLK-shaped).
type LockMode uint8

const (
	LockNone LockMode = iota
	LockShared
	LockExclusive
)

// AdvLock is the per-fd advisory lock. Shared locks stack (count);
// exclusive excludes all others.
type AdvLock struct {
	mu      sync.Mutex
	mode    LockMode
	sharers int
}

// TryLock attempts to acquire mode, returning false if it would block
// (the caller decides whether that means EAGAIN or EWOULDBLOCK).
func (l *AdvLock) TryLock(mode LockMode) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch mode {
	case LockNone:
		if l.sharers > 0 {
			l.sharers--
			if l.sharers == 0 {
				l.mode = LockNone
			}
		} else {
			l.mode = LockNone
		}
		return true
	case LockShared:
		if l.mode == LockExclusive {
			return false
		}
		l.mode = LockShared
		l.sharers++
		return true
	case LockExclusive:
		if l.mode != LockNone {
			return false
		}
		l.mode = LockExclusive
		return true
	}
	return false
}

// Mode reports the current lock state (diagnostics).
func (l *AdvLock) Mode() LockMode {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.mode
}

// FileBody backs File and Dir descriptors (spec.md reuses File for
// Dir).
type FileBody struct {
	Position int64
	Inode    uint64
}

// StreamBody backs stdin(0)/stdout(1)/stderr(2).
type StreamBody struct {
	StreamID int
}

// PipeBody backs a pipe-fd, naming which end it is and the shared
// pipe reference (an interface{} to avoid importing package pipe from
// here — every caller that cares already imports both).
type PipeBody struct {
	Pipe      interface{} // *pipe.Pipe
	WriteEnd  bool
}

// EpollBody backs an epoll instance.
type EpollBody struct {
	Mode      int
	Registered map[int32]EpollRegistration
	Errno     int32
}

// EpollRegistration is one epoll_ctl(ADD/MOD) entry.
type EpollRegistration struct {
	Events uint32
	Data   uint64
}

// Flags bits lind-go tracks on every descriptor, independent of Kind.
const (
	FlagCloexec   = 1 << iota // O_CLOEXEC / FD_CLOEXEC
	FlagNonblock              // O_NONBLOCK
	FlagAppend                // O_APPEND
	FlagAsync                 // O_ASYNC / FIOASYNC
)

// Descriptor is the tagged, independently lockable fd-table slot of
// spec.md §3. Socket bodies are stored as interface{} (*socket.Handle
// wrapper, defined by package socket) to avoid a fd<->socket import
// cycle; package socket provides typed accessors.
type Descriptor struct {
	mu sync.RWMutex

	Kind    Kind
	Flags   int32
	AdvLock *AdvLock

	File   *FileBody
	Stream *StreamBody
	Pipe   *PipeBody
	Epoll  *EpollBody
	Socket interface{} // *socket.Handle-bearing wrapper

	// Domain/RawFD mirror spec.md's Socket variant fields for fast
	// access without a type assertion into the socket package.
	Domain int
	RawFD  int
}

// Lock/Unlock/RLock/RUnlock expose the slot's many-reader/one-writer
// lock directly; most C7/C8 methods take the read lock to inspect and
// briefly upgrade via Lock when mutating position/flags.
func (d *Descriptor) Lock()    { d.mu.Lock() }
func (d *Descriptor) Unlock()  { d.mu.Unlock() }
func (d *Descriptor) RLock()   { d.mu.RLock() }
func (d *Descriptor) RUnlock() { d.mu.RUnlock() }

// Clone copies the descriptor's tag and flags for dup()/fork(); the
// caller is responsible for refcounting the underlying shared state
// (inode, pipe, socket handle) and for stripping CLOEXEC where
// spec.md requires it (dup; never on fork).
func (d *Descriptor) Clone() *Descriptor {
	d.mu.RLock()
	defer d.mu.RUnlock()
	c := &Descriptor{
		Kind:    d.Kind,
		Flags:   d.Flags,
		AdvLock: &AdvLock{},
		Domain:  d.Domain,
		RawFD:   d.RawFD,
	}
	if d.File != nil {
		f := *d.File
		c.File = &f
	}
	if d.Stream != nil {
		s := *d.Stream
		c.Stream = &s
	}
	if d.Pipe != nil {
		p := *d.Pipe
		c.Pipe = &p
	}
	if d.Epoll != nil {
		e := *d.Epoll
		regs := make(map[int32]EpollRegistration, len(d.Epoll.Registered))
		for k, v := range d.Epoll.Registered {
			regs[k] = v
		}
		e.Registered = regs
		c.Epoll = &e
	}
	c.Socket = d.Socket
	return c
}
