package fd

import (
	"sync"

	"github.com/lind-project/lind-go/internal/errno"
)

// STARTINGFD is spec.md's default scan start for get_next_fd — 0, 1, 2
// are pre-populated with the standard streams at cage creation.
const STARTINGFD = 0

type slot struct {
	mu sync.Mutex
	d  *Descriptor
}

// Table is a cage's fixed-size array of independently lockable
// descriptor slots (spec.md §4.3).
type Table struct {
	slots []slot
}

// NewTable allocates a table of the given size (spec.md's MAXFD,
// typically 1024) with stdin/stdout/stderr pre-populated.
func NewTable(maxfd int) *Table {
	t := &Table{slots: make([]slot, maxfd)}
	for i := 0; i < 3; i++ {
		t.slots[i].d = &Descriptor{Kind: KindStream, AdvLock: &AdvLock{}, Stream: &StreamBody{StreamID: i}}
	}
	return t
}

// Size is MAXFD.
func (t *Table) Size() int { return len(t.slots) }

// Reservation is a held write-lock on a free slot, returned by
// GetNextFD so allocation and insertion form a single critical
// section per spec.md §4.3.
type Reservation struct {
	t   *Table
	idx int
}

// FD is the reserved descriptor index.
func (r *Reservation) FD() int { return r.idx }

// Fill installs d into the reserved slot and releases the lock.
func (r *Reservation) Fill(d *Descriptor) {
	r.t.slots[r.idx].d = d
	r.t.slots[r.idx].mu.Unlock()
}

// Abort releases the lock without installing anything, leaving the
// slot free (used when a fd-producing syscall fails after reserving).
func (r *Reservation) Abort() {
	r.t.slots[r.idx].mu.Unlock()
}

// GetNextFD scans from start for the first free slot, trying to
// acquire each slot's lock as it goes (busy slots are skipped, not
// waited on, so a concurrent scan never deadlocks against another).
// The winning slot's lock is returned still held.
func (t *Table) GetNextFD(start int) (*Reservation, errno.Errno) {
	if start < 0 {
		start = STARTINGFD
	}
	for i := start; i < len(t.slots); i++ {
		s := &t.slots[i]
		if !s.mu.TryLock() {
			continue
		}
		if s.d == nil {
			return &Reservation{t: t, idx: i}, 0
		}
		s.mu.Unlock()
	}
	return nil, errno.ENFILE
}

// Reserve locks and reserves a specific fd (used by dup2 / exec's
// "install at this exact index"), evicting whatever was there. The
// evicted descriptor (if any) is returned so the caller can close it
// outside the lock.
func (t *Table) Reserve(idx int) (*Reservation, *Descriptor, errno.Errno) {
	if idx < 0 || idx >= len(t.slots) {
		return nil, nil, errno.EBADF
	}
	s := &t.slots[idx]
	s.mu.Lock()
	old := s.d
	s.d = nil
	return &Reservation{t: t, idx: idx}, old, 0
}

// Get returns the descriptor at fd without removing it, or EBADF.
func (t *Table) Get(fdNum int) (*Descriptor, errno.Errno) {
	if fdNum < 0 || fdNum >= len(t.slots) {
		return nil, errno.EBADF
	}
	s := &t.slots[fdNum]
	s.mu.Lock()
	d := s.d
	s.mu.Unlock()
	if d == nil {
		return nil, errno.EBADF
	}
	return d, 0
}

// Take removes and returns the descriptor at fd (close()'s first
// step), or EBADF if it was already empty.
func (t *Table) Take(fdNum int) (*Descriptor, errno.Errno) {
	if fdNum < 0 || fdNum >= len(t.slots) {
		return nil, errno.EBADF
	}
	s := &t.slots[fdNum]
	s.mu.Lock()
	d := s.d
	s.d = nil
	s.mu.Unlock()
	if d == nil {
		return nil, errno.EBADF
	}
	return d, 0
}

// Each calls fn for every occupied slot, fd order, used by fork() and
// exec()'s fd-table walks and by exit()'s close-everything pass.
func (t *Table) Each(fn func(fdNum int, d *Descriptor)) {
	for i := range t.slots {
		s := &t.slots[i]
		s.mu.Lock()
		d := s.d
		s.mu.Unlock()
		if d != nil {
			fn(i, d)
		}
	}
}

// InstallAt directly sets fd's slot (fork()'s clone loop, where every
// index is already known free in the fresh child table).
func (t *Table) InstallAt(fdNum int, d *Descriptor) {
	s := &t.slots[fdNum]
	s.mu.Lock()
	s.d = d
	s.mu.Unlock()
}
