// Package cage implements spec.md's §3 Cage record and the C6 cage
// table: a registry of isolated POSIX-like execution domains sharing
// this host process.
package cage

import (
	"sync"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/procsync"
)

// uninitializedIdentity is the sentinel exec() resets identity fields
// to (spec.md §4.5).
const uninitializedIdentity = ^uint32(0)

// Identity holds the lazily-materializing uid/gid/euid/egid fields
// spec.md's Cage carries.
type Identity struct {
	UID, GID, EUID, EGID uint32
}

func freshIdentity() Identity {
	return Identity{UID: uninitializedIdentity, GID: uninitializedIdentity, EUID: uninitializedIdentity, EGID: uninitializedIdentity}
}

// ShmMapping is one entry of a cage's shm reverse-mapping list.
type ShmMapping struct {
	Vaddr uintptr
	ShmID int
}

// Cage is spec.md §3's long-lived execution-domain record.
type Cage struct {
	mu sync.RWMutex

	ID       int64
	ParentID int64
	Cwd      uint64 // cwd inode number

	Files *fd.Table

	Identity Identity

	Mutexes *procsync.SlotTable[procsync.Mutex]
	Conds   *procsync.SlotTable[procsync.CondVar]
	Sems    map[uintptr]*procsync.Semaphore

	ShmMappings []ShmMapping

	Signals *procsync.SignalState
	Timer   interface{} // *hostshim.IntervalTimer, stored opaque to avoid import cycle with hostshim's fire callback closing over *Cage

	Cancel *procsync.CancelFlag

	MainThreadID int64
}

// New constructs a fresh cage (used by initialization and exec()'s
// "construct a fresh cage record" step).
func New(id, parentID int64, cwd uint64, maxfd int) *Cage {
	return &Cage{
		ID:           id,
		ParentID:     parentID,
		Cwd:          cwd,
		Files:        fd.NewTable(maxfd),
		Identity:     freshIdentity(),
		Mutexes:      &procsync.SlotTable[procsync.Mutex]{},
		Conds:        &procsync.SlotTable[procsync.CondVar]{},
		Sems:         make(map[uintptr]*procsync.Semaphore),
		Signals:      procsync.NewSignalState(),
		Cancel:       &procsync.CancelFlag{},
		MainThreadID: 0,
	}
}

func (c *Cage) RLock()   { c.mu.RLock() }
func (c *Cage) RUnlock() { c.mu.RUnlock() }
func (c *Cage) Lock()    { c.mu.Lock() }
func (c *Cage) Unlock()  { c.mu.Unlock() }

// Semaphore returns the semaphore at vaddr, creating it with initial
// value 0 on first reference (spec.md's "semaphore map keyed by a
// virtual address").
func (c *Cage) Semaphore(vaddr uintptr) *procsync.Semaphore {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.Sems[vaddr]
	if !ok {
		s = procsync.NewSemaphore(0)
		c.Sems[vaddr] = s
	}
	return s
}

// SetSemaphore installs an existing (shared) semaphore at vaddr,
// overwriting any lazily-created one already there — used to
// propagate a segment-backed semaphore to every attached cage.
func (c *Cage) SetSemaphore(vaddr uintptr, sem *procsync.Semaphore) {
	c.mu.Lock()
	c.Sems[vaddr] = sem
	c.mu.Unlock()
}

// AddShmMapping records a new (vaddr, shmid) attach.
func (c *Cage) AddShmMapping(vaddr uintptr, shmid int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ShmMappings = append(c.ShmMappings, ShmMapping{Vaddr: vaddr, ShmID: shmid})
}

// RemoveShmMapping drops the mapping at vaddr, returning its shmid.
func (c *Cage) RemoveShmMapping(vaddr uintptr) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, m := range c.ShmMappings {
		if m.Vaddr == vaddr {
			c.ShmMappings = append(c.ShmMappings[:i], c.ShmMappings[i+1:]...)
			return m.ShmID, true
		}
	}
	return 0, false
}

// EachShmMapping snapshots and iterates the reverse-mapping list (used
// by exit() to unmap every segment).
func (c *Cage) EachShmMapping(fn func(ShmMapping)) {
	c.mu.Lock()
	snap := make([]ShmMapping, len(c.ShmMappings))
	copy(snap, c.ShmMappings)
	c.mu.Unlock()
	for _, m := range snap {
		fn(m)
	}
}

// Table is the C6 cage registry: an RWMutex-guarded map from cage id
// to *Cage, consulted by the dispatcher on every call.
type Table struct {
	mu     sync.RWMutex
	cages  map[int64]*Cage
	nextID int64
}

// NewTable creates an empty cage table. The caller inserts the initial
// root cage via Insert.
func NewTable() *Table {
	return &Table{cages: make(map[int64]*Cage), nextID: 1}
}

// AllocID reserves the next cage id (fork()'s child_id source).
func (t *Table) AllocID() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	id := t.nextID
	t.nextID++
	return id
}

// Insert registers c under c.ID.
func (t *Table) Insert(c *Cage) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cages[c.ID] = c
}

// Get resolves a cage id, or ESRCH if it no longer exists.
func (t *Table) Get(id int64) (*Cage, errno.Errno) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	c, ok := t.cages[id]
	if !ok {
		return nil, errno.ESRCH
	}
	return c, 0
}

// Remove deletes id from the table (exit()'s "remove cage from the
// table" step).
func (t *Table) Remove(id int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.cages, id)
}

// Each snapshots and iterates every live cage (shm semaphore
// propagation's "every cage currently attached" walk).
func (t *Table) Each(fn func(*Cage)) {
	t.mu.RLock()
	snap := make([]*Cage, 0, len(t.cages))
	for _, c := range t.cages {
		snap = append(snap, c)
	}
	t.mu.RUnlock()
	for _, c := range snap {
		fn(c)
	}
}

// Len reports the number of live cages (diagnostics).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.cages)
}
