// Package shm implements spec.md's C9: SysV-style keyed shared-memory
// segments, attach/detach across cages, and semaphore-offset
// propagation to newly attaching cages.
package shm

import (
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/procsync"
)

const (
	ShmMin = 1
	ShmMax = 32 * 1024 * 1024

	IpcCreat = 1 << iota
	IpcExcl
)

const (
	IpcRmid = iota
	IpcStat
)

// Segment is spec.md's ShmSegment: key, size, a host-backed anonymous
// mapping, attach bookkeeping, and remembered semaphore offsets.
type Segment struct {
	mu sync.Mutex

	ID       int
	Key      int64
	Size     int
	Mapping  []byte
	Rmid     bool
	Attached map[int64]int32 // cage id -> attach count
	SemOffs  map[uintptr]*procsync.Semaphore
}

func (s *Segment) Nattch() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total int32
	for _, c := range s.Attached {
		total += c
	}
	return total
}

// Engine is the process-wide shm metadata table.
type Engine struct {
	mu       sync.Mutex
	byKey    map[int64]*Segment
	byID     map[int]*Segment
	nextID   int
	dedup    singleflight.Group
}

func NewEngine() *Engine {
	return &Engine{
		byKey: make(map[int64]*Segment),
		byID:  make(map[int]*Segment),
		nextID: 1,
	}
}

// Get resolves key (shmget dedup: concurrent callers racing on the
// same key converge on one Segment via singleflight, matching
// spec.md's "if the key is known, return its id").
func (e *Engine) Get(key int64, size int, flags int) (*Segment, errno.Errno) {
	v, err, _ := e.dedup.Do(keyToken(key), func() (interface{}, error) {
		return e.getLocked(key, size, flags)
	})
	if err != nil {
		return nil, err.(errno.Errno)
	}
	return v.(*Segment), 0
}

func keyToken(key int64) string {
	return "shmget:" + strconv.FormatInt(key, 10)
}

func (e *Engine) getLocked(key int64, size int, flags int) (*Segment, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if seg, ok := e.byKey[key]; ok {
		if flags&IpcCreat != 0 && flags&IpcExcl != 0 {
			return nil, errno.EEXIST
		}
		return seg, nil
	}
	if flags&IpcCreat == 0 {
		return nil, errno.ENOENT
	}
	if size < ShmMin || size > ShmMax {
		return nil, errno.EINVAL
	}
	mapping, err := hostshim.MapAnonymous(size, true)
	if err != nil {
		return nil, errno.FromHost(err)
	}
	seg := &Segment{
		ID:       e.nextID,
		Key:      key,
		Size:     size,
		Mapping:  mapping,
		Attached: make(map[int64]int32),
		SemOffs:  make(map[uintptr]*procsync.Semaphore),
	}
	e.nextID++
	e.byKey[key] = seg
	e.byID[seg.ID] = seg
	return seg, nil
}

func (e *Engine) ByID(id int) (*Segment, errno.Errno) {
	e.mu.Lock()
	defer e.mu.Unlock()
	seg, ok := e.byID[id]
	if !ok {
		return nil, errno.EINVAL
	}
	return seg, 0
}

// Attach increments seg's attach count for cageID and returns the
// mapping slice (shmat).
func (e *Engine) Attach(seg *Segment, cageID int64) []byte {
	seg.mu.Lock()
	defer seg.mu.Unlock()
	seg.Attached[cageID]++
	return seg.Mapping
}

// CloneAttach mirrors fork()'s shm reverse-mapping copy: childID's
// attach count for seg is set to parentID's current count (spec.md
// §4.5: "attached_cages[child] set to the parent's count").
func (e *Engine) CloneAttach(seg *Segment, parentID, childID int64) {
	seg.mu.Lock()
	defer seg.mu.Unlock()
	seg.Attached[childID] = seg.Attached[parentID]
}

// Detach decrements the attach count and, if seg is marked for removal
// and now unreferenced, releases its mapping and deletes it from the
// engine (shmdt's "delete the segment if rmid && nattch==0").
func (e *Engine) Detach(seg *Segment, cageID int64) {
	seg.mu.Lock()
	seg.Attached[cageID]--
	if seg.Attached[cageID] <= 0 {
		delete(seg.Attached, cageID)
	}
	remove := seg.Rmid && len(seg.Attached) == 0
	mapping := seg.Mapping
	seg.mu.Unlock()

	if remove {
		hostshim.Unmap(mapping)
		e.mu.Lock()
		delete(e.byKey, seg.Key)
		delete(e.byID, seg.ID)
		e.mu.Unlock()
	}
}

// MarkRemove implements IPC_RMID: mark seg for deletion, deleting
// immediately if already unattached.
func (e *Engine) MarkRemove(seg *Segment) {
	seg.mu.Lock()
	seg.Rmid = true
	empty := len(seg.Attached) == 0
	mapping := seg.Mapping
	seg.mu.Unlock()
	if empty {
		hostshim.Unmap(mapping)
		e.mu.Lock()
		delete(e.byKey, seg.Key)
		delete(e.byID, seg.ID)
		e.mu.Unlock()
	}
}

// AddSemOffset returns the canonical semaphore for offset within seg,
// creating it on first reference. The same object is returned to every
// caller so every cage attached to seg ends up sharing one semaphore
// per offset (spec.md §4.8: "the segment remembers the set of
// offsets").
func (seg *Segment) AddSemOffset(offset uintptr) *procsync.Semaphore {
	seg.mu.Lock()
	defer seg.mu.Unlock()
	sem, ok := seg.SemOffs[offset]
	if !ok {
		sem = procsync.NewSemaphore(0)
		seg.SemOffs[offset] = sem
	}
	return sem
}

// Offsets returns a snapshot of seg's offset -> semaphore map, for
// materializing every remembered semaphore into a newly attaching
// cage (Shmat).
func (seg *Segment) Offsets() map[uintptr]*procsync.Semaphore {
	seg.mu.Lock()
	defer seg.mu.Unlock()
	out := make(map[uintptr]*procsync.Semaphore, len(seg.SemOffs))
	for o, sem := range seg.SemOffs {
		out[o] = sem
	}
	return out
}
