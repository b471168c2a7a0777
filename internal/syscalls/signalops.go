package syscalls

import (
	"time"

	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/procsync"
)

// Sigaction implements sigaction().
func (s *Syscalls) Sigaction(c *cage.Cage, sig int, h procsync.Handler) errno.Errno {
	return c.Signals.Sigaction(sig, h)
}

// Sigprocmask implements sigprocmask(how, set, oldset); redeliverable
// pending signals are dispatched to their handlers inline, per
// spec.md §4.9.
func (s *Syscalls) Sigprocmask(c *cage.Cage, tid int64, how int, set procsync.SigMask, hasSet bool) procsync.SigMask {
	old, redeliver := c.Signals.Sigprocmask(tid, how, set, hasSet)
	for _, sig := range redeliver {
		if h, ok := c.Signals.Handler(sig); ok && !h.Ignore && h.Handle != nil {
			h.Handle(sig)
		}
	}
	return old
}

// Kill implements kill(cage_id, sig): targets the destination cage's
// main thread.
func (s *Syscalls) Kill(cageID int64, sig int) errno.Errno {
	target, e := s.MV.Cages.Get(cageID)
	if e != 0 {
		return e
	}
	if target.Signals.Raise(target.MainThreadID, sig) {
		if h, ok := target.Signals.Handler(sig); ok && !h.Ignore && h.Handle != nil {
			h.Handle(sig)
		}
	}
	return 0
}

// ItimerSpec mirrors setitimer()'s struct itimerval, collapsed to the
// two durations lind-go's IntervalTimer needs.
type ItimerSpec struct {
	Interval time.Duration
	Value    time.Duration
}

// Setitimer implements setitimer(ITIMER_REAL, new, old): arms a fresh
// interval timer that raises SIGALRM, replacing (and stopping) any
// previous one on this cage.
func (s *Syscalls) Setitimer(c *cage.Cage, spec ItimerSpec) {
	c.Lock()
	if old, ok := c.Timer.(*hostshim.IntervalTimer); ok && old != nil {
		old.Stop()
	}
	var timer *hostshim.IntervalTimer
	if spec.Value > 0 {
		timer = hostshim.NewIntervalTimer(spec.Value, spec.Interval, func() {
			s.Kill(c.ID, procsync.SIGALRM)
		})
	}
	c.Timer = timer
	c.Unlock()
}

// Mutex/CondVar/Semaphore primitives (C10's ordered slot tables).
func (s *Syscalls) MutexCreate(c *cage.Cage) int {
	return c.Mutexes.Create(&procsync.Mutex{})
}

func (s *Syscalls) MutexDestroy(c *cage.Cage, idx int) errno.Errno {
	return c.Mutexes.Destroy(idx)
}

func (s *Syscalls) MutexLock(c *cage.Cage, idx int, trylock bool) errno.Errno {
	m, e := c.Mutexes.Get(idx)
	if e != 0 {
		return e
	}
	if trylock {
		if !m.TryLock() {
			return errno.EBUSY
		}
		return 0
	}
	m.Lock()
	return 0
}

func (s *Syscalls) MutexUnlock(c *cage.Cage, idx int) errno.Errno {
	m, e := c.Mutexes.Get(idx)
	if e != 0 {
		return e
	}
	m.Unlock()
	return 0
}

func (s *Syscalls) CondCreate(c *cage.Cage) int {
	return c.Conds.Create(procsync.NewCondVar())
}

func (s *Syscalls) CondDestroy(c *cage.Cage, idx int) errno.Errno {
	return c.Conds.Destroy(idx)
}

func (s *Syscalls) CondWait(c *cage.Cage, idx int, timeout time.Duration) errno.Errno {
	cv, e := c.Conds.Get(idx)
	if e != 0 {
		return e
	}
	cv.Lock()
	defer cv.Unlock()
	return cv.TimedWait(timeout, c.Cancel)
}

func (s *Syscalls) CondSignal(c *cage.Cage, idx int, broadcast bool) errno.Errno {
	cv, e := c.Conds.Get(idx)
	if e != 0 {
		return e
	}
	if broadcast {
		cv.Broadcast()
	} else {
		cv.Signal()
	}
	return 0
}

func (s *Syscalls) SemWait(c *cage.Cage, vaddr uintptr, nonblocking bool) errno.Errno {
	return c.Semaphore(vaddr).Wait(nonblocking)
}

func (s *Syscalls) SemPost(c *cage.Cage, vaddr uintptr) {
	c.Semaphore(vaddr).Post()
}

// SemCreateAt creates a semaphore at vaddr. If vaddr falls within one
// of c's currently attached shm mappings, the offset is remembered on
// the segment (so future attachers materialize it too, per Shmat) and
// every cage presently attached to that segment gets the same
// semaphore materialized at the matching address in its own space
// (spec.md §4.8).
func (s *Syscalls) SemCreateAt(c *cage.Cage, vaddr uintptr) {
	var shared *procsync.Semaphore
	c.EachShmMapping(func(m cage.ShmMapping) {
		if vaddr < m.Vaddr {
			return
		}
		seg, e := s.MV.Shm.ByID(m.ShmID)
		if e != 0 || vaddr >= m.Vaddr+uintptr(seg.Size) {
			return
		}
		offset := vaddr - m.Vaddr
		sem := seg.AddSemOffset(offset)
		shared = sem
		c.SetSemaphore(vaddr, sem)
		s.MV.Cages.Each(func(other *cage.Cage) {
			if other.ID == c.ID {
				return
			}
			other.EachShmMapping(func(om cage.ShmMapping) {
				if om.ShmID == m.ShmID {
					other.SetSemaphore(om.Vaddr+offset, sem)
				}
			})
		})
	})
	if shared == nil {
		c.Semaphore(vaddr)
	}
}
