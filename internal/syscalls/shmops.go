package syscalls

import (
	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/shm"
)

// Shmget implements shmget(key, size, flags).
func (s *Syscalls) Shmget(key int64, size int, flags int) (int, errno.Errno) {
	seg, e := s.MV.Shm.Get(key, size, flags)
	if e != 0 {
		return -1, e
	}
	return seg.ID, 0
}

// Shmat implements shmat(id, addr, flags): maps the segment, records
// the reverse mapping, and materializes any semaphores propagated
// from the segment's remembered offsets.
func (s *Syscalls) Shmat(c *cage.Cage, id int, vaddr uintptr, writable bool) ([]byte, errno.Errno) {
	seg, e := s.MV.Shm.ByID(id)
	if e != 0 {
		return nil, e
	}
	mapping := s.MV.Shm.Attach(seg, c.ID)
	c.AddShmMapping(vaddr, id)
	for off, sem := range seg.Offsets() {
		c.SetSemaphore(vaddr+off, sem)
	}
	return mapping, 0
}

// Shmdt implements shmdt(addr): the inverse of Shmat, overmapping the
// address range with anonymous PROT_NONE memory via hostshim.
func (s *Syscalls) Shmdt(c *cage.Cage, vaddr uintptr) errno.Errno {
	id, ok := c.RemoveShmMapping(vaddr)
	if !ok {
		return errno.EINVAL
	}
	seg, e := s.MV.Shm.ByID(id)
	if e != 0 {
		return e
	}
	s.MV.Shm.Detach(seg, c.ID)
	_ = hostshim.RetainReservation(seg.Mapping)
	return 0
}

// Shmctl implements shmctl(id, cmd, buf): IPC_STAT / IPC_RMID.
func (s *Syscalls) Shmctl(id int, cmd int) (*shm.Segment, errno.Errno) {
	seg, e := s.MV.Shm.ByID(id)
	if e != 0 {
		return nil, e
	}
	switch cmd {
	case shm.IpcStat:
		return seg, 0
	case shm.IpcRmid:
		s.MV.Shm.MarkRemove(seg)
		return nil, 0
	default:
		return nil, errno.EINVAL
	}
}
