// Package microvisor wires the cage table, inode store, socket
// metadata, and shm engine together behind the single numeric-opcode
// dispatcher of spec.md §4.5/§6, and implements cage lifecycle
// (fork/exec/exit).
package microvisor

import (
	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/inode"
	"github.com/lind-project/lind-go/internal/lindconfig"
	"github.com/lind-project/lind-go/internal/metrics"
	"github.com/lind-project/lind-go/internal/pipe"
	"github.com/lind-project/lind-go/internal/procsync"
	"github.com/lind-project/lind-go/internal/shm"
	"github.com/lind-project/lind-go/internal/socket"
)

// Microvisor owns every process-wide table the dispatcher's methods
// consult.
type Microvisor struct {
	Config  lindconfig.Config
	Store   *inode.Store
	Cages   *cage.Table
	Net     *socket.NetMetadata
	Shm     *shm.Engine
	Metrics *metrics.Dispatcher
}

// New constructs the microvisor with an already-opened inode store and
// a root cage registered as cage id 1, cwd = the root inode.
func New(cfg lindconfig.Config, store *inode.Store) *Microvisor {
	m := &Microvisor{
		Config:  cfg,
		Store:   store,
		Cages:   cage.NewTable(),
		Net:     socket.NewNetMetadata(),
		Shm:     shm.NewEngine(),
		Metrics: metrics.NewDispatcher(),
	}
	root := cage.New(m.Cages.AllocID(), 0, inode.RootIno, cfg.MaxFD)
	m.Store.IncRef(inode.RootIno)
	m.Cages.Insert(root)
	return m
}

// Fork implements spec.md §4.5's fork(child_id): snapshot the current
// cage into a new cage record.
func (m *Microvisor) Fork(parentID int64) (*cage.Cage, errno.Errno) {
	parent, e := m.Cages.Get(parentID)
	if e != 0 {
		return nil, e
	}
	childID := m.Cages.AllocID()
	child := cage.New(childID, parentID, parent.Cwd, parent.Files.Size())

	parent.Files.Each(func(fdNum int, d *fd.Descriptor) {
		cd := d.Clone()
		switch d.Kind {
		case fd.KindFile, fd.KindDir:
			m.Store.IncRef(d.File.Inode)
		case fd.KindPipe:
			if p, ok := d.Pipe.Pipe.(*pipe.Pipe); ok {
				p.IncRef(d.Pipe.WriteEnd)
			}
		case fd.KindSocket:
			if h, ok := d.Socket.(*socket.Handle); ok {
				h.IncRef()
			}
		}
		child.Files.InstallAt(fdNum, cd)
	})

	m.Store.IncRef(child.Cwd)

	parent.Mutexes.Each(func(idx int, _ *procsync.Mutex) {
		child.Mutexes.CreateAt(idx, &procsync.Mutex{})
	})
	parent.Conds.Each(func(idx int, _ *procsync.CondVar) {
		child.Conds.CreateAt(idx, procsync.NewCondVar())
	})

	parent.RLock()
	for vaddr, sem := range parent.Sems {
		child.Sems[vaddr] = sem // shared reference, per spec.md
	}
	parent.RUnlock()

	parent.EachShmMapping(func(mapping cage.ShmMapping) {
		seg, serr := m.Shm.ByID(mapping.ShmID)
		if serr == 0 {
			m.Shm.CloneAttach(seg, parentID, childID)
		}
		child.AddShmMapping(mapping.Vaddr, mapping.ShmID)
	})

	child.Signals = parent.Signals.CloneForFork()

	m.Cages.Insert(child)
	return child, 0
}

// Exec implements spec.md §4.5's exec(child_id): remove the current
// cage, unmap shm, close CLOEXEC fds, and construct a fresh cage at
// the same id that inherits the rest.
func (m *Microvisor) Exec(cageID int64) (*cage.Cage, errno.Errno) {
	old, e := m.Cages.Get(cageID)
	if e != 0 {
		return nil, e
	}

	old.EachShmMapping(func(mapping cage.ShmMapping) {
		seg, serr := m.Shm.ByID(mapping.ShmID)
		if serr == 0 {
			m.Shm.Detach(seg, cageID)
		}
	})

	old.Files.Each(func(fdNum int, d *fd.Descriptor) {
		if d.Flags&fd.FlagCloexec != 0 {
			closed, _ := old.Files.Take(fdNum)
			if closed != nil {
				m.closeDescriptor(closed)
			}
		}
	})

	fresh := cage.New(cageID, old.ParentID, old.Cwd, old.Files.Size())
	old.Files.Each(func(fdNum int, d *fd.Descriptor) {
		fresh.Files.InstallAt(fdNum, d)
	})
	fresh.Timer = old.Timer
	oldMask, _ := old.Signals.Sigprocmask(0, procsync.SigBlock, 0, false)
	fresh.Signals.Sigprocmask(0, procsync.SigSetMask, oldMask, true)

	m.Cages.Insert(fresh)
	return fresh, 0
}

// Exit implements spec.md §4.5's exit(status): unmap shm, close every
// fd, decrement cwd's refcount, remove the cage, and signal the
// parent.
func (m *Microvisor) Exit(cageID int64, status int32) errno.Errno {
	c, e := m.Cages.Get(cageID)
	if e != 0 {
		return e
	}

	c.EachShmMapping(func(mapping cage.ShmMapping) {
		seg, serr := m.Shm.ByID(mapping.ShmID)
		if serr == 0 {
			m.Shm.Detach(seg, cageID)
		}
	})

	c.Files.Each(func(fdNum int, d *fd.Descriptor) {
		m.closeDescriptor(d)
	})

	m.Store.DecRef(c.Cwd)
	m.Store.MaybeCollect(c.Cwd)

	m.Cages.Remove(cageID)

	if c.ParentID != cageID {
		if parent, perr := m.Cages.Get(c.ParentID); perr == 0 {
			if parent.Signals.Raise(parent.MainThreadID, sigchld) {
				if h, ok := parent.Signals.Handler(sigchld); ok && h.Handle != nil {
					h.Handle(sigchld)
				}
			}
		}
	}
	return 0
}

const sigchld = 17 // same value as procsync.SIGCHLD

// closeDescriptor releases the shared state a descriptor references
// (inode refcount, pipe refcount, socket handle refcount), mirroring
// close()'s bookkeeping without removing it from a table (the caller
// already owns removal).
func (m *Microvisor) closeDescriptor(d *fd.Descriptor) {
	switch d.Kind {
	case fd.KindFile, fd.KindDir:
		if d.File != nil {
			m.Store.DecRef(d.File.Inode)
			m.Store.MaybeCollect(d.File.Inode)
			if m.Store.RefCount(d.File.Inode) <= 0 {
				m.Store.Blobs.Evict(d.File.Inode)
			}
		}
	case fd.KindPipe:
		if d.Pipe != nil {
			if p, ok := d.Pipe.Pipe.(*pipe.Pipe); ok {
				p.DecRef(d.Pipe.WriteEnd)
			}
		}
	case fd.KindSocket:
		if h, ok := d.Socket.(*socket.Handle); ok {
			h.DecRef()
		}
	}
}
