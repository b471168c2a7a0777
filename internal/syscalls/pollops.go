package syscalls

import (
	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/pipe"
	"github.com/lind-project/lind-go/internal/socket"
)

// poll event bits, narrowed to the subset spec.md §4.7 actually
// distinguishes.
const (
	PollIn  = 0x001
	PollOut = 0x004
	PollErr = 0x008
	PollHup = 0x010
	PollNval = 0x020
)

// checkReady computes the (readable, writable) readiness of fdNum
// against the single shared predicate spec.md §4.7 requires select(),
// poll() and epoll_wait() to all route through: regular/char/stream
// fds are always ready; pipe fds consult the pipe's own byte-count
// predicates; socket fds dispatch on domain.
func (s *Syscalls) checkReady(c *cage.Cage, fdNum int) (readable, writable bool, e errno.Errno) {
	d, err := c.Files.Get(fdNum)
	if err != 0 {
		return false, false, err
	}
	switch d.Kind {
	case fd.KindFile, fd.KindDir, fd.KindStream:
		return true, true, 0
	case fd.KindPipe:
		p, ok := d.Pipe.Pipe.(*pipe.Pipe)
		if !ok {
			return false, false, errno.EBADF
		}
		if d.Pipe.WriteEnd {
			return false, p.CheckSelectWrite(), 0
		}
		return p.CheckSelectRead(), false, 0
	case fd.KindSocket:
		h, ok := d.Socket.(*socket.Handle)
		if !ok {
			return false, false, errno.ENOTSOCK
		}
		if h.Domain == socket.AFUnix && h.State == socket.Listening && h.LocalAddr != nil {
			return s.MV.Net.HasPending(h.LocalAddr.Path), false, 0
		}
		return h.CheckReadable(), h.CheckWritable(), 0
	default:
		return false, false, errno.EBADF
	}
}

// Select implements select(nfds, readfds, writefds, exceptfds): given
// the candidate fd sets, returns the subsets that are currently ready.
// exceptfds is always returned empty — lind-go has no out-of-band
// readiness condition to report.
func (s *Syscalls) Select(c *cage.Cage, readfds, writefds []int) (readyRead, readyWrite []int, e errno.Errno) {
	for _, fdNum := range readfds {
		r, _, err := s.checkReady(c, fdNum)
		if err != 0 {
			return nil, nil, err
		}
		if r {
			readyRead = append(readyRead, fdNum)
		}
	}
	for _, fdNum := range writefds {
		_, w, err := s.checkReady(c, fdNum)
		if err != 0 {
			return nil, nil, err
		}
		if w {
			readyWrite = append(readyWrite, fdNum)
		}
	}
	return readyRead, readyWrite, 0
}

// PollFD mirrors struct pollfd.
type PollFD struct {
	FD      int
	Events  int16
	Revents int16
}

// Poll implements poll(fds, nfds) atop the same readiness checker as
// Select, one pass per fd. It takes no timeout and does not block or
// loop: it always performs exactly one non-blocking pass and fills
// Revents, and the dispatcher returns that single pass's result.
func (s *Syscalls) Poll(c *cage.Cage, fds []PollFD) (int, errno.Errno) {
	ready := 0
	for i := range fds {
		r, w, err := s.checkReady(c, fds[i].FD)
		if err != 0 {
			fds[i].Revents = PollNval
			continue
		}
		var rev int16
		if r && fds[i].Events&PollIn != 0 {
			rev |= PollIn
		}
		if w && fds[i].Events&PollOut != 0 {
			rev |= PollOut
		}
		fds[i].Revents = rev
		if rev != 0 {
			ready++
		}
	}
	return ready, 0
}

// EpollCreate implements epoll_create(): allocates a fresh KindEpoll
// descriptor.
func (s *Syscalls) EpollCreate(c *cage.Cage) (int, errno.Errno) {
	d := &fd.Descriptor{Kind: fd.KindEpoll, AdvLock: &fd.AdvLock{}, Epoll: &fd.EpollBody{Registered: make(map[int32]fd.EpollRegistration)}}
	res, e := c.Files.GetNextFD(fd.STARTINGFD)
	if e != 0 {
		return -1, e
	}
	res.Fill(d)
	return res.FD(), 0
}

const (
	EpollCtlAdd = 1
	EpollCtlDel = 2
	EpollCtlMod = 3
)

// EpollCtl implements epoll_ctl(epfd, op, fd, event).
func (s *Syscalls) EpollCtl(c *cage.Cage, epfd, op, targetFD int, events uint32, data uint64) errno.Errno {
	d, e := c.Files.Get(epfd)
	if e != 0 {
		return e
	}
	if d.Kind != fd.KindEpoll {
		return errno.EINVAL
	}
	d.Lock()
	defer d.Unlock()
	switch op {
	case EpollCtlAdd, EpollCtlMod:
		d.Epoll.Registered[int32(targetFD)] = fd.EpollRegistration{Events: events, Data: data}
	case EpollCtlDel:
		delete(d.Epoll.Registered, int32(targetFD))
	default:
		return errno.EINVAL
	}
	return 0
}

// EpollEvent mirrors struct epoll_event.
type EpollEvent struct {
	Events uint32
	Data   uint64
}

// EpollWait implements epoll_wait(epfd, events, maxevents, timeout):
// translates the registered set to Poll and maps revents back onto
// each registration's opaque Data.
func (s *Syscalls) EpollWait(c *cage.Cage, epfd int, maxEvents int) ([]EpollEvent, errno.Errno) {
	d, e := c.Files.Get(epfd)
	if e != 0 {
		return nil, e
	}
	if d.Kind != fd.KindEpoll {
		return nil, errno.EINVAL
	}
	d.RLock()
	regs := make(map[int32]fd.EpollRegistration, len(d.Epoll.Registered))
	for k, v := range d.Epoll.Registered {
		regs[k] = v
	}
	d.RUnlock()

	fds := make([]PollFD, 0, len(regs))
	order := make([]int32, 0, len(regs))
	for targetFD, reg := range regs {
		var ev int16
		if reg.Events&PollIn != 0 {
			ev |= PollIn
		}
		if reg.Events&PollOut != 0 {
			ev |= PollOut
		}
		fds = append(fds, PollFD{FD: int(targetFD), Events: ev})
		order = append(order, targetFD)
	}
	if _, err := s.Poll(c, fds); err != 0 {
		return nil, err
	}

	out := make([]EpollEvent, 0, len(fds))
	for i, pf := range fds {
		if pf.Revents == 0 {
			continue
		}
		out = append(out, EpollEvent{Events: uint32(pf.Revents), Data: regs[order[i]].Data})
		if len(out) == maxEvents {
			break
		}
	}
	return out, 0
}
