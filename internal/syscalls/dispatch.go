package syscalls

import (
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/socket"
)

// Call numbers from spec.md §6. Exact values are part of the external
// contract and must match.
const (
	CallAccess      = 2
	CallUnlink      = 4
	CallLink        = 5
	CallChdir       = 6
	CallMkdir       = 7
	CallRmdir       = 8
	CallStat        = 9
	CallOpen        = 10
	CallClose       = 11
	CallRead        = 12
	CallWrite       = 13
	CallLseek       = 14
	CallIoctl       = 15
	CallFstat       = 17
	CallFstatfs     = 19
	CallMmap        = 21
	CallMunmap      = 22
	CallGetdents    = 23
	CallDup         = 24
	CallDup2        = 25
	CallStatfs      = 26
	CallFcntl       = 28
	CallGetppid     = 29
	CallExit        = 30
	CallGetpid      = 31
	CallSocket      = 32
	CallBind        = 33
	CallSend        = 34
	CallSendto      = 35
	CallRecv        = 36
	CallRecvfrom    = 37
	CallConnect     = 38
	CallListen      = 39
	CallAccept      = 40
	CallGetpeername = 41
	CallGetsockname = 42
	CallGetsockopt  = 43
	CallSetsockopt  = 44
	CallShutdown    = 45
	CallSelect      = 46
	CallGetifaddrs  = 47
	CallPoll        = 48
	CallSocketpair  = 49
	CallGetuid      = 50
	CallGeteuid     = 51
	CallGetgid      = 52
	CallGetegid     = 53
	CallFlock       = 54
	CallRename      = 55
	CallEpollCreate = 56
	CallEpollCtl    = 57
	CallEpollWait   = 58
	CallPipe        = 66
	CallPipe2       = 67
	CallFork        = 68
	CallExec        = 69
	CallGethostname = 125
	CallPread       = 126
	CallPwrite      = 127
)

// Request carries one dispatcher invocation's marshaled arguments.
// Embedders decode each call's raw argument slots per spec.md §6's
// type schema (integer, pointer, counted buffer, C-string, struct
// pointer) into these fields before calling Dispatch; Buf is both the
// input buffer for write-shaped calls and the caller-supplied
// destination for read-shaped calls.
type Request struct {
	CallNum  int
	Int1     int64
	Int2     int64
	Int3     int64
	Int4     int64
	Flags    int
	Mode     uint32
	Path     string
	Path2    string
	Buf      []byte
	Iovecs   [][]byte
	Addr     *socket.Addr
	PollFDs  []PollFD
	ReadFDs  []int
	WriteFDs []int
}

// Result carries one dispatcher invocation's outcome. Ret mirrors
// spec.md §7: negative magnitude-of-errno on failure, non-negative
// byte count/descriptor/id on success. Buf/Dirents/Stat/Events/
// ReadyRead/ReadyWrite carry any out-of-band payload the call produces
// (poll writes its revents into the Request's PollFDs).
type Result struct {
	Ret        int64
	Buf        []byte
	Dirents    []Dirent
	Stat       StatData
	Events     []EpollEvent
	ReadyRead  []int
	ReadyWrite []int
}

func errResult(e int64) Result { return Result{Ret: -e} }
func okResult(v int64) Result  { return Result{Ret: v} }

// Dispatch is spec.md §4.5's pure function (cage_id, call_num,
// arg1..arg6) -> result: it resolves the cage, matches call_num
// against the fixed numeric table, and invokes the corresponding
// Syscalls method. Unknown call numbers return -1.
func (s *Syscalls) Dispatch(cageID int64, req Request) Result {
	s.MV.Metrics.RecordCall(req.CallNum)
	s.MV.Metrics.SetInodeTableSize(s.MV.Store.Len())
	res := s.dispatch(cageID, req)
	if res.Ret == -int64(errno.ENFILE) || res.Ret == -int64(errno.EMFILE) {
		s.MV.Metrics.RecordENFILE()
	}
	return res
}

func (s *Syscalls) dispatch(cageID int64, req Request) Result {
	c, e := s.MV.Cages.Get(cageID)
	if e != 0 {
		return errResult(int64(e))
	}

	switch req.CallNum {
	case CallAccess:
		return errResult(int64(s.Access(c, req.Path)))
	case CallUnlink:
		return errResult(int64(s.Unlink(c, req.Path)))
	case CallLink:
		return errResult(int64(s.Link(c, req.Path, req.Path2)))
	case CallChdir:
		return errResult(int64(s.Chdir(c, req.Path)))
	case CallMkdir:
		return errResult(int64(s.Mkdir(c, req.Path, req.Mode)))
	case CallRmdir:
		return errResult(int64(s.Rmdir(c, req.Path)))
	case CallStat:
		st, e := s.Stat(c, req.Path)
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: 0, Stat: st}
	case CallOpen:
		fdNum, e := s.Open(c, req.Path, req.Flags, req.Mode)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(fdNum))
	case CallClose:
		return errResult(int64(s.Close(c, int(req.Int1))))
	case CallRead:
		n, e := s.Read(c, int(req.Int1), req.Buf, -1)
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: int64(n), Buf: req.Buf[:n]}
	case CallWrite:
		n, e := s.Write(c, int(req.Int1), req.Buf, -1)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(n))
	case CallPread:
		n, e := s.Read(c, int(req.Int1), req.Buf, req.Int2)
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: int64(n), Buf: req.Buf[:n]}
	case CallPwrite:
		n, e := s.Write(c, int(req.Int1), req.Buf, req.Int2)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(n))
	case CallLseek:
		off, e := s.Lseek(c, int(req.Int1), req.Int2, int(req.Int3))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(off)
	case CallIoctl:
		return errResult(int64(s.Ioctl(c, int(req.Int1), req.Int2, req.Int3)))
	case CallFstat:
		st, e := s.Fstat(c, int(req.Int1))
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: 0, Stat: st}
	case CallFstatfs:
		sf, e := s.Fstatfs(c, int(req.Int1))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(sf.Type)
	case CallStatfs:
		_ = s.Statfs()
		return okResult(0)
	case CallMmap:
		_, e := s.Mmap(c, int(req.Int1), req.Int2, int(req.Int3), req.Flags != 0)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(0)
	case CallMunmap:
		return errResult(int64(s.Munmap(req.Buf)))
	case CallGetdents:
		d, e := s.Getdents(c, int(req.Int1))
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: int64(len(d)), Dirents: d}
	case CallDup:
		nf, e := s.Dup(c, int(req.Int1))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(nf))
	case CallDup2:
		nf, e := s.Dup2(c, int(req.Int1), int(req.Int2))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(nf))
	case CallFcntl:
		v, e := s.Fcntl(c, int(req.Int1), int(req.Int2), int32(req.Int3))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(v))
	case CallFlock:
		return errResult(int64(s.Flock(c, int(req.Int1), int(req.Int2))))
	case CallRename:
		return errResult(int64(s.Rename(c, req.Path, req.Path2)))
	case CallGetppid:
		return okResult(c.ParentID)
	case CallGetpid:
		return okResult(c.ID)
	case CallGetuid, CallGeteuid:
		c.RLock()
		defer c.RUnlock()
		return okResult(int64(c.Identity.UID))
	case CallGetgid, CallGetegid:
		c.RLock()
		defer c.RUnlock()
		return okResult(int64(c.Identity.GID))
	case CallExit:
		return errResult(int64(s.MV.Exit(cageID, int32(req.Int1))))
	case CallFork:
		child, e := s.MV.Fork(cageID)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(child.ID)
	case CallExec:
		_, e := s.MV.Exec(cageID)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(0)
	case CallPipe, CallPipe2:
		r, w, e := s.Pipe(c, req.Flags != 0)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(r)<<32 | int64(uint32(w)))
	case CallSocket:
		fdNum, e := s.Socket(c, socket.Domain(req.Int1), socket.SockType(req.Int2))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(fdNum))
	case CallBind:
		return errResult(int64(s.Bind(c, int(req.Int1), req.Addr)))
	case CallConnect:
		return errResult(int64(s.Connect(c, int(req.Int1), req.Addr, req.Flags != 0)))
	case CallListen:
		return errResult(int64(s.Listen(c, int(req.Int1))))
	case CallAccept:
		fdNum, e := s.Accept(c, int(req.Int1), req.Flags != 0)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(fdNum))
	case CallSend, CallSendto:
		n, e := s.Send(c, int(req.Int1), req.Buf, req.Flags != 0)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(n))
	case CallRecv, CallRecvfrom:
		n, e := s.Recv(c, int(req.Int1), req.Buf, req.Int2 != 0, req.Flags != 0)
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: int64(n), Buf: req.Buf[:n]}
	case CallShutdown:
		return errResult(int64(s.Shutdown(c, int(req.Int1), int(req.Int2))))
	case CallSocketpair:
		a, b, e := s.SocketPair(c, socket.SockType(req.Int1))
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(a)<<32 | int64(uint32(b)))
	case CallGetpeername, CallGetsockname, CallGetsockopt, CallSetsockopt, CallGetifaddrs:
		return errResult(int64(errno.EOPNOTSUPP))
	case CallSelect:
		r, w, e := s.Select(c, req.ReadFDs, req.WriteFDs)
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: int64(len(r) + len(w)), ReadyRead: r, ReadyWrite: w}
	case CallPoll:
		n, e := s.Poll(c, req.PollFDs)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(n))
	case CallEpollCreate:
		fdNum, e := s.EpollCreate(c)
		if e != 0 {
			return errResult(int64(e))
		}
		return okResult(int64(fdNum))
	case CallEpollCtl:
		return errResult(int64(s.EpollCtl(c, int(req.Int1), int(req.Int2), int(req.Int3), uint32(req.Int4), 0)))
	case CallEpollWait:
		events, e := s.EpollWait(c, int(req.Int1), int(req.Int2))
		if e != 0 {
			return errResult(int64(e))
		}
		return Result{Ret: int64(len(events)), Events: events}
	case CallGethostname:
		n := Gethostname(req.Buf)
		return okResult(int64(n))
	default:
		return Result{Ret: -1}
	}
}
