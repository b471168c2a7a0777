// Package syscalls implements spec.md's C7: the open/close/read/write/
// seek/stat/link/unlink/chmod/mkdir/rmdir/rename/truncate/dup/fcntl/
// mmap/getdents/flock family, each method taking the calling cage and
// returning a POSIX-shaped (value, errno) pair per spec.md §7's "never
// raise a language exception across the syscall boundary" rule.
//
// Grounded on rclone's backend/local/local.go ("host fs call,
// translate errno, update in-memory metadata" as one idiom, here
// replayed against the in-memory inode tree instead of a real disk)
// and backend/kvfs/kvfs.go's key-value directory-tree shape.
package syscalls

import (
	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/inode"
	"github.com/lind-project/lind-go/internal/microvisor"
	"github.com/lind-project/lind-go/internal/path"
	"github.com/lind-project/lind-go/internal/pipe"
	"github.com/lind-project/lind-go/internal/procsync"
	"github.com/lind-project/lind-go/internal/socket"
)

// raiseSigpipe delivers SIGPIPE to the calling cage's main thread, the
// contract spec.md §4.4 attaches to a pipe write (or socket send) that
// fails EPIPE against a dead reader (spec.md §7's EPIPE taxonomy
// entry).
func raiseSigpipe(c *cage.Cage) {
	if c.Signals.Raise(c.MainThreadID, procsync.SIGPIPE) {
		if h, ok := c.Signals.Handler(procsync.SIGPIPE); ok && h.Handle != nil {
			h.Handle(procsync.SIGPIPE)
		}
	}
}

// open() flags, POSIX-numbered.
const (
	ORdonly   = 0x0
	OWronly   = 0x1
	ORdwr     = 0x2
	OCreat    = 0x40
	OExcl     = 0x80
	OTrunc    = 0x200
	OAppend   = 0x400
	ONonblock = 0x800
)

// S_IFMT-style type bits, high bits of Inode.Mode.
const (
	SIfmt  = 0xF000
	SIfChr = 0x2000
	SIfDir = 0x4000
	SIfReg = 0x8000
)

// Syscalls bundles the microvisor the file-family methods operate
// against.
type Syscalls struct {
	MV *microvisor.Microvisor
}

func New(mv *microvisor.Microvisor) *Syscalls { return &Syscalls{MV: mv} }

// resolveAt walks p (absolute or relative to c.Cwd) to an inode,
// starting the walk from c.Cwd's inode directly when p is relative,
// rather than via a synthesized cwd string.
func (s *Syscalls) resolveAt(c *cage.Cage, p string) (ino uint64, e errno.Errno) {
	if len(p) > 0 && p[0] == '/' {
		return path.Walk(s.MV.Store, path.Normalize("/", p))
	}
	return s.walkFrom(c.Cwd, p)
}

func (s *Syscalls) walkFrom(start uint64, p string) (uint64, errno.Errno) {
	normalized := path.Normalize("/", p) // lexical cleanup only; root-relative for component splitting
	ino := start
	for _, comp := range splitComponents(normalized) {
		rec, e := s.MV.Store.Get(ino)
		if e != 0 {
			return 0, errno.ENOENT
		}
		if !rec.IsDir() {
			return 0, errno.ENOTDIR
		}
		child, ok := rec.Children[comp]
		if !ok {
			return 0, errno.ENOENT
		}
		ino = child
	}
	return ino, 0
}

func splitComponents(normalized string) []string {
	if normalized == "/" {
		return nil
	}
	var out []string
	start := 1
	for i := 1; i <= len(normalized); i++ {
		if i == len(normalized) || normalized[i] == '/' {
			if i > start {
				out = append(out, normalized[start:i])
			}
			start = i + 1
		}
	}
	return out
}

func (s *Syscalls) resolveParentAt(c *cage.Cage, p string) (child, parent uint64, e errno.Errno) {
	dir, name := path.Split(path.Normalize("/", p))
	var dirIno uint64
	if len(p) > 0 && p[0] == '/' {
		dirIno, e = path.Walk(s.MV.Store, dir)
	} else {
		dirIno, e = s.walkFrom(c.Cwd, dir)
	}
	if e != 0 {
		return 0, 0, e
	}
	rec, e2 := s.MV.Store.Get(dirIno)
	if e2 != 0 {
		return 0, 0, errno.ENOENT
	}
	if !rec.IsDir() {
		return 0, 0, errno.ENOTDIR
	}
	if name == "" {
		return dirIno, 0, 0
	}
	child, ok := rec.Children[name]
	if !ok {
		return 0, dirIno, 0
	}
	return child, dirIno, 0
}

// Open implements open()/creat(). See spec.md §4.6's open rules.
func (s *Syscalls) Open(c *cage.Cage, p string, flags int, mode uint32) (int, errno.Errno) {
	if mode&SIfmt == SIfChr {
		return -1, errno.EINVAL
	}
	child, parent, e := s.resolveParentAt(c, p)
	if e != 0 {
		return -1, e
	}
	created := false
	if child == 0 {
		if flags&OCreat == 0 {
			return -1, errno.ENOENT
		}
		rec, e2 := s.MV.Store.NewRegularFile(c.Identity.UID, c.Identity.GID, mode&^SIfmt|SIfReg)
		if e2 != 0 {
			return -1, e2
		}
		child = rec.Number
		created = true // NewRegularFile already holds this descriptor's ref
		e3 := s.MV.Store.MutateMany(map[uint64]func(*inode.Inode) bool{
			parent: func(in *inode.Inode) bool {
				in.Children[lastComponent(p)] = child
				in.LinkCount++
				in.Mtime = hostshim.Now()
				return true
			},
		})
		if e3 != 0 {
			return -1, e3
		}
	} else {
		rec, e2 := s.MV.Store.Get(child)
		if e2 != 0 {
			return -1, e2
		}
		if flags&OExcl != 0 && flags&OCreat != 0 {
			return -1, errno.EEXIST
		}
		if rec.Kind == inode.KindSocket {
			return -1, errno.ENXIO
		}
		if flags&OTrunc != 0 && rec.Kind == inode.KindFile {
			s.MV.Store.Blobs.Evict(child)
			if err := s.MV.Store.Blobs.Remove(child); err != nil {
				return -1, errno.FromHost(err)
			}
			if err := s.MV.Store.Blobs.Create(child); err != nil {
				return -1, errno.FromHost(err)
			}
			s.MV.Store.Mutate(child, func(in *inode.Inode) bool {
				in.Size = 0
				in.Mtime = hostshim.Now()
				return true
			})
		}
	}

	rec, e4 := s.MV.Store.Get(child)
	if e4 != 0 {
		return -1, e4
	}
	kind := fd.KindFile
	if rec.IsDir() {
		kind = fd.KindDir
	}
	if !created {
		s.MV.Store.IncRef(child)
	}
	d := &fd.Descriptor{Kind: kind, AdvLock: &fd.AdvLock{}, File: &fd.FileBody{Inode: child}}
	if flags&ONonblock != 0 {
		d.Flags |= fd.FlagNonblock
	}
	if flags&OAppend != 0 {
		d.Flags |= fd.FlagAppend
		d.File.Position = rec.Size
	}
	res, e5 := c.Files.GetNextFD(fd.STARTINGFD)
	if e5 != 0 {
		s.MV.Store.DecRef(child)
		return -1, e5
	}
	res.Fill(d)
	return res.FD(), 0
}

func lastComponent(p string) string {
	_, name := path.Split(path.Normalize("/", p))
	return name
}

// Close implements close().
func (s *Syscalls) Close(c *cage.Cage, fdNum int) errno.Errno {
	d, e := c.Files.Take(fdNum)
	if e != 0 {
		return e
	}
	switch d.Kind {
	case fd.KindFile, fd.KindDir:
		s.MV.Store.DecRef(d.File.Inode)
		s.MV.Store.MaybeCollect(d.File.Inode)
		if s.MV.Store.RefCount(d.File.Inode) <= 0 {
			s.MV.Store.Blobs.Evict(d.File.Inode)
		}
	case fd.KindPipe:
		if p, ok := d.Pipe.Pipe.(*pipe.Pipe); ok {
			p.DecRef(d.Pipe.WriteEnd)
		}
	case fd.KindSocket:
		if h, ok := d.Socket.(*socket.Handle); ok {
			h.DecRef()
		}
	}
	return 0
}

// Read implements read()/pread() (offset<0 means "use and advance the
// descriptor's position").
func (s *Syscalls) Read(c *cage.Cage, fdNum int, buf []byte, offset int64) (int, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return -1, e
	}
	d.RLock()
	defer d.RUnlock()
	switch d.Kind {
	case fd.KindPipe:
		p, ok := d.Pipe.Pipe.(*pipe.Pipe)
		if !ok {
			return -1, errno.EBADF
		}
		return p.Read(buf, d.Flags&fd.FlagNonblock != 0)
	case fd.KindFile:
		pos := d.File.Position
		if offset >= 0 {
			pos = offset
		}
		n, err := s.MV.Store.Blobs.ReadAt(d.File.Inode, buf, pos)
		if err != nil && n == 0 {
			return -1, errno.FromHost(err)
		}
		if offset < 0 {
			d.File.Position = pos + int64(n)
		}
		return n, 0
	case fd.KindDir:
		return -1, errno.EISDIR
	default:
		return -1, errno.EINVAL
	}
}

// Write implements write()/pwrite().
func (s *Syscalls) Write(c *cage.Cage, fdNum int, buf []byte, offset int64) (int, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return -1, e
	}
	d.RLock()
	defer d.RUnlock()
	switch d.Kind {
	case fd.KindPipe:
		p, ok := d.Pipe.Pipe.(*pipe.Pipe)
		if !ok {
			return -1, errno.EBADF
		}
		n, werr := p.Write(buf, d.Flags&fd.FlagNonblock != 0)
		if werr == errno.EPIPE {
			raiseSigpipe(c)
		}
		return n, werr
	case fd.KindFile:
		pos := d.File.Position
		if d.Flags&fd.FlagAppend != 0 {
			rec, _ := s.MV.Store.Get(d.File.Inode)
			if rec != nil {
				pos = rec.Size
			}
		}
		if offset >= 0 {
			pos = offset
		}
		n, err := s.MV.Store.Blobs.WriteAt(d.File.Inode, buf, pos)
		if err != nil {
			return n, errno.FromHost(err)
		}
		newPos := pos + int64(n)
		s.MV.Store.Mutate(d.File.Inode, func(in *inode.Inode) bool {
			if newPos > in.Size {
				in.Size = newPos
			}
			in.Mtime = hostshim.Now()
			return true
		})
		if offset < 0 {
			d.File.Position = newPos
		}
		return n, 0
	default:
		return -1, errno.EINVAL
	}
}

// Writev writes iovecs in sequence (pipe fds go through Pipe.Writev,
// which can stop partway through an iovec; regular files just loop).
func (s *Syscalls) Writev(c *cage.Cage, fdNum int, iovecs [][]byte) (int, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return -1, e
	}
	if d.Kind == fd.KindPipe {
		d.RLock()
		p, ok := d.Pipe.Pipe.(*pipe.Pipe)
		d.RUnlock()
		if !ok {
			return -1, errno.EBADF
		}
		return p.Writev(iovecs, d.Flags&fd.FlagNonblock != 0)
	}
	total := 0
	for _, iov := range iovecs {
		n, e2 := s.Write(c, fdNum, iov, -1)
		total += n
		if e2 != 0 {
			if total > 0 {
				return total, 0
			}
			return total, e2
		}
	}
	return total, 0
}

// Lseek implements lseek(). whence: 0=SET,1=CUR,2=END.
func (s *Syscalls) Lseek(c *cage.Cage, fdNum int, offset int64, whence int) (int64, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return -1, e
	}
	if d.Kind != fd.KindFile && d.Kind != fd.KindDir {
		return -1, errno.ESPIPE
	}
	d.Lock()
	defer d.Unlock()
	var base int64
	switch whence {
	case 0:
		base = 0
	case 1:
		base = d.File.Position
	case 2:
		rec, e2 := s.MV.Store.Get(d.File.Inode)
		if e2 != 0 {
			return -1, e2
		}
		base = rec.Size
	default:
		return -1, errno.EINVAL
	}
	newPos := base + offset
	if newPos < 0 {
		return -1, errno.EINVAL
	}
	d.File.Position = newPos
	return newPos, 0
}
