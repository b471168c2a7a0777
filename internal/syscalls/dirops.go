package syscalls

import (
	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/inode"
	"github.com/lind-project/lind-go/internal/path"
	"github.com/lind-project/lind-go/internal/pipe"
	"github.com/lind-project/lind-go/internal/socket"
)

// StatData mirrors spec.md §6's observable status structure.
type StatData struct {
	Dev, Ino           uint64
	Mode               uint32
	Nlink              uint32
	UID, GID           uint32
	Rdev               uint64
	Size               int64
	Blksize            int64
	Blocks             int64
	Atime, Mtime, Ctime int64
}

func (s *Syscalls) statOf(rec *inode.Inode) StatData {
	rdev := uint64(0)
	if rec.Kind == inode.KindCharDev {
		rdev = inode.Makedev(rec.Major, rec.Minor)
	}
	return StatData{
		Dev: s.MV.Store.DevID(), Ino: rec.Number, Mode: rec.Mode, Nlink: rec.LinkCount,
		UID: rec.UID, GID: rec.GID, Rdev: rdev, Size: rec.Size,
		Atime: rec.Atime.Unix(), Mtime: rec.Mtime.Unix(), Ctime: rec.Ctime.Unix(),
	}
}

// Stat implements stat().
func (s *Syscalls) Stat(c *cage.Cage, p string) (StatData, errno.Errno) {
	ino, e := s.resolveAt(c, p)
	if e != 0 {
		return StatData{}, e
	}
	rec, e2 := s.MV.Store.Get(ino)
	if e2 != 0 {
		return StatData{}, e2
	}
	return s.statOf(rec), 0
}

// Fstat implements fstat().
func (s *Syscalls) Fstat(c *cage.Cage, fdNum int) (StatData, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return StatData{}, e
	}
	if d.Kind == fd.KindSocket {
		return StatData{}, errno.EOPNOTSUPP
	}
	if d.Kind == fd.KindStream {
		return StatData{Ino: inode.StreamIno}, 0
	}
	rec, e2 := s.MV.Store.Get(d.File.Inode)
	if e2 != 0 {
		return StatData{}, e2
	}
	return s.statOf(rec), 0
}

// Access implements access(). Permission bits are tracked but not
// enforced against a caller identity (spec.md's cages run as a single
// trust domain); this checks only existence, matching F_OK/R_OK/W_OK/
// X_OK's "file exists" floor.
func (s *Syscalls) Access(c *cage.Cage, p string) errno.Errno {
	_, e := s.resolveAt(c, p)
	return e
}

// Link implements link(): hard-link oldpath at newpath.
func (s *Syscalls) Link(c *cage.Cage, oldpath, newpath string) errno.Errno {
	target, e := s.resolveAt(c, oldpath)
	if e != 0 {
		return e
	}
	rec, e2 := s.MV.Store.Get(target)
	if e2 != 0 {
		return e2
	}
	if rec.IsDir() {
		return errno.EPERM
	}
	existing, parent, e3 := s.resolveParentAt(c, newpath)
	if e3 != 0 {
		return e3
	}
	if existing != 0 {
		return errno.EEXIST
	}
	name := lastComponent(newpath)
	return s.MV.Store.MutateMany(map[uint64]func(*inode.Inode) bool{
		parent: func(in *inode.Inode) bool {
			in.Children[name] = target
			in.Mtime = hostshim.Now()
			return true
		},
		target: func(in *inode.Inode) bool {
			in.LinkCount++
			in.Ctime = hostshim.Now()
			return true
		},
	})
}

// Unlink implements unlink(): remove a name, decrementing linkcount
// and collecting the inode if it becomes unreferenced.
func (s *Syscalls) Unlink(c *cage.Cage, p string) errno.Errno {
	target, parent, e := s.resolveParentAt(c, p)
	if e != 0 {
		return e
	}
	if target == 0 {
		return errno.ENOENT
	}
	rec, e2 := s.MV.Store.Get(target)
	if e2 != 0 {
		return e2
	}
	if rec.IsDir() {
		return errno.EISDIR
	}
	name := lastComponent(p)
	e3 := s.MV.Store.MutateMany(map[uint64]func(*inode.Inode) bool{
		parent: func(in *inode.Inode) bool {
			delete(in.Children, name)
			in.Mtime = hostshim.Now()
			return true
		},
		target: func(in *inode.Inode) bool {
			if in.LinkCount > 0 {
				in.LinkCount--
			}
			in.Ctime = hostshim.Now()
			return true
		},
	})
	if e3 != 0 {
		return e3
	}
	return s.MV.Store.MaybeCollect(target)
}

// Mkdir implements mkdir().
func (s *Syscalls) Mkdir(c *cage.Cage, p string, mode uint32) errno.Errno {
	existing, parent, e := s.resolveParentAt(c, p)
	if e != 0 {
		return e
	}
	if existing != 0 {
		return errno.EEXIST
	}
	rec, e2 := s.MV.Store.NewDirectory(parent, c.Identity.UID, c.Identity.GID, mode&^SIfmt|SIfDir)
	if e2 != 0 {
		return e2
	}
	name := lastComponent(p)
	return s.MV.Store.MutateMany(map[uint64]func(*inode.Inode) bool{
		parent: func(in *inode.Inode) bool {
			in.Children[name] = rec.Number
			in.LinkCount++
			in.Mtime = hostshim.Now()
			return true
		},
	})
}

// Rmdir implements rmdir(): the target must be an empty directory
// (only "." and ".." children).
func (s *Syscalls) Rmdir(c *cage.Cage, p string) errno.Errno {
	target, parent, e := s.resolveParentAt(c, p)
	if e != 0 {
		return e
	}
	if target == 0 {
		return errno.ENOENT
	}
	rec, e2 := s.MV.Store.Get(target)
	if e2 != 0 {
		return e2
	}
	if !rec.IsDir() {
		return errno.ENOTDIR
	}
	if len(rec.Children) > 2 {
		return errno.ENOTEMPTY
	}
	name := lastComponent(p)
	e3 := s.MV.Store.MutateMany(map[uint64]func(*inode.Inode) bool{
		parent: func(in *inode.Inode) bool {
			delete(in.Children, name)
			if in.LinkCount > 0 {
				in.LinkCount--
			}
			in.Mtime = hostshim.Now()
			return true
		},
		target: func(in *inode.Inode) bool {
			in.LinkCount = 0
			return true
		},
	})
	if e3 != 0 {
		return e3
	}
	return s.MV.Store.MaybeCollect(target)
}

// Rename implements rename(). Per spec.md's §9 Open Question, cross-
// directory renames ARE honored (see DESIGN.md) — POSIX allows them
// and nothing in spec.md's Non-goals excludes them.
func (s *Syscalls) Rename(c *cage.Cage, oldpath, newpath string) errno.Errno {
	target, oldParent, e := s.resolveParentAt(c, oldpath)
	if e != 0 {
		return e
	}
	if target == 0 {
		return errno.ENOENT
	}
	existingNew, newParent, e2 := s.resolveParentAt(c, newpath)
	if e2 != 0 {
		return e2
	}
	oldName := lastComponent(oldpath)
	newName := lastComponent(newpath)

	muts := map[uint64]func(*inode.Inode) bool{
		oldParent: func(in *inode.Inode) bool {
			delete(in.Children, oldName)
			in.Mtime = hostshim.Now()
			return true
		},
	}
	if existingTargetFn, ok := muts[newParent]; ok {
		prev := existingTargetFn
		muts[newParent] = func(in *inode.Inode) bool {
			prev(in)
			in.Children[newName] = target
			return true
		}
	} else {
		muts[newParent] = func(in *inode.Inode) bool {
			in.Children[newName] = target
			in.Mtime = hostshim.Now()
			return true
		}
	}
	if existingNew != 0 && existingNew != target {
		muts[existingNew] = func(in *inode.Inode) bool {
			if in.LinkCount > 0 {
				in.LinkCount--
			}
			return true
		}
	}
	if e3 := s.MV.Store.MutateMany(muts); e3 != 0 {
		return e3
	}
	if existingNew != 0 && existingNew != target {
		return s.MV.Store.MaybeCollect(existingNew)
	}
	return 0
}

// Chmod implements chmod()/fchmod(): only the permission bits change;
// the type bits (S_IFMT) are invariant (spec.md §8 property 6).
func (s *Syscalls) Chmod(c *cage.Cage, p string, mode uint32) errno.Errno {
	ino, e := s.resolveAt(c, p)
	if e != 0 {
		return e
	}
	return s.chmodIno(ino, mode)
}

func (s *Syscalls) Fchmod(c *cage.Cage, fdNum int, mode uint32) errno.Errno {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return e
	}
	if d.Kind != fd.KindFile && d.Kind != fd.KindDir {
		return errno.EINVAL
	}
	return s.chmodIno(d.File.Inode, mode)
}

func (s *Syscalls) chmodIno(ino uint64, mode uint32) errno.Errno {
	_, e := s.MV.Store.Mutate(ino, func(in *inode.Inode) bool {
		in.Mode = (in.Mode & SIfmt) | (mode &^ SIfmt)
		in.Ctime = hostshim.Now()
		return true
	})
	return e
}

// Chdir/Fchdir implement chdir()/fchdir(), each decrementing the old
// cwd's refcount and incrementing the new one's.
func (s *Syscalls) Chdir(c *cage.Cage, p string) errno.Errno {
	ino, e := s.resolveAt(c, p)
	if e != 0 {
		return e
	}
	rec, e2 := s.MV.Store.Get(ino)
	if e2 != 0 {
		return e2
	}
	if !rec.IsDir() {
		return errno.ENOTDIR
	}
	return s.setCwd(c, ino)
}

func (s *Syscalls) Fchdir(c *cage.Cage, fdNum int) errno.Errno {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return e
	}
	if d.Kind != fd.KindDir {
		return errno.ENOTDIR
	}
	return s.setCwd(c, d.File.Inode)
}

func (s *Syscalls) setCwd(c *cage.Cage, ino uint64) errno.Errno {
	c.Lock()
	old := c.Cwd
	c.Cwd = ino
	c.Unlock()
	s.MV.Store.IncRef(ino)
	s.MV.Store.DecRef(old)
	s.MV.Store.MaybeCollect(old)
	return 0
}

// Getcwd reconstructs the cage's cwd as an absolute path by walking
// parent links (via ".." entries) up to root.
func (s *Syscalls) Getcwd(c *cage.Cage) (string, errno.Errno) {
	c.RLock()
	ino := c.Cwd
	c.RUnlock()
	if ino == inode.RootIno {
		return "/", 0
	}
	var comps []string
	for ino != inode.RootIno {
		rec, e := s.MV.Store.Get(ino)
		if e != 0 {
			return "", e
		}
		parent, ok := rec.Children[".."]
		if !ok {
			return "", errno.EINVAL
		}
		parentRec, e2 := s.MV.Store.Get(parent)
		if e2 != 0 {
			return "", e2
		}
		name := ""
		for n, childIno := range parentRec.Children {
			if childIno == ino && n != "." && n != ".." {
				name = n
				break
			}
		}
		if name == "" {
			return "", errno.EINVAL
		}
		comps = append([]string{name}, comps...)
		ino = parent
	}
	return "/" + path.Normalize("/", joinSlash(comps))[1:], 0
}

func joinSlash(comps []string) string {
	out := ""
	for _, c := range comps {
		out += "/" + c
	}
	if out == "" {
		return "/"
	}
	return out
}

// Truncate/Ftruncate implement truncate()/ftruncate().
func (s *Syscalls) Truncate(c *cage.Cage, p string, size int64) errno.Errno {
	ino, e := s.resolveAt(c, p)
	if e != 0 {
		return e
	}
	return s.truncateIno(ino, size)
}

func (s *Syscalls) Ftruncate(c *cage.Cage, fdNum int, size int64) errno.Errno {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return e
	}
	if d.Kind != fd.KindFile {
		return errno.EINVAL
	}
	return s.truncateIno(d.File.Inode, size)
}

func (s *Syscalls) truncateIno(ino uint64, size int64) errno.Errno {
	rec, e := s.MV.Store.Get(ino)
	if e != 0 {
		return e
	}
	if rec.Kind != inode.KindFile {
		return errno.EINVAL
	}
	if err := s.MV.Store.Blobs.Truncate(ino, size); err != nil {
		return errno.FromHost(err)
	}
	_, e2 := s.MV.Store.Mutate(ino, func(in *inode.Inode) bool {
		in.Size = size
		in.Mtime = hostshim.Now()
		return true
	})
	return e2
}

// Fsync flushes a regular file's backing blob to the host; other
// descriptor kinds are a no-op.
func (s *Syscalls) Fsync(c *cage.Cage, fdNum int) errno.Errno {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return e
	}
	if d.Kind != fd.KindFile {
		return 0
	}
	if err := s.MV.Store.Blobs.Sync(d.File.Inode); err != nil {
		return errno.FromHost(err)
	}
	return 0
}

// Dup implements dup(): a fresh lowest-free fd, always with CLOEXEC
// stripped (spec.md §8 property 5).
func (s *Syscalls) Dup(c *cage.Cage, fdNum int) (int, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return -1, e
	}
	cd := d.Clone()
	cd.Flags &^= fd.FlagCloexec
	s.incRefForKind(cd)
	res, e2 := c.Files.GetNextFD(fd.STARTINGFD)
	if e2 != 0 {
		return -1, e2
	}
	res.Fill(cd)
	return res.FD(), 0
}

// Dup2 implements dup2(): install a clone of oldfd at newfd exactly,
// closing whatever was there first.
func (s *Syscalls) Dup2(c *cage.Cage, oldfd, newfd int) (int, errno.Errno) {
	if oldfd == newfd {
		if _, e := c.Files.Get(oldfd); e != 0 {
			return -1, e
		}
		return newfd, 0
	}
	d, e := c.Files.Get(oldfd)
	if e != 0 {
		return -1, e
	}
	cd := d.Clone()
	cd.Flags &^= fd.FlagCloexec
	s.incRefForKind(cd)
	res, evicted, e2 := c.Files.Reserve(newfd)
	if e2 != 0 {
		return -1, e2
	}
	res.Fill(cd)
	if evicted != nil {
		s.decRefForKind(evicted)
	}
	return newfd, 0
}

func (s *Syscalls) incRefForKind(d *fd.Descriptor) {
	switch d.Kind {
	case fd.KindFile, fd.KindDir:
		s.MV.Store.IncRef(d.File.Inode)
	case fd.KindPipe:
		if p, ok := d.Pipe.Pipe.(*pipe.Pipe); ok {
			p.IncRef(d.Pipe.WriteEnd)
		}
	case fd.KindSocket:
		if h, ok := d.Socket.(*socket.Handle); ok {
			h.IncRef()
		}
	}
}

func (s *Syscalls) decRefForKind(d *fd.Descriptor) {
	switch d.Kind {
	case fd.KindFile, fd.KindDir:
		s.MV.Store.DecRef(d.File.Inode)
		s.MV.Store.MaybeCollect(d.File.Inode)
	case fd.KindPipe:
		if p, ok := d.Pipe.Pipe.(*pipe.Pipe); ok {
			p.DecRef(d.Pipe.WriteEnd)
		}
	case fd.KindSocket:
		if h, ok := d.Socket.(*socket.Handle); ok {
			h.DecRef()
		}
	}
}

// Fcntl implements a subset of fcntl(): F_GETFD/F_SETFD (CLOEXEC) and
// F_GETFL/F_SETFL (O_NONBLOCK/O_APPEND).
const (
	FGetfd = 1
	FSetfd = 2
	FGetfl = 3
	FSetfl = 4
)

// statusFlagsToPosix translates the internal Flag* encoding into the
// POSIX status bits fcntl(F_GETFL) returns: O_APPEND/O_NONBLOCK only.
// Neither the access mode nor the creation flags (O_CREAT, O_EXCL,
// O_TRUNC) are carried in d.Flags, so neither is reported.
func statusFlagsToPosix(flags int32) int32 {
	var posix int32
	if flags&fd.FlagAppend != 0 {
		posix |= OAppend
	}
	if flags&fd.FlagNonblock != 0 {
		posix |= ONonblock
	}
	return posix
}

// posixToStatusFlags is statusFlagsToPosix's inverse: it reads only
// the runtime status bits out of a raw F_SETFL argument, ignoring
// access mode and creation flags a guest might still have set in it.
func posixToStatusFlags(arg int32) int32 {
	var internal int32
	if arg&OAppend != 0 {
		internal |= fd.FlagAppend
	}
	if arg&ONonblock != 0 {
		internal |= fd.FlagNonblock
	}
	return internal
}

func (s *Syscalls) Fcntl(c *cage.Cage, fdNum int, cmd int, arg int32) (int32, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return -1, e
	}
	d.Lock()
	defer d.Unlock()
	switch cmd {
	case FGetfd:
		if d.Flags&fd.FlagCloexec != 0 {
			return 1, 0
		}
		return 0, 0
	case FSetfd:
		if arg&1 != 0 {
			d.Flags |= fd.FlagCloexec
		} else {
			d.Flags &^= fd.FlagCloexec
		}
		return 0, 0
	case FGetfl:
		return statusFlagsToPosix(d.Flags), 0
	case FSetfl:
		d.Flags = (d.Flags &^ (fd.FlagAppend | fd.FlagNonblock)) | posixToStatusFlags(arg)
		return 0, 0
	default:
		return -1, errno.EINVAL
	}
}

// ioctl request numbers, standard Linux values. spec.md §4.6 names
// these as the only two ioctls this microvisor must support.
const (
	FIONBIO  = 0x5421
	FIOASYNC = 0x5452
)

// Ioctl implements ioctl(fd, request, arg) for FIONBIO/FIOASYNC,
// toggling fd.FlagNonblock (the bit F_SETFL's O_NONBLOCK also sets)
// and fd.FlagAsync (which F_SETFL does not touch). Any other request
// is ENOTTY.
func (s *Syscalls) Ioctl(c *cage.Cage, fdNum int, request, arg int64) errno.Errno {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return e
	}
	d.Lock()
	defer d.Unlock()
	switch request {
	case FIONBIO:
		if arg != 0 {
			d.Flags |= fd.FlagNonblock
		} else {
			d.Flags &^= fd.FlagNonblock
		}
		return 0
	case FIOASYNC:
		if arg != 0 {
			d.Flags |= fd.FlagAsync
		} else {
			d.Flags &^= fd.FlagAsync
		}
		return 0
	default:
		return errno.ENOTTY
	}
}

// Flock implements flock() against the descriptor's advisory lock.
const (
	LockSh = 1
	LockEx = 2
	LockUn = 8
	LockNb = 4
)

func (s *Syscalls) Flock(c *cage.Cage, fdNum int, how int) errno.Errno {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return e
	}
	mode := fd.LockShared
	switch {
	case how&LockUn != 0:
		mode = fd.LockNone
	case how&LockEx != 0:
		mode = fd.LockExclusive
	case how&LockSh != 0:
		mode = fd.LockShared
	default:
		return errno.EINVAL
	}
	if !d.AdvLock.TryLock(mode) {
		if how&LockNb != 0 {
			return errno.EAGAIN
		}
		return errno.EWOULDBLOCK
	}
	return 0
}

// Pipe implements pipe()/pipe2() (nonblocking carries pipe2's
// O_NONBLOCK): a fresh Pipe, read end at fds[0] write end at fds[1].
func (s *Syscalls) Pipe(c *cage.Cage, nonblocking bool) (r, w int, e errno.Errno) {
	p := pipe.New(s.MV.Config.PipeCapacity)
	rd := &fd.Descriptor{Kind: fd.KindPipe, AdvLock: &fd.AdvLock{}, Pipe: &fd.PipeBody{Pipe: p, WriteEnd: false}}
	wd := &fd.Descriptor{Kind: fd.KindPipe, AdvLock: &fd.AdvLock{}, Pipe: &fd.PipeBody{Pipe: p, WriteEnd: true}}
	if nonblocking {
		rd.Flags |= fd.FlagNonblock
		wd.Flags |= fd.FlagNonblock
	}
	rres, e1 := c.Files.GetNextFD(fd.STARTINGFD)
	if e1 != 0 {
		return -1, -1, e1
	}
	rres.Fill(rd)
	wres, e2 := c.Files.GetNextFD(fd.STARTINGFD)
	if e2 != 0 {
		c.Files.Take(rres.FD())
		return -1, -1, e2
	}
	wres.Fill(wd)
	return rres.FD(), wres.FD(), 0
}
