package syscalls

import (
	"sort"

	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/hostshim"
)

// Dirent is one getdents() entry.
type Dirent struct {
	Ino  uint64
	Name string
}

// Getdents implements getdents(): the in-memory directory's children,
// name-sorted for a deterministic listing order (rather than map
// iteration order) — grounded on karrick/godirwalk's one-entry-at-a-
// time iteration style, adapted from host disk traversal to the
// in-memory inode tree.
func (s *Syscalls) Getdents(c *cage.Cage, fdNum int) ([]Dirent, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return nil, e
	}
	if d.Kind != fd.KindDir {
		return nil, errno.ENOTDIR
	}
	rec, e2 := s.MV.Store.Get(d.File.Inode)
	if e2 != 0 {
		return nil, e2
	}
	names := make([]string, 0, len(rec.Children))
	for n := range rec.Children {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]Dirent, 0, len(names))
	for _, n := range names {
		out = append(out, Dirent{Ino: rec.Children[n], Name: n})
	}
	return out, 0
}

// StatfsData mirrors spec.md §6's fixed synthetic statfs() result.
type StatfsData struct {
	Type    int64
	Bsize   int64
	Namelen int64
}

func (s *Syscalls) Statfs() StatfsData {
	return StatfsData{Type: 0xBEEFC0DE, Bsize: 4096, Namelen: 254}
}

func (s *Syscalls) Fstatfs(c *cage.Cage, fdNum int) (StatfsData, errno.Errno) {
	if _, e := c.Files.Get(fdNum); e != 0 {
		return StatfsData{}, e
	}
	return s.Statfs(), 0
}

// Mmap implements mmap() against a regular file's backing blob.
// Anonymous mappings are not supported: any descriptor that is not a
// regular file yields EINVAL. Delegates to the host mmap syscall on
// the blob's host fd per spec.md §4.6.
func (s *Syscalls) Mmap(c *cage.Cage, fdNum int, offset int64, length int, writable bool) ([]byte, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return nil, e
	}
	if d.Kind != fd.KindFile {
		return nil, errno.EINVAL
	}
	hostFD, err := s.MV.Store.Blobs.Fd(d.File.Inode)
	if err != nil {
		return nil, errno.FromHost(err)
	}
	b, err := hostshim.MapFile(hostFD, offset, length, writable)
	if err != nil {
		return nil, errno.FromHost(err)
	}
	return b, 0
}

// Munmap releases a mapping, retaining the address reservation (over-
// mapped with PROT_NONE) rather than fully releasing it back to the
// host allocator, matching spec.md §4.6's munmap rule.
func (s *Syscalls) Munmap(b []byte) errno.Errno {
	if err := hostshim.RetainReservation(b); err != nil {
		return errno.FromHost(err)
	}
	return 0
}

// Gethostname returns spec.md §6's constant "Lind" hostname,
// truncated to the caller's buffer.
func Gethostname(buf []byte) int {
	const name = "Lind\x00"
	n := copy(buf, name)
	return n
}
