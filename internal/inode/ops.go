package inode

import (
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/hostshim"
)

// Get returns a copy of the inode, or ENOENT.
func (s *Store) Get(ino uint64) (*Inode, errno.Errno) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.table[ino]
	if !ok {
		return nil, errno.ENOENT
	}
	return rec.Clone(), 0
}

// Mutate runs fn against a live copy of the inode, persists the result
// if fn returns true, and returns the (possibly unmodified) copy.
// Centralizing the clone/persist dance here is what makes every C7
// method's "touch times, bump size, log it" sequence a one-liner.
func (s *Store) Mutate(ino uint64, fn func(*Inode) bool) (*Inode, errno.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.table[ino]
	if !ok {
		return nil, errno.ENOENT
	}
	work := rec.Clone()
	if fn(work) {
		if err := s.appendLog([]logRecord{{Ino: ino, Inode: work}}); err != nil {
			return nil, errno.EINVAL
		}
	}
	return work.Clone(), 0
}

// MutateMany persists several inodes' mutations as one atomic log
// append, e.g. open-with-create touching both the new file and its
// parent directory (spec.md §4.6).
func (s *Store) MutateMany(fns map[uint64]func(*Inode) bool) errno.Errno {
	s.mu.Lock()
	defer s.mu.Unlock()
	var recs []logRecord
	for ino, fn := range fns {
		rec, ok := s.table[ino]
		if !ok {
			return errno.ENOENT
		}
		work := rec.Clone()
		if fn(work) {
			recs = append(recs, logRecord{Ino: ino, Inode: work})
		}
	}
	if len(recs) == 0 {
		return 0
	}
	if err := s.appendLog(recs); err != nil {
		return errno.EINVAL
	}
	return 0
}

// AllocInode reserves and returns the next monotonically increasing
// inode number (spec.md: "nextinode is monotonically increasing;
// reused numbers are forbidden").
func (s *Store) AllocInode() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.nextInode
	s.nextInode++
	return n
}

// Insert adds a brand-new inode record (e.g. a freshly created file or
// directory) and logs it.
func (s *Store) Insert(rec *Inode) errno.Errno {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendLog([]logRecord{{Ino: rec.Number, Inode: rec.Clone()}}); err != nil {
		return errno.EINVAL
	}
	return 0
}

// IncRef/DecRef maintain the transient, unpersisted open-descriptor
// refcount. DecRef returns the resulting (linkcount, refcount) pair so
// callers can decide whether to garbage-collect.
func (s *Store) IncRef(ino uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ino]++
}

func (s *Store) DecRef(ino uint64) (linkCount uint32, refCount int32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refs[ino]--
	refCount = s.refs[ino]
	if refCount <= 0 {
		delete(s.refs, ino)
		refCount = 0
	}
	if rec, ok := s.table[ino]; ok {
		linkCount = rec.LinkCount
	}
	return
}

// RefCount reports the current transient refcount without mutating it.
func (s *Store) RefCount(ino uint64) int32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refs[ino]
}

// MaybeCollect removes ino from the table (and, for regular files,
// deletes its backing blob) iff both linkcount and refcount are zero —
// spec.md's central inode-GC invariant.
func (s *Store) MaybeCollect(ino uint64) errno.Errno {
	s.mu.Lock()
	rec, ok := s.table[ino]
	if !ok {
		s.mu.Unlock()
		return 0
	}
	if rec.LinkCount != 0 || s.refs[ino] > 0 {
		s.mu.Unlock()
		return 0
	}
	kind := rec.Kind
	err := s.appendLog([]logRecord{{Ino: ino, Tombstone: true}})
	s.mu.Unlock()
	if err != nil {
		return errno.EINVAL
	}
	if kind == KindFile {
		if err := s.Blobs.Remove(ino); err != nil {
			return errno.FromHost(err)
		}
	}
	return 0
}

// NewRegularFile allocates and persists a fresh, empty regular file
// inode with an empty host backing blob (spec.md §4.6 open/O_CREAT).
func (s *Store) NewRegularFile(uid, gid uint32, mode uint32) (*Inode, errno.Errno) {
	ino := s.AllocInode()
	if err := s.Blobs.Create(ino); err != nil {
		return nil, errno.FromHost(err)
	}
	now := hostshim.Now()
	rec := &Inode{Number: ino, Kind: KindFile, Mode: mode, LinkCount: 1,
		UID: uid, GID: gid, Atime: now, Ctime: now, Mtime: now}
	if e := s.Insert(rec); e != 0 {
		return nil, e
	}
	s.IncRef(ino)
	return rec, 0
}

// NewDirectory allocates a directory pre-populated with "." and "..".
func (s *Store) NewDirectory(parent uint64, uid, gid uint32, mode uint32) (*Inode, errno.Errno) {
	ino := s.AllocInode()
	now := hostshim.Now()
	rec := &Inode{Number: ino, Kind: KindDir, Mode: mode, LinkCount: 3, UID: uid, GID: gid,
		Atime: now, Ctime: now, Mtime: now,
		Children: map[string]uint64{".": ino, "..": parent}}
	if e := s.Insert(rec); e != 0 {
		return nil, e
	}
	return rec, 0
}

// NewSocketInode allocates the rendezvous inode created by bind() on
// an AF_UNIX socket.
func (s *Store) NewSocketInode(boundPath string, uid, gid uint32, mode uint32) (*Inode, errno.Errno) {
	ino := s.AllocInode()
	now := hostshim.Now()
	rec := &Inode{Number: ino, Kind: KindSocket, Mode: mode, LinkCount: 1, UID: uid, GID: gid,
		BoundPath: boundPath, Atime: now, Ctime: now, Mtime: now}
	if e := s.Insert(rec); e != 0 {
		return nil, e
	}
	return rec, 0
}
