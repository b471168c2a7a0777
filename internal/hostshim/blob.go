// Package hostshim wraps every host-OS interaction the core needs —
// backing-blob file I/O, mmap, randomness, wall/monotonic time — so
// that C7/C9 never import os/unix directly (C2 imports os only to
// create its data directory). Grounded on rclone's
// own isolation of host file access behind backend/local and lib/file.
package hostshim

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/djherbis/times"
	"github.com/pkg/errors"
)

// BlobPrefix is spec.md's FILEDATAPREFIX: backing blobs are named
// <prefix><inode number> inside the store's data directory.
const BlobPrefix = "linddata."

// BlobStore owns host *os.File handles for regular-file backing blobs,
// keyed by inode number — the "file-object cache" of spec.md §5,
// evicted explicitly when an inode's refcount reaches zero.
type BlobStore struct {
	dir string

	mu    sync.Mutex
	cache map[uint64]*os.File
}

// NewBlobStore creates the data directory if needed and returns a
// store rooted at it.
func NewBlobStore(dir string) (*BlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "hostshim: creating data dir")
	}
	return &BlobStore{dir: dir, cache: make(map[uint64]*os.File)}, nil
}

func (s *BlobStore) path(ino uint64) string {
	return filepath.Join(s.dir, BlobPrefix+strconv.FormatUint(ino, 10))
}

// Create makes a fresh, empty backing blob for ino, truncating any
// stale blob left over from a prior crash.
func (s *BlobStore) Create(ino uint64) error {
	f, err := os.OpenFile(s.path(ino), os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrapf(err, "hostshim: creating blob %d", ino)
	}
	s.mu.Lock()
	if old, ok := s.cache[ino]; ok {
		old.Close()
	}
	s.cache[ino] = f
	s.mu.Unlock()
	return nil
}

// Open returns the cached host handle for ino, opening it from disk
// on first use.
func (s *BlobStore) Open(ino uint64) (*os.File, error) {
	s.mu.Lock()
	if f, ok := s.cache[ino]; ok {
		s.mu.Unlock()
		return f, nil
	}
	s.mu.Unlock()

	f, err := os.OpenFile(s.path(ino), os.O_RDWR, 0o644)
	if err != nil {
		return nil, errors.Wrapf(err, "hostshim: opening blob %d", ino)
	}
	s.mu.Lock()
	if existing, ok := s.cache[ino]; ok {
		f.Close()
		f = existing
	} else {
		s.cache[ino] = f
	}
	s.mu.Unlock()
	return f, nil
}

// ReadAt/WriteAt/Truncate/Sync delegate to the cached host handle.
func (s *BlobStore) ReadAt(ino uint64, buf []byte, off int64) (int, error) {
	f, err := s.Open(ino)
	if err != nil {
		return 0, err
	}
	n, err := f.ReadAt(buf, off)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (s *BlobStore) WriteAt(ino uint64, buf []byte, off int64) (int, error) {
	f, err := s.Open(ino)
	if err != nil {
		return 0, err
	}
	return f.WriteAt(buf, off)
}

func (s *BlobStore) Truncate(ino uint64, size int64) error {
	f, err := s.Open(ino)
	if err != nil {
		return err
	}
	return f.Truncate(size)
}

func (s *BlobStore) Sync(ino uint64) error {
	s.mu.Lock()
	f, ok := s.cache[ino]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return f.Sync()
}

// Fd exposes the host fd backing ino, for mmap.
func (s *BlobStore) Fd(ino uint64) (uintptr, error) {
	f, err := s.Open(ino)
	if err != nil {
		return 0, err
	}
	return f.Fd(), nil
}

// Evict closes and forgets the cached handle, called once an inode's
// refcount reaches zero and it is about to be removed from the table.
func (s *BlobStore) Evict(ino uint64) {
	s.mu.Lock()
	f, ok := s.cache[ino]
	delete(s.cache, ino)
	s.mu.Unlock()
	if ok {
		f.Close()
	}
}

// Remove evicts and deletes the backing blob from the host filesystem.
func (s *BlobStore) Remove(ino uint64) error {
	s.Evict(ino)
	err := os.Remove(s.path(ino))
	if err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "hostshim: removing blob %d", ino)
	}
	return nil
}

// Times returns the host-reported atime/mtime/ctime of ino's backing
// blob (ctime falls back to mtime where the platform exposes no change
// time), feeding StatData per spec.md §6.
func (s *BlobStore) Times(ino uint64) (atime, mtime, ctime time.Time, err error) {
	t, err := times.Stat(s.path(ino))
	if err != nil {
		return
	}
	atime, mtime = t.AccessTime(), t.ModTime()
	if t.HasChangeTime() {
		ctime = t.ChangeTime()
	} else {
		ctime = mtime
	}
	return
}
