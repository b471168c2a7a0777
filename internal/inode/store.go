package inode

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"

	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/lindlog"
)

// Bucket names, grounded directly on backend/cache/storage_persistent.go's
// named-bucket style (RootBucket, RootTsBucket, DataTsBucket, ...).
const (
	bucketInodes = "inodes"
	bucketLog    = "log"
	bucketMeta   = "meta"

	metaKeyNextInode = "nextinode"
	metaKeyDevID     = "devid"

	// MetadataFile is spec.md's lind.metadata, now a single bolt file
	// that also plays the lind.md.log role (see SPEC_FULL.md §C).
	MetadataFile = "lind.metadata.db"
)

type logRecord struct {
	Ino       uint64
	Tombstone bool
	Inode     *Inode
}

// Store is the process-wide inode table: a concurrent map guarded by
// its own lock (spec.md §5), backed by a bolt database for crash
// recovery.
type Store struct {
	mu    sync.RWMutex
	table map[uint64]*Inode
	refs  map[uint64]int32

	db        *bolt.DB
	nextInode uint64
	devID     uint64
	logSeq    uint64

	Blobs *hostshim.BlobStore
}

// Open loads or formats the store rooted at dataDir, replaying any
// crash-recovery log per spec.md §4.1.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "inode: creating data dir")
	}
	blobs, err := hostshim.NewBlobStore(dataDir)
	if err != nil {
		return nil, err
	}
	db, err := bolt.Open(filepath.Join(dataDir, MetadataFile), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "inode: opening metadata store")
	}
	s := &Store{
		table: make(map[uint64]*Inode),
		refs:  make(map[uint64]int32),
		db:    db,
		Blobs: blobs,
	}
	if err := s.load(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	fresh := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketInodes, bucketLog, bucketMeta} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		meta := tx.Bucket([]byte(bucketMeta))
		if meta.Get([]byte(metaKeyNextInode)) == nil {
			fresh = true
		}
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "inode: initializing buckets")
	}

	if fresh {
		return s.formatFresh()
	}

	var logCount int
	err = s.db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket([]byte(bucketMeta))
		s.nextInode = binary.BigEndian.Uint64(meta.Get([]byte(metaKeyNextInode)))
		s.devID = binary.BigEndian.Uint64(meta.Get([]byte(metaKeyDevID)))

		ib := tx.Bucket([]byte(bucketInodes))
		return ib.ForEach(func(k, v []byte) error {
			var ino Inode
			if err := gobDecode(v, &ino); err != nil {
				return err
			}
			s.table[ino.Number] = &ino
			return nil
		})
	})
	if err != nil {
		return errors.Wrap(err, "inode: loading snapshot")
	}

	err = s.db.View(func(tx *bolt.Tx) error {
		lb := tx.Bucket([]byte(bucketLog))
		return lb.ForEach(func(k, v []byte) error {
			logCount++
			var rec logRecord
			if err := gobDecode(v, &rec); err != nil {
				return err
			}
			if rec.Ino >= s.nextInode {
				s.nextInode = rec.Ino + 1
			}
			if rec.Tombstone {
				delete(s.table, rec.Ino)
			} else {
				s.table[rec.Ino] = rec.Inode
			}
			return nil
		})
	})
	if err != nil {
		return errors.Wrap(err, "inode: replaying log")
	}

	if logCount > 0 {
		lindlog.Infof("inode: replayed %d log records", logCount)
		s.fsck()
		if err := s.checkpoint(); err != nil {
			return err
		}
	}
	return nil
}

// formatFresh synthesizes the default tree of spec.md §4.1: /, /dev,
// and the four character devices.
func (s *Store) formatFresh() error {
	lindlog.Infof("inode: no existing metadata store, formatting")
	now := hostshim.Now()
	s.devID = uint64(now.UnixNano())

	root := &Inode{Number: RootIno, Kind: KindDir, Mode: 0o40755, LinkCount: 3,
		Children: map[string]uint64{".": RootIno, "..": RootIno},
		Atime: now, Ctime: now, Mtime: now}
	dev := &Inode{Number: DevIno, Kind: KindDir, Mode: 0o40755, LinkCount: 2,
		Children: map[string]uint64{".": DevIno, "..": RootIno},
		Atime: now, Ctime: now, Mtime: now}
	null := &Inode{Number: DevNullIno, Kind: KindCharDev, Mode: 0o20666, LinkCount: 1, Major: 1, Minor: 3, Atime: now, Ctime: now, Mtime: now}
	zero := &Inode{Number: DevZeroIno, Kind: KindCharDev, Mode: 0o20666, LinkCount: 1, Major: 1, Minor: 5, Atime: now, Ctime: now, Mtime: now}
	urandom := &Inode{Number: DevURandomIno, Kind: KindCharDev, Mode: 0o20666, LinkCount: 1, Major: 1, Minor: 9, Atime: now, Ctime: now, Mtime: now}
	random := &Inode{Number: DevRandomIno, Kind: KindCharDev, Mode: 0o20666, LinkCount: 1, Major: 1, Minor: 8, Atime: now, Ctime: now, Mtime: now}

	root.Children["dev"] = DevIno
	dev.Children["null"] = DevNullIno
	dev.Children["zero"] = DevZeroIno
	dev.Children["urandom"] = DevURandomIno
	dev.Children["random"] = DevRandomIno

	for _, i := range []*Inode{root, dev, null, zero, urandom, random} {
		s.table[i.Number] = i
	}
	s.nextInode = 7
	return s.checkpoint()
}

// fsck drops table entries with LinkCount == 0, per spec.md §4.1's
// post-replay cleanup pass. Descriptor-held refcounts cannot exist yet
// at startup (no cages are live), so refcount is not consulted here.
func (s *Store) fsck() {
	for ino, rec := range s.table {
		if rec.LinkCount == 0 {
			delete(s.table, ino)
			lindlog.Infof("inode: fsck dropped orphan inode %d", ino)
		}
	}
}

// checkpoint rewrites the inodes bucket wholesale from the in-memory
// table and truncates the log bucket — spec.md's "snapshot rewritten
// on orderly shutdown", also run once after replaying a crash log so
// the recovery window closes immediately.
func (s *Store) checkpoint() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		ib := tx.Bucket([]byte(bucketInodes))
		if err := tx.DeleteBucket([]byte(bucketInodes)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		var err error
		ib, err = tx.CreateBucket([]byte(bucketInodes))
		if err != nil {
			return err
		}
		for ino, rec := range s.table {
			b, err := gobEncode(rec)
			if err != nil {
				return err
			}
			if err := ib.Put(beUint64(ino), b); err != nil {
				return err
			}
		}

		if err := tx.DeleteBucket([]byte(bucketLog)); err != nil && err != bolt.ErrBucketNotFound {
			return err
		}
		if _, err := tx.CreateBucket([]byte(bucketLog)); err != nil {
			return err
		}
		s.logSeq = 0

		meta := tx.Bucket([]byte(bucketMeta))
		if err := meta.Put([]byte(metaKeyNextInode), beUint64(s.nextInode)); err != nil {
			return err
		}
		return meta.Put([]byte(metaKeyDevID), beUint64(s.devID))
	})
}

// Checkpoint exposes checkpoint() for orderly shutdown (cage.Exit-all
// / process teardown per spec.md §4.1's "Rewritten on orderly
// shutdown").
func (s *Store) Checkpoint() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.checkpoint()
}

// Close flushes a final checkpoint and closes the bolt database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkpoint(); err != nil {
		return err
	}
	return s.db.Close()
}

// appendLog durably persists one or more inode mutations before the
// caller's syscall is allowed to report success, per spec.md §4.1's
// contract. Each record also updates the in-memory table so readers
// observe the change immediately.
func (s *Store) appendLog(records []logRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		lb := tx.Bucket([]byte(bucketLog))
		for _, rec := range records {
			b, err := gobEncode(rec)
			if err != nil {
				return err
			}
			s.logSeq++
			if err := lb.Put(beUint64(s.logSeq), b); err != nil {
				return err
			}
			if rec.Tombstone {
				delete(s.table, rec.Ino)
			} else {
				s.table[rec.Ino] = rec.Inode
			}
		}
		return nil
	})
}

// DevID is the synthetic st_dev value stat/statfs report.
func (s *Store) DevID() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.devID
}

// Len reports the number of live inodes, for the dispatcher's
// inode-table-size gauge.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.table)
}

// Each snapshots and iterates every live inode, in inode-number order
// (lindctl dump's "walk the whole table" need).
func (s *Store) Each(fn func(*Inode)) {
	s.mu.RLock()
	nums := make([]uint64, 0, len(s.table))
	for ino := range s.table {
		nums = append(nums, ino)
	}
	sort.Slice(nums, func(i, j int) bool { return nums[i] < nums[j] })
	recs := make([]*Inode, len(nums))
	for i, ino := range nums {
		recs[i] = s.table[ino]
	}
	s.mu.RUnlock()
	for _, rec := range recs {
		fn(rec)
	}
}

func beUint64(v uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, v)
	return b
}

func gobEncode(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, errors.Wrap(err, "inode: gob encode")
	}
	return buf.Bytes(), nil
}

func gobDecode(b []byte, v interface{}) error {
	return errors.Wrap(gob.NewDecoder(bytes.NewReader(b)).Decode(v), "inode: gob decode")
}
