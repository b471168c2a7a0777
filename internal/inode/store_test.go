package inode

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
)

func TestOpenFreshFormatsDefaultTree(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	root, e := s.Get(RootIno)
	require.Zero(t, e)
	assert.True(t, root.IsDir())
	assert.Equal(t, uint64(DevIno), root.Children["dev"])

	null, e := s.Get(DevNullIno)
	require.Zero(t, e)
	assert.Equal(t, KindCharDev, null.Kind)
	assert.Equal(t, uint32(1), null.Major)
	assert.Equal(t, uint32(3), null.Minor)
}

func TestAllocInodeMonotonicNoReuse(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	a := s.AllocInode()
	b := s.AllocInode()
	assert.Greater(t, b, a)
}

func TestNewRegularFileAndGet(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rec, e := s.NewRegularFile(1000, 1000, 0o644)
	require.Zero(t, e)
	assert.Equal(t, KindFile, rec.Kind)
	assert.EqualValues(t, 1, s.RefCount(rec.Number))

	got, e := s.Get(rec.Number)
	require.Zero(t, e)
	assert.Equal(t, rec.Number, got.Number)
}

func TestGetUnknownInodeReturnsENOENT(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	_, e := s.Get(99999)
	assert.Equal(t, errno.ENOENT, e)
}

func TestMutateAppliesAndPersists(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rec, e := s.NewRegularFile(0, 0, 0o644)
	require.Zero(t, e)

	updated, e := s.Mutate(rec.Number, func(i *Inode) bool {
		i.Size = 42
		return true
	})
	require.Zero(t, e)
	assert.EqualValues(t, 42, updated.Size)

	reread, e := s.Get(rec.Number)
	require.Zero(t, e)
	assert.EqualValues(t, 42, reread.Size)
}

func TestMaybeCollectRequiresZeroLinkAndRef(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	rec, e := s.NewRegularFile(0, 0, 0o644)
	require.Zero(t, e)

	require.Zero(t, s.MaybeCollect(rec.Number))
	_, e = s.Get(rec.Number)
	require.Zero(t, e, "still has refcount 1, must not be collected")

	s.DecRef(rec.Number)
	_, e = s.Mutate(rec.Number, func(i *Inode) bool { i.LinkCount = 0; return true })
	require.Zero(t, e)

	require.Zero(t, s.MaybeCollect(rec.Number))
	_, e = s.Get(rec.Number)
	assert.Equal(t, errno.ENOENT, e)
}

func TestEachVisitsInAscendingInodeOrder(t *testing.T) {
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	var nums []uint64
	s.Each(func(i *Inode) { nums = append(nums, i.Number) })
	for i := 1; i < len(nums); i++ {
		assert.Less(t, nums[i-1], nums[i])
	}
}

func TestReopenReplaysLog(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)
	rec, e := s.NewRegularFile(0, 0, 0o644)
	require.Zero(t, e)
	// Close the database without the checkpoint Close takes, so the
	// record is still only in the log and reopening has to replay it.
	require.NoError(t, s.db.Close())

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()
	got, e := s2.Get(rec.Number)
	require.Zero(t, e)
	assert.Equal(t, rec.Number, got.Number)
}
