package fd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
)

func TestNewTablePrepopulatesStandardStreams(t *testing.T) {
	tbl := NewTable(16)
	for i := 0; i < 3; i++ {
		d, e := tbl.Get(i)
		require.Zero(t, e)
		assert.Equal(t, KindStream, d.Kind)
		assert.Equal(t, i, d.Stream.StreamID)
	}
}

func TestGetNextFDSkipsOccupiedSlots(t *testing.T) {
	tbl := NewTable(8)
	res, e := tbl.GetNextFD(STARTINGFD)
	require.Zero(t, e)
	assert.Equal(t, 3, res.FD())
	res.Fill(&Descriptor{Kind: KindFile, AdvLock: &AdvLock{}})

	res2, e := tbl.GetNextFD(STARTINGFD)
	require.Zero(t, e)
	assert.Equal(t, 4, res2.FD())
	res2.Abort()
}

func TestGetNextFDReturnsENFILEWhenFull(t *testing.T) {
	tbl := NewTable(3)
	_, e := tbl.GetNextFD(STARTINGFD)
	assert.Equal(t, errno.ENFILE, e)
}

func TestTakeRemovesSlot(t *testing.T) {
	tbl := NewTable(8)
	d, e := tbl.Take(0)
	require.Zero(t, e)
	assert.NotNil(t, d)

	_, e = tbl.Take(0)
	assert.Equal(t, errno.EBADF, e)
}

func TestReserveEvictsExisting(t *testing.T) {
	tbl := NewTable(8)
	res, old, e := tbl.Reserve(1)
	require.Zero(t, e)
	assert.Equal(t, KindStream, old.Kind)
	res.Fill(&Descriptor{Kind: KindPipe, AdvLock: &AdvLock{}})

	d, e := tbl.Get(1)
	require.Zero(t, e)
	assert.Equal(t, KindPipe, d.Kind)
}

func TestAdvLockExclusiveExcludesAll(t *testing.T) {
	l := &AdvLock{}
	assert.True(t, l.TryLock(LockExclusive))
	assert.False(t, l.TryLock(LockShared))
	assert.False(t, l.TryLock(LockExclusive))
}

func TestAdvLockSharedStacks(t *testing.T) {
	l := &AdvLock{}
	assert.True(t, l.TryLock(LockShared))
	assert.True(t, l.TryLock(LockShared))
	assert.False(t, l.TryLock(LockExclusive))
	assert.Equal(t, LockShared, l.Mode())
}

func TestCloneCopiesBodiesIndependently(t *testing.T) {
	d := &Descriptor{Kind: KindFile, AdvLock: &AdvLock{}, File: &FileBody{Position: 5, Inode: 42}}
	c := d.Clone()
	c.File.Position = 99
	assert.Equal(t, int64(5), d.File.Position)
	assert.Equal(t, int64(99), c.File.Position)
}

func TestEachVisitsOnlyOccupiedInOrder(t *testing.T) {
	tbl := NewTable(8)
	var seen []int
	tbl.Each(func(fdNum int, d *Descriptor) { seen = append(seen, fdNum) })
	assert.Equal(t, []int{0, 1, 2}, seen)
}
