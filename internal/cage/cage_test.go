package cage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/procsync"
)

func TestNewCageHasUninitializedIdentity(t *testing.T) {
	c := New(1, 0, 1, 16)
	assert.Equal(t, uninitializedIdentity, c.Identity.UID)
	assert.Equal(t, uninitializedIdentity, c.Identity.EGID)
}

func TestSemaphoreLazyCreateIsStable(t *testing.T) {
	c := New(1, 0, 1, 16)
	s1 := c.Semaphore(0x1000)
	s2 := c.Semaphore(0x1000)
	assert.Same(t, s1, s2)
}

func TestSetSemaphoreOverwritesLazy(t *testing.T) {
	c := New(1, 0, 1, 16)
	lazy := c.Semaphore(0x2000)
	shared := procsync.NewSemaphore(0)
	c.SetSemaphore(0x2000, shared)
	got := c.Semaphore(0x2000)
	assert.Same(t, shared, got)
	assert.NotSame(t, lazy, got)
}

func TestShmMappingAddRemove(t *testing.T) {
	c := New(1, 0, 1, 16)
	c.AddShmMapping(0x4000, 7)
	c.AddShmMapping(0x5000, 8)

	id, ok := c.RemoveShmMapping(0x4000)
	require.True(t, ok)
	assert.Equal(t, 7, id)

	_, ok = c.RemoveShmMapping(0x4000)
	assert.False(t, ok)

	var remaining []ShmMapping
	c.EachShmMapping(func(m ShmMapping) { remaining = append(remaining, m) })
	require.Len(t, remaining, 1)
	assert.Equal(t, 8, remaining[0].ShmID)
}

func TestTableAllocIDMonotonic(t *testing.T) {
	tbl := NewTable()
	a := tbl.AllocID()
	b := tbl.AllocID()
	assert.Greater(t, b, a)
}

func TestTableGetMissingReturnsESRCH(t *testing.T) {
	tbl := NewTable()
	_, e := tbl.Get(42)
	assert.Equal(t, errno.ESRCH, e)
}

func TestTableInsertRemove(t *testing.T) {
	tbl := NewTable()
	c := New(tbl.AllocID(), 0, 1, 16)
	tbl.Insert(c)
	assert.Equal(t, 1, tbl.Len())

	got, e := tbl.Get(c.ID)
	require.Zero(t, e)
	assert.Same(t, c, got)

	tbl.Remove(c.ID)
	assert.Equal(t, 0, tbl.Len())
}

func TestTableEachSnapshotsLiveCages(t *testing.T) {
	tbl := NewTable()
	for i := 0; i < 3; i++ {
		tbl.Insert(New(tbl.AllocID(), 0, 1, 16))
	}
	count := 0
	tbl.Each(func(c *Cage) { count++ })
	assert.Equal(t, 3, count)
}
