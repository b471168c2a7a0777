package procsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
)

func TestSemaphorePostWait(t *testing.T) {
	s := NewSemaphore(0)
	assert.Equal(t, 0, s.Value())
	s.Post()
	assert.Equal(t, 1, s.Value())
	require.Zero(t, s.Wait(true))
	assert.Equal(t, 0, s.Value())
}

func TestSemaphoreNonblockingWaitOnZeroReturnsEAGAIN(t *testing.T) {
	s := NewSemaphore(0)
	assert.Equal(t, errno.EAGAIN, s.Wait(true))
}

func TestSemaphoreBlockingWaitWakesOnPost(t *testing.T) {
	s := NewSemaphore(0)
	done := make(chan errno.Errno, 1)
	go func() { done <- s.Wait(false) }()

	time.Sleep(20 * time.Millisecond)
	s.Post()

	select {
	case e := <-done:
		assert.Zero(t, e)
	case <-time.After(time.Second):
		t.Fatal("Wait never woke after Post")
	}
}

func TestCancelFlagSetClear(t *testing.T) {
	var f CancelFlag
	assert.False(t, f.IsSet())
	f.Set()
	assert.True(t, f.IsSet())
	f.Clear()
	assert.False(t, f.IsSet())
}

func TestCondVarTimedWaitTimesOut(t *testing.T) {
	cv := NewCondVar()
	cv.Lock()
	defer cv.Unlock()
	e := cv.TimedWait(30*time.Millisecond, nil)
	assert.Equal(t, errno.ETIMEDOUT, e)
}

func TestCondVarTimedWaitCancelled(t *testing.T) {
	cv := NewCondVar()
	var cancel CancelFlag
	cancel.Set()
	cv.Lock()
	defer cv.Unlock()
	e := cv.TimedWait(time.Second, &cancel)
	assert.Equal(t, errno.EINTR, e)
}

func TestCondVarTimedWaitWokenBySignal(t *testing.T) {
	cv := NewCondVar()
	go func() {
		time.Sleep(20 * time.Millisecond)
		cv.Lock()
		cv.Signal()
		cv.Unlock()
	}()
	cv.Lock()
	defer cv.Unlock()
	e := cv.TimedWait(time.Second, nil)
	assert.Zero(t, e)
}

func TestSlotTableReusesDestroyedSlots(t *testing.T) {
	tbl := &SlotTable[Mutex]{}
	idx0 := tbl.Create(&Mutex{})
	idx1 := tbl.Create(&Mutex{})
	require.Zero(t, tbl.Destroy(idx0))

	idx2 := tbl.Create(&Mutex{})
	assert.Equal(t, idx0, idx2)
	assert.NotEqual(t, idx1, idx2)
}

func TestSlotTableGetUnknownReturnsEINVAL(t *testing.T) {
	tbl := &SlotTable[Mutex]{}
	_, e := tbl.Get(5)
	assert.Equal(t, errno.EINVAL, e)
}

func TestSlotTableCreateAtGrowsWithNils(t *testing.T) {
	tbl := &SlotTable[Mutex]{}
	tbl.CreateAt(3, &Mutex{})
	_, e := tbl.Get(0)
	assert.Equal(t, errno.EINVAL, e)
	m, e := tbl.Get(3)
	require.Zero(t, e)
	assert.NotNil(t, m)
}

func TestSlotTableEachSkipsNilSlots(t *testing.T) {
	tbl := &SlotTable[Mutex]{}
	tbl.CreateAt(0, &Mutex{})
	tbl.CreateAt(2, &Mutex{})
	var seen []int
	tbl.Each(func(idx int, v *Mutex) { seen = append(seen, idx) })
	assert.Equal(t, []int{0, 2}, seen)
}
