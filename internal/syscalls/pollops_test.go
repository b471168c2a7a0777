package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectReportsPipeReadinessAfterWrite(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, w, e := sc.Pipe(c, true)
	require.Zero(t, e)

	readyRead, readyWrite, e := sc.Select(c, []int{r}, []int{w})
	require.Zero(t, e)
	assert.Empty(t, readyRead)
	assert.Contains(t, readyWrite, w)

	_, e = sc.Write(c, w, []byte("x"), -1)
	require.Zero(t, e)

	readyRead, _, e = sc.Select(c, []int{r}, nil)
	require.Zero(t, e)
	assert.Contains(t, readyRead, r)
}

func TestPollFillsRevents(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, w, e := sc.Pipe(c, true)
	require.Zero(t, e)
	_, e = sc.Write(c, w, []byte("y"), -1)
	require.Zero(t, e)

	fds := []PollFD{{FD: r, Events: PollIn}}
	n, e := sc.Poll(c, fds)
	require.Zero(t, e)
	assert.Equal(t, 1, n)
	assert.NotZero(t, fds[0].Revents&PollIn)
}

func TestPollInvalidFDSetsNval(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	fds := []PollFD{{FD: 900, Events: PollIn}}
	n, e := sc.Poll(c, fds)
	require.Zero(t, e)
	assert.Equal(t, 0, n)
	assert.Equal(t, int16(PollNval), fds[0].Revents)
}

func TestEpollWaitReturnsRegisteredReadyEvent(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, w, e := sc.Pipe(c, true)
	require.Zero(t, e)
	_, e = sc.Write(c, w, []byte("z"), -1)
	require.Zero(t, e)

	epfd, e := sc.EpollCreate(c)
	require.Zero(t, e)
	require.Zero(t, sc.EpollCtl(c, epfd, EpollCtlAdd, r, PollIn, 0xABCD))

	events, e := sc.EpollWait(c, epfd, 8)
	require.Zero(t, e)
	require.Len(t, events, 1)
	assert.EqualValues(t, 0xABCD, events[0].Data)
}

func TestEpollCtlDelRemovesRegistration(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, w, e := sc.Pipe(c, true)
	require.Zero(t, e)
	_, e = sc.Write(c, w, []byte("q"), -1)
	require.Zero(t, e)

	epfd, e := sc.EpollCreate(c)
	require.Zero(t, e)
	require.Zero(t, sc.EpollCtl(c, epfd, EpollCtlAdd, r, PollIn, 1))
	require.Zero(t, sc.EpollCtl(c, epfd, EpollCtlDel, r, 0, 0))

	events, e := sc.EpollWait(c, epfd, 8)
	require.Zero(t, e)
	assert.Empty(t, events)
}
