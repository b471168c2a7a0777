package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/procsync"
)

func TestFcntlSetflMergesStatusFlagsPreservingCloexec(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	fdNum, e := sc.Open(c, "/fl.txt", OCreat|OWronly, 0o644)
	require.Zero(t, e)

	_, e = sc.Fcntl(c, fdNum, FSetfd, 1)
	require.Zero(t, e)

	_, e = sc.Fcntl(c, fdNum, FSetfl, ONonblock)
	require.Zero(t, e)

	got, e := sc.Fcntl(c, fdNum, FGetfl, 0)
	require.Zero(t, e)
	assert.Equal(t, int32(ONonblock), got)

	cloexec, e := sc.Fcntl(c, fdNum, FGetfd, 0)
	require.Zero(t, e)
	assert.EqualValues(t, 1, cloexec)
}

func TestFcntlSetflReplacesStatusFlagsNotAdds(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	fdNum, e := sc.Open(c, "/fl2.txt", OCreat|OWronly|OAppend, 0o644)
	require.Zero(t, e)

	got, e := sc.Fcntl(c, fdNum, FGetfl, 0)
	require.Zero(t, e)
	assert.Equal(t, int32(OAppend), got)

	_, e = sc.Fcntl(c, fdNum, FSetfl, ONonblock)
	require.Zero(t, e)

	got, e = sc.Fcntl(c, fdNum, FGetfl, 0)
	require.Zero(t, e)
	assert.Equal(t, int32(ONonblock), got)
}

func TestIoctlFionbioTogglesNonblockAndMakesReadEAGAIN(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, _, e := sc.Pipe(c, false)
	require.Zero(t, e)

	require.Zero(t, sc.Ioctl(c, r, FIONBIO, 1))

	_, e = sc.Read(c, r, make([]byte, 1), -1)
	assert.Equal(t, errno.EAGAIN, e)
}

func TestIoctlFioasyncSetsAsyncFlag(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, _, e := sc.Pipe(c, false)
	require.Zero(t, e)

	require.Zero(t, sc.Ioctl(c, r, FIOASYNC, 1))
	d, e := c.Files.Get(r)
	require.Zero(t, e)
	assert.NotZero(t, d.Flags&0x8) // fd.FlagAsync
}

func TestIoctlUnknownRequestReturnsENOTTY(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, _, e := sc.Pipe(c, false)
	require.Zero(t, e)

	assert.Equal(t, errno.ENOTTY, sc.Ioctl(c, r, 0x1234, 0))
}

func TestWriteToPipeWithoutReadersRaisesSigpipe(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	c, e := mv.Cages.Get(1)
	require.Zero(t, e)

	r, w, e := sc.Pipe(c, false)
	require.Zero(t, e)
	require.Zero(t, sc.Close(c, r))

	delivered := false
	require.Zero(t, c.Signals.Sigaction(procsync.SIGPIPE, procsync.Handler{
		Handle: func(sig int) { delivered = true },
	}))

	_, e = sc.Write(c, w, []byte("x"), -1)
	assert.Equal(t, errno.EPIPE, e)
	assert.True(t, delivered)
}
