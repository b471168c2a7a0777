package socket

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/pipe"
)

func connectedUnixPair() (*Handle, *Handle) {
	a := NewUnixHandle(SockStream)
	b := NewUnixHandle(SockStream)
	ab := pipe.New(4096)
	ba := pipe.New(4096)
	a.SendPipe, a.RecvPipe = ab, ba
	b.SendPipe, b.RecvPipe = ba, ab
	a.State, b.State = Connected, Connected
	return a, b
}

func TestBindTwiceReturnsEINVAL(t *testing.T) {
	h := NewUnixHandle(SockStream)
	require.Zero(t, h.Bind(&Addr{Domain: AFUnix, Path: "/s1"}))
	assert.Equal(t, errno.EINVAL, h.Bind(&Addr{Domain: AFUnix, Path: "/s2"}))
}

func TestSendRecvUnixPair(t *testing.T) {
	a, b := connectedUnixPair()
	n, e := a.Send([]byte("hello"), false)
	require.Zero(t, e)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, e = b.Recv(buf, false, false)
	require.Zero(t, e)
	assert.Equal(t, "hello", string(buf))
}

func TestRecvWithPeekDoesNotConsume(t *testing.T) {
	a, b := connectedUnixPair()
	_, e := a.Send([]byte("peekme"), false)
	require.Zero(t, e)

	buf := make([]byte, 6)
	n, e := b.Recv(buf, true, false)
	require.Zero(t, e)
	assert.Equal(t, "peekme", string(buf))

	buf2 := make([]byte, 6)
	n, e = b.Recv(buf2, false, false)
	require.Zero(t, e)
	assert.Equal(t, 6, n)
	assert.Equal(t, "peekme", string(buf2))
}

func TestCanSendCanRecvGatedByState(t *testing.T) {
	h := NewUnixHandle(SockStream)
	assert.False(t, h.CanSend())
	assert.False(t, h.CanRecv())
	h.State = Connected
	assert.True(t, h.CanSend())
	assert.True(t, h.CanRecv())
}

func TestShutdownRDWRResetsState(t *testing.T) {
	a, _ := connectedUnixPair()
	require.Zero(t, a.Bind(&Addr{Domain: AFUnix, Path: "/x"}))
	require.Zero(t, a.Shutdown(ShutRDWR))
	assert.Equal(t, NotConnected, a.State)
	assert.Nil(t, a.LocalAddr)
}

func TestCheckWritableRespectsState(t *testing.T) {
	a, _ := connectedUnixPair()
	assert.True(t, a.CheckWritable())
	a.State = ConnRdonly
	assert.False(t, a.CheckWritable())
}

func TestDecRefClosesOnLastReference(t *testing.T) {
	h := NewUnixHandle(SockStream)
	h.IncRef()
	assert.False(t, h.DecRef())
	assert.True(t, h.DecRef())
}
