package pipe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
)

func TestWriteReadRoundTrip(t *testing.T) {
	p := New(16)
	n, e := p.Write([]byte("hello"), false)
	require.Zero(t, e)
	assert.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, e = p.Read(buf, false)
	require.Zero(t, e)
	assert.Equal(t, 5, n)
	assert.Equal(t, "hello", string(buf))
}

func TestNonblockingWriteFullReturnsEAGAIN(t *testing.T) {
	p := New(4)
	n, e := p.Write([]byte("abcd"), true)
	require.Zero(t, e)
	assert.Equal(t, 4, n)

	n, e = p.Write([]byte("e"), true)
	assert.Equal(t, errno.EAGAIN, e)
	assert.Zero(t, n)
}

func TestNonblockingReadEmptyReturnsEAGAIN(t *testing.T) {
	p := New(4)
	buf := make([]byte, 1)
	n, e := p.Read(buf, true)
	assert.Equal(t, errno.EAGAIN, e)
	assert.Zero(t, n)
}

func TestLastWriterDecRefSetsEOF(t *testing.T) {
	p := New(4)
	p.DecRef(true)
	buf := make([]byte, 1)
	n, e := p.Read(buf, false)
	assert.Zero(t, e)
	assert.Zero(t, n)
	assert.True(t, p.CheckSelectRead())
}

func TestLastReaderDecRefCausesEPIPE(t *testing.T) {
	p := New(4)
	p.DecRef(false)
	n, e := p.Write([]byte("x"), false)
	assert.Equal(t, errno.EPIPE, e)
	assert.Zero(t, n)
}

func TestByteConservationAcrossRingWrap(t *testing.T) {
	p := New(4)
	// Write and drain three bytes three times on a 4-byte ring so the
	// ring index wraps, then
	// verify total bytes pushed equals total bytes popped (spec.md §8's
	// pipe byte-conservation property).
	var written, read int
	for i := 0; i < 3; i++ {
		n, e := p.Write([]byte{1, 2, 3}, true)
		require.Zero(t, e)
		written += n
		buf := make([]byte, 3)
		m, e := p.Read(buf, true)
		require.Zero(t, e)
		read += m
	}
	assert.Equal(t, written, read)
}

func TestWritevStopsOnEAGAINPartway(t *testing.T) {
	p := New(4)
	n, e := p.Writev([][]byte{{1, 2}, {3, 4}, {5, 6}}, true)
	require.Zero(t, e)
	assert.Equal(t, 4, n)
}
