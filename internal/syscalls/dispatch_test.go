package syscalls

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchUnknownCallReturnsMinusOne(t *testing.T) {
	_, sc := newTestMicrovisor(t)
	res := sc.Dispatch(1, Request{CallNum: 99999})
	assert.EqualValues(t, -1, res.Ret)
}

func TestDispatchUnknownCageReturnsESRCH(t *testing.T) {
	_, sc := newTestMicrovisor(t)
	res := sc.Dispatch(999, Request{CallNum: CallGetpid})
	assert.Equal(t, int64(-3), res.Ret)
}

func TestDispatchOpenWriteReadCloseRoundTrip(t *testing.T) {
	_, sc := newTestMicrovisor(t)

	openRes := sc.Dispatch(1, Request{CallNum: CallOpen, Path: "/d.txt", Flags: OCreat | ORdwr, Mode: 0o644})
	require.GreaterOrEqual(t, openRes.Ret, int64(0))
	fdNum := openRes.Ret

	writeRes := sc.Dispatch(1, Request{CallNum: CallWrite, Int1: fdNum, Buf: []byte("payload")})
	require.GreaterOrEqual(t, writeRes.Ret, int64(0))
	assert.EqualValues(t, 7, writeRes.Ret)

	seekRes := sc.Dispatch(1, Request{CallNum: CallLseek, Int1: fdNum, Int2: 0, Int3: 0})
	require.GreaterOrEqual(t, seekRes.Ret, int64(0))

	readRes := sc.Dispatch(1, Request{CallNum: CallRead, Int1: fdNum, Buf: make([]byte, 7)})
	require.GreaterOrEqual(t, readRes.Ret, int64(0))
	assert.Equal(t, "payload", string(readRes.Buf))

	closeRes := sc.Dispatch(1, Request{CallNum: CallClose, Int1: fdNum})
	assert.EqualValues(t, 0, closeRes.Ret)
}

func TestDispatchGetpidGetppid(t *testing.T) {
	_, sc := newTestMicrovisor(t)
	res := sc.Dispatch(1, Request{CallNum: CallGetpid})
	assert.EqualValues(t, 1, res.Ret)

	res = sc.Dispatch(1, Request{CallNum: CallGetppid})
	assert.EqualValues(t, 0, res.Ret)
}

func TestDispatchForkProducesNewCage(t *testing.T) {
	mv, sc := newTestMicrovisor(t)
	res := sc.Dispatch(1, Request{CallNum: CallFork})
	require.GreaterOrEqual(t, res.Ret, int64(0))
	_, e := mv.Cages.Get(res.Ret)
	require.Zero(t, e)
}

func TestDispatchUnsupportedSocketIntrospectionReturnsEOPNOTSUPP(t *testing.T) {
	_, sc := newTestMicrovisor(t)
	res := sc.Dispatch(1, Request{CallNum: CallGetpeername, Int1: 0})
	assert.EqualValues(t, -95, res.Ret)
}
