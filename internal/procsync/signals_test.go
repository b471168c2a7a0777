package procsync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
)

func TestSigMaskSetClearHas(t *testing.T) {
	var m SigMask
	m = m.Set(SIGUSR1)
	assert.True(t, m.Has(SIGUSR1))
	assert.False(t, m.Has(SIGUSR2))
	m = m.Clear(SIGUSR1)
	assert.False(t, m.Has(SIGUSR1))
}

func TestSigactionRejectsSigkillSigstop(t *testing.T) {
	s := NewSignalState()
	assert.Equal(t, errno.EINVAL, s.Sigaction(SIGKILL, Handler{Ignore: true}))
	assert.Equal(t, errno.EINVAL, s.Sigaction(SIGSTOP, Handler{Ignore: true}))
}

func TestSigactionInstallsAndRetrieves(t *testing.T) {
	s := NewSignalState()
	require.Zero(t, s.Sigaction(SIGUSR1, Handler{Ignore: true}))
	h, ok := s.Handler(SIGUSR1)
	require.True(t, ok)
	assert.True(t, h.Ignore)
}

func TestRaiseBlockedSignalQueuesInsteadOfDelivering(t *testing.T) {
	s := NewSignalState()
	s.Sigprocmask(0, SigBlock, SigMask(0).Set(SIGUSR1), true)

	deliverNow := s.Raise(0, SIGUSR1)
	assert.False(t, deliverNow)
	assert.True(t, s.Pending(0).Has(SIGUSR1))
}

func TestRaiseUnblockedSignalDeliversImmediately(t *testing.T) {
	s := NewSignalState()
	deliverNow := s.Raise(0, SIGTERM)
	assert.True(t, deliverNow)
	assert.False(t, s.Pending(0).Has(SIGTERM))
}

func TestSigprocmaskUnblockRedeliversPending(t *testing.T) {
	s := NewSignalState()
	s.Sigprocmask(0, SigBlock, SigMask(0).Set(SIGUSR2), true)
	s.Raise(0, SIGUSR2)

	_, redeliver := s.Sigprocmask(0, SigUnblock, SigMask(0).Set(SIGUSR2), true)
	require.Len(t, redeliver, 1)
	assert.Equal(t, SIGUSR2, redeliver[0])
	assert.False(t, s.Pending(0).Has(SIGUSR2))
}

func TestCloneForForkCarriesHandlersAndMainThreadMaskOnly(t *testing.T) {
	s := NewSignalState()
	require.Zero(t, s.Sigaction(SIGUSR1, Handler{Ignore: true}))
	s.Sigprocmask(0, SigBlock, SigMask(0).Set(SIGUSR1), true)
	s.Sigprocmask(7, SigBlock, SigMask(0).Set(SIGTERM), true)

	child := s.CloneForFork()
	h, ok := child.Handler(SIGUSR1)
	require.True(t, ok)
	assert.True(t, h.Ignore)
	assert.True(t, child.masks[0].Has(SIGUSR1))
	assert.False(t, child.masks[7].Has(SIGTERM))
}
