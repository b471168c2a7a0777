package microvisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/inode"
	"github.com/lind-project/lind-go/internal/lindconfig"
)

func newTestMicrovisor(t *testing.T) *Microvisor {
	t.Helper()
	store, err := inode.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(lindconfig.DefaultConfig(), store)
}

func TestNewRegistersRootCage(t *testing.T) {
	mv := newTestMicrovisor(t)
	root, e := mv.Cages.Get(1)
	require.Zero(t, e)
	assert.EqualValues(t, inode.RootIno, root.Cwd)
	assert.EqualValues(t, 1, mv.Store.RefCount(inode.RootIno))
}

func TestForkProducesIndependentCageSharingCwdRef(t *testing.T) {
	mv := newTestMicrovisor(t)
	child, e := mv.Fork(1)
	require.Zero(t, e)
	assert.NotEqual(t, int64(1), child.ID)
	assert.EqualValues(t, 1, child.ParentID)
	assert.EqualValues(t, inode.RootIno, child.Cwd)
	assert.EqualValues(t, 2, mv.Store.RefCount(inode.RootIno))
}

func TestForkUnknownParentReturnsESRCH(t *testing.T) {
	mv := newTestMicrovisor(t)
	_, e := mv.Fork(999)
	assert.Equal(t, errno.ESRCH, e)
}

func TestExitRemovesCageAndDecrefsCwd(t *testing.T) {
	mv := newTestMicrovisor(t)
	child, e := mv.Fork(1)
	require.Zero(t, e)

	require.Zero(t, mv.Exit(child.ID, 0))
	_, e = mv.Cages.Get(child.ID)
	assert.Equal(t, errno.ESRCH, e)
	assert.EqualValues(t, 1, mv.Store.RefCount(inode.RootIno))
}

func TestExecKeepsSameIDFreshState(t *testing.T) {
	mv := newTestMicrovisor(t)
	fresh, e := mv.Exec(1)
	require.Zero(t, e)
	assert.EqualValues(t, 1, fresh.ID)

	got, e := mv.Cages.Get(1)
	require.Zero(t, e)
	assert.Same(t, fresh, got)
}
