package path

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/inode"
)

func TestNormalizeAbsolute(t *testing.T) {
	assert.Equal(t, "/a/b", Normalize("/x", "/a/b"))
}

func TestNormalizeRelativeToCwd(t *testing.T) {
	assert.Equal(t, "/x/y/z", Normalize("/x/y", "z"))
}

func TestNormalizeDotDotClimbsAboveCwd(t *testing.T) {
	assert.Equal(t, "/x", Normalize("/x/y", ".."))
}

func TestNormalizeDotDotAtRootStaysAtRoot(t *testing.T) {
	assert.Equal(t, "/", Normalize("/", ".."))
}

func TestNormalizeEmptyIsCwd(t *testing.T) {
	assert.Equal(t, "/x/y", Normalize("/x/y", ""))
}

func TestSplitRoot(t *testing.T) {
	dir, name := Split("/")
	assert.Equal(t, "/", dir)
	assert.Equal(t, "", name)
}

func TestSplitNested(t *testing.T) {
	dir, name := Split("/a/b/c")
	assert.Equal(t, "/a/b", dir)
	assert.Equal(t, "c", name)
}

func TestSplitTopLevel(t *testing.T) {
	dir, name := Split("/a")
	assert.Equal(t, "/", dir)
	assert.Equal(t, "a", name)
}

func TestWalkRootAndDev(t *testing.T) {
	store, err := inode.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ino, e := Walk(store, "/")
	require.Zero(t, e)
	assert.EqualValues(t, inode.RootIno, ino)

	ino, e = Walk(store, "/dev/null")
	require.Zero(t, e)
	assert.EqualValues(t, inode.DevNullIno, ino)
}

func TestWalkMissingComponentReturnsENOENT(t *testing.T) {
	store, err := inode.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, e := Walk(store, "/nope/at/all")
	assert.Equal(t, errno.ENOENT, e)
}

func TestWalkThroughNonDirReturnsENOTDIR(t *testing.T) {
	store, err := inode.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	_, e := Walk(store, "/dev/null/x")
	assert.Equal(t, errno.ENOTDIR, e)
}

func TestWalkParentOnAbsentChild(t *testing.T) {
	store, err := inode.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	child, parent, e := WalkParent(store, "/dev/ghost")
	require.Zero(t, e)
	assert.EqualValues(t, 0, child)
	assert.EqualValues(t, inode.DevIno, parent)
}
