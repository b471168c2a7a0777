package errno

import (
	"os"
	"syscall"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNegativeRendersDispatcherValue(t *testing.T) {
	assert.Equal(t, int64(-2), ENOENT.Negative())
	assert.Equal(t, int64(0), Errno(0).Negative())
}

func TestErrorStringKnownAndUnknown(t *testing.T) {
	assert.Equal(t, "ENOENT", ENOENT.Error())
	assert.Equal(t, "errno 9999", Errno(9999).Error())
}

func TestFromHostNil(t *testing.T) {
	assert.Equal(t, Errno(0), FromHost(nil))
}

func TestFromHostSyscallErrno(t *testing.T) {
	assert.Equal(t, EACCES, FromHost(syscall.EACCES))
	assert.Equal(t, EINVAL, FromHost(syscall.Errno(0xdead)))
}

func TestFromHostPathError(t *testing.T) {
	err := &os.PathError{Op: "open", Path: "/x", Err: syscall.ENOENT}
	assert.Equal(t, ENOENT, FromHost(err))
}

func TestFromHostWrappedError(t *testing.T) {
	wrapped := errors.Wrap(syscall.EEXIST, "creating thing")
	require.Error(t, wrapped)
	assert.Equal(t, EEXIST, FromHost(wrapped))
}

func TestFromHostOsNotExist(t *testing.T) {
	_, err := os.Open("/does/not/exist/at/all")
	require.Error(t, err)
	assert.Equal(t, ENOENT, FromHost(err))
}
