// Package errno implements the POSIX error taxonomy the dispatcher
// surfaces to guests: every syscall-shaped method returns either a
// non-negative result or a negative errno, never a language exception.
package errno

import (
	"fmt"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Errno is a POSIX error number. It implements the error interface so
// it composes with github.com/pkg/errors.Wrap at call sites that need
// extra context before the number reaches the guest.
type Errno int

// Fixed codes used throughout the microvisor. Values match Linux/x86
// numbering, since spec.md ties them to an external numeric contract.
const (
	EPERM   Errno = 1
	ENOENT  Errno = 2
	EBADF   Errno = 9
	EAGAIN  Errno = 11
	ENOMEM  Errno = 12
	EACCES  Errno = 13
	EEXIST  Errno = 17
	ENOTDIR Errno = 20
	EISDIR  Errno = 21
	EINVAL  Errno = 22
	ENFILE  Errno = 23
	EMFILE  Errno = 24
	ENOTTY  Errno = 25
	EFBIG   Errno = 27
	ENOSPC  Errno = 28
	ESPIPE  Errno = 29
	EPIPE   Errno = 32
	ENAMETOOLONG Errno = 36
	ENOSYS       Errno = 38
	ENOTEMPTY    Errno = 39

	ENOTSOCK       Errno = 88
	EOPNOTSUPP     Errno = 95
	EAFNOSUPPORT   Errno = 97
	EADDRINUSE     Errno = 98
	EADDRNOTAVAIL  Errno = 99
	ENETDOWN       Errno = 100
	ENOBUFS        Errno = 105
	EISCONN        Errno = 106
	ENOTCONN       Errno = 107
	ESHUTDOWN      Errno = 108
	ETIMEDOUT      Errno = 110
	ECONNREFUSED   Errno = 111
	EINPROGRESS    Errno = 115
	ECONNRESET     Errno = 104

	EINTR  Errno = 4
	EBUSY  Errno = 16
	EXDEV  Errno = 18
	ENXIO  Errno = 6
	ESRCH  Errno = 3
	ECHILD Errno = 10
	EWOULDBLOCK = EAGAIN
)

func (e Errno) Error() string {
	if s, ok := names[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}

// Negative renders the dispatcher-facing return value: -errno.
func (e Errno) Negative() int64 { return -int64(e) }

var names = map[Errno]string{
	EPERM: "EPERM", ENOENT: "ENOENT", EBADF: "EBADF", EAGAIN: "EAGAIN",
	ENOMEM: "ENOMEM", EACCES: "EACCES", EEXIST: "EEXIST", ENOTDIR: "ENOTDIR",
	EISDIR: "EISDIR", EINVAL: "EINVAL", ENFILE: "ENFILE", EMFILE: "EMFILE",
	ENOTTY: "ENOTTY", EFBIG: "EFBIG", ENOSPC: "ENOSPC", ESPIPE: "ESPIPE",
	EPIPE: "EPIPE", ENAMETOOLONG: "ENAMETOOLONG", ENOSYS: "ENOSYS",
	ENOTEMPTY: "ENOTEMPTY", ENOTSOCK: "ENOTSOCK", EOPNOTSUPP: "EOPNOTSUPP",
	EAFNOSUPPORT: "EAFNOSUPPORT", EADDRINUSE: "EADDRINUSE",
	EADDRNOTAVAIL: "EADDRNOTAVAIL", ENETDOWN: "ENETDOWN", ENOBUFS: "ENOBUFS",
	EISCONN: "EISCONN", ENOTCONN: "ENOTCONN", ESHUTDOWN: "ESHUTDOWN",
	ETIMEDOUT: "ETIMEDOUT", ECONNREFUSED: "ECONNREFUSED",
	EINPROGRESS: "EINPROGRESS", ECONNRESET: "ECONNRESET", EINTR: "EINTR",
	EBUSY: "EBUSY", EXDEV: "EXDEV", ENXIO: "ENXIO", ESRCH: "ESRCH",
	ECHILD: "ECHILD",
}

// FromHost translates an error returned by a host syscall/os call into
// an Errno, per spec.md §7's "host-translated" taxonomy row. Non-errno
// errors (e.g. a closed file already wrapped by os.PathError) are
// unwrapped first.
func FromHost(err error) Errno {
	if err == nil {
		return 0
	}
	cause := errors.Cause(err)
	if pe, ok := cause.(*os.PathError); ok {
		cause = pe.Err
	}
	if le, ok := cause.(*os.LinkError); ok {
		cause = le.Err
	}
	if se, ok := cause.(syscall.Errno); ok {
		if e, ok := fromSyscall[se]; ok {
			return e
		}
		return EINVAL
	}
	if os.IsNotExist(cause) {
		return ENOENT
	}
	if os.IsExist(cause) {
		return EEXIST
	}
	if os.IsPermission(cause) {
		return EACCES
	}
	return EINVAL
}

var fromSyscall = map[syscall.Errno]Errno{
	syscall.EPERM: EPERM, syscall.ENOENT: ENOENT, syscall.EBADF: EBADF,
	syscall.EAGAIN: EAGAIN, syscall.ENOMEM: ENOMEM, syscall.EACCES: EACCES,
	syscall.EEXIST: EEXIST, syscall.ENOTDIR: ENOTDIR, syscall.EISDIR: EISDIR,
	syscall.EINVAL: EINVAL, syscall.ENFILE: ENFILE, syscall.EMFILE: EMFILE,
	syscall.ENOTTY: ENOTTY, syscall.EFBIG: EFBIG, syscall.ENOSPC: ENOSPC,
	syscall.ESPIPE: ESPIPE, syscall.EPIPE: EPIPE,
	syscall.ENAMETOOLONG: ENAMETOOLONG, syscall.ENOSYS: ENOSYS,
	syscall.ENOTEMPTY: ENOTEMPTY, syscall.ENOTSOCK: ENOTSOCK,
	syscall.EOPNOTSUPP: EOPNOTSUPP, syscall.EAFNOSUPPORT: EAFNOSUPPORT,
	syscall.EADDRINUSE: EADDRINUSE, syscall.EADDRNOTAVAIL: EADDRNOTAVAIL,
	syscall.ENETDOWN: ENETDOWN, syscall.ENOBUFS: ENOBUFS,
	syscall.EISCONN: EISCONN, syscall.ENOTCONN: ENOTCONN,
	syscall.ESHUTDOWN: ESHUTDOWN, syscall.ETIMEDOUT: ETIMEDOUT,
	syscall.ECONNREFUSED: ECONNREFUSED, syscall.EINPROGRESS: EINPROGRESS,
	syscall.ECONNRESET: ECONNRESET, syscall.EINTR: EINTR,
	syscall.EBUSY: EBUSY, syscall.EXDEV: EXDEV, syscall.ENXIO: ENXIO,
	syscall.ESRCH: ESRCH, syscall.ECHILD: ECHILD,
}
