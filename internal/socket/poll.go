package socket

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/lind-project/lind-go/internal/errno"
)

// hostSelect polls a host fd for read or write readiness with a
// zero-timeout unix.Select, the mechanism spec.md's §4.7 calls for when delegating
// INET readiness to "a host select over the host fds."
func hostSelect(fd int, forWrite bool) bool {
	var rfds, wfds unix.FdSet
	set := &rfds
	if forWrite {
		set = &wfds
	}
	set.Set(fd)
	tv := unix.Timeval{}
	n, err := unix.Select(fd+1, &rfds, &wfds, nil, &tv)
	return err == nil && n > 0
}

func withRawFD(sc interface{ SyscallConn() (syscall.RawConn, error) }, fn func(fd int) bool) bool {
	raw, err := sc.SyscallConn()
	if err != nil {
		return false
	}
	result := false
	raw.Control(func(fd uintptr) {
		result = fn(int(fd))
	})
	return result
}

func connReadable(conn net.Conn) bool {
	sc, ok := conn.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return true
	}
	return withRawFD(sc, func(fd int) bool { return hostSelect(fd, false) })
}

func pendingAccept(l net.Listener) bool {
	sc, ok := l.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return false
	}
	return withRawFD(sc, func(fd int) bool { return hostSelect(fd, false) })
}

// Accept pops a queued connection on a Listener, non-blocking if
// requested (spec.md's "call host accept blocking or non-blocking per
// flags").
func Accept(l net.Listener, nonblocking bool) (net.Conn, errno.Errno) {
	if nonblocking && !pendingAccept(l) {
		return nil, errno.EAGAIN
	}
	conn, err := l.Accept()
	if err != nil {
		return nil, errno.FromHost(err)
	}
	return conn, 0
}
