// Package socket implements spec.md's C8: the AF_INET/AF_INET6 (host
// kernel-backed) and AF_UNIX (in-process, pipe-pair backed) socket
// state machine, port/rendezvous bookkeeping, and the readiness
// predicates select/poll/epoll_wait share.
package socket

import (
	"net"
	"sync"
	"time"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/pipe"
)

// Domain mirrors AF_UNIX / AF_INET / AF_INET6.
type Domain int

const (
	AFUnix Domain = iota
	AFInet
	AFInet6
)

// SockType mirrors SOCK_STREAM / SOCK_DGRAM.
type SockType int

const (
	SockStream SockType = iota
	SockDgram
)

// State is the per-handle connection state machine of spec.md §4.7.
type State int

const (
	NotConnected State = iota
	Listening
	Connected
	ConnWronly // shutdown(SHUT_RD)
	ConnRdonly // shutdown(SHUT_WR)
	InProgress // non-blocking INET connect pending
)

// Addr is a socket address: a UNIX path or an INET ip:port.
type Addr struct {
	Domain Domain
	Path   string // AF_UNIX
	IP     net.IP // AF_INET/6
	Port   uint16
}

// Handle is the shared, internally-locked socket object spec.md's
// Design Notes describe: multiple descriptors may reference one
// Handle via a refcounted back-pointer (fd.Descriptor.Socket).
type Handle struct {
	mu sync.RWMutex

	Domain Domain
	Type   SockType
	State  State

	LocalAddr  *Addr
	RemoteAddr *Addr

	// AF_UNIX transport: Send writes to the peer's receive pipe.
	SendPipe *pipe.Pipe
	RecvPipe *pipe.Pipe

	// AF_INET transport: host-delegated via the net package.
	Conn     net.Conn
	Listener net.Listener

	peekBuf []byte // MSG_PEEK re-push buffer, consulted before RecvPipe/Conn

	Opts Options

	refs int32
}

// Options is the getsockopt/setsockopt bitmap spec.md names.
type Options struct {
	ReusePort  bool
	ReuseAddr  bool
	Linger     int32 // seconds, -1 = disabled
	KeepAlive  bool
	SndBuf     int32
	RcvBuf     int32
	OOBInline  bool
}

func NewUnixHandle(typ SockType) *Handle {
	return &Handle{Domain: AFUnix, Type: typ, State: NotConnected, Opts: Options{Linger: -1, SndBuf: 65536, RcvBuf: 65536}, refs: 1}
}

func NewInetHandle(domain Domain, typ SockType) *Handle {
	return &Handle{Domain: domain, Type: typ, State: NotConnected, Opts: Options{Linger: -1, SndBuf: 65536, RcvBuf: 65536}, refs: 1}
}

func (h *Handle) IncRef() {
	h.mu.Lock()
	h.refs++
	h.mu.Unlock()
}

// DecRef drops a reference, closing the underlying transport when it
// reaches zero. Returns true if this call closed it.
func (h *Handle) DecRef() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refs--
	if h.refs > 0 {
		return false
	}
	if h.Conn != nil {
		h.Conn.Close()
	}
	if h.Listener != nil {
		h.Listener.Close()
	}
	return true
}

// Bind sets the local address. A second bind is EINVAL (spec.md: "one-shot").
func (h *Handle) Bind(addr *Addr) errno.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.LocalAddr != nil {
		return errno.EINVAL
	}
	h.LocalAddr = addr
	return 0
}

func (h *Handle) Shutdown(how int) errno.Errno {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch how {
	case ShutRD:
		h.State = ConnWronly
	case ShutWR:
		h.State = ConnRdonly
	case ShutRDWR:
		h.State = NotConnected
		h.LocalAddr = nil
	default:
		return errno.EINVAL
	}
	if h.Conn != nil {
		h.Conn.Close()
	}
	return 0
}

const (
	ShutRD = iota
	ShutWR
	ShutRDWR
)

// CanSend/CanRecv gate send()/recv() against the state machine.
func (h *Handle) CanSend() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.State == Connected || h.State == ConnWronly
}

func (h *Handle) CanRecv() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.State == Connected || h.State == ConnRdonly
}

// Send writes buf to the peer: the receive pipe for AF_UNIX, the host
// conn for AF_INET.
func (h *Handle) Send(buf []byte, nonblocking bool) (int, errno.Errno) {
	if !h.CanSend() {
		return 0, errno.ENOTCONN
	}
	if h.Domain == AFUnix {
		return h.SendPipe.Write(buf, nonblocking)
	}
	if nonblocking {
		h.Conn.SetWriteDeadline(time.Now())
	} else {
		h.Conn.SetWriteDeadline(time.Time{})
	}
	n, err := h.Conn.Write(buf)
	if err != nil {
		if isTimeout(err) {
			return n, errno.EAGAIN
		}
		return n, errno.FromHost(err)
	}
	return n, 0
}

// Recv reads into buf, honoring MSG_PEEK by re-pushing consumed bytes
// into peekBuf so the next call (peek or not) sees them first.
func (h *Handle) Recv(buf []byte, peek, nonblocking bool) (int, errno.Errno) {
	if !h.CanRecv() {
		return 0, errno.ENOTCONN
	}
	h.mu.Lock()
	if len(h.peekBuf) > 0 {
		n := copy(buf, h.peekBuf)
		if peek {
			h.mu.Unlock()
			return n, 0
		}
		h.peekBuf = h.peekBuf[n:]
		if n == len(buf) {
			h.mu.Unlock()
			return n, 0
		}
		buf = buf[n:]
		h.mu.Unlock()
		more, e := h.recvRaw(buf, nonblocking)
		return n + more, e
	}
	h.mu.Unlock()

	n, e := h.recvRaw(buf, nonblocking)
	if e != 0 {
		return n, e
	}
	if peek && n > 0 {
		h.mu.Lock()
		h.peekBuf = append(h.peekBuf, buf[:n]...)
		h.mu.Unlock()
	}
	return n, 0
}

func (h *Handle) recvRaw(buf []byte, nonblocking bool) (int, errno.Errno) {
	if h.Domain == AFUnix {
		return h.RecvPipe.Read(buf, nonblocking)
	}
	if nonblocking {
		h.Conn.SetReadDeadline(time.Now())
	} else {
		h.Conn.SetReadDeadline(time.Time{})
	}
	n, err := h.Conn.Read(buf)
	if err != nil {
		if isTimeout(err) {
			return n, errno.EAGAIN
		}
		return n, errno.FromHost(err)
	}
	return n, 0
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if te, ok := err.(timeouter); ok {
		return te.Timeout()
	}
	return false
}

// CheckReadable/CheckWritable are the per-domain readiness predicates
// select/poll/epoll_wait share (spec.md §4.7).
func (h *Handle) CheckReadable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	switch h.Domain {
	case AFUnix:
		if h.State == Listening {
			return false // rendezvous table checked separately by caller
		}
		return len(h.peekBuf) > 0 || (h.RecvPipe != nil && h.RecvPipe.CheckSelectRead())
	default:
		if h.Listener != nil {
			return pendingAccept(h.Listener)
		}
		if h.Conn == nil {
			return false
		}
		return connReadable(h.Conn)
	}
}

func (h *Handle) CheckWritable() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.State != Connected && h.State != ConnWronly {
		return false
	}
	if h.Domain == AFUnix {
		return h.SendPipe != nil && h.SendPipe.CheckSelectWrite()
	}
	return true
}
