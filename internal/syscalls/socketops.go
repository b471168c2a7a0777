package syscalls

import (
	"net"
	"strconv"

	"github.com/lind-project/lind-go/internal/cage"
	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/fd"
	"github.com/lind-project/lind-go/internal/hostshim"
	"github.com/lind-project/lind-go/internal/inode"
	"github.com/lind-project/lind-go/internal/socket"
)

func installSocketFD(c *cage.Cage, h *socket.Handle) (int, errno.Errno) {
	d := &fd.Descriptor{Kind: fd.KindSocket, AdvLock: &fd.AdvLock{}, Socket: h, Domain: int(h.Domain)}
	res, e := c.Files.GetNextFD(fd.STARTINGFD)
	if e != 0 {
		return -1, e
	}
	res.Fill(d)
	return res.FD(), 0
}

func handleOf(c *cage.Cage, fdNum int) (*socket.Handle, errno.Errno) {
	d, e := c.Files.Get(fdNum)
	if e != 0 {
		return nil, e
	}
	h, ok := d.Socket.(*socket.Handle)
	if !ok {
		return nil, errno.ENOTSOCK
	}
	return h, 0
}

// Socket implements socket(domain, type).
func (s *Syscalls) Socket(c *cage.Cage, domain socket.Domain, typ socket.SockType) (int, errno.Errno) {
	var h *socket.Handle
	if domain == socket.AFUnix {
		h = socket.NewUnixHandle(typ)
	} else {
		h = socket.NewInetHandle(domain, typ)
	}
	return installSocketFD(c, h)
}

// Bind implements bind(). For AF_UNIX it also registers a Socket
// inode under the bound path (spec.md §4.1's Socket inode variant).
func (s *Syscalls) Bind(c *cage.Cage, fdNum int, addr *socket.Addr) errno.Errno {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return e
	}
	if addr.Domain == socket.AFUnix {
		existing, parent, werr := s.resolveParentAt(c, addr.Path)
		if werr != 0 {
			return werr
		}
		if existing != 0 {
			return errno.EADDRINUSE
		}
		rec, serr := s.MV.Store.NewSocketInode(addr.Path, c.Identity.UID, c.Identity.GID, 0o140777)
		if serr != 0 {
			return serr
		}
		name := lastComponent(addr.Path)
		if merr := s.MV.Store.MutateMany(map[uint64]func(*inode.Inode) bool{
			parent: func(in *inode.Inode) bool {
				in.Children[name] = rec.Number
				in.Mtime = hostshim.Now()
				return true
			},
		}); merr != 0 {
			return merr
		}
		return h.Bind(addr)
	}
	udp := h.Type == socket.SockDgram
	return bindInet(s, h, addr, udp)
}

// bindInet reserves addr.Port (or an ephemeral one if Port==0) and
// binds h.
func bindInet(s *Syscalls, h *socket.Handle, addr *socket.Addr, udp bool) errno.Errno {
	port := addr.Port
	if port == 0 {
		p, e := s.MV.Net.ReserveEphemeral(udp)
		if e != 0 {
			return e
		}
		port = p
	} else if e := s.MV.Net.ReservePort(port, udp); e != 0 {
		return e
	}
	addr.Port = port
	return h.Bind(addr)
}

// Listen implements listen(): INET sockets get an implicit ephemeral
// bind if unbound, then a host net.Listener; UNIX sockets just flip
// state to Listening (the rendezvous table does the rest).
func (s *Syscalls) Listen(c *cage.Cage, fdNum int) errno.Errno {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return e
	}
	h.State = socket.Listening
	if h.Domain != socket.AFUnix && h.LocalAddr == nil {
		if be := bindInet(s, h, &socket.Addr{Domain: h.Domain, IP: net.IPv4zero}, false); be != 0 {
			return be
		}
	}
	if h.Domain != socket.AFUnix && h.LocalAddr != nil {
		s.MV.Net.MarkListening(h.LocalAddr.Port)
		l, err := net.Listen("tcp", h.LocalAddr.IP.String()+":"+strconv.Itoa(int(h.LocalAddr.Port)))
		if err != nil {
			return errno.FromHost(err)
		}
		h.Listener = l
	}
	return 0
}

// Connect implements connect().
func (s *Syscalls) Connect(c *cage.Cage, fdNum int, addr *socket.Addr, nonblocking bool) errno.Errno {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return e
	}
	if addr.Domain == socket.AFUnix {
		send, recv, cerr := s.MV.Net.Connect(addr.Path, nonblocking)
		if cerr != 0 {
			return cerr
		}
		h.SendPipe, h.RecvPipe = send, recv
		h.RemoteAddr = addr
		h.State = socket.Connected
		return 0
	}
	conn, err := net.Dial("tcp", addr.IP.String()+":"+strconv.Itoa(int(addr.Port)))
	if err != nil {
		if nonblocking {
			h.State = socket.InProgress
			return errno.EINPROGRESS
		}
		return errno.FromHost(err)
	}
	h.Conn = conn
	h.RemoteAddr = addr
	h.State = socket.Connected
	return 0
}

// Accept implements accept().
func (s *Syscalls) Accept(c *cage.Cage, fdNum int, nonblocking bool) (int, errno.Errno) {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return -1, e
	}
	if h.Domain == socket.AFUnix {
		send, recv, aerr := s.MV.Net.Accept(h.LocalAddr.Path, nonblocking)
		if aerr != 0 {
			return -1, aerr
		}
		child := socket.NewUnixHandle(h.Type)
		child.SendPipe, child.RecvPipe = send, recv
		child.State = socket.Connected
		return installSocketFD(c, child)
	}
	conn, aerr := socket.Accept(h.Listener, nonblocking)
	if aerr != 0 {
		return -1, aerr
	}
	port, perr := s.MV.Net.ReserveEphemeral(false)
	if perr != 0 {
		conn.Close()
		return -1, perr
	}
	child := socket.NewInetHandle(h.Domain, h.Type)
	child.Conn = conn
	child.State = socket.Connected
	child.LocalAddr = &socket.Addr{Domain: h.Domain, Port: port}
	return installSocketFD(c, child)
}

// Send/Recv/Shutdown implement send()/recv()/shutdown().
func (s *Syscalls) Send(c *cage.Cage, fdNum int, buf []byte, nonblocking bool) (int, errno.Errno) {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return -1, e
	}
	n, serr := h.Send(buf, nonblocking)
	if serr == errno.EPIPE {
		raiseSigpipe(c)
	}
	return n, serr
}

func (s *Syscalls) Recv(c *cage.Cage, fdNum int, buf []byte, peek, nonblocking bool) (int, errno.Errno) {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return -1, e
	}
	return h.Recv(buf, peek, nonblocking)
}

func (s *Syscalls) Shutdown(c *cage.Cage, fdNum int, how int) errno.Errno {
	h, e := handleOf(c, fdNum)
	if e != 0 {
		return e
	}
	if h.Domain != socket.AFUnix && h.LocalAddr != nil && (how == socket.ShutRDWR) {
		s.MV.Net.ReleasePort(h.LocalAddr.Port, h.Type == socket.SockDgram)
	}
	return h.Shutdown(how)
}

// SocketPair implements socketpair(): two connected AF_UNIX
// descriptors, crosswise-wired, no externally visible name.
func (s *Syscalls) SocketPair(c *cage.Cage, typ socket.SockType) (int, int, errno.Errno) {
	aSend, aRecv, bSend, bRecv, addrA, addrB := socket.SocketPair()
	a := socket.NewUnixHandle(typ)
	a.SendPipe, a.RecvPipe = aSend, aRecv
	a.State = socket.Connected
	a.LocalAddr = &socket.Addr{Domain: socket.AFUnix, Path: addrA}

	b := socket.NewUnixHandle(typ)
	b.SendPipe, b.RecvPipe = bSend, bRecv
	b.State = socket.Connected
	b.LocalAddr = &socket.Addr{Domain: socket.AFUnix, Path: addrB}

	fdA, e1 := installSocketFD(c, a)
	if e1 != 0 {
		return -1, -1, e1
	}
	fdB, e2 := installSocketFD(c, b)
	if e2 != 0 {
		c.Files.Take(fdA)
		return -1, -1, e2
	}
	return fdA, fdB, 0
}
