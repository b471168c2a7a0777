package socket

import (
	"sync"

	"github.com/OneOfOne/xxhash"
	"github.com/marstr/guid"

	"github.com/lind-project/lind-go/internal/errno"
	"github.com/lind-project/lind-go/internal/pipe"
)

const (
	EphemeralLow  = 32768
	EphemeralHigh = 60999
)

// rendezvousShards is the rendezvous table's bucket count; paths hash
// (via xxhash) to a shard so unrelated bind/connect pairs don't
// contend on one global lock.
const rendezvousShards = 64

// rendezvousEntry is spec.md's single-use AF_UNIX accept hand-off
// record: a bound server path meets a connecting client here.
type rendezvousEntry struct {
	ready    chan struct{}
	sendPipe *pipe.Pipe // server's receive == client's send
	recvPipe *pipe.Pipe // server's send == client's receive
}

type rendezvousShard struct {
	mu      sync.Mutex
	pending map[string][]*rendezvousEntry
}

// NetMetadata is the process-wide structure spec.md §4.7 describes:
// per-protocol port sets, the ephemeral range, a listening-port set,
// and the UNIX path->rendezvous map.
type NetMetadata struct {
	mu        sync.Mutex
	usedTCP   map[uint16]bool
	usedUDP   map[uint16]bool
	listening map[uint16]bool
	nextEph   uint16

	shards [rendezvousShards]rendezvousShard
}

func NewNetMetadata() *NetMetadata {
	n := &NetMetadata{
		usedTCP:   make(map[uint16]bool),
		usedUDP:   make(map[uint16]bool),
		listening: make(map[uint16]bool),
		nextEph:   EphemeralLow,
	}
	for i := range n.shards {
		n.shards[i].pending = make(map[string][]*rendezvousEntry)
	}
	return n
}

func (n *NetMetadata) usedSet(udp bool) map[uint16]bool {
	if udp {
		return n.usedUDP
	}
	return n.usedTCP
}

// ReservePort marks port used, or EADDRINUSE if already taken.
func (n *NetMetadata) ReservePort(port uint16, udp bool) errno.Errno {
	n.mu.Lock()
	defer n.mu.Unlock()
	set := n.usedSet(udp)
	if set[port] {
		return errno.EADDRINUSE
	}
	set[port] = true
	return 0
}

// ReserveEphemeral scans the ephemeral range for a free port (listen's
// implicit bind, or an INET accept child's local port).
func (n *NetMetadata) ReserveEphemeral(udp bool) (uint16, errno.Errno) {
	n.mu.Lock()
	defer n.mu.Unlock()
	set := n.usedSet(udp)
	for i := 0; i < (EphemeralHigh - EphemeralLow + 1); i++ {
		p := n.nextEph
		n.nextEph++
		if n.nextEph > EphemeralHigh {
			n.nextEph = EphemeralLow
		}
		if !set[p] {
			set[p] = true
			return p, 0
		}
	}
	return 0, errno.EADDRNOTAVAIL
}

func (n *NetMetadata) ReleasePort(port uint16, udp bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.usedSet(udp), port)
	delete(n.listening, port)
}

func (n *NetMetadata) MarkListening(port uint16) {
	n.mu.Lock()
	n.listening[port] = true
	n.mu.Unlock()
}

func (n *NetMetadata) shardFor(path string) *rendezvousShard {
	h := xxhash.ChecksumString64(path)
	return &n.shards[h%rendezvousShards]
}

// Connect registers a connecting client's entry under path and blocks
// (unless nonblocking) for a matching Accept, per spec.md's AF_UNIX
// connect/accept protocol. On success it returns the pipe pair to use
// as (send, recv) from the client's perspective.
func (n *NetMetadata) Connect(path string, nonblocking bool) (send, recv *pipe.Pipe, e errno.Errno) {
	shard := n.shardFor(path)
	clientSend := pipe.New(0) // client writes here; server reads it
	clientRecv := pipe.New(0) // server writes here; client reads it
	entry := &rendezvousEntry{ready: make(chan struct{}), sendPipe: clientSend, recvPipe: clientRecv}

	shard.mu.Lock()
	shard.pending[path] = append(shard.pending[path], entry)
	shard.mu.Unlock()

	if nonblocking {
		return clientSend, clientRecv, 0
	}
	<-entry.ready
	return clientSend, clientRecv, 0
}

// Accept consumes the oldest pending connect entry for path. The
// returned pipes are the server's (send, recv): send is the client's
// recvPipe, recv is the client's sendPipe — swapped, per spec.md.
func (n *NetMetadata) Accept(path string, nonblocking bool) (send, recv *pipe.Pipe, e errno.Errno) {
	shard := n.shardFor(path)
	shard.mu.Lock()
	q := shard.pending[path]
	if len(q) == 0 {
		shard.mu.Unlock()
		if nonblocking {
			return nil, nil, errno.EAGAIN
		}
		return nil, nil, errno.EAGAIN // spin is the caller's responsibility (poll loop)
	}
	entry := q[0]
	shard.pending[path] = q[1:]
	shard.mu.Unlock()
	close(entry.ready)
	return entry.recvPipe, entry.sendPipe, 0
}

// HasPending reports whether path has a queued connect (select/poll
// readiness for a listening UNIX socket).
func (n *NetMetadata) HasPending(path string) bool {
	shard := n.shardFor(path)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return len(shard.pending[path]) > 0
}

// SocketPair manufactures two fresh unnamed local addresses and two
// crosswise-wired pipe pairs, per spec.md's socketpair() (no name is
// externally visible; guid.NewGUID supplies the synthetic addresses).
func SocketPair() (aSend, aRecv, bSend, bRecv *pipe.Pipe, addrA, addrB string) {
	addrA = "unix:pair:" + guid.NewGUID().String()
	addrB = "unix:pair:" + guid.NewGUID().String()
	p1 := pipe.New(0)
	p2 := pipe.New(0)
	return p1, p2, p2, p1, addrA, addrB
}
