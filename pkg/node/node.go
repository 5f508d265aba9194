// Package node wires peer connections into a minimal overlay node: it speaks
// the message protocol, admits inbound peers up to a limit, gossips peer lists
// and delivers data payloads.
package node

import (
	"context"
	"sync"
	"time"

	log "github.com/lthibault/log/pkg"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/message"
	"github.com/lthibault/peerwire/pkg/peer"
	synctoolz "github.com/lthibault/toolz/pkg/sync"
	"github.com/pkg/errors"
	uuid "github.com/satori/go.uuid"
)

// MaxPeerList bounds the number of addresses sent in one peer list
const MaxPeerList = 50

// ErrFull is returned by OnHandshake when the remote turned us away with a
// peer list instead of a hello.
var ErrFull = errors.New("remote is not accepting peers")

// Node implements peer.Handler, peer.Greeter and peer.Registry
type Node struct {
	id         string
	port       int
	maxInbound int
	dir        directory.Directory
	log        log.Logger
	onData     func(*peer.Conn, []byte)
	onPeers    func([]message.Addr)

	mu       sync.RWMutex
	peers    map[*peer.Conn]struct{}
	reserved map[*peer.Conn]struct{}
	inbound  synctoolz.Ctr
}

// New Node
func New(opt ...Option) *Node {
	n := &Node{
		id:       uuid.NewV4().String(),
		peers:    make(map[*peer.Conn]struct{}),
		reserved: make(map[*peer.Conn]struct{}),
	}

	for _, o := range append(defaults(), opt...) {
		o(n)
	}

	return n
}

// ID of the node, announced in its hello
func (n *Node) ID() string { return n.id }

// PeerOptions binds a connection to the node
func (n *Node) PeerOptions() []peer.Option {
	opt := []peer.Option{
		peer.OptLogger(n.log),
		peer.OptHandler(n),
		peer.OptGreeter(n),
		peer.OptRegistry(n),
	}

	if n.dir != nil {
		opt = append(opt, peer.OptDirectory(n.dir))
	}

	return opt
}

// OnHandshake validates a hello
func (n *Node) OnHandshake(c *peer.Conn, payload []byte) (int, error) {
	m, err := message.Decode(payload)
	if err != nil {
		return 0, errors.Wrap(err, "decode hello")
	}

	switch m.Type {
	case message.TypeHello:
	case message.TypePeers:
		n.discovered(m.Peers)
		return 0, ErrFull
	default:
		return 0, errors.Errorf("expected hello, got %s", m.Type)
	}

	if m.Hello.Version != message.Version {
		return 0, errors.Errorf("unsupported version %d", m.Hello.Version)
	}

	if m.Hello.ID == n.id {
		return 0, errors.New("connected to self")
	}

	return m.Hello.Port, nil
}

// OnMessage handles payloads received after the handshake
func (n *Node) OnMessage(c *peer.Conn, payload []byte) {
	m, err := message.Decode(payload)
	if err != nil {
		n.log.WithError(err).WithField("peer", c).Warn("dropping peer that sent undecodable message")
		c.Drop()
		return
	}

	switch m.Type {
	case message.TypeData:
		n.onData(c, m.Data)
	case message.TypePeers:
		n.discovered(m.Peers)
	default:
		n.log.WithField("peer", c).WithField("type", m.Type).Debug("ignoring message")
	}
}

func (n *Node) discovered(as []message.Addr) {
	if n.dir != nil {
		c, cancel := context.WithTimeout(context.Background(), time.Second*5)
		defer cancel()

		for _, a := range as {
			if _, ok, err := n.dir.Lookup(c, a.Host, a.Port); err != nil || ok {
				continue
			}

			if err := n.dir.Upsert(c, directory.NewRecord(a.Host, a.Port, time.Now())); err != nil {
				n.log.WithError(err).Warn("directory update failed")
			}
		}
	}

	n.onPeers(as)
}

// Hello announces the node
func (n *Node) Hello(*peer.Conn) []byte {
	return message.MustEncode(message.NewHello(n.id, n.port))
}

// Peers lists the listening addresses of active peers, other than c
func (n *Node) Peers(c *peer.Conn) []byte {
	n.mu.RLock()
	defer n.mu.RUnlock()

	as := make([]message.Addr, 0, len(n.peers))
	for p := range n.peers {
		if p == c || p.RemotePort() <= 0 {
			continue
		}

		as = append(as, message.Addr{Host: p.RemoteAddr(), Port: p.RemotePort()})
		if len(as) == MaxPeerList {
			break
		}
	}

	return message.MustEncode(message.NewPeers(as))
}

// Accepting reports whether the node has room for another inbound peer.  A
// true result reserves a slot for c until it is activated or dropped.
func (n *Node) Accepting(c *peer.Conn) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	if _, ok := n.reserved[c]; ok {
		return true
	}

	if n.maxInbound > 0 && int(n.inbound.Num())+len(n.reserved) >= n.maxInbound {
		return false
	}

	n.reserved[c] = struct{}{}
	return true
}

// Activated registers c
func (n *Node) Activated(c *peer.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.reserved, c)
	n.peers[c] = struct{}{}
	if c.Direction() == peer.Inbound {
		n.inbound.Incr()
	}

	n.log.WithField("peer", c).Info("peer connected")
}

// Dropped unregisters c
func (n *Node) Dropped(c *peer.Conn) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.reserved, c)
	if _, ok := n.peers[c]; !ok {
		return
	}

	delete(n.peers, c)
	if c.Direction() == peer.Inbound {
		n.inbound.Decr()
	}

	n.log.WithField("peer", c).Info("peer disconnected")
}

// Conns returns the active connections
func (n *Node) Conns() []*peer.Conn {
	n.mu.RLock()
	defer n.mu.RUnlock()

	cs := make([]*peer.Conn, 0, len(n.peers))
	for c := range n.peers {
		cs = append(cs, c)
	}

	return cs
}

// Inbound is the number of active inbound peers
func (n *Node) Inbound() int { return int(n.inbound.Num()) }

// Broadcast data to every active peer.  It returns the number of peers the
// message was queued for.
func (n *Node) Broadcast(data []byte) (sent int) {
	b := message.MustEncode(message.NewData(data))

	for _, c := range n.Conns() {
		if c.Send(b) {
			sent++
		}
	}

	return
}

// Close drops every active peer
func (n *Node) Close() error {
	for _, c := range n.Conns() {
		c.Drop()
	}

	return nil
}
