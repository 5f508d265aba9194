package node

import (
	log "github.com/lthibault/log/pkg"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/message"
	"github.com/lthibault/peerwire/pkg/peer"
)

// DefaultMaxInbound peers
const DefaultMaxInbound = 64

// Option for Node
type Option func(*Node) (prev Option)

// OptID sets the node ID announced in hellos
func OptID(id string) Option {
	return func(n *Node) (prev Option) {
		prev = OptID(n.id)
		n.id = id
		return
	}
}

// OptPort sets the advertised listening port
func OptPort(port int) Option {
	return func(n *Node) (prev Option) {
		prev = OptPort(n.port)
		n.port = port
		return
	}
}

// OptMaxInbound caps the number of active inbound peers.  Zero or less
// disables the cap.
func OptMaxInbound(max int) Option {
	return func(n *Node) (prev Option) {
		prev = OptMaxInbound(n.maxInbound)
		n.maxInbound = max
		return
	}
}

// OptDirectory sets the directory that discovered peers are recorded in
func OptDirectory(d directory.Directory) Option {
	return func(n *Node) (prev Option) {
		prev = OptDirectory(n.dir)
		n.dir = d
		return
	}
}

// OptLogger sets the logger
func OptLogger(l log.Logger) Option {
	return func(n *Node) (prev Option) {
		prev = OptLogger(n.log)
		n.log = l
		return
	}
}

// OptDataHandler sets the callback for data payloads
func OptDataHandler(f func(*peer.Conn, []byte)) Option {
	return func(n *Node) (prev Option) {
		prev = OptDataHandler(n.onData)
		n.onData = f
		return
	}
}

// OptPeersHandler sets the callback for received peer lists
func OptPeersHandler(f func([]message.Addr)) Option {
	return func(n *Node) (prev Option) {
		prev = OptPeersHandler(n.onPeers)
		n.onPeers = f
		return
	}
}

func defaults() []Option {
	return []Option{
		OptMaxInbound(DefaultMaxInbound),
		OptLogger(log.New(log.OptLevel(log.NullLevel))),
		OptDataHandler(func(*peer.Conn, []byte) {}),
		OptPeersHandler(func([]message.Addr) {}),
	}
}
