package inproc

import (
	"context"
	"net"
	"sync"

	radix "github.com/armon/go-radix"
	"github.com/pkg/errors"
)

// DefaultNamespace is a global namespace that is used by default
var DefaultNamespace = NewNamespace()

// Namespace is an isolated address space.  Addresses are paths; listeners
// are kept in a radix tree so that a subtree can be enumerated.
type Namespace struct {
	mu sync.RWMutex
	r  *radix.Tree
}

// NewNamespace returns an empty address space
func NewNamespace() *Namespace { return &Namespace{r: radix.New()} }

// Listen binds a listener to address.  It satisfies generic.NetListener.
func (ns *Namespace) Listen(c context.Context, network, address string) (net.Listener, error) {
	if network != Network {
		return nil, errors.Errorf("inproc: invalid network %s", network)
	}

	ns.mu.Lock()
	defer ns.mu.Unlock()

	if _, ok := ns.r.Get(address); ok {
		return nil, errors.Errorf("inproc: address %s already bound", address)
	}

	l := newListener(Addr(address), func() { ns.unbind(address) })
	ns.r.Insert(address, l)
	return l, nil
}

// Bound lists the addresses bound under prefix, in lexical order.
func (ns *Namespace) Bound(prefix string) (as []Addr) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	ns.r.WalkPrefix(prefix, func(path string, _ interface{}) bool {
		as = append(as, Addr(path))
		return false
	})

	return
}

func (ns *Namespace) lookup(address string) (*listener, bool) {
	ns.mu.RLock()
	defer ns.mu.RUnlock()

	v, ok := ns.r.Get(address)
	if !ok {
		return nil, false
	}

	return v.(*listener), true
}

func (ns *Namespace) unbind(address string) {
	ns.mu.Lock()
	defer ns.mu.Unlock()

	ns.r.Delete(address)
}

func (ns *Namespace) dial(c context.Context, local Addr, address string) (net.Conn, error) {
	l, ok := ns.lookup(address)
	if !ok {
		return nil, errors.Errorf("inproc: connection refused: %s", address)
	}

	dc, lc := net.Pipe()
	if err := l.connect(c, conn{Conn: lc, local: Addr(address), remote: local}); err != nil {
		dc.Close()
		lc.Close()
		return nil, err
	}

	return conn{Conn: dc, local: local, remote: Addr(address)}, nil
}
