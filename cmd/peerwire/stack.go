package main

import (
	"context"
	"io"
	"net"
	"strconv"

	"github.com/hashicorp/yamux"
	log "github.com/lthibault/log/pkg"
	overlay "github.com/lthibault/peerwire/pkg"
	"github.com/lthibault/peerwire/pkg/config"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/loop"
	"github.com/lthibault/peerwire/pkg/metrics"
	"github.com/lthibault/peerwire/pkg/node"
	"github.com/lthibault/peerwire/pkg/peer"
	"github.com/lthibault/peerwire/pkg/transport/generic"
	"github.com/lthibault/peerwire/pkg/transport/inproc"
	"github.com/lthibault/peerwire/pkg/transport/tcp"
	"github.com/lthibault/peerwire/pkg/transport/unix"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// stack holds everything a node shares across its connections
type stack struct {
	cfg   *config.Config
	log   log.Logger
	dir   directory.Directory
	exec  *loop.Loop
	stats *metrics.Counters
	tp    overlay.Transport

	closers []io.Closer
}

func newStack(c context.Context, cfg *config.Config) (*stack, error) {
	s := &stack{
		cfg:   cfg,
		log:   newLogger(cfg.LogLevel),
		exec:  loop.New(c),
		stats: metrics.Publish("peerwire"),
	}

	var err error
	if s.dir, err = s.openDirectory(c); err != nil {
		s.exec.Stop()
		return nil, err
	}

	a, err := cfg.ListenAddr()
	if err != nil {
		s.Close()
		return nil, err
	}
	s.tp = newTransport(cfg, a)

	return s, nil
}

func newLogger(level string) log.Logger {
	switch level {
	case "debug":
		return log.New(log.OptLevel(log.DebugLevel))
	case "warn":
		return log.New(log.OptLevel(log.WarnLevel))
	case "error":
		return log.New(log.OptLevel(log.ErrorLevel))
	case "none":
		return log.New(log.OptLevel(log.NullLevel))
	}

	return log.New(log.OptLevel(log.InfoLevel))
}

func (s *stack) openDirectory(c context.Context) (directory.Directory, error) {
	d := s.cfg.Directory

	switch d.Backend {
	case "redis":
		r := directory.NewRedis(d.Redis.Addr, d.Redis.Password, d.Redis.DB)
		s.closers = append(s.closers, r)
		return r, nil
	case "postgres":
		p, err := directory.OpenPostgres(c, d.Postgres.DSN)
		if err != nil {
			return nil, errors.Wrap(err, "open postgres directory")
		}
		s.closers = append(s.closers, p)
		return p, nil
	case "etcd":
		e, err := directory.DialEtcd(d.Etcd.Endpoints)
		if err != nil {
			return nil, errors.Wrap(err, "dial etcd directory")
		}
		s.closers = append(s.closers, e)
		return e, nil
	}

	return directory.NewMemory(), nil
}

func newTransport(cfg *config.Config, dialback net.Addr) overlay.Transport {
	var opt []generic.Option
	if cfg.Mux {
		opt = append(opt, generic.OptMuxAdapter(generic.MuxConfig{Config: yamux.DefaultConfig()}))
	}

	switch cfg.Network {
	case "unix":
		uo := make([]unix.Option, len(opt))
		for i, o := range opt {
			uo[i] = unix.OptGeneric(o)
		}
		return unix.New(uo...)
	case inproc.Network:
		po := []inproc.Option{inproc.OptDialback(dialback)}
		for _, o := range opt {
			po = append(po, inproc.OptGeneric(o))
		}
		return inproc.New(po...)
	}

	to := make([]tcp.Option, len(opt))
	for i, o := range opt {
		to[i] = tcp.OptGeneric(o)
	}
	return tcp.New(to...)
}

// advertisedPort is the port announced in hellos.  Only TCP listeners have
// one; peers on other networks are not recorded in the directory.
func advertisedPort(a net.Addr) int {
	if t, ok := a.(*net.TCPAddr); ok {
		return t.Port
	}
	return 0
}

func (s *stack) newNode(opt ...node.Option) *node.Node {
	a, _ := s.cfg.ListenAddr()

	return node.New(append([]node.Option{
		node.OptPort(advertisedPort(a)),
		node.OptMaxInbound(s.cfg.MaxInboundPeers),
		node.OptDirectory(s.dir),
		node.OptLogger(s.log),
	}, opt...)...)
}

func (s *stack) peerOptions(n *node.Node) []peer.Option {
	b := s.cfg.Backoff

	return append(n.PeerOptions(),
		peer.OptExecutor(s.exec),
		peer.OptMetrics(s.stats),
		peer.OptMaxMessageSize(s.cfg.MaxMessageSize),
		peer.OptHandshakeTimeout(s.cfg.HandshakeTimeout),
		peer.OptLinger(s.cfg.Linger),
		peer.OptRecordMarking(s.cfg.RecordMarking),
		peer.OptBackoff(directory.Backoff{Min: b.Min, Max: b.Max, Factor: b.Factor, Jitter: true}))
}

func (s *stack) limiter() *rate.Limiter {
	if s.cfg.AcceptRate <= 0 {
		return nil
	}

	return rate.NewLimiter(rate.Limit(s.cfg.AcceptRate), s.cfg.AcceptBurst)
}

// dueAddrs resolves directory records that are eligible for a reconnect
// attempt.  Only the in-memory directory can be scanned.
func (s *stack) dueAddrs(rs []directory.Record) []net.Addr {
	var as []net.Addr
	for _, r := range rs {
		host := net.JoinHostPort(r.Address, strconv.Itoa(r.Port))
		if a, err := config.ResolveAddr(s.cfg.Network, host); err == nil {
			as = append(as, a)
		}
	}

	return as
}

func (s *stack) Close() error {
	s.exec.Stop()

	var err error
	for _, c := range s.closers {
		if e := c.Close(); e != nil && err == nil {
			err = e
		}
	}

	return err
}
