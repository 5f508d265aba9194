package main

import (
	"context"
	"net"
	"time"

	"github.com/SentimensRG/ctx"
	"github.com/SentimensRG/ctx/sigctx"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/node"
	"github.com/lthibault/peerwire/pkg/peer"
	"github.com/lthibault/peerwire/pkg/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var shutdownTimeout = time.Second * 5

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept peers and connect to seeds until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(ctx.AsContext(sigctx.New()))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(c context.Context) error {
	s, err := newStack(c, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	n := s.newNode(node.OptDataHandler(func(p *peer.Conn, b []byte) {
		s.log.WithField("peer", p).WithField("size", len(b)).Info("data received")
	}))
	defer n.Close()

	a, err := cfg.ListenAddr()
	if err != nil {
		return err
	}

	l, err := s.tp.Listen(c, a)
	if err != nil {
		return errors.Wrap(err, "listen")
	}

	opt := s.peerOptions(n)
	srv := &server.Server{Logger: s.log, Limiter: s.limiter(), Options: opt}
	d := &server.Dialer{Transport: s.tp, Logger: s.log, Options: opt}
	defer d.Close()

	seeds, err := cfg.SeedAddrs()
	if err != nil {
		return err
	}
	for _, seed := range seeds {
		go connect(c, s, d, seed)
	}

	if m, ok := s.dir.(*directory.Memory); ok {
		go redial(c, s, d, n, m)
	}

	s.log.WithField("addr", l.Addr()).WithField("id", n.ID()).Info("serving")

	cherr := make(chan error, 1)
	go func() { cherr <- srv.Serve(l) }()

	select {
	case err = <-cherr:
		srv.Close()
		return err
	case <-c.Done():
	}

	sc, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err = srv.Shutdown(sc); err != nil {
		s.log.WithError(err).Warn("forcing shutdown")
	}
	srv.Close()

	return nil
}

func connect(c context.Context, s *stack, d *server.Dialer, a net.Addr) {
	if _, err := d.Connect(c, a); err != nil {
		s.log.WithError(err).WithField("addr", a).Debug("connect failed")
	}
}

// redial periodically retries known peers whose backoff has elapsed and that
// are not already connected.
func redial(c context.Context, s *stack, d *server.Dialer, n *node.Node, m *directory.Memory) {
	t := time.NewTicker(cfg.Backoff.Min)
	defer t.Stop()

	for {
		select {
		case <-c.Done():
			return
		case now := <-t.C:
			live := make(map[string]struct{})
			for _, p := range n.Conns() {
				live[directory.Key(p.RemoteAddr(), p.RemotePort())] = struct{}{}
			}

			var due []directory.Record
			for _, r := range m.Due(now) {
				if _, ok := live[r.Key()]; !ok {
					due = append(due, r)
				}
			}

			for _, a := range s.dueAddrs(due) {
				go connect(c, s, d, a)
			}
		}
	}
}
