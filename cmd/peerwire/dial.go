package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/SentimensRG/ctx"
	"github.com/SentimensRG/ctx/sigctx"
	"github.com/lthibault/peerwire/pkg/config"
	"github.com/lthibault/peerwire/pkg/message"
	"github.com/lthibault/peerwire/pkg/node"
	"github.com/lthibault/peerwire/pkg/peer"
	"github.com/lthibault/peerwire/pkg/server"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var dialCmd = &cobra.Command{
	Use:   "dial <addr>",
	Short: "Connect to a peer and send each line of stdin as a data message",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return dial(ctx.AsContext(sigctx.New()), args[0], cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(dialCmd)
}

func dial(c context.Context, addr string, in io.Reader, out io.Writer) error {
	a, err := config.ResolveAddr(cfg.Network, addr)
	if err != nil {
		return err
	}

	s, err := newStack(c, cfg)
	if err != nil {
		return err
	}
	defer s.Close()

	var mu sync.Mutex
	n := s.newNode(node.OptPort(0), node.OptDataHandler(func(p *peer.Conn, b []byte) {
		mu.Lock()
		defer mu.Unlock()
		fmt.Fprintf(out, "%s: %s\n", p, b)
	}))
	defer n.Close()

	d := &server.Dialer{Transport: s.tp, Logger: s.log, Options: s.peerOptions(n)}
	defer d.Close()

	p, err := d.Connect(c, a)
	if err != nil {
		return err
	}

	lines := make(chan string)
	go func() {
		defer close(lines)

		scan := bufio.NewScanner(in)
		for scan.Scan() {
			select {
			case lines <- scan.Text():
			case <-c.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-c.Done():
			return nil
		case <-p.Context().Done():
			return errors.New("peer disconnected")
		case line, ok := <-lines:
			if !ok {
				flushed(p, cfg.Linger)
				return nil
			}

			if !p.Send(message.MustEncode(message.NewData([]byte(line)))) {
				return errors.New("send failed")
			}
		}
	}
}

// flushed waits up to d for p's write queue to drain
func flushed(p *peer.Conn, d time.Duration) bool {
	t := time.NewTicker(time.Millisecond * 10)
	defer t.Stop()

	deadline := time.After(d)
	for p.QueueDepth() > 0 {
		select {
		case <-t.C:
		case <-deadline:
			return false
		case <-p.Context().Done():
			return false
		}
	}

	return true
}
