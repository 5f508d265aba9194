package main

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/lthibault/peerwire/pkg/config"
	"github.com/lthibault/peerwire/pkg/directory"
	"github.com/lthibault/peerwire/pkg/transport/inproc"
	"github.com/lthibault/peerwire/pkg/transport/tcp"
	"github.com/lthibault/peerwire/pkg/transport/unix"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTransport(t *testing.T) {
	cfg := config.Default()
	assert.IsType(t, tcp.Transport{}, newTransport(cfg, nil))

	cfg.Network = "unix"
	assert.IsType(t, unix.Transport{}, newTransport(cfg, nil))

	cfg.Network = inproc.Network
	cfg.Mux = true
	assert.IsType(t, inproc.Transport{}, newTransport(cfg, inproc.Addr("/node")))
}

func TestAdvertisedPort(t *testing.T) {
	assert.Equal(t, 11625, advertisedPort(&net.TCPAddr{Port: 11625}))
	assert.Zero(t, advertisedPort(inproc.Addr("/node")))
}

func TestStack(t *testing.T) {
	c, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	cfg.Listen = "127.0.0.1:0"
	cfg.AcceptRate = 0

	s, err := newStack(c, cfg)
	require.NoError(t, err)
	defer s.Close()

	assert.IsType(t, &directory.Memory{}, s.dir)
	assert.Nil(t, s.limiter())

	s.cfg.AcceptRate = 5
	assert.NotNil(t, s.limiter())

	as := s.dueAddrs([]directory.Record{
		directory.NewRecord("127.0.0.1", 9000, time.Now()),
		directory.NewRecord("[bad", 0, time.Now()),
	})
	require.Len(t, as, 1)
	assert.Equal(t, "127.0.0.1:9000", as[0].String())

	assert.Len(t, s.peerOptions(s.newNode()), 12)
}
