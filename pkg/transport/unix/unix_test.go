package unix

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNetwork(t *testing.T) {
	tp := New()

	_, err := tp.Listen(context.Background(), &net.TCPAddr{})
	assert.EqualError(t, err, "unix: invalid network tcp")

	_, err = tp.Dial(context.Background(), &net.TCPAddr{})
	assert.EqualError(t, err, "unix: invalid network tcp")
}

func TestTransport(t *testing.T) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	tp := New()
	a := &net.UnixAddr{Name: filepath.Join(t.TempDir(), "peerwire.sock"), Net: "unix"}

	l, err := tp.Listen(c, a)
	require.NoError(t, err)
	defer l.Close()

	d, err := tp.Dial(c, a)
	require.NoError(t, err)
	defer d.Close()

	conn, err := l.Accept(c)
	require.NoError(t, err)
	defer conn.Close()

	_, err = d.Write([]byte("x"))
	require.NoError(t, err)

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "x", string(buf))
}

func TestStaleSocket(t *testing.T) {
	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "peerwire.sock")
	a := &net.UnixAddr{Name: path, Net: "unix"}

	// leave a socket file behind without a listener
	raw, err := net.ListenUnix("unix", a)
	require.NoError(t, err)
	raw.SetUnlinkOnClose(false)
	require.NoError(t, raw.Close())

	_, err = os.Lstat(path)
	require.NoError(t, err, "socket file should remain")

	t.Run("Keep", func(t *testing.T) {
		_, err := New(OptKeepStale(true)).Listen(c, a)
		assert.Error(t, err)
	})

	t.Run("Reclaim", func(t *testing.T) {
		l, err := New().Listen(c, a)
		require.NoError(t, err)
		defer l.Close()

		t.Run("InUse", func(t *testing.T) {
			_, err := New().Listen(c, a)
			assert.EqualError(t, err, "unix: "+path+" is in use")
		})
	})

	t.Run("NotSocket", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "regular")
		require.NoError(t, os.WriteFile(file, nil, 0o600))

		_, err := New().Listen(c, &net.UnixAddr{Name: file, Net: "unix"})
		assert.Error(t, err)
	})
}
