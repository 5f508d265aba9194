package directory

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	b := Backoff{Min: time.Second, Max: time.Minute, Factor: 2}

	assert.Zero(t, b.Delay(0))
	assert.Equal(t, time.Second, b.Delay(1))
	assert.Equal(t, 2*time.Second, b.Delay(2))
	assert.Equal(t, 4*time.Second, b.Delay(3))
	assert.Equal(t, time.Minute, b.Delay(100))
}

func TestRecord(t *testing.T) {
	now := time.Unix(1000, 0)
	r := NewRecord("10.0.0.1", 11625, now)
	assert.Equal(t, "10.0.0.1:11625", r.Key())

	r.Failed(now, Backoff{Min: time.Second, Max: time.Minute, Factor: 2})
	r.Failed(now, Backoff{Min: time.Second, Max: time.Minute, Factor: 2})
	assert.Equal(t, 2, r.NumFailures)
	assert.Equal(t, now.Add(2*time.Second), r.NextAttempt)

	r.Succeeded(now)
	assert.Zero(t, r.NumFailures)
	assert.Equal(t, now, r.NextAttempt)
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	testDirectory(t, m)

	t.Run("Due", func(t *testing.T) {
		now := time.Now()
		require.NoError(t, m.Upsert(context.Background(), Record{Address: "b", Port: 1, NextAttempt: now.Add(-time.Second)}))
		require.NoError(t, m.Upsert(context.Background(), Record{Address: "c", Port: 1, NextAttempt: now.Add(time.Hour)}))
		require.NoError(t, m.Upsert(context.Background(), Record{Address: "d", Port: 1, NextAttempt: now.Add(-time.Minute)}))

		due := m.Due(now)
		var keys []string
		for _, r := range due {
			keys = append(keys, r.Key())
		}
		assert.Contains(t, keys, "b:1")
		assert.Contains(t, keys, "d:1")
		assert.NotContains(t, keys, "c:1")
		assert.True(t, strings.HasPrefix(keys[0], "d"), "soonest first")
	})
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("PEERWIRE_TEST_REDIS")
	if addr == "" {
		t.Skip("set PEERWIRE_TEST_REDIS=localhost:6379 to run redis integration tests")
	}

	r := NewRedis(addr, "", 0, OptRedisPrefix("peerwire-test"), OptRedisTTL(time.Minute))
	defer r.Close()

	testDirectory(t, r)
}

func TestPostgres(t *testing.T) {
	dsn := os.Getenv("PEERWIRE_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("set PEERWIRE_TEST_POSTGRES=<dsn> to run postgres integration tests")
	}

	p, err := OpenPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer p.Close()

	testDirectory(t, p)
}

func TestEtcd(t *testing.T) {
	addr := os.Getenv("PEERWIRE_TEST_ETCD")
	if addr == "" {
		t.Skip("set PEERWIRE_TEST_ETCD=http://localhost:2379 to run etcd integration tests")
	}

	e, err := DialEtcd(strings.Split(addr, ","))
	require.NoError(t, err)
	defer e.Close()

	testDirectory(t, e)
}

func testDirectory(t *testing.T, d Directory) {
	t.Helper()

	c, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	host := "192.0.2." + time.Now().Format("05")
	next := time.Now().Add(time.Minute).UTC().Truncate(time.Millisecond)

	t.Run("Missing", func(t *testing.T) {
		_, ok, err := d.Lookup(c, host, 1)
		assert.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("Insert", func(t *testing.T) {
		require.NoError(t, d.Upsert(c, Record{Address: host, Port: 2, NumFailures: 3, NextAttempt: next}))

		r, ok, err := d.Lookup(c, host, 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 3, r.NumFailures)
		assert.True(t, next.Equal(r.NextAttempt), "want %s, got %s", next, r.NextAttempt)
	})

	t.Run("Update", func(t *testing.T) {
		require.NoError(t, d.Upsert(c, Record{Address: host, Port: 2, NextAttempt: next}))

		r, ok, err := d.Lookup(c, host, 2)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Zero(t, r.NumFailures)
	})
}
