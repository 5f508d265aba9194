package directory

import (
	"context"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis stores records as hashes under "<prefix>:<host:port>".
type Redis struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// RedisOption configures a Redis directory
type RedisOption func(*Redis) (prev RedisOption)

// OptRedisPrefix sets the key prefix
func OptRedisPrefix(p string) RedisOption {
	return func(r *Redis) (prev RedisOption) {
		prev = OptRedisPrefix(r.prefix)
		r.prefix = p
		return
	}
}

// OptRedisTTL expires records that have not been written for d.  Zero disables expiry.
func OptRedisTTL(d time.Duration) RedisOption {
	return func(r *Redis) (prev RedisOption) {
		prev = OptRedisTTL(r.ttl)
		r.ttl = d
		return
	}
}

// NewRedis directory backed by the server at addr.
func NewRedis(addr, password string, db int, opt ...RedisOption) *Redis {
	return NewRedisClient(redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	}), opt...)
}

// NewRedisClient wraps an existing client.
func NewRedisClient(c *redis.Client, opt ...RedisOption) *Redis {
	r := &Redis{client: c, prefix: "peer"}
	for _, fn := range opt {
		fn(r)
	}
	return r
}

func (r *Redis) key(addr string, port int) string {
	return r.prefix + ":" + Key(addr, port)
}

// Lookup a record
func (r *Redis) Lookup(c context.Context, addr string, port int) (Record, bool, error) {
	m, err := r.client.HGetAll(c, r.key(addr, port)).Result()
	if err != nil {
		return Record{}, false, errors.Wrap(err, "redis hgetall")
	}

	if len(m) == 0 {
		return Record{}, false, nil
	}

	rec := Record{Address: addr, Port: port}
	if rec.NumFailures, err = strconv.Atoi(m["num_failures"]); err != nil {
		return Record{}, false, errors.Wrap(err, "num_failures")
	}

	next, err := strconv.ParseInt(m["next_attempt"], 10, 64)
	if err != nil {
		return Record{}, false, errors.Wrap(err, "next_attempt")
	}
	rec.NextAttempt = time.Unix(0, next)

	return rec, true, nil
}

// Upsert a record
func (r *Redis) Upsert(c context.Context, rec Record) error {
	k := r.key(rec.Address, rec.Port)

	pipe := r.client.Pipeline()
	pipe.HSet(c, k, map[string]interface{}{
		"address":      rec.Address,
		"port":         rec.Port,
		"num_failures": rec.NumFailures,
		"next_attempt": rec.NextAttempt.UnixNano(),
	})
	if r.ttl > 0 {
		pipe.Expire(c, k, r.ttl)
	}

	_, err := pipe.Exec(c)
	return errors.Wrap(err, "redis upsert")
}

// Close the client
func (r *Redis) Close() error { return r.client.Close() }
