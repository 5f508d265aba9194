// Package directory persists bookkeeping about known peer addresses: how often
// connecting to them has failed and when they may next be tried.
package directory

import (
	"context"
	"net"
	"strconv"
	"time"

	"github.com/jpillora/backoff"
)

// Record about a known peer
type Record struct {
	Address     string    `json:"address"`
	Port        int       `json:"port"`
	NumFailures int       `json:"num_failures"`
	NextAttempt time.Time `json:"next_attempt"`
}

// Key identifies the record's address
func (r Record) Key() string { return Key(r.Address, r.Port) }

// Key for an address/port pair
func Key(addr string, port int) string {
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// NewRecord for an address that may be tried immediately.
func NewRecord(addr string, port int, now time.Time) Record {
	return Record{Address: addr, Port: port, NextAttempt: now}
}

// Directory stores peer records.  Lookup reports false when no record exists.
type Directory interface {
	Lookup(c context.Context, addr string, port int) (Record, bool, error)
	Upsert(c context.Context, r Record) error
}

// Backoff computes the retry schedule for failing peers.
type Backoff struct {
	Min, Max time.Duration
	Factor   float64
	Jitter   bool
}

// DefaultBackoff schedule
var DefaultBackoff = Backoff{Min: time.Second * 10, Max: time.Hour, Factor: 2}

// Delay before the next attempt, given the number of consecutive failures.
func (b Backoff) Delay(failures int) time.Duration {
	if failures <= 0 {
		return 0
	}

	bo := backoff.Backoff{Min: b.Min, Max: b.Max, Factor: b.Factor, Jitter: b.Jitter}
	return bo.ForAttempt(float64(failures - 1))
}

// Succeeded resets the failure count and makes r eligible immediately.
func (r *Record) Succeeded(now time.Time) {
	r.NumFailures = 0
	r.NextAttempt = now
}

// Failed increments the failure count and pushes back the next attempt.
func (r *Record) Failed(now time.Time, b Backoff) {
	r.NumFailures++
	r.NextAttempt = now.Add(b.Delay(r.NumFailures))
}
