package directory

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Directory.
type Memory struct {
	mu sync.RWMutex
	rs map[string]Record
}

// NewMemory directory
func NewMemory() *Memory {
	return &Memory{rs: make(map[string]Record)}
}

// Lookup a record
func (m *Memory) Lookup(_ context.Context, addr string, port int) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	r, ok := m.rs[Key(addr, port)]
	return r, ok, nil
}

// Upsert a record
func (m *Memory) Upsert(_ context.Context, r Record) error {
	m.mu.Lock()
	m.rs[r.Key()] = r
	m.mu.Unlock()
	return nil
}

// Due returns the records whose next attempt is at or before now, soonest first.
func (m *Memory) Due(now time.Time) []Record {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs := make([]Record, 0, len(m.rs))
	for _, r := range m.rs {
		if !r.NextAttempt.After(now) {
			rs = append(rs, r)
		}
	}

	sort.Slice(rs, func(i, j int) bool { return rs[i].NextAttempt.Before(rs[j].NextAttempt) })
	return rs
}

// Len is the number of records
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rs)
}
