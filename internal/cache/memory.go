package cache

import (
	"context"
	"sync"
	"time"
)

// Memory is an in-process Store. It holds the same atomicity contract as the
// Redis implementation and backs tests and single-instance development.
type Memory struct {
	mu   sync.Mutex
	now  func() time.Time
	vals map[string]*memEntry
}

type memEntry struct {
	counter  int64
	raw      []byte
	hits     []time.Time
	list     [][]byte
	referrer ReferrerStats
	expires  time.Time
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-process store.
func NewMemory() *Memory {
	return &Memory{now: time.Now, vals: make(map[string]*memEntry)}
}

// WithClock replaces the clock used for TTL expiry.
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.mu.Lock()
	m.now = now
	m.mu.Unlock()
	return m
}

// entry returns the live entry at key, creating it when create is set.
// Callers must hold m.mu.
func (m *Memory) entry(key string, create bool) *memEntry {
	e, ok := m.vals[key]
	if ok && !e.expires.IsZero() && !m.now().Before(e.expires) {
		delete(m.vals, key)
		ok = false
	}
	if !ok {
		if !create {
			return nil
		}
		e = &memEntry{}
		m.vals[key] = e
	}
	return e
}

func (m *Memory) expire(e *memEntry, ttl time.Duration) {
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
}

func (m *Memory) CheckAndIncr(_ context.Context, key string, limit int64, ttl time.Duration) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, true)
	if e.counter >= limit {
		return e.counter, false, nil
	}
	e.counter++
	if e.counter == 1 {
		m.expire(e, ttl)
	}
	return e.counter, true, nil
}

func (m *Memory) RecordHit(_ context.Context, key string, now time.Time, window, ttl time.Duration, limit int64) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, true)
	cutoff := now.Add(-window)
	kept := e.hits[:0]
	for _, ts := range e.hits {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	e.hits = kept
	m.expire(e, ttl)

	recent := int64(len(e.hits))
	if recent >= limit {
		return recent, false, nil
	}
	e.hits = append(e.hits, now)
	return recent + 1, true, nil
}

func (m *Memory) TrackReferrer(_ context.Context, key, referrer string, ttl time.Duration) (ReferrerStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, true)
	s := &e.referrer
	s.TotalClicks++
	switch {
	case referrer == "":
		s.EmptyReferrerCount++
	case referrer == s.LastReferrer:
		s.SameReferrerCount++
	default:
		s.SameReferrerCount = 1
		s.LastReferrer = referrer
	}
	m.expire(e, ttl)
	return *s, nil
}

func (m *Memory) PushCapped(_ context.Context, key string, value []byte, max int64, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, true)
	v := append([]byte(nil), value...)
	e.list = append([][]byte{v}, e.list...)
	if int64(len(e.list)) > max {
		e.list = e.list[:max]
	}
	m.expire(e, ttl)
	return nil
}

func (m *Memory) ListRecent(_ context.Context, key string, n int64) ([][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, false)
	if e == nil || n <= 0 {
		return nil, nil
	}
	if int64(len(e.list)) < n {
		n = int64(len(e.list))
	}
	out := make([][]byte, n)
	for i := range out {
		out[i] = append([]byte(nil), e.list[i]...)
	}
	return out, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := m.entry(key, false)
	if e == nil || e.raw == nil {
		return nil, ErrCacheMiss
	}
	return append([]byte(nil), e.raw...), nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e := &memEntry{raw: append([]byte{}, value...)}
	m.expire(e, ttl)
	m.vals[key] = e
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.vals, key)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }

// Len returns the number of live keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for key := range m.vals {
		if m.entry(key, false) != nil {
			n++
		}
	}
	return n
}
