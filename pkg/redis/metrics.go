package redis

import (
	"sync/atomic"
	"time"
)

// Metrics counts what the search cache did during a session
type Metrics struct {
	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
	stores atomic.Uint64

	// keys removed by table invalidation or rollback flushes
	keysInvalidated atomic.Uint64
	flushes         atomic.Uint64

	lookups     atomic.Uint64
	lookupNanos atomic.Uint64
}

// NewMetrics creates a zeroed metrics instance
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) hit()    { m.hits.Add(1) }
func (m *Metrics) miss()   { m.misses.Add(1) }
func (m *Metrics) fail()   { m.errors.Add(1) }
func (m *Metrics) stored() { m.stores.Add(1) }
func (m *Metrics) flush()  { m.flushes.Add(1) }

func (m *Metrics) invalidated(keys int) {
	m.keysInvalidated.Add(uint64(keys))
}

func (m *Metrics) lookup(d time.Duration) {
	m.lookups.Add(1)
	m.lookupNanos.Add(uint64(d.Nanoseconds()))
}

// Stats returns the counters as they are now
func (m *Metrics) Stats() Stats {
	s := Stats{
		Hits:            m.hits.Load(),
		Misses:          m.misses.Load(),
		Errors:          m.errors.Load(),
		Stores:          m.stores.Load(),
		KeysInvalidated: m.keysInvalidated.Load(),
		Flushes:         m.flushes.Load(),
	}
	if n := m.lookups.Load(); n > 0 {
		s.AvgLookup = time.Duration(m.lookupNanos.Load() / n)
	}
	return s
}

// Reset zeroes every counter
func (m *Metrics) Reset() {
	for _, c := range []*atomic.Uint64{
		&m.hits, &m.misses, &m.errors, &m.stores,
		&m.keysInvalidated, &m.flushes, &m.lookups, &m.lookupNanos,
	} {
		c.Store(0)
	}
}

// Stats is a point-in-time copy of the cache counters
type Stats struct {
	Hits            uint64
	Misses          uint64
	Errors          uint64
	Stores          uint64
	KeysInvalidated uint64
	Flushes         uint64
	AvgLookup       time.Duration
}

// HitRate is the share of lookups answered from the cache, in percent
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total) * 100
}

// Fields returns the stats as logger key/value pairs
func (s Stats) Fields() []interface{} {
	return []interface{}{
		"hits", s.Hits,
		"misses", s.Misses,
		"hit_rate", s.HitRate(),
		"errors", s.Errors,
		"stores", s.Stores,
		"keys_invalidated", s.KeysInvalidated,
		"flushes", s.Flushes,
		"avg_lookup", s.AvgLookup,
	}
}
