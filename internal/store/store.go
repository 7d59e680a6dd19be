// Package store implements the process-wide tick store: the latest known
// entry per instrument, written concurrently by the upstream connections and
// read by the egress surfaces.
package store

import (
	"sync"

	"github.com/deepuanant/tickrelay/internal/model"
)

// Listener is notified after a batch of updates has been applied. It is
// called outside the store lock, from the goroutine that delivered the batch.
type Listener func(count int)

// Store maps instrument token to the latest observed entry.
// Writes to the same key from distinct connections are last-writer-wins.
// Entries are never evicted during a run.
type Store struct {
	mu       sync.RWMutex
	entries  map[uint32]model.Entry
	listener Listener
}

// New creates an empty Store.
func New() *Store {
	return &Store{
		entries: make(map[uint32]model.Entry),
	}
}

// SetListener registers the batch-update listener. Must be called before the
// first Update; there is exactly one listener (the egress adapter).
func (s *Store) SetListener(l Listener) {
	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()
}

// Update applies a batch of ticks and notifies the listener once.
// Replaying the same batch leaves the store unchanged.
func (s *Store) Update(ticks []model.Tick) {
	if len(ticks) == 0 {
		return
	}

	s.mu.Lock()
	for _, t := range ticks {
		closePrice := t.ClosePrice
		if !t.HasClose {
			// No OHLC on this tick; treat close as last so net change is 0.
			closePrice = t.LastPrice
		}
		s.entries[t.InstrumentToken] = model.Entry{
			Change:          model.Round2(t.Change),
			InstrumentToken: t.InstrumentToken,
			LastPrice:       t.LastPrice,
			NetChange:       model.Round2(t.LastPrice - closePrice),
		}
	}
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(len(ticks))
	}
}

// Snapshot returns a copy of the current entries. Individual entries are
// consistent; the map is not a point-in-time snapshot across keys.
func (s *Store) Snapshot() map[uint32]model.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[uint32]model.Entry, len(s.entries))
	for token, e := range s.entries {
		out[token] = e
	}
	return out
}

// Len returns the number of instruments observed so far.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
