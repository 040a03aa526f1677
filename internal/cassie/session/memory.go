package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps session state in an in-process map with per-entry
// expiry. It is the default backing for single-node deployments and tests.
// A background janitor sweeps expired entries until Close is called.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	data     map[string]*memoryEntry
	stop     chan struct{}
	stopOnce sync.Once
}

type memoryEntry struct {
	state    *State
	lastSeen time.Time
}

// NewMemoryStore creates a store whose entries expire after ttl of
// inactivity. A non-positive ttl falls back to DefaultTTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		ttl:  ttl,
		data: make(map[string]*memoryEntry),
		stop: make(chan struct{}),
	}
	go s.janitor()
	return s
}

// janitor sweeps expired entries on a timer until Close. Short TTLs sweep
// at the TTL itself; long ones are capped at a minute so memory is
// reclaimed promptly.
func (s *MemoryStore) janitor() {
	interval := s.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case now := <-ticker.C:
			s.Sweep(now)
		}
	}
}

// Get returns a copy of the stored state, or a fresh zero state for unknown
// or expired ids.
func (s *MemoryStore) Get(ctx context.Context, id string) (*State, error) {
	return s.getAt(id, time.Now()), nil
}

func (s *MemoryStore) getAt(id string, now time.Time) *State {
	s.mu.RLock()
	entry, ok := s.data[id]
	s.mu.RUnlock()

	if !ok || now.Sub(entry.lastSeen) > s.ttl {
		return &State{}
	}
	return copyState(entry.state)
}

// Put stores a copy of st and refreshes the entry's expiry.
func (s *MemoryStore) Put(ctx context.Context, id string, st *State) error {
	s.putAt(id, st, time.Now())
	return nil
}

func (s *MemoryStore) putAt(id string, st *State, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = &memoryEntry{state: copyState(st), lastSeen: now}
}

// Delete drops the session's state.
func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// Close stops the janitor. Safe to call more than once.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	return nil
}

// Sweep removes entries idle past their TTL and returns how many were
// dropped. The janitor runs this on a timer.
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for id, entry := range s.data {
		if now.Sub(entry.lastSeen) > s.ttl {
			delete(s.data, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of live entries, expired ones included until the
// next Sweep.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// copyState deep-copies st so callers never share the stored pointer.
func copyState(st *State) *State {
	if st == nil {
		return &State{}
	}
	out := *st
	if st.PendingOffer != nil {
		offer := *st.PendingOffer
		out.PendingOffer = &offer
	}
	return &out
}
