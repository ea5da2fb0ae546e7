package lease

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is the shared state behind Memory services. Several Memory
// services over one store behave like separate processes contending for the
// same keys.
type MemoryStore struct {
	mu      sync.Mutex
	now     func() time.Time
	entries map[string]memoryEntry
	fences  map[string]uint64
}

type memoryEntry struct {
	token   string
	expires time.Time
}

func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:     now,
		entries: make(map[string]memoryEntry),
		fences:  make(map[string]uint64),
	}
}

// Holder reports the live token for key, if any.
func (s *MemoryStore) Holder(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok || !s.now().Before(e.expires) {
		return "", false
	}
	return e.token, true
}

// Memory is an in-process Service.
type Memory struct {
	*keeper
	store    *MemoryStore
	duration time.Duration
}

// NewMemory returns a Service over store. A nil store gets a private one.
func NewMemory(store *MemoryStore, opts Options) (*Memory, error) {
	opts, err := opts.withDefaults()
	if err != nil {
		return nil, err
	}
	if store == nil {
		store = NewMemoryStore(opts.Now)
	}
	m := &Memory{store: store, duration: opts.LeaseDuration}
	m.keeper = newKeeper(m, opts, "memory")
	return m, nil
}

func (m *Memory) acquire(_ context.Context, key, token string) (uint64, uint64, bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && now.Before(e.expires) {
		return 0, 0, false, nil
	}
	s.fences[key]++
	v := s.fences[key]
	s.entries[key] = memoryEntry{token: token, expires: now.Add(m.duration)}
	return v, v, true, nil
}

func (m *Memory) renew(_ context.Context, l *Lease) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[l.Key]
	if !ok || e.token != l.token || !now.Before(e.expires) {
		return false, nil
	}
	e.expires = now.Add(m.duration)
	s.entries[l.Key] = e
	return true, nil
}

func (m *Memory) release(_ context.Context, l *Lease) (bool, error) {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[l.Key]
	if !ok || e.token != l.token {
		return false, nil
	}
	delete(s.entries, l.Key)
	return true, nil
}
