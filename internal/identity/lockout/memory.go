package lockout

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	held        int
	windowEnds  time.Time
	lockedUntil time.Time
}

// InMemory keeps counters in process memory.
type InMemory struct {
	mu      sync.Mutex
	entries map[string]*entry
	clock   func() time.Time
}

type InMemoryOption func(*InMemory)

func WithClock(clock func() time.Time) InMemoryOption {
	return func(m *InMemory) {
		if clock != nil {
			m.clock = clock
		}
	}
}

func NewInMemory(opts ...InMemoryOption) *InMemory {
	m := &InMemory{entries: make(map[string]*entry), clock: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *InMemory) Reserve(_ context.Context, key string, window time.Duration, limit int) (time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.clock()
	e, ok := m.entries[key]
	if !ok {
		e = &entry{}
		m.entries[key] = e
	}
	if left := e.lockedUntil.Sub(now); left > 0 {
		return left, nil
	}
	if !now.Before(e.windowEnds) {
		e.held = 0
		e.windowEnds = now.Add(window)
	}
	if e.held >= limit {
		return e.windowEnds.Sub(now), nil
	}
	e.held++
	return 0, nil
}

func (m *InMemory) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[key]; ok && e.held > 0 {
		e.held--
	}
	return nil
}

// LockIfExhausted also resets the window so the count starts over after the lock.
func (m *InMemory) LockIfExhausted(_ context.Context, key string, limit int, d time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.held < limit {
		return false, nil
	}
	m.entries[key] = &entry{lockedUntil: m.clock().Add(d)}
	return true, nil
}

func (m *InMemory) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}
