package store

import (
	"context"
	"sync"

	"benefits/internal/audit/models"
)

// InMemory is an append-only audit store for development and tests.
type InMemory struct {
	mu      sync.RWMutex
	entries []models.Entry
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

// Append stores a copy of the entry.
func (s *InMemory) Append(_ context.Context, entry *models.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *entry
	if entry.Metadata != nil {
		cp.Metadata = make(map[string]any, len(entry.Metadata))
		for k, v := range entry.Metadata {
			cp.Metadata[k] = v
		}
	}
	s.entries = append(s.entries, cp)
	return nil
}

// List returns matching entries, newest first.
func (s *InMemory) List(_ context.Context, filter models.Filter) ([]models.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	out := make([]models.Entry, 0, min(limit, len(s.entries)))
	for i := len(s.entries) - 1; i >= 0 && len(out) < limit; i-- {
		e := s.entries[i]
		if !filter.RelatedCitizen.IsNil() && e.RelatedCitizenID != filter.RelatedCitizen {
			continue
		}
		if filter.Action != "" && e.Action != filter.Action {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns the number of stored entries.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries), nil
}
