package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"benefits/internal/threshold/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

type InMemory struct {
	mu     sync.RWMutex
	rows   map[domain.ThresholdID]*models.Threshold
	nextID int64
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[domain.ThresholdID]*models.Threshold)}
}

func (s *InMemory) Create(_ context.Context, t *models.Threshold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.Program == t.Program && existing.EffectiveDate.Equal(t.EffectiveDate) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.nextID++
	t.ID = domain.ThresholdID(s.nextID)
	cp := *t
	s.rows[t.ID] = &cp
	return nil
}

func (s *InMemory) Current(_ context.Context, program domain.Program, today time.Time) (*models.Threshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var best *models.Threshold
	for _, t := range s.rows {
		if t.Program != program || !t.InForceOn(today) {
			continue
		}
		if best == nil || t.Supersedes(best) {
			best = t
		}
	}
	if best == nil {
		return nil, sentinel.ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (s *InMemory) Deactivate(_ context.Context, id domain.ThresholdID) (*models.Threshold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	t.IsActive = false
	cp := *t
	return &cp, nil
}

// List returns thresholds newest effective date first. An empty program
// lists every program.
func (s *InMemory) List(_ context.Context, program domain.Program) ([]models.Threshold, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Threshold, 0, len(s.rows))
	for _, t := range s.rows {
		if program != "" && t.Program != program {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Supersedes(&out[j]) })
	return out, nil
}
