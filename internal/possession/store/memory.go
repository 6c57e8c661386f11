package store

import (
	"context"
	"sort"
	"sync"

	"benefits/internal/possession/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

type InMemory struct {
	mu          sync.RWMutex
	possessions map[domain.PossessionID]*models.Possession
}

func NewInMemory() *InMemory {
	return &InMemory{possessions: make(map[domain.PossessionID]*models.Possession)}
}

func (s *InMemory) Create(_ context.Context, p *models.Possession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.possessions[p.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	cp := *p
	s.possessions[p.ID] = &cp
	return nil
}

func (s *InMemory) Find(_ context.Context, id domain.PossessionID) (*models.Possession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.possessions[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) Save(_ context.Context, p *models.Possession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.possessions[p.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *p
	s.possessions[p.ID] = &cp
	return nil
}

func (s *InMemory) Delete(_ context.Context, id domain.PossessionID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.possessions[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.possessions, id)
	return nil
}

func newestFirst(out []models.Possession) {
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() > out[j].ID.String()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
}

// ListByCitizen returns the citizen's possessions, newest first.
func (s *InMemory) ListByCitizen(_ context.Context, citizen domain.UserID, filter models.Filter) ([]models.Possession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Possession, 0)
	for _, p := range s.possessions {
		if p.CitizenID == citizen && filter.Matches(p) {
			out = append(out, *p)
		}
	}
	newestFirst(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// ListAddedBy returns the most recent possessions entered by a staff member.
func (s *InMemory) ListAddedBy(_ context.Context, staff domain.UserID, limit int) ([]models.Possession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Possession, 0)
	for _, p := range s.possessions {
		if p.AddedBy == staff {
			out = append(out, *p)
		}
	}
	newestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.possessions), nil
}
