package store

import (
	"context"
	"sort"
	"sync"

	"benefits/internal/scoring/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

type InMemory struct {
	mu           sync.RWMutex
	calculations []models.Calculation
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Create(_ context.Context, c *models.Calculation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *c
	cp.Items = append([]models.Item(nil), c.Items...)
	s.calculations = append(s.calculations, cp)
	return nil
}

// ListByCitizen returns calculations newest first.
func (s *InMemory) ListByCitizen(_ context.Context, citizen domain.UserID, limit int) ([]models.Calculation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Calculation, 0)
	for _, c := range s.calculations {
		if c.CitizenID == citizen {
			cp := c
			cp.Items = append([]models.Item(nil), c.Items...)
			out = append(out, cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CalculatedAt.After(out[j].CalculatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemory) Latest(ctx context.Context, citizen domain.UserID) (*models.Calculation, error) {
	out, err := s.ListByCitizen(ctx, citizen, 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &out[0], nil
}
