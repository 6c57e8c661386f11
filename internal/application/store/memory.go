package store

import (
	"context"
	"sort"
	"sync"

	"benefits/internal/application/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

type InMemory struct {
	mu   sync.RWMutex
	rows map[domain.ApplicationID]*models.Application
}

func NewInMemory() *InMemory {
	return &InMemory{rows: make(map[domain.ApplicationID]*models.Application)}
}

func copyApplication(a *models.Application) *models.Application {
	cp := *a
	if a.SubmittedAt != nil {
		at := *a.SubmittedAt
		cp.SubmittedAt = &at
	}
	if a.ReviewedAt != nil {
		at := *a.ReviewedAt
		cp.ReviewedAt = &at
	}
	return &cp
}

// Create refuses a second open application for the same citizen and program.
func (s *InMemory) Create(_ context.Context, a *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.rows {
		if existing.CitizenID == a.CitizenID && existing.Program == a.Program && existing.Status.IsOpen() {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.rows[a.ID] = copyApplication(a)
	return nil
}

func (s *InMemory) Find(_ context.Context, id domain.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.rows[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyApplication(a), nil
}

// LatestSubmitted returns the most recently submitted application for the
// citizen and program. Drafts never count.
func (s *InMemory) LatestSubmitted(_ context.Context, citizen domain.UserID, program domain.Program) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *models.Application
	for _, a := range s.rows {
		if a.CitizenID != citizen || a.Program != program || a.SubmittedAt == nil {
			continue
		}
		if latest == nil || a.SubmittedAt.After(*latest.SubmittedAt) {
			latest = a
		}
	}
	if latest == nil {
		return nil, sentinel.ErrNotFound
	}
	return copyApplication(latest), nil
}

// Transition saves a if the stored status still equals from.
func (s *InMemory) Transition(_ context.Context, a *models.Application, from models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.rows[a.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != from {
		return sentinel.ErrInvalidState
	}
	s.rows[a.ID] = copyApplication(a)
	return nil
}

// List returns matching applications, newest first.
func (s *InMemory) List(_ context.Context, filter models.Filter) ([]models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Application, 0)
	for _, a := range s.rows {
		if filter.Matches(a) {
			out = append(out, *copyApplication(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemory) Count(_ context.Context, filter models.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.rows {
		if filter.Matches(a) {
			n++
		}
	}
	return n, nil
}
