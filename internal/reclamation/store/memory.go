package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"benefits/internal/reclamation/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

// InMemory holds reclamations and fines behind one mutex, which is what makes
// Assign a single conditional write.
type InMemory struct {
	mu           sync.RWMutex
	reclamations map[domain.ReclamationID]*models.Reclamation
	fines        map[domain.FineID]*models.Fine
}

func NewInMemory() *InMemory {
	return &InMemory{
		reclamations: make(map[domain.ReclamationID]*models.Reclamation),
		fines:        make(map[domain.FineID]*models.Fine),
	}
}

func copyReclamation(r *models.Reclamation) *models.Reclamation {
	cp := *r
	if r.ResolvedAt != nil {
		at := *r.ResolvedAt
		cp.ResolvedAt = &at
	}
	return &cp
}

func copyFine(f *models.Fine) *models.Fine {
	cp := *f
	if f.PaymentDate != nil {
		at := *f.PaymentDate
		cp.PaymentDate = &at
	}
	return &cp
}

// Create refuses a second open reclamation on the same possession.
func (s *InMemory) Create(_ context.Context, r *models.Reclamation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.reclamations {
		if existing.PossessionID == r.PossessionID && existing.Status.IsOpen() {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.reclamations[r.ID] = copyReclamation(r)
	return nil
}

func (s *InMemory) Find(_ context.Context, id domain.ReclamationID) (*models.Reclamation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reclamations[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyReclamation(r), nil
}

// Assign hands a pending, unassigned reclamation to an investigator. Any other
// state reports ErrNotFound.
func (s *InMemory) Assign(_ context.Context, id domain.ReclamationID, investigator domain.UserID, at time.Time) (*models.Reclamation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reclamations[id]
	if !ok || r.Status != models.StatusPending || r.IsAssigned() {
		return nil, sentinel.ErrNotFound
	}
	r.AssignedInvestigator = investigator
	r.Status = models.StatusUnderInvestigation
	r.UpdatedAt = at
	return copyReclamation(r), nil
}

// Transition saves r if the stored status still equals from.
func (s *InMemory) Transition(_ context.Context, r *models.Reclamation, from models.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.reclamations[r.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if current.Status != from {
		return sentinel.ErrInvalidState
	}
	s.reclamations[r.ID] = copyReclamation(r)
	return nil
}

func (s *InMemory) List(_ context.Context, filter models.Filter) ([]models.Reclamation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Reclamation, 0)
	for _, r := range s.reclamations {
		if filter.Matches(r) {
			out = append(out, *copyReclamation(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemory) Count(_ context.Context, filter models.Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.reclamations {
		if filter.Matches(r) {
			n++
		}
	}
	return n, nil
}

// CountResolvedBy counts reclamations an investigator resolved at or after since.
func (s *InMemory) CountResolvedBy(_ context.Context, investigator domain.UserID, since time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.reclamations {
		if r.AssignedInvestigator == investigator && r.ResolvedAt != nil && !r.ResolvedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) CountByPossession(_ context.Context, id domain.PossessionID) (open, total int, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.reclamations {
		if r.PossessionID != id {
			continue
		}
		total++
		if r.Status.IsOpen() {
			open++
		}
	}
	return open, total, nil
}

func (s *InMemory) CreateFine(_ context.Context, f *models.Fine) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.fines {
		if existing.ReclamationID == f.ReclamationID {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.fines[f.ID] = copyFine(f)
	return nil
}

func (s *InMemory) FindFine(_ context.Context, id domain.FineID) (*models.Fine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.fines[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyFine(f), nil
}

func (s *InMemory) FineForReclamation(_ context.Context, id domain.ReclamationID) (*models.Fine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.fines {
		if f.ReclamationID == id {
			return copyFine(f), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

// MarkFinePaid pays an unpaid fine; a paid fine reports ErrInvalidState.
func (s *InMemory) MarkFinePaid(_ context.Context, id domain.FineID, at time.Time) (*models.Fine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fines[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if f.IsPaid {
		return nil, sentinel.ErrInvalidState
	}
	f.IsPaid = true
	f.PaymentDate = &at
	return copyFine(f), nil
}

func (s *InMemory) ListFines(_ context.Context, citizen domain.UserID) ([]models.Fine, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Fine, 0)
	for _, f := range s.fines {
		if citizen.IsNil() || f.CitizenID == citizen {
			out = append(out, *copyFine(f))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].AppliedAt.After(out[j].AppliedAt) })
	return out, nil
}
