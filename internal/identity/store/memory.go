package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"benefits/internal/identity/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

type InMemory struct {
	mu       sync.RWMutex
	accounts map[domain.UserID]*models.Account
	profiles map[domain.UserID]*models.Profile
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts: make(map[domain.UserID]*models.Account),
		profiles: make(map[domain.UserID]*models.Profile),
	}
}

func copyAccount(a *models.Account) *models.Account {
	cp := *a
	if a.CodeExpiresAt != nil {
		at := *a.CodeExpiresAt
		cp.CodeExpiresAt = &at
	}
	return &cp
}

func copyProfile(p *models.Profile) *models.Profile {
	cp := *p
	if p.LastCalculated != nil {
		at := *p.LastCalculated
		cp.LastCalculated = &at
	}
	return &cp
}

// CreateAccount enforces unique national IDs and phone numbers.
func (s *InMemory) CreateAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.accounts {
		if existing.NationalID == a.NationalID || existing.Phone == a.Phone {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.accounts[a.ID] = copyAccount(a)
	return nil
}

func (s *InMemory) FindAccount(_ context.Context, id domain.UserID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyAccount(a), nil
}

// FindByCredentials matches the national ID and phone pair used at login.
func (s *InMemory) FindByCredentials(_ context.Context, nationalID, phone string) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if a.NationalID == nationalID && a.Phone == phone {
			return copyAccount(a), nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemory) SaveAccount(_ context.Context, a *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[a.ID]; !ok {
		return sentinel.ErrNotFound
	}
	s.accounts[a.ID] = copyAccount(a)
	return nil
}

// ListAccounts returns accounts holding role, ordered by last then first name.
func (s *InMemory) ListAccounts(_ context.Context, role domain.Role, filter models.CitizenFilter) ([]models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Account, 0)
	for _, a := range s.accounts {
		if a.Role == role && filter.Matches(a) {
			out = append(out, *copyAccount(a))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastName != out[j].LastName {
			return out[i].LastName < out[j].LastName
		}
		if out[i].FirstName != out[j].FirstName {
			return out[i].FirstName < out[j].FirstName
		}
		return out[i].NationalID < out[j].NationalID
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *InMemory) CountAccounts(_ context.Context, role domain.Role) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, a := range s.accounts {
		if role == "" || a.Role == role {
			n++
		}
	}
	return n, nil
}

func (s *InMemory) CreateProfile(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[p.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	if _, ok := s.profiles[p.UserID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	s.profiles[p.UserID] = copyProfile(p)
	return nil
}

func (s *InMemory) FindProfile(_ context.Context, user domain.UserID) (*models.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[user]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyProfile(p), nil
}

func (s *InMemory) SaveProfile(_ context.Context, p *models.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[p.UserID]; !ok {
		return sentinel.ErrNotFound
	}
	s.profiles[p.UserID] = copyProfile(p)
	return nil
}

// CacheScore stores the latest computed score without touching UpdatedAt,
// which tracks edits made by staff.
func (s *InMemory) CacheScore(_ context.Context, user domain.UserID, score decimal.Decimal, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[user]
	if !ok {
		return sentinel.ErrNotFound
	}
	p.CurrentScore = score
	p.LastCalculated = &at
	return nil
}
