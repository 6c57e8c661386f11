package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"benefits/internal/catalog/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
)

// InMemory keeps categories and types in maps keyed by serial IDs.
type InMemory struct {
	mu         sync.RWMutex
	categories map[domain.CategoryID]*models.Category
	types      map[domain.TypeID]*models.Type
	nextCat    int64
	nextType   int64
}

func NewInMemory() *InMemory {
	return &InMemory{
		categories: make(map[domain.CategoryID]*models.Category),
		types:      make(map[domain.TypeID]*models.Type),
	}
}

func (s *InMemory) CreateCategory(_ context.Context, c *models.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.categories {
		if strings.EqualFold(existing.Name, c.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.nextCat++
	c.ID = domain.CategoryID(s.nextCat)
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *InMemory) CreateType(_ context.Context, t *models.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[t.CategoryID]; !ok {
		return sentinel.ErrNotFound
	}
	for _, existing := range s.types {
		if existing.CategoryID == t.CategoryID && strings.EqualFold(existing.Name, t.Name) {
			return sentinel.ErrAlreadyUsed
		}
	}
	s.nextType++
	t.ID = domain.TypeID(s.nextType)
	cp := *t
	s.types[t.ID] = &cp
	return nil
}

func (s *InMemory) FindCategory(_ context.Context, id domain.CategoryID) (*models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *InMemory) FindType(_ context.Context, id domain.TypeID) (*models.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.types[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

// TypesByIDs returns the types found among ids, keyed by ID. Missing IDs are
// simply absent.
func (s *InMemory) TypesByIDs(_ context.Context, ids []domain.TypeID) (map[domain.TypeID]models.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[domain.TypeID]models.Type, len(ids))
	for _, id := range ids {
		if t, ok := s.types[id]; ok {
			out[id] = *t
		}
	}
	return out, nil
}

func (s *InMemory) ListCategories(_ context.Context) ([]models.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) TypesByCategory(_ context.Context, category domain.CategoryID, activeOnly bool) ([]models.Type, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Type, 0)
	for _, t := range s.types {
		if t.CategoryID != category {
			continue
		}
		if activeOnly && !t.IsActive {
			continue
		}
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *InMemory) SaveType(_ context.Context, t *models.Type) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[t.ID]; !ok {
		return sentinel.ErrNotFound
	}
	cp := *t
	s.types[t.ID] = &cp
	return nil
}
