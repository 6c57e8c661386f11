package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	auditmodels "benefits/internal/audit/models"
	"benefits/internal/catalog/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	CreateCategory(ctx context.Context, c *models.Category) error
	CreateType(ctx context.Context, t *models.Type) error
	SaveType(ctx context.Context, t *models.Type) error
	FindCategory(ctx context.Context, id domain.CategoryID) (*models.Category, error)
	FindType(ctx context.Context, id domain.TypeID) (*models.Type, error)
	TypesByIDs(ctx context.Context, ids []domain.TypeID) (map[domain.TypeID]models.Type, error)
	ListCategories(ctx context.Context) ([]models.Category, error)
	TypesByCategory(ctx context.Context, category domain.CategoryID, activeOnly bool) ([]models.Type, error)
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

// Service manages possession categories and types.
type Service struct {
	store   Store
	tx      tx.Runner
	auditor Auditor
	logger  *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, runner tx.Runner, auditor Auditor, opts ...Option) *Service {
	s := &Service{store: store, tx: runner, auditor: auditor, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateCategory adds a category and records category_created.
func (s *Service) CreateCategory(ctx context.Context, name, description string) (*models.Category, error) {
	category, err := models.NewCategory(name, description, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateCategory(txCtx, category); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "category already exists")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create category")
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:      auditmodels.ActionCategoryCreated,
			Description: fmt.Sprintf("Created possession category %q", category.Name),
			Metadata:    map[string]any{"category_id": int64(category.ID)},
		})
	})
	if err != nil {
		return nil, err
	}
	return category, nil
}

// CreateType adds a possession type under an existing category.
func (s *Service) CreateType(ctx context.Context, category domain.CategoryID, name, description string, points decimal.Decimal) (*models.Type, error) {
	typ, err := models.NewType(category, name, description, points, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateType(txCtx, typ); err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "category not found")
			case errors.Is(err, sentinel.ErrAlreadyUsed):
				return dErrors.New(dErrors.CodeConflict, "possession type already exists in this category")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create possession type")
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:      auditmodels.ActionPossessionTypeCreated,
			Description: fmt.Sprintf("Created possession type %q worth %s points", typ.Name, typ.PointValue.String()),
			Metadata: map[string]any{
				"type_id":     int64(typ.ID),
				"category_id": int64(typ.CategoryID),
				"point_value": typ.PointValue.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return typ, nil
}

// TypeUpdate carries the admin-editable attributes of a type. Nil fields are
// left unchanged.
type TypeUpdate struct {
	Description *string
	PointValue  *decimal.Decimal
	IsActive    *bool
}

// UpdateType edits a type. A new point value applies to every live score
// from now on; calculation records keep their snapshot.
func (s *Service) UpdateType(ctx context.Context, id domain.TypeID, update TypeUpdate) (*models.Type, error) {
	if update.PointValue != nil {
		if err := models.ValidatePoints(*update.PointValue); err != nil {
			return nil, err
		}
	}
	var out *models.Type
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		typ, err := s.GetType(txCtx, id)
		if err != nil {
			return err
		}
		meta := map[string]any{"type_id": int64(id)}
		if update.Description != nil {
			typ.Description = *update.Description
		}
		if update.PointValue != nil {
			meta["previous_point_value"] = typ.PointValue.String()
			meta["point_value"] = update.PointValue.String()
			typ.PointValue = *update.PointValue
		}
		if update.IsActive != nil {
			meta["is_active"] = *update.IsActive
			typ.IsActive = *update.IsActive
		}
		if err := s.store.SaveType(txCtx, typ); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update possession type")
		}
		out = typ
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:      auditmodels.ActionPossessionTypeUpdated,
			Description: fmt.Sprintf("Updated possession type %q", typ.Name),
			Metadata:    meta,
		})
	})
	if err != nil {
		return nil, err
	}
	if update.PointValue != nil {
		s.logger.InfoContext(ctx, "possession type repriced",
			"request_id", requestcontext.RequestID(ctx),
			"type_id", int64(id),
			"point_value", out.PointValue.String(),
		)
	}
	return out, nil
}

func (s *Service) GetType(ctx context.Context, id domain.TypeID) (*models.Type, error) {
	t, err := s.store.FindType(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "possession type not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load possession type")
	}
	return t, nil
}

// TypesByIDs resolves live point values for a batch of types.
func (s *Service) TypesByIDs(ctx context.Context, ids []domain.TypeID) (map[domain.TypeID]models.Type, error) {
	types, err := s.store.TypesByIDs(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load possession types")
	}
	return types, nil
}

func (s *Service) ListCategories(ctx context.Context) ([]models.Category, error) {
	categories, err := s.store.ListCategories(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list categories")
	}
	return categories, nil
}

// TypesByCategory lists a category's types. An unknown category is not found
// rather than an empty list.
func (s *Service) TypesByCategory(ctx context.Context, category domain.CategoryID, activeOnly bool) ([]models.Type, error) {
	if _, err := s.store.FindCategory(ctx, category); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "category not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load category")
	}
	types, err := s.store.TypesByCategory(ctx, category, activeOnly)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list possession types")
	}
	return types, nil
}
