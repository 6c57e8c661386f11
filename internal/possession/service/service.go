package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	auditmodels "benefits/internal/audit/models"
	catalogmodels "benefits/internal/catalog/models"
	"benefits/internal/possession/models"
	"benefits/internal/possession/store"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, p *models.Possession) error
	Find(ctx context.Context, id domain.PossessionID) (*models.Possession, error)
	Save(ctx context.Context, p *models.Possession) error
	Delete(ctx context.Context, id domain.PossessionID) error
	ListByCitizen(ctx context.Context, citizen domain.UserID, filter models.Filter) ([]models.Possession, error)
	ListAddedBy(ctx context.Context, staff domain.UserID, limit int) ([]models.Possession, error)
	Count(ctx context.Context) (int, error)
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

// TypeLookup resolves possession types from the catalog.
type TypeLookup interface {
	GetType(ctx context.Context, id domain.TypeID) (*catalogmodels.Type, error)
}

// CitizenLookup resolves the role of an account.
type CitizenLookup interface {
	RoleOf(ctx context.Context, id domain.UserID) (domain.Role, error)
}

// DisputeChecker reports how many reclamations reference a possession.
type DisputeChecker interface {
	ReclamationCounts(ctx context.Context, id domain.PossessionID) (open, total int, err error)
}

// Service is the possession ledger.
type Service struct {
	store    Store
	tx       tx.Runner
	auditor  Auditor
	types    TypeLookup
	citizens CitizenLookup
	disputes DisputeChecker
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDisputeChecker enables the delete guard against reclamations.
func WithDisputeChecker(d DisputeChecker) Option {
	return func(s *Service) {
		s.disputes = d
	}
}

func New(store Store, runner tx.Runner, auditor Auditor, types TypeLookup, citizens CitizenLookup, opts ...Option) *Service {
	s := &Service{store: store, tx: runner, auditor: auditor, types: types, citizens: citizens, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "possession not found")
}

func (s *Service) find(ctx context.Context, id domain.PossessionID) (*models.Possession, error) {
	p, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load possession")
	}
	return p, nil
}

// activeType loads a type that may be used for new entries.
func (s *Service) activeType(ctx context.Context, id domain.TypeID) (*catalogmodels.Type, error) {
	t, err := s.types.GetType(ctx, id)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "possession type does not exist")
		}
		return nil, err
	}
	if !t.IsActive {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "possession type is not active")
	}
	return t, nil
}

// Add records a possession for a citizen. The caller is the staff member
// entering it.
func (s *Service) Add(ctx context.Context, citizen domain.UserID, details models.Details) (*models.Possession, error) {
	now := requestcontext.Now(ctx)
	actor := requestcontext.UserID(ctx)
	if err := details.Validate(now); err != nil {
		return nil, err
	}
	role, err := s.citizens.RoleOf(ctx, citizen)
	if err != nil {
		return nil, err
	}
	if role != domain.RoleCitizen {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "possessions can only be recorded for citizens")
	}
	typ, err := s.activeType(ctx, details.TypeID)
	if err != nil {
		return nil, err
	}

	p := models.New(domain.PossessionID(uuid.New()), citizen, actor, details, now)
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record possession")
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionPossessionAdded,
			Description:    fmt.Sprintf("Added possession %s", typ.Name),
			RelatedCitizen: citizen,
			Metadata: map[string]any{
				"possession_id": p.ID.String(),
				"type_id":       int64(typ.ID),
				"point_value":   typ.PointValue.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Edit replaces the staff-editable attributes. Status is untouched.
func (s *Service) Edit(ctx context.Context, id domain.PossessionID, details models.Details) (*models.Possession, error) {
	now := requestcontext.Now(ctx)
	if err := details.Validate(now); err != nil {
		return nil, err
	}
	var out *models.Possession
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		typeName := ""
		if details.TypeID != p.TypeID {
			typ, err := s.activeType(txCtx, details.TypeID)
			if err != nil {
				return err
			}
			typeName = typ.Name
		}
		previousType := p.TypeID
		p.Apply(details, now)
		if err := s.store.Save(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to update possession")
		}
		meta := map[string]any{"possession_id": p.ID.String()}
		if typeName != "" {
			meta["previous_type_id"] = int64(previousType)
			meta["type_id"] = int64(p.TypeID)
		}
		out = p
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionPossessionUpdated,
			Description:    "Updated possession details",
			RelatedCitizen: p.CitizenID,
			Metadata:       meta,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetStatus is the manual status correction available to staff, e.g.
// restoring a possession after a rejected reclamation.
func (s *Service) SetStatus(ctx context.Context, id domain.PossessionID, status models.Status) (*models.Possession, error) {
	if !status.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported possession status")
	}
	var out *models.Possession
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, previous, err := s.transition(txCtx, id, status)
		if err != nil {
			return err
		}
		out = p
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionPossessionUpdated,
			Description:    fmt.Sprintf("Changed possession status from %s to %s", previous, status),
			RelatedCitizen: p.CitizenID,
			Metadata: map[string]any{
				"possession_id":   p.ID.String(),
				"previous_status": string(previous),
				"status":          string(status),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transition changes status without an audit entry of its own. It runs inside
// the caller's transaction; the caller audits the action that caused it.
func (s *Service) Transition(ctx context.Context, id domain.PossessionID, status models.Status) (*models.Possession, error) {
	var out *models.Possession
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, _, err := s.transition(txCtx, id, status)
		out = p
		return err
	})
	return out, err
}

func (s *Service) transition(ctx context.Context, id domain.PossessionID, status models.Status) (*models.Possession, models.Status, error) {
	p, err := s.find(ctx, id)
	if err != nil {
		return nil, "", err
	}
	previous := p.Status
	p.Status = status
	p.UpdatedAt = requestcontext.Now(ctx)
	if err := s.store.Save(ctx, p); err != nil {
		return nil, "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to update possession status")
	}
	return p, previous, nil
}

// Delete removes a possession. Only the staff member who entered it may
// delete it; anyone else sees not found. Possessions referenced by a
// reclamation cannot be deleted.
func (s *Service) Delete(ctx context.Context, id domain.PossessionID) error {
	actor := requestcontext.UserID(ctx)
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if p.AddedBy != actor {
			return notFound()
		}
		if s.disputes != nil {
			open, total, err := s.disputes.ReclamationCounts(txCtx, id)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check reclamations")
			}
			if open > 0 {
				return dErrors.New(dErrors.CodeConflict, "possession has an open reclamation")
			}
			if total > 0 {
				s.logger.InfoContext(ctx, "refused to delete disputed possession",
					"request_id", requestcontext.RequestID(ctx),
					"possession_id", id.String(),
					"reclamations", total,
				)
				return dErrors.New(dErrors.CodeConflict, "possession has reclamation history")
			}
		}
		if err := s.store.Delete(txCtx, id); err != nil {
			if errors.Is(err, store.ErrReferenced) {
				return dErrors.New(dErrors.CodeConflict, "possession has reclamation history")
			}
			if errors.Is(err, sentinel.ErrNotFound) {
				return notFound()
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to delete possession")
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionPossessionDeleted,
			Description:    "Deleted possession",
			RelatedCitizen: p.CitizenID,
			Metadata: map[string]any{
				"possession_id": p.ID.String(),
				"type_id":       int64(p.TypeID),
			},
		})
	})
}

func (s *Service) Get(ctx context.Context, id domain.PossessionID) (*models.Possession, error) {
	return s.find(ctx, id)
}

func (s *Service) ListByCitizen(ctx context.Context, citizen domain.UserID, filter models.Filter) ([]models.Possession, error) {
	out, err := s.store.ListByCitizen(ctx, citizen, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list possessions")
	}
	return out, nil
}

// ListActive returns the possessions that count towards the score.
func (s *Service) ListActive(ctx context.Context, citizen domain.UserID) ([]models.Possession, error) {
	return s.ListByCitizen(ctx, citizen, models.Filter{Statuses: []models.Status{models.StatusActive}})
}

func (s *Service) ListAddedBy(ctx context.Context, staff domain.UserID, limit int) ([]models.Possession, error) {
	out, err := s.store.ListAddedBy(ctx, staff, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list possessions")
	}
	return out, nil
}

func (s *Service) Count(ctx context.Context) (int, error) {
	n, err := s.store.Count(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count possessions")
	}
	return n, nil
}
