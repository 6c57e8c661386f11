package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	auditmodels "benefits/internal/audit/models"
	possessionmodels "benefits/internal/possession/models"
	"benefits/internal/reclamation/metrics"
	"benefits/internal/reclamation/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, r *models.Reclamation) error
	Find(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error)
	Assign(ctx context.Context, id domain.ReclamationID, investigator domain.UserID, at time.Time) (*models.Reclamation, error)
	Transition(ctx context.Context, r *models.Reclamation, from models.Status) error
	List(ctx context.Context, filter models.Filter) ([]models.Reclamation, error)
	Count(ctx context.Context, filter models.Filter) (int, error)
	CountResolvedBy(ctx context.Context, investigator domain.UserID, since time.Time) (int, error)
	CountByPossession(ctx context.Context, id domain.PossessionID) (open, total int, err error)

	CreateFine(ctx context.Context, f *models.Fine) error
	FindFine(ctx context.Context, id domain.FineID) (*models.Fine, error)
	FineForReclamation(ctx context.Context, id domain.ReclamationID) (*models.Fine, error)
	MarkFinePaid(ctx context.Context, id domain.FineID, at time.Time) (*models.Fine, error)
	ListFines(ctx context.Context, citizen domain.UserID) ([]models.Fine, error)
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

// Possessions is the slice of the ledger the workflow drives.
type Possessions interface {
	Get(ctx context.Context, id domain.PossessionID) (*possessionmodels.Possession, error)
	Transition(ctx context.Context, id domain.PossessionID, status possessionmodels.Status) (*possessionmodels.Possession, error)
}

// Service runs the reclamation workflow. Each transition is one transaction
// that appends exactly one audit entry after the mutation succeeded.
type Service struct {
	store       Store
	tx          tx.Runner
	auditor     Auditor
	possessions Possessions
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func New(store Store, runner tx.Runner, auditor Auditor, possessions Possessions, opts ...Option) *Service {
	s := &Service{store: store, tx: runner, auditor: auditor, possessions: possessions}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "reclamation not found")
}

func (s *Service) find(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error) {
	r, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load reclamation")
	}
	return r, nil
}

// CreateRequest is a citizen's dispute of one of their possessions.
type CreateRequest struct {
	PossessionID        domain.PossessionID
	Reason              string
	EvidenceDescription string
}

// Create files a reclamation and puts the possession under investigation.
// Only the owning citizen may file; a possession with an open reclamation is
// a conflict.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Reclamation, error) {
	citizen := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "reason is required")
	}

	var out *models.Reclamation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.possessions.Get(txCtx, req.PossessionID)
		if err != nil {
			return err
		}
		if p.CitizenID != citizen {
			return dErrors.New(dErrors.CodeNotFound, "possession not found")
		}
		if p.Status == possessionmodels.StatusRemoved {
			return dErrors.New(dErrors.CodeInvariantViolation, "possession has already been removed")
		}

		r := &models.Reclamation{
			ID:                  domain.ReclamationID(uuid.New()),
			CitizenID:           citizen,
			PossessionID:        p.ID,
			Reason:              reason,
			EvidenceDescription: strings.TrimSpace(req.EvidenceDescription),
			Status:              models.StatusPending,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if err := s.store.Create(txCtx, r); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "possession already has an open reclamation")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create reclamation")
		}
		if _, err := s.possessions.Transition(txCtx, p.ID, possessionmodels.StatusUnderInvestigation); err != nil {
			return err
		}
		out = r
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionReclamationCreated,
			Description:    "Filed a reclamation against a recorded possession",
			RelatedCitizen: citizen,
			Metadata: map[string]any{
				"reclamation_id":  r.ID.String(),
				"possession_id":   p.ID.String(),
				"previous_status": string(p.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementFiled()
	return out, nil
}

// Assign gives a pending, unassigned reclamation to the calling investigator.
// When several investigators race, exactly one wins; the others get not found.
func (s *Service) Assign(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error) {
	investigator := requestcontext.UserID(ctx)
	var out *models.Reclamation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.store.Assign(txCtx, id, investigator, requestcontext.Now(txCtx))
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				s.metrics.IncrementAssignLost()
				if s.logger != nil {
					s.logger.InfoContext(ctx, "reclamation assignment refused",
						"request_id", requestcontext.RequestID(ctx),
						"reclamation_id", id.String(),
						"user_id", investigator.String(),
					)
				}
				return dErrors.New(dErrors.CodeNotFound, "reclamation not found or already assigned")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to assign reclamation")
		}
		out = r
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionReclamationAssigned,
			Description:    "Took a reclamation for investigation",
			RelatedCitizen: r.CitizenID,
			Metadata:       map[string]any{"reclamation_id": r.ID.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// InvestigateRequest is the verdict of the assigned investigator.
type InvestigateRequest struct {
	Decision   models.Decision
	Notes      string
	FineAmount decimal.Decimal
}

// Outcome is the result of an investigation.
type Outcome struct {
	Reclamation *models.Reclamation `json:"reclamation"`
	Fine        *models.Fine        `json:"fine,omitempty"`
}

// Investigate resolves a reclamation. Approval removes the possession.
// Rejection issues one fine and leaves the possession under investigation
// until staff correct it.
func (s *Service) Investigate(ctx context.Context, id domain.ReclamationID, req InvestigateRequest) (*Outcome, error) {
	investigator := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)
	if req.Decision != models.DecisionApprove && req.Decision != models.DecisionReject {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision must be approve or reject")
	}
	if req.Decision == models.DecisionReject {
		if err := models.ValidateFineAmount(req.FineAmount); err != nil {
			return nil, err
		}
	}
	notes := strings.TrimSpace(req.Notes)

	var out Outcome
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if r.AssignedInvestigator != investigator {
			return dErrors.New(dErrors.CodeForbidden, "only the assigned investigator can resolve this reclamation")
		}
		if r.Status != models.StatusUnderInvestigation {
			return dErrors.New(dErrors.CodeConflict, "reclamation is not under investigation")
		}

		r.Resolve(req.Decision, notes, now)
		if err := s.store.Transition(txCtx, r, models.StatusUnderInvestigation); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "reclamation is not under investigation")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to resolve reclamation")
		}
		out.Reclamation = r

		meta := map[string]any{
			"reclamation_id": r.ID.String(),
			"possession_id":  r.PossessionID.String(),
			"decision":       string(req.Decision),
		}
		var description string
		switch req.Decision {
		case models.DecisionApprove:
			if _, err := s.possessions.Transition(txCtx, r.PossessionID, possessionmodels.StatusRemoved); err != nil {
				return err
			}
			description = "Approved reclamation; possession removed"
		case models.DecisionReject:
			fine := &models.Fine{
				ID:            domain.FineID(uuid.New()),
				ReclamationID: r.ID,
				CitizenID:     r.CitizenID,
				Amount:        req.FineAmount,
				Reason:        models.FineReason,
				AppliedBy:     investigator,
				AppliedAt:     now,
			}
			if err := s.store.CreateFine(txCtx, fine); err != nil {
				if errors.Is(err, sentinel.ErrAlreadyUsed) {
					return dErrors.New(dErrors.CodeConflict, "reclamation already has a fine")
				}
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue fine")
			}
			out.Fine = fine
			meta["fine_id"] = fine.ID.String()
			meta["fine_amount"] = fine.Amount.StringFixed(2)
			description = fmt.Sprintf("Rejected reclamation; fine of %s applied", fine.Amount.StringFixed(2))
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionReclamationInvestigated,
			Description:    description,
			RelatedCitizen: r.CitizenID,
			Metadata:       meta,
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementResolution(string(req.Decision))
	return &out, nil
}

// Close archives a resolved reclamation.
func (s *Service) Close(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error) {
	now := requestcontext.Now(ctx)
	var out *models.Reclamation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		r, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if !r.Status.IsResolved() {
			return dErrors.New(dErrors.CodeConflict, "only approved or rejected reclamations can be closed")
		}
		from := r.Status
		r.Status = models.StatusClosed
		r.UpdatedAt = now
		if err := s.store.Transition(txCtx, r, from); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "reclamation changed concurrently")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to close reclamation")
		}
		out = r
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionReclamationClosed,
			Description:    fmt.Sprintf("Closed %s reclamation", from),
			RelatedCitizen: r.CitizenID,
			Metadata:       map[string]any{"reclamation_id": r.ID.String(), "previous_status": string(from)},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// PayFine records payment of a fine. A paid fine cannot be paid again.
func (s *Service) PayFine(ctx context.Context, id domain.FineID) (*models.Fine, error) {
	var out *models.Fine
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		f, err := s.store.MarkFinePaid(txCtx, id, requestcontext.Now(txCtx))
		if err != nil {
			switch {
			case errors.Is(err, sentinel.ErrNotFound):
				return dErrors.New(dErrors.CodeNotFound, "fine not found")
			case errors.Is(err, sentinel.ErrInvalidState):
				return dErrors.New(dErrors.CodeConflict, "fine is already paid")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record payment")
		}
		out = f
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionFinePaid,
			Description:    fmt.Sprintf("Recorded payment of fine %s", f.Amount.StringFixed(2)),
			RelatedCitizen: f.CitizenID,
			Metadata:       map[string]any{"fine_id": f.ID.String(), "reclamation_id": f.ReclamationID.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementFinePaid()
	return out, nil
}

// Get returns a reclamation with its fine, if any. Citizens only see their own.
func (s *Service) Get(ctx context.Context, id domain.ReclamationID) (*Outcome, error) {
	r, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestcontext.Role(ctx) == domain.RoleCitizen && r.CitizenID != requestcontext.UserID(ctx) {
		return nil, notFound()
	}
	out := &Outcome{Reclamation: r}
	f, err := s.store.FineForReclamation(ctx, id)
	switch {
	case err == nil:
		out.Fine = f
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load fine")
	}
	return out, nil
}

func (s *Service) List(ctx context.Context, filter models.Filter) ([]models.Reclamation, error) {
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list reclamations")
	}
	return out, nil
}

// ListOwn lists the caller's reclamations.
func (s *Service) ListOwn(ctx context.Context) ([]models.Reclamation, error) {
	return s.List(ctx, models.Filter{CitizenID: requestcontext.UserID(ctx)})
}

// Queue lists pending reclamations nobody has taken yet, newest first.
func (s *Service) Queue(ctx context.Context, limit int) ([]models.Reclamation, error) {
	return s.List(ctx, models.Filter{Unassigned: true, Statuses: []models.Status{models.StatusPending}, Limit: limit})
}

// Caseload lists the caller's open investigations.
func (s *Service) Caseload(ctx context.Context) ([]models.Reclamation, error) {
	return s.List(ctx, models.Filter{
		Investigator: requestcontext.UserID(ctx),
		Statuses:     []models.Status{models.StatusUnderInvestigation},
	})
}

func (s *Service) Count(ctx context.Context, filter models.Filter) (int, error) {
	n, err := s.store.Count(ctx, filter)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count reclamations")
	}
	return n, nil
}

func (s *Service) CountResolvedBy(ctx context.Context, investigator domain.UserID, since time.Time) (int, error) {
	n, err := s.store.CountResolvedBy(ctx, investigator, since)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count resolved reclamations")
	}
	return n, nil
}

// Counts adapts the store to the possession delete guard. It exists apart
// from Service because the possession service is built first.
type Counts struct {
	store Store
}

func NewCounts(store Store) Counts {
	return Counts{store: store}
}

func (c Counts) ReclamationCounts(ctx context.Context, id domain.PossessionID) (open, total int, err error) {
	open, total, err = c.store.CountByPossession(ctx, id)
	if err != nil {
		return 0, 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count reclamations")
	}
	return open, total, nil
}

// ListFines lists fines, optionally for one citizen.
func (s *Service) ListFines(ctx context.Context, citizen domain.UserID) ([]models.Fine, error) {
	out, err := s.store.ListFines(ctx, citizen)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fines")
	}
	return out, nil
}
