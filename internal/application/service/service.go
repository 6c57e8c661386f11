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

	"benefits/internal/application/metrics"
	"benefits/internal/application/models"
	auditmodels "benefits/internal/audit/models"
	scoringmodels "benefits/internal/scoring/models"
	thresholdmodels "benefits/internal/threshold/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, a *models.Application) error
	Find(ctx context.Context, id domain.ApplicationID) (*models.Application, error)
	LatestSubmitted(ctx context.Context, citizen domain.UserID, program domain.Program) (*models.Application, error)
	Transition(ctx context.Context, a *models.Application, from models.Status) error
	List(ctx context.Context, filter models.Filter) ([]models.Application, error)
	Count(ctx context.Context, filter models.Filter) (int, error)
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

type Scores interface {
	ComputeScore(ctx context.Context, citizen domain.UserID) (decimal.Decimal, error)
	LatestCalculation(ctx context.Context, citizen domain.UserID) (*scoringmodels.Calculation, error)
}

type Thresholds interface {
	Current(ctx context.Context, program domain.Program) (*thresholdmodels.Threshold, error)
}

// Profiles exposes the profile's cached last-calculated timestamp. A nil
// time means the score was never calculated.
type Profiles interface {
	LastCalculated(ctx context.Context, citizen domain.UserID) (*time.Time, error)
}

// Service runs the application state machine.
type Service struct {
	store      Store
	tx         tx.Runner
	auditor    Auditor
	scores     Scores
	thresholds Thresholds
	profiles   Profiles
	metrics    *metrics.Metrics
	logger     *slog.Logger
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

func New(store Store, runner tx.Runner, auditor Auditor, scores Scores, thresholds Thresholds, profiles Profiles, opts ...Option) *Service {
	s := &Service{
		store:      store,
		tx:         runner,
		auditor:    auditor,
		scores:     scores,
		thresholds: thresholds,
		profiles:   profiles,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func notFound() error {
	return dErrors.New(dErrors.CodeNotFound, "application not found")
}

func (s *Service) find(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	a, err := s.store.Find(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, notFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load application")
	}
	return a, nil
}

func (s *Service) refuse(ctx context.Context, reason string, err error) error {
	s.metrics.IncrementRefused(reason)
	if s.logger != nil {
		s.logger.InfoContext(ctx, "application refused",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requestcontext.UserID(ctx).String(),
			"reason", reason,
		)
	}
	return err
}

// checkCooldown refuses a new application while the latest submitted one was
// rejected and the citizen has not recalculated since.
func (s *Service) checkCooldown(ctx context.Context, citizen domain.UserID, program domain.Program) error {
	latest, err := s.store.LatestSubmitted(ctx, citizen, program)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load previous application")
	}
	if latest.Status != models.StatusRejected {
		return nil
	}
	calc, err := s.scores.LatestCalculation(ctx, citizen)
	if err != nil {
		return err
	}
	if calc != nil && latest.RecalculatedSince(calc.CalculatedAt) {
		return nil
	}
	last, err := s.profiles.LastCalculated(ctx, citizen)
	if err != nil {
		return err
	}
	if last != nil && latest.RecalculatedSince(*last) {
		return nil
	}
	return s.refuse(ctx, "cooldown", dErrors.New(dErrors.CodeConflict,
		"your previous application was rejected; recalculate your score before applying again"))
}

// Create opens an application for the calling citizen. With submit false it
// is saved as a draft without a submission timestamp. The freshly computed
// score and the current threshold are frozen into the application.
func (s *Service) Create(ctx context.Context, program domain.Program, submit bool) (*models.Application, error) {
	if !program.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "unsupported program")
	}
	citizen := requestcontext.UserID(ctx)
	now := requestcontext.Now(ctx)

	var out *models.Application
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		open, err := s.store.Count(txCtx, models.Filter{CitizenID: citizen, Program: program, Statuses: models.OpenStatuses})
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check open applications")
		}
		if open > 0 {
			return s.refuse(txCtx, "duplicate", dErrors.New(dErrors.CodeConflict,
				fmt.Sprintf("you already have an open %s application", program.DisplayName())))
		}
		if err := s.checkCooldown(txCtx, citizen, program); err != nil {
			return err
		}
		threshold, err := s.thresholds.Current(txCtx, program)
		if err != nil {
			if dErrors.HasCode(err, dErrors.CodeNotFound) {
				return s.refuse(txCtx, "no_threshold", dErrors.New(dErrors.CodeBadRequest,
					fmt.Sprintf("no active threshold is configured for %s", program.DisplayName())))
			}
			return err
		}
		score, err := s.scores.ComputeScore(txCtx, citizen)
		if err != nil {
			return err
		}

		a := &models.Application{
			ID:                     domain.ApplicationID(uuid.New()),
			CitizenID:              citizen,
			Program:                program,
			Status:                 models.StatusDraft,
			ScoreAtApplication:     score,
			ThresholdAtApplication: threshold.MaxScore,
			CreatedAt:              now,
		}
		action := auditmodels.ActionApplicationDrafted
		description := fmt.Sprintf("Saved %s application as draft", program.DisplayName())
		if submit {
			a.Submit(now)
			action = auditmodels.ActionApplicationSubmitted
			description = fmt.Sprintf("Submitted %s application", program.DisplayName())
		}
		if err := s.store.Create(txCtx, a); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return s.refuse(txCtx, "duplicate", dErrors.New(dErrors.CodeConflict,
					fmt.Sprintf("you already have an open %s application", program.DisplayName())))
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save application")
		}
		out = a
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         action,
			Description:    description,
			RelatedCitizen: citizen,
			Metadata: map[string]any{
				"application_id": a.ID.String(),
				"program":        string(program),
				"score":          score.String(),
				"threshold":      threshold.MaxScore.String(),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementCreated(string(program), string(out.Status))
	return out, nil
}

// SubmitDraft submits the caller's own draft. The snapshots taken when the
// draft was saved are kept.
func (s *Service) SubmitDraft(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	citizen := requestcontext.UserID(ctx)
	var out *models.Application
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if a.CitizenID != citizen {
			return notFound()
		}
		if a.Status != models.StatusDraft {
			return dErrors.New(dErrors.CodeConflict, "only draft applications can be submitted")
		}
		a.Submit(requestcontext.Now(txCtx))
		if err := s.store.Transition(txCtx, a, models.StatusDraft); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "only draft applications can be submitted")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to submit application")
		}
		out = a
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionApplicationSubmitted,
			Description:    fmt.Sprintf("Submitted %s application", a.Program.DisplayName()),
			RelatedCitizen: citizen,
			Metadata:       map[string]any{"application_id": a.ID.String(), "program": string(a.Program)},
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Review records a supervisor's decision on a submitted application.
// Approved and rejected are terminal.
func (s *Service) Review(ctx context.Context, id domain.ApplicationID, decision models.Decision, notes string) (*models.Application, error) {
	if decision != models.DecisionApprove && decision != models.DecisionReject {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "decision must be approve or reject")
	}
	reviewer := requestcontext.UserID(ctx)
	notes = strings.TrimSpace(notes)

	var out *models.Application
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.find(txCtx, id)
		if err != nil {
			return err
		}
		if a.Status != models.StatusSubmitted {
			return dErrors.New(dErrors.CodeConflict, "only submitted applications can be reviewed")
		}
		a.Review(decision, reviewer, notes, requestcontext.Now(txCtx))
		if err := s.store.Transition(txCtx, a, models.StatusSubmitted); err != nil {
			if errors.Is(err, sentinel.ErrInvalidState) {
				return dErrors.New(dErrors.CodeConflict, "only submitted applications can be reviewed")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to review application")
		}
		out = a
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionApplicationReviewed,
			Description:    fmt.Sprintf("Reviewed %s application: %s", a.Program.DisplayName(), a.Status),
			RelatedCitizen: a.CitizenID,
			Metadata: map[string]any{
				"application_id": a.ID.String(),
				"program":        string(a.Program),
				"status":         string(a.Status),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementReviewed(string(out.Program), string(decision))
	return out, nil
}

// Get returns an application. Citizens only see their own.
func (s *Service) Get(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	a, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestcontext.Role(ctx) == domain.RoleCitizen && a.CitizenID != requestcontext.UserID(ctx) {
		return nil, notFound()
	}
	return a, nil
}

func (s *Service) List(ctx context.Context, filter models.Filter) ([]models.Application, error) {
	out, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list applications")
	}
	return out, nil
}

// ListOwn lists the caller's applications, newest first.
func (s *Service) ListOwn(ctx context.Context) ([]models.Application, error) {
	return s.List(ctx, models.Filter{CitizenID: requestcontext.UserID(ctx)})
}

func (s *Service) Count(ctx context.Context, filter models.Filter) (int, error) {
	n, err := s.store.Count(ctx, filter)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count applications")
	}
	return n, nil
}
