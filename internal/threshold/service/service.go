package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	auditmodels "benefits/internal/audit/models"
	"benefits/internal/threshold/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, t *models.Threshold) error
	Current(ctx context.Context, program domain.Program, today time.Time) (*models.Threshold, error)
	Deactivate(ctx context.Context, id domain.ThresholdID) (*models.Threshold, error)
	List(ctx context.Context, program domain.Program) ([]models.Threshold, error)
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

// Service is the threshold registry.
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

// Current returns the threshold in force today for program, or a not-found
// error when none is. Today is the request date in UTC.
func (s *Service) Current(ctx context.Context, program domain.Program) (*models.Threshold, error) {
	t, err := s.store.Current(ctx, program, requestcontext.Now(ctx))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no threshold in force for "+program.DisplayName())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load threshold")
	}
	return t, nil
}

// CeilingOrUnreachable returns the current max score, or models.Unreachable
// when no threshold is in force.
func (s *Service) CeilingOrUnreachable(ctx context.Context, program domain.Program) (decimal.Decimal, error) {
	t, err := s.Current(ctx, program)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return models.Unreachable, nil
		}
		return decimal.Zero, err
	}
	return t.MaxScore, nil
}

// Ceilings resolves both programs at once.
func (s *Service) Ceilings(ctx context.Context) (models.Ceilings, error) {
	amo, err := s.CeilingOrUnreachable(ctx, domain.ProgramAMO)
	if err != nil {
		return models.Ceilings{}, err
	}
	aid, err := s.CeilingOrUnreachable(ctx, domain.ProgramSocialAid)
	if err != nil {
		return models.Ceilings{}, err
	}
	return models.Ceilings{AMO: amo, SocialAid: aid}, nil
}

// Create registers a new threshold. A second row for the same program and
// effective date is a conflict.
func (s *Service) Create(ctx context.Context, program domain.Program, maxScore decimal.Decimal, effective time.Time) (*models.Threshold, error) {
	actor := requestcontext.UserID(ctx)
	t, err := models.New(program, maxScore, effective, actor, requestcontext.Now(ctx))
	if err != nil {
		return nil, err
	}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.Create(txCtx, t); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "a threshold already exists for this program and effective date")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create threshold")
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action: auditmodels.ActionThresholdCreated,
			Description: fmt.Sprintf("Set %s threshold to %s effective %s",
				program.DisplayName(), t.MaxScore.String(), t.EffectiveDate.Format(models.DateLayout)),
			Metadata: map[string]any{
				"threshold_id":   int64(t.ID),
				"program":        string(program),
				"max_score":      t.MaxScore.String(),
				"effective_date": t.EffectiveDate.Format(models.DateLayout),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "threshold set",
		"request_id", requestcontext.RequestID(ctx),
		"program", string(program),
		"max_score", t.MaxScore.String(),
		"effective_date", t.EffectiveDate.Format(models.DateLayout),
	)
	return t, nil
}

// Deactivate withdraws a threshold; the previous one in force takes over.
func (s *Service) Deactivate(ctx context.Context, id domain.ThresholdID) (*models.Threshold, error) {
	var out *models.Threshold
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		t, err := s.store.Deactivate(txCtx, id)
		if err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.New(dErrors.CodeNotFound, "threshold not found")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to deactivate threshold")
		}
		out = t
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action: auditmodels.ActionThresholdDeactivated,
			Description: fmt.Sprintf("Deactivated %s threshold effective %s",
				t.Program.DisplayName(), t.EffectiveDate.Format(models.DateLayout)),
			Metadata: map[string]any{"threshold_id": int64(t.ID), "program": string(t.Program)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.logger.InfoContext(ctx, "threshold deactivated",
		"request_id", requestcontext.RequestID(ctx),
		"threshold_id", int64(out.ID),
		"program", string(out.Program),
	)
	return out, nil
}

func (s *Service) List(ctx context.Context, program domain.Program) ([]models.Threshold, error) {
	rows, err := s.store.List(ctx, program)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list thresholds")
	}
	return rows, nil
}
