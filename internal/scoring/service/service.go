package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	auditmodels "benefits/internal/audit/models"
	catalogmodels "benefits/internal/catalog/models"
	"benefits/internal/eligibility"
	possessionmodels "benefits/internal/possession/models"
	"benefits/internal/scoring/metrics"
	"benefits/internal/scoring/models"
	thresholdmodels "benefits/internal/threshold/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Create(ctx context.Context, c *models.Calculation) error
	ListByCitizen(ctx context.Context, citizen domain.UserID, limit int) ([]models.Calculation, error)
	Latest(ctx context.Context, citizen domain.UserID) (*models.Calculation, error)
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

type Possessions interface {
	ListActive(ctx context.Context, citizen domain.UserID) ([]possessionmodels.Possession, error)
}

type Catalog interface {
	TypesByIDs(ctx context.Context, ids []domain.TypeID) (map[domain.TypeID]catalogmodels.Type, error)
	ListCategories(ctx context.Context) ([]catalogmodels.Category, error)
}

type Thresholds interface {
	Ceilings(ctx context.Context) (thresholdmodels.Ceilings, error)
}

// Profiles owns the cached score on the citizen profile.
type Profiles interface {
	CacheScore(ctx context.Context, citizen domain.UserID, score decimal.Decimal, at time.Time) error
	HasOtherInsurance(ctx context.Context, citizen domain.UserID) (bool, error)
}

var tracer = otel.Tracer("benefits/scoring")

// Service computes social indicator scores. ComputeScore itself has no side
// effects; RefreshScore and Recalculate persist the result.
type Service struct {
	store       Store
	tx          tx.Runner
	auditor     Auditor
	possessions Possessions
	catalog     Catalog
	thresholds  Thresholds
	profiles    Profiles
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

func New(store Store, runner tx.Runner, auditor Auditor, possessions Possessions, catalog Catalog,
	thresholds Thresholds, profiles Profiles, opts ...Option) *Service {
	s := &Service{
		store:       store,
		tx:          runner,
		auditor:     auditor,
		possessions: possessions,
		catalog:     catalog,
		thresholds:  thresholds,
		profiles:    profiles,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// scored pairs an active possession with the live type it is scored against.
type scored struct {
	possession possessionmodels.Possession
	typ        catalogmodels.Type
	known      bool
}

// activeLines loads the citizen's active possessions with live point values.
// A possession whose type cannot be resolved contributes zero.
func (s *Service) activeLines(ctx context.Context, citizen domain.UserID) ([]scored, decimal.Decimal, error) {
	ctx, span := tracer.Start(ctx, "scoring.activeLines",
		trace.WithAttributes(attribute.String("citizen_id", citizen.String())))
	defer span.End()
	start := time.Now()

	possessions, err := s.possessions.ListActive(ctx, citizen)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list possessions")
		return nil, decimal.Zero, err
	}
	ids := make([]domain.TypeID, 0, len(possessions))
	seen := make(map[domain.TypeID]bool, len(possessions))
	for _, p := range possessions {
		if !seen[p.TypeID] {
			seen[p.TypeID] = true
			ids = append(ids, p.TypeID)
		}
	}
	types, err := s.catalog.TypesByIDs(ctx, ids)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load types")
		return nil, decimal.Zero, err
	}

	lines := make([]scored, 0, len(possessions))
	values := make([]decimal.Decimal, 0, len(possessions))
	for _, p := range possessions {
		t, ok := types[p.TypeID]
		lines = append(lines, scored{possession: p, typ: t, known: ok})
		if ok {
			values = append(values, t.PointValue)
		}
	}
	total := models.Sum(values)

	span.SetAttributes(
		attribute.Int("possessions", len(possessions)),
		attribute.String("score", total.String()),
	)
	s.metrics.ObserveCompute(time.Since(start), len(possessions))
	return lines, total, nil
}

// ComputeScore sums the live point values of the citizen's active
// possessions. No possessions scores zero.
func (s *Service) ComputeScore(ctx context.Context, citizen domain.UserID) (decimal.Decimal, error) {
	_, total, err := s.activeLines(ctx, citizen)
	if err != nil {
		return decimal.Zero, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute score")
	}
	return total, nil
}

// RefreshScore computes the score and stores it on the profile cache.
func (s *Service) RefreshScore(ctx context.Context, citizen domain.UserID) (decimal.Decimal, error) {
	score, err := s.ComputeScore(ctx, citizen)
	if err != nil {
		return decimal.Zero, err
	}
	if err := s.profiles.CacheScore(ctx, citizen, score, requestcontext.Now(ctx)); err != nil {
		return decimal.Zero, err
	}
	return score, nil
}

// authorize lets citizens recalculate their own score and staff with the
// capability recalculate anyone's.
func authorize(ctx context.Context, citizen domain.UserID) error {
	actor := requestcontext.UserID(ctx)
	role := requestcontext.Role(ctx)
	if role.Can(domain.CapRecalculateAnyScore) {
		return nil
	}
	if actor == citizen && role.Can(domain.CapRecalculateOwnScore) {
		return nil
	}
	return dErrors.New(dErrors.CodeForbidden, "not allowed to recalculate this score")
}

// Recalculate writes a Calculation Record snapshotting every active
// possession, refreshes the profile cache and appends calculation_performed.
func (s *Service) Recalculate(ctx context.Context, citizen domain.UserID, notes string) (*models.Calculation, error) {
	if err := authorize(ctx, citizen); err != nil {
		return nil, err
	}
	ctx, span := tracer.Start(ctx, "scoring.Recalculate")
	defer span.End()

	now := requestcontext.Now(ctx)
	var calc *models.Calculation
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		lines, total, err := s.activeLines(txCtx, citizen)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute score")
		}
		calc = &models.Calculation{
			ID:           domain.CalculationID(uuid.New()),
			CitizenID:    citizen,
			TotalScore:   total,
			CalculatedBy: requestcontext.UserID(ctx),
			Notes:        notes,
			CalculatedAt: now,
			Items:        make([]models.Item, 0, len(lines)),
		}
		for _, l := range lines {
			if !l.known {
				continue
			}
			calc.Items = append(calc.Items, models.Item{
				PossessionID:   l.possession.ID,
				PossessionName: l.typ.Name,
				PointValue:     l.typ.PointValue,
			})
		}
		if err := s.store.Create(txCtx, calc); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save calculation")
		}
		if err := s.profiles.CacheScore(txCtx, citizen, total, now); err != nil {
			return err
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionCalculationPerformed,
			Description:    fmt.Sprintf("Calculated social indicator: %s", total.String()),
			RelatedCitizen: citizen,
			Metadata: map[string]any{
				"calculation_id": calc.ID.String(),
				"total_score":    total.String(),
				"items":          len(calc.Items),
			},
		})
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recalculate")
		return nil, err
	}
	s.metrics.IncrementCalculations()
	s.logger.DebugContext(ctx, "score recalculated",
		"request_id", requestcontext.RequestID(ctx),
		"citizen_id", citizen.String(),
		"total_score", calc.TotalScore.String(),
	)
	return calc, nil
}

// Breakdown is the read-only calculator view: every active possession with
// its live points, both ceilings and the eligibility outcome.
func (s *Service) Breakdown(ctx context.Context, citizen domain.UserID) (*models.Breakdown, error) {
	lines, total, err := s.activeLines(ctx, citizen)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to compute score")
	}
	categories, err := s.catalog.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	names := make(map[domain.CategoryID]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	ceilings, err := s.thresholds.Ceilings(ctx)
	if err != nil {
		return nil, err
	}
	insured, err := s.profiles.HasOtherInsurance(ctx, citizen)
	if err != nil {
		return nil, err
	}

	out := &models.Breakdown{
		CitizenID:   citizen,
		Lines:       make([]models.Line, 0, len(lines)),
		Total:       total,
		Ceilings:    ceilings,
		Eligibility: eligibility.Evaluate(total, ceilings, insured),
	}
	for _, l := range lines {
		line := models.Line{
			PossessionID: l.possession.ID,
			Description:  l.possession.Description,
			TypeID:       l.possession.TypeID,
			Points:       decimal.Zero,
		}
		if l.known {
			line.TypeName = l.typ.Name
			line.CategoryName = names[l.typ.CategoryID]
			line.Points = l.typ.PointValue
		}
		out.Lines = append(out.Lines, line)
	}
	return out, nil
}

// History lists calculation records newest first.
func (s *Service) History(ctx context.Context, citizen domain.UserID, limit int) ([]models.Calculation, error) {
	out, err := s.store.ListByCitizen(ctx, citizen, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list calculations")
	}
	return out, nil
}

// LatestCalculation returns the newest calculation record, or nil when the
// citizen has none.
func (s *Service) LatestCalculation(ctx context.Context, citizen domain.UserID) (*models.Calculation, error) {
	c, err := s.store.Latest(ctx, citizen)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load calculation")
	}
	return c, nil
}
