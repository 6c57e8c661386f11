package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	applicationmodels "benefits/internal/application/models"
	auditmodels "benefits/internal/audit/models"
	"benefits/internal/dashboard/metrics"
	"benefits/internal/dashboard/models"
	"benefits/internal/eligibility"
	possessionmodels "benefits/internal/possession/models"
	reclamationmodels "benefits/internal/reclamation/models"
	thresholdmodels "benefits/internal/threshold/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

type Scores interface {
	RefreshScore(ctx context.Context, citizen domain.UserID) (decimal.Decimal, error)
}

type Thresholds interface {
	Ceilings(ctx context.Context) (thresholdmodels.Ceilings, error)
}

type Accounts interface {
	HasOtherInsurance(ctx context.Context, citizen domain.UserID) (bool, error)
	CountCitizens(ctx context.Context) (int, error)
	CountAccounts(ctx context.Context) (int, error)
}

type Possessions interface {
	ListByCitizen(ctx context.Context, citizen domain.UserID, filter possessionmodels.Filter) ([]possessionmodels.Possession, error)
	ListAddedBy(ctx context.Context, staff domain.UserID, limit int) ([]possessionmodels.Possession, error)
}

type Reclamations interface {
	Count(ctx context.Context, filter reclamationmodels.Filter) (int, error)
	Queue(ctx context.Context, limit int) ([]reclamationmodels.Reclamation, error)
	Caseload(ctx context.Context) ([]reclamationmodels.Reclamation, error)
	CountResolvedBy(ctx context.Context, investigator domain.UserID, since time.Time) (int, error)
}

type Applications interface {
	List(ctx context.Context, filter applicationmodels.Filter) ([]applicationmodels.Application, error)
	Count(ctx context.Context, filter applicationmodels.Filter) (int, error)
}

type AuditLog interface {
	List(ctx context.Context, filter auditmodels.Filter) ([]auditmodels.Entry, error)
}

// Deps groups the read sides the dashboards draw from.
type Deps struct {
	Scores       Scores
	Thresholds   Thresholds
	Accounts     Accounts
	Possessions  Possessions
	Reclamations Reclamations
	Applications Applications
	Audit        AuditLog
}

const (
	recentPossessions = 5
	recentAdditions   = 10
	queueSize         = 20
	recentActivity    = 20
	buildTimeout      = 5 * time.Second
)

var tracer = otel.Tracer("benefits/dashboard")

// Service assembles dashboards. Independent reads run concurrently and the
// first failure cancels the rest.
type Service struct {
	deps    Deps
	metrics *metrics.Metrics
	logger  *slog.Logger
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

func New(deps Deps, opts ...Option) *Service {
	s := &Service{deps: deps}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// section runs fn on g, timing it under name.
func (s *Service) section(ctx context.Context, g *errgroup.Group, name string, fn func(ctx context.Context) error) {
	g.Go(func() error {
		ctx, span := tracer.Start(ctx, "dashboard."+name)
		defer span.End()
		start := time.Now()
		err := fn(ctx)
		s.metrics.ObserveSectionLatency(name, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, name)
			if s.logger != nil {
				s.logger.DebugContext(ctx, "dashboard section failed",
					"request_id", requestcontext.RequestID(ctx),
					"section", name,
					"error", err,
				)
			}
		}
		return err
	})
}

func thresholdOrNil(ceiling decimal.Decimal) *decimal.Decimal {
	if ceiling.Equal(thresholdmodels.Unreachable) {
		return nil
	}
	return &ceiling
}

// Citizen refreshes the caller's score and gathers the rest of the home page.
func (s *Service) Citizen(ctx context.Context) (*models.Citizen, error) {
	citizen := requestcontext.UserID(ctx)
	ctx, span := tracer.Start(ctx, "dashboard.Citizen",
		trace.WithAttributes(attribute.String("citizen_id", citizen.String())))
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveBuildLatency("citizen", time.Since(start)) }(time.Now())

	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	out := &models.Citizen{}
	var ceilings thresholdmodels.Ceilings

	s.section(gctx, g, "score", func(ctx context.Context) error {
		score, err := s.deps.Scores.RefreshScore(ctx, citizen)
		out.CurrentScore = score
		return err
	})
	s.section(gctx, g, "thresholds", func(ctx context.Context) error {
		var err error
		ceilings, err = s.deps.Thresholds.Ceilings(ctx)
		return err
	})
	s.section(gctx, g, "insurance", func(ctx context.Context) error {
		var err error
		out.HasOtherInsurance, err = s.deps.Accounts.HasOtherInsurance(ctx, citizen)
		return err
	})
	s.section(gctx, g, "possessions", func(ctx context.Context) error {
		var err error
		out.RecentPossessions, err = s.deps.Possessions.ListByCitizen(ctx, citizen, possessionmodels.Filter{Limit: recentPossessions})
		return err
	})
	s.section(gctx, g, "reclamations", func(ctx context.Context) error {
		var err error
		out.PendingReclamations, err = s.deps.Reclamations.Count(ctx, reclamationmodels.Filter{
			CitizenID: citizen,
			Statuses:  []reclamationmodels.Status{reclamationmodels.StatusPending},
		})
		return err
	})
	s.section(gctx, g, "applications", func(ctx context.Context) error {
		var err error
		out.ActiveApplications, err = s.deps.Applications.Count(ctx, applicationmodels.Filter{
			CitizenID: citizen,
			Statuses:  applicationmodels.PendingStatuses,
		})
		return err
	})

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "citizen dashboard")
		return nil, asDomainError(err)
	}

	out.AMOThreshold = thresholdOrNil(ceilings.AMO)
	out.SocialAidThreshold = thresholdOrNil(ceilings.SocialAid)
	out.Eligibility = eligibility.Evaluate(out.CurrentScore, ceilings, out.HasOtherInsurance)
	if out.RecentPossessions == nil {
		out.RecentPossessions = []possessionmodels.Possession{}
	}
	return out, nil
}

// Staff builds the section for the caller's role.
func (s *Service) Staff(ctx context.Context) (*models.Staff, error) {
	role := requestcontext.Role(ctx)
	ctx, span := tracer.Start(ctx, "dashboard.Staff",
		trace.WithAttributes(attribute.String("role", string(role))))
	defer span.End()
	defer func(start time.Time) { s.metrics.ObserveBuildLatency(string(role), time.Since(start)) }(time.Now())

	ctx, cancel := context.WithTimeout(ctx, buildTimeout)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	me := requestcontext.UserID(ctx)
	startOfDay := thresholdmodels.DateOf(requestcontext.Now(ctx))
	out := &models.Staff{Role: role}

	switch role {
	case domain.RoleDataEntry:
		view := &models.DataEntry{}
		out.DataEntry = view
		s.section(gctx, g, "recent_additions", func(ctx context.Context) error {
			var err error
			view.RecentAdditions, err = s.deps.Possessions.ListAddedBy(ctx, me, recentAdditions)
			return err
		})
		s.section(gctx, g, "citizens_count", func(ctx context.Context) error {
			var err error
			view.CitizensCount, err = s.deps.Accounts.CountCitizens(ctx)
			return err
		})
	case domain.RoleInvestigator:
		view := &models.Investigator{}
		out.Investigator = view
		s.section(gctx, g, "caseload", func(ctx context.Context) error {
			var err error
			view.Caseload, err = s.deps.Reclamations.Caseload(ctx)
			return err
		})
		s.section(gctx, g, "queue", func(ctx context.Context) error {
			var err error
			view.Queue, err = s.deps.Reclamations.Queue(ctx, queueSize)
			return err
		})
		s.section(gctx, g, "completed_today", func(ctx context.Context) error {
			var err error
			view.CompletedToday, err = s.deps.Reclamations.CountResolvedBy(ctx, me, startOfDay)
			return err
		})
	case domain.RoleSupervisor:
		view := &models.Supervisor{}
		out.Supervisor = view
		s.section(gctx, g, "pending_applications", func(ctx context.Context) error {
			var err error
			view.PendingApplications, err = s.deps.Applications.List(ctx, applicationmodels.Filter{
				Statuses: []applicationmodels.Status{applicationmodels.StatusSubmitted},
			})
			return err
		})
		s.section(gctx, g, "approved_today", func(ctx context.Context) error {
			var err error
			view.ApprovedToday, err = s.deps.Applications.Count(ctx, applicationmodels.Filter{
				Statuses:      []applicationmodels.Status{applicationmodels.StatusApproved},
				ReviewedBy:    me,
				ReviewedSince: startOfDay,
			})
			return err
		})
	case domain.RoleAdmin:
		view := &models.Admin{}
		out.Admin = view
		s.section(gctx, g, "total_users", func(ctx context.Context) error {
			var err error
			view.TotalUsers, err = s.deps.Accounts.CountAccounts(ctx)
			return err
		})
		s.section(gctx, g, "total_applications", func(ctx context.Context) error {
			var err error
			view.TotalApplications, err = s.deps.Applications.Count(ctx, applicationmodels.Filter{})
			return err
		})
		s.section(gctx, g, "pending_reclamations", func(ctx context.Context) error {
			var err error
			view.PendingReclamations, err = s.deps.Reclamations.Count(ctx, reclamationmodels.Filter{
				Statuses: []reclamationmodels.Status{reclamationmodels.StatusPending},
			})
			return err
		})
		s.section(gctx, g, "recent_activity", func(ctx context.Context) error {
			var err error
			view.RecentActivity, err = s.deps.Audit.List(ctx, auditmodels.Filter{Limit: recentActivity})
			return err
		})
	default:
		return nil, dErrors.New(dErrors.CodeForbidden, "no staff dashboard for this role")
	}

	if err := g.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "staff dashboard")
		return nil, asDomainError(err)
	}
	return out, nil
}

// asDomainError maps a deadline to a timeout and leaves coded errors alone.
func asDomainError(err error) error {
	if _, ok := dErrors.From(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "dashboard took too long")
	}
	return dErrors.Wrap(err, dErrors.CodeInternal, "failed to build dashboard")
}
