package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	applicationmodels "benefits/internal/application/models"
	auditmodels "benefits/internal/audit/models"
	"benefits/internal/eligibility"
	possessionmodels "benefits/internal/possession/models"
	reclamationmodels "benefits/internal/reclamation/models"
	thresholdmodels "benefits/internal/threshold/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

type fakeReads struct {
	score     decimal.Decimal
	scoreErr  error
	ceilings  thresholdmodels.Ceilings
	insured   bool
	refreshed []domain.UserID

	possessionFilter possessionmodels.Filter
	reclamationSince time.Time
}

func (f *fakeReads) RefreshScore(_ context.Context, citizen domain.UserID) (decimal.Decimal, error) {
	f.refreshed = append(f.refreshed, citizen)
	return f.score, f.scoreErr
}

func (f *fakeReads) Ceilings(context.Context) (thresholdmodels.Ceilings, error) {
	return f.ceilings, nil
}

func (f *fakeReads) HasOtherInsurance(context.Context, domain.UserID) (bool, error) {
	return f.insured, nil
}

func (f *fakeReads) CountCitizens(context.Context) (int, error) { return 12, nil }
func (f *fakeReads) CountAccounts(context.Context) (int, error) { return 15, nil }

func (f *fakeReads) ListByCitizen(_ context.Context, _ domain.UserID, filter possessionmodels.Filter) ([]possessionmodels.Possession, error) {
	f.possessionFilter = filter
	return nil, nil
}

func (f *fakeReads) ListAddedBy(_ context.Context, _ domain.UserID, limit int) ([]possessionmodels.Possession, error) {
	return make([]possessionmodels.Possession, limit/5), nil
}

func (f *fakeReads) Count(_ context.Context, filter reclamationmodels.Filter) (int, error) {
	if len(filter.Statuses) == 1 && filter.Statuses[0] == reclamationmodels.StatusPending {
		return 3, nil
	}
	return 0, nil
}

func (f *fakeReads) Queue(context.Context, int) ([]reclamationmodels.Reclamation, error) {
	return []reclamationmodels.Reclamation{{}, {}}, nil
}

func (f *fakeReads) Caseload(context.Context) ([]reclamationmodels.Reclamation, error) {
	return []reclamationmodels.Reclamation{{}}, nil
}

func (f *fakeReads) CountResolvedBy(_ context.Context, _ domain.UserID, since time.Time) (int, error) {
	f.reclamationSince = since
	return 4, nil
}

type fakeApplications struct {
	mu      sync.Mutex
	filters []applicationmodels.Filter
}

func (f *fakeApplications) record(filter applicationmodels.Filter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filters = append(f.filters, filter)
}

func (f *fakeApplications) List(_ context.Context, filter applicationmodels.Filter) ([]applicationmodels.Application, error) {
	f.record(filter)
	return []applicationmodels.Application{{Status: applicationmodels.StatusSubmitted}}, nil
}

func (f *fakeApplications) Count(_ context.Context, filter applicationmodels.Filter) (int, error) {
	f.record(filter)
	return 2, nil
}

type fakeAudit struct{}

func (fakeAudit) List(_ context.Context, filter auditmodels.Filter) ([]auditmodels.Entry, error) {
	return make([]auditmodels.Entry, filter.Limit), nil
}

type DashboardSuite struct {
	suite.Suite
	reads   *fakeReads
	apps    *fakeApplications
	service *Service
	now     time.Time
}

func TestDashboardSuite(t *testing.T) {
	suite.Run(t, new(DashboardSuite))
}

func (s *DashboardSuite) SetupTest() {
	s.now = time.Date(2026, 4, 14, 15, 45, 0, 0, time.UTC)
	s.reads = &fakeReads{
		score: decimal.RequireFromString("0.44"),
		ceilings: thresholdmodels.Ceilings{
			AMO:       decimal.RequireFromString("0.50"),
			SocialAid: thresholdmodels.Unreachable,
		},
	}
	s.apps = &fakeApplications{}
	s.service = New(Deps{
		Scores:       s.reads,
		Thresholds:   s.reads,
		Accounts:     s.reads,
		Possessions:  s.reads,
		Reclamations: s.reads,
		Applications: s.apps,
		Audit:        fakeAudit{},
	})
}

func (s *DashboardSuite) as(role domain.Role) (context.Context, domain.UserID) {
	id := domain.UserID(uuid.New())
	return requestcontext.WithTime(requestcontext.WithIdentity(context.Background(), id, role), s.now), id
}

func (s *DashboardSuite) TestCitizen() {
	s.Run("gathers every section", func() {
		ctx, id := s.as(domain.RoleCitizen)
		out, err := s.service.Citizen(ctx)
		s.Require().NoError(err)

		s.Equal([]domain.UserID{id}, s.reads.refreshed)
		s.True(out.CurrentScore.Equal(decimal.RequireFromString("0.44")))
		s.Require().NotNil(out.AMOThreshold)
		s.True(out.AMOThreshold.Equal(decimal.RequireFromString("0.50")))
		s.Nil(out.SocialAidThreshold)
		s.Equal(eligibility.Result{AMOEligible: true, SocialAidEligible: true}, out.Eligibility)
		s.Equal(5, s.reads.possessionFilter.Limit)
		s.NotNil(out.RecentPossessions)
		s.Equal(3, out.PendingReclamations)
		s.Equal(2, out.ActiveApplications)
		s.Require().Len(s.apps.filters, 1)
		s.Equal(applicationmodels.PendingStatuses, s.apps.filters[0].Statuses)
	})

	s.Run("other insurance blocks AMO only", func() {
		s.reads.insured = true
		ctx, _ := s.as(domain.RoleCitizen)
		out, err := s.service.Citizen(ctx)
		s.Require().NoError(err)
		s.False(out.Eligibility.AMOEligible)
		s.Equal(eligibility.ReasonHasOtherInsurance, out.Eligibility.AMOReason)
		s.True(out.Eligibility.SocialAidEligible)
	})

	s.Run("a failed section fails the dashboard", func() {
		s.reads.scoreErr = errors.New("db down")
		ctx, _ := s.as(domain.RoleCitizen)
		_, err := s.service.Citizen(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func (s *DashboardSuite) TestStaff() {
	s.Run("data entry", func() {
		ctx, _ := s.as(domain.RoleDataEntry)
		out, err := s.service.Staff(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(out.DataEntry)
		s.Nil(out.Admin)
		s.Len(out.DataEntry.RecentAdditions, 2)
		s.Equal(12, out.DataEntry.CitizensCount)
	})

	s.Run("investigator counts from the start of the day", func() {
		ctx, _ := s.as(domain.RoleInvestigator)
		out, err := s.service.Staff(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(out.Investigator)
		s.Len(out.Investigator.Caseload, 1)
		s.Len(out.Investigator.Queue, 2)
		s.Equal(4, out.Investigator.CompletedToday)
		s.Equal(time.Date(2026, 4, 14, 0, 0, 0, 0, time.UTC), s.reads.reclamationSince)
	})

	s.Run("supervisor", func() {
		ctx, id := s.as(domain.RoleSupervisor)
		out, err := s.service.Staff(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(out.Supervisor)
		s.Len(out.Supervisor.PendingApplications, 1)
		s.Equal(2, out.Supervisor.ApprovedToday)

		var approved *applicationmodels.Filter
		for i := range s.apps.filters {
			if s.apps.filters[i].ReviewedBy == id {
				approved = &s.apps.filters[i]
			}
		}
		s.Require().NotNil(approved)
		s.Equal([]applicationmodels.Status{applicationmodels.StatusApproved}, approved.Statuses)
	})

	s.Run("admin", func() {
		ctx, _ := s.as(domain.RoleAdmin)
		out, err := s.service.Staff(ctx)
		s.Require().NoError(err)
		s.Require().NotNil(out.Admin)
		s.Equal(15, out.Admin.TotalUsers)
		s.Equal(2, out.Admin.TotalApplications)
		s.Equal(3, out.Admin.PendingReclamations)
		s.Len(out.Admin.RecentActivity, 20)
	})

	s.Run("citizens have no staff dashboard", func() {
		ctx, _ := s.as(domain.RoleCitizen)
		_, err := s.service.Staff(ctx)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})
}
