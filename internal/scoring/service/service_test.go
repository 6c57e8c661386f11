package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	auditmodels "benefits/internal/audit/models"
	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	catalogmodels "benefits/internal/catalog/models"
	catalogservice "benefits/internal/catalog/service"
	catalogstore "benefits/internal/catalog/store"
	possessionmodels "benefits/internal/possession/models"
	possessionservice "benefits/internal/possession/service"
	possessionstore "benefits/internal/possession/store"
	"benefits/internal/scoring/store"
	thresholdmodels "benefits/internal/threshold/models"
	thresholdservice "benefits/internal/threshold/service"
	thresholdstore "benefits/internal/threshold/store"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type stubCitizens struct{}

func (stubCitizens) RoleOf(context.Context, domain.UserID) (domain.Role, error) {
	return domain.RoleCitizen, nil
}

type fakeProfiles struct {
	mu      sync.Mutex
	scores  map[domain.UserID]decimal.Decimal
	at      map[domain.UserID]time.Time
	insured map[domain.UserID]bool
}

func newFakeProfiles() *fakeProfiles {
	return &fakeProfiles{
		scores:  map[domain.UserID]decimal.Decimal{},
		at:      map[domain.UserID]time.Time{},
		insured: map[domain.UserID]bool{},
	}
}

func (f *fakeProfiles) CacheScore(_ context.Context, citizen domain.UserID, score decimal.Decimal, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scores[citizen] = score
	f.at[citizen] = at
	return nil
}

func (f *fakeProfiles) HasOtherInsurance(_ context.Context, citizen domain.UserID) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.insured[citizen], nil
}

type ScoringSuite struct {
	suite.Suite
	audit       *auditstore.InMemory
	catalog     *catalogservice.Service
	possessions *possessionservice.Service
	thresholds  *thresholdservice.Service
	profiles    *fakeProfiles
	service     *Service

	citizen    domain.UserID
	staffCtx   context.Context
	citizenCtx context.Context
	car, flat  *catalogmodels.Type
}

func TestScoringSuite(t *testing.T) {
	suite.Run(t, new(ScoringSuite))
}

func (s *ScoringSuite) SetupTest() {
	s.audit = auditstore.NewInMemory()
	auditor := auditservice.New(s.audit)
	runner := tx.NewMemory()

	s.catalog = catalogservice.New(catalogstore.NewInMemory(), runner, auditor)
	s.possessions = possessionservice.New(possessionstore.NewInMemory(), runner, auditor, s.catalog, stubCitizens{})
	s.thresholds = thresholdservice.New(thresholdstore.NewInMemory(), runner, auditor)
	s.profiles = newFakeProfiles()
	s.service = New(store.NewInMemory(), runner, auditor, s.possessions, s.catalog, s.thresholds, s.profiles)

	now := time.Date(2026, 7, 1, 10, 0, 0, 0, time.UTC)
	s.citizen = domain.UserID(uuid.New())
	s.staffCtx = requestcontext.WithTime(
		requestcontext.WithIdentity(context.Background(), domain.UserID(uuid.New()), domain.RoleDataEntry), now)
	s.citizenCtx = requestcontext.WithIdentity(s.staffCtx, s.citizen, domain.RoleCitizen)

	vehicles, err := s.catalog.CreateCategory(s.staffCtx, "Vehicles", "")
	s.Require().NoError(err)
	estate, err := s.catalog.CreateCategory(s.staffCtx, "Real estate", "")
	s.Require().NoError(err)
	s.car, err = s.catalog.CreateType(s.staffCtx, vehicles.ID, "Normal car", "", decimal.RequireFromString("0.14"))
	s.Require().NoError(err)
	s.flat, err = s.catalog.CreateType(s.staffCtx, estate.ID, "Flat", "", decimal.RequireFromString("0.30"))
	s.Require().NoError(err)
}

func (s *ScoringSuite) add(typ *catalogmodels.Type) *possessionmodels.Possession {
	p, err := s.possessions.Add(s.staffCtx, s.citizen, possessionmodels.Details{
		TypeID:          typ.ID,
		AcquisitionDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
		EstimatedValue:  decimal.NewFromInt(1000),
	})
	s.Require().NoError(err)
	return p
}

func (s *ScoringSuite) TestComputeScore() {
	s.Run("no possessions scores zero", func() {
		score, err := s.service.ComputeScore(s.citizenCtx, s.citizen)
		s.Require().NoError(err)
		s.True(score.IsZero())
	})

	car := s.add(s.car)
	s.add(s.flat)

	s.Run("sums exactly", func() {
		score, err := s.service.ComputeScore(s.citizenCtx, s.citizen)
		s.Require().NoError(err)
		s.Equal("0.44", score.String())
	})

	s.Run("computing has no side effects", func() {
		_, ok := s.profiles.scores[s.citizen]
		s.False(ok)
	})

	s.Run("inactive possessions drop out", func() {
		_, err := s.possessions.Transition(s.staffCtx, car.ID, possessionmodels.StatusUnderInvestigation)
		s.Require().NoError(err)
		score, err := s.service.ComputeScore(s.citizenCtx, s.citizen)
		s.Require().NoError(err)
		s.Equal("0.3", score.String())
	})
}

func (s *ScoringSuite) TestRecalculateSnapshotsItems() {
	car := s.add(s.car)
	s.add(s.flat)

	calc, err := s.service.Recalculate(s.citizenCtx, s.citizen, "")
	s.Require().NoError(err)
	s.Equal("0.44", calc.TotalScore.String())
	s.Len(calc.Items, 2)
	s.Equal("0.44", s.profiles.scores[s.citizen].String())

	entries, err := s.audit.List(s.citizenCtx, auditmodels.Filter{Action: auditmodels.ActionCalculationPerformed})
	s.Require().NoError(err)
	s.Len(entries, 1)

	// Later changes move the live score but not the stored record.
	_, err = s.possessions.Transition(s.staffCtx, car.ID, possessionmodels.StatusRemoved)
	s.Require().NoError(err)
	points := decimal.RequireFromString("0.35")
	_, err = s.catalog.UpdateType(s.staffCtx, s.flat.ID, catalogservice.TypeUpdate{PointValue: &points})
	s.Require().NoError(err)

	live, err := s.service.ComputeScore(s.citizenCtx, s.citizen)
	s.Require().NoError(err)
	s.Equal("0.35", live.String())

	history, err := s.service.History(s.citizenCtx, s.citizen, 0)
	s.Require().NoError(err)
	s.Require().Len(history, 1)
	s.Equal("0.44", history[0].TotalScore.String())
	names := map[string]string{}
	for _, item := range history[0].Items {
		names[item.PossessionName] = item.PointValue.String()
	}
	s.Equal(map[string]string{"Normal car": "0.14", "Flat": "0.3"}, names)
}

func (s *ScoringSuite) TestRecalculateAuthorization() {
	s.Run("citizens cannot recalculate someone else", func() {
		other := requestcontext.WithIdentity(s.staffCtx, domain.UserID(uuid.New()), domain.RoleCitizen)
		_, err := s.service.Recalculate(other, s.citizen, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("investigators cannot recalculate", func() {
		inv := requestcontext.WithIdentity(s.staffCtx, domain.UserID(uuid.New()), domain.RoleInvestigator)
		_, err := s.service.Recalculate(inv, s.citizen, "")
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("data entry staff can", func() {
		calc, err := s.service.Recalculate(s.staffCtx, s.citizen, "after correction")
		s.Require().NoError(err)
		s.Equal("after correction", calc.Notes)
	})
}

func (s *ScoringSuite) TestBreakdown() {
	s.add(s.car)
	s.add(s.flat)
	_, err := s.thresholds.Create(s.staffCtx, domain.ProgramAMO, decimal.RequireFromString("0.50"), time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	s.Require().NoError(err)

	b, err := s.service.Breakdown(s.citizenCtx, s.citizen)
	s.Require().NoError(err)
	s.Equal("0.44", b.Total.String())
	s.Len(b.Lines, 2)
	s.True(b.Eligibility.AMOEligible)
	s.True(b.Eligibility.SocialAidEligible)
	s.True(thresholdmodels.Unreachable.Equal(b.Ceilings.SocialAid))

	categories := map[string]bool{}
	for _, l := range b.Lines {
		categories[l.CategoryName] = true
	}
	s.True(categories["Vehicles"])
	s.True(categories["Real estate"])

	s.profiles.insured[s.citizen] = true
	b, err = s.service.Breakdown(s.citizenCtx, s.citizen)
	s.Require().NoError(err)
	s.False(b.Eligibility.AMOEligible)
}
