//go:build integration

package portal_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	applicationmodels "benefits/internal/application/models"
	applicationservice "benefits/internal/application/service"
	applicationstore "benefits/internal/application/store"
	auditmodels "benefits/internal/audit/models"
	"benefits/internal/audit/outbox"
	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	catalogservice "benefits/internal/catalog/service"
	catalogstore "benefits/internal/catalog/store"
	identitymodels "benefits/internal/identity/models"
	"benefits/internal/identity/revocation"
	identityservice "benefits/internal/identity/service"
	identitystore "benefits/internal/identity/store"
	jwttoken "benefits/internal/jwt_token"
	"benefits/internal/platform/config"
	"benefits/internal/platform/kafka"
	possessionmodels "benefits/internal/possession/models"
	possessionservice "benefits/internal/possession/service"
	possessionstore "benefits/internal/possession/store"
	reclamationmodels "benefits/internal/reclamation/models"
	reclamationservice "benefits/internal/reclamation/service"
	reclamationstore "benefits/internal/reclamation/store"
	scoringservice "benefits/internal/scoring/service"
	scoringstore "benefits/internal/scoring/store"
	thresholdmodels "benefits/internal/threshold/models"
	thresholdservice "benefits/internal/threshold/service"
	thresholdstore "benefits/internal/threshold/store"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
	"benefits/pkg/testutil/containers"
)

var allTables = []string{
	"audit_outbox", "audit_log", "applications", "fines", "reclamations",
	"calculation_items", "calculations", "thresholds", "possessions",
	"possession_types", "possession_categories", "citizen_profiles", "accounts",
	"token_revocations",
}

// PortalSuite drives the services end to end on a real Postgres schema.
type PortalSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer

	runner       *tx.Postgres
	auditStore   *auditstore.PostgresStore
	audit        *auditservice.Service
	identity     *identityservice.Service
	catalog      *catalogservice.Service
	thresholds   *thresholdservice.Service
	possessions  *possessionservice.Service
	scoring      *scoringservice.Service
	reclamations *reclamationservice.Service
	applications *applicationservice.Service
}

func TestPortalSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PortalSuite))
}

func (s *PortalSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	db := s.postgres.DB
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.runner = tx.NewPostgres(db)
	s.auditStore = auditstore.NewPostgres(db)
	s.audit = auditservice.New(s.auditStore, auditservice.WithLogger(logger))
	s.identity = identityservice.New(identitystore.NewPostgres(db), s.runner, s.audit,
		jwttoken.NewJWTService("integration-key", "benefits-test"), revocation.NewPostgresTRL(db),
		identityservice.Config{TokenTTL: time.Hour, CodeTTL: 5 * time.Minute, DevLoginCode: "123456"},
		identityservice.WithLogger(logger),
	)
	s.catalog = catalogservice.New(catalogstore.NewPostgres(db), s.runner, s.audit)
	s.thresholds = thresholdservice.New(thresholdstore.NewPostgres(db), s.runner, s.audit)
	reclStore := reclamationstore.NewPostgres(db)
	s.possessions = possessionservice.New(possessionstore.NewPostgres(db), s.runner, s.audit, s.catalog, s.identity,
		possessionservice.WithDisputeChecker(reclamationservice.NewCounts(reclStore)))
	s.scoring = scoringservice.New(scoringstore.NewPostgres(db), s.runner, s.audit, s.possessions, s.catalog, s.thresholds, s.identity)
	s.reclamations = reclamationservice.New(reclStore, s.runner, s.audit, s.possessions)
	s.applications = applicationservice.New(applicationstore.NewPostgres(db), s.runner, s.audit, s.scoring, s.thresholds, s.identity)
}

func (s *PortalSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), allTables...))
}

func (s *PortalSuite) account(nationalID, phone string, role domain.Role) domain.UserID {
	ctx := context.Background()
	a, err := s.identity.RegisterAccount(ctx, identitymodels.NewAccount{
		NationalID: nationalID, Phone: phone, FirstName: string(role), Role: role,
	})
	s.Require().NoError(err)
	_, err = s.identity.VerifyAccount(ctx, a.ID)
	s.Require().NoError(err)
	return a.ID
}

func as(id domain.UserID, role domain.Role) context.Context {
	return requestcontext.WithIdentity(context.Background(), id, role)
}

// world is the cast and catalog most scenarios start from.
type world struct {
	admin, clerk, citizen, supervisor domain.UserID
	investigators                     []domain.UserID
	car, apartment                    domain.TypeID
}

func (s *PortalSuite) newWorld() world {
	w := world{
		admin:      s.account("ADM1", "+212600000001", domain.RoleAdmin),
		clerk:      s.account("DE1", "+212600000002", domain.RoleDataEntry),
		citizen:    s.account("CIT1", "+212600000003", domain.RoleCitizen),
		supervisor: s.account("SUP1", "+212600000004", domain.RoleSupervisor),
		investigators: []domain.UserID{
			s.account("INV1", "+212600000005", domain.RoleInvestigator),
			s.account("INV2", "+212600000006", domain.RoleInvestigator),
			s.account("INV3", "+212600000007", domain.RoleInvestigator),
		},
	}
	admin := as(w.admin, domain.RoleAdmin)
	vehicles, err := s.catalog.CreateCategory(admin, "Vehicles", "")
	s.Require().NoError(err)
	housing, err := s.catalog.CreateCategory(admin, "Real estate", "")
	s.Require().NoError(err)
	car, err := s.catalog.CreateType(admin, vehicles.ID, "Car", "", decimal.RequireFromString("0.14"))
	s.Require().NoError(err)
	apartment, err := s.catalog.CreateType(admin, housing.ID, "Apartment", "", decimal.RequireFromString("0.30"))
	s.Require().NoError(err)
	w.car, w.apartment = car.ID, apartment.ID

	today := thresholdmodels.DateOf(time.Now())
	_, err = s.thresholds.Create(admin, domain.ProgramAMO, decimal.RequireFromString("0.50"), today)
	s.Require().NoError(err)
	return w
}

func (s *PortalSuite) addPossession(w world, typ domain.TypeID) *possessionmodels.Possession {
	p, err := s.possessions.Add(as(w.clerk, domain.RoleDataEntry), w.citizen, possessionmodels.Details{
		TypeID:          typ,
		AcquisitionDate: time.Now().AddDate(-1, 0, 0),
		EstimatedValue:  decimal.NewFromInt(50000),
	})
	s.Require().NoError(err)
	return p
}

func (s *PortalSuite) TestScoreApplyAndReview() {
	w := s.newWorld()
	s.addPossession(w, w.car)
	s.addPossession(w, w.apartment)

	citizen := as(w.citizen, domain.RoleCitizen)
	score, err := s.scoring.ComputeScore(citizen, w.citizen)
	s.Require().NoError(err)
	s.True(score.Equal(decimal.RequireFromString("0.44")), "got %s", score)

	app, err := s.applications.Create(citizen, domain.ProgramAMO, true)
	s.Require().NoError(err)
	s.Equal(applicationmodels.StatusSubmitted, app.Status)
	s.True(app.ThresholdAtApplication.Equal(decimal.RequireFromString("0.50")))

	_, err = s.applications.Create(citizen, domain.ProgramAMO, true)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "second open application must be refused")

	_, err = s.applications.Create(citizen, domain.ProgramSocialAid, true)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest), "no social aid threshold configured")

	reviewed, err := s.applications.Review(as(w.supervisor, domain.RoleSupervisor), app.ID, applicationmodels.DecisionApprove, "ok")
	s.Require().NoError(err)
	s.Equal(applicationmodels.StatusApproved, reviewed.Status)
}

func (s *PortalSuite) TestRejectionCooldownLiftsAfterRecalculation() {
	w := s.newWorld()
	s.addPossession(w, w.car)
	citizen := as(w.citizen, domain.RoleCitizen)

	app, err := s.applications.Create(citizen, domain.ProgramAMO, true)
	s.Require().NoError(err)
	_, err = s.applications.Review(as(w.supervisor, domain.RoleSupervisor), app.ID, applicationmodels.DecisionReject, "")
	s.Require().NoError(err)

	_, err = s.applications.Create(citizen, domain.ProgramAMO, true)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "cooldown applies before recalculating")

	// Postgres timestamps are microsecond precision.
	time.Sleep(2 * time.Millisecond)
	_, err = s.scoring.Recalculate(citizen, w.citizen, "")
	s.Require().NoError(err)

	_, err = s.applications.Create(citizen, domain.ProgramAMO, true)
	s.NoError(err)
}

func (s *PortalSuite) TestConcurrentAssignHasOneWinner() {
	w := s.newWorld()
	p := s.addPossession(w, w.car)

	r, err := s.reclamations.Create(as(w.citizen, domain.RoleCitizen), reclamationservice.CreateRequest{
		PossessionID: p.ID, Reason: "sold last year",
	})
	s.Require().NoError(err)

	var wins, losses atomic.Int32
	var wg sync.WaitGroup
	for _, inv := range w.investigators {
		wg.Add(1)
		go func(inv domain.UserID) {
			defer wg.Done()
			_, err := s.reclamations.Assign(as(inv, domain.RoleInvestigator), r.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				losses.Add(1)
			}
		}(inv)
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(len(w.investigators)-1), losses.Load())
}

func (s *PortalSuite) TestReclamationOutcomes() {
	w := s.newWorld()
	car := s.addPossession(w, w.car)
	apartment := s.addPossession(w, w.apartment)
	citizen := as(w.citizen, domain.RoleCitizen)
	investigator := as(w.investigators[0], domain.RoleInvestigator)

	file := func(p *possessionmodels.Possession) domain.ReclamationID {
		r, err := s.reclamations.Create(citizen, reclamationservice.CreateRequest{PossessionID: p.ID, Reason: "not mine"})
		s.Require().NoError(err)
		_, err = s.reclamations.Assign(investigator, r.ID)
		s.Require().NoError(err)
		return r.ID
	}

	s.Run("approval removes the possession from the score", func() {
		id := file(car)
		out, err := s.reclamations.Investigate(investigator, id, reclamationservice.InvestigateRequest{
			Decision: reclamationmodels.DecisionApprove, Notes: "confirmed sale",
		})
		s.Require().NoError(err)
		s.Equal(reclamationmodels.StatusApproved, out.Reclamation.Status)
		s.Nil(out.Fine)

		got, err := s.possessions.Get(citizen, car.ID)
		s.Require().NoError(err)
		s.Equal(possessionmodels.StatusRemoved, got.Status)

		score, err := s.scoring.ComputeScore(citizen, w.citizen)
		s.Require().NoError(err)
		s.True(score.Equal(decimal.RequireFromString("0.30")), "got %s", score)
	})

	s.Run("rejection issues one fine and keeps the possession under investigation", func() {
		id := file(apartment)
		out, err := s.reclamations.Investigate(investigator, id, reclamationservice.InvestigateRequest{
			Decision: reclamationmodels.DecisionReject, FineAmount: decimal.NewFromInt(500),
		})
		s.Require().NoError(err)
		s.Require().NotNil(out.Fine)
		s.True(out.Fine.Amount.Equal(decimal.NewFromInt(500)))

		got, err := s.possessions.Get(citizen, apartment.ID)
		s.Require().NoError(err)
		s.Equal(possessionmodels.StatusUnderInvestigation, got.Status)

		fines, err := s.reclamations.ListFines(citizen, w.citizen)
		s.Require().NoError(err)
		s.Len(fines, 1)
	})
}

func (s *PortalSuite) TestAuditTrail() {
	w := s.newWorld()
	s.addPossession(w, w.car)

	entries, err := s.audit.List(context.Background(), auditmodels.Filter{RelatedCitizen: w.citizen, Limit: 50})
	s.Require().NoError(err)
	actions := make([]auditmodels.Action, 0, len(entries))
	for _, e := range entries {
		actions = append(actions, e.Action)
	}
	s.Contains(actions, auditmodels.ActionAccountRegistered)
	s.Contains(actions, auditmodels.ActionPossessionAdded)

	_, err = s.postgres.DB.ExecContext(context.Background(), `UPDATE audit_log SET description = 'tampered'`)
	s.Error(err, "audit rows are append-only")
}

func (s *PortalSuite) TestOutboxRelayPublishesAuditEntries() {
	s.newWorld()

	broker := containers.GetManager().GetRedpanda(s.T())
	cfg := config.KafkaConfig{Brokers: []string{broker.Broker}, AuditTopic: "benefits.audit.test"}
	producer, err := kafka.NewClient(cfg)
	s.Require().NoError(err)
	defer producer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(kafka.EnsureTopic(ctx, producer, cfg.AuditTopic, 1, 1))

	relay := outbox.New(s.auditStore, s.runner, producer, cfg.AuditTopic, outbox.WithBatchSize(500))
	n, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Positive(n)

	again, err := relay.RelayOnce(ctx)
	s.Require().NoError(err)
	s.Zero(again, "published rows are not sent twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(broker.Broker),
		kgo.ConsumeTopics(cfg.AuditTopic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	received := 0
	for received < n {
		fetches := consumer.PollFetches(ctx)
		s.Require().NoError(ctx.Err(), "timed out after %d of %d records", received, n)
		fetches.EachRecord(func(r *kgo.Record) {
			s.NotEmpty(r.Value)
			received++
		})
	}
	s.Equal(n, received)
}
