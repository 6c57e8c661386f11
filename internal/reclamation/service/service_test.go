package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	auditmodels "benefits/internal/audit/models"
	auditservice "benefits/internal/audit/service"
	auditstore "benefits/internal/audit/store"
	catalogservice "benefits/internal/catalog/service"
	catalogstore "benefits/internal/catalog/store"
	possessionmodels "benefits/internal/possession/models"
	possessionservice "benefits/internal/possession/service"
	possessionstore "benefits/internal/possession/store"
	"benefits/internal/reclamation/models"
	"benefits/internal/reclamation/store"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type stubCitizens map[domain.UserID]domain.Role

func (s stubCitizens) RoleOf(_ context.Context, id domain.UserID) (domain.Role, error) {
	role, ok := s[id]
	if !ok {
		return "", dErrors.New(dErrors.CodeNotFound, "account not found")
	}
	return role, nil
}

type WorkflowSuite struct {
	suite.Suite
	audit       *auditstore.InMemory
	store       *store.InMemory
	possessions *possessionservice.Service
	service     *Service

	citizen      domain.UserID
	investigator domain.UserID
	now          time.Time
	citizenCtx   context.Context
	clerkCtx     context.Context
	investCtx    context.Context
	adminCtx     context.Context
	possession   *possessionmodels.Possession
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.audit = auditstore.NewInMemory()
	auditor := auditservice.New(s.audit)
	runner := tx.NewMemory()
	s.now = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	clerk := domain.UserID(uuid.New())
	s.citizen = domain.UserID(uuid.New())
	s.investigator = domain.UserID(uuid.New())
	at := func(id domain.UserID, role domain.Role) context.Context {
		return requestcontext.WithTime(requestcontext.WithIdentity(context.Background(), id, role), s.now)
	}
	s.clerkCtx = at(clerk, domain.RoleDataEntry)
	s.citizenCtx = at(s.citizen, domain.RoleCitizen)
	s.investCtx = at(s.investigator, domain.RoleInvestigator)
	s.adminCtx = at(domain.UserID(uuid.New()), domain.RoleAdmin)

	catalog := catalogservice.New(catalogstore.NewInMemory(), runner, auditor)
	category, err := catalog.CreateCategory(s.clerkCtx, "Vehicles", "")
	s.Require().NoError(err)
	car, err := catalog.CreateType(s.clerkCtx, category.ID, "Normal car", "", decimal.RequireFromString("0.14"))
	s.Require().NoError(err)

	s.store = store.NewInMemory()
	citizens := stubCitizens{clerk: domain.RoleDataEntry, s.citizen: domain.RoleCitizen}
	s.possessions = possessionservice.New(possessionstore.NewInMemory(), runner, auditor, catalog, citizens,
		possessionservice.WithDisputeChecker(NewCounts(s.store)))
	s.service = New(s.store, runner, auditor, s.possessions)

	s.possession, err = s.possessions.Add(s.clerkCtx, s.citizen, possessionmodels.Details{
		TypeID:          car.ID,
		Description:     "Dacia Logan",
		AcquisitionDate: s.now.AddDate(-3, 0, 0),
		EstimatedValue:  decimal.NewFromInt(80000),
	})
	s.Require().NoError(err)
}

func (s *WorkflowSuite) countAudit(action auditmodels.Action) int {
	entries, err := s.audit.List(context.Background(), auditmodels.Filter{Action: action})
	s.Require().NoError(err)
	return len(entries)
}

func (s *WorkflowSuite) possessionStatus() possessionmodels.Status {
	p, err := s.possessions.Get(context.Background(), s.possession.ID)
	s.Require().NoError(err)
	return p.Status
}

func (s *WorkflowSuite) file() *models.Reclamation {
	r, err := s.service.Create(s.citizenCtx, CreateRequest{PossessionID: s.possession.ID, Reason: "sold in 2024"})
	s.Require().NoError(err)
	return r
}

func (s *WorkflowSuite) investigating() *models.Reclamation {
	r := s.file()
	_, err := s.service.Assign(s.investCtx, r.ID)
	s.Require().NoError(err)
	return r
}

func (s *WorkflowSuite) TestCreate() {
	s.Run("moves the possession under investigation", func() {
		r := s.file()
		s.Equal(models.StatusPending, r.Status)
		s.False(r.IsAssigned())
		s.Equal(possessionmodels.StatusUnderInvestigation, s.possessionStatus())
		s.Equal(1, s.countAudit(auditmodels.ActionReclamationCreated))
	})

	s.Run("second open reclamation conflicts", func() {
		_, err := s.service.Create(s.citizenCtx, CreateRequest{PossessionID: s.possession.ID, Reason: "again"})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(1, s.countAudit(auditmodels.ActionReclamationCreated))
	})

	s.Run("other citizens cannot see the possession", func() {
		other := requestcontext.WithIdentity(s.citizenCtx, domain.UserID(uuid.New()), domain.RoleCitizen)
		_, err := s.service.Create(other, CreateRequest{PossessionID: s.possession.ID, Reason: "not mine"})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("reason is required", func() {
		_, err := s.service.Create(s.citizenCtx, CreateRequest{PossessionID: s.possession.ID, Reason: "  "})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("possession with a reclamation history cannot be deleted", func() {
		err := s.possessions.Delete(s.clerkCtx, s.possession.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *WorkflowSuite) TestAssign() {
	r := s.file()

	s.Run("claims the case", func() {
		assigned, err := s.service.Assign(s.investCtx, r.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusUnderInvestigation, assigned.Status)
		s.Equal(s.investigator, assigned.AssignedInvestigator)
		s.Equal(1, s.countAudit(auditmodels.ActionReclamationAssigned))
	})

	s.Run("already assigned looks like not found", func() {
		other := requestcontext.WithIdentity(s.investCtx, domain.UserID(uuid.New()), domain.RoleInvestigator)
		_, err := s.service.Assign(other, r.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
		s.Equal(1, s.countAudit(auditmodels.ActionReclamationAssigned))
	})

	s.Run("queue and caseload", func() {
		queue, err := s.service.Queue(s.investCtx, 0)
		s.Require().NoError(err)
		s.Empty(queue)

		caseload, err := s.service.Caseload(s.investCtx)
		s.Require().NoError(err)
		s.Len(caseload, 1)
	})
}

func (s *WorkflowSuite) TestConcurrentAssignHasOneWinner() {
	r := s.file()

	var wins, refusals atomic.Int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx := requestcontext.WithIdentity(s.investCtx, domain.UserID(uuid.New()), domain.RoleInvestigator)
			_, err := s.service.Assign(ctx, r.ID)
			switch {
			case err == nil:
				wins.Add(1)
			case dErrors.HasCode(err, dErrors.CodeNotFound):
				refusals.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
	s.Equal(int32(7), refusals.Load())
	s.Equal(1, s.countAudit(auditmodels.ActionReclamationAssigned))
}

func (s *WorkflowSuite) TestApprove() {
	r := s.investigating()

	out, err := s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{Decision: models.DecisionApprove, Notes: "deed of sale provided"})
	s.Require().NoError(err)
	s.Equal(models.StatusApproved, out.Reclamation.Status)
	s.Require().NotNil(out.Reclamation.ResolvedAt)
	s.Nil(out.Fine)
	s.Equal(possessionmodels.StatusRemoved, s.possessionStatus())
	s.Equal(1, s.countAudit(auditmodels.ActionReclamationInvestigated))

	fines, err := s.service.ListFines(s.adminCtx, s.citizen)
	s.Require().NoError(err)
	s.Empty(fines)
}

func (s *WorkflowSuite) TestReject() {
	r := s.investigating()

	s.Run("invalid fine amount is refused before any write", func() {
		_, err := s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{Decision: models.DecisionReject, FineAmount: decimal.RequireFromString("10.005")})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
		_, err = s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{Decision: models.DecisionReject})
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("only the assigned investigator may decide", func() {
		other := requestcontext.WithIdentity(s.investCtx, domain.UserID(uuid.New()), domain.RoleInvestigator)
		_, err := s.service.Investigate(other, r.ID, InvestigateRequest{Decision: models.DecisionApprove})
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("issues exactly one fine and leaves the possession under investigation", func() {
		out, err := s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{
			Decision:   models.DecisionReject,
			Notes:      "vehicle seen in use",
			FineAmount: decimal.RequireFromString("500.00"),
		})
		s.Require().NoError(err)
		s.Equal(models.StatusRejected, out.Reclamation.Status)
		s.Require().NotNil(out.Fine)
		s.True(out.Fine.Amount.Equal(decimal.NewFromInt(500)))
		s.Equal(models.FineReason, out.Fine.Reason)
		s.Equal(possessionmodels.StatusUnderInvestigation, s.possessionStatus())

		fines, err := s.service.ListFines(s.adminCtx, s.citizen)
		s.Require().NoError(err)
		s.Len(fines, 1)
	})

	s.Run("a resolved case cannot be decided twice", func() {
		_, err := s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{Decision: models.DecisionReject, FineAmount: decimal.NewFromInt(1)})
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("citizen sees the fine on their reclamation", func() {
		out, err := s.service.Get(s.citizenCtx, r.ID)
		s.Require().NoError(err)
		s.Require().NotNil(out.Fine)
	})
}

func (s *WorkflowSuite) TestCloseAndPay() {
	r := s.investigating()

	s.Run("open reclamations cannot be closed", func() {
		_, err := s.service.Close(s.adminCtx, r.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	out, err := s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{Decision: models.DecisionReject, FineAmount: decimal.NewFromInt(250)})
	s.Require().NoError(err)

	s.Run("closes a rejected reclamation", func() {
		closed, err := s.service.Close(s.adminCtx, r.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusClosed, closed.Status)
		s.Equal(1, s.countAudit(auditmodels.ActionReclamationClosed))
	})

	s.Run("pays the fine once", func() {
		paid, err := s.service.PayFine(s.adminCtx, out.Fine.ID)
		s.Require().NoError(err)
		s.True(paid.IsPaid)
		s.Require().NotNil(paid.PaymentDate)

		_, err = s.service.PayFine(s.adminCtx, out.Fine.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
		s.Equal(1, s.countAudit(auditmodels.ActionFinePaid))
	})

	s.Run("a closed case frees the possession for a new dispute", func() {
		_, err := s.service.Create(s.citizenCtx, CreateRequest{PossessionID: s.possession.ID, Reason: "still wrong"})
		s.Require().NoError(err)
	})
}

func (s *WorkflowSuite) TestRemovedPossessionCannotBeDisputed() {
	r := s.investigating()
	_, err := s.service.Investigate(s.investCtx, r.ID, InvestigateRequest{Decision: models.DecisionApprove})
	s.Require().NoError(err)

	_, err = s.service.Create(s.citizenCtx, CreateRequest{PossessionID: s.possession.ID, Reason: "again"})
	s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
}
