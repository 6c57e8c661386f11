package handler

import (
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"benefits/internal/application/handler/mocks"
	"benefits/internal/application/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/testutil"
)

//go:generate mockgen -source=handler.go -destination=mocks/application-mocks.go -package=mocks Service
type ApplicationHandlerSuite struct {
	suite.Suite
	service *mocks.MockService
	router  chi.Router
}

func TestApplicationHandlerSuite(t *testing.T) {
	suite.Run(t, new(ApplicationHandlerSuite))
}

func (s *ApplicationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.service = mocks.NewMockService(ctrl)
	s.router = chi.NewRouter()
	New(s.service, slog.New(slog.NewTextHandler(io.Discard, nil))).Register(s.router)
}

func (s *ApplicationHandlerSuite) TestCreate() {
	s.Run("submits by default", func() {
		s.service.EXPECT().Create(gomock.Any(), domain.ProgramAMO, true).
			Return(&models.Application{ID: domain.ApplicationID(uuid.New()), Program: domain.ProgramAMO, Status: models.StatusSubmitted}, nil)
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/citizen/applications/amo", map[string]any{}), domain.RoleCitizen)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "status", "submitted")
	})

	s.Run("saves a draft", func() {
		s.service.EXPECT().Create(gomock.Any(), domain.ProgramSocialAid, false).
			Return(&models.Application{Program: domain.ProgramSocialAid, Status: models.StatusDraft}, nil)
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/citizen/applications/social_aid", map[string]any{"action": "draft"}), domain.RoleCitizen)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusCreated)
	})

	s.Run("unknown program", func() {
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/citizen/applications/pension", map[string]any{}), domain.RoleCitizen)
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest, string(dErrors.CodeInvalidInput))
	})

	s.Run("cooldown is a conflict", func() {
		s.service.EXPECT().Create(gomock.Any(), domain.ProgramAMO, true).
			Return(nil, dErrors.New(dErrors.CodeConflict, "recalculate your score before applying again"))
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/citizen/applications/amo", map[string]any{"action": "submit"}), domain.RoleCitizen)
		testutil.AssertStatusAndError(s.T(), testutil.DoRequest(s.router, req), http.StatusConflict, string(dErrors.CodeConflict))
	})

	s.Run("missing threshold is a bad request", func() {
		s.service.EXPECT().Create(gomock.Any(), domain.ProgramAMO, true).
			Return(nil, dErrors.New(dErrors.CodeBadRequest, "no active threshold is configured for AMO"))
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/citizen/applications/amo", map[string]any{}), domain.RoleCitizen)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest)
	})

	s.Run("staff cannot apply", func() {
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, "/citizen/applications/amo", map[string]any{}), domain.RoleSupervisor)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusForbidden)
	})
}

func (s *ApplicationHandlerSuite) TestSubmitDraft() {
	id := domain.ApplicationID(uuid.New())
	s.service.EXPECT().SubmitDraft(gomock.Any(), id).Return(&models.Application{ID: id, Status: models.StatusSubmitted}, nil)
	req := testutil.AsRole(testutil.NewRequest(s.T(), http.MethodPost, "/citizen/applications/"+id.String()+"/submit"), domain.RoleCitizen)
	testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
}

func (s *ApplicationHandlerSuite) TestReview() {
	id := domain.ApplicationID(uuid.New())
	path := "/staff/applications/" + id.String() + "/review"

	s.Run("supervisor approves", func() {
		s.service.EXPECT().Review(gomock.Any(), id, models.DecisionApprove, "fine").
			Return(&models.Application{ID: id, Status: models.StatusApproved}, nil)
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "approve", "notes": "fine"}), domain.RoleSupervisor)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "approved")
	})

	s.Run("unknown decision", func() {
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "defer"}), domain.RoleSupervisor)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusBadRequest)
	})

	s.Run("admins do not review", func() {
		req := testutil.AsRole(testutil.NewJSONRequest(s.T(), http.MethodPost, path, map[string]any{"decision": "approve"}), domain.RoleAdmin)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusForbidden)
	})
}

func (s *ApplicationHandlerSuite) TestList() {
	s.Run("defaults to submitted", func() {
		s.service.EXPECT().List(gomock.Any(), models.Filter{Statuses: []models.Status{models.StatusSubmitted}}).
			Return([]models.Application{{Status: models.StatusSubmitted}}, nil)
		req := testutil.AsRole(testutil.NewRequest(s.T(), http.MethodGet, "/staff/applications"), domain.RoleSupervisor)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		resp := testutil.UnmarshalResponse[listResponse](s.T(), rr)
		s.Len(resp.Applications, 1)
	})

	s.Run("status and program filters", func() {
		s.service.EXPECT().List(gomock.Any(), models.Filter{
			Statuses: []models.Status{models.StatusApproved, models.StatusRejected},
			Program:  domain.ProgramAMO,
		}).Return(nil, nil)
		req := testutil.AsRole(testutil.NewRequest(s.T(), http.MethodGet, "/staff/applications?status=approved,rejected&program=amo"), domain.RoleSupervisor)
		testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
	})

	s.Run("citizen lists own", func() {
		s.service.EXPECT().ListOwn(gomock.Any()).Return(nil, nil)
		req := testutil.AsRole(testutil.NewRequest(s.T(), http.MethodGet, "/citizen/applications"), domain.RoleCitizen)
		testutil.AssertStatusOK(s.T(), testutil.DoRequest(s.router, req))
	})
}
