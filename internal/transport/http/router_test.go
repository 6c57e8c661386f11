package httptransport

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benefits/internal/identity/revocation"
	jwttoken "benefits/internal/jwt_token"
	"benefits/pkg/domain"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/ratelimit"
	"benefits/pkg/platform/middleware/request"
	"benefits/pkg/requestcontext"
	"benefits/pkg/testutil"
)

// whoami echoes the authenticated identity.
type whoami struct{}

func (whoami) Register(r chi.Router) {
	r.Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{
			"user_id": requestcontext.UserID(r.Context()).String(),
			"role":    string(requestcontext.Role(r.Context())),
		})
	})
}

func (whoami) RegisterPublic(r chi.Router) {
	r.Get("/hello", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"hello": "world"})
	})
}

type RouterSuite struct {
	suite.Suite
	jwt     *jwttoken.JWTService
	trl     *revocation.InMemoryTRL
	healthy error
	router  http.Handler
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.jwt = jwttoken.NewJWTService("router-test-key", "benefits-test")
	s.trl = revocation.NewInMemoryTRL()
	s.healthy = nil
	s.router = NewRouter(Deps{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator:   jwttoken.NewJWTServiceAdapter(s.jwt),
		Revocations: s.trl,
		Public:      []PublicModule{whoami{}},
		Modules:     []Module{whoami{}},
		Health: map[string]HealthCheck{
			"postgres": func(context.Context) error { return s.healthy },
		},
	})
}

func (s *RouterSuite) bearer(role domain.Role) (*http.Request, *jwttoken.IssuedToken) {
	issued, err := s.jwt.GenerateAccessToken(domain.UserID(uuid.New()), role, time.Now(), time.Hour)
	s.Require().NoError(err)
	req := testutil.NewRequest(s.T(), http.MethodGet, "/whoami")
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	return req, issued
}

func (s *RouterSuite) TestHealth() {
	s.Run("ok", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "status", "ok")
		s.NotEmpty(rr.Header().Get(request.HeaderRequestID))
	})

	s.Run("degraded", func() {
		s.healthy = errors.New("connection refused")
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/health"))
		testutil.AssertStatus(s.T(), rr, http.StatusServiceUnavailable)
		testutil.AssertJSONContains(s.T(), rr, "status", "degraded")
	})
}

func (s *RouterSuite) TestMetricsEndpoint() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/metrics"))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *RouterSuite) TestPublicRoutes() {
	rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/hello"))
	testutil.AssertStatusOK(s.T(), rr)
}

func (s *RouterSuite) TestPublicLimitSparesAuthenticatedRoutes() {
	router := NewRouter(Deps{
		Logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		Validator:   jwttoken.NewJWTServiceAdapter(s.jwt),
		Revocations: s.trl,
		Public:      []PublicModule{whoami{}},
		PublicLimit: ratelimit.New(1, time.Minute).PerIP,
		Modules:     []Module{whoami{}},
	})

	testutil.AssertStatusOK(s.T(), testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/hello")))
	testutil.AssertStatus(s.T(), testutil.DoRequest(router, testutil.NewRequest(s.T(), http.MethodGet, "/hello")), http.StatusTooManyRequests)

	for range 2 {
		req, _ := s.bearer(domain.RoleCitizen)
		testutil.AssertStatusOK(s.T(), testutil.DoRequest(router, req))
	}
}

func (s *RouterSuite) TestAuthentication() {
	s.Run("missing token", func() {
		rr := testutil.DoRequest(s.router, testutil.NewRequest(s.T(), http.MethodGet, "/whoami"))
		testutil.AssertStatusAndError(s.T(), rr, http.StatusUnauthorized, "unauthorized")
	})

	s.Run("valid token carries the role", func() {
		req, _ := s.bearer(domain.RoleSupervisor)
		rr := testutil.DoRequest(s.router, req)
		testutil.AssertStatusOK(s.T(), rr)
		testutil.AssertJSONContains(s.T(), rr, "role", "supervisor")
	})

	s.Run("revoked token", func() {
		req, issued := s.bearer(domain.RoleCitizen)
		s.Require().NoError(s.trl.RevokeToken(context.Background(), issued.JTI, time.Hour))
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusUnauthorized)
	})

	s.Run("token from another issuer", func() {
		other := jwttoken.NewJWTService("router-test-key", "someone-else")
		issued, err := other.GenerateAccessToken(domain.UserID(uuid.New()), domain.RoleAdmin, time.Now(), time.Hour)
		s.Require().NoError(err)
		req := testutil.NewRequest(s.T(), http.MethodGet, "/whoami")
		req.Header.Set("Authorization", "Bearer "+issued.Token)
		testutil.AssertStatus(s.T(), testutil.DoRequest(s.router, req), http.StatusUnauthorized)
	})
}
