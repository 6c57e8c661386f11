package auth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"benefits/pkg/domain"
	"benefits/pkg/requestcontext"
)

type stubValidator struct {
	claims *JWTClaims
	err    error
}

func (s stubValidator) ValidateToken(string) (*JWTClaims, error) { return s.claims, s.err }

type stubRevocations struct {
	revoked map[string]bool
	err     error
}

func (s stubRevocations) IsTokenRevoked(_ context.Context, jti string) (bool, error) {
	return s.revoked[jti], s.err
}

type RequireAuthSuite struct {
	suite.Suite
	logger *slog.Logger
	userID domain.UserID
}

func TestRequireAuthSuite(t *testing.T) {
	suite.Run(t, new(RequireAuthSuite))
}

func (s *RequireAuthSuite) SetupTest() {
	s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	s.userID = domain.UserID(uuid.New())
}

func (s *RequireAuthSuite) serve(v JWTValidator, rc TokenRevocationChecker, header string) (*httptest.ResponseRecorder, context.Context) {
	var seen context.Context
	h := RequireAuth(v, rc, s.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = r.Context()
		w.WriteHeader(http.StatusNoContent)
	}))
	req := httptest.NewRequest(http.MethodGet, "/citizen/dashboard", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, seen
}

func (s *RequireAuthSuite) validClaims() *JWTClaims {
	return &JWTClaims{UserID: s.userID.String(), Role: "investigator", JTI: "jti-1"}
}

func (s *RequireAuthSuite) TestIdentityPropagation() {
	s.Run("valid token sets identity", func() {
		rec, ctx := s.serve(stubValidator{claims: s.validClaims()}, nil, "Bearer good")
		s.Equal(http.StatusNoContent, rec.Code)
		s.Equal(s.userID, requestcontext.UserID(ctx))
		s.Equal(domain.RoleInvestigator, requestcontext.Role(ctx))
		tok, ok := requestcontext.AccessToken(ctx)
		s.True(ok)
		s.Equal("jti-1", tok.JTI)
	})

	s.Run("missing header is unauthorized", func() {
		rec, _ := s.serve(stubValidator{claims: s.validClaims()}, nil, "")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("invalid token is unauthorized", func() {
		rec, _ := s.serve(stubValidator{err: errors.New("bad signature")}, nil, "Bearer forged")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})

	s.Run("role outside closed set is unauthorized", func() {
		claims := s.validClaims()
		claims.Role = "root"
		rec, _ := s.serve(stubValidator{claims: claims}, nil, "Bearer good")
		s.Equal(http.StatusUnauthorized, rec.Code)
	})
}

func (s *RequireAuthSuite) TestRevocation() {
	s.Run("revoked token is rejected", func() {
		rc := stubRevocations{revoked: map[string]bool{"jti-1": true}}
		rec, _ := s.serve(stubValidator{claims: s.validClaims()}, rc, "Bearer good")
		s.Equal(http.StatusUnauthorized, rec.Code)
		s.Contains(rec.Body.String(), "revoked")
	})

	s.Run("revocation store failure is internal", func() {
		rc := stubRevocations{err: errors.New("redis down")}
		rec, _ := s.serve(stubValidator{claims: s.validClaims()}, rc, "Bearer good")
		s.Equal(http.StatusInternalServerError, rec.Code)
	})
}
