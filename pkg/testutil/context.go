package testutil

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"benefits/pkg/domain"
	"benefits/pkg/requestcontext"
)

// AsUser simulates what the auth middleware does for an authenticated request.
func AsUser(req *http.Request, userID domain.UserID, role domain.Role) *http.Request {
	return req.WithContext(requestcontext.WithIdentity(req.Context(), userID, role))
}

// AsRole authenticates the request as a fresh user holding role.
func AsRole(req *http.Request, role domain.Role) *http.Request {
	return AsUser(req, domain.UserID(uuid.New()), role)
}

// AtTime pins the request time, as the requesttime middleware would.
func AtTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
