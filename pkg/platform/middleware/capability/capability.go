// Package capability gates routes on the caller's role capabilities.
package capability

import (
	"log/slog"
	"net/http"

	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	request "benefits/pkg/platform/middleware/request"
	"benefits/pkg/requestcontext"
)

// Require rejects callers whose role lacks c. It must run after auth.RequireAuth.
func Require(c domain.Capability, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if requestcontext.UserID(ctx).IsNil() {
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "authentication required"))
				return
			}
			role := requestcontext.Role(ctx)
			if !role.Can(c) {
				logger.WarnContext(ctx, "capability denied",
					"request_id", request.GetRequestID(ctx),
					"role", role,
					"capability", c,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireStaff admits every non-citizen role.
func RequireStaff(logger *slog.Logger) func(http.Handler) http.Handler {
	return Require(domain.CapViewStaffDashboard, logger)
}
