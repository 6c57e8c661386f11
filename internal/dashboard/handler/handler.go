package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"benefits/internal/dashboard/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	Citizen(ctx context.Context) (*models.Citizen, error)
	Staff(ctx context.Context) (*models.Staff, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

func (h *Handler) Register(r chi.Router) {
	r.With(capability.Require(domain.CapViewOwnRecords, h.logger)).Get("/citizen/dashboard", h.HandleCitizen)
	r.With(capability.Require(domain.CapViewStaffDashboard, h.logger)).Get("/staff/dashboard", h.HandleStaff)
}

func (h *Handler) HandleCitizen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.service.Citizen(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build citizen dashboard",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requestcontext.UserID(ctx).String(),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) HandleStaff(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	out, err := h.service.Staff(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to build staff dashboard",
			"request_id", requestcontext.RequestID(ctx),
			"user_id", requestcontext.UserID(ctx).String(),
			"role", string(requestcontext.Role(ctx)),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}
