package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"benefits/internal/audit/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/httputil"
	"benefits/pkg/platform/middleware/capability"
	"benefits/pkg/requestcontext"
)

type Service interface {
	List(ctx context.Context, filter models.Filter) ([]models.Entry, error)
}

type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the admin audit listing.
func (h *Handler) Register(r chi.Router) {
	r.With(capability.Require(domain.CapViewAudit, h.logger)).Get("/admin/audit-logs", h.HandleList)
}

type listResponse struct {
	Entries []models.Entry `json:"entries"`
	Count   int            `json:"count"`
}

// HandleList serves GET /admin/audit-logs?citizen_id=&action_type=&limit=
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.Filter{Action: models.Action(q.Get("action_type"))}
	if raw := q.Get("citizen_id"); raw != "" {
		citizen, err := domain.ParseUserID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.RelatedCitizen = citizen
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeValidation, "limit must be a positive integer"))
			return
		}
		filter.Limit = limit
	}

	entries, err := h.service.List(ctx, filter)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list audit log",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	httputil.WriteJSON(w, http.StatusOK, listResponse{Entries: entries, Count: len(entries)})
}
