package service

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"benefits/internal/audit/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	Append(ctx context.Context, entry *models.Entry) error
	List(ctx context.Context, filter models.Filter) ([]models.Entry, error)
}

// Service appends audit entries and serves the admin listing. Callers invoke
// Record inside the action's transaction, after the mutation succeeded, so a
// failed audit write rolls the action back. The audit log line waits for the
// commit.
type Service struct {
	store  Store
	logger *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(store Store, opts ...Option) *Service {
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record builds an entry from rec and the request context and appends it.
func (s *Service) Record(ctx context.Context, rec models.Record) error {
	if !rec.Action.IsValid() {
		return dErrors.New(dErrors.CodeInvariantViolation, "unknown audit action: "+string(rec.Action))
	}

	actor := rec.Actor
	if actor.IsNil() {
		actor = requestcontext.UserID(ctx)
	}
	userAgent := requestcontext.UserAgent(ctx)

	meta := make(map[string]any, len(rec.Metadata)+1)
	for k, v := range rec.Metadata {
		meta[k] = v
	}
	if userAgent != "" {
		meta["client"] = DescribeClient(userAgent)
	}

	entry := &models.Entry{
		ID:               domain.AuditEntryID(uuid.New()),
		ActorID:          actor,
		Action:           rec.Action,
		Description:      rec.Description,
		IPAddress:        requestcontext.ClientIP(ctx),
		UserAgent:        userAgent,
		RelatedCitizenID: rec.RelatedCitizen,
		Metadata:         meta,
		CreatedAt:        requestcontext.Now(ctx),
	}
	if err := s.store.Append(ctx, entry); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to write audit log")
	}

	if s.logger != nil {
		args := []any{
			"log_type", "audit",
			"event", string(rec.Action),
			"category", string(rec.Action.Category()),
			"actor_id", actor.String(),
		}
		if requestID := requestcontext.RequestID(ctx); requestID != "" {
			args = append(args, "request_id", requestID)
		}
		if !rec.RelatedCitizen.IsNil() {
			args = append(args, "citizen_id", rec.RelatedCitizen.String())
		}
		tx.AfterCommit(ctx, func() {
			s.logger.InfoContext(ctx, string(rec.Action), args...)
		})
	}
	return nil
}

// List returns audit entries newest first.
func (s *Service) List(ctx context.Context, filter models.Filter) ([]models.Entry, error) {
	if filter.Action != "" && !filter.Action.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown action_type")
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	entries, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list audit log")
	}
	return entries, nil
}
