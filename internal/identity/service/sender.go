package service

import (
	"context"
	"log/slog"

	"benefits/internal/identity/models"
	"benefits/pkg/requestcontext"
)

// CodeSender delivers a one-time login code to the account holder.
type CodeSender interface {
	SendCode(ctx context.Context, account *models.Account, code string) error
}

// LoggingSender writes codes to the log. Development only.
type LoggingSender struct {
	logger *slog.Logger
}

func NewLoggingSender(logger *slog.Logger) *LoggingSender {
	return &LoggingSender{logger: logger}
}

func (s *LoggingSender) SendCode(ctx context.Context, account *models.Account, code string) error {
	s.logger.InfoContext(ctx, "login code issued",
		"request_id", requestcontext.RequestID(ctx),
		"user_id", account.ID.String(),
		"phone", maskPhone(account.Phone),
		"code", code,
	)
	return nil
}

// maskPhone keeps the last three digits.
func maskPhone(phone string) string {
	if len(phone) <= 3 {
		return "***"
	}
	return "***" + phone[len(phone)-3:]
}
