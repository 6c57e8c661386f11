package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/bcrypt"

	auditmodels "benefits/internal/audit/models"
	"benefits/internal/identity/models"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/requestcontext"
)

const codeDigits = 6

func startKey(nationalID string) string    { return "start:" + nationalID }
func verifyKey(account domain.UserID) string { return "verify:" + account.String() }

func (s *Service) beginAttempt(ctx context.Context, key string) error {
	if s.throttle == nil {
		return nil
	}
	if err := s.throttle.Begin(ctx, key); err != nil {
		if dErrors.HasCode(err, dErrors.CodeTooManyRequests) {
			return s.refuseLogin(ctx, "locked", err)
		}
		return err
	}
	return nil
}

// settleAttempt keeps the attempt as a failure or hands its slot back.
// Throttle errors are logged and swallowed so the caller still sees the
// original outcome.
func (s *Service) settleAttempt(ctx context.Context, key string, failed bool) {
	if s.throttle == nil {
		return
	}
	settle := s.throttle.Release
	if failed {
		settle = s.throttle.Fail
	}
	if err := settle(ctx, key); err != nil {
		s.logger.ErrorContext(ctx, "failed to settle login attempt",
			"request_id", requestcontext.RequestID(ctx),
			"failed", failed,
			"error", err,
		)
	}
}

func (s *Service) clearFailures(ctx context.Context, keys ...string) {
	if s.throttle == nil {
		return
	}
	for _, key := range keys {
		if err := s.throttle.Clear(ctx, key); err != nil {
			s.logger.ErrorContext(ctx, "failed to clear login failures",
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
		}
	}
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func (s *Service) refuseLogin(ctx context.Context, reason string, err error) error {
	s.metrics.IncrementLoginFailure(reason)
	s.logger.InfoContext(ctx, "login refused",
		"request_id", requestcontext.RequestID(ctx),
		"reason", reason,
	)
	return err
}

// StartLogin checks the national ID and phone pair and sends a one-time code.
func (s *Service) StartLogin(ctx context.Context, nationalID, phone string) (*models.LoginChallenge, error) {
	nationalID = strings.ToUpper(strings.TrimSpace(nationalID))
	phone = strings.TrimSpace(phone)
	if nationalID == "" || phone == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "national_id and phone are required")
	}
	key := startKey(nationalID)
	if err := s.beginAttempt(ctx, key); err != nil {
		return nil, err
	}
	account, err := s.store.FindByCredentials(ctx, nationalID, phone)
	unknown := errors.Is(err, sentinel.ErrNotFound)
	s.settleAttempt(ctx, key, unknown)
	if err != nil {
		if unknown {
			return nil, s.refuseLogin(ctx, "unknown_account", accountNotFound())
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	if !account.IsVerified {
		return nil, s.refuseLogin(ctx, "unverified", dErrors.New(dErrors.CodeForbidden, "account is not verified"))
	}

	code := s.cfg.DevLoginCode
	if code == "" {
		if code, err = generateCode(); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to generate code")
		}
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash code")
	}
	expiresAt := requestcontext.Now(ctx).Add(s.cfg.CodeTTL)
	account.SetCode(string(hash), expiresAt)
	if err := s.store.SaveAccount(ctx, account); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
	}
	if err := s.sender.SendCode(ctx, account, code); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to send code")
	}
	s.metrics.IncrementCodesIssued()
	return &models.LoginChallenge{AccountID: account.ID, ExpiresAt: expiresAt}, nil
}

// CompleteLogin exchanges a valid one-time code for an access token. The
// code is single use.
func (s *Service) CompleteLogin(ctx context.Context, accountID domain.UserID, code string) (*models.Session, error) {
	now := requestcontext.Now(ctx)
	key := verifyKey(accountID)
	if err := s.beginAttempt(ctx, key); err != nil {
		return nil, err
	}
	var account *models.Account
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.findAccount(txCtx, accountID)
		if err != nil {
			return err
		}
		if a.CodeExpired(now) {
			return s.refuseLogin(txCtx, "code_expired", dErrors.New(dErrors.CodeUnauthorized, "code expired or not requested"))
		}
		if bcrypt.CompareHashAndPassword([]byte(a.CodeHash), []byte(strings.TrimSpace(code))) != nil {
			return s.refuseLogin(txCtx, "invalid_code", dErrors.New(dErrors.CodeUnauthorized, "invalid code"))
		}
		a.ClearCode()
		if err := s.store.SaveAccount(txCtx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
		}
		account = a
		var related domain.UserID
		if a.Role == domain.RoleCitizen {
			related = a.ID
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionUserLogin,
			Description:    "User " + a.FullName() + " logged in",
			RelatedCitizen: related,
			Actor:          a.ID,
		})
	})
	s.settleAttempt(ctx, key, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	if err != nil {
		return nil, err
	}
	s.clearFailures(ctx, key, startKey(account.NationalID))

	issued, err := s.tokens.GenerateAccessToken(account.ID, account.Role, now, s.cfg.TokenTTL)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to issue token")
	}
	s.metrics.IncrementLogin(string(account.Role))
	return &models.Session{
		AccessToken: issued.Token,
		TokenType:   "Bearer",
		ExpiresAt:   issued.ExpiresAt,
		UserID:      account.ID,
		Role:        account.Role,
	}, nil
}

// Logout revokes the token that authenticated the request.
func (s *Service) Logout(ctx context.Context) error {
	token, ok := requestcontext.AccessToken(ctx)
	if !ok || token.JTI == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "no access token")
	}
	ttl := token.ExpiresAt.Sub(requestcontext.Now(ctx))
	if ttl <= 0 {
		return nil
	}
	if err := s.revoker.RevokeToken(ctx, token.JTI, ttl); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to revoke token")
	}
	s.metrics.IncrementLogout()
	return nil
}
