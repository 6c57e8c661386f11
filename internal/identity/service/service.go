package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	auditmodels "benefits/internal/audit/models"
	"benefits/internal/identity/metrics"
	"benefits/internal/identity/models"
	jwttoken "benefits/internal/jwt_token"
	"benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/platform/sentinel"
	"benefits/pkg/platform/tx"
	"benefits/pkg/requestcontext"
)

type Store interface {
	CreateAccount(ctx context.Context, a *models.Account) error
	FindAccount(ctx context.Context, id domain.UserID) (*models.Account, error)
	FindByCredentials(ctx context.Context, nationalID, phone string) (*models.Account, error)
	SaveAccount(ctx context.Context, a *models.Account) error
	ListAccounts(ctx context.Context, role domain.Role, filter models.CitizenFilter) ([]models.Account, error)
	CountAccounts(ctx context.Context, role domain.Role) (int, error)
	CreateProfile(ctx context.Context, p *models.Profile) error
	FindProfile(ctx context.Context, user domain.UserID) (*models.Profile, error)
	SaveProfile(ctx context.Context, p *models.Profile) error
	CacheScore(ctx context.Context, user domain.UserID, score decimal.Decimal, at time.Time) error
}

type Auditor interface {
	Record(ctx context.Context, rec auditmodels.Record) error
}

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	GenerateAccessToken(userID domain.UserID, role domain.Role, now time.Time, expiresIn time.Duration) (*jwttoken.IssuedToken, error)
}

// Revoker records revoked token IDs until the token would have expired.
type Revoker interface {
	RevokeToken(ctx context.Context, jti string, ttl time.Duration) error
}

// Throttle locks an identifier out after repeated login failures. Begin
// reserves an attempt before its outcome is known; every admitted attempt is
// then settled with Fail or Release.
type Throttle interface {
	Begin(ctx context.Context, key string) error
	Fail(ctx context.Context, key string) error
	Release(ctx context.Context, key string) error
	Clear(ctx context.Context, key string) error
}

// Config holds the login timings.
type Config struct {
	TokenTTL time.Duration
	CodeTTL  time.Duration
	// DevLoginCode replaces the random code when set.
	DevLoginCode string
}

// Service owns accounts, citizen profiles and the login flow.
type Service struct {
	store    Store
	tx       tx.Runner
	auditor  Auditor
	tokens   TokenIssuer
	revoker  Revoker
	sender   CodeSender
	throttle Throttle
	cfg      Config
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithCodeSender replaces the default sender, which only logs.
func WithCodeSender(sender CodeSender) Option {
	return func(s *Service) {
		s.sender = sender
	}
}

// WithThrottle enables login lockout. Without it failures are only counted
// in metrics.
func WithThrottle(t Throttle) Option {
	return func(s *Service) {
		s.throttle = t
	}
}

func New(store Store, runner tx.Runner, auditor Auditor, tokens TokenIssuer, revoker Revoker, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:   store,
		tx:      runner,
		auditor: auditor,
		tokens:  tokens,
		revoker: revoker,
		cfg:     cfg,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sender == nil {
		s.sender = NewLoggingSender(s.logger)
	}
	return s
}

func accountNotFound() error {
	return dErrors.New(dErrors.CodeNotFound, "account not found")
}

func (s *Service) findAccount(ctx context.Context, id domain.UserID) (*models.Account, error) {
	a, err := s.store.FindAccount(ctx, id)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, accountNotFound()
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load account")
	}
	return a, nil
}

func (s *Service) findProfile(ctx context.Context, user domain.UserID) (*models.Profile, error) {
	p, err := s.store.FindProfile(ctx, user)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "citizen profile not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return p, nil
}

// RegisterAccount creates an account; citizens also get a default profile.
func (s *Service) RegisterAccount(ctx context.Context, in models.NewAccount) (*models.Account, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	now := requestcontext.Now(ctx)
	account := &models.Account{
		ID:         domain.UserID(uuid.New()),
		NationalID: in.NationalID,
		Phone:      in.Phone,
		FirstName:  in.FirstName,
		LastName:   in.LastName,
		Role:       in.Role,
		CreatedAt:  now,
	}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.store.CreateAccount(txCtx, account); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.New(dErrors.CodeConflict, "national ID or phone already registered")
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create account")
		}
		var related domain.UserID
		if account.Role == domain.RoleCitizen {
			related = account.ID
			if err := s.store.CreateProfile(txCtx, models.DefaultProfile(account.ID, now)); err != nil {
				return dErrors.Wrap(err, dErrors.CodeInternal, "failed to create profile")
			}
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionAccountRegistered,
			Description:    "Registered " + string(account.Role) + " account " + account.NationalID,
			RelatedCitizen: related,
			Metadata:       map[string]any{"account_id": account.ID.String(), "role": string(account.Role)},
		})
	})
	if err != nil {
		return nil, err
	}
	s.metrics.IncrementRegistered(string(account.Role))
	return account, nil
}

// VerifyAccount allows the account to log in.
func (s *Service) VerifyAccount(ctx context.Context, id domain.UserID) (*models.Account, error) {
	var account *models.Account
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		a, err := s.findAccount(txCtx, id)
		if err != nil {
			return err
		}
		if a.IsVerified {
			return dErrors.New(dErrors.CodeConflict, "account is already verified")
		}
		a.IsVerified = true
		if err := s.store.SaveAccount(txCtx, a); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save account")
		}
		account = a
		var related domain.UserID
		if a.Role == domain.RoleCitizen {
			related = a.ID
		}
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionAccountVerified,
			Description:    "Verified account " + a.NationalID,
			RelatedCitizen: related,
			Metadata:       map[string]any{"account_id": a.ID.String()},
		})
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateProfile applies a staff edit to a citizen profile.
func (s *Service) UpdateProfile(ctx context.Context, citizen domain.UserID, update models.ProfileUpdate) (*models.Profile, error) {
	var profile *models.Profile
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		p, err := s.findProfile(txCtx, citizen)
		if err != nil {
			return err
		}
		if err := update.Apply(p, requestcontext.Now(txCtx)); err != nil {
			return err
		}
		if err := s.store.SaveProfile(txCtx, p); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
		}
		profile = p
		return s.auditor.Record(txCtx, auditmodels.Record{
			Action:         auditmodels.ActionProfileUpdated,
			Description:    "Updated citizen profile",
			RelatedCitizen: citizen,
			Metadata: map[string]any{
				"family_size":         p.FamilySize,
				"monthly_income":      p.MonthlyIncome.StringFixed(2),
				"has_other_insurance": p.HasOtherInsurance,
			},
		})
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// GetCitizen returns a citizen account with its profile.
func (s *Service) GetCitizen(ctx context.Context, id domain.UserID) (*models.Citizen, error) {
	a, err := s.findAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Role != domain.RoleCitizen {
		return nil, dErrors.New(dErrors.CodeNotFound, "citizen not found")
	}
	p, err := s.findProfile(ctx, id)
	if err != nil {
		return nil, err
	}
	return &models.Citizen{Account: *a, Profile: p}, nil
}

// Me returns the caller's own account and profile.
func (s *Service) Me(ctx context.Context) (*models.Citizen, error) {
	return s.GetCitizen(ctx, requestcontext.UserID(ctx))
}

func (s *Service) ListCitizens(ctx context.Context, filter models.CitizenFilter) ([]models.Account, error) {
	accounts, err := s.store.ListAccounts(ctx, domain.RoleCitizen, filter)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list citizens")
	}
	return accounts, nil
}

func (s *Service) CountCitizens(ctx context.Context) (int, error) {
	n, err := s.store.CountAccounts(ctx, domain.RoleCitizen)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count citizens")
	}
	return n, nil
}

// CountAccounts counts every account regardless of role.
func (s *Service) CountAccounts(ctx context.Context) (int, error) {
	n, err := s.store.CountAccounts(ctx, "")
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to count accounts")
	}
	return n, nil
}

// RoleOf resolves the role of an account.
func (s *Service) RoleOf(ctx context.Context, id domain.UserID) (domain.Role, error) {
	a, err := s.findAccount(ctx, id)
	if err != nil {
		return "", err
	}
	return a.Role, nil
}

// CacheScore stores the latest computed score on the profile.
func (s *Service) CacheScore(ctx context.Context, citizen domain.UserID, score decimal.Decimal, at time.Time) error {
	if err := s.store.CacheScore(ctx, citizen, score, at); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "citizen profile not found")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to cache score")
	}
	return nil
}

func (s *Service) HasOtherInsurance(ctx context.Context, citizen domain.UserID) (bool, error) {
	p, err := s.findProfile(ctx, citizen)
	if err != nil {
		return false, err
	}
	return p.HasOtherInsurance, nil
}

// LastCalculated is nil when the citizen never had a score computed or has
// no profile.
func (s *Service) LastCalculated(ctx context.Context, citizen domain.UserID) (*time.Time, error) {
	p, err := s.store.FindProfile(ctx, citizen)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return p.LastCalculated, nil
}
