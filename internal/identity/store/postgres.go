package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"benefits/internal/identity/models"
	"benefits/internal/platform/postgres"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const accountColumns = `id, national_id, phone, first_name, last_name, role, is_verified,
	code_hash, code_expires_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var a models.Account
	var id uuid.UUID
	var role string
	var codeHash sql.NullString
	var expires sql.NullTime
	if err := row.Scan(&id, &a.NationalID, &a.Phone, &a.FirstName, &a.LastName, &role, &a.IsVerified,
		&codeHash, &expires, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = domain.UserID(id)
	a.Role = domain.Role(role)
	a.CodeHash = codeHash.String
	if expires.Valid {
		at := expires.Time
		a.CodeExpiresAt = &at
	}
	return &a, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *PostgresStore) CreateAccount(ctx context.Context, a *models.Account) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO accounts (`+accountColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(a.ID), a.NationalID, a.Phone, a.FirstName, a.LastName, string(a.Role), a.IsVerified,
		nullString(a.CodeHash), a.CodeExpiresAt, a.CreatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "accounts_national_id_key") || postgres.IsUniqueViolation(err, "accounts_phone_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *PostgresStore) findAccount(ctx context.Context, where string, args ...any) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE ` + where
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	a, err := scanAccount(s.execer(ctx).QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) FindAccount(ctx context.Context, id domain.UserID) (*models.Account, error) {
	return s.findAccount(ctx, `id = $1`, uuid.UUID(id))
}

func (s *PostgresStore) FindByCredentials(ctx context.Context, nationalID, phone string) (*models.Account, error) {
	return s.findAccount(ctx, `national_id = $1 AND phone = $2`, nationalID, phone)
}

func (s *PostgresStore) SaveAccount(ctx context.Context, a *models.Account) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE accounts
		SET first_name = $2, last_name = $3, is_verified = $4, code_hash = $5, code_expires_at = $6
		WHERE id = $1
	`, uuid.UUID(a.ID), a.FirstName, a.LastName, a.IsVerified, nullString(a.CodeHash), a.CodeExpiresAt)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// escapeLike neutralises LIKE wildcards in user input.
var escapeLike = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) ListAccounts(ctx context.Context, role domain.Role, filter models.CitizenFilter) ([]models.Account, error) {
	pattern := "%" + escapeLike.Replace(strings.TrimSpace(filter.Query)) + "%"
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+accountColumns+` FROM accounts
		WHERE role = $1
		  AND (national_id ILIKE $2 OR phone ILIKE $2 OR first_name ILIKE $2 OR last_name ILIKE $2)
		ORDER BY last_name, first_name, national_id
		LIMIT $3
	`, string(role), pattern, sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0})
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()
	out := make([]models.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) CountAccounts(ctx context.Context, role domain.Role) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM accounts WHERE $1 = '' OR role = $1
	`, string(role)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

const profileColumns = `user_id, family_size, monthly_income, has_other_insurance, other_insurance_details,
	current_score, last_calculated, updated_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	var p models.Profile
	var id uuid.UUID
	var last sql.NullTime
	if err := row.Scan(&id, &p.FamilySize, &p.MonthlyIncome, &p.HasOtherInsurance, &p.OtherInsuranceDetails,
		&p.CurrentScore, &last, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.UserID = domain.UserID(id)
	if last.Valid {
		at := last.Time
		p.LastCalculated = &at
	}
	return &p, nil
}

func (s *PostgresStore) CreateProfile(ctx context.Context, p *models.Profile) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO citizen_profiles (`+profileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, uuid.UUID(p.UserID), p.FamilySize, p.MonthlyIncome, p.HasOtherInsurance, p.OtherInsuranceDetails,
		p.CurrentScore, p.LastCalculated, p.UpdatedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err, "citizen_profiles_pkey") {
			return sentinel.ErrAlreadyUsed
		}
		if postgres.IsForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindProfile(ctx context.Context, user domain.UserID) (*models.Profile, error) {
	p, err := scanProfile(s.execer(ctx).QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM citizen_profiles WHERE user_id = $1`, uuid.UUID(user)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find profile: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) SaveProfile(ctx context.Context, p *models.Profile) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE citizen_profiles
		SET family_size = $2, monthly_income = $3, has_other_insurance = $4, other_insurance_details = $5,
		    updated_at = $6
		WHERE user_id = $1
	`, uuid.UUID(p.UserID), p.FamilySize, p.MonthlyIncome, p.HasOtherInsurance, p.OtherInsuranceDetails, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CacheScore(ctx context.Context, user domain.UserID, score decimal.Decimal, at time.Time) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE citizen_profiles SET current_score = $2, last_calculated = $3 WHERE user_id = $1
	`, uuid.UUID(user), score, at)
	if err != nil {
		return fmt.Errorf("cache score: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
