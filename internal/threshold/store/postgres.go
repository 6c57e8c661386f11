package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"benefits/internal/platform/postgres"
	"benefits/internal/threshold/models"
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
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const thresholdColumns = `id, program, max_score, effective_date, is_active, created_by, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanThreshold(row rowScanner) (*models.Threshold, error) {
	var t models.Threshold
	var id int64
	var program string
	var createdBy uuid.NullUUID
	if err := row.Scan(&id, &program, &t.MaxScore, &t.EffectiveDate, &t.IsActive, &createdBy, &t.CreatedAt); err != nil {
		return nil, err
	}
	t.ID = domain.ThresholdID(id)
	t.Program = domain.Program(program)
	t.EffectiveDate = models.DateOf(t.EffectiveDate)
	if createdBy.Valid {
		t.CreatedBy = domain.UserID(createdBy.UUID)
	}
	return &t, nil
}

func (s *PostgresStore) Create(ctx context.Context, t *models.Threshold) error {
	var createdBy uuid.NullUUID
	if !t.CreatedBy.IsNil() {
		createdBy = uuid.NullUUID{UUID: uuid.UUID(t.CreatedBy), Valid: true}
	}
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO thresholds (program, max_score, effective_date, is_active, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, string(t.Program), t.MaxScore, t.EffectiveDate, t.IsActive, createdBy, t.CreatedAt).Scan(&id)
	if err != nil {
		if postgres.IsUniqueViolation(err, "thresholds_program_effective_date_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert threshold: %w", err)
	}
	t.ID = domain.ThresholdID(id)
	return nil
}

// Current picks the in-force row: latest effective date, highest ID on ties.
func (s *PostgresStore) Current(ctx context.Context, program domain.Program, today time.Time) (*models.Threshold, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+thresholdColumns+` FROM thresholds
		WHERE program = $1 AND is_active AND effective_date <= $2
		ORDER BY effective_date DESC, id DESC
		LIMIT 1
	`, string(program), models.DateOf(today))
	t, err := scanThreshold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find current threshold: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) Deactivate(ctx context.Context, id domain.ThresholdID) (*models.Threshold, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE thresholds SET is_active = FALSE WHERE id = $1
		RETURNING `+thresholdColumns, int64(id))
	t, err := scanThreshold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("deactivate threshold: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) List(ctx context.Context, program domain.Program) ([]models.Threshold, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+thresholdColumns+` FROM thresholds
		WHERE $1 = '' OR program = $1
		ORDER BY effective_date DESC, id DESC
	`, string(program))
	if err != nil {
		return nil, fmt.Errorf("query thresholds: %w", err)
	}
	defer rows.Close()
	out := make([]models.Threshold, 0)
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan threshold: %w", err)
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}
