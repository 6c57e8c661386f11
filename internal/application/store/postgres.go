package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"benefits/internal/application/models"
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

const applicationColumns = `id, citizen_id, program, status, score_at_application, threshold_at_application,
	created_at, submitted_at, reviewed_at, reviewed_by, review_notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func nullUser(id domain.UserID) uuid.NullUUID {
	if id.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(id), Valid: true}
}

func scanApplication(row rowScanner) (*models.Application, error) {
	var a models.Application
	var id, citizen uuid.UUID
	var reviewer uuid.NullUUID
	var program, status string
	var submitted, reviewed sql.NullTime
	if err := row.Scan(&id, &citizen, &program, &status, &a.ScoreAtApplication, &a.ThresholdAtApplication,
		&a.CreatedAt, &submitted, &reviewed, &reviewer, &a.ReviewNotes); err != nil {
		return nil, err
	}
	a.ID = domain.ApplicationID(id)
	a.CitizenID = domain.UserID(citizen)
	a.Program = domain.Program(program)
	a.Status = models.Status(status)
	if submitted.Valid {
		at := submitted.Time
		a.SubmittedAt = &at
	}
	if reviewed.Valid {
		at := reviewed.Time
		a.ReviewedAt = &at
	}
	if reviewer.Valid {
		a.ReviewedBy = domain.UserID(reviewer.UUID)
	}
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *models.Application) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO applications (`+applicationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(a.ID), uuid.UUID(a.CitizenID), string(a.Program), string(a.Status),
		a.ScoreAtApplication, a.ThresholdAtApplication, a.CreatedAt, a.SubmittedAt, a.ReviewedAt,
		nullUser(a.ReviewedBy), a.ReviewNotes,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "applications_open_citizen_program_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert application: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id domain.ApplicationID) (*models.Application, error) {
	query := `SELECT ` + applicationColumns + ` FROM applications WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	a, err := scanApplication(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find application: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) LatestSubmitted(ctx context.Context, citizen domain.UserID, program domain.Program) (*models.Application, error) {
	a, err := scanApplication(s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE citizen_id = $1 AND program = $2 AND submitted_at IS NOT NULL
		ORDER BY submitted_at DESC
		LIMIT 1
	`, uuid.UUID(citizen), string(program)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("latest application: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) Transition(ctx context.Context, a *models.Application, from models.Status) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE applications
		SET status = $3, submitted_at = $4, reviewed_at = $5, reviewed_by = $6, review_notes = $7
		WHERE id = $1 AND status = $2
	`, uuid.UUID(a.ID), string(from), string(a.Status), a.SubmittedAt, a.ReviewedAt, nullUser(a.ReviewedBy), a.ReviewNotes)
	if err != nil {
		return fmt.Errorf("update application: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.Find(ctx, a.ID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

func statusStrings(statuses []models.Status) []string {
	out := make([]string, len(statuses))
	for i, st := range statuses {
		out[i] = string(st)
	}
	return out
}

const filterClause = `
	($1::uuid IS NULL OR citizen_id = $1)
	AND ($2 = '' OR program = $2)
	AND (cardinality($3::text[]) = 0 OR status = ANY($3::text[]))
	AND ($4::uuid IS NULL OR reviewed_by = $4)
	AND ($5::timestamptz IS NULL OR reviewed_at >= $5)`

func filterArgs(f models.Filter) []any {
	since := sql.NullTime{Time: f.ReviewedSince, Valid: !f.ReviewedSince.IsZero()}
	return []any{nullUser(f.CitizenID), string(f.Program), pq.Array(statusStrings(f.Statuses)), nullUser(f.ReviewedBy), since}
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]models.Application, error) {
	args := append(filterArgs(filter), sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0})
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+applicationColumns+` FROM applications
		WHERE `+filterClause+`
		ORDER BY created_at DESC
		LIMIT $6
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query applications: %w", err)
	}
	defer rows.Close()
	out := make([]models.Application, 0)
	for rows.Next() {
		a, err := scanApplication(rows)
		if err != nil {
			return nil, fmt.Errorf("scan application: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, filter models.Filter) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM applications WHERE `+filterClause, filterArgs(filter)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count applications: %w", err)
	}
	return n, nil
}
