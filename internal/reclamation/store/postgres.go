package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"benefits/internal/platform/postgres"
	"benefits/internal/reclamation/models"
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

const reclamationColumns = `id, citizen_id, possession_id, reason, evidence_description, status,
	assigned_investigator_id, investigation_notes, created_at, updated_at, resolved_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func nullUser(id domain.UserID) uuid.NullUUID {
	if id.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(id), Valid: true}
}

func scanReclamation(row rowScanner) (*models.Reclamation, error) {
	var r models.Reclamation
	var id, citizen, possession uuid.UUID
	var investigator uuid.NullUUID
	var status string
	var resolved sql.NullTime
	if err := row.Scan(&id, &citizen, &possession, &r.Reason, &r.EvidenceDescription, &status,
		&investigator, &r.InvestigationNotes, &r.CreatedAt, &r.UpdatedAt, &resolved); err != nil {
		return nil, err
	}
	r.ID = domain.ReclamationID(id)
	r.CitizenID = domain.UserID(citizen)
	r.PossessionID = domain.PossessionID(possession)
	r.Status = models.Status(status)
	if investigator.Valid {
		r.AssignedInvestigator = domain.UserID(investigator.UUID)
	}
	if resolved.Valid {
		at := resolved.Time
		r.ResolvedAt = &at
	}
	return &r, nil
}

func (s *PostgresStore) Create(ctx context.Context, r *models.Reclamation) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO reclamations (`+reclamationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		uuid.UUID(r.ID), uuid.UUID(r.CitizenID), uuid.UUID(r.PossessionID), r.Reason, r.EvidenceDescription,
		string(r.Status), nullUser(r.AssignedInvestigator), r.InvestigationNotes, r.CreatedAt, r.UpdatedAt,
		r.ResolvedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "reclamations_open_possession_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert reclamation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Find(ctx context.Context, id domain.ReclamationID) (*models.Reclamation, error) {
	query := `SELECT ` + reclamationColumns + ` FROM reclamations WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	r, err := scanReclamation(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find reclamation: %w", err)
	}
	return r, nil
}

// Assign is a single conditional UPDATE: of any number of concurrent callers
// exactly one matches the pending, unassigned row.
func (s *PostgresStore) Assign(ctx context.Context, id domain.ReclamationID, investigator domain.UserID, at time.Time) (*models.Reclamation, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE reclamations
		SET assigned_investigator_id = $2, status = 'under_investigation', updated_at = $3
		WHERE id = $1 AND status = 'pending' AND assigned_investigator_id IS NULL
		RETURNING `+reclamationColumns,
		uuid.UUID(id), uuid.UUID(investigator), at)
	r, err := scanReclamation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("assign reclamation: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Transition(ctx context.Context, r *models.Reclamation, from models.Status) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE reclamations
		SET status = $3, investigation_notes = $4, updated_at = $5, resolved_at = $6
		WHERE id = $1 AND status = $2
	`, uuid.UUID(r.ID), string(from), string(r.Status), r.InvestigationNotes, r.UpdatedAt, r.ResolvedAt)
	if err != nil {
		return fmt.Errorf("update reclamation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		if _, err := s.Find(ctx, r.ID); err != nil {
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
	AND ($2::uuid IS NULL OR assigned_investigator_id = $2)
	AND (NOT $3 OR assigned_investigator_id IS NULL)
	AND (cardinality($4::text[]) = 0 OR status = ANY($4::text[]))`

func filterArgs(f models.Filter) []any {
	return []any{nullUser(f.CitizenID), nullUser(f.Investigator), f.Unassigned, pq.Array(statusStrings(f.Statuses))}
}

func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]models.Reclamation, error) {
	args := append(filterArgs(filter), sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0})
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+reclamationColumns+` FROM reclamations
		WHERE `+filterClause+`
		ORDER BY created_at DESC
		LIMIT $5
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("query reclamations: %w", err)
	}
	defer rows.Close()
	out := make([]models.Reclamation, 0)
	for rows.Next() {
		r, err := scanReclamation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reclamation: %w", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Count(ctx context.Context, filter models.Filter) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM reclamations WHERE `+filterClause, filterArgs(filter)...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reclamations: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountResolvedBy(ctx context.Context, investigator domain.UserID, since time.Time) (int, error) {
	var n int
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FROM reclamations
		WHERE assigned_investigator_id = $1 AND resolved_at >= $2
	`, uuid.UUID(investigator), since).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count resolved reclamations: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) CountByPossession(ctx context.Context, id domain.PossessionID) (open, total int, err error) {
	err = s.execer(ctx).QueryRowContext(ctx, `
		SELECT COUNT(*) FILTER (WHERE status IN ('pending', 'under_investigation')), COUNT(*)
		FROM reclamations WHERE possession_id = $1
	`, uuid.UUID(id)).Scan(&open, &total)
	if err != nil {
		return 0, 0, fmt.Errorf("count reclamations by possession: %w", err)
	}
	return open, total, nil
}

const fineColumns = `id, reclamation_id, citizen_id, amount, reason, applied_by, applied_at, is_paid, payment_date`

func scanFine(row rowScanner) (*models.Fine, error) {
	var f models.Fine
	var id, reclamation, citizen, appliedBy uuid.UUID
	var paid sql.NullTime
	if err := row.Scan(&id, &reclamation, &citizen, &f.Amount, &f.Reason, &appliedBy, &f.AppliedAt, &f.IsPaid, &paid); err != nil {
		return nil, err
	}
	f.ID = domain.FineID(id)
	f.ReclamationID = domain.ReclamationID(reclamation)
	f.CitizenID = domain.UserID(citizen)
	f.AppliedBy = domain.UserID(appliedBy)
	if paid.Valid {
		at := paid.Time
		f.PaymentDate = &at
	}
	return &f, nil
}

func (s *PostgresStore) CreateFine(ctx context.Context, f *models.Fine) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO fines (`+fineColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(f.ID), uuid.UUID(f.ReclamationID), uuid.UUID(f.CitizenID), f.Amount, f.Reason,
		uuid.UUID(f.AppliedBy), f.AppliedAt, f.IsPaid, f.PaymentDate)
	if err != nil {
		if postgres.IsUniqueViolation(err, "fines_reclamation_id_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert fine: %w", err)
	}
	return nil
}

func (s *PostgresStore) findFine(ctx context.Context, where string, arg any) (*models.Fine, error) {
	f, err := scanFine(s.execer(ctx).QueryRowContext(ctx, `SELECT `+fineColumns+` FROM fines WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find fine: %w", err)
	}
	return f, nil
}

func (s *PostgresStore) FindFine(ctx context.Context, id domain.FineID) (*models.Fine, error) {
	return s.findFine(ctx, `id = $1`, uuid.UUID(id))
}

func (s *PostgresStore) FineForReclamation(ctx context.Context, id domain.ReclamationID) (*models.Fine, error) {
	return s.findFine(ctx, `reclamation_id = $1`, uuid.UUID(id))
}

func (s *PostgresStore) MarkFinePaid(ctx context.Context, id domain.FineID, at time.Time) (*models.Fine, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		UPDATE fines SET is_paid = TRUE, payment_date = $2
		WHERE id = $1 AND NOT is_paid
		RETURNING `+fineColumns, uuid.UUID(id), at)
	f, err := scanFine(row)
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pay fine: %w", err)
	}
	if _, err := s.FindFine(ctx, id); err != nil {
		return nil, err
	}
	return nil, sentinel.ErrInvalidState
}

func (s *PostgresStore) ListFines(ctx context.Context, citizen domain.UserID) ([]models.Fine, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+fineColumns+` FROM fines
		WHERE $1::uuid IS NULL OR citizen_id = $1
		ORDER BY applied_at DESC
	`, nullUser(citizen))
	if err != nil {
		return nil, fmt.Errorf("query fines: %w", err)
	}
	defer rows.Close()
	out := make([]models.Fine, 0)
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, fmt.Errorf("scan fine: %w", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}
