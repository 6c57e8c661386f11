package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"benefits/internal/platform/postgres"
	"benefits/internal/possession/models"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// ErrReferenced is returned when a delete is blocked by rows that still point
// at the possession.
var ErrReferenced = errors.New("possession is referenced")

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

const possessionColumns = `id, citizen_id, type_id, description, acquisition_date, estimated_value,
	status, added_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPossession(row rowScanner) (*models.Possession, error) {
	var p models.Possession
	var id, citizen, addedBy uuid.UUID
	var typeID int64
	var status string
	if err := row.Scan(&id, &citizen, &typeID, &p.Description, &p.AcquisitionDate, &p.EstimatedValue,
		&status, &addedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.ID = domain.PossessionID(id)
	p.CitizenID = domain.UserID(citizen)
	p.TypeID = domain.TypeID(typeID)
	p.Status = models.Status(status)
	p.AddedBy = domain.UserID(addedBy)
	return &p, nil
}

func (s *PostgresStore) Create(ctx context.Context, p *models.Possession) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO possessions (`+possessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		uuid.UUID(p.ID), uuid.UUID(p.CitizenID), int64(p.TypeID), p.Description, p.AcquisitionDate,
		p.EstimatedValue, string(p.Status), uuid.UUID(p.AddedBy), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err, "possessions_pkey") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert possession: %w", err)
	}
	return nil
}

// Find locks the row when called inside a transaction so a concurrent status
// change waits for this action to finish.
func (s *PostgresStore) Find(ctx context.Context, id domain.PossessionID) (*models.Possession, error) {
	query := `SELECT ` + possessionColumns + ` FROM possessions WHERE id = $1`
	if _, inTx := txcontext.From(ctx); inTx {
		query += ` FOR UPDATE`
	}
	p, err := scanPossession(s.execer(ctx).QueryRowContext(ctx, query, uuid.UUID(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find possession: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *models.Possession) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE possessions
		SET type_id = $2, description = $3, acquisition_date = $4, estimated_value = $5,
			status = $6, updated_at = $7
		WHERE id = $1
	`, uuid.UUID(p.ID), int64(p.TypeID), p.Description, p.AcquisitionDate, p.EstimatedValue,
		string(p.Status), p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update possession: %w", err)
	}
	return requireOneRow(res)
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.PossessionID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM possessions WHERE id = $1`, uuid.UUID(id))
	if err != nil {
		if postgres.IsForeignKeyViolation(err) {
			return ErrReferenced
		}
		return fmt.Errorf("delete possession: %w", err)
	}
	return requireOneRow(res)
}

func requireOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
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

func (s *PostgresStore) ListByCitizen(ctx context.Context, citizen domain.UserID, filter models.Filter) ([]models.Possession, error) {
	limit := sql.NullInt64{Int64: int64(filter.Limit), Valid: filter.Limit > 0}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+possessionColumns+` FROM possessions
		WHERE citizen_id = $1 AND (cardinality($2::text[]) = 0 OR status = ANY($2::text[]))
		ORDER BY created_at DESC, id DESC
		LIMIT $3
	`, uuid.UUID(citizen), pq.Array(statusStrings(filter.Statuses)), limit)
	if err != nil {
		return nil, fmt.Errorf("query possessions: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) ListAddedBy(ctx context.Context, staff domain.UserID, limit int) ([]models.Possession, error) {
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+possessionColumns+` FROM possessions
		WHERE added_by = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, uuid.UUID(staff), lim)
	if err != nil {
		return nil, fmt.Errorf("query possessions: %w", err)
	}
	return collect(rows)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM possessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count possessions: %w", err)
	}
	return n, nil
}

func collect(rows *sql.Rows) ([]models.Possession, error) {
	defer rows.Close()
	out := make([]models.Possession, 0)
	for rows.Next() {
		p, err := scanPossession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan possession: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
