package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"benefits/internal/scoring/models"
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
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Create writes the calculation and its items. Callers run it inside a
// transaction so a partial record is never visible.
func (s *PostgresStore) Create(ctx context.Context, c *models.Calculation) error {
	exec := s.execer(ctx)
	_, err := exec.ExecContext(ctx, `
		INSERT INTO calculations (id, citizen_id, total_score, calculated_by, notes, calculated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.UUID(c.ID), uuid.UUID(c.CitizenID), c.TotalScore, uuid.UUID(c.CalculatedBy), c.Notes, c.CalculatedAt)
	if err != nil {
		return fmt.Errorf("insert calculation: %w", err)
	}
	for _, item := range c.Items {
		_, err := exec.ExecContext(ctx, `
			INSERT INTO calculation_items (calculation_id, possession_id, possession_name, point_value)
			VALUES ($1, $2, $3, $4)
		`, uuid.UUID(c.ID), uuid.UUID(item.PossessionID), item.PossessionName, item.PointValue)
		if err != nil {
			return fmt.Errorf("insert calculation item: %w", err)
		}
	}
	return nil
}

func (s *PostgresStore) ListByCitizen(ctx context.Context, citizen domain.UserID, limit int) ([]models.Calculation, error) {
	lim := sql.NullInt64{Int64: int64(limit), Valid: limit > 0}
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, citizen_id, total_score, calculated_by, notes, calculated_at
		FROM calculations
		WHERE citizen_id = $1
		ORDER BY calculated_at DESC
		LIMIT $2
	`, uuid.UUID(citizen), lim)
	if err != nil {
		return nil, fmt.Errorf("query calculations: %w", err)
	}
	defer rows.Close()

	out := make([]models.Calculation, 0)
	index := make(map[uuid.UUID]int)
	ids := make([]string, 0)
	for rows.Next() {
		var c models.Calculation
		var id, citizenID, by uuid.UUID
		if err := rows.Scan(&id, &citizenID, &c.TotalScore, &by, &c.Notes, &c.CalculatedAt); err != nil {
			return nil, fmt.Errorf("scan calculation: %w", err)
		}
		c.ID = domain.CalculationID(id)
		c.CitizenID = domain.UserID(citizenID)
		c.CalculatedBy = domain.UserID(by)
		c.Items = []models.Item{}
		index[id] = len(out)
		ids = append(ids, id.String())
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return out, nil
	}

	items, err := s.execer(ctx).QueryContext(ctx, `
		SELECT calculation_id, possession_id, possession_name, point_value
		FROM calculation_items
		WHERE calculation_id = ANY($1::uuid[])
		ORDER BY id
	`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("query calculation items: %w", err)
	}
	defer items.Close()
	for items.Next() {
		var calcID uuid.UUID
		var possessionID uuid.NullUUID
		var item models.Item
		if err := items.Scan(&calcID, &possessionID, &item.PossessionName, &item.PointValue); err != nil {
			return nil, fmt.Errorf("scan calculation item: %w", err)
		}
		if possessionID.Valid {
			item.PossessionID = domain.PossessionID(possessionID.UUID)
		}
		i := index[calcID]
		out[i].Items = append(out[i].Items, item)
	}
	return out, items.Err()
}

func (s *PostgresStore) Latest(ctx context.Context, citizen domain.UserID) (*models.Calculation, error) {
	out, err := s.ListByCitizen(ctx, citizen, 1)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, sentinel.ErrNotFound
	}
	return &out[0], nil
}
