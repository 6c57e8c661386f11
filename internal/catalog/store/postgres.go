package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/lib/pq"

	"benefits/internal/catalog/models"
	"benefits/internal/platform/postgres"
	"benefits/pkg/domain"
	"benefits/pkg/platform/sentinel"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore persists the possession catalog.
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

func (s *PostgresStore) CreateCategory(ctx context.Context, c *models.Category) error {
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO possession_categories (name, description, is_active, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, c.Name, c.Description, c.IsActive, c.CreatedAt).Scan(&id)
	if err != nil {
		if postgres.IsUniqueViolation(err, "possession_categories_name_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert category: %w", err)
	}
	c.ID = domain.CategoryID(id)
	return nil
}

func (s *PostgresStore) CreateType(ctx context.Context, t *models.Type) error {
	var id int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		INSERT INTO possession_types (category_id, name, description, point_value, is_active, created_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM possession_categories WHERE id = $1)
		RETURNING id
	`, int64(t.CategoryID), t.Name, t.Description, t.PointValue, t.IsActive, t.CreatedAt).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sentinel.ErrNotFound
		}
		if postgres.IsUniqueViolation(err, "possession_types_category_name_key") {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert possession type: %w", err)
	}
	t.ID = domain.TypeID(id)
	return nil
}

func (s *PostgresStore) FindCategory(ctx context.Context, id domain.CategoryID) (*models.Category, error) {
	var c models.Category
	var rawID int64
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM possession_categories WHERE id = $1
	`, int64(id)).Scan(&rawID, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find category: %w", err)
	}
	c.ID = domain.CategoryID(rawID)
	return &c, nil
}

const typeColumns = `id, category_id, name, description, point_value, is_active, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanType(row rowScanner) (models.Type, error) {
	var t models.Type
	var id, categoryID int64
	if err := row.Scan(&id, &categoryID, &t.Name, &t.Description, &t.PointValue, &t.IsActive, &t.CreatedAt); err != nil {
		return models.Type{}, err
	}
	t.ID = domain.TypeID(id)
	t.CategoryID = domain.CategoryID(categoryID)
	return t, nil
}

func (s *PostgresStore) FindType(ctx context.Context, id domain.TypeID) (*models.Type, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `SELECT `+typeColumns+` FROM possession_types WHERE id = $1`, int64(id))
	t, err := scanType(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find possession type: %w", err)
	}
	return &t, nil
}

func (s *PostgresStore) TypesByIDs(ctx context.Context, ids []domain.TypeID) (map[domain.TypeID]models.Type, error) {
	out := make(map[domain.TypeID]models.Type, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = strconv.FormatInt(int64(id), 10)
	}
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT `+typeColumns+` FROM possession_types WHERE id = ANY($1::bigint[])`, pq.Array(raw))
	if err != nil {
		return nil, fmt.Errorf("query possession types: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan possession type: %w", err)
		}
		out[t.ID] = t
	}
	return out, rows.Err()
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, name, description, is_active, created_at
		FROM possession_categories ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()
	out := make([]models.Category, 0)
	for rows.Next() {
		var c models.Category
		var id int64
		if err := rows.Scan(&id, &c.Name, &c.Description, &c.IsActive, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		c.ID = domain.CategoryID(id)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) TypesByCategory(ctx context.Context, category domain.CategoryID, activeOnly bool) ([]models.Type, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+typeColumns+` FROM possession_types
		WHERE category_id = $1 AND (NOT $2 OR is_active)
		ORDER BY name
	`, int64(category), activeOnly)
	if err != nil {
		return nil, fmt.Errorf("query possession types: %w", err)
	}
	defer rows.Close()
	out := make([]models.Type, 0)
	for rows.Next() {
		t, err := scanType(rows)
		if err != nil {
			return nil, fmt.Errorf("scan possession type: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) SaveType(ctx context.Context, t *models.Type) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE possession_types SET description = $2, point_value = $3, is_active = $4
		WHERE id = $1
	`, int64(t.ID), t.Description, t.PointValue, t.IsActive)
	if err != nil {
		return fmt.Errorf("update possession type: %w", err)
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
