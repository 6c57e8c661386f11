package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"benefits/internal/audit/models"
	"benefits/pkg/domain"
	txcontext "benefits/pkg/platform/tx"
)

// PostgresStore writes audit_log rows and, in the same transaction, an
// audit_outbox row the relay later publishes to Kafka.
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

// OutboxPayload is the JSON published to Kafka for each entry.
type OutboxPayload struct {
	ID               string         `json:"id"`
	Category         string         `json:"category"`
	Action           string         `json:"action_type"`
	ActorID          string         `json:"actor_id,omitempty"`
	RelatedCitizenID string         `json:"related_citizen_id,omitempty"`
	Description      string         `json:"description"`
	IPAddress        string         `json:"ip_address,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	Timestamp        string         `json:"timestamp"`
}

func nullableUser(id domain.UserID) uuid.NullUUID {
	if id.IsNil() {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(id), Valid: true}
}

// Append inserts the entry and its outbox message.
func (s *PostgresStore) Append(ctx context.Context, entry *models.Entry) error {
	meta := entry.Metadata
	if meta == nil {
		meta = map[string]any{}
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal audit metadata: %w", err)
	}

	exec := s.execer(ctx)
	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_log (id, actor_id, action_type, description, ip_address, user_agent,
			related_citizen_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		uuid.UUID(entry.ID),
		nullableUser(entry.ActorID),
		string(entry.Action),
		entry.Description,
		entry.IPAddress,
		entry.UserAgent,
		nullableUser(entry.RelatedCitizenID),
		metaBytes,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}

	payload := OutboxPayload{
		ID:          entry.ID.String(),
		Category:    string(entry.Action.Category()),
		Action:      string(entry.Action),
		Description: entry.Description,
		IPAddress:   entry.IPAddress,
		Metadata:    entry.Metadata,
		Timestamp:   entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	if entry.HasActor() {
		payload.ActorID = entry.ActorID.String()
	}
	if entry.HasRelatedCitizen() {
		payload.RelatedCitizenID = entry.RelatedCitizenID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, audit_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, uuid.New(), uuid.UUID(entry.ID), string(entry.Action), payloadBytes, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// List returns matching entries, newest first.
func (s *PostgresStore) List(ctx context.Context, filter models.Filter) ([]models.Entry, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = models.DefaultListLimit
	}
	var (
		conds []string
		args  []any
	)
	if !filter.RelatedCitizen.IsNil() {
		args = append(args, uuid.UUID(filter.RelatedCitizen))
		conds = append(conds, fmt.Sprintf("related_citizen_id = $%d", len(args)))
	}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		conds = append(conds, fmt.Sprintf("action_type = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)
	query := fmt.Sprintf(`
		SELECT id, actor_id, action_type, description, ip_address, user_agent,
			related_citizen_id, metadata, created_at
		FROM audit_log
		%s
		ORDER BY created_at DESC, id DESC
		LIMIT $%d
	`, where, len(args))

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []models.Entry
	for rows.Next() {
		var (
			e         models.Entry
			id        uuid.UUID
			actor     uuid.NullUUID
			related   uuid.NullUUID
			action    string
			metaBytes []byte
		)
		if err := rows.Scan(&id, &actor, &action, &e.Description, &e.IPAddress, &e.UserAgent,
			&related, &metaBytes, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		e.ID = domain.AuditEntryID(id)
		e.Action = models.Action(action)
		if actor.Valid {
			e.ActorID = domain.UserID(actor.UUID)
		}
		if related.Valid {
			e.RelatedCitizenID = domain.UserID(related.UUID)
		}
		if len(metaBytes) > 0 {
			if err := json.Unmarshal(metaBytes, &e.Metadata); err != nil {
				return nil, fmt.Errorf("decode audit metadata: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of stored entries.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit log: %w", err)
	}
	return n, nil
}

// OutboxMessage is one unpublished outbox row.
type OutboxMessage struct {
	ID        uuid.UUID
	AuditID   uuid.UUID
	EventType string
	Payload   []byte
	CreatedAt time.Time
}

// FetchPending locks up to limit unpublished rows. It must run inside a
// transaction so concurrent relays skip each other's rows.
func (s *PostgresStore) FetchPending(ctx context.Context, limit int) ([]OutboxMessage, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT id, audit_id, event_type, payload, created_at
		FROM audit_outbox
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox: %w", err)
	}
	defer rows.Close()

	var out []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(&m.ID, &m.AuditID, &m.EventType, &m.Payload, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// MarkPublished stamps the given outbox rows.
func (s *PostgresStore) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	strIDs := make([]string, len(ids))
	for i, id := range ids {
		strIDs[i] = id.String()
	}
	_, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE audit_outbox SET published_at = $1 WHERE id = ANY($2::uuid[])
	`, at, pq.Array(strIDs))
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
