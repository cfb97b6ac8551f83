package email

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore keeps records in the email_records table.
type PostgresStore struct {
	db DBTX
}

// NewPostgresStore creates a store on top of db.
func NewPostgresStore(db DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, provider_message_id, user_id, recipient_email, recipient_name, event_name,
	status, sent_at, opened_at, clicked_at, open_count, click_count, metadata, error, created_at, updated_at`

const insertRecord = `
INSERT INTO email_records (id, provider_message_id, user_id, recipient_email, recipient_name,
	event_name, status, metadata, error)
VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT DO NOTHING`

func (s *PostgresStore) Create(ctx context.Context, r *Record) (bool, error) {
	if err := r.Validate(); err != nil {
		return false, err
	}

	tag, err := s.db.Exec(ctx, insertRecord,
		r.ID, r.ProviderMessageID, r.UserID, r.RecipientEmail, r.RecipientName,
		r.EventName, string(r.Status), nonNil(r.Metadata), r.Error,
	)
	if err != nil {
		return false, fmt.Errorf("email: create record: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) Get(ctx context.Context, id uuid.UUID) (*Record, error) {
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM email_records WHERE id = $1`, id)
	return scanOne(row)
}

func (s *PostgresStore) FindByProviderID(ctx context.Context, providerID string) (*Record, error) {
	if providerID == "" {
		return nil, ErrNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+recordColumns+` FROM email_records WHERE provider_message_id = $1`, providerID)
	return scanOne(row)
}

const findLatestActive = `
SELECT ` + recordColumns + `
FROM email_records
WHERE lower(recipient_email) = lower($1)
	AND event_name = $2
	AND status = ANY($3::text[])
ORDER BY created_at DESC
LIMIT 1`

func (s *PostgresStore) FindLatestActive(ctx context.Context, recipient, event string) (*Record, error) {
	row := s.db.QueryRow(ctx, findLatestActive, recipient, event, statusStrings(nonTerminal()))
	return scanOne(row)
}

// applyUpdate guards the status inside the statement, so concurrent updates of
// the same record can never move it backwards. The CTE locks the row to report
// the status it had right before this update.
const applyUpdate = `
WITH prev AS (
	SELECT id, status FROM email_records WHERE id = $1 FOR UPDATE
)
UPDATE email_records r SET
	status = CASE WHEN $2 <> '' AND r.status = ANY($3::text[]) THEN $2 ELSE r.status END,
	provider_message_id = COALESCE(r.provider_message_id, NULLIF($4, '')),
	sent_at = COALESCE(r.sent_at, $5),
	opened_at = COALESCE(r.opened_at, $6),
	clicked_at = COALESCE(r.clicked_at, $7),
	open_count = GREATEST(r.open_count + $8, $9),
	click_count = r.click_count + $10,
	error = CASE WHEN $11 <> '' THEN $11 ELSE r.error END,
	metadata = r.metadata || $12::jsonb || COALESCE((
		SELECT jsonb_object_agg(a.key, COALESCE(r.metadata -> a.key, '[]'::jsonb) || jsonb_build_array(a.value))
		FROM jsonb_each($13::jsonb) AS a
	), '{}'::jsonb),
	updated_at = now()
FROM prev
WHERE r.id = prev.id
RETURNING r.id, r.provider_message_id, r.user_id, r.recipient_email, r.recipient_name, r.event_name,
	r.status, r.sent_at, r.opened_at, r.clicked_at, r.open_count, r.click_count, r.metadata, r.error,
	r.created_at, r.updated_at, prev.status`

func (s *PostgresStore) Apply(ctx context.Context, id uuid.UUID, u Update) (*Applied, error) {
	allowed := statusStrings(u.allowedFrom())

	row := s.db.QueryRow(ctx, applyUpdate,
		id, string(u.Status), allowed, u.ProviderMessageID,
		u.SentAt, u.OpenedAt, u.ClickedAt,
		u.OpenCount, u.MinOpenCount, u.ClickCount,
		u.Error, nonNil(u.Merge), nonNil(u.Append),
	)

	var previous string
	r, err := scanRecord(row, &previous)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("email: apply update: %w", err)
	}
	return &Applied{Record: r, Previous: Status(previous)}, nil
}

const listStale = `
SELECT ` + recordColumns + `
FROM email_records
WHERE status = ANY($1::text[]) AND updated_at < $2
ORDER BY updated_at
LIMIT $3`

func (s *PostgresStore) ListStale(ctx context.Context, statuses []Status, before time.Time, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.Query(ctx, listStale, statusStrings(statuses), before, limit)
	if err != nil {
		return nil, fmt.Errorf("email: list stale records: %w", err)
	}
	defer rows.Close()

	var out []*Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("email: scan record: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("email: list stale records: %w", err)
	}
	return out, nil
}

func scanOne(row pgx.Row) (*Record, error) {
	r, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("email: get record: %w", err)
	}
	return r, nil
}

func scanRecord(row pgx.Row, extra ...any) (*Record, error) {
	var (
		r          Record
		providerID *string
		status     string
	)
	dest := []any{
		&r.ID, &providerID, &r.UserID, &r.RecipientEmail, &r.RecipientName, &r.EventName,
		&status, &r.SentAt, &r.OpenedAt, &r.ClickedAt, &r.OpenCount, &r.ClickCount,
		&r.Metadata, &r.Error, &r.CreatedAt, &r.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}

	if providerID != nil {
		r.ProviderMessageID = *providerID
	}
	r.Status = Status(status)
	if r.Metadata == nil {
		r.Metadata = map[string]any{}
	}
	return &r, nil
}

func nonTerminal() []Status {
	var out []Status
	for _, s := range Statuses() {
		if !s.Terminal() {
			out = append(out, s)
		}
	}
	return out
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

func nonNil(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
