package audit

import (
	"context"
	"database/sql"
	"fmt"
)

var Schema = []string{`
CREATE TABLE IF NOT EXISTS audit_events (
  id UUID PRIMARY KEY, owner_id TEXT NOT NULL, type TEXT NOT NULL,
  actor_user_id TEXT, actor_role TEXT, ip_address TEXT,
  flow_id TEXT, phone_number TEXT, message TEXT, metadata JSONB,
  created_at TIMESTAMPTZ NOT NULL
)`}

// PostgresRepo appends to the INSERT-only audit_events table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (
  id, owner_id, type, actor_user_id, actor_role, ip_address,
  flow_id, phone_number, message, metadata, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,NULLIF($10, '')::jsonb,$11
)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID,
		e.OwnerID,
		e.Type,
		e.ActorUserID,
		e.ActorRole,
		e.IPAddress,
		e.FlowID,
		e.PhoneNumber,
		e.Message,
		e.Metadata,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("audit: append: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, q Query) ([]Event, error) {
	const stmt = `
SELECT id, owner_id, type,
       COALESCE(actor_user_id, ''), COALESCE(actor_role, ''), COALESCE(ip_address, ''),
       COALESCE(flow_id, ''), COALESCE(phone_number, ''), COALESCE(message, ''),
       COALESCE(metadata::text, ''), created_at
FROM audit_events
WHERE owner_id = $1 AND ($2 = '' OR phone_number = $2)
ORDER BY created_at DESC
LIMIT $3
`
	rows, err := r.db.QueryContext(ctx, stmt, q.OwnerID, q.PhoneNumber, q.limit())
	if err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var e Event
		if err := rows.Scan(
			&e.ID, &e.OwnerID, &e.Type,
			&e.ActorUserID, &e.ActorRole, &e.IPAddress,
			&e.FlowID, &e.PhoneNumber, &e.Message,
			&e.Metadata, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: list: %w", err)
	}
	return out, nil
}
