package flowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"callflow-platform/pkg/utils"
)

// Schema creates the call_flows table used by PostgresRepo.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS call_flows (
  id                   UUID PRIMARY KEY,
  owner_id             TEXT NOT NULL,
  phone_number         TEXT NOT NULL,
  name                 TEXT NOT NULL,
  blocks               JSONB NOT NULL,
  entry_block_id       TEXT NOT NULL DEFAULT '',
  recording_enabled    BOOLEAN NOT NULL DEFAULT FALSE,
  recording_disclaimer TEXT NOT NULL DEFAULT '',
  created_at           TIMESTAMPTZ NOT NULL,
  updated_at           TIMESTAMPTZ NOT NULL,
  deleted_at           TIMESTAMPTZ,
  UNIQUE (owner_id, phone_number)
)`,
	`CREATE INDEX IF NOT EXISTS call_flows_phone_live ON call_flows (phone_number) WHERE deleted_at IS NULL`,
}

// PostgresRepo stores flows in call_flows (see Schema).
//
// Deleted flows keep their row (deleted_at set) so the unique key stays
// stable; a later save for the same key revives it.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

const selectFlowColumns = `
SELECT id, owner_id, phone_number, name, blocks, entry_block_id,
       recording_enabled, recording_disclaimer, created_at, updated_at, deleted_at
FROM call_flows
`

func (r *PostgresRepo) Get(ctx context.Context, ownerID, phoneNumber string) (Record, bool, error) {
	const q = selectFlowColumns + `
WHERE owner_id = $1 AND phone_number = $2 AND deleted_at IS NULL
`
	return r.queryOne(ctx, q, ownerID, phoneNumber)
}

func (r *PostgresRepo) GetByNumber(ctx context.Context, phoneNumber string) (Record, bool, error) {
	const q = selectFlowColumns + `
WHERE phone_number = $1 AND deleted_at IS NULL
ORDER BY updated_at DESC
LIMIT 1
`
	return r.queryOne(ctx, q, phoneNumber)
}

func (r *PostgresRepo) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	const q = selectFlowColumns + `
WHERE owner_id = $1 AND deleted_at IS NULL
ORDER BY phone_number
`
	rows, err := r.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("flowstore: list flows: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("flowstore: list flows: %w", err)
	}
	return out, nil
}

// Upsert is a single statement so the (owner_id, phone_number) invariant
// holds without a check-then-act race. Under ConflictReject the WHERE clause
// suppresses the update of a live row, RETURNING yields nothing and the
// call fails with ErrConflict.
//
// When retire is non-empty the upsert and the retirements share one
// transaction.
func (r *PostgresRepo) Upsert(ctx context.Context, rec Record, policy ConflictPolicy, retire ...string) (Record, error) {
	if len(retire) == 0 {
		return upsertFlow(ctx, r.db, rec, policy)
	}
	var out Record
	err := utils.WithTx(ctx, r.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		saved, err := upsertFlow(ctx, tx, rec, policy)
		if err != nil {
			return err
		}
		for _, phone := range retire {
			if phone == rec.PhoneNumber {
				continue
			}
			if _, err := deleteFlow(ctx, tx, rec.OwnerID, phone, rec.UpdatedAt); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}
		out = saved
		return nil
	})
	if err != nil {
		return Record{}, err
	}
	return out, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, ownerID, phoneNumber string, at time.Time) (string, error) {
	return deleteFlow(ctx, r.db, ownerID, phoneNumber, at)
}

// rowQuerier is satisfied by *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func upsertFlow(ctx context.Context, q rowQuerier, rec Record, policy ConflictPolicy) (Record, error) {
	const stmt = `
INSERT INTO call_flows (
  id, owner_id, phone_number, name, blocks, entry_block_id,
  recording_enabled, recording_disclaimer, created_at, updated_at, deleted_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,NULL
)
ON CONFLICT (owner_id, phone_number)
DO UPDATE SET name                 = EXCLUDED.name,
              blocks               = EXCLUDED.blocks,
              entry_block_id       = EXCLUDED.entry_block_id,
              recording_enabled    = EXCLUDED.recording_enabled,
              recording_disclaimer = EXCLUDED.recording_disclaimer,
              created_at           = CASE WHEN call_flows.deleted_at IS NULL
                                          THEN call_flows.created_at
                                          ELSE EXCLUDED.created_at END,
              updated_at           = EXCLUDED.updated_at,
              deleted_at           = NULL
WHERE call_flows.deleted_at IS NOT NULL OR $11::boolean
RETURNING id, owner_id, phone_number, name, blocks, entry_block_id,
          recording_enabled, recording_disclaimer, created_at, updated_at, deleted_at
`
	row := q.QueryRowContext(ctx, stmt,
		rec.ID,
		rec.OwnerID,
		rec.PhoneNumber,
		rec.Name,
		string(rec.Blocks),
		rec.EntryBlockID,
		rec.RecordingEnabled,
		rec.RecordingDisclaimer,
		rec.CreatedAt,
		rec.UpdatedAt,
		policy == ConflictReplace,
	)
	out, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, ErrConflict
		}
		return Record{}, err
	}
	return out, nil
}

func deleteFlow(ctx context.Context, q rowQuerier, ownerID, phoneNumber string, at time.Time) (string, error) {
	const stmt = `
UPDATE call_flows
SET deleted_at = $3, updated_at = $3
WHERE owner_id = $1 AND phone_number = $2 AND deleted_at IS NULL
RETURNING id
`
	var id string
	if err := q.QueryRowContext(ctx, stmt, ownerID, phoneNumber, at).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("flowstore: delete flow: %w", err)
	}
	return id, nil
}

func (r *PostgresRepo) queryOne(ctx context.Context, q string, args ...any) (Record, bool, error) {
	rec, err := scanRecord(r.db.QueryRowContext(ctx, q, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Record{}, false, nil
		}
		return Record{}, false, err
	}
	return rec, true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var (
		rec     Record
		deleted sql.NullTime
	)
	if err := row.Scan(
		&rec.ID,
		&rec.OwnerID,
		&rec.PhoneNumber,
		&rec.Name,
		&rec.Blocks,
		&rec.EntryBlockID,
		&rec.RecordingEnabled,
		&rec.RecordingDisclaimer,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&deleted,
	); err != nil {
		return Record{}, err
	}
	if deleted.Valid {
		t := deleted.Time
		rec.DeletedAt = &t
	}
	return rec, nil
}
