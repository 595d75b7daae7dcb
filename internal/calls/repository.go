package calls

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Repository is an append-only store of legs.
type Repository interface {
	Append(ctx context.Context, l Leg) error
	// ListByNumber returns legs of flowNumber created in [from, to), oldest
	// first.
	ListByNumber(ctx context.Context, flowNumber string, from, to time.Time) ([]Leg, error)
}

type MemoryRepo struct {
	mu   sync.Mutex
	legs []Leg
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, l Leg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legs = append(r.legs, l)
	return nil
}

func (r *MemoryRepo) ListByNumber(ctx context.Context, flowNumber string, from, to time.Time) ([]Leg, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Leg, 0)
	for _, l := range r.legs {
		if l.FlowNumber != flowNumber {
			continue
		}
		if l.CreatedAt.Before(from) || !l.CreatedAt.Before(to) {
			continue
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

var Schema = []string{`
CREATE TABLE IF NOT EXISTS call_legs (
  id UUID PRIMARY KEY, call_id TEXT NOT NULL, flow_id TEXT,
  flow_number TEXT NOT NULL, remote_number TEXT, direction TEXT NOT NULL,
  resumed_at TEXT, digits TEXT, dial_status TEXT, outcome TEXT NOT NULL,
  directives INT NOT NULL, dialed BOOLEAN NOT NULL,
  menu_fallback BOOLEAN NOT NULL, created_at TIMESTAMPTZ NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS call_legs_number_time ON call_legs (flow_number, created_at)`,
}

// PostgresRepo stores legs in the INSERT-only call_legs table.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, l Leg) error {
	const q = `
INSERT INTO call_legs (
  id, call_id, flow_id, flow_number, remote_number, direction,
  resumed_at, digits, dial_status, outcome, directives, dialed,
  menu_fallback, created_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
)
`
	_, err := r.db.ExecContext(ctx, q,
		l.ID,
		l.CallID,
		l.FlowID,
		l.FlowNumber,
		l.Remote,
		string(l.Direction),
		l.ResumedAt,
		l.Digits,
		l.DialStatus,
		string(l.Outcome),
		l.Directives,
		l.Dialed,
		l.MenuFallback,
		l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("calls: append leg: %w", err)
	}
	return nil
}

func (r *PostgresRepo) ListByNumber(ctx context.Context, flowNumber string, from, to time.Time) ([]Leg, error) {
	const q = `
SELECT id, call_id, COALESCE(flow_id, ''), flow_number, COALESCE(remote_number, ''), direction,
       COALESCE(resumed_at, ''), COALESCE(digits, ''), COALESCE(dial_status, ''), outcome,
       directives, dialed, menu_fallback, created_at
FROM call_legs
WHERE flow_number = $1 AND created_at >= $2 AND created_at < $3
ORDER BY created_at
`
	rows, err := r.db.QueryContext(ctx, q, flowNumber, from, to)
	if err != nil {
		return nil, fmt.Errorf("calls: list legs: %w", err)
	}
	defer rows.Close()

	out := make([]Leg, 0)
	for rows.Next() {
		var l Leg
		if err := rows.Scan(
			&l.ID,
			&l.CallID,
			&l.FlowID,
			&l.FlowNumber,
			&l.Remote,
			&l.Direction,
			&l.ResumedAt,
			&l.Digits,
			&l.DialStatus,
			&l.Outcome,
			&l.Directives,
			&l.Dialed,
			&l.MenuFallback,
			&l.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("calls: scan leg: %w", err)
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("calls: list legs: %w", err)
	}
	return out, nil
}
