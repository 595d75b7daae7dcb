// Package numbers answers which phone numbers an owner may attach flows to.
// Purchasing and releasing numbers happens elsewhere.
package numbers

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
)

// Inventory is the number-inventory collaborator.
type Inventory interface {
	OwnedNumbers(ctx context.Context, ownerID string) ([]string, error)
	IsOwned(ctx context.Context, ownerID, phoneNumber string) (bool, error)
}

// MemoryInventory is an in-memory Inventory for tests and local runs.
type MemoryInventory struct {
	mu    sync.RWMutex
	owned map[string]map[string]struct{}
}

func NewMemoryInventory() *MemoryInventory {
	return &MemoryInventory{owned: map[string]map[string]struct{}{}}
}

// Assign records that ownerID holds the given numbers.
func (m *MemoryInventory) Assign(ownerID string, phoneNumbers ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.owned[ownerID]
	if !ok {
		set = map[string]struct{}{}
		m.owned[ownerID] = set
	}
	for _, p := range phoneNumbers {
		set[p] = struct{}{}
	}
}

// Release removes a number from ownerID.
func (m *MemoryInventory) Release(ownerID, phoneNumber string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.owned[ownerID], phoneNumber)
}

func (m *MemoryInventory) OwnedNumbers(ctx context.Context, ownerID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.owned[ownerID]))
	for p := range m.owned[ownerID] {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryInventory) IsOwned(ctx context.Context, ownerID, phoneNumber string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.owned[ownerID][phoneNumber]
	return ok, nil
}

// Schema creates phone_numbers. Rows are written by provisioning; this
// package only reads them.
var Schema = []string{`
CREATE TABLE IF NOT EXISTS phone_numbers (
  owner_id     TEXT NOT NULL,
  phone_number TEXT NOT NULL,
  assigned_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
  released_at  TIMESTAMPTZ
)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS phone_numbers_live ON phone_numbers (phone_number) WHERE released_at IS NULL`,
}

// PostgresInventory reads live (unreleased) rows of phone_numbers.
type PostgresInventory struct {
	db *sql.DB
}

func NewPostgresInventory(db *sql.DB) *PostgresInventory { return &PostgresInventory{db: db} }

func (p *PostgresInventory) OwnedNumbers(ctx context.Context, ownerID string) ([]string, error) {
	const q = `
SELECT phone_number FROM phone_numbers
WHERE owner_id = $1 AND released_at IS NULL
ORDER BY phone_number
`
	rows, err := p.db.QueryContext(ctx, q, ownerID)
	if err != nil {
		return nil, fmt.Errorf("numbers: list owned: %w", err)
	}
	defer rows.Close()

	out := make([]string, 0)
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("numbers: list owned: %w", err)
	}
	return out, nil
}

func (p *PostgresInventory) IsOwned(ctx context.Context, ownerID, phoneNumber string) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM phone_numbers
  WHERE owner_id = $1 AND phone_number = $2 AND released_at IS NULL
)
`
	var ok bool
	if err := p.db.QueryRowContext(ctx, q, ownerID, phoneNumber).Scan(&ok); err != nil {
		return false, fmt.Errorf("numbers: check ownership: %w", err)
	}
	return ok, nil
}
