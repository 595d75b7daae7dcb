package flowstore

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory Repository for tests and local development.
// A single mutex makes Upsert atomic per key, matching the Postgres
// ON CONFLICT semantics.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Record // key: owner_id|phone_number
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Record{}} }

func memKey(ownerID, phone string) string { return ownerID + "|" + phone }

// Seed stores rec as-is, bypassing Upsert. Useful for legacy payloads.
func (r *MemoryRepo) Seed(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[memKey(rec.OwnerID, rec.PhoneNumber)] = cloneRecord(rec)
}

func (r *MemoryRepo) Get(ctx context.Context, ownerID, phoneNumber string) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[memKey(ownerID, phoneNumber)]
	if !ok || rec.DeletedAt != nil {
		return Record{}, false, nil
	}
	return cloneRecord(rec), true, nil
}

func (r *MemoryRepo) GetByNumber(ctx context.Context, phoneNumber string) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  Record
		found bool
	)
	for _, rec := range r.rows {
		if rec.PhoneNumber != phoneNumber || rec.DeletedAt != nil {
			continue
		}
		if !found || rec.UpdatedAt.After(best.UpdatedAt) {
			best, found = rec, true
		}
	}
	if !found {
		return Record{}, false, nil
	}
	return cloneRecord(best), true, nil
}

func (r *MemoryRepo) ListByOwner(ctx context.Context, ownerID string) ([]Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.rows {
		if rec.OwnerID == ownerID && rec.DeletedAt == nil {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhoneNumber < out[j].PhoneNumber })
	return out, nil
}

func (r *MemoryRepo) Upsert(ctx context.Context, rec Record, policy ConflictPolicy, retire ...string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := memKey(rec.OwnerID, rec.PhoneNumber)
	existing, ok := r.rows[k]
	live := ok && existing.DeletedAt == nil
	if live && policy == ConflictReject {
		return Record{}, ErrConflict
	}
	if ok {
		// The row identity is the key; a revived flow keeps its id.
		rec.ID = existing.ID
		if live {
			rec.CreatedAt = existing.CreatedAt
		}
	}
	rec.DeletedAt = nil
	r.rows[k] = cloneRecord(rec)
	for _, phone := range retire {
		if phone == rec.PhoneNumber {
			continue
		}
		_, _ = r.deleteLocked(rec.OwnerID, phone, rec.UpdatedAt)
	}
	return cloneRecord(rec), nil
}

func (r *MemoryRepo) Delete(ctx context.Context, ownerID, phoneNumber string, at time.Time) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.deleteLocked(ownerID, phoneNumber, at)
}

func (r *MemoryRepo) deleteLocked(ownerID, phoneNumber string, at time.Time) (string, error) {
	k := memKey(ownerID, phoneNumber)
	rec, ok := r.rows[k]
	if !ok || rec.DeletedAt != nil {
		return "", ErrNotFound
	}
	t := at
	rec.DeletedAt = &t
	rec.UpdatedAt = at
	r.rows[k] = rec
	return rec.ID, nil
}

func cloneRecord(rec Record) Record {
	out := rec
	out.Blocks = append([]byte(nil), rec.Blocks...)
	if rec.DeletedAt != nil {
		t := *rec.DeletedAt
		out.DeletedAt = &t
	}
	return out
}
