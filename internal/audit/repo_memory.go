package audit

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepo keeps events in process. Used when no database is configured.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepo) List(ctx context.Context, q Query) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, 0)
	for i := len(r.events) - 1; i >= 0; i-- {
		e := r.events[i]
		if e.OwnerID != q.OwnerID || (q.PhoneNumber != "" && e.PhoneNumber != q.PhoneNumber) {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if n := q.limit(); len(out) > n {
		out = out[:n]
	}
	return out, nil
}
