package flowstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"callflow-platform/internal/audit"
	"callflow-platform/internal/callflow"
)

func sampleFlow(owner, phone string) callflow.CallFlow {
	return callflow.CallFlow{
		OwnerID:     owner,
		PhoneNumber: phone,
		Name:        "Main line",
		Blocks: []callflow.Block{
			{ID: "greet", Type: callflow.BlockSay, Config: callflow.Config{Text: "Welcome"}, Next: []string{"bye"}},
			{ID: "bye", Type: callflow.BlockHangup},
		},
	}
}

type memCache struct {
	mu    sync.Mutex
	flows map[string]callflow.CallFlow
}

func newMemCache() *memCache { return &memCache{flows: map[string]callflow.CallFlow{}} }

func (c *memCache) Get(_ context.Context, phone string) (callflow.CallFlow, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f, ok := c.flows[phone]
	return f, ok, nil
}

func (c *memCache) Set(_ context.Context, f callflow.CallFlow) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.flows[f.PhoneNumber] = f
	return nil
}

func (c *memCache) Invalidate(_ context.Context, phone string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.flows, phone)
	return nil
}

type countingObserver struct{ hits, misses int }

func (o *countingObserver) CacheHit()  { o.hits++ }
func (o *countingObserver) CacheMiss() { o.misses++ }

func TestService_SaveTwiceUpdatesSameRecord(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil, nil)

	first, err := svc.Save(ctx, sampleFlow("o1", "+15550001111"), ConflictReplace)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}

	f := sampleFlow("o1", "+15550001111")
	f.Name = "Renamed"
	second, err := svc.Save(ctx, f, ConflictReplace)
	if err != nil {
		t.Fatalf("second save: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same record id, got %q then %q", first.ID, second.ID)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("created_at changed on update")
	}

	list, err := svc.List(ctx, "o1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 1 || list[0].Name != "Renamed" {
		t.Fatalf("expected a single updated flow, got %+v", list)
	}
}

func TestService_SaveRejectPolicyConflicts(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil, nil)

	if _, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReject); err != nil {
		t.Fatalf("first save: %v", err)
	}
	if _, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReject); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestService_SaveValidatesBeforeWriting(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil, nil)

	f := sampleFlow("o1", "+1555")
	f.Blocks[0].Next = []string{"missing"}
	if _, err := svc.Save(ctx, f, ConflictReplace); !errors.Is(err, callflow.ErrInvalidFlow) {
		t.Fatalf("expected validation error, got %v", err)
	}

	f = sampleFlow("o1", "+1555")
	f.Name = "  "
	if _, err := svc.Save(ctx, f, ConflictReplace); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}

	if recs, _ := repo.ListByOwner(ctx, "o1"); len(recs) != 0 {
		t.Fatalf("expected no writes, got %d records", len(recs))
	}
}

func TestService_DeleteThenSaveRevives(t *testing.T) {
	ctx := context.Background()
	auditRepo := audit.NewMemoryRepo()
	svc := NewService(NewMemoryRepo(), nil, AuditAdapter{Audit: audit.NewService(auditRepo)})

	saved, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReplace)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Delete(ctx, "o1", "+1555"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := svc.Load(ctx, "o1", "+1555"); ok {
		t.Fatalf("deleted flow should not load")
	}
	if err := svc.Delete(ctx, "o1", "+1555"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	// A deleted flow does not block a reject-policy save.
	revived, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReject)
	if err != nil {
		t.Fatalf("revive: %v", err)
	}
	if revived.ID != saved.ID {
		t.Fatalf("expected revived flow to keep id %q, got %q", saved.ID, revived.ID)
	}

	evs, err := auditRepo.List(ctx, audit.Query{OwnerID: "o1"})
	if err != nil || len(evs) != 3 {
		t.Fatalf("expected 3 audit events, got %d (%v)", len(evs), err)
	}
	if evs[1].Type != audit.EventTypeFlowDeleted {
		t.Fatalf("expected delete event, got %q", evs[1].Type)
	}
}

func TestService_SaveRetiresFlowMovedToAnotherNumber(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil, nil)

	saved, err := svc.Save(ctx, sampleFlow("o1", "+1111"), ConflictReplace)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	moved := saved
	moved.PhoneNumber = "+2222"
	if _, err := svc.Save(ctx, moved, ConflictReplace); err != nil {
		t.Fatalf("move: %v", err)
	}

	list, _ := svc.List(ctx, "o1")
	if len(list) != 1 || list[0].PhoneNumber != "+2222" {
		t.Fatalf("expected only the new number to carry a flow, got %+v", list)
	}
}

func TestService_MoveRejectedByConflictKeepsOriginal(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewMemoryRepo(), nil, nil)

	a, err := svc.Save(ctx, sampleFlow("o1", "+1111"), ConflictReplace)
	if err != nil {
		t.Fatalf("save a: %v", err)
	}
	if _, err := svc.Save(ctx, sampleFlow("o1", "+2222"), ConflictReplace); err != nil {
		t.Fatalf("save b: %v", err)
	}

	moved := a
	moved.PhoneNumber = "+2222"
	if _, err := svc.Save(ctx, moved, ConflictReject); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	f, ok, err := svc.Load(ctx, "o1", "+1111")
	if err != nil || !ok {
		t.Fatalf("original flow lost: ok=%v err=%v", ok, err)
	}
	if f.ID != a.ID {
		t.Fatalf("expected flow %q on +1111, got %q", a.ID, f.ID)
	}
}

type recordingAudit struct {
	mu     sync.Mutex
	events []ChangeEvent
}

func (r *recordingAudit) LogFlowChange(_ context.Context, e ChangeEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingAudit) deletes() []ChangeEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ChangeEvent
	for _, e := range r.events {
		if e.Kind == ChangeDeleted {
			out = append(out, e)
		}
	}
	return out
}

func TestService_DeleteEventsCarryFlowID(t *testing.T) {
	ctx := context.Background()
	rec := &recordingAudit{}
	svc := NewService(NewMemoryRepo(), nil, rec)

	saved, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReplace)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := svc.Delete(ctx, "o1", "+1555"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	other, err := svc.Save(ctx, sampleFlow("o1", "+1666"), ConflictReplace)
	if err != nil {
		t.Fatalf("save other: %v", err)
	}
	other.PhoneNumber = "+1777"
	if _, err := svc.Save(ctx, other, ConflictReplace); err != nil {
		t.Fatalf("move: %v", err)
	}

	dels := rec.deletes()
	if len(dels) != 2 {
		t.Fatalf("expected 2 delete events, got %+v", dels)
	}
	if dels[0].FlowID != saved.ID || dels[0].PhoneNumber != "+1555" {
		t.Fatalf("delete event: %+v, want flow %q", dels[0], saved.ID)
	}
	if dels[1].FlowID != other.ID || dels[1].PhoneNumber != "+1666" {
		t.Fatalf("move event: %+v, want flow %q on +1666", dels[1], other.ID)
	}
}

func TestService_LoadConvertsLegacy(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	now := time.Unix(1700000000, 0).UTC()
	repo.Seed(Record{
		ID:          "legacy-1",
		OwnerID:     "o1",
		PhoneNumber: "+1555",
		Name:        "Old",
		Blocks:      []byte(`{"greeting":"Hi","menu":{"prompt":"Press 1","options":[{"digit":"1","target":"sales"}]}}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	svc := NewService(repo, nil, nil)

	f, ok, err := svc.Load(ctx, "o1", "+1555")
	if err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if len(f.Blocks) != 2 || f.Blocks[0].Type != callflow.BlockSay || f.Blocks[1].Type != callflow.BlockMenu {
		t.Fatalf("expected converted say -> menu graph, got %+v", f.Blocks)
	}
}

func TestService_ForNumberUsesCache(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	obs := &countingObserver{}
	svc := NewService(NewMemoryRepo(), cache, nil)
	svc.Observer = obs

	if _, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReplace); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, ok, err := svc.ForNumber(ctx, "+1555")
	if err != nil || !ok || f.Name != "Main line" {
		t.Fatalf("first lookup: %+v ok=%v err=%v", f, ok, err)
	}
	if _, ok, _ := svc.ForNumber(ctx, "+1555"); !ok {
		t.Fatalf("second lookup should hit")
	}
	if obs.misses != 1 || obs.hits != 1 {
		t.Fatalf("expected 1 miss then 1 hit, got misses=%d hits=%d", obs.misses, obs.hits)
	}

	// Saving invalidates the cached copy.
	upd := sampleFlow("o1", "+1555")
	upd.Name = "Updated"
	if _, err := svc.Save(ctx, upd, ConflictReplace); err != nil {
		t.Fatalf("update: %v", err)
	}
	f, _, _ = svc.ForNumber(ctx, "+1555")
	if f.Name != "Updated" {
		t.Fatalf("expected fresh flow after save, got %q", f.Name)
	}

	if _, ok, err := svc.ForNumber(ctx, "+1999"); ok || err != nil {
		t.Fatalf("unknown number: ok=%v err=%v", ok, err)
	}
}

// racingRepo runs afterRead once, between the number lookup and its return.
type racingRepo struct {
	*MemoryRepo
	afterRead func()
}

func (r *racingRepo) GetByNumber(ctx context.Context, phone string) (Record, bool, error) {
	rec, ok, err := r.MemoryRepo.GetByNumber(ctx, phone)
	if hook := r.afterRead; hook != nil {
		r.afterRead = nil
		hook()
	}
	return rec, ok, err
}

func TestService_ForNumberDropsFillRacingASave(t *testing.T) {
	ctx := context.Background()
	cache := newMemCache()
	repo := &racingRepo{MemoryRepo: NewMemoryRepo()}
	svc := NewService(repo, cache, nil)

	if _, err := svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReplace); err != nil {
		t.Fatalf("save: %v", err)
	}
	repo.afterRead = func() {
		upd := sampleFlow("o1", "+1555")
		upd.Name = "Updated"
		if _, err := svc.Save(ctx, upd, ConflictReplace); err != nil {
			t.Errorf("concurrent save: %v", err)
		}
	}

	if _, ok, err := svc.ForNumber(ctx, "+1555"); err != nil || !ok {
		t.Fatalf("lookup: ok=%v err=%v", ok, err)
	}
	if f, ok, _ := cache.Get(ctx, "+1555"); ok && f.Name != "Updated" {
		t.Fatalf("stale flow %q left in cache", f.Name)
	}
	f, _, _ := svc.ForNumber(ctx, "+1555")
	if f.Name != "Updated" {
		t.Fatalf("expected fresh flow, got %q", f.Name)
	}
}

func TestMemoryRepo_ConcurrentUpsertsKeepOneRow(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepo()
	svc := NewService(repo, nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = svc.Save(ctx, sampleFlow("o1", "+1555"), ConflictReplace)
		}()
	}
	wg.Wait()

	recs, err := repo.ListByOwner(ctx, "o1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected exactly one row, got %d", len(recs))
	}
}

func TestParseConflictPolicy(t *testing.T) {
	if p, err := ParseConflictPolicy(""); err != nil || p != ConflictReplace {
		t.Fatalf("default: %v %v", p, err)
	}
	if p, err := ParseConflictPolicy("reject"); err != nil || p != ConflictReject {
		t.Fatalf("reject: %v %v", p, err)
	}
	if _, err := ParseConflictPolicy("merge"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}
