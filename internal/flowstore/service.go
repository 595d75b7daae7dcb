package flowstore

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"callflow-platform/internal/callflow"
	"callflow-platform/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

// AuditLogger records flow mutations. Failures never block a save.
type AuditLogger interface {
	LogFlowChange(ctx context.Context, e ChangeEvent) error
}

// ChangeEvent describes one persisted mutation.
type ChangeEvent struct {
	Kind        ChangeKind
	FlowID      string
	OwnerID     string
	PhoneNumber string
	Name        string
	BlockCount  int
	At          time.Time
}

type ChangeKind string

const (
	ChangeSaved   ChangeKind = "saved"
	ChangeDeleted ChangeKind = "deleted"
)

// CacheObserver is notified of runtime cache lookups.
type CacheObserver interface {
	CacheHit()
	CacheMiss()
}

// Service is the persistence adapter used by the editor and the call path.
// Consumers only ever see graph-shaped flows; legacy payloads are converted
// on read.
type Service struct {
	repo  Repository
	cache Cache
	audit AuditLogger

	Observer CacheObserver
	Now      func() time.Time

	loads singleflight.Group
	// writes counts local invalidations so a cache fill that raced one can
	// be dropped.
	writes atomic.Uint64
}

func NewService(repo Repository, cache Cache, audit AuditLogger) *Service {
	if cache == nil {
		cache = NopCache{}
	}
	return &Service{repo: repo, cache: cache, audit: audit, Now: time.Now}
}

// Load returns the live flow for (owner, phone).
func (s *Service) Load(ctx context.Context, ownerID, phoneNumber string) (callflow.CallFlow, bool, error) {
	if ownerID == "" || phoneNumber == "" {
		return callflow.CallFlow{}, false, ErrInvalidArgument
	}
	rec, ok, err := s.repo.Get(ctx, ownerID, phoneNumber)
	if err != nil || !ok {
		return callflow.CallFlow{}, false, err
	}
	f, err := fromRecord(ctx, rec)
	if err != nil {
		return callflow.CallFlow{}, false, err
	}
	return f, true, nil
}

// List returns every live flow of an owner ordered by phone number.
func (s *Service) List(ctx context.Context, ownerID string) ([]callflow.CallFlow, error) {
	if ownerID == "" {
		return nil, ErrInvalidArgument
	}
	recs, err := s.repo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]callflow.CallFlow, 0, len(recs))
	for _, rec := range recs {
		f, err := fromRecord(ctx, rec)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, nil
}

// Save validates f and upserts it on (owner, phone_number).
//
// If f.ID names an existing flow of the owner that is attached to a
// different number, that flow is retired together with the upsert: the
// number was reassigned. A failed upsert retires nothing.
func (s *Service) Save(ctx context.Context, f callflow.CallFlow, policy ConflictPolicy) (callflow.CallFlow, error) {
	f.OwnerID = strings.TrimSpace(f.OwnerID)
	f.PhoneNumber = strings.TrimSpace(f.PhoneNumber)
	f.Name = strings.TrimSpace(f.Name)
	if f.OwnerID == "" || f.PhoneNumber == "" || f.Name == "" {
		return callflow.CallFlow{}, ErrInvalidArgument
	}
	if _, err := callflow.ValidateFlow(f); err != nil {
		return callflow.CallFlow{}, err
	}

	raw, err := EncodeBlocks(f.Blocks)
	if err != nil {
		return callflow.CallFlow{}, fmt.Errorf("flowstore: encode blocks: %w", err)
	}

	var moved []Record
	if f.ID != "" {
		if moved, err = s.movedFrom(ctx, f); err != nil {
			return callflow.CallFlow{}, err
		}
	}
	retire := make([]string, 0, len(moved))
	for _, rec := range moved {
		retire = append(retire, rec.PhoneNumber)
	}

	now := s.Now().UTC()
	rec := Record{
		// The insert path always gets a fresh id; on conflict the stored id is kept.
		ID:                  uuid.NewString(),
		OwnerID:             f.OwnerID,
		PhoneNumber:         f.PhoneNumber,
		Name:                f.Name,
		Blocks:              raw,
		EntryBlockID:        f.EntryBlockID,
		RecordingEnabled:    f.RecordingEnabled,
		RecordingDisclaimer: f.RecordingDisclaimer,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	saved, err := s.repo.Upsert(ctx, rec, policy, retire...)
	if err != nil {
		return callflow.CallFlow{}, err
	}
	out, err := fromRecord(ctx, saved)
	if err != nil {
		return callflow.CallFlow{}, err
	}

	for _, old := range moved {
		s.invalidate(ctx, old.PhoneNumber)
		s.logChange(ctx, ChangeEvent{Kind: ChangeDeleted, FlowID: old.ID, OwnerID: old.OwnerID, PhoneNumber: old.PhoneNumber, At: now})
	}
	s.invalidate(ctx, out.PhoneNumber)
	s.logChange(ctx, ChangeEvent{
		Kind:        ChangeSaved,
		FlowID:      out.ID,
		OwnerID:     out.OwnerID,
		PhoneNumber: out.PhoneNumber,
		Name:        out.Name,
		BlockCount:  len(out.Blocks),
		At:          now,
	})
	return out, nil
}

// Delete retires the flow for (owner, phone). Number ownership is not
// touched.
func (s *Service) Delete(ctx context.Context, ownerID, phoneNumber string) error {
	if ownerID == "" || phoneNumber == "" {
		return ErrInvalidArgument
	}
	now := s.Now().UTC()
	id, err := s.repo.Delete(ctx, ownerID, phoneNumber, now)
	if err != nil {
		return err
	}
	s.invalidate(ctx, phoneNumber)
	s.logChange(ctx, ChangeEvent{Kind: ChangeDeleted, FlowID: id, OwnerID: ownerID, PhoneNumber: phoneNumber, At: now})
	return nil
}

// ForNumber resolves the flow governing a dialed number for the call path.
// Concurrent lookups for the same number share one repository read.
func (s *Service) ForNumber(ctx context.Context, phoneNumber string) (callflow.CallFlow, bool, error) {
	if phoneNumber == "" {
		return callflow.CallFlow{}, false, ErrInvalidArgument
	}
	log := logger.From(ctx)

	f, ok, err := s.cache.Get(ctx, phoneNumber)
	if err != nil {
		log.Warn("flow cache read failed", "phone_number", phoneNumber, "err", err)
	} else if ok {
		s.observeHit(true)
		return f, true, nil
	}
	s.observeHit(false)

	type result struct {
		flow  callflow.CallFlow
		found bool
	}
	v, err, _ := s.loads.Do(phoneNumber, func() (any, error) {
		seen := s.writes.Load()
		rec, ok, err := s.repo.GetByNumber(ctx, phoneNumber)
		if err != nil || !ok {
			return result{}, err
		}
		f, err := fromRecord(ctx, rec)
		if err != nil {
			return result{}, err
		}
		if err := s.cache.Set(ctx, f); err != nil {
			log.Warn("flow cache write failed", "phone_number", phoneNumber, "err", err)
		}
		// A write landed while we were reading; what we cached may predate it.
		if s.writes.Load() != seen {
			if err := s.cache.Invalidate(ctx, phoneNumber); err != nil {
				log.Warn("flow cache invalidate failed", "phone_number", phoneNumber, "err", err)
			}
		}
		return result{flow: f, found: true}, nil
	})
	if err != nil {
		return callflow.CallFlow{}, false, err
	}
	r := v.(result)
	return r.flow.Clone(), r.found, nil
}

// movedFrom lists the owner's live flows that carry f.ID on another number.
func (s *Service) movedFrom(ctx context.Context, f callflow.CallFlow) ([]Record, error) {
	recs, err := s.repo.ListByOwner(ctx, f.OwnerID)
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, rec := range recs {
		if rec.ID == f.ID && rec.PhoneNumber != f.PhoneNumber {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *Service) invalidate(ctx context.Context, phoneNumber string) {
	// Bumped before the cache delete so a concurrent fill either sees the
	// new count or is followed by this delete.
	s.writes.Add(1)
	if err := s.cache.Invalidate(ctx, phoneNumber); err != nil {
		logger.From(ctx).Warn("flow cache invalidate failed", "phone_number", phoneNumber, "err", err)
	}
}

func (s *Service) logChange(ctx context.Context, e ChangeEvent) {
	if s.audit == nil {
		return
	}
	if err := s.audit.LogFlowChange(ctx, e); err != nil {
		logger.From(ctx).Warn("flow audit failed", "kind", e.Kind, "phone_number", e.PhoneNumber, "err", err)
	}
}

func (s *Service) observeHit(hit bool) {
	if s.Observer == nil {
		return
	}
	if hit {
		s.Observer.CacheHit()
		return
	}
	s.Observer.CacheMiss()
}

func fromRecord(ctx context.Context, rec Record) (callflow.CallFlow, error) {
	blocks, legacy, err := DecodeBlocks(rec.Blocks)
	if err != nil {
		return callflow.CallFlow{}, fmt.Errorf("flowstore: flow %s: %w", rec.ID, err)
	}
	if legacy {
		logger.From(ctx).Debug("converted legacy flow config", "flow_id", rec.ID, "phone_number", rec.PhoneNumber)
	}
	return callflow.CallFlow{
		ID:                  rec.ID,
		OwnerID:             rec.OwnerID,
		PhoneNumber:         rec.PhoneNumber,
		Name:                rec.Name,
		Blocks:              blocks,
		EntryBlockID:        rec.EntryBlockID,
		RecordingEnabled:    rec.RecordingEnabled,
		RecordingDisclaimer: rec.RecordingDisclaimer,
		CreatedAt:           rec.CreatedAt,
		UpdatedAt:           rec.UpdatedAt,
	}, nil
}
