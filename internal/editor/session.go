package editor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"callflow-platform/internal/callflow"
	"callflow-platform/internal/flowstore"
	"callflow-platform/internal/numbers"
	"callflow-platform/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

var (
	ErrSessionNotFound = errors.New("editor: session not found")
	ErrSessionBusy     = errors.New("editor: session is locked by another request")
)

// Session is one edit session as stored between requests.
type Session struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	State     State     `json:"state"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Persister is the storage the editor saves through.
type Persister interface {
	Load(ctx context.Context, ownerID, phoneNumber string) (callflow.CallFlow, bool, error)
	List(ctx context.Context, ownerID string) ([]callflow.CallFlow, error)
	Save(ctx context.Context, f callflow.CallFlow, policy flowstore.ConflictPolicy) (callflow.CallFlow, error)
}

// SessionStore keeps sessions between requests. Lock serializes mutations of
// one session; the returned function releases it.
type SessionStore interface {
	Get(ctx context.Context, id string) (Session, bool, error)
	Put(ctx context.Context, s Session) error
	Delete(ctx context.Context, id string) error
	Lock(ctx context.Context, id string) (func(), error)
}

// Service runs edit sessions against storage.
type Service struct {
	flows    Persister
	numbers  numbers.Inventory
	sessions SessionStore

	Now func() time.Time
}

func NewService(flows Persister, inv numbers.Inventory, sessions SessionStore) *Service {
	return &Service{flows: flows, numbers: inv, sessions: sessions, Now: time.Now}
}

// Start opens a session. With a phone number that already has a flow, that
// flow is opened; with a new number an empty draft is started; without a
// number the session is idle until Open or New.
func (s *Service) Start(ctx context.Context, ownerID, phoneNumber, name string) (Session, error) {
	if ownerID == "" {
		return Session{}, flowstore.ErrInvalidArgument
	}
	phoneNumber = strings.TrimSpace(phoneNumber)

	var (
		existing callflow.CallFlow
		found    bool
		list     []callflow.CallFlow
	)
	g, gctx := errgroup.WithContext(ctx)
	if phoneNumber != "" {
		g.Go(func() error {
			var err error
			existing, found, err = s.flows.Load(gctx, ownerID, phoneNumber)
			return err
		})
	}
	g.Go(func() error {
		var err error
		list, err = s.flows.List(gctx, ownerID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Session{}, fmt.Errorf("editor: start session: %w", err)
	}

	st := Idle()
	st.Flows = list
	var err error
	switch {
	case found:
		st, err = Open(st, existing)
	case phoneNumber != "":
		st, err = New(st, ownerID, name, phoneNumber)
	}
	if err != nil {
		return Session{}, err
	}

	sess := Session{ID: uuid.NewString(), OwnerID: ownerID, State: st, UpdatedAt: s.Now().UTC()}
	if err := s.sessions.Put(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// Get returns the session if it belongs to ownerID.
func (s *Service) Get(ctx context.Context, ownerID, id string) (Session, error) {
	sess, ok, err := s.sessions.Get(ctx, id)
	if err != nil {
		return Session{}, err
	}
	if !ok || sess.OwnerID != ownerID {
		return Session{}, ErrSessionNotFound
	}
	return sess, nil
}

// Close discards a session and its unsaved edits.
func (s *Service) Close(ctx context.Context, ownerID, id string) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	return s.sessions.Delete(ctx, id)
}

// Apply runs one transition under the session lock and stores the result.
// A failed transition leaves the stored session unchanged.
func (s *Service) Apply(ctx context.Context, ownerID, id string, fn func(State) (State, error)) (Session, error) {
	unlock, err := s.sessions.Lock(ctx, id)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	sess, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Session{}, err
	}
	next, err := fn(sess.State)
	if err != nil {
		return sess, err
	}
	sess.State = next
	sess.UpdatedAt = s.Now().UTC()
	if err := s.sessions.Put(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// SaveFlow attaches the draft to phoneNumber and persists it.
//
// Local checks run before any write: a failing check records LastError and
// returns it. Storage failures also leave the draft untouched. On success
// the draft becomes the stored record and the owner's list is refreshed.
func (s *Service) SaveFlow(ctx context.Context, ownerID, id, phoneNumber string, recordingEnabled bool) (Session, error) {
	unlock, err := s.sessions.Lock(ctx, id)
	if err != nil {
		return Session{}, err
	}
	defer unlock()

	sess, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Session{}, err
	}
	log := logger.From(ctx).With("session_id", id, "owner_id", ownerID)

	// Once the saving state is stored it must be replaced even if the caller
	// goes away, or the session stays stuck in StatusSaving.
	storeCtx := context.WithoutCancel(ctx)

	fail := func(st State, cause error) (Session, error) {
		sess.State = SaveFailed(st, cause)
		sess.UpdatedAt = s.Now().UTC()
		if err := s.sessions.Put(storeCtx, sess); err != nil {
			log.Warn("store failed session state", "err", err)
		}
		return sess, cause
	}

	st := sess.State
	if st.Status == StatusEditing && st.Draft != nil {
		if phoneNumber = strings.TrimSpace(phoneNumber); phoneNumber != "" && phoneNumber != st.Draft.PhoneNumber {
			if st, err = SetPhoneNumber(st, phoneNumber); err != nil {
				return sess, err
			}
		}
		if recordingEnabled != st.Draft.RecordingEnabled {
			if st, err = SetRecording(st, recordingEnabled, st.Draft.RecordingDisclaimer); err != nil {
				return sess, err
			}
		}
		st.Draft.OwnerID = ownerID
	}

	saving, err := BeginSave(st)
	if err != nil {
		if errors.Is(err, ErrNotEditing) || errors.Is(err, ErrSaveInFlight) {
			return sess, err
		}
		return fail(st, err)
	}

	if s.numbers != nil {
		owned, err := s.numbers.IsOwned(ctx, ownerID, saving.Draft.PhoneNumber)
		if err != nil {
			return fail(st, fmt.Errorf("editor: check number ownership: %w", err))
		}
		if !owned {
			return fail(st, fmt.Errorf("%w: %s", ErrNumberNotOwned, saving.Draft.PhoneNumber))
		}
	}

	sess.State = saving
	if err := s.sessions.Put(ctx, sess); err != nil {
		return Session{}, err
	}

	policy := flowstore.ConflictReplace
	if saving.Draft.ID == "" {
		// A brand-new flow must not silently replace one saved elsewhere.
		policy = flowstore.ConflictReject
	}
	saved, err := s.flows.Save(ctx, *saving.Draft, policy)
	if err != nil {
		log.Warn("flow save failed", "phone_number", saving.Draft.PhoneNumber, "err", err)
		return fail(st, err)
	}

	list, err := s.flows.List(ctx, ownerID)
	if err != nil {
		// The write succeeded; keep the stale list rather than fail the save.
		log.Warn("refresh flow list failed", "err", err)
		list = replaceInList(st.Flows, saved)
	}

	sess.State = SaveSucceeded(saving, saved, list)
	sess.UpdatedAt = s.Now().UTC()
	if err := s.sessions.Put(storeCtx, sess); err != nil {
		return Session{}, err
	}
	log.Info("flow saved", "flow_id", saved.ID, "phone_number", saved.PhoneNumber, "blocks", len(saved.Blocks))
	return sess, nil
}

func replaceInList(list []callflow.CallFlow, f callflow.CallFlow) []callflow.CallFlow {
	out := make([]callflow.CallFlow, 0, len(list)+1)
	replaced := false
	for _, cur := range list {
		if cur.ID == f.ID || cur.PhoneNumber == f.PhoneNumber {
			if !replaced {
				out = append(out, f)
				replaced = true
			}
			continue
		}
		out = append(out, cur)
	}
	if !replaced {
		out = append(out, f)
	}
	return out
}
