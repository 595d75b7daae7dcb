package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository is append-only: there is no Update or Delete.
type Repository interface {
	Append(ctx context.Context, e Event) error
	List(ctx context.Context, q Query) ([]Event, error)
}

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.OwnerID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// Record appends an event of typ for a flow number. meta, when non-nil, is
// stored as JSON.
func (s *Service) Record(ctx context.Context, typ EventType, ownerID string, actor Actor, flowID, phoneNumber string, meta any) error {
	e := Event{
		OwnerID:     ownerID,
		Type:        typ,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		FlowID:      flowID,
		PhoneNumber: phoneNumber,
		Message:     messages[typ],
	}
	if meta != nil {
		b, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("audit: metadata: %w", err)
		}
		e.Metadata = string(b)
	}
	return s.Append(ctx, e)
}

var messages = map[EventType]string{
	EventTypeFlowSaved:   "call flow saved",
	EventTypeFlowDeleted: "call flow deleted",
}

// History lists an owner's events, newest first.
func (s *Service) History(ctx context.Context, q Query) ([]Event, error) {
	if s.repo == nil {
		return nil, errors.New("audit: repository not configured")
	}
	if q.OwnerID == "" {
		return nil, ErrInvalidEvent
	}
	return s.repo.List(ctx, q)
}
