package audit

import "time"

// Event is an append-only record of a change to a call flow. Events are never
// updated or deleted. Actor fields are empty for changes made outside an API
// request (flowctl).
type Event struct {
	ID      string    `json:"id" db:"id"`
	OwnerID string    `json:"owner_id" db:"owner_id"`
	Type    EventType `json:"type" db:"type"`

	ActorUserID string `json:"actor_user_id,omitempty" db:"actor_user_id"`
	ActorRole   string `json:"actor_role,omitempty" db:"actor_role"`
	IPAddress   string `json:"ip_address,omitempty" db:"ip_address"`

	FlowID      string `json:"flow_id,omitempty" db:"flow_id"`
	PhoneNumber string `json:"phone_number,omitempty" db:"phone_number"`
	Message     string `json:"message,omitempty" db:"message"`

	// Metadata is a JSON object, or empty.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeFlowSaved   EventType = "flow_saved"
	EventTypeFlowDeleted EventType = "flow_deleted"
)

// Actor is who made a change.
type Actor struct {
	UserID string
	Role   string
	IP     string
}

// Query selects an owner's events, newest first. PhoneNumber narrows to one
// flow number when set.
type Query struct {
	OwnerID     string
	PhoneNumber string
	Limit       int
}

const (
	defaultLimit = 50
	maxLimit     = 500
)

func (q Query) limit() int {
	switch {
	case q.Limit <= 0:
		return defaultLimit
	case q.Limit > maxLimit:
		return maxLimit
	}
	return q.Limit
}
