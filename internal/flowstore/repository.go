package flowstore

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound        = errors.New("flowstore: not found")
	ErrConflict        = errors.New("flowstore: phone number already has a flow")
	ErrInvalidArgument = errors.New("flowstore: invalid argument")
)

// ConflictPolicy says what a save does when (owner, phone_number) already
// has a live flow. Callers choose explicitly.
type ConflictPolicy int

const (
	// ConflictReplace updates the existing record in place (last writer wins).
	ConflictReplace ConflictPolicy = iota
	// ConflictReject fails with ErrConflict.
	ConflictReject
)

func (p ConflictPolicy) String() string {
	if p == ConflictReject {
		return "reject"
	}
	return "replace"
}

// ParseConflictPolicy maps "reject" / "replace" (default) to a policy.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch s {
	case "", "replace":
		return ConflictReplace, nil
	case "reject":
		return ConflictReject, nil
	default:
		return ConflictReplace, ErrInvalidArgument
	}
}

// Record is the storage row. Blocks holds the raw JSON payload, which may be
// in the legacy shape; only Service decodes it.
type Record struct {
	ID                  string     `db:"id"`
	OwnerID             string     `db:"owner_id"`
	PhoneNumber         string     `db:"phone_number"`
	Name                string     `db:"name"`
	Blocks              []byte     `db:"blocks"`
	EntryBlockID        string     `db:"entry_block_id"`
	RecordingEnabled    bool       `db:"recording_enabled"`
	RecordingDisclaimer string     `db:"recording_disclaimer"`
	CreatedAt           time.Time  `db:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at"`
	DeletedAt           *time.Time `db:"deleted_at"`
}

// Repository is the persistence contract for call flows. Every method only
// sees live (not deleted) records.
//
// Upsert must be atomic on (owner_id, phone_number): two concurrent saves
// for the same key may not produce two live rows. Numbers listed in retire
// are soft-deleted for the same owner in the same unit of work, and only
// when the upsert itself succeeds.
//
// Delete returns the id of the retired flow.
type Repository interface {
	Get(ctx context.Context, ownerID, phoneNumber string) (Record, bool, error)
	GetByNumber(ctx context.Context, phoneNumber string) (Record, bool, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Record, error)
	Upsert(ctx context.Context, rec Record, policy ConflictPolicy, retire ...string) (Record, error)
	Delete(ctx context.Context, ownerID, phoneNumber string, at time.Time) (string, error)
}
