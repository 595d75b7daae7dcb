package callflow

import "time"

// CallFlow is the persisted graph governing one phone number's call handling.
//
// Invariant: at most one live CallFlow per (OwnerID, PhoneNumber). The
// flowstore package enforces it at write time.
type CallFlow struct {
	ID          string `json:"id" db:"id"`
	OwnerID     string `json:"owner_id" db:"owner_id"`
	PhoneNumber string `json:"phone_number" db:"phone_number"`
	Name        string `json:"name" db:"name"`

	Blocks []Block `json:"blocks" db:"blocks"`

	// EntryBlockID pins the start block. When empty the entry is inferred
	// from in-degree (see EntryBlock).
	EntryBlockID string `json:"entry_block_id,omitempty" db:"entry_block_id"`

	RecordingEnabled    bool   `json:"recording_enabled" db:"recording_enabled"`
	RecordingDisclaimer string `json:"recording_disclaimer,omitempty" db:"recording_disclaimer"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Block returns the block with id.
func (f CallFlow) Block(id string) (Block, bool) {
	for _, b := range f.Blocks {
		if b.ID == id {
			return b, true
		}
	}
	return Block{}, false
}

// Clone deep-copies the flow.
func (f CallFlow) Clone() CallFlow {
	out := f
	out.Blocks = CloneBlocks(f.Blocks)
	return out
}
