package calls

import (
	"time"

	"callflow-platform/internal/interpreter"
)

// Leg records one interpreter invocation of a call leg: the first callback
// or one resumption. A call leg is the set of rows sharing CallID.
//
// Provider-specific fields (Twilio CallSid) live in CallID only; the rest is
// provider-agnostic.
type Leg struct {
	ID         string                `json:"id" db:"id"`
	CallID     string                `json:"call_id" db:"call_id"`
	FlowID     string                `json:"flow_id,omitempty" db:"flow_id"`
	FlowNumber string                `json:"flow_number" db:"flow_number"`
	Remote     string                `json:"remote_number" db:"remote_number"`
	Direction  interpreter.Direction `json:"direction" db:"direction"`

	// ResumedAt is the block a resumption started from; empty on the first
	// callback.
	ResumedAt  string              `json:"resumed_at,omitempty" db:"resumed_at"`
	Digits     string              `json:"digits,omitempty" db:"digits"`
	DialStatus string              `json:"dial_status,omitempty" db:"dial_status"`
	Outcome    interpreter.Outcome `json:"outcome" db:"outcome"`
	Directives int                 `json:"directives" db:"directives"`
	Dialed     bool                `json:"dialed" db:"dialed"`

	MenuFallback bool `json:"menu_fallback" db:"menu_fallback"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// First reports whether the leg row is the first callback of its call.
func (l Leg) First() bool { return l.ResumedAt == "" }

func legFrom(ev interpreter.Event, res interpreter.Result) Leg {
	l := Leg{
		CallID:       ev.CallID,
		FlowID:       res.FlowID,
		FlowNumber:   ev.FlowNumber(),
		Remote:       ev.RemoteParty(),
		Direction:    ev.Direction,
		Digits:       ev.Digits,
		DialStatus:   ev.DialStatus,
		Outcome:      res.Outcome,
		Directives:   len(res.Directives),
		MenuFallback: res.MenuFallback,
	}
	if ev.Cursor != nil {
		l.ResumedAt = ev.Cursor.BlockID
	}
	for _, d := range res.Directives {
		if d.Verb == interpreter.VerbDial {
			l.Dialed = true
		}
	}
	return l
}
