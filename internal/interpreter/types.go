package interpreter

import "strings"

type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// ParseDirection maps provider direction strings ("inbound",
// "outbound-api", "outbound-dial") onto a Direction.
func ParseDirection(s string) Direction {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "outbound") {
		return DirectionOutbound
	}
	return DirectionInbound
}

// Cursor is the continuation of a suspended call leg. The provider carries
// it back to us in the next callback; nothing about a call is kept in
// process between callbacks.
type Cursor struct {
	BlockID string `json:"block_id"`
	// Attempt counts failed menu inputs at BlockID.
	Attempt int `json:"attempt"`
	// Hops is the number of blocks evaluated so far on this leg.
	Hops int `json:"hops"`
}

// Event is one provider callback for a call leg.
type Event struct {
	CallID       string
	CalledNumber string
	CallerNumber string
	Direction    Direction

	// Cursor is nil on the first callback of a leg.
	Cursor *Cursor

	// Digits collected by a pending menu. Empty means no input.
	Digits string
	// DialStatus reported after a forward, e.g. "completed", "busy".
	DialStatus string
}

// FlowNumber is the number whose flow governs the leg: the dialed number
// for inbound calls, our own (caller) number for outbound ones.
func (e Event) FlowNumber() string {
	if e.Direction == DirectionOutbound {
		return e.CallerNumber
	}
	return e.CalledNumber
}

// RemoteParty is the other end of the leg.
func (e Event) RemoteParty() string {
	if e.Direction == DirectionOutbound {
		return e.CalledNumber
	}
	return e.CallerNumber
}

type Verb string

const (
	VerbSay    Verb = "say"
	VerbPlay   Verb = "play"
	VerbPause  Verb = "pause"
	VerbGather Verb = "gather"
	VerbDial   Verb = "dial"
	VerbSMS    Verb = "sms"
	VerbHangup Verb = "hangup"
)

// Directive is one provider instruction. Only the fields relevant to Verb
// are set.
type Directive struct {
	Verb Verb `json:"verb"`

	Text     string `json:"text,omitempty"`
	Voice    string `json:"voice,omitempty"`
	Language string `json:"language,omitempty"`

	URL  string `json:"url,omitempty"`
	Loop int    `json:"loop,omitempty"`

	Seconds int `json:"seconds,omitempty"`

	Numbers  []string `json:"numbers,omitempty"`
	Timeout  int      `json:"timeout,omitempty"`
	CallerID string   `json:"caller_id,omitempty"`
	Record   bool     `json:"record,omitempty"`

	Body string `json:"body,omitempty"`
	To   string `json:"to,omitempty"`

	NumDigits int `json:"num_digits,omitempty"`

	// Continue is set on suspension points (gather, dial): the cursor the
	// next callback must carry.
	Continue *Cursor `json:"continue,omitempty"`
}

// Suspends reports whether the directive hands control back to the
// provider until the next callback.
func (d Directive) Suspends() bool { return d.Continue != nil }

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeSuspended Outcome = "suspended"
	OutcomeNoFlow    Outcome = "no_flow"
	OutcomeHopCap    Outcome = "hop_cap"
	OutcomeError     Outcome = "error"
)

// Result is what one invocation produced. Directives is never empty.
type Result struct {
	FlowID     string      `json:"flow_id,omitempty"`
	Outcome    Outcome     `json:"outcome"`
	Directives []Directive `json:"directives"`

	// MenuFallback is set when unmatched menu input exhausted its retries.
	MenuFallback bool `json:"menu_fallback,omitempty"`
}

// Suspended returns the cursor of the trailing suspension point, if any.
func (r Result) Suspended() (Cursor, bool) {
	if len(r.Directives) == 0 {
		return Cursor{}, false
	}
	last := r.Directives[len(r.Directives)-1]
	if last.Continue == nil {
		return Cursor{}, false
	}
	return *last.Continue, true
}
