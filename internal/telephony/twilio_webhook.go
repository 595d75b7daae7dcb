package telephony

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"callflow-platform/internal/interpreter"
)

// Query parameters that carry the interpreter cursor on callback URLs.
const (
	queryBlock   = "block"
	queryAttempt = "attempt"
	queryHops    = "hops"
)

// TwilioVoiceForm captures the voice webhook fields the interpreter needs.
// Twilio sends application/x-www-form-urlencoded by default.
// Ref: https://www.twilio.com/docs/voice/twiml
type TwilioVoiceForm struct {
	CallSid        string
	AccountSid     string
	From           string
	To             string
	Direction      string
	CallStatus     string
	Digits         string
	DialCallStatus string

	Cursor *interpreter.Cursor
}

func ParseVoiceCallback(r *http.Request) (TwilioVoiceForm, error) {
	if err := r.ParseForm(); err != nil {
		return TwilioVoiceForm{}, err
	}
	return TwilioVoiceForm{
		CallSid:        r.PostFormValue("CallSid"),
		AccountSid:     r.PostFormValue("AccountSid"),
		From:           normalizePhone(r.PostFormValue("From")),
		To:             normalizePhone(r.PostFormValue("To")),
		Direction:      r.PostFormValue("Direction"),
		CallStatus:     r.PostFormValue("CallStatus"),
		Digits:         strings.TrimSpace(r.PostFormValue("Digits")),
		DialCallStatus: r.PostFormValue("DialCallStatus"),
		Cursor:         CursorFromQuery(r.URL.Query()),
	}, nil
}

func normalizePhone(s string) string {
	// Twilio sometimes sends "anonymous" or empty; keep as-is.
	return strings.TrimSpace(s)
}

// Event converts the form into an interpreter event.
func (f TwilioVoiceForm) Event() interpreter.Event {
	return interpreter.Event{
		CallID:       f.CallSid,
		CalledNumber: f.To,
		CallerNumber: f.From,
		Direction:    interpreter.ParseDirection(f.Direction),
		Cursor:       f.Cursor,
		Digits:       f.Digits,
		DialStatus:   f.DialCallStatus,
	}
}

// CursorFromQuery reads a cursor from callback query parameters. It returns
// nil when no block is named. Malformed counters read as zero.
func CursorFromQuery(q url.Values) *interpreter.Cursor {
	block := strings.TrimSpace(q.Get(queryBlock))
	if block == "" {
		return nil
	}
	return &interpreter.Cursor{
		BlockID: block,
		Attempt: nonNegative(q.Get(queryAttempt)),
		Hops:    nonNegative(q.Get(queryHops)),
	}
}

func nonNegative(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// CallbackURL returns base with the cursor encoded in its query string.
func CallbackURL(base string, c interpreter.Cursor) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set(queryBlock, c.BlockID)
	q.Set(queryAttempt, strconv.Itoa(c.Attempt))
	q.Set(queryHops, strconv.Itoa(c.Hops))
	u.RawQuery = q.Encode()
	return u.String(), nil
}
