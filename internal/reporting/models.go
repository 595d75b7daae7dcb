package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// CallsSummaryRequest asks for aggregated call handling of one number.
// Owner scoping is the caller's job: only ask for numbers the owner has.
type CallsSummaryRequest struct {
	FlowNumber string    `json:"flow_number"`
	Range      TimeRange `json:"range"`
}

type CallsSummary struct {
	FlowNumber string    `json:"flow_number"`
	Range      TimeRange `json:"range"`

	// Calls counts distinct call legs; Callbacks counts every invocation.
	Calls     int `json:"calls"`
	Callbacks int `json:"callbacks"`

	Completed int `json:"completed"`
	NoFlow    int `json:"no_flow"`
	HopCapped int `json:"hop_capped"`
	Errors    int `json:"errors"`
	// Abandoned calls were last seen waiting on a menu or forward.
	Abandoned int `json:"abandoned"`

	MenuFallbacks    int `json:"menu_fallbacks"`
	Forwards         int `json:"forwards"`
	ForwardsAnswered int `json:"forwards_answered"`

	// AnswerRate is ForwardsAnswered / Forwards, 0 without forwards.
	AnswerRate float64 `json:"answer_rate"`
}
