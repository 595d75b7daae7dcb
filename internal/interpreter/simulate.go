package interpreter

import "callflow-platform/internal/callflow"

// Step is the caller's reaction to one suspension point of a simulated call.
type Step struct {
	Digits     string `json:"digits,omitempty"`
	DialStatus string `json:"dial_status,omitempty"`
}

// Simulate plays a call leg against flow: a fresh invocation followed by one
// resumed invocation per step, for as long as the leg stays suspended.
// Steps left over after the leg ends are ignored.
func (in *Interpreter) Simulate(flow *callflow.CallFlow, ev Event, steps []Step) []Result {
	ev.Cursor = nil
	ev.Digits = ""
	ev.DialStatus = ""

	res := in.Run(flow, ev)
	out := []Result{res}
	for _, st := range steps {
		c, ok := res.Suspended()
		if !ok {
			break
		}
		next := ev
		next.Cursor = &c
		next.Digits = st.Digits
		next.DialStatus = st.DialStatus
		res = in.Run(flow, next)
		out = append(out, res)
	}
	return out
}
