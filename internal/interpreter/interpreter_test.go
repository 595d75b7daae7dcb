package interpreter

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"callflow-platform/internal/callflow"
)

// welcomeFlow is say("Welcome") -> menu{1 -> forward(A), 2 -> hangup}.
func welcomeFlow() callflow.CallFlow {
	return callflow.CallFlow{
		ID:          "flow-1",
		OwnerID:     "o1",
		PhoneNumber: "+15550001111",
		Name:        "Main",
		Blocks: []callflow.Block{
			{ID: "welcome", Type: callflow.BlockSay, Config: callflow.Config{Text: "Welcome"}, Next: []string{"menu"}},
			{ID: "menu", Type: callflow.BlockMenu, Config: callflow.Config{
				Prompt: "Press 1 for sales, 2 to hang up",
				Options: []callflow.MenuOption{
					{Digit: "1", Target: "fwd"},
					{Digit: "2", Target: "bye"},
				},
			}, Next: []string{"fwd", "bye"}},
			{ID: "fwd", Type: callflow.BlockForward, Config: callflow.Config{Number: "+15550002222", Timeout: 20}},
			{ID: "bye", Type: callflow.BlockHangup},
		},
	}
}

func verbs(r Result) []Verb {
	out := make([]Verb, 0, len(r.Directives))
	for _, d := range r.Directives {
		out = append(out, d.Verb)
	}
	return out
}

func inbound(c *Cursor, digits string) Event {
	return Event{CallID: "CA1", CalledNumber: "+15550001111", CallerNumber: "+15559990000", Direction: DirectionInbound, Cursor: c, Digits: digits}
}

func TestRun_FreshCallSpeaksThenGathers(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()

	r := in.Run(&f, inbound(nil, ""))
	if got, want := verbs(r), []Verb{VerbSay, VerbGather}; !reflect.DeepEqual(got, want) {
		t.Fatalf("verbs = %v, want %v", got, want)
	}
	if r.Directives[0].Text != "Welcome" {
		t.Fatalf("unexpected say text %q", r.Directives[0].Text)
	}
	cur, ok := r.Suspended()
	if !ok || cur.BlockID != "menu" || cur.Hops != 2 {
		t.Fatalf("expected suspension at menu after 2 hops, got %+v ok=%v", cur, ok)
	}
	if r.Outcome != OutcomeSuspended {
		t.Fatalf("expected suspended outcome, got %q", r.Outcome)
	}
}

func TestRun_MenuInputRoutes(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	first := in.Run(&f, inbound(nil, ""))
	cur, _ := first.Suspended()

	r := in.Run(&f, inbound(&cur, "1"))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbDial}) {
		t.Fatalf("input 1: verbs = %v", got)
	}
	if !reflect.DeepEqual(r.Directives[0].Numbers, []string{"+15550002222"}) || r.Directives[0].Timeout != 20 {
		t.Fatalf("unexpected dial: %+v", r.Directives[0])
	}

	r = in.Run(&f, inbound(&cur, "2"))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbHangup}) {
		t.Fatalf("input 2: verbs = %v", got)
	}
	if r.Outcome != OutcomeCompleted {
		t.Fatalf("expected completed, got %q", r.Outcome)
	}
}

func TestRun_UnmatchedInputRepromptsThenHangsUp(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	first := in.Run(&f, inbound(nil, ""))
	cur, _ := first.Suspended()

	for attempt := 1; attempt <= DefaultMenuMaxRetries; attempt++ {
		r := in.Run(&f, inbound(&cur, "9"))
		if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbGather}) {
			t.Fatalf("attempt %d: verbs = %v", attempt, got)
		}
		if r.Directives[0].Text != DefaultInvalidMessage {
			t.Fatalf("attempt %d: expected invalid message, got %q", attempt, r.Directives[0].Text)
		}
		cur, _ = r.Suspended()
		if cur.Attempt != attempt {
			t.Fatalf("expected attempt %d in cursor, got %d", attempt, cur.Attempt)
		}
	}

	r := in.Run(&f, inbound(&cur, "9"))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbHangup}) {
		t.Fatalf("after retries: verbs = %v", got)
	}
	if !r.MenuFallback || r.Directives[0].Text != DefaultGoodbye {
		t.Fatalf("expected goodbye fallback, got %+v", r)
	}
}

func TestRun_NoInputCountsAsInvalid(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	cur := Cursor{BlockID: "menu", Hops: 2}

	r := in.Run(&f, inbound(&cur, ""))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbGather}) {
		t.Fatalf("verbs = %v", got)
	}
}

func TestRun_MenuDefaultTargetAfterRetries(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	zero := 0
	f.Blocks[1].Config.MaxRetries = &zero
	f.Blocks[1].Config.DefaultTarget = "fwd"
	cur := Cursor{BlockID: "menu", Hops: 2}

	r := in.Run(&f, inbound(&cur, "7"))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbDial}) {
		t.Fatalf("verbs = %v", got)
	}
	if !r.MenuFallback {
		t.Fatalf("expected fallback flag")
	}
}

func TestRun_UnboundOptionSaysGoodbye(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	f.Blocks[1].Config.Options = append(f.Blocks[1].Config.Options, callflow.MenuOption{Digit: "3"})
	cur := Cursor{BlockID: "menu", Hops: 2}

	r := in.Run(&f, inbound(&cur, "3"))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbHangup}) {
		t.Fatalf("verbs = %v", got)
	}
}

func TestRun_ForwardResult(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	cur := Cursor{BlockID: "fwd", Hops: 3}

	ev := inbound(&cur, "")
	ev.DialStatus = "completed"
	if got := verbs(in.Run(&f, ev)); !reflect.DeepEqual(got, []Verb{VerbHangup}) {
		t.Fatalf("completed: verbs = %v", got)
	}

	// No failure edge: apologize and hang up.
	ev.DialStatus = "no-answer"
	r := in.Run(&f, ev)
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbHangup}) {
		t.Fatalf("no-answer: verbs = %v", got)
	}
	if r.Directives[0].Text != DefaultApology {
		t.Fatalf("expected apology, got %q", r.Directives[0].Text)
	}

	// With a failure edge the walk continues there.
	f.Blocks = append(f.Blocks, callflow.Block{ID: "vm", Type: callflow.BlockSay, Config: callflow.Config{Text: "Nobody is available"}})
	f.Blocks[2].Next = []string{"vm"}
	ev.DialStatus = "busy"
	r = in.Run(&f, ev)
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbHangup}) {
		t.Fatalf("busy: verbs = %v", got)
	}
	if r.Directives[0].Text != "Nobody is available" {
		t.Fatalf("expected failure edge, got %q", r.Directives[0].Text)
	}
}

func TestRun_MultiForwardDialsAll(t *testing.T) {
	in := New(nil)
	f := callflow.CallFlow{ID: "f", Blocks: []callflow.Block{
		{ID: "ring", Type: callflow.BlockMultiForward, Config: callflow.Config{Numbers: []string{"+1", " ", "+2"}}},
	}}
	r := in.Run(&f, inbound(nil, ""))
	if len(r.Directives) != 1 || !reflect.DeepEqual(r.Directives[0].Numbers, []string{"+1", "+2"}) {
		t.Fatalf("unexpected directives: %+v", r.Directives)
	}
}

func TestRun_AdvancingBlocksAndImplicitHangup(t *testing.T) {
	in := New(nil)
	f := callflow.CallFlow{ID: "f", Blocks: []callflow.Block{
		{ID: "a", Type: callflow.BlockPlay, Config: callflow.Config{URL: "https://x/hold.mp3", Loop: 2}, Next: []string{"b"}},
		{ID: "b", Type: callflow.BlockPause, Config: callflow.Config{Duration: 3}, Next: []string{"c"}},
		{ID: "c", Type: callflow.BlockSMS, Config: callflow.Config{Body: "Thanks"}, Next: []string{"d"}},
		{ID: "d", Type: callflow.BlockSay, Config: callflow.Config{Text: "Bye"}},
	}}
	r := in.Run(&f, inbound(nil, ""))
	want := []Verb{VerbPlay, VerbPause, VerbSMS, VerbSay, VerbHangup}
	if got := verbs(r); !reflect.DeepEqual(got, want) {
		t.Fatalf("verbs = %v, want %v", got, want)
	}
	if r.Directives[2].To != "+15559990000" {
		t.Fatalf("sms without destination should go to the caller, got %q", r.Directives[2].To)
	}
}

func TestRun_CycleTerminatesWithinHopCap(t *testing.T) {
	in := New(nil)
	in.MaxHops = 10
	// Every key press loops back to the same menu.
	f := callflow.CallFlow{ID: "f", EntryBlockID: "m", Blocks: []callflow.Block{
		{ID: "m", Type: callflow.BlockMenu, Config: callflow.Config{
			Prompt:  "Press 1",
			Options: []callflow.MenuOption{{Digit: "1", Target: "m"}},
		}, Next: []string{"m"}},
	}}

	r := in.Run(&f, inbound(nil, ""))
	for i := 0; i < 100; i++ {
		cur, ok := r.Suspended()
		if !ok {
			break
		}
		r = in.Run(&f, inbound(&cur, "1"))
	}
	if _, ok := r.Suspended(); ok {
		t.Fatalf("call leg never terminated")
	}
	if r.Outcome != OutcomeHopCap {
		t.Fatalf("expected hop cap outcome, got %q", r.Outcome)
	}
	if last := r.Directives[len(r.Directives)-1]; last.Verb != VerbHangup {
		t.Fatalf("expected hangup, got %q", last.Verb)
	}
}

func TestRun_SayLoopHitsHopCapInOneInvocation(t *testing.T) {
	in := New(nil)
	in.MaxHops = 5
	f := callflow.CallFlow{ID: "f", EntryBlockID: "a", Blocks: []callflow.Block{
		{ID: "a", Type: callflow.BlockSay, Config: callflow.Config{Text: "a"}, Next: []string{"b"}},
		{ID: "b", Type: callflow.BlockSay, Config: callflow.Config{Text: "b"}, Next: []string{"a"}},
	}}
	r := in.Run(&f, inbound(nil, ""))
	if r.Outcome != OutcomeHopCap {
		t.Fatalf("expected hop cap, got %q", r.Outcome)
	}
	if len(r.Directives) != 5+2 {
		t.Fatalf("expected 5 says plus apology and hangup, got %d", len(r.Directives))
	}
}

func TestRun_MissingFlowAndUnknownCursor(t *testing.T) {
	in := New(nil)

	r := in.Run(nil, inbound(nil, ""))
	if got := verbs(r); !reflect.DeepEqual(got, []Verb{VerbSay, VerbHangup}) || r.Directives[0].Text != DefaultGreeting {
		t.Fatalf("missing flow: %+v", r)
	}

	f := welcomeFlow()
	r = in.Run(&f, inbound(&Cursor{BlockID: "gone"}, "1"))
	if r.Outcome != OutcomeError || r.Directives[len(r.Directives)-1].Verb != VerbHangup {
		t.Fatalf("unknown cursor: %+v", r)
	}

	empty := callflow.CallFlow{ID: "empty"}
	if r := in.Run(&empty, inbound(nil, "")); len(r.Directives) == 0 {
		t.Fatalf("empty flow produced no directives")
	}
}

func TestRun_RecordingDisclaimerAndDialRecord(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	f.RecordingEnabled = true
	f.RecordingDisclaimer = "This call may be recorded."

	r := in.Run(&f, inbound(nil, ""))
	if r.Directives[0].Text != "This call may be recorded." {
		t.Fatalf("expected disclaimer first, got %+v", r.Directives[0])
	}

	cur := Cursor{BlockID: "menu", Hops: 2}
	r = in.Run(&f, inbound(&cur, "1"))
	if !r.Directives[0].Record {
		t.Fatalf("expected dial to record")
	}
	// The disclaimer is only spoken at the start of the leg.
	if r.Directives[0].Verb != VerbDial {
		t.Fatalf("unexpected first directive on resume: %+v", r.Directives[0])
	}
}

func TestRun_Deterministic(t *testing.T) {
	in := New(nil)
	f := welcomeFlow()
	a := in.Run(&f, inbound(nil, ""))
	b := in.Run(&f, inbound(nil, ""))
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("same input produced different results")
	}
}

type stubSource struct {
	flow  callflow.CallFlow
	found bool
	err   error
	asked string
}

func (s *stubSource) ForNumber(_ context.Context, phone string) (callflow.CallFlow, bool, error) {
	s.asked = phone
	return s.flow, s.found, s.err
}

type recordingObserver struct{ results []Result }

func (o *recordingObserver) Observe(r Result) { o.results = append(o.results, r) }

func TestHandle_LookupAndErrors(t *testing.T) {
	src := &stubSource{flow: welcomeFlow(), found: true}
	obs := &recordingObserver{}
	in := New(src)
	in.Observer = obs

	r := in.Handle(context.Background(), inbound(nil, ""))
	if src.asked != "+15550001111" || r.Outcome != OutcomeSuspended {
		t.Fatalf("asked=%q outcome=%q", src.asked, r.Outcome)
	}

	src.err = errors.New("db down")
	r = in.Handle(context.Background(), inbound(nil, ""))
	if r.Outcome != OutcomeError || len(r.Directives) == 0 {
		t.Fatalf("lookup error should degrade to apology, got %+v", r)
	}

	src.err, src.found = nil, false
	r = in.Handle(context.Background(), inbound(nil, ""))
	if r.Outcome != OutcomeNoFlow {
		t.Fatalf("expected no_flow, got %q", r.Outcome)
	}

	if len(obs.results) != 3 {
		t.Fatalf("expected 3 observed results, got %d", len(obs.results))
	}
}

func TestHandle_OutboundUsesCallerNumber(t *testing.T) {
	src := &stubSource{flow: welcomeFlow(), found: true}
	in := New(src)

	ev := Event{CalledNumber: "+1999", CallerNumber: "+15550001111", Direction: ParseDirection("outbound-api")}
	in.Handle(context.Background(), ev)
	if src.asked != "+15550001111" {
		t.Fatalf("outbound leg should look up our number, asked %q", src.asked)
	}
}
