package interpreter

import (
	"context"
	"fmt"
	"strings"

	"callflow-platform/internal/callflow"
	"callflow-platform/pkg/logger"
)

// Spoken fallbacks. A call never ends without a directive.
const (
	DefaultGreeting       = "Thank you for calling. This number is not in service yet. Goodbye."
	DefaultApology        = "Sorry, we are unable to complete your call right now. Goodbye."
	DefaultGoodbye        = "Goodbye."
	DefaultInvalidMessage = "Sorry, that is not a valid option."
)

const (
	DefaultMaxHops        = 50
	DefaultMenuMaxRetries = 2
	DefaultMenuTimeout    = 5
)

// FlowSource resolves the flow governing a phone number.
type FlowSource interface {
	ForNumber(ctx context.Context, phoneNumber string) (callflow.CallFlow, bool, error)
}

// Observer receives every result Handle returns.
type Observer interface {
	Observe(r Result)
}

// Interpreter walks a call flow graph one provider callback at a time.
// It holds no per-call state and is safe for concurrent use.
type Interpreter struct {
	Flows FlowSource

	MaxHops        int
	MenuMaxRetries int
	DefaultVoice   string

	Observer Observer
}

func New(flows FlowSource) *Interpreter {
	return &Interpreter{
		Flows:          flows,
		MaxHops:        DefaultMaxHops,
		MenuMaxRetries: DefaultMenuMaxRetries,
	}
}

// Handle resolves the flow for ev and runs it. Lookup failures and panics
// are absorbed into a spoken apology and hangup.
func (in *Interpreter) Handle(ctx context.Context, ev Event) (res Result) {
	log := logger.From(ctx).With("call_id", ev.CallID, "flow_number", ev.FlowNumber())

	defer func() {
		if p := recover(); p != nil {
			log.Error("interpreter panic", "panic", fmt.Sprint(p))
			res = in.apology(OutcomeError, "")
		}
		if in.Observer != nil {
			in.Observer.Observe(res)
		}
	}()

	if in.Flows == nil {
		log.Error("interpreter has no flow source")
		return in.apology(OutcomeError, "")
	}
	f, ok, err := in.Flows.ForNumber(ctx, ev.FlowNumber())
	if err != nil {
		log.Error("flow lookup failed", "err", err)
		return in.apology(OutcomeError, "")
	}
	if !ok {
		log.Warn("no flow for number")
		return in.Run(nil, ev)
	}

	res = in.Run(&f, ev)
	if res.Outcome == OutcomeError || res.Outcome == OutcomeHopCap {
		log.Warn("call leg ended early", "flow_id", f.ID, "outcome", res.Outcome)
	}
	return res
}

// Run evaluates one invocation against flow. A nil flow means none is
// configured for the number. Run is deterministic.
func (in *Interpreter) Run(flow *callflow.CallFlow, ev Event) Result {
	if flow == nil {
		return Result{
			Outcome: OutcomeNoFlow,
			Directives: []Directive{
				in.say(DefaultGreeting, "", ""),
				{Verb: VerbHangup},
			},
		}
	}

	w := &walk{in: in, flow: flow, ev: ev, idx: callflow.NewIndex(flow.Blocks)}

	if ev.Cursor == nil {
		entry, ok := callflow.EntryBlock(*flow)
		if !ok {
			return in.apology(OutcomeError, flow.ID)
		}
		if flow.RecordingEnabled && strings.TrimSpace(flow.RecordingDisclaimer) != "" {
			w.emit(in.say(flow.RecordingDisclaimer, "", ""))
		}
		w.from(entry.ID, 0)
		return w.result()
	}

	w.resume(*ev.Cursor)
	return w.result()
}

func (in *Interpreter) maxHops() int {
	if in.MaxHops <= 0 {
		return DefaultMaxHops
	}
	return in.MaxHops
}

func (in *Interpreter) menuRetries(b callflow.Block) int {
	if b.Config.MaxRetries != nil {
		return *b.Config.MaxRetries
	}
	if in.MenuMaxRetries < 0 {
		return 0
	}
	return in.MenuMaxRetries
}

func (in *Interpreter) say(text, voice, lang string) Directive {
	if voice == "" {
		voice = in.DefaultVoice
	}
	return Directive{Verb: VerbSay, Text: text, Voice: voice, Language: lang}
}

func (in *Interpreter) apology(o Outcome, flowID string) Result {
	return Result{
		FlowID:  flowID,
		Outcome: o,
		Directives: []Directive{
			in.say(DefaultApology, "", ""),
			{Verb: VerbHangup},
		},
	}
}

// walk accumulates the directives of one invocation.
type walk struct {
	in   *Interpreter
	flow *callflow.CallFlow
	ev   Event
	idx  callflow.Index

	out      []Directive
	outcome  Outcome
	fallback bool
}

func (w *walk) emit(d ...Directive) { w.out = append(w.out, d...) }

func (w *walk) result() Result {
	if len(w.out) == 0 || w.outcome == "" {
		// Every path sets an outcome; this only guards the directive invariant.
		w.end(OutcomeCompleted, "")
	}
	return Result{
		FlowID:       w.flow.ID,
		Outcome:      w.outcome,
		Directives:   w.out,
		MenuFallback: w.fallback,
	}
}

// end speaks text (if any) and hangs up.
func (w *walk) end(o Outcome, text string) {
	if text != "" {
		w.emit(w.in.say(text, "", ""))
	}
	w.emit(Directive{Verb: VerbHangup})
	w.outcome = o
}

func (w *walk) block(id string) (callflow.Block, bool) {
	i, ok := w.idx[id]
	if !ok {
		return callflow.Block{}, false
	}
	return w.flow.Blocks[i], true
}

// resume continues a suspended leg from the block named by c.
func (w *walk) resume(c Cursor) {
	b, ok := w.block(c.BlockID)
	if !ok {
		w.end(OutcomeError, DefaultApology)
		return
	}

	switch b.Type {
	case callflow.BlockMenu:
		w.resumeMenu(b, c)
	case callflow.BlockForward, callflow.BlockMultiForward:
		w.resumeDial(b, c)
	default:
		// Not a suspension point; evaluate it as a fresh step.
		w.from(b.ID, c.Hops)
	}
}

func (w *walk) resumeMenu(b callflow.Block, c Cursor) {
	digit := strings.TrimSpace(w.ev.Digits)
	if len(digit) > 1 {
		digit = digit[:1]
	}
	if opt, ok := b.Config.Option(digit); ok && digit != "" {
		if opt.Target == "" {
			w.end(OutcomeCompleted, DefaultGoodbye)
			return
		}
		w.from(opt.Target, c.Hops)
		return
	}

	attempt := c.Attempt + 1
	if attempt <= w.in.menuRetries(b) {
		msg := b.Config.InvalidMessage
		if strings.TrimSpace(msg) == "" {
			msg = DefaultInvalidMessage
		}
		w.emit(w.in.say(msg, b.Config.Voice, b.Config.Language))
		w.gather(b, attempt, c.Hops)
		return
	}

	w.fallback = true
	if b.Config.DefaultTarget != "" {
		w.from(b.Config.DefaultTarget, c.Hops)
		return
	}
	w.end(OutcomeCompleted, DefaultGoodbye)
}

func (w *walk) resumeDial(b callflow.Block, c Cursor) {
	switch strings.ToLower(strings.TrimSpace(w.ev.DialStatus)) {
	case "completed", "answered":
		w.end(OutcomeCompleted, "")
		return
	}
	if len(b.Next) > 0 {
		w.from(b.Next[0], c.Hops)
		return
	}
	w.end(OutcomeCompleted, DefaultApology)
}

// from walks the graph starting at id until a terminal block, a suspension
// point or the hop cap.
func (w *walk) from(id string, hops int) {
	limit := w.in.maxHops()
	for {
		if hops >= limit {
			w.end(OutcomeHopCap, DefaultApology)
			return
		}
		b, ok := w.block(id)
		if !ok {
			w.end(OutcomeError, DefaultApology)
			return
		}
		hops++

		c := b.Config
		switch b.Type {
		case callflow.BlockSay:
			w.emit(w.in.say(c.Text, c.Voice, c.Language))
		case callflow.BlockPlay:
			w.emit(Directive{Verb: VerbPlay, URL: c.URL, Loop: c.Loop})
		case callflow.BlockPause:
			w.emit(Directive{Verb: VerbPause, Seconds: c.Duration})
		case callflow.BlockSMS:
			to := c.To
			if strings.TrimSpace(to) == "" {
				to = w.ev.RemoteParty()
			}
			w.emit(Directive{Verb: VerbSMS, Body: c.Body, To: to})
		case callflow.BlockHangup:
			w.end(OutcomeCompleted, "")
			return
		case callflow.BlockMenu:
			w.gather(b, 0, hops)
			return
		case callflow.BlockForward, callflow.BlockMultiForward:
			targets := b.DialTargets()
			if len(targets) == 0 {
				w.end(OutcomeError, DefaultApology)
				return
			}
			w.emit(Directive{
				Verb:     VerbDial,
				Numbers:  targets,
				Timeout:  c.Timeout,
				CallerID: c.CallerID,
				Record:   w.flow.RecordingEnabled,
				Continue: &Cursor{BlockID: b.ID, Hops: hops},
			})
			w.outcome = OutcomeSuspended
			return
		default:
			w.end(OutcomeError, DefaultApology)
			return
		}

		if len(b.Next) == 0 {
			w.end(OutcomeCompleted, "")
			return
		}
		id = b.Next[0]
	}
}

func (w *walk) gather(b callflow.Block, attempt, hops int) {
	c := b.Config
	voice := c.Voice
	if voice == "" {
		voice = w.in.DefaultVoice
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultMenuTimeout
	}
	w.emit(Directive{
		Verb:      VerbGather,
		Text:      c.MenuPrompt(),
		Voice:     voice,
		Language:  c.Language,
		NumDigits: 1,
		Timeout:   timeout,
		Continue:  &Cursor{BlockID: b.ID, Attempt: attempt, Hops: hops},
	})
	w.outcome = OutcomeSuspended
}
