package telephony

import (
	"strings"
	"testing"

	"callflow-platform/internal/interpreter"
)

const cb = "https://example.com/webhooks/twilio/voice"

func TestRenderTwiML_SayAndGather(t *testing.T) {
	res := interpreter.Result{Directives: []interpreter.Directive{
		{Verb: interpreter.VerbSay, Text: "Welcome & hello", Voice: "alice"},
		{Verb: interpreter.VerbGather, Text: "Press 1", NumDigits: 1, Timeout: 5, Continue: &interpreter.Cursor{BlockID: "menu", Hops: 2}},
	}}
	out, err := RenderTwiML(res, cb)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, want := range []string{
		`<Say voice="alice">Welcome &amp; hello</Say>`,
		`<Gather input="dtmf" numDigits="1" timeout="5" action="https://example.com/webhooks/twilio/voice?attempt=0&amp;block=menu&amp;hops=2" method="POST">`,
		`<Say>Press 1</Say>`,
		`<Redirect method="POST">https://example.com/webhooks/twilio/voice?attempt=0&amp;block=menu&amp;hops=2</Redirect>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in:\n%s", want, out)
		}
	}
}

func TestRenderTwiML_DialWithRecording(t *testing.T) {
	res := interpreter.Result{Directives: []interpreter.Directive{
		{Verb: interpreter.VerbDial, Numbers: []string{"+1", "+2"}, Timeout: 20, Record: true, Continue: &interpreter.Cursor{BlockID: "fwd", Hops: 3}},
	}}
	out, err := RenderTwiML(res, cb)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if !strings.Contains(out, `timeout="20"`) || !strings.Contains(out, `record="record-from-answer"`) {
		t.Fatalf("missing dial attributes:\n%s", out)
	}
	if !strings.Contains(out, "<Number>+1</Number>") || !strings.Contains(out, "<Number>+2</Number>") {
		t.Fatalf("expected both numbers:\n%s", out)
	}
	if !strings.Contains(out, "block=fwd") {
		t.Fatalf("expected dial action to carry cursor:\n%s", out)
	}
}

func TestRenderTwiML_AdvancingVerbs(t *testing.T) {
	res := interpreter.Result{Directives: []interpreter.Directive{
		{Verb: interpreter.VerbPlay, URL: "https://x/a.mp3", Loop: 2},
		{Verb: interpreter.VerbPause, Seconds: 3},
		{Verb: interpreter.VerbSMS, Body: "Thanks", To: "+1555"},
		{Verb: interpreter.VerbHangup},
	}}
	out, err := RenderTwiML(res, "")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	for _, want := range []string{
		`<Play loop="2">https://x/a.mp3</Play>`,
		`<Pause length="3"></Pause>`,
		`<Sms to="+1555">Thanks</Sms>`,
		`<Hangup></Hangup>`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in:\n%s", want, out)
		}
	}
}

func TestRenderTwiML_Errors(t *testing.T) {
	if _, err := RenderTwiML(interpreter.Result{}, cb); err == nil {
		t.Fatalf("expected error for empty result")
	}
	gather := interpreter.Result{Directives: []interpreter.Directive{
		{Verb: interpreter.VerbGather, Continue: &interpreter.Cursor{BlockID: "m"}},
	}}
	if _, err := RenderTwiML(gather, ""); err == nil {
		t.Fatalf("expected error without callback url")
	}
}
