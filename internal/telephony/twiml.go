package telephony

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"callflow-platform/internal/interpreter"
)

// FallbackTwiML ends a call when nothing better can be rendered.
const FallbackTwiML = xml.Header + `<Response>
  <Say>Sorry, we are unable to complete your call right now. Goodbye.</Say>
  <Hangup></Hangup>
</Response>`

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName  xml.Name `xml:"Say"`
	Voice    string   `xml:"voice,attr,omitempty"`
	Language string   `xml:"language,attr,omitempty"`
	Text     string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	Loop    string   `xml:"loop,attr,omitempty"`
	URL     string   `xml:",chardata"`
}

type twimlPause struct {
	XMLName xml.Name `xml:"Pause"`
	Length  string   `xml:"length,attr,omitempty"`
}

type twimlGather struct {
	XMLName   xml.Name  `xml:"Gather"`
	Input     string    `xml:"input,attr"`
	NumDigits string    `xml:"numDigits,attr,omitempty"`
	Timeout   string    `xml:"timeout,attr,omitempty"`
	Action    string    `xml:"action,attr"`
	Method    string    `xml:"method,attr"`
	Say       *twimlSay `xml:"Say,omitempty"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

type twimlDial struct {
	XMLName  xml.Name      `xml:"Dial"`
	Action   string        `xml:"action,attr,omitempty"`
	Method   string        `xml:"method,attr,omitempty"`
	Timeout  string        `xml:"timeout,attr,omitempty"`
	CallerID string        `xml:"callerId,attr,omitempty"`
	Record   string        `xml:"record,attr,omitempty"`
	Numbers  []twimlNumber `xml:"Number"`
}

type twimlNumber struct {
	Value string `xml:",chardata"`
}

type twimlSms struct {
	XMLName xml.Name `xml:"Sms"`
	To      string   `xml:"to,attr,omitempty"`
	Body    string   `xml:",chardata"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderTwiML maps interpreter directives to a TwiML document. Gather and
// Dial call back to callbackURL with the directive's cursor; a Gather is
// followed by a Redirect so that a timeout without input also calls back.
func RenderTwiML(res interpreter.Result, callbackURL string) (string, error) {
	if len(res.Directives) == 0 {
		return "", errors.New("telephony: no directives to render")
	}

	var r twimlResponse
	for _, d := range res.Directives {
		switch d.Verb {
		case interpreter.VerbSay:
			r.Verbs = append(r.Verbs, say(d))
		case interpreter.VerbPlay:
			r.Verbs = append(r.Verbs, twimlPlay{Loop: positive(d.Loop), URL: d.URL})
		case interpreter.VerbPause:
			r.Verbs = append(r.Verbs, twimlPause{Length: positive(d.Seconds)})
		case interpreter.VerbSMS:
			r.Verbs = append(r.Verbs, twimlSms{To: d.To, Body: d.Body})
		case interpreter.VerbHangup:
			r.Verbs = append(r.Verbs, twimlHangup{})
		case interpreter.VerbGather:
			action, err := continueURL(callbackURL, d)
			if err != nil {
				return "", err
			}
			g := twimlGather{
				Input:     "dtmf",
				NumDigits: positive(d.NumDigits),
				Timeout:   positive(d.Timeout),
				Action:    action,
				Method:    "POST",
			}
			if strings.TrimSpace(d.Text) != "" {
				s := say(d)
				g.Say = &s
			}
			r.Verbs = append(r.Verbs, g, twimlRedirect{Method: "POST", URL: action})
		case interpreter.VerbDial:
			if len(d.Numbers) == 0 {
				return "", errors.New("telephony: dial without numbers")
			}
			action, err := continueURL(callbackURL, d)
			if err != nil {
				return "", err
			}
			dial := twimlDial{
				Action:   action,
				Method:   "POST",
				Timeout:  positive(d.Timeout),
				CallerID: d.CallerID,
			}
			if d.Record {
				dial.Record = "record-from-answer"
			}
			for _, n := range d.Numbers {
				dial.Numbers = append(dial.Numbers, twimlNumber{Value: n})
			}
			r.Verbs = append(r.Verbs, dial)
		default:
			return "", fmt.Errorf("telephony: unknown directive %q", d.Verb)
		}
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func say(d interpreter.Directive) twimlSay {
	return twimlSay{Voice: d.Voice, Language: d.Language, Text: d.Text}
}

func continueURL(base string, d interpreter.Directive) (string, error) {
	if d.Continue == nil {
		return "", fmt.Errorf("telephony: %s directive without continuation", d.Verb)
	}
	if strings.TrimSpace(base) == "" {
		return "", errors.New("telephony: callback url required")
	}
	return CallbackURL(base, *d.Continue)
}

func positive(n int) string {
	if n <= 0 {
		return ""
	}
	return strconv.Itoa(n)
}
