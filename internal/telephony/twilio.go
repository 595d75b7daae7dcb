package telephony

import (
	"context"
	"net/http"

	"callflow-platform/internal/interpreter"
)

// TwilioProvider speaks the Twilio voice webhook and TwiML protocol. It has
// no REST client; number purchase and call placement happen elsewhere.
type TwilioProvider struct{}

func NewTwilioProvider() *TwilioProvider { return &TwilioProvider{} }

func (p *TwilioProvider) Name() string { return "twilio" }

func (p *TwilioProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *TwilioProvider) ParseCallback(r *http.Request) (interpreter.Event, error) {
	form, err := ParseVoiceCallback(r)
	if err != nil {
		return interpreter.Event{}, err
	}
	return form.Event(), nil
}

func (p *TwilioProvider) Render(res interpreter.Result, callbackURL string) (string, error) {
	return RenderTwiML(res, callbackURL)
}

func (p *TwilioProvider) Fallback() string { return FallbackTwiML }

func (p *TwilioProvider) ContentType() string { return "application/xml" }
