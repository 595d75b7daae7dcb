package telephony

import (
	"context"
	"net/http"

	"callflow-platform/internal/interpreter"
)

// Provider adapts one telephony vendor's webhook protocol to interpreter
// events and directives.
//
// Rules:
// - No flow logic in adapters; they only translate.
// - Adapters never fail a live call: the handler falls back to a static
//   hangup document if Render errors.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// ParseCallback reads one voice callback, including the cursor carried
	// in the callback URL.
	ParseCallback(r *http.Request) (interpreter.Event, error)

	// Render turns a result into the vendor's response document. Suspension
	// points call back to callbackURL.
	Render(res interpreter.Result, callbackURL string) (string, error)

	// Fallback is a document that always ends the call.
	Fallback() string
	ContentType() string
}
