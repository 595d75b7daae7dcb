package telephony

import (
	"context"
	"net/http"

	"callflow-platform/internal/auth"
	"callflow-platform/internal/interpreter"
	"callflow-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Runner executes one interpreter invocation.
type Runner interface {
	Handle(ctx context.Context, ev interpreter.Event) interpreter.Result
}

// VoiceWebhookHandler turns a provider voice callback into a response
// document. It always answers 200 with a well-formed document: a caller
// on a live call gets a spoken apology, never an HTTP error.
type VoiceWebhookHandler struct {
	Provider Provider
	Runner   Runner

	// PublicBaseURL is used to build callback URLs. When empty they are
	// derived from the request.
	PublicBaseURL string
}

func (h VoiceWebhookHandler) HandleVoice(c *gin.Context) {
	log := logger.FromGin(c)

	if h.Provider == nil || h.Runner == nil {
		log.Error("voice webhook not configured")
		c.Data(http.StatusOK, "application/xml", []byte(FallbackTwiML))
		return
	}

	ev, err := h.Provider.ParseCallback(c.Request)
	if err != nil {
		log.Warn("voice callback parse failed", "provider", h.Provider.Name(), "err", err)
		h.write(c, h.Provider.Fallback())
		return
	}

	ctx := auth.WithClientIP(c.Request.Context(), c.ClientIP())
	ctx = logger.With(ctx, log.With("call_id", ev.CallID))
	res := h.Runner.Handle(ctx, ev)

	callback := RequestURLWithoutQuery(c.Request, h.PublicBaseURL)
	doc, err := h.Provider.Render(res, callback)
	if err != nil {
		log.Error("voice response render failed", "call_id", ev.CallID, "flow_id", res.FlowID, "err", err)
		h.write(c, h.Provider.Fallback())
		return
	}
	h.write(c, doc)
}

func (h VoiceWebhookHandler) write(c *gin.Context, doc string) {
	c.Data(http.StatusOK, h.Provider.ContentType(), []byte(doc))
}

// RequestURLWithoutQuery is the absolute URL of r without its query; cursor
// parameters are set fresh on every callback.
func RequestURLWithoutQuery(r *http.Request, publicBaseURL string) string {
	u := *r.URL
	u.RawQuery = ""
	clone := *r
	clone.URL = &u
	return RequestURL(&clone, publicBaseURL)
}
