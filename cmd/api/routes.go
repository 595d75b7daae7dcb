package main

import (
	"net/http"
	"time"

	"callflow-platform/internal/auth"
	"callflow-platform/internal/config"
	"callflow-platform/internal/httpapi"
	"callflow-platform/internal/telephony"
	"callflow-platform/pkg/utils"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, app components, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if app.db != nil {
			if err := utils.HealthCheck(c.Request.Context(), app.db, 2*time.Second); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "db": "unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(app.metrics.Handler()))

	// Provider webhooks (public, signed by the provider).
	{
		provider := telephony.NewTwilioProvider()
		h := telephony.VoiceWebhookHandler{
			Provider:      provider,
			Runner:        app.recorder,
			PublicBaseURL: cfg.Twilio.PublicBaseURL,
		}
		chain := []gin.HandlerFunc{}
		if cfg.Twilio.ValidateSignature {
			chain = append(chain, telephony.RequireTwilioSignature(cfg.Twilio.AuthToken, cfg.Twilio.PublicBaseURL))
		}
		chain = append(chain, h.HandleVoice)
		r.POST("/webhooks/twilio/voice", chain...)
	}

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		v1.GET("/me", func(c *gin.Context) {
			id, _ := auth.IdentityFrom(c.Request.Context())
			c.JSON(http.StatusOK, id)
		})

		h := httpapi.Handlers{
			Flows:       app.flows,
			Numbers:     app.numbers,
			Editor:      app.editor,
			Interpreter: app.interpreter,
			Reporting:   app.reporting,
			Audit:       app.audit,
		}
		h.Register(v1)
	}
}
