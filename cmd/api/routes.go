package main

import (
	"voiceagent-platform/internal/config"
	"voiceagent-platform/internal/httpapi"
	"voiceagent-platform/internal/response"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, cfg config.Config, sessions *session.Service, providers *response.Orchestrator, clips *speech.ClipStore) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Gateway webhooks. Signature validation is forced on in production.
	wh := telephony.WebhookHandlers{Sessions: sessions}
	if clips != nil {
		wh.Clips = clips
	}
	hooks := r.Group("/webhooks/voice")
	if cfg.Twilio.ValidateWebhooks {
		hooks.Use(telephony.RequireValidSignature(cfg.Twilio.AuthToken, cfg.App.PublicBaseURL))
	}
	{
		hooks.POST("/status", wh.StatusEvent)
		hooks.POST("/speech", wh.SpeechEvent)
	}

	// Clip fetches stay outside the signed group: Twilio's media requests
	// carry no signature header.
	r.GET("/webhooks/voice/clips/:clip_id", wh.Clip)

	// API group
	v1 := r.Group("/v1")
	{
		h := httpapi.Handlers{Sessions: sessions, Providers: providers}

		// CALLS routes
		calls := v1.Group("/calls")
		{
			calls.POST("", h.InitiateCall)
			calls.GET("", h.ListActiveCalls)
			calls.GET("/:session_id/history", h.CallHistory)
		}

		// PROVIDERS routes
		v1.GET("/providers/health", h.ProviderHealth)
	}
}
