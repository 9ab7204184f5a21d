package telephony

import (
	"context"
	"encoding/xml"
	"net/http"
	"strings"

	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Webhook handlers convert gateway callbacks to internal events, delegate
// to the session orchestrator, and write voice documents. The gateway
// reads the XML body regardless of status code, so every session webhook
// answers 200 with a speakable document.
//
// No business logic here.

// SessionOrchestrator reacts to gateway events for a call session. Both
// methods produce a document in every case; internal failures degrade to
// error or continue documents rather than propagating.
type SessionOrchestrator interface {
	HandleStatusEvent(ctx context.Context, ev StatusEvent) VoiceDocument
	HandleSpeechEvent(ctx context.Context, ev SpeechEvent) VoiceDocument
}

// ClipSource serves synthesized audio clips by id.
type ClipSource interface {
	Get(clipID string) (data []byte, contentType string, ok bool)
}

type WebhookHandlers struct {
	Sessions SessionOrchestrator

	// Clips is nil when speech synthesis is disabled.
	Clips ClipSource
}

func (h WebhookHandlers) StatusEvent(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseStatusEvent(c.Request)
	if err != nil {
		log.Warn("status webhook parse failed", "err", err)
		h.writeDocument(c, VoiceDocument{Kind: DocumentError})
		return
	}

	ctx := logger.With(c.Request.Context(), log)
	h.writeDocument(c, h.Sessions.HandleStatusEvent(ctx, ev))
}

func (h WebhookHandlers) SpeechEvent(c *gin.Context) {
	log := logger.FromGin(c)

	ev, err := ParseSpeechEvent(c.Request)
	if err != nil {
		log.Warn("speech webhook parse failed", "err", err)
		h.writeDocument(c, VoiceDocument{Kind: DocumentError})
		return
	}

	ctx := logger.With(c.Request.Context(), log)
	h.writeDocument(c, h.Sessions.HandleSpeechEvent(ctx, ev))
}

// Clip streams a synthesized audio clip to the gateway. Not signed:
// media fetches from Twilio carry no signature header.
func (h WebhookHandlers) Clip(c *gin.Context) {
	if h.Clips == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "clip not found"})
		return
	}
	data, contentType, ok := h.Clips.Get(c.Param("clip_id"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "clip not found"})
		return
	}
	c.Data(http.StatusOK, contentType, data)
}

func (h WebhookHandlers) writeDocument(c *gin.Context, doc VoiceDocument) {
	body, err := RenderVoiceDocument(doc)
	if err != nil {
		logger.FromGin(c).Error("voice document render failed", "kind", doc.Kind, "err", err)
		body = fallbackDocument
	}
	c.Header("Content-Type", "application/xml")
	c.String(http.StatusOK, body)
}

// fallbackDocument is served when rendering fails. Hand-written so serving
// it cannot itself fail.
const fallbackDocument = xml.Header + `<Response>
  <Say>I&#39;m sorry, something went wrong on our end. Goodbye.</Say>
  <Hangup></Hangup>
</Response>`

// RequireValidSignature rejects webhook requests whose X-Twilio-Signature
// does not match. The signed URL is reconstructed from the configured
// public base so validation survives proxies and port rewriting.
func RequireValidSignature(authToken, publicBaseURL string) gin.HandlerFunc {
	base := strings.TrimRight(publicBaseURL, "/")
	return func(c *gin.Context) {
		if err := c.Request.ParseForm(); err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		fullURL := base + c.Request.URL.RequestURI()
		sig := c.GetHeader("X-Twilio-Signature")
		if !ValidateSignature(authToken, fullURL, c.Request.PostForm, sig) {
			logger.FromGin(c).Warn("webhook signature rejected", "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "invalid signature"})
			return
		}
		c.Next()
	}
}
