package httpapi

import (
	"errors"
	"net/http"

	"voiceagent-platform/internal/response"
	"voiceagent-platform/internal/session"
	"voiceagent-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Sessions  *session.Service
	Providers *response.Orchestrator
}

// --- Calls ---

type initiateCallRequest struct {
	PhoneNumber    string `json:"phone_number"`
	Purpose        string `json:"purpose"`
	InitialMessage string `json:"initial_message"`
	CustomerName   string `json:"customer_name"`
	CustomPrompt   string `json:"custom_prompt"`
	VoiceProfile   string `json:"voice_profile"`
}

// InitiateCall places an outbound call and returns the new session's ids.
func (h Handlers) InitiateCall(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	var req initiateCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	res, err := h.Sessions.InitiateCall(c.Request.Context(), session.InitiateCallRequest{
		PhoneNumber:    req.PhoneNumber,
		Purpose:        req.Purpose,
		InitialMessage: req.InitialMessage,
		CustomerName:   req.CustomerName,
		CustomPrompt:   req.CustomPrompt,
		VoiceProfile:   req.VoiceProfile,
	})
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, res)
	case errors.Is(err, session.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, session.ErrCallLimitReached):
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "active call limit reached"})
	case errors.Is(err, session.ErrCallInitiationFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{
			"error": err.Error(),
			"code":  "CALL_INITIATION_FAILED",
		})
	default:
		logger.FromGin(c).Error("call initiation failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "call initiation failed"})
	}
}

// ListActiveCalls returns every live session, oldest first.
func (h Handlers) ListActiveCalls(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	live := h.Sessions.ActiveSessions()
	c.JSON(http.StatusOK, gin.H{"sessions": live, "count": len(live)})
}

// CallHistory returns the transcript accumulated so far for a live call.
// Finished calls are archived and no longer visible here.
func (h Handlers) CallHistory(c *gin.Context) {
	if h.Sessions == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "sessions not configured"})
		return
	}
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}
	turns, err := h.Sessions.History(sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		logger.FromGin(c).Error("history lookup failed", "session_id", sessionID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history lookup failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "turns": turns, "count": len(turns)})
}

// --- Providers ---

// ProviderHealth reports each reply provider's circuit state in chain
// priority order.
func (h Handlers) ProviderHealth(c *gin.Context) {
	if h.Providers == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "providers not configured"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"providers": h.Providers.Health()})
}
