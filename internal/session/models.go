// Package session orchestrates the lifecycle of outbound voice calls:
// placing them through the telephony gateway, reacting to gateway
// webhooks, accumulating the conversation, and archiving the call once
// it ends. All live state is in memory; a session exists only between
// InitiateCall and the terminal status event.
package session

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidRequest       = errors.New("session: invalid request")
	ErrSessionNotFound      = errors.New("session: not found")
	ErrSessionExists        = errors.New("session: already exists")
	ErrCallLimitReached     = errors.New("session: active call limit reached")
	ErrCallInitiationFailed = errors.New("session: call initiation failed")
)

// SessionStatus tracks the coarse lifecycle of a call. Finer call
// progress (ringing, answered) lives in the gateway's webhook stream
// and is not stored.
type SessionStatus string

const (
	StatusInitiating SessionStatus = "initiating"
	StatusActive     SessionStatus = "active"
	StatusEnded      SessionStatus = "ended"
)

// TurnRole identifies who produced a conversation turn.
type TurnRole string

const (
	TurnUser      TurnRole = "user"
	TurnAssistant TurnRole = "assistant"
)

// CallSession is the live record of one outbound call.
type CallSession struct {
	SessionID      string        `json:"session_id"`
	PhoneNumber    string        `json:"phone_number"`
	Purpose        string        `json:"purpose,omitempty"`
	CustomerName   string        `json:"customer_name,omitempty"`
	InitialMessage string        `json:"initial_message"`
	PromptOverride string        `json:"prompt_override,omitempty"`
	VoiceProfile   string        `json:"voice_profile,omitempty"`
	Status         SessionStatus `json:"status"`

	// ProviderCallID is assigned by the gateway once it accepts the
	// call and is never overwritten afterwards.
	ProviderCallID string `json:"provider_call_id,omitempty"`

	StartTime  time.Time  `json:"start_time"`
	EndTime    *time.Time `json:"end_time,omitempty"`
	DurationMs int64      `json:"duration_ms,omitempty"`
}

// ConversationTurn is one utterance in a call's transcript. Confidence
// is the recognizer's score for user turns and nil for assistant turns.
type ConversationTurn struct {
	Role       TurnRole  `json:"role"`
	Content    string    `json:"content"`
	Timestamp  time.Time `json:"timestamp"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// InitiateCallRequest carries the caller-supplied parameters for a new
// outbound call.
type InitiateCallRequest struct {
	PhoneNumber    string `json:"phone_number"`
	Purpose        string `json:"purpose,omitempty"`
	InitialMessage string `json:"initial_message"`
	CustomerName   string `json:"customer_name,omitempty"`
	CustomPrompt   string `json:"custom_prompt,omitempty"`
	VoiceProfile   string `json:"voice_profile,omitempty"`
}

func (r *InitiateCallRequest) Validate() error {
	if strings.TrimSpace(r.PhoneNumber) == "" {
		return fmt.Errorf("%w: phone_number is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(r.InitialMessage) == "" {
		return fmt.Errorf("%w: initial_message is required", ErrInvalidRequest)
	}
	return nil
}

// InitiateCallResult is returned once the gateway has accepted the call.
type InitiateCallResult struct {
	SessionID      string `json:"session_id"`
	ProviderCallID string `json:"provider_call_id"`
}
