package telephony

import (
	"context"
	"strings"
	"time"
)

// Webhook mount points. Route registration and callback URL construction
// must agree on these, so they live here.
const (
	StatusWebhookPath = "/webhooks/voice/status"
	SpeechWebhookPath = "/webhooks/voice/speech"
	ClipWebhookPath   = "/webhooks/voice/clips"
)

// Gateway places outbound calls at the telephony provider.
//
// Rules:
// - No provider SDK calls outside telephony adapters.
// - Keep request/response types provider-agnostic; the session layer never
//   sees Twilio shapes.
type Gateway interface {
	CreateCall(ctx context.Context, req CreateCallRequest) (CreateCallResult, error)
}

// CreateCallRequest asks the gateway to dial a number. VoiceURL is fetched
// by the gateway for the first document once the callee answers;
// StatusCallbackURL receives lifecycle status events. Both carry the
// session id as a query parameter.
type CreateCallRequest struct {
	To   string
	From string

	VoiceURL          string
	StatusCallbackURL string

	// RingTimeout is how long the callee's phone rings before the gateway
	// reports no-answer.
	RingTimeout time.Duration
}

// CreateCallResult is the gateway's acceptance of a dial request.
type CreateCallResult struct {
	// CallID is the provider-assigned call identifier.
	CallID string

	// Status is the raw initial status the provider reported (e.g. "queued").
	Status string
}

// CallEventStatus is the closed set of call-progress values the state
// machine understands. Gateway-reported strings outside the set map to
// StatusUnknown rather than being dropped.
type CallEventStatus string

const (
	StatusRinging    CallEventStatus = "ringing"
	StatusInProgress CallEventStatus = "in-progress"
	StatusCompleted  CallEventStatus = "completed"
	StatusBusy       CallEventStatus = "busy"
	StatusNoAnswer   CallEventStatus = "no-answer"
	StatusFailed     CallEventStatus = "failed"
	StatusUnknown    CallEventStatus = "unknown"
)

// ParseCallStatus maps the provider's status vocabulary onto CallEventStatus.
// Total: unrecognized values become StatusUnknown so a vendor vocabulary
// change degrades to a keep-alive document instead of dropping the call.
func ParseCallStatus(s string) CallEventStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ringing":
		return StatusRinging
	case "in-progress", "answered":
		return StatusInProgress
	case "completed":
		return StatusCompleted
	case "busy":
		return StatusBusy
	case "no-answer":
		return StatusNoAnswer
	case "failed":
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// IsTerminal reports whether the status ends the call. Terminal statuses
// are absorbing: the session is torn down and later events for it answer
// with the error document.
func (s CallEventStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusFailed:
		return true
	default:
		return false
	}
}
