package callrecord

import (
	"errors"
	"time"
)

// CallRecord is the permanent outcome of one finished call.
//
// Invariants:
// - A record is written once at call teardown and never updated.
// - Persistence is best-effort: teardown must not block or fail on it.
// - Turns preserve conversation order, oldest first.

type CallRecord struct {
	SessionID      string `json:"session_id" db:"session_id"`
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	PhoneNumber  string `json:"phone_number" db:"phone_number"`
	Purpose      string `json:"purpose,omitempty" db:"purpose"`
	CustomerName string `json:"customer_name,omitempty" db:"customer_name"`

	// FinalStatus is the terminal gateway status that ended the call
	// (completed, busy, no-answer, failed).
	FinalStatus string `json:"final_status" db:"final_status"`

	StartedAt  time.Time `json:"started_at" db:"started_at"`
	EndedAt    time.Time `json:"ended_at" db:"ended_at"`
	DurationMs int64     `json:"duration_ms" db:"duration_ms"`

	Turns []Turn `json:"turns,omitempty"`
}

// Turn is one utterance of the finished conversation.
type Turn struct {
	Role    string `json:"role" db:"role"`
	Content string `json:"content" db:"content"`

	// Confidence is the recognizer's score for user turns. Nil for
	// assistant turns.
	Confidence *float64 `json:"confidence,omitempty" db:"confidence"`

	SpokenAt time.Time `json:"spoken_at" db:"spoken_at"`
}

func (r CallRecord) Validate() error {
	if r.SessionID == "" {
		return errors.New("callrecord: session_id required")
	}
	if r.PhoneNumber == "" {
		return errors.New("callrecord: phone_number required")
	}
	if r.FinalStatus == "" {
		return errors.New("callrecord: final_status required")
	}
	if r.EndedAt.Before(r.StartedAt) {
		return errors.New("callrecord: ended_at before started_at")
	}
	return nil
}
