package telephony

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Webhook payload parsing. Twilio sends application/x-www-form-urlencoded;
// the session id rides the callback URL query because the provider echoes
// our URLs verbatim. Business decisions are not made here.

// SessionIDParam is the query parameter that carries our session id on
// every callback URL handed to the gateway.
const SessionIDParam = "session_id"

// StatusEvent is one call-progress notification from the gateway.
type StatusEvent struct {
	SessionID string
	CallID    string

	Status CallEventStatus

	// RawStatus keeps the provider's literal value for logging.
	RawStatus string
}

// SpeechEvent is one recognized utterance from the gateway.
type SpeechEvent struct {
	SessionID string
	CallID    string

	Text string

	// Confidence is the recognizer's 0..1 score. Informational only;
	// absent or unparsable values become 0.
	Confidence float64
}

func ParseStatusEvent(r *http.Request) (StatusEvent, error) {
	if err := r.ParseForm(); err != nil {
		return StatusEvent{}, err
	}
	ev := StatusEvent{
		SessionID: strings.TrimSpace(r.URL.Query().Get(SessionIDParam)),
		CallID:    strings.TrimSpace(r.PostFormValue("CallSid")),
		RawStatus: strings.TrimSpace(r.PostFormValue("CallStatus")),
	}
	ev.Status = ParseCallStatus(ev.RawStatus)
	if ev.SessionID == "" {
		return ev, errors.New("telephony: session_id query parameter required")
	}
	return ev, nil
}

func ParseSpeechEvent(r *http.Request) (SpeechEvent, error) {
	if err := r.ParseForm(); err != nil {
		return SpeechEvent{}, err
	}
	ev := SpeechEvent{
		SessionID: strings.TrimSpace(r.URL.Query().Get(SessionIDParam)),
		CallID:    strings.TrimSpace(r.PostFormValue("CallSid")),
		Text:      strings.TrimSpace(r.PostFormValue("SpeechResult")),
	}
	if conf := strings.TrimSpace(r.PostFormValue("Confidence")); conf != "" {
		if f, err := strconv.ParseFloat(conf, 64); err == nil {
			ev.Confidence = f
		}
	}
	if ev.SessionID == "" {
		return ev, errors.New("telephony: session_id query parameter required")
	}
	return ev, nil
}

// ValidateSignature reports whether signature matches the HMAC-SHA1 of the
// full request URL concatenated with the sorted form parameters, keyed by
// the account's auth token. This is Twilio's webhook signing scheme.
func ValidateSignature(authToken, fullURL string, form url.Values, signature string) bool {
	if authToken == "" || signature == "" {
		return false
	}

	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fullURL)
	for _, k := range keys {
		b.WriteString(k)
		b.WriteString(form.Get(k))
	}

	mac := hmac.New(sha1.New, []byte(authToken))
	mac.Write([]byte(b.String()))
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
