// Package speech synthesizes reply audio and serves it to the telephony
// gateway. Synthesis is best-effort: callers fall back to the gateway's
// built-in voice whenever it fails, so nothing here may block a call.
package speech

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any synthesis failure (transport, quota, upstream
// errors). Callers match it with errors.Is and degrade to spoken text.
var ErrUnavailable = errors.New("speech: synthesis unavailable")

// Clip is one synthesized utterance.
type Clip struct {
	Data        []byte
	ContentType string
}

// Synthesizer turns reply text into playable audio. voiceProfile selects
// the voice; empty picks the implementation's default.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceProfile string) (Clip, error)
}
