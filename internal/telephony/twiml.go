package telephony

import (
	"bytes"
	"encoding/xml"
	"fmt"
)

// Voice response documents (TwiML) answered to the gateway's webhooks.
// Rendering is pure: the same VoiceDocument always produces the same
// markup. encoding/xml escapes all five reserved characters in text and
// attributes exactly once, so caller-supplied and model-generated text
// round-trips through a standard parser.

// DocumentKind selects the document shape.
type DocumentKind string

const (
	// DocumentGreeting speaks the call's opening message, then listens,
	// with a re-prompt if nothing is heard.
	DocumentGreeting DocumentKind = "greeting"

	// DocumentListening speaks a short invitation and listens. Also the
	// shape answered for unrecognized call statuses (keep-alive).
	DocumentListening DocumentKind = "listening"

	// DocumentReply speaks a generated (or apology) reply, listens again,
	// and closes the call if nothing further is heard.
	DocumentReply DocumentKind = "reply"

	// DocumentGoodbye speaks the fixed closing line and hangs up.
	DocumentGoodbye DocumentKind = "goodbye"

	// DocumentError speaks a fixed apology and hangs up. Answered whenever
	// the session is unknown or handling failed; the gateway always gets a
	// valid document.
	DocumentError DocumentKind = "error"
)

// Fixed lines spoken by the shapes above.
const (
	listeningLine = "I'm listening. Please go ahead."
	repromptLine  = "Sorry, I didn't catch that. Could you say it again?"
	closingLine   = "Thank you for your time. Goodbye."
	errorLine     = "I'm sorry, something went wrong on our end. Goodbye."
)

// VoiceDocument carries the dynamic pieces embedded in a document.
type VoiceDocument struct {
	Kind DocumentKind

	// SpeakText is the greeting message or reply text. Ignored for
	// goodbye/error kinds, which speak fixed lines.
	SpeakText string

	// AudioURL plays a synthesized clip instead of speaking SpeakText.
	AudioURL string

	// Voice selects the gateway's built-in TTS voice. Empty uses the
	// gateway default.
	Voice string

	// ActionURL is where the gather posts recognized speech.
	ActionURL string
}

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlPlay struct {
	XMLName xml.Name `xml:"Play"`
	URL     string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr,omitempty"`
	Method        string   `xml:"method,attr"`
	Timeout       int      `xml:"timeout,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr"`
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

// RenderVoiceDocument maps a VoiceDocument to markup.
func RenderVoiceDocument(doc VoiceDocument) (string, error) {
	var r twimlResponse

	switch doc.Kind {
	case DocumentGreeting:
		r.Verbs = append(r.Verbs,
			speakVerb(doc, doc.SpeakText),
			gatherVerb(doc),
			twimlSay{Voice: doc.Voice, Text: repromptLine},
			gatherVerb(doc),
		)
	case DocumentListening:
		r.Verbs = append(r.Verbs,
			twimlSay{Voice: doc.Voice, Text: listeningLine},
			gatherVerb(doc),
		)
	case DocumentReply:
		r.Verbs = append(r.Verbs,
			speakVerb(doc, doc.SpeakText),
			gatherVerb(doc),
			twimlSay{Voice: doc.Voice, Text: closingLine},
			twimlHangup{},
		)
	case DocumentGoodbye:
		r.Verbs = append(r.Verbs,
			twimlSay{Voice: doc.Voice, Text: closingLine},
			twimlHangup{},
		)
	case DocumentError:
		r.Verbs = append(r.Verbs,
			twimlSay{Voice: doc.Voice, Text: errorLine},
			twimlHangup{},
		)
	default:
		return "", fmt.Errorf("telephony: unknown document kind %q", doc.Kind)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func speakVerb(doc VoiceDocument, text string) any {
	if doc.AudioURL != "" {
		return twimlPlay{URL: doc.AudioURL}
	}
	return twimlSay{Voice: doc.Voice, Text: text}
}

func gatherVerb(doc VoiceDocument) twimlGather {
	return twimlGather{
		Input:         "speech",
		Action:        doc.ActionURL,
		Method:        "POST",
		Timeout:       5,
		SpeechTimeout: "auto",
	}
}
