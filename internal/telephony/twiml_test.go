package telephony

import (
	"encoding/xml"
	"strings"
	"testing"
)

func TestRenderGreetingDocument(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{
		Kind:      DocumentGreeting,
		SpeakText: "Hello, this is a confirmation call",
		ActionURL: "/webhooks/voice/speech?session_id=call_1",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(out, xml.Header) {
		t.Fatalf("expected xml declaration, got %q", out[:40])
	}
	for _, want := range []string{
		"Hello, this is a confirmation call",
		`input="speech"`,
		`action="/webhooks/voice/speech?session_id=call_1"`,
		`method="POST"`,
		`timeout="5"`,
		`speechTimeout="auto"`,
		repromptLine,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in document: %s", want, out)
		}
	}
	// greeting speaks, listens, re-prompts, listens again
	first := strings.Index(out, "Hello, this is")
	gather := strings.Index(out, "<Gather")
	reprompt := strings.Index(out, repromptLine)
	last := strings.LastIndex(out, "<Gather")
	if !(first < gather && gather < reprompt && reprompt < last) {
		t.Fatalf("unexpected verb order: %s", out)
	}
	if strings.Contains(out, "<Hangup") {
		t.Fatalf("greeting must not hang up: %s", out)
	}
}

func TestRenderListeningDocument(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{Kind: DocumentListening, ActionURL: "/a"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "listening. Please go ahead.") {
		t.Fatalf("expected listening line: %s", out)
	}
	if !strings.Contains(out, "<Gather") {
		t.Fatalf("expected gather: %s", out)
	}
}

func TestRenderReplyDocument(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{
		Kind:      DocumentReply,
		SpeakText: "Got it, anything else?",
		ActionURL: "/a",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	reply := strings.Index(out, "Got it, anything else?")
	gather := strings.Index(out, "<Gather")
	closing := strings.Index(out, closingLine)
	hangup := strings.Index(out, "<Hangup")
	if reply < 0 || gather < 0 || closing < 0 || hangup < 0 {
		t.Fatalf("missing verbs: %s", out)
	}
	if !(reply < gather && gather < closing && closing < hangup) {
		t.Fatalf("unexpected verb order: %s", out)
	}
}

func TestRenderGoodbyeDocument(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{Kind: DocumentGoodbye})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, closingLine) || !strings.Contains(out, "<Hangup") {
		t.Fatalf("expected closing line and hangup: %s", out)
	}
	if strings.Contains(out, "<Gather") {
		t.Fatalf("goodbye must not listen: %s", out)
	}
}

func TestRenderErrorDocument(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{Kind: DocumentError})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "something went wrong") || !strings.Contains(out, "<Hangup") {
		t.Fatalf("expected error line and hangup: %s", out)
	}
}

func TestRenderEscapesSpeechExactlyOnce(t *testing.T) {
	text := `Tom & Jerry's "total" is <5, not >9`
	out, err := RenderVoiceDocument(VoiceDocument{Kind: DocumentReply, SpeakText: text, ActionURL: "/a"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if strings.Contains(out, "Tom & Jerry") {
		t.Fatalf("raw ampersand leaked: %s", out)
	}
	if got := strings.Count(out, "&amp;"); got != 1 {
		t.Fatalf("expected ampersand escaped once, got %d: %s", got, out)
	}
	if strings.Contains(out, "&amp;amp;") || strings.Contains(out, "&amp;#") {
		t.Fatalf("double escaping: %s", out)
	}

	// a standard parser must recover the original text
	var parsed struct {
		Says []string `xml:"Say"`
	}
	if err := xml.Unmarshal([]byte(out), &parsed); err != nil {
		t.Fatalf("document does not parse: %v\n%s", err, out)
	}
	if len(parsed.Says) == 0 || parsed.Says[0] != text {
		t.Fatalf("round trip mismatch: %q", parsed.Says)
	}
}

func TestRenderPlaysClipWhenAudioURLSet(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{
		Kind:      DocumentReply,
		SpeakText: "spoken fallback",
		AudioURL:  "https://example.com/webhooks/voice/clips/abc",
		ActionURL: "/a",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, "<Play>https://example.com/webhooks/voice/clips/abc</Play>") {
		t.Fatalf("expected play verb: %s", out)
	}
	if strings.Contains(out, "spoken fallback") {
		t.Fatalf("audio reply must not also speak the text: %s", out)
	}
}

func TestRenderVoiceAttribute(t *testing.T) {
	out, err := RenderVoiceDocument(VoiceDocument{Kind: DocumentGoodbye, Voice: "Polly.Joanna"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.Contains(out, `voice="Polly.Joanna"`) {
		t.Fatalf("expected voice attribute: %s", out)
	}
}

func TestRenderRejectsUnknownKind(t *testing.T) {
	if _, err := RenderVoiceDocument(VoiceDocument{Kind: "hold-music"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestFallbackDocumentParses(t *testing.T) {
	var parsed struct {
		Say    string   `xml:"Say"`
		Hangup struct{} `xml:"Hangup"`
	}
	if err := xml.Unmarshal([]byte(fallbackDocument), &parsed); err != nil {
		t.Fatalf("fallback document does not parse: %v", err)
	}
	if parsed.Say == "" {
		t.Fatalf("expected say text")
	}
}
