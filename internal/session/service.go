package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"voiceagent-platform/internal/callrecord"
	"voiceagent-platform/internal/limits"
	"voiceagent-platform/internal/response"
	"voiceagent-platform/internal/speech"
	"voiceagent-platform/internal/telephony"
	"voiceagent-platform/pkg/logger"
)

const (
	// apologyLine is spoken when no provider can produce a reply. It is
	// appended to the transcript like any other assistant turn.
	apologyLine = "I'm sorry, I'm having trouble responding right now. Could you please repeat that?"

	defaultRingTimeout = 30 * time.Second
	persistTimeout     = 5 * time.Second
)

// ReplyGenerator produces the assistant's next utterance from the
// conversation so far.
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, req response.Request) (response.Reply, error)
}

// CallLimiter caps how many calls may be active at once.
type CallLimiter interface {
	Acquire(ctx context.Context) error
	Release(ctx context.Context) error
}

// Options wires the service's collaborators. Gateway, Replies,
// PublicBaseURL and FromNumber are required; the rest degrade to
// no-ops when absent.
type Options struct {
	Gateway telephony.Gateway
	Replies ReplyGenerator

	// Records archives finished calls. Nil skips archiving.
	Records callrecord.Store

	// Synthesizer and Clips together enable synthesized audio on
	// greeting and reply documents. Without them the gateway's
	// built-in voice reads the text.
	Synthesizer speech.Synthesizer
	Clips       *speech.ClipStore

	// Limiter caps concurrently active calls. Nil means unlimited.
	Limiter CallLimiter

	// PublicBaseURL is the externally reachable origin the gateway
	// calls back on, e.g. https://voice.example.com.
	PublicBaseURL string

	// FromNumber is the caller id for outbound calls.
	FromNumber string

	RingTimeout time.Duration

	// Clock and NewID are overridable in tests.
	Clock func() time.Time
	NewID func() string
}

// Service is the call session orchestrator. It owns the live session
// registry and transcript store and is the only writer to both. Events
// for one session are handled strictly one at a time; distinct sessions
// proceed in parallel.
type Service struct {
	registry *Registry
	history  *HistoryStore
	gate     *sessionGate

	gateway telephony.Gateway
	replies ReplyGenerator
	records callrecord.Store
	synth   speech.Synthesizer
	clips   *speech.ClipStore
	limiter CallLimiter

	publicBaseURL string
	fromNumber    string
	ringTimeout   time.Duration

	clock func() time.Time
	newID func() string
}

func NewService(opts Options) (*Service, error) {
	if opts.Gateway == nil {
		return nil, errors.New("session: telephony gateway is required")
	}
	if opts.Replies == nil {
		return nil, errors.New("session: reply generator is required")
	}
	if strings.TrimSpace(opts.PublicBaseURL) == "" {
		return nil, errors.New("session: public base url is required")
	}
	if strings.TrimSpace(opts.FromNumber) == "" {
		return nil, errors.New("session: from number is required")
	}
	if opts.Synthesizer != nil && opts.Clips == nil {
		return nil, errors.New("session: clip store is required with a synthesizer")
	}
	if opts.RingTimeout <= 0 {
		opts.RingTimeout = defaultRingTimeout
	}
	s := &Service{
		registry:      NewRegistry(),
		history:       NewHistoryStore(),
		gate:          newSessionGate(),
		gateway:       opts.Gateway,
		replies:       opts.Replies,
		records:       opts.Records,
		synth:         opts.Synthesizer,
		clips:         opts.Clips,
		limiter:       opts.Limiter,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(opts.PublicBaseURL), "/"),
		fromNumber:    strings.TrimSpace(opts.FromNumber),
		ringTimeout:   opts.RingTimeout,
		clock:         opts.Clock,
		newID:         opts.NewID,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return newSessionID(s.clock()) }
	}
	return s, nil
}

func newSessionID(now time.Time) string {
	frag := uuid.NewString()
	if i := strings.IndexByte(frag, '-'); i > 0 {
		frag = frag[:i]
	}
	return fmt.Sprintf("call_%d_%s", now.UnixMilli(), frag)
}

// InitiateCall places an outbound call and registers its session. The
// session becomes active only once the gateway accepts the call; a
// rejection rolls everything back and surfaces ErrCallInitiationFailed
// with the gateway's message.
func (s *Service) InitiateCall(ctx context.Context, req InitiateCallRequest) (InitiateCallResult, error) {
	if err := req.Validate(); err != nil {
		return InitiateCallResult{}, err
	}
	log := logger.From(ctx)

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			if errors.Is(err, limits.ErrLimitReached) {
				return InitiateCallResult{}, ErrCallLimitReached
			}
			return InitiateCallResult{}, fmt.Errorf("session: acquire call slot: %w", err)
		}
	}

	sess := CallSession{
		SessionID:      s.newID(),
		PhoneNumber:    strings.TrimSpace(req.PhoneNumber),
		Purpose:        strings.TrimSpace(req.Purpose),
		CustomerName:   strings.TrimSpace(req.CustomerName),
		InitialMessage: strings.TrimSpace(req.InitialMessage),
		PromptOverride: strings.TrimSpace(req.CustomPrompt),
		VoiceProfile:   strings.TrimSpace(req.VoiceProfile),
		Status:         StatusInitiating,
		StartTime:      s.clock().UTC(),
	}
	if err := s.registry.Insert(sess); err != nil {
		s.releaseSlot(ctx, log)
		return InitiateCallResult{}, err
	}
	s.history.Create(sess.SessionID)
	s.gate.add(sess.SessionID)

	res, err := s.gateway.CreateCall(ctx, telephony.CreateCallRequest{
		To:                sess.PhoneNumber,
		From:              s.fromNumber,
		VoiceURL:          s.statusURL(sess.SessionID),
		StatusCallbackURL: s.statusURL(sess.SessionID),
		RingTimeout:       s.ringTimeout,
	})
	if err != nil {
		s.gate.drop(sess.SessionID)
		s.history.Remove(sess.SessionID)
		s.registry.Remove(sess.SessionID)
		s.releaseSlot(ctx, log)
		log.Warn("gateway rejected call", "session_id", sess.SessionID, "err", err)
		return InitiateCallResult{}, fmt.Errorf("%w: %v", ErrCallInitiationFailed, err)
	}

	s.registry.Update(sess.SessionID, func(cs *CallSession) {
		cs.Status = StatusActive
		if cs.ProviderCallID == "" {
			cs.ProviderCallID = res.CallID
		}
	})
	log.Info("call initiated",
		"session_id", sess.SessionID,
		"provider_call_id", res.CallID,
		"to", sess.PhoneNumber,
	)
	return InitiateCallResult{SessionID: sess.SessionID, ProviderCallID: res.CallID}, nil
}

// HandleStatusEvent reacts to one call-progress notification and always
// answers with a renderable document. Events for sessions that no
// longer exist get an error document; that is the normal shape of
// late gateway retries after teardown.
func (s *Service) HandleStatusEvent(ctx context.Context, ev telephony.StatusEvent) telephony.VoiceDocument {
	log := logger.From(ctx)
	unlock, ok := s.gate.acquire(ev.SessionID)
	if !ok {
		log.Info("status event for unknown session", "session_id", ev.SessionID, "status", ev.RawStatus)
		return errorDocument()
	}
	defer unlock()

	sess, ok := s.registry.Get(ev.SessionID)
	if !ok {
		log.Info("status event for unknown session", "session_id", ev.SessionID, "status", ev.RawStatus)
		return errorDocument()
	}

	switch {
	case ev.Status == telephony.StatusRinging:
		log.Debug("call ringing", "session_id", sess.SessionID)
		return s.greetingDocument(ctx, sess)
	case ev.Status == telephony.StatusInProgress:
		return s.listeningDocument(sess)
	case ev.Status.IsTerminal():
		return s.finishSession(ctx, sess, ev)
	default:
		log.Debug("unrecognized call status, continuing",
			"session_id", sess.SessionID, "status", ev.RawStatus)
		return s.listeningDocument(sess)
	}
}

// finishSession archives the call and tears down its state. The
// transcript slot goes before the registry entry so no reader ever
// sees a live session without its transcript.
func (s *Service) finishSession(ctx context.Context, sess CallSession, ev telephony.StatusEvent) telephony.VoiceDocument {
	log := logger.From(ctx)
	end := s.clock().UTC()
	sess.Status = StatusEnded
	sess.EndTime = &end
	sess.DurationMs = end.Sub(sess.StartTime).Milliseconds()

	turns, _ := s.history.Snapshot(sess.SessionID)
	s.persistRecord(ctx, log, sess, string(ev.Status), turns)

	s.history.Remove(sess.SessionID)
	s.registry.Remove(sess.SessionID)
	s.gate.drop(sess.SessionID)
	s.releaseSlot(ctx, log)

	log.Info("call ended",
		"session_id", sess.SessionID,
		"status", string(ev.Status),
		"duration_ms", sess.DurationMs,
		"turns", len(turns),
	)
	return telephony.VoiceDocument{Kind: telephony.DocumentGoodbye, Voice: s.gatewayVoice(sess)}
}

// persistRecord archives the finished call. Failures are logged and
// swallowed; archiving never breaks call teardown.
func (s *Service) persistRecord(ctx context.Context, log *slog.Logger, sess CallSession, finalStatus string, turns []ConversationTurn) {
	if s.records == nil {
		return
	}
	rec := callrecord.CallRecord{
		SessionID:      sess.SessionID,
		ProviderCallID: sess.ProviderCallID,
		PhoneNumber:    sess.PhoneNumber,
		Purpose:        sess.Purpose,
		CustomerName:   sess.CustomerName,
		FinalStatus:    finalStatus,
		StartedAt:      sess.StartTime,
		EndedAt:        *sess.EndTime,
		DurationMs:     sess.DurationMs,
		Turns:          make([]callrecord.Turn, 0, len(turns)),
	}
	for _, t := range turns {
		rec.Turns = append(rec.Turns, callrecord.Turn{
			Role:       string(t.Role),
			Content:    t.Content,
			Confidence: t.Confidence,
			SpokenAt:   t.Timestamp,
		})
	}

	// The archive write must survive the webhook's own deadline.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := s.records.SaveCallRecord(pctx, rec); err != nil {
		log.Error("call record save failed", "session_id", sess.SessionID, "err", err)
	}
}

// HandleSpeechEvent records the caller's utterance, generates a reply
// and answers with a document that speaks it. When every provider is
// down the fixed apology takes the reply's place so the call keeps
// flowing.
func (s *Service) HandleSpeechEvent(ctx context.Context, ev telephony.SpeechEvent) telephony.VoiceDocument {
	log := logger.From(ctx)
	unlock, ok := s.gate.acquire(ev.SessionID)
	if !ok {
		log.Info("speech event for unknown session", "session_id", ev.SessionID)
		return errorDocument()
	}
	sess, ok := s.registry.Get(ev.SessionID)
	if !ok {
		unlock()
		log.Info("speech event for unknown session", "session_id", ev.SessionID)
		return errorDocument()
	}

	text := strings.TrimSpace(ev.Text)
	if text == "" {
		// The gather timed out without speech. Re-invite instead of
		// recording an empty turn.
		unlock()
		return s.listeningDocument(sess)
	}

	conf := ev.Confidence
	s.history.Append(sess.SessionID, ConversationTurn{
		Role:       TurnUser,
		Content:    text,
		Timestamp:  s.clock().UTC(),
		Confidence: &conf,
	})
	transcript, _ := s.history.Snapshot(sess.SessionID)
	unlock()

	// Generation runs outside the session gate so a terminal event is
	// never stuck behind a slow provider.
	reply, err := s.replies.GenerateReply(ctx, response.Request{
		UserText:       text,
		History:        toMessages(transcript[:len(transcript)-1]),
		Purpose:        sess.Purpose,
		CustomerName:   sess.CustomerName,
		PromptOverride: sess.PromptOverride,
	})
	replyText := reply.Text
	if err != nil {
		log.Warn("reply generation failed, speaking apology", "session_id", sess.SessionID, "err", err)
		replyText = apologyLine
	} else {
		log.Debug("reply generated", "session_id", sess.SessionID, "provider", reply.Provider)
	}

	unlock, ok = s.gate.acquire(sess.SessionID)
	if !ok {
		// The call ended while the reply was being generated; the turn
		// is dropped with it.
		log.Debug("discarding reply for ended session", "session_id", sess.SessionID)
		return errorDocument()
	}
	defer unlock()
	if ok := s.history.Append(sess.SessionID, ConversationTurn{
		Role:      TurnAssistant,
		Content:   replyText,
		Timestamp: s.clock().UTC(),
	}); !ok {
		log.Debug("discarding reply for ended session", "session_id", sess.SessionID)
		return errorDocument()
	}
	return s.replyDocument(ctx, sess, replyText)
}

// ActiveSessions lists the live sessions, oldest first.
func (s *Service) ActiveSessions() []CallSession {
	return s.registry.Snapshot()
}

// History returns the transcript accumulated so far for a live session.
func (s *Service) History(sessionID string) ([]ConversationTurn, error) {
	turns, ok := s.history.Snapshot(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}
	return turns, nil
}

func (s *Service) greetingDocument(ctx context.Context, sess CallSession) telephony.VoiceDocument {
	doc := telephony.VoiceDocument{
		Kind:      telephony.DocumentGreeting,
		SpeakText: sess.InitialMessage,
		Voice:     s.gatewayVoice(sess),
		ActionURL: s.speechURL(sess.SessionID),
	}
	s.attachClip(ctx, sess, &doc)
	return doc
}

func (s *Service) listeningDocument(sess CallSession) telephony.VoiceDocument {
	return telephony.VoiceDocument{
		Kind:      telephony.DocumentListening,
		Voice:     s.gatewayVoice(sess),
		ActionURL: s.speechURL(sess.SessionID),
	}
}

func (s *Service) replyDocument(ctx context.Context, sess CallSession, text string) telephony.VoiceDocument {
	doc := telephony.VoiceDocument{
		Kind:      telephony.DocumentReply,
		SpeakText: text,
		Voice:     s.gatewayVoice(sess),
		ActionURL: s.speechURL(sess.SessionID),
	}
	s.attachClip(ctx, sess, &doc)
	return doc
}

func errorDocument() telephony.VoiceDocument {
	return telephony.VoiceDocument{Kind: telephony.DocumentError}
}

// attachClip swaps the spoken line for synthesized audio when a
// synthesizer is wired. On failure the document keeps its text and the
// gateway's built-in voice reads it.
func (s *Service) attachClip(ctx context.Context, sess CallSession, doc *telephony.VoiceDocument) {
	if s.synth == nil || s.clips == nil {
		return
	}
	clip, err := s.synth.Synthesize(ctx, doc.SpeakText, sess.VoiceProfile)
	if err != nil {
		logger.From(ctx).Debug("speech synthesis unavailable",
			"session_id", sess.SessionID, "err", err)
		return
	}
	doc.AudioURL = s.clipURL(s.clips.Put(clip))
}

// gatewayVoice picks the voice attribute for spoken text. The session's
// voice profile names a synthesizer voice, so it only rides the gateway
// attribute when no synthesizer is wired.
func (s *Service) gatewayVoice(sess CallSession) string {
	if s.synth != nil {
		return ""
	}
	return sess.VoiceProfile
}

func (s *Service) releaseSlot(ctx context.Context, log *slog.Logger) {
	if s.limiter == nil {
		return
	}
	if err := s.limiter.Release(ctx); err != nil {
		log.Warn("call slot release failed", "err", err)
	}
}

func (s *Service) statusURL(sessionID string) string {
	return s.publicBaseURL + telephony.StatusWebhookPath + "?" + sessionQuery(sessionID)
}

func (s *Service) speechURL(sessionID string) string {
	return s.publicBaseURL + telephony.SpeechWebhookPath + "?" + sessionQuery(sessionID)
}

func (s *Service) clipURL(clipID string) string {
	return s.publicBaseURL + telephony.ClipWebhookPath + "/" + clipID
}

func sessionQuery(sessionID string) string {
	return url.Values{telephony.SessionIDParam: {sessionID}}.Encode()
}

func toMessages(turns []ConversationTurn) []response.Message {
	if len(turns) == 0 {
		return nil
	}
	msgs := make([]response.Message, 0, len(turns))
	for _, t := range turns {
		role := response.RoleUser
		if t.Role == TurnAssistant {
			role = response.RoleAssistant
		}
		msgs = append(msgs, response.Message{Role: role, Content: t.Content})
	}
	return msgs
}
