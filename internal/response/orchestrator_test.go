package response

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

type fakeProvider struct {
	id    string
	text  string
	err   error
	block bool

	calls      int
	lastSystem string
	lastMsgs   []Message
}

func (f *fakeProvider) ID() string { return f.id }

func (f *fakeProvider) Complete(ctx context.Context, system string, msgs []Message) (string, error) {
	f.calls++
	f.lastSystem = system
	f.lastMsgs = msgs
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if f.err != nil {
		return "", f.err
	}
	return f.text, nil
}

func trackerAt(cooldown time.Duration, now *time.Time) *HealthTracker {
	t := NewHealthTracker(cooldown)
	t.now = func() time.Time { return *now }
	return t
}

func TestOrchestrator_AutoPrefersFirstProvider(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	first := &fakeProvider{id: "anthropic", text: "Sure, confirmed."}
	second := &fakeProvider{id: "groq", text: "Got it, anything else?"}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{}, time.Second, trackerAt(5*time.Minute, &now))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	reply, err := o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if reply.Provider != "anthropic" || reply.Text != "Sure, confirmed." {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if second.calls != 0 {
		t.Fatalf("expected second provider untouched, got %d calls", second.calls)
	}
}

func TestOrchestrator_AutoFallsBackOnFailure(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tracker := trackerAt(5*time.Minute, &now)
	first := &fakeProvider{id: "anthropic", err: errors.New("boom")}
	second := &fakeProvider{id: "groq", text: "Got it, anything else?"}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{}, time.Second, tracker)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	reply, err := o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if reply.Provider != "groq" || reply.Text != "Got it, anything else?" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
	if tracker.Eligible("anthropic") {
		t.Fatalf("expected failed provider in cooldown")
	}
}

func TestOrchestrator_SkipsProviderInCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tracker := trackerAt(5*time.Minute, &now)
	first := &fakeProvider{id: "anthropic", err: errors.New("rate limited")}
	second := &fakeProvider{id: "groq", text: "ok"}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{}, time.Second, tracker)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if _, err := o.GenerateReply(context.Background(), Request{UserText: "one"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if first.calls != 1 {
		t.Fatalf("expected one attempt, got %d", first.calls)
	}

	// inside the cooldown the failed provider must not even be attempted
	now = now.Add(time.Minute)
	if _, err := o.GenerateReply(context.Background(), Request{UserText: "two"}); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if first.calls != 1 {
		t.Fatalf("expected no retry during cooldown, got %d calls", first.calls)
	}

	// once the cooldown elapses it gets one probe again
	now = now.Add(5 * time.Minute)
	first.err = nil
	first.text = "back"
	reply, err := o.GenerateReply(context.Background(), Request{UserText: "three"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if reply.Provider != "anthropic" || first.calls != 2 {
		t.Fatalf("expected recovered provider to answer: %+v calls=%d", reply, first.calls)
	}
	if !tracker.Status("anthropic").Available {
		t.Fatalf("expected success to restore availability")
	}
}

func TestOrchestrator_AllProvidersFail(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	first := &fakeProvider{id: "anthropic", err: errors.New("down")}
	second := &fakeProvider{id: "groq", err: errors.New("also down")}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{}, time.Second, trackerAt(5*time.Minute, &now))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, err = o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if !errors.Is(err, ErrAllProvidersUnavailable) {
		t.Fatalf("expected ErrAllProvidersUnavailable, got %v", err)
	}
}

func TestOrchestrator_EmptyReplyIsFailure(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tracker := trackerAt(5*time.Minute, &now)
	first := &fakeProvider{id: "anthropic", text: "   "}
	second := &fakeProvider{id: "groq", text: "real answer"}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{}, time.Second, tracker)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	reply, err := o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if reply.Provider != "groq" {
		t.Fatalf("expected fallback on blank reply, got %+v", reply)
	}
	if tracker.Eligible("anthropic") {
		t.Fatalf("expected blank reply to count as failure")
	}
}

func TestOrchestrator_TimeoutFailsOverToNextProvider(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	first := &fakeProvider{id: "anthropic", block: true}
	second := &fakeProvider{id: "groq", text: "fast answer"}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{}, 10*time.Millisecond, trackerAt(5*time.Minute, &now))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	reply, err := o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if reply.Provider != "groq" {
		t.Fatalf("expected timeout failover, got %+v", reply)
	}
}

func TestOrchestrator_CallerCancelLeavesHealthAlone(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tracker := trackerAt(5*time.Minute, &now)
	first := &fakeProvider{id: "anthropic", block: true}

	o, err := NewOrchestrator([]Provider{first}, Mode{}, time.Second, tracker)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := o.GenerateReply(ctx, Request{UserText: "hello"}); err == nil {
		t.Fatalf("expected error")
	}
	if !tracker.Eligible("anthropic") {
		t.Fatalf("caller cancellation must not penalize the provider")
	}
}

func TestOrchestrator_ForcedModeBypassesCooldown(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tracker := trackerAt(5*time.Minute, &now)
	tracker.MarkFailure("groq", errors.New("earlier outage"))

	first := &fakeProvider{id: "anthropic", text: "never used"}
	second := &fakeProvider{id: "groq", text: "pinned answer"}

	o, err := NewOrchestrator([]Provider{first, second}, Mode{ForcedProvider: "groq"}, time.Second, tracker)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	reply, err := o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if reply.Provider != "groq" || first.calls != 0 {
		t.Fatalf("expected pinned provider only: %+v firstCalls=%d", reply, first.calls)
	}
}

func TestOrchestrator_ForcedModeReturnsRawError(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	boom := errors.New("upstream exploded")
	pinned := &fakeProvider{id: "groq", err: boom}

	o, err := NewOrchestrator([]Provider{pinned}, Mode{ForcedProvider: "groq"}, time.Second, trackerAt(5*time.Minute, &now))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	_, err = o.GenerateReply(context.Background(), Request{UserText: "hello"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected raw provider error, got %v", err)
	}
	if errors.Is(err, ErrAllProvidersUnavailable) {
		t.Fatalf("forced mode must not report chain exhaustion")
	}
}

func TestOrchestrator_ForcedModeUnknownProviderRejectedAtBuild(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	_, err := NewOrchestrator([]Provider{&fakeProvider{id: "anthropic"}}, Mode{ForcedProvider: "nope"}, time.Second, trackerAt(5*time.Minute, &now))
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestOrchestrator_PassesHistoryAndSystemPrompt(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	p := &fakeProvider{id: "anthropic", text: "ok"}

	o, err := NewOrchestrator([]Provider{p}, Mode{}, time.Second, trackerAt(5*time.Minute, &now))
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	req := Request{
		UserText:     "Yes, tomorrow works",
		History:      []Message{{Role: RoleAssistant, Content: "Hello, this is a confirmation call"}},
		Purpose:      "order update",
		CustomerName: "Asha",
	}
	if _, err := o.GenerateReply(context.Background(), req); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	if len(p.lastMsgs) != 2 {
		t.Fatalf("expected history plus user turn, got %d", len(p.lastMsgs))
	}
	last := p.lastMsgs[len(p.lastMsgs)-1]
	if last.Role != RoleUser || last.Content != "Yes, tomorrow works" {
		t.Fatalf("expected trailing user turn, got %+v", last)
	}
	if !strings.Contains(p.lastSystem, "order update") || !strings.Contains(p.lastSystem, "Asha") {
		t.Fatalf("expected purpose and name in system prompt: %q", p.lastSystem)
	}
}

func TestOrchestrator_HealthInChainOrder(t *testing.T) {
	now := time.Unix(1700000000, 0).UTC()
	tracker := trackerAt(5*time.Minute, &now)
	tracker.MarkFailure("groq", errors.New("down"))

	o, err := NewOrchestrator([]Provider{
		&fakeProvider{id: "anthropic"},
		&fakeProvider{id: "groq"},
	}, Mode{}, time.Second, tracker)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	health := o.Health()
	if len(health) != 2 || health[0].Provider != "anthropic" || health[1].Provider != "groq" {
		t.Fatalf("unexpected health order: %+v", health)
	}
	if !health[0].Available || health[1].Available {
		t.Fatalf("unexpected availability: %+v", health)
	}
	if health[1].RetryAt == nil || !health[1].RetryAt.Equal(now.Add(5*time.Minute)) {
		t.Fatalf("unexpected retry time: %+v", health[1].RetryAt)
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("auto"); err != nil || m.IsForced() {
		t.Fatalf("expected auto, got %+v %v", m, err)
	}
	if m, err := ParseMode(""); err != nil || m.IsForced() {
		t.Fatalf("expected empty to mean auto, got %+v %v", m, err)
	}
	m, err := ParseMode("forced:groq")
	if err != nil || m.ForcedProvider != "groq" {
		t.Fatalf("expected forced groq, got %+v %v", m, err)
	}
	if _, err := ParseMode("forced:"); err == nil {
		t.Fatalf("expected error for empty forced id")
	}
	if _, err := ParseMode("manual"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}
