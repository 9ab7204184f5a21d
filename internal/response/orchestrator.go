package response

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"voiceagent-platform/pkg/logger"
)

// Orchestrator walks the provider chain to produce one reply.
//
// Priority:
//  1) Forced mode: the pinned provider only, cooldown ignored.
//  2) Auto mode: providers in configured order, skipping any in cooldown.
//
// Attempt outcomes always feed the health tracker; skips never do, so a
// provider sitting in cooldown is not penalized further.
type Orchestrator struct {
	providers []Provider
	byID      map[string]Provider
	mode      Mode
	timeout   time.Duration
	health    *HealthTracker
}

func NewOrchestrator(providers []Provider, mode Mode, timeout time.Duration, health *HealthTracker) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, errors.New("response: at least one provider required")
	}
	if health == nil {
		return nil, errors.New("response: health tracker required")
	}

	byID := make(map[string]Provider, len(providers))
	for _, p := range providers {
		id := p.ID()
		if id == "" {
			return nil, errors.New("response: provider with empty id")
		}
		if _, dup := byID[id]; dup {
			return nil, fmt.Errorf("response: duplicate provider id %q", id)
		}
		byID[id] = p
	}
	if mode.IsForced() {
		if _, ok := byID[mode.ForcedProvider]; !ok {
			return nil, fmt.Errorf("response: forced provider %q not configured", mode.ForcedProvider)
		}
	}

	return &Orchestrator{
		providers: providers,
		byID:      byID,
		mode:      mode,
		timeout:   timeout,
		health:    health,
	}, nil
}

// GenerateReply produces the next assistant turn for req.
func (o *Orchestrator) GenerateReply(ctx context.Context, req Request) (Reply, error) {
	if strings.TrimSpace(req.UserText) == "" {
		return Reply{}, errors.New("response: user text required")
	}

	log := logger.From(ctx)
	system := systemPrompt(req)
	msgs := make([]Message, 0, len(req.History)+1)
	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: req.UserText})

	// 1) Forced mode
	if o.mode.IsForced() {
		p, ok := o.byID[o.mode.ForcedProvider]
		if !ok {
			return Reply{}, fmt.Errorf("response: forced provider %q not configured", o.mode.ForcedProvider)
		}
		text, err := o.attempt(ctx, p, system, msgs)
		if err != nil {
			o.health.MarkFailure(p.ID(), err)
			log.Warn("forced provider failed", "provider", p.ID(), "err", err)
			return Reply{}, fmt.Errorf("response: provider %s: %w", p.ID(), err)
		}
		o.health.MarkSuccess(p.ID())
		return Reply{Text: text, Provider: p.ID()}, nil
	}

	// 2) Auto mode
	var attempted, skipped int
	for _, p := range o.providers {
		if !o.health.Eligible(p.ID()) {
			skipped++
			continue
		}

		attempted++
		text, err := o.attempt(ctx, p, system, msgs)
		if err != nil {
			// A dead caller is not a provider failure; leave health alone.
			if ctx.Err() != nil {
				return Reply{}, fmt.Errorf("response: %w", ctx.Err())
			}
			o.health.MarkFailure(p.ID(), err)
			log.Warn("provider attempt failed", "provider", p.ID(), "err", err)
			continue
		}
		o.health.MarkSuccess(p.ID())
		return Reply{Text: text, Provider: p.ID()}, nil
	}

	log.Warn("no provider produced a reply", "attempted", attempted, "in_cooldown", skipped)
	return Reply{}, fmt.Errorf("%w (attempted %d, in cooldown %d)", ErrAllProvidersUnavailable, attempted, skipped)
}

func (o *Orchestrator) attempt(ctx context.Context, p Provider, system string, msgs []Message) (string, error) {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}
	text, err := p.Complete(ctx, system, msgs)
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("empty reply")
	}
	return text, nil
}

// Health reports provider states in chain priority order.
func (o *Orchestrator) Health() []ProviderHealth {
	out := make([]ProviderHealth, 0, len(o.providers))
	for _, p := range o.providers {
		out = append(out, o.health.Status(p.ID()))
	}
	return out
}
