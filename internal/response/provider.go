package response

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Reply generation across a prioritized chain of model providers.
//
// Providers return plain text only. Conversation state, persistence, and
// document rendering belong to the session layer; adapters must not leak
// vendor types past this boundary.

// Role tags who said a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one prior turn handed to a provider as context.
type Message struct {
	Role    Role
	Content string
}

// Request is everything needed to produce one reply.
type Request struct {
	// UserText is the utterance being answered.
	UserText string

	// History is the prior conversation, oldest first, not including
	// UserText.
	History []Message

	// Purpose and CustomerName shape the default system prompt.
	Purpose      string
	CustomerName string

	// PromptOverride replaces the default system prompt entirely when set.
	PromptOverride string
}

// Reply is a generated answer and the provider that produced it.
type Reply struct {
	Text     string
	Provider string
}

// Provider is one model backend in the chain.
type Provider interface {
	// ID is a stable lowercase identifier ("anthropic", "groq").
	ID() string

	// Complete returns the model's reply text for the conversation.
	// Implementations honor ctx cancellation and never return an empty
	// string alongside a nil error.
	Complete(ctx context.Context, system string, msgs []Message) (string, error)
}

// ErrAllProvidersUnavailable reports that every eligible provider in the
// chain failed or was skipped for this request.
var ErrAllProvidersUnavailable = errors.New("response: all providers unavailable")

// Mode selects how the chain is consulted.
type Mode struct {
	// ForcedProvider pins every request to one provider id, skipping
	// eligibility checks. Empty means automatic priority-order selection.
	ForcedProvider string
}

func (m Mode) IsForced() bool { return m.ForcedProvider != "" }

// ParseMode accepts "auto" or "forced:<provider-id>". Empty input means
// auto.
func ParseMode(s string) (Mode, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "auto" {
		return Mode{}, nil
	}
	if id, ok := strings.CutPrefix(s, "forced:"); ok {
		id = strings.TrimSpace(id)
		if id == "" {
			return Mode{}, errors.New("response: forced mode requires a provider id")
		}
		return Mode{ForcedProvider: id}, nil
	}
	return Mode{}, fmt.Errorf("response: invalid mode %q", s)
}
