package response

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

const (
	defaultGroqModel   = "llama-3.3-70b-versatile"
	defaultGroqBaseURL = "https://api.groq.com/openai/v1"
)

// GroqProvider answers through Groq's OpenAI-compatible API. It sits
// second in the default chain and picks up requests when the primary is
// in cooldown.
type GroqProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewGroqProvider(apiKey, model, baseURL string, maxTokens int) (*GroqProvider, error) {
	if apiKey == "" {
		return nil, errors.New("response: groq api key required")
	}
	if model == "" {
		model = defaultGroqModel
	}
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	if maxTokens <= 0 {
		maxTokens = 256
	}

	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL

	return &GroqProvider{
		client:    openai.NewClientWithConfig(cfg),
		model:     model,
		maxTokens: maxTokens,
	}, nil
}

func (p *GroqProvider) ID() string { return "groq" }

func (p *GroqProvider) Complete(ctx context.Context, system string, msgs []Message) (string, error) {
	messages := make([]openai.ChatCompletionMessage, 0, len(msgs)+1)
	if system != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	for _, m := range msgs {
		role := openai.ChatMessageRoleUser
		if m.Role == RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     p.model,
		Messages:  messages,
		MaxTokens: p.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("groq: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("groq: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
