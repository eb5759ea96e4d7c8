package llm

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/hpungsan/testsmith/internal/errors"
)

// AnthropicConfig configures the Anthropic Messages API client.
type AnthropicConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// Anthropic streams replies from the Anthropic Messages API.
type Anthropic struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// NewAnthropic creates an Anthropic model. An empty APIKey falls back to
// the SDK's own environment lookup.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client:    anthropic.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (a *Anthropic) Name() string { return a.model }

func (a *Anthropic) Stream(ctx context.Context, messages []Message) (Stream, error) {
	params, err := a.params(messages)
	if err != nil {
		return nil, err
	}
	events := a.client.Messages.NewStreaming(ctx, params)
	return newSDKStream[anthropic.MessageStreamEventUnion](events, decodeAnthropicEvent), nil
}

func (a *Anthropic) params(messages []Message) (anthropic.MessageNewParams, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: a.maxTokens,
	}
	for _, m := range coalesce(messages) {
		switch m.Role {
		case RoleSystem:
			params.System = append(params.System, anthropic.TextBlockParam{Text: m.Content})
		case RoleUser, RoleAssistant:
			params.Messages = append(params.Messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRole(m.Role),
				Content: []anthropic.ContentBlockParamUnion{
					{OfText: &anthropic.TextBlockParam{Text: m.Content}},
				},
			})
		default:
			return params, errors.NewStreamError(errors.ReasonInvalidRequest, stderrors.New("unknown message role "+string(m.Role)))
		}
	}
	if len(params.Messages) == 0 {
		return params, errors.NewStreamError(errors.ReasonInvalidRequest, stderrors.New("conversation has no user message"))
	}
	return params, nil
}

func decodeAnthropicEvent(event anthropic.MessageStreamEventUnion) (string, error) {
	switch event.Type {
	case "content_block_delta":
		return event.Delta.Text, nil
	case "message_delta":
		if event.Delta.StopReason == "refusal" {
			return "", errors.NewStreamError(errors.ReasonOffTopic, stderrors.New("model refused the request"))
		}
	}
	return "", nil
}

// coalesce merges adjacent messages that share a role. The Messages API
// rejects consecutive turns from the same author.
func coalesce(messages []Message) []Message {
	out := make([]Message, 0, len(messages))
	for _, m := range messages {
		if n := len(out); n > 0 && out[n-1].Role == m.Role && m.Role != RoleSystem {
			out[n-1].Content = strings.TrimRight(out[n-1].Content, "\n") + "\n\n" + m.Content
			continue
		}
		out = append(out, m)
	}
	return out
}
