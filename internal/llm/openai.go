package llm

import (
	"context"
	stderrors "errors"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/hpungsan/testsmith/internal/errors"
)

// OpenAIConfig configures the OpenAI chat completions client. BaseURL
// points it at any compatible endpoint.
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAI streams replies from a chat completions endpoint.
type OpenAI struct {
	client    openai.Client
	model     string
	maxTokens int64
}

func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	var opts []option.RequestOption
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &OpenAI{
		client:    openai.NewClient(opts...),
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}
}

func (o *OpenAI) Name() string { return o.model }

func (o *OpenAI) Stream(ctx context.Context, messages []Message) (Stream, error) {
	params, err := o.params(messages)
	if err != nil {
		return nil, err
	}
	chunks := o.client.Chat.Completions.NewStreaming(ctx, params)
	return newSDKStream[openai.ChatCompletionChunk](chunks, decodeOpenAIChunk), nil
}

func (o *OpenAI) params(messages []Message) (openai.ChatCompletionNewParams, error) {
	params := openai.ChatCompletionNewParams{
		Model: shared.ChatModel(o.model),
	}
	if o.maxTokens > 0 {
		params.MaxTokens = openai.Int(o.maxTokens)
	}

	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		case RoleUser:
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		case RoleAssistant:
			params.Messages = append(params.Messages, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{OfString: openai.String(m.Content)},
				},
			})
		default:
			return params, errors.NewStreamError(errors.ReasonInvalidRequest, stderrors.New("unknown message role "+string(m.Role)))
		}
	}
	if len(params.Messages) == 0 {
		return params, errors.NewStreamError(errors.ReasonInvalidRequest, stderrors.New("conversation is empty"))
	}
	return params, nil
}

func decodeOpenAIChunk(chunk openai.ChatCompletionChunk) (string, error) {
	if len(chunk.Choices) == 0 {
		return "", nil
	}
	choice := chunk.Choices[0]
	if choice.FinishReason == "content_filter" {
		return "", errors.NewStreamError(errors.ReasonOffTopic, stderrors.New("reply blocked by content filter"))
	}
	return choice.Delta.Content, nil
}
