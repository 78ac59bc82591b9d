package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIProvider calls any OpenAI-compatible chat completions endpoint (Groq, vLLM, OpenAI).
type OpenAIProvider struct {
	client *openai.Client
	model  string
	params GenerationParams
}

func NewOpenAIProvider(baseURL, apiKey, model string, params GenerationParams) *OpenAIProvider {
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		// the adapter owns retries and the deadline
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		model:  model,
		params: params,
	}
}

func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages:    openai.F(make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))),
		Model:       openai.F(openai.ChatModel(p.model)),
		Temperature: openai.F(p.params.Temperature),
	}
	if p.params.MaxTokens > 0 {
		params.MaxTokens = openai.F(int64(p.params.MaxTokens))
	}
	for _, m := range messages {
		var msg openai.ChatCompletionMessageParamUnion
		switch m.Role {
		case RoleSystem:
			msg = openai.SystemMessage(m.Content)
		case RoleAssistant:
			msg = openai.AssistantMessage(m.Content)
		default:
			msg = openai.UserMessage(m.Content)
		}
		params.Messages.Value = append(params.Messages.Value, msg)
	}

	completion, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("openai: status %d: %w", apiErr.StatusCode, err)
		}
		return "", fmt.Errorf("openai: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("openai: empty response")
	}
	return completion.Choices[0].Message.Content, nil
}

// Warmup sends a one-token completion so servers that load models lazily (Ollama's /v1,
// vLLM) have the model resident before the first real request.
func (p *OpenAIProvider) Warmup(ctx context.Context) error {
	_, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  openai.F([]openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")}),
		Model:     openai.F(openai.ChatModel(p.model)),
		MaxTokens: openai.F(int64(1)),
	})
	if err != nil {
		return fmt.Errorf("openai warmup: %w", err)
	}
	return nil
}
