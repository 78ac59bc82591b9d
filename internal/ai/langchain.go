package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// LangChainProvider routes completions through langchaingo's OpenAI-compatible client,
// typically pointed at a local llama.cpp or Ollama /v1 endpoint.
type LangChainProvider struct {
	llm    *openai.LLM
	params GenerationParams
}

func NewLangChainProvider(baseURL, token, model string, params GenerationParams) (*LangChainProvider, error) {
	if token == "" {
		// local servers ignore it but the client refuses an empty one
		token = "unused"
	}
	opts := []openai.Option{openai.WithToken(token), openai.WithModel(model)}
	if baseURL != "" {
		opts = append(opts, openai.WithBaseURL(baseURL))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("langchain: %w", err)
	}
	return &LangChainProvider{llm: llm, params: params}, nil
}

func (p *LangChainProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		t := schema.ChatMessageTypeHuman
		switch m.Role {
		case RoleSystem:
			t = schema.ChatMessageTypeSystem
		case RoleAssistant:
			t = schema.ChatMessageTypeAI
		}
		content = append(content, llms.TextParts(t, m.Content))
	}

	opts := []llms.CallOption{llms.WithTemperature(p.params.Temperature)}
	if p.params.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(p.params.MaxTokens))
	}
	resp, err := p.llm.GenerateContent(ctx, content, opts...)
	if err != nil {
		return "", fmt.Errorf("langchain: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("langchain: empty response")
	}
	return resp.Choices[0].Content, nil
}
