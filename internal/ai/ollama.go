package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaProvider talks to a local Ollama daemon over its native /api/chat endpoint.
type OllamaProvider struct {
	BaseURL   string
	Model     string
	Params    GenerationParams
	KeepAlive string
	Client    *http.Client
}

func NewOllamaProvider(baseURL, model string, params GenerationParams) *OllamaProvider {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "qwen2.5:1.5b"
	}
	return &OllamaProvider{
		BaseURL:   strings.TrimRight(baseURL, "/"),
		Model:     model,
		Params:    params,
		KeepAlive: "10m",
		// first request after a cold start loads the model, which can take minutes
		Client: &http.Client{Timeout: 5 * time.Minute},
	}
}

type ollamaMsg struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ollamaOptions struct {
	Temperature float64 `json:"temperature"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type ollamaChatReq struct {
	Model     string         `json:"model"`
	Messages  []ollamaMsg    `json:"messages"`
	Stream    bool           `json:"stream"`
	Options   *ollamaOptions `json:"options,omitempty"`
	KeepAlive string         `json:"keep_alive,omitempty"`
}

type ollamaChatResp struct {
	Message ollamaMsg `json:"message"`
	Error   string    `json:"error,omitempty"`
}

type ollamaGenerateReq struct {
	Model     string `json:"model"`
	KeepAlive string `json:"keep_alive,omitempty"`
}

func (p *OllamaProvider) Chat(ctx context.Context, messages []Message) (string, error) {
	reqBody := ollamaChatReq{
		Model:     p.Model,
		Stream:    false,
		KeepAlive: p.KeepAlive,
		Options:   &ollamaOptions{Temperature: p.Params.Temperature, NumPredict: p.Params.MaxTokens},
		Messages:  make([]ollamaMsg, 0, len(messages)),
	}
	for _, m := range messages {
		reqBody.Messages = append(reqBody.Messages, ollamaMsg{Role: m.Role, Content: m.Content})
	}

	var decoded ollamaChatResp
	if err := p.post(ctx, "/api/chat", reqBody, &decoded); err != nil {
		return "", err
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("ollama: %s", decoded.Error)
	}
	return decoded.Message.Content, nil
}

// Warmup asks Ollama to load the model into memory without generating anything.
func (p *OllamaProvider) Warmup(ctx context.Context) error {
	var decoded struct {
		Error string `json:"error,omitempty"`
	}
	if err := p.post(ctx, "/api/generate", ollamaGenerateReq{Model: p.Model, KeepAlive: p.KeepAlive}, &decoded); err != nil {
		return err
	}
	if decoded.Error != "" {
		return fmt.Errorf("ollama: %s", decoded.Error)
	}
	return nil
}

func (p *OllamaProvider) post(ctx context.Context, path string, body, out any) error {
	if p.Client == nil {
		return errors.New("ollama: http client is nil")
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
		return fmt.Errorf("ollama: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
