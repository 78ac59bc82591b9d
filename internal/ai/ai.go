package ai

import "context"

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one role-tagged prompt entry.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Provider is the transport to one completion backend. It returns the text of the
// first completion or an error; fallback handling lives in Adapter.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (string, error)
}

// GenerationParams bound every completion request.
type GenerationParams struct {
	Temperature float64
	MaxTokens   int
}
