package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/suPer8Hu/chat-history/internal/config"
	"github.com/suPer8Hu/chat-history/internal/models"
	"go.uber.org/zap"
)

var errEmptyReply = errors.New("empty completion")

// Adapter turns stored history into a prompt, calls its Provider once and
// parses the reply. It never fails: upstream errors become the fallback text.
type Adapter struct {
	name     string
	provider Provider
	persona  string
	window   Window
	timeout  time.Duration
	fallback string
	loading  string
	warmup   *WarmupTask
	suggest  SuggestionExtractor
	log      *zap.Logger
}

type AdapterOption func(*Adapter)

func WithPersona(p string) AdapterOption { return func(a *Adapter) { a.persona = p } }

func WithWindow(w Window) AdapterOption { return func(a *Adapter) { a.window = w } }

func WithTimeout(d time.Duration) AdapterOption { return func(a *Adapter) { a.timeout = d } }

func WithFallback(text string) AdapterOption { return func(a *Adapter) { a.fallback = text } }

// WithWarmup gates completions on t.Ready(); until then loadingText is returned.
func WithWarmup(t *WarmupTask, loadingText string) AdapterOption {
	return func(a *Adapter) {
		a.warmup = t
		a.loading = loadingText
	}
}

func WithSuggestions(e SuggestionExtractor) AdapterOption {
	return func(a *Adapter) { a.suggest = e }
}

func WithAdapterLogger(l *zap.Logger) AdapterOption { return func(a *Adapter) { a.log = l } }

func NewAdapter(name string, p Provider, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		name:     name,
		provider: p,
		persona:  config.DefaultPersona,
		window:   DefaultWindow(),
		timeout:  30 * time.Second,
		fallback: config.DefaultFallback,
		log:      zap.NewNop(),
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Adapter) Name() string { return a.name }

// Ready reports whether the backing model finished warming up.
func (a *Adapter) Ready() bool {
	return a.warmup == nil || a.warmup.Ready()
}

// Prompt returns the exact message list sent to the provider for history.
func (a *Adapter) Prompt(history []models.Message) []Message {
	persona := a.persona
	if a.suggest != nil {
		if hint := a.suggest.Instruction(); hint != "" {
			persona = persona + "\n\n" + hint
		}
	}
	return BuildPrompt(persona, history, a.window)
}

func (a *Adapter) GenerateResponse(ctx context.Context, history []models.Message) (string, []string) {
	if !a.Ready() {
		a.log.Info("model not ready, returning loading text", zap.String("adapter", a.name))
		return a.loading, nil
	}

	msgs := a.Prompt(history)

	cctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	reply, err := a.provider.Chat(cctx, msgs)
	if err == nil && strings.TrimSpace(reply) == "" {
		err = errEmptyReply
	}
	if err != nil {
		a.log.Warn("completion failed, returning fallback text",
			zap.String("adapter", a.name),
			zap.Bool("fallback", true),
			zap.Bool("timeout", errors.Is(err, context.DeadlineExceeded)),
			zap.Int("prompt_messages", len(msgs)),
			zap.Duration("cost", time.Since(start)),
			zap.Error(err),
		)
		return a.fallback, nil
	}

	if a.suggest == nil {
		return reply, nil
	}
	text, suggestions := a.suggest.Extract(reply)
	if strings.TrimSpace(text) == "" {
		// reply was nothing but a list; keep it whole
		return reply, nil
	}
	return text, suggestions
}
