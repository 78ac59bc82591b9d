package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/suPer8Hu/chat-history/internal/ai"
	"github.com/suPer8Hu/chat-history/internal/models"
)

type recordingResponder struct {
	reply       string
	suggestions []string
	calls       int
	last        []models.Message
}

func (r *recordingResponder) GenerateResponse(ctx context.Context, history []models.Message) (string, []string) {
	r.calls++
	// copy to avoid mutations
	r.last = append([]models.Message(nil), history...)
	return r.reply, r.suggestions
}

type memCache struct {
	mu          sync.Mutex
	items       map[string]*models.Conversation
	gens        map[string]uint64
	invalidated []string
}

func newMemCache() *memCache {
	return &memCache{items: map[string]*models.Conversation{}, gens: map[string]uint64{}}
}

func (c *memCache) GetConversation(_ context.Context, id string) (*models.Conversation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conv, ok := c.items[id]
	return conv, ok
}

func (c *memCache) Generation(_ context.Context, id string) (uint64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[id], true
}

func (c *memCache) SetConversation(_ context.Context, conv *models.Conversation, gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[conv.ID] != gen {
		return
	}
	c.items[conv.ID] = conv
}

func (c *memCache) Invalidate(_ context.Context, id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[id]++
	delete(c.items, id)
	c.invalidated = append(c.invalidated, id)
}

// interleavedCache runs beforeFill once, after the database read and before the fill.
type interleavedCache struct {
	*memCache
	beforeFill func()
}

func (c *interleavedCache) SetConversation(ctx context.Context, conv *models.Conversation, gen uint64) {
	if f := c.beforeFill; f != nil {
		c.beforeFill = nil
		f()
	}
	c.memCache.SetConversation(ctx, conv, gen)
}

type recordingEvents struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (p *recordingEvents) Publish(_ context.Context, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if ev, ok := event.(Event); ok {
		p.events = append(p.events, ev)
	}
	return p.err
}

func (p *recordingEvents) types() []EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]EventType, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

func newTestService(t *testing.T, resp Responder, opts ...Option) (*Service, *Repo) {
	t.Helper()
	repo := NewRepo(openTestDB(t))
	return NewService(repo, resp, "Hello! How can I help?", opts...), repo
}

func TestStartConversation_Defaults(t *testing.T) {
	svc, _ := newTestService(t, &recordingResponder{})

	conv, err := svc.StartConversation(context.Background(), "", "  ")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if conv.Mode != models.ModeUserInitiated || conv.Title != DefaultTitle {
		t.Fatalf("unexpected defaults: mode=%q title=%q", conv.Mode, conv.Title)
	}
	if len(conv.Messages) != 0 {
		t.Fatalf("user_initiated should start empty, got %d messages", len(conv.Messages))
	}
}

func TestStartConversation_AIInitiatedGreets(t *testing.T) {
	events := &recordingEvents{}
	svc, repo := newTestService(t, &recordingResponder{}, WithEvents(events))

	conv, err := svc.StartConversation(context.Background(), models.ModeAIInitiated, "Welcome")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	msgs, err := repo.GetMessages(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Sender != models.SenderAI || msgs[0].Content != "Hello! How can I help?" {
		t.Fatalf("unexpected greeting: %+v", msgs)
	}

	got := events.types()
	if len(got) != 2 || got[0] != EventConversationCreated || got[1] != EventMessageCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestStartConversation_InvalidMode(t *testing.T) {
	svc, _ := newTestService(t, &recordingResponder{})

	if _, err := svc.StartConversation(context.Background(), "robot", "x"); !errors.Is(err, ErrInvalidMode) {
		t.Fatalf("expected ErrInvalidMode, got %v", err)
	}
}

func TestSendMessage_WritesUserAndAssistant(t *testing.T) {
	resp := &recordingResponder{reply: "ok", suggestions: []string{"Tell me more"}}
	events := &recordingEvents{}
	cache := newMemCache()
	svc, repo := newTestService(t, resp, WithEvents(events), WithCache(cache))
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, models.ModeUserInitiated, "t")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.GetConversation(ctx, conv.ID); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	msg, err := svc.SendMessage(ctx, conv.ID, "Hello")
	if err != nil {
		t.Fatalf("send message: %v", err)
	}
	if msg.Sender != models.SenderAI || msg.Content != "ok" || msg.ID == 0 {
		t.Fatalf("unexpected reply: %+v", msg)
	}
	if got := msg.SuggestionList(); len(got) != 1 || got[0] != "Tell me more" {
		t.Fatalf("unexpected suggestions: %v", got)
	}

	// responder saw the stored user message as the last history entry
	if resp.calls != 1 || len(resp.last) != 1 || resp.last[0].Content != "Hello" || resp.last[0].Sender != models.SenderUser {
		t.Fatalf("unexpected history: %+v", resp.last)
	}

	msgs, err := repo.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 || msgs[0].Sender != models.SenderUser || msgs[1].Sender != models.SenderAI {
		t.Fatalf("unexpected messages: %+v", msgs)
	}

	if _, ok := cache.GetConversation(ctx, conv.ID); ok {
		t.Fatalf("expected cache entry to be invalidated")
	}
	got := events.types()
	if len(got) != 3 || got[1] != EventMessageCreated || got[2] != EventMessageCreated {
		t.Fatalf("unexpected events: %v", got)
	}
}

func TestSendMessage_HistoryGrowsInOrder(t *testing.T) {
	resp := &recordingResponder{reply: "ok"}
	svc, _ := newTestService(t, resp)
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, models.ModeAIInitiated, "t")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	for _, text := range []string{"one", "two", "three"} {
		if _, err := svc.SendMessage(ctx, conv.ID, text); err != nil {
			t.Fatalf("send %q: %v", text, err)
		}
	}

	// greeting + 2 full exchanges + the third user message
	if len(resp.last) != 6 {
		t.Fatalf("expected 6 history entries, got %d", len(resp.last))
	}
	want := []models.Sender{models.SenderAI, models.SenderUser, models.SenderAI, models.SenderUser, models.SenderAI, models.SenderUser}
	for i, m := range resp.last {
		if m.Sender != want[i] {
			t.Fatalf("entry %d: sender %q, want %q", i, m.Sender, want[i])
		}
		if i > 0 && m.Timestamp.Before(resp.last[i-1].Timestamp) {
			t.Fatalf("entry %d out of order", i)
		}
	}
	if resp.last[5].Content != "three" {
		t.Fatalf("last entry should be the newest user message, got %q", resp.last[5].Content)
	}
}

func TestSendMessage_UnknownConversation(t *testing.T) {
	resp := &recordingResponder{reply: "ok"}
	svc, _ := newTestService(t, resp)

	_, err := svc.SendMessage(context.Background(), "01HZZZZZZZZZZZZZZZZZZZZZZZ", "hi")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if resp.calls != 0 {
		t.Fatalf("responder should not be called")
	}
}

func TestSendMessage_EmptyContent(t *testing.T) {
	svc, _ := newTestService(t, &recordingResponder{})

	if _, err := svc.SendMessage(context.Background(), "x", "   "); !errors.Is(err, ErrEmptyContent) {
		t.Fatalf("expected ErrEmptyContent, got %v", err)
	}
}

func TestSendMessage_IgnoresClientCancellation(t *testing.T) {
	svc, repo := newTestService(t, &recordingResponder{reply: "still here"})

	conv, err := svc.StartConversation(context.Background(), models.ModeUserInitiated, "t")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.SendMessage(ctx, conv.ID, "hi"); err != nil {
		t.Fatalf("send with cancelled ctx: %v", err)
	}
	msgs, err := repo.GetMessages(context.Background(), conv.ID)
	if err != nil || len(msgs) != 2 {
		t.Fatalf("expected both messages stored, got %d, %v", len(msgs), err)
	}
}

type unreachableProvider struct{ calls int }

func (p *unreachableProvider) Chat(context.Context, []ai.Message) (string, error) {
	p.calls++
	return "", errors.New("dial tcp 127.0.0.1:11434: connect: connection refused")
}

func TestSendMessage_PersistsFallbackOnCompletionFailure(t *testing.T) {
	provider := &unreachableProvider{}
	adapter := ai.NewAdapter("unreachable", provider, ai.WithFallback("FALLBACK"))
	svc, repo := newTestService(t, adapter)
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, models.ModeUserInitiated, "t")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	msg, err := svc.SendMessage(ctx, conv.ID, "anyone there?")
	if err != nil {
		t.Fatalf("send should succeed on completion failure: %v", err)
	}
	if provider.calls != 1 {
		t.Fatalf("expected one completion attempt, got %d", provider.calls)
	}
	if msg.Sender != models.SenderAI || msg.Content != "FALLBACK" {
		t.Fatalf("unexpected reply: %+v", msg)
	}

	msgs, err := repo.GetMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get messages: %v", err)
	}
	if len(msgs) != 2 || msgs[1].Sender != models.SenderAI || msgs[1].Content != "FALLBACK" {
		t.Fatalf("fallback not persisted: %+v", msgs)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	events := &recordingEvents{err: errors.New("broker down")}
	svc, _ := newTestService(t, &recordingResponder{reply: "ok"}, WithEvents(events))

	conv, err := svc.StartConversation(context.Background(), models.ModeUserInitiated, "t")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.SendMessage(context.Background(), conv.ID, "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
}

func TestGetConversation_ServedFromCache(t *testing.T) {
	cache := newMemCache()
	svc, repo := newTestService(t, &recordingResponder{}, WithCache(cache))
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, models.ModeUserInitiated, "cached")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.GetConversation(ctx, conv.ID); err != nil {
		t.Fatalf("get: %v", err)
	}

	// bypass the service so the cache entry stays
	if err := repo.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err := svc.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("expected cached copy, got %v", err)
	}
	if got.Title != "cached" {
		t.Fatalf("unexpected cached conversation: %+v", got)
	}
}

func TestGetConversation_WriteDuringFillIsNotCached(t *testing.T) {
	ctx := context.Background()

	t.Run("delete", func(t *testing.T) {
		cache := &interleavedCache{memCache: newMemCache()}
		svc, _ := newTestService(t, &recordingResponder{}, WithCache(cache))
		conv, err := svc.StartConversation(ctx, models.ModeUserInitiated, "doomed")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		cache.beforeFill = func() {
			if err := svc.DeleteConversation(ctx, conv.ID); err != nil {
				t.Fatalf("delete: %v", err)
			}
		}

		// the read itself predates the delete
		if _, err := svc.GetConversation(ctx, conv.ID); err != nil {
			t.Fatalf("first get: %v", err)
		}
		if _, err := svc.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound after delete, got %v", err)
		}
	})

	t.Run("rename", func(t *testing.T) {
		cache := &interleavedCache{memCache: newMemCache()}
		svc, _ := newTestService(t, &recordingResponder{}, WithCache(cache))
		conv, err := svc.StartConversation(ctx, models.ModeUserInitiated, "old")
		if err != nil {
			t.Fatalf("start: %v", err)
		}
		cache.beforeFill = func() {
			if _, err := svc.RenameConversation(ctx, conv.ID, "new"); err != nil {
				t.Fatalf("rename: %v", err)
			}
		}

		if _, err := svc.GetConversation(ctx, conv.ID); err != nil {
			t.Fatalf("first get: %v", err)
		}
		got, err := svc.GetConversation(ctx, conv.ID)
		if err != nil || got.Title != "new" {
			t.Fatalf("expected renamed conversation, got %+v, %v", got, err)
		}
	})
}

func TestDeleteAndRename(t *testing.T) {
	cache := newMemCache()
	events := &recordingEvents{}
	svc, _ := newTestService(t, &recordingResponder{}, WithCache(cache), WithEvents(events))
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, models.ModeUserInitiated, "before")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	if _, err := svc.RenameConversation(ctx, conv.ID, ""); !errors.Is(err, ErrEmptyTitle) {
		t.Fatalf("expected ErrEmptyTitle, got %v", err)
	}
	renamed, err := svc.RenameConversation(ctx, conv.ID, "after")
	if err != nil || renamed.Title != "after" {
		t.Fatalf("rename: %+v, %v", renamed, err)
	}

	if err := svc.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.GetConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := svc.DeleteConversation(ctx, conv.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}

	got := events.types()
	want := []EventType{EventConversationCreated, EventConversationRenamed, EventConversationDeleted}
	if len(got) != len(want) {
		t.Fatalf("unexpected events: %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("event %d: %q, want %q", i, got[i], want[i])
		}
	}
}

func TestRefresh(t *testing.T) {
	cache := newMemCache()
	svc, _ := newTestService(t, nil, WithCache(cache))
	ctx := context.Background()

	conv, err := svc.StartConversation(ctx, models.ModeAIInitiated, "r")
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	body := []byte(`{"type":"message.created","conversation_id":"` + conv.ID + `","message_id":1}`)
	ev, err := DecodeEvent(body)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if err := svc.Refresh(ctx, ev); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	cached, ok := cache.GetConversation(ctx, conv.ID)
	if !ok || len(cached.Messages) != 1 {
		t.Fatalf("expected cached conversation with greeting, got %+v", cached)
	}

	if err := svc.Refresh(ctx, Event{Type: EventConversationDeleted, ConversationID: conv.ID}); err != nil {
		t.Fatalf("refresh delete: %v", err)
	}
	if _, ok := cache.GetConversation(ctx, conv.ID); ok {
		t.Fatalf("expected entry dropped")
	}

	// conversation gone by the time the event arrives
	if err := svc.Refresh(ctx, Event{Type: EventMessageCreated, ConversationID: "01HZZZZZZZZZZZZZZZZZZZZZZZ"}); err != nil {
		t.Fatalf("refresh missing: %v", err)
	}

	if err := svc.Refresh(ctx, Event{Type: "conversation.archived", ConversationID: conv.ID}); !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected ErrUnknownEvent, got %v", err)
	}
	if _, err := DecodeEvent([]byte(`{"type":"message.created"}`)); err == nil {
		t.Fatalf("expected error for event without conversation id")
	}
}

func TestSeedDemo(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

	convs, err := SeedDemo(ctx, repo, now)
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if len(convs) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(convs))
	}

	list, err := repo.ListConversations(ctx, 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 || list[0].Title != "Python help" || list[2].Title != "Login problem" {
		t.Fatalf("unexpected order: %v, %v, %v", list[0].Title, list[1].Title, list[2].Title)
	}
	for _, c := range list {
		if !c.CreatedAt.Before(now) {
			t.Fatalf("%q is not back-dated: %v", c.Title, c.CreatedAt)
		}
		for i := 1; i < len(c.Messages); i++ {
			if !c.Messages[i].Timestamp.After(c.Messages[i-1].Timestamp) {
				t.Fatalf("%q: message %d not after %d", c.Title, i, i-1)
			}
		}
	}
}
