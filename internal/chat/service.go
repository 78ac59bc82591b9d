package chat

import (
	"context"
	"strings"
	"time"

	"github.com/suPer8Hu/chat-history/internal/models"
	"go.uber.org/zap"
)

const DefaultTitle = "New Conversation"

// Responder produces the AI reply for an ordered history. Implementations absorb
// upstream failures and always return some text.
type Responder interface {
	GenerateResponse(ctx context.Context, history []models.Message) (text string, suggestions []string)
}

// Cache holds rendered conversations for GET requests. Fills are conditional: a reader
// takes the generation before reading the database and SetConversation drops the entry
// if an Invalidate happened in between.
type Cache interface {
	GetConversation(ctx context.Context, id string) (*models.Conversation, bool)
	// Generation returns the current invalidation counter for id. ok is false when the
	// cache cannot tell, in which case the caller must not fill.
	Generation(ctx context.Context, id string) (gen uint64, ok bool)
	SetConversation(ctx context.Context, conv *models.Conversation, gen uint64)
	Invalidate(ctx context.Context, id string)
}

// EventPublisher receives conversation lifecycle events after the write committed.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

type EventType string

const (
	EventConversationCreated EventType = "conversation.created"
	EventMessageCreated      EventType = "message.created"
	EventConversationRenamed EventType = "conversation.renamed"
	EventConversationDeleted EventType = "conversation.deleted"
)

type Event struct {
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
	MessageID      uint64    `json:"message_id,omitempty"`
	Sender         string    `json:"sender,omitempty"`
	At             time.Time `json:"at"`
}

func (e Event) Kind() string { return string(e.Type) }

type Service struct {
	repo      *Repo
	responder Responder
	greeting  string
	cache     Cache
	events    EventPublisher
	log       *zap.Logger
}

type Option func(*Service)

func WithCache(c Cache) Option { return func(s *Service) { s.cache = c } }

func WithEvents(p EventPublisher) Option { return func(s *Service) { s.events = p } }

func WithLogger(l *zap.Logger) Option { return func(s *Service) { s.log = l } }

func NewService(repo *Repo, responder Responder, greeting string, opts ...Option) *Service {
	s := &Service{
		repo:      repo,
		responder: responder,
		greeting:  greeting,
		log:       zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// StartConversation creates a conversation. ai_initiated conversations are stored
// together with the greeting message.
func (s *Service) StartConversation(ctx context.Context, mode models.Mode, title string) (*models.Conversation, error) {
	if mode == "" {
		mode = models.ModeUserInitiated
	}
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	if strings.TrimSpace(title) == "" {
		title = DefaultTitle
	}

	var opening []models.Message
	if mode == models.ModeAIInitiated {
		opening = append(opening, models.Message{Sender: models.SenderAI, Content: s.greeting})
	}

	conv, err := s.repo.CreateConversation(ctx, mode, title, opening...)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, Event{Type: EventConversationCreated, ConversationID: conv.ID, At: conv.CreatedAt})
	for _, m := range conv.Messages {
		s.publish(ctx, Event{Type: EventMessageCreated, ConversationID: conv.ID, MessageID: m.ID, Sender: string(m.Sender), At: m.Timestamp})
	}
	return conv, nil
}

func (s *Service) ListConversations(ctx context.Context, offset, limit int) ([]models.Conversation, error) {
	return s.repo.ListConversations(ctx, offset, limit)
}

func (s *Service) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	if s.cache == nil {
		return s.repo.GetConversation(ctx, id)
	}
	if conv, ok := s.cache.GetConversation(ctx, id); ok {
		return conv, nil
	}
	gen, fill := s.cache.Generation(ctx, id)
	conv, err := s.repo.GetConversation(ctx, id)
	if err != nil {
		return nil, err
	}
	if fill {
		s.cache.SetConversation(ctx, conv, gen)
	}
	return conv, nil
}

// SendMessage stores the user message, asks the responder for a reply over the full
// history and stores that reply. The two writes are separate transactions; none is held
// open during the completion call. Client cancellation does not abort a started send.
func (s *Service) SendMessage(ctx context.Context, conversationID, content string) (*models.Message, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyContent
	}
	ctx = context.WithoutCancel(ctx)

	// 1) store user message
	userMsg, err := s.repo.AddMessage(ctx, conversationID, models.SenderUser, content, nil)
	if err != nil {
		return nil, err
	}
	s.afterAppend(ctx, userMsg)

	// 2) full ordered history, including the message just stored
	history, err := s.repo.GetMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	// 3) completion
	start := time.Now()
	reply, suggestions := s.responder.GenerateResponse(ctx, history)
	s.log.Debug("reply generated",
		zap.String("conversation_id", conversationID),
		zap.Int("history", len(history)),
		zap.Duration("cost", time.Since(start)),
	)

	// 4) store assistant message
	aiMsg, err := s.repo.AddMessage(ctx, conversationID, models.SenderAI, reply, suggestions)
	if err != nil {
		return nil, err
	}
	s.afterAppend(ctx, aiMsg)
	return aiMsg, nil
}

func (s *Service) DeleteConversation(ctx context.Context, id string) error {
	if err := s.repo.DeleteConversation(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, Event{Type: EventConversationDeleted, ConversationID: id, At: time.Now().UTC()})
	return nil
}

func (s *Service) RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	if strings.TrimSpace(title) == "" {
		return nil, ErrEmptyTitle
	}
	conv, err := s.repo.RenameConversation(ctx, id, title)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	s.publish(ctx, Event{Type: EventConversationRenamed, ConversationID: id, At: time.Now().UTC()})
	return conv, nil
}

func (s *Service) afterAppend(ctx context.Context, m *models.Message) {
	s.invalidate(ctx, m.ConversationID)
	s.publish(ctx, Event{
		Type:           EventMessageCreated,
		ConversationID: m.ConversationID,
		MessageID:      m.ID,
		Sender:         string(m.Sender),
		At:             m.Timestamp,
	})
}

func (s *Service) invalidate(ctx context.Context, id string) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, id)
	}
}

// publish is best effort: the write already committed.
func (s *Service) publish(ctx context.Context, ev Event) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, ev); err != nil {
		s.log.Warn("publish event failed",
			zap.String("type", string(ev.Type)),
			zap.String("conversation_id", ev.ConversationID),
			zap.Error(err),
		)
	}
}
