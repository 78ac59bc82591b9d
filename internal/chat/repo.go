package chat

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/suPer8Hu/chat-history/internal/common"
	"github.com/suPer8Hu/chat-history/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNotFound     = errors.New("conversation not found")
	ErrInvalidMode  = errors.New("invalid conversation mode")
	ErrInvalidPage  = errors.New("offset and limit must be non-negative")
	ErrEmptyContent = errors.New("message content is empty")
	ErrEmptyTitle   = errors.New("conversation title is empty")
	errBadSender    = errors.New("invalid message sender")
)

// Repo is the conversation history store. Every call runs in its own transaction.
type Repo struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// WithClock returns a copy of r stamping rows with now(). Used for back-dated imports.
func (r *Repo) WithClock(now func() time.Time) *Repo {
	cp := *r
	cp.now = func() time.Time { return now().UTC() }
	return &cp
}

func messagesAsc(db *gorm.DB) *gorm.DB {
	return db.Order("timestamp ASC").Order("id ASC")
}

// CreateConversation inserts a conversation with a fresh ULID. Opening messages, if any,
// are written in the same transaction so the conversation is never visible without them.
func (r *Repo) CreateConversation(ctx context.Context, mode models.Mode, title string, opening ...models.Message) (*models.Conversation, error) {
	if !mode.Valid() {
		return nil, ErrInvalidMode
	}
	id, err := common.NewULID()
	if err != nil {
		return nil, fmt.Errorf("new conversation id: %w", err)
	}

	now := r.now()
	conv := &models.Conversation{
		ID:        id,
		Title:     title,
		Mode:      mode,
		CreatedAt: now,
	}
	msgs := make([]models.Message, 0, len(opening))
	for _, m := range opening {
		if !m.Sender.Valid() {
			return nil, errBadSender
		}
		msgs = append(msgs, models.Message{
			ConversationID: id,
			Sender:         m.Sender,
			Content:        m.Content,
			Timestamp:      now,
			Suggestions:    m.Suggestions,
		})
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(conv).Error; err != nil {
			return err
		}
		if len(msgs) > 0 {
			return tx.Create(&msgs).Error
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create conversation: %w", err)
	}
	conv.Messages = msgs
	return conv, nil
}

func (r *Repo) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("Messages", messagesAsc).
			Where("id = ?", id).
			First(&conv).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	normalize(&conv)
	return &conv, nil
}

// ListConversations returns a page of conversations, newest first, messages included.
func (r *Repo) ListConversations(ctx context.Context, offset, limit int) ([]models.Conversation, error) {
	if offset < 0 || limit < 0 {
		return nil, ErrInvalidPage
	}
	convs := make([]models.Conversation, 0)
	if limit == 0 {
		return convs, nil
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Preload("Messages", messagesAsc).
			Order("created_at DESC").
			Order("id DESC").
			Offset(offset).
			Limit(limit).
			Find(&convs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	for i := range convs {
		normalize(&convs[i])
	}
	return convs, nil
}

func (r *Repo) ConversationExists(ctx context.Context, id string) (bool, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Model(&models.Conversation{}).
			Where("id = ?", id).
			Count(&n).Error
	})
	if err != nil {
		return false, fmt.Errorf("count conversation: %w", err)
	}
	return n > 0, nil
}

// AddMessage appends a message. The conversation row is locked for the duration of the
// transaction and the timestamp never goes below the latest one already stored, so readers
// always see a non-decreasing sequence.
func (r *Repo) AddMessage(ctx context.Context, conversationID string, sender models.Sender, content string, suggestions []string) (*models.Message, error) {
	if !sender.Valid() {
		return nil, errBadSender
	}

	msg := &models.Message{
		ConversationID: conversationID,
		Sender:         sender,
		Content:        content,
		Suggestions:    models.NewSuggestions(suggestions),
	}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", conversationID).
			First(&conv).Error; err != nil {
			return err
		}

		ts := r.now()
		var last models.Message
		if err := tx.Select("id", "timestamp").
			Where("conversation_id = ?", conversationID).
			Order("timestamp DESC").
			Order("id DESC").
			Limit(1).
			Find(&last).Error; err != nil {
			return err
		}
		if last.ID != 0 && last.Timestamp.After(ts) {
			ts = last.Timestamp
		}
		msg.Timestamp = ts

		return tx.Create(msg).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("add message: %w", err)
	}
	return msg, nil
}

// GetMessages returns the conversation's messages oldest first. Unknown ids yield an empty slice.
func (r *Repo) GetMessages(ctx context.Context, conversationID string) ([]models.Message, error) {
	msgs := make([]models.Message, 0)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return messagesAsc(tx.Where("conversation_id = ?", conversationID)).Find(&msgs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("get messages: %w", err)
	}
	return msgs, nil
}

// DeleteConversation removes the messages and then the conversation, atomically.
func (r *Repo) DeleteConversation(ctx context.Context, id string) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", id).Delete(&models.Message{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&models.Conversation{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (r *Repo) RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// lock first: MySQL reports 0 affected rows when the title is unchanged
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).
			First(&conv).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Conversation{}).
			Where("id = ?", id).
			Update("title", title).Error; err != nil {
			return err
		}
		return tx.Preload("Messages", messagesAsc).
			Where("id = ?", id).
			First(&conv).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("rename conversation: %w", err)
	}
	normalize(&conv)
	return &conv, nil
}

func normalize(c *models.Conversation) {
	if c.Messages == nil {
		c.Messages = []models.Message{}
	}
}
