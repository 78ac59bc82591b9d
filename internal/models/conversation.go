package models

import (
	"time"

	"gorm.io/datatypes"
)

type Mode string

const (
	ModeUserInitiated Mode = "user_initiated"
	ModeAIInitiated   Mode = "ai_initiated"
)

func (m Mode) Valid() bool {
	return m == ModeUserInitiated || m == ModeAIInitiated
}

type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

func (s Sender) Valid() bool {
	return s == SenderUser || s == SenderAI
}

// Conversation owns its messages; mode and created_at are written once.
type Conversation struct {
	ID        string    `gorm:"primaryKey;type:varchar(26)" json:"id"` // ULID length
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	Mode      Mode      `gorm:"<-:create;type:varchar(16);not null" json:"mode"`
	CreatedAt time.Time `gorm:"<-:create;index;not null" json:"created_at"`
	Messages  []Message `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages"`
}

func (Conversation) TableName() string { return "conversation" }

type Message struct {
	ID             uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(26);not null;index:idx_message_conversation_ts,priority:1" json:"conversation_id"`
	Sender         Sender    `gorm:"type:varchar(8);not null" json:"sender"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	Timestamp      time.Time `gorm:"not null;index:idx_message_conversation_ts,priority:2" json:"timestamp"`

	// nil when the message carries no follow-up suggestions
	Suggestions *datatypes.JSONSlice[string] `json:"suggestions"`
}

func (Message) TableName() string { return "message" }

// NewSuggestions returns nil for an empty list so the column stays NULL.
func NewSuggestions(items []string) *datatypes.JSONSlice[string] {
	if len(items) == 0 {
		return nil
	}
	s := datatypes.JSONSlice[string](append([]string(nil), items...))
	return &s
}

// SuggestionList returns the suggestions as a plain slice, nil when absent.
func (m Message) SuggestionList() []string {
	if m.Suggestions == nil {
		return nil
	}
	return []string(*m.Suggestions)
}
