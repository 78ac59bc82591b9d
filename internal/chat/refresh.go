package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownEvent marks events that no handler understands; consumers dead-letter them.
var ErrUnknownEvent = errors.New("unknown event type")

func DecodeEvent(body []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.ConversationID == "" {
		return Event{}, errors.New("decode event: missing conversation_id")
	}
	return ev, nil
}

// Refresh brings the cached copy of the event's conversation up to date: writes re-render it,
// deletions drop it. A conversation deleted after the event was published is not an error.
func (s *Service) Refresh(ctx context.Context, ev Event) error {
	if s.cache == nil {
		return nil
	}
	switch ev.Type {
	case EventConversationDeleted:
		s.cache.Invalidate(ctx, ev.ConversationID)
		return nil
	case EventConversationCreated, EventMessageCreated, EventConversationRenamed:
		gen, fill := s.cache.Generation(ctx, ev.ConversationID)
		conv, err := s.repo.GetConversation(ctx, ev.ConversationID)
		if errors.Is(err, ErrNotFound) {
			s.cache.Invalidate(ctx, ev.ConversationID)
			return nil
		}
		if err != nil {
			return err
		}
		if fill {
			s.cache.SetConversation(ctx, conv, gen)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
}
