package chat

import (
	"context"
	"time"

	"github.com/suPer8Hu/chat-history/internal/models"
)

type seedTurn struct {
	after   time.Duration // offset from the conversation's creation
	sender  models.Sender
	content string
}

type seedConversation struct {
	title string
	mode  models.Mode
	age   time.Duration
	turns []seedTurn
}

var demoConversations = []seedConversation{
	{
		title: "Login problem",
		mode:  models.ModeUserInitiated,
		age:   48 * time.Hour,
		turns: []seedTurn{
			{0, models.SenderUser, "Hi, I can't log in to my account."},
			{time.Minute, models.SenderAI, "Hello! I'll help you with that. Can you describe what happens when you try?"},
			{2 * time.Minute, models.SenderUser, "It keeps saying my password is incorrect."},
			{3 * time.Minute, models.SenderAI, "Have you tried resetting your password? I can walk you through it."},
		},
	},
	{
		title: "AI conversation",
		mode:  models.ModeAIInitiated,
		age:   24 * time.Hour,
		turns: []seedTurn{
			{0, models.SenderAI, "Hello! I'm your AI assistant. How can I help you today?"},
			{5 * time.Minute, models.SenderUser, "Hi! Can you explain how artificial intelligence works?"},
			{6 * time.Minute, models.SenderAI, "Sure! AI systems learn patterns from data and use them to make predictions. Want me to go into more detail?"},
		},
	},
	{
		title: "Python help",
		mode:  models.ModeUserInitiated,
		age:   3 * time.Hour,
		turns: []seedTurn{
			{0, models.SenderUser, "How do I create a list in Python?"},
			{time.Minute, models.SenderAI, "Use square brackets: my_list = [1, 2, 3] or my_list = []"},
			{2 * time.Minute, models.SenderUser, "And how do I add an element?"},
			{3 * time.Minute, models.SenderAI, "Call append(): my_list.append('new_item')"},
		},
	},
}

// SeedDemo inserts three sample conversations with back-dated messages relative to now.
func SeedDemo(ctx context.Context, repo *Repo, now time.Time) ([]*models.Conversation, error) {
	out := make([]*models.Conversation, 0, len(demoConversations))
	for _, sc := range demoConversations {
		at := now.Add(-sc.age)
		r := repo.WithClock(func() time.Time { return at })

		conv, err := r.CreateConversation(ctx, sc.mode, sc.title)
		if err != nil {
			return out, err
		}
		for _, t := range sc.turns {
			at = now.Add(-sc.age + t.after)
			m, err := r.AddMessage(ctx, conv.ID, t.sender, t.content, nil)
			if err != nil {
				return out, err
			}
			conv.Messages = append(conv.Messages, *m)
		}
		out = append(out, conv)
	}
	return out, nil
}
