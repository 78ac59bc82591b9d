package ai

import "github.com/suPer8Hu/chat-history/internal/models"

func roleFor(s models.Sender) string {
	if s == models.SenderUser {
		return RoleUser
	}
	return RoleAssistant
}

// BuildPrompt maps stored history to role-tagged entries, applies the window and
// prepends the persona as the single leading system entry.
func BuildPrompt(persona string, history []models.Message, w Window) []Message {
	turns := make([]Message, 0, len(history))
	for _, m := range history {
		turns = append(turns, Message{Role: roleFor(m.Sender), Content: m.Content})
	}
	turns = w.Reduce(turns)

	out := make([]Message, 0, len(turns)+1)
	out = append(out, Message{Role: RoleSystem, Content: persona})
	return append(out, turns...)
}
