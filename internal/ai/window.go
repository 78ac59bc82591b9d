package ai

import "fmt"

// Window bounds the history forwarded to the model.
//
// When a history is longer than Threshold, the first Head and the last Tail entries are kept
// verbatim and everything in between is replaced by a single system note
// "[N previous messages in the conversation]", N being the number of entries that precede
// the recent tail. Histories at or below Threshold pass through unchanged.
type Window struct {
	Threshold int
	Head      int
	Tail      int
}

func DefaultWindow() Window {
	return Window{Threshold: 8, Head: 2, Tail: 6}
}

// Reduce never mutates msgs.
func (w Window) Reduce(msgs []Message) []Message {
	n := len(msgs)
	if n <= w.Threshold || w.Head+w.Tail >= n {
		return msgs
	}

	out := make([]Message, 0, w.Head+1+w.Tail)
	out = append(out, msgs[:w.Head]...)
	out = append(out, Message{
		Role:    RoleSystem,
		Content: fmt.Sprintf("[%d previous messages in the conversation]", n-w.Tail),
	})
	out = append(out, msgs[n-w.Tail:]...)
	return out
}
