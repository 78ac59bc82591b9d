package ai

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// SuggestionExtractor splits follow-up suggestions off a model reply.
type SuggestionExtractor interface {
	// Instruction is appended to the persona so the model knows the expected shape.
	Instruction() string
	// Extract returns the reply without the suggestion block and the suggestion items.
	// When no block is found it returns reply unchanged and nil.
	Extract(reply string) (string, []string)
}

var suggestionHeading = regexp.MustCompile(`(?i)^\W*suggest(ion|ed)s?\b`)

// MarkdownSuggestions recognizes a trailing markdown list introduced by a
// "Suggestions:" paragraph or heading.
type MarkdownSuggestions struct {
	md    goldmark.Markdown
	limit int
}

func NewMarkdownSuggestions(limit int) *MarkdownSuggestions {
	if limit <= 0 {
		limit = 3
	}
	return &MarkdownSuggestions{md: goldmark.New(), limit: limit}
}

func (m *MarkdownSuggestions) Instruction() string {
	return "After your answer, you may add a paragraph \"Suggestions:\" followed by a bulleted list " +
		"of up to 3 short follow-up questions the user could ask next."
}

func (m *MarkdownSuggestions) Extract(reply string) (string, []string) {
	src := []byte(reply)
	doc := m.md.Parser().Parse(text.NewReader(src))

	last := doc.LastChild()
	list, ok := last.(*ast.List)
	if !ok {
		return reply, nil
	}
	intro := list.PreviousSibling()
	if intro == nil || intro.Lines().Len() == 0 {
		return reply, nil
	}
	switch intro.Kind() {
	case ast.KindParagraph, ast.KindHeading:
	default:
		return reply, nil
	}
	if !suggestionHeading.Match(blockText(intro, src)) {
		return reply, nil
	}

	var items []string
	for item := list.FirstChild(); item != nil; item = item.NextSibling() {
		if len(items) == m.limit {
			break
		}
		var buf bytes.Buffer
		for c := item.FirstChild(); c != nil; c = c.NextSibling() {
			buf.Write(blockText(c, src))
		}
		if s := strings.TrimSpace(buf.String()); s != "" {
			items = append(items, s)
		}
	}
	if len(items) == 0 {
		return reply, nil
	}

	cut := intro.Lines().At(0).Start
	if intro.Kind() == ast.KindHeading {
		// heading lines exclude the leading #'s
		cut = bytes.LastIndexByte(src[:cut], '\n') + 1
	}
	return strings.TrimSpace(string(src[:cut])), items
}

func blockText(n ast.Node, src []byte) []byte {
	lines := n.Lines()
	if lines == nil {
		return nil
	}
	var buf bytes.Buffer
	for i := 0; i < lines.Len(); i++ {
		seg := lines.At(i)
		if i > 0 {
			buf.WriteByte(' ')
		}
		buf.Write(bytes.TrimSpace(seg.Value(src)))
	}
	return buf.Bytes()
}
