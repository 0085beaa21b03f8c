// Package contextmgr bounds the conversation history sent to the model on
// each turn and assembles the final request messages.
package contextmgr

import (
	"strings"

	"forge/internal/chat"
)

// Defaults for the compressor budgets.
const (
	DefaultWindow      = 10
	DefaultMaxMessages = 30
	DefaultMaxChars    = 200

	// Marker prefixes every rewritten older message.
	Marker = "[Earlier] "
	// Placeholder is the content of the synthetic user message that keeps the
	// first message a user turn.
	Placeholder = "[Session started]"

	ellipsis = "..."
)

// Stats 压缩统计
// Stats describes one compression pass. DroppedCount + CompressedCount +
// RecentCount always equals OriginalCount.
type Stats struct {
	OriginalCount   int `json:"originalCount"`
	CompressedCount int `json:"compressedCount"`
	DroppedCount    int `json:"droppedCount"`
	RecentCount     int `json:"recentCount"`
	EstimatedTokens int `json:"estimatedTokens"`
}

// Result is the bounded message list plus its stats. It is derived per call
// and never persisted.
type Result struct {
	Messages []chat.Message
	Stats    Stats
}

// Compressor 会话上下文压缩器
// Compressor keeps the last Window messages verbatim, caps the history at
// MaxMessages by dropping the oldest, and shortens the remaining older
// messages to MaxChars runes each.
type Compressor struct {
	Window      int
	MaxMessages int
	MaxChars    int
	Tokenizer   *Tokenizer
}

// NewCompressor returns a compressor with the default budgets.
func NewCompressor(tok *Tokenizer) *Compressor {
	return &Compressor{
		Window:      DefaultWindow,
		MaxMessages: DefaultMaxMessages,
		MaxChars:    DefaultMaxChars,
		Tokenizer:   tok,
	}
}

func (c *Compressor) budgets() (window, maxMessages, maxChars int) {
	window, maxMessages, maxChars = DefaultWindow, DefaultMaxMessages, DefaultMaxChars
	if c != nil {
		if c.Window > 0 {
			window = c.Window
		}
		if c.MaxMessages > 0 {
			maxMessages = c.MaxMessages
		}
		if c.MaxChars > len(Marker)+len(ellipsis) {
			maxChars = c.MaxChars
		}
	}
	// the recency window is never dropped
	window = min(window, maxMessages)
	return
}

// Compress bounds history, which must not include the in-flight user turn.
// Only user and assistant messages take part; other roles are skipped and
// not counted. The input slice is not modified.
func (c *Compressor) Compress(history []chat.Message) Result {
	window, maxMessages, maxChars := c.budgets()

	msgs := make([]chat.Message, 0, len(history))
	for _, m := range history {
		if chat.IsConversational(m.Role) {
			msgs = append(msgs, m)
		}
	}
	stats := Stats{OriginalCount: len(msgs)}

	recentLen := min(window, len(msgs))
	older := msgs[:len(msgs)-recentLen]
	recent := msgs[len(msgs)-recentLen:]

	if budget := maxMessages - recentLen; len(older) > budget {
		stats.DroppedCount = len(older) - budget
		older = older[stats.DroppedCount:]
	}

	out := make([]chat.Message, 0, len(older)+len(recent)+1)
	for _, m := range older {
		out = append(out, chat.Message{
			Role:      m.Role,
			Content:   shorten(m.Content, maxChars),
			Timestamp: m.Timestamp,
		})
	}
	out = append(out, recent...)
	stats.CompressedCount = len(older)
	stats.RecentCount = len(recent)

	// The placeholder sits outside MaxMessages, so the result may hold
	// MaxMessages+1 messages.
	if len(out) == 0 || out[0].Role != chat.RoleUser {
		out = append([]chat.Message{{Role: chat.RoleUser, Content: Placeholder}}, out...)
	}

	// a nil tokenizer counts heuristically
	var tok *Tokenizer
	if c != nil {
		tok = c.Tokenizer
	}
	stats.EstimatedTokens = tok.Count(out)
	return Result{Messages: out, Stats: stats}
}

// shorten rewrites content as Marker + text, at most maxChars runes in total.
// Content that already carries the marker is not prefixed again.
func shorten(content string, maxChars int) string {
	body := strings.TrimPrefix(content, Marker)
	runes := []rune(body)
	room := maxChars - len([]rune(Marker))
	if len(runes) > room {
		body = string(runes[:room-len(ellipsis)]) + ellipsis
	}
	return Marker + body
}
