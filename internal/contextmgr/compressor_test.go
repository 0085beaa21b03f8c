package contextmgr

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"forge/internal/chat"
	"forge/internal/dials"
	"forge/internal/session"
)

// alternating starts with the assistant greeting, as real sessions do.
func alternating(n int, contentLen int) []chat.Message {
	msgs := make([]chat.Message, n)
	for i := range msgs {
		role := chat.RoleAssistant
		if i%2 == 1 {
			role = chat.RoleUser
		}
		msgs[i] = chat.Message{Role: role, Content: fmt.Sprintf("m%02d %s", i, strings.Repeat("x", contentLen))}
	}
	return msgs
}

func same(a, b chat.Message) bool {
	return a.Role == b.Role && a.Content == b.Content && a.Timestamp.Equal(b.Timestamp)
}

func testCompressor() *Compressor {
	return NewCompressor(&Tokenizer{fallback: true})
}

func TestCompressFortyFiveMessages(t *testing.T) {
	h := alternating(45, 300)
	res := testCompressor().Compress(h)
	s := res.Stats
	if s.OriginalCount != 45 || s.RecentCount != 10 || s.DroppedCount != 15 || s.CompressedCount != 20 {
		t.Fatalf("stats=%+v", s)
	}
	if len(res.Messages) != 30 {
		t.Fatalf("len=%d, want 30", len(res.Messages))
	}
	if res.Messages[0].Role != chat.RoleUser {
		t.Fatalf("first role=%q", res.Messages[0].Role)
	}
	if !strings.HasPrefix(res.Messages[0].Content, Marker+"m15") {
		t.Fatalf("first content=%q", res.Messages[0].Content)
	}
	for i, m := range res.Messages[len(res.Messages)-10:] {
		if !same(m, h[35+i]) {
			t.Fatalf("recent message %d changed: %q", i, m.Content)
		}
	}
	if s.EstimatedTokens <= 0 {
		t.Fatal("estimated tokens not reported")
	}
}

func TestCompressSingleAssistantGreeting(t *testing.T) {
	h := []chat.Message{{Role: chat.RoleAssistant, Content: "Welcome, storyteller."}}
	res := testCompressor().Compress(h)
	if len(res.Messages) != 2 {
		t.Fatalf("messages=%+v", res.Messages)
	}
	if !same(res.Messages[0], chat.Message{Role: chat.RoleUser, Content: Placeholder}) {
		t.Fatalf("first=%+v", res.Messages[0])
	}
	if !same(res.Messages[1], h[0]) {
		t.Fatalf("greeting changed: %+v", res.Messages[1])
	}
}

func TestCompressEmptyHistory(t *testing.T) {
	res := testCompressor().Compress(nil)
	if len(res.Messages) != 1 || res.Messages[0].Role != chat.RoleUser {
		t.Fatalf("messages=%+v", res.Messages)
	}
	if res.Stats.OriginalCount != 0 {
		t.Fatalf("stats=%+v", res.Stats)
	}
}

func TestCompressProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	c := testCompressor()
	for trial := 0; trial < 200; trial++ {
		n := rng.Intn(80)
		h := make([]chat.Message, n)
		for i := range h {
			role := chat.RoleUser
			if rng.Intn(2) == 0 {
				role = chat.RoleAssistant
			}
			h[i] = chat.Message{Role: role, Content: fmt.Sprintf("%d:%s", i, strings.Repeat("é", rng.Intn(400)))}
		}
		res := c.Compress(h)
		s := res.Stats
		if len(res.Messages) > DefaultMaxMessages+1 ||
			(len(res.Messages) == DefaultMaxMessages+1 && res.Messages[0].Content != Placeholder) {
			t.Fatalf("trial %d: len=%d", trial, len(res.Messages))
		}
		if res.Messages[0].Role != chat.RoleUser {
			t.Fatalf("trial %d: first role=%q", trial, res.Messages[0].Role)
		}
		if s.DroppedCount+s.CompressedCount+s.RecentCount != s.OriginalCount {
			t.Fatalf("trial %d: stats=%+v", trial, s)
		}

		body := res.Messages
		if len(body) > s.CompressedCount+s.RecentCount {
			if body[0].Content != Placeholder {
				t.Fatalf("trial %d: unexpected extra message %q", trial, body[0].Content)
			}
			body = body[1:]
		}
		for i, m := range body {
			if i < s.CompressedCount {
				if utf8.RuneCountInString(m.Content) > DefaultMaxChars || !strings.HasPrefix(m.Content, Marker) {
					t.Fatalf("trial %d: compressed %d = %q", trial, i, m.Content)
				}
				src := h[s.DroppedCount+i]
				if m.Role != src.Role {
					t.Fatalf("trial %d: role changed at %d", trial, i)
				}
				continue
			}
			if !same(m, h[s.DroppedCount+i]) {
				t.Fatalf("trial %d: recent window reordered at %d", trial, i)
			}
		}
	}
}

func TestCompressIsIdempotent(t *testing.T) {
	c := testCompressor()
	first := c.Compress(alternating(45, 300))
	second := c.Compress(first.Messages)
	if second.Stats.CompressedCount != first.Stats.CompressedCount || second.Stats.RecentCount != first.Stats.RecentCount {
		t.Fatalf("first=%+v second=%+v", first.Stats, second.Stats)
	}
	if len(second.Messages) != len(first.Messages) {
		t.Fatalf("len %d -> %d", len(first.Messages), len(second.Messages))
	}
	for i := range first.Messages {
		if !same(first.Messages[i], second.Messages[i]) {
			t.Fatalf("message %d changed: %q -> %q", i, first.Messages[i].Content, second.Messages[i].Content)
		}
	}
}

func TestCompressPlaceholderDoesNotDisplaceHistory(t *testing.T) {
	h := alternating(46, 10)
	res := testCompressor().Compress(h)
	if len(res.Messages) != DefaultMaxMessages+1 {
		t.Fatalf("len=%d", len(res.Messages))
	}
	s := res.Stats
	if s.DroppedCount != 16 || s.CompressedCount != 20 || s.RecentCount != 10 {
		t.Fatalf("stats=%+v", s)
	}
	if !same(res.Messages[0], chat.Message{Role: chat.RoleUser, Content: Placeholder}) {
		t.Fatalf("first=%+v", res.Messages[0])
	}
	if res.Messages[1].Role != chat.RoleAssistant || !strings.HasPrefix(res.Messages[1].Content, Marker+"m16") {
		t.Fatalf("second=%+v", res.Messages[1])
	}

	again := testCompressor().Compress(res.Messages)
	if len(again.Messages) != len(res.Messages) || !same(again.Messages[1], res.Messages[1]) {
		t.Fatalf("recompress changed the list: %d messages, second=%+v", len(again.Messages), again.Messages[1])
	}
}

func TestCompressSkipsNonConversationalRoles(t *testing.T) {
	h := []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleTool, Content: "{}"},
		{Role: chat.RoleAssistant, Content: "hello"},
	}
	res := testCompressor().Compress(h)
	if res.Stats.OriginalCount != 2 || len(res.Messages) != 2 {
		t.Fatalf("res=%+v", res)
	}
}

func TestShortenBoundsLength(t *testing.T) {
	got := shorten(strings.Repeat("a", 500), 200)
	if utf8.RuneCountInString(got) != 200 || !strings.HasSuffix(got, "...") {
		t.Fatalf("len=%d got=%q", utf8.RuneCountInString(got), got)
	}
	if short := shorten("brief", 200); short != Marker+"brief" {
		t.Fatalf("short=%q", short)
	}
	if again := shorten(got, 200); again != got {
		t.Fatal("shorten is not idempotent")
	}
}

func TestAssembleSystemThenHistoryThenUser(t *testing.T) {
	sess := session.Init("s1", "Bells", time.Time{}).SetStage(session.StageFrame)
	a := NewAssembler("You are the forge.", testCompressor())
	msgs, stats := a.Assemble(TurnContext{Session: sess, Dials: dials.Defaults(), Notes: []string{"Frame: none yet"}},
		[]chat.Message{{Role: chat.RoleAssistant, Content: "Welcome"}}, "Give me frames")
	if msgs[0].Role != chat.RoleSystem || msgs[1].Role != chat.RoleUser || msgs[len(msgs)-1].Content != "Give me frames" {
		t.Fatalf("msgs=%+v", msgs)
	}
	for _, want := range []string{"Adventure: Bells", "Stage: frame", "partySize", "Unconfirmed required dials", "Frame: none yet"} {
		if !strings.Contains(msgs[0].Content, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, msgs[0].Content)
		}
	}
	if stats.OriginalCount != 1 {
		t.Fatalf("stats=%+v", stats)
	}
}
