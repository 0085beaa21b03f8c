package contextmgr

import (
	"testing"

	"forge/internal/chat"
)

func TestTokenizerHeuristic(t *testing.T) {
	tok := &Tokenizer{fallback: true, encodingName: "cl100k_base"}
	if n := tok.CountText("The bell tolls twice"); n <= 0 {
		t.Fatalf("CountText=%d", n)
	}
	if n := tok.CountText("钟声响了两次"); n <= 0 {
		t.Fatalf("CJK CountText=%d", n)
	}
	if tok.CountText("") != 0 {
		t.Fatal("empty text should count 0")
	}
	if tok.IsPrecise() {
		t.Fatal("fallback tokenizer reported precise")
	}
}

func TestTokenizerCountIncludesOverhead(t *testing.T) {
	tok := &Tokenizer{fallback: true}
	msgs := []chat.Message{
		{Role: chat.RoleUser, Content: "hello"},
		{Role: chat.RoleAssistant, Content: "hi there"},
	}
	if n := tok.Count(msgs); n < 8 {
		t.Fatalf("Count=%d, want at least per-message overhead", n)
	}
}

func TestModelToEncoding(t *testing.T) {
	tests := []struct {
		model string
		want  string
	}{
		{"gpt-4", "cl100k_base"},
		{"gpt-3.5-turbo", "cl100k_base"},
		{"gpt-4o-mini", "o200k_base"},
		{"gpt-4.1", "o200k_base"},
		{"o3-mini", "o200k_base"},
		{"qwen-plus", "cl100k_base"},
		{"", "cl100k_base"},
	}
	for _, tt := range tests {
		if got := modelToEncoding(tt.model); got != tt.want {
			t.Fatalf("modelToEncoding(%q)=%q, want %q", tt.model, got, tt.want)
		}
	}
}
