package domain

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTitleFromMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"short message kept verbatim", "How do I price my product?", "How do I price my product?"},
		{"whitespace trimmed", "  hello  ", "hello"},
		{"empty message gets default", "", "New conversation"},
		{"blank message gets default", "   ", "New conversation"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TitleFromMessage(tt.message); got != tt.want {
				t.Errorf("TitleFromMessage(%q) = %q, want %q", tt.message, got, tt.want)
			}
		})
	}
}

func TestTitleFromMessageTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("a", 200)
	got := TitleFromMessage(long)
	if len([]rune(got)) != maxTitleLength {
		t.Errorf("truncated title length = %d runes, want %d", len([]rune(got)), maxTitleLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("truncated title %q should end with ellipsis", got)
	}
}

func TestTitleFromMessageRespectsRuneBoundaries(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("ü", 100)
	got := TitleFromMessage(long)
	if !utf8.ValidString(got) {
		t.Errorf("truncated title is not valid UTF-8: %q", got)
	}
}

func TestConversationOwnedBy(t *testing.T) {
	t.Parallel()

	conv := &Conversation{ID: "c1", UserID: "u1"}
	if !conv.OwnedBy("u1") {
		t.Error("owner should own the conversation")
	}
	if conv.OwnedBy("u2") {
		t.Error("non-owner should not own the conversation")
	}

	var nilConv *Conversation
	if nilConv.OwnedBy("u1") {
		t.Error("nil conversation is owned by nobody")
	}
}
