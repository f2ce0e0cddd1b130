package agent

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestFileAuditLoggerWritesNDJSON(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewFileAuditLogger(dir, 16, nil)
	if err != nil {
		t.Fatalf("NewFileAuditLogger failed: %v", err)
	}

	logger.Log(AuditEvent{
		UserID:          "u1",
		ConversationID:  "c1",
		Policy:          "keyword",
		AgentUsed:       "marketing",
		InputText:       "how do I market this?",
		OutputText:      "talk to ten customers",
		ConfidenceScore: 0.9,
		ExecutionTimeMs: 42,
	})
	logger.Log(AuditEvent{UserID: "u1", ConversationID: "c1", AgentUsed: "ignacio"})

	// Close drains the queue before returning.
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	path := filepath.Join(dir, "u1", "c1.ndjson")
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("audit file missing: %v", err)
	}
	defer f.Close()

	var events []AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var ev AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			t.Fatalf("bad NDJSON line %q: %v", scanner.Text(), err)
		}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("scan audit file: %v", err)
	}

	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	if events[0].AgentUsed != "marketing" || events[0].ExecutionTimeMs != 42 {
		t.Errorf("first event = %+v", events[0])
	}
	if events[0].Timestamp == "" {
		t.Error("timestamp should be filled in when missing")
	}
}

func TestFileAuditLoggerSeparatesConversations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	logger, err := NewFileAuditLogger(dir, 16, nil)
	if err != nil {
		t.Fatalf("NewFileAuditLogger failed: %v", err)
	}
	logger.Log(AuditEvent{UserID: "u1", ConversationID: "c1"})
	logger.Log(AuditEvent{UserID: "u1", ConversationID: "c2"})
	if err := logger.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	for _, name := range []string{"c1.ndjson", "c2.ndjson"} {
		if _, err := os.Stat(filepath.Join(dir, "u1", name)); err != nil {
			t.Errorf("expected audit file %s: %v", name, err)
		}
	}
}

func TestSanitizePathComponent(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"user-123", "user-123"},
		{"../escape", "___escape"},
		{"a/b\\c", "a_b_c"},
		{"", "unknown"},
	}
	for _, tt := range tests {
		if got := sanitizePathComponent(tt.in); got != tt.want {
			t.Errorf("sanitizePathComponent(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
