package domain

import (
	"strings"
	"time"
)

// Role tags a message as authored by the user or the assistant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// maxTitleLength caps conversation titles derived from the first message.
const maxTitleLength = 60

// Conversation groups the messages of a single chat thread. A conversation
// belongs to exactly one user; ownership gates every read/update/delete.
type Conversation struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProjectID string    `json:"project_id,omitempty"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// OwnedBy reports whether the conversation belongs to the given user.
func (c *Conversation) OwnedBy(userID string) bool {
	return c != nil && c.UserID == userID
}

// TitleFromMessage derives a conversation title from the opening message,
// truncated on a rune boundary.
func TitleFromMessage(message string) string {
	title := strings.TrimSpace(message)
	if title == "" {
		return "New conversation"
	}
	runes := []rune(title)
	if len(runes) > maxTitleLength {
		return string(runes[:maxTitleLength-3]) + "..."
	}
	return title
}

// Message is a single utterance within a conversation. Messages are
// immutable once persisted.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	FileID         string    `json:"file_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Interaction is the audit record produced for each assistant turn: which
// specialist handled it, which tools were invoked, and how long it took.
type Interaction struct {
	ID              string    `json:"id"`
	ConversationID  string    `json:"conversation_id"`
	MessageID       string    `json:"message_id"`
	AgentUsed       string    `json:"agent_used"`
	ToolsCalled     []string  `json:"tools_called,omitempty"`
	InputText       string    `json:"input_text"`
	OutputText      string    `json:"output_text"`
	ConfidenceScore float64   `json:"confidence_score"`
	ExecutionTimeMs int64     `json:"execution_time_ms"`
	CreatedAt       time.Time `json:"created_at"`
}
