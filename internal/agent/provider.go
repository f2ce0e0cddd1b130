package agent

import (
	"context"
	"encoding/json"
)

// ProviderMessage represents a conversation message sent to the model.
type ProviderMessage struct {
	Role    MessageRole `json:"role"`
	Content string      `json:"content"`

	// ToolUse is set when the assistant wants to call a tool.
	ToolUse []ToolUseBlock `json:"tool_use,omitempty"`

	// ToolResult is set when providing tool execution results.
	ToolResult []ToolResultBlock `json:"tool_result,omitempty"`
}

// MessageRole represents the message sender role on the wire.
type MessageRole string

const (
	MessageRoleUser      MessageRole = "user"
	MessageRoleAssistant MessageRole = "assistant"
)

// ToolUseBlock represents a tool call request from the model.
type ToolUseBlock struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResultBlock represents the result of a tool execution.
type ToolResultBlock struct {
	ToolUseID string `json:"tool_use_id"`
	Content   string `json:"content"`
	IsError   bool   `json:"is_error,omitempty"`
}

// ToolDefinition defines a tool that can be called by the model.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// ProviderResponse represents the model's response.
type ProviderResponse struct {
	// Content is the text content (may be empty if only tool calls).
	Content string

	// ToolCalls contains any tool use requests from the model.
	ToolCalls []ToolUseBlock

	// StopReason indicates why the model stopped generating.
	StopReason StopReason
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonToolUse   StopReason = "tool_use"
	StopReasonMaxTokens StopReason = "max_tokens"
)

// Provider defines the interface for LLM providers. Implementations must be
// safe for concurrent use; they hold no per-request state.
type Provider interface {
	// Chat sends messages to the model and returns the complete response.
	// Tools are optional and define what tools the model can call.
	Chat(ctx context.Context, systemPrompt string, messages []ProviderMessage, tools []ToolDefinition) (*ProviderResponse, error)

	// Name returns the provider name for logging.
	Name() string
}
