// Package models defines the shared data types exchanged between the
// runner, tools, transcript store, and HTTP surface.
package models

// Role identifies the author of a conversation message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is a model-requested invocation of a named tool.
// Arguments is the raw JSON argument blob as emitted by the model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ConversationMessage is one entry of a conversation buffer or a persisted
// transcript. Messages are append-only: once added to a buffer used for a
// model call they are never mutated.
//
// For tool-role messages, IsCompact marks the compacted projection of a
// tool result (the representation that re-enters the model's context).
// The full result is persisted alongside it with IsCompact=false; replay
// keeps exactly one of the two per ToolCallID.
type ConversationMessage struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"name,omitempty"`
	IsCompact  bool       `json:"is_compact,omitempty"`
}
