package models

import "time"

// RunEventType is the normalized event vocabulary emitted to callers.
type RunEventType string

const (
	EventRunStarted         RunEventType = "RunStarted"
	EventRunResponseContent RunEventType = "RunResponseContent"
	EventToolCallStarted    RunEventType = "ToolCallStarted"
	EventToolCallCompleted  RunEventType = "ToolCallCompleted"
	EventRunError           RunEventType = "RunError"
	EventRunCompleted       RunEventType = "RunCompleted"
)

// Content types carried by content-bearing events.
const (
	ContentTypeMarkdown = "text/markdown"
	ContentTypePlain    = "text/plain"
)

// ToolEventPayload is the embedded tool object on tool events.
// Arguments is stringified for display; ElapsedMs is wall-clock execution
// time of the tool call.
type ToolEventPayload struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Arguments string `json:"arguments"`
	Error     bool   `json:"error"`
	ElapsedMs int64  `json:"elapsed_ms"`
}

// RunEvent is one line of the newline-delimited JSON stream returned to a
// caller. Field names are part of the wire contract and stable across all
// event kinds.
type RunEvent struct {
	Event     RunEventType `json:"event"`
	CreatedAt int64        `json:"created_at"`
	Model     string       `json:"model"`

	ContentType string `json:"content_type,omitempty"`
	Content     string `json:"content,omitempty"`

	ToolName   string            `json:"tool_name,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	Tool       *ToolEventPayload `json:"tool,omitempty"`

	// RunStarted only.
	RunID     string         `json:"run_id,omitempty"`
	SessionID string         `json:"session_id,omitempty"`
	ExtraData map[string]any `json:"extra_data,omitempty"`
}

// NewRunEvent returns a RunEvent of the given kind stamped with the
// current time and model alias.
func NewRunEvent(kind RunEventType, model string) RunEvent {
	return RunEvent{
		Event:     kind,
		CreatedAt: time.Now().Unix(),
		Model:     model,
	}
}
