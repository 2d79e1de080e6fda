// Package llm provides the chat-completions client for the remote model
// endpoint and the incremental decoder for its streamed responses.
package llm

import (
	"context"
	"encoding/json"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// StreamEventType discriminates the events produced by the Decoder.
type StreamEventType int

const (
	// StreamEventContentDelta carries a fragment of assistant text.
	StreamEventContentDelta StreamEventType = iota
	// StreamEventToolCallDelta carries a fragment of a tool call addressed
	// by its position index within the current turn.
	StreamEventToolCallDelta
	// StreamEventFinishReason carries the terminal reason for the turn.
	StreamEventFinishReason
)

// Finish reasons reported by the endpoint.
const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// ToolCallDelta is a partially-arrived tool call fragment. Any of CallID,
// Name, and ArgumentFragment may be empty; the accumulator in the runner
// merges fragments sharing an Index.
type ToolCallDelta struct {
	Index            int
	CallID           string
	Name             string
	ArgumentFragment string
}

// StreamEvent is one decoded model-output event. Exactly one of the
// payload fields is meaningful, selected by Type.
type StreamEvent struct {
	Type         StreamEventType
	Content      string
	ToolCall     ToolCallDelta
	FinishReason string
}

// ToolDefinition is an OpenAI-compatible tool (function) definition sent
// with each model call.
type ToolDefinition struct {
	Type     string             `json:"type"`
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes one callable function. Parameters is a JSON
// Schema object.
type FunctionDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// EventStream is a lazy, finite, non-restartable sequence of StreamEvents.
// Next returns io.EOF when the sequence is exhausted.
type EventStream interface {
	Next() (StreamEvent, error)
	Close() error
}

// ChatClient is the model-endpoint surface the runner depends on.
type ChatClient interface {
	// Chat performs one non-streaming call and returns the assistant text.
	Chat(ctx context.Context, messages []models.ConversationMessage, tools []ToolDefinition) (string, error)
	// StreamChat performs one streaming call. The returned stream must be
	// closed by the caller.
	StreamChat(ctx context.Context, messages []models.ConversationMessage, tools []ToolDefinition) (EventStream, error)
}
