// Package tokens estimates token counts for conversation buffers.
package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// perMessageOverhead approximates the framing tokens the chat format adds
// around each message.
const perMessageOverhead = 4

// Counter counts tokens with a fixed BPE encoding. Safe for concurrent use.
type Counter struct {
	enc *tiktoken.Tiktoken
}

// NewCounter builds a counter using the cl100k_base encoding.
func NewCounter() (*Counter, error) {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return nil, fmt.Errorf("loading token encoding: %w", err)
	}
	return &Counter{enc: enc}, nil
}

// CountText returns the token count of a single string.
func (c *Counter) CountText(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// CountConversation estimates the prompt size of a conversation buffer.
// Callers report counts from the compacted conversation, not the full one.
func (c *Counter) CountConversation(messages []models.ConversationMessage) int {
	total := 0
	for _, m := range messages {
		total += perMessageOverhead
		total += c.CountText(m.Content)
		for _, tc := range m.ToolCalls {
			total += c.CountText(tc.Name)
			total += c.CountText(tc.Arguments)
		}
	}
	return total
}
