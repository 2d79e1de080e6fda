package transcript

import "github.com/finbourne-labs/fathom/pkg/models"

// ReplayForPrompt projects a persisted transcript into a model-facing
// conversation buffer. Both the full and the compacted representation of
// each tool result are persisted; for prompting, only one may survive per
// tool call, and the compact one wins when present.
func ReplayForPrompt(history []models.ConversationMessage) []models.ConversationMessage {
	// First pass: find which tool calls have a compact representation.
	hasCompact := map[string]bool{}
	for _, m := range history {
		if m.Role == models.RoleTool && m.IsCompact && m.ToolCallID != "" {
			hasCompact[m.ToolCallID] = true
		}
	}

	out := make([]models.ConversationMessage, 0, len(history))
	for _, m := range history {
		if m.Role == models.RoleTool && m.ToolCallID != "" {
			if m.IsCompact != hasCompact[m.ToolCallID] {
				continue
			}
		}
		out = append(out, m)
	}
	return out
}
