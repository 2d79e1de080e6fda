package models

// SessionRecord is the secondary-index entry for one session. It is
// derived metadata: the transcript log is the source of truth, and a
// record exists in the index iff the session's log may be loaded.
type SessionRecord struct {
	SessionID    string `json:"session_id"`
	AgentID      string `json:"agent_id"`
	Title        string `json:"title"`
	CreatedAt    int64  `json:"created_at"`
	UpdatedAt    int64  `json:"updated_at"`
	MessageCount int    `json:"message_count"`
}
