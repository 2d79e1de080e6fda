// Package transcript persists conversation transcripts. The transcript
// log is the source of truth; the session index carries derived metadata
// for listing and lookup.
package transcript

import (
	"context"
	"time"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// Defaults applied when ListSessions receives a zero or negative window
// or limit.
const (
	DefaultListWindow = 14 * 24 * time.Hour
	DefaultListLimit  = 50
)

func normalizeListBounds(window time.Duration, limit int) (time.Duration, int) {
	if window <= 0 {
		window = DefaultListWindow
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	return window, limit
}

// Store is the transcript contract: a per-session append-only message log
// plus a queryable session index.
type Store interface {
	// EnsureSession registers a session, creating an index entry on first
	// sight. A supplied unknown id is kept as-is; an empty id gets a fresh
	// one. Returns the effective session id.
	EnsureSession(ctx context.Context, sessionID, agentID, title string) (string, error)

	// Load returns the full persisted transcript in append order.
	// A session with no messages yields an empty slice, not an error.
	Load(ctx context.Context, sessionID string) ([]models.ConversationMessage, error)

	// Append adds messages to the end of the session log and refreshes the
	// index entry (message count, updated-at).
	Append(ctx context.Context, sessionID string, messages []models.ConversationMessage) error

	// ListSessions returns index entries for an agent created within the
	// window, most recently updated first, capped at limit. Zero or negative
	// window/limit fall back to DefaultListWindow and DefaultListLimit. An
	// empty agentID lists all sessions.
	ListSessions(ctx context.Context, agentID string, window time.Duration, limit int) ([]models.SessionRecord, error)

	// Delete removes the session log and its index entry. Deleting an
	// unknown session is a no-op.
	Delete(ctx context.Context, sessionID string) error
}

// Index is the session metadata side of a Store, split out so the JSONL
// file log can be paired with different index backends.
type Index interface {
	Ensure(ctx context.Context, record models.SessionRecord) error
	Touch(ctx context.Context, sessionID string, messageCount int, updatedAt int64) error
	List(ctx context.Context, agentID string, window time.Duration, limit int) ([]models.SessionRecord, error)
	Delete(ctx context.Context, sessionID string) error
}
