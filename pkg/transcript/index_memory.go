package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// MemoryIndex is an in-memory Index used when the session index database
// is disabled. Safe for concurrent use.
type MemoryIndex struct {
	mu       sync.RWMutex
	sessions map[string]models.SessionRecord
	now      func() time.Time
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{sessions: map[string]models.SessionRecord{}, now: time.Now}
}

func (i *MemoryIndex) Ensure(_ context.Context, record models.SessionRecord) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if _, ok := i.sessions[record.SessionID]; !ok {
		i.sessions[record.SessionID] = record
	}
	return nil
}

func (i *MemoryIndex) Touch(_ context.Context, sessionID string, messageCount int, updatedAt int64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if record, ok := i.sessions[sessionID]; ok {
		record.MessageCount = messageCount
		record.UpdatedAt = updatedAt
		i.sessions[sessionID] = record
	}
	return nil
}

func (i *MemoryIndex) List(_ context.Context, agentID string, window time.Duration, limit int) ([]models.SessionRecord, error) {
	window, limit = normalizeListBounds(window, limit)
	cutoff := i.now().Add(-window).Unix()

	i.mu.RLock()
	defer i.mu.RUnlock()

	var out []models.SessionRecord
	for _, record := range i.sessions {
		if agentID != "" && record.AgentID != agentID {
			continue
		}
		if record.CreatedAt < cutoff {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].UpdatedAt != out[b].UpdatedAt {
			return out[a].UpdatedAt > out[b].UpdatedAt
		}
		return out[a].SessionID < out[b].SessionID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (i *MemoryIndex) Delete(_ context.Context, sessionID string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.sessions, sessionID)
	return nil
}
