package transcript

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// MemoryStore is an in-memory Store for tests and persistence-disabled
// deployments. Safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	logs     map[string][]models.ConversationMessage
	sessions map[string]models.SessionRecord
	now      func() time.Time
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		logs:     map[string][]models.ConversationMessage{},
		sessions: map[string]models.SessionRecord{},
		now:      time.Now,
	}
}

func (s *MemoryStore) EnsureSession(_ context.Context, sessionID, agentID, title string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[sessionID]; !ok {
		now := s.now().Unix()
		s.sessions[sessionID] = models.SessionRecord{
			SessionID: sessionID,
			AgentID:   agentID,
			Title:     title,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	return sessionID, nil
}

func (s *MemoryStore) Load(_ context.Context, sessionID string) ([]models.ConversationMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	log := s.logs[sessionID]
	out := make([]models.ConversationMessage, len(log))
	copy(out, log)
	return out, nil
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, messages []models.ConversationMessage) error {
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[sessionID] = append(s.logs[sessionID], messages...)
	if record, ok := s.sessions[sessionID]; ok {
		record.MessageCount = len(s.logs[sessionID])
		record.UpdatedAt = s.now().Unix()
		s.sessions[sessionID] = record
	}
	return nil
}

func (s *MemoryStore) ListSessions(_ context.Context, agentID string, window time.Duration, limit int) ([]models.SessionRecord, error) {
	window, limit = normalizeListBounds(window, limit)
	cutoff := s.now().Add(-window).Unix()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.SessionRecord
	for _, record := range s.sessions {
		if agentID != "" && record.AgentID != agentID {
			continue
		}
		if record.CreatedAt < cutoff {
			continue
		}
		out = append(out, record)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt != out[j].UpdatedAt {
			return out[i].UpdatedAt > out[j].UpdatedAt
		}
		return out[i].SessionID < out[j].SessionID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, sessionID)
	delete(s.sessions, sessionID)
	return nil
}
