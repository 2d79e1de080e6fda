package transcript

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/finbourne-labs/fathom/pkg/models"
)

// FileStore keeps one append-only JSONL file per session under a root
// directory, paired with an Index for session metadata. Appends are
// serialized per store; the log format is one ConversationMessage per line.
type FileStore struct {
	dir   string
	index Index

	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates the root directory if needed.
func NewFileStore(dir string, index Index) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript directory: %w", err)
	}
	return &FileStore{dir: dir, index: index, now: time.Now}, nil
}

func (s *FileStore) path(sessionID string) string {
	return filepath.Join(s.dir, sessionID+".jsonl")
}

// validSessionID rejects ids that would escape the transcript directory.
func validSessionID(sessionID string) error {
	if sessionID == "" {
		return errors.New("empty session id")
	}
	if strings.ContainsAny(sessionID, "/\\") || strings.Contains(sessionID, "..") {
		return fmt.Errorf("invalid session id: %q", sessionID)
	}
	return nil
}

// EnsureSession registers the session in the index, keeping a supplied id
// even when unseen and minting a fresh one when empty.
func (s *FileStore) EnsureSession(ctx context.Context, sessionID, agentID, title string) (string, error) {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	if err := validSessionID(sessionID); err != nil {
		return "", err
	}

	now := s.now().Unix()
	record := models.SessionRecord{
		SessionID: sessionID,
		AgentID:   agentID,
		Title:     title,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.index.Ensure(ctx, record); err != nil {
		return "", fmt.Errorf("ensuring session index entry: %w", err)
	}
	return sessionID, nil
}

// Load reads the session log in append order. A missing file is an empty
// transcript. Lines that fail to parse are skipped rather than failing
// the whole load.
func (s *FileStore) Load(_ context.Context, sessionID string) ([]models.ConversationMessage, error) {
	if err := validSessionID(sessionID); err != nil {
		return nil, err
	}

	f, err := os.Open(s.path(sessionID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.ConversationMessage{}, nil
		}
		return nil, fmt.Errorf("opening transcript log: %w", err)
	}
	defer f.Close()

	var messages []models.ConversationMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var m models.ConversationMessage
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			continue
		}
		messages = append(messages, m)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading transcript log: %w", err)
	}
	if messages == nil {
		messages = []models.ConversationMessage{}
	}
	return messages, nil
}

// Append writes messages to the end of the log and refreshes the index.
func (s *FileStore) Append(ctx context.Context, sessionID string, messages []models.ConversationMessage) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if len(messages) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path(sessionID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening transcript log: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, m := range messages {
		line, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("encoding transcript message: %w", err)
		}
		if _, err := w.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("writing transcript log: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flushing transcript log: %w", err)
	}

	count, err := s.countLines(sessionID)
	if err != nil {
		return err
	}
	if err := s.index.Touch(ctx, sessionID, count, s.now().Unix()); err != nil {
		return fmt.Errorf("updating session index: %w", err)
	}
	return nil
}

func (s *FileStore) countLines(sessionID string) (int, error) {
	f, err := os.Open(s.path(sessionID))
	if err != nil {
		return 0, fmt.Errorf("opening transcript log: %w", err)
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			count++
		}
	}
	return count, scanner.Err()
}

// ListSessions delegates to the index.
func (s *FileStore) ListSessions(ctx context.Context, agentID string, window time.Duration, limit int) ([]models.SessionRecord, error) {
	return s.index.List(ctx, agentID, window, limit)
}

// Delete removes the log file and the index entry. Unknown sessions are
// a no-op.
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	if err := validSessionID(sessionID); err != nil {
		return err
	}
	if err := os.Remove(s.path(sessionID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing transcript log: %w", err)
	}
	return s.index.Delete(ctx, sessionID)
}
