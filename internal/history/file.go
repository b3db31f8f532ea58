package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/devKanishk15/postgres-ai/pkg/models"
	"github.com/rs/zerolog/log"
)

// FileStore keeps conversations in memory and mirrors each one to a JSON
// file under dir, one file per conversation. It is the default store for
// local deployments with no database.
type FileStore struct {
	dir         string
	maxRetained int

	mu    sync.RWMutex
	cache map[string][]models.ChatMessage
}

// NewFileStore creates a file-backed store rooted at dir. The directory is
// created if missing. maxRetained bounds how many non-system messages a
// conversation keeps.
func NewFileStore(dir string, maxRetained int) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{
		dir:         dir,
		maxRetained: maxRetained,
		cache:       make(map[string][]models.ChatMessage),
	}, nil
}

func (s *FileStore) Get(ctx context.Context, conversationID string) []models.ChatMessage {
	s.mu.RLock()
	if msgs, ok := s.cache[conversationID]; ok {
		out := make([]models.ChatMessage, len(msgs))
		copy(out, msgs)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.path(conversationID))
	if err != nil {
		return nil
	}
	var msgs []models.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("discarding corrupt conversation file")
		return nil
	}

	s.mu.Lock()
	s.cache[conversationID] = msgs
	s.mu.Unlock()
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (s *FileStore) Save(ctx context.Context, conversationID string, messages []models.ChatMessage) {
	messages = trim(messages, s.maxRetained)

	s.mu.Lock()
	s.cache[conversationID] = messages
	s.mu.Unlock()

	data, err := json.MarshalIndent(messages, "", "  ")
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("failed to encode conversation")
		return
	}
	tmp := s.path(conversationID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("failed to write conversation file")
		return
	}
	if err := os.Rename(tmp, s.path(conversationID)); err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("failed to replace conversation file")
	}
}

func (s *FileStore) Clear(ctx context.Context, conversationID string) {
	s.mu.Lock()
	delete(s.cache, conversationID)
	s.mu.Unlock()

	if err := os.Remove(s.path(conversationID)); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("failed to remove conversation file")
	}
}

// path maps a conversation id to its file, sanitizing separators so ids
// cannot escape the data directory.
func (s *FileStore) path(conversationID string) string {
	safe := strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(conversationID)
	return filepath.Join(s.dir, safe+".json")
}
