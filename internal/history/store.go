// Package history persists per-conversation message lists so follow-up
// questions keep their context across requests and restarts.
package history

import (
	"context"

	"github.com/devKanishk15/postgres-ai/pkg/models"
)

// Store holds conversation message histories keyed by conversation id.
// Persistence failures are absorbed by implementations: a conversation
// that cannot be written survives in memory for the process lifetime and
// the error is logged, never returned to the chat path.
type Store interface {
	// Get returns the stored messages for a conversation, or nil when the
	// conversation is unknown.
	Get(ctx context.Context, conversationID string) []models.ChatMessage
	// Save replaces the stored messages for a conversation, trimming to
	// the retention limit first.
	Save(ctx context.Context, conversationID string, messages []models.ChatMessage)
	// Clear removes a conversation entirely.
	Clear(ctx context.Context, conversationID string)
}

// trim enforces the retention limit. When the history exceeds maxRetained
// plus the system message, only the newest maxRetained messages are kept
// and the original system message is put back in front unless the tail
// already starts with it, so the result is at most maxRetained+1 entries
// with the system prompt always first and never duplicated.
func trim(messages []models.ChatMessage, maxRetained int) []models.ChatMessage {
	if maxRetained <= 0 || len(messages) <= maxRetained+1 {
		return messages
	}
	var system *models.ChatMessage
	if len(messages) > 0 && messages[0].Role == models.RoleSystem {
		s := messages[0]
		system = &s
	}
	tail := messages[len(messages)-maxRetained:]
	if system == nil {
		return tail
	}
	if tail[0].Role == models.RoleSystem && tail[0].Content == system.Content {
		return tail
	}
	out := make([]models.ChatMessage, 0, maxRetained+1)
	out = append(out, *system)
	return append(out, tail...)
}
