package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/devKanishk15/postgres-ai/pkg/models"
)

// querier is the slice of pgxpool.Pool the store uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresStore keeps conversations in a single JSONB-per-conversation
// table, fronted by the same write-through memory cache FileStore uses.
// A conversation whose row cannot be written survives in cache for the
// process lifetime. Selected when a history DSN is configured.
type PostgresStore struct {
	db          querier
	pool        *pgxpool.Pool
	maxRetained int

	mu    sync.RWMutex
	cache map[string][]models.ChatMessage
}

// NewPostgresStore connects to connURL and creates the conversations table
// if it does not exist.
func NewPostgresStore(ctx context.Context, connURL string, maxRetained int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("history connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history ping: %w", err)
	}

	s := &PostgresStore{
		db:          pool,
		pool:        pool,
		maxRetained: maxRetained,
		cache:       make(map[string][]models.ChatMessage),
	}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("history migrate: %w", err)
	}

	log.Info().Msg("postgres history store initialized")
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS pgai_conversations (
			id         TEXT PRIMARY KEY,
			messages   JSONB NOT NULL DEFAULT '[]',
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`
	_, err := s.db.Exec(ctx, ddl)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, conversationID string) []models.ChatMessage {
	s.mu.RLock()
	if msgs, ok := s.cache[conversationID]; ok {
		out := make([]models.ChatMessage, len(msgs))
		copy(out, msgs)
		s.mu.RUnlock()
		return out
	}
	s.mu.RUnlock()

	var data []byte
	err := s.db.QueryRow(ctx,
		`SELECT messages FROM pgai_conversations WHERE id = $1`, conversationID).Scan(&data)
	if err != nil {
		return nil
	}
	var msgs []models.ChatMessage
	if err := json.Unmarshal(data, &msgs); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("discarding corrupt conversation row")
		return nil
	}

	s.mu.Lock()
	s.cache[conversationID] = msgs
	s.mu.Unlock()
	out := make([]models.ChatMessage, len(msgs))
	copy(out, msgs)
	return out
}

func (s *PostgresStore) Save(ctx context.Context, conversationID string, messages []models.ChatMessage) {
	messages = trim(messages, s.maxRetained)

	// Cache first so a failed write still leaves the conversation usable.
	s.mu.Lock()
	s.cache[conversationID] = messages
	s.mu.Unlock()

	data, err := json.Marshal(messages)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("failed to encode conversation")
		return
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO pgai_conversations (id, messages, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (id) DO UPDATE SET messages = EXCLUDED.messages, updated_at = NOW()`,
		conversationID, data)
	if err != nil {
		log.Error().Err(err).Str("conversation", conversationID).Msg("failed to persist conversation")
	}
}

func (s *PostgresStore) Clear(ctx context.Context, conversationID string) {
	s.mu.Lock()
	delete(s.cache, conversationID)
	s.mu.Unlock()

	if _, err := s.db.Exec(ctx,
		`DELETE FROM pgai_conversations WHERE id = $1`, conversationID); err != nil {
		log.Warn().Err(err).Str("conversation", conversationID).Msg("failed to delete conversation")
	}
}

// Prune removes conversation rows not updated since olderThan and evicts
// them from the cache.
func (s *PostgresStore) Prune(ctx context.Context, olderThan time.Time) int {
	rows, err := s.db.Query(ctx,
		`DELETE FROM pgai_conversations WHERE updated_at < $1 RETURNING id`, olderThan)
	if err != nil {
		log.Warn().Err(err).Msg("failed to prune stale conversations")
		return 0
	}
	defer rows.Close()

	pruned := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			continue
		}
		s.mu.Lock()
		delete(s.cache, id)
		s.mu.Unlock()
		pruned++
	}
	return pruned
}

// Close releases the connection pool.
func (s *PostgresStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
