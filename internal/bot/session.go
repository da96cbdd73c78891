package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Onboarding steps. A session only moves forward.
const (
	StepAwaitingContact = "awaiting_contact"
	StepReady           = "ready"
)

// Chat modes for linked users.
const (
	ModeMenu          = "menu"
	ModeWriteToDoctor = "write_to_doctor"
)

// ChatSession is the per-chat conversation state. One record per chat
// identity, overwritten on every transition, expired by TTL rather than
// cleaned up explicitly.
type ChatSession struct {
	ChatID    int64  `json:"chatId"`
	Language  string `json:"language,omitempty"`
	Step      string `json:"step"`
	Mode      string `json:"mode,omitempty"`
	UpdatedAt string `json:"updatedAt"`
}

// SessionStore keeps chat sessions in Redis with a short TTL.
type SessionStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewSessionStore builds the session store.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	if client == nil {
		panic("bot: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 72 * time.Hour
	}
	return &SessionStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("patientcomms.internal.bot.session"),
	}
}

// Save overwrites the session for its chat identity.
func (s *SessionStore) Save(ctx context.Context, session *ChatSession) error {
	ctx, span := s.tracer.Start(ctx, "bot.save_session")
	defer span.End()

	session.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(session)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("bot: failed to marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(session.ChatID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("bot: failed to persist session: %w", err)
	}
	return nil
}

// Load returns the session for the chat identity, or nil when none exists.
func (s *SessionStore) Load(ctx context.Context, chatID int64) (*ChatSession, error) {
	ctx, span := s.tracer.Start(ctx, "bot.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(chatID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		span.RecordError(err)
		return nil, fmt.Errorf("bot: failed to load session: %w", err)
	}

	var session ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("bot: failed to decode session: %w", err)
	}
	return &session, nil
}

// Delete removes the session. Used when a chat is banned.
func (s *SessionStore) Delete(ctx context.Context, chatID int64) error {
	ctx, span := s.tracer.Start(ctx, "bot.delete_session")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(chatID)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("bot: failed to delete session: %w", err)
	}
	return nil
}

func sessionKey(chatID int64) string {
	return fmt.Sprintf("session:%d", chatID)
}
