// Package sessionstore is the Redis-backed live session store (spec §4.1):
// session metadata, the recent-message ring, the user->sessions and
// agent->sessions indices, and the escalation queue. Key layout mirrors the
// original system's Redis persistence layer: session:<id>, session:<id>:
// messages, user_sessions:<user_id>, agent_sessions:<agent_id>, and
// escalations:pending.
package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/chatcore/chatcore/internal/domain"
)

const escalationsKey = "escalations:pending"

type Store struct {
	client      *redis.Client
	ttl         time.Duration
	callTimeout time.Duration
}

// New builds a Store. callTimeout bounds every Redis round trip (spec §5's
// session-store timeout, reference default 2s); zero disables the bound.
func New(client *redis.Client, ttlDays int, callTimeout time.Duration) *Store {
	ttl := time.Duration(ttlDays) * 24 * time.Hour
	return &Store{client: client, ttl: ttl, callTimeout: callTimeout}
}

func metaKey(sid string) string     { return "session:" + sid }
func messagesKey(sid string) string { return "session:" + sid + ":messages" }
func userSessionsKey(uid string) string  { return "user_sessions:" + uid }
func agentSessionsKey(aid string) string { return "agent_sessions:" + aid }

func (s *Store) ttlOrForever() time.Duration {
	if s.ttl <= 0 {
		return redis.KeepTTL
	}
	return s.ttl
}

func (s *Store) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.callTimeout)
}

// ReadMeta loads a session's metadata. Returns (nil, nil) on a miss.
func (s *Store) ReadMeta(ctx context.Context, sid string) (*domain.Session, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raw, err := s.client.Get(ctx, metaKey(sid)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read session meta %s: %w", sid, err)
	}
	var meta domain.Session
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("decode session meta %s: %w", sid, err)
	}
	return &meta, nil
}

// WriteMeta persists meta and refreshes the TTL on both the meta record and
// the message buffer atomically (spec §4.1 contract).
func (s *Store) WriteMeta(ctx context.Context, meta *domain.Session) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode session meta %s: %w", meta.ID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, metaKey(meta.ID), payload, s.ttlOrForever())
	if s.ttl > 0 {
		pipe.Expire(ctx, messagesKey(meta.ID), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write session meta %s: %w", meta.ID, err)
	}
	return nil
}

func (s *Store) Register(ctx context.Context, userID, sid string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, userSessionsKey(userID), sid).Err(); err != nil {
		return fmt.Errorf("register session %s for user %s: %w", sid, userID, err)
	}
	return nil
}

func (s *Store) Unregister(ctx context.Context, userID, sid string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, userSessionsKey(userID), sid).Err(); err != nil {
		return fmt.Errorf("unregister session %s for user %s: %w", sid, userID, err)
	}
	return nil
}

func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, userSessionsKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions for user %s: %w", userID, err)
	}
	return ids, nil
}

// AppendMessage pushes msg to the head of the buffer and refreshes both TTLs
// in one pipeline, per the append-atomicity contract (spec §4.1, Testable
// Property 4). Failure of any step surfaces as an error; nothing partially
// commits because TxPipeline queues all commands into a single MULTI/EXEC.
func (s *Store) AppendMessage(ctx context.Context, sid string, msg domain.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message for %s: %w", sid, err)
	}

	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, messagesKey(sid), payload)
	if s.ttl > 0 {
		pipe.Expire(ctx, messagesKey(sid), s.ttl)
		pipe.Expire(ctx, metaKey(sid), s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append message to %s: %w", sid, err)
	}
	return nil
}

// Recent returns up to w messages in chronological order. Storage order is
// newest-first (LPUSH); callers always see oldest-to-newest regardless.
func (s *Store) Recent(ctx context.Context, sid string, w int) ([]domain.Message, error) {
	return s.rangeMessages(ctx, sid, 0, int64(w)-1)
}

// AllMessages returns up to limit messages (0 == all available), chronological.
func (s *Store) AllMessages(ctx context.Context, sid string, limit int) ([]domain.Message, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	return s.rangeMessages(ctx, sid, 0, stop)
}

func (s *Store) rangeMessages(ctx context.Context, sid string, start, stop int64) ([]domain.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	raws, err := s.client.LRange(ctx, messagesKey(sid), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("range messages for %s: %w", sid, err)
	}
	out := make([]domain.Message, 0, len(raws))
	for _, raw := range raws {
		var m domain.Message
		if err := json.Unmarshal([]byte(raw), &m); err != nil || !m.Role.IsValid() {
			continue
		}
		out = append(out, m)
	}
	// LRANGE over an LPUSH-ordered list returns newest-first; reverse to
	// chronological ascending order for readers.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *Store) Touch(ctx context.Context, sid string) error {
	if s.ttl <= 0 {
		return nil
	}
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	pipe := s.client.TxPipeline()
	pipe.Expire(ctx, metaKey(sid), s.ttl)
	pipe.Expire(ctx, messagesKey(sid), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("touch session %s: %w", sid, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, sid string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.Del(ctx, metaKey(sid), messagesKey(sid)).Err(); err != nil {
		return fmt.Errorf("delete session %s: %w", sid, err)
	}
	return nil
}

func (s *Store) EnqueueEscalation(ctx context.Context, sid string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.client.SAdd(ctx, escalationsKey, sid).Err()
}

func (s *Store) DequeueEscalation(ctx context.Context, sid string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return s.client.SRem(ctx, escalationsKey, sid).Err()
}

func (s *Store) ListEscalations(ctx context.Context) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, escalationsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	return ids, nil
}

func (s *Store) AssignAgent(ctx context.Context, sid, agentID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SAdd(ctx, agentSessionsKey(agentID), sid).Err(); err != nil {
		return fmt.Errorf("assign session %s to agent %s: %w", sid, agentID, err)
	}
	return nil
}

func (s *Store) UnassignAgent(ctx context.Context, sid, agentID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.client.SRem(ctx, agentSessionsKey(agentID), sid).Err(); err != nil {
		return fmt.Errorf("unassign session %s from agent %s: %w", sid, agentID, err)
	}
	return nil
}

func (s *Store) ListAgentSessions(ctx context.Context, agentID string) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, agentSessionsKey(agentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions for agent %s: %w", agentID, err)
	}
	return ids, nil
}
