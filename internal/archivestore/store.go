// Package archivestore is the MongoDB-backed archival store a session's
// recent-message buffer flushes into on close, mirroring the original
// system's Mongo persistence layer (sessions + messages collections) and
// the teacher's SearchConversations full-text pattern for the one
// supplemental search operation this service adds.
package archivestore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/chatcore/chatcore/internal/domain"
)

type archivedSession struct {
	SessionID string    `bson:"session_id"`
	UserID    string    `bson:"user_id"`
	Summary   string    `bson:"summary"`
	ClosedAt  time.Time `bson:"closed_at"`
	CreatedAt time.Time `bson:"created_at"`
}

type archivedMessage struct {
	SessionID string    `bson:"session_id"`
	UserID    string    `bson:"user_id"`
	Role      string    `bson:"role"`
	Content   string    `bson:"content"`
	CreatedAt time.Time `bson:"created_at"`
}

type Store struct {
	sessions *mongo.Collection
	messages *mongo.Collection
}

func New(db *mongo.Database) *Store {
	return &Store{
		sessions: db.Collection("sessions"),
		messages: db.Collection("messages"),
	}
}

// EnsureIndexes creates the indexes list_user_sessions and search rely on.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "closed_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create session index: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create message index: %w", err)
	}
	return nil
}

// Archive flushes a closed session's buffer and its summary into Mongo.
func (s *Store) Archive(ctx context.Context, meta *domain.Session, messages []domain.Message, closedAt time.Time) error {
	_, err := s.sessions.UpdateOne(ctx,
		bson.M{"session_id": meta.ID},
		bson.M{"$set": archivedSession{
			SessionID: meta.ID,
			UserID:    meta.UserID,
			Summary:   meta.Summary,
			ClosedAt:  closedAt,
			CreatedAt: meta.CreatedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("archive session %s: %w", meta.ID, err)
	}

	if len(messages) == 0 {
		return nil
	}

	docs := make([]any, 0, len(messages))
	for _, m := range messages {
		docs = append(docs, archivedMessage{
			SessionID: meta.ID,
			UserID:    meta.UserID,
			Role:      string(m.Role),
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	if _, err := s.messages.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("archive messages for %s: %w", meta.ID, err)
	}
	return nil
}

// ListUserSessions returns closed sessions for userID, newest first.
func (s *Store) ListUserSessions(ctx context.Context, userID string, limit int) ([]domain.Session, error) {
	opts := options.Find().SetSort(bson.D{{Key: "closed_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.sessions.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list archived sessions for %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	var out []domain.Session
	for cur.Next(ctx) {
		var rec archivedSession
		if err := cur.Decode(&rec); err != nil {
			continue
		}
		out = append(out, domain.Session{
			ID:          rec.SessionID,
			UserID:      rec.UserID,
			Status:      domain.SessionClosed,
			Summary:     rec.Summary,
			CreatedAt:   rec.CreatedAt,
			LastUpdated: rec.ClosedAt,
		})
	}
	return out, cur.Err()
}

// SearchSessions supplements list_user_sessions with free-text matching
// over archived message content, grounded in the teacher's
// SearchConversations (ts_rank + ILIKE) but expressed as a case-insensitive
// Mongo $regex filter on message content since the archival store is Mongo,
// not Postgres. Scoped to
// userID's own archived messages, matching list_user_sessions's ownership
// scoping.
func (s *Store) SearchSessions(ctx context.Context, userID, text string, limit int) ([]string, error) {
	cur, err := s.messages.Find(ctx, bson.M{
		"user_id": userID,
		"content": bson.M{"$regex": text, "$options": "i"},
	}, options.Find().SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("search archived sessions for %s: %w", userID, err)
	}
	defer cur.Close(ctx)

	seen := map[string]bool{}
	var ids []string
	for cur.Next(ctx) {
		var rec archivedMessage
		if err := cur.Decode(&rec); err != nil {
			continue
		}
		if !seen[rec.SessionID] {
			seen[rec.SessionID] = true
			ids = append(ids, rec.SessionID)
		}
	}
	return ids, cur.Err()
}
