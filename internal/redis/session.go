package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
)

const sessionPrefix = "session:"

// SessionStore persists (identity, role) sessions as JSON with a TTL.
type SessionStore struct {
	client *redis.Client
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(client *redis.Client) *SessionStore {
	return &SessionStore{client: client}
}

// Save stores the session under its token.
func (s *SessionStore) Save(ctx context.Context, session *domain.Session, ttl time.Duration) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, sessionPrefix+session.Token, data, ttl).Err()
}

// Get loads a session; a missing or expired key yields repository.ErrNotFound.
func (s *SessionStore) Get(ctx context.Context, token string) (*domain.Session, error) {
	data, err := s.client.Get(ctx, sessionPrefix+token).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	var session domain.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes a session.
func (s *SessionStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionPrefix+token).Err()
}
