package repository

import (
	"context"
	"time"

	"schoolbus/internal/domain"
)

// SessionStore persists authenticated sessions by token.
type SessionStore interface {
	Save(ctx context.Context, session *domain.Session, ttl time.Duration) error
	Get(ctx context.Context, token string) (*domain.Session, error)
	Delete(ctx context.Context, token string) error
}
