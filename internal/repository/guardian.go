package repository

import (
	"context"

	"schoolbus/internal/domain"
)

// GuardianRepository defines the persistence operations for guardians.
type GuardianRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Guardian, error)
	GetAll(ctx context.Context) ([]*domain.Guardian, error)
	Update(ctx context.Context, guardian *domain.Guardian) error
}
