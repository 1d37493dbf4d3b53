package repository

import (
	"context"

	"schoolbus/internal/domain"
)

// RiderRepository defines the persistence operations for riders.
type RiderRepository interface {
	// GetByID retrieves a rider by ID.
	GetByID(ctx context.Context, id string) (*domain.Rider, error)

	// GetAll retrieves all riders.
	GetAll(ctx context.Context) ([]*domain.Rider, error)

	// Update replaces the whole rider record, creating it if absent.
	Update(ctx context.Context, rider *domain.Rider) error
}
