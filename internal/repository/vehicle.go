package repository

import (
	"context"

	"schoolbus/internal/domain"
)

// VehicleRepository defines the persistence operations for vehicles.
type VehicleRepository interface {
	// GetByID retrieves a vehicle by ID.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// GetAll retrieves all vehicles.
	GetAll(ctx context.Context) ([]*domain.Vehicle, error)

	// Update replaces the whole vehicle record, creating it if absent.
	Update(ctx context.Context, vehicle *domain.Vehicle) error
}
