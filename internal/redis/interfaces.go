package redis

import (
	"context"
	"time"

	"schoolbus/internal/repository"
	"schoolbus/internal/store"
)

// LocationStoreInterface defines the interface for live vehicle location operations.
type LocationStoreInterface interface {
	UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error
	FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]VehicleLocation, error)
	RemoveLocation(ctx context.Context, vehicleID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	AcquireTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error)
	RenewTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error)
	ReleaseTripLock(ctx context.Context, vehicleID, owner string) error
}

// Ensure concrete types implement interfaces.
var (
	_ LocationStoreInterface  = (*LocationStore)(nil)
	_ LockStoreInterface      = (*LockStore)(nil)
	_ store.Notifier          = (*Notifier)(nil)
	_ repository.SessionStore = (*SessionStore)(nil)
)
