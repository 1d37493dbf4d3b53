package repository

import (
	"context"

	"schoolbus/internal/domain"
)

// Collection names the synchronized record sets.
type Collection string

const (
	CollectionRiders    Collection = "riders"
	CollectionGuardians Collection = "guardians"
	CollectionVehicles  Collection = "vehicles"
)

// Snapshot is one push from a subscription: the full current record set, or the
// error that prevented loading it.
type Snapshot[T any] struct {
	Items []T
	Err   error
}

// Subscriber streams full snapshots of a collection until ctx is done.
// The first snapshot is delivered right after subscribing.
type Subscriber[T any] interface {
	Subscribe(ctx context.Context) (<-chan Snapshot[T], error)
}

// RiderStore is a synchronized rider collection.
type RiderStore interface {
	RiderRepository
	Subscriber[*domain.Rider]
}

// VehicleStore is a synchronized vehicle collection.
type VehicleStore interface {
	VehicleRepository
	Subscriber[*domain.Vehicle]
}

// GuardianStore is a synchronized guardian collection.
type GuardianStore interface {
	GuardianRepository
	Subscriber[*domain.Guardian]
}
