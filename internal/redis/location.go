package redis

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const vehicleLocationKey = "vehicles:locations"

// VehicleLocation represents a vehicle's last published position.
type VehicleLocation struct {
	VehicleID string
	Lat       float64
	Lng       float64
	DistKm    float64
}

// LocationStore keeps the live position of every vehicle in a Redis GEO set.
type LocationStore struct {
	client *redis.Client
}

// NewLocationStore creates a new LocationStore.
func NewLocationStore(client *redis.Client) *LocationStore {
	return &LocationStore{client: client}
}

// UpdateLocation stores a vehicle's location using GEOADD.
func (s *LocationStore) UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error {
	return s.client.GeoAdd(ctx, vehicleLocationKey, &redis.GeoLocation{
		Name:      vehicleID,
		Longitude: lng,
		Latitude:  lat,
	}).Err()
}

// FindNearbyVehicles returns vehicles within radiusKm, nearest first.
func (s *LocationStore) FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]VehicleLocation, error) {
	results, err := s.client.GeoRadius(ctx, vehicleLocationKey, lng, lat, &redis.GeoRadiusQuery{
		Radius:    radiusKm,
		Unit:      "km",
		WithCoord: true,
		WithDist:  true,
		Sort:      "ASC",
	}).Result()
	if err != nil {
		return nil, err
	}

	locations := make([]VehicleLocation, 0, len(results))
	for _, r := range results {
		locations = append(locations, VehicleLocation{
			VehicleID: r.Name,
			Lat:       r.Latitude,
			Lng:       r.Longitude,
			DistKm:    r.Dist,
		})
	}
	return locations, nil
}

// RemoveLocation removes a vehicle from the geo index.
func (s *LocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	return s.client.ZRem(ctx, vehicleLocationKey, vehicleID).Err()
}
