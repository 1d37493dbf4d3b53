package tests

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"schoolbus/internal/domain"
	"schoolbus/internal/geo"
	"schoolbus/internal/middleware"
	"schoolbus/internal/redis"
	"schoolbus/internal/service"
)

// Ensure mocks implement the interfaces they stand in for.
var (
	_ redis.LocationStoreInterface = (*MockLocationStore)(nil)
	_ redis.LockStoreInterface     = (*MockLockStore)(nil)
	_ service.LocationIndex        = (*MockLocationStore)(nil)
	_ service.NearbyIndex          = (*MockLocationStore)(nil)
	_ service.TripLocker           = (*MockLockStore)(nil)
	_ service.TelemetryPublisher   = (*MockTelemetry)(nil)
	_ middleware.ResponseCache     = (*MockResponseCache)(nil)
)

// ──────────────────────────────────────────────
// MOCK LOCATION STORE
// ──────────────────────────────────────────────

// MockLocationStore is an in-memory stand-in for the Redis GEO index.
type MockLocationStore struct {
	mu        sync.RWMutex
	locations map[string]domain.Coordinate

	// Counters
	UpdateLocationCallCount int32
	FindNearbyCallCount     int32

	// Error injection
	UpdateLocationError     error
	FindNearbyVehiclesError error
}

// NewMockLocationStore creates a new mock location store.
func NewMockLocationStore() *MockLocationStore {
	return &MockLocationStore{locations: make(map[string]domain.Coordinate)}
}

func (m *MockLocationStore) UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error {
	atomic.AddInt32(&m.UpdateLocationCallCount, 1)
	if m.UpdateLocationError != nil {
		return m.UpdateLocationError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locations[vehicleID] = domain.Coordinate{Lat: lat, Lng: lng}
	return nil
}

// FindNearbyVehicles filters by great-circle distance, nearest first, like GEORADIUS ASC.
func (m *MockLocationStore) FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]redis.VehicleLocation, error) {
	atomic.AddInt32(&m.FindNearbyCallCount, 1)
	if m.FindNearbyVehiclesError != nil {
		return nil, m.FindNearbyVehiclesError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	center := domain.Coordinate{Lat: lat, Lng: lng}
	var result []redis.VehicleLocation
	for id, p := range m.locations {
		if d := geo.HaversineKm(center, p); d <= radiusKm {
			result = append(result, redis.VehicleLocation{VehicleID: id, Lat: p.Lat, Lng: p.Lng, DistKm: d})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].DistKm < result[j].DistKm })
	return result, nil
}

func (m *MockLocationStore) RemoveLocation(ctx context.Context, vehicleID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.locations, vehicleID)
	return nil
}

// Location returns the indexed position of a vehicle (for test assertions).
func (m *MockLocationStore) Location(vehicleID string) (domain.Coordinate, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.locations[vehicleID]
	return p, ok
}

// ──────────────────────────────────────────────
// MOCK LOCK STORE
// ──────────────────────────────────────────────

type heldLock struct {
	owner  string
	expiry time.Time
}

// MockLockStore is a mock implementation of the trip lock.
type MockLockStore struct {
	mu    sync.Mutex
	locks map[string]heldLock

	// Counters
	AcquireCallCount int32
	RenewCallCount   int32
	ReleaseCallCount int32

	// Error injection
	AcquireError error
}

// NewMockLockStore creates a new mock lock store.
func NewMockLockStore() *MockLockStore {
	return &MockLockStore{locks: make(map[string]heldLock)}
}

// held returns the live lock under key. Callers hold m.mu.
func (m *MockLockStore) held(key string) (heldLock, bool) {
	l, exists := m.locks[key]
	if !exists || !time.Now().Before(l.expiry) {
		return heldLock{}, false
	}
	return l, true
}

func (m *MockLockStore) AcquireTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.AcquireCallCount, 1)
	if m.AcquireError != nil {
		return false, m.AcquireError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:trip:" + vehicleID
	if _, ok := m.held(key); ok {
		return false, nil
	}
	m.locks[key] = heldLock{owner: owner, expiry: time.Now().Add(ttl)}
	return true, nil
}

// RenewTripLock extends the lock only for its owner, like the Redis script.
func (m *MockLockStore) RenewTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error) {
	atomic.AddInt32(&m.RenewCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:trip:" + vehicleID
	l, ok := m.held(key)
	if !ok || l.owner != owner {
		return false, nil
	}
	l.expiry = time.Now().Add(ttl)
	m.locks[key] = l
	return true, nil
}

// ReleaseTripLock deletes the lock only for its owner, like the Redis script.
func (m *MockLockStore) ReleaseTripLock(ctx context.Context, vehicleID, owner string) error {
	atomic.AddInt32(&m.ReleaseCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()

	key := "lock:trip:" + vehicleID
	if l, ok := m.held(key); ok && l.owner == owner {
		delete(m.locks, key)
	}
	return nil
}

// HoldElsewhere simulates another process running vehicleID's trip.
func (m *MockLockStore) HoldElsewhere(vehicleID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locks["lock:trip:"+vehicleID] = heldLock{owner: "elsewhere", expiry: time.Now().Add(time.Hour)}
}

// IsLocked checks if a vehicle's trip lock is held (for test assertions).
func (m *MockLockStore) IsLocked(vehicleID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.held("lock:trip:" + vehicleID)
	return ok
}

// Owner returns the token holding vehicleID's lock (for test assertions).
func (m *MockLockStore) Owner(vehicleID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, _ := m.held("lock:trip:" + vehicleID)
	return l.owner
}

// ──────────────────────────────────────────────
// MOCK TELEMETRY
// ──────────────────────────────────────────────

// MockTelemetry records published positions in place of NATS.
type MockTelemetry struct {
	mu        sync.Mutex
	positions map[string][]domain.Coordinate

	// Error injection
	PublishError error
}

// NewMockTelemetry creates a new mock telemetry publisher.
func NewMockTelemetry() *MockTelemetry {
	return &MockTelemetry{positions: make(map[string][]domain.Coordinate)}
}

func (m *MockTelemetry) PublishPosition(ctx context.Context, vehicleID string, pos domain.Coordinate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[vehicleID] = append(m.positions[vehicleID], pos)
	return m.PublishError
}

// Positions returns every position published for vehicleID.
func (m *MockTelemetry) Positions(vehicleID string) []domain.Coordinate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.Coordinate(nil), m.positions[vehicleID]...)
}

// ──────────────────────────────────────────────
// MOCK RESPONSE CACHE
// ──────────────────────────────────────────────

// MockResponseCache is an in-memory idempotency cache.
type MockResponseCache struct {
	mu      sync.Mutex
	entries map[string][]byte

	StoreCallCount int32
}

// NewMockResponseCache creates a new mock response cache.
func NewMockResponseCache() *MockResponseCache {
	return &MockResponseCache{entries: make(map[string][]byte)}
}

func (m *MockResponseCache) Lookup(ctx context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.entries[key]
	return data, ok, nil
}

func (m *MockResponseCache) Store(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	atomic.AddInt32(&m.StoreCallCount, 1)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[key]; !ok {
		m.entries[key] = data
	}
	return nil
}
