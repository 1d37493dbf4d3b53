package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// LockStore handles distributed locking in Redis. A lock holds its owner's
// token so that only the owner can renew or release it.
type LockStore struct {
	client *redis.Client
}

// NewLockStore creates a new LockStore.
func NewLockStore(client *redis.Client) *LockStore {
	return &LockStore{client: client}
}

func tripLockKey(vehicleID string) string {
	return "lock:trip:" + vehicleID
}

var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// AcquireTripLock claims the right to run a trip for vehicleID on behalf of owner.
// Returns true if the lock was acquired, false if another process holds it.
func (s *LockStore) AcquireTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, tripLockKey(vehicleID), owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// RenewTripLock extends owner's lock to ttl from now. It returns false when the
// lock expired or belongs to someone else.
func (s *LockStore) RenewTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error) {
	n, err := renewScript.Run(ctx, s.client, []string{tripLockKey(vehicleID)}, owner, ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseTripLock releases the trip lock for vehicleID if owner still holds it.
func (s *LockStore) ReleaseTripLock(ctx context.Context, vehicleID, owner string) error {
	return releaseScript.Run(ctx, s.client, []string{tripLockKey(vehicleID)}, owner).Err()
}
