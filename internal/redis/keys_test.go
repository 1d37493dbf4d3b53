package redis

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"schoolbus/internal/repository"
)

func TestKeys(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "lock:trip:bus-1", tripLockKey("bus-1"))
	assert.Equal(t, "sync:riders", changeChannel(repository.CollectionRiders))
	assert.Equal(t, "sync:vehicles", changeChannel(repository.CollectionVehicles))
}
