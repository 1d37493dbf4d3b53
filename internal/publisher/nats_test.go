package publisher

import (
	"testing"
	"time"

	"github.com/mmcloughlin/geohash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbus/internal/domain"
)

func TestSubjectToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "bus_1", subjectToken(" bus 1 "))
	assert.Equal(t, "a_b_c", subjectToken("a.b*c"))
	assert.Equal(t, "_", subjectToken(""))
}

func TestPositionSubject(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "schoolbus.positions.bus-1", positionSubject("schoolbus.positions", "bus-1"))
	assert.Equal(t, "bus_1", positionSubject("", "bus.1"))
}

func TestNewPositionMessage(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 9, 1, 7, 30, 0, 0, time.UTC)
	pos := domain.Coordinate{Lat: 25.3727, Lng: 51.54}

	msg := NewPositionMessage("bus-1", pos, ts)
	assert.Equal(t, "bus-1", msg.VehicleID)
	assert.Equal(t, ts, msg.Timestamp)
	assert.Len(t, msg.Geohash, GeohashPrecision)

	lat, lng := geohash.DecodeCenter(msg.Geohash)
	assert.InDelta(t, pos.Lat, lat, 0.01)
	assert.InDelta(t, pos.Lng, lng, 0.01)
}

func TestDecodePush(t *testing.T) {
	t.Parallel()

	msg, err := DecodePush([]byte(`{"recipient":"mock_parent_1","title":"Boarding","body":"Student A boarded"}`))
	require.NoError(t, err)
	assert.Equal(t, "mock_parent_1", msg.Recipient)
	assert.Equal(t, "Boarding", msg.Title)

	_, err = DecodePush([]byte(`{}`))
	assert.Error(t, err)

	_, err = DecodePush([]byte(`not json`))
	assert.Error(t, err)
}
