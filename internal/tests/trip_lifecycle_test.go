package tests

import (
	"net/http"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbus/internal/domain"
	"schoolbus/internal/handler"
	"schoolbus/internal/middleware"
	"schoolbus/internal/service"
)

// ──────────────────────────────────────────────
// 1. FULL RUN
// ──────────────────────────────────────────────

func TestTrip_FullRunOverHTTP(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")

	started := h.startTrip("V1", driver)
	assert.True(t, started.Started)
	assert.NotEmpty(t, started.Trip.TripID)
	assert.True(t, h.locks.IsLocked("V1"), "trip lock held while running")
	assert.Equal(t, started.Trip.TripID, h.locks.Owner("V1"))

	trip := h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R2")
	assert.Equal(t, []string{"R2", "R3", "R1"}, stopOrder(trip), "furthest rider first")
	assert.Equal(t, 0, trip.LegIndex)
	assert.Equal(t, handler.CoordinateResponse{Lat: 0, Lng: 0.05}, trip.Position)

	rec := h.board("V1", driver, "R2", true)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R3")
	rec = h.board("V1", driver, "R3", false)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	trip = h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R1")
	assert.Equal(t, string(domain.StopStatusVisited), stopStatus(trip, "R2"))
	assert.Equal(t, string(domain.StopStatusVisited), stopStatus(trip, "R3"))
	rec = h.board("V1", driver, "R1", true)
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	h.waitPhase("V1", domain.TripPhaseIdle, "")
	require.Eventually(t, func() bool {
		r := h.riders()
		return r["R1"].BoardingStatus == string(domain.BoardingStatusTripCompleted) &&
			r["R2"].BoardingStatus == string(domain.BoardingStatusTripCompleted)
	}, waitTimeout, waitTick)
	assert.Equal(t, string(domain.BoardingStatusNotBoarded), h.riders()["R3"].BoardingStatus)

	require.Eventually(t, func() bool { return !h.locks.IsLocked("V1") }, waitTimeout, waitTick)

	positions := h.telemetry.Positions("V1")
	require.NotEmpty(t, positions)
	assert.Equal(t, depot, positions[len(positions)-1], "run ends at the depot")
	indexed, ok := h.index.Location("V1")
	require.True(t, ok)
	assert.Equal(t, depot, indexed)

	types := h.notificationTypes("/v1/vehicles/V1/notifications", driver)
	assert.Contains(t, types, service.NotificationBoardingPrompt)
	assert.Contains(t, types, service.NotificationBoardingRecorded)
	assert.Contains(t, types, service.NotificationTripCompleted)
}

func TestTrip_SecondStartReportsRunningTrip(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")

	first := h.startTrip("V1", driver)
	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R2")

	rec := h.request(http.MethodPost, "/v1/vehicles/V1/trip/start", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[handler.StartTripResponse](t, rec)
	assert.False(t, again.Started)
	assert.Equal(t, first.Trip.TripID, again.Trip.TripID)
	assert.Equal(t, string(domain.TripPhaseAwaitingBoarding), again.Trip.Phase)
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.locks.AcquireCallCount))
}

// ──────────────────────────────────────────────
// 2. BOARDING DECISIONS
// ──────────────────────────────────────────────

func TestTrip_BoardingRejections(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")

	t.Run("idle vehicle", func(t *testing.T) {
		rec := h.board("V1", driver, "R2", true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	h.startTrip("V1", driver)
	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R2")

	t.Run("rider not at the stop", func(t *testing.T) {
		rec := h.board("V1", driver, "R1", true)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing decision", func(t *testing.T) {
		rec := h.request(http.MethodPost, "/v1/vehicles/V1/trip/boarding", driver, map[string]any{"rider_id": "R2"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("missing rider", func(t *testing.T) {
		rec := h.request(http.MethodPost, "/v1/vehicles/V1/trip/boarding", driver, map[string]any{"boarded": true})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	// None of the rejections moved the run along.
	trip := h.trip("V1")
	assert.Equal(t, string(domain.TripPhaseAwaitingBoarding), trip.Phase)
	assert.Equal(t, "R2", trip.HeadRiderID)
	assert.Equal(t, string(domain.BoardingStatusDefault), h.riders()["R1"].BoardingStatus)
}

// ──────────────────────────────────────────────
// 3. RESET
// ──────────────────────────────────────────────

func TestTrip_ResetMidRun(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")

	h.startTrip("V1", driver)
	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R2")
	require.Equal(t, http.StatusNoContent, h.board("V1", driver, "R2", true).Code)
	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R3")

	rec := h.request(http.MethodPost, "/v1/vehicles/V1/trip/reset", driver, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	trip := decode[handler.TripResponse](t, rec)
	assert.Equal(t, string(domain.TripPhaseIdle), trip.Phase)
	assert.Empty(t, trip.Stops)
	assert.Equal(t, handler.CoordinateResponse{}, trip.Position)

	for id, r := range h.riders() {
		assert.Equal(t, string(domain.BoardingStatusDefault), r.BoardingStatus, id)
		assert.True(t, r.Attending, id)
	}
	assert.False(t, h.locks.IsLocked("V1"))

	positions := h.telemetry.Positions("V1")
	assert.Equal(t, depot, positions[len(positions)-1])

	// The vehicle can run again straight away.
	again := h.startTrip("V1", driver)
	assert.True(t, again.Started)
	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R2")
}

// ──────────────────────────────────────────────
// 4. ACCESS AND LOCKING
// ──────────────────────────────────────────────

func TestTrip_DriverAccess(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	other := h.loginDriver("V2")
	guardian := h.loginGuardian("G1")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no session", "", http.StatusUnauthorized},
		{"unknown token", "not-a-session", http.StatusUnauthorized},
		{"guardian session", guardian, http.StatusForbidden},
		{"another vehicle's driver", other, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, path := range []string{"/v1/vehicles/V1/trip/start", "/v1/vehicles/V1/trip/reset"} {
				rec := h.request(http.MethodPost, path, tt.token, nil)
				assert.Equal(t, tt.want, rec.Code, path)
			}
		})
	}
	assert.Equal(t, string(domain.TripPhaseIdle), h.trip("V1").Phase)
}

func TestTrip_LockHeldElsewhere(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")
	h.locks.HoldElsewhere("V1")

	rec := h.request(http.MethodPost, "/v1/vehicles/V1/trip/start", driver, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, string(domain.TripPhaseIdle), h.trip("V1").Phase)
	assert.Empty(t, h.telemetry.Positions("V1"))
}

func TestTrip_UnknownVehicle(t *testing.T) {
	h := newHarness(t, fixtureRiders())

	rec := h.request(http.MethodGet, "/v1/vehicles/V9/trip", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTrip_IdempotentStart(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")

	send := func() (*handler.StartTripResponse, string, int) {
		req := h.newRequest(http.MethodPost, "/v1/vehicles/V1/trip/start", driver, nil)
		req.Header.Set(middleware.IdempotencyHeader, "start-1")
		rec := h.serve(req)
		resp := decode[handler.StartTripResponse](t, rec)
		return &resp, rec.Header().Get("Idempotent-Replayed"), rec.Code
	}

	first, replayed, code := send()
	assert.Equal(t, http.StatusAccepted, code)
	assert.Empty(t, replayed)

	second, replayed, code := send()
	assert.Equal(t, http.StatusAccepted, code)
	assert.Equal(t, "true", replayed)
	assert.Equal(t, first.Trip.TripID, second.Trip.TripID)
	assert.True(t, second.Started)

	assert.Equal(t, int32(1), atomic.LoadInt32(&h.locks.AcquireCallCount))
	assert.Equal(t, int32(1), atomic.LoadInt32(&h.cache.StoreCallCount))
}
