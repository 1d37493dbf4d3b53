package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbus/internal/domain"
	"schoolbus/internal/handler"
	"schoolbus/internal/service"
)

// ──────────────────────────────────────────────
// 1. GUARDIAN VIEW
// ──────────────────────────────────────────────

func TestGuardian_SeesOwnRidersOnly(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	token := h.loginGuardian("G1")

	rec := h.request(http.MethodGet, "/v1/guardians/G1/riders", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	riders := decode[[]handler.RiderResponse](t, rec)

	ids := make([]string, 0, len(riders))
	for _, r := range riders {
		ids = append(ids, r.ID)
		assert.Equal(t, service.FormatName(r.Name), r.DisplayName)
	}
	assert.ElementsMatch(t, []string{"R1", "R2"}, ids)

	rec = h.request(http.MethodGet, "/v1/guardians/G2/riders", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = h.request(http.MethodGet, "/v1/guardians/G1/riders", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = h.request(http.MethodGet, "/v1/guardians/V1/riders", h.loginDriver("V1"), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestGuardian_FallbackRidersOnEmptyStore(t *testing.T) {
	h := newHarness(t, nil)

	riders := h.riders()
	require.Len(t, riders, len(service.FallbackRiders()))
	for _, r := range service.FallbackRiders() {
		got, ok := riders[r.ID]
		require.True(t, ok, r.ID)
		assert.Equal(t, string(domain.BoardingStatusDefault), got.BoardingStatus)
	}
}

// ──────────────────────────────────────────────
// 2. ATTENDANCE
// ──────────────────────────────────────────────

func TestGuardian_AttendanceDropMidRun(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	driver := h.loginDriver("V1")
	guardian := h.loginGuardian("G2")

	h.startTrip("V1", driver)
	h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R2")

	rec := h.request(http.MethodPut, "/v1/riders/R3/attendance", guardian, map[string]any{"attending": false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, decode[handler.RiderResponse](t, rec).Attending)

	require.Eventually(t, func() bool {
		return stopStatus(h.trip("V1"), "R3") == string(domain.StopStatusSkipped)
	}, waitTimeout, waitTick, "R3 dropped from the route")
	assert.Contains(t, h.notificationTypes("/v1/vehicles/V1/notifications", driver), service.NotificationRiderAbsent)

	require.Equal(t, http.StatusNoContent, h.board("V1", driver, "R2", true).Code)

	// The next leg goes straight past R3 to R1.
	trip := h.waitPhase("V1", domain.TripPhaseAwaitingBoarding, "R1")
	assert.Equal(t, 2, trip.LegIndex)
	assert.Equal(t, string(domain.StopStatusSkipped), stopStatus(trip, "R3"))
	assert.Equal(t, string(domain.BoardingStatusDefault), h.riders()["R3"].BoardingStatus)
}

func TestGuardian_AttendanceRequiresOwnership(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	g1 := h.loginGuardian("G1")

	tests := []struct {
		name  string
		token string
		rider string
		body  map[string]any
		want  int
	}{
		{"another guardian's rider", g1, "R3", map[string]any{"attending": false}, http.StatusForbidden},
		{"own rider", g1, "R1", map[string]any{"attending": false}, http.StatusOK},
		{"missing flag", g1, "R1", map[string]any{}, http.StatusBadRequest},
		{"driver session", h.loginDriver("V1"), "R1", map[string]any{"attending": true}, http.StatusForbidden},
		{"no session", "", "R1", map[string]any{"attending": true}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := h.request(http.MethodPut, "/v1/riders/"+tt.rider+"/attendance", tt.token, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	riders := h.riders()
	assert.True(t, riders["R3"].Attending)
	assert.False(t, riders["R1"].Attending)
}

func TestGuardian_Notifications(t *testing.T) {
	h := newHarness(t, fixtureRiders())
	g1 := h.loginGuardian("G1")

	rec := h.request(http.MethodGet, "/v1/guardians/G1/notifications", g1, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, "[]", rec.Body.String())

	rec = h.request(http.MethodGet, "/v1/guardians/G2/notifications", g1, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
