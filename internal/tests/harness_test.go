package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"schoolbus/internal/app"
	"schoolbus/internal/domain"
	"schoolbus/internal/handler"
	"schoolbus/internal/repository"
	"schoolbus/internal/service"
	"schoolbus/internal/sim"
	"schoolbus/internal/store"
)

const (
	waitTimeout = 3 * time.Second
	waitTick    = 2 * time.Millisecond
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ──────────────────────────────────────────────
// FIXTURE
// ──────────────────────────────────────────────

// The depot sits at the origin; riders lie east of it along the equator so the
// furthest-first plan is R2, R3, R1.
var depot = domain.Coordinate{Lat: 0, Lng: 0}

func fixtureRiders() []*domain.Rider {
	return []*domain.Rider{
		fixtureRider("R1", "ALICE SMITH", 0.01, "G1"),
		fixtureRider("R2", "BOB SMITH", 0.05, "G1"),
		fixtureRider("R3", "CARA JONES", 0.03, "G2"),
	}
}

func fixtureRider(id, name string, lng float64, guardianID string) *domain.Rider {
	return &domain.Rider{
		ID:             id,
		Name:           name,
		Location:       domain.Coordinate{Lat: 0, Lng: lng},
		Attending:      true,
		BoardingStatus: domain.BoardingStatusDefault,
		GuardianIDs:    []string{guardianID},
	}
}

func fixtureGuardians() []*domain.Guardian {
	return []*domain.Guardian{
		{ID: "G1", Name: "Smith Household", Password: "pw-G1", RiderIDs: []string{"R1", "R2"}},
		{ID: "G2", Name: "Jones Household", Password: "pw-G2", RiderIDs: []string{"R3"}},
	}
}

func fixtureVehicles() []*domain.Vehicle {
	return []*domain.Vehicle{
		{ID: "V1", Name: "Bus 1", Password: "pw-V1", Start: depot, Live: depot, RiderIDs: []string{"R1", "R2", "R3"}},
		{ID: "V2", Name: "Bus 2", Password: "pw-V2", Start: depot, Live: depot},
	}
}

// ──────────────────────────────────────────────
// HARNESS
// ──────────────────────────────────────────────

// harness is the whole HTTP surface over memory collections and mocked
// Redis/NATS collaborators.
type harness struct {
	t      *testing.T
	router *gin.Engine

	riderDocs   *store.MemoryDocuments[*domain.Rider]
	vehicleDocs *store.MemoryDocuments[*domain.Vehicle]

	notifications *service.NotificationService
	fleet         *service.FleetService
	index         *MockLocationStore
	locks         *MockLockStore
	telemetry     *MockTelemetry
	cache         *MockResponseCache
}

type harnessOption func(*harness)

// withIndexError makes every geo index call fail.
func withIndexError(err error) harnessOption {
	return func(h *harness) {
		h.index.UpdateLocationError = err
		h.index.FindNearbyVehiclesError = err
	}
}

func withTelemetryError(err error) harnessOption {
	return func(h *harness) { h.telemetry.PublishError = err }
}

func newHarness(t *testing.T, riders []*domain.Rider, opts ...harnessOption) *harness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h := &harness{
		t:           t,
		riderDocs:   store.NewMemoryDocuments(riders...),
		vehicleDocs: store.NewMemoryDocuments(fixtureVehicles()...),
		index:       NewMockLocationStore(),
		locks:       NewMockLockStore(),
		telemetry:   NewMockTelemetry(),
		cache:       NewMockResponseCache(),
	}
	for _, opt := range opts {
		opt(h)
	}

	notifier := store.NewLocalNotifier()
	riderStore := store.NewCollection[*domain.Rider](repository.CollectionRiders, h.riderDocs, notifier, logger)
	vehicleStore := store.NewCollection[*domain.Vehicle](repository.CollectionVehicles, h.vehicleDocs, notifier, logger)
	guardianStore := store.NewCollection[*domain.Guardian](repository.CollectionGuardians,
		store.NewMemoryDocuments(fixtureGuardians()...), notifier, logger)
	sessions := store.NewMemorySessions()

	h.notifications = service.NewNotificationService(logger)
	boarding := service.NewBoardingService(riderStore, h.notifications, nil, logger)
	h.fleet = service.NewFleetService(service.FleetDeps{
		Riders:        riderStore,
		Vehicles:      vehicleStore,
		Boarding:      boarding,
		Notifications: h.notifications,
		Index:         h.index,
		Telemetry:     h.telemetry,
		Locker:        h.locks,
		Logger:        logger,
	}, service.OrchestratorConfig{
		Motion:       sim.Options{Steps: 10, StepDelay: time.Millisecond},
		BoardingPoll: 5 * time.Millisecond,
		LockTTL:      time.Minute,
	})
	require.NoError(t, h.fleet.Load(context.Background()))
	t.Cleanup(h.fleet.Close)

	viewer := service.NewViewerService(riderStore, guardianStore, vehicleStore, h.index, h.notifications, nil, logger)
	auth := service.NewAuthService(guardianStore, vehicleStore, sessions, logger)

	h.router = app.NewRouter(app.RouterDeps{
		AuthHandler:    handler.NewAuthHandler(auth),
		RiderHandler:   handler.NewRiderHandler(viewer, h.notifications),
		VehicleHandler: handler.NewVehicleHandler(h.fleet, viewer, h.notifications),
		StreamHandler:  handler.NewStreamHandler(viewer, auth, logger),
		Sessions:       auth,
		ResponseCache:  h.cache,
		Logger:         logger,
	})
	return h
}

// ──────────────────────────────────────────────
// REQUEST HELPERS
// ──────────────────────────────────────────────

func (h *harness) newRequest(method, path, token string, body any) *http.Request {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func (h *harness) serve(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func (h *harness) request(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.serve(h.newRequest(method, path, token, body))
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func (h *harness) login(path, id, password string) string {
	h.t.Helper()
	rec := h.request(http.MethodPost, path, "", map[string]any{"id": id, "password": password})
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[handler.SessionResponse](h.t, rec).Token
}

func (h *harness) loginDriver(vehicleID string) string {
	return h.login("/v1/auth/drivers/login", vehicleID, "pw-"+vehicleID)
}

func (h *harness) loginGuardian(guardianID string) string {
	return h.login("/v1/auth/guardians/login", guardianID, "pw-"+guardianID)
}

func (h *harness) trip(vehicleID string) handler.TripResponse {
	h.t.Helper()
	rec := h.request(http.MethodGet, "/v1/vehicles/"+vehicleID+"/trip", "", nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode[handler.TripResponse](h.t, rec)
}

// waitPhase polls the trip endpoint until the vehicle reaches phase with head
// as the rider being driven to or waited on.
func (h *harness) waitPhase(vehicleID string, phase domain.TripPhase, head string) handler.TripResponse {
	h.t.Helper()
	var last handler.TripResponse
	require.Eventually(h.t, func() bool {
		last = h.trip(vehicleID)
		return last.Phase == string(phase) && last.HeadRiderID == head
	}, waitTimeout, waitTick, "waiting for %s at %q", phase, head)
	return last
}

func (h *harness) startTrip(vehicleID, token string) handler.StartTripResponse {
	h.t.Helper()
	rec := h.request(http.MethodPost, "/v1/vehicles/"+vehicleID+"/trip/start", token, nil)
	require.Equal(h.t, http.StatusAccepted, rec.Code, rec.Body.String())
	return decode[handler.StartTripResponse](h.t, rec)
}

func (h *harness) board(vehicleID, token, riderID string, boarded bool) *httptest.ResponseRecorder {
	h.t.Helper()
	return h.request(http.MethodPost, "/v1/vehicles/"+vehicleID+"/trip/boarding", token,
		map[string]any{"rider_id": riderID, "boarded": boarded})
}

func (h *harness) riders() map[string]handler.RiderResponse {
	h.t.Helper()
	rec := h.request(http.MethodGet, "/v1/riders", "", nil)
	require.Equal(h.t, http.StatusOK, rec.Code)
	out := make(map[string]handler.RiderResponse)
	for _, r := range decode[[]handler.RiderResponse](h.t, rec) {
		out[r.ID] = r
	}
	return out
}

func (h *harness) notificationTypes(path, token string) []service.NotificationType {
	h.t.Helper()
	rec := h.request(http.MethodGet, path, token, nil)
	require.Equal(h.t, http.StatusOK, rec.Code, rec.Body.String())
	var types []service.NotificationType
	for _, n := range decode[[]service.Notification](h.t, rec) {
		types = append(types, n.Type)
	}
	return types
}

func stopOrder(t handler.TripResponse) []string {
	ids := make([]string, 0, len(t.Stops))
	for _, s := range t.Stops {
		ids = append(ids, s.RiderID)
	}
	return ids
}

func stopStatus(t handler.TripResponse, riderID string) string {
	for _, s := range t.Stops {
		if s.RiderID == riderID {
			return s.Status
		}
	}
	return ""
}
