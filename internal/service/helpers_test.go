package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"schoolbus/internal/domain"
	"schoolbus/internal/repository"
	"schoolbus/internal/sim"
	"schoolbus/internal/store"
)

var fastConfig = OrchestratorConfig{
	Motion:       sim.Options{Steps: 10, StepDelay: time.Millisecond},
	BoardingPoll: 5 * time.Millisecond,
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	riderDocs    *store.MemoryDocuments[*domain.Rider]
	riders       *store.Collection[*domain.Rider]
	vehicleDocs  *store.MemoryDocuments[*domain.Vehicle]
	vehicles     *store.Collection[*domain.Vehicle]
	guardianDocs *store.MemoryDocuments[*domain.Guardian]
	guardians    *store.Collection[*domain.Guardian]

	notifications *NotificationService
	boarding      *BoardingService
}

func newTestEnv(riders []*domain.Rider, vehicles []*domain.Vehicle, guardians []*domain.Guardian) *testEnv {
	notifier := store.NewLocalNotifier()
	logger := discardLogger()

	e := &testEnv{
		riderDocs:    store.NewMemoryDocuments(riders...),
		vehicleDocs:  store.NewMemoryDocuments(vehicles...),
		guardianDocs: store.NewMemoryDocuments(guardians...),
	}
	e.riders = store.NewCollection[*domain.Rider](repository.CollectionRiders, e.riderDocs, notifier, logger)
	e.vehicles = store.NewCollection[*domain.Vehicle](repository.CollectionVehicles, e.vehicleDocs, notifier, logger)
	e.guardians = store.NewCollection[*domain.Guardian](repository.CollectionGuardians, e.guardianDocs, notifier, logger)
	e.notifications = NewNotificationService(logger)
	e.boarding = NewBoardingService(e.riders, e.notifications, nil, logger)
	return e
}

func (e *testEnv) rider(t *testing.T, id string) *domain.Rider {
	t.Helper()
	r, err := e.riderDocs.GetByID(context.Background(), id)
	require.NoError(t, err)
	return r
}

func testRider(id string, lat, lng float64) *domain.Rider {
	return &domain.Rider{
		ID:             id,
		Name:           "student " + id,
		Location:       domain.Coordinate{Lat: lat, Lng: lng},
		Attending:      true,
		BoardingStatus: domain.BoardingStatusDefault,
	}
}

func testVehicle(id string, riderIDs ...string) *domain.Vehicle {
	return &domain.Vehicle{
		ID:       id,
		Name:     "Bus " + id,
		Password: "pw-" + id,
		RiderIDs: riderIDs,
	}
}

// recordingTelemetry captures every position a vehicle publishes.
type recordingTelemetry struct {
	mu        sync.Mutex
	positions []domain.Coordinate
}

func (r *recordingTelemetry) PublishPosition(_ context.Context, _ string, pos domain.Coordinate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, pos)
	return nil
}

func (r *recordingTelemetry) all() []domain.Coordinate {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Coordinate(nil), r.positions...)
}

func newTestOrchestrator(t *testing.T, e *testEnv, riders repository.RiderStore, v *domain.Vehicle, cfg OrchestratorConfig) (*Orchestrator, *recordingTelemetry) {
	t.Helper()
	tel := &recordingTelemetry{}
	if riders == nil {
		riders = e.riders
	}
	loc := NewLocationPublisher(v, e.vehicles, nil, tel, nil, discardLogger())
	o := NewOrchestrator(OrchestratorDeps{
		Riders:        riders,
		Vehicles:      e.vehicles,
		Boarding:      e.boarding,
		Notifications: e.notifications,
		Location:      loc,
		Logger:        discardLogger(),
	}, cfg)
	t.Cleanup(o.Close)
	return o, tel
}

func waitForPhase(t *testing.T, o *Orchestrator, phase domain.TripPhase, head string) domain.Trip {
	t.Helper()
	var last domain.Trip
	require.Eventually(t, func() bool {
		last = o.Snapshot()
		return last.Phase == phase && last.HeadRiderID == head
	}, 3*time.Second, 2*time.Millisecond, "waiting for %s at %q", phase, head)
	return last
}

func hasNotification(list []Notification, typ NotificationType) bool {
	for _, n := range list {
		if n.Type == typ {
			return true
		}
	}
	return false
}

// countNotifications counts alerts of typ about riderID.
func countNotifications(list []Notification, typ NotificationType, riderID string) int {
	n := 0
	for _, a := range list {
		if a.Type == typ && a.Data["rider_id"] == riderID {
			n++
		}
	}
	return n
}

const (
	waitTimeout = 3 * time.Second
	waitTick    = 2 * time.Millisecond
)
