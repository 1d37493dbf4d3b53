package service

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
	"schoolbus/internal/metrics"
	"schoolbus/internal/repository"
)

// FleetDeps are the shared collaborators of every vehicle's orchestrator.
type FleetDeps struct {
	Riders        repository.RiderStore
	Vehicles      repository.VehicleStore
	Boarding      *BoardingService
	Notifications *NotificationService
	Index         LocationIndex      // optional
	Telemetry     TelemetryPublisher // optional
	Locker        TripLocker         // optional
	Metrics       *metrics.Collector
	Logger        *slog.Logger
}

// FleetService owns one Orchestrator per vehicle. Orchestrators share no state
// except through the store.
type FleetService struct {
	deps FleetDeps
	cfg  OrchestratorConfig

	root context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu            sync.Mutex
	orchestrators map[string]*Orchestrator
	closed        bool
}

// NewFleetService creates a new FleetService.
func NewFleetService(deps FleetDeps, cfg OrchestratorConfig) *FleetService {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	root, stop := context.WithCancel(context.Background())
	return &FleetService{
		deps:          deps,
		cfg:           cfg,
		root:          root,
		stop:          stop,
		orchestrators: make(map[string]*Orchestrator),
	}
}

// Load creates orchestrators for every vehicle in the store.
func (f *FleetService) Load(ctx context.Context) error {
	vehicles, err := f.deps.Vehicles.GetAll(ctx)
	if err != nil {
		return err
	}
	for _, v := range vehicles {
		if _, err := f.orchestrator(ctx, v.ID); err != nil {
			return err
		}
	}
	return nil
}

func (f *FleetService) orchestrator(ctx context.Context, vehicleID string) (*Orchestrator, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrOrchestratorClosed
	}
	if o, ok := f.orchestrators[vehicleID]; ok {
		f.mu.Unlock()
		return o, nil
	}
	f.mu.Unlock()

	v, err := f.deps.Vehicles.GetByID(ctx, vehicleID)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return nil, ErrOrchestratorClosed
	}
	if o, ok := f.orchestrators[vehicleID]; ok {
		f.mu.Unlock()
		return o, nil
	}

	location := NewLocationPublisher(v, f.deps.Vehicles, f.deps.Index, f.deps.Telemetry, f.deps.Metrics, f.deps.Logger)
	o := NewOrchestrator(OrchestratorDeps{
		Riders:        f.deps.Riders,
		Vehicles:      f.deps.Vehicles,
		Boarding:      f.deps.Boarding,
		Notifications: f.deps.Notifications,
		Location:      location,
		Locker:        f.deps.Locker,
		Metrics:       f.deps.Metrics,
		Logger:        f.deps.Logger,
	}, f.cfg)
	f.orchestrators[vehicleID] = o

	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		if err := o.Watch(f.root); err != nil && !errors.Is(err, context.Canceled) {
			logging.LogError(f.deps.Logger, "rider watch stopped", err, slog.String("vehicle_id", vehicleID))
		}
	}()
	f.mu.Unlock()

	// A vehicle left mid-route by a previous process rests at its depot again.
	if v.Live != v.Start {
		o.Park(ctx)
	}
	return o, nil
}

// StartTrip starts vehicleID's run. started is false when a run was already active.
func (f *FleetService) StartTrip(ctx context.Context, vehicleID string) (trip domain.Trip, started bool, err error) {
	o, err := f.orchestrator(ctx, vehicleID)
	if err != nil {
		return domain.Trip{}, false, err
	}
	return o.Start(ctx)
}

// ResetTrip aborts vehicleID's run and re-arms its riders.
func (f *FleetService) ResetTrip(ctx context.Context, vehicleID string) (domain.Trip, error) {
	o, err := f.orchestrator(ctx, vehicleID)
	if err != nil {
		return domain.Trip{}, err
	}
	return o.Reset(ctx)
}

// RecordBoarding delivers a driver's decision for the rider at vehicleID's stop.
func (f *FleetService) RecordBoarding(ctx context.Context, vehicleID, riderID string, boarded bool) error {
	o, err := f.orchestrator(ctx, vehicleID)
	if err != nil {
		return err
	}
	return o.Decide(ctx, riderID, boarded)
}

// Trip returns vehicleID's current trip state.
func (f *FleetService) Trip(ctx context.Context, vehicleID string) (domain.Trip, error) {
	o, err := f.orchestrator(ctx, vehicleID)
	if err != nil {
		return domain.Trip{}, err
	}
	return o.Snapshot(), nil
}

// Close stops every run and subscription, waits for them to exit and takes
// the vehicles out of the geo index.
func (f *FleetService) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	all := make([]*Orchestrator, 0, len(f.orchestrators))
	for _, o := range f.orchestrators {
		all = append(all, o)
	}
	f.mu.Unlock()

	f.stop()
	for _, o := range all {
		o.Close()
	}
	f.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, o := range all {
		o.location.Withdraw(ctx)
	}
}
