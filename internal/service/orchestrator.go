package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
	"schoolbus/internal/metrics"
	"schoolbus/internal/repository"
	"schoolbus/internal/route"
	"schoolbus/internal/sim"
)

// DefaultBoardingPoll is how often a stopped vehicle re-checks its rider.
const DefaultBoardingPoll = 100 * time.Millisecond

// TripLocker guards a vehicle's run across processes. owner is the run ID;
// renew and release only act on a lock the owner still holds.
type TripLocker interface {
	AcquireTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error)
	RenewTripLock(ctx context.Context, vehicleID, owner string, ttl time.Duration) (bool, error)
	ReleaseTripLock(ctx context.Context, vehicleID, owner string) error
}

// OrchestratorConfig holds the timing knobs of a run.
type OrchestratorConfig struct {
	Motion       sim.Options
	BoardingPoll time.Duration
	LockTTL      time.Duration
}

type decision struct {
	riderID string
	boarded bool
	reply   chan error
}

// boardingWait is open while the vehicle is stopped for one rider.
type boardingWait struct {
	riderID   string
	decisions chan decision // unbuffered
	over      chan struct{}
}

// Orchestrator runs one vehicle's trips: plan, drive each leg, wait for a
// boarding decision at every stop, return to the depot and complete.
// At most one run is active at a time.
type Orchestrator struct {
	vehicleID     string
	riders        repository.RiderStore
	vehicles      repository.VehicleRepository
	boarding      *BoardingService
	notifications *NotificationService
	location      *LocationPublisher
	motion        *sim.Simulator
	locker        TripLocker
	metrics       *metrics.Collector
	logger        *slog.Logger
	cfg           OrchestratorConfig

	root    context.Context
	stop    context.CancelFunc
	control sync.Mutex // serializes Start and Reset

	mu     sync.Mutex
	trip   domain.Trip
	cancel context.CancelFunc
	done   chan struct{}
	wait   *boardingWait
	cache  map[string]*domain.Rider // latest known assigned riders
	closed bool

	absent *DiffWatcher[*domain.Rider, bool]
}

// OrchestratorDeps are the collaborators of an Orchestrator.
type OrchestratorDeps struct {
	Riders        repository.RiderStore
	Vehicles      repository.VehicleRepository
	Boarding      *BoardingService
	Notifications *NotificationService
	Location      *LocationPublisher
	Locker        TripLocker // optional
	Metrics       *metrics.Collector
	Logger        *slog.Logger
}

// NewOrchestrator creates an idle orchestrator for the vehicle held by deps.Location.
// The vehicle starts at its last known live position.
func NewOrchestrator(deps OrchestratorDeps, cfg OrchestratorConfig) *Orchestrator {
	if cfg.BoardingPoll <= 0 {
		cfg.BoardingPoll = DefaultBoardingPoll
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Minute
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	v := deps.Location.Vehicle()
	logger = logger.With(slog.String("vehicle_id", v.ID))
	root, stop := context.WithCancel(context.Background())

	o := &Orchestrator{
		vehicleID:     v.ID,
		riders:        deps.Riders,
		vehicles:      deps.Vehicles,
		boarding:      deps.Boarding,
		notifications: deps.Notifications,
		location:      deps.Location,
		locker:        deps.Locker,
		metrics:       deps.Metrics,
		logger:        logger,
		cfg:           cfg,
		root:          root,
		stop:          stop,
		cache:         make(map[string]*domain.Rider),
		absent: NewDiffWatcher(
			func(r *domain.Rider) string { return r.ID },
			func(r *domain.Rider) bool { return r.Attending },
		),
	}
	o.motion = sim.NewSimulator(v.Live, deps.Location, cfg.Motion, logger)
	o.trip = o.idleTrip()
	return o
}

// Position returns the vehicle's last published position.
func (o *Orchestrator) Position() domain.Coordinate {
	return o.motion.Position()
}

// Park moves the vehicle to its depot without interpolation.
func (o *Orchestrator) Park(ctx context.Context) {
	o.motion.Teleport(ctx, o.location.Vehicle().Start)
}

// Snapshot returns a copy of the current trip state.
func (o *Orchestrator) Snapshot() domain.Trip {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() domain.Trip {
	t := o.trip.Clone()
	t.Position = o.motion.Position()
	return t
}

func (o *Orchestrator) idleTrip() domain.Trip {
	return domain.Trip{VehicleID: o.vehicleID, Phase: domain.TripPhaseIdle}
}

// Watch keeps the local rider cache in sync with the store until ctx is done.
// An assigned rider whose attendance flips to false is dropped from the
// remaining route and the driver is alerted.
func (o *Orchestrator) Watch(ctx context.Context) error {
	snapshots, err := o.riders.Subscribe(ctx)
	if err != nil {
		return fmt.Errorf("subscribe riders: %w", err)
	}
	for snap := range snapshots {
		if snap.Err != nil {
			// Keep the last good cache; the next push recovers.
			continue
		}
		o.resync(ctx, snap.Items)
	}
	return ctx.Err()
}

func (o *Orchestrator) resync(ctx context.Context, items []*domain.Rider) {
	v := o.location.Vehicle()
	assigned := make([]*domain.Rider, 0, len(v.RiderIDs))
	for _, r := range items {
		if v.Assigned(r.ID) {
			assigned = append(assigned, r)
		}
	}

	changes := o.absent.Observe(assigned)

	o.mu.Lock()
	o.cache = make(map[string]*domain.Rider, len(assigned))
	for _, r := range assigned {
		o.cache[r.ID] = r.Clone()
	}
	var dropped []*domain.Rider
	for _, c := range changes {
		if c.Previous && !c.Current {
			r := o.cache[c.Key]
			if o.skipLocked(r.ID) {
				dropped = append(dropped, r.Clone())
			}
		}
	}
	o.mu.Unlock()

	o.alertDropped(ctx, dropped...)
}

// alertDropped tells the driver which riders left the remaining route.
func (o *Orchestrator) alertDropped(ctx context.Context, riders ...*domain.Rider) {
	if o.notifications == nil {
		return
	}
	for _, r := range riders {
		o.notifications.NotifyRiderNotAttending(ctx, o.vehicleID, r)
	}
}

// skipLocked marks the rider's stop skipped if it has not been visited yet.
func (o *Orchestrator) skipLocked(riderID string) bool {
	for i := range o.trip.Stops {
		s := &o.trip.Stops[i]
		if s.RiderID == riderID && s.Status == domain.StopStatusPending {
			s.Status = domain.StopStatusSkipped
			o.metrics.StopSkipped()
			return true
		}
	}
	return false
}

// Start begins a run. If a run is already active it returns the current trip
// and started=false without side effects.
func (o *Orchestrator) Start(ctx context.Context) (domain.Trip, bool, error) {
	o.control.Lock()
	defer o.control.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.Trip{}, false, ErrOrchestratorClosed
	}
	if o.trip.Phase.Active() {
		t := o.snapshotLocked()
		o.mu.Unlock()
		return t, false, nil
	}
	o.mu.Unlock()

	runID := uuid.NewString()
	if o.locker != nil {
		ok, err := o.locker.AcquireTripLock(ctx, o.vehicleID, runID, o.cfg.LockTTL)
		if err != nil {
			return domain.Trip{}, false, fmt.Errorf("acquire trip lock: %w", err)
		}
		if !ok {
			return o.Snapshot(), false, ErrTripLocked
		}
	}

	runCtx, cancel := context.WithCancel(o.root)
	done := make(chan struct{})

	o.mu.Lock()
	o.trip = domain.Trip{
		ID:        runID,
		VehicleID: o.vehicleID,
		Phase:     domain.TripPhasePlanning,
		LegIndex:  -1,
		StartedAt: time.Now(),
	}
	o.cancel = cancel
	o.done = done
	t := o.snapshotLocked()
	o.mu.Unlock()

	o.metrics.TripStarted()
	logging.LogOperation(o.logger, "trip_started", slog.String("trip_id", runID))

	if o.locker != nil {
		go o.holdLock(runCtx, runID, cancel)
	}
	go o.run(runCtx, cancel, runID, done)
	return t, true, nil
}

// holdLock renews the run's trip lock until ctx ends. A run that loses its
// lock is cancelled.
func (o *Orchestrator) holdLock(ctx context.Context, runID string, cancel context.CancelFunc) {
	ticker := time.NewTicker(o.cfg.LockTTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ok, err := o.locker.RenewTripLock(ctx, o.vehicleID, runID, o.cfg.LockTTL)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				logging.LogError(o.logger, "renew trip lock", err, slog.String("trip_id", runID))
				continue
			}
			if !ok {
				o.logger.Warn("trip lock lost, stopping run", slog.String("trip_id", runID))
				cancel()
				return
			}
		}
	}
}

func (o *Orchestrator) run(ctx context.Context, cancel context.CancelFunc, runID string, done chan struct{}) {
	completed := false
	defer close(done)
	defer o.finish(runID, &completed)
	defer cancel()

	stops := o.plan(ctx)
	o.update(runID, func(t *domain.Trip) {
		t.Stops = stops
	})

	for i := range stops {
		if !o.visit(ctx, runID, i) {
			return
		}
	}

	o.update(runID, func(t *domain.Trip) {
		t.Phase = domain.TripPhaseReturning
		t.HeadRiderID = ""
	})
	if err := o.drive(ctx, o.location.Vehicle().Start); err != nil {
		return
	}

	o.update(runID, func(t *domain.Trip) { t.Phase = domain.TripPhaseCompleting })
	riders, boarded := o.boarding.CompleteTrip(ctx, o.assigned(ctx))
	o.remember(riders...)
	if o.notifications != nil {
		o.notifications.NotifyTripCompleted(ctx, o.vehicleID, boarded)
	}
	completed = true
}

// finish returns the orchestrator to Idle unless a newer run has replaced runID.
func (o *Orchestrator) finish(runID string, completed *bool) {
	o.mu.Lock()
	if o.trip.ID == runID {
		o.trip = o.idleTrip()
		o.cancel = nil
	}
	o.mu.Unlock()

	if o.locker != nil {
		if err := o.locker.ReleaseTripLock(context.Background(), o.vehicleID, runID); err != nil {
			logging.LogError(o.logger, "release trip lock", err)
		}
	}
	o.metrics.TripFinished(*completed)
	logging.LogOperation(o.logger, "trip_finished",
		slog.String("trip_id", runID),
		slog.Bool("completed", *completed))
}

// plan snapshots the attending assigned riders and orders them from the depot.
func (o *Orchestrator) plan(ctx context.Context) []domain.Stop {
	if o.vehicles != nil {
		if v, err := o.vehicles.GetByID(ctx, o.vehicleID); err == nil {
			o.location.Refresh(v)
		}
	}
	start := o.location.Vehicle().Start

	ordered := route.Plan(start, o.assigned(ctx))
	stops := make([]domain.Stop, 0, len(ordered))
	for _, r := range ordered {
		stops = append(stops, domain.Stop{
			RiderID:  r.ID,
			Name:     r.Name,
			Location: r.Location,
			Status:   domain.StopStatusPending,
		})
	}
	logging.LogOperation(o.logger, "route_planned",
		slog.Int("stops", len(stops)),
		slog.Float64("length_km", route.LengthKm(start, ordered)))
	return stops
}

// visit drives to stop i and waits for its boarding decision. It reports false
// when the run was cancelled.
func (o *Orchestrator) visit(ctx context.Context, runID string, i int) bool {
	if ctx.Err() != nil {
		return false
	}

	o.mu.Lock()
	stop := o.trip.Stops[i]
	o.mu.Unlock()
	if stop.Status != domain.StopStatusPending {
		return true
	}

	// Attendance may have changed since planning; re-read before committing to the leg.
	rider := o.latest(ctx, stop.RiderID)
	if rider == nil || !rider.Attending {
		o.mu.Lock()
		skipped := o.skipLocked(stop.RiderID)
		o.mu.Unlock()
		if skipped && rider != nil {
			o.alertDropped(ctx, rider)
		}
		return true
	}

	o.update(runID, func(t *domain.Trip) {
		t.Phase = domain.TripPhaseLegInProgress
		t.LegIndex = i
		t.HeadRiderID = rider.ID
	})
	if err := o.drive(ctx, stop.Location); err != nil {
		return false
	}

	// The stop may have been dropped while the vehicle was on its way.
	if !o.stopPending(rider.ID) {
		return true
	}
	if current := o.cached(rider.ID, rider); current.BoardingStatus != domain.BoardingStatusDefault {
		o.markVisited(rider.ID)
		return true
	}
	return o.awaitBoarding(ctx, runID, rider)
}

func (o *Orchestrator) drive(ctx context.Context, to domain.Coordinate) error {
	start := time.Now()
	if err := o.motion.Drive(ctx, to); err != nil {
		return err
	}
	o.metrics.LegDriven(time.Since(start))
	return nil
}

// awaitBoarding blocks until a decision for rider arrives, the rider stops
// attending, the status is set elsewhere, or ctx is cancelled.
func (o *Orchestrator) awaitBoarding(ctx context.Context, runID string, rider *domain.Rider) bool {
	w := &boardingWait{
		riderID:   rider.ID,
		decisions: make(chan decision),
		over:      make(chan struct{}),
	}
	o.mu.Lock()
	if !o.stopPendingLocked(rider.ID) {
		o.mu.Unlock()
		return true
	}
	if o.trip.ID == runID {
		o.trip.Phase = domain.TripPhaseAwaitingBoarding
	}
	o.wait = w
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		o.wait = nil
		o.mu.Unlock()
		close(w.over)
	}()

	if o.notifications != nil {
		o.notifications.NotifyBoardingPrompt(ctx, o.vehicleID, rider)
	}

	ticker := time.NewTicker(o.cfg.BoardingPoll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return false
		case d := <-w.decisions:
			if d.riderID != rider.ID {
				d.reply <- ErrRiderNotAtHead
				continue
			}
			if !o.stopPending(rider.ID) {
				d.reply <- ErrRiderNotAtHead
				return true
			}
			updated, err := o.boarding.Record(ctx, o.vehicleID, o.cached(rider.ID, rider), d.boarded)
			if err != nil {
				d.reply <- err
				continue
			}
			o.remember(updated)
			o.markVisited(rider.ID)
			d.reply <- nil
			return true
		case <-ticker.C:
			resolved, dropped := o.resolvedElsewhere(rider.ID)
			if dropped != nil {
				o.alertDropped(ctx, dropped)
			}
			if resolved {
				return true
			}
		}
	}
}

// resolvedElsewhere reports whether the stopped-for rider no longer needs a
// decision. dropped is set when this call took the rider off the route.
func (o *Orchestrator) resolvedElsewhere(riderID string) (resolved bool, dropped *domain.Rider) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.stopPendingLocked(riderID) {
		return true, nil
	}
	r, ok := o.cache[riderID]
	if !ok {
		return false, nil
	}
	if !r.Attending {
		if o.skipLocked(riderID) {
			return true, r.Clone()
		}
		return true, nil
	}
	if r.BoardingStatus != domain.BoardingStatusDefault {
		o.markVisitedLocked(riderID)
		return true, nil
	}
	return false, nil
}

func (o *Orchestrator) stopPending(riderID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stopPendingLocked(riderID)
}

// stopPendingLocked reports whether riderID still has a PENDING stop in the current trip.
func (o *Orchestrator) stopPendingLocked(riderID string) bool {
	for _, s := range o.trip.Stops {
		if s.RiderID == riderID {
			return s.Status == domain.StopStatusPending
		}
	}
	return false
}

// Decide delivers a driver's boarding decision to the waiting run.
func (o *Orchestrator) Decide(ctx context.Context, riderID string, boarded bool) error {
	if riderID == "" {
		return ErrInvalidRiderID
	}

	o.mu.Lock()
	w := o.wait
	o.mu.Unlock()
	if w == nil {
		return ErrNotAwaitingBoarding
	}
	if w.riderID != riderID {
		return ErrRiderNotAtHead
	}

	d := decision{riderID: riderID, boarded: boarded, reply: make(chan error, 1)}
	select {
	case w.decisions <- d:
	case <-w.over:
		return ErrNotAwaitingBoarding
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-d.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset aborts any active run, parks the vehicle at its depot and returns every
// assigned rider to DEFAULT with attendance re-enabled.
func (o *Orchestrator) Reset(ctx context.Context) (domain.Trip, error) {
	o.control.Lock()
	defer o.control.Unlock()

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return domain.Trip{}, ErrOrchestratorClosed
	}
	cancel, done := o.cancel, o.done
	o.mu.Unlock()

	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-ctx.Done():
			return o.Snapshot(), ctx.Err()
		}
	}

	o.motion.Teleport(ctx, o.location.Vehicle().Start)
	o.remember(o.boarding.Reset(ctx, o.assigned(ctx))...)

	o.mu.Lock()
	o.trip = o.idleTrip()
	t := o.snapshotLocked()
	o.mu.Unlock()

	logging.LogOperation(o.logger, "trip_reset")
	return t, nil
}

// Close stops any active run. The orchestrator cannot be restarted.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	o.closed = true
	done := o.done
	o.mu.Unlock()

	o.stop()
	if done != nil {
		<-done
	}
}

func (o *Orchestrator) update(runID string, fn func(t *domain.Trip)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.trip.ID == runID {
		fn(&o.trip)
	}
}

func (o *Orchestrator) markVisited(riderID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.markVisitedLocked(riderID)
}

func (o *Orchestrator) markVisitedLocked(riderID string) {
	for i := range o.trip.Stops {
		if o.trip.Stops[i].RiderID == riderID && o.trip.Stops[i].Status == domain.StopStatusPending {
			o.trip.Stops[i].Status = domain.StopStatusVisited
		}
	}
}

// assigned returns the vehicle's riders from the store, falling back to the
// local cache when the store cannot be read.
func (o *Orchestrator) assigned(ctx context.Context) []*domain.Rider {
	v := o.location.Vehicle()

	all, err := o.riders.GetAll(ctx)
	if err != nil {
		logging.LogError(o.logger, "load riders, using cache", err)
		o.mu.Lock()
		defer o.mu.Unlock()
		out := make([]*domain.Rider, 0, len(v.RiderIDs))
		for _, id := range v.RiderIDs {
			if r, ok := o.cache[id]; ok {
				out = append(out, r.Clone())
			}
		}
		return out
	}

	out := make([]*domain.Rider, 0, len(v.RiderIDs))
	for _, r := range all {
		if v.Assigned(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// latest re-reads one rider, preferring the store over the cache.
func (o *Orchestrator) latest(ctx context.Context, riderID string) *domain.Rider {
	r, err := o.riders.GetByID(ctx, riderID)
	if err == nil {
		o.remember(r)
		return r
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if c, ok := o.cache[riderID]; ok {
		return c.Clone()
	}
	return nil
}

// cached returns the locally held copy of a rider, or fallback when unknown.
func (o *Orchestrator) cached(riderID string, fallback *domain.Rider) *domain.Rider {
	o.mu.Lock()
	defer o.mu.Unlock()
	if r, ok := o.cache[riderID]; ok {
		return r.Clone()
	}
	return fallback.Clone()
}

func (o *Orchestrator) remember(riders ...*domain.Rider) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, r := range riders {
		o.cache[r.ID] = r.Clone()
	}
}
