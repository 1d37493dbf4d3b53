package service

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"schoolbus/internal/domain"
	"schoolbus/internal/geo"
	"schoolbus/internal/logging"
	"schoolbus/internal/metrics"
	"schoolbus/internal/redis"
	"schoolbus/internal/repository"
)

// NearbyIndex answers radius queries over live vehicle positions.
type NearbyIndex interface {
	FindNearbyVehicles(ctx context.Context, lat, lng, radiusKm float64) ([]redis.VehicleLocation, error)
}

// NearbyVehicle is a vehicle within a search radius.
type NearbyVehicle struct {
	VehicleID string
	Position  domain.Coordinate
	DistKm    float64
}

// ViewerService serves the guardian and dispatcher views of the store. Reads
// that fail or come back empty fall back to the built-in rider set.
type ViewerService struct {
	riders        repository.RiderStore
	guardians     repository.GuardianRepository
	vehicles      repository.VehicleStore
	index         NearbyIndex
	notifications *NotificationService
	metrics       *metrics.Collector
	logger        *slog.Logger
}

// NewViewerService creates a new ViewerService. index may be nil.
func NewViewerService(
	riders repository.RiderStore,
	guardians repository.GuardianRepository,
	vehicles repository.VehicleStore,
	index NearbyIndex,
	notifications *NotificationService,
	m *metrics.Collector,
	logger *slog.Logger,
) *ViewerService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ViewerService{
		riders:        riders,
		guardians:     guardians,
		vehicles:      vehicles,
		index:         index,
		notifications: notifications,
		metrics:       m,
		logger:        logger,
	}
}

// withFallback substitutes the built-in set for an empty or failed read.
func (s *ViewerService) withFallback(riders []*domain.Rider, err error) []*domain.Rider {
	switch {
	case err != nil:
		logging.LogError(s.logger, "rider read failed, showing fallback set", err)
	case len(riders) == 0:
		s.logger.Info("rider read returned no records, showing fallback set",
			slog.String("reason", ErrEmptyResult.Error()))
	default:
		return riders
	}
	return FallbackRiders()
}

// Riders returns every rider, never an empty list.
func (s *ViewerService) Riders(ctx context.Context) []*domain.Rider {
	riders, err := s.riders.GetAll(ctx)
	return s.withFallback(riders, err)
}

// FilterForGuardian keeps only the riders in the guardian's membership set,
// preserving input order.
func FilterForGuardian(g *domain.Guardian, riders []*domain.Rider) []*domain.Rider {
	out := make([]*domain.Rider, 0, len(g.RiderIDs))
	for _, r := range riders {
		if g.CanView(r.ID) {
			out = append(out, r)
		}
	}
	return out
}

// GuardianRiders returns the riders a guardian may view.
func (s *ViewerService) GuardianRiders(ctx context.Context, guardianID string) ([]*domain.Rider, error) {
	g, err := s.guardian(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	return FilterForGuardian(g, s.Riders(ctx)), nil
}

func (s *ViewerService) guardian(ctx context.Context, guardianID string) (*domain.Guardian, error) {
	guardianID = strings.TrimSpace(guardianID)
	if guardianID == "" {
		return nil, ErrInvalidGuardianID
	}
	return s.guardians.GetByID(ctx, guardianID)
}

// WatchRiders streams the full rider list after every change, with fallback.
func (s *ViewerService) WatchRiders(ctx context.Context) (<-chan []*domain.Rider, error) {
	snapshots, err := s.riders.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan []*domain.Rider, 1)
	go func() {
		defer close(out)
		for snap := range snapshots {
			select {
			case out <- s.withFallback(snap.Items, snap.Err):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// WatchGuardianRiders streams the guardian's riders after every change and
// alerts the guardian when one of them is marked BOARDED or NOT_BOARDED.
func (s *ViewerService) WatchGuardianRiders(ctx context.Context, guardianID string) (<-chan []*domain.Rider, error) {
	g, err := s.guardian(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	snapshots, err := s.riders.Subscribe(ctx)
	if err != nil {
		return nil, err
	}

	status := NewDiffWatcher(
		func(r *domain.Rider) string { return r.ID },
		func(r *domain.Rider) domain.BoardingStatus { return r.BoardingStatus },
	)

	out := make(chan []*domain.Rider, 1)
	go func() {
		defer close(out)
		for snap := range snapshots {
			mine := FilterForGuardian(g, s.withFallback(snap.Items, snap.Err))
			byID := make(map[string]*domain.Rider, len(mine))
			for _, r := range mine {
				byID[r.ID] = r
			}
			for _, c := range status.Observe(mine) {
				if c.Current.Decided() && s.notifications != nil {
					s.notifications.NotifyGuardianStatusChanged(ctx, g.ID, byID[c.Key])
				}
			}
			select {
			case out <- mine:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// SetAttendance lets a guardian mark one of its riders as attending or not.
// A failed store write is logged and the updated record is still returned.
func (s *ViewerService) SetAttendance(ctx context.Context, guardianID, riderID string, attending bool) (*domain.Rider, error) {
	if riderID == "" {
		return nil, ErrInvalidRiderID
	}
	g, err := s.guardian(ctx, guardianID)
	if err != nil {
		return nil, err
	}
	if !g.CanView(riderID) {
		return nil, ErrRiderNotOwned
	}

	rider, err := s.riders.GetByID(ctx, riderID)
	if err != nil {
		return nil, err
	}
	rider.Attending = attending
	if err := s.riders.Update(ctx, rider); err != nil {
		s.metrics.StoreWriteFailed(string(repository.CollectionRiders))
		logging.LogError(s.logger, "attendance write failed", err,
			slog.String("rider_id", riderID),
			slog.Bool("attending", attending))
	}
	return rider, nil
}

// Vehicles returns the whole fleet.
func (s *ViewerService) Vehicles(ctx context.Context) ([]*domain.Vehicle, error) {
	return s.vehicles.GetAll(ctx)
}

// Vehicle returns one vehicle.
func (s *ViewerService) Vehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	if vehicleID == "" {
		return nil, ErrInvalidVehicleID
	}
	return s.vehicles.GetByID(ctx, vehicleID)
}

// WatchVehicles streams the fleet after every change. Failed loads are skipped.
func (s *ViewerService) WatchVehicles(ctx context.Context) (<-chan []*domain.Vehicle, error) {
	snapshots, err := s.vehicles.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	out := make(chan []*domain.Vehicle, 1)
	go func() {
		defer close(out)
		for snap := range snapshots {
			if snap.Err != nil {
				continue
			}
			select {
			case out <- snap.Items:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// NearbyVehicles lists vehicles whose live position is within radiusKm of p,
// nearest first. The geo index is used when present; otherwise distances are
// computed over the fleet.
func (s *ViewerService) NearbyVehicles(ctx context.Context, p domain.Coordinate, radiusKm float64) ([]NearbyVehicle, error) {
	if !geo.ValidCoordinate(p) || radiusKm <= 0 {
		return nil, ErrInvalidLocation
	}

	if s.index != nil {
		locs, err := s.index.FindNearbyVehicles(ctx, p.Lat, p.Lng, radiusKm)
		if err == nil {
			out := make([]NearbyVehicle, 0, len(locs))
			for _, l := range locs {
				out = append(out, NearbyVehicle{
					VehicleID: l.VehicleID,
					Position:  domain.Coordinate{Lat: l.Lat, Lng: l.Lng},
					DistKm:    l.DistKm,
				})
			}
			return out, nil
		}
		if !errors.Is(err, context.Canceled) {
			logging.LogError(s.logger, "geo index query failed, scanning fleet", err)
		}
	}

	vehicles, err := s.vehicles.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	var out []NearbyVehicle
	for _, v := range vehicles {
		d := geo.HaversineKm(p, v.Live)
		if d <= radiusKm {
			out = append(out, NearbyVehicle{VehicleID: v.ID, Position: v.Live, DistKm: d})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].DistKm < out[j].DistKm })
	return out, nil
}
