package service

import (
	"context"
	"log/slog"
	"sync"

	"schoolbus/internal/domain"
	"schoolbus/internal/geo"
	"schoolbus/internal/metrics"
	"schoolbus/internal/repository"
)

// LocationIndex keeps a searchable index of live vehicle positions.
type LocationIndex interface {
	UpdateLocation(ctx context.Context, vehicleID string, lat, lng float64) error
	RemoveLocation(ctx context.Context, vehicleID string) error
}

// TelemetryPublisher streams vehicle positions to external consumers.
type TelemetryPublisher interface {
	PublishPosition(ctx context.Context, vehicleID string, pos domain.Coordinate) error
}

// LocationPublisher writes a vehicle's live coordinate through the store. It
// holds the latest local copy of the vehicle record and replaces the whole
// record on each write. The geo index and telemetry are best-effort.
type LocationPublisher struct {
	vehicles  repository.VehicleRepository
	index     LocationIndex
	telemetry TelemetryPublisher
	metrics   *metrics.Collector
	logger    *slog.Logger

	mu      sync.Mutex
	vehicle *domain.Vehicle
}

// NewLocationPublisher creates a publisher for vehicle. index and telemetry may be nil.
func NewLocationPublisher(
	vehicle *domain.Vehicle,
	vehicles repository.VehicleRepository,
	index LocationIndex,
	telemetry TelemetryPublisher,
	m *metrics.Collector,
	logger *slog.Logger,
) *LocationPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocationPublisher{
		vehicles:  vehicles,
		index:     index,
		telemetry: telemetry,
		metrics:   m,
		logger:    logger.With(slog.String("vehicle_id", vehicle.ID)),
		vehicle:   vehicle.Clone(),
	}
}

// Vehicle returns a copy of the locally held vehicle record.
func (p *LocationPublisher) Vehicle() *domain.Vehicle {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.vehicle.Clone()
}

// Refresh adopts a newer record from the store, keeping the local live position.
func (p *LocationPublisher) Refresh(v *domain.Vehicle) {
	p.mu.Lock()
	defer p.mu.Unlock()
	live := p.vehicle.Live
	p.vehicle = v.Clone()
	p.vehicle.Live = live
}

// Withdraw takes the vehicle out of the geo index. The stored record keeps its
// last live position.
func (p *LocationPublisher) Withdraw(ctx context.Context) {
	if p.index == nil {
		return
	}
	id := p.Vehicle().ID
	if err := p.index.RemoveLocation(ctx, id); err != nil {
		p.logger.Debug("geo index remove failed", slog.String("error", err.Error()))
	}
}

// PublishPosition records pos as the vehicle's live coordinate.
func (p *LocationPublisher) PublishPosition(ctx context.Context, pos domain.Coordinate) error {
	if !geo.ValidCoordinate(pos) {
		return ErrInvalidLocation
	}

	p.mu.Lock()
	p.vehicle.Live = pos
	record := p.vehicle.Clone()
	p.mu.Unlock()

	err := p.vehicles.Update(ctx, record)
	if err != nil {
		p.metrics.StoreWriteFailed(string(repository.CollectionVehicles))
	} else {
		p.metrics.PositionPublished()
	}

	if p.index != nil {
		if ierr := p.index.UpdateLocation(ctx, record.ID, pos.Lat, pos.Lng); ierr != nil {
			p.logger.Debug("geo index update failed", slog.String("error", ierr.Error()))
		}
	}
	if p.telemetry != nil {
		if terr := p.telemetry.PublishPosition(ctx, record.ID, pos); terr != nil {
			p.logger.Debug("telemetry publish failed", slog.String("error", terr.Error()))
		}
	}
	return err
}
