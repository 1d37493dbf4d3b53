package service

import (
	"context"
	"log/slog"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
	"schoolbus/internal/metrics"
	"schoolbus/internal/repository"
)

// BoardingService applies boarding status transitions and writes each changed
// rider back through the store. Write failures are logged and swallowed: the
// returned copy still carries the attempted change until the next snapshot
// from the store replaces it.
type BoardingService struct {
	riders        repository.RiderRepository
	notifications *NotificationService
	metrics       *metrics.Collector
	logger        *slog.Logger
}

// NewBoardingService creates a new BoardingService.
func NewBoardingService(riders repository.RiderRepository, notifications *NotificationService, m *metrics.Collector, logger *slog.Logger) *BoardingService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BoardingService{riders: riders, notifications: notifications, metrics: m, logger: logger}
}

// Record applies a driver's boarding decision to rider.
func (s *BoardingService) Record(ctx context.Context, vehicleID string, rider *domain.Rider, boarded bool) (*domain.Rider, error) {
	if rider == nil || rider.ID == "" {
		return nil, ErrInvalidRiderID
	}

	next := domain.BoardingStatusNotBoarded
	if boarded {
		next = domain.BoardingStatusBoarded
	}
	if !rider.BoardingStatus.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}

	updated := rider.Clone()
	updated.BoardingStatus = next
	s.write(ctx, updated)

	s.metrics.BoardingRecorded(boarded)
	if s.notifications != nil {
		s.notifications.NotifyBoardingRecorded(ctx, vehicleID, updated, boarded)
	}
	return updated, nil
}

// CompleteTrip moves every BOARDED rider to TRIP_COMPLETED. Riders in any other
// state are returned unchanged and not written. It returns the resulting set and
// the number of riders completed.
func (s *BoardingService) CompleteTrip(ctx context.Context, riders []*domain.Rider) ([]*domain.Rider, int) {
	out := make([]*domain.Rider, 0, len(riders))
	completed := 0
	for _, r := range riders {
		c := r.Clone()
		if c.BoardingStatus.CanTransitionTo(domain.BoardingStatusTripCompleted) {
			c.BoardingStatus = domain.BoardingStatusTripCompleted
			s.write(ctx, c)
			completed++
		}
		out = append(out, c)
	}
	return out, completed
}

// Reset returns every rider to DEFAULT with attendance re-enabled.
func (s *BoardingService) Reset(ctx context.Context, riders []*domain.Rider) []*domain.Rider {
	out := make([]*domain.Rider, 0, len(riders))
	for _, r := range riders {
		c := r.Clone()
		c.Reset()
		s.write(ctx, c)
		out = append(out, c)
	}
	return out
}

func (s *BoardingService) write(ctx context.Context, r *domain.Rider) {
	if err := s.riders.Update(ctx, r); err != nil {
		s.metrics.StoreWriteFailed(string(repository.CollectionRiders))
		logging.LogError(s.logger, "rider write failed", err,
			slog.String("rider_id", r.ID),
			slog.String("status", string(r.BoardingStatus)))
	}
}
