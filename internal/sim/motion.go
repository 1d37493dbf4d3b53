// Package sim moves a simulated vehicle between coordinates, publishing every step.
package sim

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
)

const (
	DefaultSteps     = 100
	DefaultStepDelay = 50 * time.Millisecond
)

// PositionSink receives every position the simulator moves through.
type PositionSink interface {
	PublishPosition(ctx context.Context, pos domain.Coordinate) error
}

// Options control the interpolation rate.
type Options struct {
	Steps     int
	StepDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Steps <= 0 {
		o.Steps = DefaultSteps
	}
	if o.StepDelay < 0 {
		o.StepDelay = 0
	}
	return o
}

// Interpolate returns steps samples on the straight segment from -> to.
// Latitude and longitude advance independently; the last sample equals to exactly.
func Interpolate(from, to domain.Coordinate, steps int) []domain.Coordinate {
	if steps <= 0 {
		return nil
	}
	out := make([]domain.Coordinate, steps)
	for i := 1; i <= steps; i++ {
		f := float64(i) / float64(steps)
		out[i-1] = domain.Coordinate{
			Lat: from.Lat + (to.Lat-from.Lat)*f,
			Lng: from.Lng + (to.Lng-from.Lng)*f,
		}
	}
	out[steps-1] = to
	return out
}

// Simulator tracks the live position of one vehicle.
type Simulator struct {
	sink   PositionSink
	opts   Options
	logger *slog.Logger

	mu  sync.Mutex
	pos domain.Coordinate
}

// NewSimulator creates a simulator resting at start.
func NewSimulator(start domain.Coordinate, sink PositionSink, opts Options, logger *slog.Logger) *Simulator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Simulator{
		sink:   sink,
		opts:   opts.withDefaults(),
		logger: logger,
		pos:    start,
	}
}

// Position returns the last published position.
func (s *Simulator) Position() domain.Coordinate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos
}

// Drive advances from the last published position to target, one step per tick.
// It returns ctx.Err() as soon as ctx is done; no step is published after that.
func (s *Simulator) Drive(ctx context.Context, target domain.Coordinate) error {
	samples := Interpolate(s.Position(), target, s.opts.Steps)

	var tick <-chan time.Time
	if s.opts.StepDelay > 0 {
		ticker := time.NewTicker(s.opts.StepDelay)
		defer ticker.Stop()
		tick = ticker.C
	}

	for _, p := range samples {
		if tick != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-tick:
			}
		}
		// Ticker and Done can be ready together; select picks at random.
		if err := ctx.Err(); err != nil {
			return err
		}
		s.publish(ctx, p)
	}
	return nil
}

// Teleport moves the vehicle to p in a single step.
func (s *Simulator) Teleport(ctx context.Context, p domain.Coordinate) {
	s.publish(ctx, p)
}

func (s *Simulator) publish(ctx context.Context, p domain.Coordinate) {
	s.mu.Lock()
	s.pos = p
	s.mu.Unlock()

	if s.sink == nil {
		return
	}
	if err := s.sink.PublishPosition(ctx, p); err != nil {
		logging.LogError(s.logger, "publish position", err,
			slog.Float64("lat", p.Lat), slog.Float64("lng", p.Lng))
	}
}
