// Package seed loads a YAML fixture of riders, guardians and vehicles and
// upserts it into the store at boot.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"schoolbus/internal/domain"
	"schoolbus/internal/logging"
	"schoolbus/internal/repository"
)

type Coordinate struct {
	Lat float64 `yaml:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `yaml:"lng" validate:"gte=-180,lte=180"`
}

type Rider struct {
	ID          string     `yaml:"id" validate:"required"`
	Name        string     `yaml:"name" validate:"required"`
	Location    Coordinate `yaml:"location"`
	Attending   *bool      `yaml:"attending"`
	GuardianIDs []string   `yaml:"guardian_ids"`
}

type Guardian struct {
	ID       string   `yaml:"id" validate:"required"`
	Name     string   `yaml:"name"`
	Password string   `yaml:"password" validate:"required"`
	RiderIDs []string `yaml:"rider_ids" validate:"dive,required"`
}

type Vehicle struct {
	ID       string     `yaml:"id" validate:"required"`
	Name     string     `yaml:"name"`
	Password string     `yaml:"password" validate:"required"`
	Start    Coordinate `yaml:"start"`
	RiderIDs []string   `yaml:"rider_ids" validate:"dive,required"`
}

// Fixture is the file layout.
type Fixture struct {
	Riders    []Rider    `yaml:"riders" validate:"dive"`
	Guardians []Guardian `yaml:"guardians" validate:"dive"`
	Vehicles  []Vehicle  `yaml:"vehicles" validate:"dive"`
}

// Load reads and validates a fixture file.
func Load(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates fixture YAML. Every rider and vehicle reference
// must resolve within the fixture.
func Parse(data []byte) (*Fixture, error) {
	var f Fixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := validator.New().Struct(f); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}

	riders := make(map[string]bool, len(f.Riders))
	for _, r := range f.Riders {
		if riders[r.ID] {
			return nil, fmt.Errorf("invalid seed: duplicate rider %q", r.ID)
		}
		riders[r.ID] = true
	}
	for _, g := range f.Guardians {
		for _, id := range g.RiderIDs {
			if !riders[id] {
				return nil, fmt.Errorf("invalid seed: guardian %q references unknown rider %q", g.ID, id)
			}
		}
	}
	for _, v := range f.Vehicles {
		for _, id := range v.RiderIDs {
			if !riders[id] {
				return nil, fmt.Errorf("invalid seed: vehicle %q references unknown rider %q", v.ID, id)
			}
		}
	}
	return &f, nil
}

// Records converts the fixture into domain records. Riders start in DEFAULT and
// attend unless the fixture says otherwise; vehicles start at their depot.
func (f *Fixture) Records() ([]*domain.Rider, []*domain.Guardian, []*domain.Vehicle) {
	riders := make([]*domain.Rider, 0, len(f.Riders))
	for _, r := range f.Riders {
		attending := true
		if r.Attending != nil {
			attending = *r.Attending
		}
		riders = append(riders, &domain.Rider{
			ID:             r.ID,
			Name:           r.Name,
			Location:       domain.Coordinate{Lat: r.Location.Lat, Lng: r.Location.Lng},
			Attending:      attending,
			BoardingStatus: domain.BoardingStatusDefault,
			GuardianIDs:    r.GuardianIDs,
		})
	}

	guardians := make([]*domain.Guardian, 0, len(f.Guardians))
	for _, g := range f.Guardians {
		guardians = append(guardians, &domain.Guardian{
			ID:       g.ID,
			Name:     g.Name,
			Password: g.Password,
			RiderIDs: g.RiderIDs,
		})
	}

	vehicles := make([]*domain.Vehicle, 0, len(f.Vehicles))
	for _, v := range f.Vehicles {
		start := domain.Coordinate{Lat: v.Start.Lat, Lng: v.Start.Lng}
		vehicles = append(vehicles, &domain.Vehicle{
			ID:       v.ID,
			Name:     v.Name,
			Password: v.Password,
			Start:    start,
			Live:     start,
			RiderIDs: v.RiderIDs,
		})
	}
	return riders, guardians, vehicles
}

// Apply upserts every fixture record.
func Apply(
	ctx context.Context,
	f *Fixture,
	riders repository.RiderRepository,
	guardians repository.GuardianRepository,
	vehicles repository.VehicleRepository,
	logger *slog.Logger,
) error {
	rs, gs, vs := f.Records()
	for _, r := range rs {
		if err := riders.Update(ctx, r); err != nil {
			return fmt.Errorf("seed rider %s: %w", r.ID, err)
		}
	}
	for _, g := range gs {
		if err := guardians.Update(ctx, g); err != nil {
			return fmt.Errorf("seed guardian %s: %w", g.ID, err)
		}
	}
	for _, v := range vs {
		if err := vehicles.Update(ctx, v); err != nil {
			return fmt.Errorf("seed vehicle %s: %w", v.ID, err)
		}
	}
	logging.LogOperation(logger, "seed_applied",
		slog.Int("riders", len(rs)),
		slog.Int("guardians", len(gs)),
		slog.Int("vehicles", len(vs)))
	return nil
}
