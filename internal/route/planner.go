// Package route orders a vehicle's riders into a visiting sequence.
package route

import (
	"sort"

	"schoolbus/internal/domain"
	"schoolbus/internal/geo"
)

// Plan returns the attending riders ordered furthest-first from start.
// Riders at equal distance keep their input order. The input slice is not modified.
func Plan(start domain.Coordinate, riders []*domain.Rider) []*domain.Rider {
	type candidate struct {
		rider *domain.Rider
		dist  float64
	}

	candidates := make([]candidate, 0, len(riders))
	for _, r := range riders {
		if r == nil || !r.Attending {
			continue
		}
		candidates = append(candidates, candidate{rider: r, dist: geo.HaversineKm(start, r.Location)})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].dist > candidates[j].dist
	})

	ordered := make([]*domain.Rider, len(candidates))
	for i, c := range candidates {
		ordered[i] = c.rider
	}
	return ordered
}

// LengthKm returns the great-circle length of start -> stops... -> start.
func LengthKm(start domain.Coordinate, stops []*domain.Rider) float64 {
	total := 0.0
	prev := start
	for _, r := range stops {
		total += geo.HaversineKm(prev, r.Location)
		prev = r.Location
	}
	return total + geo.HaversineKm(prev, start)
}
