package domain

import "time"

// TripPhase represents the current phase of a vehicle's run.
type TripPhase string

const (
	TripPhaseIdle             TripPhase = "IDLE"
	TripPhasePlanning         TripPhase = "PLANNING"
	TripPhaseLegInProgress    TripPhase = "LEG_IN_PROGRESS"
	TripPhaseAwaitingBoarding TripPhase = "AWAITING_BOARDING"
	TripPhaseReturning        TripPhase = "RETURNING"
	TripPhaseCompleting       TripPhase = "COMPLETING"
)

// Active reports whether a run is in progress.
func (p TripPhase) Active() bool {
	return p != TripPhaseIdle && p != ""
}

// StopStatus represents the outcome of a planned stop.
type StopStatus string

const (
	StopStatusPending StopStatus = "PENDING"
	StopStatusVisited StopStatus = "VISITED"
	StopStatusSkipped StopStatus = "SKIPPED"
)

// Stop is one rider pickup in a planned route.
type Stop struct {
	RiderID  string
	Name     string
	Location Coordinate
	Status   StopStatus
}

// Trip is the ephemeral state of one run. It is never persisted.
type Trip struct {
	ID          string
	VehicleID   string
	Phase       TripPhase
	Stops       []Stop
	LegIndex    int
	HeadRiderID string // rider awaiting a boarding decision or being driven to
	Position    Coordinate
	StartedAt   time.Time
}

// Clone returns a copy of the trip that shares no slices with t.
func (t Trip) Clone() Trip {
	t.Stops = append([]Stop(nil), t.Stops...)
	return t
}
