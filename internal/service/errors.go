package service

import "errors"

var (
	// ErrInvalidCredentials is the only authentication failure shown to callers.
	ErrInvalidCredentials = errors.New("invalid id or password")

	// ErrCredentialMismatch is returned when the record exists but the secret differs.
	// It is logged and then replaced by ErrInvalidCredentials.
	ErrCredentialMismatch = errors.New("credential mismatch")

	// ErrEmptyResult is returned when a collection read yields no records.
	ErrEmptyResult = errors.New("empty result")

	// ErrSessionNotFound is returned when a session token is unknown or expired.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRiderID is returned when rider ID is empty.
	ErrInvalidRiderID = errors.New("invalid rider id")

	// ErrInvalidVehicleID is returned when vehicle ID is empty.
	ErrInvalidVehicleID = errors.New("invalid vehicle id")

	// ErrInvalidGuardianID is returned when guardian ID is empty.
	ErrInvalidGuardianID = errors.New("invalid guardian id")

	// ErrInvalidLocation is returned when location coordinates are invalid.
	ErrInvalidLocation = errors.New("invalid location")

	// ErrInvalidTransition is returned when a boarding status change is not allowed.
	ErrInvalidTransition = errors.New("invalid boarding status transition")

	// ErrNotAwaitingBoarding is returned when a boarding decision arrives while the
	// vehicle is not stopped at a rider.
	ErrNotAwaitingBoarding = errors.New("vehicle is not awaiting a boarding decision")

	// ErrRiderNotAtHead is returned when a boarding decision names a rider other
	// than the one the vehicle is stopped for.
	ErrRiderNotAtHead = errors.New("rider is not at the head of the route")

	// ErrRiderNotOwned is returned when a guardian acts on a rider outside its set.
	ErrRiderNotOwned = errors.New("rider does not belong to guardian")

	// ErrOrchestratorClosed is returned once the fleet has shut down.
	ErrOrchestratorClosed = errors.New("orchestrator closed")

	// ErrTripLocked is returned when another process already runs this vehicle's trip.
	ErrTripLocked = errors.New("trip is running elsewhere")
)
