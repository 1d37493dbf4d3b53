package domain

// BoardingStatus represents where a rider is in today's boarding lifecycle.
type BoardingStatus string

const (
	BoardingStatusDefault       BoardingStatus = "DEFAULT"
	BoardingStatusBoarded       BoardingStatus = "BOARDED"
	BoardingStatusNotBoarded    BoardingStatus = "NOT_BOARDED"
	BoardingStatusTripCompleted BoardingStatus = "TRIP_COMPLETED"
)

// Valid reports whether s is one of the known statuses.
func (s BoardingStatus) Valid() bool {
	switch s {
	case BoardingStatusDefault, BoardingStatusBoarded, BoardingStatusNotBoarded, BoardingStatusTripCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether a single forward transition from s to next is allowed.
// Returning to DEFAULT is only possible through Rider.Reset.
func (s BoardingStatus) CanTransitionTo(next BoardingStatus) bool {
	switch s {
	case BoardingStatusDefault:
		return next == BoardingStatusBoarded || next == BoardingStatusNotBoarded
	case BoardingStatusBoarded:
		return next == BoardingStatusTripCompleted
	}
	return false
}

// Decided reports whether a boarding decision has been recorded.
func (s BoardingStatus) Decided() bool {
	return s == BoardingStatusBoarded || s == BoardingStatusNotBoarded
}

// Rider represents a student picked up by a vehicle.
type Rider struct {
	ID             string
	Name           string
	Location       Coordinate
	Attending      bool // guardian controlled
	BoardingStatus BoardingStatus
	GuardianIDs    []string
}

// DocumentID returns the store key of the rider record.
func (r *Rider) DocumentID() string { return r.ID }

// Clone returns a deep copy of the rider.
func (r *Rider) Clone() *Rider {
	if r == nil {
		return nil
	}
	c := *r
	c.GuardianIDs = append([]string(nil), r.GuardianIDs...)
	return &c
}

// Reset returns the rider to DEFAULT and marks it attending.
func (r *Rider) Reset() {
	r.BoardingStatus = BoardingStatusDefault
	r.Attending = true
}

func containsID(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
