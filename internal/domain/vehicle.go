package domain

// Vehicle represents a school bus and the driver account that operates it.
type Vehicle struct {
	ID       string
	Name     string
	Password string
	Start    Coordinate // depot; the vehicle rests here between runs
	Live     Coordinate
	RiderIDs []string
}

// DocumentID returns the store key of the vehicle record.
func (v *Vehicle) DocumentID() string { return v.ID }

// Clone returns a deep copy of the vehicle.
func (v *Vehicle) Clone() *Vehicle {
	if v == nil {
		return nil
	}
	c := *v
	c.RiderIDs = append([]string(nil), v.RiderIDs...)
	return &c
}

// Assigned reports whether riderID rides this vehicle.
func (v *Vehicle) Assigned(riderID string) bool {
	return containsID(v.RiderIDs, riderID)
}
