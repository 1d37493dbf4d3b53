package domain

// Guardian represents a parent account that can follow its own riders.
type Guardian struct {
	ID       string
	Name     string
	Password string
	RiderIDs []string
}

// DocumentID returns the store key of the guardian record.
func (g *Guardian) DocumentID() string { return g.ID }

// Clone returns a deep copy of the guardian.
func (g *Guardian) Clone() *Guardian {
	if g == nil {
		return nil
	}
	c := *g
	c.RiderIDs = append([]string(nil), g.RiderIDs...)
	return &c
}

// CanView reports whether riderID belongs to the guardian's membership set.
func (g *Guardian) CanView(riderID string) bool {
	return containsID(g.RiderIDs, riderID)
}
