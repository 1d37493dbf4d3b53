package domain

// Coordinate is a WGS-84 position in degrees.
type Coordinate struct {
	Lat float64
	Lng float64
}
