package service

import "schoolbus/internal/domain"

// FallbackRiders returns the built-in rider set shown when the store is empty or
// unreachable. Each call returns fresh records.
func FallbackRiders() []*domain.Rider {
	return []*domain.Rider{
		{
			ID:             "mock_student_a",
			Name:           "Student A",
			Location:       domain.Coordinate{Lat: 25.3727, Lng: 51.5400},
			Attending:      true,
			BoardingStatus: domain.BoardingStatusDefault,
			GuardianIDs:    []string{"mock_parent_1"},
		},
		{
			ID:             "mock_student_b",
			Name:           "Student B",
			Location:       domain.Coordinate{Lat: 25.3250, Lng: 51.5270},
			Attending:      true,
			BoardingStatus: domain.BoardingStatusDefault,
			GuardianIDs:    []string{"mock_parent_2", "mock_parent_3"},
		},
		{
			ID:             "mock_student_c",
			Name:           "Student C",
			Location:       domain.Coordinate{Lat: 25.2600, Lng: 51.4600},
			Attending:      true,
			BoardingStatus: domain.BoardingStatusDefault,
			GuardianIDs:    []string{"mock_parent_4"},
		},
	}
}
