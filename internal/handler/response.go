package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/domain"
	"schoolbus/internal/middleware"
	"schoolbus/internal/repository"
	"schoolbus/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code == http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidGuardianID),
		errors.Is(err, service.ErrInvalidLocation):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrInvalidCredentials),
		errors.Is(err, service.ErrSessionNotFound):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrRiderNotOwned):
		return http.StatusForbidden

	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrNotAwaitingBoarding),
		errors.Is(err, service.ErrRiderNotAtHead),
		errors.Is(err, service.ErrTripLocked):
		return http.StatusConflict

	case errors.Is(err, repository.ErrUnavailable),
		errors.Is(err, service.ErrOrchestratorClosed):
		return http.StatusServiceUnavailable

	default:
		return http.StatusInternalServerError
	}
}

// requireIdentity checks that the caller's session belongs to the record in
// the path. It writes a 403 and returns false otherwise.
func requireIdentity(c *gin.Context, id string) bool {
	s, ok := middleware.SessionFromContext(c)
	if !ok || s.Identity != id {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "session does not match " + id})
		return false
	}
	return true
}

// sessionOf returns the caller's session, writing a 401 when there is none.
func sessionOf(c *gin.Context) (*domain.Session, bool) {
	s, ok := middleware.SessionFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, ErrorResponse{Error: service.ErrSessionNotFound.Error()})
	}
	return s, ok
}

// recent returns the recipient's alerts, never null.
func recent(n *service.NotificationService, recipientID string) []service.Notification {
	list := n.Recent(recipientID)
	if list == nil {
		list = []service.Notification{}
	}
	return list
}

// CoordinateResponse is a lat/lng pair.
type CoordinateResponse struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func toCoordinate(p domain.Coordinate) CoordinateResponse {
	return CoordinateResponse{Lat: p.Lat, Lng: p.Lng}
}

// RiderResponse is the HTTP response for rider data.
type RiderResponse struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	DisplayName    string             `json:"display_name"`
	Location       CoordinateResponse `json:"location"`
	Attending      bool               `json:"attending"`
	BoardingStatus string             `json:"boarding_status"`
	GuardianIDs    []string           `json:"guardian_ids"`
}

func toRiderResponse(r *domain.Rider) RiderResponse {
	guardians := r.GuardianIDs
	if guardians == nil {
		guardians = []string{}
	}
	return RiderResponse{
		ID:             r.ID,
		Name:           r.Name,
		DisplayName:    service.FormatName(r.Name),
		Location:       toCoordinate(r.Location),
		Attending:      r.Attending,
		BoardingStatus: string(r.BoardingStatus),
		GuardianIDs:    guardians,
	}
}

func toRiderResponses(riders []*domain.Rider) []RiderResponse {
	out := make([]RiderResponse, 0, len(riders))
	for _, r := range riders {
		out = append(out, toRiderResponse(r))
	}
	return out
}

// VehicleResponse is the HTTP response for vehicle data. The password is never sent.
type VehicleResponse struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	Start    CoordinateResponse `json:"start"`
	Live     CoordinateResponse `json:"live"`
	RiderIDs []string           `json:"rider_ids"`
}

func toVehicleResponse(v *domain.Vehicle) VehicleResponse {
	riders := v.RiderIDs
	if riders == nil {
		riders = []string{}
	}
	return VehicleResponse{
		ID:       v.ID,
		Name:     v.Name,
		Start:    toCoordinate(v.Start),
		Live:     toCoordinate(v.Live),
		RiderIDs: riders,
	}
}

func toVehicleResponses(vehicles []*domain.Vehicle) []VehicleResponse {
	out := make([]VehicleResponse, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, toVehicleResponse(v))
	}
	return out
}

// StopResponse is one planned pickup.
type StopResponse struct {
	RiderID  string             `json:"rider_id"`
	Name     string             `json:"name"`
	Location CoordinateResponse `json:"location"`
	Status   string             `json:"status"`
}

// TripResponse is the HTTP response for a vehicle's run.
type TripResponse struct {
	TripID      string             `json:"trip_id,omitempty"`
	VehicleID   string             `json:"vehicle_id"`
	Phase       string             `json:"phase"`
	Stops       []StopResponse     `json:"stops"`
	LegIndex    int                `json:"leg_index"`
	HeadRiderID string             `json:"head_rider_id,omitempty"`
	Position    CoordinateResponse `json:"position"`
	StartedAt   string             `json:"started_at,omitempty"`
}

func toTripResponse(t domain.Trip) TripResponse {
	stops := make([]StopResponse, 0, len(t.Stops))
	for _, s := range t.Stops {
		stops = append(stops, StopResponse{
			RiderID:  s.RiderID,
			Name:     s.Name,
			Location: toCoordinate(s.Location),
			Status:   string(s.Status),
		})
	}
	resp := TripResponse{
		TripID:      t.ID,
		VehicleID:   t.VehicleID,
		Phase:       string(t.Phase),
		Stops:       stops,
		LegIndex:    t.LegIndex,
		HeadRiderID: t.HeadRiderID,
		Position:    toCoordinate(t.Position),
	}
	if !t.StartedAt.IsZero() {
		resp.StartedAt = t.StartedAt.Format(time.RFC3339)
	}
	return resp
}
