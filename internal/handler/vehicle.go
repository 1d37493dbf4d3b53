package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/domain"
	"schoolbus/internal/service"
)

const defaultNearbyRadiusKm = 5.0

// VehicleHandler handles HTTP requests for vehicles and their trips.
type VehicleHandler struct {
	fleet         *service.FleetService
	viewer        *service.ViewerService
	notifications *service.NotificationService
}

// NewVehicleHandler creates a new VehicleHandler.
func NewVehicleHandler(fleet *service.FleetService, viewer *service.ViewerService, notifications *service.NotificationService) *VehicleHandler {
	return &VehicleHandler{
		fleet:         fleet,
		viewer:        viewer,
		notifications: notifications,
	}
}

// BoardingRequest is the HTTP request body for a boarding decision.
type BoardingRequest struct {
	RiderID string `json:"rider_id"`
	Boarded *bool  `json:"boarded"`
}

// StartTripResponse wraps the trip with whether this call started it.
type StartTripResponse struct {
	Started bool         `json:"started"`
	Trip    TripResponse `json:"trip"`
}

// NearbyVehicleResponse is one vehicle within a search radius.
type NearbyVehicleResponse struct {
	VehicleID string             `json:"vehicle_id"`
	Position  CoordinateResponse `json:"position"`
	DistKm    float64            `json:"dist_km"`
}

// GetAll handles GET /v1/vehicles
func (h *VehicleHandler) GetAll(c *gin.Context) {
	vehicles, err := h.viewer.Vehicles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toVehicleResponses(vehicles))
}

// GetVehicle handles GET /v1/vehicles/:id
func (h *VehicleHandler) GetVehicle(c *gin.Context) {
	v, err := h.viewer.Vehicle(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toVehicleResponse(v))
}

// Nearby handles GET /v1/vehicles/nearby?lat=&lng=&radius_km=
func (h *VehicleHandler) Nearby(c *gin.Context) {
	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lng, errLng := strconv.ParseFloat(c.Query("lng"), 64)
	if errLat != nil || errLng != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "lat and lng are required"})
		return
	}
	radius := defaultNearbyRadiusKm
	if q := c.Query("radius_km"); q != "" {
		r, err := strconv.ParseFloat(q, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid radius_km"})
			return
		}
		radius = r
	}

	found, err := h.viewer.NearbyVehicles(c.Request.Context(), domain.Coordinate{Lat: lat, Lng: lng}, radius)
	if err != nil {
		respondError(c, err)
		return
	}
	response := make([]NearbyVehicleResponse, 0, len(found))
	for _, v := range found {
		response = append(response, NearbyVehicleResponse{
			VehicleID: v.VehicleID,
			Position:  toCoordinate(v.Position),
			DistKm:    v.DistKm,
		})
	}
	respondJSON(c, http.StatusOK, response)
}

// GetTrip handles GET /v1/vehicles/:id/trip
func (h *VehicleHandler) GetTrip(c *gin.Context) {
	trip, err := h.fleet.Trip(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// StartTrip handles POST /v1/vehicles/:id/trip/start
func (h *VehicleHandler) StartTrip(c *gin.Context) {
	vehicleID := c.Param("id")
	if !requireIdentity(c, vehicleID) {
		return
	}

	trip, started, err := h.fleet.StartTrip(c.Request.Context(), vehicleID)
	if err != nil {
		respondError(c, err)
		return
	}

	code := http.StatusOK
	if started {
		code = http.StatusAccepted
	}
	respondJSON(c, code, StartTripResponse{Started: started, Trip: toTripResponse(trip)})
}

// ResetTrip handles POST /v1/vehicles/:id/trip/reset
func (h *VehicleHandler) ResetTrip(c *gin.Context) {
	vehicleID := c.Param("id")
	if !requireIdentity(c, vehicleID) {
		return
	}

	trip, err := h.fleet.ResetTrip(c.Request.Context(), vehicleID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toTripResponse(trip))
}

// RecordBoarding handles POST /v1/vehicles/:id/trip/boarding
func (h *VehicleHandler) RecordBoarding(c *gin.Context) {
	vehicleID := c.Param("id")
	if !requireIdentity(c, vehicleID) {
		return
	}

	var req BoardingRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Boarded == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "rider_id and boarded are required"})
		return
	}

	if err := h.fleet.RecordBoarding(c.Request.Context(), vehicleID, req.RiderID, *req.Boarded); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Notifications handles GET /v1/vehicles/:id/notifications
func (h *VehicleHandler) Notifications(c *gin.Context) {
	vehicleID := c.Param("id")
	if !requireIdentity(c, vehicleID) {
		return
	}
	respondJSON(c, http.StatusOK, recent(h.notifications, vehicleID))
}
