package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/service"
)

// RiderHandler handles HTTP requests for riders and the guardian views.
type RiderHandler struct {
	viewer        *service.ViewerService
	notifications *service.NotificationService
}

// NewRiderHandler creates a new RiderHandler.
func NewRiderHandler(viewer *service.ViewerService, notifications *service.NotificationService) *RiderHandler {
	return &RiderHandler{viewer: viewer, notifications: notifications}
}

// AttendanceRequest is the HTTP request body for an attendance toggle.
type AttendanceRequest struct {
	Attending *bool `json:"attending"`
}

// GetAll handles GET /v1/riders
func (h *RiderHandler) GetAll(c *gin.Context) {
	respondJSON(c, http.StatusOK, toRiderResponses(h.viewer.Riders(c.Request.Context())))
}

// GuardianRiders handles GET /v1/guardians/:id/riders
func (h *RiderHandler) GuardianRiders(c *gin.Context) {
	guardianID := c.Param("id")
	if !requireIdentity(c, guardianID) {
		return
	}

	riders, err := h.viewer.GuardianRiders(c.Request.Context(), guardianID)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRiderResponses(riders))
}

// SetAttendance handles PUT /v1/riders/:id/attendance
func (h *RiderHandler) SetAttendance(c *gin.Context) {
	var req AttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Attending == nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "attending is required"})
		return
	}

	s, ok := sessionOf(c)
	if !ok {
		return
	}
	rider, err := h.viewer.SetAttendance(c.Request.Context(), s.Identity, c.Param("id"), *req.Attending)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toRiderResponse(rider))
}

// Notifications handles GET /v1/guardians/:id/notifications
func (h *RiderHandler) Notifications(c *gin.Context) {
	guardianID := c.Param("id")
	if !requireIdentity(c, guardianID) {
		return
	}
	respondJSON(c, http.StatusOK, recent(h.notifications, guardianID))
}
