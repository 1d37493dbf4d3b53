package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"schoolbus/internal/domain"
	"schoolbus/internal/middleware"
	"schoolbus/internal/service"
)

// AuthHandler handles guardian and driver logins.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

// LoginRequest is the HTTP request body for a login.
type LoginRequest struct {
	ID       string `json:"id"`
	Password string `json:"password"`
	Remember bool   `json:"remember"`
}

// GuardianResponse is the HTTP response for guardian data.
type GuardianResponse struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	RiderIDs []string `json:"rider_ids"`
}

// SessionResponse is returned by login and session resume.
type SessionResponse struct {
	Token     string            `json:"token"`
	Identity  string            `json:"identity"`
	Role      string            `json:"role"`
	CreatedAt string            `json:"created_at"`
	Guardian  *GuardianResponse `json:"guardian,omitempty"`
	Vehicle   *VehicleResponse  `json:"vehicle,omitempty"`
}

func toSessionResponse(s *domain.Session, p service.Principal) SessionResponse {
	resp := SessionResponse{
		Token:     s.Token,
		Identity:  s.Identity,
		Role:      string(s.Role),
		CreatedAt: s.CreatedAt.Format(time.RFC3339),
	}
	if p.Guardian != nil {
		riders := p.Guardian.RiderIDs
		if riders == nil {
			riders = []string{}
		}
		resp.Guardian = &GuardianResponse{ID: p.Guardian.ID, Name: p.Guardian.Name, RiderIDs: riders}
	}
	if p.Vehicle != nil {
		v := toVehicleResponse(p.Vehicle)
		resp.Vehicle = &v
	}
	return resp
}

func bindLogin(c *gin.Context) (service.LoginRequest, bool) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return service.LoginRequest{}, false
	}
	return service.LoginRequest{ID: req.ID, Password: req.Password, Remember: req.Remember}, true
}

// LoginGuardian handles POST /v1/auth/guardians/login
func (h *AuthHandler) LoginGuardian(c *gin.Context) {
	req, ok := bindLogin(c)
	if !ok {
		return
	}
	session, g, err := h.auth.LoginGuardian(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toSessionResponse(session, service.Principal{Guardian: g}))
}

// LoginDriver handles POST /v1/auth/drivers/login
func (h *AuthHandler) LoginDriver(c *gin.Context) {
	req, ok := bindLogin(c)
	if !ok {
		return
	}
	session, v, err := h.auth.LoginDriver(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toSessionResponse(session, service.Principal{Vehicle: v}))
}

// Session handles GET /v1/auth/session: silent re-authentication from a saved token.
func (h *AuthHandler) Session(c *gin.Context) {
	session, p, err := h.auth.Resume(c.Request.Context(), middleware.SessionToken(c))
	if err != nil {
		respondError(c, err)
		return
	}
	respondJSON(c, http.StatusOK, toSessionResponse(session, p))
}

// Logout handles POST /v1/auth/logout
func (h *AuthHandler) Logout(c *gin.Context) {
	if err := h.auth.Logout(c.Request.Context(), middleware.SessionToken(c)); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
