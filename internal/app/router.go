package app

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"schoolbus/internal/domain"
	"schoolbus/internal/handler"
	"schoolbus/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	AuthHandler    *handler.AuthHandler
	RiderHandler   *handler.RiderHandler
	VehicleHandler *handler.VehicleHandler
	StreamHandler  *handler.StreamHandler
	Sessions       middleware.SessionResolver
	ResponseCache  middleware.ResponseCache // optional
	Metrics        http.Handler             // optional
	NewRelicApp    *newrelic.Application    // optional
	Logger         *slog.Logger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
		router.Use(middleware.NewRelicAttributes())
	}

	router.Use(middleware.IdempotencyMiddleware(deps.ResponseCache, deps.Logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Metrics != nil {
		router.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	guardian := middleware.RequireSession(deps.Sessions, domain.RoleGuardian)
	driver := middleware.RequireSession(deps.Sessions, domain.RoleDriver)

	v1 := router.Group("/v1")
	{
		auth := v1.Group("/auth")
		{
			auth.POST("/guardians/login", deps.AuthHandler.LoginGuardian)
			auth.POST("/drivers/login", deps.AuthHandler.LoginDriver)
			auth.GET("/session", deps.AuthHandler.Session)
			auth.POST("/logout", deps.AuthHandler.Logout)
		}

		riders := v1.Group("/riders")
		{
			riders.GET("", deps.RiderHandler.GetAll)
			riders.PUT("/:id/attendance", guardian, deps.RiderHandler.SetAttendance)
		}

		guardians := v1.Group("/guardians", guardian)
		{
			guardians.GET("/:id/riders", deps.RiderHandler.GuardianRiders)
			guardians.GET("/:id/notifications", deps.RiderHandler.Notifications)
		}

		vehicles := v1.Group("/vehicles")
		{
			vehicles.GET("", deps.VehicleHandler.GetAll)
			vehicles.GET("/nearby", deps.VehicleHandler.Nearby)
			vehicles.GET("/:id", deps.VehicleHandler.GetVehicle)
			vehicles.GET("/:id/trip", deps.VehicleHandler.GetTrip)
			vehicles.POST("/:id/trip/start", driver, deps.VehicleHandler.StartTrip)
			vehicles.POST("/:id/trip/reset", driver, deps.VehicleHandler.ResetTrip)
			vehicles.POST("/:id/trip/boarding", driver, deps.VehicleHandler.RecordBoarding)
			vehicles.GET("/:id/notifications", driver, deps.VehicleHandler.Notifications)
		}

		stream := v1.Group("/stream")
		{
			stream.GET("/riders", deps.StreamHandler.Riders)
			stream.GET("/vehicles", deps.StreamHandler.Vehicles)
		}
	}

	return router
}
