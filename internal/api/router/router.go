package router

import (
	"lab-registration/internal/api/handlers"
	"lab-registration/internal/api/middleware"
	"lab-registration/internal/domain/user"
	serviceInterfaces "lab-registration/internal/interfaces/service"
	"lab-registration/internal/service"

	"github.com/gin-gonic/gin"
)

// Dependencies are the collaborators the HTTP surface is built from
type Dependencies struct {
	Sessions      serviceInterfaces.LabSessionService
	Registrations serviceInterfaces.RegistrationService
	Attendance    serviceInterfaces.AttendanceService
	Idempotency   *service.IdempotencyService
	Identity      user.IdentityProvider
	Version       string
	HealthChecks  map[string]handlers.HealthCheckFunc
}

func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestLogger())
	r.Use(middleware.CORS())
	r.Use(gin.Recovery())

	sessionHandler := handlers.NewLabSessionHandler(deps.Sessions)
	registrationHandler := handlers.NewRegistrationHandler(deps.Registrations, deps.Idempotency)
	attendanceHandler := handlers.NewAttendanceHandler(deps.Attendance)
	healthHandler := handlers.NewHealthHandler(deps.Version, deps.HealthChecks)

	r.GET("/health", healthHandler.HealthCheck)
	r.GET("/ready", healthHandler.ReadinessCheck)
	r.GET("/live", healthHandler.LivenessCheck)

	v1 := r.Group("/api/v1")
	v1.Use(middleware.Authenticate(deps.Identity))
	{
		sessions := v1.Group("/sessions")
		{
			sessions.GET("", sessionHandler.ListSessions)
			sessions.GET("/available", sessionHandler.ListAvailable)
			sessions.GET("/:id", sessionHandler.GetSession)
			sessions.GET("/:id/slots", sessionHandler.ListSlots)
			sessions.GET("/:id/slots/available", sessionHandler.ListAvailableSlots)
			sessions.GET("/:id/summary", sessionHandler.SlotSummary)
			sessions.GET("/:id/occupancy", sessionHandler.Occupancy)
			sessions.GET("/:id/waitlist", registrationHandler.Waitlist)
		}

		registrations := v1.Group("/registrations")
		registrations.Use(middleware.IdempotencyMiddleware())
		{
			registrations.POST("", registrationHandler.Register)
			registrations.POST("/:id/cancel", registrationHandler.Cancel)
			registrations.GET("/:id/attendance", attendanceHandler.ListByRegistration)
		}

		v1.GET("/me/registrations", registrationHandler.MyRegistrations)

		admin := v1.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.POST("/sessions", sessionHandler.CreateSession)
			admin.PUT("/sessions/:id", sessionHandler.UpdateSession)
			admin.PATCH("/sessions/:id/status", sessionHandler.UpdateStatus)
			admin.DELETE("/sessions/:id", sessionHandler.DeleteSession)
			admin.GET("/sessions/:id/registrations", registrationHandler.SessionRegistrations)

			admin.PATCH("/slots/:id/active", sessionHandler.SetSlotActive)
			admin.DELETE("/slots/:id", sessionHandler.DeleteSlot)

			admin.PATCH("/registrations/:id/slot", registrationHandler.ChangeSlot)
			admin.PATCH("/registrations/:id/status", registrationHandler.UpdateStatus)

			admin.POST("/attendance", attendanceHandler.Mark)
			admin.GET("/sessions/:id/attendance", attendanceHandler.ListBySession)
		}
	}

	return r
}
