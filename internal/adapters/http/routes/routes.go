package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/swagger"

	"hospital-queue/internal/adapters/http/handlers"
	"hospital-queue/internal/adapters/http/middleware"
)

// Handlers groups every HTTP handler the router mounts
type Handlers struct {
	Health     *handlers.HealthHandler
	Auth       *handlers.AuthHandler
	Queue      *handlers.QueueHandler
	QueueAdmin *handlers.QueueAdminHandler
	Display    *handlers.QueueDisplayHandler
	Triage     *handlers.TriageHandler
}

// Setup configures all routes for the application
func Setup(app *fiber.App, h *Handlers, jwtSecret string) {
	// ============================================================
	// Public
	// ============================================================
	app.Get("/", h.Health.Root)
	app.Get("/health", h.Health.HealthCheck)
	app.Get("/swagger/*", swagger.HandlerDefault)

	api := app.Group("/api/v1")
	api.Get("/", h.Health.APIInfo)

	auth := api.Group("/auth", middleware.AuthRateLimiter())
	auth.Post("/otp/request", h.Auth.RequestOTP)
	auth.Post("/otp/verify", h.Auth.VerifyOTP)

	api.Get("/hospitals/:id/departments", middleware.CacheControl(30*time.Second), h.Queue.GetDepartments)
	api.Post("/triage", h.Triage.Triage)

	display := api.Group("/display", middleware.NoCacheHeaders())
	display.Get("/departments/:id", h.Display.GetDisplayData)
	display.Get("/departments/:id/events", h.Display.DisplaySSE)

	// ============================================================
	// Patient
	// ============================================================
	queue := api.Group("/queue",
		middleware.AuthMiddleware(jwtSecret),
		middleware.PatientOnly(),
		middleware.NoCacheHeaders(),
	)
	queue.Post("/book", h.Queue.Book)
	queue.Get("/my-appointments", h.Queue.GetMyAppointments)
	queue.Get("/appointments/:id/status", h.Queue.GetStatus)
	queue.Post("/appointments/:id/cancel", h.Queue.Cancel)
	queue.Get("/events", h.Display.PatientSSE)

	// ============================================================
	// Staff
	// ============================================================
	staff := api.Group("/staff",
		middleware.AuthMiddleware(jwtSecret),
		middleware.StaffOrAdmin(),
		middleware.NoCacheHeaders(),
	)
	staff.Post("/departments/:id/call-next", h.QueueAdmin.CallNext)
	staff.Get("/departments/:id/dashboard", h.QueueAdmin.GetDashboard)
	staff.Get("/appointments/:id/status", h.QueueAdmin.GetAppointmentStatus)
	staff.Patch("/appointments/:id/status", h.QueueAdmin.UpdateStatus)
	staff.Post("/appointments/:id/escalate", h.QueueAdmin.Escalate)
	staff.Post("/triage", h.Triage.Triage)

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"error":   "Route not found",
		})
	})
}
