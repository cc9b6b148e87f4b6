package handlers

import (
	"github.com/gofiber/fiber/v2"

	"hospital-queue/internal/core/triage"
)

// HealthHandler handles health check endpoints
type HealthHandler struct {
	mode   string
	db     func() error
	triage *triage.Service
	hub    interface{ GetClientCount() int }
}

// NewHealthHandler creates a new health handler. dbCheck may be nil when
// the memory store is in use.
func NewHealthHandler(mode string, dbCheck func() error, triageService *triage.Service, hub interface{ GetClientCount() int }) *HealthHandler {
	return &HealthHandler{mode: mode, db: dbCheck, triage: triageService, hub: hub}
}

// Root handles root endpoint
// @Summary Root endpoint
// @Description Returns API status
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *HealthHandler) Root(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "running",
		"message": "Hospital Queue API v1.0 is running",
		"mode":    h.mode,
		"docs":    "/swagger/index.html",
	})
}

// HealthCheck handles health check
// @Summary Health check
// @Description Check API, database and triage model health
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) HealthCheck(c *fiber.Ctx) error {
	dbStatus := "memory"
	code := fiber.StatusOK
	if h.db != nil {
		dbStatus = "healthy"
		if err := h.db(); err != nil {
			dbStatus = "unhealthy"
			code = fiber.StatusServiceUnavailable
		}
	}

	checks := fiber.Map{
		"api":      "healthy",
		"database": dbStatus,
	}
	if h.triage != nil {
		checks["triage_model"] = h.triage.BreakerState()
	}
	if h.hub != nil {
		checks["sse_clients"] = h.hub.GetClientCount()
	}

	status := "ok"
	if code != fiber.StatusOK {
		status = "degraded"
	}
	return c.Status(code).JSON(fiber.Map{
		"status": status,
		"checks": checks,
	})
}

// APIInfo handles API v1 info
// @Summary API v1 Info
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1 [get]
func (h *HealthHandler) APIInfo(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"message": "Hospital Queue API v1.0",
		"version": "1.0.0",
	})
}
