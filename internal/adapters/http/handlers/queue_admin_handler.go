package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/core/services"
	"hospital-queue/internal/pkg/response"
)

// QueueAdminHandler handles staff queue endpoints
type QueueAdminHandler struct {
	queueService *services.QueueService
}

// NewQueueAdminHandler creates a new queue admin handler
func NewQueueAdminHandler(queueService *services.QueueService) *QueueAdminHandler {
	return &QueueAdminHandler{
		queueService: queueService,
	}
}

// StatusUpdateRequest is used for explicit status updates
type StatusUpdateRequest struct {
	Status string `json:"status"`
}

// CallNext serves the next patient in a department
// @Summary Call next patient
// @Tags Staff
// @Produce json
// @Security BearerAuth
// @Param id path int true "Department ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /staff/departments/{id}/call-next [post]
func (h *QueueAdminHandler) CallNext(c *fiber.Ctx) error {
	departmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid department ID")
	}

	appt, err := h.queueService.CallNext(c.UserContext(), departmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to call next patient")
	}
	return response.Success(c, "Next patient called", appt)
}

// UpdateStatus applies a status change to an appointment
// @Summary Update appointment status
// @Tags Staff
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Param body body StatusUpdateRequest true "New status"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /staff/appointments/{id}/status [patch]
func (h *QueueAdminHandler) UpdateStatus(c *fiber.Ctx) error {
	appointmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid appointment ID")
	}

	var req StatusUpdateRequest
	if err := c.BodyParser(&req); err != nil || req.Status == "" {
		return response.BadRequest(c, "status is required")
	}
	status, err := domain.ParseStatus(strings.ToUpper(strings.TrimSpace(req.Status)))
	if err != nil {
		return writeQueueError(c, err, "Invalid status")
	}

	appt, err := h.queueService.UpdateStatus(c.UserContext(), appointmentID, status)
	if err != nil {
		return writeQueueError(c, err, "Failed to update status")
	}
	return response.Success(c, "Status updated", appt)
}

// Escalate moves an appointment into the emergency lane
// @Summary Escalate to emergency
// @Tags Staff
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Success 200 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /staff/appointments/{id}/escalate [post]
func (h *QueueAdminHandler) Escalate(c *fiber.Ctx) error {
	appointmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid appointment ID")
	}

	appt, err := h.queueService.Escalate(c.UserContext(), appointmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to escalate appointment")
	}
	return response.Success(c, "Appointment escalated", appt)
}

// GetAppointmentStatus projects any appointment's place in line
// @Summary Appointment queue status
// @Tags Staff
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /staff/appointments/{id}/status [get]
func (h *QueueAdminHandler) GetAppointmentStatus(c *fiber.Ctx) error {
	appointmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid appointment ID")
	}

	status, err := h.queueService.GetQueueStatus(c.UserContext(), appointmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to get queue status")
	}
	return response.Success(c, "Queue status retrieved", status)
}

// GetDashboard returns the department's live line and counts
// @Summary Department dashboard
// @Tags Staff
// @Produce json
// @Security BearerAuth
// @Param id path int true "Department ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /staff/departments/{id}/dashboard [get]
func (h *QueueAdminHandler) GetDashboard(c *fiber.Ctx) error {
	departmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid department ID")
	}

	dash, err := h.queueService.GetDashboard(c.UserContext(), departmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to get dashboard")
	}
	return response.Success(c, "Dashboard retrieved", dash)
}
