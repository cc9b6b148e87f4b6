package handlers

import (
	"github.com/gofiber/fiber/v2"

	"hospital-queue/internal/core/services"
	"hospital-queue/internal/pkg/pagination"
	"hospital-queue/internal/pkg/response"
)

// QueueHandler handles patient-facing queue endpoints
type QueueHandler struct {
	queueService *services.QueueService
}

// NewQueueHandler creates a new queue handler
func NewQueueHandler(queueService *services.QueueService) *QueueHandler {
	return &QueueHandler{
		queueService: queueService,
	}
}

// GetDepartments lists the departments of a hospital
// @Summary List departments
// @Tags Queue
// @Produce json
// @Param id path int true "Hospital ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /hospitals/{id}/departments [get]
func (h *QueueHandler) GetDepartments(c *fiber.Ctx) error {
	hospitalID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid hospital ID")
	}

	depts, err := h.queueService.ListDepartments(c.UserContext(), hospitalID)
	if err != nil {
		return writeQueueError(c, err, "Failed to get departments")
	}
	return response.Success(c, "Departments retrieved", depts)
}

// Book issues a token in a department queue
// @Summary Book a queue token
// @Tags Queue
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param body body services.BookInput true "Booking"
// @Success 201 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /queue/book [post]
func (h *QueueHandler) Book(c *fiber.Ctx) error {
	patientID, ok := currentUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	var input services.BookInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}
	if input.HospitalID == 0 || input.DepartmentID == 0 {
		return response.BadRequest(c, "hospital_id and department_id are required")
	}
	input.PatientID = patientID

	result, err := h.queueService.Book(c.UserContext(), &input)
	if err != nil {
		return writeQueueError(c, err, "Failed to book appointment")
	}
	return response.Created(c, "Appointment booked", result)
}

// GetMyAppointments lists the caller's appointments, newest first
// @Summary My appointments
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param limit query int false "Limit"
// @Success 200 {object} response.Response
// @Router /queue/my-appointments [get]
func (h *QueueHandler) GetMyAppointments(c *fiber.Ctx) error {
	patientID, ok := currentUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}

	items, meta, err := h.queueService.ListMyAppointments(c.UserContext(), patientID, pagination.GetParams(c))
	if err != nil {
		return writeQueueError(c, err, "Failed to get appointments")
	}
	return response.Success(c, "My appointments retrieved", pagination.NewResponse(items, meta))
}

// GetStatus projects the caller's place in line
// @Summary Queue status
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /queue/appointments/{id}/status [get]
func (h *QueueHandler) GetStatus(c *fiber.Ctx) error {
	patientID, ok := currentUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	appointmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid appointment ID")
	}

	status, err := h.queueService.GetPatientQueueStatus(c.UserContext(), patientID, appointmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to get queue status")
	}
	return response.Success(c, "Queue status retrieved", status)
}

// Cancel withdraws the caller's appointment
// @Summary Cancel appointment
// @Tags Queue
// @Produce json
// @Security BearerAuth
// @Param id path int true "Appointment ID"
// @Success 200 {object} response.Response
// @Failure 404 {object} response.Response
// @Failure 409 {object} response.Response
// @Router /queue/appointments/{id}/cancel [post]
func (h *QueueHandler) Cancel(c *fiber.Ctx) error {
	patientID, ok := currentUser(c)
	if !ok {
		return response.Unauthorized(c, "User not authenticated")
	}
	appointmentID, ok := paramID(c, "id")
	if !ok {
		return response.BadRequest(c, "Invalid appointment ID")
	}

	appt, err := h.queueService.CancelByPatient(c.UserContext(), patientID, appointmentID)
	if err != nil {
		return writeQueueError(c, err, "Failed to cancel appointment")
	}
	return response.Success(c, "Appointment cancelled", appt)
}
