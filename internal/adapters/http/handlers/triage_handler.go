package handlers

import (
	"github.com/gofiber/fiber/v2"

	"hospital-queue/internal/core/triage"
	"hospital-queue/internal/pkg/response"
)

// TriageHandler exposes symptom triage
type TriageHandler struct {
	triageService *triage.Service
}

// NewTriageHandler creates a new triage handler
func NewTriageHandler(triageService *triage.Service) *TriageHandler {
	return &TriageHandler{triageService: triageService}
}

// TriageRequest represents a triage request body
type TriageRequest struct {
	Symptoms string `json:"symptoms"`
}

// Triage classifies free-text symptoms
// @Summary Symptom triage
// @Description Rule-based triage with an optional model; the rules answer whenever the model cannot.
// @Tags Triage
// @Accept json
// @Produce json
// @Param body body TriageRequest true "Symptoms"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /triage [post]
func (h *TriageHandler) Triage(c *fiber.Ctx) error {
	var req TriageRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.triageService.Triage(c.UserContext(), req.Symptoms)
	if err != nil {
		return writeQueueError(c, err, "Failed to classify symptoms")
	}
	return response.Success(c, "Triage completed", result)
}
