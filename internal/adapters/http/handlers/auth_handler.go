package handlers

import (
	"github.com/gofiber/fiber/v2"

	"hospital-queue/internal/core/services"
	"hospital-queue/internal/pkg/response"
)

// AuthHandler handles patient phone verification
type AuthHandler struct {
	otpService *services.OTPService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(otpService *services.OTPService) *AuthHandler {
	return &AuthHandler{otpService: otpService}
}

// OTPRequest represents an OTP request body
type OTPRequest struct {
	Phone string `json:"phone"`
}

// RequestOTP sends a one-time code to a phone
// @Summary Request OTP
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body OTPRequest true "Phone"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Failure 429 {object} response.Response
// @Router /auth/otp/request [post]
func (h *AuthHandler) RequestOTP(c *fiber.Ctx) error {
	var req OTPRequest
	if err := c.BodyParser(&req); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.otpService.RequestOTP(c.UserContext(), req.Phone)
	if err != nil {
		return writeQueueError(c, err, "Failed to send OTP")
	}
	return response.Success(c, "OTP sent", result)
}

// VerifyOTP checks a code and returns an access token
// @Summary Verify OTP
// @Tags Auth
// @Accept json
// @Produce json
// @Param body body services.VerifyInput true "Phone, code and optional name"
// @Success 200 {object} response.Response
// @Failure 400 {object} response.Response
// @Router /auth/otp/verify [post]
func (h *AuthHandler) VerifyOTP(c *fiber.Ctx) error {
	var input services.VerifyInput
	if err := c.BodyParser(&input); err != nil {
		return response.BadRequest(c, "Invalid request body")
	}

	result, err := h.otpService.VerifyOTP(c.UserContext(), &input)
	if err != nil {
		return writeQueueError(c, err, "Failed to verify OTP")
	}
	return response.Success(c, "OTP verified", result)
}
