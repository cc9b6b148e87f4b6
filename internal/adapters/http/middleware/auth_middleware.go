package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"

	"hospital-queue/internal/core/domain"
	"hospital-queue/internal/pkg/jwt"
	"hospital-queue/internal/pkg/response"
)

// bearerToken extracts the token from the Authorization header. SSE clients
// that cannot set headers may pass ?access_token= instead.
func bearerToken(c *fiber.Ctx) string {
	authHeader := c.Get(fiber.HeaderAuthorization)
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	}
	return c.Query("access_token")
}

// AuthMiddleware creates authentication middleware
func AuthMiddleware(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		accessToken := bearerToken(c)
		if accessToken == "" {
			return response.Unauthorized(c, "Access token required")
		}

		claims, err := jwt.ValidateAccessToken(accessToken, secret)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				return response.Unauthorized(c, "Access token expired")
			}
			return response.Unauthorized(c, "Invalid access token")
		}

		c.Locals("userID", claims.UserID)
		c.Locals("phone", claims.Phone)
		c.Locals("role", claims.Role)

		return c.Next()
	}
}

// RoleMiddleware creates role-based authorization middleware
func RoleMiddleware(allowedRoles ...domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role, ok := c.Locals("role").(string)
		if !ok {
			return response.Unauthorized(c, "Unauthorized")
		}

		for _, allowedRole := range allowedRoles {
			if role == string(allowedRole) {
				return c.Next()
			}
		}

		return response.Forbidden(c, "You don't have permission to access this resource")
	}
}

// PatientOnly allows only PATIENT tokens
func PatientOnly() fiber.Handler {
	return RoleMiddleware(domain.RolePatient)
}

// StaffOrAdmin allows STAFF or ADMIN roles
func StaffOrAdmin() fiber.Handler {
	return RoleMiddleware(domain.RoleStaff, domain.RoleAdmin)
}
