package handler

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/giftreel/api/internal/auth"
)

// AuthHandler handles ForwardAuth verification for the API gateway
type AuthHandler struct {
	jwtSecret string
}

// NewAuthHandler creates a new auth handler for ForwardAuth verification
func NewAuthHandler(jwtSecret string) *AuthHandler {
	return &AuthHandler{jwtSecret: jwtSecret}
}

// Verify handles GET /auth/verify — called by Traefik ForwardAuth.
// Returns 200 with X-User-* headers on success, 401 on failure.
func (h *AuthHandler) Verify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	claims, err := auth.ValidateToken(parts[1], h.jwtSecret)
	if err != nil {
		return c.SendStatus(fiber.StatusUnauthorized)
	}

	c.Set("X-User-Id", claims.UserID)
	c.Set("X-User-Email", claims.Email)
	return c.SendStatus(fiber.StatusOK)
}
