package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/giftreel/api/internal/auth"
	"github.com/giftreel/api/pkg/response"
)

// AuthMiddleware handles JWT authentication. Session management and the
// approval workflow live in the gateway; this only verifies the bearer
// token and exposes the caller's identity.
type AuthMiddleware struct {
	jwtSecret string
}

// NewAuthMiddleware creates auth middleware using HMAC signing
func NewAuthMiddleware(jwtSecret string) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: jwtSecret}
}

// Authenticate validates the JWT token from the Authorization header
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return response.Unauthorized(c, "Missing authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return response.Unauthorized(c, "Invalid authorization header format")
		}

		claims, err := auth.ValidateToken(parts[1], m.jwtSecret)
		if err != nil {
			return response.Unauthorized(c, "Invalid or expired token")
		}

		c.Locals("userId", claims.UserID)
		c.Locals("email", claims.Email)
		return c.Next()
	}
}

// GetUserID returns the authenticated user id from the request context
func GetUserID(c *fiber.Ctx) string {
	if id, ok := c.Locals("userId").(string); ok {
		return id
	}
	return ""
}
