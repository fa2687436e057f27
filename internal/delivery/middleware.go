package delivery

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"marketlive-ws/internal/domain"
)

// IdentityKey is the Fiber locals key holding the caller's domain.Identity.
const IdentityKey = "identity"

// AuthMiddleware rejects requests without a valid bearer token and stores
// the caller's identity in the request locals.
func AuthMiddleware(verifier TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return domain.Unauthenticated("Authorization header is required")
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return domain.Unauthenticated("Invalid authorization header format. Use: Bearer <token>")
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			return domain.Unauthenticated("Token is required")
		}

		id, err := verifier.Verify(token)
		if err != nil {
			return domain.Unauthenticated("Invalid or expired token")
		}

		c.Locals(IdentityKey, id)
		return c.Next()
	}
}

// identityFrom returns the identity set by AuthMiddleware, or the zero
// identity.
func identityFrom(c *fiber.Ctx) domain.Identity {
	id, _ := c.Locals(IdentityKey).(domain.Identity)
	return id
}
