package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/plexshare/backend/pkg/logger"
	"github.com/plexshare/backend/pkg/utils"
)

func CORS(origins string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireOperator checks the bearer token against the configured operator
// token. An empty token disables the check.
func RequireOperator(token string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Next()
		}

		authHeader := c.Get(fiber.HeaderAuthorization)
		if authHeader == "" {
			return utils.Error(c, fiber.StatusUnauthorized, "missing authorization header")
		}

		presented := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
		if presented == authHeader || presented == "" {
			logger.WarnWithRequest(logger.GetRequestIDFromContext(c), "operator_token_invalid_format", map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
			return utils.Error(c, fiber.StatusUnauthorized, "invalid authorization format")
		}

		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			return utils.Error(c, fiber.StatusUnauthorized, "invalid operator token")
		}
		return c.Next()
	}
}
