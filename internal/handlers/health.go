package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// HealthChecker is implemented by stores that can verify their backend connection.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Health serves GET /health. details supplies the informational fields; when
// store implements HealthChecker a failed check reports 503 and "degraded".
func Health(store any, details func() fiber.Map, log zerolog.Logger) fiber.Handler {
	checker, _ := store.(HealthChecker)
	return func(c *fiber.Ctx) error {
		body := fiber.Map{}
		if details != nil {
			body = details()
		}
		body["status"] = "healthy"

		if checker != nil {
			if err := checker.HealthCheck(c.UserContext()); err != nil {
				log.Warn().Err(err).Msg("store health check failed")
				body["status"] = "degraded"
				body["store_error"] = err.Error()
				return c.Status(fiber.StatusServiceUnavailable).JSON(body)
			}
		}
		return c.JSON(body)
	}
}
