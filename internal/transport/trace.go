package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/kursadbilgin/notification-pipeline/internal/observability"
)

// RequestTrace assigns every request an id, echoes it in X-Request-ID and
// carries it as the trace id on the request's user context.
func RequestTrace() []fiber.Handler {
	return []fiber.Handler{
		requestid.New(),
		func(c *fiber.Ctx) error {
			if traceID := requestTraceID(c); traceID != "" {
				c.SetUserContext(observability.WithTraceID(c.UserContext(), traceID))
			}
			return c.Next()
		},
	}
}

func requestTraceID(c *fiber.Ctx) string {
	if value, ok := c.Locals("requestid").(string); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(c.Get(fiber.HeaderXRequestID))
}
