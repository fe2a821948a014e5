package transport

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notify-engine/internal/observability"
)

const CorrelationHeader = "X-Correlation-Id"

// CorrelationMiddleware tags every request with a correlation id. Incoming
// ids are honored so callers can trace a submission across services; absent
// ones are minted here. The id rides the request context for log enrichment
// and is echoed back on the response.
func CorrelationMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		correlationID := strings.TrimSpace(c.Get(CorrelationHeader))
		if correlationID == "" {
			correlationID = uuid.NewString()
		}

		c.SetUserContext(observability.WithCorrelationID(c.UserContext(), correlationID))
		c.Set(CorrelationHeader, correlationID)

		return c.Next()
	}
}
