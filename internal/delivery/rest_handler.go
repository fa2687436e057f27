package delivery

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
)

// HealthChecker is a dependency whose reachability is reported by /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	deps := fiber.Map{}
	status := "ok"
	for name, dep := range s.health {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		err := dep.Ping(ctx)
		cancel()
		if err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}

	return c.JSON(fiber.Map{
		"status":       status,
		"message":      "Marketlive realtime server is running",
		"port":         s.config.Port,
		"environment":  s.config.Environment,
		"cors_origins": s.config.GetCORSOrigins(),
		"connections":  s.broker.ConnectionCount(),
		"dependencies": deps,
	})
}
