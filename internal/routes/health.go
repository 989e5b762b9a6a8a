package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/infra"
)

// RegisterHealthRoutes adds a readiness endpoint covering every configured backend.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := map[string]infra.Check{}
		if d.DB != nil {
			checks["postgres"] = d.DB.Ping
		}
		if d.Cache != nil {
			checks["redis"] = infra.RedisCheck(d.Cache)
		}
		statuses, healthy := infra.RunChecks(ctx, checks)
		statuses["mainchain"] = "detached"
		if d.Manager.Mainchain() {
			statuses["mainchain"] = "ok"
		}
		statuses["localchains"] = "ok"
		if len(d.Manager.Localchains()) == 0 {
			statuses["localchains"] = "none loaded"
			healthy = false
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    statuses,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
