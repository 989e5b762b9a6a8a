package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/manager"
)

// RegisterAccountRoutes wires localchain account endpoints.
func RegisterAccountRoutes(r fiber.Router, h *manager.Handler) {
	r.Post("/accounts", h.Add)
	r.Post("/accounts/create", h.Create)
	r.Get("/accounts/:address", h.Get)
	r.Post("/sync", h.Sync)
}
