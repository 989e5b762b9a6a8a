package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/broker"
)

// RegisterBrokerRoutes wires databroker endpoints. limit guards the add route.
func RegisterBrokerRoutes(r fiber.Router, h *broker.Handler, limit fiber.Handler) {
	r.Get("/brokers", h.List)
	r.Post("/brokers", limit, h.Add)
}
