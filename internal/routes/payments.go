package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/payments"
)

// RegisterPaymentRoutes wires argon file and transfer endpoints.
func RegisterPaymentRoutes(r fiber.Router, h *payments.Handler) {
	r.Post("/argons/send", h.SendFile)
	r.Post("/argons/request", h.RequestFile)
	r.Post("/argons/accept", h.Accept)
	r.Post("/argons/import", h.Import)
	r.Post("/transfers/to-mainchain", h.ToMainchain)
	r.Post("/transfers/to-localchain", h.ToLocalchain)
}
