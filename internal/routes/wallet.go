package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/notification"
	"github.com/argon-desk/argon_desk/internal/wallet"
)

// RegisterWalletRoutes wires the wallet view and its update stream.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler, stream *notification.StreamHandler) {
	r.Get("/wallet", h.Get)
	r.Get("/wallet/events", stream.Events)
}
