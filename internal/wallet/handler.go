package wallet

import (
	"context"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Source returns the current wallet.
type Source interface {
	Wallet(ctx context.Context) (Wallet, error)
}

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	source Source
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(source Source) *Handler {
	return &Handler{source: source}
}

// Get returns the aggregated wallet.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.source.Wallet(c.UserContext())
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.Status(http.StatusOK).JSON(w)
}
