package broker

import (
	"context"
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/argon-desk/argon_desk/internal/profile"
)

// Accounts is the broker surface the HTTP handler needs.
type Accounts interface {
	AddBrokerAccount(ctx context.Context, entry profile.BrokerEntry) (Account, error)
	BrokerAccounts(ctx context.Context) []Account
}

// Handler exposes HTTP endpoints for databroker accounts.
type Handler struct {
	accounts Accounts
}

// NewHandler constructs a broker handler.
func NewHandler(accounts Accounts) *Handler {
	return &Handler{accounts: accounts}
}

// List returns all stored brokers with live balances.
func (h *Handler) List(c *fiber.Ctx) error {
	accounts := h.accounts.BrokerAccounts(c.UserContext())
	out := make([]AccountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, toResponse(a))
	}
	return c.JSON(out)
}

// Add validates a broker credential and stores it.
func (h *Handler) Add(c *fiber.Ctx) error {
	var req AddRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	account, err := h.accounts.AddBrokerAccount(c.UserContext(), profile.BrokerEntry{
		Host:         req.Host,
		UserIdentity: req.UserIdentity,
		Name:         req.Name,
	})
	if err != nil {
		if errors.Is(err, ErrInvalidEntry) {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		return fiber.NewError(http.StatusBadGateway, err.Error())
	}
	return c.Status(http.StatusCreated).JSON(toResponse(account))
}
